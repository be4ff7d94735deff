// Package format renders chat message text and its entity spans as markdown.
package format

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"memobridge/internal/domain"
)

const hiddenUser = "Hidden User"

// Message renders text with its entity spans as markdown and prepends a
// forward line when origin is set. Offsets are UTF-16 code units.
//
// Spans are applied earliest first (shorter first on ties). A span that starts
// inside an already rendered span is dropped, so formatting never nests.
func Message(text string, spans []domain.EntitySpan, origin *domain.ForwardOrigin) string {
	body := Entities(text, spans)
	if prefix := ForwardLine(origin); prefix != "" {
		body = prefix + "\n" + body
	}
	return strings.TrimSpace(body)
}

// Entities applies supported spans to text. The result is not trimmed.
func Entities(text string, spans []domain.EntitySpan) string {
	supported := make([]domain.EntitySpan, 0, len(spans))
	for _, s := range spans {
		if isSupported(s.Kind) && s.Offset >= 0 && s.Length > 0 {
			supported = append(supported, s)
		}
	}
	if len(supported) == 0 {
		return text
	}
	sort.SliceStable(supported, func(i, j int) bool {
		if supported[i].Offset != supported[j].Offset {
			return supported[i].Offset < supported[j].Offset
		}
		return supported[i].Length < supported[j].Length
	})

	units := utf16.Encode([]rune(text))
	var b strings.Builder
	b.Grow(len(text) + 8*len(supported))

	cursor := 0
	for _, s := range supported {
		if s.Offset >= len(units) {
			break
		}
		if s.Offset < cursor {
			continue
		}
		end := min(s.Offset+s.Length, len(units))
		b.WriteString(decode(units[cursor:s.Offset]))
		b.WriteString(render(s, decode(units[s.Offset:end])))
		cursor = end
	}
	b.WriteString(decode(units[cursor:]))
	return b.String()
}

func isSupported(k domain.EntityKind) bool {
	switch k {
	case domain.EntityURL, domain.EntityTextLink, domain.EntityBold, domain.EntityItalic:
		return true
	}
	return false
}

func decode(units []uint16) string {
	return string(utf16.Decode(units))
}

// render wraps the non-whitespace core of covered and leaves the surrounding
// whitespace outside the markers.
func render(s domain.EntitySpan, covered string) string {
	lead, core, trail := splitSpace(covered)
	if core == "" {
		return covered
	}
	switch s.Kind {
	case domain.EntityURL:
		core = "[" + core + "](" + core + ")"
	case domain.EntityTextLink:
		target := s.URL
		if target == "" {
			target = core
		}
		core = "[" + core + "](" + target + ")"
	case domain.EntityBold:
		core = "**" + core + "**"
	case domain.EntityItalic:
		core = "*" + core + "*"
	}
	return lead + core + trail
}

// splitSpace returns the leading whitespace run, the core and the trailing
// whitespace run of s. An all-whitespace s is returned entirely as lead.
func splitSpace(s string) (lead, core, trail string) {
	start := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) })
	if start < 0 {
		return s, "", ""
	}
	end := strings.LastIndexFunc(s, func(r rune) bool { return !unicode.IsSpace(r) })
	_, size := utf8.DecodeRuneInString(s[end:])
	end += size
	return s[:start], s[start:end], s[end:]
}

// ForwardLine summarizes a forward origin, or returns "" when origin is nil
// or of an unknown shape.
func ForwardLine(origin *domain.ForwardOrigin) string {
	if origin == nil {
		return ""
	}
	switch origin.Kind {
	case domain.ForwardUser:
		return "Forwarded from " + withHandle(origin.Name, origin.Username)
	case domain.ForwardHiddenUser:
		name := strings.TrimSpace(origin.Name)
		if name == "" {
			name = hiddenUser
		}
		return "Forwarded from " + name
	case domain.ForwardChat, domain.ForwardChannel:
		return "Forwarded from " + withHandle(origin.Title, origin.Username)
	}
	return ""
}

func withHandle(name, handle string) string {
	name = strings.TrimSpace(name)
	if handle == "" {
		return name
	}
	return name + " (@" + handle + ")"
}
