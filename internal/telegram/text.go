package telegram

import "unicode/utf8"

const (
	maxTextRunes    = 4096
	maxCaptionRunes = 1024
	ellipsis        = "..."
)

// TruncateText fits s into a message body.
func TruncateText(s string) string { return truncate(s, maxTextRunes) }

// TruncateCaption fits s into a media caption.
func TruncateCaption(s string) string { return truncate(s, maxCaptionRunes) }

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(ellipsis)
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + ellipsis
		}
		n++
	}
	return s
}
