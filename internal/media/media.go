// Package media resolves attachment MIME types and picks which platform file
// variant to ingest.
package media

import (
	"bytes"
	"mime"
	"path"
	"strings"

	"memobridge/internal/domain"
)

const (
	// OctetStream is the generic fallback type.
	OctetStream = "application/octet-stream"

	// DefaultMaxBytes is the bot platform's download ceiling.
	DefaultMaxBytes int64 = 20 << 20
)

var pngSignature = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// ResolveType picks a concrete MIME type: the declared HTTP type, then the
// type hinted by the message, then magic-number sniffing, then OctetStream.
func ResolveType(declared, hinted string, data []byte) string {
	if t := normalize(declared); t != "" {
		return t
	}
	if t := normalize(hinted); t != "" {
		return t
	}
	if t := Sniff(data); t != "" {
		return t
	}
	return OctetStream
}

// normalize strips parameters and returns "" for empty or generic types.
func normalize(t string) string {
	t = strings.TrimSpace(t)
	if t == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		t = mt
	}
	t = strings.ToLower(t)
	if t == OctetStream {
		return ""
	}
	return t
}

// Sniff recognizes common image formats by their leading bytes.
func Sniff(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case bytes.HasPrefix(data, pngSignature):
		return "image/png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "image/gif"
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	}
	return ""
}

// PickPhoto returns the largest size that fits under maxBytes, or the smallest
// size when none fit. Sizes with unknown length are treated as fitting.
func PickPhoto(sizes []PhotoSize, maxBytes int64) (PhotoSize, bool) {
	if len(sizes) == 0 {
		return PhotoSize{}, false
	}
	var best, smallest PhotoSize
	found := false
	for i, s := range sizes {
		if i == 0 || s.area() < smallest.area() {
			smallest = s
		}
		if s.Size > maxBytes {
			continue
		}
		if !found || s.area() > best.area() || (s.area() == best.area() && s.Size > best.Size) {
			best = s
			found = true
		}
	}
	if !found {
		return smallest, true
	}
	return best, true
}

// PhotoSize is one resolution of a platform photo.
type PhotoSize struct {
	FileID string
	Width  int
	Height int
	Size   int64
}

func (p PhotoSize) area() int { return p.Width * p.Height }

// FileName derives an upload filename for ref. A sender-supplied name is
// kept. Anything else is named <kind>_<stem>, since platform paths such as
// photos/file_3.jpg are per-bot counters that repeat across chats. The
// extension comes from the platform path, else from the MIME type.
func FileName(ref domain.MediaRef, filePath, mimeType, stem string) string {
	if ref.FileName != "" {
		return ref.FileName
	}
	ext := path.Ext(filePath)
	if ext == "" {
		ext = extension(mimeType)
	}
	return string(ref.Kind) + "_" + stem + ext
}

var knownExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"audio/ogg":  ".ogg",
	"audio/mpeg": ".mp3",
	"video/mp4":  ".mp4",
}

func extension(mimeType string) string {
	if ext, ok := knownExt[mimeType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ""
}
