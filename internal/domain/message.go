package domain

// Update is a normalized inbound platform update. Exactly one of Message or
// Callback is set.
type Update struct {
	ID       int
	Message  *IncomingMessage
	Callback *CallbackInteraction
}

// IncomingMessage is the pipeline's view of a chat message, built once from
// the wire payload and never mutated afterwards.
type IncomingMessage struct {
	ChatID    int64
	MessageID int
	Text      string // text or caption
	Entities  []EntitySpan
	Forward   *ForwardOrigin
	AlbumID   string
	Media     []MediaRef

	// Command is set when the message starts with a bot command (without the
	// leading slash or @botname suffix).
	Command     string
	CommandArgs string
}

// EntityKind is the subset of rich-text entity types the formatter renders.
type EntityKind string

const (
	EntityURL      EntityKind = "url"
	EntityTextLink EntityKind = "text_link"
	EntityBold     EntityKind = "bold"
	EntityItalic   EntityKind = "italic"
)

// EntitySpan marks a range of message text. Offset and Length are in UTF-16
// code units, matching how the platform reports them.
type EntitySpan struct {
	Kind   EntityKind
	Offset int
	Length int
	URL    string // text_link target
}

// ForwardKind describes who a forwarded message originally came from.
type ForwardKind string

const (
	ForwardUser       ForwardKind = "user"
	ForwardHiddenUser ForwardKind = "hidden_user"
	ForwardChat       ForwardKind = "chat"
	ForwardChannel    ForwardKind = "channel"
)

type ForwardOrigin struct {
	Kind     ForwardKind
	Name     string // user display name or hidden sender name
	Username string
	Title    string // chat or channel title
}

// MediaKind identifies the source field an attachment came from.
type MediaKind string

const (
	MediaDocument MediaKind = "document"
	MediaVoice    MediaKind = "voice"
	MediaVideo    MediaKind = "video"
	MediaPhoto    MediaKind = "photo"
)

// MediaRef points at a platform-hosted file that has not been downloaded yet.
type MediaRef struct {
	Kind     MediaKind
	FileID   string
	FileName string
	MimeType string
	Size     int64 // declared size, 0 when unknown
}

// CallbackInteraction is an inline keyboard button press.
type CallbackInteraction struct {
	ID        string
	ChatID    int64
	MessageID int
	Data      string
}
