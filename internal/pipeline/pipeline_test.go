package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"memobridge/internal/album"
	"memobridge/internal/browse"
	"memobridge/internal/callback"
	"memobridge/internal/domain"
	"memobridge/internal/memos"
	"memobridge/internal/store"
)

type sent struct {
	chatID int64
	text   string
	kb     domain.Keyboard
}

type fakeBot struct {
	mu        sync.Mutex
	messages  []sent
	edits     []sent
	answers   []string
	photos    []string
	groups    int
	paths     map[string]string // file id -> path
	files     map[string]*domain.DownloadedFile
	fileErrs  map[string]error
	pathCalls int
}

func newFakeBot() *fakeBot {
	return &fakeBot{
		paths:    map[string]string{},
		files:    map[string]*domain.DownloadedFile{},
		fileErrs: map[string]error{},
	}
}

func (b *fakeBot) SendMessage(_ context.Context, chatID int64, text string, kb domain.Keyboard) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, sent{chatID, text, kb})
	return nil
}

func (b *fakeBot) EditMessageText(_ context.Context, chatID int64, _ int, text string, kb domain.Keyboard) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edits = append(b.edits, sent{chatID, text, kb})
	return nil
}

func (b *fakeBot) SendMediaGroup(context.Context, int64, []domain.MediaItem) error {
	b.groups++
	return nil
}

func (b *fakeBot) SendPhoto(_ context.Context, _ int64, url, _ string) error {
	b.photos = append(b.photos, url)
	return nil
}

func (b *fakeBot) AnswerCallback(_ context.Context, _ string, text string) error {
	b.answers = append(b.answers, text)
	return nil
}

func (b *fakeBot) GetFilePath(_ context.Context, fileID string) (string, error) {
	b.pathCalls++
	p, ok := b.paths[fileID]
	if !ok {
		return "", fmt.Errorf("getFile: unknown %s", fileID)
	}
	return p, nil
}

func (b *fakeBot) DownloadFile(_ context.Context, path string, _ int64) (*domain.DownloadedFile, error) {
	if err, ok := b.fileErrs[path]; ok {
		return nil, err
	}
	f, ok := b.files[path]
	if !ok {
		return nil, fmt.Errorf("download: unknown %s", path)
	}
	return f, nil
}

func (b *fakeBot) SetWebhook(context.Context, string, string) error         { return nil }
func (b *fakeBot) SetCommands(context.Context, []domain.BotCommand) error { return nil }

type fakeNotes struct {
	mu          sync.Mutex
	seq         int
	notes       map[string]*domain.Note
	attachments map[string][]domain.NewAttachment
	createErr   error
}

func newFakeNotes() *fakeNotes {
	return &fakeNotes{notes: map[string]*domain.Note{}, attachments: map[string][]domain.NewAttachment{}}
}

func (n *fakeNotes) CreateNote(_ context.Context, content string) (*domain.Note, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.createErr != nil {
		return nil, n.createErr
	}
	n.seq++
	note := &domain.Note{ID: fmt.Sprintf("n%d", n.seq), Content: content, Visibility: domain.VisibilityPrivate}
	n.notes[note.ID] = note
	cp := *note
	return &cp, nil
}

func (n *fakeNotes) GetNote(_ context.Context, id string) (*domain.Note, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	note, ok := n.notes[id]
	if !ok {
		return nil, &memos.APIError{StatusCode: 404, Body: "not found"}
	}
	cp := *note
	return &cp, nil
}

func (n *fakeNotes) PatchNote(_ context.Context, id string, patch domain.NotePatch) (*domain.Note, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	note, ok := n.notes[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if patch.Pinned != nil {
		note.Pinned = *patch.Pinned
	}
	if patch.Visibility != nil {
		note.Visibility = *patch.Visibility
	}
	cp := *note
	return &cp, nil
}

func (n *fakeNotes) CreateAttachment(_ context.Context, noteID string, a domain.NewAttachment) (*domain.Attachment, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.attachments[noteID] = append(n.attachments[noteID], a)
	att := domain.Attachment{
		Name:     fmt.Sprintf("attachments/%s-%d", noteID, len(n.attachments[noteID])),
		Filename: a.Filename,
		MimeType: a.MimeType,
		Size:     int64(len(a.Content)),
	}
	if note, ok := n.notes[noteID]; ok {
		note.Attachments = append(note.Attachments, att)
	}
	return &att, nil
}

func (n *fakeNotes) ListNotes(_ context.Context, _ int, token string) (*domain.Page, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	page := &domain.Page{}
	for i := 1; i <= n.seq; i++ {
		if note, ok := n.notes[fmt.Sprintf("n%d", i)]; ok {
			page.Notes = append(page.Notes, *note)
		}
	}
	return page, nil
}

func (n *fakeNotes) NoteURL(id string) string { return "https://memos.example/memos/" + id }

func (n *fakeNotes) AttachmentURL(a domain.Attachment) string {
	return "https://memos.example/file/" + a.Name + "/" + a.Filename
}

type harness struct {
	p      *Pipeline
	bot    *fakeBot
	notes  *fakeNotes
	albums domain.AlbumStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bot := newFakeBot()
	notes := newFakeNotes()
	st := store.NewMemoryStore()
	p := New(Config{
		Bot:           bot,
		Notes:         notes,
		Albums:        album.NewTracker(album.Config{Store: st, Notes: notes, Logger: logger}),
		Browse:        browse.New(browse.Config{Notes: notes, Bot: bot, Logger: logger}),
		MaxMediaBytes: 20 << 20,
		Logger:        logger,
	})
	stems := 0
	p.newStem = func() string {
		stems++
		return fmt.Sprintf("s%d", stems)
	}
	return &harness{p: p, bot: bot, notes: notes, albums: st}
}

func message(text string) domain.Update {
	return domain.Update{ID: 1, Message: &domain.IncomingMessage{ChatID: 42, MessageID: 1, Text: text}}
}

func press(h *harness, data string) {
	h.p.HandleUpdate(context.Background(), domain.Update{ID: 2, Callback: &domain.CallbackInteraction{
		ID: "cb", ChatID: 42, MessageID: 5, Data: data,
	}})
}

func TestTextMessageCreatesNoteAndNotifies(t *testing.T) {
	h := newHarness(t)
	h.p.HandleUpdate(context.Background(), message("hello"))

	if len(h.notes.notes) != 1 || h.notes.notes["n1"].Content != "hello" {
		t.Fatalf("notes = %+v", h.notes.notes)
	}
	if len(h.bot.messages) != 1 {
		t.Fatalf("messages = %+v", h.bot.messages)
	}
	m := h.bot.messages[0]
	if m.text != "Saved: https://memos.example/memos/n1" {
		t.Errorf("notification = %q", m.text)
	}
	a, ok := callback.Decode(m.kb[0][0].Data)
	if d, isDetail := a.(callback.Detail); !ok || !isDetail || d.NoteID != "n1" {
		t.Errorf("details button = %#v", a)
	}
}

func TestFormattedAndForwardedContent(t *testing.T) {
	h := newHarness(t)
	upd := message("bold text")
	upd.Message.Entities = []domain.EntitySpan{{Kind: domain.EntityBold, Offset: 0, Length: 4}}
	upd.Message.Forward = &domain.ForwardOrigin{Kind: domain.ForwardUser, Name: "Ada", Username: "ada"}
	h.p.HandleUpdate(context.Background(), upd)

	want := "Forwarded from Ada (@ada)\n**bold** text"
	if got := h.notes.notes["n1"].Content; got != want {
		t.Errorf("content = %q, want %q", got, want)
	}
}

func TestAlbumCollapsesIntoOneNote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		id := fmt.Sprintf("photo%d", i)
		path := fmt.Sprintf("photos/file_%d.jpg", i)
		h.bot.paths[id] = path
		h.bot.files[path] = &domain.DownloadedFile{Data: []byte{0xFF, 0xD8, 0xFF, 0xE0}, ContentType: "image/jpeg", Path: path}

		msg := &domain.IncomingMessage{
			ChatID:    42,
			MessageID: i,
			AlbumID:   "album-1",
			Media:     []domain.MediaRef{{Kind: domain.MediaPhoto, FileID: id, MimeType: "image/jpeg", Size: 4}},
		}
		if i == 1 {
			msg.Text = "holiday"
		}
		h.p.HandleUpdate(ctx, domain.Update{ID: i, Message: msg})
	}

	if len(h.notes.notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(h.notes.notes))
	}
	if got := h.notes.notes["n1"].Content; got != "holiday" {
		t.Errorf("content = %q", got)
	}
	atts := h.notes.attachments["n1"]
	if len(atts) != 3 {
		t.Fatalf("attachments = %d, want 3", len(atts))
	}
	for i, a := range atts {
		want := fmt.Sprintf("photo_s%d.jpg", i+1)
		if a.Filename != want || a.MimeType != "image/jpeg" {
			t.Errorf("attachment %d = %+v, want filename %s", i, a, want)
		}
	}
	if len(h.bot.messages) != 1 {
		t.Errorf("notifications = %d, want 1: %+v", len(h.bot.messages), h.bot.messages)
	}
	state, err := h.albums.Get(ctx, "album-1")
	if err != nil || state == nil || !state.Notified || state.NoteID != "n1" {
		t.Errorf("album state = %+v, %v", state, err)
	}
}

func TestStaleAlbumPointerCreatesNewNote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.albums.Put(ctx, "album-2", domain.AlbumState{NoteID: "gone", Notified: true}, time.Hour); err != nil {
		t.Fatal(err)
	}
	upd := message("late caption")
	upd.Message.AlbumID = "album-2"
	h.p.HandleUpdate(ctx, upd)

	if len(h.notes.notes) != 1 {
		t.Fatalf("notes = %d, want 1", len(h.notes.notes))
	}
	if len(h.bot.messages) != 1 || !strings.HasPrefix(h.bot.messages[0].text, "Saved:") {
		t.Errorf("messages = %+v", h.bot.messages)
	}
}

func TestDeclaredOversizeSkipped(t *testing.T) {
	h := newHarness(t)
	upd := message("big file")
	upd.Message.Media = []domain.MediaRef{{Kind: domain.MediaDocument, FileID: "doc", Size: 21 << 20}}
	h.p.HandleUpdate(context.Background(), upd)

	if h.bot.pathCalls != 0 {
		t.Errorf("getFile called %d times for an oversized file", h.bot.pathCalls)
	}
	if len(h.notes.attachments["n1"]) != 0 {
		t.Errorf("attachments = %+v", h.notes.attachments)
	}
	if len(h.bot.messages) != 2 {
		t.Fatalf("messages = %+v", h.bot.messages)
	}
	if !strings.Contains(h.bot.messages[0].text, "Skipped a document") {
		t.Errorf("warning = %q", h.bot.messages[0].text)
	}
	if !strings.HasPrefix(h.bot.messages[1].text, "Saved:") {
		t.Errorf("notification = %q", h.bot.messages[1].text)
	}
}

func TestDownloadedOversizeDiscarded(t *testing.T) {
	h := newHarness(t)
	h.bot.paths["vid"] = "videos/file_1.mp4"
	h.bot.fileErrs["videos/file_1.mp4"] = fmt.Errorf("download: %w", domain.ErrFileTooLarge)
	h.bot.paths["doc"] = "documents/file_2"
	h.bot.files["documents/file_2"] = &domain.DownloadedFile{
		Data: []byte("\x89PNG\r\n\x1a\n...."), ContentType: "application/octet-stream", Path: "documents/file_2",
	}

	upd := message("")
	upd.Message.Media = []domain.MediaRef{
		{Kind: domain.MediaVideo, FileID: "vid"},
		{Kind: domain.MediaDocument, FileID: "doc"},
	}
	h.p.HandleUpdate(context.Background(), upd)

	atts := h.notes.attachments["n1"]
	if len(atts) != 1 {
		t.Fatalf("attachments = %+v", atts)
	}
	if atts[0].Filename != "document_s1.png" || atts[0].MimeType != "image/png" {
		t.Errorf("attachment = %+v", atts[0])
	}
	if !strings.Contains(h.bot.messages[0].text, "Skipped a video") {
		t.Errorf("warning = %q", h.bot.messages[0].text)
	}
}

func TestAttachmentFailureAbortsWithoutNotification(t *testing.T) {
	h := newHarness(t)
	upd := message("caption")
	upd.Message.Media = []domain.MediaRef{{Kind: domain.MediaVoice, FileID: "missing"}}
	h.p.HandleUpdate(context.Background(), upd)

	if len(h.bot.messages) != 1 || !strings.HasPrefix(h.bot.messages[0].text, "Could not attach a file.") {
		t.Errorf("messages = %+v", h.bot.messages)
	}
}

func TestNoteServiceFailureReported(t *testing.T) {
	h := newHarness(t)
	h.notes.createErr = &memos.APIError{StatusCode: 500, Body: "boom"}
	h.p.HandleUpdate(context.Background(), message("hello"))

	if len(h.bot.messages) != 1 {
		t.Fatalf("messages = %+v", h.bot.messages)
	}
	want := "Could not save the note. The note service answered HTTP 500."
	if h.bot.messages[0].text != want {
		t.Errorf("reply = %q, want %q", h.bot.messages[0].text, want)
	}
}

func TestEmptyMessageIgnored(t *testing.T) {
	h := newHarness(t)
	h.p.HandleUpdate(context.Background(), message("   "))
	if len(h.notes.notes) != 0 || len(h.bot.messages) != 0 {
		t.Errorf("notes = %d, messages = %d", len(h.notes.notes), len(h.bot.messages))
	}
}

func TestCommands(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.p.HandleUpdate(ctx, message("seed"))
	h.bot.messages = nil

	help := message("/help")
	help.Message.Command = "help"
	h.p.HandleUpdate(ctx, help)

	list := message("/list")
	list.Message.Command = "list"
	h.p.HandleUpdate(ctx, list)

	if len(h.bot.messages) != 2 {
		t.Fatalf("messages = %+v", h.bot.messages)
	}
	if h.bot.messages[0].text != helpText {
		t.Errorf("help = %q", h.bot.messages[0].text)
	}
	if kb := h.bot.messages[1].kb; len(kb) != 1 || kb[0][0].Text != "seed" {
		t.Errorf("list keyboard = %+v", kb)
	}
}

func TestUnknownCommandSavedAsNote(t *testing.T) {
	h := newHarness(t)
	upd := message("/todo buy milk")
	upd.Message.Command = "todo"
	upd.Message.CommandArgs = "buy milk"
	h.p.HandleUpdate(context.Background(), upd)

	if h.notes.notes["n1"] == nil || h.notes.notes["n1"].Content != "/todo buy milk" {
		t.Errorf("notes = %+v", h.notes.notes)
	}
}

func TestCallbackInvalidAndExpired(t *testing.T) {
	h := newHarness(t)
	press(h, "%%%not-a-token")
	press(h, string(callback.TagDetail))

	if len(h.bot.edits) != 0 {
		t.Errorf("edits = %+v", h.bot.edits)
	}
	if len(h.bot.answers) != 2 || h.bot.answers[0] != "Invalid action." || !strings.Contains(h.bot.answers[1], "expired") {
		t.Errorf("answers = %q", h.bot.answers)
	}
}

func TestCallbackDetailSendsImages(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.bot.paths["p"] = "photos/file_1.jpg"
	h.bot.files["photos/file_1.jpg"] = &domain.DownloadedFile{Data: []byte{0xFF, 0xD8, 0xFF}, ContentType: "image/jpeg"}
	upd := message("with photo")
	upd.Message.Media = []domain.MediaRef{{Kind: domain.MediaPhoto, FileID: "p", MimeType: "image/jpeg"}}
	h.p.HandleUpdate(ctx, upd)

	press(h, callback.Encode(callback.Detail{NoteID: "n1"}))

	if len(h.bot.edits) != 1 || !strings.Contains(h.bot.edits[0].text, "with photo") {
		t.Fatalf("edits = %+v", h.bot.edits)
	}
	if len(h.bot.photos) != 1 || h.bot.photos[0] != "https://memos.example/file/attachments/n1-1/photo_s1.jpg" {
		t.Errorf("photos = %v", h.bot.photos)
	}
	if len(h.bot.answers) != 1 || h.bot.answers[0] != "" {
		t.Errorf("answers = %q", h.bot.answers)
	}
}

func TestCallbackTogglePin(t *testing.T) {
	h := newHarness(t)
	h.p.HandleUpdate(context.Background(), message("pin me"))

	press(h, callback.Encode(callback.TogglePin{NoteID: "n1"}))

	if !h.notes.notes["n1"].Pinned {
		t.Error("note not pinned")
	}
	if len(h.bot.edits) != 1 || !strings.Contains(h.bot.edits[0].text, "Pinned: yes") {
		t.Errorf("edits = %+v", h.bot.edits)
	}
	if len(h.bot.photos) != 0 {
		t.Error("pin toggle should not resend images")
	}
	if h.bot.answers[0] != "Pin updated." {
		t.Errorf("answer = %q", h.bot.answers[0])
	}
}

func TestCallbackMissingNote(t *testing.T) {
	h := newHarness(t)
	press(h, callback.Encode(callback.Detail{NoteID: "nope"}))

	if len(h.bot.edits) != 0 {
		t.Errorf("edits = %+v", h.bot.edits)
	}
	if len(h.bot.answers) != 1 || h.bot.answers[0] != "The note no longer exists." {
		t.Errorf("answers = %q", h.bot.answers)
	}
}

func TestDescribe(t *testing.T) {
	if got := describe(errors.New("x")); got != "An unexpected error occurred." {
		t.Errorf("describe = %q", got)
	}
	if got := describe(fmt.Errorf("wrap: %w", context.DeadlineExceeded)); got != "The request timed out." {
		t.Errorf("describe = %q", got)
	}
}
