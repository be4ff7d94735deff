package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"memobridge/internal/domain"
	"memobridge/internal/metrics"
)

type recordingHandler struct {
	mu      sync.Mutex
	updates []domain.Update
}

func (h *recordingHandler) HandleUpdate(_ context.Context, upd domain.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, upd)
}

type fakeRegistrar struct {
	url, secret string
	cmds        []domain.BotCommand
	err         error
}

func (f *fakeRegistrar) SetWebhook(_ context.Context, url, secret string) error {
	if f.err != nil {
		return f.err
	}
	f.url, f.secret = url, secret
	return nil
}

func (f *fakeRegistrar) SetCommands(_ context.Context, cmds []domain.BotCommand) error {
	f.cmds = cmds
	return nil
}

func newTestServer(cfg Config) http.Handler {
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg).Router()
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

const textUpdate = `{"update_id":10,"message":{"message_id":1,"chat":{"id":42},"text":"hello"}}`

func TestHealth(t *testing.T) {
	rr := do(t, newTestServer(Config{}), http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Errorf("health = %d %q", rr.Code, rr.Body.String())
	}
}

func TestWebhookDeliversUpdate(t *testing.T) {
	h := &recordingHandler{}
	srv := newTestServer(Config{Handler: h, Secret: "s3cret"})

	rr := do(t, srv, http.MethodPost, DefaultWebhookPath, textUpdate, map[string]string{SecretHeader: "s3cret"})
	if rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Fatalf("webhook = %d %q", rr.Code, rr.Body.String())
	}
	if len(h.updates) != 1 || h.updates[0].Message == nil || h.updates[0].Message.Text != "hello" {
		t.Errorf("updates = %+v", h.updates)
	}
}

type ctxHandler struct {
	err      error
	deadline time.Time
	hasDL    bool
}

func (h *ctxHandler) HandleUpdate(ctx context.Context, _ domain.Update) {
	h.err = ctx.Err()
	h.deadline, h.hasDL = ctx.Deadline()
}

func TestWebhookOutlivesClientDisconnect(t *testing.T) {
	h := &ctxHandler{}
	srv := newTestServer(Config{Handler: h, UpdateTimeout: time.Minute})

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, DefaultWebhookPath, strings.NewReader(textUpdate)).WithContext(reqCtx)
	start := time.Now()
	srv.ServeHTTP(httptest.NewRecorder(), req)

	if h.err != nil {
		t.Errorf("handler context err = %v, want nil after client cancel", h.err)
	}
	if !h.hasDL {
		t.Fatal("handler context has no deadline")
	}
	if d := h.deadline.Sub(start); d <= 0 || d > time.Minute {
		t.Errorf("deadline in %v, want within 1m", d)
	}
}

func TestWebhookDefaultUpdateTimeout(t *testing.T) {
	if got := New(Config{}).cfg.UpdateTimeout; got != DefaultUpdateTimeout {
		t.Errorf("UpdateTimeout = %v, want %v", got, DefaultUpdateTimeout)
	}
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	h := &recordingHandler{}
	srv := newTestServer(Config{Handler: h, Secret: "s3cret"})

	for _, hdr := range []map[string]string{nil, {SecretHeader: "wrong"}} {
		rr := do(t, srv, http.MethodPost, DefaultWebhookPath, textUpdate, hdr)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rr.Code)
		}
	}
	if len(h.updates) != 0 {
		t.Errorf("handler called %d times", len(h.updates))
	}
}

func TestWebhookMalformedBody(t *testing.T) {
	h := &recordingHandler{}
	srv := newTestServer(Config{Handler: h})

	rr := do(t, srv, http.MethodPost, DefaultWebhookPath, `{"update_id":`, nil)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
	if len(h.updates) != 0 {
		t.Error("handler called for malformed body")
	}
}

func TestWebhookIgnoresOtherUpdateKinds(t *testing.T) {
	h := &recordingHandler{}
	srv := newTestServer(Config{Handler: h, WebhookPath: "/hook"})

	rr := do(t, srv, http.MethodPost, "/hook", `{"update_id":3,"channel_post":{"message_id":1,"chat":{"id":1},"text":"x"}}`, nil)
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
	if len(h.updates) != 0 {
		t.Error("handler called for ignored update kind")
	}
}

func TestWebhookBodyLimit(t *testing.T) {
	srv := newTestServer(Config{Handler: &recordingHandler{}})
	big := `{"update_id":1,"message":{"message_id":1,"chat":{"id":1},"text":"` + strings.Repeat("a", maxBodyBytes) + `"}}`

	rr := do(t, srv, http.MethodPost, DefaultWebhookPath, big, nil)
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rr.Code)
	}
}

func TestSetupEndpoint(t *testing.T) {
	reg := &fakeRegistrar{}
	cmds := []domain.BotCommand{{Command: "list", Description: "Browse"}}
	srv := newTestServer(Config{
		Bot:        reg,
		Secret:     "s3cret",
		WebhookURL: "https://bridge.example/telegram/webhook",
		Commands:   cmds,
	})

	if rr := do(t, srv, http.MethodPost, "/setup", "", nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated setup = %d, want 401", rr.Code)
	}

	rr := do(t, srv, http.MethodPost, "/setup", "", map[string]string{SecretHeader: "s3cret"})
	if rr.Code != http.StatusOK {
		t.Fatalf("setup = %d %q", rr.Code, rr.Body.String())
	}
	if reg.url != "https://bridge.example/telegram/webhook" || reg.secret != "s3cret" || len(reg.cmds) != 1 {
		t.Errorf("registrar = %+v", reg)
	}
}

func TestSetupFailure(t *testing.T) {
	reg := &fakeRegistrar{err: errors.New("bot api down")}
	srv := newTestServer(Config{Bot: reg, WebhookURL: "https://bridge.example/hook"})

	rr := do(t, srv, http.MethodPost, "/setup", "", nil)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestSetupRequiresURL(t *testing.T) {
	if err := Setup(context.Background(), &fakeRegistrar{}, "", "", nil); err == nil {
		t.Error("expected error without webhook URL")
	}
}

func TestMetricsRoute(t *testing.T) {
	rec := metrics.New()
	rec.NoteCreated()
	srv := newTestServer(Config{Metrics: rec, MetricsPath: "/metrics"})

	rr := do(t, srv, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "memobridge_notes_created_total 1") {
		t.Errorf("metrics = %d", rr.Code)
	}

	off := newTestServer(Config{})
	if rr := do(t, off, http.MethodGet, "/metrics", "", nil); rr.Code != http.StatusNotFound {
		t.Errorf("metrics disabled = %d, want 404", rr.Code)
	}
}
