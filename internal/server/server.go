// Package server exposes the Telegram webhook and the operational endpoints
// over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"memobridge/internal/domain"
	"memobridge/internal/metrics"
	"memobridge/internal/telegram"
)

const (
	// SecretHeader carries the secret_token registered with setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

	DefaultWebhookPath = "/telegram/webhook"
	// DefaultUpdateTimeout bounds the work done for one webhook delivery,
	// including every download and upload of an album.
	DefaultUpdateTimeout = 5 * time.Minute
	maxBodyBytes         = 1 << 20
)

// UpdateHandler processes one normalized update synchronously.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, upd domain.Update)
}

// Registrar registers the webhook and command menu with the bot platform.
type Registrar interface {
	SetWebhook(ctx context.Context, url, secret string) error
	SetCommands(ctx context.Context, cmds []domain.BotCommand) error
}

type Config struct {
	Host        string
	Port        int
	WebhookPath string
	// WebhookURL is the public URL the platform should call.
	WebhookURL    string
	Secret        string
	MaxPhotoBytes int64
	UpdateTimeout time.Duration

	Handler  UpdateHandler
	Bot      Registrar
	Commands []domain.BotCommand

	// Metrics is served on MetricsPath when both are set.
	Metrics     *metrics.Recorder
	MetricsPath string
	Logger      *slog.Logger
}

type Server struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.WebhookPath == "" {
		cfg.WebhookPath = DefaultWebhookPath
	}
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = DefaultUpdateTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: cfg.Logger}
}

// Router builds the chi mux with every route wired.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSecret)
		r.Post(s.cfg.WebhookPath, s.handleWebhook)
		r.Post("/setup", s.handleSetup)
	})

	if s.cfg.Metrics != nil && s.cfg.MetricsPath != "" {
		r.Method(http.MethodGet, s.cfg.MetricsPath, s.cfg.Metrics.Handler())
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("http server starting", "addr", addr, "webhook_path", s.cfg.WebhookPath)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

// requireSecret rejects requests whose secret header does not match. It lets
// everything through when no secret is configured.
func (s *Server) requireSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Secret != "" && !constantTimeEqual(r.Header.Get(SecretHeader), s.cfg.Secret) {
			s.logger.Warn("rejected request with bad secret", "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleWebhook processes the update before answering so the platform does
// not redeliver it while the note is still being written. The platform may
// hang up first; the update is still finished under its own deadline so a
// half-built album is not left behind.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	upd, err := telegram.ParseUpdate(body, s.cfg.MaxPhotoBytes)
	if err != nil {
		s.logger.Warn("malformed update", "err", err)
		http.Error(w, "invalid update", http.StatusBadRequest)
		return
	}

	if upd.Message == nil && upd.Callback == nil {
		s.logger.Debug("ignoring update", "update_id", upd.ID)
	} else if s.cfg.Handler != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.cfg.UpdateTimeout)
		s.cfg.Handler.HandleUpdate(ctx, upd)
		cancel()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if err := Setup(r.Context(), s.cfg.Bot, s.cfg.WebhookURL, s.cfg.Secret, s.cfg.Commands); err != nil {
		s.logger.Error("setup failed", "err", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.logger.Info("webhook registered", "url", s.cfg.WebhookURL)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "OK")
}

// Setup registers the webhook URL and the command menu.
func Setup(ctx context.Context, bot Registrar, url, secret string, cmds []domain.BotCommand) error {
	if bot == nil {
		return errors.New("setup: no bot client configured")
	}
	if url == "" {
		return errors.New("setup: webhook URL is not configured")
	}
	if err := bot.SetWebhook(ctx, url, secret); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	if err := bot.SetCommands(ctx, cmds); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	return nil
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
