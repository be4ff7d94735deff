package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"memobridge/internal/album"
	"memobridge/internal/browse"
	"memobridge/internal/config"
	"memobridge/internal/domain"
	"memobridge/internal/httpclient"
	"memobridge/internal/memos"
	"memobridge/internal/metrics"
	"memobridge/internal/pipeline"
	"memobridge/internal/server"
	"memobridge/internal/store"
	"memobridge/internal/telegram"

	"github.com/spf13/cobra"
)

// telegramTimeout must exceed the long-poll timeout used by getUpdates.
const telegramTimeout = 60 * time.Second

// app holds the wired components for one process.
type app struct {
	cfg      *config.Config
	bot      *telegram.Client
	notes    *memos.Client
	albums   domain.AlbumStore
	metrics  *metrics.Recorder
	pipeline *pipeline.Pipeline
}

func (a *app) Close() {
	if a.albums != nil {
		if err := a.albums.Close(); err != nil {
			logger.Warn("album store close", "err", err)
		}
	}
}

func newBot(cfg *config.Config) (*telegram.Client, error) {
	return telegram.NewClient(telegram.ClientConfig{
		Token:          cfg.Telegram.Token,
		APIURL:         cfg.Telegram.APIEndpoint,
		HTTPClient:     httpclient.NewAPI(telegramTimeout),
		DownloadClient: httpclient.NewTransfer(httpclient.DefaultTransferTimeout),
		Logger:         logger,
	})
}

func newNotes(cfg *config.Config) *memos.Client {
	timeout := time.Duration(cfg.Memos.TimeoutSeconds) * time.Second
	return memos.NewClient(memos.Config{
		BaseURL:           cfg.Memos.BaseURL,
		Token:             cfg.Memos.Token,
		DefaultVisibility: domain.Visibility(strings.ToUpper(cfg.Memos.DefaultVisibility)),
		Timeout:           timeout,
		HTTPClient:        httpclient.NewAPI(timeout),
		UploadClient:      httpclient.NewTransfer(httpclient.DefaultTransferTimeout),
		Logger:            logger,
	})
}

// newApp connects to both upstreams and opens the album store.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := config.CheckRuntime(cfg); err != nil {
		return nil, err
	}

	bot, err := newBot(cfg)
	if err != nil {
		return nil, err
	}
	notes := newNotes(cfg)

	albums, err := store.Open(ctx, store.Options{
		Backend:  cfg.Album.Backend,
		DBPath:   cfg.Album.DBPath,
		RedisURL: cfg.Album.RedisURL,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("album store: %w", err)
	}

	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.New()
	}

	tracker := album.NewTracker(album.Config{
		Store:  albums,
		Notes:  notes,
		TTL:    time.Duration(cfg.Album.TTLSeconds) * time.Second,
		Logger: logger,
	})
	browser := browse.New(browse.Config{
		Notes:    notes,
		Bot:      bot,
		PageSize: cfg.General.PageSize,
		Logger:   logger,
	})
	p := pipeline.New(pipeline.Config{
		Bot:           bot,
		Notes:         notes,
		Albums:        tracker,
		Browse:        browser,
		Metrics:       rec,
		MaxMediaBytes: cfg.Media.MaxBytes,
		Logger:        logger,
	})

	return &app{
		cfg:      cfg,
		bot:      bot,
		notes:    notes,
		albums:   albums,
		metrics:  rec,
		pipeline: p,
	}, nil
}

func (a *app) server() *server.Server {
	cfg := a.cfg
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return server.New(server.Config{
		Host:          cfg.Server.Host,
		Port:          cfg.Server.Port,
		WebhookPath:   cfg.Server.WebhookPath,
		WebhookURL:    cfg.Telegram.WebhookURL,
		Secret:        cfg.Telegram.WebhookSecret,
		MaxPhotoBytes: cfg.Media.MaxBytes,
		Handler:       a.pipeline,
		Bot:           a.bot,
		Commands:      pipeline.Commands,
		Metrics:       a.metrics,
		MetricsPath:   metricsPath,
		Logger:        logger,
	})
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge (webhook server or long polling)",
		Long: `Starts the HTTP server with /health, the webhook endpoint and metrics.
In polling mode updates are fetched with getUpdates instead and the HTTP
server only serves health and metrics. Press Ctrl+C to stop.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, cfgPath, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	logger.Info("memobridge starting",
		"version", version,
		"config", cfgPath,
		"mode", cfg.Telegram.Mode,
		"album_backend", cfg.Album.Backend,
	)

	if cfg.Telegram.Mode == "polling" {
		go func() {
			if err := telegram.Poll(ctx, a.bot, cfg.Media.MaxBytes, a.pipeline.HandleUpdate); err != nil {
				logger.Error("telegram polling stopped", "err", err)
				stop()
			}
		}()
	} else if cfg.Telegram.WebhookURL == "" {
		logger.Warn("telegram.webhookURL is empty; register the webhook yourself or run 'memobridge setup'")
	}

	if err := a.server().Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func setupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Register the webhook URL and the command menu with Telegram",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Telegram.Token == "" {
				return fmt.Errorf("telegram.token is required")
			}
			bot, err := newBot(cfg)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := server.Setup(ctx, bot, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret, pipeline.Commands); err != nil {
				return err
			}
			logger.Info("webhook registered", "url", cfg.Telegram.WebhookURL)
			return nil
		},
	}
}
