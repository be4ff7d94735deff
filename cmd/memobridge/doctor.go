package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"memobridge/internal/config"
	"memobridge/internal/store"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the configuration and upstreams",
		Long: `Verifies that the config is valid, the album store is writable, the bot
token is accepted by Telegram and the memos server answers with the
configured token. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("memobridge doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed, failed, warned := 0, 0, 0

			if _, err := os.Stat(cfgPath); err != nil {
				printFail("Config file", fmt.Sprintf("not found at %s", cfgPath))
				fmt.Printf("\nRun 'memobridge init' to create a default configuration.\n")
				return fmt.Errorf("config file missing")
			}
			printPass("Config file", cfgPath)
			passed++

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				return fmt.Errorf("config invalid")
			}
			printPass("Config validation", "valid")
			passed++

			if err := config.CheckRuntime(cfg); err != nil {
				printFail("Credentials", err.Error())
				failed++
			} else {
				printPass("Credentials", "telegram and memos tokens set")
				passed++
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			// Album store
			if err := checkAlbumStore(ctx, cfg); err != nil {
				printFail("Album store", err.Error())
				failed++
			} else {
				printPass("Album store", cfg.Album.Backend)
				passed++
			}

			// Telegram
			if cfg.Telegram.Token != "" {
				if bot, err := newBot(cfg); err != nil {
					printFail("Telegram", err.Error())
					failed++
				} else {
					printPass("Telegram", "@"+bot.API().Self.UserName)
					passed++
				}
			}

			// Memos
			if cfg.Memos.BaseURL != "" && cfg.Memos.Token != "" {
				if _, err := newNotes(cfg).ListNotes(ctx, 1, ""); err != nil {
					printFail("Memos", err.Error())
					failed++
				} else {
					printPass("Memos", cfg.Memos.BaseURL)
					passed++
				}
			}

			if cfg.Telegram.Mode == "webhook" && cfg.Telegram.WebhookURL == "" {
				printWarn("Webhook URL", "not set; 'memobridge setup' cannot register the webhook")
				warned++
			}
			if cfg.Telegram.Mode == "webhook" && cfg.Telegram.WebhookSecret == "" {
				printWarn("Webhook secret", "not set; webhook requests are not authenticated")
				warned++
			}

			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				printWarn("HTTP port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("HTTP port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running memobridge.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nmemobridge should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! memobridge is ready to run.\n")
			}
			return nil
		},
	}
}

// checkAlbumStore opens the configured store and round-trips a throwaway key.
func checkAlbumStore(ctx context.Context, cfg *config.Config) error {
	s, err := store.Open(ctx, store.Options{
		Backend:  cfg.Album.Backend,
		DBPath:   cfg.Album.DBPath,
		RedisURL: cfg.Album.RedisURL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer s.Close()
	return store.SelfTest(ctx, s)
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
