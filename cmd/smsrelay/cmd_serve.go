package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/smsrelay/internal/config"
	"github.com/user/smsrelay/internal/delivery"
	"github.com/user/smsrelay/internal/discord"
	"github.com/user/smsrelay/internal/gateway"
	"github.com/user/smsrelay/internal/router"
	"github.com/user/smsrelay/internal/scheduler"
	"github.com/user/smsrelay/internal/sms"
	"github.com/user/smsrelay/internal/state"
	"github.com/user/smsrelay/internal/telegram"
	"github.com/user/smsrelay/internal/types"
	"github.com/user/smsrelay/internal/webhook"
)

const pidFileName = "smsrelay.pid"

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay daemon",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, pidFileName)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

func newSMSSender(cfg *config.Config) (types.SMSSender, error) {
	if cfg.Twilio.DryRun {
		slog.Warn("twilio dry run enabled; texts are logged, not sent")
		return &sms.DryRun{}, nil
	}
	return sms.New(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.FromNumber)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Persistent store and in-memory signup sessions
	store, err := state.Open(cfg.DBPath())
	if err != nil {
		return err
	}
	defer store.Close()
	sessions := state.NewRegistry(cfg.SessionTimeout())

	sender, err := newSMSSender(cfg)
	if err != nil {
		return fmt.Errorf("create sms sender: %w", err)
	}

	rt := router.New(store, sessions, sender, router.Options{
		SummaryTTL:  cfg.SummaryTTL(),
		Reaction:    cfg.Relay.Reaction,
		MaxParallel: cfg.Relay.MaxParallel,
	})

	gw := gateway.New(int64(cfg.MaxConcurrent))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	defer gw.Stop()

	slog.Info("smsrelay started",
		"data_dir", cfg.DataDir,
		"db", cfg.DBPath(),
		"log_level", cfg.LogLevel,
		"max_concurrent", cfg.MaxConcurrent,
		"signup_timeout", cfg.SessionTimeout(),
		"dry_run", cfg.Twilio.DryRun,
		"pid_file", pidPath,
	)

	// Delivery registry routes opt-out notices to the owning platform
	deliveryReg := delivery.NewRegistry()

	if cfg.Discord.Token != "" {
		adapter, err := discord.New(cfg.Discord.Token, cfg.Discord.GuildID, gw, rt)
		if err != nil {
			return fmt.Errorf("create discord adapter: %w", err)
		}
		go func() {
			if err := adapter.Start(ctx); err != nil {
				slog.Error("discord adapter stopped", "error", err)
			}
		}()
		deliveryReg.Register(types.PlatformDiscord+":", adapter.SendDirect)
	} else {
		slog.Warn("discord adapter disabled (no token)")
	}

	if cfg.Telegram.Token != "" {
		adapter, err := telegram.New(cfg.Telegram.Token, gw, rt)
		if err != nil {
			return fmt.Errorf("create telegram adapter: %w", err)
		}
		go adapter.Start(ctx)
		deliveryReg.Register(types.PlatformTelegram+":", adapter.SendDirect)
	} else {
		slog.Warn("telegram adapter disabled (no token)")
	}

	// Scheduler evicts abandoned signups
	sched := scheduler.New()
	if err := sched.Every("session-sweep", cfg.SweepInterval(), rt.Sweep); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	sched.Start()
	defer sched.Stop()
	slog.Info("scheduler started", "sweep_interval", cfg.SweepInterval())

	if cfg.HTTP.Enabled {
		webhookSrv := webhook.NewServer(store, rt, deliveryReg, webhook.Options{
			AuthToken: cfg.Twilio.AuthToken,
			PublicURL: cfg.HTTP.PublicURL,
		})
		httpServer := &http.Server{
			Addr:    cfg.HTTP.Listen,
			Handler: webhookSrv,
		}
		go func() {
			slog.Info("webhook server started", "listen", cfg.HTTP.Listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("webhook server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			httpServer.Close()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			// Clean up PID file and release the database before re-exec
			os.Remove(pidPath)
			store.Close()
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				return fmt.Errorf("restart: %w", err)
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}
