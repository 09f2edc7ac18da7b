package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/botpanel/botpanel/internal/api"
	"github.com/botpanel/botpanel/internal/backend"
	"github.com/botpanel/botpanel/internal/config"
	"github.com/botpanel/botpanel/internal/console"
	"github.com/botpanel/botpanel/internal/metrics"
	"github.com/botpanel/botpanel/internal/notify"
	"github.com/botpanel/botpanel/internal/poller"
	"github.com/botpanel/botpanel/internal/session"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", "configs/botpanel.yaml", "path to configuration file")
	envPath := flag.String("env", ".env", "path to dotenv file used for ${VAR} substitution")
	terminal := flag.Bool("terminal", false, "also print pairing QR codes to stdout")
	flag.Parse()

	if err := godotenv.Load(*envPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("failed to load env file", "path", *envPath, "err", err)
	}

	cfg, fromFile, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(parseLevel(cfg.Log.Level))
	slog.SetDefault(slog.New(newHandler(cfg.Log.Format, logLevel)))

	slog.Info("botpanel starting...", "backend", cfg.Backend.Origin, "config_file", fromFile)

	// Initialize components
	m := metrics.New()
	client := backend.NewClient(cfg.Backend.Origin, cfg.Backend.RequestTimeout)

	store, err := session.Open(cfg.Store)
	if err != nil {
		slog.Error("failed to open state store", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	loadCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	sess := session.New(loadCtx, store, cfg.Store.Key)
	cancel()

	feed := notify.NewFeed(0)
	feed.SetOnNotify(func(n notify.Notification) {
		m.NotificationRaised(string(n.Level))
	})

	p := poller.New(client, sess, feed, m, poller.Options{
		Interval:         cfg.Poll.Interval,
		FailureThreshold: cfg.Poll.FailureThreshold,
	})

	if *terminal {
		printer := console.NewPrinter(os.Stdout, dashboardURL(cfg.Listen))
		p.SetOnQRChange(printer.OnQRChange)
	}

	p.Start()

	apiServer := api.NewServer(p, feed, m, cfg)
	if err := apiServer.Start(cfg.Listen.APIPort); err != nil {
		slog.Error("failed to start API server", "err", err)
		os.Exit(1)
	}

	// Set up config hot-reload
	var configWatcher *config.Watcher
	if fromFile {
		configWatcher, err = config.NewWatcher(*configPath, func(newCfg *config.Config) {
			slog.Info("reloading configuration...")
			client.Update(newCfg.Backend.Origin, newCfg.Backend.RequestTimeout)
			p.SetInterval(newCfg.Poll.Interval)
			logLevel.Set(parseLevel(newCfg.Log.Level))
			apiServer.SetConfig(newCfg)
		})
		if err != nil {
			slog.Warn("config hot-reload not available", "err", err)
		}
	}

	slog.Info("botpanel ready", "dashboard", dashboardURL(cfg.Listen), "store", cfg.Store.Driver)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down...", "signal", sig)

	// Graceful shutdown with timeout
	done := make(chan struct{})
	go func() {
		if configWatcher != nil {
			configWatcher.Stop()
		}
		apiServer.Stop()
		p.Stop()
		if err := store.Close(); err != nil {
			slog.Warn("closing state store failed", "err", err)
		}
		close(done)
	}()

	select {
	case <-done:
		slog.Info("botpanel stopped")
	case <-time.After(shutdownTimeout):
		slog.Error("shutdown timed out, forcing exit", "timeout", shutdownTimeout)
		os.Exit(1)
	}
}

// loadConfig falls back to defaults when the file does not exist.
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	if err == nil {
		return cfg, true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("config file not found, using defaults", "path", path)
		return config.Default(), false, nil
	}
	return nil, false, err
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func newHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.NewTextHandler(os.Stderr, opts)
}

func dashboardURL(lc config.ListenConfig) string {
	scheme := "http"
	if lc.TLSEnabled() {
		scheme = "https"
	}
	host := lc.APIBind
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s://%s:%d/", scheme, host, lc.APIPort)
}
