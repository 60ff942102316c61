package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"botkit/internal/bot"
	"botkit/internal/bus"
	"botkit/internal/command"
	"botkit/internal/config"
	"botkit/internal/domain"
	"botkit/internal/driver"
	"botkit/internal/metrics"
	"botkit/internal/middleware"
	"botkit/internal/session"
	"botkit/internal/storage"
)

// starter is a long-lived socket driver loop; it publishes synthesized
// requests until ctx is done.
type starter func(ctx context.Context, publish func(*domain.Request)) error

func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	out := io.Writer(os.Stderr)
	if cfg.General.LogFile != "" {
		f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			out = f
		}
	}
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func buildStorage(cfg *config.Config, logger *slog.Logger) (domain.Storage, func() error, error) {
	ttl := time.Duration(cfg.Conversation.CacheMinutes) * time.Minute
	switch cfg.Storage.Backend {
	case "file":
		st, err := storage.NewFileStore(cfg.Storage.Path, ttl)
		if err != nil {
			return nil, nil, err
		}
		return st, func() error { return nil }, nil
	case "sqlite":
		st, err := storage.NewSQLiteStore(cfg.Storage.Path, ttl, logger)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		st := storage.NewMemoryStore(ttl)
		return st, func() error { st.Close(); return nil }, nil
	}
}

// buildDrivers assembles the driver registry from config. Registration
// order matters: the first driver claiming a request wins.
func buildDrivers(cfg *config.Config, logger *slog.Logger) (*driver.Registry, []starter) {
	reg := driver.NewRegistry(logger)
	var starters []starter

	if cfg.Drivers.Telegram.Enabled {
		tgCfg := driver.TelegramConfig{
			Token:     cfg.Drivers.Telegram.Token,
			ParseMode: cfg.Drivers.Telegram.ParseMode,
			Logger:    logger,
		}
		reg.Register("telegram", func(req *domain.Request) domain.Driver {
			return driver.NewTelegram(tgCfg, req)
		})
	}

	if cfg.Drivers.Slack.Enabled {
		slackCfg := driver.SlackConfig{Token: cfg.Drivers.Slack.Token, Logger: logger}
		reg.Register("slack", func(req *domain.Request) domain.Driver {
			return driver.NewSlack(slackCfg, req)
		})
	}

	if cfg.Drivers.Discord.Enabled {
		dc := driver.NewDiscord(driver.DiscordConfig{
			Token:   cfg.Drivers.Discord.Token,
			GuildID: cfg.Drivers.Discord.GuildID,
			Logger:  logger,
		})
		reg.Register("discord", dc.Driver)
		starters = append(starters, dc.Start)
	}

	if cfg.Drivers.WebSocket.Enabled {
		ws := driver.NewWebSocket(driver.WebSocketConfig{
			Port:   cfg.Drivers.WebSocket.Port,
			Path:   cfg.Drivers.WebSocket.Path,
			Logger: logger,
		})
		reg.Register("websocket", ws.Driver)
		starters = append(starters, ws.Start)
	}

	if cfg.Drivers.Web.Enabled {
		reg.Register("web", func(req *domain.Request) domain.Driver {
			return driver.NewWeb(req)
		})
	}

	return reg, starters
}

// engine builds per-request bots over shared route, middleware and
// session state. The session store is constructed once: live pending
// state for non-serializing drivers lives inside it and must survive
// across per-request bots.
type engine struct {
	registry *command.Registry
	mw       *middleware.Stack
	sessions *session.Store
	drivers  *driver.Registry
	cfg      *config.Config
	logger   *slog.Logger
}

func newEngine(cfg *config.Config, store domain.Storage, drivers *driver.Registry, logger *slog.Logger) *engine {
	registry := command.NewRegistry()
	registerRoutes(registry)
	return &engine{
		registry: registry,
		mw:       middleware.NewStack(),
		sessions: session.NewStore(store, cfg.Conversation.CacheMinutes, logger),
		drivers:  drivers,
		cfg:      cfg,
		logger:   logger,
	}
}

func (e *engine) newBot() *bot.Bot {
	b := bot.New(bot.Config{
		Registry:   e.registry,
		Middleware: e.mw,
		Sessions:   e.sessions,
		Drivers:    e.drivers,
		Logger:     e.logger,
	})
	setupBot(b, e.logger)
	return b
}

func (e *engine) dispatch(req *domain.Request) *bot.Bot {
	metrics.RequestsTotal.Inc()
	started := time.Now()
	b := e.newBot()
	if err := b.Listen(req); err != nil {
		e.logger.Error("dispatch failed", "err", err)
	}
	metrics.DispatchLatency.Observe(time.Since(started).Seconds())
	return b
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server and socket drivers",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger = buildLogger(cfg)

	store, closeStore, err := buildStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	drivers, starters := buildDrivers(cfg, logger)
	eng := newEngine(cfg, store, drivers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	requestBus := bus.New(100, logger)
	defer requestBus.Close()

	// Socket drivers publish; one consumer dispatches sequentially.
	go func() {
		for req := range requestBus.Subscribe() {
			eng.dispatch(req)
		}
	}()
	for _, start := range starters {
		go func(run starter) {
			metrics.ActiveSessions.Inc()
			defer metrics.ActiveSessions.Dec()
			if err := run(ctx, requestBus.Publish); err != nil {
				logger.Error("socket driver stopped", "err", err)
			}
		}(start)
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.WebhookPath, eng.handleWebhook)
	if cfg.Server.MetricsEnabled {
		mux.HandleFunc(cfg.Server.MetricsEndpoint, metrics.Collector.Handler())
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("webhook server starting", "addr", server.Addr, "path", cfg.Server.WebhookPath)

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (e *engine) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "cannot read body", http.StatusBadRequest)
		return
	}
	req := &domain.Request{
		Body:    body,
		Headers: r.Header.Clone(),
		Query:   r.URL.Query(),
	}

	b := e.dispatch(req)

	switch d := b.Driver().(type) {
	case *driver.Slack:
		// Events API handshake expects the challenge echoed back.
		if d.Challenge() != "" {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte(d.Challenge()))
			return
		}
	case *driver.Web:
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"messages": d.Replies(),
		})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat in the terminal",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	logger = buildLogger(cfg)

	store, closeStore, err := buildStorage(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	cli := driver.NewCLI(driver.CLIConfig{Logger: logger})
	drivers := driver.NewRegistry(logger)
	drivers.Register("cli", cli.Driver)

	eng := newEngine(cfg, store, drivers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	requestBus := bus.New(100, logger)
	defer requestBus.Close()

	go func() {
		for req := range requestBus.Subscribe() {
			eng.dispatch(req)
		}
	}()

	return cli.Start(ctx, requestBus.Publish)
}
