package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MatusOllah/slogcolor"
	"github.com/gorilla/handlers"
	"gopkg.in/yaml.v3"

	"meshdash/internal/backend"
	"meshdash/internal/dashboard"
	"meshdash/internal/journal"
	"meshdash/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

type Config struct {
	Backend struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"backend"`
	Web struct {
		Listen         string   `yaml:"listen"`
		Title          string   `yaml:"title"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	Notifications struct {
		TTL time.Duration `yaml:"ttl"`
	} `yaml:"notifications"`
	Journal struct {
		Path       string `yaml:"path"`
		MaxEntries int    `yaml:"max_entries"`
	} `yaml:"journal"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
		ClientID    string `yaml:"client_id"`

		ConnectTimeout time.Duration `yaml:"connect_timeout"`
	} `yaml:"mqtt"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

func (c *Config) validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.url must be an http(s) URL, got %q", c.Backend.URL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if c.Notifications.TTL < time.Second {
		return fmt.Errorf("notifications.ttl must be at least 1s, got %s", c.Notifications.TTL)
	}
	if c.Journal.MaxEntries < 0 {
		return fmt.Errorf("journal.max_entries must not be negative")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.MQTT.ConnectTimeout < 0 {
		return fmt.Errorf("mqtt.connect_timeout must not be negative")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "color":
	default:
		return fmt.Errorf("log.format must be text, json or color, got %q", c.Log.Format)
	}
	return nil
}

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("meshdash starting", "version", version, "backend", cfg.Backend.URL)

	client, err := backend.NewClient(cfg.Backend.URL,
		backend.WithTimeout(cfg.Backend.Timeout),
		backend.WithLogger(logger),
	)
	if err != nil {
		logger.Error("create backend client", "err", err)
		os.Exit(1)
	}

	events := dashboard.NewEventBus(logger)
	notes := dashboard.NewNotifier(cfg.Notifications.TTL, events)
	dash := dashboard.New(client, events, notes, logger)

	var webOpts []web.ServerOption
	if cfg.Journal.Path != "" {
		j, err := journal.Open(cfg.Journal.Path, cfg.Journal.MaxEntries)
		if err != nil {
			logger.Error("open journal", "err", err)
			os.Exit(1)
		}
		defer j.Close()
		unsub := journal.Attach(events, j, logger)
		defer unsub()
		webOpts = append(webOpts, web.WithJournal(j))
		logger.Info("journal enabled", "path", cfg.Journal.Path)
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, web.WithTitle(cfg.Web.Title), web.WithVersion(version))

	webServer, err := web.NewServer(dash, logger, webOpts...)
	if err != nil {
		logger.Error("create web server", "err", err)
		os.Exit(1)
	}

	// Start MQTT publisher (no-op when built with no_mqtt tag).
	mqtt := initMQTT(events, cfg, logger)

	// The page reloads the collection on open; this only warms it up.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := dash.Load(ctx); err != nil {
		logger.Warn("initial load failed, serving anyway", "err", err)
	}
	cancel()

	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(recoveryLogger{logger}),
		handlers.PrintRecoveryStack(cfg.Log.Level == "debug"),
	)
	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      recovery(handlers.ProxyHeaders(web.RequestLogger(logger)(webServer))),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	dash.Close()

	logger.Info("goodbye")
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Backend.URL == "" {
		cfg.Backend.URL = "http://localhost:8081/v1"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = backend.DefaultTimeout
	}
	if cfg.Web.Listen == "" {
		cfg.Web.Listen = "127.0.0.1:8080"
	}
	if cfg.Web.Title == "" {
		cfg.Web.Title = "Mesh devices"
	}
	if cfg.Notifications.TTL == 0 {
		cfg.Notifications.TTL = dashboard.DefaultNotificationTTL
	}
	if cfg.Journal.MaxEntries == 0 {
		cfg.Journal.MaxEntries = journal.DefaultMaxEntries
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	return &cfg, nil
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	case "color":
		opts := *slogcolor.DefaultOptions
		opts.Level = level
		handler = slogcolor.NewHandler(os.Stdout, &opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler)
}

// recoveryLogger adapts slog to the gorilla/handlers recovery logger.
type recoveryLogger struct {
	logger *slog.Logger
}

func (l recoveryLogger) Println(v ...interface{}) {
	l.logger.Error("panic in handler", "err", fmt.Sprint(v...))
}
