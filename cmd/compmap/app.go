package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sgcx/compmap/config"
	"github.com/sgcx/compmap/event"
	"github.com/sgcx/compmap/metrics"
	"github.com/sgcx/compmap/notify"
	"github.com/sgcx/compmap/storage"
	"github.com/sgcx/compmap/workflow"
)

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// NATS
	embeddedServer *server.Server
	natsConn       *nats.Conn

	// Storage
	store *storage.Store

	// Workflow
	registry *prometheus.Registry
	service  *workflow.Service
}

// NewApp creates a new application instance from configuration.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, logger: logger}
}

// Start initializes storage, the broker connection and the workflow service.
func (a *App) Start() error {
	store, err := openStore(a.cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	if err := a.startNATS(); err != nil {
		a.store.Close()
		return fmt.Errorf("start NATS: %w", err)
	}

	// Each App owns its registry so repeated starts in one process never
	// collide on collector registration.
	a.registry = prometheus.NewRegistry()
	a.service = workflow.NewService(a.store, a.store, a.store, workflow.ServiceOptions{
		Events:   event.NewNATSPublisher(a.natsConn, a.cfg.Events.SubjectPrefix),
		Notifier: notify.NewNATSDispatcher(a.natsConn, a.cfg.Notify.Subject),
		Metrics:  metrics.New(a.registry),
		Logger:   a.logger,
	})

	a.logger.Debug("Components initialized",
		slog.String("storage", a.cfg.Storage.Path),
		slog.Bool("embedded_nats", a.embeddedServer != nil))
	return nil
}

func (a *App) startNATS() error {
	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		// Connect to external NATS
		conn, err := nats.Connect(a.cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
		return nil
	}

	// Start embedded NATS server
	opts := &server.Options{
		Port:   -1, // Random available port
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("create embedded NATS server: %w", err)
	}

	go ns.Start()

	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return fmt.Errorf("embedded NATS server failed to start")
	}

	a.embeddedServer = ns

	conn, err := nats.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		return fmt.Errorf("connect to embedded NATS: %w", err)
	}
	a.natsConn = conn
	return nil
}

func openStore(path string) (*storage.Store, error) {
	if path == ":memory:" {
		return storage.OpenInMemory()
	}
	return storage.Open(path)
}

// Service returns the workflow service. Valid after Start.
func (a *App) Service() *workflow.Service { return a.service }

// Store returns the record store. Valid after Start.
func (a *App) Store() *storage.Store { return a.store }

// Shutdown gracefully stops all components.
func (a *App) Shutdown() {
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
		a.natsConn.Close()
	}

	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close storage", slog.String("error", err.Error()))
		}
	}
}

// loadConfig resolves configuration: an explicit --config file wins,
// otherwise the layered loader (user config, project config, defaults)
// applies.
func loadConfig(configPath string, logger *slog.Logger) (*config.Config, error) {
	if configPath != "" {
		cfg, err := config.LoadFromFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if cfg.Storage.Path == "" {
			return nil, fmt.Errorf("config %s: storage.path is required", configPath)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}
	return config.NewLoader(logger).Load()
}
