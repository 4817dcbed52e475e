package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/scootergw/gateway/internal/logger"
	"github.com/scootergw/gateway/internal/sysmon"
	"github.com/scootergw/gateway/pkg/api"
	"github.com/scootergw/gateway/pkg/audit"
	"github.com/scootergw/gateway/pkg/config"
	"github.com/scootergw/gateway/pkg/gateway"
	"github.com/scootergw/gateway/pkg/opauth"
	"github.com/scootergw/gateway/pkg/ophealth"
	"github.com/scootergw/gateway/pkg/orchestrator"
	"github.com/scootergw/gateway/pkg/session"
	"github.com/scootergw/gateway/pkg/telemetry"
)

const appName = "scooter-gateway"

var configPath = flag.String("config", "configs/config.yaml", "path to configuration file")

// Application wires every component together for the lifetime of one
// process: one device session registry, one TCP acceptor, one operator
// HTTP server, and whichever optional telemetry/audit sinks config
// enables.
type Application struct {
	cfg        *config.Config
	logger     zerolog.Logger
	registry   *session.Registry
	acceptor   *gateway.Acceptor
	hub        *telemetry.Hub
	auditStore *audit.Store
	sysmon     *sysmon.Monitor
	apiServer  *api.Server

	gatewayCancel context.CancelFunc
}

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Path:       cfg.Logging.Path,
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info().Str("app", appName).Msg("starting")

	app, err := newApplication(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize application")
	}

	if err := app.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start application")
	}

	app.waitForShutdown(log)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("error during shutdown")
		os.Exit(1)
	}
	log.Info().Msg("stopped gracefully")
}

func newApplication(cfg *config.Config, log zerolog.Logger) (*Application, error) {
	registry := session.NewRegistry(log)

	var hub *telemetry.Hub
	var sink session.TelemetrySink
	if cfg.Telemetry.Enabled {
		hub = telemetry.New(cfg.Telemetry.BufferPerConn, log)
		sink = hub
	}

	acceptor := gateway.New(registry, cfg.Vendor.Tag, sink, cfg.Gateway.ReadBufferBytes, log)

	var auditStore *audit.Store
	if cfg.Audit.Enabled {
		store, err := audit.Open(cfg.Audit.DSN, log)
		if err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		auditStore = store
	}

	mon := sysmon.Start(5 * time.Second)
	orch := orchestrator.New(registry, cfg.Vendor.Tag, cfg.Workflow.StepTimeout, log)
	authSvc := opauth.New(cfg.Operator.Username, cfg.Operator.PasswordHash, cfg.Operator.JWTSecret, cfg.Operator.TokenTTL)
	health := ophealth.New(registry, mon, time.Now())

	apiServer := api.New(api.Config{
		Orchestrator: orch,
		Auth:         authSvc,
		Health:       health,
		Hub:          hub,
		Audit:        auditStore,
		OperatorID:   cfg.Operator.UserID,
		ListenAddr:   cfg.API.ListenAddr,
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
		Logger:       log,
	})

	return &Application{
		cfg:        cfg,
		logger:     log,
		registry:   registry,
		acceptor:   acceptor,
		hub:        hub,
		auditStore: auditStore,
		sysmon:     mon,
		apiServer:  apiServer,
	}, nil
}

// Start brings up the device-facing TCP listener and the operator HTTP
// server, both in background goroutines; errors after startup are
// logged, not returned, matching a long-running service's shape.
func (a *Application) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	a.gatewayCancel = cancel

	go func() {
		if err := a.acceptor.Serve(ctx, a.cfg.Gateway.ListenAddr); err != nil {
			a.logger.Error().Err(err).Msg("device gateway stopped")
		}
	}()

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			a.logger.Error().Err(err).Msg("operator api stopped")
		}
	}()

	a.logger.Info().
		Str("device_addr", a.cfg.Gateway.ListenAddr).
		Str("api_addr", a.cfg.API.ListenAddr).
		Msg("application started")
	return nil
}

func (a *Application) waitForShutdown(log zerolog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
}

// Stop stops accepting new device connections, shuts down the operator
// HTTP server, stops the system monitor, and closes the audit store
// when one is configured. In-flight operator workflows
// are allowed to finish up to ctx's deadline.
func (a *Application) Stop(ctx context.Context) error {
	if a.gatewayCancel != nil {
		a.gatewayCancel()
	}

	if err := a.apiServer.Shutdown(ctx); err != nil {
		a.logger.Error().Err(err).Msg("operator api shutdown error")
	}

	a.sysmon.Stop()

	if a.auditStore != nil {
		if err := a.auditStore.Close(); err != nil {
			a.logger.Error().Err(err).Msg("audit store close error")
		}
	}

	return nil
}
