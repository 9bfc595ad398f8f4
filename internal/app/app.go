package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reachforge/outreachd/internal/api"
	"github.com/reachforge/outreachd/internal/candidate"
	"github.com/reachforge/outreachd/internal/classify"
	"github.com/reachforge/outreachd/internal/config"
	"github.com/reachforge/outreachd/internal/ingest"
	"github.com/reachforge/outreachd/internal/linkedinq"
	"github.com/reachforge/outreachd/internal/mailer"
	"github.com/reachforge/outreachd/internal/metrics"
	"github.com/reachforge/outreachd/internal/retention"
	"github.com/reachforge/outreachd/internal/role"
	"github.com/reachforge/outreachd/internal/sequence"
	"github.com/reachforge/outreachd/internal/template"
)

// App is the main application
type App struct {
	config     *config.Config
	store      *candidate.BoltStore
	scheduler  *sequence.Scheduler
	sweeper    *retention.Sweeper
	apiServer  *api.Server
	metricsSrv *metrics.Server
	logger     *slog.Logger
}

// New creates a new application
func New(cfg *config.Config) (*App, error) {
	logger := setupLogger(cfg.Logging)

	store, err := candidate.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	roles, err := role.NewStorage(store.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to create role storage: %w", err)
	}
	templates, err := template.NewStorage(store.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to create template storage: %w", err)
	}
	queues, err := linkedinq.NewStorage(store.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to create queue storage: %w", err)
	}

	m, err := buildMailer(cfg.Mailer, logger)
	if err != nil {
		return nil, err
	}

	classifier := classify.NewKeywordClassifier()

	scheduler := sequence.NewScheduler(store, roles, templates, m, classifier, sequence.Config{
		TouchOffsets:    cfg.Sequence.TouchOffsets,
		SweepInterval:   cfg.Sequence.SweepInterval,
		Workers:         cfg.Sequence.Workers,
		SendTimeout:     cfg.Sequence.SendTimeout,
		ExhaustedAction: sequence.ExhaustedAction(cfg.Sequence.ExhaustedAction),
		NoResponseAfter: cfg.Sequence.NoResponseAfter,
	}, logger.With("component", "scheduler"))

	sweeper := retention.NewSweeper(store, retention.Config{
		RetentionPeriod: cfg.GDPR.RetentionPeriod,
		SweepInterval:   cfg.GDPR.SweepInterval,
	}, logger.With("component", "retention"))

	assigner := linkedinq.NewAssigner(store, queues, logger.With("component", "assigner"))
	ingestor := ingest.NewIngestor(store, logger.With("component", "ingestor"))

	deps := api.Deps{
		Candidates: store,
		Roles:      roles,
		Templates:  templates,
		Ingestor:   ingestor,
		Scheduler:  scheduler,
		Assigner:   assigner,
		Queues:     queues,
	}

	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		mreg := metrics.New()
		scheduler.SetMetrics(mreg)
		sweeper.SetMetrics(mreg)
		assigner.SetMetrics(mreg)
		deps.Metrics = mreg
		metricsSrv = metrics.NewServer(mreg, cfg.Metrics.ListenAddr, cfg.Metrics.Path, logger.With("component", "metrics"))
	}

	apiServer := api.NewServer(deps, &cfg.API, logger.With("component", "api"))

	return &App{
		config:     cfg,
		store:      store,
		scheduler:  scheduler,
		sweeper:    sweeper,
		apiServer:  apiServer,
		metricsSrv: metricsSrv,
		logger:     logger,
	}, nil
}

func buildMailer(cfg config.MailerConfig, logger *slog.Logger) (mailer.Mailer, error) {
	switch cfg.Mode {
	case "smtp":
		var signer *mailer.Signer
		if cfg.DKIM.Enabled {
			var err error
			signer, err = mailer.NewSignerFromFile(cfg.DKIM.KeyFile, cfg.DKIM.Domain, cfg.DKIM.Selector)
			if err != nil {
				return nil, fmt.Errorf("failed to setup DKIM signing: %w", err)
			}
			logger.Info("DKIM signing enabled", "domain", cfg.DKIM.Domain, "selector", cfg.DKIM.Selector)
		}
		return mailer.NewSMTPMailer(mailer.SMTPConfig{
			Addr:     cfg.Addr,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			FromName: cfg.FromName,
			UseTLS:   cfg.UseTLS,
			Timeout:  cfg.Timeout,
		}, signer, logger.With("component", "mailer")), nil
	default:
		logger.Info("mailer in dry-run mode, no email will be delivered")
		return mailer.NewLogMailer(logger.With("component", "mailer")), nil
	}
}

// Run starts all components and blocks until shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting outreachd",
		"api_addr", a.config.API.ListenAddr,
		"storage", a.config.Storage.Path,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.scheduler.Start(ctx)
	a.sweeper.Start(ctx)

	if a.metricsSrv != nil {
		a.metricsSrv.Start()
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("server error", "error", err)
		cancel()
	}

	return a.Shutdown(context.Background())
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.scheduler.Stop()
	a.sweeper.Stop()

	if err := a.store.Close(); err != nil {
		a.logger.Error("storage close error", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}

// setupLogger creates a logger based on configuration
func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
