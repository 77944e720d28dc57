package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/psaforge/copilot/internal/api"
	"github.com/psaforge/copilot/internal/assistant"
	"github.com/psaforge/copilot/internal/audit"
	auditpostgres "github.com/psaforge/copilot/internal/audit/postgres"
	"github.com/psaforge/copilot/internal/auth"
	"github.com/psaforge/copilot/internal/config"
	"github.com/psaforge/copilot/internal/gateway"
	"github.com/psaforge/copilot/internal/observability"
	"github.com/psaforge/copilot/internal/query"
	duckdbexec "github.com/psaforge/copilot/internal/query/duckdb"
	pgexec "github.com/psaforge/copilot/internal/query/postgres"
)

func main() {
	cfg, err := config.LoadFromEnv("copilot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	var extraLogs []io.Writer
	if cfg.Observability.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Observability.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			slog.Error("failed to open log file", slog.String("path", cfg.Observability.LogFile), slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = logFile.Close() }()
		extraLogs = append(extraLogs, logFile)
	}
	logger := observability.NewLogger(cfg, os.Stdout, extraLogs...)

	var (
		executor    query.Executor
		ping        func(context.Context) error
		recorder    audit.Recorder = audit.Nop{}
		auditReader audit.Reader
	)
	switch cfg.Database.Executor {
	case config.ExecutorDuckDB:
		duck, err := duckdbexec.Open(context.Background(), cfg.Database.DuckDBPath)
		if err != nil {
			logger.Error("failed to open duckdb database", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = duck.Close() }()
		executor = duck
		ping = duck.Ping
	default:
		db, err := pgexec.Open(context.Background(), pgexec.DBConfig{
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open database", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		executor = pgexec.NewExecutor(db, pgexec.ExecutorConfig{
			RPCFunction:      cfg.Database.RPCFunction,
			ReadOnlyRole:     cfg.Database.ReadOnlyRole,
			StatementTimeout: cfg.Database.StatementTimeout,
			TenantSetting:    cfg.Database.TenantSetting,
		})
		ping = db.PingContext
		if cfg.Database.AuditEnabled {
			repo := auditpostgres.NewRepository(db)
			recorder = repo
			auditReader = repo
		}
	}

	credentials := assistant.Credentials{
		APIKey:      cfg.Assistant.APIKey,
		AssistantID: cfg.Assistant.AssistantID,
	}
	if err := credentials.Validate(); err != nil {
		logger.Warn("assistant not configured; copilot queries will fail until it is", slog.Any("error", err))
	}
	client := assistant.NewClient(assistant.ClientConfig{
		APIKey:         cfg.Assistant.APIKey,
		BaseURL:        cfg.Assistant.BaseURL,
		Organization:   cfg.Assistant.Organization,
		RequestTimeout: cfg.Assistant.RequestTimeout,
	})
	driver := assistant.NewDriver(client, assistant.Config{
		AssistantID:  cfg.Assistant.AssistantID,
		PollInterval: cfg.Assistant.PollInterval,
		RunTimeout:   cfg.Assistant.RunTimeout,
	}, logger)

	service, err := gateway.New(gateway.Deps{
		Assistant: driver,
		Executor:  executor,
		Audit:     recorder,
		Logger:    logger,
	}, gateway.Options{
		Credentials:    credentials,
		MaxPromptChars: cfg.Gateway.MaxPromptChars,
		RequestTimeout: cfg.Gateway.RequestTimeout,
		AuditTimeout:   cfg.Gateway.AuditTimeout,
	})
	if err != nil {
		logger.Error("failed to initialize gateway", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:      logger,
		Copilot:     service,
		AuditReader: auditReader,
		Readiness: api.CombineReadinessChecks(
			api.CheckAssistantConfig(credentials),
			api.CheckPing("database", ping),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		if validator.Len() == 0 {
			logger.Warn("auth required but no static keys configured; every copilot request will be rejected")
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	} else {
		logger.Warn("auth disabled; copilot requests run as the default tenant",
			slog.String("tenant_id", cfg.Auth.DefaultTenant))
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting copilot api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("executor", cfg.Database.Executor),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
