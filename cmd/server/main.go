package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/anacreon-labs/factledger/internal/api"
	"github.com/anacreon-labs/factledger/internal/buildconfig"
	"github.com/anacreon-labs/factledger/internal/codeinsight"
	"github.com/anacreon-labs/factledger/internal/cognitive"
	"github.com/anacreon-labs/factledger/internal/config"
	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/investigation"
	"github.com/anacreon-labs/factledger/internal/service"
	"github.com/anacreon-labs/factledger/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	bootLogger, _ := zap.NewProduction()
	if err := config.Load(); err != nil {
		bootLogger.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := config.NewLogger()
	if err != nil {
		bootLogger.Fatal("failed to build logger", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ledger, closeLedger := openLedger(ctx, logger)
	defer closeLedger()

	perms := cognitive.DefaultPermissions()
	if path := config.PermissionsFile(); path != "" {
		perms, err = cognitive.LoadPermissions(path)
		if err != nil {
			logger.Fatal("failed to load permission table", zap.String("path", path), zap.Error(err))
		}
		logger.Info("permission table loaded", zap.String("path", path))
	}

	searchClient := investigation.NewClient(investigation.ClientConfig{
		Timeout: config.WebSearchTimeout(),
		RPS:     config.WebSearchRPS(),
		Lang:    config.WebSearchLang(),
	}, logger)
	defer searchClient.Close()

	facts := service.NewFactService(ledger, logger)
	conflicts := service.NewConflictService(ledger, facts, logger)
	validation := service.NewValidationService(ledger, facts, logger)
	engine := cognitive.NewEngine(
		cognitive.NewIntentDetector(),
		facts,
		validation,
		investigation.NewService(searchClient, logger),
		codeinsight.NewAnalyzer(),
		perms,
		logger,
	)

	app := api.NewApp(api.Services{
		Ledger:     ledger,
		Facts:      facts,
		Conflicts:  conflicts,
		Validation: validation,
		Engine:     engine,
	}, api.Options{
		RateLimitRPS:    config.RateLimitRPS(),
		RateLimitBurst:  config.RateLimitBurst(),
		DefaultReviewer: config.DefaultReviewer(),
	}, logger)
	go app.Run(ctx)

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", addr),
			zap.String("backend", config.LedgerBackend()),
			zap.String("version", buildconfig.Version()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openLedger picks the backend named by LEDGER_BACKEND. The memory backend
// forgets everything on exit and is meant for demos and local runs.
func openLedger(ctx context.Context, logger *zap.Logger) (domain.Ledger, func()) {
	if config.LedgerBackend() == config.BackendMemory {
		logger.Warn("using in-memory ledger; facts are lost on restart")
		return store.NewMemoryLedger(), func() {}
	}

	dbURL := config.DatabaseURL()
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required for the postgres backend")
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	if config.AutoMigrate() {
		applied, err := store.Migrate(ctx, pool, logger)
		if err != nil {
			pool.Close()
			logger.Fatal("migration failed", zap.Error(err))
		}
		logger.Info("migrations applied", zap.Strings("versions", applied))
	}

	return store.NewPostgresLedger(pool), pool.Close
}
