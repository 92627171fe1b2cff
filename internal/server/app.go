// Package server wires the envault server together: database, migrations,
// core services, the HTTP endpoint and the invitation sweeper, with
// graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/envault/envault/internal/logging"
	"github.com/envault/envault/internal/server/config"
	"github.com/envault/envault/internal/server/events"
	"github.com/envault/envault/internal/server/httpapi"
	"github.com/envault/envault/internal/server/repositories/repomanager"
	"github.com/envault/envault/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	invitations *services.InvitationService
	httpServer  *http.Server
}

func NewApp(cfg *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	keys := services.NewKeyVaultService(db, rm)
	distributor := services.NewKeyDistributorService(db, rm)
	invitations := services.NewInvitationService(db, rm, cfg.InvitationTTL, logger)

	var archiver services.Archiver
	if cfg.S3Bucket != "" {
		archiver = services.NewS3Archiver(cfg)
	}
	versions := services.NewVersionService(db, rm, cfg.RetentionLimit, archiver, logger)

	var exporter httpapi.Exporter
	if cfg.RecipientKeyURL != "" && cfg.RecipientPushURL != "" {
		recipient := services.NewHTTPRecipient(cfg.RecipientKeyURL, cfg.RecipientPushURL)
		cache := services.NewKeyCache(cfg.RecipientKeyCacheTTL)
		exporter = services.NewExporterService(recipient, cache, logger)
	}

	dispatcher := events.NewLogDispatcher(logger)

	api := httpapi.NewServer(keys, distributor, invitations, versions, exporter, dispatcher, []byte(cfg.SecretKey), logger)

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		invitations: invitations,
		httpServer:  &http.Server{Addr: cfg.EndpointAddr, Handler: api.Router()},
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddr)

	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "starting app")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.invitations.RunSweeper(ctx, app.config.SweepInterval)
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		app.logger.Error(ctx, "http shutdown error", "error", err)
	}

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}

	app.logger.Info(ctx, "app stopped")
}
