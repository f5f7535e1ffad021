// Package server initializes and runs the backup server: it wires the
// configuration, catalog repositories, blob store, services and the HTTP
// endpoint, applies schema migrations, and handles graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/server/config"
	"github.com/dmitrijs2005/filevault/internal/server/httpapi"
	"github.com/dmitrijs2005/filevault/internal/server/metrics"
	"github.com/dmitrijs2005/filevault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filevault/internal/server/services"
	"github.com/dmitrijs2005/filevault/internal/server/storage"
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	manager    repomanager.RepositoryManager
	httpServer *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {

	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	var m metrics.Client = metrics.Noop{}
	if cfg.StatsdAddr != "" {
		statsd, err := metrics.NewStatsdClient(cfg.StatsdAddr, cfg.StatsdPrefix)
		if err != nil {
			return nil, fmt.Errorf("statsd init error: %w", err)
		}
		m = statsd
	}

	enc, err := cryptox.NewEncryptor(cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("encryptor init error: %w", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	blobs, err := storage.NewS3Store(ctx, storage.S3Config{
		RootUser:     cfg.S3RootUser,
		RootPassword: cfg.S3RootPassword,
		Bucket:       cfg.S3Bucket,
		Region:       cfg.S3Region,
		BaseEndpoint: cfg.S3BaseEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()

	auth, err := services.NewAuthenticator(rm.Sessions(db), enc, logger, m)
	if err != nil {
		return nil, fmt.Errorf("authenticator init error: %w", err)
	}
	as := services.NewAccountService(rm.Accounts(db), rm.Sessions(db), enc, auth, logger, m)
	bs := services.NewBackupService(rm.Files(db), rm.Sessions(db), blobs, logger, m)

	httpServer := httpapi.NewServer(httpapi.Options{
		Address:         cfg.EndpointAddr,
		ShutdownTimeout: cfg.ShutdownTimeout,
		TLSCert:         cfg.TLSCert,
		TLSKey:          cfg.TLSKey,
	}, as, auth, bs, logger, m)

	return &App{
		config:     cfg,
		logger:     logger,
		db:         db,
		manager:    rm,
		httpServer: httpServer,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) Run(ctx context.Context) error {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	if err := app.manager.RunMigrations(ctx, app.db); err != nil {
		return fmt.Errorf("migrations error: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := app.httpServer.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	return app.db.Close()
}
