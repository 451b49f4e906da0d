// Package identity assembles the account identity service: credential store,
// password hasher, token issuer and HTTP surface.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jimiolaniyan/identity/auth"
	"github.com/jimiolaniyan/identity/config"
)

type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	server  *http.Server
	closers []func(context.Context) error
}

// NewApp connects to the configured store and event broker and builds the
// HTTP server. It fails when the signing secret is missing.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{cfg: cfg, logger: logger}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}

	accounts, err := app.openStore(ctx)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	events, err := app.openEvents()
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	svc := auth.NewService(
		accounts,
		auth.NewBcryptHasher(cfg.BcryptCost, cfg.HashWorkers),
		tokens,
		auth.WithEvents(events),
		auth.WithLogger(logger),
		auth.WithStoreTimeout(cfg.StoreTimeout),
	)

	app.server = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           NewRouter(svc, accounts, logger, cfg.RequestTimeout),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return app, nil
}

func (app *App) Handler() http.Handler {
	return app.server.Handler
}

func (app *App) openStore(ctx context.Context) (auth.Repository, error) {
	switch app.cfg.StoreDriver {
	case config.DriverMemory:
		app.logger.Warn("using in-memory account store; accounts are lost on restart")
		return auth.NewAccountRepository(), nil

	case config.DriverPostgres:
		db, err := auth.OpenPostgres(ctx, app.cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		app.closers = append(app.closers, func(context.Context) error { return db.Close() })

		repo := auth.NewPostgresAccountRepository(db)
		if err := repo.Migrate(ctx); err != nil {
			return nil, err
		}
		app.logger.Info("postgres account store ready")
		return repo, nil

	default:
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(app.cfg.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("mongo connect error: %w", err)
		}
		app.closers = append(app.closers, client.Disconnect)

		if err := client.Ping(ctx, nil); err != nil {
			return nil, fmt.Errorf("mongo ping error: %w", err)
		}

		repo := auth.NewMongoAccountRepository(client.Database(app.cfg.MongoDatabase).Collection(app.cfg.MongoCollection))
		if err := repo.EnsureIndexes(ctx); err != nil {
			return nil, err
		}
		app.logger.Info("mongo account store ready", "database", app.cfg.MongoDatabase, "collection", app.cfg.MongoCollection)
		return repo, nil
	}
}

func (app *App) openEvents() (auth.Events, error) {
	if app.cfg.AMQPURL == "" {
		return auth.NewLogEvents(app.logger), nil
	}

	events, err := auth.NewAMQPEvents(app.cfg.AMQPURL, app.cfg.AMQPExchange)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, func(context.Context) error { return events.Close() })
	app.logger.Info("publishing account events", "exchange", app.cfg.AMQPExchange)
	return events, nil
}

// Run serves HTTP until ctx is cancelled, then shuts the server down
// gracefully and releases the store and broker connections.
func (app *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server started", "addr", app.server.Addr)
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
		app.logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownTimeout)
	defer cancel()

	if err := app.server.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("graceful shutdown failed: %w", err))
	}
	return errors.Join(serveErr, app.Close(shutdownCtx))
}

// Close releases store and broker connections in reverse order of opening.
func (app *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}
