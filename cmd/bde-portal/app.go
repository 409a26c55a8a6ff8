package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/bde-portal/internal/apiclient"
	"github.com/noah-isme/bde-portal/internal/metrics"
	"github.com/noah-isme/bde-portal/internal/service"
	"github.com/noah-isme/bde-portal/internal/validation"
	appErrors "github.com/noah-isme/bde-portal/pkg/errors"
	"github.com/noah-isme/bde-portal/pkg/cache"
	"github.com/noah-isme/bde-portal/pkg/config"
	"github.com/noah-isme/bde-portal/pkg/database"
	"github.com/noah-isme/bde-portal/pkg/storage"
)

// app is the wired object graph shared by every command.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	out       io.Writer
	errOut    io.Writer
	metrics   *metrics.Recorder
	store     storage.Store
	client    *apiclient.Client
	session   *service.SessionService
	validator *validation.Validator
	closer    func() error
}

func newApp(ctx context.Context, cfg *config.Config, logr *zap.Logger, out, errOut io.Writer) (*app, error) {
	if logr == nil {
		logr = zap.NewNop()
	}
	store, closer, err := openStore(ctx, cfg)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}

	rec := metrics.New()
	client, err := apiclient.New(apiclient.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		RateLimit: cfg.API.RateLimit,
		RateBurst: cfg.API.RateBurst,
	}, apiclient.WithMetrics(rec), apiclient.WithLogger(logr.Named("api")))
	if err != nil {
		_ = closer()
		return nil, err
	}

	validate := validation.New()
	session := service.NewSessionService(client.Auth(), store, validate, rec, logr.Named("session"))
	client.SetTokenSource(session)

	// An unreadable stored session leaves the user signed out; commands that do not need one still run.
	if err := session.Restore(ctx); err != nil {
		if !errors.Is(err, appErrors.ErrStorage) {
			_ = closer()
			return nil, err
		}
		logr.Warn("failed to restore session; continuing signed out", zap.Error(err))
	}

	return &app{
		cfg:       cfg,
		logger:    logr,
		out:       out,
		errOut:    errOut,
		metrics:   rec,
		store:     store,
		client:    client,
		session:   session,
		validator: validate,
		closer:    closer,
	}, nil
}

func (a *app) Close() {
	a.session.Dispose()
	if err := a.closer(); err != nil {
		a.logger.Warn("failed to close storage", zap.Error(err))
	}
}

// requireSignedIn fails commands that need a session.
func (a *app) requireSignedIn() error {
	if !a.session.IsAuthenticated() {
		return appErrors.Clone(appErrors.ErrUnauthorized, "not signed in; run `bde-portal login` first")
	}
	return nil
}

// openStore picks the session storage backend named by STORAGE_DRIVER.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Storage.Driver {
	case config.StorageMemory:
		return storage.NewMemoryStore(nil), noop, nil
	case config.StorageFile, "":
		store, err := storage.NewFileStore(cfg.Storage.FilePath)
		if err != nil {
			return nil, nil, err
		}
		return store, noop, nil
	case config.StorageRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		store := storage.NewRedisStore(client, cfg.Storage.RedisPrefix)
		return store, store.Close, nil
	case config.StorageSQLite, config.StoragePostgres:
		var (
			db  *sqlx.DB
			err error
		)
		if cfg.Storage.Driver == config.StorageSQLite {
			db, err = database.NewSQLite(ctx, cfg.Storage.SQLitePath)
		} else {
			db, err = database.NewPostgres(ctx, cfg.Database)
		}
		if err != nil {
			return nil, nil, err
		}
		store, err := storage.NewSQLStore(db, cfg.Storage.Table)
		if err == nil {
			err = store.EnsureSchema(ctx)
		}
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
