// Package server wires the forms server together: database, migrations,
// services, the REST API and the background assigner.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cradle5/cradlesync/internal/logging"
	"github.com/cradle5/cradlesync/internal/server/config"
	"github.com/cradle5/cradlesync/internal/server/repositories/repomanager"
	"github.com/cradle5/cradlesync/internal/server/rest"
	"github.com/cradle5/cradlesync/internal/server/services"
	"golang.org/x/sync/errgroup"
)

// tokenPurgeInterval is how often expired refresh tokens are removed.
const tokenPurgeInterval = time.Hour

var (
	openDB         = repomanager.Open
	newRepoManager = repomanager.NewPostgresRepositoryManager
)

type App struct {
	config        *config.Config
	logger        logging.Logger
	db            *sql.DB
	userService   *services.UserService
	formService   *services.FormService
	lookupService *services.LookupService
	server        *rest.Server
}

func NewApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*App, error) {
	db, err := openDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := newRepoManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	us := services.NewUserService(db, rm, cfg)
	fs := services.NewFormService(db, rm, cfg.AssignInterval <= 0)
	ls := services.NewLookupService(db, rm)

	return &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		userService:   us,
		formService:   fs,
		lookupService: ls,
		server:        rest.NewServer(cfg.EndpointAddrHTTP, logger, us, fs, ls, cfg.ShutdownTimeout),
	}, nil
}

// Run serves the API until ctx is cancelled or a component fails.
func (app *App) Run(ctx context.Context) error {
	app.logger.Info(ctx, "Starting app...")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.server.Run(ctx)
	})

	if app.config.AssignInterval > 0 {
		g.Go(func() error {
			app.formService.RunAssigner(ctx, app.logger.With("module", "assigner"), app.config.AssignInterval, app.config.AssignBatchSize)
			return nil
		})
	}

	g.Go(func() error {
		app.purgeTokens(ctx, tokenPurgeInterval)
		return nil
	})

	err := g.Wait()
	app.logger.Info(context.WithoutCancel(ctx), "App stopped")
	return err
}

func (app *App) purgeTokens(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := app.userService.PurgeExpiredTokens(ctx)
			if err != nil {
				if ctx.Err() == nil {
					app.logger.Error(ctx, "purging refresh tokens failed", "error", err)
				}
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired refresh tokens purged", "count", n)
			}
		}
	}
}

// AddUser registers an account from the command line.
func (app *App) AddUser(ctx context.Context, userName string, password []byte) error {
	u, err := app.userService.Register(ctx, userName, password)
	if err != nil {
		return err
	}
	app.logger.Info(ctx, "user registered", "username", u.UserName, "id", u.ID)
	return nil
}

// SetPassword resets an account password from the command line.
func (app *App) SetPassword(ctx context.Context, userName string, password []byte) error {
	if err := app.userService.SetPassword(ctx, userName, password); err != nil {
		return err
	}
	app.logger.Info(ctx, "password changed", "username", userName)
	return nil
}

func (app *App) Close() error {
	return app.db.Close()
}
