package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cradle5/cradlesync/internal/client/backup"
	"github.com/cradle5/cradlesync/internal/client/client"
	"github.com/cradle5/cradlesync/internal/client/config"
	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/client/repositories/lookups"
	"github.com/cradle5/cradlesync/internal/client/services"
	"github.com/cradle5/cradlesync/internal/client/worker"
	"github.com/cradle5/cradlesync/internal/common"
	"github.com/cradle5/cradlesync/internal/cryptox"
	"github.com/cradle5/cradlesync/internal/forms"
	"github.com/cradle5/cradlesync/internal/logging"

	_ "modernc.org/sqlite"
)

type Mode string

const (
	ModeOffline  Mode = "offline"
	ModeOnline   Mode = "online"
	ModeDisabled Mode = "disabled"
)

// recordService is the part of services.RecordService the CLI uses.
type recordService interface {
	Create(ctx context.Context, f models.Form, parentLocalID *int64) (int64, error)
	Update(ctx context.Context, localID int64, f models.Form) error
	Get(ctx context.Context, localID int64) (*services.RecordView, error)
	List(ctx context.Context, kind forms.Kind) ([]services.RecordView, error)
	Delete(ctx context.Context, localID int64) error
	History(ctx context.Context, localID int64) ([]models.UploadAttempt, error)
}

type syncRunner interface {
	RunNow(ctx context.Context, onProgress services.ProgressFunc) (*models.Report, error)
	Online() bool
}

type exporter interface {
	Export(ctx context.Context) (string, error)
}

type App struct {
	config      *config.Config
	db          *sql.DB
	api         client.Client
	logger      logging.Logger
	authService services.AuthService
	lookups     lookups.Repository
	backup      exporter

	// Set while a user is logged in.
	masterKey  []byte
	userName   string
	records    recordService
	runner     syncRunner
	stopWorker context.CancelFunc
	workerDone chan struct{}

	// openSession builds the per-user services; replaced in tests.
	openSession func(ctx context.Context, key []byte) error

	mu   sync.Mutex
	mode Mode

	reader *bufio.Reader
	out    io.Writer
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	db, err := client.InitDatabase(ctx, c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	api, err := client.NewRESTClient(c.ServerURL, client.Options{
		Timeout: c.RequestTimeout,
		Retry: client.RetryPolicy{
			InitialInterval: c.RetryInitialInterval,
			MaxInterval:     c.RetryMaxInterval,
			MaxElapsedTime:  c.RetryMaxElapsedTime,
			MaxRetries:      c.RetryMaxRetries,
		},
		Logger: logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &App{
		config:      c,
		db:          db,
		api:         api,
		logger:      logger,
		authService: services.NewAuthService(api, db),
		lookups:     lookups.NewSQLiteRepository(db),
		reader:      bufio.NewReader(os.Stdin),
		out:         os.Stdout,
	}
	a.openSession = a.startSession

	if c.S3Endpoint != "" || c.S3AccessKey != "" {
		s3c, err := backup.NewS3Client(ctx, backup.S3Config{
			Endpoint:  c.S3Endpoint,
			Region:    c.S3Region,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
		})
		if err != nil {
			logger.Warn(ctx, "backups disabled", "error", err)
		} else {
			a.backup = backup.NewExporter(db, s3c, c.S3Bucket, logger)
		}
	}

	return a, nil
}

func (a *App) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

func (a *App) setMode(mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()

	if changed && mode != "" {
		fmt.Fprintf(a.out, "Switched to %s mode\n", mode)
	}
}

func (a *App) isLoggedIn() bool {
	return a.masterKey != nil
}

// Run starts the REPL and blocks until the user exits or input ends.
func (a *App) Run(ctx context.Context) {
	defer a.shutdown(ctx)

	fmt.Fprintln(a.out, "CRADLE5 data collection (type 'help' for commands)")
	if err := a.Login(ctx); err != nil {
		printlnFn("Error:", services.UserMessage(err))
	}
	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) shutdown(ctx context.Context) {
	a.endSession()
	if err := a.authService.Close(ctx); err != nil {
		a.logger.Warn(ctx, "close api client", "error", err)
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	}
	s += string(a.Mode())
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// startSession builds the record and sync services for the logged-in user
// and starts the background worker.
func (a *App) startSession(ctx context.Context, key []byte) error {
	sealer, err := cryptox.NewSealer(key)
	if err != nil {
		return err
	}

	syncSvc := services.NewSyncService(a.api, a.db, sealer, a.config.Lookups, a.logger)
	r := worker.New(syncSvc, a.authService, worker.Options{
		Interval:            a.config.SyncInterval,
		OnlineCheckInterval: a.config.OnlineCheckInterval,
		OnResult:            a.backgroundResult,
		OnStatus:            a.onlineStatus,
	}, a.logger)

	a.startWorker(ctx, r.Run)
	a.records = services.NewRecordService(a.db, sealer, a.logger)
	a.runner = r
	return nil
}

// startWorker runs the background loop until endSession stops it.
func (a *App) startWorker(ctx context.Context, run func(context.Context) error) {
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = run(wctx)
	}()
	a.stopWorker = cancel
	a.workerDone = done
}

// endSession stops the worker and waits for an in-flight sync to save its
// state before the session's services go away.
func (a *App) endSession() {
	if a.stopWorker != nil {
		a.stopWorker()
		a.stopWorker = nil
	}
	if a.workerDone != nil {
		<-a.workerDone
		a.workerDone = nil
	}
	if a.masterKey != nil {
		common.WipeByteArray(a.masterKey)
	}
	a.masterKey = nil
	a.userName = ""
	a.records = nil
	a.runner = nil
}

func (a *App) onlineStatus(online bool) {
	if online {
		a.setMode(ModeOnline)
	} else {
		a.setMode(ModeOffline)
	}
}

func (a *App) backgroundResult(rep *models.Report, err error) {
	if err != nil {
		printlnFn("Background sync:", services.UserMessage(err))
		return
	}
	if t := rep.Totals(); t.Attempted > 0 {
		printlnFn(fmt.Sprintf("Background sync: %d uploaded, %d partial, %d failed", t.Uploaded, t.Partial, t.Failed))
	}
}
