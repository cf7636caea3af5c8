// Package worker runs syncs in the background: periodically, on demand and
// when the server comes back online. At most one sync runs at a time.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/client/services"
	"github.com/cradle5/cradlesync/internal/logging"
)

// ErrBusy is returned by RunNow while another sync is in progress.
var ErrBusy = errors.New("sync already in progress")

type Syncer interface {
	Sync(ctx context.Context, onProgress services.ProgressFunc) (*models.Report, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Runner. Zero durations take the defaults below.
type Options struct {
	// Interval between background syncs. Zero disables periodic syncs;
	// startup, Trigger, reconnects and retries after a failure still start one.
	Interval            time.Duration
	OnlineCheckInterval time.Duration
	PingTimeout         time.Duration
	// Backoff after a failed background sync.
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	// OnResult is called after every background sync. May be nil.
	OnResult func(*models.Report, error)
	// OnStatus is called when the online state changes. May be nil.
	OnStatus func(online bool)
}

func (o *Options) withDefaults() {
	if o.OnlineCheckInterval <= 0 {
		o.OnlineCheckInterval = 3 * time.Second
	}
	if o.PingTimeout <= 0 {
		o.PingTimeout = 3 * time.Second
	}
	if o.RetryInitialInterval <= 0 {
		o.RetryInitialInterval = 10 * time.Second
	}
	if o.RetryMaxInterval <= 0 {
		o.RetryMaxInterval = 10 * time.Minute
	}
}

type Runner struct {
	syncer Syncer
	pinger Pinger
	opts   Options
	logger logging.Logger

	trigger chan struct{}
	running sync.Mutex
	online  atomic.Bool

	backoff   backoff.BackOff
	notBefore time.Time
	now       func() time.Time
}

func New(syncer Syncer, pinger Pinger, opts Options, logger logging.Logger) *Runner {
	opts.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.RetryInitialInterval
	bo.MaxInterval = opts.RetryMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	return &Runner{
		syncer:  syncer,
		pinger:  pinger,
		opts:    opts,
		logger:  logger,
		trigger: make(chan struct{}, 1),
		backoff: bo,
		now:     time.Now,
	}
}

// Online reports the result of the last reachability check.
func (r *Runner) Online() bool {
	return r.online.Load()
}

// Trigger asks the background loop to sync soon. Triggers that arrive while
// one is already queued are coalesced.
func (r *Runner) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// RunNow syncs in the caller's goroutine. It returns ErrBusy if a sync is
// already running.
func (r *Runner) RunNow(ctx context.Context, onProgress services.ProgressFunc) (*models.Report, error) {
	if !r.running.TryLock() {
		return nil, ErrBusy
	}
	defer r.running.Unlock()
	return r.syncer.Sync(ctx, onProgress)
}

// Run drives the background loop until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	check := time.NewTicker(r.opts.OnlineCheckInterval)
	defer check.Stop()

	var periodic <-chan time.Time
	if r.opts.Interval > 0 {
		t := time.NewTicker(r.opts.Interval)
		defer t.Stop()
		periodic = t.C
	}

	// A server that is already reachable counts as coming online.
	if r.checkOnline(ctx) {
		r.Trigger()
	}

	var retry <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-check.C:
			if r.checkOnline(ctx) {
				r.Trigger()
			}

		case <-periodic:
			r.Trigger()

		case <-retry:
			retry = nil
			r.Trigger()

		case <-r.trigger:
			if wait := r.background(ctx); wait > 0 && retry == nil {
				retry = time.After(wait)
			}
		}
	}
}

// checkOnline pings the server and reports whether it just came back.
func (r *Runner) checkOnline(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, r.opts.PingTimeout)
	err := r.pinger.Ping(pctx)
	cancel()

	online := err == nil
	was := r.online.Swap(online)
	if was == online {
		return false
	}

	if online {
		r.logger.Info(ctx, "server reachable")
	} else {
		r.logger.Info(ctx, "server unreachable", "error", err)
	}
	if r.opts.OnStatus != nil {
		r.opts.OnStatus(online)
	}
	return online
}

// background runs one sync unless offline or backing off. It returns how
// long to wait before the deferred retry, or zero.
func (r *Runner) background(ctx context.Context) time.Duration {
	if !r.Online() {
		r.logger.Debug(ctx, "offline, sync skipped")
		return 0
	}
	if now := r.now(); now.Before(r.notBefore) {
		r.logger.Debug(ctx, "backing off, sync deferred", "until", r.notBefore)
		return r.notBefore.Sub(now)
	}

	rep, err := r.RunNow(ctx, nil)
	if errors.Is(err, ErrBusy) {
		return 0
	}
	if ctx.Err() != nil {
		return 0
	}

	var wait time.Duration

	if err != nil {
		wait = r.backoff.NextBackOff()
		r.notBefore = r.now().Add(wait)
		r.logger.Warn(ctx, "background sync failed", "error", err, "retry_in", wait)
	} else {
		r.backoff.Reset()
		r.notBefore = time.Time{}
	}

	if r.opts.OnResult != nil {
		r.opts.OnResult(rep, err)
	}
	return wait
}
