package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cradle5/cradlesync/internal/client/models"
	"github.com/cradle5/cradlesync/internal/client/services"
	"github.com/cradle5/cradlesync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncer struct {
	calls   atomic.Int32
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeSyncer) Sync(ctx context.Context, onProgress services.ProgressFunc) (*models.Report, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return models.NewReport(time.Now()), f.err
}

type fakePinger struct {
	mu  sync.Mutex
	err error
}

func (p *fakePinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *fakePinger) set(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func startRunner(t *testing.T, r *Runner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Error("runner did not stop")
		}
	})
}

func TestRunNow_SingleFlight(t *testing.T) {
	s := &fakeSyncer{block: make(chan struct{}), started: make(chan struct{}, 1)}
	r := New(s, &fakePinger{}, Options{}, logging.NewNop())

	errc := make(chan error, 1)
	go func() {
		_, err := r.RunNow(context.Background(), nil)
		errc <- err
	}()
	<-s.started

	_, err := r.RunNow(context.Background(), nil)
	require.ErrorIs(t, err, ErrBusy)

	close(s.block)
	require.NoError(t, <-errc)

	_, err = r.RunNow(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), s.calls.Load())
}

func TestRun_TriggersAreCoalesced(t *testing.T) {
	s := &fakeSyncer{}
	r := New(s, &fakePinger{}, Options{OnlineCheckInterval: time.Hour}, logging.NewNop())

	r.Trigger()
	r.Trigger()
	r.Trigger()
	startRunner(t, r)

	require.Eventually(t, func() bool { return s.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return s.calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.True(t, r.Online())
}

func TestRun_OfflineSkipsSync(t *testing.T) {
	s := &fakeSyncer{}
	r := New(s, &fakePinger{err: errors.New("down")}, Options{OnlineCheckInterval: time.Hour}, logging.NewNop())

	r.Trigger()
	startRunner(t, r)

	assert.Never(t, func() bool { return s.calls.Load() > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	assert.False(t, r.Online())
}

func TestRun_ReconnectTriggersSync(t *testing.T) {
	s := &fakeSyncer{}
	p := &fakePinger{err: errors.New("down")}

	var statuses []bool
	var mu sync.Mutex
	r := New(s, p, Options{
		OnlineCheckInterval: 5 * time.Millisecond,
		OnStatus: func(online bool) {
			mu.Lock()
			statuses = append(statuses, online)
			mu.Unlock()
		},
	}, logging.NewNop())
	startRunner(t, r)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(0), s.calls.Load())

	p.set(nil)
	require.Eventually(t, func() bool { return s.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true}, statuses)
}

func TestRun_PeriodicSync(t *testing.T) {
	s := &fakeSyncer{}
	r := New(s, &fakePinger{}, Options{Interval: 5 * time.Millisecond, OnlineCheckInterval: time.Hour}, logging.NewNop())
	startRunner(t, r)

	require.Eventually(t, func() bool { return s.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestRun_BacksOffAfterFailure(t *testing.T) {
	s := &fakeSyncer{err: errors.New("boom")}

	results := make(chan error, 4)
	r := New(s, &fakePinger{}, Options{
		Interval:             5 * time.Millisecond,
		OnlineCheckInterval:  time.Hour,
		RetryInitialInterval: time.Hour,
		OnResult:             func(_ *models.Report, err error) { results <- err },
	}, logging.NewNop())
	startRunner(t, r)

	select {
	case err := <-results:
		require.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("no sync result")
	}
	assert.Never(t, func() bool { return s.calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestRun_StartsOnlineTriggersSync(t *testing.T) {
	s := &fakeSyncer{}
	var statuses atomic.Int32
	r := New(s, &fakePinger{}, Options{
		Interval:            time.Hour,
		OnlineCheckInterval: 20 * time.Millisecond,
		OnStatus:            func(bool) { statuses.Add(1) },
	}, logging.NewNop())
	startRunner(t, r)

	require.Eventually(t, func() bool { return s.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Never(t, func() bool { return s.calls.Load() > 1 }, 100*time.Millisecond, 5*time.Millisecond)
	assert.True(t, r.Online())
	assert.Equal(t, int32(1), statuses.Load())
}

func TestRun_RetriesAfterBackoffWithoutInterval(t *testing.T) {
	s := &fakeSyncer{err: errors.New("boom")}
	r := New(s, &fakePinger{}, Options{
		OnlineCheckInterval:  time.Hour,
		RetryInitialInterval: 10 * time.Millisecond,
		RetryMaxInterval:     20 * time.Millisecond,
	}, logging.NewNop())
	startRunner(t, r)

	require.Eventually(t, func() bool { return s.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestRun_TriggerDuringBackoffIsDeferred(t *testing.T) {
	s := &fakeSyncer{err: errors.New("boom")}
	r := New(s, &fakePinger{}, Options{
		OnlineCheckInterval:  time.Hour,
		RetryInitialInterval: 60 * time.Millisecond,
		RetryMaxInterval:     60 * time.Millisecond,
	}, logging.NewNop())
	startRunner(t, r)

	require.Eventually(t, func() bool { return s.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	r.Trigger()
	assert.Never(t, func() bool { return s.calls.Load() > 1 }, 20*time.Millisecond, 2*time.Millisecond)
	require.Eventually(t, func() bool { return s.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}
