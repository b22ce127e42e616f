package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoolRunsEveryAcceptedJob(t *testing.T) {
	p := New(4, 16, testLogger())
	p.Start(context.Background())

	var ran atomic.Int32
	for i := range 50 {
		err := p.Submit(context.Background(), Job{Name: "count", Key: string(rune('a' + i%26)), Run: func(context.Context) error {
			ran.Add(1)
			return nil
		}})
		require.NoError(t, err)
	}

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, int32(50), ran.Load())
}

func TestPoolJobsSurviveSubmitterCancellation(t *testing.T) {
	p := New(1, 1, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	var sawCancel atomic.Bool
	release := make(chan struct{})
	require.NoError(t, p.Submit(ctx, Job{Name: "detached", Run: func(jobCtx context.Context) error {
		<-release
		sawCancel.Store(jobCtx.Err() != nil)
		return nil
	}}))
	cancel()
	close(release)

	require.NoError(t, p.Stop(context.Background()))
	assert.False(t, sawCancel.Load())
}

func TestPoolRecoversFromFailures(t *testing.T) {
	p := New(1, 4, testLogger())
	p.Start(context.Background())

	var after atomic.Bool
	require.NoError(t, p.Submit(context.Background(), Job{Name: "panics", Run: func(context.Context) error { panic("boom") }}))
	require.NoError(t, p.Submit(context.Background(), Job{Name: "errors", Run: func(context.Context) error { return errors.New("x") }}))
	require.NoError(t, p.Submit(context.Background(), Job{Name: "after", Run: func(context.Context) error {
		after.Store(true)
		return nil
	}}))

	require.NoError(t, p.Stop(context.Background()))
	assert.True(t, after.Load())
}

func TestSubmitBlocksUntilContextDone(t *testing.T) {
	p := New(1, 0, testLogger())
	// not started: nothing drains the unbuffered queue
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := p.Submit(ctx, Job{Name: "stuck", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubmitAfterStop(t *testing.T) {
	p := New(2, 2, testLogger())
	p.Start(context.Background())
	require.NoError(t, p.Stop(context.Background()))

	err := p.Submit(context.Background(), Job{Name: "late", Run: func(context.Context) error { return nil }})
	assert.ErrorIs(t, err, ErrStopped)
}

type depthSpy struct {
	mu  sync.Mutex
	max int
}

func (d *depthSpy) SetQueueDepth(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.max = max(d.max, n)
}

func TestDepthRecorded(t *testing.T) {
	spy := &depthSpy{}
	p := New(1, 8, testLogger(), WithDepthRecorder(spy))
	for range 3 {
		require.NoError(t, p.Submit(context.Background(), Job{Name: "q", Run: func(context.Context) error { return nil }}))
	}
	p.Start(context.Background())
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, 3, spy.max)
}
