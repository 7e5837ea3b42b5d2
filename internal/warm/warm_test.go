package warm

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWarmer struct {
	warms   int32
	sweeps  int32
	err     error
	release chan struct{}
	started chan struct{}
}

func (f *fakeWarmer) Warm(ctx context.Context) (int, error) {
	atomic.AddInt32(&f.warms, 1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
	if f.err != nil {
		return 2, f.err
	}
	return 0, nil
}

func (f *fakeWarmer) Sweep() int {
	atomic.AddInt32(&f.sweeps, 1)
	return 0
}

func TestStartRejectsBadSpec(t *testing.T) {
	_, err := Start("every tuesday", &fakeWarmer{}, 0)
	assert.Error(t, err)
}

func TestStartOff(t *testing.T) {
	s, err := Start("off", &fakeWarmer{}, 0)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestScheduleAndRunOnce(t *testing.T) {
	w := &fakeWarmer{err: errors.New("pq: connection refused")}
	s, err := Start("", w, time.Second)
	require.NoError(t, err)
	defer s.Stop()
	assert.True(t, s.Next().After(time.Now()))

	assert.True(t, s.RunOnce(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&w.warms))
	assert.Equal(t, int32(1), atomic.LoadInt32(&w.sweeps))
}

func TestRunOnceSkipsWhileBusy(t *testing.T) {
	w := &fakeWarmer{release: make(chan struct{}), started: make(chan struct{}, 1)}
	s, err := Start("@every 1h", w, time.Second)
	require.NoError(t, err)
	defer s.Stop()

	done := make(chan bool, 1)
	go func() { done <- s.RunOnce(context.Background()) }()
	<-w.started

	assert.False(t, s.RunOnce(context.Background()))
	close(w.release)
	assert.True(t, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&w.warms))
}
