package janitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/companion/internal/eventlog"
)

type fakePruner struct {
	calls atomic.Int32
	days  atomic.Int32
	err   error
}

func (f *fakePruner) Cleanup(days int) (eventlog.CleanupResult, error) {
	f.calls.Add(1)
	f.days.Store(int32(days))
	return eventlog.CleanupResult{RawRemoved: 2}, f.err
}

type fakeSweeper struct {
	calls atomic.Int32
}

func (f *fakeSweeper) SweepExpiredMono() (int, error) {
	f.calls.Add(1)
	return 1, nil
}

func TestRunOnceRunsBothSweeps(t *testing.T) {
	p, s := &fakePruner{}, &fakeSweeper{}
	res, err := New(p, s, 5, nil).RunOnce()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Events.RawRemoved)
	assert.Equal(t, 1, res.MonoRemoved)
	assert.EqualValues(t, 5, p.days.Load())
}

func TestRunOnceContinuesAfterEventFailure(t *testing.T) {
	boom := errors.New("disk full")
	p, s := &fakePruner{err: boom}, &fakeSweeper{}
	_, err := New(p, s, 7, nil).RunOnce()
	assert.ErrorIs(t, err, boom)
	assert.EqualValues(t, 1, s.calls.Load())
}

func TestStartStopsWithContext(t *testing.T) {
	p, s := &fakePruner{}, &fakeSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	New(p, s, 7, nil).Start(ctx, 5*time.Millisecond)

	require.Eventually(t, func() bool { return p.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	time.Sleep(20 * time.Millisecond)
	settled := p.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, settled, p.calls.Load())
}
