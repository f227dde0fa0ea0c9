package daemon

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anupammaurya6767/shadowfinder/internal/store"
)

type fakeSnapshotter struct {
	mu        sync.Mutex
	lastWrite time.Time
	lastSnap  time.Time
	saves     int
}

func (f *fakeSnapshotter) Snapshot(context.Context) (*store.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.lastSnap = time.Now()
	return &store.Snapshot{}, nil
}

func (f *fakeSnapshotter) LastWrite() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastWrite
}

func (f *fakeSnapshotter) LastSnapshot() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastSnap
}

func (f *fakeSnapshotter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

func TestRunSnapshots_OnlyAfterWrites(t *testing.T) {
	target := &fakeSnapshotter{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		runSnapshots(ctx, target, 10*time.Millisecond)
		close(done)
	}()

	// No writes yet: nothing to save.
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, target.count())

	target.mu.Lock()
	target.lastWrite = time.Now()
	target.mu.Unlock()
	require.Eventually(t, func() bool { return target.count() == 1 }, time.Second, 5*time.Millisecond)

	// Saved and no new writes: stays at one.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, target.count())

	cancel()
	<-done
}

func TestRunSnapshots_DisabledReturnsImmediately(t *testing.T) {
	runSnapshots(context.Background(), &fakeSnapshotter{}, 0)
}
