package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyGateway fails the first n snapshot saves with err.
type flakyGateway struct {
	*MemoryStore
	mu       sync.Mutex
	failures int
	err      error
	calls    atomic.Int32
}

func (f *flakyGateway) SaveSnapshot(ctx context.Context, player string, snap Snapshot) error {
	f.calls.Add(1)
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return f.err
	}
	f.mu.Unlock()
	return f.MemoryStore.SaveSnapshot(ctx, player, snap)
}

func fastPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, MinDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, AttemptTimeout: time.Second}
}

func TestSyncer_RetriesTransientFailures(t *testing.T) {
	gw := &flakyGateway{MemoryStore: NewMemoryStore(), failures: 2, err: errors.New("connection reset")}
	s := NewSyncer(gw, fastPolicy(), nil)

	s.SaveSnapshot("ada", snapshotAt(1, 10, 0))
	s.Wait()

	assert.Equal(t, int32(3), gw.calls.Load())
	assert.Zero(t, s.Failures())
	snap, err := gw.LoadSnapshot(context.Background(), "ada")
	require.NoError(t, err)
	require.NotNil(t, snap)
}

func TestSyncer_GivesUpAfterMaxAttempts(t *testing.T) {
	gw := &flakyGateway{MemoryStore: NewMemoryStore(), failures: 100, err: errors.New("timeout")}
	s := NewSyncer(gw, fastPolicy(), nil)

	s.SaveSnapshot("ada", snapshotAt(1, 10, 0))
	s.Wait()

	assert.Equal(t, int32(4), gw.calls.Load())
	assert.Equal(t, int64(1), s.Failures())
}

func TestSyncer_UnauthorizedIsNotRetried(t *testing.T) {
	gw := &flakyGateway{MemoryStore: NewMemoryStore(), failures: 100, err: ErrUnauthorized}
	var callbacks atomic.Int32
	s := NewSyncer(gw, fastPolicy(), func(err error) {
		assert.ErrorIs(t, err, ErrUnauthorized)
		callbacks.Add(1)
	})

	s.SaveSnapshot("ada", snapshotAt(1, 10, 0))
	s.Wait()
	assert.Equal(t, int32(1), gw.calls.Load())
	assert.True(t, s.Unauthorized())

	// Later writes are dropped without reaching the gateway.
	s.SaveSnapshot("ada", snapshotAt(1, 20, 0))
	s.Wait()
	assert.Equal(t, int32(1), gw.calls.Load())
	assert.Equal(t, int32(1), callbacks.Load())
}

func TestSyncer_CloseStopsRetries(t *testing.T) {
	gw := &flakyGateway{MemoryStore: NewMemoryStore(), failures: 100, err: errors.New("down")}
	s := NewSyncer(gw, RetryPolicy{MaxAttempts: 100, MinDelay: time.Hour, MaxDelay: time.Hour}, nil)

	s.SaveSnapshot("ada", snapshotAt(1, 10, 0))
	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not interrupt the retry delay")
	}

	s.SaveSnapshot("ada", snapshotAt(1, 10, 0))
	s.Wait()
	assert.LessOrEqual(t, gw.calls.Load(), int32(1))
}

func TestSyncer_OtherWrites(t *testing.T) {
	m := NewMemoryStore()
	s := NewSyncer(m, fastPolicy(), nil)

	s.RecordQuestCompletion("ada", Completion{ID: "x", QuestID: "hello"})
	s.SaveOverrides("meadow", nil)
	s.Wait()

	got, err := m.Completions(context.Background(), "ada")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
