package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receiveBatch(t *testing.T, d *Debouncer, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(timeout):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_SingleEvent_PassesThrough(t *testing.T) {
	// Given: a debouncer with a short window
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	// When: a single event is added
	d.Add(FileEvent{Path: "a.jsonl", Operation: OpCreate, Timestamp: time.Now()})

	// Then: it passes through after the window
	batch := receiveBatch(t, d, time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, "a.jsonl", batch[0].Path)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_WritesWhileCreating_StayCreate(t *testing.T) {
	d := NewDebouncer(50 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "a.jsonl", Operation: OpCreate})
	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: "a.jsonl", Operation: OpModify})
		time.Sleep(5 * time.Millisecond)
	}

	batch := receiveBatch(t, d, time.Second)
	require.Len(t, batch, 1)
	assert.Equal(t, OpCreate, batch[0].Operation)
}

func TestDebouncer_Coalesce(t *testing.T) {
	tests := []struct {
		name  string
		first Operation
		next  Operation
		want  Operation
		keep  bool
	}{
		{"create then modify", OpCreate, OpModify, OpCreate, true},
		{"create then delete", OpCreate, OpDelete, 0, false},
		{"create then rename", OpCreate, OpRename, 0, false},
		{"delete then create", OpDelete, OpCreate, OpModify, true},
		{"modify then delete", OpModify, OpDelete, OpDelete, true},
		{"modify then modify", OpModify, OpModify, OpModify, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, keep := coalesce(FileEvent{Path: "x", Operation: tt.first}, FileEvent{Path: "x", Operation: tt.next})
			assert.Equal(t, tt.keep, keep)
			if keep {
				assert.Equal(t, tt.want, got.Operation)
			}
		})
	}
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	for _, p := range []string{"c.jsonl", "a.jsonl", "b.jsonl"} {
		d.Add(FileEvent{Path: p, Operation: OpCreate})
	}

	batch := receiveBatch(t, d, time.Second)
	require.Len(t, batch, 3)
	assert.Equal(t, []string{"a.jsonl", "b.jsonl", "c.jsonl"},
		[]string{batch[0].Path, batch[1].Path, batch[2].Path})
}

func TestDebouncer_CancelledEventsEmitNothing(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Path: "tmp.jsonl", Operation: OpCreate})
	d.Add(FileEvent{Path: "tmp.jsonl", Operation: OpDelete})

	assert.Zero(t, d.Pending())
	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected batch %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_StopIsIdempotent(t *testing.T) {
	d := NewDebouncer(time.Second)
	d.Add(FileEvent{Path: "a.jsonl", Operation: OpCreate})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "b.jsonl", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
}
