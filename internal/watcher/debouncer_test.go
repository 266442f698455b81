package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case batch := <-d.Output():
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("no batch emitted")
		return nil
	}
}

func TestDebouncer_CoalescesBurst(t *testing.T) {
	// Given: a debouncer
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	// When: a file is written several times quickly
	for range 5 {
		d.Add(FileEvent{Name: "manifest.json", Operation: OpModify})
	}

	// Then: one event is emitted
	batch := receive(t, d)
	require.Len(t, batch, 1)
	assert.Equal(t, OpModify, batch[0].Operation)
}

func TestDebouncer_MergeRules(t *testing.T) {
	tests := []struct {
		name  string
		first Operation
		then  Operation
		want  []Operation
	}{
		{"create then modify", OpCreate, OpModify, []Operation{OpCreate}},
		{"delete then create", OpDelete, OpCreate, []Operation{OpModify}},
		{"modify then delete", OpModify, OpDelete, []Operation{OpDelete}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()

			d.Add(FileEvent{Name: "f", Operation: tt.first})
			d.Add(FileEvent{Name: "f", Operation: tt.then})

			batch := receive(t, d)
			got := make([]Operation, len(batch))
			for i, ev := range batch {
				got[i] = ev.Operation
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDebouncer_CreateThenDeleteEmitsNothing(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	d.Add(FileEvent{Name: "f", Operation: OpCreate})
	d.Add(FileEvent{Name: "f", Operation: OpDelete})

	select {
	case batch := <-d.Output():
		t.Fatalf("unexpected batch %v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_StopClosesOutput(t *testing.T) {
	d := NewDebouncer(time.Second)
	d.Add(FileEvent{Name: "f", Operation: OpModify})
	d.Stop()
	d.Stop()

	_, ok := <-d.Output()
	assert.False(t, ok)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "UNKNOWN", Operation(9).String())
}
