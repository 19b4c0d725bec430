package snapshot_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/arkbound/orderfeed/internal/platform/snapshot"
)

func TestWriterWriteThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	w := snapshot.NewWriter(path)

	if err := w.Write(map[string]int{"a": 1, "b": 2}); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	var restored map[string]int
	if err := snapshot.Load(path, &restored); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if restored["a"] != 1 || restored["b"] != 2 {
		t.Fatalf("unexpected restored value: %v", restored)
	}
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	var restored map[string]int
	if err := snapshot.Load(path, &restored); err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
}

func TestDebouncer_CollapsesBurstIntoOneWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	w := snapshot.NewWriter(path)
	d := snapshot.NewDebouncer(w, 20*time.Millisecond, nil)

	for i := 0; i < 5; i++ {
		v := i
		d.Schedule(func() any { return map[string]int{"n": v} })
	}

	time.Sleep(60 * time.Millisecond)

	var restored map[string]int
	if err := snapshot.Load(path, &restored); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if restored["n"] != 4 {
		t.Fatalf("expected the last scheduled value (4) to win, got %d", restored["n"])
	}
}

func TestDebouncer_FlushWritesImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	w := snapshot.NewWriter(path)
	d := snapshot.NewDebouncer(w, time.Hour, nil)

	d.Schedule(func() any { return map[string]int{"n": 7} })
	if err := d.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	var restored map[string]int
	if err := snapshot.Load(path, &restored); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if restored["n"] != 7 {
		t.Fatalf("expected flush to persist immediately, got %v", restored)
	}
}
