package stimulus

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validEnvelope() Envelope {
	return Envelope{
		Graph:     "main",
		Embedding: []float64{0.1, 0.2, 0.3},
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	e := validEnvelope()
	now := time.Now()
	if err := e.Normalize(now); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if e.ID == "" {
		t.Error("no identifier assigned")
	}
	if !e.Timestamp.Equal(now) {
		t.Errorf("timestamp = %v, want %v", e.Timestamp, now)
	}
	if e.Priority != 1 {
		t.Errorf("priority = %v, want default 1", e.Priority)
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Envelope)
	}{
		{"no graph", func(e *Envelope) { e.Graph = "" }},
		{"no embedding", func(e *Envelope) { e.Embedding = nil }},
		{"nan embedding", func(e *Envelope) { e.Embedding[1] = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := validEnvelope()
			tt.mod(&e)
			if err := e.Normalize(time.Now()); err == nil {
				t.Error("malformed envelope accepted")
			}
		})
	}
}

func TestNormalizeClampsPriority(t *testing.T) {
	e := validEnvelope()
	e.Priority = 7
	if err := e.Normalize(time.Now()); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if e.Priority != 1 {
		t.Errorf("priority = %v, want clamped to 1", e.Priority)
	}
}

func TestQueueDrainsInArrivalOrder(t *testing.T) {
	q := NewQueue(10)
	for _, scope := range []string{"a", "b", "c"} {
		e := validEnvelope()
		e.Scope = scope
		if err := q.Push(e); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}

	got := q.Drain(2)
	if len(got) != 2 || got[0].Scope != "a" || got[1].Scope != "b" {
		t.Errorf("Drain(2) = %v", got)
	}
	if q.Len() != 1 {
		t.Errorf("Len = %d, want 1", q.Len())
	}
	if rest := q.Drain(0); len(rest) != 1 || rest[0].Scope != "c" {
		t.Errorf("Drain(0) = %v", rest)
	}
}

func TestQueueRejectsWhenFull(t *testing.T) {
	q := NewQueue(1)
	if err := q.Push(validEnvelope()); err != nil {
		t.Fatalf("first Push: %v", err)
	}
	if err := q.Push(validEnvelope()); err != ErrQueueFull {
		t.Errorf("second Push err = %v, want ErrQueueFull", err)
	}
}

func TestInterruptSignalsWake(t *testing.T) {
	q := NewQueue(10)

	if err := q.Push(validEnvelope()); err != nil {
		t.Fatalf("Push: %v", err)
	}
	select {
	case <-q.Wake():
		t.Fatal("plain envelope signalled wake")
	default:
	}

	e := validEnvelope()
	e.Interrupt = true
	if err := q.Push(e); err != nil {
		t.Fatalf("Push interrupt: %v", err)
	}
	select {
	case <-q.Wake():
	case <-time.After(time.Second):
		t.Fatal("interrupt envelope did not signal wake")
	}
}

func TestWatcherIngestsDroppedFiles(t *testing.T) {
	dir := t.TempDir()
	q := NewQueue(10)
	w := NewWatcher(dir, q, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	// Give the watcher time to register before dropping the file.
	time.Sleep(100 * time.Millisecond)
	writeEnvelope(t, filepath.Join(dir, "one.json"), validEnvelope())

	waitForLen(t, q, 1)
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("%d files left after ingestion, want 0", len(entries))
	}

	cancel()
	<-done
}

func TestWatcherSweepsPreexistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeEnvelope(t, filepath.Join(dir, "early.json"), validEnvelope())

	q := NewQueue(10)
	w := NewWatcher(dir, q, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()

	waitForLen(t, q, 1)
	cancel()
	<-done
}

func TestWatcherIgnoresNonJSON(t *testing.T) {
	dir := t.TempDir()
	q := NewQueue(10)
	w := NewWatcher(dir, q, nil)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	w.sweep()
	if q.Len() != 0 {
		t.Errorf("Len = %d after non-JSON sweep, want 0", q.Len())
	}
}

func writeEnvelope(t *testing.T, path string, e Envelope) {
	t.Helper()
	data, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func waitForLen(t *testing.T, q *Queue, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if q.Len() >= want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("queue never reached %d envelopes", want)
}
