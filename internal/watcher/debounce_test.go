package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func fastTestConfig() Config {
	return Config{
		SettleDelay:      10 * time.Millisecond,
		ProbeInterval:    2 * time.Millisecond,
		MaxProbeDelay:    10 * time.Millisecond,
		MaxProbeAttempts: 3,
		OutputCapacity:   16,
	}
}

func TestDebounceBurstYieldsOneCandidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asset.bin")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx, fastTestConfig(), nil)
	defer q.Close()

	for i := 0; i < 10; i++ {
		q.Enqueue(FileEvent{Path: path, Type: Modified, OccurredAt: time.Now()})
		time.Sleep(time.Millisecond)
	}

	select {
	case c := <-q.Out():
		if c.Path != path {
			t.Fatalf("expected candidate for %s, got %s", path, c.Path)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected a candidate within timeout")
	}

	select {
	case c, ok := <-q.Out():
		if ok {
			t.Fatalf("expected exactly one candidate, got a second: %+v", c)
		}
	case <-time.After(50 * time.Millisecond):
		// no second candidate arrived — correct.
	}
}

func TestDebounceDeletedSkipsProbe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx, fastTestConfig(), nil)
	defer q.Close()

	missingPath := filepath.Join(t.TempDir(), "gone.bin")
	q.Enqueue(FileEvent{Path: missingPath, Type: Deleted, OccurredAt: time.Now()})

	select {
	case c := <-q.Out():
		if c.IsFailed {
			t.Fatalf("deleted events should not probe or fail: %+v", c)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("expected a deleted candidate within timeout")
	}
}

func TestDebounceSupersededEventAbandonsOldSettle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "asset.bin")
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := fastTestConfig()
	cfg.SettleDelay = 50 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q := NewQueue(ctx, cfg, nil)
	defer q.Close()

	q.Enqueue(FileEvent{Path: path, Type: Modified, OccurredAt: time.Now()})
	time.Sleep(10 * time.Millisecond)
	q.Enqueue(FileEvent{Path: path, Type: Modified, OccurredAt: time.Now()})

	count := 0
	deadline := time.After(300 * time.Millisecond)
loop:
	for {
		select {
		case <-q.Out():
			count++
		case <-deadline:
			break loop
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one candidate after superseding trigger, got %d", count)
	}
}

func TestProbeExhaustedEmitsFailedCandidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing-forever.bin")

	cfg := fastTestConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var gotErr bool
	q := NewQueue(ctx, cfg, func(err error) { gotErr = true })
	defer q.Close()

	q.Enqueue(FileEvent{Path: path, Type: Created, OccurredAt: time.Now()})

	select {
	case c := <-q.Out():
		if !c.IsFailed {
			t.Fatalf("expected IsFailed candidate for unreadable file, got %+v", c)
		}
		if c.FailReason == "" {
			t.Fatalf("expected a fail reason")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a failed candidate within timeout")
	}
	if !gotErr {
		t.Fatalf("expected errSink to be called on probe exhaustion")
	}
}

func TestCanonicalPathNormalises(t *testing.T) {
	if canonicalPath("/tmp/Dir/") != canonicalPath("/tmp/Dir") {
		t.Fatalf("expected trailing separator to be stripped")
	}
	if canonicalPath("/tmp/file") != canonicalPath("/TMP/FILE") {
		t.Fatalf("expected case-insensitive canonicalisation")
	}
}
