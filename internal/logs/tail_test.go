package logs_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"figurespeaker/internal/logs"
)

func TestLastReturnsTrailingLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "figurespeaker-1.log")
	if err := os.WriteFile(path, []byte("a\nb\nc\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}

	lines, pos, err := logs.Last(path, 2)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}
	if len(lines) != 2 || lines[0] != "b" || lines[1] != "c" {
		t.Fatalf("unexpected lines: %#v", lines)
	}
	if pos.Offset != 6 {
		t.Fatalf("offset = %d, want 6", pos.Offset)
	}

	lines, _, err = logs.Last(path, 10)
	if err != nil || len(lines) != 3 {
		t.Fatalf("Last(10) = %#v, %v", lines, err)
	}
	lines, pos, err = logs.Last(path, 0)
	if err != nil || len(lines) != 0 || pos.Offset != 6 {
		t.Fatalf("Last(0) = %#v, %+v, %v", lines, pos, err)
	}
}

func TestLastMissingFile(t *testing.T) {
	lines, pos, err := logs.Last(filepath.Join(t.TempDir(), "missing.log"), 5)
	if err != nil || len(lines) != 0 || pos.Offset != 0 {
		t.Fatalf("Last(missing) = %#v, %+v, %v", lines, pos, err)
	}
}

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, line)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

func waitForLines(t *testing.T, c *collector, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d lines, got %#v", n, c.snapshot())
	return nil
}

func appendTo(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open append: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestFollowSwitchesToNewRun(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "figurespeaker-1.log")
	second := filepath.Join(dir, "figurespeaker-2.log")
	pointer := filepath.Join(dir, "figurespeaker.log")
	appendTo(t, first, "old\n")
	if err := os.Symlink(first, pointer); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	_, pos, err := logs.Last(pointer, 0)
	if err != nil {
		t.Fatalf("Last: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	got := &collector{}
	go func() {
		done <- logs.Follow(ctx, pointer, pos, 10*time.Millisecond, got.add)
	}()

	appendTo(t, first, "one\ntwo-")
	appendTo(t, first, "halves\n")
	waitForLines(t, got, 2)

	appendTo(t, second, "fresh\n")
	if err := os.Remove(pointer); err != nil {
		t.Fatalf("remove pointer: %v", err)
	}
	if err := os.Symlink(second, pointer); err != nil {
		t.Fatalf("relink pointer: %v", err)
	}
	lines := waitForLines(t, got, 3)

	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Follow returned %v", err)
	}
	want := []string{"one", "two-halves", "fresh"}
	for i, line := range want {
		if lines[i] != line {
			t.Fatalf("lines = %#v, want %#v", lines, want)
		}
	}
}
