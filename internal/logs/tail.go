package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const maxLineBytes = 1024 * 1024

// Position identifies a read offset within one resolved run log.
type Position struct {
	File   string
	Offset int64
}

// Last returns up to n trailing lines of the log at path and the position
// just past them. A missing log yields no lines and a zero position.
func Last(path string, n int) ([]string, Position, error) {
	target, err := resolve(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Position{}, nil
		}
		return nil, Position{}, err
	}

	file, err := os.Open(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, Position{}, nil
		}
		return nil, Position{}, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	var ring []string
	if n > 0 {
		ring = make([]string, n)
	}
	count, idx := 0, 0
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if n <= 0 {
			continue
		}
		ring[idx] = scanner.Text()
		idx = (idx + 1) % n
		count = min(count+1, n)
	}
	if err := scanner.Err(); err != nil {
		return nil, Position{}, fmt.Errorf("read log file: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, Position{}, fmt.Errorf("determine log offset: %w", err)
	}

	lines := make([]string, count)
	start := 0
	if count == n {
		start = idx
	}
	for i := range count {
		lines[i] = ring[(start+i)%max(n, 1)]
	}
	return lines, Position{File: target, Offset: offset}, nil
}

// Follow polls the log at path every interval and hands each complete new
// line to emit until ctx ends. When path starts pointing at a different run,
// or the file shrinks, reading restarts from the top of the current file.
func Follow(ctx context.Context, path string, from Position, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pos := from
	var partial []byte
	for {
		next, chunk, err := readNew(path, pos)
		if err != nil {
			return err
		}
		if next.File != pos.File || next.Offset < pos.Offset {
			partial = nil
		}
		pos = next
		partial = append(partial, chunk...)
		for {
			i := indexNewline(partial)
			if i < 0 {
				break
			}
			emit(string(partial[:i]))
			partial = partial[i+1:]
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func readNew(path string, pos Position) (Position, []byte, error) {
	target, err := resolve(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return pos, nil, nil
		}
		return pos, nil, err
	}
	info, err := os.Stat(target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return pos, nil, nil
		}
		return pos, nil, fmt.Errorf("stat log file: %w", err)
	}
	offset := pos.Offset
	if target != pos.File || info.Size() < offset {
		offset = 0
	}
	if info.Size() == offset {
		return Position{File: target, Offset: offset}, nil, nil
	}

	file, err := os.Open(target)
	if err != nil {
		return pos, nil, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return pos, nil, fmt.Errorf("seek log file: %w", err)
	}
	chunk, err := io.ReadAll(io.LimitReader(file, info.Size()-offset))
	if err != nil {
		return pos, nil, fmt.Errorf("read log file: %w", err)
	}
	return Position{File: target, Offset: offset + int64(len(chunk))}, chunk, nil
}

// resolve follows the current-run pointer. Hard-linked pointers resolve to
// themselves.
func resolve(path string) (string, error) {
	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(target)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("log path %q is a directory", path)
	}
	return target, nil
}

func indexNewline(b []byte) int {
	for i, c := range b {
		if c == '\n' {
			return i
		}
	}
	return -1
}
