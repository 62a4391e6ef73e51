package cn

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const progressFile = ".bundle-progress"

// progressTracker records the symbols ingested for one calendar end date so
// an interrupted run resumes where it stopped. The first line of the file is
// the end date; every further line is a completed symbol. A different end
// date starts over.
type progressTracker struct {
	mu     sync.Mutex
	done   map[string]struct{}
	writer *bufio.Writer
	file   *os.File
	path   string
}

// newProgressTracker opens the progress file in dir for the run ending on
// endDate and loads the symbols already completed for it.
func newProgressTracker(dir, endDate string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating progress dir: %w", err)
	}

	pt := &progressTracker{
		done: make(map[string]struct{}),
		path: filepath.Join(dir, progressFile),
	}

	resume := false
	if data, err := os.ReadFile(pt.path); err == nil {
		lines := strings.Split(string(data), "\n")
		if strings.TrimSpace(lines[0]) == endDate {
			resume = true
			for _, line := range lines[1:] {
				if sym := strings.TrimSpace(line); sym != "" {
					pt.done[sym] = struct{}{}
				}
			}
		}
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !resume {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(pt.path, flags, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", progressFile, err)
	}
	pt.file = f
	pt.writer = bufio.NewWriter(f)

	if !resume {
		if _, err := pt.writer.WriteString(endDate + "\n"); err != nil {
			f.Close()
			return nil, err
		}
		if err := pt.writer.Flush(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return pt, nil
}

// IsDone reports whether symbol was completed in this run or a resumed one.
func (p *progressTracker) IsDone(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.done[symbol]
	return ok
}

// Len returns the number of completed symbols.
func (p *progressTracker) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.done)
}

// MarkDone records symbol as completed.
func (p *progressTracker) MarkDone(symbol string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.done[symbol]; ok {
		return nil
	}
	p.done[symbol] = struct{}{}
	if _, err := p.writer.WriteString(symbol + "\n"); err != nil {
		return fmt.Errorf("writing to %s: %w", progressFile, err)
	}
	return p.writer.Flush()
}

// Close flushes and closes the progress file.
func (p *progressTracker) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writer != nil {
		p.writer.Flush()
	}
	if p.file != nil {
		return p.file.Close()
	}
	return nil
}
