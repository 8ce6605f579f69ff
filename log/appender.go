package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// LogAppender outputs finalized log entries to a destination.
type LogAppender interface {
	Write(entry []byte)
	Refresh()
}

// ConsoleAppender writes entries to stdout.
type ConsoleAppender struct {
	mu sync.Mutex
}

// NewConsoleAppender creates a console appender.
func NewConsoleAppender() *ConsoleAppender {
	return &ConsoleAppender{}
}

// Write implements LogAppender.
func (a *ConsoleAppender) Write(entry []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, _ = os.Stdout.Write(entry)
}

// Refresh implements LogAppender. Nothing to rotate for a console.
func (a *ConsoleAppender) Refresh() {}

// FileAppender writes entries to a log file with size-based rotation and an
// optional asynchronous write path so transport goroutines never block on
// disk I/O.
type FileAppender struct {
	mu       sync.Mutex
	path     string
	splitMB  int
	file     *os.File
	written  int64
	async    bool
	asyncCh  chan []byte
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewFileAppender creates a file appender from configuration. The parent
// directory is created on demand.
func NewFileAppender(cfg *LogCfg) *FileAppender {
	a := &FileAppender{
		path:    cfg.LogPath,
		splitMB: cfg.FileSplitMB,
		async:   cfg.IsAsync,
		stopCh:  make(chan struct{}),
	}

	if a.async {
		size := cfg.AsyncCacheSize
		if size <= 0 {
			size = 1024
		}
		interval := time.Duration(cfg.AsyncWriteMillSec) * time.Millisecond
		if interval <= 0 {
			interval = 200 * time.Millisecond
		}
		a.asyncCh = make(chan []byte, size)
		go a.serveAsync(interval)
	}

	return a
}

// Write implements LogAppender. In async mode entries beyond the cache size
// are dropped rather than blocking the caller.
func (a *FileAppender) Write(entry []byte) {
	if a.async {
		buf := make([]byte, len(entry))
		copy(buf, entry)
		select {
		case a.asyncCh <- buf:
		default:
		}
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.writeLocked(entry)
}

func (a *FileAppender) writeLocked(entry []byte) {
	if a.file == nil {
		if err := a.openLocked(); err != nil {
			return
		}
	}

	n, err := a.file.Write(entry)
	if err != nil {
		return
	}
	a.written += int64(n)

	if a.splitMB > 0 && a.written >= int64(a.splitMB)*1024*1024 {
		a.rotateLocked()
	}
}

func (a *FileAppender) openLocked() error {
	if err := os.MkdirAll(filepath.Dir(a.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	if st, err := f.Stat(); err == nil {
		a.written = st.Size()
	}
	a.file = f
	return nil
}

func (a *FileAppender) rotateLocked() {
	_ = a.file.Close()
	a.file = nil
	rotated := fmt.Sprintf("%s.%s", a.path, time.Now().Format("20060102150405"))
	_ = os.Rename(a.path, rotated)
	a.written = 0
}

func (a *FileAppender) serveAsync(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pending := make([][]byte, 0, 64)
	flush := func() {
		if len(pending) == 0 {
			return
		}
		a.mu.Lock()
		for _, entry := range pending {
			a.writeLocked(entry)
		}
		a.mu.Unlock()
		pending = pending[:0]
	}

	for {
		select {
		case entry := <-a.asyncCh:
			pending = append(pending, entry)
			if len(pending) >= cap(pending) {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stopCh:
			for {
				select {
				case entry := <-a.asyncCh:
					pending = append(pending, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

// Refresh implements LogAppender: closes and reopens the target file so
// external rotation tooling can move it out from under the appender.
func (a *FileAppender) Refresh() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		_ = a.file.Close()
		a.file = nil
	}
}

// Close stops the async writer, flushing buffered entries.
func (a *FileAppender) Close() {
	a.stopOnce.Do(func() {
		close(a.stopCh)
	})
}
