// Package journal records when cache entries were last accessed, so that
// cleanup can evict least-recently-used entries.
//
// Open returns two explicitly typed handles over one backing store: a Writer
// that records access times write-behind, off the hot path of cache access,
// and a Reader that reads them directly during cleanup. Keeping the two
// roles as separate types means neither side ever needs to recover the
// other from a decorator.
package journal

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// op is one unit of work for the writer's background loop.
type op struct {
	file   string
	millis int64
	flush  chan struct{}
}

// store is the shared state behind both handles.
type store struct {
	mu      sync.RWMutex
	path    string
	entries map[string]int64
}

func (s *store) set(file string, millis int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[file] = millis
}

func (s *store) get(file string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	millis, ok := s.entries[file]
	return millis, ok
}

func (s *store) delete(file string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, file)
}

func (s *store) persist() error {
	s.mu.RLock()
	data, err := yaml.Marshal(s.entries)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding access journal: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing access journal %s: %w", s.path, err)
	}
	return nil
}

func load(path string) (*store, error) {
	s := &store{path: path, entries: make(map[string]int64)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading access journal %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("decoding access journal %s: %w", path, err)
	}
	if s.entries == nil {
		s.entries = make(map[string]int64)
	}
	return s, nil
}

// Open loads (or initializes) the journal at path and returns the
// write-behind Writer and the direct Reader over it.
func Open(path string) (*Writer, *Reader, error) {
	s, err := load(path)
	if err != nil {
		return nil, nil, err
	}
	w := &Writer{store: s, ops: make(chan op, 256), done: make(chan struct{})}
	go w.loop()
	return w, &Reader{store: s}, nil
}

// Writer records access times asynchronously, so cache access never waits
// on the journal.
type Writer struct {
	store     *store
	ops       chan op
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

func (w *Writer) loop() {
	for o := range w.ops {
		if o.flush != nil {
			close(o.flush)
			continue
		}
		w.store.set(o.file, o.millis)
	}
	close(w.done)
}

// SetLastAccessTime enqueues an access-time update. Must not be called
// after Close.
func (w *Writer) SetLastAccessTime(file string, t time.Time) {
	w.ops <- op{file: file, millis: t.UnixMilli()}
}

// Flush blocks until all previously enqueued updates are applied.
func (w *Writer) Flush() {
	flushed := make(chan struct{})
	w.ops <- op{flush: flushed}
	<-flushed
}

// Close drains pending updates and persists the journal. Safe to call
// repeatedly; later calls return the first result.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		close(w.ops)
		<-w.done
		w.closeErr = w.store.persist()
	})
	return w.closeErr
}

// Reader reads access times synchronously during cleanup.
type Reader struct {
	store *store
}

// LastAccessTime returns the journaled access time for file. Files the
// journal has never seen fall back to their modification time; a missing
// file reports the zero time.
func (r *Reader) LastAccessTime(file string) time.Time {
	if millis, ok := r.store.get(file); ok {
		return time.UnixMilli(millis)
	}
	info, err := os.Stat(file)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Forget drops the journal entry for a deleted cache file.
func (r *Reader) Forget(file string) {
	r.store.delete(file)
}
