// Package cleanup evicts cache entries that have not been accessed within a
// configured number of days, reading access times from the journal.
package cleanup

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/vk/compobuild/internal/ctxlog"
)

// Default retention, in days, for the two classes of cache entries.
const (
	DefaultMaxAgeDaysRecreatable = 7
	DefaultMaxAgeDaysExternal    = 30
)

// AccessTimeReader reads the last access time of a cache file. Satisfied by
// journal.Reader.
type AccessTimeReader interface {
	LastAccessTime(file string) time.Time
}

// CountdownTimer bounds how long a cleanup pass may run.
type CountdownTimer struct {
	deadline time.Time
}

// NewCountdownTimer starts a timer that expires after d.
func NewCountdownTimer(d time.Duration) *CountdownTimer {
	return &CountdownTimer{deadline: time.Now().Add(d)}
}

// Expired reports whether the budget is used up.
func (t *CountdownTimer) Expired() bool {
	return !time.Now().Before(t.deadline)
}

// LRUCleanup deletes cache entries not accessed on or after a minimum
// timestamp.
type LRUCleanup struct {
	reader      AccessTimeReader
	minimumTime time.Time
}

// NewLRUCleanup creates a cleanup that retains entries accessed within
// maxAgeDays days of now.
func NewLRUCleanup(reader AccessTimeReader, maxAgeDays int) *LRUCleanup {
	minimum := time.Now().Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	return &LRUCleanup{reader: reader, minimumTime: minimum}
}

// Clean walks the cache directory and deletes every file whose last access
// time is before the minimum timestamp. The pass stops early when the timer
// expires; remaining entries are picked up by a later pass. Returns the
// number of deleted files.
func (c *LRUCleanup) Clean(ctx context.Context, dir string, timer *CountdownTimer) (int, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Removing cache entries not accessed recently.", "dir", dir, "since", c.minimumTime)

	deleted := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if timer != nil && timer.Expired() {
			logger.Debug("Cleanup budget used up, stopping early.", "deleted", deleted)
			return fs.SkipAll
		}
		if d.IsDir() {
			return nil
		}
		if !c.shouldDelete(path) {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		logger.Debug("Deleted cache entry.", "file", path)
		deleted++
		return nil
	})
	if err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (c *LRUCleanup) shouldDelete(file string) bool {
	accessed := c.reader.LastAccessTime(file)
	return accessed.Before(c.minimumTime)
}
