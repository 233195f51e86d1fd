package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// IsStagingName reports whether name is a staging artifact of this package.
func IsStagingName(name string) bool {
	return strings.HasPrefix(name, stagingPrefix) && strings.HasSuffix(name, stagingSuffix)
}

// Sweep removes staging files older than maxAge that no open session owns,
// i.e. leftovers of a crashed process. It returns how many were removed.
func (s *Sink) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		if e.IsDir() || !IsStagingName(e.Name()) {
			continue
		}
		path := filepath.Join(s.root, e.Name())

		s.mu.Lock()
		_, open := s.active[path]
		s.mu.Unlock()
		if open {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}
		if time.Since(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(path); err != nil {
			s.logger.Warn(ctx, "failed to remove stale staging file", "file", e.Name(), "err", err)
			continue
		}
		s.logger.Info(ctx, "removed stale staging file", "file", e.Name())
		removed++
	}
	return removed, nil
}

// RunSweeper sweeps once immediately and then every interval until ctx is
// done.
func (s *Sink) RunSweeper(ctx context.Context, every, maxAge time.Duration) error {
	if _, err := s.Sweep(ctx, maxAge); err != nil {
		s.logger.Warn(ctx, "staging sweep failed", "err", err)
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx, maxAge); err != nil {
				s.logger.Warn(ctx, "staging sweep failed", "err", err)
			}
		}
	}
}
