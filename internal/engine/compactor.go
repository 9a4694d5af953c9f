package engine

import (
	"context"
	"errors"
	"time"
)

// RunCompactor periodically folds the WAL into snapshots once it has grown
// past Options.WALThreshold. It returns when ctx is done.
func (s *Store) RunCompactor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info("compactor started", "interval", interval, "wal_threshold", s.opts.WALThreshold)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("compactor stopped")
			return
		case <-ticker.C:
			s.compact()
		}
	}
}

func (s *Store) compact() {
	size := s.wal.Size()
	if size == 0 || size < s.opts.WALThreshold {
		return
	}

	if err := s.Flush(); err != nil {
		if errors.Is(err, ErrClosed) {
			return
		}
		s.log.Error("compaction failed", "error", err, "wal_bytes", size)
		return
	}
	s.log.Debug("compaction done", "wal_bytes", size)
}
