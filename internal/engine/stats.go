package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// PersistentStats holds cumulative counters that survive restarts.
type PersistentStats struct {
	Inserted    int64 `json:"inserted"`
	Updated     int64 `json:"updated"`
	Removed     int64 `json:"removed"`
	Flushes     int64 `json:"flushes"`
	LastFlushNs int64 `json:"last_flush_ns"`
}

// SystemStats is the /api/stats response.
type SystemStats struct {
	Inserted    int64           `json:"inserted"`
	Updated     int64           `json:"updated"`
	Removed     int64           `json:"removed"`
	Flushes     int64           `json:"flushes"`
	Documents   int64           `json:"documents"`
	Collections map[string]int  `json:"collections"` // name -> document count
	WALBytes    int64           `json:"wal_bytes"`
	DiskUsage   int64           `json:"disk_usage"` // bytes
	Schemas     map[string]bool `json:"schemas"`
}

// statsFileName is the filename for persisted stats
const statsFileName = ".nanodoc.stats"

// loadPersistentStats reads stats from disk. A missing or corrupt file
// starts the counters from zero.
func loadPersistentStats(dataDir string) PersistentStats {
	var stats PersistentStats

	data, err := os.ReadFile(filepath.Join(dataDir, statsFileName))
	if err != nil {
		return stats
	}
	if err := json.Unmarshal(data, &stats); err != nil {
		return PersistentStats{}
	}
	return stats
}

// savePersistentStats writes stats to disk atomically.
func savePersistentStats(dataDir string, stats PersistentStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(dataDir, statsFileName)
	tmpPath := path + ".tmp"

	// Write to temp file first
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpPath, path)
}

// Stats merges the persisted counters with the live collection state.
func (s *Store) Stats() SystemStats {
	s.statsLock.RLock()
	persisted := s.globalStats
	s.statsLock.RUnlock()

	stats := SystemStats{
		Inserted:    persisted.Inserted,
		Updated:     persisted.Updated,
		Removed:     persisted.Removed,
		Flushes:     persisted.Flushes,
		Collections: make(map[string]int),
		Schemas:     make(map[string]bool),
	}

	for _, c := range s.collectionList() {
		n := c.Len()
		stats.Collections[c.Name()] = n
		stats.Documents += int64(n)
		stats.Schemas[c.Name()] = c.HasSchema()
	}
	if s.wal != nil {
		stats.WALBytes = s.wal.Size()
	}

	var size int64
	_ = filepath.Walk(s.dataDir, func(_ string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	stats.DiskUsage = size

	return stats
}

// count bumps the in-memory counters. They reach disk with the next flush.
func (s *Store) count(inserted, updated, removed int) {
	s.statsLock.Lock()
	s.globalStats.Inserted += int64(inserted)
	s.globalStats.Updated += int64(updated)
	s.globalStats.Removed += int64(removed)
	s.statsLock.Unlock()
}
