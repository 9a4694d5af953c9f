package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coffersTech/nanodoc/internal/metrics"
	"github.com/coffersTech/nanodoc/internal/pkg/filterql"
	"github.com/coffersTech/nanodoc/internal/pkg/logger"
	"github.com/panjf2000/ants/v2"
)

// SnapshotReaderFunc reads every document of a .ndoc file.
type SnapshotReaderFunc func(path string) ([]Document, error)

// SnapshotWriterFunc writes the documents of a collection to a .ndoc file.
// This allows the engine package to not depend on storage package directly.
type SnapshotWriterFunc func(path string, docs []Document) error

const (
	snapshotExt = ".ndoc"
	walFileName = "wal.log"
)

// Options configure a Store.
type Options struct {
	ReadSnapshot  SnapshotReaderFunc
	WriteSnapshot SnapshotWriterFunc
	// LoadWorkers bounds parallel snapshot loading. Defaults to GOMAXPROCS.
	LoadWorkers int
	// WALThreshold is the WAL size above which the compactor flushes.
	// Zero flushes on every tick that has pending writes.
	WALThreshold int64
	Logger       *slog.Logger
}

// Store is the document store: in-memory collections backed by a WAL and
// one snapshot file per collection.
type Store struct {
	dataDir string
	opts    Options
	log     *slog.Logger

	// mu guards the collections map. Mutations hold it shared; Flush holds
	// it exclusively so snapshots and the WAL reset see a quiet store.
	mu          sync.RWMutex
	collections map[string]*Collection
	closed      bool

	// Persistent Stats
	globalStats PersistentStats
	statsLock   sync.RWMutex

	// WAL for crash recovery
	wal *WAL
}

// Open loads the snapshots found in dataDir, replays the WAL on top of them
// and returns a ready store.
func Open(dataDir string, opts Options) (*Store, error) {
	if opts.ReadSnapshot == nil || opts.WriteSnapshot == nil {
		return nil, errors.New("engine: snapshot reader and writer are required")
	}
	if opts.LoadWorkers <= 0 {
		opts.LoadWorkers = runtime.GOMAXPROCS(0)
	}
	if opts.Logger == nil {
		opts.Logger = logger.Get()
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	s := &Store{
		dataDir:     dataDir,
		opts:        opts,
		log:         opts.Logger.With("component", "engine"),
		collections: make(map[string]*Collection),
		globalStats: loadPersistentStats(dataDir),
	}

	start := time.Now()
	if err := s.loadSnapshots(); err != nil {
		return nil, err
	}

	wal, err := OpenWAL(filepath.Join(dataDir, walFileName))
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	s.wal = wal

	// Crash Recovery: Replay WAL if it has data
	records, dropped, err := wal.Replay()
	if err != nil {
		wal.Close()
		return nil, fmt.Errorf("replay wal: %w", err)
	}
	if dropped > 0 {
		s.log.Warn("WAL torn tail truncated", "bytes", dropped, "applied", len(records))
	}
	if len(records) > 0 {
		s.log.Info("crash recovery: replaying WAL", "records", len(records))
		s.replay(records)
	}

	for _, c := range s.collectionList() {
		metrics.Documents.WithLabelValues(c.Name()).Set(float64(c.Len()))
	}
	s.log.Info("store opened", "dir", dataDir, "collections", len(s.collections), "took", time.Since(start))
	return s, nil
}

// loadSnapshots reads every .ndoc file in parallel on an ants pool.
func (s *Store) loadSnapshots() error {
	paths, err := filepath.Glob(filepath.Join(s.dataDir, "*"+snapshotExt))
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	pool, err := ants.NewPool(s.opts.LoadWorkers, ants.WithPanicHandler(func(v any) {
		s.log.Error("snapshot loader panic", "panic", v)
	}))
	if err != nil {
		return fmt.Errorf("snapshot loader pool: %w", err)
	}
	defer pool.Release()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		errs   []error
		loaded = make(map[string][]Document, len(paths))
	)
	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), snapshotExt)
		if !ValidName(name) {
			s.log.Warn("skipping snapshot with invalid name", "file", path)
			continue
		}

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			docs, err := s.opts.ReadSnapshot(path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("load %s: %w", filepath.Base(path), err))
				return
			}
			loaded[name] = docs
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = append(errs, fmt.Errorf("schedule %s: %w", filepath.Base(path), err))
			mu.Unlock()
		}
	}
	wg.Wait()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	for name, docs := range loaded {
		c := newCollection(name)
		c.load(docs)
		s.collections[name] = c
		s.log.Debug("snapshot loaded", "collection", name, "documents", len(docs))
	}
	return nil
}

// replay applies WAL records without logging them again.
func (s *Store) replay(records []Record) {
	for _, rec := range records {
		if !ValidName(rec.Collection) {
			continue
		}
		c, ok := s.collections[rec.Collection]
		if !ok {
			c = newCollection(rec.Collection)
			c.dirty.Store(true)
			s.collections[rec.Collection] = c
		}

		c.mu.Lock()
		switch rec.Op {
		case OpInsert, OpReplace:
			if _, ok := rec.Doc.ID(); ok {
				c.put(rec.Doc)
				if rec.Op == OpInsert {
					s.count(1, 0, 0)
				} else {
					s.count(0, 1, 0)
				}
			}
		case OpRemove:
			if c.delete(rec.ID) {
				s.count(0, 0, 1)
			}
		}
		c.mu.Unlock()
	}
}

// logWrite appends records to the WAL and syncs it. Every mutation goes
// through here before it touches memory.
func (s *Store) logWrite(records ...Record) error {
	if err := s.wal.Write(records...); err != nil {
		return fmt.Errorf("wal write: %w", err)
	}
	if err := s.wal.Sync(); err != nil {
		return fmt.Errorf("wal sync: %w", err)
	}
	return nil
}

// acquire takes the store lock shared and returns the named collection.
// The caller must call the returned release func.
func (s *Store) acquire(name string) (*Collection, func(), error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, nil, ErrClosed
	}
	c, ok := s.collections[name]
	if !ok {
		s.mu.RUnlock()
		return nil, nil, fmt.Errorf("%w %s", ErrCollectionNotFound, name)
	}
	return c, s.mu.RUnlock, nil
}

// AddCollection registers a collection, or replaces the schema of an
// existing one. schema is a JSON Schema document; empty means none.
func (s *Store) AddCollection(name, schema string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	c, exists := s.collections[name]
	if !exists {
		c = newCollection(name)
	}
	if err := c.SetSchema(schema); err != nil {
		return err
	}
	if exists {
		return nil
	}

	if err := s.logWrite(Record{Op: OpCreate, Collection: name}); err != nil {
		return err
	}
	c.dirty.Store(true)
	s.collections[name] = c
	metrics.Documents.WithLabelValues(name).Set(0)
	s.log.Info("collection added", "collection", name, "schema", schema != "")
	return nil
}

// Collections returns the registered collection names, sorted.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Collection returns a registered collection.
func (s *Store) Collection(name string) (*Collection, error) {
	c, release, err := s.acquire(name)
	if err != nil {
		return nil, err
	}
	release()
	return c, nil
}

func (s *Store) collectionList() []*Collection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Collection, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Find returns the documents matching q, sorted, paginated and projected.
func (s *Store) Find(name string, q Query) ([]Document, error) {
	c, release, err := s.acquire(name)
	if err != nil {
		return nil, err
	}
	defer release()

	matched := c.find(q.Filter)

	sortDocuments(matched, q.Sort)
	matched = paginate(matched, q.Skip, q.Limit)

	out := make([]Document, len(matched))
	for i, doc := range matched {
		out[i] = project(doc, q.Projection)
	}
	metrics.StoreOperations.WithLabelValues("find", "ok").Inc()
	return out, nil
}

// Count returns the number of documents matching filter.
func (s *Store) Count(name string, filter filterql.Node) (int, error) {
	c, release, err := s.acquire(name)
	if err != nil {
		return 0, err
	}
	defer release()

	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.match(filter, 0)), nil
}

// Get returns a copy of the document with the given id.
func (s *Store) Get(name, id string) (Document, error) {
	c, release, err := s.acquire(name)
	if err != nil {
		return nil, err
	}
	defer release()

	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.get(id)
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return doc.Clone(), nil
}

// Insert stores a new document and returns it with its _id filled in.
func (s *Store) Insert(name string, doc Document) (out Document, err error) {
	defer func() { metrics.StoreOperations.WithLabelValues("insert", metrics.Status(err)).Inc() }()

	c, release, err := s.acquire(name)
	if err != nil {
		return nil, err
	}
	defer release()

	prepared, err := prepare(doc)
	if err != nil {
		return nil, err
	}
	id, _ := prepared.ID()

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validate(prepared); err != nil {
		return nil, err
	}
	if _, exists := c.get(id); exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if err := s.logWrite(Record{Op: OpInsert, Collection: name, ID: id, Doc: prepared}); err != nil {
		return nil, err
	}
	c.put(prepared)
	s.count(1, 0, 0)
	metrics.Documents.WithLabelValues(name).Set(float64(len(c.docs)))
	return prepared.Clone(), nil
}

// Replace swaps the document with the given id for doc.
func (s *Store) Replace(name, id string, doc Document) (out Document, err error) {
	defer func() { metrics.StoreOperations.WithLabelValues("replace", metrics.Status(err)).Inc() }()

	c, release, err := s.acquire(name)
	if err != nil {
		return nil, err
	}
	defer release()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.get(id); !ok {
		return nil, ErrDocumentNotFound
	}
	next, err := replacement(doc, id)
	if err != nil {
		return nil, err
	}
	if err := c.validate(next); err != nil {
		return nil, err
	}
	if err := s.logWrite(Record{Op: OpReplace, Collection: name, ID: id, Doc: next}); err != nil {
		return nil, err
	}
	c.put(next)
	s.count(0, 1, 0)
	return next.Clone(), nil
}

// Update replaces the documents matching filter with doc, keeping their
// ids. Without multi only the first match in insertion order is replaced.
// It returns the new documents; none matched is not an error.
func (s *Store) Update(name string, filter filterql.Node, doc Document, multi bool) (out []Document, err error) {
	defer func() { metrics.StoreOperations.WithLabelValues("update", metrics.Status(err)).Inc() }()

	c, release, err := s.acquire(name)
	if err != nil {
		return nil, err
	}
	defer release()

	c.mu.Lock()
	defer c.mu.Unlock()

	limit := 0
	if !multi {
		limit = 1
	}
	matched := c.match(filter, limit)
	if len(matched) == 0 {
		return nil, nil
	}

	records := make([]Record, 0, len(matched))
	updated := make([]Document, 0, len(matched))
	for _, old := range matched {
		id, _ := old.ID()
		next, err := replacement(doc, id)
		if err != nil {
			return nil, err
		}
		if err := c.validate(next); err != nil {
			return nil, err
		}
		records = append(records, Record{Op: OpReplace, Collection: name, ID: id, Doc: next})
		updated = append(updated, next)
	}

	if err := s.logWrite(records...); err != nil {
		return nil, err
	}
	out = make([]Document, len(updated))
	for i, next := range updated {
		c.put(next)
		out[i] = next.Clone()
	}
	s.count(0, len(updated), 0)
	return out, nil
}

// replacement builds the stored form of doc under id. A conflicting _id in
// the body is rejected.
func replacement(doc Document, id string) (Document, error) {
	if doc == nil {
		return nil, ErrInvalidDocument
	}
	if raw, ok := doc[IDField]; ok && raw != nil && raw != id {
		return nil, fmt.Errorf("%w: _id cannot be changed", ErrInvalidDocument)
	}
	next := doc.Clone()
	next[IDField] = id
	return next, nil
}

// Remove deletes the document with the given id.
func (s *Store) Remove(name, id string) (err error) {
	defer func() { metrics.StoreOperations.WithLabelValues("remove", metrics.Status(err)).Inc() }()

	c, release, err := s.acquire(name)
	if err != nil {
		return err
	}
	defer release()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.get(id); !ok {
		return ErrDocumentNotFound
	}
	if err := s.logWrite(Record{Op: OpRemove, Collection: name, ID: id}); err != nil {
		return err
	}
	c.delete(id)
	s.count(0, 0, 1)
	metrics.Documents.WithLabelValues(name).Set(float64(len(c.docs)))
	return nil
}

// RemoveMatching deletes the documents matching filter and returns how many
// were removed. Without multi at most one document is removed.
func (s *Store) RemoveMatching(name string, filter filterql.Node, multi bool) (n int, err error) {
	defer func() { metrics.StoreOperations.WithLabelValues("remove", metrics.Status(err)).Inc() }()

	c, release, err := s.acquire(name)
	if err != nil {
		return 0, err
	}
	defer release()

	c.mu.Lock()
	defer c.mu.Unlock()

	limit := 0
	if !multi {
		limit = 1
	}
	matched := c.match(filter, limit)
	if len(matched) == 0 {
		return 0, nil
	}

	ids := make([]string, len(matched))
	records := make([]Record, len(matched))
	for i, doc := range matched {
		ids[i], _ = doc.ID()
		records[i] = Record{Op: OpRemove, Collection: name, ID: ids[i]}
	}
	if err := s.logWrite(records...); err != nil {
		return 0, err
	}
	c.deleteAll(ids)
	s.count(0, 0, len(ids))
	metrics.Documents.WithLabelValues(name).Set(float64(len(c.docs)))
	return len(ids), nil
}

// Flush writes a snapshot of every modified collection, persists the stats
// and truncates the WAL. The WAL is kept if any snapshot fails.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.flushLocked()
}

func (s *Store) flushLocked() error {
	start := time.Now()
	written := 0

	// === Step 1: Write snapshots ===
	for name, c := range s.collections {
		if !c.dirty.Load() {
			continue
		}
		docs := c.snapshot()
		path := filepath.Join(s.dataDir, name+snapshotExt)
		if err := s.opts.WriteSnapshot(path, docs); err != nil {
			return fmt.Errorf("write snapshot %s: %w", name, err)
		}
		c.dirty.Store(false)
		written++
	}
	if written == 0 && s.wal.Size() == 0 {
		return nil
	}

	// === Step 2: Persist stats ===
	s.statsLock.Lock()
	s.globalStats.Flushes++
	s.globalStats.LastFlushNs = time.Now().UnixNano()
	stats := s.globalStats
	s.statsLock.Unlock()

	if err := savePersistentStats(s.dataDir, stats); err != nil {
		s.log.Error("stats persist error", "error", err)
	}

	// === Step 3: Reset WAL ===
	if err := s.wal.Reset(); err != nil {
		return fmt.Errorf("wal reset: %w", err)
	}

	metrics.FlushDuration.Observe(time.Since(start).Seconds())
	s.log.Info("flushed to disk", "snapshots", written, "took", time.Since(start))
	return nil
}

// Close flushes pending writes and releases the WAL. The store cannot be
// used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	flushErr := s.flushLocked()
	s.closed = true
	return errors.Join(flushErr, s.wal.Close())
}
