package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/phrazzld/imagerelay/internal/domain"
)

const shardCount = 32

// Default retention settings.
const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = time.Minute
)

// MemoryConfig controls retention of a MemoryTaskStore.
type MemoryConfig struct {
	// TTL is applied to a record on every write.
	TTL time.Duration
	// SweepInterval is how often the janitor removes expired records.
	// Zero disables the janitor; expired records are still hidden from reads.
	SweepInterval time.Duration
	// MaxEntries caps the number of records. Zero means unlimited.
	MaxEntries int
}

// Option customizes a MemoryTaskStore.
type Option func(*MemoryTaskStore)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryTaskStore) { s.now = now }
}

type shard struct {
	mu      sync.RWMutex
	records map[string]domain.TaskRecord
}

// MemoryTaskStore is an in-process TaskStore split into independently locked
// shards, so writers for different tasks rarely contend.
type MemoryTaskStore struct {
	shards [shardCount]*shard
	cfg    MemoryConfig
	logger *slog.Logger
	now    func() time.Time
	count  atomic.Int64

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ TaskStore = (*MemoryTaskStore)(nil)

// NewMemoryTaskStore creates a store and starts its janitor when
// cfg.SweepInterval is positive. Call Close to stop the janitor.
func NewMemoryTaskStore(cfg MemoryConfig, logger *slog.Logger, opts ...Option) (*MemoryTaskStore, error) {
	if logger == nil {
		return nil, ErrNilLogger
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidConfig, cfg.TTL)
	}
	if cfg.SweepInterval < 0 || cfg.MaxEntries < 0 {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidConfig, cfg)
	}

	s := &MemoryTaskStore{
		cfg:    cfg,
		logger: logger.With("component", "task_store"),
		now:    time.Now,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i] = &shard{records: make(map[string]domain.TaskRecord)}
	}
	for _, opt := range opts {
		opt(s)
	}

	if cfg.SweepInterval > 0 {
		go s.janitor(cfg.SweepInterval)
	} else {
		close(s.done)
	}
	return s, nil
}

func (s *MemoryTaskStore) shardFor(taskID string) *shard {
	return s.shards[xxhash.Sum64String(taskID)%shardCount]
}

// Claim implements TaskStore.
func (s *MemoryTaskStore) Claim(_ context.Context, taskID string) error {
	if taskID == "" {
		return ErrEmptyTaskID
	}
	now := s.now()
	s.ensureCapacity(now)

	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if rec, ok := sh.records[taskID]; ok && !rec.Expired(now) {
		return fmt.Errorf("%w: %s", ErrTaskExists, taskID)
	}
	s.putLocked(sh, domain.TaskRecord{
		TaskID:    taskID,
		State:     domain.RecordPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	})
	return nil
}

// Snapshot implements TaskStore. A missing or expired record is recreated.
func (s *MemoryTaskStore) Snapshot(_ context.Context, taskID string, raw []byte) error {
	if taskID == "" {
		return ErrEmptyTaskID
	}
	now := s.now()
	s.ensureCapacity(now)

	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[taskID]
	if ok && !rec.Expired(now) {
		if rec.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrTaskFinalized, taskID)
		}
	} else {
		rec = domain.TaskRecord{TaskID: taskID, CreatedAt: now}
	}

	rec.State = domain.RecordSnapshot
	rec.RawResponse = raw
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.cfg.TTL)
	s.putLocked(sh, rec)
	return nil
}

// Complete implements TaskStore. A missing or expired record is recreated.
func (s *MemoryTaskStore) Complete(_ context.Context, taskID string, outcome domain.Outcome) error {
	if taskID == "" {
		return ErrEmptyTaskID
	}
	now := s.now()
	s.ensureCapacity(now)

	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	rec, ok := sh.records[taskID]
	if ok && !rec.Expired(now) {
		if rec.IsTerminal() {
			return fmt.Errorf("%w: %s", ErrTaskFinalized, taskID)
		}
	} else {
		rec = domain.TaskRecord{TaskID: taskID, CreatedAt: now}
	}

	rec.State = domain.RecordDone
	rec.Outcome = outcome
	if raw := outcome.RawResponse(); raw != nil {
		rec.RawResponse = raw
	}
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.cfg.TTL)
	s.putLocked(sh, rec)
	return nil
}

// Get implements TaskStore.
func (s *MemoryTaskStore) Get(_ context.Context, taskID string) (domain.TaskRecord, bool) {
	sh := s.shardFor(taskID)
	sh.mu.RLock()
	rec, ok := sh.records[taskID]
	sh.mu.RUnlock()

	if !ok || rec.Expired(s.now()) {
		return domain.TaskRecord{}, false
	}
	return rec, true
}

// Delete implements TaskStore.
func (s *MemoryTaskStore) Delete(_ context.Context, taskID string) {
	sh := s.shardFor(taskID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.records[taskID]; ok {
		delete(sh.records, taskID)
		s.count.Add(-1)
	}
}

// Len implements TaskStore.
func (s *MemoryTaskStore) Len() int {
	return int(s.count.Load())
}

// Sweep removes every record that has expired at the store's current time
// and returns how many were removed.
func (s *MemoryTaskStore) Sweep() int {
	return s.sweep(s.now())
}

func (s *MemoryTaskStore) sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, rec := range sh.records {
			if rec.Expired(now) {
				delete(sh.records, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	s.count.Add(int64(-removed))
	return removed
}

// Close stops the janitor. It is safe to call more than once.
func (s *MemoryTaskStore) Close() {
	s.closeOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

func (s *MemoryTaskStore) janitor(interval time.Duration) {
	defer close(s.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			if removed := s.Sweep(); removed > 0 {
				s.logger.Info("swept expired task records",
					"removed", removed,
					"remaining", s.Len())
			}
		}
	}
}

// putLocked stores rec; the caller holds sh.mu.
func (s *MemoryTaskStore) putLocked(sh *shard, rec domain.TaskRecord) {
	if _, exists := sh.records[rec.TaskID]; !exists {
		s.count.Add(1)
		if s.cfg.MaxEntries > 0 && s.Len() > s.cfg.MaxEntries {
			s.evictOldestLocked(sh, rec.TaskID)
		}
	}
	sh.records[rec.TaskID] = rec
}

// ensureCapacity sweeps expired records when the store is at its cap.
// It must be called without holding any shard lock.
func (s *MemoryTaskStore) ensureCapacity(now time.Time) {
	if s.cfg.MaxEntries <= 0 || s.Len() < s.cfg.MaxEntries {
		return
	}
	if removed := s.sweep(now); removed > 0 {
		s.logger.Info("store at capacity, swept expired task records",
			"removed", removed,
			"max_entries", s.cfg.MaxEntries)
	}
}

// evictOldestLocked drops the least recently updated finished record of sh
// other than keep. Pending and snapshot records belong to running tasks and
// are only evicted when the shard holds nothing else, since dropping them
// frees their task ID for a second claim. Eviction is per shard, so it
// approximates global LRU order.
func (s *MemoryTaskStore) evictOldestLocked(sh *shard, keep string) {
	victim := oldestLocked(sh, keep, true)
	if victim == "" {
		victim = oldestLocked(sh, keep, false)
	}
	if victim == "" {
		return
	}
	state := sh.records[victim].State
	delete(sh.records, victim)
	s.count.Add(-1)
	s.logger.Warn("store over capacity, evicted task record",
		"task_id", victim,
		"state", state,
		"max_entries", s.cfg.MaxEntries)
}

// oldestLocked returns the ID of the least recently updated record of sh
// other than keep, restricted to finished records when doneOnly is set.
func oldestLocked(sh *shard, keep string, doneOnly bool) string {
	var (
		oldestID string
		oldest   time.Time
	)
	for id, rec := range sh.records {
		if id == keep || (doneOnly && !rec.IsTerminal()) {
			continue
		}
		if oldestID == "" || rec.UpdatedAt.Before(oldest) {
			oldestID, oldest = id, rec.UpdatedAt
		}
	}
	return oldestID
}
