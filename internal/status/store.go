// Package status keeps the job records of in-flight and recently
// finished analyses. Entries expire passively: there is no sweeper
// goroutine, an expired record is treated as absent on the next read
// and removed at that moment. An expired job and a job that never
// existed are indistinguishable on purpose.
package status

import (
	"sync"
	"time"

	"github.com/finchlyline/relsleuth/internal/model"
)

// DefaultTTL is measured from the last write of a record.
const DefaultTTL = 24 * time.Hour

type entry struct {
	job     model.AnalysisJob
	touched time.Time
}

// Store is safe for concurrent use by the lifecycle manager's
// background tasks and the request handlers.
type Store struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock replaces the time source. For unit testing only.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		ttl:     DefaultTTL,
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put stores a snapshot of job under id and resets its time-to-live.
func (s *Store) Put(id string, job model.AnalysisJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = entry{job: job.Clone(), touched: s.now()}
}

// Get returns a snapshot of the record, or false when the id is
// unknown or its record expired. A miss is a normal outcome, not an
// error.
func (s *Store) Get(id string) (model.AnalysisJob, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	expired := ok && s.expired(e)
	s.mu.RUnlock()

	if !ok {
		return model.AnalysisJob{}, false
	}
	if expired {
		s.evict(id)
		return model.AnalysisJob{}, false
	}
	return e.job.Clone(), true
}

// Remove deletes the record if present.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

// Size counts live records, purging any expired ones it scans over.
func (s *Store) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.entries {
		if s.expired(e) {
			delete(s.entries, id)
		}
	}
	return len(s.entries)
}

func (s *Store) expired(e entry) bool {
	return s.now().Sub(e.touched) >= s.ttl
}

// evict drops the id only when it is still expired, so a concurrent
// Put between the read and this write wins.
func (s *Store) evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok && s.expired(e) {
		delete(s.entries, id)
	}
}
