// Package cas implements a content-addressed byte store on top of a
// domain.RecordStore.
//
// A payload is stored under an id derived from a keyed hash of its bytes, so
// identical payloads written by any process sharing the record table end up
// in the same row. Callers hold *Handle values; as long as a Handle is
// reachable its row is never removed by GC.
//
// # Locking
//
// Every decision about one id (does the row exist, which Handle is
// canonical, may the row be deleted) is taken under that id's stripe lock.
// Creating a row and registering its Handle happen under the same lock that
// GC takes before deleting, so "handle exists ⇒ row exists" holds without a
// global lock.
//
// # Caches
//
// The value cache keeps recently used payloads and may drop them at any
// time. The canonical handle registry holds weak pointers and drops an entry
// only when its Handle is collected; it is what GC consults.
package cas

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/srmgate/srmgate/core/domain"
	"github.com/srmgate/srmgate/core/logger"
	"github.com/srmgate/srmgate/core/telemetry"
	"go.uber.org/zap"
)

const (
	DefaultCacheSize   = 4096
	DefaultCacheTTL    = 10 * time.Minute
	DefaultStripes     = 1024
	DefaultMaxAttempts = 64
)

// Handle is an in-process reference to a stored record. Handles are
// canonical: while one is reachable, every lookup of its id returns that
// same instance.
type Handle struct {
	id    int64
	store *Store
}

// ID returns the record id.
func (h *Handle) ID() int64 { return h.id }

// Bytes returns the record payload.
func (h *Handle) Bytes(ctx context.Context) ([]byte, error) {
	return h.store.ReadBytes(ctx, h)
}

func (h *Handle) String() string { return fmt.Sprintf("record:%d", h.id) }

// Stats is a snapshot of the store's in-memory state.
type Stats struct {
	CachedValues     int `json:"cached_values"`
	CanonicalHandles int `json:"canonical_handles"`
}

// Store is the content-addressed store.
type Store struct {
	records     domain.RecordStore
	hash        HashFunc
	locks       *stripedLocks
	values      *expirable.LRU[int64, []byte]
	handles     *canonicalHandles
	maxAttempts int
	log         *zap.Logger
	metrics     *telemetry.Provider

	cacheSize int
	cacheTTL  time.Duration
	stripes   int
}

// Option configures a Store.
type Option func(*Store)

// WithHashFunc replaces KeyedHash.
func WithHashFunc(f HashFunc) Option {
	return func(s *Store) { s.hash = f }
}

// WithCache sets the value cache bounds.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Store) {
		s.cacheSize = size
		s.cacheTTL = ttl
	}
}

// WithStripes sets the number of lock stripes, rounded up to a power of two.
func WithStripes(n int) Option {
	return func(s *Store) { s.stripes = n }
}

// WithMaxAttempts bounds the salts tried by HandleForBytes.
func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithTelemetry sets the metrics provider.
func WithTelemetry(p *telemetry.Provider) Option {
	return func(s *Store) { s.metrics = p }
}

// NewStore creates a Store backed by records.
func NewStore(records domain.RecordStore, opts ...Option) *Store {
	s := &Store{
		records:     records,
		hash:        KeyedHash,
		maxAttempts: DefaultMaxAttempts,
		cacheSize:   DefaultCacheSize,
		cacheTTL:    DefaultCacheTTL,
		stripes:     DefaultStripes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get()
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = DefaultMaxAttempts
	}
	if s.cacheSize <= 0 {
		s.cacheSize = DefaultCacheSize
	}
	if s.stripes <= 0 {
		s.stripes = DefaultStripes
	}
	s.locks = newStripedLocks(s.stripes)
	s.values = expirable.NewLRU[int64, []byte](s.cacheSize, nil, s.cacheTTL)
	s.handles = newCanonicalHandles()
	return s
}

// HandleForID returns the canonical Handle for id, or nil if no record
// exists under id.
func (s *Store) HandleForID(ctx context.Context, id int64) (*Handle, error) {
	mu := s.locks.lock(id)
	defer mu.Unlock()

	if h := s.handles.get(id); h != nil {
		return h, nil
	}

	payload, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	return s.canonical(id), nil
}

// HandleForBytes returns a Handle for a record whose content equals payload,
// creating the record if no existing one matches.
func (s *Store) HandleForBytes(ctx context.Context, payload []byte) (*Handle, error) {
	for salt := 0; salt < s.maxAttempts; salt++ {
		id := s.hash(uint32(salt), payload)
		h, err := s.claim(ctx, id, payload)
		if err != nil {
			return nil, err
		}
		if h != nil {
			return h, nil
		}
		s.metrics.RecordCollision(ctx)
		s.log.Debug("record id collision, re-salting",
			zap.Int64("id", id),
			zap.Int("salt", salt),
		)
	}

	s.log.Error("exhausted salts for payload",
		zap.Int("attempts", s.maxAttempts),
		zap.Int("size", len(payload)),
	)
	return nil, fmt.Errorf("cas: %d attempts: %w", s.maxAttempts, domain.ErrSaltSpaceExhausted)
}

// claim tries to bind payload to id. It returns nil without error when id
// already holds different content.
func (s *Store) claim(ctx context.Context, id int64, payload []byte) (*Handle, error) {
	mu := s.locks.lock(id)
	defer mu.Unlock()

	existing, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		stored := append([]byte{}, payload...)
		if err := s.records.Create(ctx, id, stored); err != nil {
			// Another process may have created the row first.
			existing, rerr := s.records.Read(ctx, id)
			if rerr != nil || existing == nil {
				return nil, fmt.Errorf("cas: create record %d: %w: %w", id, domain.ErrUnavailable, err)
			}
			s.values.Add(id, existing)
			if !bytes.Equal(existing, payload) {
				return nil, nil
			}
			return s.canonical(id), nil
		}
		s.values.Add(id, stored)
		s.log.Debug("created record", zap.Int64("id", id), zap.Int("size", len(stored)))
		return s.canonical(id), nil
	}

	if !bytes.Equal(existing, payload) {
		return nil, nil
	}
	return s.canonical(id), nil
}

// ReadBytes returns the payload of the record h refers to.
func (s *Store) ReadBytes(ctx context.Context, h *Handle) ([]byte, error) {
	payload, err := s.load(ctx, h.id)
	if err != nil {
		return nil, err
	}
	if payload == nil {
		// A live handle guarantees its row; reaching this point means the
		// stripe lock discipline was broken somewhere.
		s.log.DPanic("record vanished under a live handle", zap.Int64("id", h.id))
		return nil, fmt.Errorf("cas: record %d: %w", h.id, domain.ErrRecordVanished)
	}
	return bytes.Clone(payload), nil
}

// GC deletes the records for ids that have no reachable Handle in this
// process. The caller guarantees that no durable state references them. It
// returns the number of records deleted.
func (s *Store) GC(ctx context.Context, ids []int64) (int, error) {
	var (
		deleted int
		result  *multierror.Error
	)
	for _, id := range ids {
		ok, err := s.collect(ctx, id)
		switch {
		case err != nil:
			s.metrics.RecordGC(ctx, "failed")
			result = multierror.Append(result, err)
		case ok:
			s.metrics.RecordGC(ctx, "deleted")
			deleted++
		default:
			s.metrics.RecordGC(ctx, "retained")
		}
	}
	if deleted > 0 {
		s.log.Info("garbage collected records",
			zap.Int("deleted", deleted),
			zap.Int("candidates", len(ids)),
		)
	}
	return deleted, result.ErrorOrNil()
}

func (s *Store) collect(ctx context.Context, id int64) (bool, error) {
	mu := s.locks.lock(id)
	defer mu.Unlock()

	if s.handles.get(id) != nil {
		return false, nil
	}
	s.values.Remove(id)
	if err := s.records.Delete(ctx, id); err != nil {
		return false, fmt.Errorf("cas: delete record %d: %w: %w", id, domain.ErrUnavailable, err)
	}
	return true, nil
}

// Stats returns a snapshot of the in-memory caches.
func (s *Store) Stats() Stats {
	return Stats{
		CachedValues:     s.values.Len(),
		CanonicalHandles: s.handles.len(),
	}
}

// load returns the payload for id from the value cache or the record store.
// The caller holds the stripe lock for id, except ReadBytes whose live
// handle already pins the row.
func (s *Store) load(ctx context.Context, id int64) ([]byte, error) {
	if payload, ok := s.values.Get(id); ok {
		s.metrics.RecordLookup(ctx, true)
		return payload, nil
	}
	s.metrics.RecordLookup(ctx, false)

	payload, err := s.records.Read(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cas: read record %d: %w: %w", id, domain.ErrUnavailable, err)
	}
	if payload != nil {
		s.values.Add(id, payload)
	}
	return payload, nil
}

// canonical returns the registered Handle for id, registering a new one if
// none is reachable. The caller holds the stripe lock and has verified that
// the row exists.
func (s *Store) canonical(id int64) *Handle {
	if h := s.handles.get(id); h != nil {
		return h
	}
	h := &Handle{id: id, store: s}
	s.handles.put(h)
	return h
}
