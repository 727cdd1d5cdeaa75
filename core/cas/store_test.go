package cas

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srmgate/srmgate/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingRecordStore counts Create calls on top of a MemoryRecordStore.
type countingRecordStore struct {
	*MemoryRecordStore
	creates atomic.Int64
}

func (c *countingRecordStore) Create(ctx context.Context, id int64, payload []byte) error {
	c.creates.Add(1)
	return c.MemoryRecordStore.Create(ctx, id, payload)
}

func TestKeyedHash(t *testing.T) {
	payload := []byte("/C=DE/O=GermanGrid/CN=Alice")

	assert.Equal(t, KeyedHash(0, payload), KeyedHash(0, payload))
	assert.NotEqual(t, KeyedHash(0, payload), KeyedHash(1, payload))
	assert.NotEqual(t, KeyedHash(0, payload), KeyedHash(0, []byte("/C=DE/O=GermanGrid/CN=Bob")))
}

func TestHandleForBytesReturnsCanonicalHandle(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryRecordStore())
	payload := []byte("principal set")

	first, err := store.HandleForBytes(ctx, payload)
	require.NoError(t, err)
	second, err := store.HandleForBytes(ctx, payload)
	require.NoError(t, err)

	assert.Same(t, first, second)

	byID, err := store.HandleForID(ctx, first.ID())
	require.NoError(t, err)
	assert.Same(t, first, byID)

	content, err := store.ReadBytes(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, payload, content)
}

func TestHandleForBytesResolvesCollision(t *testing.T) {
	ctx := context.Background()
	const clash = int64(42)
	hash := func(salt uint32, payload []byte) int64 {
		if salt == 0 {
			return clash
		}
		return KeyedHash(salt, payload)
	}
	records := NewMemoryRecordStore()
	store := NewStore(records, WithHashFunc(hash))

	p1 := []byte("first payload")
	p2 := []byte("second payload")

	h1, err := store.HandleForBytes(ctx, p1)
	require.NoError(t, err)
	h2, err := store.HandleForBytes(ctx, p2)
	require.NoError(t, err)

	assert.Equal(t, clash, h1.ID())
	assert.NotEqual(t, h1.ID(), h2.ID())
	assert.Equal(t, KeyedHash(1, p2), h2.ID())

	c1, err := h1.Bytes(ctx)
	require.NoError(t, err)
	c2, err := h2.Bytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, p1, c1)
	assert.Equal(t, p2, c2)

	// Resolving the same payload again walks the same salts.
	again, err := store.HandleForBytes(ctx, p2)
	require.NoError(t, err)
	assert.Same(t, h2, again)
	assert.Equal(t, 2, records.Len())
}

func TestHandleForBytesExhaustsSalts(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryRecordStore(),
		WithHashFunc(func(uint32, []byte) int64 { return 7 }),
		WithMaxAttempts(3),
	)

	_, err := store.HandleForBytes(ctx, []byte("a"))
	require.NoError(t, err)

	_, err = store.HandleForBytes(ctx, []byte("b"))
	require.ErrorIs(t, err, domain.ErrSaltSpaceExhausted)
}

func TestHandleForIDMissing(t *testing.T) {
	store := NewStore(NewMemoryRecordStore())

	h, err := store.HandleForID(context.Background(), 1234)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestHandleForIDLoadsFromRecordStore(t *testing.T) {
	ctx := context.Background()
	records := NewMemoryRecordStore()
	require.NoError(t, records.Create(ctx, 99, []byte("written elsewhere")))

	store := NewStore(records)
	h, err := store.HandleForID(ctx, 99)
	require.NoError(t, err)
	require.NotNil(t, h)

	content, err := h.Bytes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("written elsewhere"), content)
	assert.Equal(t, 1, store.Stats().CachedValues)
}

func TestGCRetainsLiveHandle(t *testing.T) {
	ctx := context.Background()
	records := NewMemoryRecordStore()
	store := NewStore(records)

	h, err := store.HandleForBytes(ctx, []byte("still in use"))
	require.NoError(t, err)

	runtime.GC()
	deleted, err := store.GC(ctx, []int64{h.ID()})
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Equal(t, 1, records.Len())

	content, err := store.ReadBytes(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, []byte("still in use"), content)
	runtime.KeepAlive(h)
}

// createAndDrop stores payload and returns only the id, so no Handle
// survives the call.
func createAndDrop(t *testing.T, store *Store, payload []byte) int64 {
	t.Helper()
	h, err := store.HandleForBytes(context.Background(), payload)
	require.NoError(t, err)
	return h.ID()
}

func waitUnreachable(t *testing.T, store *Store, id int64) {
	t.Helper()
	for i := 0; i < 20 && store.handles.get(id) != nil; i++ {
		runtime.GC()
	}
	require.Nil(t, store.handles.get(id), "handle %d still reachable", id)
}

func TestGCReclaimsUnreachableHandle(t *testing.T) {
	ctx := context.Background()
	records := NewMemoryRecordStore()
	store := NewStore(records)

	id := createAndDrop(t, store, []byte("abandoned"))
	waitUnreachable(t, store, id)

	deleted, err := store.GC(ctx, []int64{id})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)
	assert.Zero(t, records.Len())

	h, err := store.HandleForID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestGCMixedCandidates(t *testing.T) {
	ctx := context.Background()
	records := NewMemoryRecordStore()
	store := NewStore(records)

	live, err := store.HandleForBytes(ctx, []byte("live"))
	require.NoError(t, err)
	dead := createAndDrop(t, store, []byte("dead"))
	waitUnreachable(t, store, dead)

	deleted, err := store.GC(ctx, []int64{live.ID(), dead, 555})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted, "missing ids are deleted idempotently")
	assert.Equal(t, 1, records.Len())
	runtime.KeepAlive(live)
}

func TestCanonicalEntryEvictedAfterCollection(t *testing.T) {
	store := NewStore(NewMemoryRecordStore())
	id := createAndDrop(t, store, []byte("short lived"))
	waitUnreachable(t, store, id)

	// Cleanups run on their own goroutine.
	require.Eventually(t, func() bool {
		runtime.GC()
		return store.Stats().CanonicalHandles == 0
	}, time.Second, 10*time.Millisecond)
}

func TestReadBytesRecordVanished(t *testing.T) {
	ctx := context.Background()
	records := NewMemoryRecordStore()
	store := NewStore(records)

	h, err := store.HandleForBytes(ctx, []byte("doomed"))
	require.NoError(t, err)

	// Break the invariant behind the store's back.
	store.values.Purge()
	require.NoError(t, records.Delete(ctx, h.ID()))

	_, err = store.ReadBytes(ctx, h)
	require.ErrorIs(t, err, domain.ErrRecordVanished)
}

func TestConcurrentHandleForBytes(t *testing.T) {
	ctx := context.Background()
	records := &countingRecordStore{MemoryRecordStore: NewMemoryRecordStore()}
	store := NewStore(records, WithStripes(4))
	payload := []byte("shared principal set")

	const workers = 32
	var (
		wg      sync.WaitGroup
		handles = make([]*Handle, workers)
		errs    = make([]error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = store.HandleForBytes(ctx, payload)
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		content, err := handles[i].Bytes(ctx)
		require.NoError(t, err)
		assert.Equal(t, payload, content)
		assert.Same(t, handles[0], handles[i])
	}
	assert.Equal(t, int64(1), records.creates.Load())
	assert.Equal(t, 1, records.Len())
}

func TestConcurrentDistinctPayloads(t *testing.T) {
	ctx := context.Background()
	records := NewMemoryRecordStore()
	store := NewStore(records, WithStripes(2))

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf("payload-%d", i%16))
			h, err := store.HandleForBytes(ctx, payload)
			if assert.NoError(t, err) {
				content, err := h.Bytes(ctx)
				assert.NoError(t, err)
				assert.Equal(t, payload, content)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 16, records.Len())
}

// racingRecordStore simulates another front-end creating the row between
// this process's read and create.
type racingRecordStore struct {
	*MemoryRecordStore
	foreign []byte
	raced   bool
}

func (r *racingRecordStore) Create(ctx context.Context, id int64, payload []byte) error {
	if !r.raced {
		r.raced = true
		if err := r.MemoryRecordStore.Create(ctx, id, r.foreign); err != nil {
			return err
		}
	}
	return r.MemoryRecordStore.Create(ctx, id, payload)
}

func TestHandleForBytesLosesCreateRace(t *testing.T) {
	ctx := context.Background()

	t.Run("same content", func(t *testing.T) {
		payload := []byte("identical")
		records := &racingRecordStore{MemoryRecordStore: NewMemoryRecordStore(), foreign: payload}
		store := NewStore(records)

		h, err := store.HandleForBytes(ctx, payload)
		require.NoError(t, err)
		assert.Equal(t, KeyedHash(0, payload), h.ID())
		assert.Equal(t, 1, records.Len())
	})

	t.Run("different content", func(t *testing.T) {
		payload := []byte("mine")
		records := &racingRecordStore{MemoryRecordStore: NewMemoryRecordStore(), foreign: []byte("theirs")}
		store := NewStore(records)

		h, err := store.HandleForBytes(ctx, payload)
		require.NoError(t, err)
		assert.Equal(t, KeyedHash(1, payload), h.ID())

		content, err := h.Bytes(ctx)
		require.NoError(t, err)
		assert.Equal(t, payload, content)
	})
}

type failingRecordStore struct{ err error }

func (f failingRecordStore) Create(context.Context, int64, []byte) error { return f.err }
func (f failingRecordStore) Read(context.Context, int64) ([]byte, error) { return nil, f.err }
func (f failingRecordStore) Delete(context.Context, int64) error         { return f.err }

func TestRecordStoreFailuresAreUnavailable(t *testing.T) {
	ctx := context.Background()
	store := NewStore(failingRecordStore{err: fmt.Errorf("connection refused")})

	_, err := store.HandleForBytes(ctx, []byte("x"))
	require.ErrorIs(t, err, domain.ErrUnavailable)

	_, err = store.HandleForID(ctx, 1)
	require.ErrorIs(t, err, domain.ErrUnavailable)

	deleted, err := store.GC(ctx, []int64{1, 2})
	require.ErrorIs(t, err, domain.ErrUnavailable)
	assert.Zero(t, deleted)
}
