package cas

import "sync"

// stripedLocks approximates one mutex per record id with a fixed table.
// Two ids sharing a stripe serialize against each other; that only costs
// throughput, never correctness.
type stripedLocks struct {
	stripes []sync.Mutex
	mask    uint64
}

func newStripedLocks(n int) *stripedLocks {
	size := 1
	for size < n {
		size <<= 1
	}
	return &stripedLocks{
		stripes: make([]sync.Mutex, size),
		mask:    uint64(size - 1),
	}
}

// lock acquires the stripe for id and returns it for unlocking.
func (l *stripedLocks) lock(id int64) *sync.Mutex {
	m := &l.stripes[mix(uint64(id))&l.mask]
	m.Lock()
	return m
}

// mix is the splitmix64 finalizer. Ids are already hash outputs, but ids
// handed in by callers need not be.
func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}
