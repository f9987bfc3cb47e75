// Package arena owns one growable linear byte arena and carves it into
// partitions that grow independently of each other.
//
// Space is handed out in fixed-size buckets. A partition is an ordered list of
// bucket indices plus a logical length; the arena itself only ever grows and
// never compacts or reuses a bucket. Partition ids are part of the persisted
// layout: pointing a new record type at an id that already holds data will
// reinterpret those bytes.
package arena

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
)

// PartitionID names a partition. Ids are stable for the lifetime of a schema.
type PartitionID uint8

// DefaultBucketSize is the allocation unit used when Options.BucketSize is zero.
const DefaultBucketSize = 64 << 10

// ErrOutOfSpace is returned when growing a partition would exceed Options.MaxBytes.
var ErrOutOfSpace = errors.New("arena: out of backing storage")

// Options configures a Manager.
type Options struct {
	// BucketSize is the allocation unit in bytes.
	BucketSize int
	// MaxBytes caps the arena. Zero means unbounded. Only whole buckets fit
	// under the cap, so a cap below BucketSize admits no data.
	MaxBytes int64
}

type extent struct {
	buckets []uint32
	length  int64
}

// Manager hands out partitions backed by a single byte arena.
type Manager struct {
	mu         sync.RWMutex
	bucketSize int
	bounded    bool
	maxBuckets int
	mem        []byte
	table      map[PartitionID]*extent
}

// New returns an empty arena.
func New(opts Options) *Manager {
	size := opts.BucketSize
	if size <= 0 {
		size = DefaultBucketSize
	}
	m := &Manager{bucketSize: size, table: make(map[PartitionID]*extent)}
	if opts.MaxBytes > 0 {
		m.bounded = true
		m.maxBuckets = int(opts.MaxBytes / int64(size))
	}
	return m
}

// Partition returns the region for id. The region starts empty on first use.
func (m *Manager) Partition(id PartitionID) *Region {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.table[id]; !ok {
		m.table[id] = &extent{}
	}
	return &Region{m: m, id: id}
}

// BucketSize reports the allocation unit.
func (m *Manager) BucketSize() int { return m.bucketSize }

// Size reports the number of arena bytes handed out so far.
func (m *Manager) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.mem))
}

// Usage reports the logical length of every known partition.
func (m *Manager) Usage() map[PartitionID]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[PartitionID]int64, len(m.table))
	for id, ext := range m.table {
		out[id] = ext.length
	}
	return out
}

// Partitions lists known partition ids in ascending order.
func (m *Manager) Partitions() []PartitionID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]PartitionID, 0, len(m.table))
	for id := range m.table {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// reserve makes sure ext has capacity for size bytes. Nothing changes when the
// arena cannot supply the missing buckets.
func (m *Manager) reserve(ext *extent, size int64) error {
	need := int((size + int64(m.bucketSize) - 1) / int64(m.bucketSize))
	missing := need - len(ext.buckets)
	if missing <= 0 {
		return nil
	}
	total := len(m.mem) / m.bucketSize
	if m.bounded && total+missing > m.maxBuckets {
		return fmt.Errorf("%w: need %d more buckets, %d of %d in use", ErrOutOfSpace, missing, total, m.maxBuckets)
	}
	m.mem = append(m.mem, make([]byte, missing*m.bucketSize)...)
	for i := 0; i < missing; i++ {
		ext.buckets = append(ext.buckets, uint32(total+i))
	}
	return nil
}

// copyOut and copyIn walk the bucket list of ext; callers hold the lock and
// have already bounds-checked off and len(p).
func (m *Manager) copyOut(ext *extent, p []byte, off int64) {
	for done := 0; done < len(p); {
		pos := off + int64(done)
		bucket := ext.buckets[pos/int64(m.bucketSize)]
		inner := int(pos % int64(m.bucketSize))
		base := int(bucket)*m.bucketSize + inner
		done += copy(p[done:], m.mem[base:base+m.bucketSize-inner])
	}
}

func (m *Manager) copyIn(ext *extent, p []byte, off int64) {
	for done := 0; done < len(p); {
		pos := off + int64(done)
		bucket := ext.buckets[pos/int64(m.bucketSize)]
		inner := int(pos % int64(m.bucketSize))
		base := int(bucket)*m.bucketSize + inner
		done += copy(m.mem[base:base+m.bucketSize-inner], p[done:])
	}
}

// Region is one partition of the arena. It implements io.ReaderAt and io.WriterAt.
type Region struct {
	m  *Manager
	id PartitionID
}

// ID returns the partition id.
func (r *Region) ID() PartitionID { return r.id }

// Len returns the logical length of the partition.
func (r *Region) Len() int64 {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.m.table[r.id].length
}

// ReadAt reads len(p) bytes at off. Reads past Len return io.EOF.
func (r *Region) ReadAt(p []byte, off int64) (int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	ext := r.m.table[r.id]
	if off < 0 {
		return 0, fmt.Errorf("arena: negative offset %d", off)
	}
	if off >= ext.length {
		return 0, io.EOF
	}
	n := len(p)
	if avail := ext.length - off; int64(n) > avail {
		n = int(avail)
	}
	r.m.copyOut(ext, p[:n], off)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// WriteAt writes p at off, growing the partition when needed.
func (r *Region) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("arena: negative offset %d", off)
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ext := r.m.table[r.id]
	end := off + int64(len(p))
	if err := r.m.reserve(ext, end); err != nil {
		return 0, err
	}
	r.m.copyIn(ext, p, off)
	if end > ext.length {
		ext.length = end
	}
	return len(p), nil
}

// Append writes p after the current end and returns the offset it landed at.
func (r *Region) Append(p []byte) (int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ext := r.m.table[r.id]
	off := ext.length
	if err := r.m.reserve(ext, off+int64(len(p))); err != nil {
		return 0, err
	}
	r.m.copyIn(ext, p, off)
	ext.length = off + int64(len(p))
	return off, nil
}
