// Package collection implements ordered, typed maps persisted in an arena
// partition.
//
// A partition holds an append-only log of frames:
//
//	[u32 length][op][uvarint key length][key][value]
//
// where length covers everything after the prefix. Insert and Remove append a
// frame and then repoint the in-memory index, so bytes that a reader or an
// iterator already captured are never overwritten. Reopening a collection on
// an existing partition replays the log.
package collection

import (
	"cmp"
	"encoding/binary"
	"farmvault/internal/arena"
	"fmt"
	"iter"
	"slices"
	"sync"
)

const (
	opPut    byte = 1
	opDelete byte = 2

	lengthPrefix = 4
)

type location struct {
	off int64
	n   int
}

// Pair is one key/value yielded by All.
type Pair[K, V any] struct {
	Key   K
	Value V
}

// Collection is an ordered key to record map stored in one partition.
// Callers always receive freshly decoded values; mutating them has no effect
// until they are inserted again.
type Collection[K cmp.Ordered, V any] struct {
	mu     sync.RWMutex
	name   string
	region *arena.Region
	keys   KeyCodec[K]
	values Codec[V]
	index  map[K]location
	order  []K
}

// Open attaches a collection to region and rebuilds its index from any frames
// already present.
func Open[K cmp.Ordered, V any](name string, region *arena.Region, keys KeyCodec[K], values Codec[V]) (*Collection[K, V], error) {
	c := &Collection[K, V]{
		name:   name,
		region: region,
		keys:   keys,
		values: values,
		index:  make(map[K]location),
	}
	if err := c.replay(); err != nil {
		return nil, err
	}
	return c, nil
}

// Name returns the collection name used in errors and metrics.
func (c *Collection[K, V]) Name() string { return c.name }

// Partition returns the backing partition id.
func (c *Collection[K, V]) Partition() arena.PartitionID { return c.region.ID() }

func (c *Collection[K, V]) replay() error {
	end := c.region.Len()
	var prefix [lengthPrefix]byte
	for off := int64(0); off < end; {
		if _, err := c.region.ReadAt(prefix[:], off); err != nil {
			return fmt.Errorf("collection %s: read frame at %d: %w", c.name, off, err)
		}
		size := int64(binary.BigEndian.Uint32(prefix[:]))
		body := make([]byte, size)
		if _, err := c.region.ReadAt(body, off+lengthPrefix); err != nil {
			return fmt.Errorf("collection %s: truncated frame at %d: %w", c.name, off, err)
		}
		if len(body) < 2 {
			return fmt.Errorf("collection %s: short frame at %d", c.name, off)
		}
		keyLen, n := binary.Uvarint(body[1:])
		if n <= 0 || uint64(len(body)-1-n) < keyLen {
			return fmt.Errorf("collection %s: bad key length at %d", c.name, off)
		}
		keyStart := 1 + n
		k, err := c.keys.DecodeKey(body[keyStart : keyStart+int(keyLen)])
		if err != nil {
			return fmt.Errorf("collection %s: decode key at %d: %w", c.name, off, err)
		}
		valueStart := keyStart + int(keyLen)
		switch body[0] {
		case opPut:
			c.put(k, location{off: off + lengthPrefix + int64(valueStart), n: len(body) - valueStart})
		case opDelete:
			c.drop(k)
		default:
			return fmt.Errorf("collection %s: unknown op %d at %d", c.name, body[0], off)
		}
		off += lengthPrefix + size
	}
	return nil
}

func (c *Collection[K, V]) put(k K, loc location) {
	if _, ok := c.index[k]; !ok {
		i, _ := slices.BinarySearch(c.order, k)
		c.order = slices.Insert(c.order, i, k)
	}
	c.index[k] = loc
}

func (c *Collection[K, V]) drop(k K) {
	if _, ok := c.index[k]; !ok {
		return
	}
	delete(c.index, k)
	if i, found := slices.BinarySearch(c.order, k); found {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

// appendFrame writes one frame and returns where its value bytes start.
func (c *Collection[K, V]) appendFrame(op byte, key, value []byte) (int64, error) {
	var kl [binary.MaxVarintLen64]byte
	kn := binary.PutUvarint(kl[:], uint64(len(key)))
	size := 1 + kn + len(key) + len(value)
	frame := make([]byte, 0, lengthPrefix+size)
	frame = binary.BigEndian.AppendUint32(frame, uint32(size))
	frame = append(frame, op)
	frame = append(frame, kl[:kn]...)
	frame = append(frame, key...)
	frame = append(frame, value...)
	off, err := c.region.Append(frame)
	if err != nil {
		return 0, fmt.Errorf("collection %s: %w", c.name, err)
	}
	return off + int64(lengthPrefix+1+kn+len(key)), nil
}

func (c *Collection[K, V]) load(loc location) (V, error) {
	buf := make([]byte, loc.n)
	if _, err := c.region.ReadAt(buf, loc.off); err != nil {
		var zero V
		return zero, fmt.Errorf("collection %s: read value: %w", c.name, err)
	}
	return c.values.Decode(buf)
}

// Insert stores v under k and returns the value it replaced, if any.
// An encoding larger than the codec bound fails before anything is written.
func (c *Collection[K, V]) Insert(k K, v V) (old V, replaced bool, err error) {
	value, err := c.values.Encode(v)
	if err != nil {
		return old, false, err
	}
	key, err := c.keys.EncodeKey(k)
	if err != nil {
		return old, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if loc, ok := c.index[k]; ok {
		if old, err = c.load(loc); err != nil {
			return old, false, err
		}
		replaced = true
	}
	off, err := c.appendFrame(opPut, key, value)
	if err != nil {
		var zero V
		return zero, false, err
	}
	c.put(k, location{off: off, n: len(value)})
	return old, replaced, nil
}

// Get returns an owned copy of the value stored under k.
func (c *Collection[K, V]) Get(k K) (V, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	loc, ok := c.index[k]
	if !ok {
		var zero V
		return zero, false, nil
	}
	v, err := c.load(loc)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// Contains reports whether k is present without decoding it.
func (c *Collection[K, V]) Contains(k K) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.index[k]
	return ok
}

// Remove deletes k and returns the value it held.
func (c *Collection[K, V]) Remove(k K) (V, bool, error) {
	var zero V
	key, err := c.keys.EncodeKey(k)
	if err != nil {
		return zero, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	loc, ok := c.index[k]
	if !ok {
		return zero, false, nil
	}
	old, err := c.load(loc)
	if err != nil {
		return zero, false, err
	}
	if _, err := c.appendFrame(opDelete, key, nil); err != nil {
		return zero, false, err
	}
	c.drop(k)
	return old, true, nil
}

// Clear removes every key.
func (c *Collection[K, V]) Clear() error {
	for _, k := range c.Keys() {
		if _, _, err := c.Remove(k); err != nil {
			return err
		}
	}
	return nil
}

// Len reports the number of keys.
func (c *Collection[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// Keys returns the keys in ascending order.
func (c *Collection[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.order)
}

// All yields every pair in key order as of the call. Values are decoded
// lazily; writes made during iteration are not observed. A decode failure is
// yielded once and ends the sequence. Calling All again restarts from the
// first key.
func (c *Collection[K, V]) All() iter.Seq2[Pair[K, V], error] {
	c.mu.RLock()
	keys := slices.Clone(c.order)
	locs := make([]location, len(keys))
	for i, k := range keys {
		locs[i] = c.index[k]
	}
	c.mu.RUnlock()
	return func(yield func(Pair[K, V], error) bool) {
		for i, k := range keys {
			v, err := c.load(locs[i])
			if err != nil {
				yield(Pair[K, V]{Key: k}, err)
				return
			}
			if !yield(Pair[K, V]{Key: k, Value: v}, nil) {
				return
			}
		}
	}
}

// Values collects every value in key order.
func (c *Collection[K, V]) Values() ([]V, error) {
	var out []V
	for p, err := range c.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, p.Value)
	}
	return out, nil
}
