// Copyright 2026 The Jubako Authors
// SPDX-License-Identifier: Apache-2.0

package content

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ClusterKey identifies one decompressed cluster across every content
// pack a reader has open.
type ClusterKey struct {
	PackUUID   uuid.UUID
	ClusterIdx uint32
}

// clusterEntry holds one cache slot. ready is closed once decode (the
// background decompression) has published data (or err). refCount
// tracks outstanding [Handle]s; it is not required for memory safety
// (Go's garbage collector already keeps data alive for any holder —
// "shared ownership, lifetime = longest holder" per spec §4.7 comes
// for free here) but it records the invariant the spec names and lets
// [Cache.Stats] report live readers.
type clusterEntry struct {
	data     []byte
	err      error
	ready    chan struct{}
	size     int64
	refCount int32
	elem     *list.Element
}

// Cache is a bounded LRU of decompressed cluster buffers, shared by a
// reader across every content pack it has open. A miss triggers a
// single background decode (spec §4.7's "enqueue a full-cluster
// decompression on a background worker"); concurrent [Cache.Acquire]
// calls for the same key join the same in-flight decode rather than
// decompressing twice.
type Cache struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	entries  map[ClusterKey]*clusterEntry
	order    *list.List // front = most recently used
}

// NewCache creates a cache bounded to capacityBytes of decompressed
// cluster data. A non-positive capacity disables eviction (every
// decoded cluster is retained).
func NewCache(capacityBytes int64) *Cache {
	return &Cache{
		capacity: capacityBytes,
		entries:  make(map[ClusterKey]*clusterEntry),
		order:    list.New(),
	}
}

// Handle is a caller's reference-counted hold on one cached cluster's
// decompressed bytes. Call [Handle.Release] when done.
type Handle struct {
	cache *Cache
	key   ClusterKey
	entry *clusterEntry
}

// Bytes returns the cluster's full decompressed stream.
func (h *Handle) Bytes() []byte {
	return h.entry.data
}

// Release drops this handle's hold on the cluster. It does not free
// memory directly (the Go runtime does that once every holder,
// including the cache's own LRU entry if still present, has let go);
// it only decrements the live-reader count used by [Cache.Stats].
func (h *Handle) Release() {
	atomic.AddInt32(&h.entry.refCount, -1)
}

// Acquire returns the decompressed bytes for key, decoding via decode
// on a cache miss. Concurrent callers racing on the same key share one
// decode call. The returned [Handle] must be released by the caller.
func (c *Cache) Acquire(key ClusterKey, decode func() ([]byte, error)) (*Handle, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.order.MoveToFront(e.elem)
		atomic.AddInt32(&e.refCount, 1)
		c.mu.Unlock()
		<-e.ready
		if e.err != nil {
			atomic.AddInt32(&e.refCount, -1)
			return nil, e.err
		}
		return &Handle{cache: c, key: key, entry: e}, nil
	}

	e := &clusterEntry{ready: make(chan struct{}), refCount: 1}
	e.elem = c.order.PushFront(key)
	c.entries[key] = e
	c.mu.Unlock()

	// Decode runs synchronously from the caller's perspective when
	// there is exactly one caller; the background-worker shape (spec
	// §4.7) is realized by every *other* concurrent Acquire for the
	// same key blocking on e.ready instead of redoing the decode.
	go func() {
		data, err := decode()
		e.data = data
		e.err = err
		if err == nil {
			e.size = int64(len(data))
		}

		c.mu.Lock()
		if err != nil {
			delete(c.entries, key)
			c.order.Remove(e.elem)
		} else {
			c.size += e.size
			c.evictLocked()
		}
		c.mu.Unlock()
		close(e.ready)
	}()

	<-e.ready
	if e.err != nil {
		atomic.AddInt32(&e.refCount, -1)
		return nil, e.err
	}
	return &Handle{cache: c, key: key, entry: e}, nil
}

// evictLocked drops least-recently-used entries with no outstanding
// handles until the cache is back under capacity, or no evictable
// entry remains. Must be called with c.mu held.
func (c *Cache) evictLocked() {
	if c.capacity <= 0 {
		return
	}
	elem := c.order.Back()
	for c.size > c.capacity && elem != nil {
		prev := elem.Prev()
		key := elem.Value.(ClusterKey)
		e := c.entries[key]
		if e != nil && atomic.LoadInt32(&e.refCount) == 0 {
			delete(c.entries, key)
			c.order.Remove(elem)
			c.size -= e.size
		}
		elem = prev
	}
}

// Stats reports the cache's current occupancy.
type Stats struct {
	Entries  int
	Bytes    int64
	Capacity int64
}

// Stats returns the cache's current utilization.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Entries: len(c.entries), Bytes: c.size, Capacity: c.capacity}
}
