// Package cache provides a size-bounded LRU cache for rendered diagrams,
// with msgpack persistence so a service can restart warm.
package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// formatVersion is bumped whenever the persisted layout changes. Files
// written with another version are ignored on load.
const formatVersion = 1

// Entry is a cached value with its bookkeeping.
type Entry[V any] struct {
	Key        string    `msgpack:"key"`
	Value      V         `msgpack:"value"`
	Size       int       `msgpack:"size"`
	CreatedAt  time.Time `msgpack:"created_at"`
	AccessedAt time.Time `msgpack:"accessed_at"`
}

// Options configures an LRU.
type Options[V any] struct {
	// MaxSize is the maximum number of entries. 0 means unlimited.
	MaxSize int

	// MaxBytes bounds the summed entry sizes. 0 means unlimited.
	MaxBytes int64

	// SizeOf estimates an entry's size in bytes. nil counts every entry as 1.
	SizeOf func(V) int

	// OnEvict is called when an entry is evicted to make room.
	OnEvict func(key string, value V)
}

// LRU is a least-recently-used cache safe for concurrent use.
type LRU[V any] struct {
	mu           sync.Mutex
	items        map[string]*list.Element
	order        *list.List // front is most recently used
	opts         Options[V]
	currentBytes int64
}

// New creates an empty LRU.
func New[V any](opts Options[V]) *LRU[V] {
	return &LRU[V]{
		items: make(map[string]*list.Element),
		order: list.New(),
		opts:  opts,
	}
}

// Key derives a cache key from the given parts. Parts are length-prefixed
// so that ("ab", "c") and ("a", "bc") differ.
func Key(parts ...[]byte) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:", len(p))
		h.Write(p)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	e := el.Value.(*Entry[V])
	e.AccessedAt = time.Now()
	c.order.MoveToFront(el)
	return e.Value, true
}

// Set stores value under key, evicting older entries if over a limit.
func (c *LRU[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.sizeOf(value)
	now := time.Now()

	if el, ok := c.items[key]; ok {
		e := el.Value.(*Entry[V])
		c.currentBytes += int64(size - e.Size)
		e.Value = value
		e.Size = size
		e.AccessedAt = now
		c.order.MoveToFront(el)
	} else {
		e := &Entry[V]{Key: key, Value: value, Size: size, CreatedAt: now, AccessedAt: now}
		c.items[key] = c.order.PushFront(e)
		c.currentBytes += int64(size)
	}
	c.evictIfNeeded()
}

// Delete removes key if present.
func (c *LRU[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
}

// Clear removes all entries.
func (c *LRU[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.currentBytes = 0
}

// Len returns the number of entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// CurrentBytes returns the summed size of all entries.
func (c *LRU[V]) CurrentBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentBytes
}

func (c *LRU[V]) sizeOf(v V) int {
	if c.opts.SizeOf == nil {
		return 1
	}
	return c.opts.SizeOf(v)
}

func (c *LRU[V]) remove(el *list.Element) *Entry[V] {
	e := c.order.Remove(el).(*Entry[V])
	delete(c.items, e.Key)
	c.currentBytes -= int64(e.Size)
	return e
}

func (c *LRU[V]) evictIfNeeded() {
	for c.overLimit() {
		back := c.order.Back()
		if back == nil || back == c.order.Front() {
			// Never evict the entry just written.
			return
		}
		e := c.remove(back)
		if c.opts.OnEvict != nil {
			c.opts.OnEvict(e.Key, e.Value)
		}
	}
}

func (c *LRU[V]) overLimit() bool {
	if c.opts.MaxSize > 0 && c.order.Len() > c.opts.MaxSize {
		return true
	}
	return c.opts.MaxBytes > 0 && c.currentBytes > c.opts.MaxBytes
}

type snapshot[V any] struct {
	Version int        `msgpack:"version"`
	Entries []Entry[V] `msgpack:"entries"`
}

// Save writes all entries, most recently used first, as msgpack.
func (c *LRU[V]) Save(w io.Writer) error {
	c.mu.Lock()
	snap := snapshot[V]{Version: formatVersion, Entries: make([]Entry[V], 0, len(c.items))}
	for el := c.order.Front(); el != nil; el = el.Next() {
		snap.Entries = append(snap.Entries, *el.Value.(*Entry[V]))
	}
	c.mu.Unlock()

	return msgpack.NewEncoder(w).Encode(&snap)
}

// Load replaces the cache contents with entries read from r, keeping their
// recency order and then applying the configured limits.
func (c *LRU[V]) Load(r io.Reader) error {
	var snap snapshot[V]
	if err := msgpack.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode cache: %w", err)
	}
	if snap.Version != formatVersion {
		return fmt.Errorf("unsupported cache version %d", snap.Version)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element, len(snap.Entries))
	c.order.Init()
	c.currentBytes = 0
	for i := range snap.Entries {
		e := snap.Entries[i]
		c.items[e.Key] = c.order.PushBack(&e)
		c.currentBytes += int64(e.Size)
	}
	for c.overLimit() && c.order.Len() > 0 {
		c.remove(c.order.Back())
	}
	return nil
}

// Stats is a point-in-time view of cache usage.
type Stats struct {
	Length       int   `json:"length"`
	CurrentBytes int64 `json:"current_bytes"`
	HitCount     int64   `json:"hit_count"`
	MissCount    int64   `json:"miss_count"`
	HitRate      float64 `json:"hit_rate"`
}

// StatsCache is an LRU that counts hits and misses.
type StatsCache[V any] struct {
	*LRU[V]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewStatsCache creates a StatsCache.
func NewStatsCache[V any](opts Options[V]) *StatsCache[V] {
	return &StatsCache[V]{LRU: New(opts)}
}

// Get looks up key and records the outcome.
func (c *StatsCache[V]) Get(key string) (V, bool) {
	v, ok := c.LRU.Get(key)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return v, ok
}

// Stats returns the current counters. HitRate is hits / lookups, or 0
// before the first lookup.
func (c *StatsCache[V]) Stats() Stats {
	s := Stats{
		Length:       c.Len(),
		CurrentBytes: c.CurrentBytes(),
		HitCount:     c.hits.Load(),
		MissCount:    c.misses.Load(),
	}
	if total := s.HitCount + s.MissCount; total > 0 {
		s.HitRate = float64(s.HitCount) / float64(total)
	}
	return s
}

// Persister is implemented by caches that can be saved and restored.
type Persister interface {
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// PersistToFile saves c to path. The file is written next to its final
// location and renamed into place, so readers never see a partial file.
func PersistToFile(c Persister, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create cache file: %w", err)
	}
	tmp := f.Name()

	if err := c.Save(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}

// LoadFromFile restores c from path. A missing file is not an error.
func LoadFromFile(c Persister, path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open cache file: %w", err)
	}
	defer f.Close()

	return c.Load(f)
}
