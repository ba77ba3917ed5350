// Package dedup tracks probe keys so no (endpoint, parameter, payload)
// combination is sent twice.
package dedup

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// Deduplicator is a bloom-filter-fronted exact set. The filter rejects the
// common miss cheaply; the map settles false positives.
type Deduplicator struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
	exact  map[string]struct{}
	count  int
	fpRate float64
}

// New creates a deduplicator sized for the estimated number of keys.
func New(estimatedItems int) *Deduplicator {
	if estimatedItems < 1000 {
		estimatedItems = 1000
	}

	fpRate := 0.001

	return &Deduplicator{
		filter: bloom.NewWithEstimates(uint(estimatedItems), fpRate),
		exact:  make(map[string]struct{}),
		fpRate: fpRate,
	}
}

// Add records a key.
func (d *Deduplicator) Add(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.exact[key]; !exists {
		d.filter.AddString(key)
		d.exact[key] = struct{}{}
		d.count++
	}
}

// AddIfNew records a key and reports whether it was new.
func (d *Deduplicator) AddIfNew(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.exact[key]; exists {
		return false
	}
	d.filter.AddString(key)
	d.exact[key] = struct{}{}
	d.count++
	return true
}

// HasSeen checks if a key was recorded before.
func (d *Deduplicator) HasSeen(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.filter.TestString(key) {
		return false
	}

	_, exists := d.exact[key]
	return exists
}

// Count returns the number of unique keys seen.
func (d *Deduplicator) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.count
}

// Reset clears the deduplicator.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.filter.ClearAll()
	d.exact = make(map[string]struct{})
	d.count = 0
}
