// Package rotation implements round-robin selection over small value pools.
package rotation

import (
	"strings"
	"sync"
)

// Rotator hands out pool values round-robin. Empty and blank entries
// are dropped at construction. Rotation state is independent per
// Rotator and wraps modulo the pool size. Safe for concurrent use.
type Rotator struct {
	mu     sync.Mutex
	values []string
	idx    int
}

// New builds a Rotator over the non-blank entries of the pool.
func New(pool []string) *Rotator {
	r := &Rotator{}
	for _, v := range pool {
		v = strings.TrimSpace(v)
		if v != "" {
			r.values = append(r.values, v)
		}
	}
	return r
}

// Next returns the next value in the pool, or "" when the pool is empty.
func (r *Rotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return ""
	}
	v := r.values[r.idx]
	r.idx = (r.idx + 1) % len(r.values)
	return v
}

// Size reports how many usable values the pool holds.
func (r *Rotator) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}
