// Package locks provides a fixed-size striped mutex table for
// serializing work keyed by string IDs. Memory use is constant no matter
// how many keys pass through the process.
package locks

import (
	"hash/fnv"
	"sync"
)

const stripeCount = 256

// Striped maps each key onto one of a fixed set of mutexes. Distinct
// keys may share a stripe, which costs contention, never correctness.
// The zero value is ready to use.
type Striped struct {
	stripes [stripeCount]sync.Mutex
}

// Lock acquires the stripe for key and returns its unlock func.
func (s *Striped) Lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &s.stripes[h.Sum32()%stripeCount]
	mu.Lock()
	return mu.Unlock
}
