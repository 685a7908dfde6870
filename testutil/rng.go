package testutil

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
)

// RNG encapsulates a seeded random number generator. It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// ClassName returns a random fully qualified class name with up to depth
// package segments.
func (r *RNG) ClassName(depth int) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 1 + r.rand.Intn(depth)
	parts := make([]string, 0, n+1)
	for range n {
		parts = append(parts, fmt.Sprintf("pkg%d", r.rand.Intn(4)))
	}
	parts = append(parts, fmt.Sprintf("Class%d", r.rand.Intn(1000)))
	return strings.Join(parts, ".")
}

// ClassNames returns num distinct random class names.
func (r *RNG) ClassNames(num, depth int) []string {
	seen := make(map[string]struct{}, num)
	names := make([]string, 0, num)
	for len(names) < num {
		name := r.ClassName(depth)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
