package testutil

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
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

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
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

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Bytes returns n random bytes. The result is incompressible, which makes it
// a worst case for block codecs.
func (r *RNG) Bytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	buf := make([]byte, n)
	r.rand.Read(buf)

	return buf
}

// CompressibleBytes returns n bytes drawn from a small alphabet with long
// runs, so block codecs reach a high ratio on it.
func (r *RNG) CompressibleBytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	const alphabet = "abcdef"

	buf := make([]byte, n)
	for i := 0; i < n; {
		c := alphabet[r.rand.Intn(len(alphabet))]
		run := 4 + r.rand.Intn(12)
		for j := 0; j < run && i < n; j++ {
			buf[i] = c
			i++
		}
	}

	return buf
}

// ShuffledKeys returns Keys(n) in a random insertion order.
func (r *RNG) ShuffledKeys(n int) [][]byte {
	keys := Keys(n)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.rand.Shuffle(len(keys), func(i, j int) {
		keys[i], keys[j] = keys[j], keys[i]
	})

	return keys
}

// Zipf returns a Zipfian-distributed value in [0, n).
// s=1.0 gives standard Zipf, s=1.5 gives a heavy tail, which matches how
// hot keys behave in real workloads.
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n <= 1 {
		return 0
	}

	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1
		}
	}

	return n - 1
}

// Key returns the i-th key of the canonical ordered key set. Keys are fixed
// width, so their byte order matches their numeric order.
func Key(i int) []byte {
	return []byte(fmt.Sprintf("key-%08d", i))
}

// Value returns a value paired with Key(i), recognizable in test failures.
func Value(i int) []byte {
	return []byte(fmt.Sprintf("value-%08d", i))
}

// Keys returns the first n canonical keys in ascending order.
func Keys(n int) [][]byte {
	keys := make([][]byte, n)
	for i := range keys {
		keys[i] = Key(i)
	}

	return keys
}
