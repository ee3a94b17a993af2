// Package testutil provides testing utilities for lsmkit.
//
// This package is intended for use in tests and benchmarks only.
// It provides seeded, reproducible generators for ordered key sets, random
// and compressible payloads, and skewed access patterns.
//
// # Canonical Keys
//
//	keys := testutil.Keys(1000)        // ascending, fixed width
//	key := testutil.Key(42)            // "key-00000042"
//
// # Payloads
//
//	rng := testutil.NewRNG(seed)
//	raw := rng.Bytes(4096)             // incompressible
//	text := rng.CompressibleBytes(4096) // compresses well
//
// # Access Patterns
//
//	i := rng.Zipf(numKeys, 1.2)        // hot-key skew
package testutil
