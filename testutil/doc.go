// Package testutil provides testing utilities for docstash.
//
// This package is intended for use in tests and benchmarks only.
// It provides a seeded, thread-safe RNG with generators for random arrays
// and documents.
//
// # Random Arrays
//
//	rng := testutil.NewRNG(seed)
//	arr := rng.Float64Array(100, 100) // standard normal
//	any := rng.Array()                // random dtype and shape
//
// # Random Documents
//
//	doc := rng.Document(3) // nested maps up to depth 3, some arrays
package testutil
