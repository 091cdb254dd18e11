package solver

import (
	crand "crypto/rand"
	"encoding/binary"
	"math/rand"
)

// Deterministic RNG plumbing. Every randomized stage derives its generator
// from the request seed through splitmix64, so RANSAC iteration i always
// sees the same subsequence no matter how iterations are partitioned across
// workers, and bootstrap sample j is reproducible independently of sample
// ordering. No process-global RNG is ever touched.

// Domain-separation constants for derived seed streams.
const (
	seedDomainRansac    = 0x52414e53414353a1
	seedDomainBootstrap = 0x424f4f5453545241
)

// splitmix64 is the canonical 64-bit mix function; successive applications
// of the underlying increment produce well-distributed, independent seeds.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// deriveSeed produces the seed for one (domain, index) stream of a run.
func deriveSeed(base uint64, domain uint64, index uint64) uint64 {
	return splitmix64(splitmix64(base^domain) + index)
}

// newRand builds a generator from a derived seed.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewSource(int64(seed)))
}

// freshSeed draws a non-reproducible seed for requests that supply none.
// Callers surface WarnUnseeded so the nondeterminism is visible.
func freshSeed() uint64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		// If the system entropy source is unavailable, fall back to a
		// constant; the run stays valid, just trivially reproducible.
		return 0x9e3779b97f4a7c15
	}
	return binary.LittleEndian.Uint64(b[:])
}

// sampleIndices draws k distinct indices from [0, n) using a partial
// Fisher-Yates shuffle over a scratch slice.
func sampleIndices(rng *rand.Rand, scratch []int, k int) []int {
	n := len(scratch)
	for i := range scratch {
		scratch[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.Intn(n-i)
		scratch[i], scratch[j] = scratch[j], scratch[i]
	}
	return scratch[:k]
}
