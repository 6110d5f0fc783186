// Package util contains internal helpers (hashing, sharding, padding).
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

// HashRef hashes an indirect reference (num, gen) with 64-bit FNV-1a.
// The generation lands in the high half so that consecutive object numbers
// of the same generation still spread across shards.
func HashRef(num, gen int) uint64 {
	return Fnv64a(uint64(uint32(num)) | uint64(uint32(gen))<<32)
}

// Fnv64a hashes the 8 little-endian bytes of u without allocating.
func Fnv64a(u uint64) uint64 {
	h := uint64(fnvOffset64)
	for i := 0; i < 8; i++ {
		h ^= uint64(byte(u))
		h *= fnvPrime64
		u >>= 8
	}
	return h
}

const (
	fnvOffset64 = 1469598103934665603
	fnvPrime64  = 1099511628211
)
