package hashfunc

import (
	"hash/fnv"

	"github.com/cespare/xxhash/v2"
	"github.com/twmb/murmur3"
)

// FnvHashFunction - The default hash function, implemented using the 64 bit FNV-1 algorithm from
// the standard library. It gives a good distribution over buckets for short keys, which is the
// typical shape of keys in a key-value store.
type FnvHashFunction struct{}

// NewFnvHashFunction - Returns a pointer to a new FnvHashFunction instance
func NewFnvHashFunction() *FnvHashFunction {
	return &FnvHashFunction{}
}

// Hash - Given key it generates a 64 bit FNV-1 hash value
func (F *FnvHashFunction) Hash(key []byte) uint64 {
	h := fnv.New64()
	_, _ = h.Write(key)
	return h.Sum64()
}

// XXHashFunction - Hash function implemented using xxHash (XXH64). Considerably faster than FNV-1
// on long keys while keeping an equally good distribution.
type XXHashFunction struct{}

// NewXXHashFunction - Returns a pointer to a new XXHashFunction instance
func NewXXHashFunction() *XXHashFunction {
	return &XXHashFunction{}
}

// Hash - Given key it generates a 64 bit XXH64 hash value
func (X *XXHashFunction) Hash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

// Murmur3HashFunction - Hash function implemented using the first 64 bits of the 128 bit Murmur3 sum.
type Murmur3HashFunction struct{}

// NewMurmur3HashFunction - Returns a pointer to a new Murmur3HashFunction instance
func NewMurmur3HashFunction() *Murmur3HashFunction {
	return &Murmur3HashFunction{}
}

// Hash - Given key it generates a 64 bit Murmur3 hash value
func (M *Murmur3HashFunction) Hash(key []byte) uint64 {
	h, _ := murmur3.Sum128(key)
	return h
}
