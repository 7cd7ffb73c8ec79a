package hashfunc

// HashFunction - Interface that permits an implementation using the DynamicHashMap to supply a custom
// hash function suited for its particular distribution of keys.
type HashFunction interface {
	// Hash - Given key it generates a deterministic 64 bit hash value.
	// The value is used unsigned when mapped to a bucket, hence there is no requirement on the
	// distribution of the top bit.
	Hash(key []byte) uint64
}
