package dynamichashmap

import (
	"github.com/gostonefire/dynamichashmap/hashfunc"
	"github.com/gostonefire/dynamichashmap/internal/conf"
)

// config - Holds the effective configuration of a DynamicHashMap
type config struct {
	// initLevel pre expands the address array to hold unitCapacity * 2^initLevel buckets
	initLevel int

	// unitCapacity is the sub array length of the address array, must be a power of two
	unitCapacity int

	// entrySize is the redo entry batch size of the address array
	entrySize int

	// maxEntries is the number of flushed redo batches before the address array checkpoints itself
	maxEntries int

	// segmentFileSizeMB is the segment file size in MB
	segmentFileSizeMB int

	// segmentCompactFactor is the segment load factor below which a segment is eligible for compaction
	segmentCompactFactor float64

	// hashLoadThreshold is the hash table load factor above which splitting kicks in
	hashLoadThreshold float64

	// hashFunction maps keys to 64 bit hash values, nil selects the internal FNV-1 function
	hashFunction hashfunc.HashFunction
}

// defaultConfig - The configuration used when no options are given
var defaultConfig = config{
	initLevel:            0,
	unitCapacity:         conf.DefaultUnitCapacity,
	entrySize:            conf.DefaultEntrySize,
	maxEntries:           conf.DefaultMaxEntries,
	segmentFileSizeMB:    conf.DefaultSegmentFileSizeMB,
	segmentCompactFactor: conf.DefaultSegmentCompactFactor,
	hashLoadThreshold:    conf.DefaultHashLoadThreshold,
	hashFunction:         nil,
}

// Option - Function that applies one configuration value to a DynamicHashMap under creation
type Option func(*config)

// WithInitLevel - Pre expands the store to unitCapacity * 2^initLevel buckets at creation.
// Has no effect when opening an already populated store.
func WithInitLevel(initLevel int) Option {
	return func(c *config) {
		c.initLevel = initLevel
	}
}

// WithUnitCapacity - Sets the sub array length of the address array, must be a power of two.
// The value is fixed at store creation and must be the same when reopening.
func WithUnitCapacity(unitCapacity int) Option {
	return func(c *config) {
		c.unitCapacity = unitCapacity
	}
}

// WithEntrySize - Sets the redo entry batch size of the address array
func WithEntrySize(entrySize int) Option {
	return func(c *config) {
		c.entrySize = entrySize
	}
}

// WithMaxEntries - Sets the number of flushed redo batches before the address array checkpoints itself
func WithMaxEntries(maxEntries int) Option {
	return func(c *config) {
		c.maxEntries = maxEntries
	}
}

// WithSegmentFileSizeMB - Sets the segment file size in MB
func WithSegmentFileSizeMB(segmentFileSizeMB int) Option {
	return func(c *config) {
		c.segmentFileSizeMB = segmentFileSizeMB
	}
}

// WithSegmentCompactFactor - Sets the segment load factor below which a segment is eligible for compaction
func WithSegmentCompactFactor(segmentCompactFactor float64) Option {
	return func(c *config) {
		c.segmentCompactFactor = segmentCompactFactor
	}
}

// WithHashLoadThreshold - Sets the hash table load factor above which splitting kicks in.
// The load factor counts non empty buckets, not pairs.
func WithHashLoadThreshold(hashLoadThreshold float64) Option {
	return func(c *config) {
		c.hashLoadThreshold = hashLoadThreshold
	}
}

// WithHashFunction - Supplies a custom hash function following the hashfunc.HashFunction
// interface. The same function must be supplied every time the store is opened.
func WithHashFunction(hashFunction hashfunc.HashFunction) Option {
	return func(c *config) {
		c.hashFunction = hashFunction
	}
}
