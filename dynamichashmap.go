package dynamichashmap

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gostonefire/dynamichashmap/hashfunc"
	"github.com/gostonefire/dynamichashmap/internal/addrarray"
	"github.com/gostonefire/dynamichashmap/internal/dataarray"
	"github.com/gostonefire/dynamichashmap/internal/model"
	"github.com/gostonefire/dynamichashmap/internal/segment"
)

// DynamicHashMap - A persistent key-value store implemented using Linear Hashing. Its capacity
// grows one bucket at a time as the load factor demands, so there is never a stop the world
// rehash of the whole table.
//
// The key-value pairs of one bucket are stored as a single packed record in the underlying
// data array using the following format, all integers big-endian:
//
//	[count:int32][key-length:int32][key][value-length:int32][value]...
//
// All mutating operations are serialized on an internal writer lock. Get and the iterators
// run without taking that lock.
type DynamicHashMap struct {
	mu       sync.Mutex
	homeDir  string
	closed   atomic.Bool
	hashFunc hashfunc.HashFunction

	addrArray *addrarray.AddressArray
	dataArray *dataarray.DataArray

	loadThreshold  float64
	unitCapacity   int
	level          atomic.Int64
	split          atomic.Int64
	levelCapacity  atomic.Int64
	levelThreshold int64
	loadCount      atomic.Int64
	scn            atomic.Uint64
}

// NewDynamicHashMap - Creates a new store under the given home directory, or opens the one
// already there. The directory is created if missing. When opening an existing store the
// unit capacity and hash function must be the same as when it was created.
//   - homeDir is the directory owning all persistent state of the store
//   - opts is an optional list of configuration options
//
// It returns:
//   - dhm is a pointer to the created instance
//   - err is a standard Go type of error
func NewDynamicHashMap(homeDir string, opts ...Option) (dhm *DynamicHashMap, err error) {
	if homeDir == "" {
		err = fmt.Errorf("home directory can not be empty")
		return
	}

	cfg := defaultConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.initLevel < 0 {
		err = fmt.Errorf("init level must not be negative, got %d", cfg.initLevel)
		return
	}
	if cfg.hashLoadThreshold <= 0 || cfg.hashLoadThreshold > 1 {
		err = fmt.Errorf("hash load threshold must be in (0,1], got %f", cfg.hashLoadThreshold)
		return
	}
	if cfg.segmentCompactFactor < 0 || cfg.segmentCompactFactor >= 1 {
		err = fmt.Errorf("segment compact factor must be in [0,1), got %f", cfg.segmentCompactFactor)
		return
	}
	if cfg.hashFunction == nil {
		cfg.hashFunction = hashfunc.NewFnvHashFunction()
	}

	addrArray, err := addrarray.NewAddressArray(model.AddrConf{
		HomeDir:      homeDir,
		UnitCapacity: cfg.unitCapacity,
		EntrySize:    cfg.entrySize,
		MaxEntries:   cfg.maxEntries,
	})
	if err != nil {
		err = fmt.Errorf("error while creating address array: %s", err)
		return
	}

	// Pre expansion only applies to a store holding no data yet, expanding a populated store
	// would leave its pairs in buckets that no longer match their hash under the new level
	populated := false
	for i := 0; i < addrArray.Capacity() && !populated; i++ {
		populated = addrArray.Get(i) != 0
	}
	if cfg.initLevel > 0 && !populated {
		err = addrArray.ExpandCapacity(cfg.unitCapacity*(1<<cfg.initLevel) - 1)
		if err != nil {
			_ = addrArray.Close()
			return
		}
	}

	segments, err := segment.NewManager(model.SegmentConf{
		HomeDir:       homeDir,
		FileSizeMB:    cfg.segmentFileSizeMB,
		CompactFactor: cfg.segmentCompactFactor,
	})
	if err != nil {
		_ = addrArray.Close()
		err = fmt.Errorf("error while creating segment manager: %s", err)
		return
	}

	dataArray, err := dataarray.NewDataArray(addrArray, segments)
	if err != nil {
		_ = segments.Close()
		_ = addrArray.Close()
		err = fmt.Errorf("error while creating data array: %s", err)
		return
	}

	dhm = &DynamicHashMap{
		homeDir:       homeDir,
		hashFunc:      cfg.hashFunction,
		addrArray:     addrArray,
		dataArray:     dataArray,
		loadThreshold: cfg.hashLoadThreshold,
		unitCapacity:  addrArray.SubArrayLength(),
	}

	dhm.scn.Store(addrArray.HighWaterScn())
	dhm.loadCount.Store(int64(dhm.scan()))

	err = dhm.initLinearHashing()
	if err != nil {
		_ = dhm.Close()
		dhm = nil
		err = fmt.Errorf("error while initializing linear hashing: %s", err)
		return
	}

	zap.L().Info("store opened", zap.String("homeDir", homeDir), zap.String("status", dhm.Status()))

	return
}

// Level - Returns the number of completed capacity doublings
func (D *DynamicHashMap) Level() int {
	return int(D.level.Load())
}

// Split - Returns the index of the next bucket to be split
func (D *DynamicHashMap) Split() int {
	return int(D.split.Load())
}

// Capacity - Returns the total number of addressable buckets
func (D *DynamicHashMap) Capacity() int {
	return D.dataArray.Length()
}

// UnitCapacity - Returns the fixed unit size the bucket space grows in
func (D *DynamicHashMap) UnitCapacity() int {
	return D.unitCapacity
}

// LevelCapacity - Returns the number of buckets addressed at the current level
func (D *DynamicHashMap) LevelCapacity() int {
	return int(D.levelCapacity.Load())
}

// LoadCount - Returns the number of non empty buckets
func (D *DynamicHashMap) LoadCount() int {
	return int(D.loadCount.Load())
}

// LoadFactor - Returns the ratio of non empty buckets to total buckets
func (D *DynamicHashMap) LoadFactor() float64 {
	return float64(D.loadCount.Load()) / float64(D.Capacity())
}

// LoadThreshold - Returns the load factor above which splitting kicks in
func (D *DynamicHashMap) LoadThreshold() float64 {
	return D.loadThreshold
}

// Status - Returns a human readable one line status of the store
func (D *DynamicHashMap) Status() string {
	return fmt.Sprintf("level=%d split=%d capacity=%d loadCount=%d loadFactor=%f",
		D.Level(), D.Split(), D.Capacity(), D.LoadCount(), D.LoadFactor())
}

// Close - Syncs and closes the store. Both the data array and the address array are closed
// even if one of them fails, with the failures combined into one error. Calling Close on an
// already closed store does nothing.
func (D *DynamicHashMap) Close() (err error) {
	D.mu.Lock()
	defer D.mu.Unlock()

	if D.closed.Load() {
		return
	}
	D.closed.Store(true)
	D.loadCount.Store(0)

	err = multierr.Append(err, D.dataArray.Close())
	err = multierr.Append(err, D.addrArray.Close())
	if err != nil {
		err = fmt.Errorf("error while closing store: %s", err)
	}

	return
}

// RemoveFiles - Removes all persistent state of the store from the home directory.
// The store is closed first if still open. The home directory itself is left in place.
func (D *DynamicHashMap) RemoveFiles() (err error) {
	err = D.Close()
	if err != nil {
		return
	}

	// Only try to remove if exists, and are not by accident directories (could happen when testing things out)
	for _, name := range []string{"addr.bin", "addr.rdo"} {
		fileName := filepath.Join(D.homeDir, name)
		if stat, ok := os.Stat(fileName); ok == nil {
			if !stat.IsDir() {
				err = os.Remove(fileName)
				if err != nil {
					err = fmt.Errorf("error while removing address file: %s", err)
					return
				}
			}
		}
	}

	err = os.RemoveAll(filepath.Join(D.homeDir, "segs"))
	if err != nil {
		err = fmt.Errorf("error while removing segs directory: %s", err)
	}

	return
}

// hash - Maps a key to its 64 bit hash value
func (D *DynamicHashMap) hash(key []byte) uint64 {
	return D.hashFunc.Hash(key)
}

// nextScn - Returns the next sequence number. The counter is monotonic and seeded from the
// highest SCN found in the address array at open, so ordering survives restarts even when
// the wall clock doesn't.
func (D *DynamicHashMap) nextScn() uint64 {
	return D.scn.Add(1)
}

// bucketIndex - Maps a hash value to the bucket currently owning it. Buckets below the split
// point have already been redistributed over the doubled capacity of the next level.
func (D *DynamicHashMap) bucketIndex(hashCode uint64) int {
	capacity := uint64(D.levelCapacity.Load())
	index := hashCode % capacity

	if index < uint64(D.split.Load()) {
		index = hashCode % (capacity << 1)
	}

	return int(index)
}

// scan - Counts the non empty buckets in the data array
func (D *DynamicHashMap) scan() (cnt int) {
	for i, n := 0, D.dataArray.Length(); i < n; i++ {
		if D.dataArray.HasData(i) {
			cnt++
		}
	}

	return
}
