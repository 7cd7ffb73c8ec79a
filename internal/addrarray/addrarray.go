package addrarray

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/gostonefire/dynamichashmap/internal/model"
	"github.com/gostonefire/dynamichashmap/internal/utils"
)

// AddressArray - Represents a dynamic array of 64 bit locators, one per bucket.
// The array grows in units of a fixed sub array length and is persisted through a checkpoint
// file together with a redo log holding updates made since the last checkpoint.
//
// Reads through Get are safe against one concurrent writer. Writers are expected to be
// serialized by the owning store.
type AddressArray struct {
	homeDir      string
	chkFileName  string
	redoFileName string
	redoFile     *os.File
	unitCapacity int
	entrySize    int
	maxEntries   int

	subs         atomic.Pointer[[][]atomic.Uint64]
	capacity     atomic.Int64
	highWaterScn uint64

	pending        []redoEntry
	flushedBatches int
}

// redoEntry - One redo log entry recording a locator update
type redoEntry struct {
	index   int64
	locator uint64
	scn     uint64
}

// NewAddressArray - Returns a pointer to a new AddressArray instance. If checkpoint and redo
// files already exist under the home directory the array state is restored from them, otherwise
// new files holding one empty unit are created.
//   - addrConf is a model.AddrConf struct providing configuration parameters affecting file creation and processing
//
// It returns:
//   - addrArray which is a pointer to the created instance
//   - err which is a standard Go type of error
func NewAddressArray(addrConf model.AddrConf) (addrArray *AddressArray, err error) {
	if !utils.IsPowerOfTwo(addrConf.UnitCapacity) {
		err = fmt.Errorf("unit capacity must be a power of two, got %d", addrConf.UnitCapacity)
		return
	}
	if addrConf.EntrySize <= 0 || addrConf.MaxEntries <= 0 {
		err = fmt.Errorf("entry size and max entries must be positive, got %d and %d", addrConf.EntrySize, addrConf.MaxEntries)
		return
	}

	addrArray = &AddressArray{
		homeDir:      addrConf.HomeDir,
		chkFileName:  filepath.Join(addrConf.HomeDir, "addr.bin"),
		redoFileName: filepath.Join(addrConf.HomeDir, "addr.rdo"),
		unitCapacity: addrConf.UnitCapacity,
		entrySize:    addrConf.EntrySize,
		maxEntries:   addrConf.MaxEntries,
		pending:      make([]redoEntry, 0, addrConf.EntrySize),
	}

	subs := make([][]atomic.Uint64, 0)
	addrArray.subs.Store(&subs)

	if _, ok := os.Stat(addrArray.chkFileName); ok == nil {
		err = addrArray.openExisting()
	} else {
		err = addrArray.createNew()
	}
	if err != nil {
		addrArray = nil
	}

	return
}

// Get - Returns the locator stored at the given index, or zero if the index is beyond the
// current capacity. Safe to call without holding any lock.
func (A *AddressArray) Get(index int) (locator uint64) {
	if int64(index) >= A.capacity.Load() {
		return
	}

	subs := *A.subs.Load()
	locator = subs[index/A.unitCapacity][index%A.unitCapacity].Load()

	return
}

// Set - Stores a locator at the given index and records the update in the redo log.
// A full redo batch is flushed to file, and after the configured number of flushed batches
// the whole array is checkpointed.
//   - index is the bucket index, it must be below the current capacity
//   - locator is the 64 bit locator value, zero meaning no data
//   - scn is the sequence number of the write
func (A *AddressArray) Set(index int, locator uint64, scn uint64) (err error) {
	if int64(index) >= A.capacity.Load() {
		err = fmt.Errorf("index %d is out of range for capacity %d", index, A.capacity.Load())
		return
	}

	subs := *A.subs.Load()
	subs[index/A.unitCapacity][index%A.unitCapacity].Store(locator)

	if scn > A.highWaterScn {
		A.highWaterScn = scn
	}

	A.pending = append(A.pending, redoEntry{index: int64(index), locator: locator, scn: scn})
	if len(A.pending) >= A.entrySize {
		err = A.flushBatch()
		if err != nil {
			return
		}
	}

	if A.flushedBatches >= A.maxEntries {
		err = A.Sync()
	}

	return
}

// ExpandCapacity - Grows the array so that the given index becomes addressable. Growth happens
// in whole units, newly added locators are zero. Does nothing if the index is already covered.
func (A *AddressArray) ExpandCapacity(index int) (err error) {
	if int64(index) < A.capacity.Load() {
		return
	}

	oldSubs := *A.subs.Load()
	newSubs := make([][]atomic.Uint64, len(oldSubs), len(oldSubs)+1)
	copy(newSubs, oldSubs)

	for int64(index) >= int64(len(newSubs)*A.unitCapacity) {
		newSubs = append(newSubs, make([]atomic.Uint64, A.unitCapacity))
	}

	// Publish the grown directory before the new capacity so concurrent readers never
	// index past the directory.
	A.subs.Store(&newSubs)
	A.capacity.Store(int64(len(newSubs) * A.unitCapacity))

	return
}

// Capacity - Returns the current total number of addressable locators
func (A *AddressArray) Capacity() int {
	return int(A.capacity.Load())
}

// SubArrayLength - Returns the fixed unit size the array grows in
func (A *AddressArray) SubArrayLength() int {
	return A.unitCapacity
}

// HighWaterScn - Returns the highest SCN seen by the array, including replayed redo entries
func (A *AddressArray) HighWaterScn() uint64 {
	return A.highWaterScn
}

// Persist - Flushes the current redo batch to file and syncs the redo log, without
// checkpointing the array.
func (A *AddressArray) Persist() (err error) {
	err = A.flushBatch()
	if err != nil {
		return
	}

	err = A.redoFile.Sync()
	if err != nil {
		err = fmt.Errorf("error while syncing redo file: %s", err)
	}

	return
}

// Sync - Checkpoints the whole array to the checkpoint file and truncates the redo log
func (A *AddressArray) Sync() (err error) {
	err = A.writeCheckpoint()
	if err != nil {
		return
	}

	err = A.redoFile.Truncate(0)
	if err != nil {
		err = fmt.Errorf("error while truncating redo file: %s", err)
		return
	}
	_, err = A.redoFile.Seek(0, 0)
	if err != nil {
		return
	}

	A.pending = A.pending[:0]
	A.flushedBatches = 0

	return
}

// Clear - Zeroes all locators while keeping the current capacity, then checkpoints
func (A *AddressArray) Clear() (err error) {
	subs := *A.subs.Load()
	for _, sub := range subs {
		for i := range sub {
			sub[i].Store(0)
		}
	}

	A.pending = A.pending[:0]

	err = A.Sync()

	return
}

// Close - Checkpoints and closes the underlying files
func (A *AddressArray) Close() (err error) {
	if A.redoFile == nil {
		return
	}

	err = A.Sync()
	if err != nil {
		_ = A.redoFile.Close()
		A.redoFile = nil
		return
	}

	err = A.redoFile.Close()
	A.redoFile = nil

	return
}
