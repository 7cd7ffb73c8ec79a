package dynamichashmap

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/gostonefire/dynamichashmap/crt"
	"github.com/gostonefire/dynamichashmap/internal/bucket"
)

// Get - Returns the value stored under the given key. The operation takes no lock against
// the writer, instead the bucket index is recomputed after every read and the read retried
// until the index is stable, which guards against a concurrent split moving the key.
//   - key is the identifier of a pair, it can not be empty
//
// It returns:
//   - value is the value of the matching pair if found, if not found an error of type crt.NoRecordFound is also returned
//   - err is either of type crt.NoRecordFound, crt.CorruptRecord or a standard error, if something went wrong
func (D *DynamicHashMap) Get(key []byte) (value []byte, err error) {
	if len(key) == 0 {
		err = fmt.Errorf("key can not be empty")
		return
	}
	if D.closed.Load() {
		err = crt.StoreClosed{}
		return
	}

	hashCode := D.hash(key)
	index := D.bucketIndex(hashCode)

	var data []byte
	for {
		data, err = D.dataArray.Get(index)
		if err != nil {
			return
		}

		// Check that the key is still mapped to the known index
		indexNew := D.bucketIndex(hashCode)
		if indexNew == index {
			break
		}
		index = indexNew
	}

	if len(data) == 0 {
		err = crt.NoRecordFound{}
		return
	}

	value, err = bucket.ExtractByKey(key, data)

	return
}

// Put - Stores the key-value pair, replacing any value already stored under the key.
// A nil value is equivalent to a Delete of the key. Before mutating, the call performs one
// bucket split if a split pass is in progress or the load factor is above the threshold.
//   - key is the identifier of the pair, it can not be empty
//   - value is the bytes to store under the key
//
// It returns:
//   - err is a standard Go type of error
func (D *DynamicHashMap) Put(key, value []byte) (err error) {
	if value == nil {
		_, err = D.Delete(key)
		return
	}
	if len(key) == 0 {
		err = fmt.Errorf("key can not be empty")
		return
	}

	D.mu.Lock()
	defer D.mu.Unlock()

	if D.closed.Load() {
		err = crt.StoreClosed{}
		return
	}

	err = D.maintain()
	if err != nil {
		return
	}

	index := D.bucketIndex(D.hash(key))
	err = D.putInternal(index, key, value)

	return
}

// Delete - Removes the pair stored under the given key. Before mutating, the call performs
// one bucket split if a split pass is in progress or the load factor is above the threshold.
//   - key is the identifier of the pair, it can not be empty
//
// It returns:
//   - deleted is true if the key was present
//   - err is a standard Go type of error
func (D *DynamicHashMap) Delete(key []byte) (deleted bool, err error) {
	if len(key) == 0 {
		err = fmt.Errorf("key can not be empty")
		return
	}

	D.mu.Lock()
	defer D.mu.Unlock()

	if D.closed.Load() {
		err = crt.StoreClosed{}
		return
	}

	err = D.maintain()
	if err != nil {
		return
	}

	index := D.bucketIndex(D.hash(key))
	deleted, err = D.deleteInternal(index, key)

	return
}

// Clear - Removes all pairs from the store. The bucket space keeps its current level and
// split point, only the contents go away.
func (D *DynamicHashMap) Clear() (err error) {
	D.mu.Lock()
	defer D.mu.Unlock()

	if D.closed.Load() {
		err = crt.StoreClosed{}
		return
	}

	err = D.dataArray.Clear()
	if err != nil {
		return
	}

	D.loadCount.Store(0)

	return
}

// Sync - Makes all written data durable: compacts underused segments, syncs segment files
// and checkpoints the address array.
func (D *DynamicHashMap) Sync() (err error) {
	D.mu.Lock()
	defer D.mu.Unlock()

	if D.closed.Load() {
		err = crt.StoreClosed{}
		return
	}

	err = D.dataArray.Sync()

	return
}

// Persist - Flushes buffered address updates and syncs segment files without forcing a
// checkpoint or segment compaction.
func (D *DynamicHashMap) Persist() (err error) {
	D.mu.Lock()
	defer D.mu.Unlock()

	if D.closed.Load() {
		err = crt.StoreClosed{}
		return
	}

	err = D.dataArray.Persist()

	return
}

// maintain - Performs one bucket split when a split pass is in progress or the load count
// is above the level threshold
func (D *DynamicHashMap) maintain() (err error) {
	if D.split.Load() > 0 || D.loadCount.Load() > D.levelThreshold {
		err = D.performSplit()
	}

	return
}

// putInternal - Stores the pair in the bucket at the given index. A bucket record that can
// not be decoded is logged and reset to hold just the new pair, accepting the loss of the
// other pairs rather than blocking the writer on persistent corruption.
func (D *DynamicHashMap) putInternal(index int, key, value []byte) (err error) {
	data, err := D.dataArray.Get(index)
	if err != nil {
		return
	}

	if len(data) == 0 {
		err = D.dataArray.Set(index, bucket.Assemble(key, value), D.nextScn())
		if err != nil {
			return
		}
		D.loadCount.Add(1)
		return
	}

	merged, err := bucket.AssembleMerge(key, value, data)
	if err != nil {
		if !errors.Is(err, crt.CorruptRecord{}) {
			return
		}
		zap.L().Warn("value reset", zap.Int("index", index), zap.Binary("key", key), zap.Error(err))
		merged = bucket.Assemble(key, value)
		err = nil
	}

	err = D.dataArray.Set(index, merged, D.nextScn())

	return
}

// deleteInternal - Removes the pair with the given key from the bucket at the given index.
// A bucket record that can not be decoded is logged and reset to absent.
func (D *DynamicHashMap) deleteInternal(index int, key []byte) (deleted bool, err error) {
	data, err := D.dataArray.Get(index)
	if err != nil {
		return
	}
	if len(data) == 0 {
		return
	}

	newLength, err := bucket.RemoveByKey(key, data)
	if err != nil {
		if !errors.Is(err, crt.CorruptRecord{}) {
			return
		}
		zap.L().Warn("bucket reset", zap.Int("index", index), zap.Binary("key", key), zap.Error(err))
		err = D.dataArray.Set(index, nil, D.nextScn())
		if err == nil {
			D.loadCount.Add(-1)
		}
		return
	}

	if newLength == 0 {
		// the entire record is removed
		err = D.dataArray.Set(index, nil, D.nextScn())
		if err != nil {
			return
		}
		D.loadCount.Add(-1)
		deleted = true
		return
	}

	if newLength < len(data) {
		// a partial record is removed
		err = D.dataArray.SetRange(index, data, 0, newLength, D.nextScn())
		if err != nil {
			return
		}
		deleted = true
	}

	return
}
