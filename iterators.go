package dynamichashmap

import (
	"go.uber.org/zap"

	"github.com/gostonefire/dynamichashmap/crt"
	"github.com/gostonefire/dynamichashmap/internal/bucket"
)

// Entry - Represents one key-value pair returned by the entry iterator
type Entry struct {
	Key   []byte
	Value []byte
}

// Iteration is weakly consistent: it runs without the writer lock, so pairs written during
// the iteration may or may not be seen, and a pair moved ahead of the cursor by a concurrent
// split may be seen twice. A bucket whose record can not be decoded is logged and the rest
// of it skipped; pairs decoded before the point of failure are still yielded.

// KeyIterator - Is used to iterate over all keys in the store one by one
type KeyIterator struct {
	store   *DynamicHashMap
	index   int
	pending [][]byte
}

// KeyIterator - Returns a lazy iterator over all keys in the store
func (D *DynamicHashMap) KeyIterator() *KeyIterator {
	return &KeyIterator{store: D}
}

// HasNext - Returns true if there are more keys to be fetched from a call to Next
func (K *KeyIterator) HasNext() bool {
	K.fill()
	return len(K.pending) > 0
}

// Next - Returns the next key.
// It returns an error of type crt.NoRecordFound if there are no more keys.
func (K *KeyIterator) Next() (key []byte, err error) {
	K.fill()
	if len(K.pending) == 0 {
		err = crt.NoRecordFound{}
		return
	}

	key = K.pending[0]
	K.pending = K.pending[1:]

	return
}

// fill - Advances over empty buckets until the pending list holds at least one key or the
// bucket space is exhausted
func (K *KeyIterator) fill() {
	for len(K.pending) == 0 && K.index < K.store.Capacity() {
		index := K.index
		K.index++

		data, err := K.store.dataArray.Get(index)
		if err != nil {
			zap.L().Warn("bucket skipped during iteration", zap.Int("index", index), zap.Error(err))
			continue
		}
		if len(data) == 0 {
			continue
		}

		reader, err := bucket.NewReader(data)
		if err != nil {
			zap.L().Warn("bucket skipped during iteration", zap.Int("index", index), zap.Error(err))
			continue
		}
		for reader.HasNext() {
			k, _, err := reader.Next()
			if err != nil {
				zap.L().Warn("bucket skipped during iteration", zap.Int("index", index), zap.Error(err))
				break
			}
			K.pending = append(K.pending, k)
		}
	}
}

// EntryIterator - Is used to iterate over all key-value pairs in the store one by one
type EntryIterator struct {
	store   *DynamicHashMap
	index   int
	pending []Entry
}

// Iterator - Returns a lazy iterator over all key-value pairs in the store
func (D *DynamicHashMap) Iterator() *EntryIterator {
	return &EntryIterator{store: D}
}

// HasNext - Returns true if there are more pairs to be fetched from a call to Next
func (E *EntryIterator) HasNext() bool {
	E.fill()
	return len(E.pending) > 0
}

// Next - Returns the next key-value pair.
// It returns an error of type crt.NoRecordFound if there are no more pairs.
func (E *EntryIterator) Next() (entry Entry, err error) {
	E.fill()
	if len(E.pending) == 0 {
		err = crt.NoRecordFound{}
		return
	}

	entry = E.pending[0]
	E.pending = E.pending[1:]

	return
}

// fill - Advances over empty buckets until the pending list holds at least one pair or the
// bucket space is exhausted
func (E *EntryIterator) fill() {
	for len(E.pending) == 0 && E.index < E.store.Capacity() {
		index := E.index
		E.index++

		data, err := E.store.dataArray.Get(index)
		if err != nil {
			zap.L().Warn("bucket skipped during iteration", zap.Int("index", index), zap.Error(err))
			continue
		}
		if len(data) == 0 {
			continue
		}

		reader, err := bucket.NewReader(data)
		if err != nil {
			zap.L().Warn("bucket skipped during iteration", zap.Int("index", index), zap.Error(err))
			continue
		}
		for reader.HasNext() {
			k, v, err := reader.Next()
			if err != nil {
				zap.L().Warn("bucket skipped during iteration", zap.Int("index", index), zap.Error(err))
				break
			}
			E.pending = append(E.pending, Entry{Key: k, Value: v})
		}
	}
}
