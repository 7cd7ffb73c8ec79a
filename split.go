package dynamichashmap

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/gostonefire/dynamichashmap/crt"
	"github.com/gostonefire/dynamichashmap/internal/bucket"
)

// performSplit - Redistributes the bucket at the split point over the doubled capacity of
// the next level and advances the split point. Pairs that map to the same index under the
// doubled capacity stay where they are, the rest move to the sibling bucket exactly
// levelCapacity above. The counters are only advanced after the contents have moved, so the
// index computation in bucketIndex stays consistent with stored data at every point a reader
// can observe.
//
// Caller must hold the writer lock.
func (D *DynamicHashMap) performSplit() (err error) {
	split := int(D.split.Load())
	levelCapacity := int(D.levelCapacity.Load())

	// Ensure the sibling bucket is addressable
	err = D.dataArray.ExpandCapacity(split + levelCapacity)
	if err != nil {
		return
	}

	data, err := D.dataArray.Get(split)
	if err != nil {
		return
	}

	if len(data) > 0 {
		var reader *bucket.Reader
		reader, err = bucket.NewReader(data)
		if err != nil {
			err = fmt.Errorf("error while decoding bucket %d for split: %s", split, err)
			return
		}

		newCapacity := uint64(levelCapacity) << 1
		for reader.HasNext() {
			var key, value []byte
			key, value, err = reader.Next()
			if err != nil {
				err = fmt.Errorf("error while decoding bucket %d for split: %s", split, err)
				return
			}

			newIndex := int(D.hash(key) % newCapacity)
			if newIndex == split {
				// No need to move
				continue
			}

			// Remove at the old index and store at the new index
			_, err = D.deleteInternal(split, key)
			if err != nil {
				return
			}
			err = D.putInternal(newIndex, key, value)
			if err != nil {
				return
			}
		}
	}

	split++
	D.split.Store(int64(split))

	if split%D.unitCapacity == 0 {
		zap.L().Info("split", zap.String("status", D.Status()))
	}

	if split == levelCapacity {
		D.split.Store(0)
		D.level.Add(1)
		D.levelCapacity.Store(int64(levelCapacity) << 1)
		D.levelThreshold = int64(float64(levelCapacity<<1) * D.loadThreshold)

		zap.L().Info("level complete", zap.String("status", D.Status()))
	}

	return
}

// initLinearHashing - Derives level and split from the capacity the address array had at
// open time. The trailing unit may have been in mid split at last shutdown, so it is
// re-split one whole unit worth to restore the invariant that every pair lives in the
// bucket its hash maps to.
func (D *DynamicHashMap) initLinearHashing() (err error) {
	unitCount := D.dataArray.Length() / D.unitCapacity

	if unitCount == 1 {
		D.level.Store(0)
		D.split.Store(0)
		D.levelCapacity.Store(int64(D.unitCapacity))
		D.levelThreshold = int64(float64(D.unitCapacity) * D.loadThreshold)
		return
	}

	// Determine level and split
	level := 0
	remainder := (unitCount - 1) >> 1
	for remainder > 0 {
		level++
		remainder = remainder >> 1
	}

	D.level.Store(int64(level))
	D.split.Store(int64((unitCount - (1 << level) - 1) * D.unitCapacity))
	D.levelCapacity.Store(int64(D.unitCapacity * (1 << level)))
	D.levelThreshold = int64(float64(D.unitCapacity*(1<<level)) * D.loadThreshold)

	// Re-populate the last unit
	for i := 0; i < D.unitCapacity; i++ {
		err = D.performSplit()
		if err != nil {
			return
		}
	}

	return
}

// Rehash - Completes any split pass in progress, or if the load factor is above the
// threshold drives one complete level of splits, then syncs. Used to quiesce expansion
// ahead of a read heavy period.
func (D *DynamicHashMap) Rehash() (err error) {
	D.mu.Lock()
	defer D.mu.Unlock()

	if D.closed.Load() {
		err = crt.StoreClosed{}
		return
	}

	if D.split.Load() > 0 || D.LoadFactor() > D.loadThreshold {
		for {
			err = D.performSplit()
			if err != nil {
				return
			}
			if D.split.Load() == 0 {
				break
			}
		}

		err = D.dataArray.Sync()
	}

	return
}
