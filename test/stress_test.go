//go:build stress

package test

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gostonefire/dynamichashmap"
	"github.com/gostonefire/dynamichashmap/crt"
)

const keySpace = 2000
const writes = 10000
const readers = 8

func stressKey(n int) []byte {
	return []byte(fmt.Sprintf("key-%d", n))
}

func stressValue(n int) []byte {
	return []byte(fmt.Sprintf("value-for-key-%d", n))
}

func TestConcurrentReadersOneWriter(t *testing.T) {
	t.Run("readers never observe foreign values while the writer splits", func(t *testing.T) {
		// Prepare
		dhm, err := dynamichashmap.NewDynamicHashMap(t.TempDir(), dynamichashmap.WithUnitCapacity(8))
		assert.NoError(t, err, "creates store")

		var done atomic.Bool
		var violations atomic.Int64
		var wg sync.WaitGroup

		// Execute - readers rotate over the key space without any lock
		for r := 0; r < readers; r++ {
			wg.Add(1)
			go func(seed int64) {
				defer wg.Done()
				rnd := rand.New(rand.NewSource(seed))

				for !done.Load() {
					n := rnd.Intn(keySpace)
					value, err := dhm.Get(stressKey(n))
					if err != nil {
						if !errors.Is(err, crt.NoRecordFound{}) {
							violations.Add(1)
						}
						continue
					}
					if !bytes.Equal(stressValue(n), value) {
						violations.Add(1)
					}
				}
			}(int64(r))
		}

		// The writer drives the store through several level transitions
		rnd := rand.New(rand.NewSource(42))
		inserted := make(map[int]bool)
		for i := 0; i < writes; i++ {
			n := rnd.Intn(keySpace)
			err = dhm.Put(stressKey(n), stressValue(n))
			assert.NoError(t, err, "puts key")
			inserted[n] = true
		}

		err = dhm.Sync()
		assert.NoError(t, err, "syncs store")

		done.Store(true)
		wg.Wait()

		// Check
		assert.Equal(t, int64(0), violations.Load(), "no reader observed a foreign value")
		assert.True(t, dhm.Level() >= 2, "store went through at least two level transitions")

		for n := range inserted {
			value, err := dhm.Get(stressKey(n))
			assert.NoError(t, err, "inserted key observable after final sync")
			assert.Equal(t, stressValue(n), value, "correct value")
		}

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err, "removes files")
	})
}

func TestConcurrentIteration(t *testing.T) {
	t.Run("iteration stays well formed under concurrent writes", func(t *testing.T) {
		// Prepare
		dhm, err := dynamichashmap.NewDynamicHashMap(t.TempDir(), dynamichashmap.WithUnitCapacity(8))
		assert.NoError(t, err, "creates store")

		for n := 0; n < keySpace; n++ {
			err = dhm.Put(stressKey(n), stressValue(n))
			assert.NoError(t, err)
		}

		var done atomic.Bool
		var wg sync.WaitGroup

		wg.Add(1)
		go func() {
			defer wg.Done()
			rnd := rand.New(rand.NewSource(7))
			for !done.Load() {
				n := rnd.Intn(keySpace)
				_ = dhm.Put(stressKey(n), stressValue(n))
			}
		}()

		// Execute - every yielded pair must still be a pair that was once written
		it := dhm.Iterator()
		pairs := 0
		for it.HasNext() {
			entry, err := it.Next()
			assert.NoError(t, err, "next pair")

			var n int
			_, err = fmt.Sscanf(string(entry.Key), "key-%d", &n)
			assert.NoError(t, err, "well formed key")
			assert.Equal(t, stressValue(n), entry.Value, "well formed value")
			pairs++
		}

		done.Store(true)
		wg.Wait()

		// Check
		assert.True(t, pairs > 0, "iteration yielded pairs")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err, "removes files")
	})
}
