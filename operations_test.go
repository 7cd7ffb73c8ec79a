//go:build integration

package dynamichashmap

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gostonefire/dynamichashmap/crt"
	"github.com/gostonefire/dynamichashmap/internal/bucket"
)

func TestDynamicHashMap_PutGet(t *testing.T) {
	t.Run("round trips a pair", func(t *testing.T) {
		// Prepare
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8))
		assert.NoError(t, err)

		// Execute
		err = dhm.Put([]byte("key-1"), []byte("value-1"))

		// Check
		assert.NoError(t, err, "puts pair")
		assert.Equal(t, 1, dhm.LoadCount(), "one bucket in use")

		value, err := dhm.Get([]byte("key-1"))
		assert.NoError(t, err, "gets pair")
		assert.Equal(t, []byte("value-1"), value, "correct value")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})

	t.Run("updating a key keeps a single pair in the bucket", func(t *testing.T) {
		// Prepare
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8))
		assert.NoError(t, err)

		err = dhm.Put([]byte("key-1"), []byte("value-1"))
		assert.NoError(t, err)

		// Execute
		err = dhm.Put([]byte("key-1"), []byte("value-2"))

		// Check
		assert.NoError(t, err, "updates pair")

		value, err := dhm.Get([]byte("key-1"))
		assert.NoError(t, err)
		assert.Equal(t, []byte("value-2"), value, "latest value wins")

		data, err := dhm.dataArray.Get(dhm.bucketIndex(dhm.hash([]byte("key-1"))))
		assert.NoError(t, err)
		reader, err := bucket.NewReader(data)
		assert.NoError(t, err)
		pairs := 0
		for reader.HasNext() {
			_, _, err = reader.Next()
			assert.NoError(t, err)
			pairs++
		}
		assert.Equal(t, 1, pairs, "bucket record holds one pair")
		assert.Equal(t, 1, dhm.LoadCount(), "load count unchanged by update")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})

	t.Run("throws correct error when key is not found", func(t *testing.T) {
		// Prepare
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8))
		assert.NoError(t, err)

		// Execute
		_, err = dhm.Get([]byte("key-1"))

		// Check
		assert.True(t, errors.Is(err, crt.NoRecordFound{}), "correct error type")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})

	t.Run("error when key is empty", func(t *testing.T) {
		// Prepare
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8))
		assert.NoError(t, err)

		// Execute
		_, err = dhm.Get(nil)

		// Check
		assert.Error(t, err, "get rejects empty key")

		err = dhm.Put(nil, []byte("value-1"))
		assert.Error(t, err, "put rejects empty key")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})

	t.Run("nil value is equivalent to delete", func(t *testing.T) {
		// Prepare
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8))
		assert.NoError(t, err)

		err = dhm.Put([]byte("key-1"), []byte("value-1"))
		assert.NoError(t, err)

		// Execute
		err = dhm.Put([]byte("key-1"), nil)

		// Check
		assert.NoError(t, err, "put with nil value")

		_, err = dhm.Get([]byte("key-1"))
		assert.True(t, errors.Is(err, crt.NoRecordFound{}), "key is gone")
		assert.Equal(t, 0, dhm.LoadCount(), "bucket freed")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})
}

func TestDynamicHashMap_Delete(t *testing.T) {
	t.Run("delete returns true then false", func(t *testing.T) {
		// Prepare
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8))
		assert.NoError(t, err)

		err = dhm.Put([]byte("key-1"), []byte("value-1"))
		assert.NoError(t, err)

		// Execute
		deleted, err := dhm.Delete([]byte("key-1"))

		// Check
		assert.NoError(t, err, "deletes pair")
		assert.True(t, deleted, "key was present")

		deleted, err = dhm.Delete([]byte("key-1"))
		assert.NoError(t, err)
		assert.False(t, deleted, "key already gone")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})

	t.Run("delete of one pair keeps the others in the bucket", func(t *testing.T) {
		// Prepare - same bucket at level 0 under the controllable hash
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8), WithHashFunction(modHashFunction{}))
		assert.NoError(t, err)

		err = dhm.Put(modKey(3), []byte("value-3"))
		assert.NoError(t, err)
		err = dhm.Put(modKey(11), []byte("value-11"))
		assert.NoError(t, err)
		assert.Equal(t, 1, dhm.LoadCount(), "both pairs share one bucket")

		// Execute
		deleted, err := dhm.Delete(modKey(3))

		// Check
		assert.NoError(t, err)
		assert.True(t, deleted, "pair removed")
		assert.Equal(t, 1, dhm.LoadCount(), "bucket still in use")

		value, err := dhm.Get(modKey(11))
		assert.NoError(t, err, "other pair still there")
		assert.Equal(t, []byte("value-11"), value, "correct value")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})
}

func TestDynamicHashMap_SplitTrigger(t *testing.T) {
	t.Run("put beyond the load threshold triggers a split", func(t *testing.T) {
		// Prepare - threshold is 8 * 0.75 = 6 non empty buckets
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8), WithHashFunction(modHashFunction{}))
		assert.NoError(t, err)

		for h := uint64(0); h < 6; h++ {
			err = dhm.Put(modKey(h), []byte("some value"))
			assert.NoError(t, err)
		}
		assert.Equal(t, 0, dhm.Level(), "level still zero")
		assert.Equal(t, 0, dhm.Split(), "no split yet")
		assert.Equal(t, 8, dhm.Capacity(), "capacity unchanged")
		assert.Equal(t, 6, dhm.LoadCount(), "six buckets in use")

		// The seventh pair crosses the threshold
		err = dhm.Put(modKey(6), []byte("some value"))
		assert.NoError(t, err)
		assert.Equal(t, 0, dhm.Split(), "split happens on the next write")

		// Execute
		err = dhm.Put(modKey(0), []byte("some other value"))

		// Check
		assert.NoError(t, err)
		assert.Equal(t, 1, dhm.Split(), "one bucket split")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})

	t.Run("split separates keys that collide at the lower level", func(t *testing.T) {
		// Prepare - hashes 3 and 11 share bucket 3 at level 0 but split at level 1
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8), WithHashFunction(modHashFunction{}))
		assert.NoError(t, err)

		err = dhm.Put(modKey(3), []byte("value-3"))
		assert.NoError(t, err)
		err = dhm.Put(modKey(11), []byte("value-11"))
		assert.NoError(t, err)
		assert.Equal(t, dhm.bucketIndex(dhm.hash(modKey(3))), dhm.bucketIndex(dhm.hash(modKey(11))), "same bucket before split")

		for _, h := range []uint64{0, 1, 2, 4, 5, 6} {
			err = dhm.Put(modKey(h), []byte("filler"))
			assert.NoError(t, err)
		}
		assert.Equal(t, 7, dhm.LoadCount(), "above the threshold")

		// Execute - every write performs one split, drive past bucket 3
		for dhm.Split() <= 3 && dhm.Level() == 0 {
			err = dhm.Put(modKey(0), []byte("filler"))
			assert.NoError(t, err)
		}

		// Check
		index3 := dhm.bucketIndex(dhm.hash(modKey(3)))
		index11 := dhm.bucketIndex(dhm.hash(modKey(11)))
		assert.Equal(t, 3, index3, "lower sibling keeps its index")
		assert.Equal(t, 11, index11, "upper sibling moved up by the level capacity")

		value, err := dhm.Get(modKey(3))
		assert.NoError(t, err)
		assert.Equal(t, []byte("value-3"), value, "lower sibling intact")

		value, err = dhm.Get(modKey(11))
		assert.NoError(t, err)
		assert.Equal(t, []byte("value-11"), value, "upper sibling intact")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})
}

func TestDynamicHashMap_Rehash(t *testing.T) {
	t.Run("rehash completes the split pass", func(t *testing.T) {
		// Prepare
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8))
		assert.NoError(t, err)

		for i := 0; i < 20; i++ {
			err = dhm.Put([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("value-%d", i)))
			assert.NoError(t, err)
		}

		// Execute
		err = dhm.Rehash()

		// Check
		assert.NoError(t, err, "rehashes store")
		assert.Equal(t, 0, dhm.Split(), "no split pass in progress")

		for i := 0; i < 20; i++ {
			value, err := dhm.Get([]byte(fmt.Sprintf("key-%d", i)))
			assert.NoError(t, err, "gets key after rehash")
			assert.Equal(t, []byte(fmt.Sprintf("value-%d", i)), value, "correct value")
		}

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})
}

func TestDynamicHashMap_Clear(t *testing.T) {
	t.Run("clear removes all pairs keeping the bucket space", func(t *testing.T) {
		// Prepare
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8))
		assert.NoError(t, err)

		for i := 0; i < 20; i++ {
			err = dhm.Put([]byte(fmt.Sprintf("key-%d", i)), []byte(fmt.Sprintf("value-%d", i)))
			assert.NoError(t, err)
		}
		capacity := dhm.Capacity()

		// Execute
		err = dhm.Clear()

		// Check
		assert.NoError(t, err, "clears store")
		assert.Equal(t, 0, dhm.LoadCount(), "no buckets in use")
		assert.Equal(t, capacity, dhm.Capacity(), "capacity kept")

		_, err = dhm.Get([]byte("key-1"))
		assert.True(t, errors.Is(err, crt.NoRecordFound{}), "pairs are gone")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})
}

func TestDynamicHashMap_Persistence(t *testing.T) {
	t.Run("surviving pairs and load count after delete, sync and reopen", func(t *testing.T) {
		// Prepare
		homeDir := t.TempDir()
		dhm, err := NewDynamicHashMap(homeDir, WithUnitCapacity(8))
		assert.NoError(t, err)

		rand.Seed(123)
		keys := make([][]byte, 100)
		for i := range keys {
			keys[i] = make([]byte, 16)
			rand.Read(keys[i])
			err = dhm.Put(keys[i], append([]byte("value-"), keys[i]...))
			assert.NoError(t, err, "puts key")
		}

		for i := 0; i < 50; i++ {
			deleted, err := dhm.Delete(keys[i])
			assert.NoError(t, err, "deletes key")
			assert.True(t, deleted, "key was present")
		}

		err = dhm.Sync()
		assert.NoError(t, err, "syncs store")
		err = dhm.Close()
		assert.NoError(t, err, "closes store")

		// Execute
		dhm, err = NewDynamicHashMap(homeDir, WithUnitCapacity(8))

		// Check
		assert.NoError(t, err, "reopens store")
		assert.Equal(t, dhm.scan(), dhm.LoadCount(), "load count matches non empty buckets")

		for i := 0; i < 50; i++ {
			_, err = dhm.Get(keys[i])
			assert.True(t, errors.Is(err, crt.NoRecordFound{}), "deleted key stays gone")
		}
		for i := 50; i < 100; i++ {
			value, err := dhm.Get(keys[i])
			assert.NoError(t, err, "surviving key retrievable")
			assert.Equal(t, append([]byte("value-"), keys[i]...), value, "correct value")
		}

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})
}

func TestDynamicHashMap_CorruptRecord(t *testing.T) {
	t.Run("put resets a corrupt bucket to the new pair", func(t *testing.T) {
		// Prepare
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8))
		assert.NoError(t, err)

		err = dhm.Put([]byte("key-1"), []byte("value-1"))
		assert.NoError(t, err)

		index := dhm.bucketIndex(dhm.hash([]byte("key-1")))
		err = dhm.dataArray.Set(index, []byte{0, 0, 0, 9, 1, 2}, dhm.nextScn())
		assert.NoError(t, err, "plants a corrupt record")

		// Execute
		err = dhm.Put([]byte("key-1"), []byte("value-2"))

		// Check
		assert.NoError(t, err, "put succeeds despite corruption")

		value, err := dhm.Get([]byte("key-1"))
		assert.NoError(t, err)
		assert.Equal(t, []byte("value-2"), value, "bucket reset to the new pair")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})

	t.Run("delete resets a corrupt bucket to absent", func(t *testing.T) {
		// Prepare
		dhm, err := NewDynamicHashMap(t.TempDir(), WithUnitCapacity(8))
		assert.NoError(t, err)

		err = dhm.Put([]byte("key-1"), []byte("value-1"))
		assert.NoError(t, err)

		index := dhm.bucketIndex(dhm.hash([]byte("key-1")))
		err = dhm.dataArray.Set(index, []byte{0, 0, 0, 9, 1, 2}, dhm.nextScn())
		assert.NoError(t, err, "plants a corrupt record")

		// Execute
		deleted, err := dhm.Delete([]byte("key-1"))

		// Check
		assert.NoError(t, err, "delete succeeds despite corruption")
		assert.False(t, deleted, "nothing could be removed")
		assert.Equal(t, 0, dhm.LoadCount(), "bucket freed")

		_, err = dhm.Get([]byte("key-1"))
		assert.True(t, errors.Is(err, crt.NoRecordFound{}), "bucket is absent")

		// Clean up
		err = dhm.RemoveFiles()
		assert.NoError(t, err)
	})
}
