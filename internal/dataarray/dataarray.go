package dataarray

import (
	"fmt"

	"github.com/gostonefire/dynamichashmap/internal/addrarray"
	"github.com/gostonefire/dynamichashmap/internal/segment"
)

// DataArray - Maps a bucket index to an opaque byte record through a segmented log. The
// locator of the current record of each bucket lives in the address array, the record itself
// in a segment file.
//
// Get is safe to call without holding any lock against one concurrent writer. All mutating
// calls are expected to be serialized by the owning store.
type DataArray struct {
	addr     *addrarray.AddressArray
	segments *segment.Manager
}

// NewDataArray - Returns a pointer to a new DataArray over the given address array and
// segment manager. The per segment live byte accounting is rebuilt by scanning all locators,
// so frames left behind by overwritten or deleted buckets count as dead from the start.
//
// It returns:
//   - dataArray which is a pointer to the created instance
//   - err which is a standard Go type of error
func NewDataArray(addr *addrarray.AddressArray, segments *segment.Manager) (dataArray *DataArray, err error) {
	dataArray = &DataArray{
		addr:     addr,
		segments: segments,
	}

	for i, n := 0, addr.Capacity(); i < n; i++ {
		locator := addr.Get(i)
		if locator != 0 {
			err = segments.MarkLive(locator)
			if err != nil {
				err = fmt.Errorf("error while rebuilding live accounting for bucket %d: %s", i, err)
				dataArray = nil
				return
			}
		}
	}

	return
}

// Get - Returns the record stored at the given bucket index, or nil if the bucket is empty.
// The read retries when the locator moves underneath it, which happens when a concurrent
// compaction relocates the record to another segment.
func (D *DataArray) Get(index int) (data []byte, err error) {
	locator := D.addr.Get(index)

	for {
		if locator == 0 {
			return
		}

		_, _, data, err = D.segments.Read(locator)
		if err == nil {
			return
		}

		// The locator may have moved, only surface the error if it is still current
		current := D.addr.Get(index)
		if current == locator {
			err = fmt.Errorf("error while reading record of bucket %d: %s", index, err)
			return
		}
		locator = current
		err = nil
	}
}

// Set - Stores a record at the given bucket index. A nil or empty record deletes the bucket
// contents. The previous record, if any, is marked dead in its segment.
func (D *DataArray) Set(index int, data []byte, scn uint64) (err error) {
	old := D.addr.Get(index)

	var locator uint64
	if len(data) > 0 {
		locator, err = D.segments.Append(index, data, scn)
		if err != nil {
			return
		}
	}

	err = D.addr.Set(index, locator, scn)
	if err != nil {
		return
	}

	if old != 0 {
		err = D.segments.MarkDead(old)
	}

	return
}

// SetRange - Stores the sub slice data[offset:offset+length] as the record of the given
// bucket index. Used when a record shrinks in place, such as after removing one pair from
// a multi pair bucket.
func (D *DataArray) SetRange(index int, data []byte, offset, length int, scn uint64) (err error) {
	if offset < 0 || length < 0 || offset+length > len(data) {
		err = fmt.Errorf("range %d:%d is out of bounds for record of length %d", offset, offset+length, len(data))
		return
	}

	err = D.Set(index, data[offset:offset+length], scn)

	return
}

// HasData - Returns true if the bucket at the given index holds a record
func (D *DataArray) HasData(index int) bool {
	return D.addr.Get(index) != 0
}

// Length - Returns the number of addressable buckets
func (D *DataArray) Length() int {
	return D.addr.Capacity()
}

// ExpandCapacity - Grows the underlying address array so the given index becomes addressable
func (D *DataArray) ExpandCapacity(index int) (err error) {
	return D.addr.ExpandCapacity(index)
}

// Clear - Removes all records and all segment files while keeping the current capacity
func (D *DataArray) Clear() (err error) {
	err = D.segments.Clear()
	if err != nil {
		return
	}

	err = D.addr.Clear()

	return
}

// Sync - Makes all data durable: compacts underused segments, syncs the active segment and
// checkpoints the address array.
func (D *DataArray) Sync() (err error) {
	err = D.compact()
	if err != nil {
		return
	}

	err = D.segments.Sync()
	if err != nil {
		return
	}

	err = D.addr.Sync()

	return
}

// Persist - Flushes buffered address updates to the redo log and syncs the active segment,
// without checkpointing or compacting.
func (D *DataArray) Persist() (err error) {
	err = D.segments.Sync()
	if err != nil {
		return
	}

	err = D.addr.Persist()

	return
}

// Close - Closes the segment manager. The address array is owned and closed by the store.
func (D *DataArray) Close() (err error) {
	return D.segments.Close()
}

// compact - Relocates live records out of compactable segments and removes the drained files.
// Records keep their original SCN so recovery ordering is unaffected.
func (D *DataArray) compact() (err error) {
	compactable := D.segments.Compactable()
	if len(compactable) == 0 {
		return
	}

	drain := make(map[uint32]bool, len(compactable))
	for _, id := range compactable {
		drain[id] = true
	}

	for i, n := 0, D.addr.Capacity(); i < n; i++ {
		locator := D.addr.Get(i)
		if locator == 0 {
			continue
		}
		segmentId, _ := segment.SplitLocator(locator)
		if !drain[segmentId] {
			continue
		}

		scn, _, data, err2 := D.segments.Read(locator)
		if err2 != nil {
			err = fmt.Errorf("error while relocating record of bucket %d: %s", i, err2)
			return
		}

		var moved uint64
		moved, err = D.segments.Append(i, data, scn)
		if err != nil {
			return
		}

		err = D.addr.Set(i, moved, scn)
		if err != nil {
			return
		}
	}

	for _, id := range compactable {
		err = D.segments.Remove(id)
		if err != nil {
			return
		}
	}

	return
}
