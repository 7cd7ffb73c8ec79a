package segment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/gostonefire/dynamichashmap/internal/conf"
	"github.com/gostonefire/dynamichashmap/internal/model"
)

// Manager - Owns the segs directory under the store home directory and hands out locators
// for appended data frames. One segment at a time receives writes, sealed segments are read
// only and become eligible for compaction when their live byte ratio falls below the
// configured compact factor.
//
// The manager keeps live byte accounting per segment. The accounting is not persisted, the
// owning data array rebuilds it at open time from the address array.
type Manager struct {
	mu            sync.RWMutex
	segsDir       string
	fileSizeLimit int64
	compactFactor float64
	active        *Segment
	sealed        map[uint32]*Segment
	liveBytes     map[uint32]int64
	nextId        uint32
}

// NewManager - Returns a pointer to a new Manager instance. Existing segment files under
// <homeDir>/segs are opened, the one with the highest id stays writable, the rest are sealed.
// If no segment file exists a first one is created.
//   - segmentConf is a model.SegmentConf struct providing configuration parameters affecting segment file processing
//
// It returns:
//   - manager which is a pointer to the created instance
//   - err which is a standard Go type of error
func NewManager(segmentConf model.SegmentConf) (manager *Manager, err error) {
	if segmentConf.FileSizeMB <= 0 {
		err = fmt.Errorf("segment file size must be positive, got %d MB", segmentConf.FileSizeMB)
		return
	}

	manager = &Manager{
		segsDir:       filepath.Join(segmentConf.HomeDir, "segs"),
		fileSizeLimit: int64(segmentConf.FileSizeMB) * 1024 * 1024,
		compactFactor: segmentConf.CompactFactor,
		sealed:        make(map[uint32]*Segment),
		liveBytes:     make(map[uint32]int64),
	}

	err = os.MkdirAll(manager.segsDir, 0755)
	if err != nil {
		err = fmt.Errorf("error while creating segs directory: %s", err)
		manager = nil
		return
	}

	entries, err := os.ReadDir(manager.segsDir)
	if err != nil {
		err = fmt.Errorf("error while reading segs directory: %s", err)
		manager = nil
		return
	}

	var ids []uint32
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var id uint32
		if _, ok := fmt.Sscanf(entry.Name(), "%d.seg", &id); ok == nil {
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 {
		manager.active, err = createSegment(manager.fileName(0), 0)
		if err != nil {
			manager = nil
			return
		}
		manager.nextId = 1
		return
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for i, id := range ids {
		isActive := i == len(ids)-1
		var seg *Segment
		seg, err = openSegment(manager.fileName(id), id, !isActive)
		if err != nil {
			manager.closeAll()
			manager = nil
			return
		}
		if isActive {
			manager.active = seg
		} else {
			manager.sealed[id] = seg
		}
	}
	manager.nextId = ids[len(ids)-1] + 1

	return
}

// Append - Appends a data frame to the active segment, rotating to a new segment when the
// active one is full. Returns the locator under which the frame can be read back.
func (M *Manager) Append(index int, data []byte, scn uint64) (locator uint64, err error) {
	M.mu.Lock()
	defer M.mu.Unlock()

	frameSize := conf.FrameHeaderLength + int64(len(data))
	if frameSize+conf.SegmentHeaderLength > M.fileSizeLimit {
		err = fmt.Errorf("frame of %d bytes doesn't fit in a segment of %d bytes", frameSize, M.fileSizeLimit)
		return
	}

	if M.active.size+frameSize > M.fileSizeLimit {
		err = M.rotate()
		if err != nil {
			return
		}
	}

	offset, err := M.active.appendFrame(index, data, scn)
	if err != nil {
		return
	}

	locator = MakeLocator(M.active.id, offset)
	M.liveBytes[M.active.id] += frameSize

	return
}

// Read - Returns the frame stored under the given locator. The returned data is a copy and
// stays valid after the segment is compacted away.
func (M *Manager) Read(locator uint64) (scn uint64, index int, data []byte, err error) {
	M.mu.RLock()
	defer M.mu.RUnlock()

	segmentId, offset := SplitLocator(locator)
	seg, err := M.segment(segmentId)
	if err != nil {
		return
	}

	scn, index, dataLength, err := seg.frameAt(offset)
	if err != nil {
		return
	}

	buf, err := seg.readAt(offset+conf.FrameHeaderLength, dataLength)
	if err != nil {
		return
	}

	data = make([]byte, dataLength)
	copy(data, buf)

	return
}

// FrameSize - Returns the total on file size of the frame stored under the given locator
func (M *Manager) FrameSize(locator uint64) (size int64, err error) {
	M.mu.RLock()
	defer M.mu.RUnlock()

	return M.frameSize(locator)
}

// MarkLive - Adds the frame under the given locator to the live byte accounting of its segment
func (M *Manager) MarkLive(locator uint64) (err error) {
	M.mu.Lock()
	defer M.mu.Unlock()

	size, err := M.frameSize(locator)
	if err != nil {
		return
	}

	segmentId, _ := SplitLocator(locator)
	M.liveBytes[segmentId] += size

	return
}

// MarkDead - Removes the frame under the given locator from the live byte accounting of its segment
func (M *Manager) MarkDead(locator uint64) (err error) {
	M.mu.Lock()
	defer M.mu.Unlock()

	size, err := M.frameSize(locator)
	if err != nil {
		return
	}

	segmentId, _ := SplitLocator(locator)
	M.liveBytes[segmentId] -= size

	return
}

// Compactable - Returns the ids of sealed segments whose live byte ratio is below the
// compact factor. The active segment is never compactable.
func (M *Manager) Compactable() (ids []uint32) {
	M.mu.RLock()
	defer M.mu.RUnlock()

	for id, seg := range M.sealed {
		total := seg.size - conf.SegmentHeaderLength
		if total <= 0 {
			ids = append(ids, id)
			continue
		}
		if float64(M.liveBytes[id])/float64(total) < M.compactFactor {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return
}

// Remove - Removes a drained sealed segment and its file
func (M *Manager) Remove(segmentId uint32) (err error) {
	M.mu.Lock()
	defer M.mu.Unlock()

	seg, ok := M.sealed[segmentId]
	if !ok {
		err = fmt.Errorf("segment %d is not a sealed segment", segmentId)
		return
	}

	err = seg.remove()
	if err != nil {
		err = fmt.Errorf("error while removing segment file: %s", err)
		return
	}

	delete(M.sealed, segmentId)
	delete(M.liveBytes, segmentId)

	return
}

// Sync - Syncs the active segment to stable storage
func (M *Manager) Sync() (err error) {
	M.mu.RLock()
	defer M.mu.RUnlock()

	err = M.active.file.Sync()
	if err != nil {
		err = fmt.Errorf("error while syncing active segment: %s", err)
	}

	return
}

// Clear - Removes all segment files and starts over with a fresh active segment
func (M *Manager) Clear() (err error) {
	M.mu.Lock()
	defer M.mu.Unlock()

	for id, seg := range M.sealed {
		err = seg.remove()
		if err != nil {
			return
		}
		delete(M.sealed, id)
	}

	err = M.active.remove()
	if err != nil {
		return
	}

	M.liveBytes = make(map[uint32]int64)
	M.active, err = createSegment(M.fileName(M.nextId), M.nextId)
	if err != nil {
		return
	}
	M.nextId++

	return
}

// Close - Syncs and closes all segments
func (M *Manager) Close() (err error) {
	M.mu.Lock()
	defer M.mu.Unlock()

	err = M.active.file.Sync()
	if err != nil {
		err = fmt.Errorf("error while syncing active segment: %s", err)
		M.closeAll()
		return
	}

	for _, seg := range M.sealed {
		err = seg.close()
		if err != nil {
			return
		}
	}
	M.sealed = make(map[uint32]*Segment)

	if M.active != nil {
		err = M.active.close()
		M.active = nil
	}

	return
}

// RemoveFiles - Removes the segs directory with all segment files, make sure to close the
// manager first before calling this function
func (M *Manager) RemoveFiles() (err error) {
	err = os.RemoveAll(M.segsDir)
	if err != nil {
		err = fmt.Errorf("error while removing segs directory: %s", err)
	}

	return
}

// rotate - Seals the active segment and creates a new one
func (M *Manager) rotate() (err error) {
	err = M.active.seal()
	if err != nil {
		return
	}

	M.sealed[M.active.id] = M.active

	M.active, err = createSegment(M.fileName(M.nextId), M.nextId)
	if err != nil {
		return
	}
	M.nextId++

	return
}

// frameSize - Returns the total on file size of the frame stored under the given locator.
// Caller must hold the lock.
func (M *Manager) frameSize(locator uint64) (size int64, err error) {
	segmentId, offset := SplitLocator(locator)
	seg, err := M.segment(segmentId)
	if err != nil {
		return
	}

	_, _, dataLength, err := seg.frameAt(offset)
	if err != nil {
		return
	}

	size = conf.FrameHeaderLength + dataLength

	return
}

// segment - Returns the segment with the given id, active or sealed. Caller must hold the lock.
func (M *Manager) segment(segmentId uint32) (seg *Segment, err error) {
	if M.active != nil && M.active.id == segmentId {
		seg = M.active
		return
	}

	seg, ok := M.sealed[segmentId]
	if !ok {
		err = fmt.Errorf("no segment with id %d", segmentId)
	}

	return
}

// closeAll - Best effort close of all segments, used on error paths
func (M *Manager) closeAll() {
	for _, seg := range M.sealed {
		_ = seg.close()
	}
	if M.active != nil {
		_ = M.active.close()
	}
}

// fileName - Returns the segment file name for the given id
func (M *Manager) fileName(id uint32) string {
	return filepath.Join(M.segsDir, fmt.Sprintf("%d.seg", id))
}
