package segment

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/gostonefire/dynamichashmap/internal/conf"
)

// MakeLocator - Packs a segment id and a file offset into a 64 bit locator.
// Offsets start after the segment file header and are therefore never zero, which keeps
// the zero locator free to mean "no data".
func MakeLocator(segmentId uint32, offset int64) uint64 {
	return uint64(segmentId)<<48 | uint64(offset)
}

// SplitLocator - Unpacks a locator into segment id and file offset
func SplitLocator(locator uint64) (segmentId uint32, offset int64) {
	segmentId = uint32(locator >> 48)
	offset = int64(locator & (1<<48 - 1))
	return
}

// Segment - Represents one append oriented file in the segmented log. The segment currently
// receiving writes is read through the file handle, sealed segments are memory mapped.
type Segment struct {
	id       uint32
	fileName string
	file     *os.File
	size     int64
	sealed   bool
	mapped   mmap.MMap
}

// createSegment - Creates a new segment file with a fresh header
func createSegment(fileName string, id uint32) (seg *Segment, err error) {
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		err = fmt.Errorf("error while open/create new segment file: %s", err)
		return
	}

	header := make([]byte, conf.SegmentHeaderLength)
	binary.LittleEndian.PutUint32(header[conf.SegmentMagicOffset:], conf.SegmentMagic)
	binary.LittleEndian.PutUint32(header[conf.SegmentVersionOffset:], conf.SegmentVersion)
	binary.LittleEndian.PutUint32(header[conf.SegmentIdOffset:], id)

	_, err = f.WriteAt(header, 0)
	if err != nil {
		_ = f.Close()
		err = fmt.Errorf("error while writing segment header: %s", err)
		return
	}

	seg = &Segment{
		id:       id,
		fileName: fileName,
		file:     f,
		size:     conf.SegmentHeaderLength,
	}

	return
}

// openSegment - Opens an existing segment file and does some rudimentary checks of its validity
func openSegment(fileName string, id uint32, sealed bool) (seg *Segment, err error) {
	f, err := os.OpenFile(fileName, os.O_RDWR, 0644)
	if err != nil {
		err = fmt.Errorf("unable to open existing segment file: %s", err)
		return
	}

	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return
	}
	if stat.Size() < conf.SegmentHeaderLength {
		_ = f.Close()
		err = fmt.Errorf("actual file size is smaller than minimum segment file size")
		return
	}

	header := make([]byte, conf.SegmentHeaderLength)
	_, err = f.ReadAt(header, 0)
	if err != nil {
		_ = f.Close()
		err = fmt.Errorf("unable to read header from segment file: %s", err)
		return
	}
	if binary.LittleEndian.Uint32(header[conf.SegmentMagicOffset:]) != conf.SegmentMagic {
		_ = f.Close()
		err = fmt.Errorf("segment file has wrong magic number")
		return
	}
	if binary.LittleEndian.Uint32(header[conf.SegmentIdOffset:]) != id {
		_ = f.Close()
		err = fmt.Errorf("segment file header id doesn't conform with file name")
		return
	}

	seg = &Segment{
		id:       id,
		fileName: fileName,
		file:     f,
		size:     stat.Size(),
	}

	if sealed {
		err = seg.seal()
		if err != nil {
			_ = f.Close()
			seg = nil
		}
	}

	return
}

// appendFrame - Appends one data frame and returns its file offset
func (S *Segment) appendFrame(index int, data []byte, scn uint64) (offset int64, err error) {
	buf := make([]byte, conf.FrameHeaderLength+int64(len(data)))
	binary.LittleEndian.PutUint64(buf, scn)
	binary.LittleEndian.PutUint32(buf[8:], uint32(index))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(data)))
	copy(buf[conf.FrameHeaderLength:], data)

	offset = S.size
	_, err = S.file.WriteAt(buf, offset)
	if err != nil {
		err = fmt.Errorf("error while appending frame to segment file: %s", err)
		return
	}

	S.size += int64(len(buf))

	return
}

// readAt - Returns a slice of length n starting at the given offset. For a sealed segment the
// slice aliases the memory mapped file, otherwise it is read through the file handle.
func (S *Segment) readAt(offset, n int64) (buf []byte, err error) {
	if offset+n > S.size {
		err = fmt.Errorf("read of %d bytes at offset %d exceeds segment size %d", n, offset, S.size)
		return
	}

	if S.sealed {
		buf = S.mapped[offset : offset+n]
		return
	}

	buf = make([]byte, n)
	_, err = S.file.ReadAt(buf, offset)
	if err != nil {
		err = fmt.Errorf("error while reading from segment file: %s", err)
	}

	return
}

// frameAt - Reads and validates the frame header at the given offset
func (S *Segment) frameAt(offset int64) (scn uint64, index int, dataLength int64, err error) {
	buf, err := S.readAt(offset, conf.FrameHeaderLength)
	if err != nil {
		return
	}

	scn = binary.LittleEndian.Uint64(buf)
	index = int(binary.LittleEndian.Uint32(buf[8:]))
	dataLength = int64(binary.LittleEndian.Uint32(buf[12:]))

	if offset+conf.FrameHeaderLength+dataLength > S.size {
		err = fmt.Errorf("frame of %d bytes at offset %d exceeds segment size %d", dataLength, offset, S.size)
	}

	return
}

// seal - Syncs the segment, marks it read only and establishes the memory mapping.
// Mapping here rather than lazily keeps readAt free of mutation so readers need no lock
// against each other.
func (S *Segment) seal() (err error) {
	err = S.file.Sync()
	if err != nil {
		err = fmt.Errorf("error while syncing segment file: %s", err)
		return
	}

	S.mapped, err = mmap.Map(S.file, mmap.RDONLY, 0)
	if err != nil {
		err = fmt.Errorf("error while memory mapping segment file: %s", err)
		return
	}

	S.sealed = true

	return
}

// close - Unmaps and closes the segment file
func (S *Segment) close() (err error) {
	if S.mapped != nil {
		err = S.mapped.Unmap()
		S.mapped = nil
		if err != nil {
			_ = S.file.Close()
			err = fmt.Errorf("error while unmapping segment file: %s", err)
			return
		}
	}

	err = S.file.Close()

	return
}

// remove - Closes the segment and removes its file
func (S *Segment) remove() (err error) {
	err = S.close()
	if err != nil {
		return
	}

	err = os.Remove(S.fileName)

	return
}
