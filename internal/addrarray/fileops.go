package addrarray

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gostonefire/dynamichashmap/internal/conf"
)

// createNew - Creates new checkpoint and redo files holding one empty unit
func (A *AddressArray) createNew() (err error) {
	err = os.MkdirAll(A.homeDir, 0755)
	if err != nil {
		err = fmt.Errorf("error while creating home directory: %s", err)
		return
	}

	err = A.ExpandCapacity(0)
	if err != nil {
		return
	}

	err = A.writeCheckpoint()
	if err != nil {
		return
	}

	A.redoFile, err = os.OpenFile(A.redoFileName, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		err = fmt.Errorf("error while open/create new redo file: %s", err)
	}

	return
}

// openExisting - Restores the array from the checkpoint file and replays the redo log
func (A *AddressArray) openExisting() (err error) {
	f, err := os.OpenFile(A.chkFileName, os.O_RDONLY, 0644)
	if err != nil {
		err = fmt.Errorf("unable to open existing address checkpoint file: %s", err)
		return
	}
	defer func(f *os.File) { _ = f.Close() }(f)

	buf := make([]byte, conf.AddrFileHeaderLength)
	_, err = io.ReadFull(f, buf)
	if err != nil {
		err = fmt.Errorf("unable to read header from address checkpoint file: %s", err)
		return
	}

	header := bytesToHeader(buf)
	if header.Magic != conf.AddrMagic {
		err = fmt.Errorf("address checkpoint file has wrong magic number")
		return
	}
	if int(header.UnitCapacity) != A.unitCapacity {
		err = fmt.Errorf("address checkpoint file has unit capacity %d but %d was given", header.UnitCapacity, A.unitCapacity)
		return
	}

	stat, err := f.Stat()
	if err != nil {
		return
	}
	if stat.Size() != header.FileSize {
		err = fmt.Errorf("actual file size doesn't conform with header indicated file size")
		return
	}

	err = A.ExpandCapacity(int(header.Capacity) - 1)
	if err != nil {
		return
	}

	subs := *A.subs.Load()
	locBuf := make([]byte, A.unitCapacity*8)
	for _, sub := range subs {
		_, err = io.ReadFull(f, locBuf)
		if err != nil {
			err = fmt.Errorf("unable to read locators from address checkpoint file: %s", err)
			return
		}
		for i := range sub {
			sub[i].Store(binary.LittleEndian.Uint64(locBuf[i*8:]))
		}
	}

	A.highWaterScn = header.HighWaterScn

	A.redoFile, err = os.OpenFile(A.redoFileName, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		err = fmt.Errorf("error while opening redo file: %s", err)
		return
	}

	err = A.replayRedo()

	return
}

// replayRedo - Applies all complete entries of the redo log on top of the checkpoint state.
// A trailing partial entry, from a crash in mid write, is discarded.
func (A *AddressArray) replayRedo() (err error) {
	entryBuf := make([]byte, conf.RedoEntryLength)
	replayed := 0

	for {
		_, err = io.ReadFull(A.redoFile, entryBuf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			err = nil
			break
		}
		if err != nil {
			err = fmt.Errorf("error while reading redo file: %s", err)
			return
		}

		index := int(binary.LittleEndian.Uint64(entryBuf))
		locator := binary.LittleEndian.Uint64(entryBuf[8:])
		scn := binary.LittleEndian.Uint64(entryBuf[16:])

		err = A.ExpandCapacity(index)
		if err != nil {
			return
		}

		subs := *A.subs.Load()
		subs[index/A.unitCapacity][index%A.unitCapacity].Store(locator)
		if scn > A.highWaterScn {
			A.highWaterScn = scn
		}

		replayed++
	}

	A.flushedBatches = replayed / A.entrySize

	_, err = A.redoFile.Seek(0, io.SeekEnd)

	return
}

// flushBatch - Appends the pending redo entries to the redo file and starts a new batch
func (A *AddressArray) flushBatch() (err error) {
	if len(A.pending) == 0 {
		return
	}

	buf := make([]byte, int64(len(A.pending))*conf.RedoEntryLength)
	for i, entry := range A.pending {
		pos := int64(i) * conf.RedoEntryLength
		binary.LittleEndian.PutUint64(buf[pos:], uint64(entry.index))
		binary.LittleEndian.PutUint64(buf[pos+8:], entry.locator)
		binary.LittleEndian.PutUint64(buf[pos+16:], entry.scn)
	}

	_, err = A.redoFile.Write(buf)
	if err != nil {
		err = fmt.Errorf("error while appending to redo file: %s", err)
		return
	}

	A.pending = A.pending[:0]
	A.flushedBatches++

	return
}

// writeCheckpoint - Writes header and all locators to the checkpoint file
func (A *AddressArray) writeCheckpoint() (err error) {
	subs := *A.subs.Load()
	capacity := int(A.capacity.Load())
	fileSize := conf.AddrFileHeaderLength + int64(capacity)*8

	header := Header{
		Magic:        conf.AddrMagic,
		UnitCapacity: int64(A.unitCapacity),
		Capacity:     int64(capacity),
		HighWaterScn: A.highWaterScn,
		FileSize:     fileSize,
	}

	buf := make([]byte, fileSize)
	copy(buf, headerToBytes(header))

	pos := conf.AddrFileHeaderLength
	for _, sub := range subs {
		for i := range sub {
			binary.LittleEndian.PutUint64(buf[pos:], sub[i].Load())
			pos += 8
		}
	}

	f, err := os.OpenFile(A.chkFileName, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0644)
	if err != nil {
		err = fmt.Errorf("error while open/create address checkpoint file: %s", err)
		return
	}
	defer func(f *os.File) { _ = f.Close() }(f)

	_, err = f.Write(buf)
	if err != nil {
		err = fmt.Errorf("error while writing address checkpoint file: %s", err)
		return
	}

	err = f.Sync()
	if err != nil {
		err = fmt.Errorf("error while syncing address checkpoint file: %s", err)
	}

	return
}
