package model

// Entry - Represents one key-value pair held in a bucket
type Entry struct {
	Key   []byte
	Value []byte
}

// AddrConf - Is a struct to be passed in the call to addrarray.NewAddressArray and contains
// configuration that affects address array file processing.
//   - HomeDir is the directory owning the checkpoint and redo files
//   - UnitCapacity is the sub array length, must be a power of two
//   - EntrySize is the number of redo entries per batch
//   - MaxEntries is the number of flushed batches before a checkpoint is forced
type AddrConf struct {
	HomeDir      string
	UnitCapacity int
	EntrySize    int
	MaxEntries   int
}

// SegmentConf - Is a struct to be passed in the call to segment.NewManager and contains
// configuration that affects segment file processing.
//   - HomeDir is the directory under which the segs directory is kept
//   - FileSizeMB is the segment file size in MB
//   - CompactFactor is the segment load factor below which a segment is eligible for compaction
type SegmentConf struct {
	HomeDir       string
	FileSizeMB    int
	CompactFactor float64
}
