package conf

// DefaultUnitCapacity - Default sub array length of the address array, must be a power of two
const DefaultUnitCapacity int = 1024

// DefaultEntrySize - Default number of redo entries per batch in the address array
const DefaultEntrySize int = 10000

// DefaultMaxEntries - Default number of flushed redo batches before the address array checkpoints itself
const DefaultMaxEntries int = 5

// DefaultSegmentFileSizeMB - Default segment file size in MB
const DefaultSegmentFileSizeMB int = 256

// DefaultSegmentCompactFactor - Default segment load factor below which a segment is eligible for compaction
const DefaultSegmentCompactFactor float64 = 0.5

// DefaultHashLoadThreshold - Default load factor of the hash table above which splitting kicks in
const DefaultHashLoadThreshold float64 = 0.75

// AddrFileHeaderLength - Length of address array checkpoint file header
const AddrFileHeaderLength int64 = 1024

// AddrMagicOffset - Header offset to the address file magic number - 4 bytes
const AddrMagicOffset int64 = 0

// AddrMagic - Magic number identifying an address array checkpoint file
const AddrMagic uint32 = 0x64686d41

// AddrUnitCapacityOffset - Header offset to the sub array length - 8 bytes
const AddrUnitCapacityOffset int64 = 4

// AddrCapacityOffset - Header offset to the total address array capacity - 8 bytes
const AddrCapacityOffset int64 = 12

// AddrHighWaterScnOffset - Header offset to the highest SCN included in the checkpoint - 8 bytes
const AddrHighWaterScnOffset int64 = 20

// AddrFileSizeOffset - Header offset to the checkpoint file size (should of course reflect true file size) - 8 bytes
const AddrFileSizeOffset int64 = 28

// RedoEntryLength - Length of one redo log entry: index, locator and scn - 8 bytes each
const RedoEntryLength int64 = 24

// SegmentHeaderLength - Length of header in each segment file
const SegmentHeaderLength int64 = 64

// SegmentMagicOffset - Segment header offset to the magic number - 4 bytes
const SegmentMagicOffset int64 = 0

// SegmentMagic - Magic number identifying a segment file
const SegmentMagic uint32 = 0x64686d53

// SegmentVersionOffset - Segment header offset to the format version - 4 bytes
const SegmentVersionOffset int64 = 4

// SegmentVersion - Current segment file format version
const SegmentVersion uint32 = 1

// SegmentIdOffset - Segment header offset to the segment id - 4 bytes
const SegmentIdOffset int64 = 8

// FrameHeaderLength - Length of the header preceding each data frame in a segment: scn - 8 bytes,
// bucket index - 4 bytes, data length - 4 bytes
const FrameHeaderLength int64 = 16
