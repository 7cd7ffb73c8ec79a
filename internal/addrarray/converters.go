package addrarray

import (
	"encoding/binary"

	"github.com/gostonefire/dynamichashmap/internal/conf"
)

// Header - Represents the address checkpoint file header data
type Header struct {
	Magic        uint32
	UnitCapacity int64
	Capacity     int64
	HighWaterScn uint64
	FileSize     int64
}

// bytesToHeader - Converts a slice of bytes to a Header struct
func bytesToHeader(buf []byte) (header Header) {
	header = Header{
		Magic:        binary.LittleEndian.Uint32(buf[conf.AddrMagicOffset:]),
		UnitCapacity: int64(binary.LittleEndian.Uint64(buf[conf.AddrUnitCapacityOffset:])),
		Capacity:     int64(binary.LittleEndian.Uint64(buf[conf.AddrCapacityOffset:])),
		HighWaterScn: binary.LittleEndian.Uint64(buf[conf.AddrHighWaterScnOffset:]),
		FileSize:     int64(binary.LittleEndian.Uint64(buf[conf.AddrFileSizeOffset:])),
	}

	return
}

// headerToBytes - Converts a Header struct to a slice of bytes
func headerToBytes(header Header) (buf []byte) {
	buf = make([]byte, conf.AddrFileHeaderLength)

	binary.LittleEndian.PutUint32(buf[conf.AddrMagicOffset:], header.Magic)
	binary.LittleEndian.PutUint64(buf[conf.AddrUnitCapacityOffset:], uint64(header.UnitCapacity))
	binary.LittleEndian.PutUint64(buf[conf.AddrCapacityOffset:], uint64(header.Capacity))
	binary.LittleEndian.PutUint64(buf[conf.AddrHighWaterScnOffset:], header.HighWaterScn)
	binary.LittleEndian.PutUint64(buf[conf.AddrFileSizeOffset:], uint64(header.FileSize))

	return
}
