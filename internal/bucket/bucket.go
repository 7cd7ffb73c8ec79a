package bucket

import (
	"encoding/binary"
	"fmt"

	"github.com/gostonefire/dynamichashmap/crt"
	"github.com/gostonefire/dynamichashmap/internal/utils"
)

// A packed bucket record holds all key-value pairs of one bucket in the layout below,
// all integers big-endian:
//
//	[count:int32][key-length:int32][key][value-length:int32][value]...
//
// An empty bucket is represented by an absent record rather than a record with count zero.

// countLength - Length of the leading entry count
const countLength = 4

// lenLength - Length of a key or value length field
const lenLength = 4

// Assemble - Produces a record holding a single key-value pair
func Assemble(key, value []byte) (record []byte) {
	record = make([]byte, countLength+lenLength+len(key)+lenLength+len(value))

	binary.BigEndian.PutUint32(record, 1)
	pos := countLength
	pos += putChunk(record[pos:], key)
	putChunk(record[pos:], value)

	return
}

// AssembleMerge - Produces a record with the key-value pair inserted into the given record.
// If the key already exists in the record its value is replaced, otherwise the pair is appended
// and the entry count incremented.
//
// It returns:
//   - merged is the new record
//   - err is of type crt.CorruptRecord if the given record can not be decoded
func AssembleMerge(key, value, record []byte) (merged []byte, err error) {
	start, end, cnt, err := findEntry(key, record)
	if err != nil {
		return
	}

	if start < 0 {
		// Key not present, append a new entry
		merged = make([]byte, 0, len(record)+lenLength+len(key)+lenLength+len(value))
		merged = append(merged, record...)
		merged = appendChunk(merged, key)
		merged = appendChunk(merged, value)
		binary.BigEndian.PutUint32(merged, uint32(cnt+1))
		return
	}

	// Key present, splice in the new value keeping the count
	merged = make([]byte, 0, len(record)-(end-start)+lenLength+len(key)+lenLength+len(value))
	merged = append(merged, record[:start]...)
	merged = appendChunk(merged, key)
	merged = appendChunk(merged, value)
	merged = append(merged, record[end:]...)

	return
}

// ExtractByKey - Returns the value stored under the given key in the record.
//
// It returns:
//   - value is the value of the matching pair, it shares backing storage with the record
//   - err is of type crt.NoRecordFound if the key is not present, or crt.CorruptRecord if the
//     record can not be decoded
func ExtractByKey(key, record []byte) (value []byte, err error) {
	r, err := NewReader(record)
	if err != nil {
		return
	}

	for r.HasNext() {
		var k, v []byte
		k, v, err = r.Next()
		if err != nil {
			return
		}
		if utils.IsEqual(k, key) {
			value = v
			return
		}
	}

	err = crt.NoRecordFound{}
	return
}

// RemoveByKey - Removes the pair stored under the given key by rewriting the record in place,
// shifting the tail left over the removed entry and decrementing the entry count.
//
// It returns:
//   - newLength is the length of the record after removal. It equals the original length when the
//     key is not present, and zero when the removed pair was the last one in the record.
//   - err is of type crt.CorruptRecord if the record can not be decoded
func RemoveByKey(key, record []byte) (newLength int, err error) {
	start, end, cnt, err := findEntry(key, record)
	if err != nil {
		return
	}

	if start < 0 {
		newLength = len(record)
		return
	}

	if cnt == 1 {
		return
	}

	copy(record[start:], record[end:])
	newLength = len(record) - (end - start)
	binary.BigEndian.PutUint32(record, uint32(cnt-1))

	return
}

// Reader - Is used to iterate over the key-value pairs of a packed record one by one.
// Returned key and value slices share backing storage with the record.
type Reader struct {
	record    []byte
	pos       int
	remaining int
}

// NewReader - Returns a pointer to a new Reader over the given record.
// It returns an error of type crt.CorruptRecord if the record is too short to hold a count.
func NewReader(record []byte) (reader *Reader, err error) {
	if len(record) < countLength {
		err = crt.NewCorruptRecord(fmt.Sprintf("record of length %d is too short to hold an entry count", len(record)))
		return
	}

	reader = &Reader{
		record:    record,
		pos:       countLength,
		remaining: int(int32(binary.BigEndian.Uint32(record))),
	}

	if reader.remaining < 0 {
		reader = nil
		err = crt.NewCorruptRecord("record has a negative entry count")
	}

	return
}

// HasNext - Returns true if there are more pairs to be fetched from a call to Next
func (R *Reader) HasNext() bool {
	return R.remaining > 0
}

// Next - Returns the next key-value pair.
// It returns an error of type crt.CorruptRecord if the lengths within the record don't add up.
func (R *Reader) Next() (key, value []byte, err error) {
	if R.remaining <= 0 {
		err = crt.NoRecordFound{}
		return
	}

	key, err = R.chunk()
	if err != nil {
		return
	}

	value, err = R.chunk()
	if err != nil {
		return
	}

	R.remaining--

	return
}

// chunk - Returns the next length prefixed chunk and advances the read position
func (R *Reader) chunk() (data []byte, err error) {
	if R.pos+lenLength > len(R.record) {
		err = crt.NewCorruptRecord(fmt.Sprintf("length field at position %d exceeds record length %d", R.pos, len(R.record)))
		return
	}

	n := int(int32(binary.BigEndian.Uint32(R.record[R.pos:])))
	if n < 0 || R.pos+lenLength+n > len(R.record) {
		err = crt.NewCorruptRecord(fmt.Sprintf("chunk of length %d at position %d exceeds record length %d", n, R.pos, len(R.record)))
		return
	}

	data = R.record[R.pos+lenLength : R.pos+lenLength+n]
	R.pos += lenLength + n

	return
}

// findEntry - Locates the entry with the given key in the record.
//
// It returns:
//   - start and end delimiting the entry within the record, or start == -1 when the key is not present
//   - cnt is the total number of entries in the record
//   - err is of type crt.CorruptRecord if the record can not be decoded
func findEntry(key, record []byte) (start, end, cnt int, err error) {
	r, err := NewReader(record)
	if err != nil {
		return
	}

	cnt = r.remaining
	start = -1

	for r.HasNext() {
		entryStart := r.pos
		var k []byte
		k, _, err = r.Next()
		if err != nil {
			return
		}
		if utils.IsEqual(k, key) {
			start = entryStart
			end = r.pos
			return
		}
	}

	return
}

// putChunk - Writes a length prefixed chunk at the start of buf and returns the number of bytes written
func putChunk(buf, data []byte) int {
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[lenLength:], data)
	return lenLength + len(data)
}

// appendChunk - Appends a length prefixed chunk to buf
func appendChunk(buf, data []byte) []byte {
	var l [lenLength]byte
	binary.BigEndian.PutUint32(l[:], uint32(len(data)))
	buf = append(buf, l[:]...)
	buf = append(buf, data...)
	return buf
}
