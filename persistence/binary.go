package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// BinaryWriter appends little-endian primitives to an in-memory payload.
// The first error is sticky; later writes become no-ops and Err reports it.
type BinaryWriter struct {
	buf *bytes.Buffer
	cw  *ChecksumWriter
	err error
	tmp [8]byte
}

// NewBinaryWriter creates a writer with room for sizeHint bytes.
func NewBinaryWriter(sizeHint int) *BinaryWriter {
	buf := bytes.NewBuffer(make([]byte, 0, max(sizeHint, 0)))
	return &BinaryWriter{
		buf: buf,
		cw:  NewChecksumWriter(buf),
	}
}

func (bw *BinaryWriter) write(p []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.cw.Write(p)
}

// WriteUint8 writes a single byte.
func (bw *BinaryWriter) WriteUint8(v uint8) {
	bw.tmp[0] = v
	bw.write(bw.tmp[:1])
}

// WriteBool writes 1 for true and 0 for false.
func (bw *BinaryWriter) WriteBool(v bool) {
	if v {
		bw.WriteUint8(1)
		return
	}
	bw.WriteUint8(0)
}

// WriteUint32 writes a uint32.
func (bw *BinaryWriter) WriteUint32(v uint32) {
	binary.LittleEndian.PutUint32(bw.tmp[:4], v)
	bw.write(bw.tmp[:4])
}

// WriteUint64 writes a uint64.
func (bw *BinaryWriter) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(bw.tmp[:8], v)
	bw.write(bw.tmp[:8])
}

// WriteInt64 writes an int64 in two's complement.
func (bw *BinaryWriter) WriteInt64(v int64) {
	bw.WriteUint64(uint64(v))
}

// WriteFloat32Slice writes the IEEE-754 bits of every element.
func (bw *BinaryWriter) WriteFloat32Slice(vec []float32) {
	for _, f := range vec {
		bw.WriteUint32(math.Float32bits(f))
	}
}

// WriteUint32List writes a uint32 count followed by the elements.
func (bw *BinaryWriter) WriteUint32List(list []uint32) {
	bw.WriteUint32(uint32(len(list)))
	for _, v := range list {
		bw.WriteUint32(v)
	}
}

// Bytes returns the payload written so far.
func (bw *BinaryWriter) Bytes() []byte { return bw.buf.Bytes() }

// Len returns the number of bytes written.
func (bw *BinaryWriter) Len() int { return int(bw.cw.Count()) }

// Checksum returns the CRC32 of the payload written so far.
func (bw *BinaryWriter) Checksum() uint32 { return bw.cw.Sum() }

// Err returns the first write error.
func (bw *BinaryWriter) Err() error { return bw.err }

// BinaryReader decodes little-endian primitives from a payload. Reads past the
// end fail with ErrTruncated; the first error is sticky.
type BinaryReader struct {
	data []byte
	off  int
	err  error
}

// NewBinaryReader creates a reader over data.
func NewBinaryReader(data []byte) *BinaryReader {
	return &BinaryReader{data: data}
}

func (br *BinaryReader) next(n int) []byte {
	if br.err != nil {
		return nil
	}
	if n < 0 || n > len(br.data)-br.off {
		br.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrTruncated, n, br.off, len(br.data)-br.off)
		return nil
	}
	p := br.data[br.off : br.off+n]
	br.off += n
	return p
}

// ReadUint8 reads a single byte.
func (br *BinaryReader) ReadUint8() uint8 {
	p := br.next(1)
	if p == nil {
		return 0
	}
	return p[0]
}

// ReadBool reads a byte written by WriteBool. Values other than 0 and 1 are
// reported as an error.
func (br *BinaryReader) ReadBool() bool {
	switch v := br.ReadUint8(); v {
	case 0:
		return false
	case 1:
		return true
	default:
		if br.err == nil {
			br.err = fmt.Errorf("invalid bool byte 0x%02x at offset %d", v, br.off-1)
		}
		return false
	}
}

// ReadUint32 reads a uint32.
func (br *BinaryReader) ReadUint32() uint32 {
	p := br.next(4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

// ReadUint64 reads a uint64.
func (br *BinaryReader) ReadUint64() uint64 {
	p := br.next(8)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(p)
}

// ReadInt64 reads an int64.
func (br *BinaryReader) ReadInt64() int64 {
	return int64(br.ReadUint64())
}

// ReadFloat32SliceInto fills vec.
func (br *BinaryReader) ReadFloat32SliceInto(vec []float32) {
	p := br.next(4 * len(vec))
	if p == nil {
		return
	}
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(p[4*i:]))
	}
}

// ReadUint32List reads a list written by WriteUint32List. Lists longer than
// limit are rejected before allocation.
func (br *BinaryReader) ReadUint32List(limit int) []uint32 {
	n := br.ReadUint32()
	if br.err != nil {
		return nil
	}
	if int64(n) > int64(limit) {
		br.err = fmt.Errorf("list of %d elements exceeds limit %d at offset %d", n, limit, br.off-4)
		return nil
	}
	p := br.next(4 * int(n))
	if p == nil {
		return nil
	}
	out := make([]uint32, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(p[4*i:])
	}
	return out
}

// Remaining returns the number of unread bytes.
func (br *BinaryReader) Remaining() int { return len(br.data) - br.off }

// Err returns the first read error.
func (br *BinaryReader) Err() error { return br.err }
