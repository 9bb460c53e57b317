package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

func (h *Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint16(buf[4:], h.Version)
	buf[6] = byte(h.Compression)
	buf[7] = h.Reserved
	binary.LittleEndian.PutUint64(buf[8:], h.RawLength)
	binary.LittleEndian.PutUint64(buf[16:], h.StoredLength)
	binary.LittleEndian.PutUint32(buf[24:], h.Checksum)
	return buf
}

func (h *Header) unmarshal(buf []byte) {
	h.Magic = binary.LittleEndian.Uint32(buf[0:])
	h.Version = binary.LittleEndian.Uint16(buf[4:])
	h.Compression = Compression(buf[6])
	h.Reserved = buf[7]
	h.RawLength = binary.LittleEndian.Uint64(buf[8:])
	h.StoredLength = binary.LittleEndian.Uint64(buf[16:])
	h.Checksum = binary.LittleEndian.Uint32(buf[24:])
}

// WriteEnvelope writes payload to w behind an envelope header, compressing it
// with c when that shrinks it. It returns the number of bytes written.
func WriteEnvelope(w io.Writer, payload []byte, c Compression) (int64, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: tag %d", ErrInvalidCompression, c)
	}

	stored, used, err := compress(payload, c)
	if err != nil {
		return 0, fmt.Errorf("compress payload: %w", err)
	}

	h := Header{
		Magic:        MagicNumber,
		Version:      Version,
		Compression:  used,
		RawLength:    uint64(len(payload)),
		StoredLength: uint64(len(stored)),
		Checksum:     CalculateChecksum(payload),
	}

	n, err := w.Write(h.marshal())
	total := int64(n)
	if err != nil {
		return total, err
	}
	n, err = w.Write(stored)
	total += int64(n)
	return total, err
}

// Encode returns payload wrapped in an envelope.
func Encode(payload []byte, c Compression) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(payload))
	if _, err := WriteEnvelope(&buf, payload, c); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadEnvelope reads one envelope from r, verifies it and returns the
// uncompressed payload.
func ReadEnvelope(r io.Reader) ([]byte, Header, error) {
	var h Header

	hdr := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, h, fmt.Errorf("%w: header: %w", ErrTruncated, err)
	}
	h.unmarshal(hdr)
	if err := h.validate(); err != nil {
		return nil, h, err
	}

	// Read through a LimitReader so a lying length cannot force a huge
	// allocation before the stream runs dry.
	var stored bytes.Buffer
	n, err := io.Copy(&stored, io.LimitReader(r, int64(h.StoredLength)))
	if err != nil {
		return nil, h, err
	}
	if uint64(n) != h.StoredLength {
		return nil, h, fmt.Errorf("%w: payload has %d of %d bytes", ErrTruncated, n, h.StoredLength)
	}

	payload, err := decompress(stored.Bytes(), h.Compression, int(h.RawLength))
	if err != nil {
		return nil, h, fmt.Errorf("decompress payload: %w", err)
	}

	if err := verifyChecksum(h.Checksum, CalculateChecksum(payload)); err != nil {
		return nil, h, err
	}
	return payload, h, nil
}

// Decode unwraps an envelope held in memory. Trailing bytes are rejected.
func Decode(blob []byte) ([]byte, Header, error) {
	r := bytes.NewReader(blob)
	payload, h, err := ReadEnvelope(r)
	if err != nil {
		return nil, h, err
	}
	if r.Len() > 0 {
		return nil, h, fmt.Errorf("%w: %d trailing bytes", ErrLengthMismatch, r.Len())
	}
	return payload, h, nil
}
