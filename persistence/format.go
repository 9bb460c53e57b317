package persistence

import (
	"errors"
	"fmt"
)

const (
	// MagicNumber identifies voyago blobs (ASCII "VOY1" when written little-endian).
	MagicNumber uint32 = 0x31594f56
	// Version is the current envelope format version.
	Version uint16 = 1

	// HeaderSize is the encoded size of Header in bytes.
	HeaderSize = 4 + 2 + 1 + 1 + 8 + 8 + 4

	// MaxPayloadSize bounds the raw length accepted from a header.
	MaxPayloadSize = 1 << 36
)

var (
	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrInvalidVersion     = errors.New("unsupported version")
	ErrTruncated          = errors.New("truncated data")
	ErrInvalidCompression = errors.New("unknown compression")
	ErrLengthMismatch     = errors.New("decoded length mismatch")
	ErrCorruptPayload     = errors.New("corrupt compressed payload")
)

// Header is the fixed-size envelope header preceding every payload.
type Header struct {
	Magic        uint32
	Version      uint16
	Compression  Compression
	Reserved     uint8
	RawLength    uint64 // payload length before compression
	StoredLength uint64 // payload length as written
	Checksum     uint32 // CRC32 of the uncompressed payload
}

func (h *Header) validate() error {
	if h.Magic != MagicNumber {
		return fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, h.Magic)
	}
	if h.Version != Version {
		return fmt.Errorf("%w: got %d", ErrInvalidVersion, h.Version)
	}
	if !h.Compression.Valid() {
		return fmt.Errorf("%w: tag %d", ErrInvalidCompression, h.Compression)
	}
	if h.RawLength > MaxPayloadSize || h.StoredLength > MaxPayloadSize {
		return fmt.Errorf("%w: payload of %d bytes exceeds limit", ErrLengthMismatch, h.RawLength)
	}
	if h.Compression == CompressionNone && h.RawLength != h.StoredLength {
		return fmt.Errorf("%w: raw %d stored %d", ErrLengthMismatch, h.RawLength, h.StoredLength)
	}
	return nil
}
