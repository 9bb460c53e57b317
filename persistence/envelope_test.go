package persistence

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compressiblePayload() []byte {
	return bytes.Repeat([]byte("voyago-payload-"), 512)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	payload := compressiblePayload()

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			blob, err := Encode(payload, c)
			require.NoError(t, err)

			got, h, err := Decode(blob)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
			assert.Equal(t, c, h.Compression)
			assert.Equal(t, uint64(len(payload)), h.RawLength)
			assert.Equal(t, CalculateChecksum(payload), h.Checksum)

			if c != CompressionNone {
				assert.Less(t, len(blob), len(payload))
			}
		})
	}
}

func TestEnvelopeIncompressibleFallsBack(t *testing.T) {
	payload := []byte{1, 2, 3}

	blob, err := Encode(payload, CompressionZSTD)
	require.NoError(t, err)

	got, h, err := Decode(blob)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, h.Compression)
	assert.Equal(t, payload, got)
}

func TestEnvelopeEmptyPayload(t *testing.T) {
	blob, err := Encode(nil, CompressionLZ4)
	require.NoError(t, err)
	assert.Len(t, blob, HeaderSize)

	got, _, err := Decode(blob)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEnvelopeMagic(t *testing.T) {
	blob, err := Encode([]byte("x"), CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, []byte("VOY1"), blob[:4])

	blob[0] = 'X'
	_, _, err = Decode(blob)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestEnvelopeRejectsCorruption(t *testing.T) {
	payload := compressiblePayload()

	t.Run("truncated header", func(t *testing.T) {
		_, _, err := Decode([]byte{'V', 'O'})
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("truncated payload", func(t *testing.T) {
		blob, err := Encode(payload, CompressionNone)
		require.NoError(t, err)
		_, _, err = Decode(blob[:len(blob)-10])
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("flipped byte", func(t *testing.T) {
		blob, err := Encode(payload, CompressionNone)
		require.NoError(t, err)
		blob[HeaderSize+5] ^= 0xff
		_, _, err = Decode(blob)
		assert.True(t, IsChecksumMismatch(err), "got %v", err)
	})

	t.Run("trailing bytes", func(t *testing.T) {
		blob, err := Encode(payload, CompressionNone)
		require.NoError(t, err)
		_, _, err = Decode(append(blob, 0))
		assert.ErrorIs(t, err, ErrLengthMismatch)
	})

	t.Run("bad version", func(t *testing.T) {
		blob, err := Encode(payload, CompressionNone)
		require.NoError(t, err)
		blob[4] = 9
		_, _, err = Decode(blob)
		assert.ErrorIs(t, err, ErrInvalidVersion)
	})

	t.Run("bad compression", func(t *testing.T) {
		blob, err := Encode(payload, CompressionNone)
		require.NoError(t, err)
		blob[6] = 7
		_, _, err = Decode(blob)
		assert.ErrorIs(t, err, ErrInvalidCompression)
	})

	t.Run("garbage lz4", func(t *testing.T) {
		blob, err := Encode(payload, CompressionLZ4)
		require.NoError(t, err)
		for i := HeaderSize; i < len(blob); i++ {
			blob[i] = 0xff
		}
		_, _, err = Decode(blob)
		assert.Error(t, err)
	})
}

func TestWriteEnvelopeInvalidCompression(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteEnvelope(&buf, []byte("x"), Compression(42))
	assert.ErrorIs(t, err, ErrInvalidCompression)
}

func TestParseCompression(t *testing.T) {
	for in, want := range map[string]Compression{"": CompressionNone, "none": CompressionNone, "LZ4": CompressionLZ4, "zstd": CompressionZSTD} {
		got, err := ParseCompression(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseCompression("brotli")
	assert.ErrorIs(t, err, ErrInvalidCompression)
}
