package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store is an abstraction over named, immutable data blobs.
type Store interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Put writes a blob atomically, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of all blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	// ReadAt reads len(p) bytes at off. It returns io.EOF when fewer bytes
	// are available.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	io.Closer
	// Size returns the size of the blob in bytes.
	Size() int64
}

// Mappable is an optional interface for Blobs that support memory mapping.
type Mappable interface {
	// Bytes returns the underlying byte slice.
	// The slice is valid until the Blob is closed.
	// This is a zero-copy operation if supported.
	Bytes() ([]byte, error)
}

// DefaultChunkSize is the range size ReadAll fetches per request.
const DefaultChunkSize = 8 << 20

// readConcurrency bounds the parallel range reads of ReadAll.
const readConcurrency = 4

// ReadAll returns a copy of the blob's contents. Large blobs are fetched as
// parallel range reads.
func ReadAll(ctx context.Context, s Store, name string) ([]byte, error) {
	b, err := s.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	size := b.Size()
	out := make([]byte, size)

	if m, ok := b.(Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return nil, err
		}
		if int64(len(data)) != size {
			return nil, fmt.Errorf("blobstore: %s: mapped %d of %d bytes", name, len(data), size)
		}
		copy(out, data)
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)
	for off := int64(0); off < size; off += DefaultChunkSize {
		end := min(off+DefaultChunkSize, size)
		g.Go(func() error {
			return readFull(gctx, b, out[off:end], off)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("blobstore: read %s: %w", name, err)
	}
	return out, nil
}

func readFull(ctx context.Context, b Blob, p []byte, off int64) error {
	for len(p) > 0 {
		n, err := b.ReadAt(ctx, p, off)
		p = p[n:]
		off += int64(n)
		if err != nil {
			if errors.Is(err, io.EOF) && len(p) == 0 {
				return nil
			}
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if n == 0 {
			return io.ErrNoProgress
		}
	}
	return nil
}
