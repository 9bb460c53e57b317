package vectorstore

import (
	"errors"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// ErrInvalidSlot is returned when a slot is outside the appended range.
var ErrInvalidSlot = errors.New("invalid slot")

// ErrFull is returned when the store cannot address another slot.
var ErrFull = errors.New("vector store is full")

// ErrDimensionMismatch is a named error type for dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Store is an append-only columnar vector store with tombstones.
type Store struct {
	dim        int
	data       []float32
	count      uint32
	tombstones *roaring.Bitmap
}

// New creates an empty store for vectors of the given dimension.
func New(dim int) (*Store, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("vectorstore: invalid dimension %d", dim)
	}
	return &Store{
		dim:        dim,
		tombstones: roaring.New(),
	}, nil
}

// Dimension returns the fixed vector length.
func (s *Store) Dimension() int { return s.dim }

// Len returns the number of slots ever appended, tombstoned ones included.
func (s *Store) Len() int { return int(s.count) }

// Deleted returns the number of tombstoned slots.
func (s *Store) Deleted() int { return int(s.tombstones.GetCardinality()) }

// Live returns the number of slots that are not tombstoned.
func (s *Store) Live() int { return s.Len() - s.Deleted() }

// Append copies v into the store and returns its slot.
func (s *Store) Append(v []float32) (uint32, error) {
	if len(v) != s.dim {
		return 0, &ErrDimensionMismatch{Expected: s.dim, Actual: len(v)}
	}
	if s.count == math.MaxUint32 {
		return 0, ErrFull
	}
	slot := s.count
	s.data = append(s.data, v...)
	s.count++
	return slot, nil
}

// Get returns the vector stored at slot.
// The returned slice aliases store memory and must not be modified.
func (s *Store) Get(slot uint32) ([]float32, error) {
	if slot >= s.count {
		return nil, fmt.Errorf("%w: %d (len %d)", ErrInvalidSlot, slot, s.count)
	}
	return s.At(slot), nil
}

// At returns the vector at slot without range validation.
// Callers must only pass slots obtained from this store.
func (s *Store) At(slot uint32) []float32 {
	off := int(slot) * s.dim
	return s.data[off : off+s.dim : off+s.dim]
}

// MarkDeleted tombstones slot. Marking an already-deleted slot is a no-op.
func (s *Store) MarkDeleted(slot uint32) error {
	if slot >= s.count {
		return fmt.Errorf("%w: %d (len %d)", ErrInvalidSlot, slot, s.count)
	}
	s.tombstones.Add(slot)
	return nil
}

// IsDeleted reports whether slot is tombstoned.
func (s *Store) IsDeleted(slot uint32) bool {
	return s.tombstones.Contains(slot)
}
