package voyago

import (
	"errors"
	"fmt"

	"github.com/hupe1980/voyago/distance"
	"github.com/hupe1980/voyago/internal/hnsw"
	"github.com/hupe1980/voyago/internal/idmap"
	"github.com/hupe1980/voyago/internal/vectorstore"
	"github.com/hupe1980/voyago/persistence"
)

var (
	// ErrDimensionMismatchKind matches every *ErrDimensionMismatch via errors.Is.
	ErrDimensionMismatchKind = errors.New("dimension mismatch")

	// ErrDuplicateID is returned when an explicit ID is already live.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrUnknownID is returned when an ID is absent or has been deleted.
	ErrUnknownID = errors.New("unknown id")

	// ErrInvalidSlot signals a broken internal invariant. Operations that hit
	// it are aborted; it never indicates a caller mistake.
	ErrInvalidSlot = errors.New("invalid slot")

	// ErrCorruptSerialization is returned when a serialized index is
	// malformed, truncated or inconsistent.
	ErrCorruptSerialization = errors.New("corrupt serialization")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrBatchLength is returned for every item of a batch whose ID list does
	// not match its vector list.
	ErrBatchLength = errors.New("ids and vectors differ in length")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// Is reports ErrDimensionMismatchKind as a match.
func (e *ErrDimensionMismatch) Is(target error) bool { return target == ErrDimensionMismatchKind }

// ErrInvalidDimension indicates an invalid configured dimension.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// ErrInvalidMetric indicates an unsupported distance metric.
type ErrInvalidMetric struct {
	Metric distance.Metric
}

func (e *ErrInvalidMetric) Error() string {
	return fmt.Sprintf("invalid metric: %d", uint8(e.Metric))
}

// ErrInvalidParameter indicates an out-of-range tuning parameter.
type ErrInvalidParameter struct {
	Name  string
	Value int
}

func (e *ErrInvalidParameter) Error() string {
	return fmt.Sprintf("invalid %s: %d", e.Name, e.Value)
}

// corrupt returns ErrCorruptSerialization with a formatted detail.
func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptSerialization, fmt.Sprintf(format, args...))
}

func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Already public.
	if errors.Is(err, ErrCorruptSerialization) {
		return err
	}

	var dm *vectorstore.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}

	switch {
	case errors.Is(err, idmap.ErrDuplicateID):
		return fmt.Errorf("%w: %w", ErrDuplicateID, err)
	case errors.Is(err, idmap.ErrUnknownID):
		return fmt.Errorf("%w: %w", ErrUnknownID, err)
	case errors.Is(err, hnsw.ErrInvalidK):
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	case errors.Is(err, vectorstore.ErrInvalidSlot), errors.Is(err, hnsw.ErrInvalidSlot):
		return fmt.Errorf("%w: %w", ErrInvalidSlot, err)
	case errors.Is(err, hnsw.ErrCorruptGraph),
		errors.Is(err, persistence.ErrInvalidMagic),
		errors.Is(err, persistence.ErrInvalidVersion),
		errors.Is(err, persistence.ErrInvalidCompression),
		errors.Is(err, persistence.ErrTruncated),
		errors.Is(err, persistence.ErrLengthMismatch),
		errors.Is(err, persistence.ErrCorruptPayload),
		persistence.IsChecksumMismatch(err):
		return fmt.Errorf("%w: %w", ErrCorruptSerialization, err)
	}

	return err
}
