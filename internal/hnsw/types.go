package hnsw

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSlot       = errors.New("invalid slot")
	ErrInvalidK          = errors.New("k must be positive")
	ErrCorruptGraph      = errors.New("corrupt graph")
	ErrInvalidParameters = errors.New("invalid graph parameters")
)

// ErrNodeNotFound is returned when a slot has no graph node.
type ErrNodeNotFound struct {
	Slot uint32
}

func (e *ErrNodeNotFound) Error() string {
	return fmt.Sprintf("node %d not found", e.Slot)
}

func (e *ErrNodeNotFound) Unwrap() error { return ErrInvalidSlot }

// Vectors is the read access the graph needs to the vector store.
type Vectors interface {
	// At returns the vector at a slot previously handed to Insert.
	At(slot uint32) []float32
	// IsDeleted reports whether slot is tombstoned.
	IsDeleted(slot uint32) bool
}

// SearchOptions bounds a single search.
type SearchOptions struct {
	// EF is the frontier size. Values below k are raised to k.
	EF int

	// MaxVisited caps the number of nodes evaluated on layer 0.
	// 0 means unbounded.
	MaxVisited int
}

type LevelStats struct {
	Level          int
	Nodes          int
	Connections    int
	AvgConnections float64
}

type Stats struct {
	Nodes      int
	MaxLevel   int
	EntryPoint int64
	Levels     []LevelStats
}
