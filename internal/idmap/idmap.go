// Package idmap binds caller-visible identifiers to internal vector slots.
//
// Only live bindings are indexed by identifier. Every slot keeps a back
// reference to the identifier it was appended under, so tombstoned slots can
// still be serialized and rebuilt.
package idmap

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/hupe1980/voyago/internal/vectorstore"
)

var (
	// ErrDuplicateID is returned when an explicit identifier is already live.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrUnknownID is returned for identifiers that are absent or tombstoned.
	ErrUnknownID = errors.New("unknown id")
)

// Map is a bidirectional external ID <-> slot mapping.
// It is not safe for concurrent mutation.
type Map struct {
	store   *vectorstore.Store
	forward map[uint64]uint32
	reverse []uint64
	live    *roaring64.Bitmap

	// lowestFree is a lower bound on the smallest identifier not currently live.
	lowestFree uint64
}

// New creates an empty map backed by store.
func New(store *vectorstore.Store) *Map {
	return &Map{
		store:   store,
		forward: make(map[uint64]uint32),
		live:    roaring64.New(),
	}
}

// Len returns the number of live identifiers.
func (m *Map) Len() int { return len(m.forward) }

// Assign binds an identifier to a freshly allocated slot.
//
// If requested is nil the smallest non-negative identifier that is not live is
// used. alloc is only invoked after the identifier has been validated, so a
// rejected identifier never consumes a slot.
func (m *Map) Assign(requested *uint64, alloc func() (uint32, error)) (uint64, uint32, error) {
	var id uint64
	if requested != nil {
		id = *requested
		if _, ok := m.forward[id]; ok {
			return 0, 0, fmt.Errorf("%w: %d", ErrDuplicateID, id)
		}
	} else {
		id = m.nextFree()
	}

	slot, err := alloc()
	if err != nil {
		return 0, 0, err
	}
	if err := m.bind(id, slot); err != nil {
		return 0, 0, err
	}
	return id, slot, nil
}

func (m *Map) bind(id uint64, slot uint32) error {
	if int(slot) != len(m.reverse) {
		return fmt.Errorf("%w: expected slot %d, got %d", vectorstore.ErrInvalidSlot, len(m.reverse), slot)
	}
	m.reverse = append(m.reverse, id)
	m.forward[id] = slot
	m.live.Add(id)
	return nil
}

func (m *Map) nextFree() uint64 {
	for m.live.Contains(m.lowestFree) {
		m.lowestFree++
	}
	return m.lowestFree
}

// Resolve returns the slot bound to a live identifier.
func (m *Map) Resolve(id uint64) (uint32, error) {
	slot, ok := m.forward[id]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	return slot, nil
}

// Contains reports whether id is live.
func (m *Map) Contains(id uint64) bool {
	_, ok := m.forward[id]
	return ok
}

// Release tombstones the slot bound to id and frees id for reuse.
func (m *Map) Release(id uint64) error {
	slot, ok := m.forward[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownID, id)
	}
	if err := m.store.MarkDeleted(slot); err != nil {
		return err
	}
	delete(m.forward, id)
	m.live.Remove(id)
	if id < m.lowestFree {
		m.lowestFree = id
	}
	return nil
}

// ExternalID returns the identifier a slot was appended under, live or not.
func (m *Map) ExternalID(slot uint32) (uint64, error) {
	if int(slot) >= len(m.reverse) {
		return 0, fmt.Errorf("%w: %d", vectorstore.ErrInvalidSlot, slot)
	}
	return m.reverse[slot], nil
}

// IDs returns all live identifiers in ascending order.
func (m *Map) IDs() []uint64 {
	return m.live.ToArray()
}

// Restore rebinds a slot while rebuilding from a serialized index.
// Slots must be restored in ascending order starting at zero.
func (m *Map) Restore(id uint64, slot uint32, live bool) error {
	if !live {
		if int(slot) != len(m.reverse) {
			return fmt.Errorf("%w: expected slot %d, got %d", vectorstore.ErrInvalidSlot, len(m.reverse), slot)
		}
		m.reverse = append(m.reverse, id)
		return nil
	}
	if _, ok := m.forward[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateID, id)
	}
	return m.bind(id, slot)
}
