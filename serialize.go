package voyago

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hupe1980/voyago/blobstore"
	"github.com/hupe1980/voyago/distance"
	"github.com/hupe1980/voyago/internal/vectorstore"
	"github.com/hupe1980/voyago/persistence"
)

// Payload layout (little-endian), wrapped in a persistence envelope:
//
//	header:   dim u32 | metric u8 | M u32 | efConstruction u32 | entry i64 | slots u32
//	per slot: live u8 | vector [dim]f32 | id u64 | layers u32 | layers x (count u32, [count]u32)
const (
	payloadHeaderSize = 4 + 1 + 4 + 4 + 8 + 4
	maxLayers         = 33
)

// encodePayload writes the core layout. The caller must hold at least a read lock.
func (idx *Index) encodePayload() ([]byte, error) {
	slots := idx.store.Len()
	w := persistence.NewBinaryWriter(payloadHeaderSize + slots*(1+4*idx.dim+8+4+4*idx.graph.M()))

	entry := int64(-1)
	if ep, ok := idx.graph.EntryPoint(); ok {
		entry = int64(ep)
	}

	w.WriteUint32(uint32(idx.dim))
	w.WriteUint8(uint8(idx.metric))
	w.WriteUint32(uint32(idx.graph.M()))
	w.WriteUint32(uint32(idx.graph.EFConstruction()))
	w.WriteInt64(entry)
	w.WriteUint32(uint32(slots))

	for i := range slots {
		slot := uint32(i)
		vec, err := idx.store.Get(slot)
		if err != nil {
			return nil, translateError(err)
		}
		id, err := idx.ids.ExternalID(slot)
		if err != nil {
			return nil, translateError(err)
		}
		level, err := idx.graph.Level(slot)
		if err != nil {
			return nil, translateError(err)
		}

		w.WriteBool(!idx.store.IsDeleted(slot))
		w.WriteFloat32Slice(vec)
		w.WriteUint64(id)
		w.WriteUint32(uint32(level + 1))
		for layer := 0; layer <= level; layer++ {
			conns, err := idx.graph.Neighbors(slot, layer)
			if err != nil {
				return nil, translateError(err)
			}
			w.WriteUint32List(conns)
		}
	}

	if err := w.Err(); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// decodePayload rebuilds an index from the core layout.
func decodePayload(payload []byte, opts options) (*Index, error) {
	r := persistence.NewBinaryReader(payload)

	dim := int(r.ReadUint32())
	metric := distance.Metric(r.ReadUint8())
	m := int(r.ReadUint32())
	efConstruction := int(r.ReadUint32())
	entry := r.ReadInt64()
	slots := int(r.ReadUint32())
	if err := r.Err(); err != nil {
		return nil, corrupt("header: %v", err)
	}

	switch {
	case dim <= 0:
		return nil, corrupt("dimension %d", dim)
	case !metric.Valid():
		return nil, corrupt("metric tag %d", uint8(metric))
	case m < 2:
		return nil, corrupt("M %d", m)
	case efConstruction < 1:
		return nil, corrupt("efConstruction %d", efConstruction)
	}
	if opts.expectedDimension > 0 && opts.expectedDimension != dim {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSerialization,
			&ErrDimensionMismatch{Expected: opts.expectedDimension, Actual: dim})
	}

	// Every slot needs at least its fixed-size part; reject impossible counts
	// before allocating for them.
	minSlotSize := 1 + 4*dim + 8 + 4 + 4
	if slots > r.Remaining()/minSlotSize {
		return nil, corrupt("%d slots cannot fit in %d bytes", slots, r.Remaining())
	}
	if (slots == 0) != (entry < 0) || entry >= int64(slots) {
		return nil, corrupt("entry point %d for %d slots", entry, slots)
	}

	store, err := vectorstore.New(dim)
	if err != nil {
		return nil, corrupt("%v", err)
	}
	graph, err := newGraph(store, metric, m, efConstruction, opts)
	if err != nil {
		return nil, corrupt("%v", err)
	}
	idx := newIndex(dim, metric, store, graph, opts)

	vec := make([]float32, dim)
	for i := range slots {
		slot := uint32(i)

		live := r.ReadBool()
		r.ReadFloat32SliceInto(vec)
		id := r.ReadUint64()
		layers := int(r.ReadUint32())
		if err := r.Err(); err != nil {
			return nil, corrupt("slot %d: %v", slot, err)
		}
		if layers < 1 || layers > maxLayers {
			return nil, corrupt("slot %d has %d layers", slot, layers)
		}

		conns := make([][]uint32, layers)
		for layer := range conns {
			limit := m
			if layer == 0 {
				limit = 2 * m
			}
			conns[layer] = r.ReadUint32List(limit)
		}
		if err := r.Err(); err != nil {
			return nil, corrupt("slot %d edges: %v", slot, err)
		}

		got, err := store.Append(vec)
		if err != nil {
			return nil, corrupt("slot %d: %v", slot, err)
		}
		if got != slot {
			return nil, corrupt("slot %d stored at %d", slot, got)
		}
		if !live {
			if err := store.MarkDeleted(slot); err != nil {
				return nil, corrupt("slot %d: %v", slot, err)
			}
		}
		if err := idx.ids.Restore(id, slot, live); err != nil {
			return nil, corrupt("slot %d: %v", slot, err)
		}
		if err := graph.Restore(slot, layers-1, conns); err != nil {
			return nil, translateError(err)
		}
	}

	if r.Remaining() != 0 {
		return nil, corrupt("%d trailing bytes", r.Remaining())
	}
	if entry >= 0 {
		if err := graph.SetEntryPoint(uint32(entry)); err != nil {
			return nil, translateError(err)
		}
	}
	if err := graph.Validate(); err != nil {
		return nil, translateError(err)
	}
	return idx, nil
}

// Serialize returns the index as a single self-describing blob.
func (idx *Index) Serialize() ([]byte, error) {
	idx.mu.RLock()
	payload, err := idx.encodePayload()
	c := idx.compression
	idx.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return persistence.Encode(payload, c)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (idx *Index) MarshalBinary() ([]byte, error) {
	return idx.Serialize()
}

// WriteTo writes the serialized index to w. It implements io.WriterTo.
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	idx.mu.RLock()
	payload, err := idx.encodePayload()
	c := idx.compression
	idx.mu.RUnlock()
	if err != nil {
		return 0, err
	}
	return persistence.WriteEnvelope(w, payload, c)
}

// Deserialize rebuilds an index from a blob produced by Serialize.
func Deserialize(blob []byte, optFns ...Option) (*Index, error) {
	opts := applyOptions(optFns)
	payload, _, err := persistence.Decode(blob)
	if err != nil {
		return nil, translateError(err)
	}
	return decodePayload(payload, opts)
}

// Load reads one serialized index from r.
func Load(r io.Reader, optFns ...Option) (*Index, error) {
	opts := applyOptions(optFns)
	payload, _, err := persistence.ReadEnvelope(r)
	if err != nil {
		return nil, translateError(err)
	}
	return decodePayload(payload, opts)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler. The receiver keeps
// its logger, metrics collector, query settings and insert policy; everything
// else is replaced by the blob's contents.
func (idx *Index) UnmarshalBinary(data []byte) error {
	opts := applyOptions(nil)

	idx.mu.RLock()
	if idx.logger != nil {
		opts.logger = idx.logger
	}
	if idx.metrics != nil {
		opts.metricsCollector = idx.metrics
	}
	if idx.efSearch > 0 {
		opts.efSearch = idx.efSearch
	}
	opts.maxVisited = idx.maxVisited
	opts.compression = idx.compression
	opts.queryParallelism = idx.queryParallelism
	if idx.levelMultiplier > 0 {
		opts.levelMultiplier = idx.levelMultiplier
	}
	opts.seed = idx.seed
	opts.keepPruned = idx.keepPruned
	idx.mu.RUnlock()

	loaded, err := Deserialize(data, func(o *options) { *o = opts })
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dim = loaded.dim
	idx.metric = loaded.metric
	idx.store = loaded.store
	idx.ids = loaded.ids
	idx.graph = loaded.graph
	idx.efSearch = loaded.efSearch
	idx.maxVisited = loaded.maxVisited
	idx.compression = loaded.compression
	idx.queryParallelism = loaded.queryParallelism
	idx.levelMultiplier = loaded.levelMultiplier
	idx.seed = loaded.seed
	idx.keepPruned = loaded.keepPruned
	idx.metrics = loaded.metrics
	idx.logger = loaded.logger
	return nil
}

// SaveToFile atomically writes the serialized index to filename.
func (idx *Index) SaveToFile(filename string) error {
	var size int64
	err := persistence.SaveToFile(filename, func(w io.Writer) error {
		n, err := idx.WriteTo(w)
		size = n
		return err
	})
	idx.logger.LogSnapshot(context.Background(), filename, size, err)
	return err
}

// LoadFromFile reads an index written by SaveToFile.
func LoadFromFile(filename string, optFns ...Option) (*Index, error) {
	var idx *Index
	err := persistence.LoadFromFile(filename, func(r io.Reader) error {
		var err error
		idx, err = Load(r, optFns...)
		return err
	})
	logLoad(context.Background(), applyOptions(optFns).logger, filename, idx, err)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Save stores the serialized index as name in store.
func (idx *Index) Save(ctx context.Context, store blobstore.Store, name string) error {
	blob, err := idx.Serialize()
	if err == nil {
		err = store.Put(ctx, name, blob)
	}
	idx.logger.LogSnapshot(ctx, name, int64(len(blob)), err)
	return err
}

// Open loads the index stored as name in store.
func Open(ctx context.Context, store blobstore.Store, name string, optFns ...Option) (*Index, error) {
	idx, err := openBlob(ctx, store, name, optFns)
	logLoad(ctx, applyOptions(optFns).logger, name, idx, err)
	return idx, err
}

func openBlob(ctx context.Context, store blobstore.Store, name string, optFns []Option) (*Index, error) {
	blob, err := blobstore.ReadAll(ctx, store, name)
	if err != nil {
		return nil, err
	}
	return Deserialize(blob, optFns...)
}

func logLoad(ctx context.Context, logger *Logger, name string, idx *Index, err error) {
	if err != nil {
		logger.LogLoad(ctx, name, 0, 0, err)
		return
	}
	st := idx.Stats()
	logger.LogLoad(ctx, name, st.Live, st.Deleted, nil)
}

// IsCorrupt reports whether err stems from a malformed serialized index.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrCorruptSerialization)
}
