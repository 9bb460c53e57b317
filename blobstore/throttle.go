package blobstore

import (
	"context"

	"golang.org/x/time/rate"
)

// ThrottledStore limits the bytes per second moved through a Store.
// Reads and writes share one budget.
type ThrottledStore struct {
	Store
	limiter *rate.Limiter
}

// Throttled wraps s so that Put and blob reads move at most bytesPerSec
// bytes per second. A non-positive rate returns s unchanged.
func Throttled(s Store, bytesPerSec int) Store {
	if bytesPerSec <= 0 {
		return s
	}
	return &ThrottledStore{
		Store:   s,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), bytesPerSec),
	}
}

// wait blocks until n bytes may pass. Requests above the burst are split.
func (t *ThrottledStore) wait(ctx context.Context, n int) error {
	burst := t.limiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := t.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// Put implements Store.
func (t *ThrottledStore) Put(ctx context.Context, name string, data []byte) error {
	if err := t.wait(ctx, len(data)); err != nil {
		return err
	}
	return t.Store.Put(ctx, name, data)
}

// Open implements Store. Reads through the returned blob are throttled.
func (t *ThrottledStore) Open(ctx context.Context, name string) (Blob, error) {
	b, err := t.Store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &throttledBlob{Blob: b, t: t}, nil
}

// throttledBlob deliberately hides Mappable so that every byte goes through ReadAt.
type throttledBlob struct {
	Blob
	t *ThrottledStore
}

func (b *throttledBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := b.t.wait(ctx, len(p)); err != nil {
		return 0, err
	}
	return b.Blob.ReadAt(ctx, p, off)
}
