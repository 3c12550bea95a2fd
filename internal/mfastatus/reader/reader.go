// Package reader loads the worker-published MFA status snapshot. It never writes the snapshot and
// never blocks on the writer: a missing file is ErrNoSnapshot, a torn file is a parse error.
package reader

import (
	"context"
	"errors"

	"mfa-orphans/internal/mfastatus/domain"
	"mfa-orphans/internal/storage"
)

// ErrNoSnapshot means the worker has not published a snapshot yet. It is a valid state, not a failure.
var ErrNoSnapshot = errors.New("status snapshot not available")

// Source is the read side of a storage.Store.
type Source interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

// Reader reads one named snapshot blob from a Source.
type Reader struct {
	src  Source
	name string
}

// NewReader returns a Reader for the blob name in src (e.g. "status.json" in the status directory).
func NewReader(src Source, name string) *Reader {
	return &Reader{src: src, name: name}
}

// ReadRaw returns the snapshot document verbatim.
func (r *Reader) ReadRaw(ctx context.Context) ([]byte, error) {
	b, err := r.src.Get(ctx, r.name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNoSnapshot
		}
		return nil, err
	}
	return b, nil
}

// Read returns the parsed, normalized snapshot.
func (r *Reader) Read(ctx context.Context) (*domain.Snapshot, error) {
	b, err := r.ReadRaw(ctx)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// PingContext reports whether the snapshot source is reachable. A missing snapshot counts as healthy.
func (r *Reader) PingContext(ctx context.Context) error {
	_, err := r.ReadRaw(ctx)
	if errors.Is(err, ErrNoSnapshot) {
		return nil
	}
	return err
}
