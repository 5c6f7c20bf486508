// Package storage persists machine records between runs. A record is the full tagged state of a
// machine, stored compressed. Stores also keep the slot and component layout of every machine
// kind so a changed blueprint is caught before old records are read into it.
package storage

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"github.com/wI2L/jsondiff"

	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

var (
	ErrNoLayoutFound  = errors.New("no layout found")
	ErrNoMetaFound    = errors.New("no meta value found")
	ErrLayoutMismatch = errors.New("stored layout does not match blueprint")
)

const (
	recordKind  = "kind"
	recordTick  = "tick"
	recordState = "state"
)

// Record is the persisted form of one machine.
type Record struct {
	Key   types.Key
	Kind  string
	Tick  uint64
	State tag.Compound
}

type Store interface {
	// Save upserts records in one batch.
	Save(ctx context.Context, records []Record) error
	Delete(ctx context.Context, keys ...types.Key) error
	// Load returns every stored record in no particular order. Records that cannot be decoded
	// are logged and skipped.
	Load(ctx context.Context) ([]Record, error)
	GetLayout(ctx context.Context, kind string) ([]byte, error)
	SetLayout(ctx context.Context, kind string, layout []byte) error
	// GetMeta returns world-wide state stored under name, such as runtime registry changes.
	GetMeta(ctx context.Context, name string) ([]byte, error)
	SetMeta(ctx context.Context, name string, value []byte) error
	Close() error
}

// EncodeRecord compresses the kind, tick and state of r. The key is stored by the caller.
func EncodeRecord(r Record) ([]byte, error) {
	c := tag.New()
	c.SetString(recordKind, r.Kind)
	c.SetLong(recordTick, int64(r.Tick)) //nolint:gosec // ticks stay far below MaxInt64
	c.SetCompound(recordState, r.State)
	bz, err := tag.MarshalCompressed(c)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to encode record %s", r.Key)
	}
	return bz, nil
}

func DecodeRecord(key types.Key, bz []byte) (Record, error) {
	c, err := tag.UnmarshalCompressed(bz)
	if err != nil {
		return Record{}, eris.Wrapf(err, "failed to decode record %s", key)
	}
	if !c.HasString(recordKind) {
		return Record{}, eris.Errorf("record %s has no kind", key)
	}
	return Record{
		Key:   key,
		Kind:  c.GetString(recordKind),
		Tick:  uint64(c.GetLong(recordTick)), //nolint:gosec // written from a uint64
		State: c.GetCompound(recordState),
	}, nil
}

// CheckLayout compares layout with the one stored for kind. The first check of a kind stores its
// layout; later checks fail with ErrLayoutMismatch when the two differ.
func CheckLayout(ctx context.Context, s Store, kind string, layout []byte) error {
	stored, err := s.GetLayout(ctx, kind)
	if errors.Is(err, ErrNoLayoutFound) {
		return s.SetLayout(ctx, kind, layout)
	}
	if err != nil {
		return err
	}

	patch, err := jsondiff.CompareJSON(stored, layout)
	if err != nil {
		return eris.Wrapf(err, "failed to compare layouts of %q", kind)
	}
	if patch.String() != "" {
		return eris.Wrapf(ErrLayoutMismatch, "kind %q: %s", kind, patch.String())
	}
	return nil
}
