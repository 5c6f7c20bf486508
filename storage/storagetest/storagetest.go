// Package storagetest checks that a storage.Store implementation behaves like the others.
package storagetest

import (
	"context"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"pkg.world.dev/world-engine/foundry/assert"
	"pkg.world.dev/world-engine/foundry/storage"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

func record(x int32, kind string, tick uint64, energy int) storage.Record {
	state := tag.New()
	state.SetInt("Energy", energy)
	state.SetString("Owner", "3f1b0c1e-3c55-4a43-9f66-4a1f4d3c2b10")
	items := tag.New()
	items.SetByte("Slot", 0)
	items.SetString("kind", "dirt")
	items.SetInt("Count", 3)
	state.SetList("Items", tag.List{items})
	return storage.Record{Key: types.Key{X: x, Y: 64}, Kind: kind, Tick: tick, State: state}
}

func sorted(records []storage.Record) []storage.Record {
	slices.SortFunc(records, func(a, b storage.Record) int { return types.CompareKeys(a.Key, b.Key) })
	return records
}

// Run exercises newStore's records and layouts. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("records", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		loaded, err := s.Load(ctx)
		require.NoError(t, err)
		assert.Empty(t, loaded)

		a, b := record(1, "matter_recycler", 10, 500), record(-2, "matter_recycler", 10, 0)
		require.NoError(t, s.Save(ctx, []storage.Record{a, b}))
		require.NoError(t, s.Save(ctx, nil))

		loaded, err = s.Load(ctx)
		require.NoError(t, err)
		assert.DeepEqual(t, []storage.Record{b, a}, sorted(loaded))

		updated := record(1, "matter_recycler", 20, 900)
		require.NoError(t, s.Save(ctx, []storage.Record{updated}))
		require.NoError(t, s.Delete(ctx, b.Key))

		loaded, err = s.Load(ctx)
		require.NoError(t, err)
		assert.DeepEqual(t, []storage.Record{updated}, loaded)

		require.NoError(t, s.Delete(ctx, types.Key{X: 99}))
		require.NoError(t, s.Delete(ctx))
	})

	t.Run("layouts", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)
		layout := []byte(`{"kind":"matter_recycler","slots":["input","output"],"components":["matter_recycler"]}`)

		_, err := s.GetLayout(ctx, "matter_recycler")
		assert.ErrorIs(t, err, storage.ErrNoLayoutFound)

		require.NoError(t, storage.CheckLayout(ctx, s, "matter_recycler", layout))
		stored, err := s.GetLayout(ctx, "matter_recycler")
		require.NoError(t, err)
		assert.JSONEq(t, string(layout), string(stored))

		reordered := []byte(`{"components":["matter_recycler"],"kind":"matter_recycler","slots":["input","output"]}`)
		require.NoError(t, storage.CheckLayout(ctx, s, "matter_recycler", reordered))

		changed := []byte(`{"kind":"matter_recycler","slots":["input","output","upgrade"],"components":["matter_recycler"]}`)
		err = storage.CheckLayout(ctx, s, "matter_recycler", changed)
		assert.ErrorIs(t, err, storage.ErrLayoutMismatch)
		assert.ErrorContains(t, err, "/slots/-")
	})

	t.Run("meta", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.GetMeta(ctx, "registry")
		assert.ErrorIs(t, err, storage.ErrNoMetaFound)

		require.NoError(t, s.SetMeta(ctx, "registry", []byte(`{"matter":{"log":100}}`)))
		require.NoError(t, s.SetMeta(ctx, "registry", []byte(`{"matter":{"log":120}}`)))
		value, err := s.GetMeta(ctx, "registry")
		require.NoError(t, err)
		assert.JSONEq(t, `{"matter":{"log":120}}`, string(value))
	})
}
