package search_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pkg.world.dev/world-engine/foundry/assert"
	"pkg.world.dev/world-engine/foundry/search"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

func doc(x int32, kind string, energy int, components ...string) search.Document {
	state := tag.New()
	state.SetInt("Energy", energy)
	state.SetByte("redstoneMode", int8(types.RedstoneLow))
	return search.Document{Key: types.Key{X: x}, Kind: kind, Components: components, State: state}
}

func testIndex() *search.Index {
	return search.NewIndex([]search.Document{
		doc(1, "matter_recycler", 100, "matter_recycler", "energy_storage"),
		doc(2, "matter_recycler", 9000, "matter_recycler", "energy_storage"),
		doc(3, "battery", 50, "energy_storage"),
		doc(4, "crate", 0, "storage"),
	})
}

func keys(docs []search.Document) []int32 {
	out := make([]int32, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Key.X)
	}
	return out
}

func TestSearch_FindAndMatch(t *testing.T) {
	ix := testIndex()

	got, err := ix.Search(search.Param{Find: []string{"energy_storage"}, Match: search.MatchContains})
	require.NoError(t, err)
	assert.DeepEqual(t, []int32{1, 2, 3}, keys(got))

	got, err = ix.Search(search.Param{Find: []string{"energy_storage"}, Match: search.MatchExact})
	require.NoError(t, err)
	assert.DeepEqual(t, []int32{3}, keys(got))

	got, err = ix.Search(search.Param{
		Find:  []string{"energy_storage", "matter_recycler"},
		Match: search.MatchExact,
	})
	require.NoError(t, err)
	assert.DeepEqual(t, []int32{1, 2}, keys(got))
}

func TestSearch_Where(t *testing.T) {
	ix := testIndex()

	got, err := ix.Search(search.Param{
		Find:  []string{"energy_storage"},
		Match: search.MatchContains,
		Where: "Energy >= 100 && _kind == 'matter_recycler'",
	})
	require.NoError(t, err)
	assert.DeepEqual(t, []int32{1, 2}, keys(got))

	got, err = ix.Search(search.Param{CQL: "ALL()", Where: "_key == '0:4,0,0' || redstoneMode == 2"})
	require.NoError(t, err)
	assert.DeepEqual(t, []int32{4}, keys(got))
}

func TestSearch_CQL(t *testing.T) {
	ix := testIndex()

	cases := []struct {
		cql  string
		want []int32
	}{
		{"ALL()", []int32{1, 2, 3, 4}},
		{"CONTAINS(energy_storage)", []int32{1, 2, 3}},
		{"EXACT(energy_storage)", []int32{3}},
		{"!CONTAINS(energy_storage)", []int32{4}},
		{"EXACT(storage) | EXACT(energy_storage)", []int32{3, 4}},
		{"CONTAINS(energy_storage) & !(EXACT(energy_storage))", []int32{1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.cql, func(t *testing.T) {
			got, err := ix.Search(search.Param{CQL: tc.cql})
			require.NoError(t, err)
			assert.DeepEqual(t, tc.want, keys(got))
		})
	}
}

func TestSearch_InvalidParams(t *testing.T) {
	ix := testIndex()

	cases := map[string]struct {
		param search.Param
		want  string
	}{
		"empty find":      {search.Param{Match: search.MatchExact}, "component list cannot be empty"},
		"bad match":       {search.Param{Find: []string{"storage"}, Match: "some"}, "invalid `match` value"},
		"find and cql":    {search.Param{Find: []string{"storage"}, CQL: "ALL()"}, "cannot be combined"},
		"bad where":       {search.Param{CQL: "ALL()", Where: "Energy >"}, "failed to parse where clause"},
		"bad cql":         {search.Param{CQL: "EXACT("}, "failed to parse cql"},
		"unknown in find": {search.Param{Find: []string{"nope"}, Match: search.MatchContains}, `"nope"`},
		"unknown in cql":  {search.Param{CQL: "CONTAINS(nope)"}, `"nope"`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ix.Search(tc.param)
			assert.ErrorContains(t, err, tc.want)
		})
	}

	_, err := ix.Search(search.Param{Find: []string{"nope"}, Match: search.MatchContains})
	assert.ErrorIs(t, err, search.ErrUnknownComponent)
}
