package types_test

import (
	"slices"
	"testing"

	"github.com/goccy/go-json"

	"pkg.world.dev/world-engine/foundry/assert"
	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

func TestKey_ParseAndString(t *testing.T) {
	key := types.Key{Dim: -1, X: 10, Y: 64, Z: -3}
	parsed, err := types.ParseKey(key.String())
	assert.NilError(t, err)
	assert.Equal(t, key, parsed)

	for _, bad := range []string{"", "0", "0:1,2", "x:1,2,3", "0:1,2,z"} {
		_, err := types.ParseKey(bad)
		assert.IsError(t, err, bad)
	}
}

func TestKey_TextRoundTrip(t *testing.T) {
	key := types.Key{X: 1, Y: 2, Z: 3}
	bz, err := json.Marshal(struct {
		Key types.Key `json:"key"`
	}{Key: key})
	assert.NilError(t, err)
	assert.JSONEq(t, `{"key":"0:1,2,3"}`, string(bz))

	var out types.Key
	assert.NilError(t, out.UnmarshalText([]byte("0:1,2,3")))
	assert.Equal(t, key, out)
}

func TestCompareKeys(t *testing.T) {
	keys := []types.Key{{Dim: 1}, {X: 2}, {X: 1, Y: 5}, {X: 1, Y: 5, Z: -1}}
	slices.SortFunc(keys, types.CompareKeys)
	assert.DeepEqual(t, []types.Key{{X: 1, Y: 5, Z: -1}, {X: 1, Y: 5}, {X: 2}, {Dim: 1}}, keys)
}

func TestRedstoneMode_Active(t *testing.T) {
	assert.True(t, types.RedstoneHigh.Active(true))
	assert.False(t, types.RedstoneHigh.Active(false))
	assert.False(t, types.RedstoneLow.Active(true))
	assert.True(t, types.RedstoneLow.Active(false))
	assert.True(t, types.RedstoneDisabled.Active(true))
	assert.True(t, types.RedstoneDisabled.Active(false))
	assert.False(t, types.RedstoneMode(9).IsValid())

	mode, err := types.ParseRedstoneMode("low")
	assert.NilError(t, err)
	assert.Equal(t, types.RedstoneLow, mode)
}

func TestItemStack_WriteRead(t *testing.T) {
	owner := tag.New()
	owner.SetString("Owner", "someone")
	stack := types.ItemStack{Kind: "security_protocol", Count: 1, Damage: 2, Tag: owner}

	c := tag.New()
	stack.Write(c)
	assert.DeepEqual(t, stack, types.ReadItemStack(c))
	assert.True(t, stack.SameItem(stack.WithCount(5)))
	assert.True(t, types.ItemStack{}.IsEmpty())
}

func TestRedstoneMode_JSON(t *testing.T) {
	bz, err := json.Marshal(map[string]types.RedstoneMode{"mode": types.RedstoneLow})
	assert.NilError(t, err)
	assert.Equal(t, `{"mode":"LOW"}`, string(bz))

	var decoded struct {
		Mode types.RedstoneMode `json:"mode"`
	}
	assert.NilError(t, json.Unmarshal([]byte(`{"mode":"disabled"}`), &decoded))
	assert.Equal(t, types.RedstoneDisabled, decoded.Mode)
	assert.ErrorContains(t, json.Unmarshal([]byte(`{"mode":"sideways"}`), &decoded), "invalid redstone mode")
}
