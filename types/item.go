package types

import (
	"pkg.world.dev/world-engine/foundry/tag"
)

const DefaultMaxStack = 64

// ItemStack is a count of one item kind together with its damage value and tag data.
type ItemStack struct {
	Kind   string       `json:"kind"`
	Count  int          `json:"count"`
	Damage int          `json:"damage,omitempty"`
	Tag    tag.Compound `json:"tag,omitempty"`
}

func NewItemStack(kind string, count int) ItemStack {
	return ItemStack{Kind: kind, Count: count}
}

func (s ItemStack) IsEmpty() bool {
	return s.Kind == "" || s.Count <= 0
}

// SameItem reports whether two stacks hold the same kind and damage, ignoring count.
func (s ItemStack) SameItem(other ItemStack) bool {
	return s.Kind == other.Kind && s.Damage == other.Damage
}

func (s ItemStack) Clone() ItemStack {
	s.Tag = s.Tag.Clone()
	return s
}

// WithCount returns a copy of s holding n items.
func (s ItemStack) WithCount(n int) ItemStack {
	out := s.Clone()
	out.Count = n
	return out
}

// Write stores the stack into c using the item record keys.
func (s ItemStack) Write(c tag.Compound) {
	c.SetString("kind", s.Kind)
	c.SetInt("Count", s.Count)
	c.SetShort("Damage", int16(s.Damage)) //nolint:gosec // damage values are small
	if len(s.Tag) > 0 {
		c.SetCompound("tag", s.Tag.Clone())
	}
}

func ReadItemStack(c tag.Compound) ItemStack {
	s := ItemStack{
		Kind:   c.GetString("kind"),
		Count:  c.GetInt("Count"),
		Damage: int(c.GetShort("Damage")),
	}
	if c.HasCompound("tag") {
		s.Tag = c.GetCompound("tag").Clone()
	}
	return s
}
