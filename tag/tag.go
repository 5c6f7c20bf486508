// Package tag implements the nested key-tagged records machines are persisted and synced as.
//
// A Compound is a map of named values. Values are normalized to a small closed set of types
// (bool, int64, float64, string, Compound and List) so that a compound read back from its encoded
// form compares equal to the compound that was written. Getters follow the usual tagged-record
// convention: an absent key or a value of the wrong type reads as the zero value, never as an
// error.
package tag

import (
	"maps"
	"math"
)

type Compound map[string]any

// List is an ordered list of compounds.
type List []Compound

func New() Compound {
	return make(Compound)
}

func (c Compound) Has(key string) bool {
	_, ok := c[key]
	return ok
}

func (c Compound) HasString(key string) bool {
	_, ok := c[key].(string)
	return ok
}

func (c Compound) HasNumber(key string) bool {
	switch c[key].(type) {
	case int64, float64:
		return true
	default:
		return false
	}
}

func (c Compound) HasCompound(key string) bool {
	_, ok := c[key].(Compound)
	return ok
}

func (c Compound) Remove(key string) {
	delete(c, key)
}

func (c Compound) SetBool(key string, v bool) {
	c[key] = v
}

func (c Compound) SetByte(key string, v int8) {
	c[key] = int64(v)
}

func (c Compound) SetShort(key string, v int16) {
	c[key] = int64(v)
}

func (c Compound) SetInt(key string, v int) {
	c[key] = int64(v)
}

func (c Compound) SetLong(key string, v int64) {
	c[key] = v
}

func (c Compound) SetFloat(key string, v float64) {
	c[key] = v
}

func (c Compound) SetString(key string, v string) {
	c[key] = v
}

func (c Compound) SetCompound(key string, v Compound) {
	c[key] = v
}

func (c Compound) SetList(key string, v List) {
	c[key] = v
}

func (c Compound) GetBool(key string) bool {
	switch v := c[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	default:
		return false
	}
}

func (c Compound) GetLong(key string) int64 {
	switch v := c[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	default:
		return 0
	}
}

// GetByte truncates like a narrowing cast, as tagged records do.
func (c Compound) GetByte(key string) int8 {
	return int8(c.GetLong(key)) //nolint:gosec // narrowing is the documented behaviour
}

func (c Compound) GetShort(key string) int16 {
	return int16(c.GetLong(key)) //nolint:gosec // narrowing is the documented behaviour
}

func (c Compound) GetInt(key string) int {
	v := c.GetLong(key)
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0
	}
	return int(v)
}

func (c Compound) GetFloat(key string) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func (c Compound) GetString(key string) string {
	s, _ := c[key].(string)
	return s
}

// GetCompound never returns nil so lookups can be chained.
func (c Compound) GetCompound(key string) Compound {
	if v, ok := c[key].(Compound); ok {
		return v
	}
	return New()
}

func (c Compound) GetList(key string) List {
	l, _ := c[key].(List)
	return l
}

// Merge copies every entry of other into c, replacing existing keys.
func (c Compound) Merge(other Compound) {
	maps.Copy(c, other)
}

// Clone returns a deep copy.
func (c Compound) Clone() Compound {
	if c == nil {
		return nil
	}
	out := make(Compound, len(c))
	for k, v := range c {
		out[k] = cloneValue(v)
	}
	return out
}

func (l List) Clone() List {
	if l == nil {
		return nil
	}
	out := make(List, len(l))
	for i, c := range l {
		out[i] = c.Clone()
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Compound:
		return t.Clone()
	case List:
		return t.Clone()
	default:
		return v
	}
}
