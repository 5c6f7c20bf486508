package types

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// Key identifies a machine by the dimension and block position it occupies.
// It encodes as its String form in JSON.
type Key struct {
	Dim int32
	X   int32
	Y   int32
	Z   int32
}

// String renders the key as "dim:x,y,z". ParseKey accepts the same form.
func (k Key) String() string {
	return fmt.Sprintf("%d:%d,%d,%d", k.Dim, k.X, k.Y, k.Z)
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

func ParseKey(s string) (Key, error) {
	dim, pos, ok := strings.Cut(s, ":")
	if !ok {
		return Key{}, eris.Errorf("key %q is missing the dimension separator", s)
	}
	coords := strings.Split(pos, ",")
	if len(coords) != 3 { //nolint:gomnd // x,y,z
		return Key{}, eris.Errorf("key %q must have exactly three coordinates", s)
	}

	values := make([]int32, 0, 4) //nolint:gomnd // dim + x,y,z
	for _, part := range append([]string{dim}, coords...) {
		v, err := strconv.ParseInt(strings.TrimSpace(part), 10, 32)
		if err != nil {
			return Key{}, eris.Wrapf(err, "key %q has a malformed component %q", s, part)
		}
		values = append(values, int32(v))
	}
	return Key{Dim: values[0], X: values[1], Y: values[2], Z: values[3]}, nil
}

// CompareKeys orders keys by dimension, then x, y and z.
func CompareKeys(a, b Key) int {
	return cmp.Or(
		cmp.Compare(a.Dim, b.Dim),
		cmp.Compare(a.X, b.X),
		cmp.Compare(a.Y, b.Y),
		cmp.Compare(a.Z, b.Z),
	)
}
