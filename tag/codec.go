package tag

import (
	"bytes"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/rotisserie/eris"
)

var (
	encoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	decoder, _ = zstd.NewReader(nil)
)

func Marshal(c Compound) ([]byte, error) {
	bz, err := json.Marshal(c)
	if err != nil {
		return nil, eris.Wrap(err, "failed to encode compound")
	}
	return bz, nil
}

func Unmarshal(bz []byte) (Compound, error) {
	dec := json.NewDecoder(bytes.NewReader(bz))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, eris.Wrap(err, "failed to decode compound")
	}
	return normalizeCompound(raw), nil
}

// MarshalCompressed encodes c and compresses it with zstd.
func MarshalCompressed(c Compound) ([]byte, error) {
	bz, err := Marshal(c)
	if err != nil {
		return nil, err
	}
	return encoder.EncodeAll(bz, make([]byte, 0, len(bz))), nil
}

func UnmarshalCompressed(bz []byte) (Compound, error) {
	raw, err := decoder.DecodeAll(bz, nil)
	if err != nil {
		return nil, eris.Wrap(err, "failed to decompress compound")
	}
	return Unmarshal(raw)
}

// FromAny converts a generic decoded value (for example a request body) into a compound.
func FromAny(v map[string]any) Compound {
	return normalizeCompound(v)
}

// UnmarshalJSON lets a Compound be embedded in other JSON documents and still come back
// normalized.
func (c *Compound) UnmarshalJSON(bz []byte) error {
	if bytes.Equal(bytes.TrimSpace(bz), []byte("null")) {
		*c = nil
		return nil
	}
	out, err := Unmarshal(bz)
	if err != nil {
		return err
	}
	*c = out
	return nil
}

func normalizeCompound(raw map[string]any) Compound {
	out := make(Compound, len(raw))
	for k, v := range raw {
		if nv, ok := normalize(v); ok {
			out[k] = nv
		}
	}
	return out
}

func normalize(v any) (any, bool) {
	switch t := v.(type) {
	case bool, string, int64, float64:
		return t, true
	case int:
		return int64(t), true
	case int32:
		return int64(t), true
	case int16:
		return int64(t), true
	case int8:
		return int64(t), true
	case uint8:
		return int64(t), true
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return f, true
		}
		return nil, false
	case Compound:
		return normalizeCompound(t), true
	case map[string]any:
		return normalizeCompound(t), true
	case List:
		return t.Clone(), true
	case []any:
		list := make(List, 0, len(t))
		for _, e := range t {
			if m, ok := e.(map[string]any); ok {
				list = append(list, normalizeCompound(m))
			}
		}
		return list, true
	default:
		return nil, false
	}
}
