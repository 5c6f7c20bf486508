package types

import (
	"strings"

	"github.com/rotisserie/eris"
)

// RedstoneMode decides how a machine reacts to redstone power.
type RedstoneMode uint8

const (
	// RedstoneHigh runs the machine only while powered.
	RedstoneHigh RedstoneMode = iota
	// RedstoneLow runs the machine only while unpowered.
	RedstoneLow
	// RedstoneDisabled ignores redstone.
	RedstoneDisabled
)

func (m RedstoneMode) IsValid() bool {
	return m <= RedstoneDisabled
}

// Active reports whether a machine in this mode may run given the current redstone state.
func (m RedstoneMode) Active(powered bool) bool {
	switch m {
	case RedstoneHigh:
		return powered
	case RedstoneLow:
		return !powered
	case RedstoneDisabled:
		return true
	default:
		return true
	}
}

func (m RedstoneMode) String() string {
	switch m {
	case RedstoneHigh:
		return "HIGH"
	case RedstoneLow:
		return "LOW"
	case RedstoneDisabled:
		return "DISABLED"
	default:
		return "UNKNOWN"
	}
}

func ParseRedstoneMode(s string) (RedstoneMode, error) {
	switch strings.ToUpper(s) {
	case "HIGH":
		return RedstoneHigh, nil
	case "LOW":
		return RedstoneLow, nil
	case "DISABLED":
		return RedstoneDisabled, nil
	default:
		return 0, eris.Errorf("invalid redstone mode: %s", s)
	}
}

func (m RedstoneMode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, eris.Errorf("invalid redstone mode: %d", m)
	}
	return []byte(m.String()), nil
}

func (m *RedstoneMode) UnmarshalText(text []byte) error {
	parsed, err := ParseRedstoneMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
