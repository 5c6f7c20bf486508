// Package worldstage tracks the lifecycle stage of a running world.
package worldstage

import (
	"sync/atomic"

	"github.com/rotisserie/eris"
)

type Stage string

const (
	Init         Stage = "Init"         // The default stage
	Starting     Stage = "Starting"     // Start was called
	Loading      Stage = "Loading"      // Layouts are checked and stored machines are loaded
	Running      Stage = "Running"      // The tick loop is running
	ShuttingDown Stage = "ShuttingDown" // Stop was called; the final save is in progress
	ShutDown     Stage = "ShutDown"     // Everything is saved and closed
)

var ErrInvalidTransition = eris.New("invalid world stage transition")

// next lists the stages each stage may move to.
var next = map[Stage][]Stage{
	Init:         {Starting, ShuttingDown},
	Starting:     {Loading, ShuttingDown},
	Loading:      {Running, ShuttingDown},
	Running:      {ShuttingDown},
	ShuttingDown: {ShutDown},
}

type Manager struct {
	current atomic.Value
}

func NewManager() *Manager {
	m := &Manager{}
	m.current.Store(Init)
	return m
}

func (m *Manager) Current() Stage {
	return m.current.Load().(Stage) //nolint:forcetypeassert // only Stage is stored
}

func (m *Manager) CompareAndSwap(oldStage, newStage Stage) bool {
	return m.current.CompareAndSwap(oldStage, newStage)
}

// Advance moves to stage when the current stage allows it.
func (m *Manager) Advance(stage Stage) error {
	current := m.Current()
	for _, allowed := range next[current] {
		if allowed == stage {
			if !m.CompareAndSwap(current, stage) {
				return eris.Wrapf(ErrInvalidTransition, "stage changed concurrently from %s", current)
			}
			return nil
		}
	}
	return eris.Wrapf(ErrInvalidTransition, "%s -> %s", current, stage)
}

// CanTick reports whether the world may run a tick in the current stage. The final tick runs
// while shutting down.
func (m *Manager) CanTick() bool {
	switch m.Current() {
	case Running, ShuttingDown:
		return true
	default:
		return false
	}
}
