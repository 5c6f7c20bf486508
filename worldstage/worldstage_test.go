package worldstage

import (
	"testing"

	"pkg.world.dev/world-engine/foundry/assert"
)

func TestStartsInInit(t *testing.T) {
	m := NewManager()
	assert.Equal(t, Init, m.Current())
	assert.False(t, m.CanTick())
}

func TestFullLifecycle(t *testing.T) {
	m := NewManager()
	for _, stage := range []Stage{Starting, Loading, Running, ShuttingDown, ShutDown} {
		assert.NilError(t, m.Advance(stage))
		assert.Equal(t, stage, m.Current())
	}
	assert.False(t, m.CanTick())
}

func TestInvalidTransitions(t *testing.T) {
	m := NewManager()
	assert.ErrorIs(t, m.Advance(Running), ErrInvalidTransition)
	assert.Equal(t, Init, m.Current())

	assert.NilError(t, m.Advance(ShuttingDown))
	assert.ErrorIs(t, m.Advance(Running), ErrInvalidTransition)
	assert.NilError(t, m.Advance(ShutDown))
	assert.ErrorIs(t, m.Advance(ShuttingDown), ErrInvalidTransition)
}

func TestOnlyOneCompareAndSwapSuccess(t *testing.T) {
	successCh := make(chan bool)
	m := NewManager()

	for i := 0; i < 10; i++ {
		go func() {
			successCh <- m.CompareAndSwap(Init, ShutDown)
		}()
	}

	successCount := 0
	for i := 0; i < 10; i++ {
		if <-successCh {
			successCount++
		}
	}
	assert.Equal(t, 1, successCount)
}
