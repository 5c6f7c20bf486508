package world

import (
	"sync"

	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/types"
)

var _ machine.Environment = (*PowerGrid)(nil)

// PowerGrid is the redstone power level at every position that has been powered.
type PowerGrid struct {
	mu     sync.RWMutex
	levels map[types.Key]int
}

func NewPowerGrid() *PowerGrid {
	return &PowerGrid{levels: make(map[types.Key]int)}
}

// Set stores the power level at key. Levels at or below zero unpower the position.
func (g *PowerGrid) Set(key types.Key, level int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if level <= 0 {
		delete(g.levels, key)
		return
	}
	g.levels[key] = level
}

// PowerInput is the strongest level at key or at any position sharing a face with it.
func (g *PowerGrid) PowerInput(key types.Key) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	level := g.levels[key]
	for _, n := range Neighbors(key) {
		level = max(level, g.levels[n])
	}
	return level
}

// Neighbors returns the six positions sharing a face with key in the same dimension.
func Neighbors(key types.Key) []types.Key {
	return []types.Key{
		{Dim: key.Dim, X: key.X - 1, Y: key.Y, Z: key.Z},
		{Dim: key.Dim, X: key.X + 1, Y: key.Y, Z: key.Z},
		{Dim: key.Dim, X: key.X, Y: key.Y - 1, Z: key.Z},
		{Dim: key.Dim, X: key.X, Y: key.Y + 1, Z: key.Z},
		{Dim: key.Dim, X: key.X, Y: key.Y, Z: key.Z - 1},
		{Dim: key.Dim, X: key.X, Y: key.Y, Z: key.Z + 1},
	}
}
