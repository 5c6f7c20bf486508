package machine

import "pkg.world.dev/world-engine/foundry/types"

// Environment is what a machine asks the world it sits in.
type Environment interface {
	// PowerInput returns the redstone power level reaching key.
	PowerInput(key types.Key) int
}

type unpowered struct{}

func (unpowered) PowerInput(types.Key) int { return 0 }

// Unpowered is an Environment without any redstone power.
var Unpowered Environment = unpowered{}
