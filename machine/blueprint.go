package machine

import (
	"slices"
	"sync"

	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/foundry/types"
)

var (
	ErrUnknownBlueprint = eris.New("unknown machine blueprint")
	ErrBlueprintExists  = eris.New("machine blueprint already registered")
)

// Factory builds a machine of one kind at key. The world passes its own options (environment,
// logger) which the factory must apply after its own.
type Factory func(key types.Key, opts ...Option) *Machine

// Blueprints maps machine kinds to the factories that build them. It is created at startup,
// injected wherever machines are built, and can be reset between tests.
type Blueprints struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewBlueprints() *Blueprints {
	return &Blueprints{factories: make(map[string]Factory)}
}

func (b *Blueprints) Register(kind string, f Factory) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if kind == "" {
		return eris.New("blueprint kind must not be empty")
	}
	if _, ok := b.factories[kind]; ok {
		return eris.Wrapf(ErrBlueprintExists, "kind %q", kind)
	}
	b.factories[kind] = f
	return nil
}

func (b *Blueprints) New(kind string, key types.Key, opts ...Option) (*Machine, error) {
	b.mu.RLock()
	f, ok := b.factories[kind]
	b.mu.RUnlock()

	if !ok {
		return nil, eris.Wrapf(ErrUnknownBlueprint, "kind %q", kind)
	}
	return f(key, opts...), nil
}

func (b *Blueprints) Has(kind string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.factories[kind]
	return ok
}

// Kinds returns the registered kinds in sorted order.
func (b *Blueprints) Kinds() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	kinds := make([]string, 0, len(b.factories))
	for kind := range b.factories {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	return kinds
}

func (b *Blueprints) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.factories = make(map[string]Factory)
}
