package world

import (
	"context"

	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/foundry/energy"
	"pkg.world.dev/world-engine/foundry/inventory"
	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/netsync"
	"pkg.world.dev/world-engine/foundry/types"
)

var (
	ErrInvalidRedstoneMode = eris.New("invalid redstone mode")
	ErrNoEnergyStorage     = eris.New("machine has no energy storage")
)

// Event is a change to the world requested from outside the tick goroutine.
type Event interface {
	Name() string
	apply(w *World) (any, error)
}

// Result is what applying an event produced.
type Result struct {
	Value any
	Err   error
}

type submission struct {
	event Event
	reply chan Result
}

// Submit queues ev for the next tick. The returned channel receives the result once the event
// has been applied.
func (w *World) Submit(ev Event) (<-chan Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil, ErrWorldStopped
	}
	reply := make(chan Result, 1)
	w.pending = append(w.pending, submission{event: ev, reply: reply})
	return reply, nil
}

// Do submits ev and waits for its result.
func (w *World) Do(ctx context.Context, ev Event) (any, error) {
	reply, err := w.Submit(ev)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "event %s", ev.Name())
	}
}

// PendingEvents returns how many events wait for the next tick.
func (w *World) PendingEvents() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

func (w *World) applyEvents() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make([]submission, 0, len(pending))
	w.mu.Unlock()

	for _, s := range pending {
		value, err := s.event.apply(w)
		if err != nil {
			w.logger.Debug().Err(err).Str("event", s.event.Name()).Msg("event rejected")
		}
		s.reply <- Result{Value: value, Err: err}
	}
}

func (w *World) lookup(key types.Key) (*machine.Machine, error) {
	m, ok := w.machines[key]
	if !ok {
		return nil, eris.Wrapf(ErrMachineNotFound, "key %s", key)
	}
	return m, nil
}

func (w *World) usable(key types.Key, r machine.Requester) (*machine.Machine, error) {
	m, err := w.lookup(key)
	if err != nil {
		return nil, err
	}
	if !m.IsUsableBy(r) {
		return nil, eris.Wrapf(ErrNotUsable, "key %s", key)
	}
	return m, nil
}

// Place builds a machine of Kind at Key. When Item carries the data of a dismantled machine, the
// new machine is restored from it.
type Place struct {
	Key  types.Key        `json:"key"`
	Kind string           `json:"kind"`
	Item *types.ItemStack `json:"item,omitempty"`
}

func (Place) Name() string { return "place" }

func (e Place) apply(w *World) (any, error) {
	if _, ok := w.machines[e.Key]; ok {
		return nil, eris.Wrapf(ErrMachineExists, "key %s", e.Key)
	}
	m, err := w.build(e.Kind, e.Key)
	if err != nil {
		return nil, err
	}
	if e.Item != nil {
		m.PlaceFrom(*e.Item)
	}
	m.ForceSync()
	w.add(m)
	return nil, nil
}

// Removal is what a removed machine leaves behind.
type Removal struct {
	Drop    types.ItemStack   `json:"drop"`
	Spilled []types.ItemStack `json:"spilled,omitempty"`
}

// Remove dismantles the machine at Key. Items in slots that do not survive dismantling spill.
type Remove struct {
	Key types.Key `json:"key"`
}

func (Remove) Name() string { return "remove" }

func (e Remove) apply(w *World) (any, error) {
	m, err := w.lookup(e.Key)
	if err != nil {
		return nil, err
	}
	removal := Removal{Drop: m.DropItem(), Spilled: make([]types.ItemStack, 0)}
	m.Inventory().Each(func(_ int, s *inventory.Slot, item types.ItemStack) {
		if !item.IsEmpty() && !s.KeepOnDismantle() {
			removal.Spilled = append(removal.Spilled, item)
		}
	})
	w.remove(e.Key)
	w.removals = append(w.removals, netsync.Snapshot{Key: e.Key, Kind: m.Kind(), Removed: true})
	return removal, nil
}

// SaveConfigs changes the player-facing configuration of a machine.
type SaveConfigs struct {
	Key          types.Key          `json:"key"`
	RedstoneMode types.RedstoneMode `json:"redstoneMode"`
	Requester    machine.Requester  `json:"requester"`
}

func (SaveConfigs) Name() string { return "save-configs" }

func (e SaveConfigs) apply(w *World) (any, error) {
	m, err := w.usable(e.Key, e.Requester)
	if err != nil {
		return nil, err
	}
	if !m.SetRedstoneMode(e.RedstoneMode) {
		return nil, eris.Wrapf(ErrInvalidRedstoneMode, "mode %d", e.RedstoneMode)
	}
	m.ForceSync()
	return nil, nil
}

// Claim tries to make the owner named by Token the owner of the machine.
type Claim struct {
	Key   types.Key       `json:"key"`
	Token types.ItemStack `json:"token"`
}

func (Claim) Name() string { return "claim" }

func (e Claim) apply(w *World) (any, error) {
	m, err := w.lookup(e.Key)
	if err != nil {
		return nil, err
	}
	return m.Claim(e.Token), nil
}

type Unclaim struct {
	Key   types.Key       `json:"key"`
	Token types.ItemStack `json:"token"`
}

func (Unclaim) Name() string { return "unclaim" }

func (e Unclaim) apply(w *World) (any, error) {
	m, err := w.lookup(e.Key)
	if err != nil {
		return nil, err
	}
	return m.Unclaim(e.Token), nil
}

// SetPower sets the redstone power reaching Key and tells the machines at and around Key that
// their neighbourhood changed.
type SetPower struct {
	Key   types.Key `json:"key"`
	Level int       `json:"level"`
}

func (SetPower) Name() string { return "set-power" }

func (e SetPower) apply(w *World) (any, error) {
	w.grid.Set(e.Key, e.Level)
	for _, k := range append(Neighbors(e.Key), e.Key) {
		if m, ok := w.machines[k]; ok {
			m.NeighborChanged()
		}
	}
	return nil, nil
}

// Charge feeds Amount energy into the machine and returns how much it accepted.
type Charge struct {
	Key    types.Key `json:"key"`
	Amount int       `json:"amount"`
}

func (Charge) Name() string { return "charge" }

func (e Charge) apply(w *World) (any, error) {
	m, err := w.lookup(e.Key)
	if err != nil {
		return nil, err
	}
	s, ok := energy.Of(m)
	if !ok {
		return nil, eris.Wrapf(ErrNoEnergyStorage, "key %s", e.Key)
	}
	accepted := s.Receive(m, e.Amount, false)
	if accepted > 0 {
		w.unsaved.Set(w.ids[e.Key])
		m.ForceSync()
	}
	return accepted, nil
}

// Insert puts Item into Slot and reports whether it fit. Sided inserts come from automation and
// respect the machine's sided access rules.
type Insert struct {
	Key       types.Key         `json:"key"`
	Slot      int               `json:"slot"`
	Item      types.ItemStack   `json:"item"`
	Requester machine.Requester `json:"requester"`
	Sided     bool              `json:"sided,omitempty"`
}

func (Insert) Name() string { return "insert" }

func (e Insert) apply(w *World) (any, error) {
	m, err := w.usable(e.Key, e.Requester)
	if err != nil {
		return nil, err
	}
	if e.Sided && !m.CanInsert(e.Slot, e.Item) {
		return false, nil
	}
	if !m.Inventory().Insert(e.Slot, e.Item) {
		return false, nil
	}
	m.ForceSync()
	return true, nil
}

// Take empties Slot and returns what it held.
type Take struct {
	Key       types.Key         `json:"key"`
	Slot      int               `json:"slot"`
	Requester machine.Requester `json:"requester"`
	Sided     bool              `json:"sided,omitempty"`
}

func (Take) Name() string { return "take" }

func (e Take) apply(w *World) (any, error) {
	m, err := w.usable(e.Key, e.Requester)
	if err != nil {
		return nil, err
	}
	if e.Sided && !m.CanExtract(e.Slot) {
		return types.ItemStack{}, nil
	}
	item := m.Inventory().Take(e.Slot)
	if !item.IsEmpty() {
		m.ForceSync()
	}
	return item, nil
}

// Appraise computes the matter value of the machine's inventory in the background and stores it
// on the machine once done.
type Appraise struct {
	Key types.Key `json:"key"`
}

func (Appraise) Name() string { return "appraise" }

func (e Appraise) apply(w *World) (any, error) {
	m, err := w.lookup(e.Key)
	if err != nil {
		return nil, err
	}
	items := m.Inventory().Items()
	table := w.registry.Table()
	w.goMachine(m, func() func(*machine.Machine) {
		value := table.Value(items)
		return func(m *machine.Machine) {
			m.SetMatterValue(value)
		}
	})
	return nil, nil
}

// Recalculate derives the matter table again in the background and installs it once done.
type Recalculate struct{}

func (Recalculate) Name() string { return "recalculate" }

func (Recalculate) apply(w *World) (any, error) {
	reg := w.registry
	w.Go(func() func(*World) {
		table := reg.Calculate()
		return func(w *World) {
			w.registry.Install(table)
			w.logger.Info().Int("items", len(table)).Msg("Installed recalculated matter table")
		}
	})
	return nil, nil
}

// RegisterMatter overrides the matter value of Kind.
type RegisterMatter struct {
	Kind   string `json:"kind"`
	Matter int    `json:"matter"`
}

func (RegisterMatter) Name() string { return "register-matter" }

func (e RegisterMatter) apply(w *World) (any, error) {
	if err := w.registry.Register(e.Kind, e.Matter); err != nil {
		return nil, err
	}
	w.registryChanged = true
	return nil, nil
}

// Blacklist removes Kind from the matter table.
type Blacklist struct {
	Kind string `json:"kind"`
}

func (Blacklist) Name() string { return "blacklist" }

func (e Blacklist) apply(w *World) (any, error) {
	if err := w.registry.Blacklist(e.Kind); err != nil {
		return nil, err
	}
	w.registryChanged = true
	return nil, nil
}
