package world

import "pkg.world.dev/world-engine/foundry/machine"

// Go runs task on its own goroutine. The function task returns is applied on the tick goroutine
// at the start of a later tick. Tasks are never cancelled; results that arrive after Shutdown are
// dropped.
func (w *World) Go(task func() func(*World)) {
	w.running.Add(1)
	go func() {
		defer w.running.Done()
		apply := task()
		if apply == nil {
			return
		}
		select {
		case w.results <- apply:
		case <-w.done:
		}
	}()
}

// goMachine runs task in the background and applies its result to m only if m is still the
// valid machine at its key when the result arrives.
func (w *World) goMachine(m *machine.Machine, task func() func(*machine.Machine)) {
	key := m.Key()
	w.Go(func() func(*World) {
		apply := task()
		return func(w *World) {
			current, ok := w.machines[key]
			if !ok || current != m || !m.Valid() {
				w.logger.Debug().Str("machine", key.String()).Msg("dropping result for a replaced machine")
				return
			}
			apply(m)
		}
	})
}

func (w *World) applyResults() {
	for {
		select {
		case apply := <-w.results:
			apply(w)
		default:
			return
		}
	}
}
