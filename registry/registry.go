package registry

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/foundry/types"
)

var (
	ErrUnknownItem = eris.New("unknown item kind")
	ErrBlacklisted = eris.New("item kind is blacklisted")
)

// Table maps item kinds to matter values. A published Table is never modified.
type Table map[string]int

func (t Table) Matter(kind string) (int, bool) {
	v, ok := t[kind]
	return v, ok && v > 0
}

// Value is the total matter in items. Items without a matter value count as zero.
func (t Table) Value(items []types.ItemStack) int {
	total := 0
	for _, item := range items {
		if item.IsEmpty() {
			continue
		}
		if v, ok := t.Matter(item.Kind); ok {
			total += v * item.Count
		}
	}
	return total
}

// Entry is one row of the registry listing.
type Entry struct {
	Item
	Blacklisted bool `json:"blacklisted,omitempty"`
}

// Registry serves identities, stack limits and upgrade stats from the catalog and matter values
// from the current Table. Reads are safe from any goroutine.
type Registry struct {
	byKind map[string]Item
	kinds  []string
	recipe []Recipe

	mu        sync.Mutex
	overrides map[string]int
	blacklist map[string]struct{}
	baseList  []string

	table atomic.Pointer[Table]
}

func New(c *Catalog) *Registry {
	r := &Registry{
		byKind:   make(map[string]Item, len(c.Items)),
		kinds:    make([]string, 0, len(c.Items)),
		recipe:   slices.Clone(c.Recipes),
		baseList: slices.Clone(c.Blacklist),
	}
	for _, item := range c.Items {
		r.byKind[item.Kind] = item
		r.kinds = append(r.kinds, item.Kind)
	}
	slices.Sort(r.kinds)
	r.Reset()
	return r
}

// Reset drops registered values and blacklist entries added at runtime and recalculates the
// table from the catalog.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.overrides = make(map[string]int)
	r.blacklist = make(map[string]struct{}, len(r.baseList))
	for _, kind := range r.baseList {
		r.blacklist[kind] = struct{}{}
	}
	r.mu.Unlock()

	r.Install(r.Calculate())
}

// Lookup returns the numeric identity of kind.
func (r *Registry) Lookup(kind string) (int, bool) {
	item, ok := r.byKind[kind]
	return item.ID, ok
}

func (r *Registry) MaxStack(kind string) int {
	if item, ok := r.byKind[kind]; ok && item.MaxStack > 0 {
		return item.MaxStack
	}
	return types.DefaultMaxStack
}

// Upgrades returns the stat multipliers of an upgrade item.
func (r *Registry) Upgrades(item types.ItemStack) (map[types.UpgradeType]float64, bool) {
	entry, ok := r.byKind[item.Kind]
	if !ok || len(entry.Upgrades) == 0 {
		return nil, false
	}
	return entry.Upgrades, true
}

func (r *Registry) Item(kind string) (Item, bool) {
	item, ok := r.byKind[kind]
	return item, ok
}

// Table returns the current matter table.
func (r *Registry) Table() Table {
	return *r.table.Load()
}

func (r *Registry) Matter(kind string) (int, bool) {
	return r.Table().Matter(kind)
}

// Install publishes t as the current matter table. Registered values and blacklist entries are
// laid over t, so a table calculated before a registration does not undo it.
func (r *Registry) Install(t Table) {
	next := make(Table, len(t))
	for k, v := range t {
		next[k] = v
	}
	r.mu.Lock()
	for kind, v := range r.overrides {
		next[kind] = v
	}
	for kind := range r.blacklist {
		delete(next, kind)
	}
	r.mu.Unlock()
	r.table.Store(&next)
}

// Register sets the matter value of kind. It takes effect for kind right away; values derived
// from it through recipes change on the next recalculation.
func (r *Registry) Register(kind string, matter int) error {
	if _, ok := r.byKind[kind]; !ok {
		return eris.Wrapf(ErrUnknownItem, "kind %q", kind)
	}
	if matter < 0 {
		return eris.Errorf("matter value of %q must not be negative, got %d", kind, matter)
	}

	r.mu.Lock()
	if _, ok := r.blacklist[kind]; ok {
		r.mu.Unlock()
		return eris.Wrapf(ErrBlacklisted, "kind %q", kind)
	}
	r.overrides[kind] = matter
	r.mu.Unlock()

	r.Install(r.Table())
	return nil
}

// Blacklist removes kind from the matter table. Items made from it lose their value on the next
// recalculation.
func (r *Registry) Blacklist(kind string) error {
	if _, ok := r.byKind[kind]; !ok {
		return eris.Wrapf(ErrUnknownItem, "kind %q", kind)
	}

	r.mu.Lock()
	r.blacklist[kind] = struct{}{}
	delete(r.overrides, kind)
	r.mu.Unlock()

	r.Install(r.Table())
	return nil
}

// Changes are the registrations and blacklist entries made at runtime.
type Changes struct {
	Matter    map[string]int `json:"matter,omitempty"`
	Blacklist []string       `json:"blacklist,omitempty"`
}

func (c Changes) IsEmpty() bool {
	return len(c.Matter) == 0 && len(c.Blacklist) == 0
}

// Changes returns what was registered and blacklisted since the last Reset, in a form that can be
// stored and handed back to Restore.
func (r *Registry) Changes() Changes {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := Changes{Matter: make(map[string]int, len(r.overrides)), Blacklist: make([]string, 0)}
	for kind, v := range r.overrides {
		c.Matter[kind] = v
	}
	for kind := range r.blacklist {
		if !slices.Contains(r.baseList, kind) {
			c.Blacklist = append(c.Blacklist, kind)
		}
	}
	slices.Sort(c.Blacklist)
	return c
}

// Restore reapplies changes saved from Changes and recalculates the table. Kinds the catalog no
// longer has are skipped.
func (r *Registry) Restore(c Changes) error {
	r.mu.Lock()
	var skipped []string
	for _, kind := range c.Blacklist {
		if _, ok := r.byKind[kind]; !ok {
			skipped = append(skipped, kind)
			continue
		}
		r.blacklist[kind] = struct{}{}
	}
	for kind, v := range c.Matter {
		_, known := r.byKind[kind]
		_, blacklisted := r.blacklist[kind]
		if !known || blacklisted || v < 0 {
			skipped = append(skipped, kind)
			continue
		}
		r.overrides[kind] = v
	}
	r.mu.Unlock()

	r.Install(r.Calculate())
	if len(skipped) > 0 {
		return eris.Wrapf(ErrUnknownItem, "skipped stored registry changes for %v", skipped)
	}
	return nil
}

// Calculate builds a fresh matter table from the catalog values, the registered values and the
// recipes. It does not install the result, so it can run off the tick goroutine.
func (r *Registry) Calculate() Table {
	r.mu.Lock()
	overrides := make(map[string]int, len(r.overrides))
	for k, v := range r.overrides {
		overrides[k] = v
	}
	blacklist := make(map[string]struct{}, len(r.blacklist))
	for k := range r.blacklist {
		blacklist[k] = struct{}{}
	}
	r.mu.Unlock()

	t := make(Table, len(r.byKind))
	for _, kind := range r.kinds {
		if _, ok := blacklist[kind]; ok {
			continue
		}
		if v, ok := overrides[kind]; ok {
			t[kind] = v
		} else if v := r.byKind[kind].Matter; v > 0 {
			t[kind] = v
		}
	}

	// A recipe resolves once every input has a value; repeat until nothing new resolves.
	for resolved := true; resolved; {
		resolved = false
		for _, recipe := range r.recipe {
			if _, ok := t[recipe.Output]; ok {
				continue
			}
			if _, ok := blacklist[recipe.Output]; ok {
				continue
			}
			if v, ok := recipeMatter(t, recipe); ok {
				t[recipe.Output] = v
				resolved = true
			}
		}
	}
	return t
}

func recipeMatter(t Table, recipe Recipe) (int, bool) {
	total := 0
	for _, in := range recipe.Inputs {
		v, ok := t[in.Kind]
		if !ok {
			return 0, false
		}
		total += v * max(in.Count, 1)
	}
	count := max(recipe.Count, 1)
	return (total + count - 1) / count, true
}

// Entries lists every catalog item in kind order.
func (r *Registry) Entries() []Entry {
	t := r.Table()
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]Entry, 0, len(r.kinds))
	for _, kind := range r.kinds {
		item := r.byKind[kind]
		item.Matter = t[kind]
		_, blacklisted := r.blacklist[kind]
		entries = append(entries, Entry{Item: item, Blacklisted: blacklisted})
	}
	return entries
}
