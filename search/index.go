// Package search answers queries over a point-in-time view of the world's machines. Machines are
// matched on the set of component names they carry, by Find/Match or by a CQL expression, and
// then filtered with an optional expr-lang where clause evaluated against their state.
package search

import (
	"github.com/kelindar/bitmap"

	"pkg.world.dev/world-engine/foundry/tag"
	"pkg.world.dev/world-engine/foundry/types"
)

// Document is the searchable view of one machine.
type Document struct {
	Key        types.Key    `json:"key"`
	Kind       string       `json:"kind"`
	Components []string     `json:"components"`
	State      tag.Compound `json:"state"`
}

type indexed struct {
	Document
	components bitmap.Bitmap
}

// Index is an immutable set of documents. Build a new one rather than changing it.
type Index struct {
	names map[string]uint32
	docs  []indexed
}

func NewIndex(docs []Document) *Index {
	ix := &Index{
		names: make(map[string]uint32),
		docs:  make([]indexed, 0, len(docs)),
	}
	for _, doc := range docs {
		entry := indexed{Document: doc}
		for _, name := range doc.Components {
			id, ok := ix.names[name]
			if !ok {
				id = uint32(len(ix.names)) //nolint:gosec // component names are few
				ix.names[name] = id
			}
			entry.components.Set(id)
		}
		ix.docs = append(ix.docs, entry)
	}
	return ix
}

func (ix *Index) Len() int {
	return len(ix.docs)
}

// componentSet resolves names into a bitmap. ok is false when a name is carried by no document.
func (ix *Index) componentSet(names []string) (set bitmap.Bitmap, unknown string, ok bool) {
	for _, name := range names {
		id, exists := ix.names[name]
		if !exists {
			return nil, name, false
		}
		set.Set(id)
	}
	return set, "", true
}

func containsAll(have, want bitmap.Bitmap) bool {
	all := true
	want.Range(func(id uint32) {
		if !have.Contains(id) {
			all = false
		}
	})
	return all
}

func equalSets(a, b bitmap.Bitmap) bool {
	return a.Count() == b.Count() && containsAll(a, b)
}
