package search

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

var ErrUnknownComponent = eris.New("no machine carries component")

// Match is the type of match to use for the search.
type Match string

const (
	// MatchExact matches machines that have exactly the specified components.
	MatchExact Match = "exact"
	// MatchContains matches machines that have the specified components and possibly others.
	MatchContains Match = "contains"
)

// Param is a machine query. Either Find and Match or CQL select machines by their components.
// Where is an optional expr-lang boolean expression evaluated against the machine's state, with
// the extra variables _key, _kind and _components; see https://expr-lang.org/docs/language-definition.
type Param struct {
	Find  []string `json:"find,omitempty"`
	Match Match    `json:"match,omitempty"`
	CQL   string   `json:"cql,omitempty"`
	Where string   `json:"where,omitempty"`
}

func (p *Param) validateAndGetFilter() (*vm.Program, error) {
	if p.CQL != "" {
		if len(p.Find) > 0 {
			return nil, eris.New("`find` and `cql` cannot be combined")
		}
	} else {
		if len(p.Find) == 0 {
			return nil, eris.New("component list cannot be empty")
		}
		if p.Match != MatchExact && p.Match != MatchContains {
			return nil, eris.Errorf("invalid `match` value: must be either '%s' or '%s'", MatchExact, MatchContains)
		}
	}

	if len(p.Where) == 0 {
		return nil, nil //nolint:nilnil // no where clause
	}
	filter, err := expr.Compile(p.Where, expr.AsBool())
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse where clause")
	}
	return filter, nil
}

func (ix *Index) selector(p Param) (Selector, error) {
	if p.CQL != "" {
		return ParseCQL(p.CQL, ix.resolve)
	}
	want, unknown, ok := ix.componentSet(p.Find)
	if !ok {
		return nil, eris.Wrapf(ErrUnknownComponent, "%q", unknown)
	}
	if p.Match == MatchExact {
		return func(have bitmap.Bitmap) bool { return equalSets(have, want) }, nil
	}
	return func(have bitmap.Bitmap) bool { return containsAll(have, want) }, nil
}

func (ix *Index) resolve(name string) (uint32, error) {
	id, ok := ix.names[name]
	if !ok {
		return 0, eris.Wrapf(ErrUnknownComponent, "%q", name)
	}
	return id, nil
}

// Search returns the documents matching p in index order.
func (ix *Index) Search(p Param) ([]Document, error) {
	filter, err := p.validateAndGetFilter()
	if err != nil {
		return nil, eris.Wrap(err, "invalid search params")
	}
	selects, err := ix.selector(p)
	if err != nil {
		return nil, err
	}

	results := make([]Document, 0)
	for _, doc := range ix.docs {
		if !selects(doc.components) {
			continue
		}
		if filter == nil {
			results = append(results, doc.Document)
			continue
		}

		output, err := expr.Run(filter, doc.env())
		if err != nil {
			return nil, eris.Wrap(err, "failed to run filter expression")
		}
		// The program is compiled without an environment, so the result type is only known now.
		isMatch, ok := output.(bool)
		if !ok {
			return nil, eris.New("invalid where clause")
		}
		if isMatch {
			results = append(results, doc.Document)
		}
	}
	return results, nil
}

func (doc *indexed) env() map[string]any {
	env := make(map[string]any, len(doc.State)+3)
	for k, v := range doc.State {
		env[k] = v
	}
	env["_key"] = doc.Key.String()
	env["_kind"] = doc.Kind
	env["_components"] = doc.Components
	return env
}
