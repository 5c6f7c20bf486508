package search

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/kelindar/bitmap"
	"github.com/rotisserie/eris"
)

// CQL grammar:
//
//	term     = value { ("&" | "|") value }
//	value    = "ALL" "(" ")" | "EXACT" "(" names ")" | "CONTAINS" "(" names ")" | "!" value | "(" term ")"
//
// Operators are applied left to right without precedence.

type cqlOperator int

const (
	opAnd cqlOperator = iota
	opOr
)

func (o *cqlOperator) Capture(s []string) error {
	switch {
	case len(s) == 0:
		return eris.New("invalid operator")
	case s[0] == "&":
		*o = opAnd
	case s[0] == "|":
		*o = opOr
	default:
		return eris.Errorf("invalid operator %q", s[0])
	}
	return nil
}

type cqlNames struct {
	Names []string `"(" @Ident ( "," @Ident )* ")"`
}

type cqlValue struct {
	All      bool      `  @("ALL" "(" ")")`
	Exact    *cqlNames `| "EXACT" @@`
	Contains *cqlNames `| "CONTAINS" @@`
	Not      *cqlValue `| "!" @@`
	Group    *cqlTerm  `| "(" @@ ")"`
}

type cqlOpValue struct {
	Operator cqlOperator `@("&" | "|")`
	Value    *cqlValue   `@@`
}

type cqlTerm struct {
	Left  *cqlValue     `@@`
	Right []*cqlOpValue `@@*`
}

func (v *cqlValue) String() string {
	switch {
	case v.All:
		return "ALL()"
	case v.Exact != nil:
		return "EXACT(" + strings.Join(v.Exact.Names, ", ") + ")"
	case v.Contains != nil:
		return "CONTAINS(" + strings.Join(v.Contains.Names, ", ") + ")"
	case v.Not != nil:
		return "!(" + v.Not.String() + ")"
	case v.Group != nil:
		return "(" + v.Group.String() + ")"
	default:
		return ""
	}
}

func (t *cqlTerm) String() string {
	out := []string{t.Left.String()}
	for _, r := range t.Right {
		op := "&"
		if r.Operator == opOr {
			op = "|"
		}
		out = append(out, op, r.Value.String())
	}
	return strings.Join(out, " ")
}

var cqlParser = participle.MustBuild[cqlTerm]()

// Selector reports whether a machine's component set is selected.
type Selector func(components bitmap.Bitmap) bool

// ParseCQL compiles a CQL expression into a Selector. resolve maps component names to the ids
// used in the component bitmaps.
func ParseCQL(text string, resolve func(name string) (uint32, error)) (Selector, error) {
	term, err := cqlParser.ParseString("", text)
	if err != nil {
		return nil, eris.Wrap(err, "failed to parse cql")
	}
	return termSelector(term, resolve)
}

func termSelector(term *cqlTerm, resolve func(string) (uint32, error)) (Selector, error) {
	if term.Left == nil {
		return nil, eris.New("not enough values in expression")
	}
	acc, err := valueSelector(term.Left, resolve)
	if err != nil {
		return nil, err
	}
	for _, r := range term.Right {
		next, err := valueSelector(r.Value, resolve)
		if err != nil {
			return nil, err
		}
		left := acc
		switch r.Operator {
		case opAnd:
			acc = func(c bitmap.Bitmap) bool { return left(c) && next(c) }
		case opOr:
			acc = func(c bitmap.Bitmap) bool { return left(c) || next(c) }
		}
	}
	return acc, nil
}

func valueSelector(v *cqlValue, resolve func(string) (uint32, error)) (Selector, error) {
	switch {
	case v.All:
		return func(bitmap.Bitmap) bool { return true }, nil
	case v.Exact != nil:
		want, err := resolveSet(v.Exact.Names, resolve)
		if err != nil {
			return nil, err
		}
		return func(c bitmap.Bitmap) bool { return equalSets(c, want) }, nil
	case v.Contains != nil:
		want, err := resolveSet(v.Contains.Names, resolve)
		if err != nil {
			return nil, err
		}
		return func(c bitmap.Bitmap) bool { return containsAll(c, want) }, nil
	case v.Not != nil:
		inner, err := valueSelector(v.Not, resolve)
		if err != nil {
			return nil, err
		}
		return func(c bitmap.Bitmap) bool { return !inner(c) }, nil
	case v.Group != nil:
		return termSelector(v.Group, resolve)
	default:
		return nil, eris.New("empty cql value")
	}
}

func resolveSet(names []string, resolve func(string) (uint32, error)) (bitmap.Bitmap, error) {
	var set bitmap.Bitmap
	for _, name := range names {
		id, err := resolve(name)
		if err != nil {
			return nil, err
		}
		set.Set(id)
	}
	return set, nil
}
