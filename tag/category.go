package tag

import "strings"

// Category is the group a persisted field belongs to. Every read and write names the set of
// categories it covers, which is how a config-only update differs from a full save.
type Category uint8

const (
	Config Category = 1 << iota
	Data
	Inventory
)

// Categories is a set of Category values.
type Categories uint8

const (
	None Categories = 0
	All             = Categories(Config | Data | Inventory)
)

// Ordered lists the categories in the order reads and writes must process them: configs first so
// that restored data can be interpreted under the restored configuration, inventory last.
var Ordered = []Category{Config, Data, Inventory}

func Of(cats ...Category) Categories {
	var set Categories
	for _, c := range cats {
		set |= Categories(c)
	}
	return set
}

func (s Categories) Has(c Category) bool {
	return s&Categories(c) != 0
}

func (s Categories) With(c Category) Categories {
	return s | Categories(c)
}

func (s Categories) Without(c Category) Categories {
	return s &^ Categories(c)
}

func (c Category) String() string {
	switch c {
	case Config:
		return "config"
	case Data:
		return "data"
	case Inventory:
		return "inventory"
	default:
		return "unknown"
	}
}

func (s Categories) String() string {
	names := make([]string, 0, len(Ordered))
	for _, c := range Ordered {
		if s.Has(c) {
			names = append(names, c.String())
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Subsets returns every subset of All, the empty set included.
func Subsets() []Categories {
	out := make([]Categories, 0, int(All)+1)
	for s := None; s <= All; s++ {
		out = append(out, s)
	}
	return out
}
