// Package registry holds the item catalog: numeric identities, stack limits, upgrade stats and
// the matter value of every item.
package registry

import (
	"bytes"
	_ "embed"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"pkg.world.dev/world-engine/foundry/types"
)

const schemaURL = "catalog.schema.json"

var (
	//go:embed catalog.schema.json
	catalogSchema string

	//go:embed default_catalog.yaml
	defaultCatalog []byte

	compiledSchema = mustCompileSchema()
)

type Item struct {
	Kind     string                        `yaml:"kind"                json:"kind"`
	ID       int                           `yaml:"id"                  json:"id"`
	MaxStack int                           `yaml:"max_stack,omitempty" json:"max_stack,omitempty"`
	Matter   int                           `yaml:"matter,omitempty"    json:"matter,omitempty"`
	Upgrades map[types.UpgradeType]float64 `yaml:"upgrades,omitempty"  json:"upgrades,omitempty"`
}

type Ingredient struct {
	Kind  string `yaml:"kind"            json:"kind"`
	Count int    `yaml:"count,omitempty" json:"count,omitempty"`
}

// Recipe crafts Count items of Output from Inputs. Recipes only feed the matter calculation.
type Recipe struct {
	Output string       `yaml:"output"          json:"output"`
	Count  int          `yaml:"count,omitempty" json:"count,omitempty"`
	Inputs []Ingredient `yaml:"inputs"          json:"inputs"`
}

type Catalog struct {
	Items     []Item   `yaml:"items"               json:"items"`
	Recipes   []Recipe `yaml:"recipes,omitempty"   json:"recipes,omitempty"`
	Blacklist []string `yaml:"blacklist,omitempty" json:"blacklist,omitempty"`
}

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaURL, strings.NewReader(catalogSchema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile(schemaURL)
}

// DefaultCatalog returns the catalog shipped with the binary.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(eris.ToString(err, true))
	}
	return c
}

// LoadCatalog reads and validates the YAML catalog at path. An empty path yields the default
// catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	bz, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read catalog %s", path)
	}
	c, err := ParseCatalog(bz)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog %s", path)
	}
	return c, nil
}

// ParseCatalog decodes a YAML catalog, checks it against the catalog schema and then checks the
// references between its entries.
func ParseCatalog(bz []byte) (*Catalog, error) {
	var raw any
	if err := yaml.Unmarshal(bz, &raw); err != nil {
		return nil, eris.Wrap(err, "failed to decode catalog")
	}
	if err := validateSchema(raw); err != nil {
		return nil, err
	}

	var c Catalog
	if err := yaml.Unmarshal(bz, &c); err != nil {
		return nil, eris.Wrap(err, "failed to decode catalog")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// validateSchema round trips the YAML document through JSON so the validator sees JSON types.
func validateSchema(raw any) error {
	bz, err := json.Marshal(raw)
	if err != nil {
		return eris.Wrap(err, "failed to encode catalog for validation")
	}
	var doc any
	dec := json.NewDecoder(bytes.NewReader(bz))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return eris.Wrap(err, "failed to decode catalog for validation")
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return eris.Wrap(err, "catalog does not match schema")
	}
	return nil
}

// Validate checks what the schema cannot: unique kinds and ids, and recipes and blacklist entries
// that name catalog items.
func (c *Catalog) Validate() error {
	kinds := make(map[string]struct{}, len(c.Items))
	ids := make(map[int]string, len(c.Items))
	for _, item := range c.Items {
		if _, ok := kinds[item.Kind]; ok {
			return eris.Errorf("duplicate item kind %q", item.Kind)
		}
		if other, ok := ids[item.ID]; ok {
			return eris.Errorf("items %q and %q share id %d", other, item.Kind, item.ID)
		}
		for t := range item.Upgrades {
			if !t.IsValid() {
				return eris.Errorf("item %q has unknown upgrade type %q", item.Kind, t)
			}
		}
		kinds[item.Kind] = struct{}{}
		ids[item.ID] = item.Kind
	}

	for i, r := range c.Recipes {
		if _, ok := kinds[r.Output]; !ok {
			return eris.Errorf("recipe %d outputs unknown item %q", i, r.Output)
		}
		for _, in := range r.Inputs {
			if _, ok := kinds[in.Kind]; !ok {
				return eris.Errorf("recipe %d for %q uses unknown item %q", i, r.Output, in.Kind)
			}
		}
	}
	for _, kind := range c.Blacklist {
		if _, ok := kinds[kind]; !ok {
			return eris.Errorf("blacklist names unknown item %q", kind)
		}
	}
	return nil
}
