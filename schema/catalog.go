package schema

import (
	"fmt"
	"sort"
	"strings"
)

// EnumTable maps normalized names to typed constants.
type EnumTable map[string]any

// Catalog is the registry of field schemas and enum tables. It is populated at start-up
// and read concurrently afterwards; Register is not safe to call once resolution has begun.
type Catalog struct {
	schemas map[string]FieldSchema
	enums   map[string]EnumTable
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		schemas: make(map[string]FieldSchema),
		enums:   make(map[string]EnumTable),
	}
}

// Register adds a schema. Layout field keys must be unique within a layout.
func (c *Catalog) Register(s FieldSchema) error {
	key := NormalizeKey(s.ID)
	if key == "" {
		return fmt.Errorf("schema id is empty")
	}
	if _, ok := c.schemas[key]; ok {
		return fmt.Errorf("schema already exists: %s", s.ID)
	}
	if len(s.Layouts) == 0 {
		return fmt.Errorf("schema %s has no layouts", s.ID)
	}
	for i, l := range s.Layouts {
		seen := make(map[string]struct{}, len(l))
		for _, f := range l {
			if _, dup := seen[f.Key()]; dup {
				return fmt.Errorf("schema %s layout %d declares %s twice", s.ID, i, f.Name)
			}
			seen[f.Key()] = struct{}{}
		}
	}
	overrides := make(map[string]string, len(s.EnumOverrides))
	for k, v := range s.EnumOverrides {
		overrides[NormalizeKey(k)] = v
	}
	s.EnumOverrides = overrides
	decoders := make(map[string]Decoder, len(s.Decoders))
	for k, d := range s.Decoders {
		decoders[NormalizeKey(k)] = d
	}
	s.Decoders = decoders
	c.schemas[key] = s
	return nil
}

// MustRegister panics on registration errors; used for the static built-in catalog.
func (c *Catalog) MustRegister(s FieldSchema) {
	if err := c.Register(s); err != nil {
		panic(err)
	}
}

// RegisterEnum adds (or extends) an enum table. Names are normalized.
func (c *Catalog) RegisterEnum(name string, values map[string]any) {
	t, ok := c.enums[name]
	if !ok {
		t = make(EnumTable, len(values))
		c.enums[name] = t
	}
	for k, v := range values {
		t[normalizeEnum(k)] = v
	}
}

// Schema returns a registered schema.
func (c *Catalog) Schema(id string) (FieldSchema, error) {
	s, ok := c.schemas[NormalizeKey(id)]
	if !ok {
		return FieldSchema{}, &UnknownSchemaError{SchemaID: id}
	}
	return s, nil
}

// IDs lists registered schema ids in sorted order.
func (c *Catalog) IDs() []string {
	out := make([]string, 0, len(c.schemas))
	for _, s := range c.schemas {
		out = append(out, s.ID)
	}
	sort.Strings(out)
	return out
}

// Enum returns a table by name.
func (c *Catalog) Enum(name string) (EnumTable, bool) {
	t, ok := c.enums[name]
	return t, ok
}

// LookupEnum resolves a display name through an enum table.
func (c *Catalog) LookupEnum(enum, value string) (any, error) {
	t, ok := c.enums[enum]
	if !ok {
		return nil, &UnknownEnumValueError{Enum: enum}
	}
	v, ok := t[normalizeEnum(value)]
	if !ok {
		return nil, &UnknownEnumValueError{Enum: enum, Value: value}
	}
	return v, nil
}

// normalizeEnum folds case and the separators desks use interchangeably ("Down-In", "down_in").
func normalizeEnum(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s)
}
