package schema

import (
	"fmt"
	"strings"
)

// TypeTag selects how a raw input value is coerced.
type TypeTag string

const (
	TypeInt        TypeTag = "int"
	TypeDate       TypeTag = "date"
	TypeString     TypeTag = "string"
	TypeFloat      TypeTag = "float"
	TypeBool       TypeTag = "bool"
	TypeIntAsBool  TypeTag = "int_as_bool"
	TypeEnum       TypeTag = "enum_const"
	TypeObject     TypeTag = "object_handle"
	TypePlainList  TypeTag = "plain_list"
	TypeObjectList TypeTag = "object_list"
)

// FieldSpec declares one field of a layout.
type FieldSpec struct {
	Name       string
	Type       TypeTag
	Enum       string // enum table name for TypeEnum; defaults to Name
	Default    any
	HasDefault bool
	Required   bool
}

// Key is the case-insensitive lookup key of the field.
func (f FieldSpec) Key() string {
	return NormalizeKey(f.Name)
}

// Layout is one candidate ordered field list ("overload").
type Layout []FieldSpec

// Decoder turns an opaque literal block (format "DT") into a field value.
type Decoder func(text string) (any, error)

// FieldSchema is the resolution contract for one instrument type.
type FieldSchema struct {
	ID      string
	Layouts []Layout

	// EnumOverrides maps a field key to the enum table used for it, overriding FieldSpec.Enum.
	EnumOverrides map[string]string

	// IsWrapper marks composite, registry-backed products that are not a single engine family.
	IsWrapper bool

	// Methods are auxiliary method signatures resolved against the same input conventions.
	Methods map[string]Layout

	// Decoders are keyed by field key.
	Decoders map[string]Decoder
}

// EnumFor returns the enum table name used to coerce f within this schema.
func (s FieldSchema) EnumFor(f FieldSpec) string {
	if name, ok := s.EnumOverrides[f.Key()]; ok {
		return name
	}
	if f.Enum != "" {
		return f.Enum
	}
	return f.Name
}

// DecoderFor returns the custom decoder registered for a field, if any.
func (s FieldSchema) DecoderFor(field string) (Decoder, bool) {
	d, ok := s.Decoders[NormalizeKey(field)]
	return d, ok
}

// Method returns a registered auxiliary method signature.
func (s FieldSchema) Method(name string) (Layout, bool) {
	for k, l := range s.Methods {
		if strings.EqualFold(k, name) {
			return l, true
		}
	}
	return nil, false
}

// NormalizeKey lower-cases and trims a user-supplied field name.
func NormalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Req declares a required field.
func Req(name string, t TypeTag) FieldSpec {
	return FieldSpec{Name: name, Type: t, Required: true}
}

// Opt declares an optional field with no default.
func Opt(name string, t TypeTag) FieldSpec {
	return FieldSpec{Name: name, Type: t}
}

// Def declares an optional field with a default value.
func Def(name string, t TypeTag, def any) FieldSpec {
	return FieldSpec{Name: name, Type: t, Default: def, HasDefault: true}
}

// UnknownSchemaError is returned when a schema id is not registered.
type UnknownSchemaError struct {
	SchemaID string
}

func (e *UnknownSchemaError) Error() string {
	return fmt.Sprintf("unknown schema %q", e.SchemaID)
}

// UnknownEnumValueError is returned when an enum lookup misses.
type UnknownEnumValueError struct {
	Enum  string
	Value string
}

func (e *UnknownEnumValueError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("unknown enum table %q", e.Enum)
	}
	return fmt.Sprintf("%q is not a valid %s", e.Value, e.Enum)
}
