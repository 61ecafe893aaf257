package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meenmo/fxstruct/schema"
)

// LayoutResult is the outcome of trying one candidate layout.
type LayoutResult struct {
	Index       int
	Args        CanonicalArgs
	Missing     []string
	FieldErrors map[string]error
}

// Result is the selected layout plus every layout tried on the way.
type Result struct {
	SchemaID    string
	Layout      int
	Args        CanonicalArgs
	Missing     []string
	FieldErrors map[string]error
	Layouts     []LayoutResult
}

// Err returns a *MissingFieldsError when required fields are still missing, and an
// *InvalidFieldsError when every required field is present but some optional value
// could not be coerced.
func (r *Result) Err() error {
	switch {
	case len(r.Missing) > 0:
		return &MissingFieldsError{SchemaID: r.SchemaID, Missing: append([]string(nil), r.Missing...), FieldErrors: r.FieldErrors}
	case len(r.FieldErrors) > 0:
		return &InvalidFieldsError{SchemaID: r.SchemaID, FieldErrors: r.FieldErrors}
	}
	return nil
}

// MissingFieldsError lists required fields absent (or not coercible) after every layout was tried.
type MissingFieldsError struct {
	SchemaID    string
	Missing     []string
	FieldErrors map[string]error
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%s: missing required fields: %s", e.SchemaID, strings.Join(e.Missing, ", "))
}

// InvalidFieldsError lists supplied values that failed coercion on optional fields.
type InvalidFieldsError struct {
	SchemaID    string
	FieldErrors map[string]error
}

// Fields returns the offending display names in sorted order.
func (e *InvalidFieldsError) Fields() []string {
	names := make([]string, 0, len(e.FieldErrors))
	for name := range e.FieldErrors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *InvalidFieldsError) Error() string {
	names := e.Fields()
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %v", name, e.FieldErrors[name])
	}
	return fmt.Sprintf("%s: invalid fields: %s", e.SchemaID, strings.Join(parts, "; "))
}

// UnknownMethodError is returned for a method name the schema does not register.
type UnknownMethodError struct {
	SchemaID string
	Method   string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("%s has no method %q", e.SchemaID, e.Method)
}

// Resolver resolves batches against one catalog.
type Resolver struct {
	catalog *schema.Catalog
}

// New returns a resolver over c; nil selects the built-in catalog.
func New(c *schema.Catalog) *Resolver {
	if c == nil {
		c = schema.Builtin()
	}
	return &Resolver{catalog: c}
}

// Catalog returns the underlying catalog.
func (r *Resolver) Catalog() *schema.Catalog { return r.catalog }

// Resolve is shorthand for New(c).Resolve.
func Resolve(c *schema.Catalog, schemaID string, batch Batch) (*Result, error) {
	return New(c).Resolve(schemaID, batch)
}

// Resolve normalises the batch and selects the layout with the fewest missing fields.
// Only unknown schemas and malformed fragments are errors; missing fields are reported in the Result.
func (r *Resolver) Resolve(schemaID string, batch Batch) (*Result, error) {
	s, err := r.catalog.Schema(schemaID)
	if err != nil {
		return nil, fmt.Errorf("Resolve: %w", err)
	}
	p, err := normalize(batch)
	if err != nil {
		return nil, fmt.Errorf("Resolve: %s: %w", schemaID, err)
	}
	return r.selectLayout(s, p), nil
}

// ResolveMethod resolves the arguments of an auxiliary method registered on a schema.
func (r *Resolver) ResolveMethod(schemaID, method string, batch Batch) (*Result, error) {
	s, err := r.catalog.Schema(schemaID)
	if err != nil {
		return nil, fmt.Errorf("ResolveMethod: %w", err)
	}
	layout, ok := s.Method(method)
	if !ok {
		return nil, fmt.Errorf("ResolveMethod: %w", &UnknownMethodError{SchemaID: s.ID, Method: method})
	}
	p, err := normalize(batch)
	if err != nil {
		return nil, fmt.Errorf("ResolveMethod: %s.%s: %w", schemaID, method, err)
	}
	ms := schema.FieldSchema{
		ID:            s.ID + "." + method,
		Layouts:       []schema.Layout{layout},
		EnumOverrides: s.EnumOverrides,
		Decoders:      s.Decoders,
	}
	return r.selectLayout(ms, p), nil
}

func (r *Resolver) selectLayout(s schema.FieldSchema, p *pairs) *Result {
	res := &Result{SchemaID: s.ID, Layout: -1}
	best := -1
	for i, layout := range s.Layouts {
		lr := r.tryLayout(s, layout, p)
		lr.Index = i
		res.Layouts = append(res.Layouts, lr)
		if best < 0 || len(lr.Missing) < len(res.Layouts[best].Missing) {
			best = len(res.Layouts) - 1
		}
		if len(lr.Missing) == 0 {
			break
		}
	}
	chosen := res.Layouts[best]
	res.Layout = chosen.Index
	res.Args = chosen.Args
	res.Missing = chosen.Missing
	res.FieldErrors = chosen.FieldErrors
	return res
}

func (r *Resolver) tryLayout(s schema.FieldSchema, layout schema.Layout, p *pairs) LayoutResult {
	lr := LayoutResult{Args: newCanonical(p)}
	for _, f := range layout {
		raw, present := p.get(f.Key())
		if present && isBlank(raw) {
			present = false
		}
		if !present {
			if f.HasDefault {
				lr.Args.put(f, f.Default)
				continue
			}
			if f.Required {
				lr.Missing = append(lr.Missing, f.Name)
			}
			lr.Args.put(f, nil)
			continue
		}
		v, err := coerce(r.catalog, s, f, raw)
		if err != nil {
			if lr.FieldErrors == nil {
				lr.FieldErrors = make(map[string]error)
			}
			lr.FieldErrors[f.Name] = err
			switch {
			case f.Required:
				lr.Missing = append(lr.Missing, f.Name)
				lr.Args.put(f, nil)
			case f.HasDefault:
				lr.Args.put(f, f.Default)
			default:
				lr.Args.put(f, nil)
			}
			continue
		}
		lr.Args.put(f, v)
	}
	return lr
}

// isBlank treats empty cells like absent keys.
func isBlank(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(v) == ""
	default:
		return false
	}
}
