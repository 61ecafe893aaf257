package resolver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/meenmo/fxstruct/schema"
)

// Fragment formats.
const (
	FormatKV = "KV" // key/value object; nested objects are flattened
	FormatVP = "VP" // rows of [name, value]
	FormatHP = "HP" // two rows: [names...], [values...]
	FormatHD = "HD" // header row then data rows; each header receives its column
	FormatVD = "VD" // transposed table; each row is [name, v1, v2, ...]
	FormatDT = "DT" // opaque literal text handed to the field's decoder
)

// Fragment is one piece of raw input. Data holds a map for KV and a list of rows for
// the tabular formats; DT fragments carry Field and Text instead.
type Fragment struct {
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	Data   any    `json:"data,omitempty" yaml:"data,omitempty"`
	Field  string `json:"field,omitempty" yaml:"field,omitempty"`
	Text   string `json:"text,omitempty" yaml:"text,omitempty"`
}

// Batch is an ordered list of fragments; later fragments overwrite earlier keys.
type Batch []Fragment

// KV wraps a key/value map.
func KV(m map[string]any) Fragment {
	return Fragment{Format: FormatKV, Data: m}
}

// Rows wraps a tabular block.
func Rows(format string, rows ...[]any) Fragment {
	data := make([]any, len(rows))
	for i, r := range rows {
		data[i] = r
	}
	return Fragment{Format: format, Data: data}
}

// Literal wraps a DT block for one field.
func Literal(field, text string) Fragment {
	return Fragment{Format: FormatDT, Field: field, Text: text}
}

// literal marks a DT value until the field's decoder consumes it.
type literal string

// FragmentError reports a malformed input fragment.
type FragmentError struct {
	Index  int
	Format string
	Reason string
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("fragment %d (%s): %s", e.Index, e.Format, e.Reason)
}

type pair struct {
	key     string
	display string
	raw     any
}

// pairs is the normalised, ordered key space of a batch.
type pairs struct {
	list  []pair
	index map[string]int
}

func (p *pairs) set(name string, raw any) {
	key := schema.NormalizeKey(name)
	if key == "" {
		return
	}
	if i, ok := p.index[key]; ok {
		p.list[i].raw = raw
		return
	}
	p.index[key] = len(p.list)
	p.list = append(p.list, pair{key: key, display: strings.TrimSpace(name), raw: raw})
}

func (p *pairs) get(key string) (any, bool) {
	i, ok := p.index[key]
	if !ok {
		return nil, false
	}
	return p.list[i].raw, true
}

func normalize(batch Batch) (*pairs, error) {
	p := &pairs{index: make(map[string]int)}
	for i, f := range batch {
		format := strings.ToUpper(strings.TrimSpace(f.Format))
		fail := func(format, reason string, args ...any) error {
			return &FragmentError{Index: i, Format: format, Reason: fmt.Sprintf(reason, args...)}
		}
		switch format {
		case "", FormatKV:
			m, ok := asMap(f.Data)
			if !ok {
				return nil, fail(FormatKV, "data is %T, want an object", f.Data)
			}
			flatten(p, m)
		case FormatDT:
			if strings.TrimSpace(f.Field) == "" {
				return nil, fail(format, "missing target field")
			}
			p.set(f.Field, literal(f.Text))
		case FormatVP, FormatHP, FormatHD, FormatVD:
			rows, err := asRows(f.Data)
			if err != nil {
				return nil, fail(format, "%v", err)
			}
			if err := tabular(p, format, rows); err != nil {
				return nil, fail(format, "%v", err)
			}
		default:
			return nil, fail(f.Format, "unknown format")
		}
	}
	return p, nil
}

// flatten adds every key of m in sorted order; nested objects contribute their own keys unprefixed.
func flatten(p *pairs, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if nested, ok := asMap(m[k]); ok {
			flatten(p, nested)
			continue
		}
		p.set(k, m[k])
	}
}

func tabular(p *pairs, format string, rows [][]any) error {
	switch format {
	case FormatVP:
		for _, r := range rows {
			if len(r) < 2 {
				return fmt.Errorf("row %v has no value", r)
			}
			name := fmt.Sprint(r[0])
			if len(r) == 2 {
				p.set(name, r[1])
			} else {
				p.set(name, append([]any(nil), r[1:]...))
			}
		}
	case FormatHP:
		if len(rows) != 2 {
			return fmt.Errorf("want 2 rows, got %d", len(rows))
		}
		if len(rows[0]) != len(rows[1]) {
			return fmt.Errorf("%d names but %d values", len(rows[0]), len(rows[1]))
		}
		for i, name := range rows[0] {
			p.set(fmt.Sprint(name), rows[1][i])
		}
	case FormatHD:
		if len(rows) == 0 {
			return fmt.Errorf("missing header row")
		}
		header := rows[0]
		for c, name := range header {
			col := make([]any, 0, len(rows)-1)
			for _, r := range rows[1:] {
				if c < len(r) {
					col = append(col, r[c])
				}
			}
			p.set(fmt.Sprint(name), col)
		}
	case FormatVD:
		for _, r := range rows {
			if len(r) == 0 {
				continue
			}
			p.set(fmt.Sprint(r[0]), append([]any{}, r[1:]...))
		}
	}
	return nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}

func asRows(v any) ([][]any, error) {
	switch rows := v.(type) {
	case [][]any:
		return rows, nil
	case [][]string:
		out := make([][]any, len(rows))
		for i, r := range rows {
			out[i] = make([]any, len(r))
			for j, c := range r {
				out[i][j] = c
			}
		}
		return out, nil
	case []any:
		out := make([][]any, len(rows))
		for i, r := range rows {
			row, ok := asList(r)
			if !ok {
				return nil, fmt.Errorf("row %d is %T, want a list", i, r)
			}
			out[i] = row
		}
		return out, nil
	default:
		return nil, fmt.Errorf("data is %T, want a list of rows", v)
	}
}

func asList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, true
	case []float64:
		out := make([]any, len(l))
		for i, f := range l {
			out[i] = f
		}
		return out, true
	default:
		return nil, false
	}
}
