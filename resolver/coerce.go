package resolver

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/meenmo/fxstruct/schema"
	"github.com/meenmo/fxstruct/utils"
)

// coerce converts one raw value according to the field's type tag.
func coerce(c *schema.Catalog, s schema.FieldSchema, f schema.FieldSpec, raw any) (any, error) {
	if dec, ok := s.DecoderFor(f.Name); ok {
		switch v := raw.(type) {
		case literal:
			return dec(string(v))
		case string:
			if f.Type == schema.TypeObject {
				return dec(v)
			}
		}
	}
	if _, ok := raw.(literal); ok {
		return nil, fmt.Errorf("no decoder registered for literal block")
	}

	switch f.Type {
	case schema.TypePlainList:
		if l, ok := asList(raw); ok {
			return append([]any{}, l...), nil
		}
		return []any{raw}, nil
	case schema.TypeObjectList:
		return toObjectList(raw)
	case schema.TypeObject:
		return raw, nil
	}

	raw = unwrapSingle(raw)
	switch f.Type {
	case schema.TypeInt:
		return toInt(raw)
	case schema.TypeFloat:
		return toFloat(raw)
	case schema.TypeDate:
		return toDate(raw)
	case schema.TypeString:
		return toString(raw)
	case schema.TypeBool:
		return toBool(raw)
	case schema.TypeIntAsBool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		n, err := toFloat(raw)
		if err != nil {
			return nil, err
		}
		return n != 0, nil
	case schema.TypeEnum:
		name, err := toString(raw)
		if err != nil {
			return nil, err
		}
		return c.LookupEnum(s.EnumFor(f), name)
	default:
		return nil, fmt.Errorf("unsupported type tag %q", f.Type)
	}
}

// unwrapSingle lets a one-cell column feed a scalar field.
func unwrapSingle(raw any) any {
	if l, ok := asList(raw); ok && len(l) == 1 {
		return l[0]
	}
	return raw
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(v), ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%T is not a number", raw)
	}
}

func toInt(raw any) (int, error) {
	f, err := toFloat(raw)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%v is not an integer", raw)
	}
	return int(f), nil
}

func toDate(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return utils.Truncate(v), nil
	case string:
		return utils.ParseDate(v)
	default:
		f, err := toFloat(raw)
		if err != nil {
			return time.Time{}, fmt.Errorf("%T is not a date", raw)
		}
		return utils.FromExcelSerial(f)
	}
}

func toString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	case nil:
		return "", fmt.Errorf("value is empty")
	default:
		if s, ok := raw.(fmt.Stringer); ok {
			return s.String(), nil
		}
		return "", fmt.Errorf("%T is not text", raw)
	}
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "t", "yes", "y", "1", "on":
			return true, nil
		case "false", "f", "no", "n", "0", "off", "":
			return false, nil
		}
		return false, fmt.Errorf("%q is not a boolean", v)
	default:
		f, err := toFloat(raw)
		if err != nil {
			return false, fmt.Errorf("%T is not a boolean", raw)
		}
		return f != 0, nil
	}
}

func toObjectList(raw any) ([]any, error) {
	if m, ok := asMap(raw); ok {
		return []any{m}, nil
	}
	l, ok := asList(raw)
	if !ok {
		return nil, fmt.Errorf("%T is not a list of objects", raw)
	}
	out := make([]any, 0, len(l))
	for i, e := range l {
		m, ok := asMap(e)
		if !ok {
			return nil, fmt.Errorf("element %d is %T, want an object", i, e)
		}
		out = append(out, m)
	}
	return out, nil
}
