package mapping

import (
	"fmt"
	"strconv"
	"time"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// TextPlugin serves the text and longtext field types.
type TextPlugin struct {
	accepting
}

func (TextPlugin) ToStorage(_ *Context, value any, _ *metadata.FieldDescriptor, _ session.Record) (any, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	return fmt.Sprint(value), nil
}

func (TextPlugin) ToPresentation(_ *Context, stored any, _ *metadata.FieldDescriptor, _ session.Record) (any, error) {
	if stored == nil {
		return nil, nil
	}
	if b, ok := stored.([]byte); ok {
		return string(b), nil
	}
	return stored, nil
}

// BooleanPlugin coerces truthy representations on write and passes bools
// through on read.
type BooleanPlugin struct {
	accepting
	passthrough
}

func (BooleanPlugin) ToStorage(_ *Context, value any, field *metadata.FieldDescriptor, _ session.Record) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("%s is not a boolean: %q", field.Label(), v)
		}
		return b, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	default:
		return nil, fmt.Errorf("%s is not a boolean", field.Label())
	}
}

// DateTimePlugin parses RFC3339 (and date-only) strings on write and returns
// time.Time values on read, which serialize back to RFC3339.
type DateTimePlugin struct{}

func (DateTimePlugin) Validate(value any, field *metadata.FieldDescriptor) (bool, []string) {
	if _, err := parseTime(value); err != nil {
		return false, []string{fmt.Sprintf("%s: %v", field.Label(), err)}
	}
	return true, nil
}

func (DateTimePlugin) ToStorage(_ *Context, value any, _ *metadata.FieldDescriptor, _ session.Record) (any, error) {
	return parseTime(value)
}

func (DateTimePlugin) ToPresentation(_ *Context, stored any, _ *metadata.FieldDescriptor, _ session.Record) (any, error) {
	if stored == nil {
		return nil, nil
	}
	return parseTime(stored)
}

func parseTime(value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v, nil
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("invalid datetime %q", v)
	default:
		return nil, fmt.Errorf("invalid datetime value of type %T", value)
	}
}

// SelectPlugin serves single-value selects. With a static source the value
// must be one of the declared options.
type SelectPlugin struct {
	passthrough
}

func (SelectPlugin) Validate(value any, field *metadata.FieldDescriptor) (bool, []string) {
	sel := field.Select
	if sel == nil || sel.Source != metadata.SourceStatic {
		return true, nil
	}
	for _, opt := range sel.Options {
		if optionValueEqual(opt.Value, value) {
			return true, nil
		}
	}
	return false, []string{fmt.Sprintf("%s: %v is not an allowed option", field.Label(), value)}
}

func optionValueEqual(a, b any) bool {
	if a == b {
		return true
	}
	// JSON round-trips turn ints into float64; compare numerically when possible
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
