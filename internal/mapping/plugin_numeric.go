package mapping

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// NumericPlugin enforces declared bounds and precision. Bounds equal to the
// unbounded sentinels are not enforced; the decimal-place cap is skipped when
// set to the unlimited sentinel.
type NumericPlugin struct{}

func (NumericPlugin) Validate(value any, field *metadata.FieldDescriptor) (bool, []string) {
	num, ok := numericValue(value)
	if !ok {
		return false, []string{fmt.Sprintf("%s must be a number", field.Label())}
	}

	attr := field.Numeric
	if attr == nil {
		return true, nil
	}

	var msgs []string
	if attr.HasMin() && num < attr.Min {
		msgs = append(msgs, fmt.Sprintf("%s must be at least %v", field.Label(), attr.Min))
	}
	if attr.HasMax() && num > attr.Max {
		msgs = append(msgs, fmt.Sprintf("%s must be at most %v", field.Label(), attr.Max))
	}
	if !attr.Decimal && num != math.Trunc(num) {
		msgs = append(msgs, fmt.Sprintf("%s must be a whole number", field.Label()))
	}
	if attr.Decimal && attr.DecimalPlaces != metadata.UnlimitedDecimals {
		if decimalPlaces(num) > attr.DecimalPlaces {
			msgs = append(msgs, fmt.Sprintf("%s allows at most %d decimal places", field.Label(), attr.DecimalPlaces))
		}
	}
	return len(msgs) == 0, msgs
}

func (NumericPlugin) ToStorage(_ *Context, value any, field *metadata.FieldDescriptor, _ session.Record) (any, error) {
	if value == nil {
		return nil, nil
	}
	num, ok := numericValue(value)
	if !ok {
		return nil, fmt.Errorf("%s must be a number", field.Label())
	}

	attr := field.Numeric
	if attr == nil || attr.Decimal {
		if attr != nil && attr.DecimalPlaces != metadata.UnlimitedDecimals {
			return roundTo(num, attr.DecimalPlaces), nil
		}
		return num, nil
	}
	// Non-decimal field: coerce to integer
	return int64(math.Round(num)), nil
}

func (NumericPlugin) ToPresentation(_ *Context, stored any, field *metadata.FieldDescriptor, _ session.Record) (any, error) {
	if stored == nil {
		return nil, nil
	}
	num, ok := numericValue(stored)
	if !ok {
		return nil, fmt.Errorf("%s holds a non-numeric value %v", field.Label(), stored)
	}
	if field.Numeric != nil && !field.Numeric.Decimal {
		return int64(num), nil
	}
	return num, nil
}

func numericValue(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func roundTo(num float64, places int) float64 {
	shift := math.Pow10(places)
	return math.Round(num*shift) / shift
}

// decimalPlaces counts significant fractional digits via the shortest decimal
// representation.
func decimalPlaces(num float64) int {
	s := strconv.FormatFloat(num, 'f', -1, 64)
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return len(s) - dot - 1
}
