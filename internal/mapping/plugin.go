package mapping

import (
	"fmt"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// Plugin is one field-type unit. Implementations are stateless: one instance
// per field-type id, shared across calls.
//
// Validate checks a raw model value against the field's metadata. ToStorage
// converts a model value into its persisted form; ToPresentation is the
// inverse. Both receive the mapping context and the entity record because
// relational field types (multiselect) reconcile against the entity's live
// collections and file types reach the storage backend.
type Plugin interface {
	Validate(value any, field *metadata.FieldDescriptor) (ok bool, messages []string)
	ToStorage(ctx *Context, value any, field *metadata.FieldDescriptor, entity session.Record) (any, error)
	ToPresentation(ctx *Context, stored any, field *metadata.FieldDescriptor, entity session.Record) (any, error)
}

// isEmpty implements the base required check shared by all plugins.
func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

// requiredMessage names the field the way validation messages surface it.
func requiredMessage(field *metadata.FieldDescriptor) string {
	return fmt.Sprintf("%s is required", field.Label())
}

// passthrough is embedded by plugins whose conversions are identity in one or
// both directions.
type passthrough struct{}

func (passthrough) ToStorage(_ *Context, value any, _ *metadata.FieldDescriptor, _ session.Record) (any, error) {
	return value, nil
}

func (passthrough) ToPresentation(_ *Context, stored any, _ *metadata.FieldDescriptor, _ session.Record) (any, error) {
	return stored, nil
}

// accepting is embedded by plugins with no validation beyond the base
// required check.
type accepting struct{}

func (accepting) Validate(_ any, _ *metadata.FieldDescriptor) (bool, []string) {
	return true, nil
}
