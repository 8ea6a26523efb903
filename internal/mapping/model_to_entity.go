package mapping

import (
	"errors"
	"fmt"
	"maps"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// ModelToEntity maps an inbound model instance into (or onto) an entity
// record, walking the model type's fields in declaration order.
//
// Field-level validation failures accumulate in the returned Errors and never
// abort sibling fields. Configuration and structural failures abort the whole
// call: no partial entity is returned.
func ModelToEntity(ctx *Context, modelType, entityType *metadata.TypeDescriptor, model session.Record, existing session.Record) (session.Record, *Errors, error) {
	if modelType == nil || entityType == nil {
		return nil, nil, configf("model and entity types must both be supplied")
	}
	if model == nil {
		return nil, nil, configf("nil model for type %s", modelType.Name)
	}

	entity := existing
	if entity == nil {
		entity = session.Record{}
	}
	isUpdate := existing != nil && !isDefaultKey(existing[entityType.KeyField])

	// Snapshot for rule environments before any mutation
	var old session.Record
	if isUpdate {
		old = maps.Clone(existing)
	} else {
		old = session.Record{}
	}

	errs := NewErrors()

	if err := applyComputedFields(ctx, entityType, entity, isUpdate); err != nil {
		return nil, nil, err
	}

	if modelType.PreMap != nil && !modelType.PreMap(model, entity) {
		return entity, errs, nil
	}

	for i := range modelType.Fields {
		f := &modelType.Fields[i]
		// Auto-managed fields were already stamped; the model never drives them
		if f.SkipOnWrite || f.IsAuto() {
			continue
		}
		if isUpdate && f.Name == entityType.KeyField {
			continue
		}
		if isUpdate && !ctx.InRequest(f.Name) {
			continue
		}
		if err := mapFieldToEntity(ctx, f, model, entity, errs, ""); err != nil {
			return nil, nil, err
		}
	}

	runRules(modelType, entity, old, !isUpdate, errs)

	if modelType.PostMap != nil {
		modelType.PostMap(model, entity)
	}
	return entity, errs, nil
}

// mapFieldToEntity handles one field. Panics and conversion errors become
// validation errors at the field's path; only configuration/structural
// failures propagate as errors.
func mapFieldToEntity(ctx *Context, f *metadata.FieldDescriptor, model, entity session.Record, errs *Errors, base string) (err error) {
	path := childPath(base, f.Name)
	defer func() {
		if r := recover(); r != nil {
			errs.Add(path, "panic", fmt.Sprintf("conversion failed: %v", r))
			err = nil
		}
	}()

	if f.Complex != nil {
		return mapComplexToEntity(ctx, f, model, entity, errs, path)
	}

	value := model[f.Name]
	if p := ctx.Plugins.Plugin(f); p != nil {
		ok, msgs := ctx.Plugins.Validate(value, f)
		if !ok {
			for _, msg := range msgs {
				errs.Add(path, "validation", msg)
			}
			return nil
		}
		stored, convErr := p.ToStorage(ctx, value, f, entity)
		if convErr != nil {
			if errors.Is(convErr, ErrConfiguration) || errors.Is(convErr, ErrStructural) {
				return convErr
			}
			errs.AddErr(path, convErr)
			return nil
		}
		entity[f.Name] = stored
		return nil
	}

	// No plugin, no complex attribute: direct copy
	entity[f.Name] = value
	return nil
}

// isDefaultKey reports whether an identity value is still unset.
func isDefaultKey(v any) bool {
	switch k := v.(type) {
	case nil:
		return true
	case string:
		return k == "" || k == "00000000-0000-0000-0000-000000000000"
	case int:
		return k == 0
	case int64:
		return k == 0
	case float64:
		return k == 0
	default:
		return false
	}
}
