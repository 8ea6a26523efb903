package mapping

import (
	"errors"
	"fmt"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// EntityToModel is the structural mirror of ModelToEntity: plugin-mediated
// conversion per simple field, recursive construction for complex fields
// (deserializing JSON strings at the boundary, or mapping off loaded related
// records), with the same per-field error isolation.
func EntityToModel(ctx *Context, modelType, entityType *metadata.TypeDescriptor, entity session.Record) (session.Record, *Errors, error) {
	if modelType == nil || entityType == nil {
		return nil, nil, configf("model and entity types must both be supplied")
	}
	if entity == nil {
		return nil, nil, configf("nil entity for type %s", entityType.Name)
	}

	model := session.Record{}
	errs := NewErrors()

	if modelType.PreMap != nil && !modelType.PreMap(entity, model) {
		return model, errs, nil
	}

	for i := range modelType.Fields {
		f := &modelType.Fields[i]
		if f.SkipOnRead {
			continue
		}
		if err := presentField(ctx, f, entity, model, errs, ""); err != nil {
			return nil, nil, err
		}
	}

	if modelType.PostMap != nil {
		modelType.PostMap(entity, model)
	}
	return model, errs, nil
}

func presentField(ctx *Context, f *metadata.FieldDescriptor, entity, model session.Record, errs *Errors, base string) (err error) {
	path := childPath(base, f.Name)
	defer func() {
		if r := recover(); r != nil {
			errs.Add(path, "panic", fmt.Sprintf("conversion failed: %v", r))
			err = nil
		}
	}()

	if f.Complex != nil {
		return presentComplex(ctx, f, entity, model, errs, path)
	}

	stored := entity[f.Name]
	if p := ctx.Plugins.Plugin(f); p != nil {
		value, convErr := p.ToPresentation(ctx, stored, f, entity)
		if convErr != nil {
			if errors.Is(convErr, ErrConfiguration) || errors.Is(convErr, ErrStructural) {
				return convErr
			}
			errs.AddErr(path, convErr)
			return nil
		}
		model[f.Name] = value
		return nil
	}

	model[f.Name] = stored
	return nil
}

func presentComplex(ctx *Context, f *metadata.FieldDescriptor, entity, model session.Record, errs *Errors, path string) error {
	nestedType := ctx.Types.Type(f.Complex.TypeName)
	if nestedType == nil {
		return configf("complex field %s references unregistered type %s", f.Name, f.Complex.TypeName)
	}

	if f.Complex.Repeater {
		return presentRepeater(ctx, f, nestedType, entity, model, errs, path)
	}

	var source map[string]any
	if f.Complex.Storage == metadata.StorageJSON {
		bag, err := decodeBag(entity[f.Name])
		if err != nil {
			errs.AddErr(path, err)
			return nil
		}
		source = bag
	} else {
		source, _ = entity[f.Name].(map[string]any)
	}
	if source == nil {
		model[f.Name] = nil
		return nil
	}

	nested := session.Record{}
	if err := presentNestedRecord(ctx, nestedType, source, nested, errs, path); err != nil {
		return err
	}
	model[f.Name] = nested
	return nil
}

func presentRepeater(ctx *Context, f *metadata.FieldDescriptor, nestedType *metadata.TypeDescriptor, entity, model session.Record, errs *Errors, path string) error {
	var items []any
	if f.Complex.Storage == metadata.StorageJSON {
		decoded, err := plainList(entity[f.Name])
		if err != nil {
			errs.AddErr(path, err)
			return nil
		}
		items, _ = decoded.([]any)
	} else if ctx.Session != nil {
		for _, rec := range ctx.Session.Attached(entity, f.Name) {
			items = append(items, map[string]any(rec))
		}
	}

	result := make([]any, 0, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}
		source, ok := item.(map[string]any)
		if !ok {
			result = append(result, item)
			continue
		}
		nested := session.Record{}
		if err := presentNestedRecord(ctx, nestedType, source, nested, errs, indexPath(path, i)); err != nil {
			return err
		}
		result = append(result, nested)
	}
	model[f.Name] = result
	return nil
}

func presentNestedRecord(ctx *Context, t *metadata.TypeDescriptor, src, dst session.Record, errs *Errors, base string) error {
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.SkipOnRead {
			continue
		}
		if err := presentField(ctx, f, src, dst, errs, base); err != nil {
			return err
		}
	}
	return nil
}
