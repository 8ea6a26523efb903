package mapping

import (
	"encoding/json"
	"fmt"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// mapComplexToEntity dispatches a complex/repeater field by storage strategy.
func mapComplexToEntity(ctx *Context, f *metadata.FieldDescriptor, model, entity session.Record, errs *Errors, path string) error {
	nestedType := ctx.Types.Type(f.Complex.TypeName)
	if nestedType == nil {
		return configf("complex field %s references unregistered type %s", f.Name, f.Complex.TypeName)
	}

	if f.Complex.Repeater {
		return mapRepeaterToEntity(ctx, f, nestedType, model, entity, errs, path)
	}
	if f.Complex.Storage == metadata.StorageJSON {
		return mapJSONSingleToEntity(ctx, f, nestedType, model, entity, errs, path)
	}
	return mapRelatedSingleToEntity(ctx, f, nestedType, model, entity, errs, path)
}

// mapJSONSingleToEntity maps a nested model onto a property bag seeded from
// the previously persisted JSON, so keys outside the nested type's own schema
// survive unrelated writes. The bag is flattened to a JSON string only at the
// outermost nesting level; inner levels hand the live bag to their parent.
func mapJSONSingleToEntity(ctx *Context, f *metadata.FieldDescriptor, nestedType *metadata.TypeDescriptor, model, entity session.Record, errs *Errors, path string) error {
	value := model[f.Name]
	if value == nil {
		entity[f.Name] = nil
		return nil
	}
	nested, ok := value.(map[string]any)
	if !ok {
		errs.Add(path, "validation", fmt.Sprintf("%s must be an object", f.Label()))
		return nil
	}

	bag := session.Record{}
	if seeded, err := decodeBag(entity[f.Name]); err == nil {
		for k, v := range seeded {
			bag[k] = v
		}
	}

	ctx.jsonDepth++
	err := mapNestedRecord(ctx, nestedType, nested, bag, errs, path)
	ctx.jsonDepth--
	if err != nil {
		return err
	}

	if ctx.jsonDepth == 0 {
		text, err := json.Marshal(bag)
		if err != nil {
			return structuralf("serialize %s: %v", path, err)
		}
		entity[f.Name] = string(text)
		return nil
	}
	entity[f.Name] = bag
	return nil
}

// mapRelatedSingleToEntity maps onto the already-linked entity when present,
// else a fresh record of the declared related type.
func mapRelatedSingleToEntity(ctx *Context, f *metadata.FieldDescriptor, nestedType *metadata.TypeDescriptor, model, entity session.Record, errs *Errors, path string) error {
	value := model[f.Name]
	if value == nil {
		entity[f.Name] = nil
		return nil
	}
	nested, ok := value.(map[string]any)
	if !ok {
		errs.Add(path, "validation", fmt.Sprintf("%s must be an object", f.Label()))
		return nil
	}

	target, _ := entity[f.Name].(map[string]any)
	if target == nil {
		target = session.Record{}
	}
	if err := mapNestedRecord(ctx, nestedType, nested, target, errs, path); err != nil {
		return err
	}
	entity[f.Name] = target
	return nil
}

// mapRepeaterToEntity maps a model collection. Related-entity items are
// matched to persisted siblings by identity-key value; unmatched items are
// created fresh. The target collection is cleared and refilled with exactly
// the mapped list.
func mapRepeaterToEntity(ctx *Context, f *metadata.FieldDescriptor, nestedType *metadata.TypeDescriptor, model, entity session.Record, errs *Errors, path string) error {
	items, ok := valueList(model[f.Name])
	if !ok {
		errs.Add(path, "validation", fmt.Sprintf("%s must be a list", f.Label()))
		return nil
	}

	if f.Complex.MinItems > 0 && len(items) < f.Complex.MinItems {
		errs.Add(path, "validation", fmt.Sprintf("%s requires at least %d items", f.Label(), f.Complex.MinItems))
	}
	if f.Complex.MaxItems > 0 && len(items) > f.Complex.MaxItems {
		errs.Add(path, "validation", fmt.Sprintf("%s allows at most %d items", f.Label(), f.Complex.MaxItems))
	}

	related := f.Complex.Storage == metadata.StorageRelated
	var existing []session.Record
	if related && ctx.Session != nil {
		existing = ctx.Session.Attached(entity, f.Name)
	}
	sortField := autoSortField(nestedType)

	isJSON := !related
	if isJSON {
		ctx.jsonDepth++
	}

	result := make([]any, 0, len(items))
	for i, item := range items {
		if item == nil {
			continue
		}
		nested, ok := item.(map[string]any)
		if !ok {
			// Primitive/simple item: copied verbatim
			result = append(result, item)
			continue
		}

		var target session.Record
		if related {
			target = matchExisting(existing, nestedType.KeyField, nested[nestedType.KeyField])
		}
		if target == nil {
			target = session.Record{}
		}

		if err := mapNestedRecord(ctx, nestedType, nested, target, errs, indexPath(path, i)); err != nil {
			if isJSON {
				ctx.jsonDepth--
			}
			return err
		}
		if sortField != "" {
			target[sortField] = int64(i)
		}
		result = append(result, target)
	}

	if isJSON {
		ctx.jsonDepth--
		if ctx.jsonDepth == 0 {
			text, err := json.Marshal(result)
			if err != nil {
				return structuralf("serialize %s: %v", path, err)
			}
			entity[f.Name] = string(text)
			return nil
		}
	}
	entity[f.Name] = result
	return nil
}

// mapNestedRecord is the recursive per-field pass shared by all complex
// strategies: no computed fields, hooks or partial-update skips apply below
// the top level.
func mapNestedRecord(ctx *Context, t *metadata.TypeDescriptor, src, dst session.Record, errs *Errors, base string) error {
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.SkipOnWrite || f.IsAuto() {
			continue
		}
		if err := mapFieldToEntity(ctx, f, src, dst, errs, base); err != nil {
			return err
		}
	}
	return nil
}

// matchExisting finds a persisted sibling with the same identity-key value.
func matchExisting(existing []session.Record, keyField string, key any) session.Record {
	if isDefaultKey(key) {
		return nil
	}
	for _, rec := range existing {
		if idKey(rec[keyField]) == idKey(key) {
			return rec
		}
	}
	return nil
}

// autoSortField returns the type's auto sort-index field name, if any.
func autoSortField(t *metadata.TypeDescriptor) string {
	for i := range t.Fields {
		if t.Fields[i].Auto == metadata.AutoSortIndex {
			return t.Fields[i].Name
		}
	}
	return ""
}

// decodeBag parses previously persisted JSON-strategy content.
func decodeBag(raw any) (map[string]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, err
		}
		return out, nil
	case []byte:
		var out map[string]any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported persisted value of type %T", raw)
	}
}
