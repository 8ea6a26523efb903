package mapping

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// MultiSelectPlugin serves multi-value selects.
//
// Without a related type the selected values are stored as a plain JSON list.
// With one, the entity field holds a linked collection and the plugin
// reconciles it against the selected id set instead of rebuilding it: links
// whose target id is still selected are kept by reference (junction-row-only
// data survives), deselected links are dropped, and new ids are resolved from
// the in-memory collection or the persistence session.
//
// Two collection shapes are supported, detected by comparing the related id
// field to the element type's own key field: when they are equal the element
// is the linked entity itself (direct many-to-many), otherwise the element is
// a junction row with its own identity.
type MultiSelectPlugin struct{}

func (MultiSelectPlugin) Validate(value any, field *metadata.FieldDescriptor) (bool, []string) {
	if _, ok := valueList(value); !ok {
		return false, []string{fmt.Sprintf("%s must be a list", field.Label())}
	}
	return true, nil
}

func (p MultiSelectPlugin) ToStorage(ctx *Context, value any, field *metadata.FieldDescriptor, entity session.Record) (any, error) {
	selected, ok := valueList(value)
	if !ok {
		return nil, fmt.Errorf("%s must be a list", field.Label())
	}

	sel := field.Select
	if sel == nil || sel.RelatedType == "" {
		return selected, nil
	}

	relType := ctx.Types.Type(sel.RelatedType)
	if relType == nil {
		return nil, configf("multiselect field %s references unregistered type %s", field.Name, sel.RelatedType)
	}
	direct := sel.RelatedIDField == relType.KeyField

	var existing []session.Record
	if ctx.Session != nil {
		existing = ctx.Session.Attached(entity, field.Name)
	}
	byID := make(map[string]session.Record, len(existing))
	for _, link := range existing {
		byID[idKey(link[sel.RelatedIDField])] = link
	}

	result := make([]session.Record, 0, len(selected))
	for _, id := range selected {
		if link, ok := byID[idKey(id)]; ok {
			result = append(result, link)
			continue
		}
		if direct {
			target, err := p.resolveTarget(ctx, relType, id)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", field.Label(), err)
			}
			result = append(result, target)
			continue
		}
		// Junction shape: a fresh junction row referencing the id
		link := session.Record{sel.RelatedIDField: id}
		if relType.KeyGenerated {
			link[relType.KeyField] = uuid.New().String()
		}
		result = append(result, link)
	}
	return result, nil
}

// resolveTarget fetches the linked entity for a newly selected id. An id that
// cannot be resolved is an error, never a silently fabricated stub.
func (MultiSelectPlugin) resolveTarget(ctx *Context, relType *metadata.TypeDescriptor, id any) (session.Record, error) {
	if ctx.Session == nil {
		return nil, fmt.Errorf("cannot resolve %s %v: no persistence session", relType.Name, id)
	}
	target, err := ctx.Session.FindByKey(ctx.Ctx, relType, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("%s %v does not exist", relType.Name, id)
		}
		return nil, fmt.Errorf("resolve %s %v: %w", relType.Name, id, err)
	}
	return target, nil
}

// ToPresentation extracts the linked id list from the loaded collection,
// using the same shape detection as the write path.
func (MultiSelectPlugin) ToPresentation(ctx *Context, stored any, field *metadata.FieldDescriptor, entity session.Record) (any, error) {
	sel := field.Select
	if sel == nil || sel.RelatedType == "" {
		return plainList(stored)
	}

	relType := ctx.Types.Type(sel.RelatedType)
	if relType == nil {
		return nil, configf("multiselect field %s references unregistered type %s", field.Name, sel.RelatedType)
	}

	var collection []session.Record
	if ctx.Session != nil {
		collection = ctx.Session.Attached(entity, field.Name)
	}
	ids := make([]any, 0, len(collection))
	for _, link := range collection {
		ids = append(ids, link[sel.RelatedIDField])
	}
	return ids, nil
}

// valueList normalizes the inbound selected-id value to a slice.
func valueList(value any) ([]any, bool) {
	switch v := value.(type) {
	case nil:
		return nil, true
	case []any:
		return v, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

// plainList decodes a non-relational stored value (JSON text or live slice).
func plainList(stored any) (any, error) {
	switch v := stored.(type) {
	case nil:
		return nil, nil
	case []any:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var out []any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("decode stored list: %w", err)
		}
		return out, nil
	case []byte:
		var out []any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, fmt.Errorf("decode stored list: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported stored list value of type %T", stored)
	}
}

// idKey normalizes id values for set membership: JSON numbers arrive as
// float64 while persisted keys may be int64.
func idKey(v any) string {
	if f, ok := toFloat(v); ok {
		return fmt.Sprintf("n:%v", f)
	}
	return fmt.Sprintf("s:%v", v)
}
