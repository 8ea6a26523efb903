package engine

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
	"adminkit/internal/store"
)

// relationField pairs a relation-bearing field with the type its collection
// elements belong to.
type relationField struct {
	field   *metadata.FieldDescriptor
	relType string
	single  bool
}

// relationFields lists the fields whose values live in other tables: related
// complex fields and relational multiselects.
func relationFields(t *metadata.TypeDescriptor) []relationField {
	var out []relationField
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Complex != nil && f.Complex.Storage == metadata.StorageRelated {
			out = append(out, relationField{field: f, relType: f.Complex.TypeName, single: !f.Complex.Repeater})
			continue
		}
		if f.Type == metadata.TypeMultiSelect && f.Select != nil && f.Select.RelatedType != "" {
			out = append(out, relationField{field: f, relType: f.Select.RelatedType})
		}
	}
	return out
}

// parentRefField is the conventional column on a child type that points back
// at its parent. Empty when the child type does not declare it.
func parentRefField(parent, child *metadata.TypeDescriptor) string {
	name := parent.Name + "_id"
	if child.HasField(name) {
		return name
	}
	return ""
}

// loadRelations attaches the entity's child collections so the mapper and the
// presenters see them in memory.
func (h *Handler) loadRelations(c *fiber.Ctx, sess *store.SQLSession, t *metadata.TypeDescriptor, entity session.Record) error {
	for _, rel := range relationFields(t) {
		relType := h.types.Type(rel.relType)
		if relType == nil {
			return fmt.Errorf("field %s.%s references unregistered type %s", t.Name, rel.field.Name, rel.relType)
		}
		parentField := parentRefField(t, relType)
		if parentField == "" || relType.Table == "" {
			continue
		}

		children, err := sess.Collection(c.Context(), relType, parentField, entity[t.KeyField])
		if err != nil {
			return fmt.Errorf("load %s.%s: %w", t.Name, rel.field.Name, err)
		}
		if rel.single {
			if len(children) > 0 {
				entity[rel.field.Name] = children[0]
			}
			continue
		}
		entity[rel.field.Name] = children
	}
	return nil
}

// relationSnapshot captures the pre-mapping child key sets, so persistRelations
// can tell which children were dropped by reconciliation.
func (h *Handler) relationSnapshot(t *metadata.TypeDescriptor, entity session.Record) map[string][]any {
	out := make(map[string][]any)
	for _, rel := range relationFields(t) {
		relType := h.types.Type(rel.relType)
		if relType == nil {
			continue
		}
		var keys []any
		for _, child := range attachedList(entity[rel.field.Name]) {
			keys = append(keys, child[relType.KeyField])
		}
		out[rel.field.Name] = keys
	}
	return out
}

// persistRelations upserts the mapped child collections and deletes children
// the reconciliation dropped. Runs after the parent row exists.
func (h *Handler) persistRelations(c *fiber.Ctx, sess *store.SQLSession, t *metadata.TypeDescriptor, entity session.Record, before map[string][]any) error {
	for _, rel := range relationFields(t) {
		relType := h.types.Type(rel.relType)
		if relType == nil {
			return fmt.Errorf("field %s.%s references unregistered type %s", t.Name, rel.field.Name, rel.relType)
		}
		if relType.Table == "" {
			continue
		}
		parentField := parentRefField(t, relType)

		children := attachedList(entity[rel.field.Name])
		kept := make(map[string]bool, len(children))
		for _, child := range children {
			if parentField != "" {
				child[parentField] = entity[t.KeyField]
			}
			if isUnsetKey(child[relType.KeyField]) && relType.KeyGenerated {
				child[relType.KeyField] = uuid.New().String()
			}
			kept[recordKey(child[relType.KeyField])] = true

			if err := upsertChild(c, sess, relType, child); err != nil {
				return fmt.Errorf("persist %s.%s: %w", t.Name, rel.field.Name, err)
			}
		}

		// Children present before mapping but absent after were deselected
		for _, key := range before[rel.field.Name] {
			if kept[recordKey(key)] {
				continue
			}
			if err := sess.Delete(c.Context(), relType, key); err != nil {
				return fmt.Errorf("remove %s.%s child: %w", t.Name, rel.field.Name, err)
			}
		}
	}
	return nil
}

func upsertChild(c *fiber.Ctx, sess *store.SQLSession, relType *metadata.TypeDescriptor, child session.Record) error {
	err := sess.Update(c.Context(), relType, child)
	if errors.Is(err, session.ErrNotFound) {
		return sess.Insert(c.Context(), relType, child)
	}
	return err
}

// attachedList normalizes an attached relation value to a record slice. A
// single related object becomes a one-element list.
func attachedList(v any) []session.Record {
	switch val := v.(type) {
	case nil:
		return nil
	case []session.Record:
		return val
	case []any:
		out := make([]session.Record, 0, len(val))
		for _, item := range val {
			if rec, ok := item.(map[string]any); ok {
				out = append(out, rec)
			}
		}
		return out
	case map[string]any:
		return []session.Record{val}
	default:
		return nil
	}
}

// recordKey normalizes key values for set membership across JSON and driver
// representations.
func recordKey(v any) string {
	return fmt.Sprint(v)
}
