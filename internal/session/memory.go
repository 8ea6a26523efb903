package session

import (
	"context"

	"adminkit/internal/metadata"
)

// Memory is an in-process Session backed by maps. Used by unit tests and by
// callers that map against graphs not yet persisted.
type Memory struct {
	records map[string]map[any]Record // type name -> key -> record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string]map[any]Record)}
}

// Put stores a record under its type and key value.
func (m *Memory) Put(typeName string, key any, rec Record) {
	byKey, ok := m.records[typeName]
	if !ok {
		byKey = make(map[any]Record)
		m.records[typeName] = byKey
	}
	byKey[key] = rec
}

func (m *Memory) FindByKey(_ context.Context, t *metadata.TypeDescriptor, key any) (Record, error) {
	byKey := m.records[t.Name]
	if byKey == nil {
		return nil, ErrNotFound
	}
	rec, ok := byKey[key]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) Collection(_ context.Context, t *metadata.TypeDescriptor, parentField string, parentKey any) ([]Record, error) {
	var out []Record
	for _, rec := range m.records[t.Name] {
		if rec[parentField] == parentKey {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) Attached(entity Record, field string) []Record {
	switch v := entity[field].(type) {
	case []Record:
		return v
	case []any:
		out := make([]Record, 0, len(v))
		for _, item := range v {
			if rec, ok := item.(map[string]any); ok {
				out = append(out, rec)
			}
		}
		return out
	default:
		return nil
	}
}

func (m *Memory) MaxSortIndex(_ context.Context, t *metadata.TypeDescriptor, indexField string) (int64, error) {
	var max int64
	for _, rec := range m.records[t.Name] {
		switch v := rec[indexField].(type) {
		case int64:
			if v > max {
				max = v
			}
		case int:
			if int64(v) > max {
				max = int64(v)
			}
		case float64:
			if int64(v) > max {
				max = int64(v)
			}
		}
	}
	return max, nil
}
