package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// SQLSession is the database-backed persistence session handed to the mapper.
// One instance per request; it never outlives the request that created it.
type SQLSession struct {
	store *Store
}

func NewSession(s *Store) *SQLSession {
	return &SQLSession{store: s}
}

func (s *SQLSession) FindByKey(ctx context.Context, t *metadata.TypeDescriptor, key any) (session.Record, error) {
	pb := s.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(columnsFor(t), ", "), t.Table, t.KeyField, pb.Add(key))

	row, err := QueryRow(ctx, s.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, session.ErrNotFound
		}
		return nil, err
	}
	s.normalizeRow(t, row)
	return row, nil
}

func (s *SQLSession) Collection(ctx context.Context, t *metadata.TypeDescriptor, parentField string, parentKey any) ([]session.Record, error) {
	pb := s.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(columnsFor(t), ", "), t.Table, parentField, pb.Add(parentKey))
	if sortField := sortFieldOf(t); sortField != "" {
		sqlStr += " ORDER BY " + sortField
	}

	rows, err := QueryRows(ctx, s.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, err
	}
	out := make([]session.Record, 0, len(rows))
	for _, row := range rows {
		s.normalizeRow(t, row)
		out = append(out, row)
	}
	return out, nil
}

// Attached reads the entity's live in-memory collection; no database access.
func (s *SQLSession) Attached(entity session.Record, field string) []session.Record {
	switch v := entity[field].(type) {
	case []session.Record:
		return v
	case []any:
		out := make([]session.Record, 0, len(v))
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

func (s *SQLSession) MaxSortIndex(ctx context.Context, t *metadata.TypeDescriptor, indexField string) (int64, error) {
	sqlStr := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) AS max FROM %s", indexField, t.Table)
	row, err := QueryRow(ctx, s.store.DB, sqlStr)
	if err != nil {
		return 0, err
	}
	switch v := row["max"].(type) {
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, nil
	}
}

// Insert persists a new record built by the mapper.
func (s *SQLSession) Insert(ctx context.Context, t *metadata.TypeDescriptor, rec session.Record) error {
	pb := s.store.Dialect.NewParamBuilder()
	var cols, placeholders []string
	for _, col := range columnsFor(t) {
		v, ok := rec[col]
		if !ok {
			continue
		}
		cols = append(cols, col)
		placeholders = append(placeholders, pb.Add(sqlValue(v)))
	}
	sqlStr := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		t.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if _, err := Exec(ctx, s.store.DB, sqlStr, pb.Params()...); err != nil {
		return s.store.Dialect.MapError(err)
	}
	return nil
}

// Update persists the changed columns of an existing record.
func (s *SQLSession) Update(ctx context.Context, t *metadata.TypeDescriptor, rec session.Record) error {
	pb := s.store.Dialect.NewParamBuilder()
	var sets []string
	for _, col := range columnsFor(t) {
		if col == t.KeyField {
			continue
		}
		v, ok := rec[col]
		if !ok {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = %s", col, pb.Add(sqlValue(v))))
	}
	if len(sets) == 0 {
		return nil
	}
	sqlStr := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		t.Table, strings.Join(sets, ", "), t.KeyField, pb.Add(rec[t.KeyField]))
	affected, err := Exec(ctx, s.store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return s.store.Dialect.MapError(err)
	}
	if affected == 0 {
		return session.ErrNotFound
	}
	return nil
}

// Delete removes a record by key.
func (s *SQLSession) Delete(ctx context.Context, t *metadata.TypeDescriptor, key any) error {
	pb := s.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", t.Table, t.KeyField, pb.Add(key))
	_, err := Exec(ctx, s.store.DB, sqlStr, pb.Params()...)
	return err
}

// Options loads the option list for an entity-sourced select: every record's
// key and label. The label column is the first text field after the key, or
// the key itself.
func (s *SQLSession) Options(ctx context.Context, t *metadata.TypeDescriptor) ([]metadata.Option, error) {
	labelField := t.KeyField
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.Name != t.KeyField && (f.Type == metadata.TypeText || f.Type == metadata.TypeLongText) {
			labelField = f.Name
			break
		}
	}

	sqlStr := fmt.Sprintf("SELECT %s, %s FROM %s ORDER BY %s", t.KeyField, labelField, t.Table, labelField)
	rows, err := QueryRows(ctx, s.store.DB, sqlStr)
	if err != nil {
		return nil, err
	}
	opts := make([]metadata.Option, 0, len(rows))
	for _, row := range rows {
		opts = append(opts, metadata.Option{
			Value: row[t.KeyField],
			Label: fmt.Sprint(row[labelField]),
		})
	}
	return opts, nil
}

// normalizeRow fixes up driver-level representations per the descriptor.
func (s *SQLSession) normalizeRow(t *metadata.TypeDescriptor, row map[string]any) {
	if !s.store.Dialect.NeedsBoolFix() {
		return
	}
	var boolFields []string
	for i := range t.Fields {
		if t.Fields[i].Type == metadata.TypeBoolean {
			boolFields = append(boolFields, t.Fields[i].Name)
		}
	}
	NormalizeBooleans([]map[string]any{row}, boolFields)
}

// columnsFor lists the type's column-backed field names in declaration order.
func columnsFor(t *metadata.TypeDescriptor) []string {
	var cols []string
	for i := range t.Fields {
		if HasColumn(&t.Fields[i]) {
			cols = append(cols, t.Fields[i].Name)
		}
	}
	return cols
}

func sortFieldOf(t *metadata.TypeDescriptor) string {
	for i := range t.Fields {
		if t.Fields[i].Auto == metadata.AutoSortIndex {
			return t.Fields[i].Name
		}
	}
	return ""
}

// sqlValue flattens live maps and slices to JSON text for JSONB/TEXT columns.
func sqlValue(v any) any {
	switch v.(type) {
	case map[string]any, []any, []string:
		data, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return string(data)
	default:
		return v
	}
}
