package store

import (
	"context"
	"fmt"
	"strings"

	"adminkit/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// MigrateAll ensures a table for every registered type that declares one.
func (m *Migrator) MigrateAll(ctx context.Context, reg *metadata.Registry) error {
	for _, t := range reg.All() {
		if t.Table == "" {
			continue
		}
		if err := m.Migrate(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

// Migrate ensures the table matches the type descriptor: creates it when
// missing, otherwise adds missing columns. Columns are never dropped.
func (m *Migrator) Migrate(ctx context.Context, t *metadata.TypeDescriptor) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, t.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}
	if !exists {
		return m.createTable(ctx, t)
	}
	return m.alterTable(ctx, t)
}

func (m *Migrator) createTable(ctx context.Context, t *metadata.TypeDescriptor) error {
	var cols []string
	for i := range t.Fields {
		def := m.columnDef(t, &t.Fields[i])
		if def != "" {
			cols = append(cols, def)
		}
	}

	sqlStr := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", t.Table, strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, sqlStr); err != nil {
		return fmt.Errorf("create table %s: %w", t.Table, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, t *metadata.TypeDescriptor) error {
	existing, err := m.tableColumns(ctx, t.Table)
	if err != nil {
		return fmt.Errorf("inspect table %s: %w", t.Table, err)
	}

	for i := range t.Fields {
		f := &t.Fields[i]
		if existing[f.Name] || !HasColumn(f) {
			continue
		}
		sqlStr := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			t.Table, f.Name, m.store.Dialect.ColumnType(f))
		if _, err := m.store.DB.ExecContext(ctx, sqlStr); err != nil {
			return fmt.Errorf("add column %s.%s: %w", t.Table, f.Name, err)
		}
	}
	return nil
}

func (m *Migrator) columnDef(t *metadata.TypeDescriptor, f *metadata.FieldDescriptor) string {
	if !HasColumn(f) {
		return ""
	}
	colType := m.store.Dialect.ColumnType(f)
	parts := []string{f.Name, colType}
	if f.Name == t.KeyField {
		parts = append(parts, "PRIMARY KEY")
	} else if f.Required {
		parts = append(parts, "NOT NULL")
	}
	return strings.Join(parts, " ")
}

func (m *Migrator) tableColumns(ctx context.Context, table string) (map[string]bool, error) {
	var sqlStr string
	if m.store.Dialect.Name() == "sqlite" {
		sqlStr = fmt.Sprintf("SELECT name FROM pragma_table_info('%s')", table)
	} else {
		sqlStr = fmt.Sprintf(
			"SELECT column_name FROM information_schema.columns WHERE table_name = '%s' AND table_schema = 'public'", table)
	}

	rows, err := QueryRows(ctx, m.store.DB, sqlStr)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		for _, v := range row {
			if s, ok := v.(string); ok {
				out[s] = true
			}
		}
	}
	return out, nil
}

// HasColumn reports whether the field is backed by a column of its own.
// Related-entity complex fields and relational multiselects live in other
// tables and have none.
func HasColumn(f *metadata.FieldDescriptor) bool {
	if f.Complex != nil {
		return f.Complex.Storage == metadata.StorageJSON
	}
	if f.Type == metadata.TypeMultiSelect && f.Select != nil && f.Select.RelatedType != "" {
		return false
	}
	return true
}
