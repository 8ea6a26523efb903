// Package session defines the persistence collaborator used by the mapping
// core. The mapper never issues queries of its own beyond this contract.
package session

import (
	"context"
	"errors"

	"adminkit/internal/metadata"
)

var ErrNotFound = errors.New("not found")

// Record is a persisted or in-flight instance of a registered type.
type Record = map[string]any

// Session is one request's handle onto persistence. Implementations are
// single-writer per request; the mapper does not synchronize access.
type Session interface {
	// FindByKey loads the record of the given type with the given key value.
	// Returns ErrNotFound when no such record exists; the caller reports that
	// as a validation error, not a crash.
	FindByKey(ctx context.Context, t *metadata.TypeDescriptor, key any) (Record, error)

	// Collection loads the persisted child records of a related-entity field:
	// all records of the element type whose parent reference matches parentKey.
	Collection(ctx context.Context, t *metadata.TypeDescriptor, parentField string, parentKey any) ([]Record, error)

	// Attached returns the in-memory instances currently attached to the
	// given entity's collection field, without touching the database.
	Attached(entity Record, field string) []Record

	// MaxSortIndex returns the highest sort-index value among all persisted
	// records of the type, or 0 when there are none. New top-level records
	// sort after everything already stored; repeater children get positional
	// indexes from the mapper and never consult this.
	MaxSortIndex(ctx context.Context, t *metadata.TypeDescriptor, indexField string) (int64, error)
}
