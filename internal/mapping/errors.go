package mapping

import (
	"errors"
	"fmt"
)

// Sentinel categories for failures that abort a whole map/build call, as
// opposed to field-level validation errors which never do.
var (
	// ErrStructural marks unresolvable relationship targets, unsupported
	// collection shapes and other subtree-fatal conditions.
	ErrStructural = errors.New("structural error")

	// ErrConfiguration marks programmer errors in descriptor wiring: a field
	// routed somewhere that requires an attribute it does not carry, an
	// unregistered nested type, and the like.
	ErrConfiguration = errors.New("configuration error")
)

func structuralf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStructural, fmt.Sprintf(format, args...))
}

func configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// FieldError is one user-correctable validation failure at a property path.
type FieldError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Errors accumulates field-level validation errors in encounter order.
// Multiple errors may share a path; nothing is ever overwritten.
type Errors struct {
	list []FieldError
}

func NewErrors() *Errors {
	return &Errors{}
}

// Add appends an error at the given path.
func (e *Errors) Add(path, code, message string) {
	e.list = append(e.list, FieldError{Path: path, Code: code, Message: message})
}

// AddErr appends a Go error at the given path with a generic code.
func (e *Errors) AddErr(path string, err error) {
	e.Add(path, "invalid", err.Error())
}

// Merge appends all of other's errors, keeping order.
func (e *Errors) Merge(other *Errors) {
	if other != nil {
		e.list = append(e.list, other.list...)
	}
}

// Empty reports whether no errors were collected.
func (e *Errors) Empty() bool { return len(e.list) == 0 }

// Len returns the number of collected errors.
func (e *Errors) Len() int { return len(e.list) }

// All returns the collected errors in order.
func (e *Errors) All() []FieldError { return e.list }

// ByPath groups errors by full path, preserving per-path order.
func (e *Errors) ByPath() map[string][]FieldError {
	out := make(map[string][]FieldError)
	for _, fe := range e.list {
		out[fe.Path] = append(out[fe.Path], fe)
	}
	return out
}

// childPath joins a parent path and a property name with dot notation.
func childPath(base, name string) string {
	if base == "" {
		return name
	}
	return base + "." + name
}

// indexPath appends a bracketed index to a path.
func indexPath(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}
