package mapping

import (
	"context"
	"time"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
	"adminkit/internal/storage"
)

// Context is the call-scoped state threaded through one mapping request.
// Created per request, discarded after; never shared across goroutines.
type Context struct {
	Ctx     context.Context
	Plugins *PluginRegistry
	Types   *metadata.Registry
	Session session.Session
	Files   storage.FileStorage

	// UserID is the acting user, written into updated-by fields.
	UserID string

	// RequestProps, when non-nil, is the set of property names present in
	// the inbound payload. On updates, fields absent from it are skipped so
	// their persisted values survive.
	RequestProps map[string]bool

	// jsonDepth > 0 means the current value is destined for JSON
	// serialization: nested results stay live property bags instead of being
	// flattened to strings.
	jsonDepth int

	// Clock is overridable for tests; defaults to time.Now.
	Clock func() time.Time
}

func NewContext(ctx context.Context, plugins *PluginRegistry, types *metadata.Registry, sess session.Session) *Context {
	return &Context{
		Ctx:     ctx,
		Plugins: plugins,
		Types:   types,
		Session: sess,
		Clock:   time.Now,
	}
}

// InRequest reports whether the property was present in the inbound payload.
// A nil property set means "everything was present".
func (c *Context) InRequest(name string) bool {
	if c.RequestProps == nil {
		return true
	}
	return c.RequestProps[name]
}

func (c *Context) now() time.Time {
	if c.Clock != nil {
		return c.Clock()
	}
	return time.Now()
}
