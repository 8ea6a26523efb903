package engine

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"adminkit/internal/form"
	"adminkit/internal/mapping"
	"adminkit/internal/metadata"
	"adminkit/internal/session"
	"adminkit/internal/storage"
	"adminkit/internal/store"
)

// Handler serves the generic entity API: every registered type gets the same
// read, write and form endpoints, driven entirely by its descriptor.
type Handler struct {
	store   *store.Store
	types   *metadata.Registry
	plugins *mapping.PluginRegistry
	files   storage.FileStorage
	log     *zap.Logger
}

func NewHandler(s *store.Store, types *metadata.Registry, plugins *mapping.PluginRegistry, files storage.FileStorage, log *zap.Logger) *Handler {
	return &Handler{store: s, types: types, plugins: plugins, files: files, log: log}
}

// Get handles GET /api/:type/:id.
func (h *Handler) Get(c *fiber.Ctx) error {
	t, err := h.typeOf(c)
	if err != nil {
		return err
	}
	id := c.Params("id")

	mctx, sess := h.newMappingContext(c)
	entity, err := sess.FindByKey(c.Context(), t, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return NotFoundError(t.Name, id)
		}
		return h.internal(err, "load entity", t.Name)
	}
	if err := h.loadRelations(c, sess, t, entity); err != nil {
		return h.internal(err, "load relations", t.Name)
	}

	model, _, err := mapping.EntityToModel(mctx, t, t, entity)
	if err != nil {
		return h.internal(err, "present entity", t.Name)
	}
	return c.JSON(fiber.Map{"data": model})
}

// Create handles POST /api/:type.
func (h *Handler) Create(c *fiber.Ctx) error {
	t, err := h.typeOf(c)
	if err != nil {
		return err
	}

	var model map[string]any
	if err := c.BodyParser(&model); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}

	mctx, sess := h.newMappingContext(c)
	entity, errs, err := mapping.ModelToEntity(mctx, t, t, model, nil)
	if err != nil {
		return h.internal(err, "map model", t.Name)
	}
	if !errs.Empty() {
		return ValidationError(errs)
	}

	if isUnsetKey(entity[t.KeyField]) && t.KeyGenerated {
		entity[t.KeyField] = uuid.New().String()
	}

	if err := sess.Insert(c.Context(), t, entity); err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return ConflictError("A record with the same unique value already exists")
		}
		return h.internal(err, "insert entity", t.Name)
	}
	if err := h.persistRelations(c, sess, t, entity, nil); err != nil {
		return h.internal(err, "persist relations", t.Name)
	}

	out, _, err := mapping.EntityToModel(mctx, t, t, entity)
	if err != nil {
		return h.internal(err, "present entity", t.Name)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": out})
}

// Update handles PUT /api/:type/:id. The payload's key set decides which
// fields change; persisted values of absent fields survive.
func (h *Handler) Update(c *fiber.Ctx) error {
	t, err := h.typeOf(c)
	if err != nil {
		return err
	}
	id := c.Params("id")

	mctx, sess := h.newMappingContext(c)
	existing, err := sess.FindByKey(c.Context(), t, id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return NotFoundError(t.Name, id)
		}
		return h.internal(err, "load entity", t.Name)
	}
	if err := h.loadRelations(c, sess, t, existing); err != nil {
		return h.internal(err, "load relations", t.Name)
	}
	before := h.relationSnapshot(t, existing)

	var model map[string]any
	if err := c.BodyParser(&model); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	mctx.RequestProps = make(map[string]bool, len(model))
	for k := range model {
		mctx.RequestProps[k] = true
	}

	entity, errs, err := mapping.ModelToEntity(mctx, t, t, model, existing)
	if err != nil {
		return h.internal(err, "map model", t.Name)
	}
	if !errs.Empty() {
		return ValidationError(errs)
	}

	if err := sess.Update(c.Context(), t, entity); err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return ConflictError("A record with the same unique value already exists")
		}
		return h.internal(err, "update entity", t.Name)
	}
	if err := h.persistRelations(c, sess, t, entity, before); err != nil {
		return h.internal(err, "persist relations", t.Name)
	}

	out, _, err := mapping.EntityToModel(mctx, t, t, entity)
	if err != nil {
		return h.internal(err, "present entity", t.Name)
	}
	return c.JSON(fiber.Map{"data": out})
}

// GetForm handles GET /api/:type/form and GET /api/:type/form/:id.
func (h *Handler) GetForm(c *fiber.Ctx) error {
	t, err := h.typeOf(c)
	if err != nil {
		return err
	}

	mctx, sess := h.newMappingContext(c)

	var instance session.Record
	if id := c.Params("id"); id != "" {
		instance, err = sess.FindByKey(c.Context(), t, id)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return NotFoundError(t.Name, id)
			}
			return h.internal(err, "load entity", t.Name)
		}
		if err := h.loadRelations(c, sess, t, instance); err != nil {
			return h.internal(err, "load relations", t.Name)
		}
	}

	builder := form.NewBuilder(h.types, h.plugins)
	builder.EntityOptions = func(typeName string) ([]metadata.Option, error) {
		relType := h.types.Type(typeName)
		if relType == nil {
			return nil, UnknownTypeError(typeName)
		}
		return sess.Options(c.Context(), relType)
	}

	result, err := builder.Build(mctx, t, instance)
	if err != nil {
		return h.internal(err, "build form", t.Name)
	}
	return c.JSON(fiber.Map{"data": result})
}

// Columns handles GET /api/:type/columns.
func (h *Handler) Columns(c *fiber.Ctx) error {
	t, err := h.typeOf(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": form.Columns(t)})
}

// --- helpers ---

func (h *Handler) typeOf(c *fiber.Ctx) (*metadata.TypeDescriptor, error) {
	name := c.Params("type")
	t := h.types.Type(name)
	if t == nil {
		return nil, UnknownTypeError(name)
	}
	return t, nil
}

// newMappingContext builds the per-request mapping context and its session.
func (h *Handler) newMappingContext(c *fiber.Ctx) (*mapping.Context, *store.SQLSession) {
	sess := store.NewSession(h.store)
	mctx := mapping.NewContext(c.Context(), h.plugins, h.types, sess)
	mctx.Files = h.files
	if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
		mctx.UserID = user.ID
	}
	return mctx, sess
}

// internal logs the real cause and returns an opaque 500. Mapper configuration
// and structural failures land here: they indicate broken descriptors, not bad
// requests.
func (h *Handler) internal(err error, op, typeName string) error {
	h.log.Error("request failed",
		zap.String("op", op),
		zap.String("type", typeName),
		zap.Error(err))
	return NewAppError("INTERNAL_ERROR", 500, "Internal server error")
}

func isUnsetKey(v any) bool {
	switch k := v.(type) {
	case nil:
		return true
	case string:
		return k == ""
	default:
		return false
	}
}
