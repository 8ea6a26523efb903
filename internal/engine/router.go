package engine

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// RegisterRoutes wires the generic entity endpoints. The static segments
// (form, columns) are declared before the parameterized id routes so fiber
// matches them first. Register file and auth routes before this one; the
// :type parameter would otherwise swallow their paths.
func RegisterRoutes(app fiber.Router, h *Handler, mw ...fiber.Handler) {
	api := app.Group("/api", mw...)

	api.Get("/:type/form", h.GetForm)
	api.Get("/:type/form/:id", h.GetForm)
	api.Get("/:type/columns", h.Columns)
	api.Get("/:type/:id", h.Get)
	api.Post("/:type", h.Create)
	api.Put("/:type/:id", h.Update)
}

// RegisterFileRoutes wires the raw-file endpoints.
func RegisterFileRoutes(app fiber.Router, h *FileHandler, mw ...fiber.Handler) {
	files := app.Group("/api/_files", mw...)

	files.Post("/", h.Upload)
	files.Get("/", h.List)
	files.Get("/:id", h.Serve)
	files.Delete("/:id", h.Delete)
}

// ErrorHandler converts AppErrors to their envelope; anything else becomes an
// opaque 500 with the cause logged.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var appErr *AppError
		if errors.As(err, &appErr) {
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return c.Status(fiberErr.Code).JSON(ErrorResponse{
				Error: &AppError{Code: "HTTP_ERROR", Status: fiberErr.Code, Message: fiberErr.Message},
			})
		}

		log.Error("unhandled error", zap.String("path", c.Path()), zap.Error(err))
		return c.Status(500).JSON(ErrorResponse{
			Error: &AppError{Code: "INTERNAL_ERROR", Status: 500, Message: "Internal server error"},
		})
	}
}
