package engine

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"adminkit/internal/metadata"
	"adminkit/internal/storage"
	"adminkit/internal/store"
)

// FileHandler serves upload, download and deletion of raw files. File and
// image fields reference uploads by the returned id.
type FileHandler struct {
	store   *store.Store
	storage storage.FileStorage
	maxSize int64
}

func NewFileHandler(s *store.Store, fs storage.FileStorage, maxSize int64) *FileHandler {
	return &FileHandler{store: s, storage: fs, maxSize: maxSize}
}

func (h *FileHandler) Upload(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Missing file in form data")
	}

	if h.maxSize > 0 && file.Size > h.maxSize {
		msg := fmt.Sprintf("File too large: %d bytes (max %d)", file.Size, h.maxSize)
		return NewAppError("FILE_TOO_LARGE", 413, msg)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open uploaded file: %w", err)
	}
	defer src.Close()

	fileID := uuid.New().String()
	filename := file.Filename
	mimeType := file.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	storagePath, err := h.storage.Save(c.Context(), fileID, filename, src)
	if err != nil {
		return fmt.Errorf("save file: %w", err)
	}

	var uploadedBy *string
	if user, ok := c.Locals("user").(*metadata.UserContext); ok && user != nil {
		uploadedBy = &user.ID
	}

	pb := h.store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		`INSERT INTO _files (id, filename, storage_path, mime_type, size, uploaded_by)
		 VALUES (%s, %s, %s, %s, %s, %s)`,
		pb.Add(fileID), pb.Add(filename), pb.Add(storagePath),
		pb.Add(mimeType), pb.Add(file.Size), pb.Add(uploadedBy))
	if _, err := store.Exec(c.Context(), h.store.DB, sqlStr, pb.Params()...); err != nil {
		// Clean up stored file on DB failure
		_ = h.storage.Delete(c.Context(), storagePath)
		return fmt.Errorf("insert _files: %w", err)
	}

	return c.Status(201).JSON(fiber.Map{
		"data": fiber.Map{
			"id":        fileID,
			"filename":  filename,
			"size":      file.Size,
			"mime_type": mimeType,
			"url":       "/api/_files/" + fileID,
		},
	})
}

func (h *FileHandler) Serve(c *fiber.Ctx) error {
	id := c.Params("id")

	row, err := h.fileRow(c, id, "filename, storage_path, mime_type, size")
	if err != nil {
		return NotFoundError("file", id)
	}

	storagePath, _ := row["storage_path"].(string)
	mimeType, _ := row["mime_type"].(string)
	filename, _ := row["filename"].(string)

	reader, err := h.storage.Open(c.Context(), storagePath)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}
	defer reader.Close()

	c.Set("Content-Type", mimeType)
	c.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, filename))

	return c.SendStream(reader)
}

func (h *FileHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")

	row, err := h.fileRow(c, id, "storage_path")
	if err != nil {
		return NotFoundError("file", id)
	}
	storagePath, _ := row["storage_path"].(string)

	if err := h.storage.Delete(c.Context(), storagePath); err != nil {
		return fmt.Errorf("delete stored file: %w", err)
	}

	pb := h.store.Dialect.NewParamBuilder()
	_, err = store.Exec(c.Context(), h.store.DB,
		fmt.Sprintf("DELETE FROM _files WHERE id = %s", pb.Add(id)), pb.Params()...)
	if err != nil {
		return fmt.Errorf("delete _files row: %w", err)
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}

func (h *FileHandler) List(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.DB,
		"SELECT id, filename, mime_type, size, uploaded_by, created_at FROM _files ORDER BY created_at DESC")
	if err != nil {
		return fmt.Errorf("list _files: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *FileHandler) fileRow(c *fiber.Ctx, id, columns string) (map[string]any, error) {
	pb := h.store.Dialect.NewParamBuilder()
	return store.QueryRow(c.Context(), h.store.DB,
		fmt.Sprintf("SELECT %s FROM _files WHERE id = %s", columns, pb.Add(id)), pb.Params()...)
}
