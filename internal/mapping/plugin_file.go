package mapping

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// FilePlugin serves plain file fields. The upload itself happens before
// mapping (the upload endpoint stores the bytes and hands back a path); the
// plugin validates and persists the file reference.
type FilePlugin struct{}

func (FilePlugin) Validate(value any, field *metadata.FieldDescriptor) (bool, []string) {
	ref, err := fileRef(value)
	if err != nil {
		return false, []string{fmt.Sprintf("%s: %v", field.Label(), err)}
	}

	attr := field.File
	if attr == nil {
		return true, nil
	}

	var msgs []string
	if len(attr.AllowedExtensions) > 0 {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(ref.Name())), ".")
		allowed := false
		for _, e := range attr.AllowedExtensions {
			if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
				allowed = true
				break
			}
		}
		if !allowed {
			msgs = append(msgs, fmt.Sprintf("%s: extension %q is not allowed", field.Label(), ext))
		}
	}
	if attr.MaxSize > 0 && ref.Size() > attr.MaxSize {
		msgs = append(msgs, fmt.Sprintf("%s: file exceeds %d bytes", field.Label(), attr.MaxSize))
	}
	return len(msgs) == 0, msgs
}

func (FilePlugin) ToStorage(_ *Context, value any, _ *metadata.FieldDescriptor, _ session.Record) (any, error) {
	if value == nil {
		return nil, nil
	}
	ref, err := fileRef(value)
	if err != nil {
		return nil, err
	}
	return ref.Map(), nil
}

func (FilePlugin) ToPresentation(_ *Context, stored any, _ *metadata.FieldDescriptor, _ session.Record) (any, error) {
	return decodeStoredMap(stored)
}

// FileRef is the normalized shape of an inbound file value: either a bare
// storage path or a {path, name, size} object from the upload endpoint.
type FileRef struct {
	Path     string
	FileName string
	Bytes    int64
}

func (r FileRef) Name() string {
	if r.FileName != "" {
		return r.FileName
	}
	return filepath.Base(r.Path)
}

func (r FileRef) Size() int64 { return r.Bytes }

func (r FileRef) Map() map[string]any {
	m := map[string]any{"path": r.Path, "name": r.Name()}
	if r.Bytes > 0 {
		m["size"] = r.Bytes
	}
	return m
}

func fileRef(value any) (FileRef, error) {
	switch v := value.(type) {
	case string:
		if v == "" {
			return FileRef{}, fmt.Errorf("empty file path")
		}
		return FileRef{Path: v}, nil
	case map[string]any:
		path, _ := v["path"].(string)
		if path == "" {
			return FileRef{}, fmt.Errorf("file value has no path")
		}
		name, _ := v["name"].(string)
		var size int64
		if f, ok := toFloat(v["size"]); ok {
			size = int64(f)
		}
		return FileRef{Path: path, FileName: name, Bytes: size}, nil
	default:
		return FileRef{}, fmt.Errorf("unsupported file value of type %T", value)
	}
}

// decodeStoredMap turns a persisted JSON object (text or live map) into a map.
func decodeStoredMap(stored any) (map[string]any, error) {
	switch v := stored.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		var out map[string]any
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("decode stored object: %w", err)
		}
		return out, nil
	case []byte:
		var out map[string]any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, fmt.Errorf("decode stored object: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported stored object of type %T", stored)
	}
}
