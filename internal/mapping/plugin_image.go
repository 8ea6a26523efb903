package mapping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"adminkit/internal/imaging"
	"adminkit/internal/metadata"
	"adminkit/internal/session"
)

// SourceKey is the reserved entry holding the original upload's path so the
// picture can be reprocessed when variant definitions change.
const SourceKey = "_source"

// ImagePlugin serves image fields. Without variant definitions it behaves
// like FilePlugin. With them, writing a new source image fans out into one
// stored output per (platform, variant, format) tuple, resized and
// re-encoded independently, persisted as platform -> variant -> format ->
// path plus the _source entry.
type ImagePlugin struct{}

func (ImagePlugin) Validate(value any, field *metadata.FieldDescriptor) (bool, []string) {
	// A prior result echoed back through an update is not a fresh upload;
	// upload checks (extension, size) do not apply to it.
	if m, ok := value.(map[string]any); ok {
		if _, has := m["variants"]; has {
			return true, nil
		}
		if _, has := m[SourceKey]; has {
			return true, nil
		}
	}
	return FilePlugin{}.Validate(value, field)
}

func (p ImagePlugin) ToStorage(ctx *Context, value any, field *metadata.FieldDescriptor, entity session.Record) (any, error) {
	if value == nil {
		return nil, nil
	}

	// A value that already carries variant structure is a prior result being
	// written back. Reads hand out the {variants, display, _source} wrapper,
	// so unwrap it here; only the platform map is ever persisted.
	if m, ok := value.(map[string]any); ok {
		if inner, ok := m["variants"].(map[string]any); ok {
			stored := make(map[string]any, len(inner)+1)
			for k, v := range inner {
				stored[k] = v
			}
			if src, ok := m[SourceKey].(string); ok && src != "" {
				stored[SourceKey] = src
			}
			return stored, nil
		}
		if _, has := m[SourceKey]; has {
			return m, nil
		}
	}

	attr := field.File
	if attr == nil || len(attr.Variants) == 0 {
		return FilePlugin{}.ToStorage(ctx, value, field, entity)
	}

	ref, err := fileRef(value)
	if err != nil {
		return nil, err
	}
	return p.generateVariants(ctx, ref, attr, field)
}

// generateVariants performs the fan-out. Individual format failures skip that
// format and continue; there is no retry. _source is written whenever at
// least one output succeeded.
func (ImagePlugin) generateVariants(ctx *Context, ref FileRef, attr *metadata.FileAttr, field *metadata.FieldDescriptor) (map[string]any, error) {
	if ctx.Files == nil {
		return nil, configf("image field %s has variants but no file storage is wired", field.Name)
	}

	src, err := ctx.Files.ReadBytes(ctx.Ctx, ref.Path)
	if err != nil {
		return nil, fmt.Errorf("read source image: %w", err)
	}
	img, _, err := imaging.Decode(src)
	if err != nil {
		return nil, err
	}

	result := make(map[string]any)
	succeeded := false
	baseName := ref.Name()
	if ext := pathExt(baseName); ext != "" {
		baseName = baseName[:len(baseName)-len(ext)]
	}

	for _, variant := range attr.Variants {
		resized := imaging.Resize(img, variant.Width, variant.Height)
		for _, platform := range variant.Platforms.Names() {
			for _, format := range variant.Formats {
				data, err := imaging.Encode(resized, format)
				if err != nil {
					continue
				}
				name := fmt.Sprintf("%s_%s_%s.%s", baseName, platform, variant.Name, format)
				path, err := ctx.Files.SaveBytes(ctx.Ctx, uuid.New().String(), name, data)
				if err != nil {
					continue
				}
				platformMap := nestedMap(result, platform)
				variantMap := nestedMap(platformMap, variant.Name)
				variantMap[format] = path
				succeeded = true
			}
		}
	}

	if succeeded {
		result[SourceKey] = ref.Path
	}
	return result, nil
}

// ToPresentation parses the persisted value, branching between the structured
// variant shape and the legacy flat shape (platform -> list of paths), and
// always derives one display file per platform.
func (ImagePlugin) ToPresentation(ctx *Context, stored any, field *metadata.FieldDescriptor, entity session.Record) (any, error) {
	parsed, err := decodeStoredMap(stored)
	if err != nil || parsed == nil {
		return parsed, err
	}

	source, _ := parsed[SourceKey].(string)
	variants := make(map[string]any, len(parsed))
	platforms := make([]string, 0, len(parsed))
	for k, v := range parsed {
		if k == SourceKey {
			continue
		}
		variants[k] = v
		platforms = append(platforms, k)
	}
	sort.Strings(platforms)
	if len(platforms) == 0 {
		return parsed, nil
	}

	// Shape detection off the first platform's value
	structured := false
	if _, ok := variants[platforms[0]].(map[string]any); ok {
		structured = true
	}

	display := make(map[string]any, len(platforms))
	for _, platform := range platforms {
		if structured {
			if path := firstVariantPath(variants[platform], field); path != "" {
				display[platform] = path
			}
			continue
		}
		// Legacy flat shape: the platform value is a path list
		if list, ok := variants[platform].([]any); ok && len(list) > 0 {
			display[platform] = list[0]
		}
	}

	out := map[string]any{
		"variants": variants,
		"display":  display,
	}
	if source != "" {
		out[SourceKey] = source
	}
	return out, nil
}

// firstVariantPath picks the first declared variant's first declared format,
// falling back to lexicographic order when the declaration is unavailable.
func firstVariantPath(platformValue any, field *metadata.FieldDescriptor) string {
	byVariant, ok := platformValue.(map[string]any)
	if !ok {
		return ""
	}

	if field.File != nil {
		for _, variant := range field.File.Variants {
			byFormat, ok := byVariant[variant.Name].(map[string]any)
			if !ok {
				continue
			}
			for _, format := range variant.Formats {
				if path, ok := byFormat[format].(string); ok {
					return path
				}
			}
		}
	}

	variantNames := sortedKeys(byVariant)
	for _, vn := range variantNames {
		byFormat, ok := byVariant[vn].(map[string]any)
		if !ok {
			continue
		}
		for _, fn := range sortedKeys(byFormat) {
			if path, ok := byFormat[fn].(string); ok {
				return path
			}
		}
	}
	return ""
}

func nestedMap(parent map[string]any, key string) map[string]any {
	if m, ok := parent[key].(map[string]any); ok {
		return m
	}
	m := make(map[string]any)
	parent[key] = m
	return m
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pathExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}
