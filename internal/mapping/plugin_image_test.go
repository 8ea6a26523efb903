package mapping

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"path/filepath"
	"reflect"
	"testing"

	"adminkit/internal/imaging"
	"adminkit/internal/metadata"
	"adminkit/internal/storage"
)

func imageField(variants ...metadata.ImageVariant) *metadata.FieldDescriptor {
	return &metadata.FieldDescriptor{
		Name: "photo", DisplayName: "Photo", Type: metadata.TypeImage,
		File: &metadata.FileAttr{Variants: variants},
	}
}

func imageTestContext(t *testing.T) *Context {
	t.Helper()
	return &Context{Ctx: context.Background(), Files: storage.NewLocalStorage(t.TempDir())}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

func TestImageVariantFanOut(t *testing.T) {
	ctx := imageTestContext(t)
	src, err := ctx.Files.SaveBytes(ctx.Ctx, "src", "photo.png", pngBytes(t, 40, 40))
	if err != nil {
		t.Fatalf("save source: %v", err)
	}

	field := imageField(metadata.ImageVariant{
		Name: "thumb", Width: 10, Height: 10,
		Formats:   []string{"png", "jpg"},
		Platforms: metadata.PlatformWeb | metadata.PlatformMobile,
	})

	out, err := ImagePlugin{}.ToStorage(ctx, map[string]any{"path": src, "name": "photo.png"}, field, nil)
	if err != nil {
		t.Fatalf("ToStorage: %v", err)
	}
	stored := out.(map[string]any)

	if stored[SourceKey] != src {
		t.Fatalf("expected _source %q, got %v", src, stored[SourceKey])
	}
	for _, platform := range []string{"web", "mobile"} {
		byVariant, ok := stored[platform].(map[string]any)
		if !ok {
			t.Fatalf("missing platform %s in %v", platform, stored)
		}
		byFormat, ok := byVariant["thumb"].(map[string]any)
		if !ok {
			t.Fatalf("missing variant thumb for %s", platform)
		}
		for _, format := range []string{"png", "jpg"} {
			if path, ok := byFormat[format].(string); !ok || path == "" {
				t.Fatalf("missing %s/%s output, got %v", platform, format, byFormat)
			}
		}
	}

	// One output should actually be resized to the variant dimensions.
	path := stored["web"].(map[string]any)["thumb"].(map[string]any)["png"].(string)
	data, err := ctx.Files.ReadBytes(ctx.Ctx, path)
	if err != nil {
		t.Fatalf("read generated variant: %v", err)
	}
	img, _, err := imaging.Decode(data)
	if err != nil {
		t.Fatalf("decode generated variant: %v", err)
	}
	if img.Bounds().Dx() != 10 || img.Bounds().Dy() != 10 {
		t.Fatalf("expected 10x10 output, got %v", img.Bounds())
	}
}

func TestImageFormatFailureStillWritesSource(t *testing.T) {
	ctx := imageTestContext(t)
	src, err := ctx.Files.SaveBytes(ctx.Ctx, "src", "photo.png", pngBytes(t, 8, 8))
	if err != nil {
		t.Fatalf("save source: %v", err)
	}

	field := imageField(metadata.ImageVariant{
		Name: "thumb", Width: 4, Height: 4,
		Formats:   []string{"webp", "png"}, // webp encoding is unsupported
		Platforms: metadata.PlatformWeb,
	})

	out, err := ImagePlugin{}.ToStorage(ctx, map[string]any{"path": src, "name": "photo.png"}, field, nil)
	if err != nil {
		t.Fatalf("ToStorage: %v", err)
	}
	stored := out.(map[string]any)

	byFormat := stored["web"].(map[string]any)["thumb"].(map[string]any)
	if _, has := byFormat["webp"]; has {
		t.Fatal("failed format should be skipped, not recorded")
	}
	if path, ok := byFormat["png"].(string); !ok || path == "" {
		t.Fatalf("surviving format should be written, got %v", byFormat)
	}
	if stored[SourceKey] != src {
		t.Fatal("_source should be written when at least one output succeeded")
	}
}

func TestImageWritebackKeepsStorageShape(t *testing.T) {
	field := imageField(metadata.ImageVariant{
		Name: "thumb", Formats: []string{"jpg"}, Platforms: metadata.PlatformWeb,
	})
	stored := map[string]any{
		"web":     map[string]any{"thumb": map[string]any{"jpg": "p/thumb.jpg"}},
		SourceKey: "p/photo.jpg",
	}
	plugin := ImagePlugin{}

	first, err := plugin.ToPresentation(nil, stored, field, nil)
	if err != nil {
		t.Fatalf("ToPresentation: %v", err)
	}

	// Echoing a read payload back through an update must pass validation and
	// restore the persisted platform shape, not store the wrapper.
	if ok, msgs := plugin.Validate(first, field); !ok {
		t.Fatalf("echoed payload should validate, got %v", msgs)
	}
	out, err := plugin.ToStorage(nil, first, field, nil)
	if err != nil {
		t.Fatalf("ToStorage: %v", err)
	}
	back := out.(map[string]any)
	if _, has := back["variants"]; has {
		t.Fatalf("presentation wrapper leaked into storage: %v", back)
	}
	if _, has := back["display"]; has {
		t.Fatalf("presentation wrapper leaked into storage: %v", back)
	}
	if !reflect.DeepEqual(back, stored) {
		t.Fatalf("writeback changed the stored shape:\n got %v\nwant %v", back, stored)
	}

	second, err := plugin.ToPresentation(nil, back, field, nil)
	if err != nil {
		t.Fatalf("ToPresentation after writeback: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("presentation not stable across writeback:\n got %v\nwant %v", second, first)
	}
}

func TestImagePresentationShapes(t *testing.T) {
	field := imageField(
		metadata.ImageVariant{Name: "thumb", Formats: []string{"jpg"}, Platforms: metadata.PlatformWeb},
		metadata.ImageVariant{Name: "detail", Formats: []string{"jpg"}, Platforms: metadata.PlatformWeb},
	)
	plugin := ImagePlugin{}

	stored := map[string]any{
		"web": map[string]any{
			"detail": map[string]any{"jpg": "p/detail.jpg"},
			"thumb":  map[string]any{"jpg": "p/thumb.jpg"},
		},
	}
	out, err := plugin.ToPresentation(nil, stored, field, nil)
	if err != nil {
		t.Fatalf("ToPresentation structured: %v", err)
	}
	display := out.(map[string]any)["display"].(map[string]any)
	// Display follows variant declaration order, not map order.
	if display["web"] != "p/thumb.jpg" {
		t.Fatalf("expected first declared variant as display, got %v", display)
	}

	legacy := map[string]any{"web": []any{"a.jpg", "b.jpg"}}
	out, err = plugin.ToPresentation(nil, legacy, field, nil)
	if err != nil {
		t.Fatalf("ToPresentation legacy: %v", err)
	}
	m := out.(map[string]any)
	if m["display"].(map[string]any)["web"] != "a.jpg" {
		t.Fatalf("legacy flat shape should display the first path, got %v", m["display"])
	}
	if !reflect.DeepEqual(m["variants"].(map[string]any)["web"], []any{"a.jpg", "b.jpg"}) {
		t.Fatalf("legacy path list should be passed through, got %v", m["variants"])
	}
}

func TestImageVariantNamesStripExtensionCaseInsensitively(t *testing.T) {
	ctx := imageTestContext(t)
	src, err := ctx.Files.SaveBytes(ctx.Ctx, "src", "Photo.PNG", pngBytes(t, 8, 8))
	if err != nil {
		t.Fatalf("save source: %v", err)
	}

	field := imageField(metadata.ImageVariant{
		Name: "thumb", Width: 4, Height: 4,
		Formats: []string{"png"}, Platforms: metadata.PlatformWeb,
	})

	out, err := ImagePlugin{}.ToStorage(ctx, map[string]any{"path": src, "name": "Photo.PNG"}, field, nil)
	if err != nil {
		t.Fatalf("ToStorage: %v", err)
	}
	path := out.(map[string]any)["web"].(map[string]any)["thumb"].(map[string]any)["png"].(string)
	if got := filepath.Base(path); got != "Photo_web_thumb.png" {
		t.Fatalf("expected extension stripped from base name, got %q", got)
	}
}
