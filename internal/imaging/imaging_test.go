package imaging

import (
	"image"
	"testing"
)

func sourceImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	data, err := Encode(img, "png")
	if err != nil {
		t.Fatalf("encode source: %v", err)
	}
	return data
}

func TestDecodeDetectsFormat(t *testing.T) {
	img, format, err := Decode(sourceImage(t, 8, 4))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if format != "png" {
		t.Fatalf("expected png, got %s", format)
	}
	if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 4 {
		t.Fatalf("unexpected bounds: %v", img.Bounds())
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, _, err := Decode([]byte("not an image")); err == nil {
		t.Fatal("garbage bytes should fail to decode")
	}
}

func TestResizeKeepsAspectRatio(t *testing.T) {
	img, _, err := Decode(sourceImage(t, 100, 50))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	out := Resize(img, 40, 0)
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 20 {
		t.Fatalf("expected 40x20, got %v", out.Bounds())
	}

	out = Resize(img, 0, 10)
	if out.Bounds().Dx() != 20 || out.Bounds().Dy() != 10 {
		t.Fatalf("expected 20x10, got %v", out.Bounds())
	}

	if Resize(img, 0, 0) != img {
		t.Fatal("no target size should return the source unchanged")
	}
}

func TestEncodeFormats(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for _, format := range []string{"jpg", "jpeg", "png", "gif"} {
		if _, err := Encode(img, format); err != nil {
			t.Fatalf("encode %s: %v", format, err)
		}
	}
	if _, err := Encode(img, "webp"); err == nil {
		t.Fatal("unsupported format should fail")
	}
}
