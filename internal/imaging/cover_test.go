package imaging

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func solid(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{120, 40, 20, 255})
		}
	}
	return img
}

func encodeJPEG(w, h int) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, solid(w, h), &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(w, h int) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, solid(w, h))
	return buf.Bytes()
}

func TestProcessCover(t *testing.T) {
	tests := []struct {
		name         string
		data         []byte
		wantW, wantH int
	}{
		{"small jpeg kept", encodeJPEG(200, 300), 200, 300},
		{"png converted", encodePNG(100, 150), 100, 150},
		{"tall scan", encodeJPEG(1200, 1800), 600, 900},
		{"wide image", encodeJPEG(1800, 600), 600, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cover, err := ProcessCover(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("ProcessCover: %v", err)
			}
			if cover.MIME != "image/jpeg" {
				t.Errorf("expected image/jpeg, got %s", cover.MIME)
			}
			if cover.Width != tt.wantW || cover.Height != tt.wantH {
				t.Errorf("expected %dx%d, got %dx%d", tt.wantW, tt.wantH, cover.Width, cover.Height)
			}

			img, _, err := image.Decode(bytes.NewReader(cover.Data))
			if err != nil {
				t.Fatalf("decoding result: %v", err)
			}
			if b := img.Bounds(); b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("encoded image is %dx%d", b.Dx(), b.Dy())
			}
		})
	}
}

func TestProcessCoverRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"text", []byte("not an image")},
		{"gif", []byte("GIF89a...")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ProcessCover(bytes.NewReader(tt.data))
			if !errors.Is(err, ErrUnsupportedFormat) {
				t.Errorf("expected ErrUnsupportedFormat, got %v", err)
			}
		})
	}
}

func TestProcessCoverTooLarge(t *testing.T) {
	data := make([]byte, MaxUploadBytes+10)
	copy(data, encodeJPEG(10, 10))
	_, err := ProcessCover(bytes.NewReader(data))
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}
