package phash

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func gradientImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(255 * x / w)
			img.Set(x, y, color.RGBA{v, v, v, 255})
		}
	}
	return img
}

func TestComputeLengthAndDeterminism(t *testing.T) {
	data := encodePNG(t, gradientImage(64, 48))

	h1, err := Compute(data)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(h1) != HexLength {
		t.Fatalf("expected %d hex chars, got %d (%q)", HexLength, len(h1), h1)
	}

	h2, err := Compute(data)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("hash not deterministic: %q vs %q", h1, h2)
	}
}

func TestComputeScaleInvariance(t *testing.T) {
	small := encodePNG(t, gradientImage(64, 48))
	large := encodePNG(t, gradientImage(256, 192))

	h1, err := Compute(small)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	h2, err := Compute(large)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if d := Distance(h1, h2); d > 5 {
		t.Fatalf("expected scaled copies within distance 5, got %d", d)
	}
}

func TestComputeRejectsGarbage(t *testing.T) {
	if _, err := Compute([]byte("definitely not an image")); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDistanceSymmetryAndIdentity(t *testing.T) {
	a := "0f0f0f0f0f0f0f0f"
	b := "f0f0f0f0f0f0f0f0"

	if d := Distance(a, a); d != 0 {
		t.Fatalf("hamming(a,a) = %d, want 0", d)
	}
	if Distance(a, b) != Distance(b, a) {
		t.Fatal("distance is not symmetric")
	}
	if d := Distance(a, b); d != 64 {
		t.Fatalf("expected full complement distance 64, got %d", d)
	}
}

func TestDistanceCountsBits(t *testing.T) {
	a := "0000000000000000"
	b := "0000000000000007" // 3 differing bits

	if d := Distance(a, b); d != 3 {
		t.Fatalf("expected distance 3, got %d", d)
	}
}

func TestDistanceMalformedInput(t *testing.T) {
	valid := "0f0f0f0f0f0f0f0f"
	cases := []string{
		"",
		"zz0f0f0f0f0f0f0f",
		"0f0f",
		strings.Repeat("0", 17),
	}
	for _, c := range cases {
		if d := Distance(valid, c); d != MaxDistance {
			t.Fatalf("Distance(valid, %q) = %d, want %d", c, d, MaxDistance)
		}
		if d := Distance(c, valid); d != MaxDistance {
			t.Fatalf("Distance(%q, valid) = %d, want %d", c, d, MaxDistance)
		}
	}
}
