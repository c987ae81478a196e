package phash

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image/color"
	"math/bits"

	"github.com/disintegration/imaging"
)

// HexLength is the length of a rendered fingerprint (64 bits as hex)
const HexLength = 16

// MaxDistance is returned for malformed fingerprints so they never match
// any threshold. Valid distances are 0-64.
const MaxDistance = 65

// Compute produces a 64-bit difference hash of the given image bytes,
// rendered as 16 lowercase hex characters.
//
// The image is reduced to a 9x8 grayscale grid; each of the 64 output bits
// is set when a cell is brighter than its right-hand neighbor. The extra
// ninth column exists so every output column has a neighbor to difference
// against. The result is stable under uniform scaling and minor
// recompression.
func Compute(data []byte) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	small := imaging.Grayscale(imaging.Resize(img, 9, 8, imaging.Lanczos))

	var hash uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			hash <<= 1
			if luminance(small.At(x, y)) > luminance(small.At(x+1, y)) {
				hash |= 1
			}
		}
	}

	return fmt.Sprintf("%016x", hash), nil
}

// Distance returns the Hamming distance between two fingerprints (0-64).
// Malformed input yields MaxDistance so it never satisfies a match
// threshold.
func Distance(a, b string) int {
	av, ok := parse(a)
	if !ok {
		return MaxDistance
	}
	bv, ok := parse(b)
	if !ok {
		return MaxDistance
	}
	return bits.OnesCount64(av ^ bv)
}

func parse(s string) (uint64, bool) {
	if len(s) != HexLength {
		return 0, false
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return 0, false
	}
	var v uint64
	for _, b := range raw {
		v = v<<8 | uint64(b)
	}
	return v, true
}

func luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	// Rec. 601 luma on 16-bit channel values
	return 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(b)
}
