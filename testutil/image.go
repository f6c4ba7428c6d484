package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"
)

// PNG produces a w×h PNG image of pseudorandom noise.
// Noise does not compress, so the encoding is large enough to need several chunks.
func PNG(t *testing.T, w, h int) []byte {
	var (
		img = image.NewRGBA(image.Rect(0, 0, w, h))
		rnd = rand.New(rand.NewSource(int64(w * h)))
	)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(rnd.Intn(256)), G: uint8(rnd.Intn(256)), B: uint8(rnd.Intn(256)), A: 255})
		}
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}
