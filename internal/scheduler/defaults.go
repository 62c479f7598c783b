package scheduler

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"golang.org/x/image/draw"
)

// DefaultOrthoSize and DefaultHeightSize are the placeholder texture
// dimensions spec.md §4.7 specifies for the GPU-publish substitution step:
// "a white 256x256 ortho and a zero 64x64 height."
const (
	DefaultOrthoSize  = 256
	DefaultHeightSize = 64
)

// buildDefaultOrtho renders the flat white placeholder ortho texture used
// whenever a tile's ortho layer was not Good at publish time.
func buildDefaultOrtho() []byte {
	dst := image.NewRGBA(image.Rect(0, 0, DefaultOrthoSize, DefaultOrthoSize))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	var buf bytes.Buffer
	_ = png.Encode(&buf, dst)
	return buf.Bytes()
}

// buildDefaultHeight returns a zeroed raw elevation buffer (one uint16 per
// pixel, little-endian) for the placeholder height texture.
func buildDefaultHeight() []byte {
	return make([]byte, DefaultHeightSize*DefaultHeightSize*2)
}
