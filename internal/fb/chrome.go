package fb

import (
	"image"

	"github.com/fogleman/gg"
)

// CircleCursor renders a filled circle cursor sprite of the given radius
// and RGBA colour into a fresh gg.Context-backed RGBA buffer, suitable
// for DrawBitmap, following the same approach as gg_circle_qemu.go
// (gg.Context rendering into an RGBA backbuffer later flushed to the
// framebuffer).
func CircleCursor(radius int, b, g, r, a uint8) (w, h int, pix []byte) {
	size := radius * 2
	ctx := gg.NewContext(size, size)
	ctx.SetRGBA255(int(r), int(g), int(b), int(a))
	ctx.DrawCircle(float64(radius), float64(radius), float64(radius))
	ctx.Fill()
	return size, size, rgbaBytes(ctx.Image().(*image.RGBA))
}

// RoundedRectChrome renders a rounded-rectangle window chrome panel
// (titlebar or button background) of the given size, corner radius, and
// fill colour.
func RoundedRectChrome(w, h, cornerRadius int, fr, fg, fBlue uint8, a uint8) []byte {
	ctx := gg.NewContext(w, h)
	ctx.SetRGBA255(int(fr), int(fg), int(fBlue), int(a))
	ctx.DrawRoundedRectangle(0, 0, float64(w), float64(h), float64(cornerRadius))
	ctx.Fill()
	return rgbaBytes(ctx.Image().(*image.RGBA))
}
