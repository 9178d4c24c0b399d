package fb

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"
)

var defaultFace *truetype.Font

func init() {
	f, err := freetype.ParseFont(goregular.TTF)
	if err == nil {
		defaultFace = f
	}
}

// DrawText renders s at (x,y) in the given size and RGBA colour, via
// freetype against an embedded vector font face (golang.org/x/image's
// gofont), matching chrome/titlebar text needs without
// depending on a host-installed font.
func (s *Surface) DrawText(x, y int, text string, sizePt float64, col color.RGBA) {
	if defaultFace == nil || text == "" {
		return
	}
	// render into a scratch RGBA big enough for the string, then
	// copy onto the surface via DrawBitmap, which skips zero-alpha
	// pixels and overwrites with the rest.
	w := int(sizePt * float64(len(text)) * 0.7)
	h := int(sizePt * 1.4)
	if w <= 0 || h <= 0 {
		return
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.Transparent, image.Point{}, draw.Src)

	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(defaultFace)
	ctx.SetFontSize(sizePt)
	ctx.SetClip(dst.Bounds())
	ctx.SetDst(dst)
	ctx.SetSrc(image.NewUniform(col))

	pt := freetype.Pt(0, int(sizePt))
	if _, err := ctx.DrawString(text, pt); err != nil {
		return
	}

	s.DrawBitmap(x, y, w, h, rgbaBytes(dst))
}

// rgbaBytes converts a Go image.RGBA (R,G,B,A order) into the surface's
// native B8G8R8A8 byte order.
func rgbaBytes(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, b.Dx()*b.Dy()*BytesPerPixel)
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			out[i] = byte(bl >> 8)
			out[i+1] = byte(g >> 8)
			out[i+2] = byte(r >> 8)
			out[i+3] = byte(a >> 8)
			i += 4
		}
	}
	return out
}
