package wm

import (
	"image/color"

	"kestrel/internal/fb"
)

// ClipDrawer exposes draw_rect/draw_text/draw_bitmap clipped to a
// window's content rectangle and offset by its chrome. Render callbacks
// must not draw outside.
type ClipDrawer struct {
	surface *fb.Surface
	rect    Geometry
}

func newClipDrawer(surface *fb.Surface, rect Geometry) *ClipDrawer {
	return &ClipDrawer{surface: surface, rect: rect}
}

// clip intersects a window-relative (x,y,w,h) rectangle against the
// drawer's content rect, returning the clipped rectangle in surface
// coordinates and ok=false if nothing remains visible.
func (d *ClipDrawer) clip(x, y, w, h int) (sx, sy, sw, sh int, ok bool) {
	left := max(x, 0)
	top := max(y, 0)
	right := min(x+w, d.rect.W)
	bottom := min(y+h, d.rect.H)
	if right <= left || bottom <= top {
		return 0, 0, 0, 0, false
	}
	return d.rect.X + left, d.rect.Y + top, right - left, bottom - top, true
}

// DrawRect draws a window-relative rectangle border, clipped to content.
func (d *ClipDrawer) DrawRect(x, y, w, h int, r, g, b, a uint8) {
	sx, sy, sw, sh, ok := d.clip(x, y, w, h)
	if !ok {
		return
	}
	d.surface.DrawRect(sx, sy, sw, sh, b, g, r, a)
}

// FillRect fills a window-relative rectangle, clipped to content.
func (d *ClipDrawer) FillRect(x, y, w, h int, r, g, b, a uint8) {
	sx, sy, sw, sh, ok := d.clip(x, y, w, h)
	if !ok {
		return
	}
	d.surface.FillRect(sx, sy, sw, sh, b, g, r, a)
}

// DrawText draws window-relative text, clipped to content by simply
// refusing to draw when the origin already falls outside the content
// rect (sub-glyph clipping is left to the surface's own bounds check).
func (d *ClipDrawer) DrawText(x, y int, text string, sizePt float64, col color.RGBA) {
	if x < 0 || y < 0 || x >= d.rect.W || y >= d.rect.H {
		return
	}
	d.surface.DrawText(d.rect.X+x, d.rect.Y+y, text, sizePt, col)
}

// DrawBitmap blits a window-relative bitmap, clipped to content: pixels
// outside the content rect are skipped, as are zero-alpha pixels.
func (d *ClipDrawer) DrawBitmap(x, y, w, h int, pix []byte) {
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			px, py := x+col, y+row
			off := (row*w + col) * fb.BytesPerPixel
			if px < 0 || py < 0 || px >= d.rect.W || py >= d.rect.H || off+4 > len(pix) || pix[off+3] == 0 {
				continue
			}
			d.surface.SetPixel(d.rect.X+px, d.rect.Y+py, pix[off], pix[off+1], pix[off+2], pix[off+3])
		}
	}
}
