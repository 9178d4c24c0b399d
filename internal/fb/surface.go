// Package fb implements the linear 32-bpp B8G8R8A8 framebuffer surface:
// a flat []byte backing store, primitive draw operations, and a flush
// path into the virtio-gpu control queue.
// Following framebuffer_qemu.go's approach (fixed-format pitch/
// bufsize bookkeeping over a bochs-display BAR) and gg_circle_qemu.go
// (a gg.Context-backed drawing layer over the same backbuffer).
package fb

import (
	"kestrel/internal/virtio"
)

// BytesPerPixel matches QEMU_BYTES_PER_PIXEL and the
// B8G8R8A8 pixel format.
const BytesPerPixel = 4

// Surface is a linear framebuffer: stride (bytes per row), height, and a
// backing slice of stride*height bytes.
type Surface struct {
	Width, Height int
	Stride        int
	Pix           []byte
}

// NewSurface allocates a zeroed (opaque black) surface of the given
// dimensions.
func NewSurface(width, height int) *Surface {
	stride := width * BytesPerPixel
	return &Surface{
		Width:  width,
		Height: height,
		Stride: stride,
		Pix:    make([]byte, stride*height),
	}
}

// offset returns the byte offset of pixel (x,y), or -1 if out of bounds.
func (s *Surface) offset(x, y int) int {
	if x < 0 || y < 0 || x >= s.Width || y >= s.Height {
		return -1
	}
	return y*s.Stride + x*BytesPerPixel
}

// PixelOffset is the exported form of offset, for callers outside the
// package that need to read or save raw pixel bytes directly (e.g. the
// window manager's cursor save/restore).
func (s *Surface) PixelOffset(x, y int) int {
	return s.offset(x, y)
}

// SetPixel writes one B8G8R8A8 pixel, clipped to the surface bounds.
func (s *Surface) SetPixel(x, y int, b, g, r, a uint8) {
	off := s.offset(x, y)
	if off < 0 {
		return
	}
	s.Pix[off] = b
	s.Pix[off+1] = g
	s.Pix[off+2] = r
	s.Pix[off+3] = a
}

// FillRect fills [x,y,x+w,y+h) with the given colour, clipped to the
// surface.
func (s *Surface) FillRect(x, y, w, h int, b, g, r, a uint8) {
	for row := y; row < y+h; row++ {
		for col := x; col < x+w; col++ {
			s.SetPixel(col, row, b, g, r, a)
		}
	}
}

// DrawRect draws a one-pixel border rectangle, clipped to the surface.
func (s *Surface) DrawRect(x, y, w, h int, b, g, r, a uint8) {
	for col := x; col < x+w; col++ {
		s.SetPixel(col, y, b, g, r, a)
		s.SetPixel(col, y+h-1, b, g, r, a)
	}
	for row := y; row < y+h; row++ {
		s.SetPixel(x, row, b, g, r, a)
		s.SetPixel(x+w-1, row, b, g, r, a)
	}
}

// DrawBitmap blits src (a BytesPerPixel-per-pixel B8G8R8A8 buffer of
// srcW x srcH) at (x,y), clipped to the surface. Source pixels with zero
// alpha are skipped; every other pixel overwrites the destination,
// alpha byte included (there is no partial blending).
func (s *Surface) DrawBitmap(x, y, srcW, srcH int, src []byte) {
	for row := 0; row < srcH; row++ {
		for col := 0; col < srcW; col++ {
			srcOff := row*srcW*BytesPerPixel + col*BytesPerPixel
			if srcOff+4 > len(src) {
				continue
			}
			alpha := src[srcOff+3]
			if alpha == 0 {
				continue
			}
			s.SetPixel(x+col, y+row, src[srcOff], src[srcOff+1], src[srcOff+2], alpha)
		}
	}
}

// Flush pushes the surface's current contents to the device via
// TransferToHost2D + ResourceFlush.
func (s *Surface) Flush(dev *virtio.GPUDevice, policy virtio.SpinPolicy) error {
	if err := dev.TransferToHost2D(policy); err != nil {
		return err
	}
	return dev.ResourceFlush(policy)
}
