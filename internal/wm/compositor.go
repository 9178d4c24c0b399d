package wm

import (
	"image/color"

	"kestrel/internal/fb"
	"kestrel/internal/inputagg"
	"kestrel/internal/sched"
	"kestrel/internal/virtio"
)

// LauncherScancode is the one reserved scancode that toggles the
// launcher.
const LauncherScancode = 1 // KEY_ESC in evdev numbering, repurposed here

const cursorRadius = 4
const cursorSize = cursorRadius * 2

const chromeCornerRadius = 3

const (
	taskbarEntryWidth  = 80
	taskbarEntryPad    = 4
	taskbarEntryStride = taskbarEntryWidth + taskbarEntryPad*2
)

// dragState tracks an in-progress titlebar drag.
type dragState struct {
	active         bool
	window         *Window
	grabDX, grabDY int
}

// Compositor runs the WM's dedicated task: wait_event(WM), drain mouse
// then key queues, recompose on dirty/move
type Compositor struct {
	mgr    *Manager
	in     *inputagg.Aggregator
	gpu    *virtio.GPUDevice
	policy virtio.SpinPolicy

	screenW, screenH int

	cursorW, cursorH int
	cursorSprite     []byte

	mouseX, mouseY int
	mouseDown      bool
	drag           dragState
	launcherOpen   bool

	cursorPainted  bool
	savedX, savedY int
	underCursor    []byte // pixels beneath the cursor's last painted position

	shift, caps bool
}

// NewCompositor builds a compositor painting mgr's windows into its
// surface and flushing through gpu.
func NewCompositor(mgr *Manager, in *inputagg.Aggregator, gpu *virtio.GPUDevice, screenW, screenH int) *Compositor {
	w, h, sprite := fb.CircleCursor(cursorRadius, 255, 255, 255, 255)
	return &Compositor{
		mgr: mgr, in: in, gpu: gpu,
		policy:       virtio.SpinPolicy{Bound: virtio.DefaultSpinBound},
		screenW:      screenW, screenH: screenH,
		cursorW: w, cursorH: h, cursorSprite: sprite,
		underCursor: make([]byte, w*h*fb.BytesPerPixel),
	}
}

// Loop is a sched.Task function: wait_event(WM) and, on wake, process
// input and recompose as needed. Runs until h's task is killed.
func (c *Compositor) Loop(h *sched.Handle) {
	for {
		h.WaitEvent(inputagg.EventWM)
		moved := c.drainMouse()
		c.drainKeys()
		if c.anyDirty() {
			c.composeFull()
		} else if moved {
			c.composeCursorOnly()
		}
	}
}

func (c *Compositor) anyDirty() bool {
	for _, w := range c.mgr.TopDown() {
		if w.Dirty() {
			return true
		}
	}
	return false
}

// drainMouse drains the mouse queue, handling click/drag/raise/focus.
// Returns whether the mouse moved this cycle.
func (c *Compositor) drainMouse() bool {
	moved := false
	for {
		ev, ok := c.in.PopMouse()
		if !ok {
			break
		}
		switch ev.Type {
		case inputagg.Abs, inputagg.Rel:
			c.mouseX, c.mouseY = c.in.MouseXY()
			moved = true
			if c.drag.active {
				c.drag.window.Geom.X = c.mouseX - c.drag.grabDX
				c.drag.window.Geom.Y = c.mouseY - c.drag.grabDY
				c.drag.window.MarkDirty()
			}
		case inputagg.MouseBtn:
			c.handleClick(ev.Value != 0)
		}
	}
	return moved
}

// handleClick implements press/release routing: a click on the taskbar
// restores/focuses the corresponding entry, a click on a titlebar button
// performs the button's action, a titlebar press starts a drag, and a
// content press raises and focuses the window and forwards the click
// into its input queue.
func (c *Compositor) handleClick(pressed bool) {
	if !pressed {
		c.mouseDown = false
		c.drag.active = false
		return
	}
	c.mouseDown = true

	if c.mouseY >= c.screenH-c.mgr.taskbarHeight {
		c.handleTaskbarClick(c.mouseX)
		return
	}

	w := c.mgr.HitTest(c.mouseX, c.mouseY)
	if w == nil {
		return
	}
	switch w.HitButton(c.mouseX, c.mouseY) {
	case ButtonClose:
		c.mgr.Close(w)
		return
	case ButtonMaximize:
		if w.State == Maximized {
			c.mgr.SetState(w, Normal, c.screenW, c.screenH)
		} else {
			c.mgr.SetState(w, Maximized, c.screenW, c.screenH)
		}
		return
	case ButtonMinimize:
		c.mgr.SetState(w, Minimized, c.screenW, c.screenH)
		return
	}

	c.mgr.Raise(w)
	content := w.contentRect()
	if c.mouseY < content.Y {
		c.drag = dragState{active: true, window: w, grabDX: c.mouseX - w.Geom.X, grabDY: c.mouseY - w.Geom.Y}
		return
	}
	w.PushInput(inputagg.Event{Type: inputagg.MouseBtn, Code: 0, Value: 1})
}

// handleTaskbarClick maps an x coordinate within the taskbar band to the
// entry painted there by paintTaskbar and restores/focuses that window.
func (c *Compositor) handleTaskbarClick(x int) {
	windows := c.mgr.TopDown()
	idx := x / taskbarEntryStride
	if idx < 0 || idx >= len(windows) {
		return
	}
	w := windows[idx]
	if w.State == Minimized {
		c.mgr.SetState(w, Normal, c.screenW, c.screenH)
	}
	c.mgr.Raise(w)
	w.MarkDirty()
}

// drainKeys drains the key queue, toggling the launcher on the reserved
// scancode and otherwise copying events into the focused window's input
// queue (and its PTY's input ring, if printable)
// step 2.
func (c *Compositor) drainKeys() {
	for {
		ev, ok := c.in.PopKey()
		if !ok {
			break
		}
		if ev.Code == LauncherScancode {
			c.launcherOpen = !c.launcherOpen
			continue
		}
		focused := c.mgr.Focused()
		if focused == nil {
			continue
		}
		focused.PushInput(ev)
		if focused.PTY == nil {
			continue
		}
		if r, ok := inputagg.ScancodeToChar(ev.Code, c.shift, c.caps); ok && ev.Value != 0 {
			focused.PTY.WriteIn([]byte(string(r)))
		}
	}
}

// composeFull paints the whole frame: background, windows back-to-front,
// taskbar, cursor, then flush. Used whenever any window is dirty.
func (c *Compositor) composeFull() {
	surf := c.mgr.surface
	surf.FillRect(0, 0, surf.Width, surf.Height, 40, 40, 40, 255)

	for _, w := range c.mgr.BottomUp() {
		c.paintWindow(w)
	}
	c.paintTaskbar()
	c.cursorPainted = false // background just overwrote anything saved
	c.paintCursor()
	c.flush()
}

// composeCursorOnly restores the pixels beneath the cursor's previous
// position, redraws it at the new position, and flushes, avoiding a
// full recomposition when nothing but the pointer moved.
func (c *Compositor) composeCursorOnly() {
	c.restoreCursor()
	c.paintCursor()
	c.flush()
}

func (c *Compositor) paintWindow(w *Window) {
	if w.State == Minimized {
		return
	}
	g := w.Geom
	surf := c.mgr.surface
	surf.FillRect(g.X, g.Y, g.W, g.H, w.Colours.BorderB, w.Colours.BorderG, w.Colours.BorderR, 255)
	if w.State != Fullscreen {
		titlebar := fb.RoundedRectChrome(g.W, titlebarHeight, chromeCornerRadius,
			w.Colours.TitlebarR, w.Colours.TitlebarG, w.Colours.TitlebarB, 255)
		surf.DrawBitmap(g.X, g.Y, g.W, titlebarHeight, titlebar)
		surf.DrawText(g.X+4, g.Y+4, w.Name, 12, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		c.paintTitlebarButtons(w)
	}
	if w.Render != nil {
		w.Render(w, newClipDrawer(surf, w.contentRect()))
	}
	w.dirty = false
}

// paintTitlebarButtons draws the close/maximize/minimize button chrome
// over a window's titlebar.
func (c *Compositor) paintTitlebarButtons(w *Window) {
	surf := c.mgr.surface
	closeR, maxR, minR := w.buttonRects()
	closeSprite := fb.RoundedRectChrome(closeR.W, closeR.H, chromeCornerRadius, 200, 60, 60, 255)
	surf.DrawBitmap(closeR.X, closeR.Y, closeR.W, closeR.H, closeSprite)

	greySprite := fb.RoundedRectChrome(maxR.W, maxR.H, chromeCornerRadius, 120, 120, 120, 255)
	surf.DrawBitmap(maxR.X, maxR.Y, maxR.W, maxR.H, greySprite)
	surf.DrawBitmap(minR.X, minR.Y, minR.W, minR.H, greySprite)
}

func (c *Compositor) paintTaskbar() {
	surf := c.mgr.surface
	y := c.screenH - c.mgr.taskbarHeight
	surf.FillRect(0, y, c.screenW, c.mgr.taskbarHeight, 20, 20, 20, 255)
	entryH := c.mgr.taskbarHeight - 2*taskbarEntryPad
	entrySprite := fb.RoundedRectChrome(taskbarEntryWidth, entryH, chromeCornerRadius, 60, 60, 60, 255)
	x := taskbarEntryPad
	for _, w := range c.mgr.TopDown() {
		surf.DrawBitmap(x, y+taskbarEntryPad, taskbarEntryWidth, entryH, entrySprite)
		surf.DrawText(x+4, y+8, w.Name, 10, color.RGBA{R: 220, G: 220, B: 220, A: 255})
		x += taskbarEntryStride
	}
}

// paintCursor saves the pixels under the cursor's new position, then
// draws the cursor sprite there.
func (c *Compositor) paintCursor() {
	surf := c.mgr.surface
	c.savePixelsUnder(surf, c.mouseX, c.mouseY)
	surf.DrawBitmap(c.mouseX, c.mouseY, c.cursorW, c.cursorH, c.cursorSprite)
	c.savedX, c.savedY = c.mouseX, c.mouseY
	c.cursorPainted = true
}

// restoreCursor writes back the pixels saved beneath the cursor's last
// painted position.
func (c *Compositor) restoreCursor() {
	if !c.cursorPainted {
		return
	}
	surf := c.mgr.surface
	opaque := make([]byte, len(c.underCursor))
	copy(opaque, c.underCursor)
	for i := 3; i < len(opaque); i += 4 {
		opaque[i] = 255
	}
	surf.DrawBitmap(c.savedX, c.savedY, c.cursorW, c.cursorH, opaque)
}

// savePixelsUnder copies the region of surf at (x,y,cursorW,cursorH)
// into underCursor so it can be restored before the next cursor paint.
func (c *Compositor) savePixelsUnder(surf *fb.Surface, x, y int) {
	for row := 0; row < c.cursorH; row++ {
		for col := 0; col < c.cursorW; col++ {
			dstOff := (row*c.cursorW + col) * fb.BytesPerPixel
			srcOff := surf.PixelOffset(x+col, y+row)
			if srcOff < 0 {
				c.underCursor[dstOff+3] = 0
				continue
			}
			copy(c.underCursor[dstOff:dstOff+4], surf.Pix[srcOff:srcOff+4])
		}
	}
}

func (c *Compositor) flush() {
	if c.gpu != nil {
		_ = c.mgr.surface.Flush(c.gpu, c.policy)
	}
}
