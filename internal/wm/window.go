// Package wm implements the compositing window manager: a top-first
// window list, a focus state machine, a dirty-flag-gated composition
// loop, and window-relative drawing clipped
// to each window's content rectangle.
package wm

import (
	"container/list"

	"kestrel/internal/inputagg"
	"kestrel/internal/pty"
	"kestrel/internal/spinlock"
)

// State is a window's display state
type State int

const (
	Normal State = iota
	Minimized
	Maximized
	Fullscreen
	MaximizedTaskbar
)

// ColourPair is a window's chrome colours (border, titlebar).
type ColourPair struct {
	BorderR, BorderG, BorderB       uint8
	TitlebarR, TitlebarG, TitlebarB uint8
}

// RenderFunc draws a window's content into a clipped, window-relative
// coordinate system.
type RenderFunc func(w *Window, draw *ClipDrawer)

// Geometry is a window's rectangle.
type Geometry struct {
	X, Y, W, H int
}

const titlebarHeight = 24

const (
	buttonSize = 16
	buttonPad  = 4
)

// TitlebarButton identifies which titlebar control, if any, a point
// falls on.
type TitlebarButton int

const (
	ButtonNone TitlebarButton = iota
	ButtonClose
	ButtonMaximize
	ButtonMinimize
)

// Window is window struct.
type Window struct {
	Name    string
	Geom    Geometry
	State   State
	savedGeom Geometry
	hasSaved  bool

	Colours ColourPair

	Render  RenderFunc
	OnClose func(w *Window)

	UserData any
	PTY      *pty.PTY

	inputQ *spinlock.Spinlock[[]inputagg.Event]
	dirty  bool

	elem *list.Element // this window's node in Manager.windows
}

// PushInput enqueues an aggregator event into the window's bounded input
// queue, dropping it if the queue is at capacity (64 entries).
func (w *Window) PushInput(ev inputagg.Event) {
	spinlock.With(w.inputQ, func(q *[]inputagg.Event) struct{} {
		if len(*q) < 64 {
			*q = append(*q, ev)
		}
		return struct{}{}
	})
}

// PopInput drains one event from the window's input queue, if any.
func (w *Window) PopInput() (inputagg.Event, bool) {
	return spinlock.With(w.inputQ, func(q *[]inputagg.Event) eventResult {
		if len(*q) == 0 {
			return eventResult{}
		}
		e := (*q)[0]
		*q = (*q)[1:]
		return eventResult{e: e, ok: true}
	}).unpack()
}

type eventResult struct {
	e  inputagg.Event
	ok bool
}

func (r eventResult) unpack() (inputagg.Event, bool) { return r.e, r.ok }

// MarkDirty flags the window as needing recomposition.
func (w *Window) MarkDirty() { w.dirty = true }

// Dirty reports the window's dirty flag without clearing it; the
// compositor clears it once it has painted the window.
func (w *Window) Dirty() bool { return w.dirty }

// contentRect returns the window's content rectangle, offset by chrome:
// a titlebar unless Fullscreen.
func (w *Window) contentRect() Geometry {
	g := w.Geom
	if w.State == Fullscreen {
		return g
	}
	return Geometry{X: g.X, Y: g.Y + titlebarHeight, W: g.W, H: g.H - titlebarHeight}
}

// buttonRects returns the close/maximize/minimize button rectangles in
// surface coordinates, right-aligned in the titlebar.
func (w *Window) buttonRects() (closeR, maxR, minR Geometry) {
	g := w.Geom
	y := g.Y + (titlebarHeight-buttonSize)/2
	closeR = Geometry{X: g.X + g.W - buttonPad - buttonSize, Y: y, W: buttonSize, H: buttonSize}
	maxR = Geometry{X: closeR.X - buttonPad - buttonSize, Y: y, W: buttonSize, H: buttonSize}
	minR = Geometry{X: maxR.X - buttonPad - buttonSize, Y: y, W: buttonSize, H: buttonSize}
	return closeR, maxR, minR
}

// HitButton reports which titlebar button, if any, contains (x,y).
// Fullscreen windows have no titlebar and so no buttons.
func (w *Window) HitButton(x, y int) TitlebarButton {
	if w.State == Fullscreen {
		return ButtonNone
	}
	closeR, maxR, minR := w.buttonRects()
	switch {
	case pointIn(closeR, x, y):
		return ButtonClose
	case pointIn(maxR, x, y):
		return ButtonMaximize
	case pointIn(minR, x, y):
		return ButtonMinimize
	default:
		return ButtonNone
	}
}

func pointIn(g Geometry, x, y int) bool {
	return x >= g.X && x < g.X+g.W && y >= g.Y && y < g.Y+g.H
}
