package wm

import (
	"container/list"

	"kestrel/internal/fb"
	"kestrel/internal/inputagg"
	"kestrel/internal/spinlock"
)

// Manager is the window manager singleton: a top-first window list,
// focus state, and the shared lock guarding both. Following an
// explicitly-typed-singleton design (not hidden globals), this is
// constructed during init and passed by handle, not stashed in a package
// global.
type Manager struct {
	guard *spinlock.Spinlock[managerState]

	surface *fb.Surface
	wake    func()

	taskbarHeight int
}

type managerState struct {
	windows *list.List // front = topmost; *Window elements
	focused *Window
}

// NewManager constructs an empty window manager painting into surface.
// wake, if non-nil, is called after any change that requires the
// compositor to redraw (window creation, close, or state change) — the
// caller typically wires this to sched.Scheduler.WakeEvent(EventWM).
func NewManager(surface *fb.Surface, wake func()) *Manager {
	return &Manager{
		guard:         spinlock.New(managerState{windows: list.New()}),
		surface:       surface,
		wake:          wake,
		taskbarHeight: 32,
	}
}

func (m *Manager) signalRedraw() {
	if m.wake != nil {
		m.wake()
	}
}

// Create inserts a new window at the head (topmost) of the list, focuses
// it, and signals the WM event for a redraw.
func (m *Manager) Create(name string, geom Geometry, colours ColourPair, render RenderFunc) *Window {
	w := &Window{
		Name:    name,
		Geom:    geom,
		Colours: colours,
		Render:  render,
		inputQ:  spinlock.New([]inputagg.Event{}),
		dirty:   true,
	}
	spinlock.With(m.guard, func(s *managerState) struct{} {
		w.elem = s.windows.PushFront(w)
		s.focused = w
		return struct{}{}
	})
	m.signalRedraw()
	return w
}

// Focused returns the currently focused window, or nil.
func (m *Manager) Focused() *Window {
	return spinlock.With(m.guard, func(s *managerState) *Window { return s.focused })
}

// Raise moves w to the head of the window list and focuses it: focus
// change or click brings the target window to the head.
func (m *Manager) Raise(w *Window) {
	spinlock.With(m.guard, func(s *managerState) struct{} {
		if w.elem != nil {
			s.windows.MoveToFront(w.elem)
		}
		s.focused = w
		return struct{}{}
	})
}

// TopDown returns the current window list, topmost first, as a
// snapshot slice, used for hit-testing (click routing).
func (m *Manager) TopDown() []*Window {
	return spinlock.With(m.guard, func(s *managerState) []*Window {
		out := make([]*Window, 0, s.windows.Len())
		for e := s.windows.Front(); e != nil; e = e.Next() {
			out = append(out, e.Value.(*Window))
		}
		return out
	})
}

// BottomUp returns the current window list, back-to-front, for
// compositing paint order
func (m *Manager) BottomUp() []*Window {
	return spinlock.With(m.guard, func(s *managerState) []*Window {
		out := make([]*Window, 0, s.windows.Len())
		for e := s.windows.Back(); e != nil; e = e.Prev() {
			out = append(out, e.Value.(*Window))
		}
		return out
	})
}

// SetState transitions w to state s, saving geometry on the way out of
// Normal and restoring it on the way back in: SetState(w,S);
// SetState(w,NORMAL) restores
// (x,y,w,h) for Minimized, Maximized, MaximizedTaskbar, and Fullscreen.
// Minimized leaves the geometry unchanged while the window is hidden.
func (m *Manager) SetState(w *Window, s State, screenW, screenH int) {
	if w.State == Normal && s != Normal {
		w.savedGeom = w.Geom
		w.hasSaved = true
	}
	switch s {
	case Maximized, Fullscreen:
		w.Geom = Geometry{X: 0, Y: 0, W: screenW, H: screenH}
	case MaximizedTaskbar:
		w.Geom = Geometry{X: 0, Y: 0, W: screenW, H: screenH - m.taskbarHeight}
	case Normal:
		if w.hasSaved {
			w.Geom = w.savedGeom
			w.hasSaved = false
		}
	}
	w.State = s
	w.dirty = true
	m.signalRedraw()
}

// Close unlinks w, invokes its on-close callback, and signals the WM
// event close protocol.
func (m *Manager) Close(w *Window) {
	spinlock.With(m.guard, func(s *managerState) struct{} {
		if w.elem != nil {
			s.windows.Remove(w.elem)
			w.elem = nil
		}
		if s.focused == w {
			s.focused = nil
			if front := s.windows.Front(); front != nil {
				s.focused = front.Value.(*Window)
			}
		}
		return struct{}{}
	})
	if w.OnClose != nil {
		w.OnClose(w)
	}
	m.signalRedraw()
}

// HitTest returns the topmost non-minimized window whose geometry
// contains (x,y), or nil.
func (m *Manager) HitTest(x, y int) *Window {
	for _, w := range m.TopDown() {
		if w.State == Minimized {
			continue
		}
		g := w.Geom
		if x >= g.X && x < g.X+g.W && y >= g.Y && y < g.Y+g.H {
			return w
		}
	}
	return nil
}
