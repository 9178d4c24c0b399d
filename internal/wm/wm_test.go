package wm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kestrel/internal/fb"
)

func newTestManager() *Manager {
	return NewManager(fb.NewSurface(640, 480), nil)
}

// TestClickInsideWindowRaisesOnlyThatWindow is scenario 5:
// create W1, W2, W3 in that order; a click inside W1's content (not on
// any button) raises W1 to the head and sets focus=W1 without moving W2,
// W3 relative to each other.
func TestClickInsideWindowRaisesOnlyThatWindow(t *testing.T) {
	m := newTestManager()
	w1 := m.Create("W1", Geometry{X: 0, Y: 0, W: 100, H: 100}, ColourPair{}, nil)
	w2 := m.Create("W2", Geometry{X: 150, Y: 0, W: 100, H: 100}, ColourPair{}, nil)
	w3 := m.Create("W3", Geometry{X: 300, Y: 0, W: 100, H: 100}, ColourPair{}, nil)

	// Creation order leaves W3 on top, W2 next, W1 at the back.
	require.Equal(t, []*Window{w3, w2, w1}, m.TopDown())

	c := NewCompositor(m, nil, nil, 640, 480)
	c.mouseX, c.mouseY = 50, 60 // inside W1's content, below its titlebar
	c.handleClick(true)

	require.Equal(t, w1, m.Focused())
	top := m.TopDown()
	require.Equal(t, w1, top[0], "W1 must be raised to the head")

	// W2 and W3 keep their relative order beneath W1.
	var w2idx, w3idx int
	for i, w := range top {
		if w == w2 {
			w2idx = i
		}
		if w == w3 {
			w3idx = i
		}
	}
	require.Less(t, w3idx, w2idx, "W3 must still sit above W2")
}

// TestTitlebarClickStartsDragNotFocusPush verifies a press in the
// titlebar region starts a drag and does not forward a click event into
// the window's input queue (it is chrome, not content).
func TestTitlebarClickStartsDragNotFocusPush(t *testing.T) {
	m := newTestManager()
	w := m.Create("W1", Geometry{X: 10, Y: 10, W: 100, H: 100}, ColourPair{}, nil)

	c := NewCompositor(m, nil, nil, 640, 480)
	c.mouseX, c.mouseY = 20, 15 // within the titlebar band, left of the buttons
	c.handleClick(true)

	require.True(t, c.drag.active)
	require.Equal(t, w, c.drag.window)
	_, ok := w.PopInput()
	require.False(t, ok, "a titlebar press must not be forwarded as content input")
}

func TestSetStateGeometryIsIdempotentAcrossTransitions(t *testing.T) {
	const screenW, screenH = 640, 480
	m := newTestManager()

	cases := []struct {
		name  string
		state State
	}{
		{"minimized", Minimized},
		{"maximized", Maximized},
		{"maximized-taskbar", MaximizedTaskbar},
		{"fullscreen", Fullscreen},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := m.Create("W", Geometry{X: 20, Y: 30, W: 200, H: 150}, ColourPair{}, nil)
			original := w.Geom

			m.SetState(w, tc.state, screenW, screenH)
			if tc.state == Minimized {
				require.Equal(t, original, w.Geom, "minimizing keeps the window's geometry")
			} else {
				require.NotEqual(t, original, w.Geom, "state change must alter geometry")
			}

			m.SetState(w, Normal, screenW, screenH)
			require.Equal(t, original, w.Geom, "returning to Normal must restore the saved geometry")
			require.Equal(t, Normal, w.State)
		})
	}
}

func TestCloseRefocusesToNewTopWindow(t *testing.T) {
	m := newTestManager()
	w1 := m.Create("W1", Geometry{X: 0, Y: 0, W: 50, H: 50}, ColourPair{}, nil)
	w2 := m.Create("W2", Geometry{X: 60, Y: 0, W: 50, H: 50}, ColourPair{}, nil)

	require.Equal(t, w2, m.Focused())
	m.Close(w2)
	require.Equal(t, w1, m.Focused())
	require.Len(t, m.TopDown(), 1)
}

func TestHitTestReturnsTopmostOverlappingWindow(t *testing.T) {
	m := newTestManager()
	m.Create("Back", Geometry{X: 0, Y: 0, W: 100, H: 100}, ColourPair{}, nil)
	front := m.Create("Front", Geometry{X: 0, Y: 0, W: 100, H: 100}, ColourPair{}, nil)

	require.Equal(t, front, m.HitTest(50, 50))
}

func TestHitTestSkipsMinimizedWindows(t *testing.T) {
	m := newTestManager()
	back := m.Create("Back", Geometry{X: 0, Y: 0, W: 100, H: 100}, ColourPair{}, nil)
	front := m.Create("Front", Geometry{X: 0, Y: 0, W: 100, H: 100}, ColourPair{}, nil)

	m.SetState(front, Minimized, 640, 480)
	require.Equal(t, back, m.HitTest(50, 50))
}

func TestCloseButtonClosesWindow(t *testing.T) {
	m := newTestManager()
	w := m.Create("W1", Geometry{X: 0, Y: 0, W: 100, H: 100}, ColourPair{}, nil)

	c := NewCompositor(m, nil, nil, 640, 480)
	closeR, _, _ := w.buttonRects()
	c.mouseX, c.mouseY = closeR.X+closeR.W/2, closeR.Y+closeR.H/2
	c.handleClick(true)

	require.Len(t, m.TopDown(), 0, "the close button must close the window")
}

func TestMaximizeButtonTogglesState(t *testing.T) {
	m := newTestManager()
	w := m.Create("W1", Geometry{X: 10, Y: 10, W: 100, H: 100}, ColourPair{}, nil)

	c := NewCompositor(m, nil, nil, 640, 480)
	_, maxR, _ := w.buttonRects()
	c.mouseX, c.mouseY = maxR.X+maxR.W/2, maxR.Y+maxR.H/2
	c.handleClick(true)
	require.Equal(t, Maximized, w.State)

	// the button moved with the maximized window's titlebar
	_, maxR, _ = w.buttonRects()
	c.mouseX, c.mouseY = maxR.X+maxR.W/2, maxR.Y+maxR.H/2
	c.handleClick(true)
	require.Equal(t, Normal, w.State)
}

func TestMinimizeButtonMinimizesWindow(t *testing.T) {
	m := newTestManager()
	w := m.Create("W1", Geometry{X: 10, Y: 10, W: 100, H: 100}, ColourPair{}, nil)

	c := NewCompositor(m, nil, nil, 640, 480)
	_, _, minR := w.buttonRects()
	c.mouseX, c.mouseY = minR.X+minR.W/2, minR.Y+minR.H/2
	c.handleClick(true)

	require.Equal(t, Minimized, w.State)
}

func TestTaskbarClickRestoresAndFocusesMinimizedWindow(t *testing.T) {
	const screenW, screenH = 640, 480
	m := newTestManager()
	w1 := m.Create("W1", Geometry{X: 0, Y: 0, W: 100, H: 100}, ColourPair{}, nil)
	w2 := m.Create("W2", Geometry{X: 150, Y: 0, W: 100, H: 100}, ColourPair{}, nil)
	m.SetState(w1, Minimized, screenW, screenH)

	c := NewCompositor(m, nil, nil, screenW, screenH)
	// paintTaskbar lists TopDown order: W2 (topmost), W1 — entry 1 is W1.
	c.mouseX = taskbarEntryPad + taskbarEntryStride + taskbarEntryWidth/2
	c.mouseY = screenH - m.taskbarHeight/2
	c.handleClick(true)

	require.Equal(t, Normal, w1.State, "taskbar click must restore a minimized window")
	require.Equal(t, w1, m.Focused(), "taskbar click must focus the clicked window")
	_ = w2
}

func TestCreateCloseAndSetStateSignalRedraw(t *testing.T) {
	var wakes int
	m := NewManager(fb.NewSurface(640, 480), func() { wakes++ })

	w := m.Create("W", Geometry{X: 0, Y: 0, W: 100, H: 100}, ColourPair{}, nil)
	require.Equal(t, 1, wakes, "Create must signal a redraw")

	m.SetState(w, Maximized, 640, 480)
	require.Equal(t, 2, wakes, "SetState must signal a redraw")

	m.Close(w)
	require.Equal(t, 3, wakes, "Close must signal a redraw")
}
