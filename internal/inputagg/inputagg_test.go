package inputagg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyEventsRouteToKeyQueue(t *testing.T) {
	a := NewAggregator(nil, 1024, 768)
	a.Push(Event{Type: Key, Code: 30, Value: 1}) // 'a'
	e, ok := a.PopKey()
	require.True(t, ok)
	require.Equal(t, Key, e.Type)
	require.EqualValues(t, 30, e.Code)
}

func TestHighKeyCodesRemapToMouseButton(t *testing.T) {
	a := NewAggregator(nil, 1024, 768)
	a.Push(Event{Type: Key, Code: 0x110, Value: 1}) // BTN_LEFT-style code
	_, ok := a.PopKey()
	require.False(t, ok, "remapped button must not land in the key queue")

	e, ok := a.PopMouse()
	require.True(t, ok)
	require.Equal(t, MouseBtn, e.Type)
}

func TestAbsEventsScaleIntoScreenBounds(t *testing.T) {
	a := NewAggregator(nil, 1000, 500)
	a.Push(Event{Type: Abs, Code: 0, Value: 32767}) // max X
	x, _ := a.MouseXY()
	require.Equal(t, 999, x)
}

func TestRelEventsClampAtScreenEdge(t *testing.T) {
	a := NewAggregator(nil, 100, 100)
	a.Push(Event{Type: Rel, Code: 0, Value: -50})
	x, _ := a.MouseXY()
	require.Equal(t, 0, x, "relative motion must clamp at the left edge, not go negative")
}

func TestScancodeToCharHonorsShiftAndCaps(t *testing.T) {
	r, ok := ScancodeToChar(30, false, false)
	require.True(t, ok)
	require.Equal(t, 'a', r)

	r, ok = ScancodeToChar(30, true, false)
	require.True(t, ok)
	require.Equal(t, 'A', r)

	r, ok = ScancodeToChar(30, false, true)
	require.True(t, ok)
	require.Equal(t, 'A', r, "caps-lock alone uppercases letters")

	r, ok = ScancodeToChar(30, true, true)
	require.True(t, ok)
	require.Equal(t, 'a', r, "shift+caps cancels out for letters")

	r, ok = ScancodeToChar(2, true, false)
	require.True(t, ok)
	require.Equal(t, '!', r, "shift on a digit produces its symbol, not case-flipped")
}

func TestUnknownScancodeIsNotOK(t *testing.T) {
	_, ok := ScancodeToChar(999, false, false)
	require.False(t, ok)
}
