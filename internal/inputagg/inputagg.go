// Package inputagg implements the input aggregator: two bounded ring
// queues (KEY, MOUSE) fed by the virtio-input driver and drained by the
// window manager's compositor task.
package inputagg

import (
	"kestrel/internal/sched"
	"kestrel/internal/spinlock"
	"kestrel/internal/virtio"
)

// EventType mirrors input-event semantic types.
type EventType int

const (
	Key EventType = iota
	Rel
	Abs
	Syn
	MouseBtn // internally synthesized, never produced by a driver directly
)

// Event is the (type, code, value) triple describes.
type Event struct {
	Type  EventType
	Code  uint16
	Value int32
}

// mouseBtnCodeBase is the boundary draws: KEY codes at or
// above this value are mouse buttons, remapped to MouseBtn.
const mouseBtnCodeBase = 0x100

// Well-known event ids the aggregator wakes via sched.WakeEvent.
const (
	EventWM    sched.EventID = 1
	EventMouse sched.EventID = 2
)

const (
	keyQueueCap   = 64
	mouseQueueCap = 256
)

type ringBuffer struct {
	buf        []Event
	head, tail int
	count      int
}

func newRing(cap int) *ringBuffer {
	return &ringBuffer{buf: make([]Event, cap)}
}

func (r *ringBuffer) push(e Event) bool {
	if r.count == len(r.buf) {
		return false
	}
	r.buf[r.tail] = e
	r.tail = (r.tail + 1) % len(r.buf)
	r.count++
	return true
}

func (r *ringBuffer) pop() (Event, bool) {
	if r.count == 0 {
		return Event{}, false
	}
	e := r.buf[r.head]
	r.head = (r.head + 1) % len(r.buf)
	r.count--
	return e, true
}

type queues struct {
	key   *ringBuffer
	mouse *ringBuffer
}

// Aggregator is the global input-event funnel: virtio-input producers
// call Push, the window manager's compositor task drains KeyQueue/
// MouseQueue after waking on EventWM.
type Aggregator struct {
	q *spinlock.Spinlock[queues]

	screenW, screenH int
	mouseX, mouseY   int

	sched *sched.Scheduler
}

// NewAggregator creates an aggregator scaling ABS/REL events against a
// screenW x screenH display.
func NewAggregator(s *sched.Scheduler, screenW, screenH int) *Aggregator {
	return &Aggregator{
		q:       spinlock.New(queues{key: newRing(keyQueueCap), mouse: newRing(mouseQueueCap)}),
		screenW: screenW,
		screenH: screenH,
		sched:   s,
	}
}

// Push routes ev by type: KEY codes ≥ 0x100 remap to
// MouseBtn into the mouse queue; ABS is scaled from the virtio-input
// 0-32767 range into screen coordinates; REL accumulates and clamps.
// Wakes EventWM on any successful push, and also EventMouse for
// mouse-queue pushes.
func (a *Aggregator) Push(ev Event) {
	wokeMouse := false
	ok := spinlock.With(a.q, func(qs *queues) bool {
		switch ev.Type {
		case Key:
			if ev.Code >= mouseBtnCodeBase {
				wokeMouse = true
				return qs.mouse.push(Event{Type: MouseBtn, Code: ev.Code, Value: ev.Value})
			}
			return qs.key.push(ev)
		case Abs:
			x, y := a.scaleAbs(ev)
			a.mouseX, a.mouseY = x, y
			wokeMouse = true
			return qs.mouse.push(Event{Type: Abs, Code: ev.Code, Value: ev.Value})
		case Rel:
			a.accumulateRel(ev)
			wokeMouse = true
			return qs.mouse.push(Event{Type: Rel, Code: ev.Code, Value: ev.Value})
		default:
			return qs.key.push(ev)
		}
	})
	if !ok {
		return
	}
	if a.sched != nil {
		a.sched.WakeEvent(EventWM)
		if wokeMouse {
			a.sched.WakeEvent(EventMouse)
		}
	}
}

// scaleAbs converts a 0-32767 absolute axis value into current screen
// coordinates; ev.Code distinguishes the X (0) and Y (1) axis, matching
// virtio_input_absinfo's code numbering.
func (a *Aggregator) scaleAbs(ev Event) (x, y int) {
	const absMax = 32767
	scaled := int(ev.Value) * a.screenW / absMax
	if ev.Code == 1 {
		scaled = int(ev.Value) * a.screenH / absMax
		return a.mouseX, clamp(scaled, 0, a.screenH-1)
	}
	return clamp(scaled, 0, a.screenW-1), a.mouseY
}

func (a *Aggregator) accumulateRel(ev Event) {
	if ev.Code == 0 {
		a.mouseX = clamp(a.mouseX+int(ev.Value), 0, a.screenW-1)
		return
	}
	a.mouseY = clamp(a.mouseY+int(ev.Value), 0, a.screenH-1)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PopKey drains one event from the key queue, if any.
func (a *Aggregator) PopKey() (Event, bool) {
	return spinlock.With(a.q, func(qs *queues) result {
		e, ok := qs.key.pop()
		return result{e, ok}
	}).unpack()
}

// PopMouse drains one event from the mouse queue, if any.
func (a *Aggregator) PopMouse() (Event, bool) {
	return spinlock.With(a.q, func(qs *queues) result {
		e, ok := qs.mouse.pop()
		return result{e, ok}
	}).unpack()
}

// MouseXY reports the aggregator's idea of current mouse position.
func (a *Aggregator) MouseXY() (int, int) { return a.mouseX, a.mouseY }

type result struct {
	e  Event
	ok bool
}

func (r result) unpack() (Event, bool) { return r.e, r.ok }

// FromRaw translates a virtio.RawInputEvent into an inputagg.Event.
func FromRaw(r virtio.RawInputEvent) Event {
	switch r.Type {
	case virtio.EventRel:
		return Event{Type: Rel, Code: r.Code, Value: r.Value}
	case virtio.EventAbs:
		return Event{Type: Abs, Code: r.Code, Value: r.Value}
	default:
		return Event{Type: Key, Code: r.Code, Value: r.Value}
	}
}
