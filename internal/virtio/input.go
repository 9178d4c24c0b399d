package virtio

import (
	"encoding/binary"
)

// InputEventType mirrors the Linux evdev-style event categories pushed
// into the input aggregator.
type InputEventType uint16

const (
	EventKey InputEventType = 1
	EventRel InputEventType = 2
	EventAbs InputEventType = 3
)

// RawInputEvent is the wire shape the virtio-input device produces: 8
// bytes (type, code, value), matching the standard virtio_input_event
// layout.
type RawInputEvent struct {
	Type  InputEventType
	Code  uint16
	Value int32
}

const rawInputEventSize = 8

func encodeRawEvent(e RawInputEvent) []byte {
	b := make([]byte, rawInputEventSize)
	binary.LittleEndian.PutUint16(b[0:], uint16(e.Type))
	binary.LittleEndian.PutUint16(b[2:], e.Code)
	binary.LittleEndian.PutUint32(b[4:], uint32(e.Value))
	return b
}

func decodeRawEvent(b []byte) RawInputEvent {
	return RawInputEvent{
		Type:  InputEventType(binary.LittleEndian.Uint16(b[0:])),
		Code:  binary.LittleEndian.Uint16(b[2:]),
		Value: int32(binary.LittleEndian.Uint32(b[4:])),
	}
}

// InputDevice drives the virtio-input per-device event buffer
// pre-population approach: the driver publishes every buffer in the
// event queue as a write-only descriptor up front, then repeatedly polls
// the used ring and re-posts drained descriptors.
type InputDevice struct {
	dev    *Device
	events chan RawInputEvent // injected synthetically (keyboard/mouse test harness or a host input bridge)
	stop   chan struct{}
}

// NewInputDevice pre-populates dev's queue with write-only event buffers
// and starts a simulated device-side producer that emits whatever is
// sent on Inject.
func NewInputDevice(dev *Device, bufferCount int) *InputDevice {
	in := &InputDevice{dev: dev, events: make(chan RawInputEvent, 256), stop: make(chan struct{})}

	addrs := make([]uint64, 0, bufferCount)
	lens := make([]uint32, 0, bufferCount)
	writes := make([]bool, 0, bufferCount)
	for i := 0; i < bufferCount; i++ {
		buf := make([]byte, rawInputEventSize)
		addrs = append(addrs, uint64(uintptr(ptrOf(buf))))
		lens = append(lens, rawInputEventSize)
		writes = append(writes, true)
	}
	// each buffer is its own single-descriptor chain: publish one at a time
	for i := range addrs {
		dev.Queue.PublishChain(addrs[i:i+1], lens[i:i+1], writes[i:i+1])
	}

	go in.deviceLoop()
	return in
}

// Inject synthesizes a hardware input event, as a host keyboard/mouse
// bridge would in a real QEMU guest.
func (in *InputDevice) Inject(e RawInputEvent) {
	select {
	case in.events <- e:
	default:
	}
}

// Close stops the simulated device-side producer.
func (in *InputDevice) Close() { close(in.stop) }

func (in *InputDevice) deviceLoop() {
	for {
		select {
		case <-in.stop:
			return
		case e := <-in.events:
			in.dev.Queue.DeviceConsume(0, func(descIdx uint16, d Desc) {
				copy(unsafeSliceFromAddr(d.Addr, int(d.Len)), encodeRawEvent(e))
			})
		}
	}
}

// Poll walks the used ring from the last observed index, decodes each
// event, and returns descriptors to the avail ring for re-use.
func (in *InputDevice) Poll() []RawInputEvent {
	var out []RawInputEvent
	for in.dev.Queue.HasUsed() {
		descID, length, ok := in.dev.Queue.PopUsed()
		if !ok {
			break
		}
		d := in.dev.Queue.desc(uint16(descID))
		b := unsafeSliceFromAddr(d.Addr, int(length))
		if len(b) >= rawInputEventSize {
			out = append(out, decodeRawEvent(b))
		}
		// re-post the same descriptor for reuse
		in.dev.Queue.PublishChain([]uint64{d.Addr}, []uint32{d.Len}, []bool{true})
	}
	return out
}
