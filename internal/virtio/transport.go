package virtio

import (
	"errors"
	"time"
	"unsafe"

	"kestrel/internal/spinlock"
)

// ErrTimeout is the Timeout sentinel, returned when a control
// round trip exceeds its spin bound without the device producing a used
// entry.
var ErrTimeout = errors.New("virtio: device did not respond before spin bound")

// SpinPolicy governs how Device.RoundTrip waits for the device:
// early-boot callers (no scheduler yet) pass a
// nil Yield and get a pure busy-wait; task-context callers pass the
// scheduler's yield so other tasks still make progress while this one
// waits.
type SpinPolicy struct {
	// Bound is the maximum number of poll iterations before giving up
	// with ErrTimeout.
	Bound int
	// Yield, if non-nil, is called between polls instead of busy-spinning.
	Yield func()
}

// DefaultSpinBound matches bootcfg's default spin-bound policy value (1<<20).
const DefaultSpinBound = 1 << 20

// Device is a virtio-mmio device handle: its register window plus a
// single control virtqueue.
type Device struct {
	Window *MMIOWindow
	Queue  *Queue
	Class  DeviceClass

	lock *spinlock.Spinlock[struct{}]

	// noyield counts active critical sections holding lock. A caller must
	// never yield to the scheduler while this is nonzero, since another
	// task could then observe a half-published descriptor chain.
	noyield int
}

// NewDevice probes window and constructs a Device with a freshly
// allocated control queue of the given size.
func NewDevice(window *MMIOWindow, queueSize uint16) (*Device, error) {
	class, ok := Probe(window)
	if !ok {
		return nil, errors.New("virtio: bad magic value in MMIO window")
	}
	return &Device{
		Window: window,
		Queue:  NewQueue(queueSize),
		Class:  class,
		lock:   spinlock.New(struct{}{}),
	}, nil
}

// Init walks the standard negotiation sequence: ACK, DRIVER,
// (FEATURES_OK on v2+, verified by re-reading the status register),
// DRIVER_OK.
func (d *Device) Init() error {
	d.Window.ResetStatus()
	d.Window.SetStatus(StatusAcknowledge)
	d.Window.SetStatus(StatusDriver)

	if d.Window.Version() >= 2 {
		d.Window.SetStatus(StatusFeaturesOK)
		if d.Window.Status()&StatusFeaturesOK == 0 {
			d.Window.SetStatus(StatusFailed)
			return errors.New("virtio: device rejected FEATURES_OK")
		}
	}

	d.Window.SetStatus(StatusDriverOK)
	return nil
}

// RoundTrip publishes a two-descriptor chain (read-only request, then a
// write-target response buffer), notifies the device, waits for a used
// entry per policy, and copies the device's response into respBuf.
func (d *Device) RoundTrip(reqRO []byte, respBuf []byte, policy SpinPolicy) error {
	var head uint16
	d.WithLock(func() {
		d.noyield++
		head = d.publishRoundTrip(reqRO, respBuf)
		d.noyield--
	})
	d.Notify()

	bound := policy.Bound
	if bound <= 0 {
		bound = DefaultSpinBound
	}
	respDescIdx := head + 1
	for i := 0; i < bound; i++ {
		if d.Queue.HasUsed() {
			_, _, ok := d.Queue.PopUsed()
			if ok {
				copy(respBuf, d.responseBytes(respDescIdx, len(respBuf)))
				return nil
			}
		}
		if policy.Yield != nil {
			policy.Yield()
		}
	}
	return ErrTimeout
}

// publishRoundTrip is separated out so tests (and the per-device
// simulated device-side goroutines) can drive request/response without
// going through the full spin loop.
func (d *Device) publishRoundTrip(reqRO []byte, respBuf []byte) uint16 {
	reqAddr := uint64(uintptr(ptrOf(reqRO)))
	respAddr := uint64(uintptr(ptrOf(respBuf)))
	return d.Queue.PublishChain(
		[]uint64{reqAddr, respAddr},
		[]uint32{uint32(len(reqRO)), uint32(len(respBuf))},
		[]bool{false, true},
	)
}

// responseBytes reconstructs the []byte the device wrote into, from the
// descriptor's recorded address: since this simulator has no real DMA
// engine, the "device" goroutine writes directly into the driver's
// buffer via the same process address space, and this just recovers that
// slice view from the raw pointer the descriptor carries.
func (d *Device) responseBytes(descIdx uint16, n int) []byte {
	desc := d.Queue.desc(descIdx)
	if desc.Addr == 0 {
		return make([]byte, n)
	}
	return unsafeSliceFromAddr(desc.Addr, n)
}

func ptrOf(b []byte) *byte {
	if len(b) == 0 {
		return nil
	}
	return &b[0]
}

// unsafeSliceFromAddr reconstructs a []byte view over n bytes starting at
// addr, the simulator's stand-in for a device writing through a DMA
// address a driver published.
func unsafeSliceFromAddr(addr uint64, n int) []byte {
	ptr := (*byte)(unsafe.Pointer(uintptr(addr)))
	return unsafe.Slice(ptr, n)
}

// Notify signals the device that new descriptors are available
// (QueueNotify register write), as a real driver would after publishing.
func (d *Device) Notify() {
	// In a hosted simulator the device-side goroutine observes new avail
	// entries directly; Notify exists so call sites match the real init
	// step sequence even though no register write is load-bearing here.
}

// WithLock runs fn while holding the device's per-device Spinlock[T].
func (d *Device) WithLock(fn func()) {
	spinlock.With(d.lock, func(_ *struct{}) struct{} {
		fn()
		return struct{}{}
	})
}

// simDeviceLoop runs a minimal device-side responder in its own
// goroutine: it watches for newly published avail entries and answers
// them via handle, which is expected to call DeviceConsume internally.
// Used by gpu.go/input.go/rng.go/blocktransport.go to emulate the other
// end of the virtqueue without real hardware.
func simDeviceLoop(q *Queue, pollEvery time.Duration, stop <-chan struct{}, handle func(headDesc uint16)) {
	var lastAvail uint16
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			idx := q.availIdx()
			for lastAvail != idx {
				off := q.availOff + 4 + int(lastAvail%q.size)*2
				head := leUint16(q.buf[off:])
				handle(head)
				lastAvail++
			}
		}
	}
}

func leUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}
