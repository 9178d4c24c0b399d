package virtio

import (
	"math/rand"
	"time"
)

// RNGDevice drives the virtio-rng control path: a single request
// descriptor (write-only) that the device fills with random bytes,
// following virtio_rng.go. This device class is not enumerated in the
// core device table but is present in the legacy experiment tools
// (a `cat /dev/random`-style test) this supplements. No entropy-quality
// claims are made: this is a deterministic PRNG behind the same
// virtqueue mechanics, explicitly for testability, not a cryptographic
// source.
type RNGDevice struct {
	dev  *Device
	rng  *rand.Rand
	stop chan struct{}
}

// NewRNGDevice starts a simulated virtio-rng device-side responder
// seeded from seed (callers that want reproducible output pass a fixed
// seed; production wiring passes a boot-time-derived value).
func NewRNGDevice(dev *Device, seed int64) *RNGDevice {
	r := &RNGDevice{dev: dev, rng: rand.New(rand.NewSource(seed)), stop: make(chan struct{})}
	go simDeviceLoop(dev.Queue, time.Millisecond, r.stop, r.serve)
	return r
}

// Close stops the simulated device-side responder.
func (r *RNGDevice) Close() { close(r.stop) }

func (r *RNGDevice) serve(headDesc uint16) {
	r.dev.Queue.DeviceConsume(headDesc, func(descIdx uint16, d Desc) {
		b := unsafeSliceFromAddr(d.Addr, int(d.Len))
		r.rng.Read(b)
	})
}

// Read requests n random bytes via a single write-only descriptor,
// blocking (per policy) until the device has filled it.
func (r *RNGDevice) Read(n int, policy SpinPolicy) ([]byte, error) {
	buf := make([]byte, n)
	head := r.dev.Queue.PublishChain([]uint64{uint64(uintptr(ptrOf(buf)))}, []uint32{uint32(n)}, []bool{true})

	bound := policy.Bound
	if bound <= 0 {
		bound = DefaultSpinBound
	}
	for i := 0; i < bound; i++ {
		if r.dev.Queue.HasUsed() {
			if _, _, ok := r.dev.Queue.PopUsed(); ok {
				d := r.dev.Queue.desc(head)
				return unsafeSliceFromAddr(d.Addr, int(d.Len)), nil
			}
		}
		if policy.Yield != nil {
			policy.Yield()
		}
	}
	return nil, ErrTimeout
}
