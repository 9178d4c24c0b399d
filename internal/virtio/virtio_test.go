package virtio

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestProbeReadsMagicAndDeviceClass(t *testing.T) {
	w := NewMMIOWindow(ClassGPU, 2)
	class, ok := Probe(w)
	require.True(t, ok)
	require.Equal(t, ClassGPU, class)
}

func TestProbeRejectsBadMagic(t *testing.T) {
	w := &MMIOWindow{mem: make([]byte, 0x100)}
	_, ok := Probe(w)
	require.False(t, ok)
}

func TestInitNegotiationSequenceV2RequiresFeaturesOK(t *testing.T) {
	w := NewMMIOWindow(ClassBlock, 2)
	d, err := NewDevice(w, 8)
	require.NoError(t, err)
	require.NoError(t, d.Init())
	require.NotZero(t, w.Status()&StatusDriverOK)
	require.NotZero(t, w.Status()&StatusFeaturesOK)
}

func TestInitLegacyVersionSkipsFeaturesOK(t *testing.T) {
	w := NewMMIOWindow(ClassBlock, 1)
	d, err := NewDevice(w, 8)
	require.NoError(t, err)
	require.NoError(t, d.Init())
	require.NotZero(t, w.Status()&StatusDriverOK)
	require.Zero(t, w.Status()&StatusFeaturesOK)
}

func TestGPURoundTripResourceLifecycle(t *testing.T) {
	w := NewMMIOWindow(ClassGPU, 2)
	d, err := NewDevice(w, 16)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	gpu := NewGPUDevice(d, 1024, 768)
	defer gpu.Close()

	policy := SpinPolicy{Bound: 10000}
	require.NoError(t, gpu.ResourceCreate2D(1, policy))

	backing := make([]byte, 1024*768*4)
	require.NoError(t, gpu.ResourceAttachBacking(backing, policy))
	require.NoError(t, gpu.SetScanout(policy))
	require.NoError(t, gpu.TransferToHost2D(policy))
	require.NoError(t, gpu.ResourceFlush(policy))
}

func TestBlockTransportWriteThenReadRoundTrips(t *testing.T) {
	w := NewMMIOWindow(ClassBlock, 2)
	d, err := NewDevice(w, 8)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	bt := NewBlockTransport(d, 16)
	defer bt.Close()

	policy := SpinPolicy{Bound: 10000}
	payload := make([]byte, SectorSize)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, bt.WriteSector(3, payload, policy))

	got, err := bt.ReadSector(3, policy)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestBlockTransportOutOfRangeSectorIsIOError(t *testing.T) {
	w := NewMMIOWindow(ClassBlock, 2)
	d, err := NewDevice(w, 8)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	bt := NewBlockTransport(d, 4)
	defer bt.Close()

	_, err = bt.ReadSector(999, SpinPolicy{Bound: 10000})
	require.ErrorIs(t, err, ErrIO)
}

func TestRoundTripTimesOutWithoutDeviceResponder(t *testing.T) {
	w := NewMMIOWindow(ClassBlock, 2)
	d, err := NewDevice(w, 8)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	// no simulated device-side responder started: PublishChain posts a
	// request nobody ever consumes, so RoundTrip must time out rather
	// than spin forever.
	err = d.RoundTrip([]byte("req"), make([]byte, 4), SpinPolicy{Bound: 100})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestInputDevicePollDecodesInjectedEvents(t *testing.T) {
	w := NewMMIOWindow(ClassInput, 2)
	d, err := NewDevice(w, 8)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	in := NewInputDevice(d, 4)
	defer in.Close()

	in.Inject(RawInputEvent{Type: EventKey, Code: 30, Value: 1})

	var events []RawInputEvent
	for i := 0; i < 1000 && len(events) == 0; i++ {
		events = in.Poll()
	}
	require.Len(t, events, 1)
	require.Equal(t, EventKey, events[0].Type)
	require.EqualValues(t, 30, events[0].Code)
}

func TestRNGDeviceProducesRequestedLength(t *testing.T) {
	w := NewMMIOWindow(ClassRNG, 2)
	d, err := NewDevice(w, 8)
	require.NoError(t, err)
	require.NoError(t, d.Init())

	r := NewRNGDevice(d, 42)
	defer r.Close()

	got, err := r.Read(16, SpinPolicy{Bound: 100000})
	require.NoError(t, err)
	require.Len(t, got, 16)
}
