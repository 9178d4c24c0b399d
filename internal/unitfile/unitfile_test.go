package unitfile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"kestrel/internal/virtio"
)

func newTestBlockTransport(t *testing.T) *virtio.BlockTransport {
	t.Helper()
	w := virtio.NewMMIOWindow(virtio.ClassBlock, 2)
	d, err := virtio.NewDevice(w, 8)
	require.NoError(t, err)
	require.NoError(t, d.Init())
	return virtio.NewBlockTransport(d, 64)
}

func TestStoreAllThenLoadAllRoundTrips(t *testing.T) {
	bt := newTestBlockTransport(t)
	policy := virtio.SpinPolicy{Bound: virtio.DefaultSpinBound}

	units := []Unit{
		{Name: "getty", ExecStart: "/bin/getty", Enabled: true},
		{Name: "netd", ExecStart: "/sbin/netd", After: []string{"getty"}, Enabled: false},
	}

	require.NoError(t, StoreAll(bt, units, policy))
	got, err := LoadAll(bt, policy)
	require.NoError(t, err)
	require.Equal(t, units, got)
}

func TestLoadAllPayloadSpanningMultipleSectors(t *testing.T) {
	bt := newTestBlockTransport(t)
	policy := virtio.SpinPolicy{Bound: virtio.DefaultSpinBound}

	var units []Unit
	for i := 0; i < 40; i++ {
		units = append(units, Unit{Name: "svc", ExecStart: "/bin/true --flag-to-pad-the-yaml-payload-out-past-one-sector"})
	}

	require.NoError(t, StoreAll(bt, units, policy))
	got, err := LoadAll(bt, policy)
	require.NoError(t, err)
	require.Len(t, got, 40)
}
