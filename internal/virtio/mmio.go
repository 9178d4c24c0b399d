// Package virtio implements the virtio-mmio transport substrate:
// register probing, virtqueue descriptor chains, and a control round
// trip, over an in-process byte window standing in for a real MMIO BAR.
// Following the layout in virtio_gpu.go and virtio_rng.go register/struct
// tables (those are PCI-capability based; the byte offsets below are the
// plain virtio-mmio layout, which is what a QEMU virt machine without
// PCI, the common case for a minimal board, actually exposes).
package virtio

import "encoding/binary"

// Register byte offsets within a device's MMIO window.
const (
	offMagic       = 0x000
	offVersion     = 0x004
	offDeviceID    = 0x008
	offHostFeatSel = 0x014
	offHostFeat    = 0x010
	offGuestFeat   = 0x020
	offGuestFeatSel = 0x024
	offQueueSel    = 0x030
	offQueueNumMax = 0x034
	offQueueNum    = 0x038
	offQueueReady  = 0x044
	offQueueNotify = 0x050
	offStatus      = 0x070
	offQueueDescLo = 0x080
	offQueueDescHi = 0x084
	offQueueAvailLo = 0x090
	offQueueAvailHi = 0x094
	offQueueUsedLo  = 0x0A0
	offQueueUsedHi  = 0x0A4
)

const mmioMagic = 0x74726976 // "virt" little-endian, per the virtio-mmio spec

// DeviceClass mirrors the enumerated device-id values.
type DeviceClass uint32

const (
	ClassGPU   DeviceClass = 16
	ClassInput DeviceClass = 18
	ClassBlock DeviceClass = 2
	ClassRNG   DeviceClass = 4
)

// Status bits, taken from the VIRTIO_STATUS_* constants.
const (
	StatusAcknowledge     = 1 << 0
	StatusDriver          = 1 << 1
	StatusFailed          = 1 << 7
	StatusFeaturesOK      = 1 << 3
	StatusDriverOK        = 1 << 2
	StatusDeviceNeedsReset = 1 << 6
)

// MMIOWindow is the []byte region backing one device's register file.
type MMIOWindow struct {
	mem []byte
}

// NewMMIOWindow allocates a zeroed register window and seeds the magic
// value, version, and device class a probing driver expects to find.
func NewMMIOWindow(class DeviceClass, version uint32) *MMIOWindow {
	w := &MMIOWindow{mem: make([]byte, 0x100)}
	w.put32(offMagic, mmioMagic)
	w.put32(offVersion, version)
	w.put32(offDeviceID, uint32(class))
	return w
}

func (w *MMIOWindow) put32(off int, v uint32) {
	binary.LittleEndian.PutUint32(w.mem[off:], v)
}

func (w *MMIOWindow) get32(off int) uint32 {
	return binary.LittleEndian.Uint32(w.mem[off:])
}

// Probe reads the magic and device-id fields, returning the device class
// iff the magic value is present.
func Probe(w *MMIOWindow) (DeviceClass, bool) {
	if w.get32(offMagic) != mmioMagic {
		return 0, false
	}
	return DeviceClass(w.get32(offDeviceID)), true
}

// Status returns the current device-status byte.
func (w *MMIOWindow) Status() uint32 { return w.get32(offStatus) }

// SetStatus ORs bits into the device-status register; Init uses this to
// walk the ACK → DRIVER → FEATURES_OK → DRIVER_OK sequence.
func (w *MMIOWindow) SetStatus(bits uint32) {
	w.put32(offStatus, w.get32(offStatus)|bits)
}

// ResetStatus clears the device-status register, as a driver does before
// re-negotiating.
func (w *MMIOWindow) ResetStatus() { w.put32(offStatus, 0) }

// Version reports the negotiated virtio-mmio version (legacy=1, v2+=2).
func (w *MMIOWindow) Version() uint32 { return w.get32(offVersion) }
