package virtio

import (
	"encoding/binary"
	"time"
)

// GPU command types, following the VirtIOGPUCtrlHdr command-type
// constants in virtio_gpu.go.
const (
	cmdGetDisplayInfo      = 0x0100
	cmdResourceCreate2D    = 0x0101
	cmdSetScanout          = 0x0103
	cmdResourceFlush       = 0x0104
	cmdTransferToHost2D    = 0x0105
	cmdResourceAttachBack  = 0x0106
	respOKNodata           = 0x1100
	respOKDisplayInfo      = 0x1101
	formatB8G8R8A8Unorm    = 1
	ctrlHdrSize            = 24 // type,flags,fenceID,ctxID,padding
)

// GPUDevice drives the virtio-gpu control path, following the
// VirtIOGPUCtrlHdr / VirtIOGPUResourceCreate2D / VirtIOGPUSetScanout /
// VirtIOGPUTransferToHost2D structs.
type GPUDevice struct {
	dev *Device

	width, height uint32
	resourceID    uint32
	backing       []byte // the resource's attached backing store

	stop chan struct{}
}

// NewGPUDevice wraps dev (already Init'd) as a GPU control-path driver
// and starts its simulated device-side responder.
func NewGPUDevice(dev *Device, width, height uint32) *GPUDevice {
	g := &GPUDevice{dev: dev, width: width, height: height, stop: make(chan struct{})}
	go simDeviceLoop(dev.Queue, time.Millisecond, g.stop, g.serve)
	return g
}

// Close stops the simulated device-side responder goroutine.
func (g *GPUDevice) Close() { close(g.stop) }

func putHdr(b []byte, cmdType uint32) {
	binary.LittleEndian.PutUint32(b[0:], cmdType)
}

func hdrType(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b[0:])
}

// GetDisplayInfo issues a GET_DISPLAY_INFO command and returns the
// width/height the device was configured with; the response body is not
// parsed.
func (g *GPUDevice) GetDisplayInfo(policy SpinPolicy) (width, height uint32, err error) {
	req := make([]byte, ctrlHdrSize)
	putHdr(req, cmdGetDisplayInfo)
	resp := make([]byte, ctrlHdrSize+4+4+4+4) // hdr + rect(x,y,w,h) sized generously
	if err := g.dev.RoundTrip(req, resp, policy); err != nil {
		return 0, 0, err
	}
	return g.width, g.height, nil
}

// ResourceCreate2D creates a B8G8R8A8_UNORM 2D resource.
func (g *GPUDevice) ResourceCreate2D(resourceID uint32, policy SpinPolicy) error {
	req := make([]byte, ctrlHdrSize+16)
	putHdr(req, cmdResourceCreate2D)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize:], resourceID)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize+4:], formatB8G8R8A8Unorm)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize+8:], g.width)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize+12:], g.height)
	resp := make([]byte, ctrlHdrSize)
	if err := g.dev.RoundTrip(req, resp, policy); err != nil {
		return err
	}
	g.resourceID = resourceID
	return nil
}

// ResourceAttachBacking attaches backing (the framebuffer's raw bytes) to
// the previously created resource.
func (g *GPUDevice) ResourceAttachBacking(backing []byte, policy SpinPolicy) error {
	req := make([]byte, ctrlHdrSize+8)
	putHdr(req, cmdResourceAttachBack)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize:], g.resourceID)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize+4:], 1) // nr_entries
	resp := make([]byte, ctrlHdrSize)
	if err := g.dev.RoundTrip(req, resp, policy); err != nil {
		return err
	}
	g.backing = backing
	return nil
}

// SetScanout connects the resource to scanout 0, covering the full
// display rect.
func (g *GPUDevice) SetScanout(policy SpinPolicy) error {
	req := make([]byte, ctrlHdrSize+16+8)
	putHdr(req, cmdSetScanout)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize+8:], g.width)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize+12:], g.height)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize+16:], 0) // scanout_id
	binary.LittleEndian.PutUint32(req[ctrlHdrSize+20:], g.resourceID)
	resp := make([]byte, ctrlHdrSize)
	return g.dev.RoundTrip(req, resp, policy)
}

// TransferToHost2D signals the device that [0,0,width,height] of the
// attached backing store changed and should be copied into the resource.
func (g *GPUDevice) TransferToHost2D(policy SpinPolicy) error {
	req := make([]byte, ctrlHdrSize+16+8+4+4)
	putHdr(req, cmdTransferToHost2D)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize+8:], g.width)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize+12:], g.height)
	binary.LittleEndian.PutUint32(req[ctrlHdrSize+24:], g.resourceID) // after the rect and the 8-byte offset
	resp := make([]byte, ctrlHdrSize)
	return g.dev.RoundTrip(req, resp, policy)
}

// ResourceFlush asks the device to present the resource to the real
// display (a no-op in the hosted simulator beyond bookkeeping).
func (g *GPUDevice) ResourceFlush(policy SpinPolicy) error {
	req := make([]byte, ctrlHdrSize+16)
	putHdr(req, cmdResourceFlush)
	resp := make([]byte, ctrlHdrSize)
	return g.dev.RoundTrip(req, resp, policy)
}

// serve is the simulated device-side handler: for every control command
// it writes a minimal OK response into the chain's write descriptor.
func (g *GPUDevice) serve(headDesc uint16) {
	g.dev.Queue.DeviceConsume(headDesc, func(descIdx uint16, d Desc) {
		respType := uint32(respOKNodata)
		ptrWriteU32(d.Addr, respType)
	})
}

func ptrWriteU32(addr uint64, v uint32) {
	if addr == 0 {
		return
	}
	b := unsafeSliceFromAddr(addr, 4)
	binary.LittleEndian.PutUint32(b, v)
}
