package virtio

import (
	"encoding/binary"
	"errors"
	"time"
)

// SectorSize is the abstract block transport's fixed sector size
// ("block transport is described abstractly").
const SectorSize = 512

const (
	blkReqIn  = 0 // read
	blkReqOut = 1 // write

	blkStatusOK     = 0
	blkStatusIOErr  = 1
	blkReqHdrSize   = 16 // type(4) + reserved(4) + sector(8)
	blkStatusSize   = 1
)

// ErrIO is returned when the simulated block device reports a failed
// sector access (out of range), per the general error model.
var ErrIO = errors.New("virtio: block device reported an I/O error")

// BlockTransport implements the minimal request/response round trip the
// abstract block transport calls for: single virtqueue,
// ReadSector/WriteSector, so internal/unitfile's collaborator-facing
// read path has something concrete to call without inventing
// filesystem semantics.
type BlockTransport struct {
	dev     *Device
	storage [][SectorSize]byte
	stop    chan struct{}
}

// NewBlockTransport creates a simulated block device with numSectors of
// backing storage, all zeroed.
func NewBlockTransport(dev *Device, numSectors int) *BlockTransport {
	bt := &BlockTransport{dev: dev, storage: make([][SectorSize]byte, numSectors), stop: make(chan struct{})}
	go simDeviceLoop(dev.Queue, time.Millisecond, bt.stop, bt.serve)
	return bt
}

// Close stops the simulated device-side responder.
func (bt *BlockTransport) Close() { close(bt.stop) }

func (bt *BlockTransport) serve(headDesc uint16) {
	reqDesc := bt.dev.Queue.desc(headDesc)
	req := unsafeSliceFromAddr(reqDesc.Addr, int(reqDesc.Len))
	reqType := binary.LittleEndian.Uint32(req[0:])
	sector := binary.LittleEndian.Uint64(req[8:])

	bt.dev.Queue.DeviceConsume(headDesc, func(descIdx uint16, d Desc) {
		out := unsafeSliceFromAddr(d.Addr, int(d.Len))
		if int(sector) >= len(bt.storage) {
			out[len(out)-1] = blkStatusIOErr
			return
		}
		switch reqType {
		case blkReqIn:
			copy(out, bt.storage[sector][:])
			out[len(out)-1] = blkStatusOK
		case blkReqOut:
			// the write payload travels in the request (read-only)
			// descriptor, immediately after the header
			if len(req) >= blkReqHdrSize+SectorSize {
				copy(bt.storage[sector][:], req[blkReqHdrSize:blkReqHdrSize+SectorSize])
			}
			out[len(out)-1] = blkStatusOK
		}
	})
}

// ReadSector reads one 512-byte sector via the virtqueue round trip.
func (bt *BlockTransport) ReadSector(lba uint64, policy SpinPolicy) ([]byte, error) {
	req := make([]byte, blkReqHdrSize)
	binary.LittleEndian.PutUint32(req[0:], blkReqIn)
	binary.LittleEndian.PutUint64(req[8:], lba)

	resp := make([]byte, SectorSize+blkStatusSize)
	head := bt.dev.Queue.PublishChain(
		[]uint64{uint64(uintptr(ptrOf(req))), uint64(uintptr(ptrOf(resp)))},
		[]uint32{uint32(len(req)), uint32(len(resp))},
		[]bool{false, true},
	)
	if err := bt.waitUsed(policy); err != nil {
		return nil, err
	}
	respDesc := bt.dev.Queue.desc(head + 1)
	out := unsafeSliceFromAddr(respDesc.Addr, int(respDesc.Len))
	if out[len(out)-1] != blkStatusOK {
		return nil, ErrIO
	}
	data := make([]byte, SectorSize)
	copy(data, out[:SectorSize])
	return data, nil
}

// WriteSector writes one 512-byte sector via the virtqueue round trip.
func (bt *BlockTransport) WriteSector(lba uint64, b []byte, policy SpinPolicy) error {
	if len(b) != SectorSize {
		return errors.New("virtio: WriteSector requires exactly one sector of data")
	}
	req := make([]byte, blkReqHdrSize+SectorSize)
	binary.LittleEndian.PutUint32(req[0:], blkReqOut)
	binary.LittleEndian.PutUint64(req[8:], lba)
	copy(req[blkReqHdrSize:], b)

	resp := make([]byte, blkStatusSize)
	head := bt.dev.Queue.PublishChain(
		[]uint64{uint64(uintptr(ptrOf(req))), uint64(uintptr(ptrOf(resp)))},
		[]uint32{uint32(len(req)), uint32(len(resp))},
		[]bool{false, true},
	)
	if err := bt.waitUsed(policy); err != nil {
		return err
	}
	respDesc := bt.dev.Queue.desc(head + 1)
	out := unsafeSliceFromAddr(respDesc.Addr, int(respDesc.Len))
	if out[0] != blkStatusOK {
		return ErrIO
	}
	return nil
}

func (bt *BlockTransport) waitUsed(policy SpinPolicy) error {
	bound := policy.Bound
	if bound <= 0 {
		bound = DefaultSpinBound
	}
	for i := 0; i < bound; i++ {
		if bt.dev.Queue.HasUsed() {
			if _, _, ok := bt.dev.Queue.PopUsed(); ok {
				return nil
			}
		}
		if policy.Yield != nil {
			policy.Yield()
		}
	}
	return ErrTimeout
}
