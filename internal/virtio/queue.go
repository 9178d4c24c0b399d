package virtio

import "encoding/binary"

// Descriptor flags, per the virtqueue layout rngDescTable
// comment documents (VirtQDesc: addr/len/flags/next).
const (
	descFNext  = 1 << 0
	descFWrite = 1 << 1
)

// Desc is one virtqueue descriptor.
type Desc struct {
	Addr  uint64
	Len   uint32
	Flags uint16
	Next  uint16
}

const (
	descSize = 16 // 8 + 4 + 2 + 2, per VirtQDesc
)

// Queue is a descriptor table + avail ring + used ring laid out over a
// single backing buffer. size must be a power
// of two; the rngQueue comment ("for queue size 8: ...") is the
// grounding for these exact byte layouts.
type Queue struct {
	size uint16
	buf  []byte // descTable | avail ring | used ring

	descOff  int
	availOff int
	usedOff  int

	lastUsedIdx uint16
}

// NewQueue allocates a queue of the given power-of-two size (at most 16)
// in an 8 KiB buffer: descriptor table at offset 0, avail ring right
// after it at size*16, used ring at offset 4096.
func NewQueue(size uint16) *Queue {
	descBytes := int(size) * descSize

	q := &Queue{
		size:     size,
		descOff:  0,
		availOff: descBytes,
		usedOff:  4096,
	}
	q.buf = make([]byte, 8192)
	return q
}

func (q *Queue) descAt(i uint16) int { return q.descOff + int(i)*descSize }

func (q *Queue) setDesc(i uint16, d Desc) {
	off := q.descAt(i)
	binary.LittleEndian.PutUint64(q.buf[off:], d.Addr)
	binary.LittleEndian.PutUint32(q.buf[off+8:], d.Len)
	binary.LittleEndian.PutUint16(q.buf[off+12:], d.Flags)
	binary.LittleEndian.PutUint16(q.buf[off+14:], d.Next)
}

func (q *Queue) desc(i uint16) Desc {
	off := q.descAt(i)
	return Desc{
		Addr:  binary.LittleEndian.Uint64(q.buf[off:]),
		Len:   binary.LittleEndian.Uint32(q.buf[off+8:]),
		Flags: binary.LittleEndian.Uint16(q.buf[off+12:]),
		Next:  binary.LittleEndian.Uint16(q.buf[off+14:]),
	}
}

func (q *Queue) availIdx() uint16 {
	return binary.LittleEndian.Uint16(q.buf[q.availOff+2:])
}

func (q *Queue) setAvailIdx(v uint16) {
	binary.LittleEndian.PutUint16(q.buf[q.availOff+2:], v)
}

func (q *Queue) setAvailRing(slot, descIdx uint16) {
	off := q.availOff + 4 + int(slot%q.size)*2
	binary.LittleEndian.PutUint16(q.buf[off:], descIdx)
}

func (q *Queue) usedIdx() uint16 {
	return binary.LittleEndian.Uint16(q.buf[q.usedOff+2:])
}

func (q *Queue) setUsedIdx(v uint16) {
	binary.LittleEndian.PutUint16(q.buf[q.usedOff+2:], v)
}

func (q *Queue) usedRingAt(slot uint16) (id uint32, length uint32) {
	off := q.usedOff + 4 + int(slot%q.size)*8
	return binary.LittleEndian.Uint32(q.buf[off:]), binary.LittleEndian.Uint32(q.buf[off+4:])
}

func (q *Queue) setUsedRingAt(slot uint16, id, length uint32) {
	off := q.usedOff + 4 + int(slot%q.size)*8
	binary.LittleEndian.PutUint32(q.buf[off:], id)
	binary.LittleEndian.PutUint32(q.buf[off+4:], length)
}

// PublishChain writes a descriptor chain (addrs/lens/writeFlags, all same
// length, last entry has no Next bit set) and publishes its head on the
// avail ring.
func (q *Queue) PublishChain(addrs []uint64, lens []uint32, writeFlags []bool) uint16 {
	n := uint16(len(addrs))
	head := uint16(0)
	for i := uint16(0); i < n; i++ {
		flags := uint16(0)
		if writeFlags[i] {
			flags |= descFWrite
		}
		next := uint16(0)
		if i+1 < n {
			flags |= descFNext
			next = i + 1
		}
		q.setDesc(i, Desc{Addr: addrs[i], Len: lens[i], Flags: flags, Next: next})
	}
	idx := q.availIdx()
	q.setAvailRing(idx, head)
	q.setAvailIdx(idx + 1)
	return head
}

// DeviceConsume simulates the device side: walks the chain starting at
// headDesc, invokes write for every write-flagged descriptor (device
// producing data for the driver to read), then posts a used-ring entry.
// Stands in for what real device-side virtio hardware/firmware does;
// used by tests and by the simulator's own device-emulation goroutines
// (internal/virtio's gpu/input/rng/blocktransport files) to answer a
// published request without real hardware.
func (q *Queue) DeviceConsume(headDesc uint16, write func(descIdx uint16, d Desc)) {
	i := headDesc
	totalLen := uint32(0)
	for {
		d := q.desc(i)
		if d.Flags&descFWrite != 0 {
			write(i, d)
			totalLen += d.Len
		}
		if d.Flags&descFNext == 0 {
			break
		}
		i = d.Next
	}
	uIdx := q.usedIdx()
	q.setUsedRingAt(uIdx, uint32(headDesc), totalLen)
	q.setUsedIdx(uIdx + 1)
}

// PopUsed returns the next not-yet-observed used-ring entry, advancing
// the queue's last-seen index, or ok=false if the device has not
// produced one yet.
func (q *Queue) PopUsed() (descID uint32, length uint32, ok bool) {
	if q.lastUsedIdx == q.usedIdx() {
		return 0, 0, false
	}
	id, l := q.usedRingAt(q.lastUsedIdx)
	q.lastUsedIdx++
	return id, l, true
}

// HasUsed reports whether the device has produced an entry the driver
// has not yet consumed.
func (q *Queue) HasUsed() bool {
	return q.lastUsedIdx != q.usedIdx()
}
