// Package blockalloc implements the two-regime variable-size allocator on
// top of internal/pagealloc: large requests go straight to whole pages,
// small requests come from an address-ordered free list with
// split-on-alloc and coalesce-on-free. Following the approach in heap.go
// (a doubly-linked heapSegment free list over a fixed heap region), but
// address-ordered rather than a simpler non-ordered list, since the
// stronger invariant (strictly address-ordered, no duplicates) must hold.
package blockalloc

import (
	"sort"
	"unsafe"

	"kestrel/internal/klog"
	"kestrel/internal/pagealloc"
)

const (
	alignment  = 16
	headerSize = unsafe.Sizeof(header{})
	// maxFreeWalk bounds free-list iteration; exceeding it indicates a
	// cycle and is Corruption-class .
	maxFreeWalk = 1 << 20
)

// header precedes every allocation, large or small.
type header struct {
	size      uint64 // payload size in bytes, rounded up to 16 (a free block's usable size)
	pages     uint32 // page count, nonzero only for large blocks
	large     bool
	allocated bool
}

// Allocator is the block allocator. It is not re-entrant with respect to
// itself and must not be called from interrupt-like context .
type Allocator struct {
	pages *pagealloc.Pool
	// store maps a block's starting address to its header and payload,
	// standing in for an in-place linked list over raw
	// memory: a hosted simulator has no pointer arithmetic into a byte
	// pool that can safely host Go struct headers, so the list topology
	// is kept here while every address-ordering and coalescing rule
	// prescribes is still enforced against it.
	blocks map[uintptr]*blockEntry
	free   []uintptr // free block addresses, kept address-ordered
}

type blockEntry struct {
	hdr     header
	addr    uintptr
	extent  uintptr // addr + size-of-storage, for adjacency checks
	payload []byte
}

// roundUp16 rounds n up to the next multiple of 16.
func roundUp16(n int) int {
	return (n + alignment - 1) &^ (alignment - 1)
}

// NewAllocator creates a block allocator drawing fresh pages from pages.
func NewAllocator(pages *pagealloc.Pool) *Allocator {
	return &Allocator{
		pages:  pages,
		blocks: make(map[uintptr]*blockEntry),
	}
}

// Alloc satisfies a request of n bytes, returning its address. Requests
// whose header+payload exceed one page take the large path (whole pages
// from the page allocator); everything else is served from the
// address-ordered free list, requesting one fresh page when exhausted.
func (a *Allocator) Alloc(n int) (uintptr, bool) {
	if n <= 0 {
		n = 1
	}
	size := roundUp16(n)

	if int(headerSize)+size > pagealloc.PageSize {
		return a.allocLarge(size)
	}
	return a.allocSmall(size)
}

func (a *Allocator) allocLarge(size int) (uintptr, bool) {
	total := int(headerSize) + size
	k := (total + pagealloc.PageSize - 1) / pagealloc.PageSize
	addr, ok := a.pages.AllocContig(k)
	if !ok {
		return 0, false
	}
	extent := addr + uintptr(k*pagealloc.PageSize)
	a.blocks[addr] = &blockEntry{
		hdr:     header{size: uint64(size), pages: uint32(k), large: true, allocated: true},
		addr:    addr,
		extent:  extent,
		payload: a.pages.Bytes(addr, k*pagealloc.PageSize),
	}
	return addr + headerPad(), true
}

// headerPad is the address offset from a block's start to its payload,
// after alignment padding.
func headerPad() uintptr {
	return uintptr(roundUp16(int(headerSize)))
}

func (a *Allocator) allocSmall(size int) (uintptr, bool) {
	need := size

	// first-fit over the address-ordered free list
	for i, faddr := range a.free {
		fb := a.blocks[faddr]
		avail := int(fb.extent-fb.addr) - int(headerPad())
		if avail < need {
			continue
		}
		remainder := avail - need
		if remainder >= int(headerSize)+alignment {
			// split: shrink fb in place, insert the remainder as a
			// new free block immediately after it, preserving
			// address order.
			splitAddr := fb.addr + headerPad() + uintptr(need)
			newExtent := splitAddr
			rem := &blockEntry{
				hdr:     header{size: uint64(remainder - int(headerPad())), allocated: false},
				addr:    splitAddr,
				extent:  fb.extent,
				payload: a.pages.Bytes(splitAddr+headerPad(), remainder-int(headerPad())),
			}
			fb.extent = newExtent
			fb.hdr.size = uint64(need)
			a.blocks[splitAddr] = rem
			a.free[i] = splitAddr // remainder replaces original at same slot: address order preserved
		} else {
			a.free = append(a.free[:i], a.free[i+1:]...)
		}
		fb.hdr.allocated = true
		fb.payload = a.pages.Bytes(fb.addr+headerPad(), int(fb.hdr.size))
		return fb.addr + headerPad(), true
	}

	// exhausted: request one fresh page, wrap it in a header, insert
	// via the free path, then retry once.
	pg, ok := a.pages.Alloc()
	if !ok {
		return 0, false
	}
	entry := &blockEntry{
		hdr:    header{size: uint64(pagealloc.PageSize) - uint64(headerPad()), allocated: false},
		addr:   pg,
		extent: pg + pagealloc.PageSize,
	}
	entry.payload = a.pages.Bytes(pg+headerPad(), int(entry.hdr.size))
	a.blocks[pg] = entry
	a.insertFree(pg)
	return a.allocSmall(size)
}

// insertFree inserts addr into the address-ordered free slice.
func (a *Allocator) insertFree(addr uintptr) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i] >= addr })
	if i < len(a.free) && a.free[i] == addr {
		klog.Warn("blockalloc: double free detected, ignoring", klog.Fields{"addr": addr})
		return
	}
	a.free = append(a.free, 0)
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = addr
}

// Free returns a previously allocated block to the allocator. Large
// blocks go straight back to the page allocator; small blocks are
// inserted at their address-ordered position and coalesced with any
// contiguous neighbor. A double free is detected and logged, not
// re-inserted .
func (a *Allocator) Free(payloadAddr uintptr) {
	addr := payloadAddr - headerPad()
	b, ok := a.blocks[addr]
	if !ok {
		klog.Warn("blockalloc: free of unknown address", klog.Fields{"addr": payloadAddr})
		return
	}
	if b.hdr.large {
		if !b.hdr.allocated {
			klog.Warn("blockalloc: double free of large block", klog.Fields{"addr": payloadAddr})
			return
		}
		b.hdr.allocated = false
		a.pages.Free(addr, int(b.hdr.pages))
		delete(a.blocks, addr)
		return
	}
	if !b.hdr.allocated {
		klog.Warn("blockalloc: double free detected, ignoring", klog.Fields{"addr": payloadAddr})
		return
	}
	b.hdr.allocated = false
	a.insertFree(addr)
	a.coalesce(addr)
}

// coalesce merges the free block at addr with its immediately adjacent
// address-ordered successor and predecessor, when they are contiguous.
func (a *Allocator) coalesce(addr uintptr) {
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i] >= addr })
	if i >= len(a.free) || a.free[i] != addr {
		return
	}
	cur := a.blocks[addr]

	walk := 0
	// merge with successor
	for i+1 < len(a.free) {
		walk++
		if walk > maxFreeWalk {
			klog.Fatal("blockalloc: free list cycle detected", klog.Fields{"addr": addr})
		}
		next := a.blocks[a.free[i+1]]
		if next.addr != cur.extent {
			break
		}
		cur.extent = next.extent
		cur.hdr.size = uint64(cur.extent-cur.addr) - uint64(headerPad())
		delete(a.blocks, next.addr)
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}

	// merge with predecessor
	for i > 0 {
		walk++
		if walk > maxFreeWalk {
			klog.Fatal("blockalloc: free list cycle detected", klog.Fields{"addr": addr})
		}
		prev := a.blocks[a.free[i-1]]
		if prev.extent != cur.addr {
			break
		}
		prev.extent = cur.extent
		prev.hdr.size = uint64(prev.extent-prev.addr) - uint64(headerPad())
		delete(a.blocks, cur.addr)
		a.free = append(a.free[:i], a.free[i+1:]...)
		cur = prev
		i--
	}
	cur.payload = a.pages.Bytes(cur.addr+headerPad(), int(cur.hdr.size))
}

// Size returns the usable size of the block at payloadAddr, or 0 if the
// address is unknown.
func (a *Allocator) Size(payloadAddr uintptr) int {
	addr := payloadAddr - headerPad()
	b, ok := a.blocks[addr]
	if !ok {
		return 0
	}
	return int(b.hdr.size)
}

// FreeBlockCount reports the number of distinct free blocks currently on
// the free list, for invariant tests (address order, no duplicates).
func (a *Allocator) FreeBlockCount() int {
	return len(a.free)
}

// FreeAddrsOrdered returns a copy of the current free-list addresses, in
// address order, for invariant tests.
func (a *Allocator) FreeAddrsOrdered() []uintptr {
	out := make([]uintptr, len(a.free))
	copy(out, a.free)
	return out
}

// Bytes returns the live backing storage for the allocation at
// payloadAddr, for callers (task stacks, virtqueue buffers) that need
// direct byte access rather than a copy. Returns nil for an unknown or
// freed address.
func (a *Allocator) Bytes(payloadAddr uintptr) []byte {
	b, ok := a.blocks[payloadAddr-headerPad()]
	if !ok || !b.hdr.allocated {
		return nil
	}
	return b.payload
}
