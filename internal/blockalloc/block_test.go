package blockalloc

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"kestrel/internal/pagealloc"
)

func newTestAllocator(pages int) *Allocator {
	pool := pagealloc.NewPool(pages, 0)
	return NewAllocator(pool)
}

func TestSmallestRequestRoundsTo16(t *testing.T) {
	a := newTestAllocator(4)
	addr, ok := a.Alloc(1)
	require.True(t, ok)
	require.Equal(t, 16, a.Size(addr))
}

func TestExactPageBoundaryUsesLargePath(t *testing.T) {
	a := newTestAllocator(4)
	addr, ok := a.Alloc(pagealloc.PageSize - int(headerPad()) + 1)
	require.True(t, ok)
	b := a.blocks[addr-headerPad()]
	require.True(t, b.hdr.large)
}

func TestFreeRoundTripLeavesFragmentationBoundedByOneHeader(t *testing.T) {
	a := newTestAllocator(4)
	addr, ok := a.Alloc(64)
	require.True(t, ok)
	before := a.FreeBlockCount()
	a.Free(addr)
	after := a.FreeBlockCount()
	require.GreaterOrEqual(t, after, before)

	// the page's free bytes come back to within one header (plus
	// rounding) of a fresh page's usable size
	freeBytes := 0
	for _, fa := range a.FreeAddrsOrdered() {
		freeBytes += int(a.blocks[fa].hdr.size)
	}
	require.LessOrEqual(t, pagealloc.PageSize-int(headerPad())-freeBytes, int(headerPad())+15)
}

func TestCoalescingScenario(t *testing.T) {
	// scenario 4: p=alloc(64); q=alloc(64); r=alloc(64);
	// free(q); free(p); free(r) leaves a single free block whose size
	// equals the sum of the three allocations plus two headers.
	a := newTestAllocator(4)
	p, ok := a.Alloc(64)
	require.True(t, ok)
	q, ok := a.Alloc(64)
	require.True(t, ok)
	r, ok := a.Alloc(64)
	require.True(t, ok)
	// fill the rest of the page so the three blocks' only free
	// neighbours are each other
	_, ok = a.Alloc(pagealloc.PageSize - 4*int(headerPad()) - 3*roundUp16(64))
	require.True(t, ok)

	a.Free(q)
	a.Free(p)
	a.Free(r)

	require.Equal(t, 1, a.FreeBlockCount(), "expected all three blocks to coalesce into one")

	freeAddr := a.FreeAddrsOrdered()[0]
	merged := a.blocks[freeAddr]
	gotSize := int(merged.hdr.size)

	expected := 3*roundUp16(64) + 2*int(headerPad())
	require.Equal(t, expected, gotSize)
}

func TestFreeListStaysAddressOrderedWithNoDuplicates(t *testing.T) {
	a := newTestAllocator(8)
	var addrs []uintptr
	for i := 0; i < 10; i++ {
		addr, ok := a.Alloc(32)
		require.True(t, ok)
		addrs = append(addrs, addr)
	}
	// free every other block, leaving a scattered free list
	for i := 0; i < len(addrs); i += 2 {
		a.Free(addrs[i])
	}

	ordered := a.FreeAddrsOrdered()
	require.True(t, sort.SliceIsSorted(ordered, func(i, j int) bool { return ordered[i] < ordered[j] }))

	seen := make(map[uintptr]bool)
	for _, addr := range ordered {
		require.False(t, seen[addr], "duplicate free-list entry")
		seen[addr] = true
	}
}

func TestDoubleFreeIsDetectedAndIgnored(t *testing.T) {
	a := newTestAllocator(4)
	addr, ok := a.Alloc(32)
	require.True(t, ok)
	a.Free(addr)
	countAfterFirst := a.FreeBlockCount()

	a.Free(addr) // double free: must not corrupt or duplicate the list
	require.Equal(t, countAfterFirst, a.FreeBlockCount())
}

func TestAllocationDoesNotCorruptAdjacentFreeBlocks(t *testing.T) {
	a := newTestAllocator(4)
	p, ok := a.Alloc(128)
	require.True(t, ok)
	q, ok := a.Alloc(128)
	require.True(t, ok)

	a.Free(p)
	// small allocation immediately following a free block must not
	// touch q's payload.
	qBuf := a.blocks[q-headerPad()].payload
	for i := range qBuf {
		qBuf[i] = 0xAB
	}
	_, ok = a.Alloc(1)
	require.True(t, ok)
	for _, b := range qBuf {
		require.Equal(t, byte(0xAB), b)
	}
}
