// Package spt implements the supplemental page table: the per-process
// index from virtual address to Page, the mmap region list, and the
// shared views onto the frame table, swap pool and MMU that every page
// in this address space uses.
package spt

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/frame"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/mmu"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/page"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/swap"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/util"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vfile"
)

const defaultBuckets = 256

// SPT is one process's supplemental page table.
type SPT struct {
	mu       sync.Mutex
	pages    *hashIndex[*page.Page]
	mmaps    *list.List // ordered list of mmap region head pages
	stackTop uintptr    // lowest VA currently backed by a stack page

	PT     *mmu.PageTable
	Frames *frame.Table
	Swap   *swap.Pool
}

// Init constructs a fresh SPT attached to the given shared,
// process-visible views of the frame table, swap pool, and MMU. These
// are passed explicitly rather than reached for as globals, so an
// address space's dependencies are visible in its constructor.
func Init(frames *frame.Table, sw *swap.Pool, pt *mmu.PageTable) *SPT {
	return &SPT{
		stackTop: defs.USERStackTop,
		pages: newHashIndex[*page.Page](defaultBuckets),
		mmaps: list.New(),
		PT:    pt,
		Frames: frames,
		Swap:  sw,
	}
}

// Find performs the O(1) expected hash lookup for the page whose start
// address is exactly va; it does not round va down. Callers pass an
// already page-aligned address; round_down happens in the fault handler.
func (s *SPT) Find(va uintptr) (*page.Page, bool) {
	return s.pages.get(va)
}

// Insert adds p to the index, failing if its VA is already present.
func (s *SPT) Insert(p *page.Page) defs.Err_t {
	if !s.pages.set(p.VAddr, p) {
		return defs.EEXIST
	}
	return 0
}

// Remove deletes p from the index and destroys it, releasing whatever
// frame or swap slot it held.
func (s *SPT) Remove(p *page.Page) {
	s.pages.del(p.VAddr)
	p.Destroy()
}

// AllocPageWithInitializer fails if a page already exists at va,
// otherwise creates an Uninit page wired to the requested post-init
// variant. If typ carries the stack marker, the page is claimed
// immediately: stacks are never lazy.
func (s *SPT) AllocPageWithInitializer(typ defs.VMType, va uintptr, writable bool, init page.Initializer, aux page.Aux) bool {
	if _, ok := s.Find(va); ok {
		return false
	}
	p := page.NewUninit(va, writable, typ, init, aux, s.PT, s.Frames, s.Swap)
	if s.Insert(p) != 0 {
		return false
	}
	if typ.IsStack() {
		if err := s.ClaimPage(va); err != 0 {
			s.Remove(p)
			return false
		}
	}
	return true
}

// AllocPage is the convenience form for a bare anonymous page with no
// Init payload.
func (s *SPT) AllocPage(typ defs.VMType, va uintptr, writable bool) bool {
	return s.AllocPageWithInitializer(typ, va, writable, nil, page.Aux{})
}

// StackTop returns the lowest virtual address currently backed by a
// stack page — the boundary the fault handler fills down from on
// growth. A freshly initialized SPT has no stack pages yet, so it
// starts at USERStackTop.
func (s *SPT) StackTop() uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stackTop
}

// SetStackTop records the new lowest backed stack address. Used by the
// fault handler after growth and by the address-space duplicator to
// mirror the parent's stack extent onto the child.
func (s *SPT) SetStackTop(va uintptr) {
	s.mu.Lock()
	if va < s.stackTop {
		s.stackTop = va
	}
	s.mu.Unlock()
}

// GrowStack installs fresh anonymous stack pages one at a time, from
// the rounded fault address up to (but not including) the current
// stack top, then lowers the recorded top to the fault address. It
// returns false if any page in the span fails to allocate, leaving
// whatever pages were already installed in place — a partial grow is
// not torn down, matching the source kernel's own best-effort retry on
// the next fault.
func (s *SPT) GrowStack(growVA uintptr) bool {
	top := s.StackTop()
	for va := growVA; va < top; va += defs.PageSize {
		if _, ok := s.Find(va); ok {
			continue
		}
		if !s.AllocPage(defs.VMAnon|defs.VMMarkerStack, va, true) {
			return false
		}
	}
	s.SetStackTop(growVA)
	return true
}

// ClaimPage looks the page up by va and claims it.
func (s *SPT) ClaimPage(va uintptr) defs.Err_t {
	p, ok := s.Find(va)
	if !ok {
		return defs.EFAULT
	}
	return s.Claim(p)
}

// Claim acquires a frame, links page<->frame, installs the MMU mapping
// with the page's writable permission, then invokes the variant's
// swap-in. It returns a nonzero Err_t iff swap-in fails.
func (s *SPT) Claim(p *page.Page) defs.Err_t {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.Frames.Acquire(s.PT)
	p.AttachFrame(f)
	s.PT.SetPage(p.VA(), f.KVA, p.Writable)
	if err := p.SwapIn(f.KVA); err != 0 {
		return err
	}
	return 0
}

// Mmap validates addr/length/file/offset, computes
// read_bytes = min(length, file.length-offset), rejects overlap with
// any page already in the SPT, and installs one Uninit File page per
// page-sized span covering length (rounded up, zero-padded). It returns
// the original addr, or ok=false on any precondition failure, with no
// partial allocation left behind.
func (s *SPT) Mmap(addr uintptr, length int, writable bool, f *vfile.File, offset int64) (uintptr, bool) {
	if addr%defs.PageSize != 0 || length <= 0 {
		return 0, false
	}
	flen, err := f.Length()
	if err != nil {
		return 0, false
	}
	if offset < 0 || offset > flen {
		return 0, false
	}
	readTotal := int(flen - offset)
	if readTotal > length {
		readTotal = length
	}
	if readTotal <= 0 {
		return 0, false
	}

	span := (length + defs.PageSize - 1) / defs.PageSize
	for i := 0; i < span; i++ {
		if _, ok := s.Find(addr + uintptr(i*defs.PageSize)); ok {
			return 0, false
		}
	}

	pages := make([]*page.Page, 0, span)
	for i := 0; i < span; i++ {
		va := addr + uintptr(i*defs.PageSize)
		pageOff := i * defs.PageSize
		readBytes := util.Max(0, util.Min(readTotal-pageOff, defs.PageSize))
		zeroBytes := defs.PageSize - readBytes

		dup, derr := f.Duplicate()
		if derr != nil {
			for _, created := range pages {
				s.Remove(created)
			}
			return 0, false
		}
		aux := page.Aux{
			File:      dup,
			Offset:    offset + int64(pageOff),
			ReadBytes: readBytes,
			ZeroBytes: zeroBytes,
		}
		p := page.NewUninit(va, writable, defs.VMFile, nil, aux, s.PT, s.Frames, s.Swap)
		if s.Insert(p) != 0 {
			dup.Close()
			for _, created := range pages {
				s.Remove(created)
			}
			return 0, false
		}
		pages = append(pages, p)
	}

	pages[0].PageCount = span
	s.mu.Lock()
	s.mmaps.PushBack(pages[0])
	s.mu.Unlock()
	return addr, true
}

// Munmap requires addr to be a previously returned mmap head page. For
// each page in the region, if resident and dirty, write read_bytes
// back, then clear the MMU mapping. Destroy (and the file-handle close
// it performs) only happens afterward, via Remove, preserving
// write-back-before-close ordering.
func (s *SPT) Munmap(addr uintptr) defs.Err_t {
	head, ok := s.Find(addr)
	if !ok || head.PageCount == 0 {
		return defs.EINVAL
	}

	s.mu.Lock()
	var target *list.Element
	for e := s.mmaps.Front(); e != nil; e = e.Next() {
		if e.Value.(*page.Page) == head {
			target = e
			break
		}
	}
	if target != nil {
		s.mmaps.Remove(target)
	}
	s.mu.Unlock()

	count := head.PageCount
	for i := 0; i < count; i++ {
		va := addr + uintptr(i*defs.PageSize)
		p, ok := s.Find(va)
		if !ok {
			continue
		}
		if err := p.WritebackIfDirty(); err != 0 {
			return err
		}
		p.ClearMapping()
		s.Remove(p)
	}
	return 0
}

// AllPages returns every page currently tracked by this table, in no
// particular order — used by the address-space duplicator to walk the
// full set once under no particular ordering guarantee.
func (s *SPT) AllPages() []*page.Page {
	return s.pages.all()
}

// MmapHeads returns the head page of every mmap region, in mmap order.
func (s *SPT) MmapHeads() []*page.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	heads := make([]*page.Page, 0, s.mmaps.Len())
	for e := s.mmaps.Front(); e != nil; e = e.Next() {
		heads = append(heads, e.Value.(*page.Page))
	}
	return heads
}

// AppendMmap records head as an mmap region's head page, in the same
// role Mmap itself performs — used by the address-space duplicator to
// mirror the source's mmap list onto a freshly built child table.
func (s *SPT) AppendMmap(head *page.Page) {
	s.mu.Lock()
	s.mmaps.PushBack(head)
	s.mu.Unlock()
}

// Kill implements supplemental_page_table_kill: walk the mmap list
// front to back invoking Munmap on each head (performing dirty
// write-back), then destroy every remaining page and drop the index.
func (s *SPT) Kill() {
	s.mu.Lock()
	heads := make([]*page.Page, 0, s.mmaps.Len())
	for e := s.mmaps.Front(); e != nil; e = e.Next() {
		heads = append(heads, e.Value.(*page.Page))
	}
	s.mu.Unlock()

	for _, h := range heads {
		if _, ok := s.Find(h.VAddr); ok {
			if err := s.Munmap(h.VAddr); err != 0 {
				fmt.Printf("spt: kill: munmap %#x failed: %v\n", h.VAddr, err)
			}
		}
	}

	for _, p := range s.pages.all() {
		s.Remove(p)
	}
}
