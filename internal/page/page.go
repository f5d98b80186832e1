// Package page implements the page state machine (Uninit -> Anon |
// File), the anonymous swap-backed engine, and the file-backed engine
// with dirty write-back. A Page's three operations (SwapIn, SwapOut,
// Destroy) are dispatched by its current variant tag: a tagged sum with
// match-dispatch, not a vtable — the Uninit->Anon/File transition below
// is an explicit value replacement of p.variant, not a silent interface
// swap.
//
// The struct pairs plain fields with a single embedded sync.Mutex
// guarding the state snapshot and its transitions.
package page

import (
	"sync"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/frame"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/mmu"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/swap"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vfile"
)

// Initializer runs once, the first time an Uninit page is touched,
// after its variant state has been set up from Aux. For a bare
// anonymous page it is nil and the zero-fill default applies.
type Initializer func(p *Page) defs.Err_t

// Aux is the Uninit-carried descriptor for file-backed pages.
// ReadBytes + ZeroBytes must equal defs.PageSize.
type Aux struct {
	File      *vfile.File
	Offset    int64
	ReadBytes int
	ZeroBytes int
}

// Page is the central entity of the supplemental page table: one
// virtual page, identified by VA, tracked from allocation through
// residency, eviction, and destruction.
type Page struct {
	mu sync.Mutex

	VAddr    uintptr
	Writable bool

	variant defs.VMType // Uninit, Anon, or File (stack marker lives separately)
	isStack bool

	// Uninit payload, valid only while variant == VMUninit.
	initType defs.VMType
	initFn   Initializer
	aux      Aux

	// File-variant state, valid once variant == VMFile (copied from
	// aux at the Uninit->File transition).
	file      *vfile.File
	offset    int64
	readBytes int
	zeroBytes int

	// mmap bookkeeping: PageCount is set on the head page of a region,
	// zero on every other page in it.
	PageCount int

	fr    *frame.Frame
	slot  *swap.Slot
	hasSec bool

	pt     *mmu.PageTable
	frames *frame.Table
	sw     *swap.Pool
}

// NewUninit creates a lazily-initialized page at va. typ names the
// eventual variant (VMAnon or VMFile, optionally OR'd with
// VMMarkerStack). init and aux are the Init payload; init may be nil.
func NewUninit(va uintptr, writable bool, typ defs.VMType, init Initializer, aux Aux, pt *mmu.PageTable, frames *frame.Table, sw *swap.Pool) *Page {
	return &Page{
		VAddr:    va,
		Writable: writable,
		variant:  defs.VMUninit,
		isStack:  typ.IsStack(),
		initType: typ.Base(),
		initFn:   init,
		aux:      aux,
		pt:       pt,
		frames:   frames,
		sw:       sw,
	}
}

// VA implements frame.Evictable.
func (p *Page) VA() uintptr { return p.VAddr }

// Variant reports the page's current state-machine tag (without the
// stack marker).
func (p *Page) Variant() defs.VMType {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.variant
}

// IsStack reports whether this page was allocated with VM_MARKER_0.
func (p *Page) IsStack() bool { return p.isStack }

// Resident reports whether the page currently occupies a frame.
func (p *Page) Resident() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fr != nil
}

// Swapped reports whether the page's contents live on the swap disk.
// This is mutually exclusive with residency, and is only ever true for
// Anon pages.
func (p *Page) Swapped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasSec
}

// ClearFrame implements frame.Evictable: break the page's forward
// reference to its frame once the frame table has evicted it.
func (p *Page) ClearFrame() {
	p.mu.Lock()
	p.fr = nil
	p.mu.Unlock()
}

// Frame returns the page's current frame, or nil if not resident.
func (p *Page) Frame() *frame.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fr
}

// SwapSlot returns the page's current swap slot, or nil if its
// contents aren't in swap.
func (p *Page) SwapSlot() *swap.Slot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slot
}

// FileState returns the file-variant fields, valid once Variant() ==
// defs.VMFile.
func (p *Page) FileState() (f *vfile.File, offset int64, readBytes, zeroBytes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.file, p.offset, p.readBytes, p.zeroBytes
}

// UninitState returns the Init payload, valid while Variant() ==
// defs.VMUninit.
func (p *Page) UninitState() (initType defs.VMType, init Initializer, aux Aux) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.initType, p.initFn, p.aux
}

// NewSwapped creates a page whose contents already live in the given
// swap slot, with no resident frame — the shape a forked child's
// anonymous page takes when its parent's copy was made directly on the
// swap disk rather than through a frame.
func NewSwapped(va uintptr, writable bool, slot *swap.Slot, pt *mmu.PageTable, frames *frame.Table, sw *swap.Pool) *Page {
	return &Page{
		VAddr:    va,
		Writable: writable,
		variant:  defs.VMAnon,
		slot:     slot,
		hasSec:   true,
		pt:       pt,
		frames:   frames,
		sw:       sw,
	}
}

// AttachFrame links page and frame together (both directions), the
// final step of Claim.
func (p *Page) AttachFrame(f *frame.Frame) {
	p.mu.Lock()
	p.fr = f
	p.mu.Unlock()
	f.Page = p
}

// SwapIn upgrades an Uninit page on first touch and then dispatches to
// the resulting variant's own SwapIn, or dispatches directly for an
// already-materialized page. kva is the freshly claimed frame's
// backing memory.
func (p *Page) SwapIn(kva []byte) defs.Err_t {
	p.mu.Lock()
	if p.variant == defs.VMUninit {
		p.variant = p.initType
		switch p.initType {
		case defs.VMFile:
			p.file = p.aux.File
			p.offset = p.aux.Offset
			p.readBytes = p.aux.ReadBytes
			p.zeroBytes = p.aux.ZeroBytes
		case defs.VMAnon:
			// no extra state beyond what NewUninit already set.
		default:
			p.mu.Unlock()
			panic("page: bad init type")
		}
		initFn := p.initFn
		p.mu.Unlock()
		if initFn != nil {
			if err := initFn(p); err != 0 {
				return err
			}
		}
	} else {
		p.mu.Unlock()
	}

	switch p.Variant() {
	case defs.VMAnon:
		return p.anonSwapIn(kva)
	case defs.VMFile:
		return p.fileSwapIn(kva)
	default:
		panic("page: swap_in on uninit page after upgrade")
	}
}

// SwapOut implements frame.Evictable by dispatching to the current
// variant's swap-out handler.
func (p *Page) SwapOut() defs.Err_t {
	switch p.Variant() {
	case defs.VMAnon:
		return p.anonSwapOut()
	case defs.VMFile:
		return p.fileSwapOut()
	default:
		// Uninit pages are never resident, so the frame table never
		// evicts one.
		panic("page: swap_out on uninit page")
	}
}

// Destroy releases every resource the page holds: its frame (returned
// to the frame table), its swap slot (returned to the swap pool), and,
// for File pages, the per-page file handle. This happens exactly once,
// at destroy time; Munmap reaches it through SPT.Remove only after the
// page's write-back.
func (p *Page) Destroy() {
	switch p.Variant() {
	case defs.VMAnon:
		p.anonDestroy()
	case defs.VMFile:
		p.fileDestroy()
	default:
		// Uninit: a File-typed mmap page can be destroyed before ever
		// being touched. Its aux file was duplicated at mmap time and
		// must still be closed here.
		p.mu.Lock()
		auxFile := p.aux.File
		initType := p.initType
		p.mu.Unlock()
		if initType == defs.VMFile && auxFile != nil {
			auxFile.Close()
		}
	}
}
