// Package vm is the external surface of the supplemental virtual
// memory subsystem: everything another package (a process manager, a
// syscall layer, a test) needs to create an address space, resolve
// faults against it, map files into it, and tear it down. Internally it
// is a thin facade over spt, fault, and vmfork — the same "kernel API
// is a handful of free functions over one shared struct" shape the
// teacher's own top-level packages (accnt, fd) present to their
// callers.
package vm

import (
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/fault"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/frame"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/mmu"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/page"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/spt"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/swap"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vfile"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vmfork"
)

// AddressSpace is one process's view of virtual memory: its
// supplemental page table plus the frame table, swap pool and MMU it
// was built against.
type AddressSpace struct {
	SPT *spt.SPT
}

// Init creates a fresh address space. pt belongs to this address space
// alone; frames and sw are shared only with the address spaces Copy
// forks from it.
func Init(frames *frame.Table, sw *swap.Pool, pt *mmu.PageTable) *AddressSpace {
	return &AddressSpace{SPT: spt.Init(frames, sw, pt)}
}

// Copy duplicates src into a freshly built address space sharing src's
// frame table and swap pool, with a page table of its own. It returns
// nil if duplication fails partway through.
func Copy(src *AddressSpace) *AddressSpace {
	dst := Init(src.SPT.Frames, src.SPT.Swap, &mmu.PageTable{})
	if !vmfork.Copy(dst.SPT, src.SPT) {
		return nil
	}
	return dst
}

// Kill tears down every page in as, writing back dirty mmap'd data
// first.
func Kill(as *AddressSpace) {
	as.SPT.Kill()
}

// AllocPageWithInitializer registers a lazily initialized page.
func AllocPageWithInitializer(as *AddressSpace, typ defs.VMType, va uintptr, writable bool, init page.Initializer, aux page.Aux) bool {
	return as.SPT.AllocPageWithInitializer(typ, va, writable, init, aux)
}

// AllocPage registers a bare anonymous page with no Init payload.
func AllocPage(as *AddressSpace, typ defs.VMType, va uintptr, writable bool) bool {
	return as.SPT.AllocPage(typ, va, writable)
}

// ClaimPage forces the page at va resident now.
func ClaimPage(as *AddressSpace, va uintptr) bool {
	return as.SPT.ClaimPage(va) == 0
}

// TryHandleFault resolves a page fault, installing a new stack page or
// claiming an existing lazy page as needed. It returns false if the
// fault is not recoverable and the faulting process should be killed.
func TryHandleFault(as *AddressSpace, f fault.Frame, addr uintptr, user, write, notPresent bool) bool {
	return fault.TryHandle(as.SPT, f, addr, user, write, notPresent)
}

// Mmap maps length bytes of f starting at offset into as at addr.
func Mmap(as *AddressSpace, addr uintptr, length int, writable bool, f *vfile.File, offset int64) (uintptr, bool) {
	return as.SPT.Mmap(addr, length, writable, f, offset)
}

// Munmap unmaps the mmap region previously installed at addr, writing
// back any dirty pages first.
func Munmap(as *AddressSpace, addr uintptr) bool {
	return as.SPT.Munmap(addr) == 0
}
