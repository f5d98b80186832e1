// Package fault implements the page fault handler, including the
// stack-growth heuristic: look the faulting address up, reject illegal
// writes and unmapped addresses that aren't stack growth, then resolve
// the fault by claiming the page.
package fault

import (
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/klog"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/spt"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vmevents"
)

// Frame is the subset of the trapped CPU state the handler needs: the
// faulting instruction pointer and the stack pointer at fault time.
// Code is an optional window of bytes captured at RIP by the trap
// delivery layer, used only for a best-effort disassembly in the kill
// path's diagnostic log; nil is always safe to pass.
type Frame struct {
	RIP  uintptr
	RSP  uintptr
	Code []byte
}

const stackFloor = defs.USERStackTop - defs.StackGrowthSpan

// isStackGrowth applies the verbatim heuristic: either addr is exactly
// one word below rsp (a push into an unmapped page), or addr falls
// within the fixed stack span and at or above rsp (a deeper access
// through an already-extended but still unmapped stack page).
func isStackGrowth(rsp, addr uintptr) bool {
	if rsp-8 == addr {
		return true
	}
	return addr >= stackFloor && addr < defs.USERStackTop && rsp <= addr
}

// TryHandle resolves a page fault at addr within the given table. It
// returns false for any fault that should kill the faulting process:
// a kernel-mode fault reaching here, a write to a read-only page, or an
// address with no page and no stack-growth justification.
func TryHandle(s *spt.SPT, f Frame, addr uintptr, user, write, notPresent bool) bool {
	klog.Global.PageFaults.Inc()
	klog.Record(vmevents.Fault, addr)

	if !user {
		logKill("kernel-mode fault", f, addr)
		return false
	}
	if !notPresent {
		// the mapping exists but permissions forbid the access: never
		// recoverable by this handler.
		logKill("permission fault on a present page", f, addr)
		return false
	}

	page, ok := s.Find(addr &^ (defs.PageSize - 1))
	if !ok {
		if !isStackGrowth(f.RSP, addr) {
			logKill("no page and not a stack-growth access", f, addr)
			return false
		}
		klog.Global.StackGrowths.Inc()
		growVA := addr &^ (defs.PageSize - 1)
		return s.GrowStack(growVA)
	}

	if write && !page.Writable {
		logKill("write to a read-only page", f, addr)
		return false
	}

	if page.Resident() {
		// already mapped and permission-checked above: nothing to do.
		return true
	}

	return s.Claim(page) == 0
}
