package fault

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/klog"
)

// describeFaultingInstruction best-effort disassembles the bytes at the
// faulting RIP, purely for the kill-path log line. code is whatever the
// trap delivery layer captured starting at rip; callers that can't
// capture it pass nil and get no diagnostic, which is never fatal to
// the fault handler itself — this is diagnostics, not control flow.
func describeFaultingInstruction(rip uintptr, code []byte) string {
	if len(code) == 0 {
		return ""
	}
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return fmt.Sprintf("rip=%#x <undecodable: %v>", rip, err)
	}
	return fmt.Sprintf("rip=%#x %s", rip, x86asm.GNUSyntax(inst, uint64(rip), nil))
}

// logKill reports a fault that is about to kill the faulting process,
// with a best-effort instruction disassembly when the trap frame
// captured one. The rsp-8==addr heuristic that decided the outcome is
// never influenced by this: this function is only ever called after
// that decision, on the side of the call site that kills the process.
func logKill(reason string, f Frame, addr uintptr) {
	msg := describeFaultingInstruction(f.RIP, f.Code)
	if msg == "" {
		klog.Warnf("fault: killing process: %s at %#x", reason, addr)
		return
	}
	klog.Warnf("fault: killing process: %s at %#x (%s)", reason, addr, msg)
}
