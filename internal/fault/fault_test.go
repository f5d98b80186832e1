package fault

import (
	"path/filepath"
	"testing"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/diskio"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/frame"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/mmu"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/spt"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/swap"
)

func newTestSPT(t *testing.T) *spt.SPT {
	t.Helper()
	disk, err := diskio.Open(filepath.Join(t.TempDir(), "swap.img"), 8*defs.SectorsPerPage)
	if err != nil {
		t.Fatalf("diskio.Open: %v", err)
	}
	t.Cleanup(func() { disk.Close() })
	return spt.Init(frame.New(4), swap.New(disk), &mmu.PageTable{})
}

func TestTryHandleFaultClaimsLazyPage(t *testing.T) {
	s := newTestSPT(t)
	s.AllocPage(defs.VMAnon, 0x1000, true)
	if !TryHandle(s, Frame{}, 0x1000, true, false, true) {
		t.Fatalf("expected fault on a known lazy page to succeed")
	}
	p, _ := s.Find(0x1000)
	if !p.Resident() {
		t.Fatalf("expected page to be resident after a successful fault")
	}
}

func TestTryHandleFaultRejectsUnknownAddress(t *testing.T) {
	s := newTestSPT(t)
	if TryHandle(s, Frame{}, 0x9000, true, false, true) {
		t.Fatalf("expected fault at an unmapped, non-stack address to fail")
	}
}

func TestTryHandleFaultRejectsWriteToReadOnly(t *testing.T) {
	s := newTestSPT(t)
	s.AllocPage(defs.VMAnon, 0x2000, false)
	if TryHandle(s, Frame{}, 0x2000, true, true, true) {
		t.Fatalf("expected write fault on a read-only page to fail")
	}
}

func TestStackGrowthAtRSPMinusEight(t *testing.T) {
	s := newTestSPT(t)
	rsp := defs.USERStackTop - 0x1000
	addr := rsp - 8
	if !TryHandle(s, Frame{RSP: rsp}, addr, true, true, true) {
		t.Fatalf("expected rsp-8 access to grow the stack")
	}
	p, ok := s.Find(addr &^ uintptr(defs.PageSize-1))
	if !ok || !p.IsStack() {
		t.Fatalf("expected a stack page to be installed at the grown address")
	}
}

func TestStackGrowthRejectedBelowFloor(t *testing.T) {
	s := newTestSPT(t)
	rsp := defs.USERStackTop - 0x1000
	below := defs.USERStackTop - 2*(1<<20) // 2 MiB below top, past the 1 MiB floor.
	if TryHandle(s, Frame{RSP: rsp}, below, true, true, true) {
		t.Fatalf("expected access below STACK_FLOOR to fail")
	}
}
