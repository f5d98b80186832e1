package spt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/diskio"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/frame"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/mmu"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/swap"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vfile"
)

func newTestSPT(t *testing.T, frameCap int) *SPT {
	t.Helper()
	disk, err := diskio.Open(filepath.Join(t.TempDir(), "swap.img"), 64*defs.SectorsPerPage)
	if err != nil {
		t.Fatalf("diskio.Open: %v", err)
	}
	t.Cleanup(func() { disk.Close() })
	return Init(frame.New(frameCap), swap.New(disk), &mmu.PageTable{})
}

func TestAllocPageRejectsDuplicateVA(t *testing.T) {
	s := newTestSPT(t, 4)
	if !s.AllocPage(defs.VMAnon, 0x1000, true) {
		t.Fatalf("first AllocPage failed")
	}
	if s.AllocPage(defs.VMAnon, 0x1000, true) {
		t.Fatalf("expected second AllocPage at the same VA to fail")
	}
}

func TestNonStackPageIsLazy(t *testing.T) {
	s := newTestSPT(t, 4)
	s.AllocPage(defs.VMAnon, 0x2000, true)
	p, ok := s.Find(0x2000)
	if !ok {
		t.Fatalf("page not found")
	}
	if p.Resident() {
		t.Fatalf("newly allocated non-stack page should not be resident")
	}
	if s.Frames.InUse() != 0 {
		t.Fatalf("frame table InUse = %d, want 0 before any claim", s.Frames.InUse())
	}
}

func TestStackPageIsClaimedImmediately(t *testing.T) {
	s := newTestSPT(t, 4)
	if !s.AllocPage(defs.VMAnon|defs.VMMarkerStack, 0x3000, true) {
		t.Fatalf("stack AllocPage failed")
	}
	p, ok := s.Find(0x3000)
	if !ok {
		t.Fatalf("stack page not found")
	}
	if !p.Resident() {
		t.Fatalf("stack page must be resident immediately, never lazy")
	}
}

func TestMmapOverlapRejected(t *testing.T) {
	s := newTestSPT(t, 4)
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, make([]byte, 8192), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f1, err := vfile.Open(path)
	if err != nil {
		t.Fatalf("vfile.Open: %v", err)
	}
	if _, ok := s.Mmap(0x40000000, 8192, true, f1, 0); !ok {
		t.Fatalf("first mmap failed")
	}
	f2, err := vfile.Open(path)
	if err != nil {
		t.Fatalf("vfile.Open: %v", err)
	}
	if _, ok := s.Mmap(0x40001000, 4096, true, f2, 0); ok {
		t.Fatalf("expected overlapping mmap to fail")
	}
	if _, ok := s.Find(0x40001000); !ok {
		t.Fatalf("expected the first mapping's page to still be present at the overlap point")
	}
}

func TestMunmapWritesBackDirtyPages(t *testing.T) {
	s := newTestSPT(t, 4)
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, make([]byte, 4096), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := vfile.Open(path)
	if err != nil {
		t.Fatalf("vfile.Open: %v", err)
	}
	addr := uintptr(0x50000000)
	if _, ok := s.Mmap(addr, 4096, true, f, 0); !ok {
		t.Fatalf("mmap failed")
	}
	if err := s.ClaimPage(addr); err != 0 {
		t.Fatalf("ClaimPage: %v", err)
	}
	p, _ := s.Find(addr)
	p.Frame().KVA[0] = 0x77
	s.PT.MarkWrite(addr)

	if err := s.Munmap(addr); err != 0 {
		t.Fatalf("Munmap: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got[0] != 0x77 {
		t.Fatalf("file byte 0 = %#x, want 0x77", got[0])
	}
	if _, ok := s.Find(addr); ok {
		t.Fatalf("expected page to be removed from the SPT after Munmap")
	}
}
