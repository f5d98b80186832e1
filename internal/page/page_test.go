package page

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

func testPool(t *testing.T, sectors int) *swap.Pool {
	t.Helper()
	disk, err := diskio.Open(filepath.Join(t.TempDir(), "swap.img"), sectors)
	if err != nil {
		t.Fatalf("diskio.Open: %v", err)
	}
	t.Cleanup(func() { disk.Close() })
	return swap.New(disk)
}

func TestAnonPageLazyZeroFillThenEvictionRoundTrip(t *testing.T) {
	pt := &mmu.PageTable{}
	frames := frame.New(1) // capacity 1 forces eviction on the second Acquire.
	sw := testPool(t, 2*defs.SectorsPerPage)

	p := NewUninit(0x1000, true, defs.VMAnon, nil, Aux{}, pt, frames, sw)
	fr := frames.Acquire(pt)
	p.AttachFrame(fr)
	if err := p.SwapIn(fr.KVA); err != 0 {
		t.Fatalf("SwapIn: %v", err)
	}
	for i, b := range fr.KVA {
		if b != 0 {
			t.Fatalf("byte %d not zero-filled: %#x", i, b)
		}
	}
	fr.KVA[0] = 0xAB
	pt.SetPage(p.VA(), fr.KVA, true)

	other := NewUninit(0x5000, true, defs.VMAnon, nil, Aux{}, pt, frames, sw)
	fr2 := frames.Acquire(pt) // evicts p's frame.
	other.AttachFrame(fr2)
	if err := other.SwapIn(fr2.KVA); err != 0 {
		t.Fatalf("SwapIn other: %v", err)
	}

	if !p.Swapped() || p.Resident() {
		t.Fatalf("expected p to be swapped and non-resident after eviction")
	}

	fr3 := frames.Acquire(pt) // evicts other, frees the one frame back for p.
	p.AttachFrame(fr3)
	if err := p.SwapIn(fr3.KVA); err != 0 {
		t.Fatalf("swap-in after eviction: %v", err)
	}
	if fr3.KVA[0] != 0xAB {
		t.Fatalf("swap-in byte 0 = %#x, want 0xab", fr3.KVA[0])
	}
	if p.Swapped() {
		t.Fatalf("expected page to no longer be swapped after swap-in")
	}
}

func TestFilePageReadsBackingBytesAndZeroPads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	data := make([]byte, 100)
	for i := range data {
		data[i] = 0xCD
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := vfile.Open(path)
	if err != nil {
		t.Fatalf("vfile.Open: %v", err)
	}

	pt := &mmu.PageTable{}
	frames := frame.New(2)
	sw := testPool(t, 2*defs.SectorsPerPage)

	aux := Aux{File: f, Offset: 0, ReadBytes: 100, ZeroBytes: defs.PageSize - 100}
	p := NewUninit(0x2000, true, defs.VMFile, nil, aux, pt, frames, sw)
	fr := frames.Acquire(pt)
	p.AttachFrame(fr)
	if err := p.SwapIn(fr.KVA); err != 0 {
		t.Fatalf("SwapIn: %v", err)
	}
	for i := 0; i < 100; i++ {
		if fr.KVA[i] != 0xCD {
			t.Fatalf("byte %d = %#x, want 0xcd", i, fr.KVA[i])
		}
	}
	for i := 100; i < defs.PageSize; i++ {
		if fr.KVA[i] != 0 {
			t.Fatalf("byte %d = %#x, want 0x00", i, fr.KVA[i])
		}
	}
}

func TestFilePageCleanSwapOutNeverWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := vfile.Open(path)
	if err != nil {
		t.Fatalf("vfile.Open: %v", err)
	}

	pt := &mmu.PageTable{}
	frames := frame.New(2)
	sw := testPool(t, 2*defs.SectorsPerPage)

	aux := Aux{File: f, Offset: 0, ReadBytes: 100, ZeroBytes: defs.PageSize - 100}
	p := NewUninit(0x3000, true, defs.VMFile, nil, aux, pt, frames, sw)
	fr := frames.Acquire(pt)
	p.AttachFrame(fr)
	if err := p.SwapIn(fr.KVA); err != 0 {
		t.Fatalf("SwapIn: %v", err)
	}
	// never written: pt's dirty bit stays clear.
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if err := p.SwapOut(); err != 0 {
		t.Fatalf("SwapOut: %v", err)
	}
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("clean page write-back modified the file")
	}
}

func TestFilePageDirtySwapOutWritesBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, make([]byte, 100), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	f, err := vfile.Open(path)
	if err != nil {
		t.Fatalf("vfile.Open: %v", err)
	}

	pt := &mmu.PageTable{}
	frames := frame.New(2)
	sw := testPool(t, 2*defs.SectorsPerPage)

	aux := Aux{File: f, Offset: 0, ReadBytes: 100, ZeroBytes: defs.PageSize - 100}
	p := NewUninit(0x4000, true, defs.VMFile, nil, aux, pt, frames, sw)
	fr := frames.Acquire(pt)
	p.AttachFrame(fr)
	pt.SetPage(p.VA(), fr.KVA, true)
	if err := p.SwapIn(fr.KVA); err != 0 {
		t.Fatalf("SwapIn: %v", err)
	}
	fr.KVA[0] = 0xEE
	pt.MarkWrite(p.VA())

	if err := p.SwapOut(); err != 0 {
		t.Fatalf("SwapOut: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got[0] != 0xEE {
		t.Fatalf("file byte 0 = %#x, want 0xee", got[0])
	}
}
