package swap

import (
	"path/filepath"
	"testing"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/diskio"
)

func newTestPool(t *testing.T, sectors int) *Pool {
	t.Helper()
	disk, err := diskio.Open(filepath.Join(t.TempDir(), "swap.img"), sectors)
	if err != nil {
		t.Fatalf("diskio.Open: %v", err)
	}
	t.Cleanup(func() { disk.Close() })
	return New(disk)
}

func TestPoolConservation(t *testing.T) {
	p := newTestPool(t, 8*defs.SectorsPerPage)
	total := p.Total()
	if total != 8 {
		t.Fatalf("Total = %d, want 8", total)
	}

	var slots []*Slot
	for i := 0; i < total; i++ {
		slots = append(slots, p.Alloc())
	}
	if p.FreeCount()+p.UsedCount() != total {
		t.Fatalf("free=%d used=%d, want sum %d", p.FreeCount(), p.UsedCount(), total)
	}
	if p.FreeCount() != 0 {
		t.Fatalf("FreeCount = %d, want 0 once fully allocated", p.FreeCount())
	}

	for _, s := range slots {
		p.Free(s)
	}
	if p.FreeCount()+p.UsedCount() != total {
		t.Fatalf("free=%d used=%d after freeing all, want sum %d", p.FreeCount(), p.UsedCount(), total)
	}
	if p.UsedCount() != 0 {
		t.Fatalf("UsedCount = %d, want 0 once all freed", p.UsedCount())
	}
}

func TestPoolAllocPanicsWhenExhausted(t *testing.T) {
	p := newTestPool(t, defs.SectorsPerPage)
	p.Alloc()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic allocating from an empty pool")
		}
	}()
	p.Alloc()
}

func TestReadWritePageRoundTrip(t *testing.T) {
	p := newTestPool(t, 2*defs.SectorsPerPage)
	slot := p.Alloc()

	want := make([]byte, defs.PageSize)
	for i := range want {
		want[i] = byte(i)
	}
	if err := p.WritePage(slot, want); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got := make([]byte, defs.PageSize)
	if err := p.ReadPage(slot, got); err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d: got %#x want %#x", i, got[i], want[i])
		}
	}
}

func TestCopyProducesIndependentSlot(t *testing.T) {
	p := newTestPool(t, 2*defs.SectorsPerPage)
	src := p.Alloc()
	data := make([]byte, defs.PageSize)
	for i := range data {
		data[i] = 0x42
	}
	if err := p.WritePage(src, data); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	dst, err := p.Copy(src)
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if dst.SecNo == src.SecNo {
		t.Fatalf("Copy returned the same slot as its source")
	}

	modified := make([]byte, defs.PageSize)
	for i := range modified {
		modified[i] = 0x99
	}
	if err := p.WritePage(src, modified); err != nil {
		t.Fatalf("WritePage to src: %v", err)
	}

	got := make([]byte, defs.PageSize)
	if err := p.ReadPage(dst, got); err != nil {
		t.Fatalf("ReadPage dst: %v", err)
	}
	for i := range got {
		if got[i] != 0x42 {
			t.Fatalf("dst byte %d changed after writing to src: got %#x", i, got[i])
		}
	}
}
