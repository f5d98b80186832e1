package frame

import (
	"testing"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
)

type fakeMMU struct{ cleared []uintptr }

func (m *fakeMMU) ClearPage(va uintptr) { m.cleared = append(m.cleared, va) }

type fakeEvictable struct {
	va        uintptr
	swapOutFn func() defs.Err_t
	cleared   bool
}

func (e *fakeEvictable) SwapOut() defs.Err_t { return e.swapOutFn() }
func (e *fakeEvictable) VA() uintptr         { return e.va }
func (e *fakeEvictable) ClearFrame()         { e.cleared = true }

func TestAcquireUnderCapacityNeverEvicts(t *testing.T) {
	tbl := New(4)
	m := &fakeMMU{}
	for i := 0; i < 4; i++ {
		if f := tbl.Acquire(m); f == nil || len(f.KVA) != defs.PageSize {
			t.Fatalf("Acquire %d: got %v", i, f)
		}
	}
	if tbl.InUse() != 4 {
		t.Fatalf("InUse = %d, want 4", tbl.InUse())
	}
	if len(m.cleared) != 0 {
		t.Fatalf("expected no evictions under capacity, cleared %v", m.cleared)
	}
}

func TestAcquireEvictsOldestOnExhaustion(t *testing.T) {
	tbl := New(1)
	m := &fakeMMU{}
	first := tbl.Acquire(m)
	owner := &fakeEvictable{va: 0x1000, swapOutFn: func() defs.Err_t { return 0 }}
	first.Page = owner

	second := tbl.Acquire(m)
	if second != first {
		t.Fatalf("expected the single frame to be reused, got a different frame")
	}
	if !owner.cleared {
		t.Fatalf("expected victim's ClearFrame to be called")
	}
	if len(m.cleared) != 1 || m.cleared[0] != 0x1000 {
		t.Fatalf("expected MMU cleared at 0x1000, got %v", m.cleared)
	}
}

func TestAcquirePanicsWhenSwapOutFails(t *testing.T) {
	tbl := New(1)
	m := &fakeMMU{}
	first := tbl.Acquire(m)
	first.Page = &fakeEvictable{va: 0x2000, swapOutFn: func() defs.Err_t { return defs.EFAULT }}

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic when eviction fails")
		}
	}()
	tbl.Acquire(m)
}

func TestReleaseFreesCapacity(t *testing.T) {
	tbl := New(1)
	m := &fakeMMU{}
	f := tbl.Acquire(m)
	tbl.Release(f)
	if tbl.InUse() != 0 {
		t.Fatalf("InUse after Release = %d, want 0", tbl.InUse())
	}
	// capacity is free again, so a second Acquire must not evict.
	if f2 := tbl.Acquire(m); f2 == nil {
		t.Fatalf("Acquire after Release failed")
	}
	if len(m.cleared) != 0 {
		t.Fatalf("unexpected eviction after Release freed capacity")
	}
}
