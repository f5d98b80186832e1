// Package frame implements the physical frame pool and the per-process
// frame table that guarantees Acquire always returns a usable frame,
// evicting via FIFO victim selection when the pool is exhausted.
package frame

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/diag"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/klog"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/oom"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vmevents"
)

// Evictable is implemented by whatever currently owns a Frame (a
// page.Page, in this repository). Table.Acquire calls SwapOut on the
// victim with the frame lock already released: eviction I/O must never
// run while holding the frame lock.
type Evictable interface {
	// SwapOut moves this owner's contents off the frame (to swap, or
	// to its backing file) so the frame can be reused.
	SwapOut() defs.Err_t
	// VA returns the owner's virtual address, used to clear the MMU
	// mapping during eviction.
	VA() uintptr
	// ClearFrame breaks the owner's reference to its frame. Called
	// after SwapOut succeeds.
	ClearFrame()
}

// MMU is the narrow subset of mmu.PageTable the eviction protocol
// needs: clearing the mapping so a subsequent access traps.
type MMU interface {
	ClearPage(va uintptr)
}

// Frame owns one simulated physical page and a back-reference to its
// current occupant.
type Frame struct {
	KVA  []byte
	Page Evictable

	elem *list.Element
}

// Table is a per-process frame table: an intrusive FIFO list of live
// frames plus the capacity-bounded pool they're drawn from. The zero
// value is not ready; use New.
type Table struct {
	mu       sync.Mutex // frame_lock
	list     *list.List
	capacity int
	inuse    int
}

// New creates a frame table that can hold at most capacity frames
// before Acquire must evict.
func New(capacity int) *Table {
	return &Table{list: list.New(), capacity: capacity}
}

// Acquire returns a frame for a new page, evicting the oldest frame in
// this table if the pool is full and clearing the victim's MMU mapping
// before the frame is reused. m is the owning address space's page
// table; frames are only ever evicted from the process that owns this
// particular Table, so the frame table itself stays address-space
// agnostic aside from this parameter.
//
// Acquire never returns an error unless the victim's SwapOut itself
// fails (e.g. swap is also exhausted), in which case it panics: there
// is no recovery path.
func (t *Table) Acquire(m MMU) *Frame {
	t.mu.Lock()
	if t.inuse < t.capacity {
		t.inuse++
		f := &Frame{KVA: make([]byte, defs.PageSize)}
		f.elem = t.list.PushBack(f)
		t.mu.Unlock()
		return f
	}
	front := t.list.Front()
	if front == nil {
		t.mu.Unlock()
		if resume, notified := oom.TryNotify(1); notified {
			<-resume
			return t.Acquire(m)
		}
		diag.Dump("frame table: memory and swap full")
		panic("memory and swap full")
	}
	victim := front.Value.(*Frame)
	t.list.Remove(front)
	t.mu.Unlock()

	klog.Global.Evictions.Inc()
	va := victim.Page.VA()
	klog.Record(vmevents.Eviction, va)
	var err defs.Err_t
	klog.TimeEviction(func() {
		err = victim.Page.SwapOut()
	})
	if err != 0 {
		diag.Dump(fmt.Sprintf("frame table: eviction failed: %v", err))
		panic("memory and swap full")
	}
	m.ClearPage(va)
	victim.Page.ClearFrame()
	victim.Page = nil

	t.mu.Lock()
	f := victim
	f.elem = t.list.PushBack(f)
	t.mu.Unlock()
	return f
}

// Release removes frame from the table and returns its page to the
// free pool; used when a page is destroyed while resident.
func (t *Table) Release(f *Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f.elem != nil {
		t.list.Remove(f.elem)
		f.elem = nil
		t.inuse--
	}
}

// InUse reports how many frames this table currently holds, for
// vmmetrics and for tests asserting lazy allocation: a newly allocated
// non-stack page occupies no frame.
func (t *Table) InUse() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inuse
}

// Capacity returns the table's frame budget.
func (t *Table) Capacity() int { return t.capacity }
