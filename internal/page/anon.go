package page

import (
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/klog"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vmevents"
)

// anonSwapIn locates the page's current swap slot if it has one, moves
// it back to free, clears page.sec_no, and reads its eight sectors into
// va. A page reaching here for the very first time (just upgraded from
// Uninit, never evicted) has no slot yet, so it is zero-filled instead:
// the frame may be a recycled eviction victim still holding another
// page's bytes.
func (p *Page) anonSwapIn(kva []byte) defs.Err_t {
	p.mu.Lock()
	slot := p.slot
	hasSec := p.hasSec
	sw := p.sw
	p.mu.Unlock()

	if !hasSec {
		for i := range kva {
			kva[i] = 0
		}
		return 0
	}

	if err := sw.ReadPage(slot, kva); err != nil {
		klog.Warnf("anon swap-in at %#x: %v", p.VAddr, err)
		return defs.EFAULT
	}
	sw.Free(slot)

	p.mu.Lock()
	p.slot = nil
	p.hasSec = false
	p.mu.Unlock()

	klog.Global.SwapIns.Inc()
	klog.Record(vmevents.SwapIn, p.VAddr)
	return 0
}

// anonSwapOut allocates a free slot, records its sector in page.sec_no,
// and writes the frame's eight sectors to the swap disk.
func (p *Page) anonSwapOut() defs.Err_t {
	p.mu.Lock()
	fr := p.fr
	sw := p.sw
	p.mu.Unlock()

	if fr == nil {
		panic("page: anon swap_out on non-resident page")
	}

	slot := sw.Alloc()
	if err := sw.WritePage(slot, fr.KVA); err != nil {
		sw.Free(slot)
		panic("page: anon swap_out I/O failure: " + err.Error())
	}

	p.mu.Lock()
	p.slot = slot
	p.hasSec = true
	p.mu.Unlock()

	klog.Global.SwapOuts.Inc()
	klog.Record(vmevents.SwapOut, p.VAddr)
	return 0
}

// anonDestroy frees the page's swap slot if it has one; else, if
// resident, removes the frame from the frame table. The aux record for
// an Anon page carries no resources to free: aux.File is never
// populated for anon pages, regardless of what the duplicator may have
// written there.
func (p *Page) anonDestroy() {
	p.mu.Lock()
	slot := p.slot
	hasSec := p.hasSec
	fr := p.fr
	frames := p.frames
	p.mu.Unlock()

	if hasSec {
		p.sw.Free(slot)
		p.mu.Lock()
		p.slot = nil
		p.hasSec = false
		p.mu.Unlock()
		return
	}
	if fr != nil {
		frames.Release(fr)
		p.mu.Lock()
		p.fr = nil
		p.mu.Unlock()
	}
}
