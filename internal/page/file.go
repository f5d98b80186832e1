package page

import (
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/klog"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vmevents"
)

// fileSwapIn captures the MMU dirty bit (it should be clear on first
// fault; preserved across swap-in so a re-fault after eviction doesn't
// lose a dirty mapping's status), reads read_bytes from (file, offset),
// zero-fills the remaining zero_bytes, then restores the captured dirty
// bit.
func (p *Page) fileSwapIn(kva []byte) defs.Err_t {
	p.mu.Lock()
	f := p.file
	off := p.offset
	readBytes := p.readBytes
	zeroBytes := p.zeroBytes
	pt := p.pt
	va := p.VAddr
	p.mu.Unlock()

	dirty := pt.IsDirty(va)

	n, err := f.ReadAt(kva[:readBytes], off)
	if err != nil {
		klog.Warnf("file swap-in at %#x: %v", va, err)
		return defs.EFAULT
	}
	if n != readBytes {
		klog.Warnf("file swap-in at %#x: short read (%d/%d)", va, n, readBytes)
		return defs.EFAULT
	}
	for i := 0; i < zeroBytes; i++ {
		kva[readBytes+i] = 0
	}

	pt.SetDirty(va, dirty)
	klog.Global.SwapIns.Inc()
	klog.Record(vmevents.SwapIn, va)
	return 0
}

// fileSwapOut writes back only if the MMU dirty bit is set, then clears
// it; otherwise no I/O at all.
func (p *Page) fileSwapOut() defs.Err_t {
	p.mu.Lock()
	f := p.file
	off := p.offset
	readBytes := p.readBytes
	pt := p.pt
	va := p.VAddr
	fr := p.fr
	p.mu.Unlock()

	if fr == nil {
		panic("page: file swap_out on non-resident page")
	}
	if !pt.IsDirty(va) {
		return 0
	}
	if _, err := f.WriteAt(fr.KVA[:readBytes], off); err != nil {
		klog.Warnf("file swap-out at %#x: %v", va, err)
		return defs.EFAULT
	}
	pt.SetDirty(va, false)
	klog.Global.FileWritebacks.Inc()
	klog.Record(vmevents.Writeback, va)
	return 0
}

// fileDestroy removes the frame from the frame list if resident, closes
// the per-page file handle, and frees the aux. The file handle is
// closed here and only here; Munmap reaches this through SPT.Remove,
// after its write-back.
func (p *Page) fileDestroy() {
	p.mu.Lock()
	fr := p.fr
	frames := p.frames
	f := p.file
	p.mu.Unlock()

	if fr != nil {
		frames.Release(fr)
		p.mu.Lock()
		p.fr = nil
		p.mu.Unlock()
	}
	if f != nil {
		f.Close()
	}
}

// WritebackIfDirty performs the write-back half of Munmap for a single
// resident page, without touching the file handle or the frame table:
// write-back happens before the mapping clears, and the handle is
// closed only at Destroy. It is a no-op if the page is not resident or
// not dirty.
func (p *Page) WritebackIfDirty() defs.Err_t {
	p.mu.Lock()
	fr := p.fr
	variant := p.variant
	p.mu.Unlock()
	if fr == nil || variant != defs.VMFile {
		return 0
	}
	return p.fileSwapOut()
}

// ClearMapping drops the MMU mapping for this page's virtual address,
// the second half of Munmap.
func (p *Page) ClearMapping() {
	p.pt.ClearPage(p.VAddr)
}
