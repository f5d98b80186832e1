// Package vmfork duplicates one process's address space into a freshly
// initialized child SPT. Per-page work is independent, so pages fork
// concurrently via golang.org/x/sync/errgroup: any single page's
// failure tears down every page already copied into the child.
package vmfork

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/klog"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/page"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/spt"
)

// Copy duplicates every page in src into dst (supplemental_page_table_copy).
// It is all-or-nothing: if any page fails to fork, every page already
// installed into dst is torn down and Copy returns false.
func Copy(dst, src *spt.SPT) bool {
	pages := src.AllPages()

	var g errgroup.Group
	for _, p := range pages {
		p := p
		g.Go(func() error {
			if err := forkPage(dst, p); err != 0 {
				return fmt.Errorf("fork page %#x: %w", p.VA(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		klog.Warnf("vmfork: aborting copy: %v", err)
		for _, p := range dst.AllPages() {
			dst.Remove(p)
		}
		return false
	}

	for _, head := range src.MmapHeads() {
		child, ok := dst.Find(head.VA())
		if !ok {
			continue
		}
		dst.AppendMmap(child)
	}
	dst.SetStackTop(src.StackTop())
	return true
}

// forkPage creates dst's counterpart of p and links it in. Stack pages
// are always claimed immediately in the child, matching how they were
// allocated in the parent; every other page preserves its parent's
// residency/swapped/lazy state as closely as a fresh address space can.
func forkPage(dst *spt.SPT, p *page.Page) defs.Err_t {
	va := p.VA()
	writable := p.Writable

	if p.IsStack() {
		if !dst.AllocPage(defs.VMAnon|defs.VMMarkerStack, va, writable) {
			return defs.ENOMEM
		}
		child, _ := dst.Find(va)
		switch {
		case p.Swapped():
			if err := dst.Swap.ReadPage(p.SwapSlot(), child.Frame().KVA); err != nil {
				return defs.EFAULT
			}
		case p.Resident():
			copy(child.Frame().KVA, p.Frame().KVA)
		}
		child.PageCount = p.PageCount
		return 0
	}

	switch p.Variant() {
	case defs.VMUninit:
		initType, init, aux := p.UninitState()
		if aux.File != nil {
			dup, err := aux.File.Duplicate()
			if err != nil {
				return defs.EFAULT
			}
			aux.File = dup
		}
		if !dst.AllocPageWithInitializer(initType, va, writable, init, aux) {
			return defs.ENOMEM
		}
		child, _ := dst.Find(va)
		child.PageCount = p.PageCount
		return 0

	case defs.VMAnon:
		if p.Swapped() {
			childSlot, err := dst.Swap.Copy(p.SwapSlot())
			if err != nil {
				return defs.EFAULT
			}
			child := page.NewSwapped(va, writable, childSlot, dst.PT, dst.Frames, dst.Swap)
			if dst.Insert(child) != 0 {
				return defs.EEXIST
			}
			child.PageCount = p.PageCount
			return 0
		}
		if !dst.AllocPage(defs.VMAnon, va, writable) {
			return defs.ENOMEM
		}
		child, _ := dst.Find(va)
		if p.Resident() {
			if err := dst.Claim(child); err != 0 {
				return err
			}
			copy(child.Frame().KVA, p.Frame().KVA)
		}
		child.PageCount = p.PageCount
		return 0

	case defs.VMFile:
		f, offset, readBytes, zeroBytes := p.FileState()
		dup, err := f.Duplicate()
		if err != nil {
			return defs.EFAULT
		}
		aux := page.Aux{File: dup, Offset: offset, ReadBytes: readBytes, ZeroBytes: zeroBytes}
		if !dst.AllocPageWithInitializer(defs.VMFile, va, writable, nil, aux) {
			return defs.ENOMEM
		}
		child, _ := dst.Find(va)
		if p.Resident() {
			if cerr := dst.Claim(child); cerr != 0 {
				return cerr
			}
			copy(child.Frame().KVA, p.Frame().KVA)
		}
		child.PageCount = p.PageCount
		return 0

	default:
		return defs.EINVAL
	}
}
