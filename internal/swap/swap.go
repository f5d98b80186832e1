// Package swap implements the fixed-size swap slot pool living on the
// swap disk: a free list and a used list of slots, with disk I/O going
// through internal/diskio.
package swap

import (
	"container/list"
	"sync"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/defs"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/diskio"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/limitpool"
)

// Slot identifies one page-sized swap region by its starting sector.
// Its identity is stable for the slot's lifetime.
type Slot struct {
	SecNo int
	elem  *list.Element
}

// Pool manages the swap disk's slots as two intrusive lists, free and
// used, protected by swap_lock. The lock is held only while the lists
// are updated, never across the disk I/O in ReadPage/WritePage/Copy.
type Pool struct {
	mu    sync.Mutex // swap_lock
	disk  *diskio.Disk
	free  *list.List
	used  *list.List
	limit *limitpool.Counter
}

// New seeds a Pool by enumerating sec_no = 0, 8, 16, ... up to the
// disk's capacity. The pool's total size is fixed at construction and
// never changes afterward.
func New(disk *diskio.Disk) *Pool {
	p := &Pool{disk: disk, free: list.New(), used: list.New()}
	n := 0
	for sec := 0; sec+defs.SectorsPerPage <= disk.Size(); sec += defs.SectorsPerPage {
		s := &Slot{SecNo: sec}
		s.elem = p.free.PushBack(s)
		n++
	}
	p.limit = limitpool.New(n)
	return p
}

// Total returns the pool's fixed slot count.
func (p *Pool) Total() int { return p.limit.Capacity() }

// FreeCount and UsedCount support the free+used == total conservation
// check; UsedCount also feeds the vm_swap_slots_in_use metric.
func (p *Pool) FreeCount() int { return p.limit.Free() }
func (p *Pool) UsedCount() int { return p.limit.Taken() }

// Alloc pops the head of the free list and pushes it onto the head of
// the used list. This fails only when the free list is empty, and that
// failure is fatal: "memory and swap full" has no recovery path, so
// Alloc panics rather than returning an error, exactly as the frame
// table's Acquire does for physical memory.
func (p *Pool) Alloc() *Slot {
	p.mu.Lock()
	front := p.free.Front()
	if front == nil {
		p.mu.Unlock()
		panic("memory and swap full")
	}
	p.free.Remove(front)
	s := front.Value.(*Slot)
	s.elem = p.used.PushFront(s)
	if !p.limit.Take() {
		panic("memory and swap full")
	}
	p.mu.Unlock()
	return s
}

// Free moves slot from the used list to the head of the free list.
func (p *Pool) Free(s *Slot) {
	p.mu.Lock()
	if s.elem != nil {
		p.used.Remove(s.elem)
	}
	s.elem = p.free.PushFront(s)
	p.limit.Give()
	p.mu.Unlock()
}

// ReadPage reads the full page backing slot into buf, which must be at
// least defs.PageSize bytes.
func (p *Pool) ReadPage(s *Slot, buf []byte) error {
	sector := make([]byte, diskio.SectorSize)
	for i := 0; i < defs.SectorsPerPage; i++ {
		if err := p.disk.ReadSector(s.SecNo+i, sector); err != nil {
			return err
		}
		copy(buf[i*diskio.SectorSize:(i+1)*diskio.SectorSize], sector)
	}
	return nil
}

// WritePage writes the full page in buf to slot.
func (p *Pool) WritePage(s *Slot, buf []byte) error {
	for i := 0; i < defs.SectorsPerPage; i++ {
		off := i * diskio.SectorSize
		if err := p.disk.WriteSector(s.SecNo+i, buf[off:off+diskio.SectorSize]); err != nil {
			return err
		}
	}
	return nil
}

// Copy allocates a fresh slot and copies src's eight sectors into it
// sector by sector, used only by the address-space duplicator (fork)
// to give the child a byte-identical, independent swap image.
func (p *Pool) Copy(src *Slot) (*Slot, error) {
	dst := p.Alloc()
	sector := make([]byte, diskio.SectorSize)
	for i := 0; i < defs.SectorsPerPage; i++ {
		if err := p.disk.ReadSector(src.SecNo+i, sector); err != nil {
			p.Free(dst)
			return nil, err
		}
		if err := p.disk.WriteSector(dst.SecNo+i, sector); err != nil {
			p.Free(dst)
			return nil, err
		}
	}
	return dst, nil
}
