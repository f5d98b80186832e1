// Package mmu simulates the narrow MMU collaborator the VM core needs:
// set_page, clear_page, is_dirty, set_dirty, get_page. A kernel running
// on real hardware would install these as literal page-table-entry
// writes; here, one per-address-space PageTable models the same
// four-state contract (present/absent, writable, dirty) with a plain
// map, so the rest of the VM core can be exercised without real page
// tables.
package mmu

import "sync"

// PTE is one simulated page table entry.
type PTE struct {
	KVA      []byte
	Writable bool
	Dirty    bool
}

// PageTable is one address space's simulated pml4. The zero value is
// ready to use.
type PageTable struct {
	mu      sync.Mutex
	entries map[uintptr]*PTE
}

// SetPage installs a mapping from va to the physical frame backed by
// kva, with the given writable permission (pml4_set_page). The dirty
// bit starts clear, as a freshly faulted-in page always is.
func (pt *PageTable) SetPage(va uintptr, kva []byte, writable bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if pt.entries == nil {
		pt.entries = make(map[uintptr]*PTE)
	}
	pt.entries[va] = &PTE{KVA: kva, Writable: writable}
}

// ClearPage removes the mapping at va, if any (pml4_clear_page). A
// subsequent access traps.
func (pt *PageTable) ClearPage(va uintptr) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	delete(pt.entries, va)
}

// GetPage returns the kernel-virtual mapping for va, if present
// (pml4_get_page).
func (pt *PageTable) GetPage(va uintptr) ([]byte, bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	e, ok := pt.entries[va]
	if !ok {
		return nil, false
	}
	return e.KVA, true
}

// IsDirty reports whether va's mapping has been written to since it was
// last cleared (pml4_is_dirty). It returns false if va is unmapped.
func (pt *PageTable) IsDirty(va uintptr) bool {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	e, ok := pt.entries[va]
	return ok && e.Dirty
}

// SetDirty sets or clears the dirty bit for va's mapping
// (pml4_set_dirty). It is a no-op if va is unmapped.
func (pt *PageTable) SetDirty(va uintptr, dirty bool) {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	if e, ok := pt.entries[va]; ok {
		e.Dirty = dirty
	}
}

// MarkWrite records a user write to va, setting the dirty bit. Real
// hardware does this automatically on every store through a writable
// PTE; this method is the simulation's stand-in for that hardware
// behavior and must be called by anything that writes through a
// mapping installed via SetPage.
func (pt *PageTable) MarkWrite(va uintptr) {
	pt.SetDirty(va, true)
}
