// Package oom carries out-of-memory notifications from the frame table
// to whatever daemon wants to react to them, adapted from the
// teacher's oommsg package (biscuit/src/oommsg/oommsg.go), which wires
// a single global channel between the physical memory allocator and a
// reaper goroutine. Here the same pattern notifies before the frame
// table would otherwise panic, giving a caller one chance to free
// pages (e.g. kill a process) before eviction is attempted again.
package oom

// Msg is sent on Ch when a frame Acquire finds the pool full and no
// frame on its list to evict, giving someone a chance to free frames
// before Acquire retries. Resume is closed
// (or sent true) once the receiver is done reacting; Acquire only
// waits on it if a listener is registered.
type Msg struct {
	Need   int
	Resume chan bool
}

// Ch is notified when the frame table is under pressure. It is
// unbuffered and has no listener by default — sends on it block
// forever unless something is listening, so production code must use
// TryNotify.
var Ch = make(chan Msg)

// TryNotify sends msg on Ch without blocking if nothing is listening,
// returning false immediately in that case.
func TryNotify(need int) (resume chan bool, notified bool) {
	resume = make(chan bool, 1)
	select {
	case Ch <- Msg{Need: need, Resume: resume}:
		return resume, true
	default:
		return nil, false
	}
}
