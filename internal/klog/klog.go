// Package klog is the VM subsystem's console logger and statistics
// block.
package klog

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vmevents"
)

// Debug gates verbose tracing of the fault/eviction path. Flipped by
// hand during development.
const Debug = false

// Tracef logs a trace message when Debug is enabled.
func Tracef(format string, args ...any) {
	if Debug {
		fmt.Printf("vm: "+format+"\n", args...)
	}
}

// Warnf always logs; reserved for conditions the caller recovers from
// but that operators should see (e.g. a short file read during swap-in).
func Warnf(format string, args ...any) {
	fmt.Printf("vm: warning: "+format+"\n", args...)
}

// Counter is a monotonically increasing statistic.
type Counter struct{ n int64 }

// Inc increments the counter by one.
func (c *Counter) Inc() { atomic.AddInt64(&c.n, 1) }

// Add increments the counter by delta.
func (c *Counter) Add(delta int64) { atomic.AddInt64(&c.n, delta) }

// Load returns the current value.
func (c *Counter) Load() int64 { return atomic.LoadInt64(&c.n) }

// Gauge holds a value that can go up or down, e.g. frames currently
// resident or swap slots currently in use.
type Gauge struct{ n int64 }

// Set stores v.
func (g *Gauge) Set(v int64) { atomic.StoreInt64(&g.n, v) }

// Add adds delta (which may be negative).
func (g *Gauge) Add(delta int64) { atomic.AddInt64(&g.n, delta) }

// Load returns the current value.
func (g *Gauge) Load() int64 { return atomic.LoadInt64(&g.n) }

// Stats is the VM subsystem's running counters. Every field is exported
// so vmmetrics can walk it directly.
type Stats struct {
	PageFaults      Counter
	Evictions       Counter
	SwapIns         Counter
	SwapOuts        Counter
	FileWritebacks  Counter
	StackGrowths    Counter
	FramesInUse     Gauge
	SwapSlotsInUse  Gauge
	SwapSlotsFree   Gauge
	LastEvictionDur int64 // nanoseconds, last observed eviction latency
}

// Global is the process-wide stats block. A real multi-address-space
// kernel would keep one per process; this teaching implementation
// tracks a single shared instance, matching the single-process demo
// harness in cmd/vmctl.
var Global Stats

// TimeEviction records how long the victim's swap_out took, used for
// LastEvictionDur. The MMU invalidation that follows is not timed.
func TimeEviction(f func()) {
	start := time.Now()
	f()
	atomic.StoreInt64(&Global.LastEvictionDur, int64(time.Since(start)))
}

var (
	eventsMu sync.Mutex
	events   = vmevents.New(128)
)

// Record appends an event to the shared recent-events ring, guarded by
// a mutex since many goroutines touch the VM subsystem concurrently.
func Record(k vmevents.Kind, va uintptr) {
	eventsMu.Lock()
	events.Record(k, va)
	eventsMu.Unlock()
}

// DumpEvents prints the recent-events ring, meant to run right after
// diag.Dump on a fatal VM panic.
func DumpEvents() {
	eventsMu.Lock()
	defer eventsMu.Unlock()
	events.Dump()
}

// RecentEvents returns a snapshot of the recent-events ring, oldest
// first, for building a pprof profile out of it.
func RecentEvents() []vmevents.Event {
	eventsMu.Lock()
	defer eventsMu.Unlock()
	return events.Recent()
}
