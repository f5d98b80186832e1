// Command vmctl drives the supplemental virtual memory subsystem end
// to end against real temp-file-backed disks, exercising the scenarios
// a correct implementation must pass. Flag parsing follows the
// teacher's stack (gopkg.in/alecthomas/kingpin.v2, mined from the
// talyz-systemd_exporter example's go.mod) and summary output is
// formatted with golang.org/x/text/message for locale-aware number
// grouping, the same way that example formats counters.
package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/diag"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/diskio"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/fault"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/frame"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/klog"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/mmu"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/swap"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vfile"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vm"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/vmmetrics"
)

var (
	app = kingpin.New("vmctl", "Exercise the supplemental VM subsystem against real backing files.")

	frameCapacity = app.Flag("frames", "Frame pool capacity.").Default("8").Int()
	swapSectors   = app.Flag("swap-sectors", "Swap disk size, in 512-byte sectors.").Default("1024").Int()
	scenario      = app.Flag("scenario", "Run only this scenario number (1-6); 0 runs all.").Default("0").Int()
	workdir       = app.Flag("workdir", "Directory for scratch disk/file images.").Default("").String()
	metricsAddr   = app.Flag("metrics-addr", "If set, serve Prometheus metrics at this address (e.g. :9100) after the scenario run, blocking until killed.").Default("").String()
	eventProfile  = app.Flag("event-profile", "Path to write a pprof profile of the recent fault/eviction event ring on failure.").Default("").String()
)

// lastPools remembers the most recently constructed frame table and
// swap pool, so --metrics-addr has something live to report on: each
// scenario gets its own pools via newAddressSpace, and the demo only
// ever serves metrics for one address space at a time.
var lastPools struct {
	frames *frame.Table
	swap   *swap.Pool
}

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	dir := *workdir
	if dir == "" {
		d, err := os.MkdirTemp("", "vmctl-")
		if err != nil {
			fmt.Fprintln(os.Stderr, "vmctl:", err)
			os.Exit(1)
		}
		dir = d
		defer os.RemoveAll(dir)
	}

	p := message.NewPrinter(language.English)

	results := runScenarios(dir, *scenario)
	fail := false
	for _, r := range results {
		status := "ok"
		if !r.ok {
			status = "FAIL: " + r.reason
			fail = true
		}
		p.Printf("scenario %d (%s): %s\n", r.num, r.name, status)
	}

	p.Printf("\nfaults=%d evictions=%d swap_ins=%d swap_outs=%d writebacks=%d stack_growths=%d\n",
		klog.Global.PageFaults.Load(), klog.Global.Evictions.Load(), klog.Global.SwapIns.Load(),
		klog.Global.SwapOuts.Load(), klog.Global.FileWritebacks.Load(), klog.Global.StackGrowths.Load())

	if fail {
		diag.Dump("vmctl: one or more scenarios failed")
		klog.DumpEvents()
		if *eventProfile != "" {
			if err := writeEventProfile(*eventProfile); err != nil {
				fmt.Fprintln(os.Stderr, "vmctl: event profile:", err)
			}
		}
		os.Exit(1)
	}

	if *metricsAddr != "" {
		serveMetrics(*metricsAddr)
	}
}

// writeEventProfile dumps the recent fault/eviction event ring as a
// pprof profile alongside the diag.Dump/klog.DumpEvents console
// output, giving a postmortem a file to open in `go tool pprof`.
func writeEventProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return vmmetrics.DumpEventProfile(f, klog.RecentEvents())
}

// serveMetrics registers a collector over the most recently built
// frame table and swap pool and blocks serving /metrics until killed.
// Since every scenario builds its own address space, this reports on
// whichever scenario ran last (or the only one, under --scenario).
func serveMetrics(addr string) {
	if lastPools.frames == nil || lastPools.swap == nil {
		fmt.Fprintln(os.Stderr, "vmctl: --metrics-addr requested but no address space was built")
		return
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(vmmetrics.New(lastPools.frames, lastPools.swap))
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	fmt.Printf("vmctl: serving /metrics on %s\n", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		fmt.Fprintln(os.Stderr, "vmctl: metrics server:", err)
	}
}

type result struct {
	num    int
	name   string
	ok     bool
	reason string
}

func runScenarios(dir string, only int) []result {
	defs := []struct {
		num  int
		name string
		run  func(dir string) error
	}{
		{1, "mmap read-through", scenarioMmapRead},
		{2, "mmap dirty write-back", scenarioMmapWriteback},
		{3, "anon eviction round-trip", scenarioAnonEviction},
		{4, "stack auto-growth", scenarioStackGrowth},
		{5, "fork content equivalence", scenarioFork},
		{6, "mmap overlap rejection", scenarioMmapOverlap},
	}

	var out []result
	for _, d := range defs {
		if only != 0 && only != d.num {
			continue
		}
		scratch := filepath.Join(dir, fmt.Sprintf("s%d", d.num))
		if err := os.MkdirAll(scratch, 0o755); err != nil {
			out = append(out, result{d.num, d.name, false, err.Error()})
			continue
		}
		if err := d.run(scratch); err != nil {
			out = append(out, result{d.num, d.name, false, err.Error()})
			continue
		}
		out = append(out, result{d.num, d.name, true, ""})
	}
	return out
}

func newAddressSpace(dir string) (*vm.AddressSpace, error) {
	disk, err := diskio.Open(filepath.Join(dir, "swap.img"), *swapSectors)
	if err != nil {
		return nil, err
	}
	sw := swap.New(disk)
	frames := frame.New(*frameCapacity)
	pt := &mmu.PageTable{}
	lastPools.frames = frames
	lastPools.swap = sw
	return vm.Init(frames, sw, pt), nil
}

// touch resolves a lazy page at va by faulting it in through the
// normal handler path, rather than calling ClaimPage directly, so the
// scenarios exercise vm_try_handle_fault the way a real access would.
func touch(as *vm.AddressSpace, va uintptr, write bool) bool {
	pageVA := va &^ uintptr(0xFFF)
	p, ok := as.SPT.Find(pageVA)
	if !ok {
		return false
	}
	if p.Resident() {
		return true
	}
	return vm.TryHandleFault(as, fault.Frame{}, pageVA, true, write, true)
}

func readByte(as *vm.AddressSpace, va uintptr) (byte, bool) {
	if !touch(as, va, false) {
		return 0, false
	}
	p, ok := as.SPT.Find(va &^ uintptr(0xFFF))
	if !ok {
		return 0, false
	}
	fr := p.Frame()
	if fr == nil {
		return 0, false
	}
	return fr.KVA[va&0xFFF], true
}

func writeByte(as *vm.AddressSpace, va uintptr, b byte) bool {
	if !touch(as, va, true) {
		return false
	}
	p, ok := as.SPT.Find(va &^ uintptr(0xFFF))
	if !ok {
		return false
	}
	fr := p.Frame()
	if fr == nil {
		return false
	}
	fr.KVA[va&0xFFF] = b
	as.SPT.PT.MarkWrite(va &^ uintptr(0xFFF))
	return true
}

func scenarioMmapRead(dir string) error {
	as, err := newAddressSpace(dir)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "f.bin")
	buf := make([]byte, 5000)
	for i := range buf {
		buf[i] = 0xAB
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return err
	}
	f, err := vfile.Open(path)
	if err != nil {
		return err
	}
	addr := uintptr(0x10000000)
	if _, ok := vm.Mmap(as, addr, 5000, true, f, 0); !ok {
		return fmt.Errorf("mmap failed")
	}
	for i := 0; i < 5000; i++ {
		b, ok := readByte(as, addr+uintptr(i))
		if !ok || b != 0xAB {
			return fmt.Errorf("byte %d: got %#x ok=%v, want 0xab", i, b, ok)
		}
	}
	for i := 5000; i < 8192; i++ {
		b, ok := readByte(as, addr+uintptr(i))
		if !ok || b != 0x00 {
			return fmt.Errorf("byte %d: got %#x ok=%v, want 0x00", i, b, ok)
		}
	}
	return nil
}

func scenarioMmapWriteback(dir string) error {
	as, err := newAddressSpace(dir)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "f.bin")
	buf := make([]byte, 5000)
	for i := range buf {
		buf[i] = 0xAB
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return err
	}
	f, err := vfile.Open(path)
	if err != nil {
		return err
	}
	addr := uintptr(0x10000000)
	if _, ok := vm.Mmap(as, addr, 5000, true, f, 0); !ok {
		return fmt.Errorf("mmap failed")
	}
	for i := 0; i < 4096; i++ {
		if !writeByte(as, addr+uintptr(i), 0xCC) {
			return fmt.Errorf("write %d failed", i)
		}
	}
	if !vm.Munmap(as, addr) {
		return fmt.Errorf("munmap failed")
	}
	got, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for i := 0; i < 4096; i++ {
		if got[i] != 0xCC {
			return fmt.Errorf("file byte %d: got %#x want 0xcc", i, got[i])
		}
	}
	for i := 4096; i < 5000; i++ {
		if got[i] != 0xAB {
			return fmt.Errorf("file byte %d: got %#x want 0xab", i, got[i])
		}
	}
	return nil
}

func scenarioAnonEviction(dir string) error {
	as, err := newAddressSpace(dir)
	if err != nil {
		return err
	}
	const n = 100
	base := uintptr(0x20000000)
	stride := uintptr(0x1000)
	for i := 0; i < n; i++ {
		va := base + uintptr(i)*stride
		if !vm.AllocPage(as, 1 /* VMAnon */, va, true) {
			return fmt.Errorf("alloc page %d failed", i)
		}
		if !writeByte(as, va, byte(i)) {
			return fmt.Errorf("write page %d failed", i)
		}
	}
	for i := 0; i < n; i++ {
		va := base + uintptr(i)*stride
		b, ok := readByte(as, va)
		if !ok || b != byte(i) {
			return fmt.Errorf("page %d: got %#x ok=%v, want %#x", i, b, ok, byte(i))
		}
	}
	return nil
}

func scenarioStackGrowth(dir string) error {
	as, err := newAddressSpace(dir)
	if err != nil {
		return err
	}
	top := uintptr(0x47480000) // defs.USERStackTop
	rsp := top - 0x1000
	growVA := rsp - 8
	if !vm.TryHandleFault(as, fault.Frame{RSP: rsp}, growVA, true, true, true) {
		return fmt.Errorf("expected stack growth at rsp-8 to succeed")
	}
	belowFloor := top - 2<<20
	if vm.TryHandleFault(as, fault.Frame{RSP: rsp}, belowFloor, true, true, true) {
		return fmt.Errorf("expected access 2MiB below top to fail")
	}
	return nil
}

func scenarioFork(dir string) error {
	parent, err := newAddressSpace(dir)
	if err != nil {
		return err
	}
	va := uintptr(0x30000000)
	if !vm.AllocPage(parent, 1 /* VMAnon */, va, true) {
		return fmt.Errorf("alloc failed")
	}
	if !writeByte(parent, va, 0x11) {
		return fmt.Errorf("parent write failed")
	}
	child := vm.Copy(parent)
	if child == nil {
		return fmt.Errorf("fork failed")
	}
	if !writeByte(child, va, 0x22) {
		return fmt.Errorf("child write failed")
	}
	pb, ok := readByte(parent, va)
	if !ok || pb != 0x11 {
		return fmt.Errorf("parent byte: got %#x ok=%v, want 0x11", pb, ok)
	}
	cb, ok := readByte(child, va)
	if !ok || cb != 0x22 {
		return fmt.Errorf("child byte: got %#x ok=%v, want 0x22", cb, ok)
	}
	return nil
}

func scenarioMmapOverlap(dir string) error {
	as, err := newAddressSpace(dir)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, make([]byte, 8192), 0o644); err != nil {
		return err
	}
	f1, err := vfile.Open(path)
	if err != nil {
		return err
	}
	addr := uintptr(0x40000000)
	if _, ok := vm.Mmap(as, addr, 8192, true, f1, 0); !ok {
		return fmt.Errorf("first mmap failed")
	}
	f2, err := vfile.Open(path)
	if err != nil {
		return err
	}
	if _, ok := vm.Mmap(as, addr+0x1000, 4096, true, f2, 0); ok {
		return fmt.Errorf("expected overlapping mmap to fail")
	}
	p, ok := as.SPT.Find(addr + 0x1000)
	if !ok || p.VA() != addr+0x1000 {
		return fmt.Errorf("find_page after rejected overlap returned unexpected result")
	}
	return nil
}
