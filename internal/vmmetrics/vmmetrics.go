// Package vmmetrics exposes klog.Global as a Prometheus collector: a
// struct of *prometheus.Desc fields built once in a constructor, with
// Describe sending each Desc and Collect reading the live klog.Stats
// counters, plus the frame table's and swap pool's current occupancy,
// on every scrape.
package vmmetrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/frame"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/klog"
	"github.com/ProdMoon/pintos-kaist-secondhalf/internal/swap"
)

const namespace = "vm"

// Collector reports the running VM subsystem statistics on each scrape.
type Collector struct {
	frames *frame.Table
	swap   *swap.Pool

	pageFaults     *prometheus.Desc
	evictions      *prometheus.Desc
	swapIns        *prometheus.Desc
	swapOuts       *prometheus.Desc
	writebacks     *prometheus.Desc
	stackGrowths   *prometheus.Desc
	framesInUse    *prometheus.Desc
	framesCapacity *prometheus.Desc
	swapUsed       *prometheus.Desc
	swapTotal      *prometheus.Desc
	lastEvictionNs *prometheus.Desc
}

// New builds a collector reporting on the given frame table and swap
// pool alongside the package-level klog.Global counters.
func New(frames *frame.Table, sw *swap.Pool) *Collector {
	return &Collector{
		frames: frames,
		swap:   sw,
		pageFaults: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "page_faults_total"),
			"Total page faults handled.", nil, nil),
		evictions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "evictions_total"),
			"Total frame evictions performed.", nil, nil),
		swapIns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "swap_ins_total"),
			"Total pages read back from swap.", nil, nil),
		swapOuts: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "swap_outs_total"),
			"Total pages written to swap.", nil, nil),
		writebacks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "file_writebacks_total"),
			"Total dirty mmap'd pages written back to their file.", nil, nil),
		stackGrowths: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "stack_growths_total"),
			"Total stack pages installed by the fault handler.", nil, nil),
		framesInUse: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "frames_in_use"),
			"Frames currently allocated.", nil, nil),
		framesCapacity: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "frames_capacity"),
			"Total frame budget.", nil, nil),
		swapUsed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "swap_slots_in_use"),
			"Swap slots currently holding a page.", nil, nil),
		swapTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "swap_slots_total"),
			"Total swap slots on the swap disk.", nil, nil),
		lastEvictionNs: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "last_eviction_duration_nanoseconds"),
			"Wall-clock duration of the most recent eviction.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.pageFaults
	ch <- c.evictions
	ch <- c.swapIns
	ch <- c.swapOuts
	ch <- c.writebacks
	ch <- c.stackGrowths
	ch <- c.framesInUse
	ch <- c.framesCapacity
	ch <- c.swapUsed
	ch <- c.swapTotal
	ch <- c.lastEvictionNs
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := &klog.Global
	ch <- prometheus.MustNewConstMetric(c.pageFaults, prometheus.CounterValue, float64(s.PageFaults.Load()))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions.Load()))
	ch <- prometheus.MustNewConstMetric(c.swapIns, prometheus.CounterValue, float64(s.SwapIns.Load()))
	ch <- prometheus.MustNewConstMetric(c.swapOuts, prometheus.CounterValue, float64(s.SwapOuts.Load()))
	ch <- prometheus.MustNewConstMetric(c.writebacks, prometheus.CounterValue, float64(s.FileWritebacks.Load()))
	ch <- prometheus.MustNewConstMetric(c.stackGrowths, prometheus.CounterValue, float64(s.StackGrowths.Load()))
	ch <- prometheus.MustNewConstMetric(c.framesInUse, prometheus.GaugeValue, float64(c.frames.InUse()))
	ch <- prometheus.MustNewConstMetric(c.framesCapacity, prometheus.GaugeValue, float64(c.frames.Capacity()))
	ch <- prometheus.MustNewConstMetric(c.swapUsed, prometheus.GaugeValue, float64(c.swap.UsedCount()))
	ch <- prometheus.MustNewConstMetric(c.swapTotal, prometheus.GaugeValue, float64(c.swap.Total()))
	ch <- prometheus.MustNewConstMetric(c.lastEvictionNs, prometheus.GaugeValue, float64(s.LastEvictionDur))
}
