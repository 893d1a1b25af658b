// Package stats samples the resource use of a running build.
package stats

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
)

// Sample is one reading of the process.
type Sample struct {
	Elapsed      time.Duration `json:"elapsed"`
	HeapAlloc    uint64        `json:"heap_alloc"`
	Sys          uint64        `json:"sys"`
	RSS          uint64        `json:"rss"`
	NumGC        uint32        `json:"num_gc"`
	CPUPercent   float64       `json:"cpu_percent"`
	SystemCPU    float64       `json:"system_cpu_percent"`
	NumGoroutine int           `json:"num_goroutine"`
}

// Report sums up a collection run.
type Report struct {
	Start   time.Time     `json:"start"`
	Elapsed time.Duration `json:"elapsed"`
	Samples []Sample      `json:"samples"`

	PeakHeapAlloc  uint64  `json:"peak_heap_alloc"`
	PeakRSS        uint64  `json:"peak_rss"`
	PeakCPUPercent float64 `json:"peak_cpu_percent"`
	AvgCPUPercent  float64 `json:"avg_cpu_percent"`
	PeakGoroutines int     `json:"peak_goroutines"`
	GCCycles       uint32  `json:"gc_cycles"`
}

type Collector struct {
	interval time.Duration
	proc     *process.Process

	mu      sync.Mutex
	start   time.Time
	samples []Sample

	stop chan struct{}
	done chan struct{}
}

func NewCollector(interval time.Duration) (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to get process info: %w", err)
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Collector{
		interval: interval,
		proc:     proc,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

func (c *Collector) Start() {
	c.start = time.Now()
	go c.collect()
}

func (c *Collector) collect() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample()
	for {
		select {
		case <-c.stop:
			c.sample()
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *Collector) sample() {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	s := Sample{
		Elapsed:      time.Since(c.start),
		HeapAlloc:    mem.HeapAlloc,
		Sys:          mem.Sys,
		NumGC:        mem.NumGC,
		NumGoroutine: runtime.NumGoroutine(),
	}
	if info, err := c.proc.MemoryInfo(); err == nil && info != nil {
		s.RSS = info.RSS
	}
	if p, err := c.proc.CPUPercent(); err == nil {
		s.CPUPercent = p
	}
	if p, err := cpu.Percent(0, false); err == nil && len(p) > 0 {
		s.SystemCPU = p[0]
	}

	c.mu.Lock()
	c.samples = append(c.samples, s)
	c.mu.Unlock()
}

// Stop ends the collection and summarizes it. It must be called once.
func (c *Collector) Stop() Report {
	close(c.stop)
	<-c.done

	c.mu.Lock()
	defer c.mu.Unlock()

	r := Report{Start: c.start, Elapsed: time.Since(c.start), Samples: c.samples}
	var totalCPU float64
	for _, s := range c.samples {
		r.PeakHeapAlloc = max(r.PeakHeapAlloc, s.HeapAlloc)
		r.PeakRSS = max(r.PeakRSS, s.RSS)
		r.PeakCPUPercent = max(r.PeakCPUPercent, s.CPUPercent)
		r.PeakGoroutines = max(r.PeakGoroutines, s.NumGoroutine)
		r.GCCycles = max(r.GCCycles, s.NumGC)
		totalCPU += s.CPUPercent
	}
	if len(c.samples) > 0 {
		r.AvgCPUPercent = totalCPU / float64(len(c.samples))
	}
	return r
}

// LogValue keeps log lines short, the samples are left out.
func (r Report) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("elapsed", r.Elapsed),
		slog.String("peak_heap", humanize.IBytes(r.PeakHeapAlloc)),
		slog.String("peak_rss", humanize.IBytes(r.PeakRSS)),
		slog.Float64("avg_cpu_percent", r.AvgCPUPercent),
		slog.Int("samples", len(r.Samples)),
	)
}

// maxRows bounds the sample table, longer runs are thinned out evenly.
const maxRows = 50

// WriteTo renders the report as a plain text table.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}

	fmt.Fprintf(cw, "build started %s, took %s\n", r.Start.Format(time.RFC3339), r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(cw, "peak heap %s, peak rss %s\n", humanize.IBytes(r.PeakHeapAlloc), humanize.IBytes(r.PeakRSS))
	fmt.Fprintf(cw, "cpu peak %.1f%% avg %.1f%%, goroutines peak %d, gc cycles %s\n\n",
		r.PeakCPUPercent, r.AvgCPUPercent, r.PeakGoroutines, humanize.Comma(int64(r.GCCycles)))

	rows := r.Samples
	if len(rows) > maxRows {
		rows = make([]Sample, 0, maxRows)
		step := float64(len(r.Samples)-1) / float64(maxRows-1)
		for i := 0; i < maxRows; i++ {
			rows = append(rows, r.Samples[int(float64(i)*step)])
		}
	}

	fmt.Fprintf(cw, "%-10s %-12s %-12s %-8s %-6s\n", "elapsed", "heap", "rss", "cpu %", "gor")
	for _, s := range rows {
		fmt.Fprintf(cw, "%-10s %-12s %-12s %-8.1f %-6d\n",
			s.Elapsed.Round(time.Millisecond), humanize.IBytes(s.HeapAlloc), humanize.IBytes(s.RSS), s.CPUPercent, s.NumGoroutine)
	}
	return cw.n, cw.err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
