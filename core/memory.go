package core

import (
	"bytes"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// MemoryMetric selects how memory usage is sampled.
type MemoryMetric string

const (
	MemPsuRSS    MemoryMetric = "psu_rss"   // resident set size from /proc
	MemPsuVMS    MemoryMetric = "psu_vms"   // virtual size from /proc
	MemPsuShared MemoryMetric = "psu_shr"   // shared pages from /proc
	MemResRSS    MemoryMetric = "res_rss"   // getrusage max RSS
	MemPsRSS     MemoryMetric = "ps_rss"    // ps -o rss
	MemPsVMS     MemoryMetric = "ps_vms"    // ps -o vsize
	MemPsMem     MemoryMetric = "ps_mem"    // ps -o size
	MemSlurmRSS  MemoryMetric = "slurm_rss" // sstat MaxRSS of the batch step
	MemTraceLive MemoryMetric = "trc_mem"   // Go heap bytes allocated since the last sample
	MemTracePeak MemoryMetric = "trc_peak"  // Go heap peak since the last sample
)

// MemoryMetrics lists every supported metric kind.
var MemoryMetrics = []MemoryMetric{
	MemPsuRSS, MemPsuVMS, MemPsuShared, MemResRSS,
	MemPsRSS, MemPsVMS, MemPsMem, MemSlurmRSS,
	MemTraceLive, MemTracePeak,
}

// Known reports whether m is a supported metric kind.
func (m MemoryMetric) Known() bool {
	for _, k := range MemoryMetrics {
		if k == m {
			return true
		}
	}
	return false
}

// Traced reports whether m samples the Go heap tracer.
func (m MemoryMetric) Traced() bool {
	return m == MemTraceLive || m == MemTracePeak
}

// MemoryUsage samples the given metric in bytes. A garbage collection runs
// before the sample. Unknown kinds and probes that fail on this platform
// return false.
func MemoryUsage(kind MemoryMetric) (int64, bool) {
	if kind.Traced() {
		return tracer.sample(kind)
	}
	runtime.GC()
	switch kind {
	case MemPsuRSS:
		return statm(1)
	case MemPsuVMS:
		return statm(0)
	case MemPsuShared:
		return statm(2)
	case MemResRSS:
		return maxRSS()
	case MemPsRSS:
		return psField("rss")
	case MemPsVMS:
		return psField("vsize")
	case MemPsMem:
		return psField("size")
	case MemSlurmRSS:
		return slurmMaxRSS()
	}
	return 0, false
}

// statm reads field i of /proc/self/statm and converts pages to bytes.
func statm(field int) (int64, bool) {
	data, err := os.ReadFile("/proc/self/statm")
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(string(data))
	if field >= len(fields) {
		return 0, false
	}
	pages, err := strconv.ParseInt(fields[field], 10, 64)
	if err != nil {
		return 0, false
	}
	return pages * int64(os.Getpagesize()), true
}

// psField asks ps for a kilobyte-valued field of this process.
func psField(name string) (int64, bool) {
	out, err := exec.Command("ps", "-o", name, "-p", strconv.Itoa(os.Getpid())).Output()
	if err != nil {
		log.Debug().Err(err).Msgf("ps -o %s failed", name)
		return 0, false
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) < 2 {
		return 0, false
	}
	kb, err := strconv.ParseInt(strings.TrimSpace(lines[1]), 10, 64)
	if err != nil {
		return 0, false
	}
	return kb * 1024, true
}

// slurmMaxRSS asks the scheduler for the MaxRSS of the current batch step.
func slurmMaxRSS() (int64, bool) {
	job := os.Getenv("SLURM_JOB_ID")
	if job == "" {
		return 0, false
	}
	out, err := exec.Command("sstat", "-j", job+".batch", "-n", "--format=MaxRSS").Output()
	if err != nil {
		log.Debug().Err(err).Msg("sstat failed")
		return 0, false
	}
	return ParseSlurmSize(string(bytes.TrimSpace(out)))
}

// ParseSlurmSize converts sizes such as "2048K", "1.5M" or "3G" to bytes.
// Suffixes are decimal, as sstat reports them.
func ParseSlurmSize(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	mult := 1.0
	switch s[len(s)-1] {
	case 'K':
		mult = 1e3
	case 'M':
		mult = 1e6
	case 'G':
		mult = 1e9
	}
	if mult != 1 {
		s = s[:len(s)-1]
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return int64(v * mult), true
}

// heapTracer measures Go heap growth between consecutive samples.
type heapTracer struct {
	mu   sync.Mutex
	base uint64
}

var tracer heapTracer

// StartTrace resets the heap tracer baseline to the current live heap.
func StartTrace() {
	runtime.GC()
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	tracer.mu.Lock()
	tracer.base = ms.HeapAlloc
	tracer.mu.Unlock()
}

// sample returns live or peak heap bytes above the baseline and restarts the
// trace, so each sample covers the interval since the previous one. The peak
// is approximated by the heap size before the collection, which still holds
// the garbage produced during the interval.
func (t *heapTracer) sample(kind MemoryMetric) (int64, bool) {
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	runtime.GC()
	runtime.ReadMemStats(&after)

	t.mu.Lock()
	defer t.mu.Unlock()
	live := int64(after.HeapAlloc) - int64(t.base)
	peak := int64(before.HeapAlloc) - int64(t.base)
	t.base = after.HeapAlloc
	if live < 0 {
		live = 0
	}
	if peak < live {
		peak = live
	}
	if kind == MemTracePeak {
		return peak, true
	}
	return live, true
}
