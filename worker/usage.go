package worker

import (
	"os"
	"runtime"
	"time"

	"github.com/absmach/robustfl/trainer"
	"github.com/shirou/gopsutil/v3/process"
)

// Keys of the resource figures a worker attaches to its updates.
const (
	MetricTrainSeconds = "train_seconds"
	MetricCPUSeconds   = "cpu_seconds"
	MetricRSSBytes     = "rss_bytes"
	MetricHeapBytes    = "heap_bytes"
)

// usageMeter measures the worker process around one training call. Figures
// the platform cannot provide are left out.
type usageMeter struct {
	proc *process.Process
}

type usageSample struct {
	begin time.Time
	cpu   float64
	ok    bool
}

func newUsageMeter() *usageMeter {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &usageMeter{}
	}

	return &usageMeter{proc: proc}
}

func (u *usageMeter) start() usageSample {
	s := usageSample{begin: time.Now()}
	if u.proc == nil {
		return s
	}
	if t, err := u.proc.Times(); err == nil {
		s.cpu = t.User + t.System
		s.ok = true
	}

	return s
}

// finish adds the usage since s to metrics, allocating it when nil.
func (u *usageMeter) finish(s usageSample, metrics trainer.Metrics) trainer.Metrics {
	if metrics == nil {
		metrics = trainer.Metrics{}
	}
	metrics[MetricTrainSeconds] = time.Since(s.begin).Seconds()

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	metrics[MetricHeapBytes] = float64(ms.HeapAlloc)

	if u.proc == nil {
		return metrics
	}
	if t, err := u.proc.Times(); err == nil && s.ok {
		metrics[MetricCPUSeconds] = t.User + t.System - s.cpu
	}
	if mem, err := u.proc.MemoryInfo(); err == nil {
		metrics[MetricRSSBytes] = float64(mem.RSS)
	}

	return metrics
}
