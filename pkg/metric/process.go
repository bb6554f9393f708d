package metric

import (
	"context"
	"math"
	"os"
	"time"

	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"
)

// StartProcessMonitor samples the resident memory and CPU usage of this
// process every interval until ctx is cancelled.
func (m *Metric) StartProcessMonitor(ctx context.Context, interval time.Duration, log *zap.Logger) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("process monitor disabled", zap.Error(err))
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sampleProcess(proc)
		}
	}
}

func (m *Metric) sampleProcess(proc *process.Process) {
	var memMB float64
	if info, err := proc.MemoryInfo(); err == nil && info != nil {
		memMB = float64(info.RSS / 1024 / 1024)
	}
	cpu, _ := proc.CPUPercent()
	m.SetProcessUsage(memMB, math.Round(cpu*100)/100)
}
