package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ProcessStats describes the relay process itself.
type ProcessStats struct {
	PID        int32   `json:"pid"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
	Status     string  `json:"status,omitempty"`
}

// MonitoringStats is the snapshot exposed by the health endpoint and the reporter.
type MonitoringStats struct {
	MessagesPersisted uint64       `json:"messages_persisted"`
	PrivateMessages   uint64       `json:"private_messages"`
	ReactionsUpdated  uint64       `json:"reactions_updated"`
	RoomsDeleted      uint64       `json:"rooms_deleted"`
	Failures          uint64       `json:"failures"`
	WorkerRestarts    uint64       `json:"worker_restarts"`
	Connections       int          `json:"connections"`
	QueueSize         int          `json:"queue_size"`
	QueueCapacity     int          `json:"queue_capacity"`
	AllocMemMb        uint64       `json:"alloc_mem_mb"`
	NumGC             uint32       `json:"num_gc"`
	NumGoroutine      int          `json:"num_goroutine"`
	Process           ProcessStats `json:"process"`
	Uptime            string       `json:"uptime"`
}

// Gauges are read when the snapshot is refreshed.
type Gauges struct {
	Connections   func() int
	QueueSize     func() int
	QueueCapacity func() int
}

// MonitoringManager keeps live counters of the relay.
// Counters are bumped lock-free by the stats sink, Refresh builds the snapshot.
type MonitoringManager struct {
	log         *slog.Logger
	mu          sync.RWMutex
	latestStats MonitoringStats
	startedAt   time.Time
	process     *process.Process
	gauges      Gauges

	messagesPersisted atomic.Uint64
	privateMessages   atomic.Uint64
	reactionsUpdated  atomic.Uint64
	roomsDeleted      atomic.Uint64
	failures          atomic.Uint64
	workerRestarts    atomic.Uint64
}

func NewMonitoringManager(log *slog.Logger, gauges Gauges) *MonitoringManager {
	mm := &MonitoringManager{log: log, startedAt: time.Now(), gauges: gauges}
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
	} else {
		mm.process = p
	}
	return mm
}

func (mm *MonitoringManager) IncrMessagesPersisted() { mm.messagesPersisted.Add(1) }
func (mm *MonitoringManager) IncrPrivateMessages()   { mm.privateMessages.Add(1) }
func (mm *MonitoringManager) IncrReactionsUpdated()  { mm.reactionsUpdated.Add(1) }
func (mm *MonitoringManager) IncrRoomsDeleted()      { mm.roomsDeleted.Add(1) }
func (mm *MonitoringManager) IncrFailures()          { mm.failures.Add(1) }
func (mm *MonitoringManager) IncrWorkerRestarts()    { mm.workerRestarts.Add(1) }

// Refresh recomputes the snapshot and returns it.
func (mm *MonitoringManager) Refresh() MonitoringStats {
	stats := MonitoringStats{
		MessagesPersisted: mm.messagesPersisted.Load(),
		PrivateMessages:   mm.privateMessages.Load(),
		ReactionsUpdated:  mm.reactionsUpdated.Load(),
		RoomsDeleted:      mm.roomsDeleted.Load(),
		Failures:          mm.failures.Load(),
		WorkerRestarts:    mm.workerRestarts.Load(),
		NumGoroutine:      runtime.NumGoroutine(),
		Uptime:            time.Since(mm.startedAt).Round(time.Second).String(),
	}
	if mm.gauges.Connections != nil {
		stats.Connections = mm.gauges.Connections()
	}
	if mm.gauges.QueueSize != nil {
		stats.QueueSize = mm.gauges.QueueSize()
	}
	if mm.gauges.QueueCapacity != nil {
		stats.QueueCapacity = mm.gauges.QueueCapacity()
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC

	if mm.process != nil {
		processStats, err := selfStats(mm.process)
		if err != nil {
			mm.log.Debug("Failed to collect self stats", "error", err)
		}
		stats.Process = processStats
	}

	mm.mu.Lock()
	mm.latestStats = stats
	mm.mu.Unlock()
	return stats
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}

// selfStats retrieves memory, CPU and OS status of the given process.
func selfStats(p *process.Process) (ProcessStats, error) {
	stats := ProcessStats{PID: p.Pid}
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return stats, err
	}
	stats.RSSBytes = memInfo.RSS

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return stats, err
	}
	stats.CPUPercent = cpuPercent

	status, err := p.Status()
	if err != nil {
		return stats, err
	}
	stats.Status = status
	return stats, nil
}
