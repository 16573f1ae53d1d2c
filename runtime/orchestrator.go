// Package runtime holds the live chat state and the plumbing around it.
// It wires the coordinator to the fanout, the permanent sinks and the supervised workers.
package runtime

import (
	"chat-relay/contract"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"chat-relay/sink"
	"context"
	"log/slog"
	"sync"
	"time"
)

type OrchestratorConfig struct {
	Settings       Settings
	BufferSize     int
	SinkTimeout    time.Duration
	MetricInterval time.Duration
}

// Orchestrator builds the relay pipeline and owns the lifecycle of its workers.
type Orchestrator struct {
	mu          sync.Mutex
	log         *slog.Logger
	supervisor  *workers.Supervisor
	registry    *Registry
	fanout      *workers.EventFanout
	coordinator *Coordinator
	monitoring  *observability.MonitoringManager
	reporter    contract.Worker
	done        chan struct{}
}

// NewOrchestrator wires every component. index may be nil when search is disabled.
func NewOrchestrator(log *slog.Logger, supervisor *workers.Supervisor, registry *Registry,
	repository repositories.IMessageRepository, index sink.MessageIndex, config OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{log: log, supervisor: supervisor, registry: registry}

	o.monitoring = observability.NewMonitoringManager(log, observability.Gauges{
		Connections:   registry.Count,
		QueueSize:     func() int { return o.fanout.Pending() },
		QueueCapacity: func() int { return o.fanout.Capacity() },
	})
	supervisor.OnRestart(func(string) { o.monitoring.IncrWorkerRestarts() })

	permanentSinks := []contract.EventSink{sink.NewStatsSink(o.monitoring)}
	if index != nil {
		permanentSinks = append(permanentSinks, sink.NewSearchSink(index, log))
	}
	o.fanout = workers.NewEventFanout(log, permanentSinks, registry, config.BufferSize, config.SinkTimeout)
	o.coordinator = NewCoordinator(log, registry, repository, o.fanout, config.Settings)
	if config.MetricInterval > 0 {
		o.reporter = workers.NewReporterWorker(log, o.monitoring, config.MetricInterval)
	}
	return o
}

func (o *Orchestrator) Coordinator() *Coordinator {
	return o.coordinator
}

func (o *Orchestrator) Monitoring() *observability.MonitoringManager {
	return o.monitoring
}

// Start hands the workers to the supervisor and returns. Workers stop with ctx or Stop.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done != nil {
		return
	}
	o.supervisor.Add(o.fanout)
	if o.reporter != nil {
		o.supervisor.Add(o.reporter)
	}
	o.done = make(chan struct{})
	o.log.Info("Starting orchestrator and all supervised workers")
	go func() {
		defer close(o.done)
		o.supervisor.Run(ctx)
	}()
}

// Stop cancels the workers and waits for them to return.
// Envelopes still queued at that point are not delivered.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()
	if done == nil {
		return
	}
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
	<-done
	o.log.Debug("Orchestrator stopped", "pending", o.fanout.Pending())
}
