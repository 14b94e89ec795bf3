package bridge

import (
	"context"
	"sync"
	"time"
)

// Status is the bridge's externally reported state.
type Status string

const (
	// StatusStarting means the bridge has not reached the broker yet.
	StatusStarting Status = "starting"

	// StatusConnected means both the broker and Signal K are reachable.
	StatusConnected Status = "connected"

	// StatusDegraded means a connection is down; leases are kept.
	StatusDegraded Status = "degraded"

	// StatusStopped means Stop has been called.
	StatusStopped Status = "stopped"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// StatusReport describes the bridge state at one instant.
type StatusReport struct {
	Status   Status `json:"status"`
	Reason   string `json:"reason,omitempty"`
	SystemID string `json:"system_id"`
}

// Status evaluates the current bridge state.
func (b *Bridge) Status() StatusReport {
	report := StatusReport{SystemID: b.topics.SystemID}

	switch {
	case b.stopped.Load():
		report.Status = StatusStopped
	case !b.started.Load():
		report.Status = StatusStarting
		report.Reason = "not started"
	case !b.transport.IsConnected():
		if b.mqttSeen.Load() {
			report.Status = StatusDegraded
		} else {
			report.Status = StatusStarting
		}
		report.Reason = "MQTT disconnected"
	case !b.host.IsConnected():
		report.Status = StatusDegraded
		report.Reason = "Signal K disconnected"
	default:
		report.Status = StatusConnected
	}

	return report
}

// MetricsWriter receives bridge counters. This is satisfied by
// *influxdb.Client.
type MetricsWriter interface {
	WriteBridgeMetric(systemID, measurement string, value float64)
}

// statusSource is what the reporter observes.
type statusSource interface {
	Status() StatusReport
	Stats() Stats
}

// HealthReporter periodically evaluates the bridge status, logs
// transitions and pushes counters to the metrics sink.
type HealthReporter struct {
	interval time.Duration
	source   statusSource
	metrics  MetricsWriter

	mu   sync.Mutex
	last Status

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Interval is how often to evaluate status.
	// Default: 30 seconds.
	Interval time.Duration

	// Bridge is the observed bridge.
	Bridge statusSource

	// Metrics is optional.
	Metrics MetricsWriter
}

// NewHealthReporter creates a new health reporter.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}

	return &HealthReporter{
		interval: interval,
		source:   cfg.Bridge,
		metrics:  cfg.Metrics,
		last:     StatusStarting,
		done:     make(chan struct{}),
	}
}

// Start begins periodic reporting. Call Stop to shut down.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop stops reporting and flushes a final metrics point.
// Safe to call multiple times (uses sync.Once).
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
		h.writeMetrics()
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Evaluate checks the status now and logs a transition.
func (h *HealthReporter) Evaluate() StatusReport {
	report := h.source.Status()

	h.mu.Lock()
	previous := h.last
	h.last = report.Status
	h.mu.Unlock()

	if report.Status == previous {
		return report
	}

	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()
	if logger == nil {
		return report
	}

	if report.Status == StatusDegraded {
		logger.Warn("bridge status changed", "from", previous, "to", report.Status, "reason", report.Reason)
	} else {
		logger.Info("bridge status changed", "from", previous, "to", report.Status)
	}
	return report
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			h.Evaluate()
			h.writeMetrics()
		}
	}
}

func (h *HealthReporter) writeMetrics() {
	if h.metrics == nil {
		return
	}
	report := h.source.Status()
	for name, value := range h.source.Stats().Metrics() {
		h.metrics.WriteBridgeMetric(report.SystemID, name, value)
	}
}
