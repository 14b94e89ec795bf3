package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/iuriaranda/signalk-mqtt-bridge/internal/bridge"
	"github.com/iuriaranda/signalk-mqtt-bridge/internal/signalk"
)

// bytesPerMB converts byte counts to megabytes.
const bytesPerMB = 1024 * 1024

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string           `json:"timestamp"`
	Version       string           `json:"version"`
	UptimeSeconds int64            `json:"uptime_seconds"`
	Status        bridge.Status    `json:"status"`
	Bridge        bridge.Stats     `json:"bridge"`
	Runtime       RuntimeMetrics   `json:"runtime"`
	MQTT          MQTTMetrics      `json:"mqtt"`
	SignalK       *signalk.Stats   `json:"signalk,omitempty"`
	Database      *DatabaseMetrics `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected     bool `json:"connected"`
	Subscriptions int  `json:"subscriptions"`
}

// DatabaseMetrics contains journal connection pool statistics.
type DatabaseMetrics struct {
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns bridge and process metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Status:        s.bridge.Status().Status,
		Bridge:        s.bridge.Stats(),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / bytesPerMB,
			MemoryTotalMB: float64(memStats.TotalAlloc) / bytesPerMB,
			NumGC:         memStats.NumGC,
		},
	}

	if s.mqtt != nil {
		metrics.MQTT = MQTTMetrics{
			Connected:     s.mqtt.IsConnected(),
			Subscriptions: s.mqtt.SubscriptionCount(),
		}
	}

	if s.signalk != nil {
		stats := s.signalk.Stats()
		metrics.SignalK = &stats
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		metrics.Database = &DatabaseMetrics{
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
