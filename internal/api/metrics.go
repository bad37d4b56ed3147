package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Gateway       GatewayMetrics `json:"gateway"`
	Events        *EventMetrics  `json:"events,omitempty"`
	MQTT          *LinkMetrics   `json:"mqtt,omitempty"`
	InfluxDB      *LinkMetrics   `json:"influxdb,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// GatewayMetrics reports the effective gateway limits.
type GatewayMetrics struct {
	MaxPageSize         int   `json:"max_page_size"`
	MaxBatchItems       int   `json:"max_batch_items"`
	MaxAggregateResults int   `json:"max_aggregate_results"`
	StorageTimeoutMS    int64 `json:"storage_timeout_ms"`
}

// EventMetrics contains observer dispatcher statistics.
type EventMetrics struct {
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Pending   int    `json:"pending"`
}

// LinkMetrics contains the connection state of an optional integration.
type LinkMetrics struct {
	Connected bool `json:"connected"`
}

// handleMetrics returns runtime and gateway statistics as JSON.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	cfg := s.gateway.Config()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Gateway: GatewayMetrics{
			MaxPageSize:         cfg.MaxPageSize,
			MaxBatchItems:       cfg.MaxBatchItems,
			MaxAggregateResults: cfg.MaxAggregateResults,
			StorageTimeoutMS:    cfg.StorageTimeout.Milliseconds(),
		},
	}

	if s.events != nil {
		metrics.Events = &EventMetrics{
			Delivered: s.events.Delivered(),
			Dropped:   s.events.Dropped(),
			Pending:   s.events.Pending(),
		}
	}
	if s.mqtt != nil {
		metrics.MQTT = &LinkMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.influx != nil {
		metrics.InfluxDB = &LinkMetrics{Connected: s.influx.IsConnected()}
	}

	writeJSON(w, http.StatusOK, metrics)
}
