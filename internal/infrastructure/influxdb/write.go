package influxdb

import (
	"context"
	"time"

	"github.com/nerrad567/tenantgate/internal/observer"
)

// MeasurementGatewayOps holds one point per gateway operation.
const MeasurementGatewayOps = "gateway_ops"

// PointWriter is the subset of Client used by EventSink.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// EventSink records every gateway operation as a gateway_ops point.
//
// Tags: operation, collection, outcome, org_id, error_kind (failures only).
// Fields: duration_ms, items, count.
type EventSink struct {
	w PointWriter
}

// NewEventSink creates an observer sink writing through w.
func NewEventSink(w PointWriter) *EventSink {
	return &EventSink{w: w}
}

// Name identifies the sink in logs.
func (s *EventSink) Name() string { return "influxdb" }

// Handle writes e. The underlying write is batched, so ctx is unused.
func (s *EventSink) Handle(_ context.Context, e observer.Event) error {
	tags := map[string]string{
		"operation": e.Operation,
		"outcome":   e.Outcome,
	}
	if e.Collection != "" {
		tags["collection"] = e.Collection
	}
	if e.OrgID != "" {
		tags["org_id"] = e.OrgID
	}
	if e.ErrorKind != "" {
		tags["error_kind"] = e.ErrorKind
	}

	fields := map[string]any{
		"duration_ms": float64(e.Duration) / float64(time.Millisecond),
		"items":       int64(e.Items),
		"count":       int64(1),
	}

	ts := e.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	s.w.WritePoint(MeasurementGatewayOps, tags, fields, ts)
	return nil
}
