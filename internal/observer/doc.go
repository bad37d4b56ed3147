// Package observer carries gateway events to side-effect sinks.
//
// The gateway emits an Event after every operation, once the authoritative
// state change has committed. Observers never influence the outcome of the
// operation that produced the event.
//
// Two delivery styles exist:
//
//   - Synchronous observers (metrics counters) implement Observer directly
//     and must be fast and non-blocking.
//   - Slow sinks (audit records, MQTT, InfluxDB) sit behind a Dispatcher,
//     which queues events in a bounded buffer and delivers them from a
//     single goroutine. When the buffer is full new events are dropped and
//     counted rather than stalling the request path.
//
// Usage:
//
//	d := observer.NewDispatcher(logger, 1024, auditSink, mqttSink)
//	d.Start(ctx)
//	defer d.Close()
//	obs := observer.Multi{metricsCollector, d}
package observer
