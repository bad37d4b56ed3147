// Package mqtt publishes gateway change events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - An observer sink turning committed mutations into events
//
// # Topics
//
//	tenantgate/events/{orgId}/{collection}/{action}   change events
//	tenantgate/system/status                          retained online/offline
//
// Consumers subscribe per tenant with tenantgate/events/{orgId}/#. Payloads
// carry identifiers only, never document bodies.
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Broker ACLs should restrict each consumer to its tenant's subtree
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sink := mqtt.NewEventSink(client, client.QoS())
//	dispatcher := observer.NewDispatcher(logger, 1024, sink)
package mqtt
