package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/tenantgate/internal/infrastructure/config"
	"github.com/nerrad567/tenantgate/internal/observer"
)

// testConfig returns a valid MQTT configuration. Nothing here connects.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "tenantgate-test",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestCloseNil(t *testing.T) {
	c := &Client{}
	if err := c.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v", err)
	}
}

func TestIsConnected_InitialState(t *testing.T) {
	c := &Client{}
	if c.IsConnected() {
		t.Error("IsConnected() = true for a new client")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	c := &Client{}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	c := &Client{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.HealthCheck(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestNewClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "gateway"
	cfg.Auth.Password = "secret"

	opts := newClientOptions(cfg)
	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want tcp://127.0.0.1:1883", opts.Servers)
	}
	if opts.ClientID != "tenantgate-test" {
		t.Errorf("ClientID = %q", opts.ClientID)
	}
	if opts.Username != "gateway" || opts.Password != "secret" {
		t.Error("credentials not applied")
	}
	if !opts.AutoReconnect || opts.MaxReconnectInterval != 5*time.Second {
		t.Errorf("reconnect = %v/%v", opts.AutoReconnect, opts.MaxReconnectInterval)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured for a plain broker")
	}

	cfg.Broker.TLS = true
	opts = newClientOptions(cfg)
	if opts.Servers[0].Scheme != "ssl" {
		t.Errorf("scheme = %q, want ssl", opts.Servers[0].Scheme)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Error("TLS minimum version not set")
	}
}

func TestNewClientOptions_Will(t *testing.T) {
	opts := newClientOptions(testConfig())

	if !opts.WillEnabled || opts.WillTopic != "tenantgate/system/status" || !opts.WillRetained || opts.WillQos != 1 {
		t.Errorf("will = %v %q retained=%v qos=%d", opts.WillEnabled, opts.WillTopic, opts.WillRetained, opts.WillQos)
	}

	var will presence
	if err := json.Unmarshal(opts.WillPayload, &will); err != nil {
		t.Fatalf("will payload %s: %v", opts.WillPayload, err)
	}
	if will.Status != presenceOffline || will.Reason != reasonConnection || will.ClientID != "tenantgate-test" {
		t.Errorf("will = %+v", will)
	}
}

func TestPresenceMessage(t *testing.T) {
	var p presence
	if err := json.Unmarshal(presenceMessage("gw-1", presenceOnline, ""), &p); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if p.Status != presenceOnline || p.ClientID != "gw-1" || p.Reason != "" {
		t.Errorf("presence = %+v", p)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Errorf("timestamp %q: %v", p.Timestamp, err)
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublishValidation(t *testing.T) {
	c := &Client{}
	tests := []struct {
		name    string
		topic   string
		payload []byte
		qos     byte
		want    error
	}{
		{"empty topic", "", nil, 1, ErrInvalidTopic},
		{"invalid qos", "t", nil, 3, ErrInvalidQoS},
		{"payload too large", "t", make([]byte, maxPayloadSize+1), 1, ErrPublishFailed},
		{"disconnected", "t", []byte("{}"), 1, ErrNotConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.Publish(tt.topic, tt.payload, tt.qos, false); !errors.Is(err, tt.want) {
				t.Errorf("Publish() error = %v, want %v", err, tt.want)
			}
		})
	}
}

// =============================================================================
// Topic Tests
// =============================================================================

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"event", topics.Event("org1", "orders", "create"), "tenantgate/events/org1/orders/create"},
		{"event escapes levels", topics.Event("a/b", "x+y", "#"), "tenantgate/events/a_b/x_y/_"},
		{"event empty level", topics.Event("", "orders", "delete"), "tenantgate/events/_/orders/delete"},
		{"org events", topics.OrgEvents("org1"), "tenantgate/events/org1/#"},
		{"all events", topics.AllEvents(), "tenantgate/events/#"},
		{"system status", topics.SystemStatus(), "tenantgate/system/status"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// =============================================================================
// Event Sink Tests
// =============================================================================

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	f.msgs = append(f.msgs, published{topic, payload, qos, retained})
	return f.err
}

func TestEventSink_PublishesMutations(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewEventSink(pub, 1)
	when := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	err := sink.Handle(context.Background(), observer.Event{
		Time:       when,
		Operation:  observer.OpUpdate,
		Outcome:    observer.OutcomeSuccess,
		Collection: "orders",
		DocumentID: "ord-1",
		OrgID:      "org-1",
		UserID:     "user-1",
	})
	if err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}

	msg := pub.msgs[0]
	if msg.topic != "tenantgate/events/org-1/orders/update" || msg.qos != 1 || msg.retained {
		t.Errorf("message = %q qos=%d retained=%v", msg.topic, msg.qos, msg.retained)
	}
	var body EventPayload
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body.DocumentID != "ord-1" || body.UserID != "user-1" || body.Timestamp != "2026-03-01T09:00:00Z" {
		t.Errorf("payload = %+v", body)
	}
}

func TestEventSink_SkipsNonMutations(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewEventSink(pub, 0)

	for _, e := range []observer.Event{
		{Operation: observer.OpQuery, Outcome: observer.OutcomeSuccess, OrgID: "o"},
		{Operation: observer.OpCreate, Outcome: observer.OutcomeFailure, OrgID: "o"},
		{Operation: observer.OpCreate, Outcome: observer.OutcomeSuccess},
	} {
		if err := sink.Handle(context.Background(), e); err != nil {
			t.Errorf("Handle() error = %v", err)
		}
	}
	if len(pub.msgs) != 0 {
		t.Errorf("published %d messages, want 0", len(pub.msgs))
	}
}

func TestEventSink_ReturnsPublishError(t *testing.T) {
	pub := &fakePublisher{err: ErrNotConnected}
	sink := NewEventSink(pub, 1)

	err := sink.Handle(context.Background(), observer.Event{
		Operation: observer.OpDelete, Outcome: observer.OutcomeSuccess, Collection: "orders", OrgID: "o",
	})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Handle() error = %v, want ErrNotConnected", err)
	}
}
