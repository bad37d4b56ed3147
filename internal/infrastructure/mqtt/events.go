package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/tenantgate/internal/observer"
)

// Publisher is the subset of Client used by EventSink.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// EventPayload is the JSON body of a change event.
type EventPayload struct {
	Action     string `json:"action"`
	Collection string `json:"collection"`
	DocumentID string `json:"documentId,omitempty"`
	OrgID      string `json:"orgId"`
	UserID     string `json:"userId,omitempty"`
	Items      int    `json:"items,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// EventSink publishes committed mutations to
// tenantgate/events/{orgId}/{collection}/{action}.
type EventSink struct {
	pub Publisher
	qos byte
}

// NewEventSink creates an observer sink publishing through pub.
func NewEventSink(pub Publisher, qos byte) *EventSink {
	return &EventSink{pub: pub, qos: qos}
}

// Name identifies the sink in logs.
func (s *EventSink) Name() string { return "mqtt" }

// Handle publishes e when it is a committed mutation.
func (s *EventSink) Handle(ctx context.Context, e observer.Event) error {
	if !e.IsMutation() || e.OrgID == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(EventPayload{
		Action:     e.Operation,
		Collection: e.Collection,
		DocumentID: e.DocumentID,
		OrgID:      e.OrgID,
		UserID:     e.UserID,
		Items:      e.Items,
		Timestamp:  e.Time.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encoding event payload: %w", err)
	}

	topic := Topics{}.Event(e.OrgID, e.Collection, e.Operation)
	return s.pub.Publish(topic, payload, s.qos, false)
}
