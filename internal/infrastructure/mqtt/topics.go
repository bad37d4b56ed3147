package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes.
const (
	// TopicPrefix is the root of every gateway topic.
	TopicPrefix = "tenantgate"

	// TopicPrefixEvents is the base for change events:
	// tenantgate/events/{orgId}/{collection}/{action}
	TopicPrefixEvents = TopicPrefix + "/events"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Topics provides builders for gateway MQTT topics.
//
//	topic := mqtt.Topics{}.Event("6650f0...", "orders", "create")
//	// Returns: "tenantgate/events/6650f0.../orders/create"
type Topics struct{}

// Event returns the topic for a committed change in one tenant's collection.
// Characters that are special in MQTT topic levels are replaced.
func (Topics) Event(orgID, collection, action string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefixEvents, level(orgID), level(collection), level(action))
}

// OrgEvents returns a wildcard matching every event of one tenant.
func (Topics) OrgEvents(orgID string) string {
	return fmt.Sprintf("%s/%s/#", TopicPrefixEvents, level(orgID))
}

// AllEvents returns a wildcard matching every change event.
func (Topics) AllEvents() string {
	return TopicPrefixEvents + "/#"
}

// SystemStatus returns the retained gateway online/offline topic.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

var levelReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

func level(s string) string {
	if s == "" {
		return "_"
	}
	return levelReplacer.Replace(s)
}
