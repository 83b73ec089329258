package mqtt

import (
	"fmt"
	"strings"

	"github.com/nerrad567/list-to-entities/internal/infrastructure/config"
)

// Availability payloads understood by Home Assistant without extra config.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics provides builders for the Home Assistant MQTT discovery layout.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.NewTopics(cfg.MQTT)
//	topics.SensorConfig("groceries_1")
//	// Returns: "homeassistant/sensor/list_to_entities/groceries_1/config"
type Topics struct {
	DiscoveryPrefix string
	BaseTopic       string
	NodeID          string
}

// NewTopics returns topic builders for the configured prefixes.
func NewTopics(cfg config.MQTTConfig) Topics {
	return Topics{
		DiscoveryPrefix: cfg.DiscoveryPrefix,
		BaseTopic:       cfg.BaseTopic,
		NodeID:          cfg.NodeID,
	}
}

// =============================================================================
// Discovery Topics
// =============================================================================

// SensorConfig returns the retained discovery config topic for a sensor.
//
// Example: homeassistant/sensor/list_to_entities/groceries_1/config
func (t Topics) SensorConfig(objectID string) string {
	return fmt.Sprintf("%s/sensor/%s/%s/config", t.DiscoveryPrefix, t.NodeID, objectID)
}

// HomeAssistantStatus returns the birth/will topic of Home Assistant itself.
// An "online" message there means discovery configs must be republished.
//
// Example: homeassistant/status
func (t Topics) HomeAssistantStatus() string {
	return fmt.Sprintf("%s/status", t.DiscoveryPrefix)
}

// =============================================================================
// Entity Topics
// =============================================================================

// SensorState returns the state topic for a sensor.
//
// Example: list_to_entities/groceries_1/state
func (t Topics) SensorState(objectID string) string {
	return fmt.Sprintf("%s/%s/state", t.BaseTopic, objectID)
}

// SensorAttributes returns the JSON attributes topic for a sensor.
//
// Example: list_to_entities/groceries_1/attributes
func (t Topics) SensorAttributes(objectID string) string {
	return fmt.Sprintf("%s/%s/attributes", t.BaseTopic, objectID)
}

// Availability returns the service availability topic shared by all sensors.
//
// Example: list_to_entities/status
func (t Topics) Availability() string {
	return fmt.Sprintf("%s/status", t.BaseTopic)
}

// SanitizeObjectID maps an arbitrary identifier onto the characters Home
// Assistant accepts in a discovery object id ([a-z0-9_-]). Anything else,
// including topic wildcards and separators, becomes an underscore.
func SanitizeObjectID(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range strings.ToLower(id) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
