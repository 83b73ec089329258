package discovery

import (
	"encoding/json"
	"fmt"

	"github.com/nerrad567/list-to-entities/internal/entity"
	"github.com/nerrad567/list-to-entities/internal/infrastructure/mqtt"
)

// payloadNone is the state Home Assistant reads as "unknown". An empty
// payload cannot be used because it clears the retained message.
const payloadNone = "None"

// sensorConfig is the MQTT discovery config of one sensor.
type sensorConfig struct {
	Name                *string    `json:"name"`
	UniqueID            string     `json:"unique_id"`
	ObjectID            string     `json:"object_id"`
	DefaultEntityID     string     `json:"default_entity_id"`
	StateTopic          string     `json:"state_topic"`
	JSONAttributesTopic string     `json:"json_attributes_topic"`
	Icon                string     `json:"icon"`
	AvailabilityTopic   string     `json:"availability_topic"`
	Device              deviceInfo `json:"device"`
	Origin              originInfo `json:"origin"`
}

// deviceInfo groups every sensor of one watched list under one device.
type deviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

type originInfo struct {
	Name      string `json:"name"`
	SWVersion string `json:"sw_version,omitempty"`
}

func (p *Platform) configPayload(s *entity.Sensor) ([]byte, error) {
	cfg := sensorConfig{
		UniqueID:            s.UniqueID,
		ObjectID:            s.ObjectID,
		DefaultEntityID:     s.EntityID,
		StateTopic:          p.topics.SensorState(s.ObjectID),
		JSONAttributesTopic: p.topics.SensorAttributes(s.ObjectID),
		Icon:                s.Icon,
		AvailabilityTopic:   p.topics.Availability(),
		Device: deviceInfo{
			Identifiers:  []string{deviceID(p.topics.NodeID, s.WrappedID)},
			Name:         s.WrappedEntityID,
			Manufacturer: manufacturer,
			Model:        model,
			SWVersion:    p.version,
		},
		Origin: originInfo{
			Name:      manufacturer,
			SWVersion: p.version,
		},
	}
	if s.Name != "" {
		name := s.Name
		cfg.Name = &name
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshalling discovery config for %s: %w", s.UniqueID, err)
	}
	return data, nil
}

func statePayload(s *entity.Sensor) []byte {
	if s.NativeValue == "" {
		return []byte(payloadNone)
	}
	return []byte(s.NativeValue)
}

func attributesPayload(s *entity.Sensor) ([]byte, error) {
	data, err := json.Marshal(s.Attributes)
	if err != nil {
		return nil, fmt.Errorf("marshalling attributes for %s: %w", s.UniqueID, err)
	}
	return data, nil
}

func deviceID(nodeID, wrappedID string) string {
	return nodeID + "_" + mqtt.SanitizeObjectID(wrappedID)
}
