// Package discovery is the entity platform of the service. It exposes
// sensors to Home Assistant through the MQTT integration's discovery
// protocol.
//
// For a sensor with object id groceries_1 it publishes, all retained:
//
//	homeassistant/sensor/list_to_entities/groceries_1/config   discovery config
//	list_to_entities/groceries_1/state                         status value
//	list_to_entities/groceries_1/attributes                    JSON attributes
//
// Availability is shared through list_to_entities/status, which the MQTT
// client sets to "online" on connect and the broker sets to "offline"
// through the last will.
package discovery
