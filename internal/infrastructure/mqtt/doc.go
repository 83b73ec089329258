// Package mqtt provides MQTT client connectivity for the list sync service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Retained publishing of Home Assistant discovery configs, states and attributes
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) on the availability topic
//   - Connection health monitoring
//
// # Architecture
//
// Materialised sensors reach Home Assistant through its MQTT integration:
//
//	listsync → MQTT Broker → Home Assistant (MQTT discovery)
//
// # Topic layout
//
//	homeassistant/sensor/<node_id>/<object_id>/config   discovery config (retained)
//	<base_topic>/<object_id>/state                      sensor state (retained)
//	<base_topic>/<object_id>/attributes                 JSON attributes (retained)
//	<base_topic>/status                                 online/offline (retained, LWT)
//	homeassistant/status                                Home Assistant birth message
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	client.PublishRetained(topics.SensorState("groceries_1"), []byte("needs_action"))
package mqtt
