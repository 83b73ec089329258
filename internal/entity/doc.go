// Package entity derives the sensor that mirrors one todo item.
//
// A Sensor's unique id is "<short watched id>_<uid>", so items of
// different watched lists never collide. Its value is the item status and
// its icon shows a checked box unless the status is needs_action.
package entity
