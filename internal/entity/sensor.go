package entity

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/nerrad567/list-to-entities/internal/infrastructure/mqtt"
	"github.com/nerrad567/list-to-entities/internal/todo"
)

// Icons for the two item states.
const (
	IconUnchecked = "mdi:checkbox-blank-outline"
	IconChecked   = "mdi:checkbox-marked"
)

// Platform is the entity platform of every mirrored item.
const Platform = "sensor"

// Attribute keys published with each sensor.
const (
	AttrUID         = "uid"
	AttrWrappedID   = "wrapped_id"
	AttrSummary     = "summary"
	AttrDescription = "description"
	AttrDue         = "due"
)

// Sensor is the entity mirroring one todo item.
//
// Identity fields are fixed at creation. The derived fields (Name,
// NativeValue, Icon, Attributes) are recomputed by Update.
type Sensor struct {
	WrappedEntityID string // e.g. "todo.groceries"
	WrappedID       string // short form, e.g. "groceries"
	UID             string
	UniqueID        string // "<WrappedID>_<UID>"
	ObjectID        string
	EntityID        string // "sensor.<ObjectID>"

	Name        string
	NativeValue string
	Icon        string
	Attributes  map[string]string

	item todo.Item
}

// New creates the sensor for item on the watched list.
func New(watchedEntityID string, item todo.Item) *Sensor {
	short := ShortID(watchedEntityID)
	uniqueID := UniqueID(watchedEntityID, item.UID)
	objectID := ObjectID(uniqueID)

	s := &Sensor{
		WrappedEntityID: watchedEntityID,
		WrappedID:       short,
		UID:             item.UID,
		UniqueID:        uniqueID,
		ObjectID:        objectID,
		EntityID:        Platform + "." + objectID,
	}
	s.Update(item)
	return s
}

// Update replaces the backing item and recomputes the derived fields.
// The uid of item is expected to match the sensor's.
func (s *Sensor) Update(item todo.Item) {
	s.item = item
	s.Name = deref(item.Summary)
	s.NativeValue = deref(item.Status)
	s.Icon = IconChecked
	if item.NeedsAction() {
		s.Icon = IconUnchecked
	}

	attrs := map[string]string{
		AttrUID:       item.UID,
		AttrWrappedID: s.WrappedID,
	}
	if item.Summary != nil {
		attrs[AttrSummary] = *item.Summary
	}
	if item.Description != nil {
		attrs[AttrDescription] = *item.Description
	}
	if item.Due != nil {
		attrs[AttrDue] = *item.Due
	}
	s.Attributes = attrs
}

// Item returns the item the sensor was last updated from.
func (s *Sensor) Item() todo.Item {
	return s.item
}

// ShortID returns the object id part of an entity id ("todo.x" -> "x").
func ShortID(entityID string) string {
	if _, objectID, ok := strings.Cut(entityID, "."); ok {
		return objectID
	}
	return entityID
}

// UniqueID returns the unique id of the sensor for uid on the watched list.
func UniqueID(watchedEntityID, uid string) string {
	return ShortID(watchedEntityID) + "_" + uid
}

// ObjectID returns the discovery object id for uniqueID. When sanitising
// alters the identifier, a hash of the raw value is appended so unique ids
// differing only in case or punctuation keep distinct object ids.
func ObjectID(uniqueID string) string {
	objectID := mqtt.SanitizeObjectID(uniqueID)
	if objectID == uniqueID {
		return objectID
	}
	h := fnv.New32a()
	h.Write([]byte(uniqueID))
	return fmt.Sprintf("%s_%08x", objectID, h.Sum32())
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
