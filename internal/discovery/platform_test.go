package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/list-to-entities/internal/entity"
	"github.com/nerrad567/list-to-entities/internal/infrastructure/mqtt"
	"github.com/nerrad567/list-to-entities/internal/registry"
	"github.com/nerrad567/list-to-entities/internal/todo"
)

// fakePublisher records retained messages like a broker would.
type fakePublisher struct {
	mu       sync.Mutex
	retained map[string][]byte
	cleared  []string
	handlers map[string]mqtt.MessageHandler
	failOn   string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{
		retained: make(map[string][]byte),
		handlers: make(map[string]mqtt.MessageHandler),
	}
}

func (f *fakePublisher) PublishRetained(topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if topic == f.failOn {
		return mqtt.ErrNotConnected
	}
	f.retained[topic] = payload
	return nil
}

func (f *fakePublisher) ClearRetained(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.retained, topic)
	f.cleared = append(f.cleared, topic)
	return nil
}

func (f *fakePublisher) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakePublisher) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakePublisher) get(topic string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.retained[topic]
	return p, ok
}

var testTopics = mqtt.Topics{
	DiscoveryPrefix: "homeassistant",
	BaseTopic:       "list_to_entities",
	NodeID:          "list_to_entities",
}

func ptr(s string) *string { return &s }

func milk() *entity.Sensor {
	return entity.New("todo.groceries", todo.Item{
		UID:     "1",
		Summary: ptr("Milk"),
		Status:  ptr(todo.StatusNeedsAction),
	})
}

func TestAddEntities_PublishesConfigStateAttributes(t *testing.T) {
	pub := newFakePublisher()
	p := New(pub, testTopics, "1.2.3", nil)

	if err := p.AddEntities(context.Background(), []*entity.Sensor{milk()}); err != nil {
		t.Fatalf("AddEntities() error = %v", err)
	}

	raw, ok := pub.get("homeassistant/sensor/list_to_entities/groceries_1/config")
	if !ok {
		t.Fatal("discovery config not published")
	}
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}

	want := map[string]string{
		"name":                  "Milk",
		"unique_id":             "groceries_1",
		"object_id":             "groceries_1",
		"default_entity_id":     "sensor.groceries_1",
		"state_topic":           "list_to_entities/groceries_1/state",
		"json_attributes_topic": "list_to_entities/groceries_1/attributes",
		"icon":                  entity.IconUnchecked,
		"availability_topic":    "list_to_entities/status",
	}
	for k, v := range want {
		if cfg[k] != v {
			t.Errorf("config[%q] = %v, want %q", k, cfg[k], v)
		}
	}
	device, _ := cfg["device"].(map[string]any)
	ids, _ := device["identifiers"].([]any)
	if len(ids) != 1 || ids[0] != "list_to_entities_groceries" {
		t.Errorf("device.identifiers = %v", device["identifiers"])
	}
	if device["sw_version"] != "1.2.3" {
		t.Errorf("device.sw_version = %v, want 1.2.3", device["sw_version"])
	}

	state, _ := pub.get("list_to_entities/groceries_1/state")
	if string(state) != "needs_action" {
		t.Errorf("state = %q, want needs_action", state)
	}

	rawAttrs, _ := pub.get("list_to_entities/groceries_1/attributes")
	var attrs map[string]string
	if err := json.Unmarshal(rawAttrs, &attrs); err != nil {
		t.Fatalf("unmarshal attributes: %v", err)
	}
	if attrs["summary"] != "Milk" || attrs["uid"] != "1" || attrs["wrapped_id"] != "groceries" {
		t.Errorf("attributes = %v", attrs)
	}
}

func TestWriteState_RepublishesAfterUpdate(t *testing.T) {
	pub := newFakePublisher()
	p := New(pub, testTopics, "", nil)
	s := milk()

	if err := p.AddEntities(context.Background(), []*entity.Sensor{s}); err != nil {
		t.Fatalf("AddEntities() error = %v", err)
	}

	s.Update(todo.Item{UID: "1", Summary: ptr("Milk"), Status: ptr(todo.StatusCompleted)})
	if err := p.WriteState(context.Background(), s); err != nil {
		t.Fatalf("WriteState() error = %v", err)
	}

	state, _ := pub.get("list_to_entities/groceries_1/state")
	if string(state) != "completed" {
		t.Errorf("state = %q, want completed", state)
	}
	raw, _ := pub.get("homeassistant/sensor/list_to_entities/groceries_1/config")
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if cfg["icon"] != entity.IconChecked {
		t.Errorf("icon = %v, want %s", cfg["icon"], entity.IconChecked)
	}
}

func TestAbsentFields(t *testing.T) {
	pub := newFakePublisher()
	p := New(pub, testTopics, "", nil)
	s := entity.New("todo.groceries", todo.Item{UID: "9"})

	if err := p.AddEntities(context.Background(), []*entity.Sensor{s}); err != nil {
		t.Fatalf("AddEntities() error = %v", err)
	}

	state, _ := pub.get("list_to_entities/groceries_9/state")
	if string(state) != payloadNone {
		t.Errorf("state = %q, want %q", state, payloadNone)
	}
	raw, _ := pub.get("homeassistant/sensor/list_to_entities/groceries_9/config")
	var cfg map[string]any
	if err := json.Unmarshal(raw, &cfg); err != nil {
		t.Fatalf("unmarshal config: %v", err)
	}
	if name, ok := cfg["name"]; !ok || name != nil {
		t.Errorf("name = %v, want null", name)
	}
}

func TestRemoveEntityAndRecord(t *testing.T) {
	pub := newFakePublisher()
	p := New(pub, testTopics, "", nil)
	s := milk()

	if err := p.AddEntities(context.Background(), []*entity.Sensor{s}); err != nil {
		t.Fatalf("AddEntities() error = %v", err)
	}
	if err := p.RemoveEntity(context.Background(), s); err != nil {
		t.Fatalf("RemoveEntity() error = %v", err)
	}
	if len(pub.retained) != 0 {
		t.Errorf("retained after RemoveEntity = %v, want none", pub.retained)
	}
	if len(pub.cleared) != 3 || pub.cleared[0] != "homeassistant/sensor/list_to_entities/groceries_1/config" {
		t.Errorf("cleared = %v, want config first", pub.cleared)
	}

	pub.cleared = nil
	rec := registry.Entry{EntityID: "sensor.groceries_7", UniqueID: "groceries_7"}
	if err := p.RemoveRecord(context.Background(), rec); err != nil {
		t.Fatalf("RemoveRecord() error = %v", err)
	}
	if len(pub.cleared) != 3 || pub.cleared[0] != "homeassistant/sensor/list_to_entities/groceries_7/config" {
		t.Errorf("cleared = %v", pub.cleared)
	}
}

func TestAddEntities_PublishError(t *testing.T) {
	pub := newFakePublisher()
	pub.failOn = "list_to_entities/groceries_1/state"
	p := New(pub, testTopics, "", nil)

	err := p.AddEntities(context.Background(), []*entity.Sensor{milk()})
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Fatalf("AddEntities() error = %v, want ErrNotConnected", err)
	}
}

func TestAddEntities_CancelledContext(t *testing.T) {
	pub := newFakePublisher()
	p := New(pub, testTopics, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.AddEntities(ctx, []*entity.Sensor{milk()}); !errors.Is(err, context.Canceled) {
		t.Fatalf("AddEntities() error = %v, want Canceled", err)
	}
	if len(pub.retained) != 0 {
		t.Errorf("published %d messages after cancel", len(pub.retained))
	}
}

func TestOnHomeAssistantOnline(t *testing.T) {
	pub := newFakePublisher()
	p := New(pub, testTopics, "", nil)

	called := make(chan struct{}, 2)
	if err := p.OnHomeAssistantOnline(func() { called <- struct{}{} }); err != nil {
		t.Fatalf("OnHomeAssistantOnline() error = %v", err)
	}

	handler := pub.handlers["homeassistant/status"]
	if handler == nil {
		t.Fatal("birth topic not subscribed")
	}

	//nolint:errcheck // Handler never fails
	handler("homeassistant/status", []byte("offline"))
	//nolint:errcheck // Handler never fails
	handler("homeassistant/status", []byte("online"))

	select {
	case <-called:
	case <-time.After(time.Second):
		t.Fatal("callback not called for online")
	}
	select {
	case <-called:
		t.Error("callback called for offline")
	case <-time.After(50 * time.Millisecond):
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := pub.handlers["homeassistant/status"]; ok {
		t.Error("birth topic still subscribed after Close")
	}
}
