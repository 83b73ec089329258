package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/list-to-entities/internal/entity"
	"github.com/nerrad567/list-to-entities/internal/infrastructure/mqtt"
	"github.com/nerrad567/list-to-entities/internal/registry"
)

const (
	manufacturer = "list-to-entities"
	model        = "Todo list mirror"
)

// Publisher is the subset of the MQTT client the platform needs.
type Publisher interface {
	PublishRetained(topic string, payload []byte) error
	ClearRetained(topic string) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the logging interface used by the platform.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Platform publishes sensors to Home Assistant through MQTT discovery.
//
// Every message is retained, so Home Assistant rebuilds the entities after
// its own restart. Removing a sensor clears its retained config, which
// makes Home Assistant delete the entity.
type Platform struct {
	pub     Publisher
	topics  mqtt.Topics
	version string
	logger  Logger
}

// New creates a discovery platform.
func New(pub Publisher, topics mqtt.Topics, version string, logger Logger) *Platform {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Platform{
		pub:     pub,
		topics:  topics,
		version: version,
		logger:  logger,
	}
}

// AddEntities announces sensors and publishes their state and attributes.
func (p *Platform) AddEntities(ctx context.Context, sensors []*entity.Sensor) error {
	for _, s := range sensors {
		if err := p.publish(ctx, s); err != nil {
			return err
		}
		p.logger.Debug("entity announced", "entity_id", s.EntityID, "unique_id", s.UniqueID)
	}
	return nil
}

// WriteState republishes a sensor after Update. The config is sent again
// because it carries the name and icon.
func (p *Platform) WriteState(ctx context.Context, s *entity.Sensor) error {
	return p.publish(ctx, s)
}

// RemoveEntity removes a live sensor from Home Assistant.
func (p *Platform) RemoveEntity(ctx context.Context, s *entity.Sensor) error {
	return p.clear(ctx, s.ObjectID)
}

// RemoveRecord removes the entity behind a registry record that has no
// live sensor, e.g. a leftover from a previous run.
func (p *Platform) RemoveRecord(ctx context.Context, e registry.Entry) error {
	return p.clear(ctx, strings.TrimPrefix(e.EntityID, entity.Platform+"."))
}

// OnHomeAssistantOnline subscribes to Home Assistant's birth topic and
// calls fn whenever Home Assistant reports "online", so discovery configs
// can be republished. fn runs on its own goroutine: publishing from the
// paho callback would block the client's message router.
func (p *Platform) OnHomeAssistantOnline(fn func()) error {
	topic := p.topics.HomeAssistantStatus()
	err := p.pub.Subscribe(topic, 1, func(_ string, payload []byte) error {
		if string(payload) != mqtt.PayloadOnline {
			return nil
		}
		p.logger.Info("home assistant came online, republishing entities")
		go fn()
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return nil
}

// Close drops the birth topic subscription.
func (p *Platform) Close() error {
	return p.pub.Unsubscribe(p.topics.HomeAssistantStatus())
}

func (p *Platform) publish(ctx context.Context, s *entity.Sensor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	config, err := p.configPayload(s)
	if err != nil {
		return err
	}
	attrs, err := attributesPayload(s)
	if err != nil {
		return err
	}

	if err := p.pub.PublishRetained(p.topics.SensorConfig(s.ObjectID), config); err != nil {
		return fmt.Errorf("publishing config of %s: %w", s.EntityID, err)
	}
	if err := p.pub.PublishRetained(p.topics.SensorState(s.ObjectID), statePayload(s)); err != nil {
		return fmt.Errorf("publishing state of %s: %w", s.EntityID, err)
	}
	if err := p.pub.PublishRetained(p.topics.SensorAttributes(s.ObjectID), attrs); err != nil {
		return fmt.Errorf("publishing attributes of %s: %w", s.EntityID, err)
	}
	return nil
}

func (p *Platform) clear(ctx context.Context, objectID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Config first: Home Assistant deletes the entity on an empty config.
	for _, topic := range []string{
		p.topics.SensorConfig(objectID),
		p.topics.SensorState(objectID),
		p.topics.SensorAttributes(objectID),
	} {
		if err := p.pub.ClearRetained(topic); err != nil {
			return fmt.Errorf("clearing %s: %w", topic, err)
		}
	}
	p.logger.Debug("entity removed", "object_id", objectID)
	return nil
}
