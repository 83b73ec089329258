package homeassistant

import (
	"encoding/json"
)

// WebSocket message types.
const (
	typeAuthRequired      = "auth_required"
	typeAuth              = "auth"
	typeAuthOK            = "auth_ok"
	typeAuthInvalid       = "auth_invalid"
	typeResult            = "result"
	typeEvent             = "event"
	typePing              = "ping"
	typePong              = "pong"
	typeCallService       = "call_service"
	typeGetServices       = "get_services"
	typeGetStates         = "get_states"
	typeSubscribeEvents   = "subscribe_events"
	typeUnsubscribeEvents = "unsubscribe_events"
)

// Event types consumed by the list sync service.
const (
	EventStateChanged = "state_changed"
	EventCallService  = "call_service"
)

// authMessage is sent in reply to auth_required.
type authMessage struct {
	Type        string `json:"type"`
	AccessToken string `json:"access_token"`
}

// Target selects the entities a service call applies to.
type Target struct {
	EntityID []string `json:"entity_id,omitempty"`
}

// outbound is any command sent after authentication.
type outbound struct {
	ID             int64          `json:"id"`
	Type           string         `json:"type"`
	Domain         string         `json:"domain,omitempty"`
	Service        string         `json:"service,omitempty"`
	ServiceData    map[string]any `json:"service_data,omitempty"`
	Target         *Target        `json:"target,omitempty"`
	ReturnResponse bool           `json:"return_response,omitempty"`
	EventType      string         `json:"event_type,omitempty"`
	Subscription   int64          `json:"subscription,omitempty"`
}

// inbound is any message received from Home Assistant.
type inbound struct {
	ID        int64           `json:"id"`
	Type      string          `json:"type"`
	Success   bool            `json:"success"`
	Result    json.RawMessage `json:"result"`
	Error     *errorDetail    `json:"error"`
	Event     *Event          `json:"event"`
	HAVersion string          `json:"ha_version"`
	Message   string          `json:"message"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// callServiceResult is the result body of call_service.
type callServiceResult struct {
	Response json.RawMessage `json:"response"`
}

// Event is a Home Assistant bus event.
type Event struct {
	EventType string          `json:"event_type"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin"`
	TimeFired string          `json:"time_fired"`
}

// State is an entity state object as returned by get_states.
type State struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged string         `json:"last_changed"`
	LastUpdated string         `json:"last_updated"`
}

// FriendlyName returns the friendly_name attribute, or "" when absent.
func (s *State) FriendlyName() string {
	if s == nil {
		return ""
	}
	name, _ := s.Attributes["friendly_name"].(string)
	return name
}

// StateChangedData is the data of a state_changed event.
type StateChangedData struct {
	EntityID string `json:"entity_id"`
	OldState *State `json:"old_state"`
	NewState *State `json:"new_state"`
}

// CallServiceData is the data of a call_service event.
type CallServiceData struct {
	Domain      string         `json:"domain"`
	Service     string         `json:"service"`
	ServiceData map[string]any `json:"service_data"`
}

// EntityIDs returns service_data.entity_id as a list. Home Assistant sends
// either a single string or a list; anything else yields nil. Non-string
// list elements are kept as "" so positions are preserved.
func (d CallServiceData) EntityIDs() []string {
	switch v := d.ServiceData["entity_id"].(type) {
	case string:
		return []string{v}
	case []any:
		ids := make([]string, 0, len(v))
		for _, item := range v {
			s, _ := item.(string)
			ids = append(ids, s)
		}
		return ids
	case []string:
		return v
	default:
		return nil
	}
}
