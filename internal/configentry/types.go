package configentry

import (
	"fmt"
	"strings"
	"time"
)

// Domain is the integration domain every entry belongs to.
const Domain = "list_to_entities"

// WatchedDomain is the only entity domain that can be watched.
const WatchedDomain = "todo"

// State is the runtime state of a config entry. It is not persisted.
type State string

// Config entry states.
const (
	StateNotLoaded       State = "not_loaded"
	StateSetupInProgress State = "setup_in_progress"
	StateNotReady        State = "not_ready"
	StateLoaded          State = "loaded"
	StateSetupError      State = "setup_error"
)

// Options are the user-supplied settings of an entry.
type Options struct {
	EntityID string `json:"entity_id"`
}

// Entry is one configured instance watching one todo list.
type Entry struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	Title     string    `json:"title"`
	Options   Options   `json:"options"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// WatchedEntityID returns the todo entity the entry mirrors.
func (e *Entry) WatchedEntityID() string {
	return e.Options.EntityID
}

// ValidateWatchedEntityID checks that id is a todo entity id such as
// "todo.groceries". The object id may contain lowercase letters, digits
// and single underscores, and may not start or end with an underscore.
func ValidateWatchedEntityID(id string) error {
	domain, objectID, ok := strings.Cut(id, ".")
	if !ok || domain != WatchedDomain {
		return fmt.Errorf("%w: %q is not in the %s domain", ErrInvalidEntityID, id, WatchedDomain)
	}
	if objectID == "" {
		return fmt.Errorf("%w: %q has no object id", ErrInvalidEntityID, id)
	}
	if strings.HasPrefix(objectID, "_") || strings.HasSuffix(objectID, "_") || strings.Contains(objectID, "__") {
		return fmt.Errorf("%w: %q has misplaced underscores", ErrInvalidEntityID, id)
	}
	for _, r := range objectID {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidEntityID, id, r)
		}
	}
	return nil
}
