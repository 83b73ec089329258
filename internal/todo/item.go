package todo

// Item statuses reported by Home Assistant todo entities.
const (
	StatusNeedsAction = "needs_action"
	StatusCompleted   = "completed"
)

// Item is one entry of a todo list as returned by todo.get_items.
//
// UID is the identity key. Every other field is an attribute of that
// identity and may be absent (nil).
type Item struct {
	UID         string
	Summary     *string
	Status      *string
	Description *string
	Due         *string
}

// NeedsAction reports whether the item is still open.
func (i Item) NeedsAction() bool {
	return i.Status != nil && *i.Status == StatusNeedsAction
}

// Snapshot is the content of a watched list at one point in time.
// Item order carries no meaning.
type Snapshot struct {
	Items []Item

	// Degraded is set when the response could not be understood and the
	// snapshot fell back to empty.
	Degraded bool
}

// Len returns the number of items.
func (s Snapshot) Len() int {
	return len(s.Items)
}
