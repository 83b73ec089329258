package entity

import (
	"testing"

	"github.com/nerrad567/list-to-entities/internal/todo"
)

func ptr(s string) *string { return &s }

func TestNew(t *testing.T) {
	s := New("todo.groceries", todo.Item{
		UID:     "1",
		Summary: ptr("Milk"),
		Status:  ptr(todo.StatusNeedsAction),
	})

	checks := []struct {
		field, got, want string
	}{
		{"WrappedEntityID", s.WrappedEntityID, "todo.groceries"},
		{"WrappedID", s.WrappedID, "groceries"},
		{"UID", s.UID, "1"},
		{"UniqueID", s.UniqueID, "groceries_1"},
		{"ObjectID", s.ObjectID, "groceries_1"},
		{"EntityID", s.EntityID, "sensor.groceries_1"},
		{"Name", s.Name, "Milk"},
		{"NativeValue", s.NativeValue, "needs_action"},
		{"Icon", s.Icon, IconUnchecked},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}

	want := map[string]string{"uid": "1", "wrapped_id": "groceries", "summary": "Milk"}
	if len(s.Attributes) != len(want) {
		t.Fatalf("Attributes = %v, want %v", s.Attributes, want)
	}
	for k, v := range want {
		if s.Attributes[k] != v {
			t.Errorf("Attributes[%q] = %q, want %q", k, s.Attributes[k], v)
		}
	}
}

func TestUpdate(t *testing.T) {
	s := New("todo.groceries", todo.Item{UID: "1", Summary: ptr("Milk"), Status: ptr(todo.StatusNeedsAction)})

	s.Update(todo.Item{
		UID:         "1",
		Summary:     ptr("Oat milk"),
		Status:      ptr(todo.StatusCompleted),
		Description: ptr("2 litres"),
		Due:         ptr("2026-10-15"),
	})

	if s.Name != "Oat milk" {
		t.Errorf("Name = %q, want Oat milk", s.Name)
	}
	if s.NativeValue != "completed" {
		t.Errorf("NativeValue = %q, want completed", s.NativeValue)
	}
	if s.Icon != IconChecked {
		t.Errorf("Icon = %q, want %q", s.Icon, IconChecked)
	}
	if s.Attributes[AttrDescription] != "2 litres" || s.Attributes[AttrDue] != "2026-10-15" {
		t.Errorf("Attributes = %v", s.Attributes)
	}
	if s.UniqueID != "groceries_1" {
		t.Errorf("UniqueID changed to %q", s.UniqueID)
	}

	// Fields that become absent leave the attribute bag.
	s.Update(todo.Item{UID: "1", Status: ptr(todo.StatusCompleted)})
	if _, ok := s.Attributes[AttrSummary]; ok {
		t.Error("summary attribute kept after summary became absent")
	}
	if _, ok := s.Attributes[AttrDescription]; ok {
		t.Error("description attribute kept after description became absent")
	}
	if s.Name != "" {
		t.Errorf("Name = %q, want empty", s.Name)
	}
}

func TestIcon(t *testing.T) {
	tests := []struct {
		name   string
		status *string
		want   string
	}{
		{"needs action", ptr("needs_action"), IconUnchecked},
		{"completed", ptr("completed"), IconChecked},
		{"other", ptr("in_process"), IconChecked},
		{"absent", nil, IconChecked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New("todo.x", todo.Item{UID: "1", Status: tt.status})
			if s.Icon != tt.want {
				t.Errorf("Icon = %q, want %q", s.Icon, tt.want)
			}
		})
	}
}

func TestUniqueIDsDoNotCollideAcrossLists(t *testing.T) {
	a := New("todo.groceries", todo.Item{UID: "1"})
	b := New("todo.work", todo.Item{UID: "1"})
	if a.UniqueID == b.UniqueID {
		t.Errorf("UniqueID collision: %q", a.UniqueID)
	}
}

func TestObjectIDSanitised(t *testing.T) {
	s := New("todo.groceries", todo.Item{UID: "A1/b+c"})
	if s.UniqueID != "groceries_A1/b+c" {
		t.Errorf("UniqueID = %q", s.UniqueID)
	}
	if s.ObjectID != "groceries_a1_b_c_d7bb7b48" {
		t.Errorf("ObjectID = %q, want groceries_a1_b_c_d7bb7b48", s.ObjectID)
	}
	if s.EntityID != "sensor.groceries_a1_b_c_d7bb7b48" {
		t.Errorf("EntityID = %q", s.EntityID)
	}
}

func TestObjectIDDistinctForSimilarUIDs(t *testing.T) {
	tests := []struct {
		name string
		uids []string
	}{
		{"case variants", []string{"Ab", "aB", "ab", "AB"}},
		{"punctuation", []string{"a.b", "a_b", "a/b", "a b"}},
		{"wildcards", []string{"a+", "a#", "a_"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen := make(map[string]string)
			for _, uid := range tt.uids {
				s := New("todo.groceries", todo.Item{UID: uid})
				if prev, ok := seen[s.EntityID]; ok {
					t.Fatalf("uids %q and %q both map to %s", prev, uid, s.EntityID)
				}
				seen[s.EntityID] = uid
			}
		})
	}
}

func TestObjectIDKeepsCleanIdentifiers(t *testing.T) {
	tests := map[string]string{
		"groceries_1":                                    "groceries_1",
		"groceries_5f0c6a4e-8c1b-4a1d-9d77-0f8e2c3b1a90": "groceries_5f0c6a4e-8c1b-4a1d-9d77-0f8e2c3b1a90",
		"groceries_Ab":                                   "groceries_ab_57b950a6",
		"groceries_aB":                                   "groceries_ab_376aff66",
	}
	for in, want := range tests {
		if got := ObjectID(in); got != want {
			t.Errorf("ObjectID(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestShortID(t *testing.T) {
	tests := map[string]string{
		"todo.groceries": "groceries",
		"todo.a.b":       "a.b",
		"groceries":      "groceries",
	}
	for in, want := range tests {
		if got := ShortID(in); got != want {
			t.Errorf("ShortID(%q) = %q, want %q", in, got, want)
		}
	}
}
