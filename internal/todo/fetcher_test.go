package todo

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/list-to-entities/internal/homeassistant"
)

// fakeCaller implements ServiceCaller for tests.
type fakeCaller struct {
	response json.RawMessage
	err      error

	hasAfter int // HasService returns true from this call on (1-based)
	hasErr   error
	hasCalls int

	calls   int
	domain  string
	service string
	target  *homeassistant.Target
	retResp bool
}

func (f *fakeCaller) CallService(_ context.Context, domain, service string, target *homeassistant.Target, _ map[string]any, returnResponse bool) (json.RawMessage, error) {
	f.calls++
	f.domain = domain
	f.service = service
	f.target = target
	f.retResp = returnResponse
	return f.response, f.err
}

func (f *fakeCaller) HasService(_ context.Context, domain, service string) (bool, error) {
	f.hasCalls++
	if f.hasErr != nil && f.hasCalls < f.hasAfter {
		return false, f.hasErr
	}
	return f.hasCalls >= f.hasAfter, nil
}

func strPtr(s string) *string { return &s }

func TestParseItemsResponse(t *testing.T) {
	const watched = "todo.groceries"

	tests := []struct {
		name         string
		raw          string
		wantItems    int
		wantDegraded bool
	}{
		{"empty body", ``, 0, true},
		{"null", `null`, 0, true},
		{"not an object", `[1,2]`, 0, true},
		{"missing entity key", `{"todo.other":{"items":[]}}`, 0, true},
		{"entity value null", `{"todo.groceries":null}`, 0, true},
		{"entity value not object", `{"todo.groceries":"x"}`, 0, true},
		{"missing items", `{"todo.groceries":{}}`, 0, true},
		{"items not a list", `{"todo.groceries":{"items":{"uid":"1"}}}`, 0, true},
		{"items null", `{"todo.groceries":{"items":null}}`, 0, true},
		{"empty list", `{"todo.groceries":{"items":[]}}`, 0, false},
		{"two items", `{"todo.groceries":{"items":[{"uid":"1"},{"uid":"2"}]}}`, 2, false},
		{"non-object elements skipped", `{"todo.groceries":{"items":[{"uid":"1"},"x",null,3]}}`, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := ParseItemsResponse(json.RawMessage(tt.raw), watched)
			if snap.Len() != tt.wantItems {
				t.Errorf("Len() = %d, want %d", snap.Len(), tt.wantItems)
			}
			if snap.Degraded != tt.wantDegraded {
				t.Errorf("Degraded = %v, want %v", snap.Degraded, tt.wantDegraded)
			}
		})
	}
}

func TestParseItemsResponse_Fields(t *testing.T) {
	raw := json.RawMessage(`{"todo.groceries":{"items":[
		{"uid":"1","summary":"Milk","status":"needs_action","description":"2 litres","due":"2026-10-15"},
		{"uid":"2","summary":"Eggs","status":"completed"},
		{"uid":3,"summary":false,"status":null}
	]}}`)

	snap := ParseItemsResponse(raw, "todo.groceries")
	if snap.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", snap.Len())
	}

	milk := snap.Items[0]
	if milk.UID != "1" || *milk.Summary != "Milk" || *milk.Status != StatusNeedsAction {
		t.Errorf("milk = %+v", milk)
	}
	if milk.Description == nil || *milk.Description != "2 litres" {
		t.Errorf("milk.Description = %v, want 2 litres", milk.Description)
	}
	if milk.Due == nil || *milk.Due != "2026-10-15" {
		t.Errorf("milk.Due = %v, want 2026-10-15", milk.Due)
	}
	if !milk.NeedsAction() {
		t.Error("milk.NeedsAction() = false")
	}

	eggs := snap.Items[1]
	if eggs.Description != nil || eggs.Due != nil {
		t.Errorf("eggs optional fields = %v/%v, want absent", eggs.Description, eggs.Due)
	}
	if eggs.NeedsAction() {
		t.Error("eggs.NeedsAction() = true for completed item")
	}

	// Wrong JSON types are treated as absent.
	odd := snap.Items[2]
	if odd.UID != "" || odd.Summary != nil || odd.Status != nil {
		t.Errorf("odd = %+v, want all absent", odd)
	}
}

func TestFetcher_Fetch(t *testing.T) {
	caller := &fakeCaller{
		response: json.RawMessage(`{"todo.groceries":{"items":[{"uid":"1","summary":"Milk","status":"needs_action"}]}}`),
	}
	f := NewFetcher(caller, nil)

	snap, err := f.Fetch(context.Background(), "todo.groceries")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if snap.Len() != 1 || snap.Items[0].UID != "1" {
		t.Errorf("Fetch() = %+v, want one item uid 1", snap)
	}
	if caller.domain != Domain || caller.service != ServiceGetItems {
		t.Errorf("called %s.%s, want todo.get_items", caller.domain, caller.service)
	}
	if caller.target == nil || len(caller.target.EntityID) != 1 || caller.target.EntityID[0] != "todo.groceries" {
		t.Errorf("target = %+v, want todo.groceries", caller.target)
	}
	if !caller.retResp {
		t.Error("returnResponse = false, want true")
	}
}

func TestFetcher_FetchDegrades(t *testing.T) {
	caller := &fakeCaller{response: json.RawMessage(`{"todo.groceries":{}}`)}
	f := NewFetcher(caller, nil)

	snap, err := f.Fetch(context.Background(), "todo.groceries")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !snap.Degraded || snap.Len() != 0 {
		t.Errorf("Fetch() = %+v, want empty degraded snapshot", snap)
	}
}

func TestFetcher_FetchError(t *testing.T) {
	caller := &fakeCaller{err: homeassistant.ErrNotConnected}
	f := NewFetcher(caller, nil)

	_, err := f.Fetch(context.Background(), "todo.groceries")
	if !errors.Is(err, homeassistant.ErrNotConnected) {
		t.Fatalf("Fetch() error = %v, want ErrNotConnected", err)
	}
}

func TestFetcher_WaitForService(t *testing.T) {
	caller := &fakeCaller{hasAfter: 3, hasErr: homeassistant.ErrNotConnected}
	f := NewFetcher(caller, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := f.WaitForService(ctx, 10*time.Millisecond); err != nil {
		t.Fatalf("WaitForService() error = %v", err)
	}
	if caller.hasCalls != 3 {
		t.Errorf("HasService calls = %d, want 3", caller.hasCalls)
	}
}

func TestFetcher_WaitForServiceCancelled(t *testing.T) {
	caller := &fakeCaller{hasAfter: 1 << 30}
	f := NewFetcher(caller, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := f.WaitForService(ctx, 10*time.Millisecond); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitForService() error = %v, want DeadlineExceeded", err)
	}
}

func TestItem_NeedsAction(t *testing.T) {
	tests := []struct {
		status *string
		want   bool
	}{
		{nil, false},
		{strPtr(StatusNeedsAction), true},
		{strPtr(StatusCompleted), false},
		{strPtr(""), false},
	}
	for _, tt := range tests {
		if got := (Item{UID: "1", Status: tt.status}).NeedsAction(); got != tt.want {
			t.Errorf("NeedsAction(%v) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
