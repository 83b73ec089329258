// Package homeassistant is a client for the Home Assistant WebSocket API.
//
// It covers the subset the list sync service needs:
//
//   - authentication with a long-lived access token
//   - call_service with return_response (todo.get_items)
//   - get_services and get_states lookups
//   - subscribe_events for state_changed and call_service
//
// # Reconnection
//
// A dropped connection fails in-flight requests with ErrNotConnected. The
// client redials with exponential backoff, re-authenticates, re-subscribes
// every active Subscription, and then runs the OnReconnect callback so
// callers can resync state that may have changed while disconnected.
//
// # Usage
//
//	client, err := homeassistant.Connect(ctx, cfg.HomeAssistant, log)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	raw, err := client.CallService(ctx, "todo", "get_items",
//	    &homeassistant.Target{EntityID: []string{"todo.groceries"}}, nil, true)
package homeassistant
