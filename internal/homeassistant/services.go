package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
)

// Services maps domain -> service name -> service description.
type Services map[string]map[string]json.RawMessage

// Has reports whether domain.service is registered.
func (s Services) Has(domain, service string) bool {
	_, ok := s[domain][service]
	return ok
}

// CallService invokes a service and returns its raw response.
//
// With returnResponse set, Home Assistant returns the service response
// (e.g. todo.get_items items keyed by entity id). Without it the
// returned message is nil.
//
// Parameters:
//   - ctx: Bounds the call
//   - domain, service: Service to call, e.g. "todo", "get_items"
//   - target: Entities the call applies to (may be nil)
//   - data: Service data (may be nil)
//   - returnResponse: Ask Home Assistant for the service response
//
// Returns:
//   - json.RawMessage: The "response" member of the result, or nil
//   - error: ErrNotConnected, ErrTimeout or a RequestError
func (c *Client) CallService(ctx context.Context, domain, service string, target *Target, data map[string]any, returnResponse bool) (json.RawMessage, error) {
	resp, err := c.request(ctx, outbound{
		Type:           typeCallService,
		Domain:         domain,
		Service:        service,
		ServiceData:    data,
		Target:         target,
		ReturnResponse: returnResponse,
	})
	if err != nil {
		return nil, fmt.Errorf("calling %s.%s: %w", domain, service, err)
	}

	if !returnResponse || len(resp.Result) == 0 {
		return nil, nil
	}

	var result callServiceResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("calling %s.%s: %w: decoding result: %w", domain, service, ErrRequestFailed, err)
	}
	return result.Response, nil
}

// shared runs fn once for concurrent callers using the same key. fn gets a
// context that ends only when the client closes; the request timeout still
// bounds it. A caller whose ctx ends stops waiting without failing the
// others.
func (c *Client) shared(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	ch := c.lookups.DoChan(key, func() (any, error) {
		sharedCtx, cancel := c.closeContext()
		defer cancel()
		return fn(sharedCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetServices returns every registered service. Concurrent calls share
// one request.
func (c *Client) GetServices(ctx context.Context) (Services, error) {
	v, err := c.shared(ctx, typeGetServices, func(ctx context.Context) (any, error) {
		resp, err := c.request(ctx, outbound{Type: typeGetServices})
		if err != nil {
			return nil, err
		}
		var services Services
		if err := decodeResult(resp, &services); err != nil {
			return nil, err
		}
		return services, nil
	})
	if err != nil {
		return nil, fmt.Errorf("getting services: %w", err)
	}
	return v.(Services), nil
}

// HasService reports whether domain.service is currently registered.
func (c *Client) HasService(ctx context.Context, domain, service string) (bool, error) {
	services, err := c.GetServices(ctx)
	if err != nil {
		return false, err
	}
	return services.Has(domain, service), nil
}

// GetStates returns the state of every entity. Concurrent calls share
// one request.
func (c *Client) GetStates(ctx context.Context) ([]State, error) {
	v, err := c.shared(ctx, typeGetStates, func(ctx context.Context) (any, error) {
		resp, err := c.request(ctx, outbound{Type: typeGetStates})
		if err != nil {
			return nil, err
		}
		var states []State
		if err := decodeResult(resp, &states); err != nil {
			return nil, err
		}
		return states, nil
	})
	if err != nil {
		return nil, fmt.Errorf("getting states: %w", err)
	}
	return v.([]State), nil
}

// GetState returns the state of one entity.
//
// Returns ErrEntityNotFound when Home Assistant does not know the entity.
func (c *Client) GetState(ctx context.Context, entityID string) (*State, error) {
	states, err := c.GetStates(ctx)
	if err != nil {
		return nil, err
	}
	for i := range states {
		if states[i].EntityID == entityID {
			state := states[i]
			return &state, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, entityID)
}
