package sequin

import (
	"context"
	"net/http"
	"strings"
)

// ConsumerKindPull is the only consumer kind the client creates.
const ConsumerKindPull = "pull"

// CreateStream creates a stream named name. Entries in opts are merged into
// the request body as-is; they cannot replace the name.
func (c *Client) CreateStream(ctx context.Context, name string, opts Options) (*Stream, error) {
	if strings.TrimSpace(name) == "" {
		return nil, newError(http.StatusBadRequest, "stream name is required")
	}
	body := mergeOptions(map[string]any{"name": name}, opts)

	var res Stream
	if serr := c.request(ctx, http.MethodPost, "/streams", body, &res); serr != nil {
		return nil, serr
	}
	return &res, nil
}

// DeleteStream deletes a stream by id or name.
func (c *Client) DeleteStream(ctx context.Context, streamIDOrName string) (*DeleteResult, error) {
	var res DeleteResult
	if serr := c.request(ctx, http.MethodDelete, streamPath(streamIDOrName), nil, &res); serr != nil {
		return nil, serr
	}
	return &res, nil
}

// CreateConsumer creates a pull consumer on a stream. filter selects message
// keys (for example "orders.>"). Entries in opts are merged into the request
// body but cannot replace name, filter_key_pattern or kind.
func (c *Client) CreateConsumer(ctx context.Context, streamIDOrName, name, filter string, opts Options) (*Consumer, error) {
	if strings.TrimSpace(name) == "" {
		return nil, newError(http.StatusBadRequest, "consumer name is required")
	}
	if strings.TrimSpace(filter) == "" {
		return nil, newError(http.StatusBadRequest, "consumer filter_key_pattern is required")
	}
	body := mergeOptions(map[string]any{
		"name":               name,
		"filter_key_pattern": filter,
		"kind":               ConsumerKindPull,
	}, opts)

	var res Consumer
	if serr := c.request(ctx, http.MethodPost, streamPath(streamIDOrName)+"/consumers", body, &res); serr != nil {
		return nil, serr
	}
	return &res, nil
}

// DeleteConsumer deletes a consumer by id or name.
func (c *Client) DeleteConsumer(ctx context.Context, streamIDOrName, consumerIDOrName string) (*DeleteResult, error) {
	var res DeleteResult
	if serr := c.request(ctx, http.MethodDelete, consumerPath(streamIDOrName, consumerIDOrName), nil, &res); serr != nil {
		return nil, serr
	}
	return &res, nil
}

// mergeOptions folds opts into base without overwriting base's keys.
func mergeOptions(base map[string]any, opts Options) map[string]any {
	for k, v := range opts {
		if _, fixed := base[k]; fixed {
			continue
		}
		base[k] = v
	}
	return base
}
