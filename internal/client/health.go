package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"inferclient/pkg/types"
)

// IsServerLive reports whether GET /v2/health/live answers 200.
func (c *Client) IsServerLive(ctx context.Context) (bool, error) {
	return c.probe(ctx, "live", "/v2/health/live")
}

// IsServerReady reports whether GET /v2/health/ready answers 200.
func (c *Client) IsServerReady(ctx context.Context) (bool, error) {
	return c.probe(ctx, "ready", "/v2/health/ready")
}

// IsModelReady reports whether the model (optionally one version) is ready.
// An unknown model is not ready rather than an error.
func (c *Client) IsModelReady(ctx context.Context, model, version string) (bool, error) {
	if model == "" {
		return false, invalidArg("model name is required")
	}
	return c.probe(ctx, "model_ready", modelPath(model, version)+"/ready")
}

func (c *Client) probe(ctx context.Context, op, path string) (bool, error) {
	res, err := c.do(ctx, call{op: op, method: http.MethodGet, path: path, probe: true})
	if err != nil {
		return false, err
	}
	return res.status == http.StatusOK, nil
}

// ServerMetadata returns GET /v2.
func (c *Client) ServerMetadata(ctx context.Context) (*types.ServerMetadata, error) {
	var out types.ServerMetadata
	if err := c.getJSON(ctx, "server_metadata", "/v2", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModelMetadata returns GET /v2/models/{model}[/versions/{version}].
func (c *Client) ModelMetadata(ctx context.Context, model, version string) (*types.ModelMetadata, error) {
	if model == "" {
		return nil, invalidArg("model name is required")
	}
	var out types.ModelMetadata
	if err := c.getJSON(ctx, "model_metadata", modelPath(model, version), model, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func decodeJSON(res result, op string, out any) error {
	if err := json.Unmarshal(res.body, out); err != nil {
		return ServerError{Message: fmt.Sprintf("decode %s response: %v", op, err), StatusCode: res.status}
	}
	return nil
}

func headerOf(m map[string]string) http.Header {
	if len(m) == 0 {
		return nil
	}
	h := make(http.Header, len(m))
	for k, v := range m {
		h.Set(k, v)
	}
	return h
}
