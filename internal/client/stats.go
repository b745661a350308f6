package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"inferclient/pkg/types"
)

// StatsOptions narrows a statistics query.
type StatsOptions struct {
	ModelVersion string
	Headers      map[string]string
}

// InferenceStatistics returns the server's statistics document. An empty
// model asks for every model.
func (c *Client) InferenceStatistics(ctx context.Context, model string, opts *StatsOptions) (*types.InferenceStatisticsResponse, error) {
	if opts == nil {
		opts = &StatsOptions{}
	}
	path := "/v2/models/stats"
	if strings.TrimSpace(model) != "" {
		path = modelPath(model, opts.ModelVersion) + "/stats"
	} else if opts.ModelVersion != "" {
		return nil, invalidArg("model version given without a model")
	}
	res, err := c.do(ctx, call{op: "stats", method: http.MethodGet, path: path, model: model, header: headerOf(opts.Headers)})
	if err != nil {
		return nil, err
	}
	var out types.InferenceStatisticsResponse
	if err := decodeJSON(res, "stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ModelStatistics returns the single statistics entry of model. No entry
// is reported as ModelNotFoundError; more than one as StatisticsCountError.
func (c *Client) ModelStatistics(ctx context.Context, model string, opts *StatsOptions) (*types.ModelStatistics, error) {
	if strings.TrimSpace(model) == "" {
		return nil, invalidArg("model name is required")
	}
	doc, err := c.InferenceStatistics(ctx, model, opts)
	if err != nil {
		return nil, err
	}
	switch n := len(doc.ModelStats); n {
	case 1:
		return &doc.ModelStats[0], nil
	case 0:
		return nil, ModelNotFoundError{
			Model:   model,
			Message: fmt.Sprintf("%s: '%s' has no statistics", UnknownModelPrefix, model),
		}
	default:
		return nil, StatisticsCountError{Model: model, Count: n}
	}
}
