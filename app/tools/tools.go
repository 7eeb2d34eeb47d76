// Package tools builds the MCP tool set for all QuickBooks entity families.
// The eleven families share identical operation bodies, so the whole set is
// generated from one table (Families) instead of hand-written per entity.
package tools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"github.com/qbmcp/qbmcp/app/provider"
	"github.com/qbmcp/qbmcp/app/query"
)

// HandlerFunc executes one operation and returns the response text. Errors
// are caller-visible results, the dispatcher converts them into tool-error
// payloads rather than letting them propagate to the transport.
type HandlerFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// Tool pairs the MCP declaration with its handler.
type Tool struct {
	Def     mcp.Tool
	Handler HandlerFunc
}

// TokenProvider hands out a valid bearer token, refreshing or authorizing
// as needed. Implemented by provider.TokenManager.
type TokenProvider interface {
	EnsureToken(ctx context.Context) (provider.Bearer, error)
}

// Backend is the per-call QuickBooks client surface, implemented by
// qbclient.Client and stubbed in tests.
type Backend interface {
	Create(ctx context.Context, entity string, payload map[string]interface{}) (json.RawMessage, error)
	Get(ctx context.Context, entity, id string) (json.RawMessage, error)
	Update(ctx context.Context, entity string, payload map[string]interface{}) (json.RawMessage, error)
	Delete(ctx context.Context, entity, id, syncToken string) (json.RawMessage, error)
	Query(ctx context.Context, entity, q string, page query.PageParams) ([]json.RawMessage, error)
}

// ClientFactory builds a Backend scoped to the given bearer token.
type ClientFactory func(b provider.Bearer) Backend

// Deps is everything a generated handler needs.
type Deps struct {
	Tokens    TokenProvider
	NewClient ClientFactory
}

// backend validates token freshness and returns a client scoped to it.
// Called at the start of every operation, a prior call's token is never
// assumed to be still valid.
func (d Deps) backend(ctx context.Context) (Backend, error) {
	b, err := d.Tokens.EnsureToken(ctx)
	if err != nil {
		return nil, err
	}
	return d.NewClient(b), nil
}

// Build generates the full tool set, up to five tools per family.
func Build(deps Deps) []Tool {
	var res []Tool
	for _, f := range Families {
		if f.Ops.Create {
			res = append(res, f.createTool(deps))
		}
		if f.Ops.Get {
			res = append(res, f.getTool(deps))
		}
		if f.Ops.Update {
			res = append(res, f.updateTool(deps))
		}
		if f.Ops.Delete {
			res = append(res, f.deleteTool(deps))
		}
		if f.Ops.Search {
			res = append(res, f.searchTool(deps))
		}
	}
	return res
}

// prettyJSON re-indents a raw json value for the text result
func prettyJSON(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw)
	}
	return string(out)
}

// payloadArg extracts the required "payload" object argument
func payloadArg(args map[string]interface{}) (map[string]interface{}, error) {
	payload, ok := args["payload"].(map[string]interface{})
	if !ok || len(payload) == 0 {
		return nil, errors.New("payload object is required")
	}
	return payload, nil
}

// stringArg extracts a required string argument
func stringArg(args map[string]interface{}, name string) (string, error) {
	v, ok := args[name].(string)
	if !ok || v == "" {
		return "", errors.Errorf("%s is required", name)
	}
	return v, nil
}
