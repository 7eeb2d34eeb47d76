package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/qbmcp/qbmcp/app/tools"
)

// addPrompts registers usage-guidance prompts for clients that support the
// prompts capability.
func addPrompts(srv *server.MCPServer) {
	srv.AddPrompt(mcp.NewPrompt("qbo_query_guide",
		mcp.WithPromptDescription("How to build search criteria for QuickBooks entity searches"),
		mcp.WithArgument("entity", mcp.ArgumentDescription("entity family to search, e.g. customer or invoice")),
	), queryGuideHandler)

	srv.AddPrompt(mcp.NewPrompt("qbo_entity_payload_guide",
		mcp.WithPromptDescription("What a create/update payload for a QuickBooks entity has to contain"),
		mcp.WithArgument("entity", mcp.ArgumentDescription("entity family, e.g. customer or invoice"), mcp.RequiredArgument()),
	), payloadGuideHandler)
}

func queryGuideHandler(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	entity := req.Params.Arguments["entity"]
	if entity == "" {
		entity = "customer"
	}
	plural := entity + "s"
	for _, f := range tools.Families {
		if f.Name == entity {
			plural = f.Plural
			break
		}
	}
	text := fmt.Sprintf(`Use the search_%s tool with a "criteria" array. Each criterion has
"field", "value" and an optional "operator" (one of = < > <= >= LIKE IN,
default =). Criteria combine with AND. Use "limit"/"offset" for pagination
and "asc"/"desc" for a single sort field.

Example: find active records sorted by name:
{"criteria":[{"field":"Active","value":true}],"asc":"DisplayName","limit":50}

LIKE supports %% wildcards: {"field":"DisplayName","value":"Acme%%","operator":"LIKE"}`, plural)

	return mcp.NewGetPromptResult("query guidance",
		[]mcp.PromptMessage{mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text))}), nil
}

func payloadGuideHandler(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	entity := req.Params.Arguments["entity"]
	if entity == "" {
		return nil, fmt.Errorf("entity argument is required")
	}
	text := fmt.Sprintf(`Payloads for %s follow the QuickBooks Online v3 API shape and are passed
through unvalidated, the backend enforces its own schema. For create, supply
the fields the API requires for the entity. For update, always include "Id"
and the current "SyncToken" from a prior get/search, the backend rejects
stale sync tokens. Deletes need only the id, the current SyncToken is fetched
automatically.`, entity)

	return mcp.NewGetPromptResult("payload guidance",
		[]mcp.PromptMessage{mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(text))}), nil
}
