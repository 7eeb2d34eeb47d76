package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"github.com/qbmcp/qbmcp/app/query"
)

func (f Family) createTool(deps Deps) Tool {
	def := mcp.NewTool("create_"+f.Name,
		mcp.WithDescription(fmt.Sprintf("Create a new %s in QuickBooks. Returns the created record with its assigned Id and SyncToken.", f.Display)),
		mcp.WithObject("payload", mcp.Required(),
			mcp.Description(fmt.Sprintf("%s fields as the QuickBooks API expects them, e.g. DisplayName, Line items etc.", f.Entity))),
	)
	handler := func(ctx context.Context, args map[string]interface{}) (string, error) {
		payload, err := payloadArg(args)
		if err != nil {
			return "", errors.Wrapf(err, "Error creating %s", f.Display)
		}
		cl, err := deps.backend(ctx)
		if err != nil {
			return "", errors.Wrapf(err, "Error creating %s", f.Display)
		}
		res, err := cl.Create(ctx, f.Entity, payload)
		if err != nil {
			return "", errors.Wrapf(err, "Error creating %s", f.Display)
		}
		return prettyJSON(res), nil
	}
	return Tool{Def: def, Handler: handler}
}

func (f Family) getTool(deps Deps) Tool {
	def := mcp.NewTool("get_"+f.Name,
		mcp.WithDescription(fmt.Sprintf("Fetch a single %s by Id.", f.Display)),
		mcp.WithString("id", mcp.Required(), mcp.Description(fmt.Sprintf("QuickBooks Id of the %s", f.Display))),
	)
	handler := func(ctx context.Context, args map[string]interface{}) (string, error) {
		id, err := stringArg(args, "id")
		if err != nil {
			return "", errors.Wrapf(err, "Error fetching %s", f.Display)
		}
		cl, err := deps.backend(ctx)
		if err != nil {
			return "", errors.Wrapf(err, "Error fetching %s", f.Display)
		}
		res, err := cl.Get(ctx, f.Entity, id)
		if err != nil {
			return "", errors.Wrapf(err, "Error fetching %s", f.Display)
		}
		return prettyJSON(res), nil
	}
	return Tool{Def: def, Handler: handler}
}

func (f Family) updateTool(deps Deps) Tool {
	def := mcp.NewTool("update_"+f.Name,
		mcp.WithDescription(fmt.Sprintf("Update an existing %s. The payload must include Id and the current SyncToken, stale tokens are rejected by the backend.", f.Display)),
		mcp.WithObject("payload", mcp.Required(),
			mcp.Description("Fields to update, must include Id and SyncToken")),
	)
	handler := func(ctx context.Context, args map[string]interface{}) (string, error) {
		payload, err := payloadArg(args)
		if err != nil {
			return "", errors.Wrapf(err, "Error updating %s", f.Display)
		}
		cl, err := deps.backend(ctx)
		if err != nil {
			return "", errors.Wrapf(err, "Error updating %s", f.Display)
		}
		res, err := cl.Update(ctx, f.Entity, payload)
		if err != nil {
			return "", errors.Wrapf(err, "Error updating %s", f.Display)
		}
		return prettyJSON(res), nil
	}
	return Tool{Def: def, Handler: handler}
}

// deleteTool generates either a true delete or a deactivation depending on
// the family. Both fetch the current record first to pick up the SyncToken.
func (f Family) deleteTool(deps Deps) Tool {
	desc := fmt.Sprintf("Delete a %s by Id.", f.Display)
	if f.Deactivate {
		desc = fmt.Sprintf("Deactivate a %s by Id. QuickBooks does not hard-delete %s, the record is made inactive instead.", f.Display, f.Plural)
	}
	def := mcp.NewTool("delete_"+f.Name,
		mcp.WithDescription(desc),
		mcp.WithString("id", mcp.Required(), mcp.Description(fmt.Sprintf("QuickBooks Id of the %s", f.Display))),
	)
	handler := func(ctx context.Context, args map[string]interface{}) (string, error) {
		id, err := stringArg(args, "id")
		if err != nil {
			return "", errors.Wrapf(err, "Error deleting %s", f.Display)
		}
		cl, err := deps.backend(ctx)
		if err != nil {
			return "", errors.Wrapf(err, "Error deleting %s", f.Display)
		}

		// fetch the live record for its concurrency token
		current, err := cl.Get(ctx, f.Entity, id)
		if err != nil {
			return "", errors.Wrapf(err, "Error deleting %s", f.Display)
		}
		var rec struct {
			Id        string `json:"Id"`
			SyncToken string `json:"SyncToken"`
		}
		if err = json.Unmarshal(current, &rec); err != nil {
			return "", errors.Wrapf(err, "Error deleting %s", f.Display)
		}

		var res json.RawMessage
		if f.Deactivate {
			res, err = cl.Update(ctx, f.Entity, map[string]interface{}{
				"Id": rec.Id, "SyncToken": rec.SyncToken, "Active": false, "sparse": true,
			})
		} else {
			res, err = cl.Delete(ctx, f.Entity, rec.Id, rec.SyncToken)
		}
		if err != nil {
			return "", errors.Wrapf(err, "Error deleting %s", f.Display)
		}
		return prettyJSON(res), nil
	}
	return Tool{Def: def, Handler: handler}
}

func (f Family) searchTool(deps Deps) Tool {
	def := mcp.NewTool("search_"+f.Plural,
		mcp.WithDescription(fmt.Sprintf("Search %s with filters, sorting and pagination. Without criteria returns all %s the backend's page size allows.", f.Plural, f.Plural)),
		mcp.WithArray("criteria",
			mcp.Description("Filter conditions, combined with AND"),
			mcp.Items(map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"field":    map[string]interface{}{"type": "string", "description": "entity field name, e.g. DisplayName"},
					"value":    map[string]interface{}{"description": "value to compare against"},
					"operator": map[string]interface{}{"type": "string", "enum": []string{"=", "<", ">", "<=", ">=", "LIKE", "IN"}},
				},
				"required": []string{"field", "value"},
			})),
		mcp.WithNumber("limit", mcp.Description("max records to return")),
		mcp.WithNumber("offset", mcp.Description("records to skip, converted to a page number")),
		mcp.WithString("asc", mcp.Description("field to sort ascending by")),
		mcp.WithString("desc", mcp.Description("field to sort descending by")),
	)
	handler := func(ctx context.Context, args map[string]interface{}) (string, error) {
		spec, err := parseSearchSpec(args)
		if err != nil {
			return "", errors.Wrapf(err, "Error searching %s", f.Plural)
		}
		cl, err := deps.backend(ctx)
		if err != nil {
			return "", errors.Wrapf(err, "Error searching %s", f.Plural)
		}

		compiled := query.Compile(f.Entity, spec)
		records, err := cl.Query(ctx, f.Entity, compiled.Query, compiled.Page)
		if err != nil {
			return "", errors.Wrapf(err, "Error searching %s", f.Plural)
		}
		return formatRecords(f.Display, records), nil
	}
	return Tool{Def: def, Handler: handler}
}

// parseSearchSpec maps generic tool arguments onto a SearchSpec via a json
// round trip, the arg names match SearchSpec's json tags.
func parseSearchSpec(args map[string]interface{}) (query.SearchSpec, error) {
	data, err := json.Marshal(args)
	if err != nil {
		return query.SearchSpec{}, errors.Wrap(err, "invalid search arguments")
	}
	var spec query.SearchSpec
	if err = json.Unmarshal(data, &spec); err != nil {
		return query.SearchSpec{}, errors.Wrap(err, "invalid search arguments")
	}
	return spec, nil
}

// formatRecords renders the search result with a human-readable count prefix
func formatRecords(display string, records []json.RawMessage) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d %s records:\n", len(records), display)
	combined, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		combined = []byte("[]")
	}
	sb.Write(combined)
	return sb.String()
}
