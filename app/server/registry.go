// Package server is the protocol-facing surface: the operation registry with
// enumerate/invoke, the MCP server it plugs into and a jrpc mirror for
// plugin-style remote callers.
package server

import (
	"context"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"

	"github.com/qbmcp/qbmcp/app/tools"
)

// Registry is the declarative operation catalog, built once at startup from
// the generated tool set and never mutated after.
type Registry struct {
	list   []tools.Tool
	byName map[string]tools.Tool
}

// NewRegistry indexes the tool set by name. Duplicate names are a programming
// error in the family table and rejected outright.
func NewRegistry(set []tools.Tool) (*Registry, error) {
	res := &Registry{list: set, byName: make(map[string]tools.Tool, len(set))}
	for _, tl := range set {
		if _, ok := res.byName[tl.Def.Name]; ok {
			return nil, errors.Errorf("duplicate operation %s", tl.Def.Name)
		}
		res.byName[tl.Def.Name] = tl
	}
	return res, nil
}

// Tools returns the full catalog with input shapes.
func (r *Registry) Tools() []mcp.Tool {
	res := make([]mcp.Tool, 0, len(r.list))
	for _, tl := range r.list {
		res = append(res, tl.Def)
	}
	return res
}

// Names returns all operation names, sorted.
func (r *Registry) Names() []string {
	res := make([]string, 0, len(r.byName))
	for name := range r.byName {
		res = append(res, name)
	}
	sort.Strings(res)
	return res
}

// Invoke runs one operation by name. Unknown names produce a discoverable
// error listing the known operations, not a crash.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	tl, ok := r.byName[name]
	if !ok {
		return "", errors.Errorf("unknown operation %q, known operations: %s", name, strings.Join(r.Names(), ", "))
	}
	return tl.Handler(ctx, args)
}
