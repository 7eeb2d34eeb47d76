package facade

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qbmcp/qbmcp/app/qbclient"
	"github.com/qbmcp/qbmcp/app/query"
	"github.com/qbmcp/qbmcp/app/server"
	"github.com/qbmcp/qbmcp/app/tools"
)

func testFacade(t *testing.T) *Facade {
	set := []tools.Tool{
		{
			Def: mcp.NewTool("get_customer"),
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				id, _ := args["id"].(string)
				if id == "missing" {
					return "", errors.Wrap(
						&qbclient.BackendError{Code: "610", Message: "Object Not Found"},
						"Error fetching customer")
				}
				return `{"Id": "` + id + `", "DisplayName": "Acme"}`, nil
			},
		},
		{
			Def: mcp.NewTool("search_customers"),
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				assert.Equal(t, "DisplayName", args["asc"])
				return "Found 2 customer records:\n[{\"Id\":\"1\"},{\"Id\":\"2\"}]", nil
			},
		},
		{
			Def: mcp.NewTool("create_customer"),
			Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
				payload, _ := args["payload"].(map[string]interface{})
				assert.Equal(t, "Acme", payload["DisplayName"])
				return `{"Id": "9", "DisplayName": "Acme"}`, nil
			},
		},
	}
	reg, err := server.NewRegistry(set)
	require.NoError(t, err)
	return New(reg)
}

func TestFacade_GetCustomer(t *testing.T) {
	f := testFacade(t)
	res, err := f.GetCustomer(context.Background(), "42")
	require.NoError(t, err)

	var rec struct{ Id, DisplayName string }
	require.NoError(t, json.Unmarshal(res, &rec))
	assert.Equal(t, "42", rec.Id)
	assert.Equal(t, "Acme", rec.DisplayName)
}

func TestFacade_GetCustomerBackendCode(t *testing.T) {
	f := testFacade(t)
	_, err := f.GetCustomer(context.Background(), "missing")
	require.Error(t, err)

	var facadeErr *Error
	require.ErrorAs(t, err, &facadeErr)
	assert.Equal(t, "get_customer", facadeErr.Op)
	assert.Equal(t, "610", facadeErr.Code, "backend code extracted from the cause chain")
	assert.Contains(t, facadeErr.Message, "Error fetching customer")
}

func TestFacade_SearchCustomers(t *testing.T) {
	f := testFacade(t)
	records, err := f.SearchCustomers(context.Background(), query.SearchSpec{OrderAsc: "DisplayName"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.JSONEq(t, `{"Id":"1"}`, string(records[0]))
}

func TestFacade_CreateCustomer(t *testing.T) {
	f := testFacade(t)
	res, err := f.CreateCustomer(context.Background(), map[string]interface{}{"DisplayName": "Acme"})
	require.NoError(t, err)
	assert.Contains(t, string(res), `"Id": "9"`)
}

func TestFacade_CallUnknown(t *testing.T) {
	f := testFacade(t)
	_, err := f.Call(context.Background(), "nope", nil)
	require.Error(t, err)

	var facadeErr *Error
	require.ErrorAs(t, err, &facadeErr)
	assert.Equal(t, "nope", facadeErr.Op)
	assert.Contains(t, facadeErr.Message, "unknown operation")
}
