// Package facade offers typed in-process access to the operation registry:
// one helper per common operation with explicit parameters instead of a
// generic argument bag, plus a raw call passthrough. A remote flavor built on
// the jrpc client covers the same surface across processes.
package facade

import (
	"context"
	"encoding/json"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/qbmcp/qbmcp/app/qbclient"
	"github.com/qbmcp/qbmcp/app/query"
	"github.com/qbmcp/qbmcp/app/server"
)

// Error is a typed operation failure with the backend's error code when the
// cause was a backend fault.
type Error struct {
	Op      string
	Message string
	Code    string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return e.Op + " failed with code " + e.Code + ": " + e.Message
	}
	return e.Op + " failed: " + e.Message
}

// Facade wraps the registry with typed helpers. Stateless, all guarantees
// come from the registry and the operations behind it.
type Facade struct {
	reg *server.Registry
}

// New makes a facade over the given registry.
func New(reg *server.Registry) *Facade {
	return &Facade{reg: reg}
}

// Call is the raw passthrough: invoke any operation by name with a generic
// argument bag and get the text result back.
func (f *Facade) Call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	res, err := f.reg.Invoke(ctx, name, args)
	if err != nil {
		return "", f.wrapErr(name, err)
	}
	return res, nil
}

// wrapErr converts registry errors into the typed Error, pulling the backend
// code out of the cause chain when present.
func (f *Facade) wrapErr(op string, err error) error {
	res := &Error{Op: op, Message: err.Error()}
	var backendErr *qbclient.BackendError
	if pkgerrors.As(err, &backendErr) {
		res.Code = backendErr.Code
	}
	return res
}

// one record operations

func (f *Facade) getEntity(ctx context.Context, tool, id string) (json.RawMessage, error) {
	text, err := f.Call(ctx, tool, map[string]interface{}{"id": id})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(text), nil
}

func (f *Facade) payloadOp(ctx context.Context, tool string, payload map[string]interface{}) (json.RawMessage, error) {
	text, err := f.Call(ctx, tool, map[string]interface{}{"payload": payload})
	if err != nil {
		return nil, err
	}
	return json.RawMessage(text), nil
}

func (f *Facade) searchEntity(ctx context.Context, tool string, spec query.SearchSpec) ([]json.RawMessage, error) {
	args, err := searchArgs(spec)
	if err != nil {
		return nil, &Error{Op: tool, Message: err.Error()}
	}
	text, err := f.Call(ctx, tool, args)
	if err != nil {
		return nil, err
	}
	return parseSearchText(tool, text)
}

// GetCustomer fetches one customer by id.
func (f *Facade) GetCustomer(ctx context.Context, id string) (json.RawMessage, error) {
	return f.getEntity(ctx, "get_customer", id)
}

// GetInvoice fetches one invoice by id.
func (f *Facade) GetInvoice(ctx context.Context, id string) (json.RawMessage, error) {
	return f.getEntity(ctx, "get_invoice", id)
}

// CreateCustomer creates a customer from the given payload.
func (f *Facade) CreateCustomer(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	return f.payloadOp(ctx, "create_customer", payload)
}

// CreateInvoice creates an invoice from the given payload.
func (f *Facade) CreateInvoice(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	return f.payloadOp(ctx, "create_invoice", payload)
}

// UpdateCustomer updates a customer, payload must carry Id and SyncToken.
func (f *Facade) UpdateCustomer(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	return f.payloadOp(ctx, "update_customer", payload)
}

// UpdateAccount updates an account, payload must carry Id and SyncToken.
func (f *Facade) UpdateAccount(ctx context.Context, payload map[string]interface{}) (json.RawMessage, error) {
	return f.payloadOp(ctx, "update_account", payload)
}

// DeleteCustomer deactivates a customer by id.
func (f *Facade) DeleteCustomer(ctx context.Context, id string) (json.RawMessage, error) {
	return f.getEntity(ctx, "delete_customer", id)
}

// DeleteBill deletes a bill by id.
func (f *Facade) DeleteBill(ctx context.Context, id string) (json.RawMessage, error) {
	return f.getEntity(ctx, "delete_bill", id)
}

// SearchCustomers runs a customer search and returns the matched records.
func (f *Facade) SearchCustomers(ctx context.Context, spec query.SearchSpec) ([]json.RawMessage, error) {
	return f.searchEntity(ctx, "search_customers", spec)
}

// SearchInvoices runs an invoice search and returns the matched records.
func (f *Facade) SearchInvoices(ctx context.Context, spec query.SearchSpec) ([]json.RawMessage, error) {
	return f.searchEntity(ctx, "search_invoices", spec)
}

// SearchAccounts runs an account search and returns the matched records.
func (f *Facade) SearchAccounts(ctx context.Context, spec query.SearchSpec) ([]json.RawMessage, error) {
	return f.searchEntity(ctx, "search_accounts", spec)
}

// searchArgs converts a SearchSpec into the generic argument bag the search
// tools accept, via its json tags.
func searchArgs(spec query.SearchSpec) (map[string]interface{}, error) {
	data, err := json.Marshal(spec)
	if err != nil {
		return nil, err
	}
	var args map[string]interface{}
	if err = json.Unmarshal(data, &args); err != nil {
		return nil, err
	}
	return args, nil
}

// parseSearchText strips the "Found N ... records:" prefix and decodes the
// record array that follows.
func parseSearchText(op, text string) ([]json.RawMessage, error) {
	parts := strings.SplitN(text, "\n", 2)
	if len(parts) != 2 {
		return nil, &Error{Op: op, Message: "unexpected search result shape"}
	}
	var records []json.RawMessage
	if err := json.Unmarshal([]byte(parts[1]), &records); err != nil {
		return nil, &Error{Op: op, Message: "can't decode search records: " + err.Error()}
	}
	return records, nil
}
