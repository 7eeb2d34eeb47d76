// Package qbclient is a thin client for the QuickBooks Online v3 API, scoped
// to one realm and one bearer token. It covers exactly what the entity tools
// need: create, get, sparse update, delete and query, each a single round
// trip. Backend faults decode into BackendError so callers can surface the
// backend's own code and message.
package qbclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/qbmcp/qbmcp/app/provider"
	"github.com/qbmcp/qbmcp/app/query"
)

// base urls per environment
const (
	sandboxBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
	productionBaseURL = "https://quickbooks.api.intuit.com"
)

// BackendError is a structured error reported by the QuickBooks API.
type BackendError struct {
	StatusCode int
	Code       string
	Message    string
	Detail     string
}

func (e *BackendError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (code %s): %s", e.Message, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s (code %s)", e.Message, e.Code)
}

// Client calls the QuickBooks v3 API for a single realm with a single bearer
// token. Cheap to construct, built fresh for every operation so the token is
// always the one the manager just validated.
type Client struct {
	HTTP    *http.Client
	BaseURL string
	RealmID string
	Token   string
}

// New makes a client scoped to the bearer's realm for the given environment.
func New(b provider.Bearer, env provider.Environment) *Client {
	base := sandboxBaseURL
	if env == provider.Production {
		base = productionBaseURL
	}
	return &Client{
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		BaseURL: base,
		RealmID: b.RealmID,
		Token:   b.AccessToken,
	}
}

// Create submits payload as a new record and returns the created record's
// full attribute set.
func (c *Client) Create(ctx context.Context, entity string, payload map[string]interface{}) (json.RawMessage, error) {
	resp, err := c.do(ctx, "POST", c.entityURL(entity), payload)
	if err != nil {
		return nil, err
	}
	return unwrapEntity(resp, entity)
}

// Get fetches a single record by id.
func (c *Client) Get(ctx context.Context, entity, id string) (json.RawMessage, error) {
	resp, err := c.do(ctx, "GET", c.entityURL(entity)+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	return unwrapEntity(resp, entity)
}

// Update submits a sparse update. The payload must carry Id and SyncToken,
// the backend's optimistic-concurrency marker.
func (c *Client) Update(ctx context.Context, entity string, payload map[string]interface{}) (json.RawMessage, error) {
	if v, ok := payload["Id"].(string); !ok || v == "" {
		return nil, errors.New("update payload requires Id")
	}
	if _, ok := payload["SyncToken"]; !ok {
		return nil, errors.New("update payload requires SyncToken")
	}
	resp, err := c.do(ctx, "POST", c.entityURL(entity), payload)
	if err != nil {
		return nil, err
	}
	return unwrapEntity(resp, entity)
}

// Delete removes a record, passing the SyncToken the backend requires.
func (c *Client) Delete(ctx context.Context, entity, id, syncToken string) (json.RawMessage, error) {
	body := map[string]interface{}{"Id": id, "SyncToken": syncToken}
	resp, err := c.do(ctx, "POST", c.entityURL(entity)+"?operation=delete", body)
	if err != nil {
		return nil, err
	}
	return unwrapEntity(resp, entity)
}

// Query executes a query-language statement and returns the matched records.
// Page params map to STARTPOSITION/MAXRESULTS appended to the query text, the
// way the backend expects pagination.
func (c *Client) Query(ctx context.Context, entity, q string, page query.PageParams) ([]json.RawMessage, error) {
	stmt := q
	if page.Number > 0 {
		size := page.Size
		if size == 0 {
			size = query.DefaultPageSize
		}
		stmt += fmt.Sprintf(" STARTPOSITION %d", (page.Number-1)*size+1)
	}
	if page.Size > 0 {
		stmt += fmt.Sprintf(" MAXRESULTS %d", page.Size)
	}

	u := fmt.Sprintf("%s/v3/company/%s/query?query=%s", c.BaseURL, url.PathEscape(c.RealmID), url.QueryEscape(stmt))
	resp, err := c.do(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		QueryResponse map[string]json.RawMessage `json:"QueryResponse"`
	}
	if err = json.Unmarshal(resp, &envelope); err != nil {
		return nil, errors.Wrap(err, "can't decode query response")
	}

	var records []json.RawMessage
	if raw, ok := envelope.QueryResponse[entity]; ok {
		if err = json.Unmarshal(raw, &records); err != nil {
			return nil, errors.Wrapf(err, "can't decode %s records", entity)
		}
	}
	return records, nil
}

func (c *Client) entityURL(entity string) string {
	return fmt.Sprintf("%s/v3/company/%s/%s", c.BaseURL, url.PathEscape(c.RealmID), strings.ToLower(entity))
}

// do runs one request and returns the raw response body, converting
// non-2xx responses into BackendError.
func (c *Client) do(ctx context.Context, method, u string, body interface{}) (json.RawMessage, error) {
	var reqBody *bytes.Buffer = bytes.NewBuffer(nil)
	if body != nil {
		if err := json.NewEncoder(reqBody).Encode(body); err != nil {
			return nil, errors.Wrap(err, "can't encode request body")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return nil, errors.Wrapf(err, "can't make request for %s", u)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "request to %s failed", u)
	}
	defer resp.Body.Close()

	buf := bytes.Buffer{}
	if _, err = buf.ReadFrom(resp.Body); err != nil {
		return nil, errors.Wrap(err, "can't read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseFault(resp.StatusCode, buf.Bytes())
	}
	return buf.Bytes(), nil
}

// unwrapEntity extracts the entity object from the CRUD response envelope,
// e.g. {"Customer": {...}, "time": "..."} -> {...}
func unwrapEntity(resp json.RawMessage, entity string) (json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(resp, &envelope); err != nil {
		return nil, errors.Wrap(err, "can't decode response")
	}
	if raw, ok := envelope[entity]; ok {
		return raw, nil
	}
	// some responses have no entity wrapper, pass them through
	return resp, nil
}

// parseFault decodes the QBO fault envelope, falling back to the raw body
// when the response is not a json fault.
func parseFault(status int, body []byte) error {
	var fault struct {
		Fault struct {
			Error []struct {
				Message string `json:"Message"`
				Detail  string `json:"Detail"`
				Code    string `json:"code"`
			} `json:"Error"`
		} `json:"Fault"`
	}
	if err := json.Unmarshal(body, &fault); err == nil && len(fault.Fault.Error) > 0 {
		f := fault.Fault.Error[0]
		return &BackendError{StatusCode: status, Code: f.Code, Message: f.Message, Detail: f.Detail}
	}
	return &BackendError{StatusCode: status, Code: fmt.Sprintf("%d", status),
		Message: http.StatusText(status), Detail: strings.TrimSpace(string(body))}
}
