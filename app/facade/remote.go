package facade

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-pkgz/jrpc"

	"github.com/qbmcp/qbmcp/app/server"
)

// Remote is the cross-process flavor of the facade, talking to the json-rpc
// surface of another instance instead of an in-process registry.
type Remote struct {
	Client jrpc.Client
}

// NewRemote makes a remote facade for the given json-rpc endpoint, e.g.
// "http://host:8080/command". Basic auth applies when user and passwd set.
func NewRemote(api, authUser, authPasswd string) *Remote {
	return &Remote{Client: jrpc.Client{
		API:        api,
		Client:     http.Client{Timeout: 30 * time.Second},
		AuthUser:   authUser,
		AuthPasswd: authPasswd,
	}}
}

// OperationInfo is one catalog entry as reported by tools.list.
type OperationInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// List fetches the remote operation catalog.
func (r *Remote) List() ([]OperationInfo, error) {
	resp, err := r.Client.Call("tools.list")
	if err != nil {
		return nil, &Error{Op: "tools.list", Message: err.Error()}
	}
	var catalog []OperationInfo
	if err = json.Unmarshal(*resp.Result, &catalog); err != nil {
		return nil, &Error{Op: "tools.list", Message: "can't decode catalog: " + err.Error()}
	}
	return catalog, nil
}

// Call invokes a remote operation by name and returns its text result.
func (r *Remote) Call(name string, args map[string]interface{}) (string, error) {
	resp, err := r.Client.Call("tools.call", server.CallRequest{Name: name, Arguments: args})
	if err != nil {
		return "", &Error{Op: name, Message: err.Error()}
	}
	var res server.CallResponse
	if err = json.Unmarshal(*resp.Result, &res); err != nil {
		return "", &Error{Op: name, Message: "can't decode response: " + err.Error()}
	}
	return res.Text, nil
}
