package server

import (
	"context"
	"encoding/json"

	log "github.com/go-pkgz/lgr"
	"github.com/go-pkgz/jrpc"
)

// RPCServer mirrors the registry over the simplified json-rpc protocol for
// remote in-fleet callers: "tools.list" returns the catalog, "tools.call"
// invokes one operation. The envelope is {method, params, id} in and
// {result|error, id} out.
type RPCServer struct {
	srv *jrpc.Server
	reg *Registry
}

// CallRequest is the params shape for tools.call.
type CallRequest struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

// CallResponse wraps the operation's text output.
type CallResponse struct {
	Text string `json:"text"`
}

// NewRPC makes a json-rpc server exposing the registry. Basic auth is
// enabled when both user and passwd are set.
func NewRPC(reg *Registry, version, authUser, authPasswd string) *RPCServer {
	srv := &jrpc.Server{
		API:        "/command",
		AppName:    "qbmcp",
		Version:    version,
		AuthUser:   authUser,
		AuthPasswd: authPasswd,
		Logger:     log.Default(),
	}

	srv.Group("tools", jrpc.HandlersGroup{
		"list": func(id uint64, params json.RawMessage) jrpc.Response {
			return jrpc.EncodeResponse(id, reg.Tools(), nil)
		},
		"call": func(id uint64, params json.RawMessage) jrpc.Response {
			var req CallRequest
			if err := json.Unmarshal(params, &req); err != nil {
				return jrpc.EncodeResponse(id, nil, err)
			}
			text, err := reg.Invoke(context.Background(), req.Name, req.Arguments)
			if err != nil {
				return jrpc.EncodeResponse(id, nil, err)
			}
			return jrpc.EncodeResponse(id, CallResponse{Text: text}, nil)
		},
	})

	return &RPCServer{srv: srv, reg: reg}
}

// Run starts the server on the given port, blocking.
func (s *RPCServer) Run(port int) error {
	log.Printf("[INFO] serve json-rpc on port %d", port)
	return s.srv.Run(port)
}

// Shutdown stops the server.
func (s *RPCServer) Shutdown() error {
	return s.srv.Shutdown()
}
