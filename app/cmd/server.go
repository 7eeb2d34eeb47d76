package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/pkg/errors"

	"github.com/qbmcp/qbmcp/app/provider"
	"github.com/qbmcp/qbmcp/app/qbclient"
	"github.com/qbmcp/qbmcp/app/server"
	"github.com/qbmcp/qbmcp/app/tools"
)

// ServerCommand with command line flags and env
type ServerCommand struct {
	Auth      AuthGroup      `group:"auth" namespace:"auth" env-namespace:"AUTH"`
	Store     StoreGroup     `group:"store" namespace:"store" env-namespace:"STORE"`
	Transport TransportGroup `group:"transport" namespace:"transport" env-namespace:"TRANSPORT"`
	RPC       RPCGroup       `group:"rpc" namespace:"rpc" env-namespace:"RPC"`

	FlowTimeout time.Duration `long:"flow-timeout" env:"FLOW_TIMEOUT" default:"5m" description:"max wait for the interactive authorization flow"`

	CommonOpts
}

// AuthGroup defines options group for QuickBooks OAuth params
type AuthGroup struct {
	CID          string `long:"cid" env:"CID" description:"OAuth client ID"`
	CSEC         string `long:"csec" env:"CSEC" description:"OAuth client secret"`
	RefreshToken string `long:"refresh-token" env:"REFRESH_TOKEN" description:"OAuth refresh token"`
	RealmID      string `long:"realm" env:"REALM" description:"QuickBooks company (realm) id"`
	Environment  string `long:"env" env:"ENV" description:"QuickBooks environment" choice:"sandbox" choice:"production" default:"sandbox"` // nolint
	RedirectURL  string `long:"redirect-url" env:"REDIRECT_URL" default:"http://localhost:8000/callback" description:"OAuth redirect url, must match the app registration"`
}

// StoreGroup defines options group for token persistence
type StoreGroup struct {
	EnvFile string `long:"env-file" env:"ENV_FILE" default:".env" description:"env file refresh token and realm id are persisted to"`
}

// TransportGroup defines options for the mcp transport
type TransportGroup struct {
	Type string `long:"type" env:"TYPE" description:"mcp transport" choice:"stdio" choice:"http" default:"stdio"` // nolint
	Port int    `long:"port" env:"PORT" default:"8811" description:"port for http transport"`
}

// RPCGroup defines options for the json-rpc plugin surface
type RPCGroup struct {
	Enabled      bool   `long:"enabled" env:"ENABLED" description:"enable json-rpc surface"`
	Port         int    `long:"port" env:"PORT" default:"8822" description:"json-rpc port"`
	AuthUser     string `long:"auth_user" env:"AUTH_USER" description:"basic auth user name"`
	AuthPassword string `long:"auth_passwd" env:"AUTH_PASSWD" description:"basic auth user password"`
}

// serverApp holds all active objects
type serverApp struct {
	*ServerCommand
	mcpSrv     *server.MCP
	rpcSrv     *server.RPCServer
	terminated chan struct{}
}

// Execute is the entry point for "server" command, called by flag parser
func (s *ServerCommand) Execute(_ []string) error {
	log.Printf("[INFO] start server, %s transport, %s environment", s.Transport.Type, s.Auth.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { // catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	app, err := s.newServerApp()
	if err != nil {
		log.Printf("[PANIC] failed to setup application, %+v", err)
		return err
	}
	resetEnv("AUTH_CSEC", provider.EnvClientSecret)

	if err = app.run(ctx); err != nil {
		log.Printf("[ERROR] server terminated with error %+v", err)
		return err
	}
	log.Printf("[INFO] server terminated")
	return nil
}

// newServerApp prepares application and return it with all active parts
// doesn't start anything
func (s *ServerCommand) newServerApp() (*serverApp, error) {
	creds := provider.Credentials{
		ClientID:     s.Auth.CID,
		ClientSecret: s.Auth.CSEC,
		RefreshToken: s.Auth.RefreshToken,
		RealmID:      s.Auth.RealmID,
		Environment:  provider.Environment(s.Auth.Environment),
		RedirectURL:  s.Auth.RedirectURL,
	}

	store := &provider.EnvFileStore{Path: s.Store.EnvFile}
	tokenManager, err := provider.NewTokenManager(creds, store, provider.WithFlowTimeout(s.FlowTimeout))
	if err != nil {
		return nil, errors.Wrap(err, "failed to make token manager")
	}
	env := tokenManager.Environment()

	deps := tools.Deps{
		Tokens:    tokenManager,
		NewClient: func(b provider.Bearer) tools.Backend { return qbclient.New(b, env) },
	}

	registry, err := server.NewRegistry(tools.Build(deps))
	if err != nil {
		return nil, errors.Wrap(err, "failed to make registry")
	}
	log.Printf("[INFO] registered %d operations for %d entity families", len(registry.Names()), len(tools.Families))

	res := &serverApp{
		ServerCommand: s,
		mcpSrv:        server.NewMCP(registry, s.Revision),
		terminated:    make(chan struct{}),
	}
	if s.RPC.Enabled {
		res.rpcSrv = server.NewRPC(registry, s.Revision, s.RPC.AuthUser, s.RPC.AuthPassword)
	}
	return res, nil
}

// run activates the configured surfaces and blocks until termination
func (a *serverApp) run(ctx context.Context) error {
	go func() {
		// shutdown on context cancellation
		<-ctx.Done()
		a.shutdown()
	}()

	if a.rpcSrv != nil {
		go func() {
			if err := a.rpcSrv.Run(a.RPC.Port); err != nil && err != http.ErrServerClosed {
				log.Printf("[WARN] json-rpc server terminated, %v", err)
			}
		}()
	}

	var err error
	switch a.Transport.Type {
	case "http":
		if err = a.mcpSrv.ServeHTTP(ctx, a.Transport.Port); err == http.ErrServerClosed {
			err = nil
		}
	default:
		err = a.mcpSrv.ServeStdio()
	}

	close(a.terminated)
	return err
}

// shutdown stops the auxiliary servers
func (a *serverApp) shutdown() {
	if a.rpcSrv != nil {
		if err := a.rpcSrv.Shutdown(); err != nil {
			log.Printf("[WARN] json-rpc shutdown failed, %v", err)
		}
	}
}

// Wait for application completion (termination)
func (a *serverApp) Wait() {
	<-a.terminated
}
