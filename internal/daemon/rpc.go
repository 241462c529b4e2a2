package daemon

import (
	"fmt"
	"net"
	"net/rpc"

	"distcompute/internal/errs"
)

// RPCName is the net/rpc service name a Daemon registers under. Each
// Daemon binds its own listener at a per-host address, so the registered
// name only needs to be unique within that single listener.
const RPCName = "Daemon"

// RPCService adapts Server to net/rpc's (args, *reply) error calling
// convention.
type RPCService struct {
	srv *Server
}

// NewRPCService wraps srv for net/rpc registration.
func NewRPCService(srv *Server) *RPCService {
	return &RPCService{srv: srv}
}

// Serve registers srv under RPCName and accepts connections on ln until ln
// is closed.
func Serve(srv *Server, ln net.Listener) error {
	server := rpc.NewServer()
	if err := server.RegisterName(RPCName, NewRPCService(srv)); err != nil {
		return fmt.Errorf("register daemon: %w", err)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go server.ServeConn(conn)
	}
}

type RunMapArgs struct {
	UserFn         string
	InputSpec      string
	OutputSpec     string
	OutputFileName string
	JobID          int64
	MapIndex       int
}

func (r *RPCService) RunMap(args RunMapArgs, _ *struct{}) error {
	return r.srv.RunMap(args.UserFn, args.InputSpec, args.OutputSpec, args.OutputFileName, args.JobID, args.MapIndex)
}

// Client is a typed net/rpc client for a Daemon, used by the Job Client.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a Daemon listening at addr.
func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial daemon at %s: %v", errs.ErrTransport, addr, err)
	}
	return &Client{rpc: c}, nil
}

func (c *Client) Close() error { return c.rpc.Close() }

// RunMap dispatches a map task to the Daemon. The call returns once the
// Daemon has accepted the task, before the map itself finishes running.
func (c *Client) RunMap(userFn, inputSpec, outputSpec, outputFileName string, jobID int64, mapIndex int) error {
	args := RunMapArgs{
		UserFn:         userFn,
		InputSpec:      inputSpec,
		OutputSpec:     outputSpec,
		OutputFileName: outputFileName,
		JobID:          jobID,
		MapIndex:       mapIndex,
	}
	if err := c.rpc.Call(RPCName+".RunMap", args, &struct{}{}); err != nil {
		return errs.Classify(err.Error())
	}
	return nil
}
