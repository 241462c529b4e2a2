package jobmanager

import (
	"fmt"
	"net"
	"net/rpc"

	"distcompute/internal/errs"
)

// RPCName is the net/rpc service name Service registers under.
const RPCName = "JobManager"

// RPCService adapts Service to net/rpc's (args, *reply) error calling
// convention.
type RPCService struct {
	svc *Service
}

// NewRPCService wraps svc for net/rpc registration.
func NewRPCService(svc *Service) *RPCService {
	return &RPCService{svc: svc}
}

// Serve registers the Job Manager under RPCName and accepts connections on
// ln until ln is closed.
func Serve(svc *Service, ln net.Listener) error {
	server := rpc.NewServer()
	if err := server.RegisterName(RPCName, NewRPCService(svc)); err != nil {
		return fmt.Errorf("register job manager: %w", err)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go server.ServeConn(conn)
	}
}

type AddJobArgs struct {
	UserFn        string
	InputFormat   string
	InputFileName string
}

type AddJobReply struct {
	JobID int64
}

func (r *RPCService) AddJob(args AddJobArgs, reply *AddJobReply) error {
	id, err := r.svc.AddJob(args.UserFn, args.InputFormat, args.InputFileName)
	if err != nil {
		return err
	}
	reply.JobID = id
	return nil
}

type JobIDArgs struct {
	JobID int64
}

func (r *RPCService) StartJob(args JobIDArgs, _ *struct{}) error {
	return r.svc.StartJob(args.JobID)
}

type SubmitMapArgs struct {
	JobID    int64
	MapIndex int
}

func (r *RPCService) SubmitMap(args SubmitMapArgs, _ *struct{}) error {
	return r.svc.SubmitMap(args.JobID, args.MapIndex)
}

func (r *RPCService) MapCompleted(args SubmitMapArgs, _ *struct{}) error {
	return r.svc.MapCompleted(args.JobID, args.MapIndex)
}

type CompletedMapsReply struct {
	Count int
}

func (r *RPCService) CompletedMaps(args JobIDArgs, reply *CompletedMapsReply) error {
	count, err := r.svc.CompletedMaps(args.JobID)
	if err != nil {
		return err
	}
	reply.Count = count
	return nil
}

type AvailableDaemonsReply struct {
	Addrs []string
}

func (r *RPCService) AvailableDaemons(_ struct{}, reply *AvailableDaemonsReply) error {
	addrs, err := r.svc.AvailableDaemons()
	if err != nil {
		return err
	}
	reply.Addrs = addrs
	return nil
}

// Client is a typed net/rpc client for the Job Manager, used by JC and D.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a Job Manager listening at addr.
func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial job manager at %s: %v", errs.ErrTransport, addr, err)
	}
	return &Client{rpc: c}, nil
}

func (c *Client) Close() error { return c.rpc.Close() }

func (c *Client) call(method string, args, reply any) error {
	if err := c.rpc.Call(RPCName+"."+method, args, reply); err != nil {
		return errs.Classify(err.Error())
	}
	return nil
}

func (c *Client) AddJob(userFn, inputFormat, inputFileName string) (int64, error) {
	var reply AddJobReply
	args := AddJobArgs{UserFn: userFn, InputFormat: inputFormat, InputFileName: inputFileName}
	if err := c.call("AddJob", args, &reply); err != nil {
		return 0, err
	}
	return reply.JobID, nil
}

func (c *Client) StartJob(jobID int64) error {
	return c.call("StartJob", JobIDArgs{JobID: jobID}, &struct{}{})
}

func (c *Client) SubmitMap(jobID int64, mapIndex int) error {
	return c.call("SubmitMap", SubmitMapArgs{JobID: jobID, MapIndex: mapIndex}, &struct{}{})
}

func (c *Client) MapCompleted(jobID int64, mapIndex int) error {
	return c.call("MapCompleted", SubmitMapArgs{JobID: jobID, MapIndex: mapIndex}, &struct{}{})
}

func (c *Client) CompletedMaps(jobID int64) (int, error) {
	var reply CompletedMapsReply
	if err := c.call("CompletedMaps", JobIDArgs{JobID: jobID}, &reply); err != nil {
		return 0, err
	}
	return reply.Count, nil
}

func (c *Client) AvailableDaemons() ([]string, error) {
	var reply AvailableDaemonsReply
	if err := c.call("AvailableDaemons", struct{}{}, &reply); err != nil {
		return nil, err
	}
	return reply.Addrs, nil
}
