package nameservice

import (
	"fmt"
	"net"
	"net/rpc"

	"distcompute/internal/errs"
)

// RPCName is the net/rpc service name Service registers under.
const RPCName = "NameService"

// RPCService adapts Service to net/rpc's (args, *reply) error calling
// convention. Every method here mirrors a Service method one for one.
type RPCService struct {
	svc *Service
}

// NewRPCService wraps svc for net/rpc registration.
func NewRPCService(svc *Service) *RPCService {
	return &RPCService{svc: svc}
}

// Serve registers the Name Service under RPCName and accepts connections on
// ln until ln is closed.
func Serve(svc *Service, ln net.Listener) error {
	server := rpc.NewServer()
	if err := server.RegisterName(RPCName, NewRPCService(svc)); err != nil {
		return fmt.Errorf("register name service: %w", err)
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go server.ServeConn(conn)
	}
}

type WriteChunkRequestArgs struct {
	ReplicationFactor int
}

type WriteChunkRequestReply struct {
	Hosts []string
}

func (r *RPCService) WriteChunkRequest(args WriteChunkRequestArgs, reply *WriteChunkRequestReply) error {
	hosts, err := r.svc.WriteChunkRequest(args.ReplicationFactor)
	if err != nil {
		return err
	}
	reply.Hosts = hosts
	return nil
}

type ReadFileRequestArgs struct {
	FileName string
}

type ReadFileRequestReply struct {
	Hosts []string
}

func (r *RPCService) ReadFileRequest(args ReadFileRequestArgs, reply *ReadFileRequestReply) error {
	hosts, err := r.svc.ReadFileRequest(args.FileName)
	if err != nil {
		return err
	}
	reply.Hosts = hosts
	return nil
}

type DeleteFileRequestArgs struct {
	FileName string
}

type DeleteFileRequestReply struct {
	ChunkHosts map[int][]string
}

func (r *RPCService) DeleteFileRequest(args DeleteFileRequestArgs, reply *DeleteFileRequestReply) error {
	chunkHosts, err := r.svc.DeleteFileRequest(args.FileName)
	if err != nil {
		return err
	}
	reply.ChunkHosts = chunkHosts
	return nil
}

type ChunkWrittenArgs struct {
	FileName          string
	FileSize          int
	ChunkSize         int64
	ReplicationFactor int
	ChunkNumber       int
	Server            string
}

func (r *RPCService) ChunkWritten(args ChunkWrittenArgs, _ *struct{}) error {
	return r.svc.ChunkWritten(args.FileName, args.FileSize, args.ChunkSize, args.ReplicationFactor, args.ChunkNumber, args.Server)
}

type AllChunksWrittenArgs struct {
	FileName string
}

func (r *RPCService) AllChunksWritten(args AllChunksWrittenArgs, _ *struct{}) error {
	return r.svc.AllChunksWritten(args.FileName)
}

type ChunkDeletedArgs struct {
	FileName    string
	ChunkNumber int
	Server      string
}

func (r *RPCService) ChunkDeleted(args ChunkDeletedArgs, _ *struct{}) error {
	return r.svc.ChunkDeleted(args.FileName, args.ChunkNumber, args.Server)
}

type NotifyDataNodeAvailabilityArgs struct {
	Addr string
}

func (r *RPCService) NotifyDataNodeAvailability(args NotifyDataNodeAvailabilityArgs, _ *struct{}) error {
	return r.svc.NotifyDataNodeAvailability(args.Addr)
}

type NotifyDaemonAvailabilityArgs struct {
	Addr string
}

func (r *RPCService) NotifyDaemonAvailability(args NotifyDaemonAvailabilityArgs, _ *struct{}) error {
	return r.svc.NotifyDaemonAvailability(args.Addr)
}

type GetAvailableDaemonsReply struct {
	Addrs []string
}

func (r *RPCService) GetAvailableDaemons(_ struct{}, reply *GetAvailableDaemonsReply) error {
	addrs, err := r.svc.GetAvailableDaemons()
	if err != nil {
		return err
	}
	reply.Addrs = addrs
	return nil
}

func (r *RPCService) Reset(_ struct{}, _ *struct{}) error {
	return r.svc.Reset()
}

// Client is a typed net/rpc client for the Name Service, used by DN, HC, JM
// and JC. Errors returned from remote calls are reclassified through
// errs.Classify so callers can still use errors.Is against the stable
// sentinel taxonomy.
type Client struct {
	rpc *rpc.Client
}

// Dial connects to a Name Service listening at addr.
func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial name service at %s: %v", errs.ErrTransport, addr, err)
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

func (c *Client) WriteChunkRequest(replicationFactor int) ([]string, error) {
	var reply WriteChunkRequestReply
	if err := c.call("WriteChunkRequest", WriteChunkRequestArgs{ReplicationFactor: replicationFactor}, &reply); err != nil {
		return nil, err
	}
	return reply.Hosts, nil
}

func (c *Client) ReadFileRequest(fileName string) ([]string, error) {
	var reply ReadFileRequestReply
	if err := c.call("ReadFileRequest", ReadFileRequestArgs{FileName: fileName}, &reply); err != nil {
		return nil, err
	}
	return reply.Hosts, nil
}

func (c *Client) DeleteFileRequest(fileName string) (map[int][]string, error) {
	var reply DeleteFileRequestReply
	if err := c.call("DeleteFileRequest", DeleteFileRequestArgs{FileName: fileName}, &reply); err != nil {
		return nil, err
	}
	return reply.ChunkHosts, nil
}

func (c *Client) ChunkWritten(fileName string, fileSize int, chunkSize int64, replicationFactor, chunkNumber int, server string) error {
	args := ChunkWrittenArgs{
		FileName:          fileName,
		FileSize:          fileSize,
		ChunkSize:         chunkSize,
		ReplicationFactor: replicationFactor,
		ChunkNumber:       chunkNumber,
		Server:            server,
	}
	return c.call("ChunkWritten", args, &struct{}{})
}

func (c *Client) AllChunksWritten(fileName string) error {
	return c.call("AllChunksWritten", AllChunksWrittenArgs{FileName: fileName}, &struct{}{})
}

func (c *Client) ChunkDeleted(fileName string, chunkNumber int, server string) error {
	args := ChunkDeletedArgs{FileName: fileName, ChunkNumber: chunkNumber, Server: server}
	return c.call("ChunkDeleted", args, &struct{}{})
}

func (c *Client) NotifyDataNodeAvailability(addr string) error {
	return c.call("NotifyDataNodeAvailability", NotifyDataNodeAvailabilityArgs{Addr: addr}, &struct{}{})
}

func (c *Client) NotifyDaemonAvailability(addr string) error {
	return c.call("NotifyDaemonAvailability", NotifyDaemonAvailabilityArgs{Addr: addr}, &struct{}{})
}

func (c *Client) GetAvailableDaemons() ([]string, error) {
	var reply GetAvailableDaemonsReply
	if err := c.call("GetAvailableDaemons", struct{}{}, &reply); err != nil {
		return nil, err
	}
	return reply.Addrs, nil
}

// Reset discards all file metadata on the Name Service, per the
// "name-service reset" CLI operation.
func (c *Client) Reset() error {
	return c.call("Reset", struct{}{}, &struct{}{})
}
