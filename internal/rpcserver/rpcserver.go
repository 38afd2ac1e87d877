// Package rpcserver exposes the supervisor's control surface as a
// net/rpc service over JSON-RPC, grounded directly on the teacher's
// own RunRPCServer/SourceControl pattern (rpc_server.go): one
// exported-method struct registered with rpc.NewServer, one
// jsonrpc.NewServerCodec per accepted connection, requests on a
// connection served synchronously so the control struct itself needs
// no internal locking beyond what Supervisor already provides.
package rpcserver

import (
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/davecgh/go-spew/spew"
	"go.uber.org/zap"

	"vxcore/internal/protocol"
	"vxcore/internal/supervisor"
)

// Control is the exported-method receiver net/rpc registers. Every
// method follows the net/rpc signature convention: (args, *reply) error.
type Control struct {
	sup    *supervisor.Supervisor
	logger *zap.SugaredLogger
}

// New wraps sup for RPC exposure.
func New(sup *supervisor.Supervisor, logger *zap.SugaredLogger) *Control {
	return &Control{sup: sup, logger: logger}
}

// StartRecordingArgs is intentionally empty; spec.md's start_recording
// takes no arguments beyond the implicit session/output root already
// configured on the supervisor.
type StartRecordingArgs struct{}

func (c *Control) StartRecording(args *StartRecordingArgs, reply *bool) error {
	*reply = c.sup.StartRecording()
	return nil
}

type PauseRecordingArgs struct{}

func (c *Control) PauseRecording(args *PauseRecordingArgs, reply *bool) error {
	c.sup.PauseRecording()
	*reply = true
	return nil
}

// StopRecordingArgs carries the optional free-form session metadata
// spec.md §6's stop_recording(metadata?) accepts.
type StopRecordingArgs struct {
	Metadata map[string]any
}

func (c *Control) StopRecording(args *StopRecordingArgs, reply *bool) error {
	if c.logger != nil && len(args.Metadata) > 0 {
		c.logger.Debugf("StopRecording metadata: %s", spew.Sdump(args.Metadata))
	}
	c.sup.StopRecording(args.Metadata)
	*reply = true
	return nil
}

// StartProtocolArgs names the protocol to run. The protocol body
// itself is resolved by the caller (typically loaded from session
// config) and passed in full since the supervisor has no protocol
// catalog of its own.
type StartProtocolArgs struct {
	Protocol *protocol.Protocol
}

func (c *Control) StartProtocol(args *StartProtocolArgs, reply *bool) error {
	if c.logger != nil {
		c.logger.Debugf("StartProtocol payload: %s", spew.Sdump(args.Protocol))
	}
	if err := c.sup.StartProtocol(args.Protocol); err != nil {
		*reply = false
		return err
	}
	*reply = true
	return nil
}

type AbortProtocolArgs struct{}

func (c *Control) AbortProtocol(args *AbortProtocolArgs, reply *bool) error {
	c.sup.AbortProtocol()
	*reply = true
	return nil
}

type ShutdownArgs struct{}

func (c *Control) Shutdown(args *ShutdownArgs, reply *bool) error {
	*reply = c.sup.RequestShutdown()
	return nil
}

// SendAllStatusArgs is unused, matching the teacher's own
// SendAllStatus(dummy *string, reply *bool) convention of carrying an
// argument purely because net/rpc requires one.
type SendAllStatusArgs struct{}

func (c *Control) SendAllStatus(args *SendAllStatusArgs, reply *bool) error {
	*reply = true
	return nil
}

// Server owns the listener and the registered Control instance.
type Server struct {
	addr      string
	control   *Control
	logger    *zap.SugaredLogger
	listener  net.Listener
	rpcServer *rpc.Server
}

// NewServer prepares (but does not start) a Server bound to addr
// (e.g. ":5500").
func NewServer(addr string, sup *supervisor.Supervisor, logger *zap.SugaredLogger) *Server {
	return &Server{addr: addr, control: New(sup, logger), logger: logger}
}

// Listen opens the TCP listener and registers Control, without
// accepting connections yet. Split from Serve so callers (and tests)
// can learn the bound address before Serve blocks, which matters when
// addr's port is ":0".
func (s *Server) Listen() error {
	server := rpc.NewServer()
	if err := server.Register(s.control); err != nil {
		return fmt.Errorf("rpcserver: register: %w", err)
	}
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpcserver: listen %q: %w", s.addr, err)
	}
	s.listener = listener
	s.rpcServer = server
	return nil
}

// Addr returns the bound address; valid only after Listen succeeds.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until the listener is closed (via Close).
// Each connection is served on its own goroutine with requests
// handled synchronously, exactly as RunRPCServer does. Listen must
// have been called first.
func (s *Server) Serve() error {
	server := s.rpcServer
	listener := s.listener
	for {
		conn, err := listener.Accept()
		if err != nil {
			return nil // listener closed; normal shutdown path
		}
		s.logf("rpcserver: connection from %s", conn.RemoteAddr())
		go func() {
			codec := jsonrpc.NewServerCodec(conn)
			for {
				if err := server.ServeRequest(codec); err != nil {
					s.logf("rpcserver: connection closed: %v", err)
					return
				}
			}
		}()
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Debugf(format, args...)
		return
	}
	log.Printf(format, args...)
}
