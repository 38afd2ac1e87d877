package rpcserver

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"testing"
	"time"

	"vxcore/internal/message"
	"vxcore/internal/protocol"
	"vxcore/internal/supervisor"
	"vxcore/internal/wstate"
)

func startTestServer(t *testing.T) *Server {
	t.Helper()
	bus := message.NewBus()
	cell := wstate.NewCell(wstate.Idle)
	barrier := protocol.NewPhaseBarrier([]*wstate.Cell{cell})
	engine := protocol.NewEngine(time.Millisecond, barrier)
	sup := supervisor.New(supervisor.Options{Bus: bus, Engine: engine, OutputRoot: t.TempDir()})
	sup.RegisterWorker(wstate.Io, cell)

	s := NewServer(":0", sup, nil)
	if err := s.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go s.Serve()
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStartAndStopRecordingOverRPC(t *testing.T) {
	s := startTestServer(t)
	conn, err := jsonRPCDial(s)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var startReply bool
	if err := conn.Call("Control.StartRecording", &StartRecordingArgs{}, &startReply); err != nil {
		t.Fatalf("StartRecording call: %v", err)
	}
	if !startReply {
		t.Fatalf("StartRecording returned false")
	}

	var stopReply bool
	if err := conn.Call("Control.StopRecording", &StopRecordingArgs{}, &stopReply); err != nil {
		t.Fatalf("StopRecording call: %v", err)
	}
	if !stopReply {
		t.Fatalf("StopRecording returned false")
	}
}

func TestShutdownOverRPC(t *testing.T) {
	s := startTestServer(t)
	conn, err := jsonRPCDial(s)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var reply bool
	if err := conn.Call("Control.Shutdown", &ShutdownArgs{}, &reply); err != nil {
		t.Fatalf("Shutdown call: %v", err)
	}
	if !reply {
		t.Fatalf("Shutdown returned false with every worker IDLE")
	}
}

func jsonRPCDial(s *Server) (*rpc.Client, error) {
	conn, err := net.Dial(s.Addr().Network(), s.Addr().String())
	if err != nil {
		return nil, err
	}
	return jsonrpc.NewClient(conn), nil
}
