// Package supervisor implements spec.md §4.1: the top-level process
// that owns the worker set, the control-channel endpoints, and the
// protocol state machine, and exposes the control-surface contract
// (start_recording, start_protocol, shutdown, ...) consumed by the
// RPC server.
package supervisor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"vxcore/internal/message"
	"vxcore/internal/protocol"
	"vxcore/internal/wstate"
)

// recordingState tracks the two booleans spec.md §4.1 distinguishes:
// Enabled is the sticky session preference set by StartRecording and
// left alone by Pause/Stop; Active is whether the recorder currently
// owns open files.
type recordingState struct {
	Enabled bool
	Active  bool
	Folder  string
}

// Hooks lets the recorder subsystem plug into recording lifecycle
// transitions without the supervisor importing it directly.
type Hooks struct {
	StartRecording func(folder string) error
	PauseRecording func() error
	StopRecording  func(metadata map[string]any) error
}

// Options configures a new Supervisor.
type Options struct {
	Bus          *message.Bus
	Engine       *protocol.Engine
	OutputRoot   string
	Logger       *zap.SugaredLogger
	Hooks        Hooks
	ShutdownGrace time.Duration
}

// Supervisor is the CORE's single coordination point. It never reads
// or writes attribute payloads — only control messages and state
// cells.
type Supervisor struct {
	mu sync.Mutex

	bus    *message.Bus
	engine *protocol.Engine
	logger *zap.SugaredLogger
	hooks  Hooks

	outputRoot    string
	recording     recordingState
	shutdownGrace time.Duration

	workerCells map[wstate.Kind]*wstate.Cell

	shutdownPending bool
	shutdownStarted time.Time
	confirmed       map[wstate.Kind]bool
}

// New constructs a Supervisor wired to bus and engine. Call
// RegisterWorker for every spawned worker before driving Tick.
func New(opts Options) *Supervisor {
	grace := opts.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	s := &Supervisor{
		bus:           opts.Bus,
		engine:        opts.Engine,
		logger:        opts.Logger,
		hooks:         opts.Hooks,
		outputRoot:    opts.OutputRoot,
		shutdownGrace: grace,
		workerCells:   make(map[wstate.Kind]*wstate.Cell),
	}
	// Entering PROTOCOL_END (whether by completing the last phase or by
	// AbortProtocol) always stops any protocol-driven recording; the
	// table's PROTOCOL_END->IDLE "stop recording" effect is thus already
	// satisfied by the time all participants return to IDLE.
	opts.Engine.OnProtocolEnd = func() { s.StopRecording(nil) }
	return s
}

// RegisterWorker makes kind's state cell visible to the shutdown
// readiness check.
func (s *Supervisor) RegisterWorker(kind wstate.Kind, cell *wstate.Cell) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workerCells[kind] = cell
}

// StartRecording implements spec.md §4.1's start_recording(): sets the
// enabled flag, creates rec_<UTC-timestamp> under the output root, and
// returns true. Idempotent while already active; fails (false, logged
// warning) if the folder can't be created.
func (s *Supervisor) StartRecording() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recording.Enabled = true
	if s.recording.Active {
		return true
	}
	folder := filepath.Join(s.outputRoot, fmt.Sprintf("rec_%s", time.Now().UTC().Format("2006-01-02-15-04-05")))
	if err := os.MkdirAll(folder, 0o755); err != nil {
		s.logf("recording folder %q could not be created, recording disabled for this session: %v", folder, err)
		s.recording.Enabled = false
		return false
	}
	if s.hooks.StartRecording != nil {
		if err := s.hooks.StartRecording(folder); err != nil {
			s.logf("recorder failed to start in %q: %v", folder, err)
			return false
		}
	}
	s.recording.Active = true
	s.recording.Folder = folder
	return true
}

// PauseRecording implements pause_recording(): sets recording-active
// false without clearing the folder or writing metadata.
func (s *Supervisor) PauseRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording.Active {
		return
	}
	if s.hooks.PauseRecording != nil {
		if err := s.hooks.PauseRecording(); err != nil {
			s.logf("recorder failed to pause: %v", err)
		}
	}
	s.recording.Active = false
}

// StopRecording implements stop_recording(metadata?): sets
// recording-active false, clears the folder path, and asks the
// recorder to flush/close and write metadata.
func (s *Supervisor) StopRecording(metadata map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.recording.Active {
		return
	}
	if s.hooks.StopRecording != nil {
		if err := s.hooks.StopRecording(metadata); err != nil {
			s.logf("recorder failed to stop cleanly: %v", err)
		}
	}
	s.recording.Active = false
	s.recording.Folder = ""
}

// RecordingActive reports whether the recorder currently owns open
// files.
func (s *Supervisor) RecordingActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recording.Active
}

// StartProtocol implements start_protocol(protocol_id): refuses unless
// every participant is IDLE, otherwise enters PREPARE_PROTOCOL and
// starts a recording if the recording-enabled flag is set.
func (s *Supervisor) StartProtocol(p *protocol.Protocol) error {
	if err := s.engine.StartProtocol(p); err != nil {
		s.logf("start_protocol rejected: %v", err)
		return err
	}
	s.mu.Lock()
	shouldStart := s.recording.Enabled && !s.recording.Active
	s.mu.Unlock()
	if shouldStart {
		s.StartRecording()
	}
	return nil
}

// AbortProtocol implements abort_protocol(): sets stop=now and
// transitions to PROTOCOL_END.
func (s *Supervisor) AbortProtocol() {
	s.engine.AbortProtocol(time.Now())
}

// RequestShutdown implements spec.md §4.1's shutdown contract: if
// every worker is IDLE or NA and recording is inactive, broadcasts
// Shutdown and returns true; otherwise defers (returns false) for the
// UI to confirm.
func (s *Supervisor) RequestShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.recording.Active {
		s.logf("shutdown deferred: recording is still active")
		return false
	}
	for kind, cell := range s.workerCells {
		st := cell.Load()
		if st != wstate.Idle && st != wstate.NA {
			s.logf("shutdown deferred: worker %s is %s, not IDLE/NA", kind, st)
			return false
		}
	}

	s.shutdownPending = true
	s.shutdownStarted = time.Now()
	s.confirmed = make(map[wstate.Kind]bool, len(s.workerCells))
	for kind := range s.workerCells {
		if err := s.bus.PushToWorker(kind, message.ControlMessage{Signal: message.Shutdown}); err != nil {
			s.logf("failed to push shutdown to %s: %v", kind, err)
		}
	}
	return true
}

// ShutdownComplete reports whether every registered worker has sent
// ConfirmShutdown since the last RequestShutdown.
func (s *Supervisor) ShutdownComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shutdownPending {
		return false
	}
	for kind := range s.workerCells {
		if !s.confirmed[kind] {
			return false
		}
	}
	return true
}

// ShutdownTimedOut reports whether the shutdown grace period elapsed
// without every worker confirming — the force-kill path of spec.md §5
// ("a stuck worker... must be force-killed") and exit code 3.
func (s *Supervisor) ShutdownTimedOut() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.shutdownPending {
		return false
	}
	if time.Since(s.shutdownStarted) <= s.shutdownGrace {
		return false
	}
	for kind := range s.workerCells {
		if !s.confirmed[kind] {
			return true
		}
	}
	return false
}

// Tick drains the fan-in queue (forwarding worker-to-worker traffic
// and handling anything addressed to the supervisor itself) and
// advances the protocol engine once. Call this once per supervisor
// tick.
func (s *Supervisor) Tick(now time.Time) (protocol.Transition, bool) {
	s.bus.Forward(wstate.Controller, s.handleLocal)
	return s.engine.Tick(now)
}

func (s *Supervisor) handleLocal(from wstate.Kind, msg message.ControlMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Signal == message.ConfirmShutdown && s.confirmed != nil {
		s.confirmed[from] = true
	}
}

func (s *Supervisor) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Warnf(format, args...)
	}
}
