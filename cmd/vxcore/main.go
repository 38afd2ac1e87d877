// Command vxcore is the process entrypoint: a cobra root command
// wiring config, the attribute store, the message bus, the fixed
// worker set, the protocol engine/supervisor, and the control surface
// (RPC + websocket + metrics) together, then blocking until shutdown.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"vxcore/internal/attribute"
	"vxcore/internal/build"
	"vxcore/internal/clock"
	"vxcore/internal/config"
	"vxcore/internal/control"
	"vxcore/internal/logging"
	"vxcore/internal/message"
	"vxcore/internal/metrics"
	"vxcore/internal/protocol"
	"vxcore/internal/recorder"
	"vxcore/internal/rpcserver"
	"vxcore/internal/supervisor"
	"vxcore/internal/trigger"
	"vxcore/internal/worker"
	"vxcore/internal/wstate"
)

// participantKinds are the worker roles the protocol barrier waits on.
// Controller is the supervisor itself and Worker is reserved for
// ad-hoc registrations, so neither participates in phase rendezvous.
var participantKinds = []wstate.Kind{wstate.Camera, wstate.Display, wstate.Io, wstate.Gui}

func main() {
	root := &cobra.Command{
		Use:   "vxcore",
		Short: "vxcore runs a closed-loop visual-neuroscience control session",
	}

	var configPath string
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "start a session from a config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), configPath)
		},
	}
	runCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to session config file")
	runCmd.MarkFlagRequired("config")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "load and validate a session config file without starting anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, _, err := config.Load(configPath); err != nil {
				return err
			}
			fmt.Println("config is valid")
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to session config file")
	validateCmd.MarkFlagRequired("config")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "print build info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(build.Build.String())
			return nil
		},
	}

	root.AddCommand(runCmd, validateCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runSession(ctx context.Context, configPath string) error {
	cfg, v, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("fatal: %w", err) // exit code 1 path, spec.md §7
	}
	build.Start(time.Now())

	hub := control.NewHub()
	sink := logging.SinkFunc(func(r logging.Record) {
		hub.Broadcast(control.LogMsg{Type: "log", Level: r.Level, Worker: r.Worker, Message: r.Message})
	})
	logger, err := logging.New("supervisor", cfg.LogLevel, false, sink)
	if err != nil {
		return fmt.Errorf("fatal: %w", err)
	}
	defer logger.Sync()

	attribute.SetLogger(logger)
	store := attribute.NewStore()
	bus := message.NewBus()
	bus.SetLogger(logger)

	// Each participant's state cell is allocated once here so it can be
	// handed to both the protocol barrier (below) and the worker itself
	// (worker.Options.Cell) before the worker exists.
	cells := make(map[wstate.Kind]*wstate.Cell, len(participantKinds))
	barrierCells := make([]*wstate.Cell, 0, len(participantKinds))
	for _, kind := range participantKinds {
		cell := wstate.NewCell(wstate.Idle)
		cells[kind] = cell
		barrierCells = append(barrierCells, cell)
	}
	barrier := protocol.NewPhaseBarrier(barrierCells)
	engine := protocol.NewEngine(cfg.PhaseLeadTime, barrier)

	specs := make([]recorder.AttributeSpec, 0, len(cfg.Attributes))
	for _, a := range cfg.Attributes {
		kind, ok := wstate.ParseKind(a.Worker)
		if !ok {
			logger.Warnw("recording.attributes entry names an unknown worker kind, skipping", "attribute", a.Name, "worker", a.Worker)
			continue
		}
		specs = append(specs, recorder.AttributeSpec{Name: a.Name, Worker: kind})
	}

	compMode := recorder.CompressionNone
	switch cfg.Compression.Mode {
	case "gzip":
		compMode = recorder.CompressionGzip
	case "lzf":
		compMode = recorder.CompressionLZF
	}
	rec := recorder.New(store, specs, recorder.Config{
		Mode:         compMode,
		Level:        cfg.Compression.Level,
		Shuffle:      cfg.Compression.Shuffle,
		LiveEndpoint: cfg.LiveEndpoint,
	}, logger)

	sup := supervisor.New(supervisor.Options{
		Bus:        bus,
		Engine:     engine,
		OutputRoot: cfg.OutputRoot,
		Logger:     logger,
		Hooks: supervisor.Hooks{
			StartRecording: rec.Start,
			PauseRecording: func() error { return rec.Pause() },
			StopRecording:  rec.Stop,
		},
		ShutdownGrace: cfg.ShutdownGrace,
	})
	for kind, cell := range cells {
		sup.RegisterWorker(kind, cell)
	}

	metricsReg := metrics.NewRegistry()
	rec.OnWrite = func(name string, idx int64) { metricsReg.SetWriteIndex(name, idx) }
	rec.OnSampleLost = func(name string) { metricsReg.AddSamplesLost(name, 1) }
	minSleep := clock.CalibrateMinSleep(100)

	workers := make([]*worker.Worker, 0, len(participantKinds))
	for _, kind := range participantKinds {
		var raw map[string]any
		if err := config.WorkerSection(v, kind.String(), &raw); err != nil {
			return fmt.Errorf("fatal: %w", err)
		}
		wLogger, err := logging.New(kind.String(), cfg.LogLevel, false, sink)
		if err != nil {
			return fmt.Errorf("fatal: %w", err)
		}
		endpoint := bus.Register(kind)
		endpoint.SetLogger(wLogger)
		dispatcher := message.NewDispatcher()
		dispatcher.SetLogger(wLogger)
		w := worker.New(worker.Options{
			Kind:       kind,
			Cell:       cells[kind],
			Endpoint:   endpoint,
			Dispatcher: dispatcher,
			Engine:     engine,
			Period:     cfg.TickPeriod,
			MinSleep:   minSleep,
			Logger:     wLogger,
			PublishPhaseTime: func(phaseTime time.Duration) {
				hub.Broadcast(control.StatusMsg{Type: "status", Worker: kind.String(), State: wstate.Running.String()})
			},
			OnTick: func(d time.Duration) {
				metricsReg.ObserveTick(kind.String(), d.Seconds())
			},
		})
		if len(raw) > 0 {
			wLogger.Debugw("worker section decoded", "kind", kind, "config", raw)
		}
		workers = append(workers, w)
	}

	triggerPub := recorder.NewLivePublisher(cfg.LiveEndpoint)
	defer triggerPub.Close()
	workersByKind := make(map[wstate.Kind]*worker.Worker, len(workers))
	for _, w := range workers {
		workersByKind[w.Kind()] = w
	}
	for _, tc := range cfg.Triggers {
		attr, err := store.Lookup(tc.Attribute)
		if err != nil {
			logger.Warnw("trigger declared over an attribute that isn't produced, skipping", "trigger", tc.Name, "attribute", tc.Attribute, "error", err)
			continue
		}
		kind, ok := wstate.ParseKind(tc.Worker)
		if !ok {
			logger.Warnw("trigger names an unknown worker kind, skipping", "trigger", tc.Name, "worker", tc.Worker)
			continue
		}
		w, ok := workersByKind[kind]
		if !ok {
			logger.Warnw("trigger names a worker kind with no running worker, skipping", "trigger", tc.Name, "worker", tc.Worker)
			continue
		}
		cond, ok := parseCondition(tc.Condition)
		if !ok {
			logger.Warnw("trigger names an unknown condition, skipping", "trigger", tc.Name, "condition", tc.Condition)
			continue
		}
		callbacks := make([]trigger.Callback, 0, len(tc.Callbacks))
		for _, cb := range tc.Callbacks {
			cbKind, ok := wstate.ParseKind(cb.Target)
			if !ok {
				logger.Warnw("trigger callback names an unknown worker kind, skipping", "trigger", tc.Name, "target", cb.Target)
				continue
			}
			callbacks = append(callbacks, trigger.Callback{Target: cbKind, Key: cb.Key})
		}
		tr := trigger.New(tc.Name, attr, cond, callbacks...)
		tr.SetLogger(logger)
		tr.SetOnFire(func(name string, idx int64, ts time.Time, value float64) {
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint64(buf, math.Float64bits(value))
			triggerPub.Publish(name, buf)
			metricsReg.IncTriggerFired(name)
		})
		w.AddTrigger(tr)
	}

	group, gctx := errgroup.WithContext(ctx)
	for _, w := range workers {
		w := w
		group.Go(func() error { return w.Run(gctx) })
	}

	rpcSrv := rpcserver.NewServer(cfg.RPCAddr, sup, logger)
	if err := rpcSrv.Listen(); err != nil {
		return fmt.Errorf("fatal: %w", err)
	}
	group.Go(rpcSrv.Serve)

	mux := http.NewServeMux()
	mux.Handle("/ws", http.HandlerFunc(hub.ServeWS))
	mux.Handle("/metrics", metricsReg.Handler())
	httpSrv := &http.Server{Addr: cfg.WebsocketAddr, Handler: mux}
	group.Go(httpSrv.ListenAndServe)

	group.Go(func() error {
		return superviseLoop(gctx, sup, cfg.TickPeriod, rec.WritePhaseMarker)
	})

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	group.Go(func() error {
		<-sigCtx.Done()
		sup.RequestShutdown()
		rpcSrv.Close()
		httpSrv.Close()
		return nil
	})

	if err := group.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

// parseCondition resolves a session-file condition name to its
// trigger.ConditionKind.
func parseCondition(s string) (trigger.ConditionKind, bool) {
	switch s {
	case "level_high":
		return trigger.LevelHigh, true
	case "rising_edge":
		return trigger.RisingEdge, true
	case "falling_edge":
		return trigger.FallingEdge, true
	default:
		return 0, false
	}
}

// superviseLoop drives Supervisor.Tick on cfg.TickPeriod until the
// context is cancelled or the shutdown grace period expires without
// every worker confirming (spec.md §5's force-kill path, exit code 3).
// A transition into RUNNING is the start of a new phase, per
// spec.md §4.6/§4.7; onPhaseStart writes that phase's marker into
// every open recording group.
func superviseLoop(ctx context.Context, sup *supervisor.Supervisor, period time.Duration, onPhaseStart func(phaseID int, start time.Time)) error {
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			transition, ok := sup.Tick(now)
			if ok && transition.To == wstate.Running && onPhaseStart != nil {
				onPhaseStart(transition.PhaseID, transition.Run.Start)
			}
			if sup.ShutdownTimedOut() {
				return fmt.Errorf("shutdown timed out waiting for worker confirmation")
			}
			if sup.ShutdownComplete() {
				return nil
			}
		}
	}
}
