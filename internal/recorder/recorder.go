package recorder

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"vxcore/internal/attribute"
	"vxcore/internal/wstate"
)

// AttributeSpec maps one recorded attribute to the worker file it
// belongs in.
type AttributeSpec struct {
	Name   string
	Worker wstate.Kind
}

// Recorder implements the supervisor.Hooks contract: Start opens one
// ChunkWriter per distinct worker kind and a goroutine per recorded
// attribute draining its RecordEvent channel; Pause stops draining
// without closing files; Stop flushes, closes, and writes
// metadata.yaml.
//
// A Recorder is a consumer like any other against the attribute ring
// buffers: if its goroutine falls behind, it loses samples exactly as
// documented for any reader in attribute.ErasedRead.Lost, and logs a
// warning rather than blocking the producer.
type Recorder struct {
	store   *attribute.Store
	specs   []AttributeSpec
	compCfg Config
	logger  *zap.SugaredLogger

	mu      sync.Mutex
	writers map[wstate.Kind]*ChunkWriter
	paused  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	folder  string
	live    *LivePublisher

	// OnWrite and OnSampleLost, if set, are called from the drain
	// goroutines to report per-attribute write/loss counts — the hook
	// an observability layer uses to maintain a metrics registry
	// without this package importing one.
	OnWrite      func(name string, idx int64)
	OnSampleLost func(name string)
}

// New constructs a Recorder over store for the given attribute
// specs, using compCfg for every recorded group. If compCfg.LiveEndpoint
// is set, every record written while recording is additionally mirrored
// onto a ZMQ PUB socket there; Start opens that publisher and Stop
// closes it.
func New(store *attribute.Store, specs []AttributeSpec, compCfg Config, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{
		store:   store,
		specs:   specs,
		compCfg: compCfg,
		logger:  logger,
	}
}

// Start implements supervisor.Hooks.StartRecording: one file per
// worker kind under folder, one group per attribute that still
// resolves in the store. An attribute declared for recording but
// never produced is logged and skipped rather than failing the whole
// session, per spec.md's open-question guidance on missing
// attributes.
func (r *Recorder) Start(folder string) error {
	if err := r.compCfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	byWorker := make(map[wstate.Kind][]AttributeSpec)
	for _, spec := range r.specs {
		byWorker[spec.Worker] = append(byWorker[spec.Worker], spec)
	}

	writers := make(map[wstate.Kind]*ChunkWriter, len(byWorker))
	for kind, specs := range byWorker {
		path := filepath.Join(folder, fmt.Sprintf("%s.vxcr", kind))
		cw := NewChunkWriter(path)
		if err := cw.CreateFile(); err != nil {
			r.closeAll(writers)
			return err
		}
		for _, spec := range specs {
			attr, err := r.store.Lookup(spec.Name)
			if err != nil {
				r.logf("recorder: attribute %q declared for recording on %s but never produced, skipping: %v", spec.Name, spec.Worker, err)
				continue
			}
			d := attr.Descriptor()
			dtype := "object"
			if d.Kind == attribute.KindArray {
				dtype = d.Dtype.String()
			}
			if err := cw.DeclareGroup(GroupHeader{
				AttrName:    spec.Name,
				Dtype:       dtype,
				Shape:       d.Shape,
				Compression: r.compCfg,
			}); err != nil {
				r.closeAll(writers)
				return err
			}
		}
		if err := cw.WriteHeader(); err != nil {
			r.closeAll(writers)
			return err
		}
		writers[kind] = cw
	}

	r.writers = writers
	r.folder = folder
	r.paused = false
	r.stopCh = make(chan struct{})
	r.live = NewLivePublisher(r.compCfg.LiveEndpoint)

	for _, spec := range r.specs {
		attr, err := r.store.Lookup(spec.Name)
		if err != nil {
			continue // already logged above
		}
		cw, ok := writers[spec.Worker]
		if !ok {
			continue
		}
		ch := make(chan attribute.RecordEvent, 1024)
		attr.MarkForRecording(ch)
		r.wg.Add(1)
		go r.drain(attr, spec.Name, ch, cw, r.stopCh)
	}
	return nil
}

func (r *Recorder) closeAll(writers map[wstate.Kind]*ChunkWriter) {
	for _, cw := range writers {
		cw.Close()
	}
}

// drain is the per-attribute consumer goroutine: for every RecordEvent
// it reads the value back from the ring (it may already have been
// overwritten, in which case the sample is lost and logged, same as
// any other slow consumer), then writes a compressed record.
func (r *Recorder) drain(attr attribute.Attribute, name string, ch chan attribute.RecordEvent, cw *ChunkWriter, stop chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if r.isPaused() {
				continue
			}
			if err := r.writeOne(attr, name, ev, cw); err != nil {
				r.logf("recorder: %v", err)
			}
		case <-stop:
			// Drain whatever is already queued before exiting.
			for {
				select {
				case ev, ok := <-ch:
					if !ok {
						return
					}
					if !r.isPaused() {
						if err := r.writeOne(attr, name, ev, cw); err != nil {
							r.logf("recorder: %v", err)
						}
					}
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) writeOne(attr attribute.Attribute, name string, ev attribute.RecordEvent, cw *ChunkWriter) error {
	read, err := attr.ReadFromErased(ev.Index)
	if err != nil {
		if err == attribute.ErrNoData {
			return nil
		}
		return fmt.Errorf("attribute %q: %w", name, err)
	}
	if read.Len() == 0 || read.Indices[0] != ev.Index {
		r.logf("recorder: attribute %q index %d was overwritten before it could be recorded (sample lost)", name, ev.Index)
		if r.OnSampleLost != nil {
			r.OnSampleLost(name)
		}
		return nil
	}

	var payload []byte
	elemSize := 8 // float64
	if read.Floats != nil {
		row := read.Floats[0]
		payload = make([]byte, 8*len(row))
		for i, v := range row {
			binary.LittleEndian.PutUint64(payload[i*8:], math.Float64bits(v))
		}
	} else {
		payload = []byte(fmt.Sprintf("%v", read.Objects[0]))
		elemSize = 1
	}

	compressed, err := compress(cw.groups[name].Compression, payload, elemSize)
	if err != nil {
		return fmt.Errorf("attribute %q: compress: %w", name, err)
	}
	r.live.Publish(name, payload)
	if r.OnWrite != nil {
		r.OnWrite(name, ev.Index)
	}
	return cw.WriteRecord(name, ev.Index, ev.Timestamp.UnixNano(), -1, compressed)
}

func (r *Recorder) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// WritePhaseMarker writes one phase_<k> marker record per declared
// group of every open writer. The marker record names no group, so a
// file with n groups holds n identical markers for each phase.
func (r *Recorder) WritePhaseMarker(phaseID int, start time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, cw := range r.writers {
		for name := range cw.groups {
			if err := cw.WritePhaseMarker(int32(phaseID), start.UnixNano()); err != nil {
				r.logf("recorder: phase marker on group %q: %v", name, err)
			}
		}
	}
}

// Pause implements supervisor.Hooks.PauseRecording: stop writing new
// records without closing any file.
func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paused = true
	return nil
}

// Stop implements supervisor.Hooks.StopRecording: stop every consumer
// goroutine, flush and close every writer, and write metadata.yaml
// alongside the recording.
func (r *Recorder) Stop(metadata map[string]any) error {
	r.mu.Lock()
	stopCh := r.stopCh
	writers := r.writers
	folder := r.folder
	r.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	r.wg.Wait()

	var firstErr error
	for _, cw := range writers {
		if err := cw.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := cw.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if folder != "" {
		if err := writeMetadata(folder, metadata); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.live.Close()
	r.live = nil

	r.mu.Lock()
	r.writers = nil
	r.stopCh = nil
	r.paused = false
	r.folder = ""
	r.mu.Unlock()
	return firstErr
}

func writeMetadata(folder string, metadata map[string]any) error {
	out := map[string]any{"recorded_at": time.Now().UTC().Format(time.RFC3339)}
	for k, v := range metadata {
		out[k] = v
	}
	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("recorder: marshal metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(folder, "metadata.yaml"), data, 0o644); err != nil {
		return fmt.Errorf("recorder: write metadata.yaml: %w", err)
	}
	return nil
}

func (r *Recorder) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Warnf(format, args...)
	}
}
