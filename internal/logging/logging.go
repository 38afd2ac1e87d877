// Package logging builds the structured logging spine used by every
// worker and the supervisor: a zap.Logger whose level/format follow
// buildLogger's convention from the retrieval pack (development
// console encoding vs. production JSON, level parsed from text), tee'd
// through a zapcore.Core that also hands each record to a caller-supplied
// Sink (cmd/vxcore broadcasts them to the websocket hub) so spec.md §4.8's "structured log
// records surfaced to the UI" requirement is satisfied by the same
// logger.Info/Warn/Error call sites workers already use, without a
// second logging call anywhere.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Record is one structured log line, shaped for forwarding over the
// websocket control surface as a control.LogMsg.
type Record struct {
	Time    time.Time
	Level   string
	Worker  string
	Message string
	Fields  map[string]any
}

// Sink receives every Record a logger built with New emits at or above
// its configured level; records below that level never reach it.
type Sink interface {
	Accept(Record)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Record)

func (f SinkFunc) Accept(r Record) { f(r) }

// New builds a *zap.SugaredLogger tagged with worker, at the given
// level ("debug", "info", "warn", "error"), encoding as console text
// when development is true and JSON otherwise. Every record is also
// delivered to sink, if non-nil.
func New(worker, level string, development bool, sink Sink) (*zap.SugaredLogger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("logging: invalid level %q: %w", level, err)
	}

	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	base, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build: %w", err)
	}
	base = base.Named(worker)

	if sink != nil {
		base = base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, &sinkCore{worker: worker, sink: sink, enabler: zapLevel})
		}))
	}
	return base.Sugar(), nil
}

// sinkCore is a minimal zapcore.Core that forwards every accepted
// entry to a Sink as a Record, independent of the encoding/output the
// primary core uses.
type sinkCore struct {
	mu      sync.Mutex
	worker  string
	sink    Sink
	enabler zapcore.LevelEnabler
	fields  []zapcore.Field
}

func (c *sinkCore) Enabled(lvl zapcore.Level) bool { return c.enabler.Enabled(lvl) }

func (c *sinkCore) With(fields []zapcore.Field) zapcore.Core {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &sinkCore{worker: c.worker, sink: c.sink, enabler: c.enabler, fields: append(append([]zapcore.Field(nil), c.fields...), fields...)}
}

func (c *sinkCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *sinkCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range append(append([]zapcore.Field(nil), c.fields...), fields...) {
		f.AddTo(enc)
	}
	c.sink.Accept(Record{
		Time:    ent.Time,
		Level:   ent.Level.String(),
		Worker:  c.worker,
		Message: ent.Message,
		Fields:  enc.Fields,
	})
	return nil
}

func (c *sinkCore) Sync() error { return nil }
