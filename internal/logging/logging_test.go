package logging

import (
	"sync"
	"testing"
)

type collectingSink struct {
	mu      sync.Mutex
	records []Record
}

func (c *collectingSink) Accept(r Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
}

func (c *collectingSink) all() []Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Record(nil), c.records...)
}

func TestLoggerForwardsToSink(t *testing.T) {
	sink := &collectingSink{}
	logger, err := New("Io", "info", true, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Infow("phase started", "phase_id", 2)

	records := sink.all()
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	r := records[0]
	if r.Worker != "Io" || r.Message != "phase started" || r.Level != "info" {
		t.Fatalf("unexpected record: %+v", r)
	}
	if r.Fields["phase_id"] != int64(2) && r.Fields["phase_id"] != 2 {
		t.Fatalf("expected phase_id field, got %+v", r.Fields)
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	sink := &collectingSink{}
	logger, err := New("Io", "warn", true, sink)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Infow("should not be forwarded")
	logger.Warnw("should be forwarded")

	records := sink.all()
	if len(records) != 1 || records[0].Message != "should be forwarded" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	if _, err := New("Io", "not-a-level", true, nil); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}
