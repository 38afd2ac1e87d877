package recorder

import (
	czmq "github.com/zeromq/goczmq"
)

// LivePublisher mirrors recorded data onto a ZMQ PUB socket for
// external live consumers (plotting, monitoring), grounded directly on
// the teacher's DataPublisher.PubRecords / SetPubRecordsWithHostname
// (publish_data.go): a czmq.Channeler wraps the PUB socket and exposes
// a plain Go channel to publish onto.
type LivePublisher struct {
	ch *czmq.Channeler
}

// NewLivePublisher binds a PUB socket at endpoint (e.g. "tcp://*:5556").
// Returns nil if endpoint is empty, matching the teacher's own
// HasPubRecords nil-means-disabled convention.
func NewLivePublisher(endpoint string) *LivePublisher {
	if endpoint == "" {
		return nil
	}
	return &LivePublisher{ch: czmq.NewPubChanneler(endpoint)}
}

// Publish sends one [group, payload] frame pair, non-blocking: a
// subscriber that can't keep up loses frames rather than stalling the
// recorder's drain goroutine.
func (p *LivePublisher) Publish(group string, payload []byte) {
	if p == nil || p.ch == nil {
		return
	}
	select {
	case p.ch.SendChan <- [][]byte{[]byte(group), payload}:
	default:
	}
}

// Close tears down the PUB socket. Safe to call on a nil LivePublisher.
func (p *LivePublisher) Close() {
	if p == nil || p.ch == nil {
		return
	}
	p.ch.Destroy()
}
