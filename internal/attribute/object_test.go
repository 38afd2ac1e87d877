package attribute

import (
	"testing"
)

type disposableBlob struct {
	disposed *bool
}

func (b disposableBlob) Dispose() { *b.disposed = true }

func TestObjectAttributeDisposesOverwrittenSlot(t *testing.T) {
	s := NewStore()
	h, err := DeclareObject(s, "detections", 2)
	if err != nil {
		t.Fatal(err)
	}
	var d0, d1, d2 bool
	if err := h.Write(disposableBlob{&d0}); err != nil {
		t.Fatal(err)
	}
	if err := h.Write(disposableBlob{&d1}); err != nil {
		t.Fatal(err)
	}
	if d0 {
		t.Errorf("slot 0 disposed before it was overwritten")
	}
	if err := h.Write(disposableBlob{&d2}); err != nil { // wraps, overwrites slot 0
		t.Fatal(err)
	}
	if !d0 {
		t.Errorf("slot 0's occupant was not disposed when overwritten")
	}
	if d1 {
		t.Errorf("slot 1 disposed prematurely")
	}
}

func TestObjectAttributePayloadTooLarge(t *testing.T) {
	s := NewStore()
	h, err := DeclareObject(s, "blob", 4)
	if err != nil {
		t.Fatal(err)
	}
	big := make([]byte, InlineSizeThreshold*2)
	if err := h.Write(big); err == nil {
		t.Errorf("expected ErrPayloadTooLarge for an oversized payload")
	}
	small := []byte{1, 2, 3}
	if err := h.Write(small); err != nil {
		t.Errorf("small payload should be accepted, got %v", err)
	}
}
