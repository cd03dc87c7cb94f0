package eventlog

import (
	"bytes"
	"log"
	"testing"
)

func newTestRing(capacity int) (*Ring, *bytes.Buffer) {
	var buf bytes.Buffer
	sink := log.New(&buf, "", 0)
	return Init(Config{Capacity: capacity, Sink: sink}), &buf
}

func TestEmitAndStats(t *testing.T) {
	r, _ := newTestRing(8)
	for i := 0; i < 5; i++ {
		r.EmitSimple(1, CaptureStart, Info, i)
	}
	stats := r.GetStats()
	if stats.EventsEmitted != 5 {
		t.Errorf("EventsEmitted = %d, want 5", stats.EventsEmitted)
	}
	if stats.EventsDropped != 0 {
		t.Errorf("EventsDropped = %d, want 0", stats.EventsDropped)
	}
	if stats.BufferCapacity != 8 {
		t.Errorf("BufferCapacity = %d, want 8", stats.BufferCapacity)
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	r, _ := newTestRing(4)
	for i := 0; i < 10; i++ {
		r.EmitSimple(1, FrameAcquired, Debug, i)
	}
	stats := r.GetStats()
	if stats.EventsEmitted != 10 {
		t.Errorf("EventsEmitted = %d, want 10", stats.EventsEmitted)
	}
	if stats.EventsDropped != 6 {
		t.Errorf("EventsDropped = %d, want 6", stats.EventsDropped)
	}
}

func TestFlushDrainsInFIFOOrder(t *testing.T) {
	r, out := newTestRing(16)
	for i := 0; i < 3; i++ {
		r.EmitSimple(2, PolicyCheck, Warn, i)
	}
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	stats := r.GetStats()
	if stats.EventsEmitted != 3 {
		t.Errorf("EventsEmitted after flush = %d, want 3 (flush must not reset counters)", stats.EventsEmitted)
	}
	lines := bytes.Count(out.Bytes(), []byte("\n"))
	if lines != 3 {
		t.Errorf("flushed %d lines, want 3", lines)
	}
}

func TestHighVolumeLoad(t *testing.T) {
	r, _ := newTestRing(4096)
	const n = 1000
	for i := 0; i < n; i++ {
		r.EmitSimple(3, FrameAcquired, Debug, i)
	}
	stats := r.GetStats()
	if stats.EventsEmitted != n {
		t.Errorf("EventsEmitted = %d, want %d", stats.EventsEmitted, n)
	}
	if stats.EventsDropped != 0 {
		t.Errorf("EventsDropped = %d, want 0 (capacity exceeds load)", stats.EventsDropped)
	}
}

func TestChainedFlushDigestChanges(t *testing.T) {
	sink := log.New(new(bytes.Buffer), "", 0)
	r := Init(Config{Capacity: 16, Sink: sink, Chained: true})

	if _, ok := r.LastDigest(); ok {
		t.Fatalf("LastDigest reported a digest before any flush")
	}

	r.EmitSimple(1, DeviceOpen, Info, nil)
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	first, ok := r.LastDigest()
	if !ok {
		t.Fatalf("LastDigest reported no digest after a chained flush")
	}

	r.EmitSimple(1, DeviceClose, Info, nil)
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	second, ok := r.LastDigest()
	if !ok {
		t.Fatalf("LastDigest reported no digest after a second chained flush")
	}
	if first == second {
		t.Errorf("digest did not change across chained flushes")
	}
}

func TestShutdownFlushesRemaining(t *testing.T) {
	r, out := newTestRing(8)
	r.EmitSimple(1, CaptureEnd, Info, 0)
	if err := r.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if out.Len() == 0 {
		t.Errorf("Shutdown did not flush buffered events to the sink")
	}
}
