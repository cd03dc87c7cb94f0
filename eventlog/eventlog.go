// Package eventlog implements the bounded, append-only audit ring
// every other subsystem emits into: device lifecycle, TEMPEST
// transitions, policy decisions, and capture framing all become
// Events here, drained on demand to a log sink.
package eventlog

import (
	"fmt"
	"log"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
)

// Severity is an increasing integer, matching the ABI-stable ordering
// DEBUG < INFO < WARN < ERROR.
type Severity int

const (
	Debug Severity = iota
	Info
	Warn
	Error
)

func (s Severity) String() string {
	switch s {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Category names the kind of event, as a stable integer per the ABI.
type Category int

const (
	DeviceOpen Category = iota
	DeviceClose
	TempestQuery
	TempestTransition
	PolicyCheck
	FormatChange
	FrameAcquired
	CaptureStart
	CaptureEnd
	ProfileFallback
	StreamStart
	StreamStop
)

func (c Category) String() string {
	switch c {
	case DeviceOpen:
		return "device_open"
	case DeviceClose:
		return "device_close"
	case TempestQuery:
		return "tempest_query"
	case TempestTransition:
		return "tempest_transition"
	case PolicyCheck:
		return "policy_check"
	case FormatChange:
		return "format_change"
	case FrameAcquired:
		return "frame_acquired"
	case CaptureStart:
		return "capture_start"
	case CaptureEnd:
		return "capture_end"
	case ProfileFallback:
		return "profile_fallback"
	case StreamStart:
		return "stream_start"
	case StreamStop:
		return "stream_stop"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// DeviceToken identifies the device an event pertains to. It is
// derived from the device handle, not a pointer, so tokens remain
// meaningful after the device that produced them is closed.
type DeviceToken uint64

// Event is one record in the ring.
type Event struct {
	Seq      uint64      `cbor:"1,keyasint"`
	Device   DeviceToken `cbor:"2,keyasint"`
	Category Category    `cbor:"3,keyasint"`
	Severity Severity    `cbor:"4,keyasint"`
	Payload  any         `cbor:"5,keyasint,omitempty"`
}

// Stats reports the ring's running counters.
type Stats struct {
	EventsEmitted  uint64
	EventsDropped  uint64
	BufferCapacity int
}

// Config configures a Ring at Init time.
type Config struct {
	// Capacity is the maximum number of buffered events; 0 selects the
	// default of 4096.
	Capacity int
	// Sink receives flushed events in FIFO order. A nil Sink defaults
	// to a logger writing to standard error.
	Sink *log.Logger
	// Chained, when true, folds a BLAKE2b digest of each flushed batch
	// into the digest of the batch before it, exposed via LastDigest.
	Chained bool
}

const defaultCapacity = 4096

// Ring is the bounded append-only event ring. The zero value is not
// usable; construct one with Init.
type Ring struct {
	mu       sync.Mutex
	buf      []Event
	head     int // index of the oldest buffered event
	count    int // number of buffered events
	cap      int
	emitted  uint64
	dropped  uint64
	nextSeq  uint64
	sink     *log.Logger
	chained  bool
	digest   [blake2b.Size]byte
	haveHash bool
}

// Init constructs a Ring per cfg. A zero Config is valid and selects
// all defaults.
func Init(cfg Config) *Ring {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	sink := cfg.Sink
	if sink == nil {
		sink = log.Default()
	}
	return &Ring{
		buf:     make([]Event, capacity),
		cap:     capacity,
		sink:    sink,
		chained: cfg.Chained,
	}
}

// EmitSimple appends an event with a small, category-specific aux
// payload.
func (r *Ring) EmitSimple(device DeviceToken, category Category, severity Severity, aux any) {
	r.Emit(device, category, severity, aux)
}

// Emit appends an event to the ring, dropping the oldest buffered
// event if the ring is full.
func (r *Ring) Emit(device DeviceToken, category Category, severity Severity, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev := Event{
		Seq:      r.nextSeq,
		Device:   device,
		Category: category,
		Severity: severity,
		Payload:  payload,
	}
	r.nextSeq++

	if r.count == r.cap {
		// Ring is full: overwrite the oldest slot and advance head,
		// counting the drop.
		r.buf[r.head] = ev
		r.head = (r.head + 1) % r.cap
		r.dropped++
	} else {
		idx := (r.head + r.count) % r.cap
		r.buf[idx] = ev
		r.count++
	}
	r.emitted++
}

// Flush synchronously drains all buffered events to the configured
// sink in FIFO order, then empties the ring. When the ring was
// constructed with Chained, each flushed batch's digest is folded
// into the digest of the previous flush.
func (r *Ring) Flush() error {
	r.mu.Lock()
	batch := make([]Event, r.count)
	for i := 0; i < r.count; i++ {
		batch[i] = r.buf[(r.head+i)%r.cap]
	}
	r.head = 0
	r.count = 0
	chained := r.chained
	prev := r.digest
	haveHash := r.haveHash
	r.mu.Unlock()

	for _, ev := range batch {
		r.sink.Printf("seq=%d device=%d category=%s severity=%s payload=%v",
			ev.Seq, ev.Device, ev.Category, ev.Severity, ev.Payload)
	}

	if !chained || len(batch) == 0 {
		return nil
	}
	encoded, err := cbor.Marshal(batch)
	if err != nil {
		return fmt.Errorf("eventlog.Flush: encode batch: %w", err)
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return fmt.Errorf("eventlog.Flush: init digest: %w", err)
	}
	if haveHash {
		h.Write(prev[:])
	}
	h.Write(encoded)

	r.mu.Lock()
	copy(r.digest[:], h.Sum(nil))
	r.haveHash = true
	r.mu.Unlock()
	return nil
}

// LastDigest returns the most recent chained digest and whether one
// has been computed yet (false before the first chained Flush).
func (r *Ring) LastDigest() ([blake2b.Size]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.digest, r.haveHash
}

// GetStats returns the ring's running counters.
func (r *Ring) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		EventsEmitted:  r.emitted,
		EventsDropped:  r.dropped,
		BufferCapacity: r.cap,
	}
}

// Shutdown flushes any remaining events and releases the ring's
// buffer. The Ring must not be used afterward.
func (r *Ring) Shutdown() error {
	if err := r.Flush(); err != nil {
		return err
	}
	r.mu.Lock()
	r.buf = nil
	r.mu.Unlock()
	return nil
}
