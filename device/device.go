// Package device composes the kernel ioctl facade, the TEMPEST
// engine, and the policy gate into the capture-device core: it owns
// the file descriptor, the negotiated format, and the mmap'd buffer
// ring, and is the only component that actually moves frame data out
// of the kernel.
package device

import (
	"sync/atomic"

	"dsv4l2.dev/errs"
	"dsv4l2.dev/eventlog"
	"dsv4l2.dev/policy"
	"dsv4l2.dev/profile"
	"dsv4l2.dev/tempest"
	"dsv4l2.dev/v4l2"
)

// Frame is a view onto one captured generic-sensitivity image. Data
// aliases the mapped kernel buffer and is only valid until the next
// Capture/CaptureBiometric/Close call on the owning Device.
type Frame struct {
	Data        []byte
	TimestampNS int64
	Sequence    uint32
}

// BiometricFrame is a view onto one captured frame from a sensor
// whose profile carries a biometric classification. It is otherwise
// identical to Frame; the distinct type is the compile-time label
// that replaces a runtime sensitivity flag.
type BiometricFrame struct {
	Data        []byte
	TimestampNS int64
	Sequence    uint32
}

type slot struct {
	data []byte
}

var nextToken uint64

// Device is an opaque capture-device handle. The zero value is not
// usable; construct one with Open.
type Device struct {
	fd             int
	path           string
	role           string
	classification string
	layer          int

	format     v4l2.PixFormat
	haveFormat bool

	slots     []slot
	streaming bool

	tempest *tempest.Engine
	ring    *eventlog.Ring
	token   eventlog.DeviceToken

	profile *profile.Profile

	closed bool
}

// Open opens path non-blocking read-write and returns a Device ready
// for SetFormat/SetFramerate/SetControl/StartStream. If prof is
// non-nil, its role and classification seed the device's policy
// identity; ring receives lifecycle and capture events (nil is
// valid, and simply discards them).
func Open(path string, prof *profile.Profile, ring *eventlog.Ring) (*Device, error) {
	fd, err := v4l2.Open(path)
	if err != nil {
		return nil, err
	}

	d := &Device{
		fd:      fd,
		path:    path,
		tempest: tempest.NewEngine(),
		ring:    ring,
		token:   eventlog.DeviceToken(atomic.AddUint64(&nextToken, 1)),
		profile: prof,
	}
	if prof != nil {
		d.role = prof.Role
		d.classification = prof.Classification
	}
	d.emit(eventlog.DeviceOpen, eventlog.Info, path)
	return d, nil
}

func (d *Device) emit(category eventlog.Category, severity eventlog.Severity, payload any) {
	if d.ring == nil {
		return
	}
	d.ring.Emit(d.token, category, severity, payload)
}

// SetLayer records the device-layer number the policy gate's layer
// cap and minimum-emission-floor rules apply against.
func (d *Device) SetLayer(layer int) { d.layer = layer }

// SetFormat performs S_FMT with field NONE for the given fourcc pixel
// format and resolution, caching the negotiated format (the driver
// may alter width/height).
func (d *Device) SetFormat(fourcc uint32, width, height uint32) (v4l2.PixFormat, error) {
	pix := v4l2.PixFormat{
		Width:       width,
		Height:      height,
		PixelFormat: fourcc,
		Field:       v4l2.FieldNone,
	}
	negotiated, err := v4l2.SetFormat(d.fd, pix)
	if err != nil {
		d.emit(eventlog.FormatChange, eventlog.Warn, err.Error())
		return v4l2.PixFormat{}, err
	}
	d.format = negotiated
	d.haveFormat = true
	d.emit(eventlog.FormatChange, eventlog.Info, negotiated)
	return negotiated, nil
}

// SetFramerate performs G_PARM then S_PARM. The calling convention
// swaps numerator and denominator at the wire: den is written into
// the kernel's Numerator field and num into Denominator, so the
// negotiated time-per-frame is den/num seconds. This is an open
// question in the originating implementation's documentation,
// preserved here rather than silently corrected.
func (d *Device) SetFramerate(num, den uint32) error {
	parm, err := v4l2.GetParm(d.fd)
	if err != nil {
		return err
	}
	parm.TimePerFrame = v4l2.Fract{Numerator: den, Denominator: num}
	_, err = v4l2.SetParm(d.fd, parm)
	return err
}

// SetControl writes value to the control named by id.
func (d *Device) SetControl(id uint32, value int32) error {
	return v4l2.SetControl(d.fd, id, value)
}

// GetControl reads the current value of the control named by id.
func (d *Device) GetControl(id uint32) (int32, error) {
	return v4l2.GetControl(d.fd, id)
}

// EnumControls enumerates the device's controls, invoking fn for each
// one the driver has not flagged disabled.
func (d *Device) EnumControls(fn func(v4l2.QueryCtrl) bool) error {
	return v4l2.EnumControls(d.fd, fn)
}

// Info summarizes a device's identity and negotiated state.
type Info struct {
	Driver, Card, BusInfo string
	Format                v4l2.PixFormat
	Streaming             bool
	TempestState          tempest.State
}

// GetInfo queries the driver capability and returns it alongside the
// device's cached format and TEMPEST state.
func (d *Device) GetInfo() (Info, error) {
	cap, err := v4l2.QueryCap(d.fd)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Driver:       cap.DriverName(),
		Card:         cap.CardName(),
		BusInfo:      cap.BusInfoName(),
		Format:       d.format,
		Streaming:    d.streaming,
		TempestState: d.tempest.GetState(),
	}, nil
}

// TempestState reads the cached TEMPEST state without touching
// hardware.
func (d *Device) TempestState() tempest.State {
	return d.tempest.GetState()
}

// SetTempestState transitions the TEMPEST state, writing to the
// mapped control if InstallTempestMapping has installed one.
func (d *Device) SetTempestState(target tempest.State) error {
	old, err := d.tempest.SetState(d.fd, target)
	if err != nil {
		return err
	}
	d.emit(eventlog.TempestTransition, eventlog.Info, map[string]any{"old": old.String(), "new": target.String()})
	return nil
}

// InstallTempestMapping applies mapping to the device's TEMPEST
// engine, running auto-discovery first if the mapping requests it.
func (d *Device) InstallTempestMapping(mapping tempest.Mapping) error {
	return d.tempest.InstallMapping(d.fd, mapping)
}

// DiscoverTempestControl enumerates the device's controls for one
// whose name matches a TEMPEST naming pattern.
func (d *Device) DiscoverTempestControl() (uint32, error) {
	return tempest.Discover(d.fd)
}

// InstallTempestIndicator binds a physical GPIO pin as the device's
// TEMPEST indicator, supplementing the control-write path.
func (d *Device) InstallTempestIndicator(pinName string) error {
	return d.tempest.InstallIndicatorPin(pinName)
}

// StartStream requests buffers (the profile's BufferCount if one was
// supplied at Open, else 4), maps each into userspace, queues every
// slot, and issues STREAMON. Already-streaming is a no-op success.
func (d *Device) StartStream() error {
	if d.streaming {
		return nil
	}
	count := uint32(4)
	if d.profile != nil && d.profile.BufferCount > 0 {
		count = d.profile.BufferCount
	}

	if len(d.slots) == 0 {
		allocated, err := v4l2.RequestBuffers(d.fd, count)
		if err != nil {
			return err
		}
		d.slots = make([]slot, allocated)
		for i := uint32(0); i < allocated; i++ {
			buf, err := v4l2.QueryBuffer(d.fd, i)
			if err != nil {
				return err
			}
			mapped, err := v4l2.MapBuffer(d.fd, buf)
			if err != nil {
				return err
			}
			d.slots[i] = slot{data: mapped}
		}
		for i := range d.slots {
			if err := v4l2.QueueBuffer(d.fd, uint32(i)); err != nil {
				return err
			}
		}
	}

	if err := v4l2.StreamOn(d.fd); err != nil {
		return err
	}
	d.streaming = true
	d.emit(eventlog.StreamStart, eventlog.Info, nil)
	return nil
}

// StopStream issues STREAMOFF. Already-stopped is a no-op success.
func (d *Device) StopStream() error {
	if !d.streaming {
		return nil
	}
	if err := v4l2.StreamOff(d.fd); err != nil {
		return err
	}
	d.streaming = false
	d.emit(eventlog.StreamStop, eventlog.Info, nil)
	return nil
}

// CheckPolicy runs the policy gate against d's role, classification,
// layer, negotiated format, and TEMPEST state, without performing a
// capture. Capture and CaptureBiometric call this before dequeuing a
// buffer; callers that want to probe whether a capture would be
// allowed can call it directly.
func (d *Device) CheckPolicy(context string, biometric bool) error {
	return policy.Check(policy.Request{
		Role:           d.role,
		Classification: d.classification,
		Layer:          d.layer,
		Width:          d.format.Width,
		Height:         d.format.Height,
		Biometric:      biometric,
		State:          d.tempest.GetState(),
		Context:        context,
	}, d.ring, d.token)
}

func (d *Device) capture(context string) (slot int, bytesUsed uint32, tsNS int64, seq uint32, err error) {
	if !d.streaming {
		return 0, 0, 0, 0, errs.New(errs.InvalidArgument, "device.Capture", nil)
	}
	d.emit(eventlog.CaptureStart, eventlog.Debug, context)

	buf, derr := v4l2.DequeueBuffer(d.fd)
	if derr != nil {
		d.emit(eventlog.CaptureEnd, eventlog.Warn, errs.CodeOf(derr).Int())
		return 0, 0, 0, 0, derr
	}

	tsNS = buf.Timestamp.Sec*1e9 + buf.Timestamp.Usec*1e3
	seq = buf.Sequence
	bytesUsed = buf.BytesUsed
	idx := int(buf.Index)

	if qerr := v4l2.QueueBuffer(d.fd, buf.Index); qerr != nil {
		d.emit(eventlog.CaptureEnd, eventlog.Warn, errs.CodeOf(qerr).Int())
		return 0, 0, 0, 0, qerr
	}

	d.emit(eventlog.CaptureEnd, eventlog.Debug, 0)
	return idx, bytesUsed, tsNS, seq, nil
}

// Capture runs the policy gate and, if allowed, dequeues a buffer and
// returns a Frame view onto it. The slot is re-queued before Capture
// returns, so Frame.Data is only valid until the next capture on this
// Device.
func (d *Device) Capture(label string) (Frame, error) {
	if err := d.CheckPolicy(label, false); err != nil {
		return Frame{}, err
	}
	idx, used, ts, seq, err := d.capture(label)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Data: d.slots[idx].data[:used], TimestampNS: ts, Sequence: seq}, nil
}

// CaptureBiometric is identical to Capture except it runs the policy
// gate with the biometric escalation rules in effect and returns a
// BiometricFrame, carrying the sensitivity label at the type level.
func (d *Device) CaptureBiometric(label string) (BiometricFrame, error) {
	if err := d.CheckPolicy(label, true); err != nil {
		return BiometricFrame{}, err
	}
	idx, used, ts, seq, err := d.capture(label)
	if err != nil {
		return BiometricFrame{}, err
	}
	return BiometricFrame{Data: d.slots[idx].data[:used], TimestampNS: ts, Sequence: seq}, nil
}

// Close stops streaming if needed, unmaps every buffer slot, and
// closes the underlying file descriptor. Close is idempotent: a
// second call on the same Device is a no-op, and Close on a nil
// Device is a no-op.
func (d *Device) Close() error {
	if d == nil || d.closed {
		return nil
	}
	var firstErr error
	if d.streaming {
		if err := d.StopStream(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for i, s := range d.slots {
		if s.data == nil {
			continue
		}
		if err := v4l2.Munmap(s.data); err != nil && firstErr == nil {
			firstErr = err
		}
		d.slots[i].data = nil
	}
	if err := v4l2.Close(d.fd); err != nil && firstErr == nil {
		firstErr = err
	}
	d.closed = true
	d.emit(eventlog.DeviceClose, eventlog.Info, nil)
	return firstErr
}
