// Package tempest implements the emission-control state machine:
// cached per-device state, heuristic auto-discovery of the control
// that drives it, and the translation of abstract state transitions
// into V4L2 control writes (and, optionally, a physical indicator).
package tempest

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"dsv4l2.dev/control"
	"dsv4l2.dev/errs"
	"dsv4l2.dev/v4l2"
)

// State is the four-valued abstract emission level.
type State int

const (
	Disabled State = iota
	Low
	High
	Lockdown
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "DISABLED"
	case Low:
		return "LOW"
	case High:
		return "HIGH"
	case Lockdown:
		return "LOCKDOWN"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Mapping names the control that drives TEMPEST state and the numeric
// value on that control corresponding to each of the four states.
type Mapping struct {
	ControlID  uint32
	AutoDetect bool
	Values     [4]int32 // indexed by State
}

// Engine owns one device's cached TEMPEST state and, once installed,
// the mapping translating state transitions to control writes.
type Engine struct {
	state   State
	mapping Mapping
	haveMap bool

	// Indicator, when non-nil, is driven high whenever state is at
	// least High, independent of whether a control mapping is
	// installed. This supplements the control-write path with a
	// physical shutter/LED a profile may declare.
	Indicator gpio.PinOut
}

// NewEngine returns an Engine with state DISABLED and no mapping
// installed.
func NewEngine() *Engine {
	return &Engine{state: Disabled}
}

// GetState reads the cached state. It never touches hardware.
func (e *Engine) GetState() State {
	return e.state
}

// SetState updates the cached state and, if a mapping is installed,
// writes the target's numeric value to the mapped control. Absent a
// mapping, the call updates the cache only, enabling dry-run and
// simulator use. Returns the previous state so callers can log the
// transition.
func (e *Engine) SetState(fd int, target State) (old State, err error) {
	old = e.state
	if e.haveMap {
		if err := v4l2.SetControl(fd, e.mapping.ControlID, e.mapping.Values[target]); err != nil {
			return old, err
		}
	}
	e.state = target
	if e.Indicator != nil {
		_ = e.Indicator.Out(gpio.Level(target >= High))
	}
	return old, nil
}

// Discover enumerates controls via QUERYCTRL/NEXT_CTRL, skipping any
// the driver flags disabled, and returns the id of the first control
// whose lowercased name matches a TEMPEST naming pattern.
func Discover(fd int) (uint32, error) {
	var found uint32
	var ok bool
	err := v4l2.EnumControls(fd, func(q v4l2.QueryCtrl) bool {
		if control.LooksLikeTEMPEST(q.NameString()) {
			found = q.ID
			ok = true
			return false
		}
		return true
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errs.New(errs.NotFound, "tempest.Discover", nil)
	}
	return found, nil
}

// InstallMapping applies mapping to e, running Discover first if
// AutoDetect is set and no explicit control id was given.
func (e *Engine) InstallMapping(fd int, mapping Mapping) error {
	if mapping.AutoDetect && mapping.ControlID == 0 {
		id, err := Discover(fd)
		if err != nil {
			return err
		}
		mapping.ControlID = id
	}
	e.mapping = mapping
	e.haveMap = mapping.ControlID != 0
	return nil
}

// InstallIndicatorPin initializes the host's GPIO drivers and binds
// the named pin (e.g. "GPIO17", or a board alias registered by a
// periph.io host driver) as e's physical TEMPEST indicator, supplementing
// the control-write path SetState otherwise drives alone.
func (e *Engine) InstallIndicatorPin(name string) error {
	if _, err := host.Init(); err != nil {
		return errs.New(errs.IOError, "tempest.InstallIndicatorPin", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return errs.New(errs.NotFound, "tempest.InstallIndicatorPin", nil)
	}
	out, ok := pin.(gpio.PinOut)
	if !ok {
		return errs.New(errs.Unsupported, "tempest.InstallIndicatorPin", nil)
	}
	e.Indicator = out
	return nil
}
