// Package profile loads and serializes the YAML documents that drive
// device configuration: pixel format, framerate, control presets, and
// the TEMPEST control mapping a device should use.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"dsv4l2.dev/control"
	"dsv4l2.dev/errs"
)

// MaxControls bounds the number of (id, value) presets a profile may
// carry.
const MaxControls = 32

// ControlPreset is a single resolved (id, value) pair to apply at
// device-open time.
type ControlPreset struct {
	ID    uint32
	Value int32
}

// TempestMapping names the control that drives the TEMPEST state
// machine and the four numeric values corresponding to
// DISABLED/LOW/HIGH/LOCKDOWN.
type TempestMapping struct {
	ControlID                     uint32
	AutoDetect                    bool
	Disabled, Low, High, Lockdown int32
}

// Profile describes how a given role of device should be driven.
type Profile struct {
	ID                   string
	Role                 string
	DeviceHint           string
	Classification       string
	PixelFormat          uint32
	Width, Height        uint32
	FPSNum, FPSDen       uint32
	MetaDevice           string
	BufferCount          uint32
	ConstantTimeRequired bool
	QuantumCandidate     bool
	Controls             []ControlPreset
	Tempest              TempestMapping

	// Warnings records control names in the source document that did
	// not resolve via control.NameToID. Callers may treat a non-empty
	// Warnings as fatal or proceed best-effort.
	Warnings []string
}

// document mirrors the recognized YAML keys. Unknown top-level keys
// are ignored by yaml.v3's default unmarshal behavior.
type document struct {
	ID                   string         `yaml:"id"`
	Role                 string         `yaml:"role"`
	DeviceHint           string         `yaml:"device_hint"`
	Classification       string         `yaml:"classification"`
	PixelFormat          string         `yaml:"pixel_format"`
	Resolution           []uint32       `yaml:"resolution"`
	FPS                  *uint32        `yaml:"fps"`
	MetaDevice           string         `yaml:"meta_device"`
	BufferCount          *uint32        `yaml:"buffer_count"`
	ConstantTimeRequired bool           `yaml:"constant_time_required"`
	QuantumCandidate     bool           `yaml:"quantum_candidate"`
	Controls             map[string]int32 `yaml:"controls"`
	TempestControl       struct {
		ID         uint32          `yaml:"id"`
		AutoDetect bool            `yaml:"auto_detect"`
		ModeMap    map[string]int32 `yaml:"mode_map"`
	} `yaml:"tempest_control"`
}

func fourccToU32(code string) uint32 {
	if len(code) != 4 {
		return 0
	}
	return uint32(code[0]) | uint32(code[1])<<8 | uint32(code[2])<<16 | uint32(code[3])<<24
}

// LoadFromFile parses the YAML document at path into a Profile,
// applying the documented defaults for any field the document omits.
func LoadFromFile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.New(errs.NotFound, "profile.LoadFromFile", err)
		}
		return nil, errs.New(errs.IOError, "profile.LoadFromFile", err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errs.New(errs.ParseError, "profile.LoadFromFile", err)
	}

	p := &Profile{
		ID:                   doc.ID,
		Role:                 doc.Role,
		DeviceHint:           doc.DeviceHint,
		Classification:       doc.Classification,
		PixelFormat:          fourccToU32(doc.PixelFormat),
		MetaDevice:           doc.MetaDevice,
		BufferCount:          4,
		ConstantTimeRequired: doc.ConstantTimeRequired,
		QuantumCandidate:     doc.QuantumCandidate,
		FPSDen:               1,
	}
	if len(doc.Resolution) >= 2 {
		p.Width = doc.Resolution[0]
		p.Height = doc.Resolution[1]
	}
	if doc.FPS != nil {
		p.FPSNum = *doc.FPS
		p.FPSDen = 1
	}
	if doc.BufferCount != nil {
		p.BufferCount = *doc.BufferCount
	}

	for name, value := range doc.Controls {
		if len(p.Controls) >= MaxControls {
			break
		}
		id, err := control.NameToID(name)
		if err != nil {
			p.Warnings = append(p.Warnings, fmt.Sprintf("unresolved control name %q", name))
			continue
		}
		p.Controls = append(p.Controls, ControlPreset{ID: id, Value: value})
	}

	p.Tempest.ControlID = doc.TempestControl.ID
	p.Tempest.AutoDetect = doc.TempestControl.AutoDetect
	for state, value := range doc.TempestControl.ModeMap {
		switch state {
		case "DISABLED":
			p.Tempest.Disabled = value
		case "LOW":
			p.Tempest.Low = value
		case "HIGH":
			p.Tempest.High = value
		case "LOCKDOWN":
			p.Tempest.Lockdown = value
		}
	}

	return p, nil
}

var (
	dirMu sync.RWMutex
	dir   = "dsv4l2/profiles"
)

// GetDir returns the process-wide profile directory.
func GetDir() string {
	dirMu.RLock()
	defer dirMu.RUnlock()
	return dir
}

// SetDir changes the process-wide profile directory used by
// LoadByRole and LoadByVIDPID.
func SetDir(path string) {
	dirMu.Lock()
	defer dirMu.Unlock()
	dir = path
}

// LoadByRole loads `{profile_dir}/{role}.yaml`.
func LoadByRole(role string) (*Profile, error) {
	if role == "" {
		return nil, errs.New(errs.InvalidArgument, "profile.LoadByRole", nil)
	}
	path := filepath.Join(GetDir(), role+".yaml")
	return LoadFromFile(path)
}

// FallbackFunc is invoked by LoadByVIDPID when no profile document's
// id field matches vidpid and it falls back to role-based lookup. The
// root façade wires this to the event ring so the fallback is
// observable; tests may leave it nil.
type FallbackFunc func(vidpid, role string)

// LoadByVIDPID scans every *.yaml document in the profile directory
// for an id field equal to vidpid (case-insensitive). If none match,
// it falls back to LoadByRole(role) and, if onFallback is non-nil,
// reports the fallback.
func LoadByVIDPID(vidpid, role string, onFallback FallbackFunc) (*Profile, error) {
	if vidpid == "" || role == "" {
		return nil, errs.New(errs.InvalidArgument, "profile.LoadByVIDPID", nil)
	}
	entries, err := os.ReadDir(GetDir())
	if err != nil {
		if onFallback != nil {
			onFallback(vidpid, role)
		}
		return LoadByRole(role)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(GetDir(), entry.Name())
		p, err := LoadFromFile(path)
		if err != nil {
			continue
		}
		if strings.EqualFold(p.ID, vidpid) {
			return p, nil
		}
	}
	if onFallback != nil {
		onFallback(vidpid, role)
	}
	return LoadByRole(role)
}
