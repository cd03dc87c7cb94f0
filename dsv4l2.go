// Package dsv4l2 is the stable public façade over the capture-device
// core: device lifecycle, controls, the TEMPEST engine, profile
// loading, the audit runtime, and metadata parsing. Each subsystem
// lives in its own subpackage; this package groups their stable entry
// points the way a single C header would, while keeping each
// operation's return idiomatic Go (T, error) plus a Code helper for
// callers that want the negative-errno-style integer.
package dsv4l2

import (
	"dsv4l2.dev/control"
	"dsv4l2.dev/device"
	"dsv4l2.dev/errs"
	"dsv4l2.dev/eventlog"
	"dsv4l2.dev/klv"
	"dsv4l2.dev/policy"
	"dsv4l2.dev/profile"
	"dsv4l2.dev/tempest"
	"dsv4l2.dev/v4l2"
)

// Device, Frame, and BiometricFrame are re-exported so callers only
// need to import this package for the common path.
type (
	Device         = device.Device
	Frame          = device.Frame
	BiometricFrame = device.BiometricFrame
	Info           = device.Info
	Profile        = profile.Profile
	TempestState   = tempest.State
	TempestMapping = tempest.Mapping
	Threatcon      = policy.Threatcon
	Severity       = eventlog.Severity
	Category       = eventlog.Category
)

const (
	TempestDisabled = tempest.Disabled
	TempestLow      = tempest.Low
	TempestHigh     = tempest.High
	TempestLockdown = tempest.Lockdown
)

const (
	ThreatconNormal    = policy.Normal
	ThreatconAlpha     = policy.Alpha
	ThreatconBravo     = policy.Bravo
	ThreatconCharlie   = policy.Charlie
	ThreatconDelta     = policy.Delta
	ThreatconEmergency = policy.Emergency
)

// Code extracts the negative-errno-style integer for err: 0 for a nil
// error, a negative code from the error taxonomy otherwise.
func Code(err error) int { return errs.CodeOf(err).Int() }

// --- device -----------------------------------------------------------

// Open opens a capture device at path. If prof is non-nil, its role
// and classification seed the policy identity checked on every
// capture; ring (may be nil) receives lifecycle and capture events.
func Open(path string, prof *Profile, ring *eventlog.Ring) (*Device, error) {
	return device.Open(path, prof, ring)
}

// Apply drives dev's format, framerate, control presets, and TEMPEST
// mapping from prof. A failed format write aborts Apply unless the
// driver reports the ioctl as unsupported; the format step is skipped
// when prof leaves the pixel format, width or height zero. Framerate,
// individual control writes and the TEMPEST mapping are best-effort
// and do not abort on failure.
func Apply(dev *Device, prof *Profile) error {
	if dev == nil || prof == nil {
		return errs.New(errs.InvalidArgument, "dsv4l2.Apply", nil)
	}
	dev.SetLayer(0)
	if prof.PixelFormat != 0 && prof.Width != 0 && prof.Height != 0 {
		if _, err := dev.SetFormat(prof.PixelFormat, prof.Width, prof.Height); err != nil {
			if errs.CodeOf(err) != errs.Unsupported {
				return err
			}
		}
	}
	if prof.FPSNum > 0 {
		den := prof.FPSDen
		if den == 0 {
			den = 1
		}
		_ = dev.SetFramerate(prof.FPSNum, den)
	}
	for _, c := range prof.Controls {
		_ = dev.SetControl(c.ID, c.Value)
	}
	if prof.Tempest.ControlID != 0 || prof.Tempest.AutoDetect {
		mapping := tempest.Mapping{
			ControlID:  prof.Tempest.ControlID,
			AutoDetect: prof.Tempest.AutoDetect,
			Values: [4]int32{
				tempest.Disabled: prof.Tempest.Disabled,
				tempest.Low:      prof.Tempest.Low,
				tempest.High:     prof.Tempest.High,
				tempest.Lockdown: prof.Tempest.Lockdown,
			},
		}
		_ = dev.InstallTempestMapping(mapping)
	}
	return nil
}

// --- controls -----------------------------------------------------------

// NameToID resolves a human control name to its numeric V4L2 id.
func NameToID(name string) (uint32, error) { return control.NameToID(name) }

// --- TEMPEST --------------------------------------------------------------

// GetTempestState reads dev's cached TEMPEST state.
func GetTempestState(dev *Device) TempestState { return dev.TempestState() }

// SetTempestState transitions dev's TEMPEST state.
func SetTempestState(dev *Device, target TempestState) error {
	return dev.SetTempestState(target)
}

// DiscoverTempestControl runs TEMPEST auto-discovery against dev.
func DiscoverTempestControl(dev *Device) (uint32, error) {
	return dev.DiscoverTempestControl()
}

// ApplyTempestMapping installs mapping on dev.
func ApplyTempestMapping(dev *Device, mapping TempestMapping) error {
	return dev.InstallTempestMapping(mapping)
}

// PolicyCheckCapture runs the policy gate for a prospective capture
// against dev's role, classification, layer, format, and TEMPEST
// state without performing the capture, for callers that want to
// probe before committing to a Capture/CaptureBiometric call.
func PolicyCheckCapture(dev *Device, context string, biometric bool) error {
	return dev.CheckPolicy(context, biometric)
}

// InstallTempestIndicator binds a physical GPIO pin as dev's TEMPEST
// indicator.
func InstallTempestIndicator(dev *Device, pinName string) error {
	return dev.InstallTempestIndicator(pinName)
}

// SetThreatcon sets the process-wide threat condition.
func SetThreatcon(t Threatcon) { policy.SetThreatcon(t) }

// GetThreatcon returns the process-wide threat condition.
func GetThreatcon() Threatcon { return policy.GetThreatcon() }

// SetClearance records the clearance label held for a role.
func SetClearance(role, label string) { policy.SetClearance(role, label) }

// SetLayerPolicy installs the policy for a device layer.
func SetLayerPolicy(layer int, p policy.LayerPolicy) { policy.SetLayerPolicy(layer, p) }

// --- profiles -----------------------------------------------------------

// LoadProfileFromFile parses a profile document at path.
func LoadProfileFromFile(path string) (*Profile, error) { return profile.LoadFromFile(path) }

// LoadProfileByRole loads `{profile_dir}/{role}.yaml`.
func LoadProfileByRole(role string) (*Profile, error) { return profile.LoadByRole(role) }

// LoadProfileByVIDPID loads the profile whose id matches vidpid,
// falling back to role-based lookup and reporting the fallback to
// ring (category=profile_fallback) when ring is non-nil.
func LoadProfileByVIDPID(vidpid, role string, ring *eventlog.Ring) (*Profile, error) {
	var onFallback profile.FallbackFunc
	if ring != nil {
		onFallback = func(vidpid, role string) {
			ring.Emit(0, eventlog.ProfileFallback, eventlog.Warn, map[string]string{"vidpid": vidpid, "role": role})
		}
	}
	return profile.LoadByVIDPID(vidpid, role, onFallback)
}

// GetProfileDir returns the process-wide profile directory.
func GetProfileDir() string { return profile.GetDir() }

// SetProfileDir changes the process-wide profile directory.
func SetProfileDir(path string) { profile.SetDir(path) }

// --- runtime (event ring) ------------------------------------------------

// InitRuntime constructs an event ring per cfg.
func InitRuntime(cfg eventlog.Config) *eventlog.Ring { return eventlog.Init(cfg) }

// EmitSimple appends a small event to ring.
func EmitSimple(ring *eventlog.Ring, device eventlog.DeviceToken, category Category, severity Severity, aux any) {
	ring.EmitSimple(device, category, severity, aux)
}

// Emit appends an event carrying an arbitrary payload to ring.
func Emit(ring *eventlog.Ring, device eventlog.DeviceToken, category Category, severity Severity, payload any) {
	ring.Emit(device, category, severity, payload)
}

// FlushRuntime drains ring to its configured sink.
func FlushRuntime(ring *eventlog.Ring) error { return ring.Flush() }

// GetRuntimeStats returns ring's running counters.
func GetRuntimeStats(ring *eventlog.Ring) eventlog.Stats { return ring.GetStats() }

// ShutdownRuntime flushes and releases ring.
func ShutdownRuntime(ring *eventlog.Ring) error { return ring.Shutdown() }

// --- metadata -------------------------------------------------------------

// ParseKLV parses buf into KLV items using a 16-byte universal key.
func ParseKLV(buf []byte) ([]klv.Item, error) { return klv.Parse(buf, klv.DefaultKeyLen) }

// FindKLV returns the first item in items whose key equals key.
func FindKLV(items []klv.Item, key []byte) *klv.Item { return klv.Find(items, key) }

// SyncMetadata returns the index of the buffer in buffers nearest to
// targetNS, ties breaking to the lower index; an empty buffers
// returns -1.
func SyncMetadata(targetNS int64, buffers []klv.TimestampedBuffer) int {
	return klv.SyncMetadata(targetNS, buffers)
}

// re-exported so callers that only import dsv4l2 can still name the
// low-level control query type returned by Device.EnumControls.
type ControlInfo = v4l2.QueryCtrl
