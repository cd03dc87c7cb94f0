package dsv4l2

import (
	"testing"

	"golang.org/x/sys/unix"

	"dsv4l2.dev/errs"
	"dsv4l2.dev/eventlog"
	"dsv4l2.dev/klv"
	"dsv4l2.dev/profile"
)

func TestCode(t *testing.T) {
	if Code(nil) != 0 {
		t.Errorf("Code(nil) = %d, want 0", Code(nil))
	}
	err := errs.New(errs.AccessDenied, "test", nil)
	if got := Code(err); got != int(errs.AccessDenied) {
		t.Errorf("Code(AccessDenied) = %d, want %d", got, int(errs.AccessDenied))
	}
}

func TestNameToID(t *testing.T) {
	id, err := NameToID("Brightness")
	if err != nil {
		t.Fatalf("NameToID: %v", err)
	}
	if id == 0 {
		t.Errorf("NameToID(Brightness) = 0")
	}
	if _, err := NameToID("not_a_real_control"); errs.CodeOf(err) != errs.NotFound {
		t.Errorf("NameToID(unknown): got %v, want NotFound", err)
	}
}

func TestThreatconRoundTrip(t *testing.T) {
	prevTC := GetThreatcon()
	defer SetThreatcon(prevTC)

	SetThreatcon(ThreatconDelta)
	if GetThreatcon() != ThreatconDelta {
		t.Errorf("GetThreatcon() = %v, want DELTA", GetThreatcon())
	}
}

func TestApplyRejectsNilArguments(t *testing.T) {
	if err := Apply(nil, &Profile{}); errs.CodeOf(err) != errs.InvalidArgument {
		t.Errorf("Apply(nil device): got %v, want InvalidArgument", err)
	}

	fd, err := unix.Open("/dev/null", unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Skipf("cannot open /dev/null in this sandbox: %v", err)
	}
	unix.Close(fd)
	dev, err := Open("/dev/null", nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()
	if err := Apply(dev, nil); errs.CodeOf(err) != errs.InvalidArgument {
		t.Errorf("Apply(nil profile): got %v, want InvalidArgument", err)
	}
}

func TestApplyToleratesUnsupportedFormatIoctl(t *testing.T) {
	fd, err := unix.Open("/dev/null", unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Skipf("cannot open /dev/null in this sandbox: %v", err)
	}
	unix.Close(fd)
	dev, err := Open("/dev/null", nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	prof := &profile.Profile{
		PixelFormat: 0x56595559, // "YUYV"
		Width:       640,
		Height:      480,
	}
	// /dev/null rejects VIDIOC_S_FMT with ENOTTY, which the error
	// taxonomy classifies as Unsupported; Apply treats that the same as
	// a driver genuinely lacking the ioctl and proceeds rather than
	// aborting.
	if err := Apply(dev, prof); err != nil {
		t.Fatalf("Apply: %v", err)
	}
}

func TestLoadProfileDirRoundTrip(t *testing.T) {
	prevDir := GetProfileDir()
	defer SetProfileDir(prevDir)

	SetProfileDir("/nonexistent/profiles")
	if GetProfileDir() != "/nonexistent/profiles" {
		t.Errorf("GetProfileDir() = %q", GetProfileDir())
	}
}

func TestRuntimeLifecycle(t *testing.T) {
	ring := InitRuntime(eventlog.Config{Capacity: 8})
	EmitSimple(ring, eventlog.DeviceToken(1), eventlog.DeviceOpen, eventlog.Info, "test")
	stats := GetRuntimeStats(ring)
	if stats.EventsEmitted != 1 {
		t.Errorf("EventsEmitted = %d, want 1", stats.EventsEmitted)
	}
	if err := FlushRuntime(ring); err != nil {
		t.Fatalf("FlushRuntime: %v", err)
	}
	if err := ShutdownRuntime(ring); err != nil {
		t.Fatalf("ShutdownRuntime: %v", err)
	}
}

func TestParseAndFindKLV(t *testing.T) {
	key := []byte{0x06, 0x0e, 0x2b, 0x34, 0x02, 0x0b, 0x01, 0x01, 0x0e, 0x01, 0x03, 0x01, 0x01, 0x00, 0x00, 0x00}
	buf := append(append([]byte{}, key...), 0x02, 0xAA, 0xBB)

	items, err := ParseKLV(buf)
	if err != nil {
		t.Fatalf("ParseKLV: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if FindKLV(items, key) == nil {
		t.Errorf("FindKLV: key not found")
	}
}

func TestSyncMetadataFacade(t *testing.T) {
	buffers := []klv.TimestampedBuffer{{TimestampNS: 100}, {TimestampNS: 200}}
	if idx := SyncMetadata(150, buffers); idx != 0 {
		t.Errorf("SyncMetadata(150) = %d, want 0", idx)
	}
}

func TestPolicyCheckCaptureUsesDeviceIdentity(t *testing.T) {
	fd, err := unix.Open("/dev/null", unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Skipf("cannot open /dev/null in this sandbox: %v", err)
	}
	unix.Close(fd)

	// A classified role with no clearance recorded must be denied by
	// the real gate, not by an early InvalidArgument that never reaches
	// it, proving PolicyCheckCapture reads the device's actual role
	// and classification rather than a zero-valued Request.
	prof := &profile.Profile{Role: "iris_scanner", Classification: "SECRET_BIOMETRIC"}
	dev, err := Open("/dev/null", prof, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	if err := PolicyCheckCapture(dev, "probe", true); errs.CodeOf(err) != errs.AccessDenied {
		t.Fatalf("PolicyCheckCapture with no recorded clearance: got %v, want AccessDenied", err)
	}

	SetClearance("iris_scanner", "SECRET_BIOMETRIC")
	defer SetClearance("iris_scanner", "")
	if err := PolicyCheckCapture(dev, "probe", true); err != nil {
		t.Fatalf("PolicyCheckCapture with matching clearance: %v", err)
	}
}

func TestInstallTempestIndicatorUnknownPin(t *testing.T) {
	fd, err := unix.Open("/dev/null", unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		t.Skipf("cannot open /dev/null in this sandbox: %v", err)
	}
	unix.Close(fd)
	dev, err := Open("/dev/null", nil, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer dev.Close()

	if err := InstallTempestIndicator(dev, "not_a_real_pin_xyz"); errs.CodeOf(err) != errs.NotFound {
		t.Fatalf("InstallTempestIndicator(unknown pin): got %v, want NotFound", err)
	}
}
