package profile

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

const fullDocument = `
id: "045e:0779"
role: camera
device_hint: /dev/video0
classification: SECRET_BIOMETRIC
pixel_format: YUYV
resolution: [1920, 1080]
fps: 30
meta_device: /dev/video1
buffer_count: 6
constant_time_required: true
quantum_candidate: false
controls:
  brightness: 10
  gain: 4
  not_a_real_control: 1
tempest_control:
  id: 0
  auto_detect: true
  mode_map:
    DISABLED: 0
    LOW: 1
    HIGH: 2
    LOCKDOWN: 3
`

func TestLoadFromFilePopulatesFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "camera.yaml", fullDocument)

	p, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if p.ID != "045e:0779" {
		t.Errorf("ID = %q", p.ID)
	}
	if p.Role != "camera" {
		t.Errorf("Role = %q", p.Role)
	}
	if p.Width != 1920 || p.Height != 1080 {
		t.Errorf("resolution = %dx%d, want 1920x1080", p.Width, p.Height)
	}
	if p.FPSNum != 30 || p.FPSDen != 1 {
		t.Errorf("fps = %d/%d, want 30/1", p.FPSNum, p.FPSDen)
	}
	if p.BufferCount != 6 {
		t.Errorf("BufferCount = %d, want 6", p.BufferCount)
	}
	if !p.ConstantTimeRequired {
		t.Errorf("ConstantTimeRequired = false, want true")
	}
	if len(p.Controls) != 2 {
		t.Errorf("resolved %d controls, want 2 (unresolved name must not count)", len(p.Controls))
	}
	if len(p.Warnings) != 1 {
		t.Errorf("Warnings = %v, want exactly one entry for not_a_real_control", p.Warnings)
	}
	if p.Tempest.High != 2 || p.Tempest.Lockdown != 3 {
		t.Errorf("tempest mode_map not populated: %+v", p.Tempest)
	}
}

func TestLoadFromFileDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "minimal.yaml", "role: iris_scanner\n")

	p, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if p.BufferCount != 4 {
		t.Errorf("default BufferCount = %d, want 4", p.BufferCount)
	}
	if p.FPSDen != 1 {
		t.Errorf("default FPSDen = %d, want 1", p.FPSDen)
	}
	if p.ConstantTimeRequired || p.QuantumCandidate {
		t.Errorf("default flags must be false")
	}
	if p.Tempest != (TempestMapping{}) {
		t.Errorf("default tempest mapping must be zeroed, got %+v", p.Tempest)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadByRole(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "iris_scanner.yaml", "role: iris_scanner\nclassification: SECRET_BIOMETRIC\n")

	old := GetDir()
	SetDir(dir)
	defer SetDir(old)

	p, err := LoadByRole("iris_scanner")
	if err != nil {
		t.Fatalf("LoadByRole: %v", err)
	}
	if p.Classification != "SECRET_BIOMETRIC" {
		t.Errorf("Classification = %q", p.Classification)
	}
}

func TestLoadByVIDPIDMatchesThenFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "camera.yaml", "id: \"045e:0779\"\nrole: camera\n")
	writeFile(t, dir, "iris_scanner.yaml", "role: iris_scanner\n")

	old := GetDir()
	SetDir(dir)
	defer SetDir(old)

	p, err := LoadByVIDPID("045e:0779", "iris_scanner", nil)
	if err != nil {
		t.Fatalf("LoadByVIDPID (match): %v", err)
	}
	if p.Role != "camera" {
		t.Errorf("expected VID:PID match to win, got role %q", p.Role)
	}

	var fellBack bool
	p, err = LoadByVIDPID("ffff:ffff", "iris_scanner", func(vidpid, role string) {
		fellBack = true
	})
	if err != nil {
		t.Fatalf("LoadByVIDPID (fallback): %v", err)
	}
	if !fellBack {
		t.Errorf("expected fallback callback to fire for unmatched VID:PID")
	}
	if p.Role != "iris_scanner" {
		t.Errorf("expected role fallback, got role %q", p.Role)
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "camera.yaml", fullDocument)
	p, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	encoded, err := MarshalCanonical(p)
	if err != nil {
		t.Fatalf("MarshalCanonical: %v", err)
	}
	decoded, err := UnmarshalCanonical(encoded)
	if err != nil {
		t.Fatalf("UnmarshalCanonical: %v", err)
	}

	if decoded.ID != p.ID || decoded.Role != p.Role || decoded.Classification != p.Classification {
		t.Errorf("identity fields diverged after round-trip: got %+v, want %+v", decoded, p)
	}
	if decoded.Width != p.Width || decoded.Height != p.Height {
		t.Errorf("resolution diverged: got %dx%d, want %dx%d", decoded.Width, decoded.Height, p.Width, p.Height)
	}
	if len(decoded.Controls) != len(p.Controls) {
		t.Fatalf("control count diverged: got %d, want %d", len(decoded.Controls), len(p.Controls))
	}
	for i := range p.Controls {
		if decoded.Controls[i] != p.Controls[i] {
			t.Errorf("control[%d] diverged: got %+v, want %+v", i, decoded.Controls[i], p.Controls[i])
		}
	}
	if decoded.Tempest != p.Tempest {
		t.Errorf("tempest mapping diverged: got %+v, want %+v", decoded.Tempest, p.Tempest)
	}

	reencoded, err := MarshalCanonical(decoded)
	if err != nil {
		t.Fatalf("MarshalCanonical (reencode): %v", err)
	}
	if string(reencoded) != string(encoded) {
		t.Errorf("canonical encoding is not stable across a round-trip")
	}
}
