// Package policy implements the single chokepoint every capture
// passes through: the THREATCON/clearance/layer tables and the five
// ordered rules that decide whether a capture may proceed.
package policy

import (
	"strings"
	"sync"

	"dsv4l2.dev/errs"
	"dsv4l2.dev/eventlog"
	"dsv4l2.dev/tempest"
)

// Threatcon is the process-wide threat condition, increasing from
// NORMAL.
type Threatcon int

const (
	Normal Threatcon = iota
	Alpha
	Bravo
	Charlie
	Delta
	Emergency
)

func (t Threatcon) String() string {
	switch t {
	case Normal:
		return "NORMAL"
	case Alpha:
		return "ALPHA"
	case Bravo:
		return "BRAVO"
	case Charlie:
		return "CHARLIE"
	case Delta:
		return "DELTA"
	case Emergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

// classificationRank gives a total order over classification labels;
// UNCLASSIFIED is dominated by every clearance. Unknown labels return
// (0, false) so callers can deny.
var classificationRank = map[string]int{
	"UNCLASSIFIED":     0,
	"CONFIDENTIAL":     1,
	"SECRET":           2,
	"SECRET_BIOMETRIC": 2,
	"TOP_SECRET":       3,
}

func rankOf(classification string) (int, bool) {
	r, ok := classificationRank[strings.ToUpper(strings.TrimSpace(classification))]
	return r, ok
}

// LayerPolicy bounds what a given device layer may do: a maximum
// negotiated frame size and a minimum TEMPEST state.
type LayerPolicy struct {
	MaxWidth, MaxHeight uint32
	MinTempest          tempest.State
}

var (
	mu            sync.RWMutex
	threatcon     Threatcon
	clearance     = make(map[string]string) // role -> clearance label
	layerPolicies = make(map[int]LayerPolicy)
)

// SetThreatcon sets the process-wide threat condition.
func SetThreatcon(t Threatcon) {
	mu.Lock()
	defer mu.Unlock()
	threatcon = t
}

// GetThreatcon returns the process-wide threat condition.
func GetThreatcon() Threatcon {
	mu.RLock()
	defer mu.RUnlock()
	return threatcon
}

// SetClearance records the clearance label held for a role (e.g.
// "iris_scanner" -> "SECRET_BIOMETRIC").
func SetClearance(role, label string) {
	mu.Lock()
	defer mu.Unlock()
	clearance[role] = label
}

// CheckClearance reports whether the clearance held for role dominates
// classification. UNCLASSIFIED is dominated by every clearance;
// unknown classifications or roles with no recorded clearance deny.
func CheckClearance(role, classification string) error {
	if role == "" || classification == "" {
		return errs.New(errs.InvalidArgument, "policy.CheckClearance", nil)
	}
	classRank, ok := rankOf(classification)
	if !ok {
		return errs.New(errs.AccessDenied, "policy.CheckClearance", nil)
	}
	if classRank == classificationRank["UNCLASSIFIED"] {
		return nil
	}
	mu.RLock()
	label, held := clearance[role]
	mu.RUnlock()
	if !held {
		return errs.New(errs.AccessDenied, "policy.CheckClearance", nil)
	}
	heldRank, ok := rankOf(label)
	if !ok || heldRank < classRank {
		return errs.New(errs.AccessDenied, "policy.CheckClearance", nil)
	}
	return nil
}

// SetLayerPolicy installs the policy for a device layer.
func SetLayerPolicy(layer int, p LayerPolicy) {
	mu.Lock()
	defer mu.Unlock()
	layerPolicies[layer] = p
}

// GetLayerPolicy returns the policy installed for layer, if any.
func GetLayerPolicy(layer int) (LayerPolicy, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := layerPolicies[layer]
	return p, ok
}

// Request describes the capture a caller wants to perform.
type Request struct {
	Role           string
	Classification string
	Layer          int
	Width, Height  uint32
	// Biometric marks a request against a BiometricFrame-returning
	// capture path, which THREATCON escalation treats more strictly.
	Biometric bool
	// State is the device's current TEMPEST state.
	State tempest.State
	// Context is a free-form audit string describing the call site.
	Context string
}

// Check evaluates the five ordered rules against req and the
// process-wide THREATCON/clearance/layer tables, first deny wins. It
// performs no I/O beyond emitting the resulting policy_check event to
// ring (ring may be nil, e.g. in tests that don't care about audit).
func Check(req Request, ring *eventlog.Ring, token eventlog.DeviceToken) error {
	err := evaluate(req)
	if ring != nil {
		severity := eventlog.Info
		if err != nil {
			severity = eventlog.Warn
			if req.State == tempest.Lockdown {
				severity = eventlog.Error
			}
		}
		ring.Emit(token, eventlog.PolicyCheck, severity, map[string]any{
			"context": req.Context,
			"rc":      errs.CodeOf(err).Int(),
		})
	}
	return err
}

func evaluate(req Request) error {
	// Rule 1: LOCKDOWN deny. No other rule can override.
	if req.State == tempest.Lockdown {
		return errs.New(errs.AccessDenied, "policy.Check", nil)
	}

	// Rule 2: clearance check.
	if err := CheckClearance(req.Role, req.Classification); err != nil {
		return err
	}

	// Rule 3: layer cap.
	if lp, ok := GetLayerPolicy(req.Layer); ok {
		if lp.MaxWidth != 0 && req.Width > lp.MaxWidth {
			return errs.New(errs.AccessDenied, "policy.Check", nil)
		}
		if lp.MaxHeight != 0 && req.Height > lp.MaxHeight {
			return errs.New(errs.AccessDenied, "policy.Check", nil)
		}
		// Rule 4: minimum emission floor.
		if req.State < lp.MinTempest {
			return errs.New(errs.AccessDenied, "policy.Check", nil)
		}
	}

	// Rule 5: THREATCON escalation.
	tc := GetThreatcon()
	classRank, _ := rankOf(req.Classification)
	unclassified := classRank == classificationRank["UNCLASSIFIED"]
	switch {
	case tc >= Emergency:
		if !unclassified || req.State < tempest.Low {
			return errs.New(errs.AccessDenied, "policy.Check", nil)
		}
	case tc >= Delta:
		if !unclassified && req.State < tempest.High {
			return errs.New(errs.AccessDenied, "policy.Check", nil)
		}
	case tc >= Charlie:
		if req.Biometric && req.State < tempest.High {
			return errs.New(errs.AccessDenied, "policy.Check", nil)
		}
	}

	return nil
}
