// Package control maps the human-readable control names a profile
// document names (brightness, gain, exposure_auto, ...) to the
// numeric V4L2 control IDs the kernel ioctl surface expects, and
// classifies which of those names plausibly drive emission security
// hardware.
package control

import (
	"strings"

	"dsv4l2.dev/errs"
)

// Standard "user class" control IDs (V4L2_CTRL_CLASS_USER = 0x00980000,
// base offset 0x900).
const (
	userClassBase uint32 = 0x00980900

	idBrightness            = userClassBase + 0
	idContrast              = userClassBase + 1
	idSaturation            = userClassBase + 2
	idHue                   = userClassBase + 3
	idGain                  = userClassBase + 19
	idPowerLineFrequency    = userClassBase + 24
	idWhiteBalanceTemp      = userClassBase + 26
	idSharpness             = userClassBase + 27
	idBacklightCompensation = userClassBase + 28
)

// Camera class control IDs (V4L2_CTRL_CLASS_CAMERA = 0x009a0000, base
// offset 0x900).
const (
	cameraClassBase uint32 = 0x009a0900

	idExposureAuto     = cameraClassBase + 1
	idExposureAbsolute = cameraClassBase + 2
	idFocusAbsolute    = cameraClassBase + 10
	idFocusAuto        = cameraClassBase + 12
)

// idAutoWhiteBalanceTemp (V4L2_CID_AUTO_WHITE_BALANCE) is also a user
// class control, declared apart from the block above.
const idAutoWhiteBalanceTemp uint32 = userClassBase + 12

var byName = map[string]uint32{
	"brightness":                     idBrightness,
	"contrast":                       idContrast,
	"saturation":                     idSaturation,
	"hue":                            idHue,
	"gain":                           idGain,
	"exposure_auto":                  idExposureAuto,
	"exposure_absolute":              idExposureAbsolute,
	"focus_auto":                     idFocusAuto,
	"focus_absolute":                 idFocusAbsolute,
	"sharpness":                      idSharpness,
	"backlight_compensation":         idBacklightCompensation,
	"power_line_frequency":           idPowerLineFrequency,
	"white_balance_temperature_auto": idAutoWhiteBalanceTemp,
	"white_balance_temperature":      idWhiteBalanceTemp,
}

// NameToID resolves a control name to its numeric V4L2 ID. Matching is
// case-insensitive exact match, after trimming surrounding
// whitespace, against the standard control table;
// unrecognized names return errs.NotFound.
func NameToID(name string) (uint32, error) {
	id, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, errs.New(errs.NotFound, "control.NameToID", nil)
	}
	return id, nil
}

// tempestPatterns are substrings that, found case-insensitively in a
// control's driver-reported name, mark it as a plausible emission or
// privacy control.
var tempestPatterns = []string{
	"tempest", "privacy", "secure", "shutter", "led", "indicator", "emission", "lockdown",
}

// LooksLikeTEMPEST reports whether a driver-reported control name
// matches any of the known emission-control naming patterns. Matching
// is a case-insensitive substring test; the first match wins.
func LooksLikeTEMPEST(name string) bool {
	lower := strings.ToLower(name)
	for _, pattern := range tempestPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
