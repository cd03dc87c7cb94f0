package profile

import (
	"github.com/fxamacker/cbor/v2"
)

// wireControlPreset and wireProfile give the canonical serializer a
// stable field-tag layout independent of Profile's Go field order, the
// way urtypes.go's cbor-tagged structs pin wire layout for its types.
type wireControlPreset struct {
	ID    uint32 `cbor:"1,keyasint"`
	Value int32  `cbor:"2,keyasint"`
}

type wireTempestMapping struct {
	ControlID  uint32 `cbor:"1,keyasint"`
	AutoDetect bool   `cbor:"2,keyasint,omitempty"`
	Disabled   int32  `cbor:"3,keyasint,omitempty"`
	Low        int32  `cbor:"4,keyasint,omitempty"`
	High       int32  `cbor:"5,keyasint,omitempty"`
	Lockdown   int32  `cbor:"6,keyasint,omitempty"`
}

type wireProfile struct {
	ID                   string               `cbor:"1,keyasint,omitempty"`
	Role                 string               `cbor:"2,keyasint,omitempty"`
	DeviceHint           string               `cbor:"3,keyasint,omitempty"`
	Classification       string               `cbor:"4,keyasint,omitempty"`
	PixelFormat          uint32               `cbor:"5,keyasint,omitempty"`
	Width                uint32               `cbor:"6,keyasint,omitempty"`
	Height               uint32               `cbor:"7,keyasint,omitempty"`
	FPSNum               uint32               `cbor:"8,keyasint,omitempty"`
	FPSDen               uint32               `cbor:"9,keyasint,omitempty"`
	MetaDevice           string               `cbor:"10,keyasint,omitempty"`
	BufferCount          uint32               `cbor:"11,keyasint,omitempty"`
	ConstantTimeRequired bool                 `cbor:"12,keyasint,omitempty"`
	QuantumCandidate     bool                 `cbor:"13,keyasint,omitempty"`
	Controls             []wireControlPreset  `cbor:"14,keyasint,omitempty"`
	Tempest              wireTempestMapping   `cbor:"15,keyasint,omitempty"`
}

var encMode = func() cbor.EncMode {
	m, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return m
}()

func toWire(p *Profile) wireProfile {
	w := wireProfile{
		ID:                   p.ID,
		Role:                 p.Role,
		DeviceHint:           p.DeviceHint,
		Classification:       p.Classification,
		PixelFormat:          p.PixelFormat,
		Width:                p.Width,
		Height:               p.Height,
		FPSNum:               p.FPSNum,
		FPSDen:               p.FPSDen,
		MetaDevice:           p.MetaDevice,
		BufferCount:          p.BufferCount,
		ConstantTimeRequired: p.ConstantTimeRequired,
		QuantumCandidate:     p.QuantumCandidate,
		Tempest: wireTempestMapping{
			ControlID:  p.Tempest.ControlID,
			AutoDetect: p.Tempest.AutoDetect,
			Disabled:   p.Tempest.Disabled,
			Low:        p.Tempest.Low,
			High:       p.Tempest.High,
			Lockdown:   p.Tempest.Lockdown,
		},
	}
	for _, c := range p.Controls {
		w.Controls = append(w.Controls, wireControlPreset{ID: c.ID, Value: c.Value})
	}
	return w
}

func fromWire(w wireProfile) *Profile {
	p := &Profile{
		ID:                   w.ID,
		Role:                 w.Role,
		DeviceHint:           w.DeviceHint,
		Classification:       w.Classification,
		PixelFormat:          w.PixelFormat,
		Width:                w.Width,
		Height:               w.Height,
		FPSNum:               w.FPSNum,
		FPSDen:               w.FPSDen,
		MetaDevice:           w.MetaDevice,
		BufferCount:          w.BufferCount,
		ConstantTimeRequired: w.ConstantTimeRequired,
		QuantumCandidate:     w.QuantumCandidate,
		Tempest: TempestMapping{
			ControlID:  w.Tempest.ControlID,
			AutoDetect: w.Tempest.AutoDetect,
			Disabled:   w.Tempest.Disabled,
			Low:        w.Tempest.Low,
			High:       w.Tempest.High,
			Lockdown:   w.Tempest.Lockdown,
		},
	}
	for _, c := range w.Controls {
		p.Controls = append(p.Controls, ControlPreset{ID: c.ID, Value: c.Value})
	}
	return p
}

// MarshalCanonical serializes p's declared fields (Warnings excluded,
// as it is load diagnostics rather than profile content) to
// deterministic CBOR, suitable for round-trip testing.
func MarshalCanonical(p *Profile) ([]byte, error) {
	return encMode.Marshal(toWire(p))
}

// UnmarshalCanonical is the inverse of MarshalCanonical.
func UnmarshalCanonical(data []byte) (*Profile, error) {
	var w wireProfile
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(w), nil
}
