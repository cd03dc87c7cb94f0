package v4l2

import "golang.org/x/sys/unix"

// Buffer types (v4l2_buf_type). Only video capture is used by this
// core; no output or overlay path exists.
const (
	BufTypeVideoCapture uint32 = 1
)

// Memory types (v4l2_memory).
const (
	MemoryMMAP uint32 = 1
)

// Field layout (v4l2_field). The device core's SetFormat always
// requests FieldNone.
const (
	FieldNone uint32 = 1
)

// QueryCtrl flags.
const (
	CtrlFlagDisabled  uint32 = 0x0001
	CtrlFlagNextCtrl  uint32 = 0x80000000
)

// Capability mirrors struct v4l2_capability.
type Capability struct {
	Driver       [16]byte
	Card         [32]byte
	BusInfo      [32]byte
	Version      uint32
	Capabilities uint32
	DeviceCaps   uint32
	Reserved     [3]uint32
}

func cstring(b []byte) string {
	n := 0
	for n < len(b) && b[n] != 0 {
		n++
	}
	return string(b[:n])
}

func (c Capability) DriverName() string { return cstring(c.Driver[:]) }
func (c Capability) CardName() string   { return cstring(c.Card[:]) }
func (c Capability) BusInfoName() string { return cstring(c.BusInfo[:]) }

// PixFormat mirrors struct v4l2_pix_format.
type PixFormat struct {
	Width        uint32
	Height       uint32
	PixelFormat  uint32
	Field        uint32
	BytesPerLine uint32
	SizeImage    uint32
	Colorspace   uint32
	Priv         uint32
	Flags        uint32
	YCbCrEnc     uint32
	Quantization uint32
	XferFunc     uint32
}

// Format mirrors struct v4l2_format; Raw holds the union (only the
// pix sub-struct is used, per Non-goals). Raw is declared as uint64
// words so it takes the union's pointer alignment (8 bytes on 64-bit
// targets), as the kernel's layout does.
type Format struct {
	Type uint32
	Raw  [25]uint64
}

// ReqBuffers mirrors struct v4l2_requestbuffers.
type ReqBuffers struct {
	Count        uint32
	Type         uint32
	Memory       uint32
	Capabilities uint32
	Reserved     [1]uint32
}

// Buffer mirrors struct v4l2_buffer. The union `m` is represented as
// raw bytes; on MMAP streams only the leading uint32 offset is used.
type Buffer struct {
	Index     uint32
	Type      uint32
	BytesUsed uint32
	Flags     uint32
	Field     uint32
	Timestamp unix.Timeval
	Timecode  [4]uint32
	Sequence  uint32
	Memory    uint32
	M         [8]byte
	Length    uint32
	Reserved2 uint32
	RequestFD int32
}

// Offset returns the MMAP offset carried in the union for this buffer.
func (b *Buffer) Offset() uint32 {
	return uint32(b.M[0]) | uint32(b.M[1])<<8 | uint32(b.M[2])<<16 | uint32(b.M[3])<<24
}

func (b *Buffer) setOffset(off uint32) {
	b.M[0] = byte(off)
	b.M[1] = byte(off >> 8)
	b.M[2] = byte(off >> 16)
	b.M[3] = byte(off >> 24)
}

// BufFlagError marks a buffer the driver could not fill.
const BufFlagError uint32 = 0x0040

// Fract mirrors struct v4l2_fract.
type Fract struct {
	Numerator   uint32
	Denominator uint32
}

// CaptureParm mirrors struct v4l2_captureparm.
type CaptureParm struct {
	Capability   uint32
	CaptureMode  uint32
	TimePerFrame Fract
	ExtendedMode uint32
	ReadBuffers  uint32
	Reserved     [4]uint32
}

// StreamParm mirrors struct v4l2_streamparm; Raw holds the union
// (only CaptureParm is used).
type StreamParm struct {
	Type uint32
	Raw  [200]byte
}

// Control mirrors struct v4l2_control.
type Control struct {
	ID    uint32
	Value int32
}

// QueryCtrl mirrors struct v4l2_queryctrl.
type QueryCtrl struct {
	ID           uint32
	Type         uint32
	Name         [32]byte
	Minimum      int32
	Maximum      int32
	Step         int32
	DefaultValue int32
	Flags        uint32
	Reserved     [2]uint32
}

func (q QueryCtrl) NameString() string { return cstring(q.Name[:]) }
