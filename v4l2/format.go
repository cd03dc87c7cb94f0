package v4l2

import "unsafe"

// SetFormat issues VIDIOC_S_FMT for the video-capture pix format. The
// driver may alter width/height; the negotiated PixFormat is returned.
func SetFormat(fd int, pix PixFormat) (PixFormat, error) {
	format := Format{Type: BufTypeVideoCapture}
	*(*PixFormat)(unsafe.Pointer(&format.Raw[0])) = pix
	if err := ioctl(fd, "v4l2.SetFormat", vidiocSFmt, unsafe.Pointer(&format)); err != nil {
		return PixFormat{}, err
	}
	return *(*PixFormat)(unsafe.Pointer(&format.Raw[0])), nil
}

// GetFormat issues VIDIOC_G_FMT for the video-capture pix format.
func GetFormat(fd int) (PixFormat, error) {
	format := Format{Type: BufTypeVideoCapture}
	if err := ioctl(fd, "v4l2.GetFormat", vidiocGFmt, unsafe.Pointer(&format)); err != nil {
		return PixFormat{}, err
	}
	return *(*PixFormat)(unsafe.Pointer(&format.Raw[0])), nil
}

// Fourcc packs a 4-character pixel format code little-endian into a
// 32-bit identifier.
func Fourcc(code string) uint32 {
	var b [4]byte
	copy(b[:], code)
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
