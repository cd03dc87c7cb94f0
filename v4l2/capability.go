package v4l2

import "unsafe"

// QueryCap issues VIDIOC_QUERYCAP.
func QueryCap(fd int) (Capability, error) {
	var cap Capability
	if err := ioctl(fd, "v4l2.QueryCap", vidiocQueryCap, unsafe.Pointer(&cap)); err != nil {
		return Capability{}, err
	}
	return cap, nil
}
