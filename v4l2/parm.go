package v4l2

import "unsafe"

// GetParm issues VIDIOC_G_PARM for the video-capture stream parameters.
func GetParm(fd int) (CaptureParm, error) {
	parm := StreamParm{Type: BufTypeVideoCapture}
	if err := ioctl(fd, "v4l2.GetParm", vidiocGParm, unsafe.Pointer(&parm)); err != nil {
		return CaptureParm{}, err
	}
	return *(*CaptureParm)(unsafe.Pointer(&parm.Raw[0])), nil
}

// SetParm issues VIDIOC_S_PARM with the given capture parameters.
func SetParm(fd int, cap CaptureParm) (CaptureParm, error) {
	parm := StreamParm{Type: BufTypeVideoCapture}
	*(*CaptureParm)(unsafe.Pointer(&parm.Raw[0])) = cap
	if err := ioctl(fd, "v4l2.SetParm", vidiocSParm, unsafe.Pointer(&parm)); err != nil {
		return CaptureParm{}, err
	}
	return *(*CaptureParm)(unsafe.Pointer(&parm.Raw[0])), nil
}
