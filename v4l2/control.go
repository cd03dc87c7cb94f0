package v4l2

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/unix"
)

// GetControl issues VIDIOC_G_CTRL.
func GetControl(fd int, id uint32) (int32, error) {
	ctrl := Control{ID: id}
	if err := ioctl(fd, "v4l2.GetControl", vidiocGCtrl, unsafe.Pointer(&ctrl)); err != nil {
		return 0, err
	}
	return ctrl.Value, nil
}

// SetControl issues VIDIOC_S_CTRL.
func SetControl(fd int, id uint32, value int32) error {
	ctrl := Control{ID: id, Value: value}
	return ioctl(fd, "v4l2.SetControl", vidiocSCtrl, unsafe.Pointer(&ctrl))
}

// EnumControls enumerates controls via QUERYCTRL+NEXT_CTRL,
// invoking fn for each control the driver has not flagged disabled.
// Enumeration stops early if fn returns false.
func EnumControls(fd int, fn func(QueryCtrl) bool) error {
	var q QueryCtrl
	q.ID = CtrlFlagNextCtrl
	for {
		if err := ioctl(fd, "v4l2.EnumControls", vidiocQueryCtrl, unsafe.Pointer(&q)); err != nil {
			// VIDIOC_QUERYCTRL with NEXT_CTRL returns EINVAL once
			// enumeration is exhausted; that is success, not failure.
			if errors.Is(err, unix.EINVAL) {
				return nil
			}
			return err
		}
		if q.Flags&CtrlFlagDisabled == 0 {
			if !fn(q) {
				return nil
			}
		}
		q.ID |= CtrlFlagNextCtrl
	}
}
