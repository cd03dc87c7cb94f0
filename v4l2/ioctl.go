// Package v4l2 provides typed, failure-returning bindings to the slice
// of the V4L2 ioctl and mmap surface that the device core needs:
// QUERYCAP, S_FMT, G/S_PARM, REQBUFS, QUERYBUF, QBUF, DQBUF,
// STREAMON/OFF, G/S/QUERYCTRL.
//
// It is cgo-free: ioctl request codes are computed with the same
// _IOC encoding the kernel headers use, rather than linked from
// <linux/videodev2.h>, so the module builds without a C toolchain.
package v4l2

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"dsv4l2.dev/errs"
)

// ioctl direction/encoding, see asm-generic/ioctl.h.
const (
	iocNone  = 0
	iocWrite = 1
	iocRead  = 2

	iocNumberBits = 8
	iocTypeBits   = 8
	iocSizeBits   = 14

	numberShift = 0
	typeShift   = numberShift + iocNumberBits
	sizeShift   = typeShift + iocTypeBits
	dirShift    = sizeShift + iocSizeBits

	ioctlType = 'V'
)

func ioc(dir, nr, size uintptr) uintptr {
	return dir<<dirShift | ioctlType<<typeShift | nr<<numberShift | size<<sizeShift
}

func iowr(nr, size uintptr) uintptr { return ioc(iocRead|iocWrite, nr, size) }
func iow(nr, size uintptr) uintptr  { return ioc(iocWrite, nr, size) }
func ior(nr, size uintptr) uintptr  { return ioc(iocRead, nr, size) }

// Request numbers, matching <linux/videodev2.h>.
var (
	vidiocQueryCap   = ior(0, unsafe.Sizeof(Capability{}))
	vidiocGFmt       = iowr(4, unsafe.Sizeof(Format{}))
	vidiocSFmt       = iowr(5, unsafe.Sizeof(Format{}))
	vidiocReqBufs    = iowr(8, unsafe.Sizeof(ReqBuffers{}))
	vidiocQueryBuf   = iowr(9, unsafe.Sizeof(Buffer{}))
	vidiocQBuf       = iowr(15, unsafe.Sizeof(Buffer{}))
	vidiocDQBuf      = iowr(17, unsafe.Sizeof(Buffer{}))
	vidiocStreamOn   = iow(18, unsafe.Sizeof(int32(0)))
	vidiocStreamOff  = iow(19, unsafe.Sizeof(int32(0)))
	vidiocGParm      = iowr(21, unsafe.Sizeof(StreamParm{}))
	vidiocSParm      = iowr(22, unsafe.Sizeof(StreamParm{}))
	vidiocGCtrl      = iowr(27, unsafe.Sizeof(Control{}))
	vidiocSCtrl      = iowr(28, unsafe.Sizeof(Control{}))
	vidiocQueryCtrl  = iowr(36, unsafe.Sizeof(QueryCtrl{}))
)

// ioctl issues req against fd with arg as the (pointer) payload,
// classifying any failure into the shared error taxonomy.
func ioctl(fd int, op string, req uintptr, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), req, uintptr(arg))
	if errno != 0 {
		return errs.FromErrno(op, errno)
	}
	return nil
}

// Open opens a V4L2 device node in non-blocking read-write mode, so
// that a later DQBUF never blocks the calling thread.
func Open(path string) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return -1, errs.FromErrno("v4l2.Open", err)
	}
	return fd, nil
}

// Close closes the device file descriptor.
func Close(fd int) error {
	if err := unix.Close(fd); err != nil {
		return errs.FromErrno("v4l2.Close", err)
	}
	return nil
}
