package v4l2

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"dsv4l2.dev/errs"
)

// RequestBuffers issues VIDIOC_REQBUFS for MMAP capture buffers and
// returns the count the driver actually allocated.
func RequestBuffers(fd int, count uint32) (uint32, error) {
	req := ReqBuffers{Count: count, Type: BufTypeVideoCapture, Memory: MemoryMMAP}
	if err := ioctl(fd, "v4l2.RequestBuffers", vidiocReqBufs, unsafe.Pointer(&req)); err != nil {
		return 0, err
	}
	return req.Count, nil
}

// QueryBuffer issues VIDIOC_QUERYBUF for the buffer at index.
func QueryBuffer(fd int, index uint32) (Buffer, error) {
	buf := Buffer{Type: BufTypeVideoCapture, Memory: MemoryMMAP, Index: index}
	if err := ioctl(fd, "v4l2.QueryBuffer", vidiocQueryBuf, unsafe.Pointer(&buf)); err != nil {
		return Buffer{}, err
	}
	return buf, nil
}

// MapBuffer mmaps the slot described by buf. The returned slice's base
// pointer is stable for the device's lifetime; it must be released
// with Munmap before the file descriptor is closed.
func MapBuffer(fd int, buf Buffer) ([]byte, error) {
	data, err := unix.Mmap(fd, int64(buf.Offset()), int(buf.Length), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errs.FromErrno("v4l2.MapBuffer", err)
	}
	return data, nil
}

// Munmap releases a slot mapped by MapBuffer.
func Munmap(data []byte) error {
	if err := unix.Munmap(data); err != nil {
		return errs.FromErrno("v4l2.Munmap", err)
	}
	return nil
}

// QueueBuffer issues VIDIOC_QBUF for the slot at index.
func QueueBuffer(fd int, index uint32) error {
	buf := Buffer{Type: BufTypeVideoCapture, Memory: MemoryMMAP, Index: index}
	return ioctl(fd, "v4l2.QueueBuffer", vidiocQBuf, unsafe.Pointer(&buf))
}

// DequeueBuffer issues VIDIOC_DQBUF. Because the device is opened
// non-blocking, an empty queue surfaces as errs.WouldBlock rather than
// blocking the caller.
func DequeueBuffer(fd int) (Buffer, error) {
	buf := Buffer{Type: BufTypeVideoCapture, Memory: MemoryMMAP}
	if err := ioctl(fd, "v4l2.DequeueBuffer", vidiocDQBuf, unsafe.Pointer(&buf)); err != nil {
		return Buffer{}, err
	}
	return buf, nil
}

// StreamOn issues VIDIOC_STREAMON.
func StreamOn(fd int) error {
	bufType := BufTypeVideoCapture
	return ioctl(fd, "v4l2.StreamOn", vidiocStreamOn, unsafe.Pointer(&bufType))
}

// StreamOff issues VIDIOC_STREAMOFF.
func StreamOff(fd int) error {
	bufType := BufTypeVideoCapture
	return ioctl(fd, "v4l2.StreamOff", vidiocStreamOff, unsafe.Pointer(&bufType))
}

// WaitForFrame blocks, via select(2), until fd is readable or timeout
// elapses. The core never calls this internally (DQBUF stays
// non-blocking); it is offered for callers that want a "wait for
// frame" helper instead of hand-rolled polling.
func WaitForFrame(fd int, timeout time.Duration) error {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	var fds unix.FdSet
	fds.Set(fd)
	for {
		n, err := unix.Select(fd+1, &fds, nil, nil, &tv)
		switch {
		case n < 0:
			if err == unix.EINTR {
				continue
			}
			return errs.FromErrno("v4l2.WaitForFrame", err)
		case n == 0:
			return errs.New(errs.WouldBlock, "v4l2.WaitForFrame", nil)
		default:
			return nil
		}
	}
}
