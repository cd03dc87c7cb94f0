// Package klv parses Key-Length-Value metadata (SMPTE-336M style) out
// of a companion metadata buffer without copying values, and provides
// a nearest-timestamp lookup used to pair metadata with frames.
package klv

import (
	"io"

	"github.com/tarm/serial"

	"dsv4l2.dev/errs"
)

// DefaultKeyLen is the 16-byte universal key length used unless the
// caller names a shorter key form.
const DefaultKeyLen = 16

const maxLengthBytes = 8 // sizeof(size_t) on every platform this targets

// Item is one parsed KLV triple. Key and Value alias the input
// buffer; no copies are made.
type Item struct {
	Key   []byte
	Value []byte
}

// Parse splits buf into a sequence of KLV items using keyLen-byte
// keys (pass DefaultKeyLen for the standard 16-byte universal key).
// An empty buf yields zero items and a nil error. Parse never reads
// outside buf, for any input.
func Parse(buf []byte, keyLen int) ([]Item, error) {
	if keyLen <= 0 {
		keyLen = DefaultKeyLen
	}
	var items []Item
	pos := 0
	for pos < len(buf) {
		if pos+keyLen > len(buf) {
			return nil, errs.New(errs.ParseError, "klv.Parse", nil)
		}
		key := buf[pos : pos+keyLen]
		pos += keyLen

		length, consumed, err := parseLength(buf, pos)
		if err != nil {
			return nil, err
		}
		pos += consumed

		if length < 0 || pos+length > len(buf) {
			return nil, errs.New(errs.ParseError, "klv.Parse", nil)
		}
		value := buf[pos : pos+length]
		pos += length

		items = append(items, Item{Key: key, Value: value})
	}
	return items, nil
}

// parseLength reads a BER-OID style length starting at buf[pos] and
// returns the decoded length, the number of bytes it occupied, or an
// error if the encoding is malformed or would overflow.
func parseLength(buf []byte, pos int) (length, consumed int, err error) {
	if pos >= len(buf) {
		return 0, 0, errs.New(errs.ParseError, "klv.parseLength", nil)
	}
	first := buf[pos]
	if first&0x80 == 0 {
		return int(first), 1, nil
	}
	n := int(first & 0x7f)
	if n == 0 || n > maxLengthBytes {
		return 0, 0, errs.New(errs.ParseError, "klv.parseLength", nil)
	}
	if pos+1+n > len(buf) {
		return 0, 0, errs.New(errs.ParseError, "klv.parseLength", nil)
	}
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(buf[pos+1+i])
	}
	if v > uint64(^uint(0)>>1) {
		return 0, 0, errs.New(errs.ParseError, "klv.parseLength", nil)
	}
	return int(v), 1 + n, nil
}

// Find returns the first item whose key is byte-equal to key, or nil
// if none match.
func Find(items []Item, key []byte) *Item {
	for i := range items {
		if bytesEqual(items[i].Key, key) {
			return &items[i]
		}
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// TimestampedBuffer is one candidate metadata buffer for
// SyncMetadata, carrying the nanosecond timestamp it was captured at.
type TimestampedBuffer struct {
	TimestampNS int64
}

// SyncMetadata returns the index of the buffer whose TimestampNS is
// nearest to targetNS, ties breaking toward the lower index. An empty
// buffers returns -1.
func SyncMetadata(targetNS int64, buffers []TimestampedBuffer) int {
	if len(buffers) == 0 {
		return -1
	}
	best := 0
	bestDiff := abs64(buffers[0].TimestampNS - targetNS)
	for i := 1; i < len(buffers); i++ {
		d := abs64(buffers[i].TimestampNS - targetNS)
		if d < bestDiff {
			bestDiff = d
			best = i
		}
	}
	return best
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ReadSource reads up to maxSize bytes from r, the byte source for a
// companion metadata stream. r may be a V4L2 metadata device (opened
// as an *os.File over the node's fd) or a serial Port returned by
// OpenSerialSource; both satisfy io.Reader.
func ReadSource(r io.Reader, maxSize int) ([]byte, error) {
	buf, err := io.ReadAll(io.LimitReader(r, int64(maxSize)))
	if err != nil {
		return nil, errs.New(errs.IOError, "klv.ReadSource", err)
	}
	return buf, nil
}

// OpenSerialSource opens name (e.g. "/dev/ttyUSB0") at baud as a
// companion metadata stream for a UAS telemetry link that carries KLV
// out-of-band from the video device, for use with ReadSource.
func OpenSerialSource(name string, baud int) (io.ReadCloser, error) {
	port, err := serial.OpenPort(&serial.Config{Name: name, Baud: baud})
	if err != nil {
		return nil, errs.New(errs.IOError, "klv.OpenSerialSource", err)
	}
	return port, nil
}
