package files

import (
	"encoding/binary"
	"math"
	"strings"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
)

// encoder appends big-endian fields to a growing buffer. The first error
// sticks; later calls are no-ops.
type encoder struct {
	buf []byte
	err error
}

func newEncoder(headerSize int) *encoder {
	return &encoder{buf: make([]byte, headerSize)}
}

func (e *encoder) len() int {
	return len(e.buf)
}

// words returns the current end of the buffer as a 16-bit word pointer.
func (e *encoder) words() uint32 {
	return uint32(len(e.buf) / 2)
}

func (e *encoder) u8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) u16(v uint16) {
	e.buf = binary.BigEndian.AppendUint16(e.buf, v)
}

func (e *encoder) u32(v uint32) {
	e.buf = binary.BigEndian.AppendUint32(e.buf, v)
}

func (e *encoder) u64(v uint64) {
	e.buf = binary.BigEndian.AppendUint64(e.buf, v)
}

func (e *encoder) raw(b []byte) {
	e.buf = append(e.buf, b...)
}

func (e *encoder) str(s string) {
	if e.err != nil {
		return
	}
	e.buf, e.err = appendString(e.buf, s)
}

func (e *encoder) strs(ss []string) {
	if e.err != nil {
		return
	}
	e.buf, e.err = appendStrings(e.buf, ss)
}

func (e *encoder) checkValue(c checkvalue.CheckValue) {
	if e.err != nil {
		return
	}
	b, err := checkvalue.Encode(c)
	if err != nil {
		e.fail(err)
		return
	}
	e.raw(b)
}

func (e *encoder) putU16(off int, v uint16) {
	binary.BigEndian.PutUint16(e.buf[off:off+2], v)
}

func (e *encoder) putU32(off int, v uint32) {
	binary.BigEndian.PutUint32(e.buf[off:off+4], v)
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// decoder reads big-endian fields from a bounded view of a file. Reads past
// the end set a format error and return zero values.
type decoder struct {
	b   []byte
	off int
	err error
}

func newDecoder(b []byte, off int) *decoder {
	d := &decoder{b: b, off: off}
	if off < 0 || off > len(b) {
		d.err = arinc665.FormatErrorf("offset %d outside of %d bytes", off, len(b))
	}
	return d
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.b) {
		d.err = arinc665.FormatErrorf("need %d bytes at offset %d, have %d", n, d.off, len(d.b)-d.off)
		return nil
	}
	p := d.b[d.off : d.off+n]
	d.off += n
	return p
}

func (d *decoder) u8() uint8 {
	p := d.take(1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (d *decoder) u16() uint16 {
	p := d.take(2)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint16(p)
}

func (d *decoder) u32() uint32 {
	p := d.take(4)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint32(p)
}

func (d *decoder) u64() uint64 {
	p := d.take(8)
	if p == nil {
		return 0
	}
	return binary.BigEndian.Uint64(p)
}

func (d *decoder) str() string {
	if d.err != nil {
		return ""
	}
	s, next, err := DecodeString(d.b, d.off)
	if err != nil {
		d.err = err
		return ""
	}
	d.off = next
	return s
}

func (d *decoder) strs() []string {
	if d.err != nil {
		return nil
	}
	ss, next, err := DecodeStrings(d.b, d.off)
	if err != nil {
		d.err = err
		return nil
	}
	d.off = next
	return ss
}

func (d *decoder) checkValue() checkvalue.CheckValue {
	if d.err != nil {
		return checkvalue.None
	}
	c, n, err := checkvalue.Decode(d.b[d.off:])
	if err != nil {
		d.err = err
		return checkvalue.None
	}
	d.off += n
	return c
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// EncodeString encodes s as [u16 length][bytes] padded with one zero byte to
// an even length.
func EncodeString(s string) ([]byte, error) {
	return appendString(nil, s)
}

func appendString(dst []byte, s string) ([]byte, error) {
	if len(s) > math.MaxUint16 {
		return dst, arinc665.FormatErrorf("string of %d bytes exceeds 65535", len(s))
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(s)))
	dst = append(dst, s...)
	if len(s)%2 == 1 {
		dst = append(dst, 0)
	}
	return dst, nil
}

// DecodeString reads a string at off and returns it with the offset following
// the padding.
func DecodeString(b []byte, off int) (string, int, error) {
	if off < 0 || off+2 > len(b) {
		return "", off, arinc665.FormatErrorf("string length at offset %d truncated", off)
	}
	n := int(binary.BigEndian.Uint16(b[off : off+2]))
	start := off + 2
	end := start + n
	padded := end + n%2
	if padded > len(b) {
		return "", off, arinc665.FormatErrorf("string of %d bytes at offset %d exceeds buffer", n, off)
	}
	if n%2 == 1 && b[end] != 0 {
		return "", off, arinc665.FormatErrorf("string padding at offset %d is 0x%02X", end, b[end])
	}
	return string(b[start:end]), padded, nil
}

// EncodeStrings encodes a string list as [u16 count][strings].
func EncodeStrings(ss []string) ([]byte, error) {
	return appendStrings(nil, ss)
}

func appendStrings(dst []byte, ss []string) ([]byte, error) {
	if len(ss) > math.MaxUint16 {
		return dst, arinc665.FormatErrorf("%d strings exceed 65535", len(ss))
	}
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(ss)))
	var err error
	for _, s := range ss {
		if dst, err = appendString(dst, s); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

func DecodeStrings(b []byte, off int) ([]string, int, error) {
	if off < 0 || off+2 > len(b) {
		return nil, off, arinc665.FormatErrorf("string list count at offset %d truncated", off)
	}
	count := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	var out []string
	for i := 0; i < count; i++ {
		s, next, err := DecodeString(b, off)
		if err != nil {
			return nil, off, err
		}
		out = append(out, s)
		off = next
	}
	return out, off, nil
}

// EncodePath converts a media path ("/DIR/SUB") to the list file form
// ("\DIR\SUB\").
func EncodePath(p string) string {
	p = strings.ReplaceAll(p, "/", "\\")
	if !strings.HasPrefix(p, "\\") {
		p = "\\" + p
	}
	if !strings.HasSuffix(p, "\\") {
		p += "\\"
	}
	return p
}

// DecodePath is the inverse of EncodePath; the root decodes to "/".
func DecodePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimSuffix(p, "/")
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}
