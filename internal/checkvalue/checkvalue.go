package checkvalue

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"strings"

	"example.com/arinc665/internal/arinc665"
)

// Type identifies the algorithm of a check value. The numeric values are the
// type codes used on the wire.
type Type uint16

const (
	NotUsed Type = 0
	Crc8    Type = 1
	Crc16   Type = 2
	Crc32   Type = 3
	Md5     Type = 4
	Sha1    Type = 5
	Sha256  Type = 6
	Sha512  Type = 7
	Crc64   Type = 8
	Invalid Type = 0xFFFF
)

var ErrSizeMismatch = errors.New("check value size does not match type")

var sizes = map[Type]int{
	NotUsed: 0,
	Crc8:    2,
	Crc16:   2,
	Crc32:   4,
	Md5:     16,
	Sha1:    20,
	Sha256:  32,
	Sha512:  64,
	Crc64:   8,
}

var names = map[Type]string{
	NotUsed: "NotUsed",
	Crc8:    "CRC8",
	Crc16:   "CRC16",
	Crc32:   "CRC32",
	Md5:     "MD5",
	Sha1:    "SHA1",
	Sha256:  "SHA256",
	Sha512:  "SHA512",
	Crc64:   "CRC64",
}

// Types lists every valid check value type in wire order.
func Types() []Type {
	return []Type{NotUsed, Crc8, Crc16, Crc32, Md5, Sha1, Sha256, Sha512, Crc64}
}

func (t Type) Valid() bool {
	_, ok := sizes[t]
	return ok
}

// Size returns the payload length in bytes; Invalid and unknown types have
// size 0.
func Size(t Type) int {
	return sizes[t]
}

// EncodedSize returns the number of bytes Encode produces for a check value of
// type t.
func EncodedSize(t Type) int {
	if t == NotUsed || !t.Valid() {
		return 2
	}
	return 4 + sizes[t]
}

func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}
	return "Invalid"
}

func ParseType(s string) (Type, error) {
	norm := strings.ToUpper(strings.NewReplacer("-", "", "_", "", " ", "").Replace(s))
	if norm == "" || norm == "NONE" || norm == "NOTUSED" {
		return NotUsed, nil
	}
	for t, n := range names {
		if n == norm {
			return t, nil
		}
	}
	return Invalid, fmt.Errorf("unknown check value type %q", s)
}

func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// CheckValue pairs a type with its payload.
type CheckValue struct {
	Type  Type
	Value []byte
}

// None is the "no check value" sentinel.
var None = CheckValue{Type: NotUsed}

// New validates that the payload length matches the type.
func New(t Type, value []byte) (CheckValue, error) {
	if !t.Valid() {
		return CheckValue{}, fmt.Errorf("%w: type %d", ErrSizeMismatch, uint16(t))
	}
	if len(value) != sizes[t] {
		return CheckValue{}, fmt.Errorf("%w: %s needs %d bytes, got %d", ErrSizeMismatch, t, sizes[t], len(value))
	}
	if t == NotUsed {
		return None, nil
	}
	return CheckValue{Type: t, Value: append([]byte(nil), value...)}, nil
}

func (c CheckValue) IsNone() bool {
	return c.Type == NotUsed
}

func (c CheckValue) Equal(o CheckValue) bool {
	if c.IsNone() || o.IsNone() {
		return c.IsNone() == o.IsNone()
	}
	return c.Type == o.Type && bytes.Equal(c.Value, o.Value)
}

func (c CheckValue) String() string {
	if c.IsNone() {
		return "none"
	}
	return c.Type.String() + ":" + strings.ToUpper(hex.EncodeToString(c.Value))
}

// Encode produces the wire form [u16 length][u16 type][payload]. No check
// value encodes as a zero length field only. A payload whose length does not
// match its type is a format error.
func Encode(c CheckValue) ([]byte, error) {
	if c.IsNone() {
		return []byte{0, 0}, nil
	}
	if !c.Type.Valid() || len(c.Value) != sizes[c.Type] {
		return nil, arinc665.FormatErrorf("check value %s: %d payload bytes, want %d", c.Type, len(c.Value), Size(c.Type))
	}
	out := make([]byte, 4+len(c.Value))
	binary.BigEndian.PutUint16(out[0:2], uint16(len(out)))
	binary.BigEndian.PutUint16(out[2:4], uint16(c.Type))
	copy(out[4:], c.Value)
	return out, nil
}

// Decode reads a check value from the start of b and returns it together with
// the number of bytes consumed. Length fields 0 and 2 both mean "no check
// value"; a length of 4 with type NotUsed is accepted as well.
func Decode(b []byte) (CheckValue, int, error) {
	if len(b) < 2 {
		return CheckValue{}, 0, arinc665.FormatErrorf("check value truncated: %d bytes", len(b))
	}
	length := int(binary.BigEndian.Uint16(b[0:2]))
	switch {
	case length == 0 || length == 2:
		return None, 2, nil
	case length < 4:
		return CheckValue{}, 0, arinc665.FormatErrorf("check value length %d invalid", length)
	}
	if len(b) < 4 {
		return CheckValue{}, 0, arinc665.FormatErrorf("check value truncated: %d bytes", len(b))
	}
	t := Type(binary.BigEndian.Uint16(b[2:4]))
	if !t.Valid() {
		return CheckValue{}, 0, arinc665.FormatErrorf("check value type %d unknown", uint16(t))
	}
	if t == NotUsed {
		if length != 4 {
			return CheckValue{}, 0, arinc665.FormatErrorf("check value length %d for type NotUsed", length)
		}
		return None, 4, nil
	}
	if length != 4+sizes[t] {
		return CheckValue{}, 0, arinc665.FormatErrorf("check value length %d does not match %s", length, t)
	}
	if len(b) < length {
		return CheckValue{}, 0, arinc665.FormatErrorf("check value truncated: need %d bytes, have %d", length, len(b))
	}
	return CheckValue{Type: t, Value: append([]byte(nil), b[4:length]...)}, length, nil
}

// Generator computes a check value of a fixed type over streamed data.
type Generator struct {
	t   Type
	h   hash.Hash
	c8  *crc8Hash
	c16 *crc16Hash
	c32 *crc32Hash
	c64 *crc64Hash
}

func NewGenerator(t Type) (*Generator, error) {
	g := &Generator{t: t}
	switch t {
	case NotUsed:
	case Crc8:
		g.c8 = newCrc8()
	case Crc16:
		g.c16 = newCrc16()
	case Crc32:
		g.c32 = newCrc32()
	case Crc64:
		g.c64 = newCrc64()
	case Md5:
		g.h = md5.New()
	case Sha1:
		g.h = sha1.New()
	case Sha256:
		g.h = sha256.New()
	case Sha512:
		g.h = sha512.New()
	default:
		return nil, fmt.Errorf("%w: type %d", ErrSizeMismatch, uint16(t))
	}
	return g, nil
}

func (g *Generator) Write(p []byte) (int, error) {
	switch {
	case g.c8 != nil:
		return g.c8.Write(p)
	case g.c16 != nil:
		return g.c16.Write(p)
	case g.c32 != nil:
		return g.c32.Write(p)
	case g.c64 != nil:
		return g.c64.Write(p)
	case g.h != nil:
		return g.h.Write(p)
	}
	return len(p), nil
}

func (g *Generator) CheckValue() CheckValue {
	var v []byte
	switch {
	case g.c8 != nil:
		v = []byte{0, g.c8.Sum8()}
	case g.c16 != nil:
		v = binary.BigEndian.AppendUint16(nil, g.c16.Sum16())
	case g.c32 != nil:
		v = binary.BigEndian.AppendUint32(nil, g.c32.Sum32())
	case g.c64 != nil:
		v = binary.BigEndian.AppendUint64(nil, g.c64.Sum64())
	case g.h != nil:
		v = g.h.Sum(nil)
	default:
		return None
	}
	return CheckValue{Type: g.t, Value: v}
}

// Compute returns the check value of type t over data.
func Compute(t Type, data []byte) (CheckValue, error) {
	g, err := NewGenerator(t)
	if err != nil {
		return CheckValue{}, err
	}
	g.Write(data)
	return g.CheckValue(), nil
}

// ComputeReader streams r through a generator of type t.
func ComputeReader(t Type, r io.Reader) (CheckValue, error) {
	g, err := NewGenerator(t)
	if err != nil {
		return CheckValue{}, err
	}
	if _, err := io.Copy(g, r); err != nil {
		return CheckValue{}, err
	}
	return g.CheckValue(), nil
}

// Verify recomputes c over data.
func Verify(c CheckValue, data []byte) (bool, error) {
	if c.IsNone() {
		return true, nil
	}
	got, err := Compute(c.Type, data)
	if err != nil {
		return false, err
	}
	return got.Equal(c), nil
}
