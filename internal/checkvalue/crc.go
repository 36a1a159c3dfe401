package checkvalue

import (
	"encoding/binary"
	"hash"
)

// CRC parameters used by ARINC 665 protocol files and ARINC 645 check values.
// None of the algorithms reflect input or output, so hash/crc32 and
// hash/crc64 (both reflected) cannot be used.
const (
	crc8Poly  uint8  = 0x80
	crc8Init  uint8  = 0x00
	crc16Poly uint16 = 0x1021
	crc16Init uint16 = 0xFFFF
	crc16Xor  uint16 = 0x0000
	crc32Poly uint32 = 0x04C11DB7
	crc32Init uint32 = 0xFFFFFFFF
	crc32Xor  uint32 = 0xFFFFFFFF
	crc64Poly uint64 = 0x42F0E1EBA9EA3693
	crc64Init uint64 = 0xFFFFFFFFFFFFFFFF
	crc64Xor  uint64 = 0xFFFFFFFFFFFFFFFF
)

var (
	crc8Table  = makeCrc8Table()
	crc16Table = makeCrc16Table()
	crc32Table = makeCrc32Table()
	crc64Table = makeCrc64Table()
)

func makeCrc8Table() (t [256]uint8) {
	for i := range t {
		c := uint8(i)
		for b := 0; b < 8; b++ {
			if c&0x80 != 0 {
				c = c<<1 ^ crc8Poly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}

func makeCrc16Table() (t [256]uint16) {
	for i := range t {
		c := uint16(i) << 8
		for b := 0; b < 8; b++ {
			if c&0x8000 != 0 {
				c = c<<1 ^ crc16Poly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}

func makeCrc32Table() (t [256]uint32) {
	for i := range t {
		c := uint32(i) << 24
		for b := 0; b < 8; b++ {
			if c&0x80000000 != 0 {
				c = c<<1 ^ crc32Poly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}

func makeCrc64Table() (t [256]uint64) {
	for i := range t {
		c := uint64(i) << 56
		for b := 0; b < 8; b++ {
			if c&(1<<63) != 0 {
				c = c<<1 ^ crc64Poly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}

// crc8Hash is a streaming CRC-8 (poly 0x80, init 0).
type crc8Hash struct {
	value uint8
}

func newCrc8() *crc8Hash {
	return &crc8Hash{value: crc8Init}
}

func (c *crc8Hash) Write(p []byte) (int, error) {
	v := c.value
	for _, b := range p {
		v = crc8Table[v^b]
	}
	c.value = v
	return len(p), nil
}

func (c *crc8Hash) Sum8() uint8 {
	return c.value
}

func (c *crc8Hash) Reset() {
	c.value = crc8Init
}

// crc16Hash is the streaming ARINC 665 file CRC (CRC-16/CCITT-FALSE).
type crc16Hash struct {
	value uint16
}

func newCrc16() *crc16Hash {
	return &crc16Hash{value: crc16Init}
}

// Write updates the checksum with p. It never fails.
func (c *crc16Hash) Write(p []byte) (int, error) {
	v := c.value
	for _, b := range p {
		v = v<<8 ^ crc16Table[byte(v>>8)^b]
	}
	c.value = v
	return len(p), nil
}

func (c *crc16Hash) Sum16() uint16 {
	return c.value ^ crc16Xor
}

func (c *crc16Hash) Reset() {
	c.value = crc16Init
}

// crc32Hash is the streaming load CRC (CRC-32/BZIP2).
type crc32Hash struct {
	value uint32
}

func newCrc32() *crc32Hash {
	return &crc32Hash{value: crc32Init}
}

func (c *crc32Hash) Write(p []byte) (int, error) {
	v := c.value
	for _, b := range p {
		v = v<<8 ^ crc32Table[byte(v>>24)^b]
	}
	c.value = v
	return len(p), nil
}

func (c *crc32Hash) Sum32() uint32 {
	return c.value ^ crc32Xor
}

func (c *crc32Hash) Reset() {
	c.value = crc32Init
}

func (c *crc32Hash) Sum(b []byte) []byte {
	return binary.BigEndian.AppendUint32(b, c.Sum32())
}

func (c *crc32Hash) Size() int      { return 4 }
func (c *crc32Hash) BlockSize() int { return 1 }

// NewCrc32 returns the load CRC as a hash.Hash32.
func NewCrc32() hash.Hash32 {
	return newCrc32()
}

// crc64Hash is the streaming CRC-64 (CRC-64/WE parameters).
type crc64Hash struct {
	value uint64
}

func newCrc64() *crc64Hash {
	return &crc64Hash{value: crc64Init}
}

func (c *crc64Hash) Write(p []byte) (int, error) {
	v := c.value
	for _, b := range p {
		v = v<<8 ^ crc64Table[byte(v>>56)^b]
	}
	c.value = v
	return len(p), nil
}

func (c *crc64Hash) Sum64() uint64 {
	return c.value ^ crc64Xor
}

func (c *crc64Hash) Reset() {
	c.value = crc64Init
}

func ComputeCrc8(p []byte) uint8 {
	c := newCrc8()
	c.Write(p)
	return c.Sum8()
}

// ComputeCrc16 calculates the CRC-16 stored at the end of every protocol file
// and in every file list entry.
func ComputeCrc16(p []byte) uint16 {
	c := newCrc16()
	c.Write(p)
	return c.Sum16()
}

func ComputeCrc32(p []byte) uint32 {
	c := newCrc32()
	c.Write(p)
	return c.Sum32()
}

func ComputeCrc64(p []byte) uint64 {
	c := newCrc64()
	c.Write(p)
	return c.Sum64()
}
