package files

import (
	"encoding/binary"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
)

// Offsets shared by every protocol file.
const (
	fileLengthOffset    = 0
	formatVersionOffset = 4
	baseHeaderSize      = 6

	// Distance of the file CRC from the end of the file.
	defaultFileCrcOffset = 2
	// Load headers carry a 32-bit load CRC behind the file CRC.
	loadHeaderFileCrcOffset = 6
)

// Class groups protocol files by the leading nibble of their version field.
type Class int

const (
	ClassInvalid Class = iota
	ClassLoadFile
	ClassBatchFile
	ClassMediaFile
)

func (c Class) String() string {
	switch c {
	case ClassLoadFile:
		return "load file"
	case ClassBatchFile:
		return "batch file"
	case ClassMediaFile:
		return "media file"
	default:
		return "invalid"
	}
}

// FileLength returns the length field of a protocol file in bytes.
func FileLength(raw []byte) (int, error) {
	if len(raw) < baseHeaderSize {
		return 0, arinc665.FormatErrorf("file of %d bytes has no header", len(raw))
	}
	return int(binary.BigEndian.Uint32(raw[fileLengthOffset:])) * 2, nil
}

// FormatVersion returns the raw version field.
func FormatVersion(raw []byte) (uint16, error) {
	if len(raw) < baseHeaderSize {
		return 0, arinc665.FormatErrorf("file of %d bytes has no header", len(raw))
	}
	return binary.BigEndian.Uint16(raw[formatVersionOffset:]), nil
}

// Detect classifies raw by its version field and reports the supplement.
func Detect(raw []byte) (Class, arinc665.SupportedVersion, error) {
	field, err := FormatVersion(raw)
	if err != nil {
		return ClassInvalid, arinc665.VersionInvalid, err
	}
	switch field {
	case arinc665.LoadFileFormatVersion2:
		return ClassLoadFile, arinc665.Supplement2, nil
	case arinc665.LoadFileFormatVersion345:
		return ClassLoadFile, arinc665.Supplement345, nil
	case arinc665.BatchFileFormatVersion2:
		return ClassBatchFile, arinc665.Supplement2, nil
	case arinc665.BatchFileFormatVersion345:
		return ClassBatchFile, arinc665.Supplement345, nil
	case arinc665.MediaFileFormatVersion2:
		return ClassMediaFile, arinc665.Supplement2, nil
	case arinc665.MediaFileFormatVersion345:
		return ClassMediaFile, arinc665.Supplement345, nil
	}
	return ClassInvalid, arinc665.VersionInvalid, arinc665.FormatErrorf("unknown format version 0x%04X", field)
}

// checkHeader validates the parts common to every protocol file: minimum
// size, length field, version field and file CRC. crcOffset is the distance of
// the CRC from the end of the file.
func checkHeader(raw []byte, t arinc665.FileType, minSize, crcOffset int) (arinc665.SupportedVersion, error) {
	if len(raw) < minSize {
		return arinc665.VersionInvalid, arinc665.FormatErrorf("%s: %d bytes, need at least %d", t, len(raw), minSize)
	}
	if len(raw)%2 != 0 {
		return arinc665.VersionInvalid, arinc665.FormatErrorf("%s: odd size %d", t, len(raw))
	}
	length, _ := FileLength(raw)
	if length != len(raw) {
		return arinc665.VersionInvalid, arinc665.FormatErrorf("%s: length field %d bytes, file is %d", t, length, len(raw))
	}
	field, _ := FormatVersion(raw)
	v := arinc665.VersionOf(t, field)
	if v == arinc665.VersionInvalid {
		return v, arinc665.FormatErrorf("%s: unsupported version 0x%04X", t, field)
	}
	end := len(raw) - crcOffset
	stored := binary.BigEndian.Uint16(raw[end:])
	if calc := checkvalue.ComputeCrc16(raw[:end]); calc != stored {
		return v, arinc665.IntegrityErrorf("%s: file CRC 0x%04X, calculated 0x%04X", t, stored, calc)
	}
	return v, nil
}

// finishHeader writes the length and version fields for a buffer that will
// grow by trailer more bytes before it is complete.
func finishHeader(e *encoder, t arinc665.FileType, v arinc665.SupportedVersion, trailer int) {
	field := arinc665.FormatVersionField(t, v)
	if field == 0 {
		e.fail(arinc665.FormatErrorf("%s: cannot encode version %s", t, v))
		return
	}
	total := e.len() + trailer
	if total%2 != 0 {
		e.fail(arinc665.FormatErrorf("%s: odd size %d", t, total))
		return
	}
	e.putU32(fileLengthOffset, uint32(total/2))
	e.putU16(formatVersionOffset, field)
}

// appendFileCrc appends the CRC-16 over the whole buffer.
func appendFileCrc(e *encoder) {
	e.u16(checkvalue.ComputeCrc16(e.buf))
}

// ptrWords validates a word pointer against the file body and returns its byte
// offset. Zero pointers are reported as 0 without error when optional is set.
func ptrWords(raw []byte, off int, bodyEnd int, what string, optional bool) (int, error) {
	p := int(binary.BigEndian.Uint32(raw[off:]))
	if p == 0 {
		if optional {
			return 0, nil
		}
		return 0, arinc665.FormatErrorf("%s pointer is zero", what)
	}
	if p*2 < baseHeaderSize || p*2 > bodyEnd {
		return 0, arinc665.FormatErrorf("%s pointer 0x%X outside of body", what, p)
	}
	return p * 2, nil
}

// appendEntries writes [u16 count] followed by n list entries, each prefixed
// with a relative pointer in words to the next entry (0 on the last entry).
func appendEntries(e *encoder, n int, what string, entry func(i int, sub *encoder)) {
	if e.err != nil {
		return
	}
	if n > 0xFFFF {
		e.fail(arinc665.FormatErrorf("%d %s exceed 65535", n, what))
		return
	}
	e.u16(uint16(n))
	for i := 0; i < n; i++ {
		sub := newEncoder(2)
		entry(i, sub)
		if sub.err != nil {
			e.fail(sub.err)
			return
		}
		if sub.len()%2 != 0 {
			e.fail(arinc665.FormatErrorf("%s entry %d has odd size", what, i))
			return
		}
		if i < n-1 {
			if sub.len()/2 > 0xFFFF {
				e.fail(arinc665.FormatErrorf("%s entry %d too large", what, i))
				return
			}
			sub.putU16(0, uint16(sub.len()/2))
		}
		e.raw(sub.buf)
	}
}

// decodeEntries reads a list written by appendEntries. The entry callback must
// consume fields from d; the next pointer decides where the following entry
// starts.
func decodeEntries(d *decoder, what string, entry func(i int, d *decoder)) {
	count := int(d.u16())
	for i := 0; i < count && d.err == nil; i++ {
		start := d.off
		next := int(d.u16())
		last := i == count-1
		switch {
		case last && next != 0:
			d.fail(arinc665.FormatErrorf("%s entry %d: next pointer %d on last entry", what, i, next))
			return
		case !last && next == 0:
			d.fail(arinc665.FormatErrorf("%s entry %d: next pointer is zero", what, i))
			return
		}
		entry(i, d)
		if d.err != nil {
			return
		}
		if !last {
			if start+next*2 < d.off || start+next*2 > len(d.b) {
				d.fail(arinc665.FormatErrorf("%s entry %d: next pointer %d out of range", what, i, next))
				return
			}
			d.off = start + next*2
		}
	}
}
