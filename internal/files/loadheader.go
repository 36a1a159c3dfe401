package files

import (
	"encoding/binary"
	"errors"
	"math"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
)

const (
	luhPartFlagsOffset         = 6
	luhPartNumberPtrOffset     = 8
	luhTargetsPtrOffset        = 12
	luhDataFilesPtrOffset      = 16
	luhSupportFilesPtrOffset   = 20
	luhUserDataPtrOffset       = 24
	luhLoadTypePtrOffset       = 28
	luhPositionsPtrOffset      = 32
	luhLoadCheckValuePtrOffset = 36
	luhHeaderSize2             = 28
	luhHeaderSize345           = 40
	loadCrcSize                = 4
)

// PartFlagDownload marks a load intended for download rather than upload.
const PartFlagDownload uint16 = 0x0001

// LoadFileInfo describes a data or support file of a load.
type LoadFileInfo struct {
	Filename   string
	PartNumber string
	// Length in bytes. Supplement 2 data files only carry the length in
	// 16-bit words, so odd lengths decode rounded up.
	Length uint64
	Crc    uint16
	// CheckValue is only encoded for Supplement 3/4/5.
	CheckValue checkvalue.CheckValue
}

type LoadType struct {
	Description string
	ID          uint16
}

// TargetHardwareIDPositions lists the positions a target hardware ID is
// restricted to.
type TargetHardwareIDPositions struct {
	TargetHardwareID string
	Positions        []string
}

// LoadHeaderFile is the load upload header (*.LUH) record. PartFlags,
// LoadType, TargetHardwareIDPositions and LoadCheckValue are only encoded for
// Supplement 3/4/5. LoadCheckValue and LoadCrc are written as given; see
// SetLoadCheckValue and SetLoadCrc for patching them after the file contents
// are known.
type LoadHeaderFile struct {
	Version                   arinc665.SupportedVersion
	PartFlags                 uint16
	PartNumber                string
	LoadType                  *LoadType
	TargetHardwareIDs         []string
	TargetHardwareIDPositions []TargetHardwareIDPositions
	DataFiles                 []LoadFileInfo
	SupportFiles              []LoadFileInfo
	UserDefinedData           []byte
	LoadCheckValue            checkvalue.CheckValue
	// LoadCheckValueOmitted selects the Supplement 3/4/5 form with a zero load
	// check value pointer. Decode sets it for such headers.
	LoadCheckValueOmitted bool
	LoadCrc               uint32
}

func (f *LoadHeaderFile) Encode() ([]byte, error) {
	supp345 := f.Version == arinc665.Supplement345
	if f.Version == arinc665.Supplement2 && f.PartFlags != 0 {
		return nil, arinc665.FormatErrorf("load header %s: part flags not supported in %s", f.PartNumber, f.Version)
	}
	if len(f.UserDefinedData)%2 != 0 {
		return nil, arinc665.FormatErrorf("load header %s: user defined data has odd size %d", f.PartNumber, len(f.UserDefinedData))
	}
	if f.LoadCheckValueOmitted && !f.LoadCheckValue.IsNone() {
		return nil, arinc665.FormatErrorf("load header %s: load check value %s with omitted pointer", f.PartNumber, f.LoadCheckValue.Type)
	}
	hdr := luhHeaderSize2
	if supp345 {
		hdr = luhHeaderSize345
	}
	e := newEncoder(hdr)
	e.putU16(luhPartFlagsOffset, f.PartFlags)

	e.putU32(luhPartNumberPtrOffset, e.words())
	e.str(f.PartNumber)

	if supp345 && f.LoadType != nil {
		e.putU32(luhLoadTypePtrOffset, e.words())
		e.str(f.LoadType.Description)
		e.u16(f.LoadType.ID)
	}

	e.putU32(luhTargetsPtrOffset, e.words())
	e.strs(f.TargetHardwareIDs)

	if supp345 {
		var positions []TargetHardwareIDPositions
		for _, p := range f.TargetHardwareIDPositions {
			if len(p.Positions) > 0 {
				positions = append(positions, p)
			}
		}
		if len(positions) > 0 {
			e.putU32(luhPositionsPtrOffset, e.words())
			e.u16(uint16(len(positions)))
			for _, p := range positions {
				e.str(p.TargetHardwareID)
				e.strs(p.Positions)
			}
		}
	}

	e.putU32(luhDataFilesPtrOffset, e.words())
	appendEntries(e, len(f.DataFiles), "data files", func(i int, sub *encoder) {
		df := f.DataFiles[i]
		sub.str(df.Filename)
		sub.str(df.PartNumber)
		words := (df.Length + 1) / 2
		if words > math.MaxUint32 {
			if !supp345 {
				sub.fail(arinc665.FormatErrorf("data file %s: %d bytes too large for %s", df.Filename, df.Length, f.Version))
				return
			}
			words = math.MaxUint32
		}
		sub.u32(uint32(words))
		sub.u16(df.Crc)
		if supp345 {
			sub.u64(df.Length)
			sub.checkValue(df.CheckValue)
		}
	})

	if len(f.SupportFiles) > 0 {
		e.putU32(luhSupportFilesPtrOffset, e.words())
		appendEntries(e, len(f.SupportFiles), "support files", func(i int, sub *encoder) {
			sf := f.SupportFiles[i]
			if sf.Length > math.MaxUint32 {
				sub.fail(arinc665.FormatErrorf("support file %s: %d bytes too large", sf.Filename, sf.Length))
				return
			}
			sub.str(sf.Filename)
			sub.str(sf.PartNumber)
			sub.u32(uint32(sf.Length))
			sub.u16(sf.Crc)
			if supp345 {
				sub.checkValue(sf.CheckValue)
			}
		})
	}

	if len(f.UserDefinedData) > 0 {
		e.putU32(luhUserDataPtrOffset, e.words())
		e.raw(f.UserDefinedData)
	}

	if supp345 && !f.LoadCheckValueOmitted {
		e.putU32(luhLoadCheckValuePtrOffset, e.words())
		e.checkValue(f.LoadCheckValue)
	}
	if e.err != nil {
		return nil, e.err
	}

	finishHeader(e, arinc665.FileTypeLoadUploadHeader, f.Version, 2+loadCrcSize)
	if e.err != nil {
		return nil, e.err
	}
	appendFileCrc(e)
	e.u32(f.LoadCrc)
	return e.buf, nil
}

func DecodeLoadHeaderFile(raw []byte) (*LoadHeaderFile, error) {
	const t = arinc665.FileTypeLoadUploadHeader
	v, err := checkHeader(raw, t, luhHeaderSize2+loadHeaderFileCrcOffset, loadHeaderFileCrcOffset)
	if err != nil {
		return nil, err
	}
	supp345 := v == arinc665.Supplement345
	if supp345 && len(raw) < luhHeaderSize345+loadHeaderFileCrcOffset {
		return nil, arinc665.FormatErrorf("%s: %d bytes, need at least %d", t, len(raw), luhHeaderSize345+loadHeaderFileCrcOffset)
	}
	bodyEnd := len(raw) - loadHeaderFileCrcOffset
	body := raw[:bodyEnd]

	f := &LoadHeaderFile{
		Version:        v,
		PartFlags:      binary.BigEndian.Uint16(raw[luhPartFlagsOffset:]),
		LoadCheckValue: checkvalue.None,
		LoadCrc:        binary.BigEndian.Uint32(raw[len(raw)-loadCrcSize:]),
	}
	if !supp345 && f.PartFlags != 0 {
		return nil, arinc665.FormatErrorf("%s: spare field 0x%04X", t, f.PartFlags)
	}

	pnOff, err := ptrWords(raw, luhPartNumberPtrOffset, bodyEnd, "part number", false)
	if err != nil {
		return nil, err
	}
	thwOff, err := ptrWords(raw, luhTargetsPtrOffset, bodyEnd, "target hardware IDs", false)
	if err != nil {
		return nil, err
	}
	dataOff, err := ptrWords(raw, luhDataFilesPtrOffset, bodyEnd, "data files", false)
	if err != nil {
		return nil, err
	}
	supportOff, err := ptrWords(raw, luhSupportFilesPtrOffset, bodyEnd, "support files", true)
	if err != nil {
		return nil, err
	}
	uddOff, err := ptrWords(raw, luhUserDataPtrOffset, bodyEnd, "user defined data", true)
	if err != nil {
		return nil, err
	}
	var loadTypeOff, positionsOff, lcvOff int
	if supp345 {
		if loadTypeOff, err = ptrWords(raw, luhLoadTypePtrOffset, bodyEnd, "load type", true); err != nil {
			return nil, err
		}
		if positionsOff, err = ptrWords(raw, luhPositionsPtrOffset, bodyEnd, "target hardware ID positions", true); err != nil {
			return nil, err
		}
		if lcvOff, err = ptrWords(raw, luhLoadCheckValuePtrOffset, bodyEnd, "load check value", true); err != nil {
			return nil, err
		}
	}

	d := newDecoder(body, pnOff)
	f.PartNumber = d.str()
	if d.err != nil {
		return nil, d.err
	}

	if loadTypeOff != 0 {
		d = newDecoder(body, loadTypeOff)
		lt := &LoadType{Description: d.str(), ID: d.u16()}
		if d.err != nil {
			return nil, d.err
		}
		f.LoadType = lt
	}

	d = newDecoder(body, thwOff)
	f.TargetHardwareIDs = d.strs()
	if d.err != nil {
		return nil, d.err
	}

	if positionsOff != 0 {
		d = newDecoder(body, positionsOff)
		n := int(d.u16())
		for i := 0; i < n && d.err == nil; i++ {
			p := TargetHardwareIDPositions{TargetHardwareID: d.str(), Positions: d.strs()}
			f.TargetHardwareIDPositions = append(f.TargetHardwareIDPositions, p)
		}
		if d.err != nil {
			return nil, d.err
		}
	}

	d = newDecoder(body, dataOff)
	decodeEntries(d, "data files", func(i int, d *decoder) {
		df := LoadFileInfo{Filename: d.str(), PartNumber: d.str()}
		words := uint64(d.u32())
		df.Crc = d.u16()
		if !supp345 {
			df.Length = words * 2
		} else {
			df.Length = d.u64()
			df.CheckValue = d.checkValue()
			if expected := (df.Length + 1) / 2; d.err == nil && expected <= math.MaxUint32 && expected != words {
				d.fail(arinc665.FormatErrorf("data file %s: %d words for %d bytes", df.Filename, words, df.Length))
			}
		}
		f.DataFiles = append(f.DataFiles, df)
	})
	if d.err != nil {
		return nil, d.err
	}

	if supportOff != 0 {
		d = newDecoder(body, supportOff)
		decodeEntries(d, "support files", func(i int, d *decoder) {
			sf := LoadFileInfo{Filename: d.str(), PartNumber: d.str()}
			sf.Length = uint64(d.u32())
			sf.Crc = d.u16()
			if supp345 {
				sf.CheckValue = d.checkValue()
			}
			f.SupportFiles = append(f.SupportFiles, sf)
		})
		if d.err != nil {
			return nil, d.err
		}
	}

	if uddOff != 0 {
		uddEnd := bodyEnd
		if lcvOff != 0 {
			uddEnd = lcvOff
		}
		if uddOff > uddEnd {
			return nil, arinc665.FormatErrorf("%s: user defined data pointer behind load check value", t)
		}
		f.UserDefinedData = append([]byte(nil), raw[uddOff:uddEnd]...)
	}

	f.LoadCheckValueOmitted = supp345 && lcvOff == 0
	if lcvOff != 0 {
		d = newDecoder(body, lcvOff)
		f.LoadCheckValue = d.checkValue()
		if d.err != nil {
			return nil, d.err
		}
	}
	return f, nil
}

// ComputeLoadCrc calculates the load CRC over the header up to the load CRC
// field followed by the contents of the data and support files in header
// order.
func ComputeLoadCrc(raw []byte, contents ...[]byte) (uint32, error) {
	head, err := LoadCrcInput(raw)
	if err != nil {
		return 0, err
	}
	c := checkvalue.NewCrc32()
	c.Write(head)
	for _, b := range contents {
		c.Write(b)
	}
	return c.Sum32(), nil
}

// LoadCrcInput returns the part of an encoded load header covered by the load
// CRC.
func LoadCrcInput(raw []byte) ([]byte, error) {
	if len(raw) < luhHeaderSize2+loadHeaderFileCrcOffset {
		return nil, arinc665.FormatErrorf("load header of %d bytes too short", len(raw))
	}
	return raw[:len(raw)-loadCrcSize], nil
}

// SetLoadCrc patches the load CRC of an encoded load header in place.
func SetLoadCrc(raw []byte, crc uint32) error {
	if len(raw) < luhHeaderSize2+loadHeaderFileCrcOffset {
		return arinc665.FormatErrorf("load header of %d bytes too short", len(raw))
	}
	binary.BigEndian.PutUint32(raw[len(raw)-loadCrcSize:], crc)
	return nil
}

func loadCheckValueRegion(raw []byte) (int, int, error) {
	v, err := checkHeader(raw, arinc665.FileTypeLoadUploadHeader, luhHeaderSize2+loadHeaderFileCrcOffset, loadHeaderFileCrcOffset)
	if err != nil && !errors.Is(err, arinc665.ErrIntegrity) {
		return 0, 0, err
	}
	if v != arinc665.Supplement345 {
		return 0, 0, arinc665.FormatErrorf("load check value requires %s, header is %s", arinc665.Supplement345, v)
	}
	if len(raw) < luhHeaderSize345+loadHeaderFileCrcOffset {
		return 0, 0, arinc665.FormatErrorf("load header of %d bytes too short", len(raw))
	}
	end := len(raw) - loadHeaderFileCrcOffset
	off, err := ptrWords(raw, luhLoadCheckValuePtrOffset, end, "load check value", false)
	if err != nil {
		return 0, 0, err
	}
	return off, end, nil
}

// LoadCheckValueInput returns the part of an encoded Supplement 3/4/5 load
// header covered by the load check value.
func LoadCheckValueInput(raw []byte) ([]byte, error) {
	off, _, err := loadCheckValueRegion(raw)
	if err != nil {
		return nil, err
	}
	return raw[:off], nil
}

// ComputeLoadCheckValue calculates the load check value of type t over the
// header up to the load check value field followed by the file contents.
func ComputeLoadCheckValue(raw []byte, t checkvalue.Type, contents ...[]byte) (checkvalue.CheckValue, error) {
	head, err := LoadCheckValueInput(raw)
	if err != nil {
		return checkvalue.None, err
	}
	g, err := checkvalue.NewGenerator(t)
	if err != nil {
		return checkvalue.None, err
	}
	g.Write(head)
	for _, b := range contents {
		g.Write(b)
	}
	return g.CheckValue(), nil
}

// SetLoadCheckValue writes cv into the space reserved by Encode and updates
// the file CRC. The reserved space must match the encoded size of cv, so
// encode the header with a placeholder of the same type first.
func SetLoadCheckValue(raw []byte, cv checkvalue.CheckValue) error {
	off, end, err := loadCheckValueRegion(raw)
	if err != nil {
		return err
	}
	enc, err := checkvalue.Encode(cv)
	if err != nil {
		return err
	}
	if end-off != len(enc) {
		return arinc665.FormatErrorf("load check value needs %d bytes, %d reserved", len(enc), end-off)
	}
	copy(raw[off:end], enc)
	binary.BigEndian.PutUint16(raw[end:], checkvalue.ComputeCrc16(raw[:end]))
	return nil
}

// Placeholder returns a zero filled check value of type t that reserves space
// for SetLoadCheckValue.
func Placeholder(t checkvalue.Type) checkvalue.CheckValue {
	if t == checkvalue.NotUsed || !t.Valid() {
		return checkvalue.None
	}
	return checkvalue.CheckValue{Type: t, Value: make([]byte, checkvalue.Size(t))}
}
