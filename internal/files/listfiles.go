package files

import (
	"encoding/binary"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
)

const (
	listSpareOffset          = 6
	listMediaInfoPtrOffset   = 8
	listEntriesPtrOffset     = 12
	listUserDataPtrOffset    = 16
	listCheckValuePtrOffset  = 20
	listHeaderSize           = 20
	listHeaderSizeCheckValue = 24
)

// MediaSetInformation is the part number and medium position every list file
// carries.
type MediaSetInformation struct {
	PartNumber              string
	MediaSequenceNumber     arinc665.MediumNumber
	NumberOfMediaSetMembers arinc665.MediumNumber
}

func (m MediaSetInformation) validate() error {
	if !m.MediaSequenceNumber.Valid() || !m.NumberOfMediaSetMembers.Valid() {
		return arinc665.FormatErrorf("media sequence %d of %d out of range", m.MediaSequenceNumber, m.NumberOfMediaSetMembers)
	}
	if m.MediaSequenceNumber > m.NumberOfMediaSetMembers {
		return arinc665.FormatErrorf("media sequence %d exceeds %d members", m.MediaSequenceNumber, m.NumberOfMediaSetMembers)
	}
	return nil
}

// FileInfo is one entry of FILES.LUM.
type FileInfo struct {
	Filename             string
	PathName             string
	MemberSequenceNumber arinc665.MediumNumber
	Crc                  uint16
	// CheckValue is only encoded for Supplement 3/4/5.
	CheckValue checkvalue.CheckValue
}

// Equal compares the identity of two entries: filename, path and medium.
func (fi FileInfo) Equal(o FileInfo) bool {
	return fi.Filename == o.Filename && fi.PathName == o.PathName && fi.MemberSequenceNumber == o.MemberSequenceNumber
}

// FileListFile is the FILES.LUM record.
type FileListFile struct {
	Version  arinc665.SupportedVersion
	MediaSet MediaSetInformation
	Files    []FileInfo
	// UserDefinedData must have an even length.
	UserDefinedData []byte
	// CheckValueType selects the check value over the file itself. Only
	// encoded for Supplement 3/4/5.
	CheckValueType checkvalue.Type
	// CheckValueOmitted selects the form with a zero check value pointer and
	// no check value block. Decode sets it for such files.
	CheckValueOmitted bool
}

// LoadInfo is one entry of LOADS.LUM.
type LoadInfo struct {
	PartNumber           string
	HeaderFilename       string
	MemberSequenceNumber arinc665.MediumNumber
	TargetHardwareIDs    []string
}

// Matches reports whether fi is the load header listed by li.
func (li LoadInfo) Matches(fi FileInfo) bool {
	return li.HeaderFilename == fi.Filename && li.MemberSequenceNumber == fi.MemberSequenceNumber
}

// LoadListFile is the LOADS.LUM record.
type LoadListFile struct {
	Version         arinc665.SupportedVersion
	MediaSet        MediaSetInformation
	Loads           []LoadInfo
	UserDefinedData []byte
}

// BatchInfo is one entry of BATCHES.LUM.
type BatchInfo struct {
	PartNumber           string
	Filename             string
	MemberSequenceNumber arinc665.MediumNumber
}

func (bi BatchInfo) Matches(fi FileInfo) bool {
	return bi.Filename == fi.Filename && bi.MemberSequenceNumber == fi.MemberSequenceNumber
}

// BatchListFile is the BATCHES.LUM record.
type BatchListFile struct {
	Version         arinc665.SupportedVersion
	MediaSet        MediaSetInformation
	Batches         []BatchInfo
	UserDefinedData []byte
}

func (f *FileListFile) Encode() ([]byte, error) {
	var cv *listCheckValue
	if f.Version == arinc665.Supplement345 {
		if f.CheckValueOmitted && f.CheckValueType != checkvalue.NotUsed {
			return nil, arinc665.FormatErrorf("%s: check value %s with omitted pointer", arinc665.FileTypeFileList, f.CheckValueType)
		}
		cv = &listCheckValue{typ: f.CheckValueType, omitted: f.CheckValueOmitted}
	}
	return encodeList(arinc665.FileTypeFileList, f.Version, f.MediaSet, f.UserDefinedData, cv, func(e *encoder) {
		appendEntries(e, len(f.Files), "files", func(i int, sub *encoder) {
			fi := f.Files[i]
			if !fi.MemberSequenceNumber.Valid() {
				sub.fail(arinc665.FormatErrorf("file %s: member sequence number 0", fi.Filename))
				return
			}
			sub.str(fi.Filename)
			sub.str(fi.PathName)
			sub.u16(uint16(fi.MemberSequenceNumber))
			sub.u16(fi.Crc)
			if f.Version == arinc665.Supplement345 {
				sub.checkValue(fi.CheckValue)
			}
		})
	})
}

func DecodeFileListFile(raw []byte) (*FileListFile, error) {
	fr, err := decodeList(raw, arinc665.FileTypeFileList)
	if err != nil {
		return nil, err
	}
	f := &FileListFile{
		Version:           fr.version,
		MediaSet:          fr.info,
		UserDefinedData:   fr.udd,
		CheckValueType:    fr.checkValue.Type,
		CheckValueOmitted: fr.checkValueOmitted,
	}
	d := fr.entries
	decodeEntries(d, "files", func(i int, d *decoder) {
		fi := FileInfo{Filename: d.str(), PathName: d.str()}
		fi.MemberSequenceNumber = memberSequence(d, fi.Filename)
		fi.Crc = d.u16()
		if f.Version == arinc665.Supplement345 {
			fi.CheckValue = d.checkValue()
		}
		f.Files = append(f.Files, fi)
	})
	if d.err != nil {
		return nil, d.err
	}
	return f, nil
}

func (f *LoadListFile) Encode() ([]byte, error) {
	return encodeList(arinc665.FileTypeLoadList, f.Version, f.MediaSet, f.UserDefinedData, nil, func(e *encoder) {
		appendEntries(e, len(f.Loads), "loads", func(i int, sub *encoder) {
			li := f.Loads[i]
			if !li.MemberSequenceNumber.Valid() {
				sub.fail(arinc665.FormatErrorf("load %s: member sequence number 0", li.PartNumber))
				return
			}
			sub.str(li.PartNumber)
			sub.str(li.HeaderFilename)
			sub.u16(uint16(li.MemberSequenceNumber))
			sub.strs(li.TargetHardwareIDs)
		})
	})
}

func DecodeLoadListFile(raw []byte) (*LoadListFile, error) {
	fr, err := decodeList(raw, arinc665.FileTypeLoadList)
	if err != nil {
		return nil, err
	}
	f := &LoadListFile{Version: fr.version, MediaSet: fr.info, UserDefinedData: fr.udd}
	d := fr.entries
	decodeEntries(d, "loads", func(i int, d *decoder) {
		li := LoadInfo{PartNumber: d.str(), HeaderFilename: d.str()}
		li.MemberSequenceNumber = memberSequence(d, li.HeaderFilename)
		li.TargetHardwareIDs = d.strs()
		f.Loads = append(f.Loads, li)
	})
	if d.err != nil {
		return nil, d.err
	}
	return f, nil
}

func (f *BatchListFile) Encode() ([]byte, error) {
	return encodeList(arinc665.FileTypeBatchList, f.Version, f.MediaSet, f.UserDefinedData, nil, func(e *encoder) {
		appendEntries(e, len(f.Batches), "batches", func(i int, sub *encoder) {
			bi := f.Batches[i]
			if !bi.MemberSequenceNumber.Valid() {
				sub.fail(arinc665.FormatErrorf("batch %s: member sequence number 0", bi.PartNumber))
				return
			}
			sub.str(bi.PartNumber)
			sub.str(bi.Filename)
			sub.u16(uint16(bi.MemberSequenceNumber))
		})
	})
}

func DecodeBatchListFile(raw []byte) (*BatchListFile, error) {
	fr, err := decodeList(raw, arinc665.FileTypeBatchList)
	if err != nil {
		return nil, err
	}
	f := &BatchListFile{Version: fr.version, MediaSet: fr.info, UserDefinedData: fr.udd}
	d := fr.entries
	decodeEntries(d, "batches", func(i int, d *decoder) {
		bi := BatchInfo{PartNumber: d.str(), Filename: d.str()}
		bi.MemberSequenceNumber = memberSequence(d, bi.Filename)
		f.Batches = append(f.Batches, bi)
	})
	if d.err != nil {
		return nil, d.err
	}
	return f, nil
}

func memberSequence(d *decoder, name string) arinc665.MediumNumber {
	v := d.u16()
	if d.err != nil {
		return 0
	}
	if v < arinc665.MinMediumNumber || v > arinc665.MaxMediumNumber {
		d.fail(arinc665.FormatErrorf("%s: member sequence number %d out of range", name, v))
		return 0
	}
	return arinc665.MediumNumber(v)
}

// listCheckValue describes the file check value of a list file header that
// reserves the check value pointer.
type listCheckValue struct {
	typ     checkvalue.Type
	omitted bool
}

// encodeList lays out header, media information, entries, user defined data
// and, when cv is set, the file check value followed by the file CRC.
func encodeList(t arinc665.FileType, v arinc665.SupportedVersion, info MediaSetInformation, udd []byte, cv *listCheckValue, entries func(e *encoder)) ([]byte, error) {
	if err := info.validate(); err != nil {
		return nil, err
	}
	if len(udd)%2 != 0 {
		return nil, arinc665.FormatErrorf("%s: user defined data has odd size %d", t, len(udd))
	}
	hdr := listHeaderSize
	if cv != nil {
		hdr = listHeaderSizeCheckValue
	}
	e := newEncoder(hdr)

	e.putU32(listMediaInfoPtrOffset, e.words())
	e.str(info.PartNumber)
	e.u8(uint8(info.MediaSequenceNumber))
	e.u8(uint8(info.NumberOfMediaSetMembers))

	e.putU32(listEntriesPtrOffset, e.words())
	entries(e)

	if len(udd) > 0 {
		e.putU32(listUserDataPtrOffset, e.words())
		e.raw(udd)
	}
	if e.err != nil {
		return nil, e.err
	}

	if cv != nil && !cv.omitted {
		e.putU32(listCheckValuePtrOffset, e.words())
		finishHeader(e, t, v, checkvalue.EncodedSize(cv.typ)+2)
		if e.err != nil {
			return nil, e.err
		}
		value, err := checkvalue.Compute(cv.typ, e.buf)
		if err != nil {
			return nil, err
		}
		e.checkValue(value)
	} else {
		finishHeader(e, t, v, 2)
	}
	if e.err != nil {
		return nil, e.err
	}
	appendFileCrc(e)
	return e.buf, nil
}

type listFrame struct {
	version    arinc665.SupportedVersion
	info       MediaSetInformation
	entries    *decoder
	udd        []byte
	checkValue checkvalue.CheckValue
	// checkValueOmitted is set when the header reserves the check value
	// pointer but leaves it zero.
	checkValueOmitted bool
}

func decodeList(raw []byte, t arinc665.FileType) (*listFrame, error) {
	v, err := checkHeader(raw, t, listHeaderSize+2, defaultFileCrcOffset)
	if err != nil {
		return nil, err
	}
	withCheckValue := t == arinc665.FileTypeFileList && v == arinc665.Supplement345
	if withCheckValue && len(raw) < listHeaderSizeCheckValue+2 {
		return nil, arinc665.FormatErrorf("%s: %d bytes, need at least %d", t, len(raw), listHeaderSizeCheckValue+2)
	}
	if spare := binary.BigEndian.Uint16(raw[listSpareOffset:]); spare != 0 {
		return nil, arinc665.FormatErrorf("%s: spare field 0x%04X", t, spare)
	}
	bodyEnd := len(raw) - defaultFileCrcOffset
	body := raw[:bodyEnd]

	infoOff, err := ptrWords(raw, listMediaInfoPtrOffset, bodyEnd, "media information", false)
	if err != nil {
		return nil, err
	}
	entriesOff, err := ptrWords(raw, listEntriesPtrOffset, bodyEnd, "list", false)
	if err != nil {
		return nil, err
	}
	uddOff, err := ptrWords(raw, listUserDataPtrOffset, bodyEnd, "user defined data", true)
	if err != nil {
		return nil, err
	}
	cvOff := 0
	if withCheckValue {
		if cvOff, err = ptrWords(raw, listCheckValuePtrOffset, bodyEnd, "check value", true); err != nil {
			return nil, err
		}
	}

	fr := &listFrame{version: v, checkValue: checkvalue.None, checkValueOmitted: withCheckValue && cvOff == 0}

	d := newDecoder(body, infoOff)
	fr.info.PartNumber = d.str()
	fr.info.MediaSequenceNumber = arinc665.MediumNumber(d.u8())
	fr.info.NumberOfMediaSetMembers = arinc665.MediumNumber(d.u8())
	if d.err != nil {
		return nil, d.err
	}
	if err := fr.info.validate(); err != nil {
		return nil, err
	}

	if uddOff != 0 {
		uddEnd := bodyEnd
		if cvOff != 0 {
			uddEnd = cvOff
		}
		if uddOff > uddEnd {
			return nil, arinc665.FormatErrorf("%s: user defined data pointer behind check value", t)
		}
		fr.udd = append([]byte(nil), raw[uddOff:uddEnd]...)
	}

	if cvOff != 0 {
		cd := newDecoder(body, cvOff)
		fr.checkValue = cd.checkValue()
		if cd.err != nil {
			return nil, cd.err
		}
		ok, err := checkvalue.Verify(fr.checkValue, raw[:cvOff])
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, arinc665.IntegrityErrorf("%s: check value mismatch", t)
		}
	}

	fr.entries = newDecoder(body, entriesOff)
	return fr, nil
}
