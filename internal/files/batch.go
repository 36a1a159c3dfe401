package files

import (
	"encoding/binary"

	"example.com/arinc665/internal/arinc665"
)

const (
	lubSpareOffset         = 6
	lubPartNumberPtrOffset = 8
	lubTargetsPtrOffset    = 12
	lubHeaderSize          = 16
)

type BatchLoadInfo struct {
	HeaderFilename string
	PartNumber     string
}

// BatchTargetInfo lists the loads to upload to one target hardware position.
type BatchTargetInfo struct {
	TargetHardwareIDPosition string
	Loads                    []BatchLoadInfo
}

// BatchFile is the batch (*.LUB) record.
type BatchFile struct {
	Version    arinc665.SupportedVersion
	PartNumber string
	Comment    string
	Targets    []BatchTargetInfo
}

// AddTarget appends loads for a target hardware position. Loads for a
// position that is already listed are merged into its entry.
func (b *BatchFile) AddTarget(position string, loads ...BatchLoadInfo) {
	for i := range b.Targets {
		if b.Targets[i].TargetHardwareIDPosition == position {
			b.Targets[i].Loads = append(b.Targets[i].Loads, loads...)
			return
		}
	}
	b.Targets = append(b.Targets, BatchTargetInfo{
		TargetHardwareIDPosition: position,
		Loads:                    append([]BatchLoadInfo(nil), loads...),
	})
}

func (b *BatchFile) Encode() ([]byte, error) {
	e := newEncoder(lubHeaderSize)

	e.putU32(lubPartNumberPtrOffset, e.words())
	e.str(b.PartNumber)
	e.str(b.Comment)

	e.putU32(lubTargetsPtrOffset, e.words())
	appendEntries(e, len(b.Targets), "targets", func(i int, sub *encoder) {
		target := b.Targets[i]
		if len(target.Loads) > 0xFFFF {
			sub.fail(arinc665.FormatErrorf("target %s: %d loads exceed 65535", target.TargetHardwareIDPosition, len(target.Loads)))
			return
		}
		sub.str(target.TargetHardwareIDPosition)
		sub.u16(uint16(len(target.Loads)))
		for _, l := range target.Loads {
			sub.str(l.HeaderFilename)
			sub.str(l.PartNumber)
		}
	})
	if e.err != nil {
		return nil, e.err
	}

	finishHeader(e, arinc665.FileTypeBatchFile, b.Version, 2)
	if e.err != nil {
		return nil, e.err
	}
	appendFileCrc(e)
	return e.buf, nil
}

func DecodeBatchFile(raw []byte) (*BatchFile, error) {
	const t = arinc665.FileTypeBatchFile
	v, err := checkHeader(raw, t, lubHeaderSize+2, defaultFileCrcOffset)
	if err != nil {
		return nil, err
	}
	if spare := binary.BigEndian.Uint16(raw[lubSpareOffset:]); spare != 0 {
		return nil, arinc665.FormatErrorf("%s: spare field 0x%04X", t, spare)
	}
	bodyEnd := len(raw) - defaultFileCrcOffset
	body := raw[:bodyEnd]

	pnOff, err := ptrWords(raw, lubPartNumberPtrOffset, bodyEnd, "part number", false)
	if err != nil {
		return nil, err
	}
	targetsOff, err := ptrWords(raw, lubTargetsPtrOffset, bodyEnd, "targets", false)
	if err != nil {
		return nil, err
	}

	b := &BatchFile{Version: v}
	d := newDecoder(body, pnOff)
	b.PartNumber = d.str()
	b.Comment = d.str()
	if d.err != nil {
		return nil, d.err
	}

	d = newDecoder(body, targetsOff)
	decodeEntries(d, "targets", func(i int, d *decoder) {
		position := d.str()
		n := int(d.u16())
		loads := make([]BatchLoadInfo, 0, n)
		for j := 0; j < n && d.err == nil; j++ {
			loads = append(loads, BatchLoadInfo{HeaderFilename: d.str(), PartNumber: d.str()})
		}
		if d.err == nil {
			b.AddTarget(position, loads...)
		}
	})
	if d.err != nil {
		return nil, d.err
	}
	return b, nil
}
