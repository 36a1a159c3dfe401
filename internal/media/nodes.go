package media

import (
	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
)

// Directory is a handle to a directory node. The zero value is invalid.
type Directory struct {
	ms *MediaSet
	id NodeID
}

func (d Directory) ID() NodeID          { return d.id }
func (d Directory) Kind() Kind          { return KindDirectory }
func (d Directory) MediaSet() *MediaSet { return d.ms }
func (d Directory) IsRoot() bool        { return d.ms != nil && d.id == rootID }

func (d Directory) Valid() bool {
	if d.ms == nil {
		return false
	}
	e := d.ms.liveEntry(d.id)
	return e != nil && e.kind == KindDirectory
}

func (d Directory) Name() string {
	if e := d.ms.entry(d.id); e != nil {
		return e.name
	}
	return ""
}

func (d Directory) Path() string {
	return d.ms.path(d.id)
}

// Parent returns false for the root directory.
func (d Directory) Parent() (Directory, bool) {
	return parentOf(d.ms, d.id)
}

// Children returns the direct children in insertion order.
func (d Directory) Children() []Entry {
	e := d.ms.liveEntry(d.id)
	if e == nil {
		return nil
	}
	out := make([]Entry, 0, len(e.children))
	for _, c := range e.children {
		if h := d.ms.handle(c); h != nil {
			out = append(out, h)
		}
	}
	return out
}

func (d Directory) Subdirectories() []Directory {
	var out []Directory
	for _, c := range d.Children() {
		if sub, ok := c.(Directory); ok {
			out = append(out, sub)
		}
	}
	return out
}

// Lookup finds a direct child by name.
func (d Directory) Lookup(name string) (Entry, bool) {
	e := d.ms.liveEntry(d.id)
	if e == nil {
		return nil, false
	}
	for _, c := range e.children {
		if ce := d.ms.liveEntry(c); ce != nil && ce.name == name {
			return d.ms.handle(c), true
		}
	}
	return nil, false
}

func parentOf(ms *MediaSet, id NodeID) (Directory, bool) {
	e := ms.liveEntry(id)
	if e == nil || id == rootID {
		return Directory{}, false
	}
	return Directory{ms: ms, id: e.parent}, true
}

// File is a handle to a regular file, load or batch node.
type File struct {
	ms *MediaSet
	id NodeID
}

func (f File) ID() NodeID          { return f.id }
func (f File) MediaSet() *MediaSet { return f.ms }

func (f File) Valid() bool {
	if f.ms == nil {
		return false
	}
	e := f.ms.liveEntry(f.id)
	return e != nil && e.kind != KindDirectory
}

func (f File) Kind() Kind {
	if e := f.ms.entry(f.id); e != nil {
		return e.kind
	}
	return 0
}

// FileType maps the node kind to the protocol file type; regular files return
// FileTypeInvalid.
func (f File) FileType() arinc665.FileType {
	switch f.Kind() {
	case KindLoad:
		return arinc665.FileTypeLoadUploadHeader
	case KindBatch:
		return arinc665.FileTypeBatchFile
	}
	return arinc665.FileTypeInvalid
}

func (f File) Name() string {
	if e := f.ms.entry(f.id); e != nil {
		return e.name
	}
	return ""
}

func (f File) Path() string {
	return f.ms.path(f.id)
}

func (f File) Parent() (Directory, bool) {
	return parentOf(f.ms, f.id)
}

func (f File) Medium() arinc665.MediumNumber {
	if e := f.ms.entry(f.id); e != nil {
		return e.medium
	}
	return 0
}

// SetMedium moves the file to another existing medium.
func (f File) SetMedium(n arinc665.MediumNumber) error {
	e := f.ms.liveEntry(f.id)
	if e == nil {
		return arinc665.InvalidReferenceErrorf("file %d does not exist", f.id)
	}
	if _, ok := f.ms.Medium(n); !ok {
		return arinc665.InvalidReferenceErrorf("%s: medium %s does not exist", e.name, n)
	}
	e.medium = n
	return nil
}

// PartNumber is set for loads and batches.
func (f File) PartNumber() string {
	if e := f.ms.entry(f.id); e != nil {
		return e.partNumber
	}
	return ""
}

func (f File) SetPartNumber(pn string) {
	if e := f.ms.liveEntry(f.id); e != nil {
		e.partNumber = pn
	}
}

// Crc returns the CRC-16 recorded for the file, if any. Decompiled media sets
// record the FILES.LUM value; the compiler records the value it wrote.
func (f File) Crc() (uint16, bool) {
	if e := f.ms.entry(f.id); e != nil {
		return e.crc, e.hasCrc
	}
	return 0, false
}

func (f File) SetCrc(crc uint16) {
	if e := f.ms.liveEntry(f.id); e != nil {
		e.crc, e.hasCrc = crc, true
	}
}

// CheckValue returns the recorded FILES.LUM check value.
func (f File) CheckValue() checkvalue.CheckValue {
	if e := f.ms.entry(f.id); e != nil && e.checkValue.Type != checkvalue.NotUsed {
		return e.checkValue
	}
	return checkvalue.None
}

func (f File) SetCheckValue(cv checkvalue.CheckValue) {
	if e := f.ms.liveEntry(f.id); e != nil {
		e.checkValue = cv
	}
}

// AsLoad converts the handle when it refers to a load.
func (f File) AsLoad() (Load, bool) {
	if f.Kind() != KindLoad {
		return Load{}, false
	}
	return Load{f}, true
}

func (f File) AsBatch() (Batch, bool) {
	if f.Kind() != KindBatch {
		return Batch{}, false
	}
	return Batch{f}, true
}
