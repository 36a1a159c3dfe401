package media

import (
	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
	"example.com/arinc665/internal/files"
)

type loadFileRef struct {
	file       NodeID
	partNumber string
}

type thwEntry struct {
	id        string
	positions []string
}

type loadEntry struct {
	partFlags    uint16
	loadType     *LoadType
	targets      []thwEntry
	dataFiles    []loadFileRef
	supportFiles []loadFileRef
	udd          []byte

	// checkvalue.Invalid means "use the media set default".
	loadCheckValueType  checkvalue.Type
	filesCheckValueType checkvalue.Type
}

func newLoadEntry() *loadEntry {
	return &loadEntry{loadCheckValueType: checkvalue.Invalid, filesCheckValueType: checkvalue.Invalid}
}

func (l *loadEntry) referencesAny(ids map[NodeID]bool) bool {
	for _, r := range l.dataFiles {
		if ids[r.file] {
			return true
		}
	}
	for _, r := range l.supportFiles {
		if ids[r.file] {
			return true
		}
	}
	return false
}

func (l *loadEntry) drop(ids map[NodeID]bool) {
	keep := func(refs []loadFileRef) []loadFileRef {
		out := refs[:0]
		for _, r := range refs {
			if !ids[r.file] {
				out = append(out, r)
			}
		}
		return out
	}
	l.dataFiles = keep(l.dataFiles)
	l.supportFiles = keep(l.supportFiles)
}

// Load is a handle to a load node; the node name is the load header filename.
type Load struct {
	File
}

// LoadFile is a data or support file entry of a load.
type LoadFile struct {
	File       File
	PartNumber string
}

func (l Load) data() *loadEntry {
	if e := l.ms.entry(l.id); e != nil && e.load != nil {
		return e.load
	}
	return nil
}

func (l Load) liveData() (*loadEntry, error) {
	e := l.ms.liveEntry(l.id)
	if e == nil || e.load == nil {
		return nil, arinc665.InvalidReferenceErrorf("load %d does not exist", l.id)
	}
	return e.load, nil
}

func (l Load) references(id NodeID) bool {
	d := l.data()
	return d != nil && d.referencesAny(map[NodeID]bool{id: true})
}

func (l Load) files(refs []loadFileRef) []LoadFile {
	out := make([]LoadFile, 0, len(refs))
	for _, r := range refs {
		out = append(out, LoadFile{File: File{ms: l.ms, id: r.file}, PartNumber: r.partNumber})
	}
	return out
}

func (l Load) DataFiles() []LoadFile {
	if d := l.data(); d != nil {
		return l.files(d.dataFiles)
	}
	return nil
}

func (l Load) SupportFiles() []LoadFile {
	if d := l.data(); d != nil {
		return l.files(d.supportFiles)
	}
	return nil
}

func (l Load) checkFile(f File) error {
	if f.ms != l.ms {
		return arinc665.InvalidReferenceErrorf("load %s: file %s belongs to another media set", l.Name(), f.Name())
	}
	e := l.ms.liveEntry(f.id)
	if e == nil {
		return arinc665.InvalidReferenceErrorf("load %s: file %d does not exist", l.Name(), f.id)
	}
	if e.kind != KindFile {
		return arinc665.InvalidReferenceErrorf("load %s: %s is a %s, not a regular file", l.Name(), e.name, e.kind)
	}
	return nil
}

// AddDataFile appends f to the data files of the load.
func (l Load) AddDataFile(f File, partNumber string) error {
	d, err := l.liveData()
	if err != nil {
		return err
	}
	if err := l.checkFile(f); err != nil {
		return err
	}
	d.dataFiles = append(d.dataFiles, loadFileRef{file: f.id, partNumber: partNumber})
	return nil
}

func (l Load) AddSupportFile(f File, partNumber string) error {
	d, err := l.liveData()
	if err != nil {
		return err
	}
	if err := l.checkFile(f); err != nil {
		return err
	}
	d.supportFiles = append(d.supportFiles, loadFileRef{file: f.id, partNumber: partNumber})
	return nil
}

// TargetHardwareIDs returns the THW IDs in insertion order.
func (l Load) TargetHardwareIDs() []string {
	d := l.data()
	if d == nil {
		return nil
	}
	var out []string
	for _, t := range d.targets {
		out = append(out, t.id)
	}
	return out
}

// TargetHardwareIDPositions returns the THW IDs that are restricted to
// positions.
func (l Load) TargetHardwareIDPositions() []files.TargetHardwareIDPositions {
	d := l.data()
	if d == nil {
		return nil
	}
	var out []files.TargetHardwareIDPositions
	for _, t := range d.targets {
		if len(t.positions) > 0 {
			out = append(out, files.TargetHardwareIDPositions{
				TargetHardwareID: t.id,
				Positions:        append([]string(nil), t.positions...),
			})
		}
	}
	return out
}

// AddTargetHardwareID declares a THW ID. Adding a known ID merges the
// positions.
func (l Load) AddTargetHardwareID(id string, positions ...string) error {
	d, err := l.liveData()
	if err != nil {
		return err
	}
	if id == "" {
		return arinc665.InvalidReferenceErrorf("load %s: empty target hardware ID", l.Name())
	}
	for i := range d.targets {
		if d.targets[i].id == id {
			for _, p := range positions {
				if !contains(d.targets[i].positions, p) {
					d.targets[i].positions = append(d.targets[i].positions, p)
				}
			}
			return nil
		}
	}
	d.targets = append(d.targets, thwEntry{id: id, positions: append([]string(nil), positions...)})
	return nil
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func (l Load) PartFlags() uint16 {
	if d := l.data(); d != nil {
		return d.partFlags
	}
	return 0
}

func (l Load) SetPartFlags(flags uint16) {
	if d := l.data(); d != nil {
		d.partFlags = flags
	}
}

func (l Load) LoadType() *LoadType {
	if d := l.data(); d != nil && d.loadType != nil {
		lt := *d.loadType
		return &lt
	}
	return nil
}

func (l Load) SetLoadType(lt *LoadType) {
	if d := l.data(); d != nil {
		if lt == nil {
			d.loadType = nil
			return
		}
		c := *lt
		d.loadType = &c
	}
}

func (l Load) UserDefinedData() []byte {
	if d := l.data(); d != nil {
		return d.udd
	}
	return nil
}

// SetUserDefinedData pads odd input with a zero byte.
func (l Load) SetUserDefinedData(b []byte) {
	if d := l.data(); d != nil {
		d.udd = padEven(b)
	}
}

// LoadCheckValueType returns the load's own setting or the media set default.
func (l Load) LoadCheckValueType() checkvalue.Type {
	if d := l.data(); d != nil && d.loadCheckValueType != checkvalue.Invalid {
		return d.loadCheckValueType
	}
	return l.ms.LoadsCheckValueType()
}

func (l Load) SetLoadCheckValueType(t checkvalue.Type) {
	if d := l.data(); d != nil {
		d.loadCheckValueType = t
	}
}

// FilesCheckValueType applies to the data and support file entries of the
// load header.
func (l Load) FilesCheckValueType() checkvalue.Type {
	if d := l.data(); d != nil && d.filesCheckValueType != checkvalue.Invalid {
		return d.filesCheckValueType
	}
	return l.ms.FilesCheckValueType()
}

func (l Load) SetFilesCheckValueType(t checkvalue.Type) {
	if d := l.data(); d != nil {
		d.filesCheckValueType = t
	}
}
