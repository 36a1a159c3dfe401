package compiler

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
	"example.com/arinc665/internal/files"
	"example.com/arinc665/internal/media"
)

// Source provides the files of existing media.
type Source interface {
	FileSize(m arinc665.MediumNumber, path string) (int64, error)
	ReadFile(m arinc665.MediumNumber, path string) ([]byte, error)
}

// CheckValues holds every check value found for a file, keyed by media path.
// The FILES.LUM CRC is stored as a CRC16 check value.
type CheckValues map[string][]checkvalue.CheckValue

func (c CheckValues) add(path string, cv checkvalue.CheckValue) {
	if cv.IsNone() {
		return
	}
	for _, have := range c[path] {
		if have.Equal(cv) {
			return
		}
	}
	c[path] = append(c[path], cv)
}

type Decompiler struct {
	// CheckFileIntegrity recomputes CRCs and check values of every file
	// while reading.
	CheckFileIntegrity bool
	// Lenient keeps a load or batch whose protocol file cannot be read,
	// decoded or linked as a node carrying only the part number from its
	// list file. The media lists themselves must still decode.
	Lenient bool
	// OnSkip is called for every load or batch kept by Lenient.
	OnSkip func(path string, err error)
}

// tolerate reports whether err of the load or batch at path may be skipped.
func (d *Decompiler) tolerate(ctx context.Context, path string, err error) bool {
	if !d.Lenient || ctx.Err() != nil {
		return false
	}
	if d.OnSkip != nil {
		d.OnSkip(path, err)
	}
	return true
}

type decompilation struct {
	src        Source
	integrity  bool
	ms         *media.MediaSet
	first      *files.FileListFile
	loadList   *files.LoadListFile
	batchList  *files.BatchListFile
	entries    []files.FileInfo
	loadInfo   map[string]files.LoadInfo
	batchInfo  map[string]files.BatchInfo
	checkValue CheckValues
}

// Decompile rebuilds the media set stored on src.
func (d *Decompiler) Decompile(ctx context.Context, src Source) (*media.MediaSet, CheckValues, error) {
	st := &decompilation{
		src:        src,
		integrity:  d.CheckFileIntegrity,
		loadInfo:   map[string]files.LoadInfo{},
		batchInfo:  map[string]files.BatchInfo{},
		checkValue: CheckValues{},
	}
	if err := st.firstMedium(); err != nil {
		return nil, nil, err
	}
	for n := 2; n <= int(st.first.MediaSet.NumberOfMediaSetMembers); n++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err := st.furtherMedium(arinc665.MediumNumber(n)); err != nil {
			return nil, nil, err
		}
	}
	if err := st.buildTree(); err != nil {
		return nil, nil, err
	}
	for _, l := range st.ms.Loads() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err := st.load(l); err != nil && !d.tolerate(ctx, l.Path(), err) {
			return nil, nil, err
		}
	}
	for _, b := range st.ms.Batches() {
		if err := st.batch(b); err != nil && !d.tolerate(ctx, b.Path(), err) {
			return nil, nil, err
		}
	}
	if err := st.ms.Check(); err != nil {
		return nil, nil, err
	}
	return st.ms, st.checkValue, nil
}

func (st *decompilation) readFileList(m arinc665.MediumNumber) (*files.FileListFile, error) {
	raw, err := st.src.ReadFile(m, "/"+arinc665.ListOfFilesName)
	if err != nil {
		return nil, fmt.Errorf("medium %s: %w", m, err)
	}
	fl, err := files.DecodeFileListFile(raw)
	if err != nil {
		return nil, fmt.Errorf("medium %s %s: %w", m, arinc665.ListOfFilesName, err)
	}
	if fl.MediaSet.MediaSequenceNumber != m {
		return nil, arinc665.FormatErrorf("medium %s: %s claims medium %s", m, arinc665.ListOfFilesName, fl.MediaSet.MediaSequenceNumber)
	}
	return fl, nil
}

func (st *decompilation) firstMedium() error {
	fl, err := st.readFileList(1)
	if err != nil {
		return err
	}
	st.first = fl
	ms := media.New(fl.MediaSet.PartNumber)
	if err := ms.SetNumberOfMedia(int(fl.MediaSet.NumberOfMediaSetMembers), false); err != nil {
		return err
	}
	ms.SetFilesUserDefinedData(fl.UserDefinedData)
	ms.SetListOfFilesCheckValueType(fl.CheckValueType)
	st.ms = ms

	hasLoads, hasBatches := false, false
	for _, fi := range fl.Files {
		switch arinc665.FileTypeOf(fi.Filename) {
		case arinc665.FileTypeFileList:
			return arinc665.FormatErrorf("%s lists itself", arinc665.ListOfFilesName)
		case arinc665.FileTypeLoadList:
			if fi.PathName != `\` {
				return arinc665.FormatErrorf("%s not in the root directory", fi.Filename)
			}
			hasLoads = true
			continue
		case arinc665.FileTypeBatchList:
			if fi.PathName != `\` {
				return arinc665.FormatErrorf("%s not in the root directory", fi.Filename)
			}
			hasBatches = true
			continue
		}
		st.entries = append(st.entries, fi)
	}
	if !hasLoads {
		return arinc665.FormatErrorf("%s does not list %s", arinc665.ListOfFilesName, arinc665.ListOfLoadsName)
	}
	if err := st.checkMediumFiles(fl, 1); err != nil {
		return err
	}
	for _, fi := range st.entries {
		if !fi.CheckValue.IsNone() {
			ms.SetFilesCheckValueType(fi.CheckValue.Type)
			break
		}
	}

	raw, err := st.src.ReadFile(1, "/"+arinc665.ListOfLoadsName)
	if err != nil {
		return err
	}
	if st.loadList, err = files.DecodeLoadListFile(raw); err != nil {
		return fmt.Errorf("%s: %w", arinc665.ListOfLoadsName, err)
	}
	for _, li := range st.loadList.Loads {
		fi, ok := st.entry(li.HeaderFilename)
		if !ok {
			return arinc665.ReferentialIntegrityErrorf("load %s not in %s", li.HeaderFilename, arinc665.ListOfFilesName)
		}
		if !li.Matches(fi) {
			return arinc665.ReferentialIntegrityErrorf("load %s: medium %s in %s, %s in %s",
				li.HeaderFilename, li.MemberSequenceNumber, arinc665.ListOfLoadsName, fi.MemberSequenceNumber, arinc665.ListOfFilesName)
		}
		st.loadInfo[li.HeaderFilename] = li
	}
	ms.SetLoadsUserDefinedData(st.loadList.UserDefinedData)

	if !hasBatches {
		return nil
	}
	raw, err = st.src.ReadFile(1, "/"+arinc665.ListOfBatchesName)
	if err != nil {
		return err
	}
	if st.batchList, err = files.DecodeBatchListFile(raw); err != nil {
		return fmt.Errorf("%s: %w", arinc665.ListOfBatchesName, err)
	}
	for _, bi := range st.batchList.Batches {
		fi, ok := st.entry(bi.Filename)
		if !ok {
			return arinc665.ReferentialIntegrityErrorf("batch %s not in %s", bi.Filename, arinc665.ListOfFilesName)
		}
		if !bi.Matches(fi) {
			return arinc665.ReferentialIntegrityErrorf("batch %s: medium %s in %s, %s in %s",
				bi.Filename, bi.MemberSequenceNumber, arinc665.ListOfBatchesName, fi.MemberSequenceNumber, arinc665.ListOfFilesName)
		}
		if _, dup := st.loadInfo[bi.Filename]; dup {
			return arinc665.ReferentialIntegrityErrorf("%s is listed as load and batch", bi.Filename)
		}
		st.batchInfo[bi.Filename] = bi
	}
	ms.SetBatchesUserDefinedData(st.batchList.UserDefinedData)
	return nil
}

// entry finds a file entry by filename. Loads and batches are looked up by
// filename only, so their names must be unique within the media set.
func (st *decompilation) entry(name string) (files.FileInfo, bool) {
	for _, fi := range st.entries {
		if fi.Filename == name {
			return fi, true
		}
	}
	return files.FileInfo{}, false
}

func sameMediaSet(a, b files.MediaSetInformation) bool {
	return a.PartNumber == b.PartNumber && a.NumberOfMediaSetMembers == b.NumberOfMediaSetMembers
}

func (st *decompilation) furtherMedium(m arinc665.MediumNumber) error {
	fl, err := st.readFileList(m)
	if err != nil {
		return err
	}
	if !sameMediaSet(fl.MediaSet, st.first.MediaSet) {
		return arinc665.FormatErrorf("medium %s belongs to media set %s", m, fl.MediaSet.PartNumber)
	}
	if err := st.checkMediumFiles(fl, m); err != nil {
		return err
	}
	raw, err := st.src.ReadFile(m, "/"+arinc665.ListOfLoadsName)
	if err != nil {
		return err
	}
	ll, err := files.DecodeLoadListFile(raw)
	if err != nil {
		return fmt.Errorf("medium %s %s: %w", m, arinc665.ListOfLoadsName, err)
	}
	if !sameMediaSet(ll.MediaSet, st.loadList.MediaSet) || ll.MediaSet.MediaSequenceNumber != m {
		return arinc665.FormatErrorf("medium %s: %s is not consistent with medium 001", m, arinc665.ListOfLoadsName)
	}
	if st.batchList == nil {
		return nil
	}
	raw, err = st.src.ReadFile(m, "/"+arinc665.ListOfBatchesName)
	if err != nil {
		return err
	}
	bl, err := files.DecodeBatchListFile(raw)
	if err != nil {
		return fmt.Errorf("medium %s %s: %w", m, arinc665.ListOfBatchesName, err)
	}
	if !sameMediaSet(bl.MediaSet, st.batchList.MediaSet) || bl.MediaSet.MediaSequenceNumber != m {
		return arinc665.FormatErrorf("medium %s: %s is not consistent with medium 001", m, arinc665.ListOfBatchesName)
	}
	return nil
}

// checkMediumFiles verifies the files fl places on medium m.
func (st *decompilation) checkMediumFiles(fl *files.FileListFile, m arinc665.MediumNumber) error {
	if !st.integrity {
		return nil
	}
	for _, fi := range fl.Files {
		if fi.MemberSequenceNumber != m {
			continue
		}
		path := joinPath(files.DecodePath(fi.PathName), fi.Filename)
		raw, err := st.src.ReadFile(m, path)
		if err != nil {
			return fmt.Errorf("medium %s: %w", m, err)
		}
		if got := checkvalue.ComputeCrc16(raw); got != fi.Crc {
			return arinc665.IntegrityErrorf("medium %s %s: CRC %04X, %s says %04X", m, path, got, arinc665.ListOfFilesName, fi.Crc)
		}
		if ok, err := checkvalue.Verify(fi.CheckValue, raw); err != nil || !ok {
			return arinc665.IntegrityErrorf("medium %s %s: check value mismatch", m, path)
		}
	}
	return nil
}

func joinPath(dir, name string) string {
	if strings.HasSuffix(dir, "/") {
		return dir + name
	}
	return dir + "/" + name
}

func (st *decompilation) directory(path string) (media.Directory, error) {
	d := st.ms.Root()
	for _, name := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' }) {
		e, ok := d.Lookup(name)
		if !ok {
			sub, err := st.ms.AddDirectory(d, name)
			if err != nil {
				return media.Directory{}, err
			}
			d = sub
			continue
		}
		sub, ok := e.(media.Directory)
		if !ok {
			return media.Directory{}, arinc665.NameConflictErrorf("%s: %s is not a directory", path, name)
		}
		d = sub
	}
	return d, nil
}

func (st *decompilation) buildTree() error {
	for _, fi := range st.entries {
		dir, err := st.directory(files.DecodePath(fi.PathName))
		if err != nil {
			return err
		}
		var f media.File
		if li, ok := st.loadInfo[fi.Filename]; ok {
			l, err := st.ms.AddLoad(dir, fi.Filename, fi.MemberSequenceNumber)
			if err != nil {
				return err
			}
			l.SetPartNumber(li.PartNumber)
			f = l.File
		} else if bi, ok := st.batchInfo[fi.Filename]; ok {
			b, err := st.ms.AddBatch(dir, fi.Filename, fi.MemberSequenceNumber)
			if err != nil {
				return err
			}
			b.SetPartNumber(bi.PartNumber)
			f = b.File
		} else {
			if f, err = st.ms.AddFile(dir, fi.Filename, fi.MemberSequenceNumber); err != nil {
				return err
			}
		}
		f.SetCrc(fi.Crc)
		f.SetCheckValue(fi.CheckValue)
		st.checkValue.add(f.Path(), crc16Value(fi.Crc))
		st.checkValue.add(f.Path(), fi.CheckValue)
	}
	return nil
}

func crc16Value(crc uint16) checkvalue.CheckValue {
	return checkvalue.CheckValue{Type: checkvalue.Crc16, Value: []byte{byte(crc >> 8), byte(crc)}}
}

// resolveFile finds the regular file a load header names. Names unique in the
// media set resolve directly; otherwise the search narrows to the load's
// directory subtree and finally to the file with the expected CRC.
func (st *decompilation) resolveFile(l media.Load, name string, crc uint16) (media.File, error) {
	var candidates []media.File
	for _, f := range st.ms.RegularFiles() {
		if f.Name() == name {
			candidates = append(candidates, f)
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	if len(candidates) == 0 {
		return media.File{}, arinc665.ReferentialIntegrityErrorf("load %s: file %s not found", l.Path(), name)
	}
	parent, _ := l.Parent()
	prefix := parent.Path()
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var local []media.File
	for _, f := range candidates {
		if strings.HasPrefix(f.Path(), prefix) {
			local = append(local, f)
		}
	}
	if len(local) == 1 {
		return local[0], nil
	}
	if len(local) > 0 {
		candidates = local
	}
	for _, f := range candidates {
		if c, ok := f.Crc(); ok && c == crc {
			return f, nil
		}
	}
	return media.File{}, arinc665.ReferentialIntegrityErrorf("load %s: file %s is ambiguous", l.Path(), name)
}

func (st *decompilation) load(l media.Load) error {
	raw, err := st.src.ReadFile(l.Medium(), l.Path())
	if err != nil {
		return err
	}
	h, err := files.DecodeLoadHeaderFile(raw)
	if err != nil {
		return fmt.Errorf("load %s: %w", l.Path(), err)
	}
	li := st.loadInfo[l.Name()]
	if li.PartNumber != h.PartNumber {
		return arinc665.ReferentialIntegrityErrorf("load %s: part number %q in %s, %q in header", l.Path(), li.PartNumber, arinc665.ListOfLoadsName, h.PartNumber)
	}
	if !sameSet(li.TargetHardwareIDs, h.TargetHardwareIDs) {
		return arinc665.ReferentialIntegrityErrorf("load %s: target hardware IDs %v in %s, %v in header", l.Path(), li.TargetHardwareIDs, arinc665.ListOfLoadsName, h.TargetHardwareIDs)
	}
	l.SetPartFlags(h.PartFlags)
	l.SetLoadType(h.LoadType)
	positions := map[string][]string{}
	for _, p := range h.TargetHardwareIDPositions {
		positions[p.TargetHardwareID] = append(positions[p.TargetHardwareID], p.Positions...)
	}
	for _, id := range h.TargetHardwareIDs {
		if err := l.AddTargetHardwareID(id, positions[id]...); err != nil {
			return err
		}
	}

	var contents [][]byte
	link := func(entries []files.LoadFileInfo, data bool) error {
		for _, e := range entries {
			f, err := st.resolveFile(l, e.Filename, e.Crc)
			if err != nil {
				return err
			}
			if err := st.checkLoadFile(l, f, e, data && h.Version == arinc665.Supplement2, &contents); err != nil {
				return err
			}
			add := l.AddSupportFile
			if data {
				add = l.AddDataFile
			}
			if err := add(f, e.PartNumber); err != nil {
				return err
			}
			if !e.CheckValue.IsNone() {
				l.SetFilesCheckValueType(e.CheckValue.Type)
			}
			st.checkValue.add(f.Path(), e.CheckValue)
		}
		return nil
	}
	if err := link(h.DataFiles, true); err != nil {
		return err
	}
	if err := link(h.SupportFiles, false); err != nil {
		return err
	}
	if st.integrity {
		crc, err := files.ComputeLoadCrc(raw, contents...)
		if err != nil {
			return err
		}
		if crc != h.LoadCrc {
			return arinc665.IntegrityErrorf("load %s: load CRC %08X, header says %08X", l.Path(), crc, h.LoadCrc)
		}
		if !h.LoadCheckValue.IsNone() {
			cv, err := files.ComputeLoadCheckValue(raw, h.LoadCheckValue.Type, contents...)
			if err != nil {
				return err
			}
			if !cv.Equal(h.LoadCheckValue) {
				return arinc665.IntegrityErrorf("load %s: load check value mismatch", l.Path())
			}
		}
	}
	l.SetUserDefinedData(h.UserDefinedData)
	if h.Version == arinc665.Supplement345 {
		l.SetLoadCheckValueType(h.LoadCheckValue.Type)
	}
	return nil
}

// checkLoadFile compares the stored size of f with the header entry and,
// when integrity checking, its CRC and check value.
func (st *decompilation) checkLoadFile(l media.Load, f media.File, e files.LoadFileInfo, roundToWords bool, contents *[][]byte) error {
	size, err := st.src.FileSize(f.Medium(), f.Path())
	if err != nil {
		return err
	}
	length := uint64(size)
	if roundToWords {
		length = (length + 1) &^ 1
	}
	if length != e.Length {
		return arinc665.IntegrityErrorf("load %s: %s is %d bytes, header says %d", l.Path(), f.Path(), length, e.Length)
	}
	if !st.integrity {
		return nil
	}
	raw, err := st.src.ReadFile(f.Medium(), f.Path())
	if err != nil {
		return err
	}
	if got := checkvalue.ComputeCrc16(raw); got != e.Crc {
		return arinc665.IntegrityErrorf("load %s: %s CRC %04X, header says %04X", l.Path(), f.Path(), got, e.Crc)
	}
	if ok, err := checkvalue.Verify(e.CheckValue, raw); err != nil || !ok {
		return arinc665.IntegrityErrorf("load %s: %s check value mismatch", l.Path(), f.Path())
	}
	*contents = append(*contents, raw)
	return nil
}

func (st *decompilation) batch(b media.Batch) error {
	raw, err := st.src.ReadFile(b.Medium(), b.Path())
	if err != nil {
		return err
	}
	bf, err := files.DecodeBatchFile(raw)
	if err != nil {
		return fmt.Errorf("batch %s: %w", b.Path(), err)
	}
	if bi := st.batchInfo[b.Name()]; bi.PartNumber != bf.PartNumber {
		return arinc665.ReferentialIntegrityErrorf("batch %s: part number %q in %s, %q in batch file", b.Path(), bi.PartNumber, arinc665.ListOfBatchesName, bf.PartNumber)
	}
	b.SetComment(bf.Comment)
	loads := map[string]media.Load{}
	for _, l := range st.ms.Loads() {
		loads[l.Name()] = l
	}
	for _, t := range bf.Targets {
		var targets []media.Load
		for _, li := range t.Loads {
			l, ok := loads[li.HeaderFilename]
			if !ok {
				return arinc665.ReferentialIntegrityErrorf("batch %s: load %s not found", b.Path(), li.HeaderFilename)
			}
			if l.PartNumber() != li.PartNumber {
				return arinc665.ReferentialIntegrityErrorf("batch %s: load %s has part number %q, batch says %q", b.Path(), li.HeaderFilename, l.PartNumber(), li.PartNumber)
			}
			targets = append(targets, l)
		}
		if err := b.SetTarget(t.TargetHardwareIDPosition, targets...); err != nil {
			return err
		}
	}
	return nil
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
