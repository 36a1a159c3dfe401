// Package validate checks a media set against the bytes stored on its media.
//
// The validator walks every regular file, load header and batch file in
// medium then path order, recomputes CRCs and check values, decodes the
// protocol files and compares them with the object model. Results are pushed
// to the caller one file at a time; a failing file never aborts the run.
package validate

import (
	"context"
	"errors"
	"fmt"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
	"example.com/arinc665/internal/common"
	"example.com/arinc665/internal/files"
	"example.com/arinc665/internal/media"
)

// ReadFileFunc returns the contents of the file at path on medium.
type ReadFileFunc func(medium arinc665.MediumNumber, path string) ([]byte, error)

// InformationFunc receives every result as soon as it is known.
type InformationFunc func(FileResult)

type ResultKind int

const (
	// FileChecked results cover the stored bytes of one file.
	FileChecked ResultKind = iota
	// IntegrityFinding results cover cross references between files.
	IntegrityFinding
)

func (k ResultKind) String() string {
	if k == IntegrityFinding {
		return "integrity"
	}
	return "file"
}

type FileResult struct {
	Kind     ResultKind
	Medium   arinc665.MediumNumber
	Path     string
	FileKind media.Kind
	Passed   bool
	Err      error
}

type Result struct {
	Passed            bool
	Files             int
	ChecksumFailures  int
	IntegrityFailures int
}

// checkError tags an error with the check that produced it.
type checkError struct {
	check common.Check
	err   error
}

func (e *checkError) Error() string { return e.err.Error() }
func (e *checkError) Unwrap() error { return e.err }

func failed(c common.Check, err error) error {
	return &checkError{check: c, err: err}
}

// CheckOf reports the check a failure is counted against. Untagged errors
// are classified by their kind; errors without a kind come from reading the
// media.
func CheckOf(err error) common.Check {
	var ce *checkError
	if errors.As(err, &ce) {
		return ce.check
	}
	switch arinc665.KindOf(err) {
	case arinc665.KindUnknown:
		return common.CheckRead
	case arinc665.KindFormat:
		return common.CheckFormat
	case arinc665.KindIntegrity:
		return common.CheckCrc
	}
	return common.CheckReference
}

// Validator is stateless apart from the optional progress metrics.
type Validator struct {
	Metrics *common.Metrics
}

// Validate checks ms. The returned error is only set when ctx is cancelled;
// every other problem is reported through info and counted in the Result.
func (v *Validator) Validate(ctx context.Context, ms *media.MediaSet, read ReadFileFunc, info InformationFunc) (Result, error) {
	res := Result{Passed: true}
	emit := func(r FileResult) {
		if !r.Passed {
			res.Passed = false
			if r.Kind == IntegrityFinding {
				res.IntegrityFailures++
			} else {
				res.ChecksumFailures++
			}
			if v.Metrics != nil {
				v.Metrics.Fail(r.Medium, CheckOf(r.Err))
			}
		}
		if info != nil {
			info(r)
		}
	}
	if v.Metrics != nil {
		v.Metrics.Start()
		defer v.Metrics.Stop()
	}

	for _, f := range ms.Files() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Files++
		raw, err := read(f.Medium(), f.Path())
		if v.Metrics != nil {
			v.Metrics.AddFile(f.Medium(), int64(len(raw)))
		}
		if err == nil {
			err = v.checkFile(f, raw, read)
		}
		emit(FileResult{
			Kind:     FileChecked,
			Medium:   f.Medium(),
			Path:     f.Path(),
			FileKind: f.Kind(),
			Passed:   err == nil,
			Err:      err,
		})
	}

	for _, f := range ms.Files() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var err error
		switch f.Kind() {
		case media.KindLoad:
			l, _ := f.AsLoad()
			err = checkLoadReferences(l, read)
		case media.KindBatch:
			b, _ := f.AsBatch()
			err = checkBatchReferences(ms, b, read)
		default:
			continue
		}
		if err == nil {
			continue
		}
		emit(FileResult{
			Kind:     IntegrityFinding,
			Medium:   f.Medium(),
			Path:     f.Path(),
			FileKind: f.Kind(),
			Err:      err,
		})
	}

	if err := ms.Check(); err != nil {
		emit(FileResult{Kind: IntegrityFinding, Path: "/", FileKind: media.KindDirectory, Err: err})
	}
	return res, nil
}

// checkFile compares raw with the CRC and check value recorded in the model
// and, for load headers, with the files the header lists.
func (v *Validator) checkFile(f media.File, raw []byte, read ReadFileFunc) error {
	if crc, ok := f.Crc(); ok {
		if got := checkvalue.ComputeCrc16(raw); got != crc {
			return failed(common.CheckCrc, arinc665.IntegrityErrorf("%s: CRC %04X, want %04X", f.Path(), got, crc))
		}
	}
	if cv := f.CheckValue(); !cv.IsNone() {
		ok, err := checkvalue.Verify(cv, raw)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Path(), err)
		}
		if !ok {
			return failed(common.CheckValue, arinc665.IntegrityErrorf("%s: check value mismatch, want %s", f.Path(), cv))
		}
	}
	switch f.Kind() {
	case media.KindLoad:
		l, _ := f.AsLoad()
		return checkLoadContents(l, raw, read)
	case media.KindBatch:
		if _, err := files.DecodeBatchFile(raw); err != nil {
			return fmt.Errorf("%s: %w", f.Path(), err)
		}
	}
	return nil
}

func checkLoadContents(l media.Load, raw []byte, read ReadFileFunc) error {
	h, err := files.DecodeLoadHeaderFile(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", l.Path(), err)
	}
	var contents [][]byte
	check := func(entries []files.LoadFileInfo, refs []media.LoadFile, data bool) error {
		for _, e := range entries {
			ref, ok := findLoadFile(refs, e.Filename)
			if !ok {
				return arinc665.ReferentialIntegrityErrorf("%s: %s is not a file of the load", l.Path(), e.Filename)
			}
			b, err := read(ref.File.Medium(), ref.File.Path())
			if err != nil {
				return fmt.Errorf("%s: %w", l.Path(), err)
			}
			length := uint64(len(b))
			if data && h.Version == arinc665.Supplement2 {
				length = (length + 1) &^ 1
			}
			if length != e.Length {
				return failed(common.CheckLength, arinc665.IntegrityErrorf("%s: %s is %d bytes, header says %d", l.Path(), e.Filename, length, e.Length))
			}
			if got := checkvalue.ComputeCrc16(b); got != e.Crc {
				return failed(common.CheckCrc, arinc665.IntegrityErrorf("%s: %s CRC %04X, header says %04X", l.Path(), e.Filename, got, e.Crc))
			}
			if ok, err := checkvalue.Verify(e.CheckValue, b); err != nil || !ok {
				return failed(common.CheckValue, arinc665.IntegrityErrorf("%s: %s check value mismatch", l.Path(), e.Filename))
			}
			contents = append(contents, b)
		}
		return nil
	}
	if err := check(h.DataFiles, l.DataFiles(), true); err != nil {
		return err
	}
	if err := check(h.SupportFiles, l.SupportFiles(), false); err != nil {
		return err
	}
	crc, err := files.ComputeLoadCrc(raw, contents...)
	if err != nil {
		return fmt.Errorf("%s: %w", l.Path(), err)
	}
	if crc != h.LoadCrc {
		return failed(common.CheckCrc, arinc665.IntegrityErrorf("%s: load CRC %08X, header says %08X", l.Path(), crc, h.LoadCrc))
	}
	if h.Version == arinc665.Supplement345 && !h.LoadCheckValue.IsNone() {
		cv, err := files.ComputeLoadCheckValue(raw, h.LoadCheckValue.Type, contents...)
		if err != nil {
			return fmt.Errorf("%s: %w", l.Path(), err)
		}
		if !cv.Equal(h.LoadCheckValue) {
			return failed(common.CheckValue, arinc665.IntegrityErrorf("%s: load check value %s, header says %s", l.Path(), cv, h.LoadCheckValue))
		}
	}
	return nil
}

func findLoadFile(refs []media.LoadFile, name string) (media.LoadFile, bool) {
	for _, r := range refs {
		if r.File.Name() == name {
			return r, true
		}
	}
	return media.LoadFile{}, false
}

// checkLoadReferences compares the stored load header with the model.
func checkLoadReferences(l media.Load, read ReadFileFunc) error {
	raw, err := read(l.Medium(), l.Path())
	if err != nil {
		return nil
	}
	h, err := files.DecodeLoadHeaderFile(raw)
	if err != nil {
		// already reported by the file pass
		return nil
	}
	if h.PartNumber != l.PartNumber() {
		return arinc665.ReferentialIntegrityErrorf("%s: part number %q, load says %q", l.Path(), h.PartNumber, l.PartNumber())
	}
	if !equalStrings(h.TargetHardwareIDs, l.TargetHardwareIDs()) {
		return arinc665.ReferentialIntegrityErrorf("%s: target hardware IDs %v, load says %v", l.Path(), h.TargetHardwareIDs, l.TargetHardwareIDs())
	}
	if err := compareFiles(l.Path(), "data", h.DataFiles, l.DataFiles()); err != nil {
		return err
	}
	return compareFiles(l.Path(), "support", h.SupportFiles, l.SupportFiles())
}

func compareFiles(path, what string, entries []files.LoadFileInfo, refs []media.LoadFile) error {
	if len(entries) != len(refs) {
		return arinc665.ReferentialIntegrityErrorf("%s: %d %s files, load has %d", path, len(entries), what, len(refs))
	}
	for i, e := range entries {
		if e.Filename != refs[i].File.Name() || e.PartNumber != refs[i].PartNumber {
			return arinc665.ReferentialIntegrityErrorf("%s: %s file %d is %s (%s), load has %s (%s)",
				path, what, i, e.Filename, e.PartNumber, refs[i].File.Name(), refs[i].PartNumber)
		}
	}
	return nil
}

// checkBatchReferences makes sure every load named by the stored batch file
// exists in the media set and that the targets match the batch in the model.
func checkBatchReferences(ms *media.MediaSet, b media.Batch, read ReadFileFunc) error {
	raw, err := read(b.Medium(), b.Path())
	if err != nil {
		return nil
	}
	bf, err := files.DecodeBatchFile(raw)
	if err != nil {
		return nil
	}
	if bf.PartNumber != b.PartNumber() {
		return arinc665.ReferentialIntegrityErrorf("%s: part number %q, batch says %q", b.Path(), bf.PartNumber, b.PartNumber())
	}
	loads := map[string]media.Load{}
	for _, l := range ms.Loads() {
		loads[l.Name()] = l
	}
	for _, t := range bf.Targets {
		for _, li := range t.Loads {
			l, ok := loads[li.HeaderFilename]
			if !ok {
				return arinc665.ReferentialIntegrityErrorf("%s: target %s references missing load %s", b.Path(), t.TargetHardwareIDPosition, li.HeaderFilename)
			}
			if l.PartNumber() != li.PartNumber {
				return arinc665.ReferentialIntegrityErrorf("%s: load %s has part number %q, batch says %q", b.Path(), li.HeaderFilename, l.PartNumber(), li.PartNumber)
			}
		}
	}
	return compareTargets(b, bf.Targets)
}

func compareTargets(b media.Batch, stored []files.BatchTargetInfo) error {
	model := b.Targets()
	if len(stored) != len(model) {
		return arinc665.ReferentialIntegrityErrorf("%s: %d targets, batch has %d", b.Path(), len(stored), len(model))
	}
	for i, t := range stored {
		m := model[i]
		if t.TargetHardwareIDPosition != m.Position {
			return arinc665.ReferentialIntegrityErrorf("%s: target %d is %s, batch has %s", b.Path(), i, t.TargetHardwareIDPosition, m.Position)
		}
		if len(t.Loads) != len(m.Loads) {
			return arinc665.ReferentialIntegrityErrorf("%s: target %s lists %d loads, batch has %d", b.Path(), m.Position, len(t.Loads), len(m.Loads))
		}
		for j, li := range t.Loads {
			if l := m.Loads[j]; li.HeaderFilename != l.Name() || li.PartNumber != l.PartNumber() {
				return arinc665.ReferentialIntegrityErrorf("%s: target %s load %d is %s (%s), batch has %s (%s)",
					b.Path(), m.Position, j, li.HeaderFilename, li.PartNumber, l.Name(), l.PartNumber())
			}
		}
	}
	return nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
