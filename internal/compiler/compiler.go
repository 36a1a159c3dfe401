// Package compiler writes a media set model out as ARINC 665 media and reads
// media back into a model.
package compiler

import (
	"context"
	"fmt"
	"strings"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
	"example.com/arinc665/internal/common"
	"example.com/arinc665/internal/files"
	"example.com/arinc665/internal/media"
)

// FileCreationPolicy decides whether load headers and batch files are
// generated from the model or copied from the source.
type FileCreationPolicy int

const (
	// PolicyNone copies every file from the source.
	PolicyNone FileCreationPolicy = iota
	// PolicyNoneExisting generates only files the source does not provide.
	PolicyNoneExisting
	// PolicyAll generates every file.
	PolicyAll
)

func (p FileCreationPolicy) String() string {
	switch p {
	case PolicyNone:
		return "none"
	case PolicyNoneExisting:
		return "noneExisting"
	case PolicyAll:
		return "all"
	}
	return fmt.Sprintf("FileCreationPolicy(%d)", int(p))
}

func ParseFileCreationPolicy(s string) (FileCreationPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none":
		return PolicyNone, nil
	case "noneexisting", "none-existing", "missing":
		return PolicyNoneExisting, nil
	case "", "all":
		return PolicyAll, nil
	}
	return PolicyAll, fmt.Errorf("unknown file creation policy %q", s)
}

func (p FileCreationPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *FileCreationPolicy) UnmarshalText(b []byte) error {
	v, err := ParseFileCreationPolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Sink receives the compiled media. Paths are absolute media paths such as
// "/LOAD/APP.BIN".
type Sink interface {
	CreateMedium(m arinc665.MediumNumber) error
	CreateDirectory(m arinc665.MediumNumber, path string) error
	// FileExists reports whether the source provides the contents of f.
	FileExists(f media.File) bool
	// CopyFile places the source contents of f on its medium.
	CopyFile(f media.File) error
	WriteFile(m arinc665.MediumNumber, path string, data []byte) error
	// ReadFile returns a file already placed on medium m.
	ReadFile(m arinc665.MediumNumber, path string) ([]byte, error)
}

type Compiler struct {
	Version           arinc665.SupportedVersion
	CreateLoadHeaders FileCreationPolicy
	CreateBatchFiles  FileCreationPolicy
	// Audit, when set, records every file written to the sink.
	Audit *common.AuditLog
}

func NewCompiler() *Compiler {
	return &Compiler{
		Version:           arinc665.Supplement345,
		CreateLoadHeaders: PolicyAll,
		CreateBatchFiles:  PolicyAll,
	}
}

// Compile writes ms to sink. CRCs and check values written to FILES.LUM are
// recorded on the model files.
func (c *Compiler) Compile(ctx context.Context, ms *media.MediaSet, sink Sink) error {
	if err := ms.Check(); err != nil {
		return fmt.Errorf("compile %s: %w", ms.PartNumber(), err)
	}
	common.Logf("compile media set %s (%d media, %s)", ms.PartNumber(), ms.NumberOfMedia(), c.Version)

	for _, m := range ms.Media() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := sink.CreateMedium(m.Number()); err != nil {
			return fmt.Errorf("create medium %s: %w", m.Number(), err)
		}
		for _, d := range m.Directories() {
			if err := sink.CreateDirectory(m.Number(), d.Path()); err != nil {
				return fmt.Errorf("create directory %s on %s: %w", d.Path(), m.Number(), err)
			}
		}
		for _, f := range m.Files() {
			if f.Kind() != media.KindFile {
				continue
			}
			if err := sink.CopyFile(f); err != nil {
				return fmt.Errorf("copy %s: %w", f.Path(), err)
			}
			c.audit("copy", f.Medium(), f.Path(), nil)
		}
	}

	for _, l := range ms.Loads() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.generate(c.CreateLoadHeaders, l.File, sink) {
			if err := c.writeLoadHeader(l, sink); err != nil {
				return err
			}
		} else if err := c.copy(l.File, sink); err != nil {
			return err
		}
	}
	for _, b := range ms.Batches() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if c.generate(c.CreateBatchFiles, b.File, sink) {
			raw, err := b.BatchFile(c.Version).Encode()
			if err != nil {
				return fmt.Errorf("batch %s: %w", b.Path(), err)
			}
			if err := c.write(sink, b.Medium(), b.Path(), raw); err != nil {
				return err
			}
		} else if err := c.copy(b.File, sink); err != nil {
			return err
		}
	}

	if err := c.writeLists(ms, sink); err != nil {
		return err
	}
	return c.writeFileLists(ms, sink)
}

func (c *Compiler) generate(p FileCreationPolicy, f media.File, sink Sink) bool {
	switch p {
	case PolicyNone:
		return false
	case PolicyNoneExisting:
		return !sink.FileExists(f)
	}
	return true
}

func (c *Compiler) copy(f media.File, sink Sink) error {
	if err := sink.CopyFile(f); err != nil {
		return fmt.Errorf("copy %s: %w", f.Path(), err)
	}
	c.audit("copy", f.Medium(), f.Path(), nil)
	return nil
}

func (c *Compiler) write(sink Sink, m arinc665.MediumNumber, path string, raw []byte) error {
	if err := sink.WriteFile(m, path, raw); err != nil {
		return fmt.Errorf("write %s on %s: %w", path, m, err)
	}
	c.audit("write", m, path, raw)
	return nil
}

func (c *Compiler) audit(action string, m arinc665.MediumNumber, path string, raw []byte) {
	if c.Audit == nil {
		return
	}
	e := common.AuditEntry{Action: action, Medium: m.Int(), Path: path}
	if raw != nil {
		e.Size = int64(len(raw))
		e.Crc = fmt.Sprintf("%04X", checkvalue.ComputeCrc16(raw))
	}
	if err := c.Audit.Append(e); err != nil {
		common.Logf("audit %s: %v", path, err)
	}
}

func (c *Compiler) checkValueType(t checkvalue.Type) checkvalue.Type {
	if c.Version != arinc665.Supplement345 || t == checkvalue.Invalid {
		return checkvalue.NotUsed
	}
	return t
}

func (c *Compiler) loadFileInfo(lf media.LoadFile, t checkvalue.Type, sink Sink) (files.LoadFileInfo, []byte, error) {
	raw, err := sink.ReadFile(lf.File.Medium(), lf.File.Path())
	if err != nil {
		return files.LoadFileInfo{}, nil, fmt.Errorf("read %s: %w", lf.File.Path(), err)
	}
	cv, err := checkvalue.Compute(c.checkValueType(t), raw)
	if err != nil {
		return files.LoadFileInfo{}, nil, err
	}
	return files.LoadFileInfo{
		Filename:   lf.File.Name(),
		PartNumber: lf.PartNumber,
		Length:     uint64(len(raw)),
		Crc:        checkvalue.ComputeCrc16(raw),
		CheckValue: cv,
	}, raw, nil
}

// writeLoadHeader encodes the header of l, then patches in the load check
// value and load CRC computed over the header and the file contents.
func (c *Compiler) writeLoadHeader(l media.Load, sink Sink) error {
	h := l.LoadHeader(c.Version)
	h.DataFiles, h.SupportFiles = nil, nil
	var contents [][]byte
	for _, lf := range l.DataFiles() {
		info, raw, err := c.loadFileInfo(lf, l.FilesCheckValueType(), sink)
		if err != nil {
			return fmt.Errorf("load %s: %w", l.Path(), err)
		}
		h.DataFiles = append(h.DataFiles, info)
		contents = append(contents, raw)
	}
	for _, lf := range l.SupportFiles() {
		info, raw, err := c.loadFileInfo(lf, l.FilesCheckValueType(), sink)
		if err != nil {
			return fmt.Errorf("load %s: %w", l.Path(), err)
		}
		h.SupportFiles = append(h.SupportFiles, info)
		contents = append(contents, raw)
	}
	lcv := c.checkValueType(l.LoadCheckValueType())
	h.LoadCheckValue = files.Placeholder(lcv)
	raw, err := h.Encode()
	if err != nil {
		return fmt.Errorf("load %s: %w", l.Path(), err)
	}
	if !h.LoadCheckValue.IsNone() {
		cv, err := files.ComputeLoadCheckValue(raw, lcv, contents...)
		if err != nil {
			return fmt.Errorf("load %s: %w", l.Path(), err)
		}
		if err := files.SetLoadCheckValue(raw, cv); err != nil {
			return fmt.Errorf("load %s: %w", l.Path(), err)
		}
	}
	crc, err := files.ComputeLoadCrc(raw, contents...)
	if err != nil {
		return fmt.Errorf("load %s: %w", l.Path(), err)
	}
	if err := files.SetLoadCrc(raw, crc); err != nil {
		return fmt.Errorf("load %s: %w", l.Path(), err)
	}
	return c.write(sink, l.Medium(), l.Path(), raw)
}

// writeLists writes LOADS.LUM to every medium and BATCHES.LUM when the media
// set has batches.
func (c *Compiler) writeLists(ms *media.MediaSet, sink Sink) error {
	hasBatches := len(ms.Batches()) > 0
	for _, m := range ms.Media() {
		raw, err := ms.LoadList(c.Version, m.Number()).Encode()
		if err != nil {
			return fmt.Errorf("%s: %w", arinc665.ListOfLoadsName, err)
		}
		if err := c.write(sink, m.Number(), "/"+arinc665.ListOfLoadsName, raw); err != nil {
			return err
		}
		if !hasBatches {
			continue
		}
		raw, err = ms.BatchList(c.Version, m.Number()).Encode()
		if err != nil {
			return fmt.Errorf("%s: %w", arinc665.ListOfBatchesName, err)
		}
		if err := c.write(sink, m.Number(), "/"+arinc665.ListOfBatchesName, raw); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) fileInfo(sink Sink, m arinc665.MediumNumber, path string, t checkvalue.Type) (files.FileInfo, error) {
	raw, err := sink.ReadFile(m, path)
	if err != nil {
		return files.FileInfo{}, fmt.Errorf("read %s on %s: %w", path, m, err)
	}
	cv, err := checkvalue.Compute(c.checkValueType(t), raw)
	if err != nil {
		return files.FileInfo{}, err
	}
	dir := path[:strings.LastIndex(path, "/")+1]
	return files.FileInfo{
		Filename:             path[len(dir):],
		PathName:             files.EncodePath(dir),
		MemberSequenceNumber: m,
		Crc:                  checkvalue.ComputeCrc16(raw),
		CheckValue:           cv,
	}, nil
}

// writeFileLists writes FILES.LUM to every medium. Each list names the list
// files of its own medium followed by every file of the media set.
func (c *Compiler) writeFileLists(ms *media.MediaSet, sink Sink) error {
	var all []files.FileInfo
	for _, f := range ms.Files() {
		fi, err := c.fileInfo(sink, f.Medium(), f.Path(), ms.FilesCheckValueType())
		if err != nil {
			return err
		}
		f.SetCrc(fi.Crc)
		f.SetCheckValue(fi.CheckValue)
		all = append(all, fi)
	}
	lists := []string{arinc665.ListOfLoadsName}
	if len(ms.Batches()) > 0 {
		lists = append(lists, arinc665.ListOfBatchesName)
	}
	for _, m := range ms.Media() {
		fl := &files.FileListFile{
			Version:         c.Version,
			MediaSet:        ms.Information(m.Number()),
			UserDefinedData: ms.FilesUserDefinedData(),
			CheckValueType:  c.checkValueType(ms.ListOfFilesCheckValueType()),
		}
		for _, name := range lists {
			fi, err := c.fileInfo(sink, m.Number(), "/"+name, ms.FilesCheckValueType())
			if err != nil {
				return err
			}
			fl.Files = append(fl.Files, fi)
		}
		fl.Files = append(fl.Files, all...)
		raw, err := fl.Encode()
		if err != nil {
			return fmt.Errorf("%s: %w", arinc665.ListOfFilesName, err)
		}
		if err := c.write(sink, m.Number(), "/"+arinc665.ListOfFilesName, raw); err != nil {
			return err
		}
	}
	common.Logf("compiled %d files onto %d media", len(all), ms.NumberOfMedia())
	return nil
}
