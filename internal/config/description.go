package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/checkvalue"
	"example.com/arinc665/internal/media"
)

// Description is the YAML form of a media set. Paths are absolute media set
// paths; directories are created implicitly.
type Description struct {
	PartNumber                string      `yaml:"partNumber"`
	Media                     int         `yaml:"media"`
	FilesCheckValueType       string      `yaml:"filesCheckValueType,omitempty"`
	ListOfFilesCheckValueType string      `yaml:"listOfFilesCheckValueType,omitempty"`
	LoadsCheckValueType       string      `yaml:"loadsCheckValueType,omitempty"`
	FilesUserDefinedData      string      `yaml:"filesUserDefinedData,omitempty"`
	LoadsUserDefinedData      string      `yaml:"loadsUserDefinedData,omitempty"`
	BatchesUserDefinedData    string      `yaml:"batchesUserDefinedData,omitempty"`
	Files                     []FileDesc  `yaml:"files"`
	Loads                     []LoadDesc  `yaml:"loads,omitempty"`
	Batches                   []BatchDesc `yaml:"batches,omitempty"`
}

type FileDesc struct {
	Path   string `yaml:"path"`
	Medium int    `yaml:"medium"`
}

type LoadFileDesc struct {
	File       string `yaml:"file"`
	PartNumber string `yaml:"partNumber"`
}

type TargetDesc struct {
	ID        string   `yaml:"id"`
	Positions []string `yaml:"positions,omitempty"`
}

type LoadTypeDesc struct {
	Description string `yaml:"description"`
	ID          uint16 `yaml:"id"`
}

type LoadDesc struct {
	Path                string         `yaml:"path"`
	Medium              int            `yaml:"medium"`
	PartNumber          string         `yaml:"partNumber"`
	PartFlags           uint16         `yaml:"partFlags,omitempty"`
	LoadType            *LoadTypeDesc  `yaml:"loadType,omitempty"`
	TargetHardware      []TargetDesc   `yaml:"targetHardware"`
	DataFiles           []LoadFileDesc `yaml:"dataFiles"`
	SupportFiles        []LoadFileDesc `yaml:"supportFiles,omitempty"`
	UserDefinedData     string         `yaml:"userDefinedData,omitempty"`
	LoadCheckValueType  string         `yaml:"loadCheckValueType,omitempty"`
	FilesCheckValueType string         `yaml:"filesCheckValueType,omitempty"`
}

type BatchTargetDesc struct {
	Position string   `yaml:"position"`
	Loads    []string `yaml:"loads"`
}

type BatchDesc struct {
	Path       string            `yaml:"path"`
	Medium     int               `yaml:"medium"`
	PartNumber string            `yaml:"partNumber"`
	Comment    string            `yaml:"comment,omitempty"`
	Targets    []BatchTargetDesc `yaml:"targets"`
}

func LoadDescription(path string) (*Description, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := ParseDescription(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func ParseDescription(b []byte) (*Description, error) {
	var d Description
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Description) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

func (d *Description) Save(path string) error {
	b, err := d.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func splitPath(p string) (string, string, error) {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") || strings.HasSuffix(p, "/") {
		return "", "", fmt.Errorf("path %q must be absolute and name a file", p)
	}
	i := strings.LastIndex(p, "/")
	return p[:i], p[i+1:], nil
}

func ensureDir(ms *media.MediaSet, dir string) (media.Directory, error) {
	d := ms.Root()
	for _, name := range strings.FieldsFunc(dir, func(r rune) bool { return r == '/' }) {
		if e, ok := d.Lookup(name); ok {
			sub, ok := e.(media.Directory)
			if !ok {
				return media.Directory{}, arinc665.NameConflictErrorf("%s: %s is not a directory", dir, name)
			}
			d = sub
			continue
		}
		sub, err := ms.AddDirectory(d, name)
		if err != nil {
			return media.Directory{}, err
		}
		d = sub
	}
	return d, nil
}

func medium(n int) (arinc665.MediumNumber, error) {
	if n == 0 {
		n = 1
	}
	return arinc665.NewMediumNumber(n)
}

func decodeUDD(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

// Build creates the media set described by d.
func (d *Description) Build() (*media.MediaSet, error) {
	ms := media.New(d.PartNumber)
	if d.Media > 1 {
		if err := ms.SetNumberOfMedia(d.Media, false); err != nil {
			return nil, err
		}
	}
	for _, s := range []struct {
		value string
		set   func(checkvalue.Type)
	}{
		{d.FilesCheckValueType, ms.SetFilesCheckValueType},
		{d.ListOfFilesCheckValueType, ms.SetListOfFilesCheckValueType},
		{d.LoadsCheckValueType, ms.SetLoadsCheckValueType},
	} {
		t, err := parseCheckValueType(s.value)
		if err != nil {
			return nil, err
		}
		s.set(t)
	}
	for _, s := range []struct {
		value string
		set   func([]byte)
	}{
		{d.FilesUserDefinedData, ms.SetFilesUserDefinedData},
		{d.LoadsUserDefinedData, ms.SetLoadsUserDefinedData},
		{d.BatchesUserDefinedData, ms.SetBatchesUserDefinedData},
	} {
		b, err := decodeUDD(s.value)
		if err != nil {
			return nil, fmt.Errorf("user defined data: %w", err)
		}
		s.set(b)
	}

	place := func(path string, n int) (media.Directory, string, arinc665.MediumNumber, error) {
		dir, name, err := splitPath(path)
		if err != nil {
			return media.Directory{}, "", 0, err
		}
		m, err := medium(n)
		if err != nil {
			return media.Directory{}, "", 0, fmt.Errorf("%s: %w", path, err)
		}
		parent, err := ensureDir(ms, dir)
		return parent, name, m, err
	}

	for _, fd := range d.Files {
		parent, name, m, err := place(fd.Path, fd.Medium)
		if err != nil {
			return nil, err
		}
		if _, err := ms.AddFile(parent, name, m); err != nil {
			return nil, err
		}
	}
	for _, ld := range d.Loads {
		parent, name, m, err := place(ld.Path, ld.Medium)
		if err != nil {
			return nil, err
		}
		l, err := ms.AddLoad(parent, name, m)
		if err != nil {
			return nil, err
		}
		if err := buildLoad(ms, l, ld); err != nil {
			return nil, fmt.Errorf("load %s: %w", ld.Path, err)
		}
	}
	for _, bd := range d.Batches {
		parent, name, m, err := place(bd.Path, bd.Medium)
		if err != nil {
			return nil, err
		}
		b, err := ms.AddBatch(parent, name, m)
		if err != nil {
			return nil, err
		}
		b.SetPartNumber(bd.PartNumber)
		b.SetComment(bd.Comment)
		for _, t := range bd.Targets {
			var loads []media.Load
			for _, p := range t.Loads {
				f, ok := ms.FileByPath(p)
				l, isLoad := f.AsLoad()
				if !ok || !isLoad {
					return nil, arinc665.InvalidReferenceErrorf("batch %s: %s is not a load", bd.Path, p)
				}
				loads = append(loads, l)
			}
			if err := b.SetTarget(t.Position, loads...); err != nil {
				return nil, err
			}
		}
	}
	if err := ms.Check(); err != nil {
		return nil, err
	}
	return ms, nil
}

func buildLoad(ms *media.MediaSet, l media.Load, ld LoadDesc) error {
	l.SetPartNumber(ld.PartNumber)
	l.SetPartFlags(ld.PartFlags)
	if ld.LoadType != nil {
		l.SetLoadType(&media.LoadType{Description: ld.LoadType.Description, ID: ld.LoadType.ID})
	}
	for _, t := range ld.TargetHardware {
		if err := l.AddTargetHardwareID(t.ID, t.Positions...); err != nil {
			return err
		}
	}
	for _, refs := range []struct {
		files []LoadFileDesc
		add   func(media.File, string) error
	}{
		{ld.DataFiles, l.AddDataFile},
		{ld.SupportFiles, l.AddSupportFile},
	} {
		for _, fd := range refs.files {
			f, ok := ms.FileByPath(fd.File)
			if !ok {
				return arinc665.InvalidReferenceErrorf("file %s not described", fd.File)
			}
			if err := refs.add(f, fd.PartNumber); err != nil {
				return err
			}
		}
	}
	udd, err := decodeUDD(ld.UserDefinedData)
	if err != nil {
		return fmt.Errorf("user defined data: %w", err)
	}
	l.SetUserDefinedData(udd)
	if ld.LoadCheckValueType != "" {
		t, err := checkvalue.ParseType(ld.LoadCheckValueType)
		if err != nil {
			return err
		}
		l.SetLoadCheckValueType(t)
	}
	if ld.FilesCheckValueType != "" {
		t, err := checkvalue.ParseType(ld.FilesCheckValueType)
		if err != nil {
			return err
		}
		l.SetFilesCheckValueType(t)
	}
	return nil
}

func typeName(t checkvalue.Type) string {
	if t == checkvalue.NotUsed {
		return ""
	}
	return t.String()
}

func encodeUDD(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}

// Describe is the inverse of Build.
func Describe(ms *media.MediaSet) *Description {
	d := &Description{
		PartNumber:                ms.PartNumber(),
		Media:                     ms.NumberOfMedia(),
		FilesCheckValueType:       typeName(ms.FilesCheckValueType()),
		ListOfFilesCheckValueType: typeName(ms.ListOfFilesCheckValueType()),
		LoadsCheckValueType:       typeName(ms.LoadsCheckValueType()),
		FilesUserDefinedData:      encodeUDD(ms.FilesUserDefinedData()),
		LoadsUserDefinedData:      encodeUDD(ms.LoadsUserDefinedData()),
		BatchesUserDefinedData:    encodeUDD(ms.BatchesUserDefinedData()),
	}
	for _, f := range ms.RegularFiles() {
		d.Files = append(d.Files, FileDesc{Path: f.Path(), Medium: f.Medium().Int()})
	}
	for _, l := range ms.Loads() {
		ld := LoadDesc{
			Path:            l.Path(),
			Medium:          l.Medium().Int(),
			PartNumber:      l.PartNumber(),
			PartFlags:       l.PartFlags(),
			UserDefinedData: encodeUDD(l.UserDefinedData()),
		}
		if lt := l.LoadType(); lt != nil {
			ld.LoadType = &LoadTypeDesc{Description: lt.Description, ID: lt.ID}
		}
		positions := map[string][]string{}
		for _, p := range l.TargetHardwareIDPositions() {
			positions[p.TargetHardwareID] = p.Positions
		}
		for _, id := range l.TargetHardwareIDs() {
			ld.TargetHardware = append(ld.TargetHardware, TargetDesc{ID: id, Positions: positions[id]})
		}
		for _, lf := range l.DataFiles() {
			ld.DataFiles = append(ld.DataFiles, LoadFileDesc{File: lf.File.Path(), PartNumber: lf.PartNumber})
		}
		for _, lf := range l.SupportFiles() {
			ld.SupportFiles = append(ld.SupportFiles, LoadFileDesc{File: lf.File.Path(), PartNumber: lf.PartNumber})
		}
		if t := l.LoadCheckValueType(); t != ms.LoadsCheckValueType() {
			ld.LoadCheckValueType = t.String()
		}
		if t := l.FilesCheckValueType(); t != ms.FilesCheckValueType() {
			ld.FilesCheckValueType = t.String()
		}
		d.Loads = append(d.Loads, ld)
	}
	for _, b := range ms.Batches() {
		bd := BatchDesc{Path: b.Path(), Medium: b.Medium().Int(), PartNumber: b.PartNumber(), Comment: b.Comment()}
		for _, t := range b.Targets() {
			bt := BatchTargetDesc{Position: t.Position}
			for _, l := range t.Loads {
				bt.Loads = append(bt.Loads, l.Path())
			}
			bd.Targets = append(bd.Targets, bt)
		}
		d.Batches = append(d.Batches, bd)
	}
	return d
}
