package arinc665

import (
	"path"
	"strings"
)

// SupportedVersion selects the ARINC 665 supplement a protocol file is
// encoded for.
type SupportedVersion int

const (
	VersionInvalid SupportedVersion = iota
	Supplement2
	Supplement345
)

func (v SupportedVersion) String() string {
	switch v {
	case Supplement2:
		return "supplement2"
	case Supplement345:
		return "supplement345"
	default:
		return "invalid"
	}
}

func ParseSupportedVersion(s string) (SupportedVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "2", "supplement2", "supp2", "665-2":
		return Supplement2, nil
	case "", "3", "4", "5", "345", "supplement345", "supp345", "665-3", "665-4", "665-5":
		return Supplement345, nil
	default:
		return VersionInvalid, FormatErrorf("unsupported ARINC 665 version %q", s)
	}
}

func (v SupportedVersion) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *SupportedVersion) UnmarshalText(b []byte) error {
	parsed, err := ParseSupportedVersion(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FileType distinguishes the ARINC 665 protocol files.
type FileType int

const (
	FileTypeInvalid FileType = iota
	FileTypeBatchFile
	FileTypeLoadUploadHeader
	FileTypeLoadList
	FileTypeBatchList
	FileTypeFileList
)

func (t FileType) String() string {
	switch t {
	case FileTypeBatchFile:
		return "batch file"
	case FileTypeLoadUploadHeader:
		return "load upload header"
	case FileTypeLoadList:
		return "list of loads"
	case FileTypeBatchList:
		return "list of batches"
	case FileTypeFileList:
		return "list of files"
	default:
		return "invalid"
	}
}

// Format version fields of the supported supplements. Supplement 1 values
// (0x8002, 0x9002, 0xA002) are rejected.
const (
	LoadFileFormatVersion2    uint16 = 0x8003
	LoadFileFormatVersion345  uint16 = 0x8004
	BatchFileFormatVersion2   uint16 = 0x9003
	BatchFileFormatVersion345 uint16 = 0x9004
	MediaFileFormatVersion2   uint16 = 0xA003
	MediaFileFormatVersion345 uint16 = 0xA004
)

const (
	ListOfFilesName   = "FILES.LUM"
	ListOfLoadsName   = "LOADS.LUM"
	ListOfBatchesName = "BATCHES.LUM"

	LoadUploadHeaderExtension = ".LUH"
	BatchFileExtension        = ".LUB"
)

// FormatVersionField returns the header version field for a file type encoded
// under the given supplement, or 0 when the combination does not exist.
func FormatVersionField(t FileType, v SupportedVersion) uint16 {
	switch t {
	case FileTypeBatchFile:
		switch v {
		case Supplement2:
			return BatchFileFormatVersion2
		case Supplement345:
			return BatchFileFormatVersion345
		}
	case FileTypeLoadUploadHeader:
		switch v {
		case Supplement2:
			return LoadFileFormatVersion2
		case Supplement345:
			return LoadFileFormatVersion345
		}
	case FileTypeLoadList, FileTypeBatchList, FileTypeFileList:
		switch v {
		case Supplement2:
			return MediaFileFormatVersion2
		case Supplement345:
			return MediaFileFormatVersion345
		}
	}
	return 0
}

// VersionOf maps a header version field back to the supplement for the given
// file type.
func VersionOf(t FileType, field uint16) SupportedVersion {
	for _, v := range []SupportedVersion{Supplement2, Supplement345} {
		if FormatVersionField(t, v) == field {
			return v
		}
	}
	return VersionInvalid
}

// FileTypeOf classifies a protocol file by its name. Regular files return
// FileTypeInvalid.
func FileTypeOf(name string) FileType {
	base := strings.ToUpper(path.Base(strings.ReplaceAll(name, "\\", "/")))
	switch base {
	case ListOfFilesName:
		return FileTypeFileList
	case ListOfLoadsName:
		return FileTypeLoadList
	case ListOfBatchesName:
		return FileTypeBatchList
	}
	switch path.Ext(base) {
	case LoadUploadHeaderExtension:
		return FileTypeLoadUploadHeader
	case BatchFileExtension:
		return FileTypeBatchFile
	}
	return FileTypeInvalid
}
