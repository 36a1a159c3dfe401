package files

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"example.com/arinc665/internal/arinc665"
)

// Decode decodes a protocol file selected by its name and returns one of
// *FileListFile, *LoadListFile, *BatchListFile, *LoadHeaderFile or
// *BatchFile.
func Decode(name string, raw []byte) (any, error) {
	switch arinc665.FileTypeOf(name) {
	case arinc665.FileTypeFileList:
		return DecodeFileListFile(raw)
	case arinc665.FileTypeLoadList:
		return DecodeLoadListFile(raw)
	case arinc665.FileTypeBatchList:
		return DecodeBatchListFile(raw)
	case arinc665.FileTypeLoadUploadHeader:
		return DecodeLoadHeaderFile(raw)
	case arinc665.FileTypeBatchFile:
		return DecodeBatchFile(raw)
	}
	return nil, arinc665.FormatErrorf("%s is not a protocol file", name)
}

// Print writes a human readable dump of the protocol file name to w.
func Print(w io.Writer, name string, raw []byte) error {
	rec, err := Decode(name, raw)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "FILE\t%s\n", name)
	switch f := rec.(type) {
	case *FileListFile:
		printMediaSet(tw, f.Version, f.MediaSet)
		fmt.Fprintf(tw, "CHECK VALUE TYPE\t%s\n", f.CheckValueType)
		fmt.Fprintln(tw, "\nFILENAME\tPATH\tMEDIUM\tCRC\tCHECK VALUE")
		for _, fi := range f.Files {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%04X\t%s\n", fi.Filename, fi.PathName, fi.MemberSequenceNumber, fi.Crc, fi.CheckValue)
		}
		printUserData(tw, f.UserDefinedData)
	case *LoadListFile:
		printMediaSet(tw, f.Version, f.MediaSet)
		fmt.Fprintln(tw, "\nPART NUMBER\tHEADER\tMEDIUM\tTARGETS")
		for _, li := range f.Loads {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", li.PartNumber, li.HeaderFilename, li.MemberSequenceNumber, strings.Join(li.TargetHardwareIDs, ","))
		}
		printUserData(tw, f.UserDefinedData)
	case *BatchListFile:
		printMediaSet(tw, f.Version, f.MediaSet)
		fmt.Fprintln(tw, "\nPART NUMBER\tFILENAME\tMEDIUM")
		for _, bi := range f.Batches {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", bi.PartNumber, bi.Filename, bi.MemberSequenceNumber)
		}
		printUserData(tw, f.UserDefinedData)
	case *LoadHeaderFile:
		fmt.Fprintf(tw, "VERSION\t%s\n", f.Version)
		fmt.Fprintf(tw, "PART NUMBER\t%s\n", f.PartNumber)
		fmt.Fprintf(tw, "PART FLAGS\t0x%04X\n", f.PartFlags)
		if f.LoadType != nil {
			fmt.Fprintf(tw, "LOAD TYPE\t%s (0x%04X)\n", f.LoadType.Description, f.LoadType.ID)
		}
		fmt.Fprintf(tw, "TARGETS\t%s\n", strings.Join(f.TargetHardwareIDs, ","))
		for _, p := range f.TargetHardwareIDPositions {
			fmt.Fprintf(tw, "  %s\t%s\n", p.TargetHardwareID, strings.Join(p.Positions, ","))
		}
		fmt.Fprintf(tw, "LOAD CHECK VALUE\t%s\n", f.LoadCheckValue)
		fmt.Fprintf(tw, "LOAD CRC\t%08X\n", f.LoadCrc)
		fmt.Fprintln(tw, "\nKIND\tFILENAME\tPART NUMBER\tLENGTH\tCRC\tCHECK VALUE")
		for _, df := range f.DataFiles {
			fmt.Fprintf(tw, "data\t%s\t%s\t%d\t%04X\t%s\n", df.Filename, df.PartNumber, df.Length, df.Crc, df.CheckValue)
		}
		for _, sf := range f.SupportFiles {
			fmt.Fprintf(tw, "support\t%s\t%s\t%d\t%04X\t%s\n", sf.Filename, sf.PartNumber, sf.Length, sf.Crc, sf.CheckValue)
		}
		printUserData(tw, f.UserDefinedData)
	case *BatchFile:
		fmt.Fprintf(tw, "VERSION\t%s\n", f.Version)
		fmt.Fprintf(tw, "PART NUMBER\t%s\n", f.PartNumber)
		fmt.Fprintf(tw, "COMMENT\t%s\n", f.Comment)
		fmt.Fprintln(tw, "\nPOSITION\tHEADER\tPART NUMBER")
		for _, target := range f.Targets {
			for _, l := range target.Loads {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", target.TargetHardwareIDPosition, l.HeaderFilename, l.PartNumber)
			}
		}
	}
	return tw.Flush()
}

func printMediaSet(w io.Writer, v arinc665.SupportedVersion, m MediaSetInformation) {
	fmt.Fprintf(w, "VERSION\t%s\n", v)
	fmt.Fprintf(w, "MEDIA SET\t%s\n", m.PartNumber)
	fmt.Fprintf(w, "MEDIUM\t%s of %s\n", m.MediaSequenceNumber, m.NumberOfMediaSetMembers)
}

func printUserData(w io.Writer, udd []byte) {
	if len(udd) == 0 {
		return
	}
	fmt.Fprintf(w, "\nUSER DEFINED DATA\t%d bytes\n", len(udd))
	fmt.Fprint(w, hex.Dump(udd))
}
