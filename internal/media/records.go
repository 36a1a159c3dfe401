package media

import (
	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/files"
)

// Information returns the list file media information for medium.
func (ms *MediaSet) Information(medium arinc665.MediumNumber) files.MediaSetInformation {
	return files.MediaSetInformation{
		PartNumber:              ms.partNumber,
		MediaSequenceNumber:     medium,
		NumberOfMediaSetMembers: arinc665.MediumNumber(ms.numberOfMedia),
	}
}

// LoadList builds the LOADS.LUM record for medium. Every medium lists all
// loads of the media set.
func (ms *MediaSet) LoadList(v arinc665.SupportedVersion, medium arinc665.MediumNumber) *files.LoadListFile {
	f := &files.LoadListFile{
		Version:         v,
		MediaSet:        ms.Information(medium),
		UserDefinedData: ms.loadsUserDefinedData,
	}
	for _, l := range ms.Loads() {
		f.Loads = append(f.Loads, files.LoadInfo{
			PartNumber:           l.PartNumber(),
			HeaderFilename:       l.Name(),
			MemberSequenceNumber: l.Medium(),
			TargetHardwareIDs:    l.TargetHardwareIDs(),
		})
	}
	return f
}

// BatchList builds the BATCHES.LUM record for medium.
func (ms *MediaSet) BatchList(v arinc665.SupportedVersion, medium arinc665.MediumNumber) *files.BatchListFile {
	f := &files.BatchListFile{
		Version:         v,
		MediaSet:        ms.Information(medium),
		UserDefinedData: ms.batchesUserDefinedData,
	}
	for _, b := range ms.Batches() {
		f.Batches = append(f.Batches, files.BatchInfo{
			PartNumber:           b.PartNumber(),
			Filename:             b.Name(),
			MemberSequenceNumber: b.Medium(),
		})
	}
	return f
}

// BatchFile builds the batch file record of b.
func (b Batch) BatchFile(v arinc665.SupportedVersion) *files.BatchFile {
	f := &files.BatchFile{Version: v, PartNumber: b.PartNumber(), Comment: b.Comment()}
	for _, t := range b.Targets() {
		loads := make([]files.BatchLoadInfo, 0, len(t.Loads))
		for _, l := range t.Loads {
			loads = append(loads, files.BatchLoadInfo{HeaderFilename: l.Name(), PartNumber: l.PartNumber()})
		}
		f.AddTarget(t.Position, loads...)
	}
	return f
}

// LoadHeader builds the load header record of l without file lengths, CRCs
// or check values; the compiler fills those in from the file contents.
func (l Load) LoadHeader(v arinc665.SupportedVersion) *files.LoadHeaderFile {
	h := &files.LoadHeaderFile{
		Version:           v,
		PartNumber:        l.PartNumber(),
		TargetHardwareIDs: l.TargetHardwareIDs(),
		UserDefinedData:   l.UserDefinedData(),
	}
	if v == arinc665.Supplement345 {
		h.PartFlags = l.PartFlags()
		h.LoadType = l.LoadType()
		h.TargetHardwareIDPositions = l.TargetHardwareIDPositions()
	}
	for _, df := range l.DataFiles() {
		h.DataFiles = append(h.DataFiles, files.LoadFileInfo{Filename: df.File.Name(), PartNumber: df.PartNumber})
	}
	for _, sf := range l.SupportFiles() {
		h.SupportFiles = append(h.SupportFiles, files.LoadFileInfo{Filename: sf.File.Name(), PartNumber: sf.PartNumber})
	}
	return h
}
