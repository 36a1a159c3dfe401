// Package report writes validation acceptance reports as JSON and PDF.
package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"example.com/arinc665/internal/validate"
)

// SaveAcceptanceJSON writes rep through a temporary file in the target
// directory, so a reader never sees a partial report.
func SaveAcceptanceJSON(rep validate.AcceptanceReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(out), ".acceptance-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(append(b, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, out); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// LoadAcceptanceJSON reads a report written by SaveAcceptanceJSON. Unknown
// fields are rejected.
func LoadAcceptanceJSON(path string) (validate.AcceptanceReport, error) {
	var rep validate.AcceptanceReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rep); err != nil {
		return rep, err
	}
	if rep.Summary.Total == 0 && len(rep.GateMatrix) == 0 {
		return rep, errors.New("acceptance report has no results")
	}
	return rep, nil
}

// MetaOf returns the cover data recorded with rep. Fields set in override
// win.
func MetaOf(rep validate.AcceptanceReport, override Meta) Meta {
	meta := override
	if ms := rep.MediaSet; ms != nil {
		if meta.MediaSet == "" {
			meta.MediaSet = ms.PartNumber
		}
		if meta.Media == 0 {
			meta.Media = ms.Media
		}
		if meta.Version == "" {
			meta.Version = ms.Version
		}
	}
	return meta
}
