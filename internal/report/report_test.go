package report

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"example.com/arinc665/internal/arinc665"
	"example.com/arinc665/internal/media"
	"example.com/arinc665/internal/validate"
)

func sampleReport() validate.AcceptanceReport {
	c := validate.NewCollector()
	c.Add(validate.FileResult{Kind: validate.FileChecked, Medium: 1, Path: "/LOAD/APP.BIN", FileKind: media.KindFile, Passed: true})
	c.Add(validate.FileResult{
		Kind:     validate.FileChecked,
		Medium:   1,
		Path:     "/LOAD/APP.LUH",
		FileKind: media.KindLoad,
		Err:      arinc665.IntegrityErrorf("APP.LUH: load CRC mismatch"),
	})
	c.SetMediaSet(validate.MediaSetInfo{PartNumber: "ABC12-3456-789A", Media: 2, Version: "supplement345"})
	return c.MakeAcceptance()
}

func TestAcceptanceJSONRoundTrip(t *testing.T) {
	rep := sampleReport()
	out := filepath.Join(t.TempDir(), "acceptance.json")
	if err := SaveAcceptanceJSON(rep, out); err != nil {
		t.Fatalf("SaveAcceptanceJSON: %v", err)
	}
	got, err := LoadAcceptanceJSON(out)
	if err != nil {
		t.Fatalf("LoadAcceptanceJSON: %v", err)
	}
	if got.Summary != rep.Summary {
		t.Fatalf("summary = %+v, want %+v", got.Summary, rep.Summary)
	}
	if len(got.Findings) != 2 || got.Findings[1].ErrKind != rep.Findings[1].ErrKind {
		t.Fatalf("findings = %+v", got.Findings)
	}
	if got.MediaSet == nil || *got.MediaSet != *rep.MediaSet {
		t.Fatalf("media set = %+v, want %+v", got.MediaSet, rep.MediaSet)
	}
	left, err := filepath.Glob(filepath.Join(filepath.Dir(out), ".acceptance-*"))
	if err != nil || len(left) != 0 {
		t.Fatalf("temporary files left behind: %v, %v", left, err)
	}
}

func TestLoadAcceptanceJSONErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", `{"summary":{"total":1,"pass":true},"gateMatrix":[],"verdict":"ok"}`},
		{"no results", `{"summary":{"total":0},"gateMatrix":[]}`},
		{"truncated", `{"summary":`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "acceptance.json")
			if err := os.WriteFile(path, []byte(tc.content), 0o644); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			if _, err := LoadAcceptanceJSON(path); err == nil {
				t.Fatalf("LoadAcceptanceJSON accepted %s", tc.content)
			}
		})
	}
}

func TestMetaOf(t *testing.T) {
	rep := sampleReport()
	tests := []struct {
		name     string
		override Meta
		want     Meta
	}{
		{"recorded", Meta{}, Meta{MediaSet: "ABC12-3456-789A", Media: 2, Version: "supplement345"}},
		{"override", Meta{MediaSet: "OTHER", Version: "supplement2", ManifestDigest: "ab"}, Meta{MediaSet: "OTHER", Media: 2, Version: "supplement2", ManifestDigest: "ab"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := MetaOf(rep, tc.override); got != tc.want {
				t.Fatalf("MetaOf = %+v, want %+v", got, tc.want)
			}
		})
	}
	rep.MediaSet = nil
	if got := MetaOf(rep, Meta{Media: 3}); got != (Meta{Media: 3}) {
		t.Fatalf("MetaOf without media set = %+v", got)
	}
}

func TestSaveAcceptancePDF(t *testing.T) {
	tests := []struct {
		name string
		meta Meta
	}{
		{"plain", Meta{MediaSet: "ABC12-3456-789A", Media: 2, Version: "supplement345"}},
		{"with qr", Meta{MediaSet: "ABC12-3456-789A", Media: 1, ManifestDigest: "ba7816bf8f01cfea414140de5dae2223"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "acceptance.pdf")
			if err := SaveAcceptancePDF(sampleReport(), tc.meta, out); err != nil {
				t.Fatalf("SaveAcceptancePDF: %v", err)
			}
			b, err := os.ReadFile(out)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			if !bytes.HasPrefix(b, []byte("%PDF-")) {
				t.Fatalf("output is not a PDF: %q", b[:8])
			}
		})
	}
}

func TestDigestToQR(t *testing.T) {
	png, err := DigestToQR(" ab-cd:ef ", 0)
	if err != nil {
		t.Fatalf("DigestToQR: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("not a png")
	}
	if sanitizeDigest(" ab-cd:ef ") != "ABCDEF" {
		t.Fatalf("sanitizeDigest = %q", sanitizeDigest(" ab-cd:ef "))
	}
	if _, err := DigestToQR("xyz", 64); err == nil {
		t.Fatalf("expected error for empty digest")
	}
}
