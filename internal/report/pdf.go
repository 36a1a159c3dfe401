package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"example.com/arinc665/internal/validate"
)

// Meta identifies the validated media set on the report cover.
type Meta struct {
	MediaSet       string
	Media          int
	Version        string
	ManifestDigest string
}

// SaveAcceptancePDF renders the acceptance report of a media set validation.
// A QR code of the manifest digest is added when meta carries one.
func SaveAcceptancePDF(rep validate.AcceptanceReport, meta Meta, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Media Set Acceptance Report", false)
	pdf.SetAuthor("a665ctl", false)
	pdf.SetCreator("a665ctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Media Set Acceptance Report")
	if err := addMediaSetSection(pdf, meta); err != nil {
		return err
	}
	addSummarySection(pdf, rep)
	addGateMatrixSection(pdf, rep.GateMatrix)
	addFindingsSection(pdf, rep.Findings)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addMediaSetSection(pdf *gofpdf.Fpdf, meta Meta) error {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Media Set")
	pdf.Ln(8)

	top := pdf.GetY()
	pdf.SetFont("Helvetica", "", 11)
	labelRows(pdf, [][2]string{
		{"Part Number", emptyFallback(meta.MediaSet, "-")},
		{"Media", strconv.Itoa(meta.Media)},
		{"Supplement", emptyFallback(meta.Version, "-")},
		{"Generated", time.Now().UTC().Format(time.RFC3339)},
	})
	if meta.ManifestDigest == "" {
		pdf.Ln(4)
		return nil
	}
	png, err := DigestToQR(meta.ManifestDigest, 256)
	if err != nil {
		return err
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("manifest-qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("manifest-qr", 160, top, 30, 30, false, opts, 0, "")
	pdf.SetFont("Helvetica", "", 8)
	pdf.MultiCell(140, 4, "Manifest digest: "+meta.ManifestDigest, "", "L", false)
	if y := top + 32; pdf.GetY() < y {
		pdf.SetY(y)
	}
	pdf.Ln(2)
	return nil
}

func labelRows(pdf *gofpdf.Fpdf, rows [][2]string) {
	for _, r := range rows {
		pdf.CellFormat(50, 6, r[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(90, 6, r[1], "", 1, "L", false, 0, "")
	}
}

func addSummarySection(pdf *gofpdf.Fpdf, rep validate.AcceptanceReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	labelRows(pdf, [][2]string{
		{"Checks", strconv.Itoa(rep.Summary.Total)},
		{"Errors", strconv.Itoa(rep.Summary.Errors)},
		{"Warnings", strconv.Itoa(rep.Summary.Warnings)},
		{"Checksum Failures", strconv.Itoa(rep.Summary.ChecksumFailures)},
		{"Integrity Failures", strconv.Itoa(rep.Summary.IntegrityFailures)},
		{"Overall", passLabel(rep.Summary.Pass)},
	})
	pdf.Ln(4)
}

func addGateMatrixSection(pdf *gofpdf.Fpdf, rows []map[string]any) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Gate Matrix")
	pdf.Ln(9)

	headers := []string{"Check", "Passed", "Failed", "Result"}
	widths := []float64{80, 30, 30, 30}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, row := range rows {
		pass, _ := row["pass"].(bool)
		values := []string{
			fmt.Sprint(row["check"]),
			fmt.Sprint(row["passed"]),
			fmt.Sprint(row["failed"]),
			passLabel(pass),
		}
		renderTableRow(pdf, widths, values, 5)
	}
	pdf.Ln(4)
}

// addFindingsSection lists failed and warned checks; passing checks only
// show up in the gate matrix counts.
func addFindingsSection(pdf *gofpdf.Fpdf, findings []validate.Diagnostic) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Findings")
	pdf.Ln(9)

	n := 0
	for _, d := range findings {
		if d.Severity == validate.INFO {
			continue
		}
		n++
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s %s (%s)", n, d.Check, emptyFallback(d.File, "media set"), severityLabel(d.Severity))
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(d.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}
		if meta := findingMetadata(d); meta != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, meta, "", "L", false)
		}
		pdf.Ln(2)
	}
	if n == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No findings recorded.", "", "L", false)
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		pdf.MultiCell(widths[i], lineHeight, strings.Join(lines, "\n"), "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+float64(maxLines)*lineHeight)
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func severityLabel(sev validate.Severity) string {
	if s := strings.TrimSpace(string(sev)); s != "" {
		return s
	}
	return "UNKNOWN"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func findingMetadata(d validate.Diagnostic) string {
	parts := make([]string, 0, 4)
	if !d.Ts.IsZero() {
		parts = append(parts, d.Ts.Format(time.RFC3339))
	}
	if d.Medium != 0 {
		parts = append(parts, fmt.Sprintf("Medium %03d", d.Medium))
	}
	if d.FileKind != "" {
		parts = append(parts, d.FileKind)
	}
	if d.ErrKind != "" {
		parts = append(parts, d.ErrKind)
	}
	return strings.Join(parts, ", ")
}
