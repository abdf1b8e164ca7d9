package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// VoucherDocument carries the fields rendered onto the approval artifact.
type VoucherDocument struct {
	Number      string
	Title       string
	ClubName    string
	EventDate   string
	EventVenue  string
	Budget      string
	Description string
	Status      string
	CreatedBy   string
	Approvals   []ApprovalLine
}

// ApprovalLine is one row of the approval trail table.
type ApprovalLine struct {
	Actor   string
	Role    string
	Action  string
	From    string
	To      string
	At      string
	Comment string
}

// VoucherPDFExporter renders an approved voucher into a printable PDF.
type VoucherPDFExporter struct{}

// NewVoucherPDFExporter constructs a PDF exporter.
func NewVoucherPDFExporter() *VoucherPDFExporter {
	return &VoucherPDFExporter{}
}

// Render produces the voucher artifact bytes.
func (e *VoucherPDFExporter) Render(doc VoucherDocument) ([]byte, error) {
	if doc.Number == "" {
		return nil, fmt.Errorf("pdf requires a voucher number")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "CLUB EVENT VOUCHER", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Voucher No. %s", doc.Number), "", 1, "C", false, 0, "")
	pdf.Ln(6)

	fields := []struct {
		label string
		value string
	}{
		{"Title", doc.Title},
		{"Club", doc.ClubName},
		{"Event date", doc.EventDate},
		{"Venue", doc.EventVenue},
		{"Budget", doc.Budget},
		{"Submitted by", doc.CreatedBy},
		{"Status", strings.ToUpper(doc.Status)},
	}
	pdf.SetFont("Arial", "", 11)
	for _, f := range fields {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(45, 8, f.label, "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(135, 8, f.value, "1", 1, "", false, 0, "")
	}

	if doc.Description != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(0, 8, "Description", "", 1, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(180, 6, doc.Description, "1", "", false)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, "Approval trail", "", 1, "", false, 0, "")

	headers := []struct {
		label string
		width float64
	}{
		{"Actor", 40},
		{"Role", 30},
		{"Action", 25},
		{"Decision", 45},
		{"Date", 40},
	}
	pdf.SetFont("Arial", "B", 9)
	for _, h := range headers {
		pdf.CellFormat(h.width, 7, h.label, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, line := range doc.Approvals {
		pdf.CellFormat(40, 7, line.Actor, "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 7, line.Role, "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 7, line.Action, "1", 0, "", false, 0, "")
		pdf.CellFormat(45, 7, fmt.Sprintf("%s -> %s", line.From, line.To), "1", 0, "", false, 0, "")
		pdf.CellFormat(40, 7, line.At, "1", 1, "", false, 0, "")
		if line.Comment != "" {
			pdf.SetFont("Arial", "I", 8)
			pdf.CellFormat(180, 6, fmt.Sprintf("note: %s", line.Comment), "1", 1, "", false, 0, "")
			pdf.SetFont("Arial", "", 9)
		}
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render voucher pdf: %w", err)
	}
	return buf.Bytes(), nil
}
