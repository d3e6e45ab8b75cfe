package reporting

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"github.com/lcalzada-xor/vmtrack/internal/core/domain"
)

// PDFExporter renders the comparative dataset as a PDF suitable for
// attaching to the compliance mailing.
type PDFExporter struct{}

// NewPDFExporter creates a new PDF exporter instance.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Export generates the compliance report PDF.
func (e *PDFExporter) Export(ds *domain.Dataset) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	e.addHeader(pdf, ds)
	e.addComplianceBanner(pdf, ds)
	e.addPassFailTable(pdf, ds)
	e.addBreaches(pdf, ds)
	e.addTopHosts(pdf, ds)
	e.addFooter(pdf, ds)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to generate PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) addHeader(pdf *gofpdf.Fpdf, ds *domain.Dataset) {
	pdf.SetFont("Arial", "B", 24)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 15, "Vulnerability Compliance Report", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated: %s", ds.GeneratedAt.Format("2006-01-02 15:04")), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 6, fmt.Sprintf("Group %d | Window: %s to %s",
		ds.GroupID,
		ds.WindowStart.Format("2006-01-02"),
		ds.WindowEnd.Format("2006-01-02")), "", 1, "L", false, 0, "")
	pdf.Ln(8)
}

// addComplianceBanner draws the headline in/out of compliance totals in a
// colored box, red when anything is out of window.
func (e *PDFExporter) addComplianceBanner(pdf *gofpdf.Fpdf, ds *domain.Dataset) {
	pass, fail := 0, 0
	for _, b := range domain.BucketOrder {
		pf := ds.CurrentCompStats.PassFail[b]
		pass += pf.Pass
		fail += pf.Fail
	}

	r, g, bl := 52, 199, 89 // green
	if fail > 0 {
		r, g, bl = 220, 53, 69 // red
	}
	pdf.SetFillColor(r, g, bl)
	pdf.Rect(20, pdf.GetY(), 170, 30, "F")

	y := pdf.GetY()
	pdf.SetFont("Arial", "B", 36)
	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(25, y+5)
	pdf.CellFormat(80, 20, fmt.Sprintf("%d/%d", pass, pass+fail), "", 0, "L", false, 0, "")

	pdf.SetFont("Arial", "B", 16)
	pdf.SetXY(110, y+8)
	label := "In Compliance"
	if fail > 0 {
		label = fmt.Sprintf("%d Out of Window", fail)
	}
	pdf.CellFormat(80, 14, label, "", 0, "L", false, 0, "")

	pdf.SetY(y + 35)
	pdf.Ln(5)
}

func (e *PDFExporter) addPassFailTable(pdf *gofpdf.Fpdf, ds *domain.Dataset) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Compliance by Impact", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(50, 8, "Impact", "1", 0, "L", true, 0, "")
	pdf.CellFormat(40, 8, "In", "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, 8, "Out", "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, 8, "Nodes", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, b := range domain.BucketOrder {
		pf := ds.CurrentCompStats.PassFail[b]
		r, g, bl := bucketColor(b)
		pdf.SetTextColor(r, g, bl)
		pdf.CellFormat(50, 7, string(b), "1", 0, "L", false, 0, "")
		pdf.SetTextColor(60, 60, 60)
		pdf.CellFormat(40, 7, fmt.Sprintf("%d", pf.Pass), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 7, fmt.Sprintf("%d", pf.Fail), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 7, fmt.Sprintf("%d", ds.CurrentStats.NodeImpact[b]), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addBreaches(pdf *gofpdf.Fpdf, ds *domain.Dataset) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Outside Compliance Window", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	total := 0
	for _, b := range []domain.Bucket{domain.BucketMaximum, domain.BucketHigh} {
		total += len(ds.CurrentCompStats.ImpactSummary[b])
	}
	if total == 0 {
		pdf.SetFont("Arial", "I", 10)
		pdf.SetTextColor(100, 100, 100)
		pdf.CellFormat(0, 7, "No maximum or high impact findings outside their window", "", 1, "L", false, 0, "")
		pdf.Ln(5)
		return
	}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(100, 8, "Vulnerability", "1", 0, "L", true, 0, "")
	pdf.CellFormat(35, 8, "Impact", "1", 0, "C", true, 0, "")
	pdf.CellFormat(35, 8, "Instances", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, b := range []domain.Bucket{domain.BucketMaximum, domain.BucketHigh} {
		for _, ent := range ds.CurrentCompStats.ImpactSummary[b] {
			if pdf.GetY() > 250 {
				pdf.AddPage()
			}
			title := ent.Title
			if len(title) > 55 {
				title = title[:52] + "..."
			}
			pdf.SetTextColor(60, 60, 60)
			pdf.CellFormat(100, 7, title, "1", 0, "L", false, 0, "")
			r, g, bl := bucketColor(b)
			pdf.SetTextColor(r, g, bl)
			pdf.CellFormat(35, 7, string(b), "1", 0, "C", false, 0, "")
			pdf.SetTextColor(60, 60, 60)
			pdf.CellFormat(35, 7, fmt.Sprintf("%d", ent.Count), "1", 1, "C", false, 0, "")
		}
	}
	pdf.Ln(8)
}

func (e *PDFExporter) addTopHosts(pdf *gofpdf.Fpdf, ds *domain.Dataset) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 10, "Top Hosts by Cumulative Impact", "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 10)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(65, 8, "Hostname", "1", 0, "L", true, 0, "")
	pdf.CellFormat(45, 8, "Address", "1", 0, "L", true, 0, "")
	pdf.CellFormat(30, 8, "Findings", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 8, "Impact", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(60, 60, 60)
	for i, hi := range ds.CurrentStats.HostImpact {
		if i >= 10 {
			break
		}
		if pdf.GetY() > 250 {
			pdf.AddPage()
		}
		pdf.CellFormat(65, 7, hi.Hostname, "1", 0, "L", false, 0, "")
		pdf.CellFormat(45, 7, hi.Address, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%d", hi.Count), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 7, fmt.Sprintf("%.1f", hi.Score), "1", 1, "C", false, 0, "")
	}
	pdf.Ln(8)
}

func bucketColor(b domain.Bucket) (r, g, bl int) {
	switch b {
	case domain.BucketMaximum:
		return 220, 53, 69 // red
	case domain.BucketHigh:
		return 255, 149, 0 // orange
	default:
		return 255, 204, 0 // yellow
	}
}

func (e *PDFExporter) addFooter(pdf *gofpdf.Fpdf, ds *domain.Dataset) {
	pdf.SetY(-20)
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(20, pdf.GetY(), 190, pdf.GetY())
	pdf.Ln(3)

	pdf.SetFont("Arial", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 5, fmt.Sprintf("Run ID: %s", ds.RunID.String()), "", 1, "C", false, 0, "")
}
