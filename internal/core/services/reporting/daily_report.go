package reporting

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/piwardrive/piwardrive/internal/core/domain"
)

// DetectionCounter reports per-source detection counts since a point in time.
type DetectionCounter interface {
	CountSince(ctx context.Context, since time.Time) (map[string]int, error)
}

// AnalyticsSource yields the derived rows the report summarizes.
type AnalyticsSource interface {
	AnalyticsForDate(ctx context.Context, date string) ([]*domain.NetworkAnalyticsRow, error)
	SuspiciousSince(ctx context.Context, since time.Time, limit int) ([]*domain.SuspiciousActivity, error)
}

// Generator produces the daily summary PDF.
type Generator struct {
	detections DetectionCounter
	analytics  AnalyticsSource
	dir        string
}

func NewGenerator(detections DetectionCounter, analytics AnalyticsSource, dir string) *Generator {
	return &Generator{detections: detections, analytics: analytics, dir: dir}
}

// DailySummary is the collected input of one report.
type DailySummary struct {
	Date        string // YYYY-MM-DD
	Counts      map[string]int
	TopRows     []*domain.NetworkAnalyticsRow
	Findings    []*domain.SuspiciousActivity
	GeneratedAt time.Time
}

const maxReportRows = 15

// GenerateDaily collects the day's data, renders the PDF and writes it into
// the reports directory. Returns the written file path.
func (g *Generator) GenerateDaily(ctx context.Context, day time.Time) (string, error) {
	day = day.UTC().Truncate(24 * time.Hour)
	summary := DailySummary{
		Date:        domain.FormatDate(day),
		GeneratedAt: time.Now().UTC(),
	}

	counts, err := g.detections.CountSince(ctx, day)
	if err != nil {
		return "", fmt.Errorf("reporting: count detections: %w", err)
	}
	summary.Counts = counts

	rows, err := g.analytics.AnalyticsForDate(ctx, summary.Date)
	if err != nil {
		return "", fmt.Errorf("reporting: fetch analytics: %w", err)
	}
	if len(rows) > maxReportRows {
		rows = rows[:maxReportRows]
	}
	summary.TopRows = rows

	findings, err := g.analytics.SuspiciousSince(ctx, day, maxReportRows)
	if err != nil {
		return "", fmt.Errorf("reporting: fetch findings: %w", err)
	}
	summary.Findings = findings

	body, err := Render(&summary)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("reporting: create reports dir: %w", err)
	}
	path := filepath.Join(g.dir, "piwardrive-"+summary.Date+".pdf")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return "", fmt.Errorf("reporting: write report: %w", err)
	}
	return path, nil
}

// Render builds the PDF document for a collected summary.
func Render(summary *DailySummary) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	addHeader(pdf, summary)
	addCounts(pdf, summary)
	addTopNetworks(pdf, summary)
	addFindings(pdf, summary)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("reporting: generate pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func addHeader(pdf *gofpdf.Fpdf, summary *DailySummary) {
	pdf.SetFont("Arial", "B", 22)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 14, "PiWardrive Daily Summary", "", 1, "L", false, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 7, "Survey date: "+summary.Date, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 7, "Generated: "+summary.GeneratedAt.Format("2006-01-02 15:04 MST"), "", 1, "L", false, 0, "")
	pdf.Ln(6)
}

func addCounts(pdf *gofpdf.Fpdf, summary *DailySummary) {
	sectionTitle(pdf, "Detections")

	pdf.SetFont("Arial", "", 11)
	pdf.SetTextColor(40, 40, 40)
	for _, source := range []string{"wifi", "bluetooth", "cellular"} {
		line := fmt.Sprintf("%-10s %d", source, summary.Counts[source])
		pdf.CellFormat(0, 7, line, "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)
}

func addTopNetworks(pdf *gofpdf.Fpdf, summary *DailySummary) {
	sectionTitle(pdf, "Top Networks")
	if len(summary.TopRows) == 0 {
		emptyLine(pdf)
		return
	}

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 235, 240)
	pdf.CellFormat(45, 7, "BSSID", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 7, "Detections", "1", 0, "R", true, 0, "")
	pdf.CellFormat(25, 7, "Mean dBm", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 7, "Coverage m", "1", 0, "R", true, 0, "")
	pdf.CellFormat(30, 7, "Suspicious", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for _, row := range summary.TopRows {
		pdf.CellFormat(45, 6, row.BSSID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%d", row.TotalDetections), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, fmt.Sprintf("%.1f", row.SignalMean), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.0f", row.CoverageRadiusM), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", row.SuspiciousScore), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(4)
}

func addFindings(pdf *gofpdf.Fpdf, summary *DailySummary) {
	sectionTitle(pdf, "Suspicious Activity")
	if len(summary.Findings) == 0 {
		emptyLine(pdf)
		return
	}

	for _, f := range summary.Findings {
		r, g, b := severityColor(f.Severity)
		pdf.SetFont("Arial", "B", 10)
		pdf.SetTextColor(r, g, b)
		pdf.CellFormat(0, 6, fmt.Sprintf("[%s] %s", f.Severity, f.Type), "", 1, "L", false, 0, "")

		pdf.SetFont("Arial", "", 9)
		pdf.SetTextColor(60, 60, 60)
		target := f.TargetBSSID
		if f.TargetSSID != "" {
			target += " (" + f.TargetSSID + ")"
		}
		pdf.CellFormat(0, 5, target, "", 1, "L", false, 0, "")
		pdf.Ln(1)
	}
}

func sectionTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 14)
	pdf.SetTextColor(0, 51, 102)
	pdf.CellFormat(0, 9, title, "", 1, "L", false, 0, "")
}

func emptyLine(pdf *gofpdf.Fpdf) {
	pdf.SetFont("Arial", "I", 10)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(0, 6, "nothing recorded", "", 1, "L", false, 0, "")
	pdf.Ln(4)
}

func severityColor(severity domain.RiskLevel) (int, int, int) {
	switch severity {
	case domain.RiskHigh:
		return 220, 53, 69
	case domain.RiskMedium:
		return 255, 149, 0
	default:
		return 40, 167, 69
	}
}
