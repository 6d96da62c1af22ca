// Package export renders officer listings as downloadable CSV, Excel and PDF reports.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"welfareflow/internal/columns"
	"welfareflow/internal/domain"
	"welfareflow/internal/listing"
	"welfareflow/internal/metrics"
)

const (
	FormatCSV   = "csv"
	FormatExcel = "excel"
	FormatPDF   = "pdf"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePDF  = "application/pdf"

	sheetName       = "Report"
	timestampLayout = "20060102150405"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

type Request struct {
	listing.Request
	Format string
}

type Report struct {
	Body        []byte
	ContentType string
	Filename    string
}

type Service struct {
	Listing listing.Service
	Now     func() time.Time
}

// Export materializes the officer's listing. Scope InView exports only the
// requested page; any other scope exports every row. Pool rows follow the
// main rows and the per-row actions column is never exported.
func (s Service) Export(ctx context.Context, officer domain.Officer, req Request) (Report, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	ext, contentType, ok := formatInfo(format)
	if !ok {
		return Report{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
	res, err := s.Listing.ListApplications(ctx, officer, req.Request)
	if err != nil {
		return Report{}, err
	}
	cols := make([]columns.Column, 0, len(res.Columns))
	for _, c := range res.Columns {
		if c.Key != "customActions" {
			cols = append(cols, c)
		}
	}
	rows := combine(res.Data, res.PoolData)

	var body []byte
	switch format {
	case FormatCSV:
		body, err = renderCSV(cols, rows)
	case FormatExcel:
		body, err = renderExcel(cols, rows)
	case FormatPDF:
		body, err = renderPDF(title(req.StatusFilter), cols, rows)
	}
	if err != nil {
		return Report{}, fmt.Errorf("render %s: %w", format, err)
	}
	metrics.RecordExport(format)
	return Report{
		Body:        body,
		ContentType: contentType,
		Filename:    Filename(req.Scope, ext, s.now()),
	}, nil
}

// Filename builds Report_{scope}_{timestamp}.{ext}.
func Filename(scope, ext string, at time.Time) string {
	if strings.TrimSpace(scope) == "" {
		scope = "All"
	}
	return fmt.Sprintf("Report_%s_%s.%s", scope, at.Format(timestampLayout), ext)
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func formatInfo(format string) (ext, contentType string, ok bool) {
	switch format {
	case FormatCSV:
		return "csv", contentTypeCSV, true
	case FormatExcel:
		return "xlsx", contentTypeXLSX, true
	case FormatPDF:
		return "pdf", contentTypePDF, true
	}
	return "", "", false
}

// combine appends pool rows after the main rows and numbers them as one
// table, continuing from the first main row's serial number.
func combine(main, pool []columns.Row) []columns.Row {
	next := 1
	if len(main) > 0 {
		if n, ok := main[0]["sno"].(int); ok {
			next = n
		}
	}
	out := make([]columns.Row, 0, len(main)+len(pool))
	for _, src := range append(append([]columns.Row{}, main...), pool...) {
		r := make(columns.Row, len(src))
		for k, v := range src {
			r[k] = v
		}
		if _, ok := r["sno"]; ok {
			r["sno"] = next
		}
		next++
		out = append(out, r)
	}
	return out
}

func title(status string) string {
	if status == "" {
		return "Applications"
	}
	return "Applications (" + status + ")"
}

func cell(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func renderCSV(cols []columns.Column, rows []columns.Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = c.Header
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range rows {
		record := make([]string, len(cols))
		for i, c := range cols {
			record[i] = cell(r[c.Key])
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func renderExcel(cols []columns.Column, rows []columns.Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	for i, c := range cols {
		name, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, name, c.Header); err != nil {
			return nil, err
		}
	}
	if len(cols) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(cols), 1)
		if err := f.SetCellStyle(sheetName, "A1", last, bold); err != nil {
			return nil, err
		}
	}
	for ri, r := range rows {
		for ci, c := range cols {
			name, err := excelize.CoordinatesToCellName(ci+1, ri+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, name, r[c.Key]); err != nil {
				return nil, err
			}
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// newReportPDF returns a landscape A4 document and the translator that maps
// UTF-8 text onto the core fonts' cp1252 encoding.
func newReportPDF() (*fpdf.Fpdf, func(string) string) {
	pdf := fpdf.New("L", "mm", "A4", "")
	return pdf, pdf.UnicodeTranslatorFromDescriptor("")
}

func renderPDF(heading string, cols []columns.Column, rows []columns.Row) ([]byte, error) {
	pdf, tr := newReportPDF()
	pdf.SetTitle(heading, true)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(heading), "", 1, "L", false, 0, "")

	width := 0.0
	if len(cols) > 0 {
		pageW, _ := pdf.GetPageSize()
		left, _, right, _ := pdf.GetMargins()
		width = (pageW - left - right) / float64(len(cols))
	}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range cols {
		pdf.CellFormat(width, 8, tr(c.Header), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	for _, r := range rows {
		for _, c := range cols {
			pdf.CellFormat(width, 7, fit(pdf, tr(cell(r[c.Key])), width-2), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// fit truncates already translated single-byte text so it renders within width.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	for len(s) > 0 && pdf.GetStringWidth(s+"...") > width {
		s = s[:len(s)-1]
	}
	return s + "..."
}
