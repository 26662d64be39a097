// Package report renders the e-Waybill register workbook
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/gst-compliance/internal/application/port"
	"github.com/garyjia/gst-compliance/internal/domain/entity"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// SheetName is the register worksheet
const SheetName = "E-Waybill Register"

var ist = time.FixedZone("IST", 5*60*60+30*60)

const displayLayout = "02-01-2006 15:04"

var headers = []string{
	"E-Waybill No", "Document Type", "Document Name", "Company GSTIN",
	"Generated On", "Valid Upto", "Transporter ID", "Vehicle No",
	"Distance (km)", "Document Value (INR)", "Status", "Sandbox",
}

// RegisterWriter builds register workbooks
type RegisterWriter struct {
	companyName string
	logger      *zap.Logger
}

// NewRegisterWriter creates a new register writer
func NewRegisterWriter(companyName string, logger *zap.Logger) *RegisterWriter {
	return &RegisterWriter{companyName: companyName, logger: logger}
}

// Write renders rows for the period [from, to) and returns the xlsx bytes
func (w *RegisterWriter) Write(rows []port.RegisterRow, from, to time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	title := fmt.Sprintf("%s e-Waybill register %s to %s",
		w.companyName, from.In(ist).Format("02-01-2006"), to.In(ist).Format("02-01-2006"))
	w.setCell(f, "A1", strings.TrimSpace(title))

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetSheetRow(SheetName, "A3", &headers); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 3, 3, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	total := decimal.Zero
	active := 0
	for i, row := range rows {
		rec := row.Record
		if rec == nil {
			continue
		}
		values := []interface{}{
			rec.Number,
			rec.DocumentType.String(),
			rec.DocumentName,
			rec.CompanyGSTIN,
			rec.CreatedOn.In(ist).Format(displayLayout),
			formatOptional(rec.ValidUpto),
			rec.TransporterID,
			rec.VehicleNo,
			rec.Distance,
			FormatINR(row.DocumentValue),
			rec.Status,
			yesNo(rec.IsGeneratedInSandboxMode),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+4)
		if err != nil {
			return nil, fmt.Errorf("failed to locate row %d: %w", i+1, err)
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
		if rec.Status != entity.EwaybillStatusCancelled {
			total = total.Add(row.DocumentValue.Abs())
		}
		if rec.IsActive() {
			active++
		}
	}

	summaryRow := len(rows) + 5
	w.setCell(f, fmt.Sprintf("A%d", summaryRow), "Total e-Waybills")
	w.setCell(f, fmt.Sprintf("B%d", summaryRow), len(rows))
	w.setCell(f, fmt.Sprintf("A%d", summaryRow+1), "Active")
	w.setCell(f, fmt.Sprintf("B%d", summaryRow+1), active)
	// cancelled e-Waybills moved nothing
	w.setCell(f, fmt.Sprintf("A%d", summaryRow+2), "Value moved (INR)")
	w.setCell(f, fmt.Sprintf("B%d", summaryRow+2), FormatINR(total))

	if err := f.SetColWidth(SheetName, "A", "L", 18); err != nil {
		w.logger.Warn("Failed to set column width", zap.Error(err))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	w.logger.Info("E-waybill register rendered",
		zap.Int("rows", len(rows)),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

// setCell sets a cell value, logging rather than failing on a bad cell
func (w *RegisterWriter) setCell(f *excelize.File, cell string, value interface{}) {
	if err := f.SetCellValue(SheetName, cell, value); err != nil {
		w.logger.Warn("Failed to set cell value",
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func formatOptional(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(ist).Format(displayLayout)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

// FormatINR renders an amount with Indian digit grouping, e.g. 12,34,567.89
func FormatINR(amount decimal.Decimal) string {
	s := amount.Abs().StringFixed(2)
	intPart, frac := s[:len(s)-3], s[len(s)-3:]

	var grouped string
	if len(intPart) <= 3 {
		grouped = intPart
	} else {
		head, tail := intPart[:len(intPart)-3], intPart[len(intPart)-3:]
		var parts []string
		for len(head) > 2 {
			parts = append([]string{head[len(head)-2:]}, parts...)
			head = head[:len(head)-2]
		}
		if head != "" {
			parts = append([]string{head}, parts...)
		}
		grouped = strings.Join(parts, ",") + "," + tail
	}

	if amount.IsNegative() {
		return "-" + grouped + frac
	}
	return grouped + frac
}

var _ port.RegisterRenderer = (*RegisterWriter)(nil)
