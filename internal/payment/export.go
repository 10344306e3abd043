package payment

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const exportSheet = "Verifications"

var exportHeaders = []string{
	"Created At",
	"ID",
	"Reference",
	"Amount",
	"Decision",
	"Code",
	"Message",
	"Amount Status",
	"Remainder",
	"Reasons",
	"Warnings",
	"Consumed At",
	"File",
}

// ExportXLSX returns the verification log as an XLSX workbook
func (s *Service) ExportXLSX() ([]byte, error) {
	start := s.timeSource.Now()

	verifications, err := s.db.ListVerifications()
	if err != nil {
		return nil, fmt.Errorf("listing verifications: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(exportSheet, cell, h); err != nil {
			return nil, fmt.Errorf("writing header: %w", err)
		}
	}

	for i, v := range verifications {
		row := i + 2
		for col, value := range exportRow(v) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(exportSheet, cell, value); err != nil {
				return nil, fmt.Errorf("writing row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(exportSheet, "A", "A", 20) // created
	_ = f.SetColWidth(exportSheet, "B", "C", 38) // id, reference
	_ = f.SetColWidth(exportSheet, "G", "G", 80) // message
	_ = f.SetColWidth(exportSheet, "J", "K", 60) // reasons, warnings

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("writing xlsx: %w", err)
	}

	slog.Info("Exported verifications",
		"rows", len(verifications),
		"elapsed_ms", s.timeSource.Now().Sub(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func exportRow(v *Verification) []any {
	row := []any{
		v.CreatedAt.Format(time.DateTime),
		v.ID,
		v.Reference,
		v.Amount,
		"", 0, "", "", "", "", "",
		"",
		v.Filename,
	}
	if v.Result != nil {
		if d := v.Result.Decision; d != nil {
			row[4] = string(d.Decision)
			row[5] = d.PrimaryCode
			row[6] = d.Message
		}
		if r := v.Result.VerificationResult; r != nil {
			row[7] = string(r.AmountStatus)
			row[8] = r.Remainder.StringFixed(2)
			row[9] = strings.Join(r.Reasons, "; ")
			row[10] = strings.Join(r.Warnings, "; ")
		}
	}
	if v.ConsumedAt != nil {
		row[11] = v.ConsumedAt.Format(time.DateTime)
	}
	return row
}
