package render

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/sarida/backend/internal/domain"
)

// Workbook sheet names.
const (
	SheetIndices   = "Indices"
	SheetTrends    = "Tendencias"
	SheetTrendLine = "Tendencia_SPEI_12"
)

// WorkbookXLSX writes the joined index table, the Mann-Kendall rows and the
// SPEI_12 trend line to an XLSX workbook.
func WorkbookXLSX(w io.Writer, a domain.Analysis) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetIndices); err != nil {
		return fmt.Errorf("render: workbook: %w", err)
	}
	if err := writeIndices(f, a); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetTrends); err != nil {
		return fmt.Errorf("render: workbook: %w", err)
	}
	if err := writeTrends(f, a.Trends); err != nil {
		return err
	}

	if _, err := f.NewSheet(SheetTrendLine); err != nil {
		return fmt.Errorf("render: workbook: %w", err)
	}
	if err := writeRow(f, SheetTrendLine, 1, []any{"Fecha", a.TrendOf, "Tendencia"}); err != nil {
		return err
	}
	column := a.Column(a.TrendOf)
	for i, pt := range a.TrendLine {
		row := []any{pt.Date.Format("2006-01"), nil, pt.Value}
		if i < len(column) {
			row[1] = column[i].Value
		}
		if err := writeRow(f, SheetTrendLine, i+2, row); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("render: failed to write workbook: %w", err)
	}
	return nil
}

func writeIndices(f *excelize.File, a domain.Analysis) error {
	indexNames := make([]string, len(a.Trends))
	for i, tr := range a.Trends {
		indexNames[i] = tr.Index
	}

	header := []any{"Fecha"}
	for _, h := range domain.FeatureNames {
		header = append(header, h)
	}
	for _, h := range indexNames {
		header = append(header, h)
	}
	if err := writeRow(f, SheetIndices, 1, header); err != nil {
		return err
	}
	for col := 1; col <= len(header); col++ {
		name, _ := excelize.ColumnNumberToName(col)
		_ = f.SetColWidth(SheetIndices, name, name, 12)
	}

	for i, r := range a.Rows {
		row := []any{r.Time.Format("2006-01")}
		for _, v := range r.Features() {
			row = append(row, v)
		}
		for _, name := range indexNames {
			row = append(row, r.Indices[name])
		}
		if err := writeRow(f, SheetIndices, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeTrends(f *excelize.File, trends []domain.TrendResult) error {
	header := []any{"Índice", "n", "Pendiente de Sen", "Intercepto", "Tau", "Z", "p-valor", "Tendencia", "Significativa"}
	if err := writeRow(f, SheetTrends, 1, header); err != nil {
		return err
	}
	for i, tr := range trends {
		row := []any{tr.Index, tr.N, tr.Slope, tr.Intercept, tr.Tau, tr.Z, tr.PValue, tr.Trend, tr.Significant}
		if err := writeRow(f, SheetTrends, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("render: workbook: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("render: workbook %s row %d: %w", sheet, row, err)
	}
	return nil
}
