// Package export renders stored publications as spreadsheets and signed reports.
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"djeworker/internal/models"
)

// SheetName is the worksheet holding the exported publications.
const SheetName = "Publicações"

// builtin excelize number format "#,##0.00"
const amountNumFmt = 4

var xlsxHeaders = []string{
	"Processo",
	"Disponibilização",
	"Autor",
	"Réu",
	"Advogado",
	"Valor Principal",
	"Juros Moratórios",
	"Honorários",
	"Status",
}

// WriteXLSX writes pubs as a single-sheet workbook to w. Amounts are numeric
// cells; missing amounts are left blank.
func WriteXLSX(w io.Writer, pubs []models.Publication) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	amount, err := f.NewStyle(&excelize.Style{NumFmt: amountNumFmt})
	if err != nil {
		return fmt.Errorf("amount style: %w", err)
	}

	if err := f.SetSheetRow(SheetName, "A1", &xlsxHeaders); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	last, _ := excelize.CoordinatesToCellName(len(xlsxHeaders), 1)
	_ = f.SetCellStyle(SheetName, "A1", last, header)

	for i, p := range pubs {
		row := i + 2

		set := func(col int, v any) error {
			cell, _ := excelize.CoordinatesToCellName(col, row)

			return f.SetCellValue(SheetName, cell, v)
		}

		cells := []any{
			p.CaseNumberOrEmpty(),
			p.FilingDate.Format("02/01/2006"),
			deref(p.Plaintiff),
			p.Defendant,
			deref(p.Attorney),
		}

		for j, v := range cells {
			if err := set(j+1, v); err != nil {
				return fmt.Errorf("row %d: %w", row, err)
			}
		}

		for j, d := range []decimal.NullDecimal{p.Principal, p.Interest, p.Fees} {
			if !d.Valid {
				continue
			}

			cell, _ := excelize.CoordinatesToCellName(len(cells)+j+1, row)
			if err := f.SetCellFloat(SheetName, cell, d.Decimal.InexactFloat64(), 2, 64); err != nil {
				return fmt.Errorf("row %d: %w", row, err)
			}

			_ = f.SetCellStyle(SheetName, cell, cell, amount)
		}

		if err := set(len(xlsxHeaders), string(p.Status)); err != nil {
			return fmt.Errorf("row %d: %w", row, err)
		}
	}

	_ = f.SetColWidth(SheetName, "A", "A", 28)
	_ = f.SetColWidth(SheetName, "B", "B", 16)
	_ = f.SetColWidth(SheetName, "C", "E", 36)
	_ = f.SetColWidth(SheetName, "F", "H", 18)
	_ = f.SetColWidth(SheetName, "I", "I", 12)

	if err := f.SetPanes(SheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}

	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}

	return *s
}
