// Package export renders report collections as CSV and XLSX files.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"seroest/lifecycle"
	"seroest/models"
)

// Headers are the column titles of every export.
var Headers = []string{
	"Date",
	"Topographe",
	"Projet",
	"Phase",
	"Type Structure",
	"N° Structure",
	"Tâches",
	"Station",
	"Remarques",
	"Statut",
}

const sheetName = "Rapports"

// Row renders one report in column order.
func Row(r models.Report) []string {
	return []string{
		frenchDate(r.Date),
		r.UserName,
		r.ProjectName,
		phase(r),
		structureLabel(r.StructureType),
		r.StructureNumber,
		strings.Join(r.Tasks, ", "),
		r.StationName,
		r.Remarks,
		lifecycle.Label(r.Status),
	}
}

func phase(r models.Report) string {
	if r.PhaseName == "Autre" && r.PhaseOther == "" {
		return "Autre"
	}
	return r.PhaseLabel()
}

func structureLabel(t models.StructureType) string {
	switch t {
	case models.StructurePier:
		return "Pile"
	case models.StructureAbutment:
		return "Culée"
	}
	return string(t)
}

// frenchDate turns YYYY-MM-DD into DD/MM/YYYY; other values pass through.
func frenchDate(date string) string {
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return date
	}
	return t.Format("02/01/2006")
}

// Filename is the default download name for an export taken at t.
func Filename(t time.Time, ext string) string {
	return fmt.Sprintf("SERO-EST_Rapports_%s.%s", t.Format(models.DateLayout), ext)
}

// WriteCSV writes the header and one line per report.
func WriteCSV(w io.Writer, reports []models.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range reports {
		if err := cw.Write(Row(r)); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

var columnWidths = []float64{12, 16, 24, 28, 14, 12, 40, 14, 40, 18}

// Workbook builds a one-sheet workbook of reports.
func Workbook(reports []models.Report) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E2E8F0"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, h := range Headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, h)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, r := range reports {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := Row(r)
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %s: %w", r.ID, err)
		}
	}

	for i, w := range columnWidths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, col, col, w)
	}
	return f, nil
}

// WriteXLSX writes the workbook of reports to w.
func WriteXLSX(w io.Writer, reports []models.Report) error {
	f, err := Workbook(reports)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
