// Package xlsx renders the attendance matrix into a styled workbook:
// merged month and week header rows, one weekday per column, one
// employee per row in roster order with fills marking PTO, travel and
// holidays.
package xlsx

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"teamcal/internal/grid"
	"teamcal/internal/model"
	"teamcal/internal/roster"
	"teamcal/internal/schedule"
)

// SheetName is the single worksheet every workbook carries.
const SheetName = "Calendar View"

const (
	fillPTO     = "F28C28"
	fillTravel  = "0070C0"
	fillHoliday = "C0C0C0"

	nameColWidth = 20
	dayColWidth  = 7

	monthRow = 1
	weekRow  = 2
	dayRow   = 3
	firstRow = 4
)

// Filename returns the dated workbook name, e.g. calendar_view_063026.xlsx.
func Filename(today model.Day) string {
	return fmt.Sprintf("calendar_view_%s.xlsx", today.Time(time.UTC).Format("010206"))
}

// Render builds the workbook in memory. The caller saves it or streams
// it out.
func Render(plan grid.Plan, matrix schedule.Matrix, forest *roster.Forest) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, fmt.Errorf("xlsx: rename sheet: %w", err)
	}

	st, err := newStyleSet(f)
	if err != nil {
		return nil, err
	}

	cols, err := columnNames(len(plan.Columns))
	if err != nil {
		return nil, err
	}

	if err := writeHeader(f, st, plan, cols); err != nil {
		return nil, err
	}
	if err := writeRows(f, st, plan, matrix, forest, cols); err != nil {
		return nil, err
	}
	if err := setWidths(f, cols); err != nil {
		return nil, err
	}
	return f, nil
}

// Write renders and saves the workbook at path.
func Write(path string, plan grid.Plan, matrix schedule.Matrix, forest *roster.Forest) error {
	f, err := Render(plan, matrix, forest)
	if err != nil {
		return err
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx: save %s: %w", path, err)
	}
	return nil
}

// columnNames maps column index i to the sheet column letter of day
// column i. Day columns start at B; A holds the employee names.
func columnNames(n int) ([]string, error) {
	out := make([]string, n)
	for i := range out {
		name, err := excelize.ColumnNumberToName(i + 2)
		if err != nil {
			return nil, fmt.Errorf("xlsx: column %d: %w", i, err)
		}
		out[i] = name
	}
	return out, nil
}

func writeHeader(f *excelize.File, st *styleSet, plan grid.Plan, cols []string) error {
	corner := fmt.Sprintf("A%d", dayRow)
	if err := f.SetCellValue(SheetName, corner, "Employee"); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, corner, corner, st.border); err != nil {
		return err
	}

	for i, d := range plan.Columns {
		cell := fmt.Sprintf("%s%d", cols[i], dayRow)
		if err := f.SetCellValue(SheetName, cell, grid.DayLabel(d)); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, cell, cell, st.header); err != nil {
			return err
		}
	}

	for _, span := range plan.Weeks {
		if err := writeSpan(f, st, cols, weekRow, span); err != nil {
			return err
		}
	}
	for _, span := range plan.Months {
		if err := writeSpan(f, st, cols, monthRow, span); err != nil {
			return err
		}
	}
	return nil
}

// writeSpan merges the span's run of header cells and labels the anchor.
func writeSpan(f *excelize.File, st *styleSet, cols []string, row int, span grid.Span) error {
	first := fmt.Sprintf("%s%d", cols[span.Start], row)
	last := fmt.Sprintf("%s%d", cols[span.End], row)
	if first != last {
		if err := f.MergeCell(SheetName, first, last); err != nil {
			return err
		}
	}
	if err := f.SetCellValue(SheetName, first, span.Label); err != nil {
		return err
	}
	return f.SetCellStyle(SheetName, first, first, st.header)
}

// writeRows emits one row per roster node in display order. Employees
// without a single marked day still get a bordered, empty row.
func writeRows(f *excelize.File, st *styleSet, plan grid.Plan, matrix schedule.Matrix, forest *roster.Forest, cols []string) error {
	row := firstRow
	for _, node := range forest.Nodes {
		nameCell := fmt.Sprintf("A%d", row)
		if err := f.SetCellValue(SheetName, nameCell, node.Name); err != nil {
			return err
		}
		nameStyle, err := st.indent(node.Depth)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetName, nameCell, nameCell, nameStyle); err != nil {
			return err
		}

		for i, d := range plan.Columns {
			style := st.border
			if status, ok := matrix.Status(node.Name, d); ok {
				switch status {
				case model.StatusPTO:
					style = st.pto
				case model.StatusTravel:
					style = st.travel
				case model.StatusHoliday:
					style = st.holiday
				}
			}
			cell := fmt.Sprintf("%s%d", cols[i], row)
			if err := f.SetCellStyle(SheetName, cell, cell, style); err != nil {
				return err
			}
		}
		row++
	}
	return nil
}

func setWidths(f *excelize.File, cols []string) error {
	if err := f.SetColWidth(SheetName, "A", "A", nameColWidth); err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil
	}
	return f.SetColWidth(SheetName, cols[0], cols[len(cols)-1], dayColWidth)
}

// styleSet holds the style IDs shared across the sheet. Name-cell
// styles vary by tree depth and are created on first use.
type styleSet struct {
	f       *excelize.File
	border  int
	header  int
	pto     int
	travel  int
	holiday int
	indents map[int]int
}

func newStyleSet(f *excelize.File) (*styleSet, error) {
	st := &styleSet{f: f, indents: map[int]int{}}

	var err error
	if st.border, err = f.NewStyle(&excelize.Style{Border: thinBorder()}); err != nil {
		return nil, fmt.Errorf("xlsx: border style: %w", err)
	}
	if st.header, err = f.NewStyle(&excelize.Style{
		Border:    thinBorder(),
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	}); err != nil {
		return nil, fmt.Errorf("xlsx: header style: %w", err)
	}
	if st.pto, err = st.fillStyle(fillPTO); err != nil {
		return nil, err
	}
	if st.travel, err = st.fillStyle(fillTravel); err != nil {
		return nil, err
	}
	if st.holiday, err = st.fillStyle(fillHoliday); err != nil {
		return nil, err
	}
	return st, nil
}

func (st *styleSet) fillStyle(color string) (int, error) {
	id, err := st.f.NewStyle(&excelize.Style{
		Border: thinBorder(),
		Fill:   excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
	})
	if err != nil {
		return 0, fmt.Errorf("xlsx: fill style %s: %w", color, err)
	}
	return id, nil
}

func (st *styleSet) indent(depth int) (int, error) {
	if id, ok := st.indents[depth]; ok {
		return id, nil
	}
	id, err := st.f.NewStyle(&excelize.Style{
		Border:    thinBorder(),
		Alignment: &excelize.Alignment{Horizontal: "left", Indent: depth},
	})
	if err != nil {
		return 0, fmt.Errorf("xlsx: indent style %d: %w", depth, err)
	}
	st.indents[depth] = id
	return id, nil
}

func thinBorder() []excelize.Border {
	return []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
}
