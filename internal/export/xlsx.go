// Package export serializes compiled report rows to xlsx buffers. It is the
// file collaborator the report compiler delegates to; the compiler itself
// performs no I/O.
package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"campusattend/internal/report"
)

const sheet = "Attendance"

// Detailed writes the daily shape: one row per (student, lesson) with the
// check-in time. Returns the buffer and a suggested filename.
func Detailed(rows []report.DetailedRow, moduleCode string) (*bytes.Buffer, string, error) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", sheet)

	header := []string{"Student", "Lesson Date", "Location", "Status", "Check-in"}
	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for r, row := range rows {
		checkIn := ""
		if row.CheckIn != nil {
			checkIn = row.CheckIn.Format("15:04:05")
		}
		values := []any{
			row.StudentID,
			row.LessonStart.Format("2006-01-02 15:04"),
			row.Location,
			string(row.Status),
			checkIn,
		}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}
	return buf, fmt.Sprintf("attendance_%s_detailed.xlsx", moduleCode), nil
}

// Matrix writes the monthly shape: one row per student, one status-letter
// column per lesson date, trailing percentage column.
func Matrix(m report.Matrix, moduleCode string) (*bytes.Buffer, string, error) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", sheet)

	f.SetCellValue(sheet, "A1", "Student")
	for i, d := range m.Dates {
		cell, _ := excelize.CoordinatesToCellName(i+2, 1)
		f.SetCellValue(sheet, cell, d.Format("01-02"))
	}
	pctCol, _ := excelize.CoordinatesToCellName(len(m.Dates)+2, 1)
	f.SetCellValue(sheet, pctCol, "%")

	for r, row := range m.Rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		f.SetCellValue(sheet, cell, row.StudentID)
		for c, letter := range row.Cells {
			cell, _ := excelize.CoordinatesToCellName(c+2, r+2)
			f.SetCellValue(sheet, cell, letter)
		}
		cell, _ = excelize.CoordinatesToCellName(len(row.Cells)+2, r+2)
		f.SetCellValue(sheet, cell, row.RatePercent)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}
	return buf, fmt.Sprintf("attendance_%s_matrix.xlsx", moduleCode), nil
}
