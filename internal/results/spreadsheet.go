package results

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/opin-voting/backend/internal/models"
)

// SheetName is the worksheet holding exported results.
const SheetName = "Results"

// Percentage formats count as a share of total with one decimal, or "0%"
// when there are no ballots.
func Percentage(count, total int) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", float64(count)/float64(total)*100)
}

// SpreadsheetRows returns the cell values of the results sheet, row by row.
func SpreadsheetRows(d *models.VoteDetails) [][]interface{} {
	var question, status string
	anonymous := false
	if d.Opin != nil {
		question = d.Opin.Question
		status = string(d.Opin.Status)
		anonymous = d.Opin.Anonymous
	}
	rows := [][]interface{}{
		{"Opin Results"},
		{""},
		{"Question:", question},
		{"Total Votes:", d.TotalVotes},
		{"Status:", status},
		{""},
		{"Option", "Votes", "Percentage", "Voters"},
	}
	for _, opt := range d.Options {
		voters := "Anonymous"
		if !anonymous {
			voters = strings.Join(opt.Voters, ", ")
		}
		rows = append(rows, []interface{}{opt.Text, opt.Count, Percentage(opt.Count, d.TotalVotes), voters})
	}
	return rows
}

// Spreadsheet builds the XLSX workbook for a result set.
func Spreadsheet(d *models.VoteDetails) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		f.Close()
		return nil, err
	}
	for i, row := range SpreadsheetRows(d) {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			f.Close()
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			f.Close()
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	return f, nil
}

// WriteSpreadsheet writes the XLSX workbook for a result set to w.
func WriteSpreadsheet(w io.Writer, d *models.VoteDetails) error {
	f, err := Spreadsheet(d)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Write(w)
}
