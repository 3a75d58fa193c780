package main

import (
	"fmt"

	"github.com/couchcryptid/traffic-eagle/internal/domain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xuri/excelize/v2"
)

var rateHeader = []string{"State", "Name", "Accidents", "Population", "Rate per million"}

func renderRateTable(year int, rates []domain.StateRate) string {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Accident rates %d", year))

	header := make(table.Row, len(rateHeader))
	for i, h := range rateHeader {
		header[i] = h
	}
	t.AppendHeader(header)

	rows := make([]table.Row, 0, len(rates))
	for _, r := range rates {
		rows = append(rows, table.Row{r.State, domain.StateName(r.State), r.Count, r.Population, fmt.Sprintf("%.2f", r.Rate)})
	}
	t.AppendRows(rows)

	t.SetStyle(table.StyleDefault)
	return t.Render()
}

// exportRates writes one sheet holding the year's rate table.
func exportRates(path string, year int, rates []domain.StateRate) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := fmt.Sprintf("Rates %d", year)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	for i, h := range rateHeader {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	for row, r := range rates {
		values := []any{r.State, domain.StateName(r.State), r.Count, r.Population, r.Rate}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	if err := f.SetColWidth(sheet, "A", "E", 18); err != nil {
		return err
	}

	return f.SaveAs(path)
}
