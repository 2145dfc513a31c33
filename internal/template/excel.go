package template

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/contract"
)

// ExtractExcelTokens scans every cell of every sheet in the workbook for
// {{token}} placeholders and classifies them the same way as HTML extraction.
// Sheet order and row-major cell order give first-seen ordering.
func ExtractExcelTokens(path string) (*contract.TokenSets, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	var ordered []string
	seen := map[string]bool{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
		}
		for _, row := range rows {
			for _, cell := range row {
				for _, m := range tokenPattern.FindAllStringSubmatch(cell, -1) {
					if !seen[m[1]] {
						seen[m[1]] = true
						ordered = append(ordered, m[1])
					}
				}
			}
		}
	}
	return Classify(ordered), nil
}
