// Package export writes collected review rows into an XLSX workbook,
// one sheet per quota group.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/vielabs/tiki-review-crawler/internal/review"
)

var header = []any{
	"category", "brand", "product_model", "product_name", "rating",
	"reviewer", "review_date", "review_text", "image_urls", "video_urls",
	"product_link", "review_id_hash", "from",
}

// Sheet pairs a workbook sheet name with its rows.
type Sheet struct {
	Name string
	Rows []review.Row
}

// Write renders the workbook to path. Rows sharing a dedup key within
// a sheet collapse to the first occurrence, and sheets without rows are
// left out entirely.
func Write(path string, sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	wrote := 0
	for _, sheet := range sheets {
		rows := dedupRows(sheet.Rows)
		if len(rows) == 0 {
			continue
		}
		if wrote == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet.Name); err != nil {
				return fmt.Errorf("name sheet %s: %w", sheet.Name, err)
			}
		} else {
			if _, err := f.NewSheet(sheet.Name); err != nil {
				return fmt.Errorf("add sheet %s: %w", sheet.Name, err)
			}
		}
		if err := writeSheet(f, sheet.Name, rows); err != nil {
			return err
		}
		wrote++
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, name string, rows []review.Row) error {
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return fmt.Errorf("write header on %s: %w", name, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("cell for row %d: %w", i+2, err)
		}
		values := []any{
			row.Category, row.Brand, row.Model, row.ProductName, row.Rating,
			row.Reviewer, row.ReviewDate, row.Body, row.ImageURLs, row.VideoURLs,
			row.ProductLink, row.DedupKey, row.Source,
		}
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return fmt.Errorf("write row %d on %s: %w", i+2, name, err)
		}
	}
	return nil
}

func dedupRows(rows []review.Row) []review.Row {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0:0]
	for _, row := range rows {
		if _, ok := seen[row.DedupKey]; ok {
			continue
		}
		seen[row.DedupKey] = struct{}{}
		out = append(out, row)
	}
	return out
}
