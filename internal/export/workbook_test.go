package export

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vielabs/tiki-review-crawler/internal/review"
)

func row(key, reviewer string) review.Row {
	return review.Row{
		Category:    "Den ban",
		Model:       "DB01",
		ProductName: "Den ban LED",
		Rating:      5,
		Reviewer:    reviewer,
		ReviewDate:  "2024-03-01",
		Body:        "tot",
		ProductLink: "https://tiki.vn/a-p1.html",
		DedupKey:    key,
		Source:      "Tiki",
	}
}

func TestWriteProducesSheetsPerGroup(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reviews.xlsx")
	err := Write(path, []Sheet{
		{Name: "RD", Rows: []review.Row{row("k1", "An"), row("k2", "Binh")}},
		{Name: "OTHER", Rows: []review.Row{row("k3", "Chi")}},
	})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	require.ElementsMatch(t, []string{"RD", "OTHER"}, f.GetSheetList())

	rows, err := f.GetRows("RD")
	require.NoError(t, err)
	require.Len(t, rows, 3) // header + 2 rows
	require.Equal(t, "category", rows[0][0])
	require.Equal(t, "review_id_hash", rows[0][11])
	require.Equal(t, "An", rows[1][5])
	require.Equal(t, "Binh", rows[2][5])

	rows, err = f.GetRows("OTHER")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Chi", rows[1][5])
}

func TestWriteCollapsesDuplicateKeys(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reviews.xlsx")
	err := Write(path, []Sheet{
		{Name: "RD", Rows: []review.Row{row("k1", "An"), row("k1", "An again"), row("k2", "Binh")}},
	})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("RD")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "An", rows[1][5])
}

func TestWriteSkipsEmptySheets(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reviews.xlsx")
	err := Write(path, []Sheet{
		{Name: "RD"},
		{Name: "OTHER", Rows: []review.Row{row("k1", "An")}},
	})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{"OTHER"}, f.GetSheetList())
}
