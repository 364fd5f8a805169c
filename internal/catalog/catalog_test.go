package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleCatalog = `{
  "Den_ban": {
    "rangdong": {
      "DB01": [
        {"tiki": ["https://tiki.vn/a-p1.html", "https://tiki.vn/b-p2.html"], "lazada": ["https://lazada.vn/x"]}
      ]
    },
    "philips": {
      "HUE_Go v2": [
        {"tiki": ["https://tiki.vn/c-p3.html"]}
      ]
    },
    "osram": [
      {"tiki": ["https://tiki.vn/d-p4.html"]}
    ]
  },
  "Den tran": {
    "rangdong": {
      "DT05": [
        {"tiki": ["https://tiki.vn/e-p5.html"]}
      ]
    }
  },
  "ignored": "not a group"
}`

func byURL(t *testing.T, entries []Entry) map[string]Entry {
	t.Helper()
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		require.NotContains(t, m, e.URL)
		m[e.URL] = e
	}
	return m
}

func TestParseFlattensAllShapes(t *testing.T) {
	t.Parallel()

	entries, err := Parse([]byte(sampleCatalog), "rangdong")
	require.NoError(t, err)
	require.Len(t, entries, 5)
	m := byURL(t, entries)

	// house-brand block: model key kept verbatim, category underscores
	// become spaces, non-tiki links ignored
	a := m["https://tiki.vn/a-p1.html"]
	require.True(t, a.Primary)
	require.Equal(t, "Den ban", a.Category)
	require.Equal(t, "DB01", a.Model)
	require.True(t, m["https://tiki.vn/b-p2.html"].Primary)

	// keyed brand block: model label squeezed to its first token
	c := m["https://tiki.vn/c-p3.html"]
	require.False(t, c.Primary)
	require.Equal(t, "HUE", c.Model)

	// flat brand block: the brand key doubles as the model
	d := m["https://tiki.vn/d-p4.html"]
	require.False(t, d.Primary)
	require.Equal(t, "osram", d.Model)

	e := m["https://tiki.vn/e-p5.html"]
	require.True(t, e.Primary)
	require.Equal(t, "Den tran", e.Category)
	require.Equal(t, "DT05", e.Model)
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	t.Parallel()
	_, err := Parse([]byte("{broken"), "rangdong")
	require.Error(t, err)
}

func TestParseSkipsMalformedBlocks(t *testing.T) {
	t.Parallel()

	entries, err := Parse([]byte(`{
	  "Cat": {
	    "brand": {"M1": "not-a-list", "M2": [{"tiki": "not-a-list"}, {"tiki": [42, "https://tiki.vn/ok-p9.html"]}]}
	  }
	}`), "rangdong")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "https://tiki.vn/ok-p9.html", entries[0].URL)
	require.Equal(t, "M2", entries[0].Model)
}

func TestLoadReadsFromDisk(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "products.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleCatalog), 0o600))

	entries, err := Load(path, "rangdong")
	require.NoError(t, err)
	require.Len(t, entries, 5)

	_, err = Load(filepath.Join(t.TempDir(), "missing.json"), "rangdong")
	require.Error(t, err)
}

func TestNormalizeModelLabel(t *testing.T) {
	t.Parallel()

	require.Equal(t, "HUE", NormalizeModelLabel("HUE_Go v2"))
	require.Equal(t, "A19", NormalizeModelLabel("  A19  dimmable "))
	require.Equal(t, "", NormalizeModelLabel("   "))
	require.Equal(t, "solo", NormalizeModelLabel("solo"))
}
