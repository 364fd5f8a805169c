// Package catalog loads the product-link catalog: a JSON document of
// categories, each holding brand blocks whose items carry marketplace
// URL lists. One reserved brand key marks the house brand.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// marketplaceKey names the URL list consumed from each catalog item.
const marketplaceKey = "tiki"

var whitespace = regexp.MustCompile(`\s+`)

// Entry is one crawlable product link with its catalog context.
type Entry struct {
	URL      string
	Category string
	Model    string
	// Primary marks house-brand entries, which get their own quota
	// group and carry no brand column.
	Primary bool
}

// Load reads and flattens the catalog file. Blocks that do not match
// the expected shape are skipped rather than fatal; catalog files are
// hand-maintained.
func Load(path, primaryKey string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data, primaryKey)
}

// Parse flattens catalog JSON into entries, categories in document
// order not guaranteed.
func Parse(data []byte, primaryKey string) ([]Entry, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	var entries []Entry
	for rawCategory, rawGroup := range doc {
		group, ok := rawGroup.(map[string]any)
		if !ok {
			continue
		}
		category := categoryLabel(rawCategory)

		for brandKey, value := range group {
			primary := brandKey == primaryKey
			switch block := value.(type) {
			case map[string]any:
				for modelLabel, items := range block {
					model := modelLabel
					if !primary {
						model = NormalizeModelLabel(modelLabel)
					}
					entries = append(entries, itemEntries(items, category, model, primary)...)
				}
			case []any:
				// flat brand block: the brand key doubles as the model
				entries = append(entries, itemEntries(value, category, NormalizeModelLabel(brandKey), primary)...)
			}
		}
	}
	return entries, nil
}

func itemEntries(items any, category, model string, primary bool) []Entry {
	list, ok := items.([]any)
	if !ok {
		return nil
	}
	var entries []Entry
	for _, rawItem := range list {
		item, ok := rawItem.(map[string]any)
		if !ok {
			continue
		}
		links, ok := item[marketplaceKey].([]any)
		if !ok {
			continue
		}
		for _, rawLink := range links {
			url, ok := rawLink.(string)
			if !ok || url == "" {
				continue
			}
			entries = append(entries, Entry{
				URL:      url,
				Category: category,
				Model:    model,
				Primary:  primary,
			})
		}
	}
	return entries
}

// categoryLabel renders a category key for output rows: underscores
// become spaces.
func categoryLabel(key string) string {
	return strings.ReplaceAll(key, "_", " ")
}

// NormalizeModelLabel squeezes a model label down to its first token,
// treating underscores as spaces.
func NormalizeModelLabel(label string) string {
	label = strings.TrimSpace(strings.ReplaceAll(label, "_", " "))
	if label == "" {
		return ""
	}
	parts := whitespace.Split(label, -1)
	for _, p := range parts {
		if p != "" {
			return p
		}
	}
	return label
}
