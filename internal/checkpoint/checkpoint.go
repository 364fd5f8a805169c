// Package checkpoint persists per-target crawl progress so that an
// interrupted run resumes from its recorded page cursors without
// re-counting reviews it has already accepted.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/vielabs/tiki-review-crawler/internal/review"
)

// document is the on-disk checkpoint layout. Per-star maps are keyed by
// the star as a decimal string so existing checkpoint files stay
// readable across versions.
type document struct {
	URL        string              `json:"url"`
	Completed  bool                `json:"completed"`
	Targets    map[string]int      `json:"targets"`
	Counts     map[string]int      `json:"counts"`
	PagesDone  map[string]int      `json:"pages_done"`
	Exhausted  map[string]bool     `json:"exhausted"`
	SeenHashes map[string][]string `json:"seen_hashes"`
	LastUpdate float64             `json:"last_update"`
}

// Checkpoint is the durable state of one target. Every mutating method
// persists the full document synchronously before returning, so a crash
// between two calls loses at most the in-flight page's progress.
type Checkpoint struct {
	path string
	doc  document
	seen map[string]struct{}
}

const totalKey = "total"

func starKey(star int) string { return strconv.Itoa(star) }

// newDocument returns a zeroed checkpoint document for a target.
func newDocument(url string, plan review.QuotaPlan) document {
	d := document{
		URL:        url,
		Targets:    targetsFromPlan(plan),
		Counts:     map[string]int{totalKey: 0},
		PagesDone:  map[string]int{},
		Exhausted:  map[string]bool{},
		SeenHashes: map[string][]string{},
	}
	for _, s := range review.StarLevels {
		k := starKey(s)
		d.Counts[k] = 0
		d.PagesDone[k] = 0
		d.Exhausted[k] = false
		d.SeenHashes[k] = []string{}
	}
	return d
}

func targetsFromPlan(plan review.QuotaPlan) map[string]int {
	t := map[string]int{totalKey: plan.Total}
	for _, s := range review.StarLevels {
		t[starKey(s)] = plan.Star(s)
	}
	return t
}

func (c *Checkpoint) planFromTargets() review.QuotaPlan {
	plan := review.QuotaPlan{
		Total:   c.doc.Targets[totalKey],
		PerStar: make(map[int]int, len(review.StarLevels)),
	}
	for _, s := range review.StarLevels {
		plan.PerStar[s] = c.doc.Targets[starKey(s)]
	}
	return plan
}

// rebuildSeen indexes every recorded dedup key across all star buckets.
func (c *Checkpoint) rebuildSeen() {
	c.seen = make(map[string]struct{})
	for _, bucket := range c.doc.SeenHashes {
		for _, h := range bucket {
			c.seen[h] = struct{}{}
		}
	}
}

// URL returns the target URL this checkpoint belongs to.
func (c *Checkpoint) URL() string { return c.doc.URL }

// Completed reports whether the target reached its terminal state.
func (c *Checkpoint) Completed() bool { return c.doc.Completed }

// Count returns the accepted-review count for one star bucket.
func (c *Checkpoint) Count(star int) int { return c.doc.Counts[starKey(star)] }

// TotalCount returns the accepted-review count across all buckets.
func (c *Checkpoint) TotalCount() int { return c.doc.Counts[totalKey] }

// PlanTotal returns the total cap of the active quota plan.
func (c *Checkpoint) PlanTotal() int { return c.doc.Targets[totalKey] }

// PageCursor returns how many pages were already consumed for a star.
func (c *Checkpoint) PageCursor(star int) int { return c.doc.PagesDone[starKey(star)] }

// IsExhausted reports whether upstream ran out of pages for a star.
func (c *Checkpoint) IsExhausted(star int) bool { return c.doc.Exhausted[starKey(star)] }

// HasKey reports whether the dedup key was already counted for any star.
func (c *Checkpoint) HasKey(key string) bool {
	_, ok := c.seen[key]
	return ok
}

// WantsMore reports whether a star bucket still has quota headroom and
// upstream pages left to offer.
func (c *Checkpoint) WantsMore(star int) bool {
	k := starKey(star)
	return !c.doc.Exhausted[k] && c.doc.Counts[k] < c.doc.Targets[k]
}

// TotalReached reports whether the plan's total cap is met.
func (c *Checkpoint) TotalReached() bool {
	return c.doc.Counts[totalKey] >= c.doc.Targets[totalKey]
}

// AllExhausted reports whether every star bucket ran out of pages.
func (c *Checkpoint) AllExhausted() bool {
	for _, s := range review.StarLevels {
		if !c.doc.Exhausted[starKey(s)] {
			return false
		}
	}
	return true
}

// Reconcile aligns the stored quota plan with the caller's plan. A
// changed plan replaces the stored one; a completed target whose count
// falls short of the new total reverts to incomplete; raising the total
// above the previously stored plan total resets every exhaustion flag
// and page cursor so further pages can be scanned.
func (c *Checkpoint) Reconcile(plan review.QuotaPlan) error {
	stored := c.planFromTargets()
	if stored.Equal(plan) {
		if c.doc.Completed && c.doc.Counts[totalKey] < plan.Total {
			c.doc.Completed = false
			return c.save()
		}
		return nil
	}

	previousTotal := stored.Total
	c.doc.Targets = targetsFromPlan(plan)
	if c.doc.Completed && c.doc.Counts[totalKey] < plan.Total {
		c.doc.Completed = false
	}
	if previousTotal < plan.Total {
		for _, s := range review.StarLevels {
			k := starKey(s)
			c.doc.Exhausted[k] = false
			c.doc.PagesDone[k] = 0
		}
	}
	return c.save()
}

// RecordAccepted adds newly seen dedup keys to a star bucket and bumps
// its counters. Keys already present are ignored, so replaying a batch
// never double-counts. It returns how many keys were genuinely new.
func (c *Checkpoint) RecordAccepted(star int, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	k := starKey(star)
	known := make(map[string]struct{}, len(c.doc.SeenHashes[k]))
	for _, h := range c.doc.SeenHashes[k] {
		known[h] = struct{}{}
	}

	var added int
	for _, h := range keys {
		if h == "" {
			continue
		}
		if _, ok := known[h]; ok {
			continue
		}
		known[h] = struct{}{}
		c.doc.SeenHashes[k] = append(c.doc.SeenHashes[k], h)
		c.seen[h] = struct{}{}
		added++
	}
	if added == 0 {
		return 0, nil
	}
	c.doc.Counts[k] += added
	c.doc.Counts[totalKey] += added
	if err := c.save(); err != nil {
		return added, err
	}
	return added, nil
}

// AdvancePage bumps the consumed-page cursor for a star.
func (c *Checkpoint) AdvancePage(star int) error {
	c.doc.PagesDone[starKey(star)]++
	return c.save()
}

// MarkExhausted records that upstream has no further pages for a star.
func (c *Checkpoint) MarkExhausted(star int) error {
	c.doc.Exhausted[starKey(star)] = true
	return c.save()
}

// MarkCompleted records the target's terminal state.
func (c *Checkpoint) MarkCompleted() error {
	c.doc.Completed = true
	return c.save()
}

func (c *Checkpoint) save() error {
	c.doc.LastUpdate = float64(time.Now().UnixNano()) / float64(time.Second)
	data, err := json.MarshalIndent(c.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
