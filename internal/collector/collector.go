// Package collector runs the quota-balanced crawl for one target: a
// star-ascending fill pass followed by a star-descending backfill pass,
// with every accepted review recorded in the target's checkpoint before
// the next page is requested.
package collector

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/vielabs/tiki-review-crawler/internal/checkpoint"
	"github.com/vielabs/tiki-review-crawler/internal/review"
	"github.com/vielabs/tiki-review-crawler/internal/telemetry"
	"github.com/vielabs/tiki-review-crawler/internal/tikiapi"
)

// sourceTag marks every produced row with its marketplace of origin.
const sourceTag = "Tiki"

// Fetcher is the upstream surface the collector consumes.
type Fetcher interface {
	ReviewsPage(ctx context.Context, productID string, page, star int) ([]review.ReviewRecord, tikiapi.PageMeta, error)
	ProductInfo(ctx context.Context, productID string) (tikiapi.ProductInfo, error)
}

// Sink receives accepted rows as they are collected. Save returns how
// many rows were newly persisted.
type Sink interface {
	Save(ctx context.Context, group string, rows []review.Row) (int, error)
}

// Target describes one product page to crawl.
type Target struct {
	URL      string
	Group    string
	Category string
	Model    string
	Plan     review.QuotaPlan
	// Primary targets belong to the house brand: their rows carry no
	// brand column.
	Primary bool
}

// Collector orchestrates crawls across the fetcher, the sink and the
// checkpoint store.
type Collector struct {
	fetcher Fetcher
	sink    Sink
	store   *checkpoint.Store
	log     *zap.Logger
}

// New wires a Collector.
func New(fetcher Fetcher, sink Sink, store *checkpoint.Store, log *zap.Logger) *Collector {
	return &Collector{fetcher: fetcher, sink: sink, store: store, log: log}
}

// Crawl collects reviews for one target until its quota plan is met or
// upstream runs dry, and returns the rows accepted during this run.
// Progress persists in the checkpoint, so a later call resumes instead
// of refetching.
func (c *Collector) Crawl(ctx context.Context, t Target) ([]review.Row, error) {
	productID, err := tikiapi.ParseProductID(t.URL)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", t.URL, err)
	}

	info, err := c.fetcher.ProductInfo(ctx, productID)
	if err != nil {
		// metadata is decoration; the crawl proceeds without it
		c.log.Warn("product info unavailable",
			zap.String("url", t.URL), zap.Error(err))
		info = tikiapi.ProductInfo{}
	}

	ck, err := c.store.Load(t.URL, t.Plan)
	if err != nil {
		return nil, err
	}

	run := &targetRun{
		collector: c,
		target:    t,
		productID: productID,
		info:      info,
		ck:        ck,
	}

	// Phase 1: stars ascending, bounded by per-star and total caps.
	for _, star := range review.StarLevels {
		if ctx.Err() != nil {
			return run.collected, ctx.Err()
		}
		if ck.IsExhausted(star) {
			continue
		}
		for ck.WantsMore(star) && !ck.TotalReached() {
			more, err := run.fillPage(ctx, star)
			if err != nil {
				return run.collected, err
			}
			if !more {
				break
			}
		}
	}

	// Phase 2: stars descending, total cap only. Exhaustion flags stay
	// untouched so a raised plan can revisit these stars from page one.
	if !ck.TotalReached() {
		for i := len(review.StarLevels) - 1; i >= 0; i-- {
			star := review.StarLevels[i]
			if ctx.Err() != nil {
				return run.collected, ctx.Err()
			}
			if ck.TotalReached() {
				break
			}
			for !ck.TotalReached() {
				more, err := run.backfillPage(ctx, star)
				if err != nil {
					return run.collected, err
				}
				if !more {
					break
				}
			}
		}
	}

	if ck.TotalReached() || ck.AllExhausted() {
		if err := ck.MarkCompleted(); err != nil {
			return run.collected, err
		}
		telemetry.ObserveTargetCompleted()
		c.log.Info("target completed",
			zap.String("url", t.URL),
			zap.Int("total", ck.TotalCount()),
			zap.Int("cap", ck.PlanTotal()))
	}
	return run.collected, nil
}

// targetRun holds the per-crawl state shared by both phases.
type targetRun struct {
	collector *Collector
	target    Target
	productID string
	info      tikiapi.ProductInfo
	ck        *checkpoint.Checkpoint
	collected []review.Row
}

// fillPage consumes one phase-1 page for a star. It reports whether
// further pages may follow. A fetch failure isolates to this star; only
// checkpoint persistence failures surface as errors.
func (r *targetRun) fillPage(ctx context.Context, star int) (bool, error) {
	records, meta, ok := r.fetchPage(ctx, star)
	if !ok {
		return false, nil
	}

	var (
		rows        []review.Row
		keys        []string
		pendingStar int
	)
	for _, rec := range records {
		if r.ck.TotalCount()+len(keys) >= r.target.Plan.Total {
			break
		}
		rating := effectiveRating(rec.Rating, star)
		if rating != star {
			continue
		}
		if r.ck.Count(star)+pendingStar >= r.target.Plan.Star(star) {
			continue
		}
		key := review.DedupKey(r.target.URL, rec.Reviewer, rec.ReviewDate, rec.Body)
		if r.ck.HasKey(key) || containsKey(keys, key) {
			continue
		}
		rows = append(rows, r.makeRow(rec, rating, key))
		keys = append(keys, key)
		pendingStar++
	}

	if err := r.commit(ctx, star, rows, keys); err != nil {
		return false, err
	}
	return r.finishPage(star, meta, len(records), true)
}

// backfillPage consumes one phase-2 page for a star. Only the total cap
// applies, and exhaustion flags are left alone.
func (r *targetRun) backfillPage(ctx context.Context, star int) (bool, error) {
	records, meta, ok := r.fetchPage(ctx, star)
	if !ok {
		return false, nil
	}

	var (
		rows []review.Row
		keys []string
	)
	for _, rec := range records {
		if r.ck.TotalCount()+len(keys) >= r.target.Plan.Total {
			break
		}
		rating := effectiveRating(rec.Rating, star)
		if rating != star {
			continue
		}
		key := review.DedupKey(r.target.URL, rec.Reviewer, rec.ReviewDate, rec.Body)
		if r.ck.HasKey(key) || containsKey(keys, key) {
			continue
		}
		rows = append(rows, r.makeRow(rec, rating, key))
		keys = append(keys, key)
	}

	if err := r.commit(ctx, star, rows, keys); err != nil {
		return false, err
	}
	return r.finishPage(star, meta, len(records), false)
}

func (r *targetRun) fetchPage(ctx context.Context, star int) ([]review.ReviewRecord, tikiapi.PageMeta, bool) {
	page := r.ck.PageCursor(star) + 1
	records, meta, err := r.collector.fetcher.ReviewsPage(ctx, r.productID, page, star)
	if err != nil {
		telemetry.ObservePageFetched(star, "error")
		r.collector.log.Warn("reviews page failed",
			zap.String("url", r.target.URL),
			zap.Int("star", star),
			zap.Int("page", page),
			zap.Error(err))
		return nil, tikiapi.PageMeta{}, false
	}
	telemetry.ObservePageFetched(star, "ok")
	return records, meta, true
}

// commit persists accepted rows to the sink, then records them in the
// checkpoint. A sink failure is logged but never blocks checkpoint
// progress: forward motion beats re-offering rows the sink may have
// partially taken.
func (r *targetRun) commit(ctx context.Context, star int, rows []review.Row, keys []string) error {
	if len(rows) == 0 {
		return nil
	}
	inserted, err := r.collector.sink.Save(ctx, r.target.Group, rows)
	if err != nil {
		r.collector.log.Error("sink save failed",
			zap.String("url", r.target.URL),
			zap.String("group", r.target.Group),
			zap.Int("rows", len(rows)),
			zap.Error(err))
	} else {
		telemetry.ObserveRowsInserted(r.target.Group, inserted)
	}

	added, err := r.ck.RecordAccepted(star, keys)
	if err != nil {
		return err
	}
	telemetry.ObserveReviewsAccepted(star, added)
	r.collected = append(r.collected, rows...)
	return nil
}

// finishPage advances the page cursor and decides whether another page
// is worth fetching. An empty page counts as the end of the star's
// listing even when the upstream reports no pagination.
func (r *targetRun) finishPage(star int, meta tikiapi.PageMeta, fetched int, markExhausted bool) (bool, error) {
	if err := r.ck.AdvancePage(star); err != nil {
		return false, err
	}
	if meta.LastPage() || fetched == 0 {
		if markExhausted {
			if err := r.ck.MarkExhausted(star); err != nil {
				return false, err
			}
		}
		return false, nil
	}
	return true, nil
}

func (r *targetRun) makeRow(rec review.ReviewRecord, rating int, key string) review.Row {
	brand := r.info.Brand
	if r.target.Primary {
		brand = ""
	}
	return review.Row{
		Category:    r.target.Category,
		Brand:       brand,
		Model:       r.target.Model,
		ProductName: r.info.Name,
		Rating:      rating,
		Reviewer:    rec.Reviewer,
		ReviewDate:  rec.ReviewDate,
		Body:        rec.Body,
		ImageURLs:   strings.Join(rec.ImageURLs, ","),
		VideoURLs:   strings.Join(rec.VideoURLs, ","),
		ProductLink: r.target.URL,
		DedupKey:    key,
		Source:      sourceTag,
	}
}

// effectiveRating falls back to the queried star when the reported
// rating is absent or outside 1..5: star-filtered listings are assumed
// to match their filter.
func effectiveRating(reported, queriedStar int) int {
	if reported >= 1 && reported <= 5 {
		return reported
	}
	return queriedStar
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
