// Package sweep drives one full pass over the catalog: every target is
// crawled against its group quota, the collected rows are exported to a
// workbook, and lifecycle events are published.
package sweep

import (
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vielabs/tiki-review-crawler/internal/catalog"
	"github.com/vielabs/tiki-review-crawler/internal/checkpoint"
	"github.com/vielabs/tiki-review-crawler/internal/collector"
	"github.com/vielabs/tiki-review-crawler/internal/export"
	"github.com/vielabs/tiki-review-crawler/internal/publisher"
	"github.com/vielabs/tiki-review-crawler/internal/review"
	"github.com/vielabs/tiki-review-crawler/internal/storage"
)

// Quota group names, which also name the sink tables.
const (
	GroupPrimary = "rd"
	GroupOther   = "other"
)

const workbookContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Crawler collects rows for one target.
type Crawler interface {
	Crawl(ctx context.Context, t collector.Target) ([]review.Row, error)
}

// Config carries the sweep-level knobs.
type Config struct {
	PrimaryTotal  int
	OtherTotal    int
	ExportPath    string
	PrimarySheet  string
	OtherSheet    string
	ArchivePrefix string
	// EventsTopic names the lifecycle event stream. Empty disables
	// publishing even when a publisher is wired.
	EventsTopic string
}

// Sweep runs catalog passes. The blob store and publisher are optional;
// a nil value disables archiving or events.
type Sweep struct {
	cfg     Config
	crawler Crawler
	store   *checkpoint.Store
	blob    storage.BlobStore
	events  publisher.Publisher
	log     *zap.Logger
}

// New wires a Sweep.
func New(cfg Config, crawler Crawler, store *checkpoint.Store, blob storage.BlobStore, events publisher.Publisher, log *zap.Logger) *Sweep {
	return &Sweep{
		cfg:     cfg,
		crawler: crawler,
		store:   store,
		blob:    blob,
		events:  events,
		log:     log,
	}
}

// Summary reports what one sweep accomplished.
type Summary struct {
	RunID       string
	Targets     int
	Skipped     int
	Failed      int
	PrimaryRows int
	OtherRows   int
	WorkbookURI string
}

// Run crawls every catalog entry and exports the collected rows. A
// failing target is logged and skipped; only context cancellation and
// export failures abort the sweep.
func (s *Sweep) Run(ctx context.Context, entries []catalog.Entry) (Summary, error) {
	summary := Summary{RunID: uuid.NewString(), Targets: len(entries)}
	log := s.log.With(zap.String("run_id", summary.RunID))
	log.Info("sweep started", zap.Int("targets", len(entries)))

	var primaryRows, otherRows []review.Row
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		target := s.targetFor(entry)
		done, err := s.alreadyDone(target)
		if err != nil {
			log.Warn("checkpoint unreadable", zap.String("url", entry.URL), zap.Error(err))
		}
		if done {
			summary.Skipped++
			log.Info("target already complete", zap.String("url", entry.URL))
			continue
		}

		rows, err := s.crawler.Crawl(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Failed++
			log.Error("target failed", zap.String("url", entry.URL), zap.Error(err))
			continue
		}

		if target.Group == GroupPrimary {
			primaryRows = append(primaryRows, rows...)
		} else {
			otherRows = append(otherRows, rows...)
		}
		if s.nowCompleted(target) {
			s.publish(ctx, publisher.TargetCompleted{
				RunID:     summary.RunID,
				URL:       entry.URL,
				Group:     target.Group,
				Collected: len(rows),
			})
		}
	}
	summary.PrimaryRows = len(primaryRows)
	summary.OtherRows = len(otherRows)

	if err := export.Write(s.cfg.ExportPath, []export.Sheet{
		{Name: s.cfg.PrimarySheet, Rows: primaryRows},
		{Name: s.cfg.OtherSheet, Rows: otherRows},
	}); err != nil {
		return summary, fmt.Errorf("export workbook: %w", err)
	}
	log.Info("workbook exported",
		zap.String("path", s.cfg.ExportPath),
		zap.Int("primary_rows", summary.PrimaryRows),
		zap.Int("other_rows", summary.OtherRows))

	uri, err := s.archive(ctx, summary.RunID)
	if err != nil {
		// the local workbook survives, so archiving is best effort
		log.Warn("workbook archive failed", zap.Error(err))
	}
	summary.WorkbookURI = uri

	s.publish(ctx, publisher.RunFinished{
		RunID:       summary.RunID,
		Targets:     summary.Targets,
		Rows:        summary.PrimaryRows + summary.OtherRows,
		WorkbookURI: summary.WorkbookURI,
	})
	log.Info("sweep finished",
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

func (s *Sweep) targetFor(entry catalog.Entry) collector.Target {
	group, total := GroupOther, s.cfg.OtherTotal
	if entry.Primary {
		group, total = GroupPrimary, s.cfg.PrimaryTotal
	}
	return collector.Target{
		URL:      entry.URL,
		Group:    group,
		Category: entry.Category,
		Model:    entry.Model,
		Plan:     review.NewQuotaPlan(total),
		Primary:  entry.Primary,
	}
}

// alreadyDone loads the target's checkpoint, reconciling it with the
// current plan, and reports whether nothing is left to collect.
func (s *Sweep) alreadyDone(target collector.Target) (bool, error) {
	ck, err := s.store.Load(target.URL, target.Plan)
	if err != nil {
		return false, err
	}
	return ck.Completed() && ck.TotalCount() >= ck.PlanTotal(), nil
}

// nowCompleted reports whether the target reached its terminal state,
// quota met or upstream exhausted. It peeks at the raw checkpoint: a
// reconciling load would revert exhaustion-only completion.
func (s *Sweep) nowCompleted(target collector.Target) bool {
	tp, ok, err := s.store.Peek(target.URL)
	return err == nil && ok && tp.Completed
}

func (s *Sweep) archive(ctx context.Context, runID string) (string, error) {
	if s.blob == nil {
		return "", nil
	}
	f, err := os.Open(s.cfg.ExportPath)
	if err != nil {
		return "", fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	key := path.Join(s.cfg.ArchivePrefix, runID, path.Base(s.cfg.ExportPath))
	return s.blob.PutObject(ctx, key, workbookContentType, f)
}

func (s *Sweep) publish(ctx context.Context, payload any) {
	if s.events == nil || s.cfg.EventsTopic == "" {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := s.events.Publish(pubCtx, s.cfg.EventsTopic, payload); err != nil {
		s.log.Warn("event publish failed", zap.String("topic", s.cfg.EventsTopic), zap.Error(err))
	}
}
