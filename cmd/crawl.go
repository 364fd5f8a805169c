package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	gcsclient "cloud.google.com/go/storage"

	"cloud.google.com/go/pubsub"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vielabs/tiki-review-crawler/internal/api"
	"github.com/vielabs/tiki-review-crawler/internal/catalog"
	"github.com/vielabs/tiki-review-crawler/internal/checkpoint"
	"github.com/vielabs/tiki-review-crawler/internal/collector"
	"github.com/vielabs/tiki-review-crawler/internal/config"
	"github.com/vielabs/tiki-review-crawler/internal/database"
	"github.com/vielabs/tiki-review-crawler/internal/publisher"
	pubsubpub "github.com/vielabs/tiki-review-crawler/internal/publisher/pubsub"
	"github.com/vielabs/tiki-review-crawler/internal/ratelimit"
	"github.com/vielabs/tiki-review-crawler/internal/storage"
	"github.com/vielabs/tiki-review-crawler/internal/storage/gcs"
	"github.com/vielabs/tiki-review-crawler/internal/sweep"
	"github.com/vielabs/tiki-review-crawler/internal/telemetry"
	"github.com/vielabs/tiki-review-crawler/internal/tikiapi"
)

func newCrawlCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Runs one sweep over the product catalog",
		Long: `Crawls every product link in the catalog against its group quota,
writes accepted reviews to the configured database, and exports the
collected rows to an XLSX workbook when the sweep finishes.`,
		RunE: runCrawlCommand,
	}
}

func runCrawlCommand(cmd *cobra.Command, _ []string) error {
	cfg, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	telemetry.Init()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	entries, err := catalog.Load(cfg.Catalog.Path, cfg.Catalog.PrimaryKey)
	if err != nil {
		return err
	}
	log.Info("catalog loaded",
		zap.String("path", cfg.Catalog.Path),
		zap.Int("targets", len(entries)))

	store, err := checkpoint.NewStore(cfg.Checkpoint.Dir)
	if err != nil {
		return err
	}

	sink, err := buildSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer sink.Close()

	blob, err := buildBlobStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	events, err := buildPublisher(ctx, cfg, log)
	if err != nil {
		return err
	}

	if cfg.Server.Enabled {
		startStatusServer(ctx, cfg.Server.Port, store, log)
	}

	client := tikiapi.New(cfg.API, ratelimit.New(cfg.API.RateLimitRPS), log)
	col := collector.New(client, sink, store, log)
	run := sweep.New(sweep.Config{
		PrimaryTotal:  cfg.Quota.PrimaryTotal,
		OtherTotal:    cfg.Quota.OtherTotal,
		ExportPath:    cfg.Export.Path,
		PrimarySheet:  cfg.Export.PrimarySheet,
		OtherSheet:    cfg.Export.OtherSheet,
		ArchivePrefix: cfg.Storage.Prefix,
		EventsTopic:   cfg.PubSub.TopicName,
	}, col, store, blob, events, log)

	summary, err := run.Run(ctx, entries)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run sweep: %w", err)
	}
	log.Info("crawl finished",
		zap.String("run_id", summary.RunID),
		zap.Int("targets", summary.Targets),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed),
		zap.Int("primary_rows", summary.PrimaryRows),
		zap.Int("other_rows", summary.OtherRows),
		zap.String("workbook_uri", summary.WorkbookURI))
	return nil
}

// buildSink prefers Postgres and falls back to a no-op sink when no DSN
// is configured.
func buildSink(ctx context.Context, cfg config.Config, log *zap.Logger) (database.Sink, error) {
	if cfg.DB.DSN == "" {
		log.Warn("no database configured, rows will only reach the workbook")
		return database.NoOpSink{}, nil
	}
	sink, err := database.NewPostgresSink(ctx, cfg.DB)
	if err != nil {
		return nil, err
	}
	if err := sink.InitSchema(ctx, sweep.GroupPrimary, sweep.GroupOther); err != nil {
		sink.Close()
		return nil, err
	}
	return sink, nil
}

func buildBlobStore(ctx context.Context, cfg config.Config, log *zap.Logger) (storage.BlobStore, error) {
	if cfg.Storage.GCSBucket == "" {
		log.Info("no archive bucket configured, workbook stays local")
		return nil, nil
	}
	client, err := gcsclient.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("init gcs client: %w", err)
	}
	// the sweep prefixes object keys itself
	blob, err := gcs.New(client, cfg.Storage.GCSBucket, "")
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, log *zap.Logger) (publisher.Publisher, error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		log.Info("no pubsub topic configured, lifecycle events disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client: %w", err)
	}
	events, err := pubsubpub.New(client)
	if err != nil {
		return nil, err
	}
	return events, nil
}

// startStatusServer serves health, metrics and progress in the
// background for the duration of the crawl.
func startStatusServer(ctx context.Context, port int, store *checkpoint.Store, log *zap.Logger) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           api.NewServer(store, log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("status server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("status server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
