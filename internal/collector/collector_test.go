package collector

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vielabs/tiki-review-crawler/internal/checkpoint"
	"github.com/vielabs/tiki-review-crawler/internal/review"
	"github.com/vielabs/tiki-review-crawler/internal/tikiapi"
)

const testTargetURL = "https://tiki.vn/den-ban-p42.html"

// fakeFetcher serves scripted pages per star. Pages beyond the script
// come back empty.
type fakeFetcher struct {
	pages    map[int][][]review.ReviewRecord
	failStar map[int]bool
	calls    []string
}

func (f *fakeFetcher) ReviewsPage(_ context.Context, _ string, page, star int) ([]review.ReviewRecord, tikiapi.PageMeta, error) {
	f.calls = append(f.calls, fmt.Sprintf("star=%d page=%d", star, page))
	if f.failStar[star] {
		return nil, tikiapi.PageMeta{}, errors.New("upstream down")
	}
	script := f.pages[star]
	if page > len(script) {
		return nil, tikiapi.PageMeta{CurrentPage: page, TotalPages: len(script)}, nil
	}
	return script[page-1], tikiapi.PageMeta{CurrentPage: page, TotalPages: len(script)}, nil
}

func (f *fakeFetcher) ProductInfo(context.Context, string) (tikiapi.ProductInfo, error) {
	return tikiapi.ProductInfo{Name: "Den ban LED", Brand: "Rang Dong"}, nil
}

type fakeSink struct {
	rows []review.Row
	fail bool
}

func (s *fakeSink) Save(_ context.Context, _ string, rows []review.Row) (int, error) {
	if s.fail {
		return 0, errors.New("db unavailable")
	}
	s.rows = append(s.rows, rows...)
	return len(rows), nil
}

func rec(star int, n int) review.ReviewRecord {
	return review.ReviewRecord{
		Reviewer:   fmt.Sprintf("user-%d-%d", star, n),
		ReviewDate: "2024-03-01",
		Rating:     star,
		Body:       fmt.Sprintf("review %d for star %d", n, star),
	}
}

func recs(star, count int) []review.ReviewRecord {
	out := make([]review.ReviewRecord, count)
	for i := range out {
		out[i] = rec(star, i)
	}
	return out
}

func newTestCollector(t *testing.T, f Fetcher, s Sink) (*Collector, *checkpoint.Store) {
	t.Helper()
	store, err := checkpoint.NewStore(t.TempDir())
	require.NoError(t, err)
	return New(f, s, store, zap.NewNop()), store
}

func testTarget(total int) Target {
	return Target{
		URL:      testTargetURL,
		Group:    "other",
		Category: "Den ban",
		Model:    "DB01",
		Plan:     review.NewQuotaPlan(total),
	}
}

func TestCrawlFillsPerStarQuotas(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[int][][]review.ReviewRecord{
		1: {recs(1, 5)},
		2: {recs(2, 5)},
		3: {recs(3, 5)},
		4: {recs(4, 5)},
		5: {recs(5, 5)},
	}}
	s := &fakeSink{}
	c, store := newTestCollector(t, f, s)

	rows, err := c.Crawl(context.Background(), testTarget(10)) // 2 per star
	require.NoError(t, err)
	require.Len(t, rows, 10)
	require.Len(t, s.rows, 10)

	perStar := map[int]int{}
	for _, row := range rows {
		perStar[row.Rating]++
		require.Equal(t, "Den ban", row.Category)
		require.Equal(t, "Rang Dong", row.Brand)
		require.Equal(t, "Den ban LED", row.ProductName)
		require.Equal(t, testTargetURL, row.ProductLink)
		require.Equal(t, "Tiki", row.Source)
		require.NotEmpty(t, row.DedupKey)
	}
	for _, star := range review.StarLevels {
		require.Equal(t, 2, perStar[star], "star %d", star)
	}

	ck, err := store.Load(testTargetURL, review.NewQuotaPlan(10))
	require.NoError(t, err)
	require.True(t, ck.Completed())
	require.True(t, ck.TotalReached())
}

func TestCrawlBackfillIgnoresPerStarCaps(t *testing.T) {
	t.Parallel()

	// only five-star reviews exist; phase 1 stops at the per-star cap
	// and phase 2 fills the remaining total from the same star
	f := &fakeFetcher{pages: map[int][][]review.ReviewRecord{
		5: {recs(5, 5), recs(5, 20)[5:]},
	}}
	s := &fakeSink{}
	c, store := newTestCollector(t, f, s)

	rows, err := c.Crawl(context.Background(), testTarget(10))
	require.NoError(t, err)
	require.Len(t, rows, 10)
	for _, row := range rows {
		require.Equal(t, 5, row.Rating)
	}

	ck, err := store.Load(testTargetURL, review.NewQuotaPlan(10))
	require.NoError(t, err)
	require.True(t, ck.Completed())
	require.Equal(t, 10, ck.Count(5))
}

func TestCrawlDefaultsMissingRatingToQueriedStar(t *testing.T) {
	t.Parallel()

	unrated := recs(3, 3)
	for i := range unrated {
		unrated[i].Rating = 0
	}
	f := &fakeFetcher{pages: map[int][][]review.ReviewRecord{3: {unrated}}}
	s := &fakeSink{}
	c, _ := newTestCollector(t, f, s)

	rows, err := c.Crawl(context.Background(), testTarget(15))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.Equal(t, 3, row.Rating)
	}
}

func TestCrawlSkipsDuplicateReviews(t *testing.T) {
	t.Parallel()

	// the same review repeats on both pages of star one
	dup := rec(1, 0)
	f := &fakeFetcher{pages: map[int][][]review.ReviewRecord{
		1: {{dup, rec(1, 1)}, {dup, rec(1, 2)}},
	}}
	s := &fakeSink{}
	c, _ := newTestCollector(t, f, s)

	rows, err := c.Crawl(context.Background(), testTarget(25)) // 5 per star
	require.NoError(t, err)
	require.Len(t, rows, 3)

	seen := map[string]bool{}
	for _, row := range rows {
		require.False(t, seen[row.DedupKey])
		seen[row.DedupKey] = true
	}
}

func TestCrawlStarFailureDoesNotAbortOthers(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		pages: map[int][][]review.ReviewRecord{
			1: {recs(1, 3)},
			3: {recs(3, 3)},
		},
		failStar: map[int]bool{2: true},
	}
	s := &fakeSink{}
	c, _ := newTestCollector(t, f, s)

	rows, err := c.Crawl(context.Background(), testTarget(25))
	require.NoError(t, err)

	got := map[int]int{}
	for _, row := range rows {
		got[row.Rating]++
	}
	require.Equal(t, 3, got[1])
	require.Equal(t, 3, got[3])
	require.Zero(t, got[2])
}

func TestCrawlSinkFailureStillAdvancesCheckpoint(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[int][][]review.ReviewRecord{1: {recs(1, 3)}}}
	s := &fakeSink{fail: true}
	c, store := newTestCollector(t, f, s)

	rows, err := c.Crawl(context.Background(), testTarget(25))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// accepted reviews are checkpointed even though the sink lost them
	ck, err := store.Load(testTargetURL, review.NewQuotaPlan(25))
	require.NoError(t, err)
	require.Equal(t, 3, ck.Count(1))
}

func TestCrawlResumeDoesNotRecount(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[int][][]review.ReviewRecord{
		1: {recs(1, 5)},
		5: {recs(5, 5)},
	}}
	s := &fakeSink{}
	c, store := newTestCollector(t, f, s)

	first, err := c.Crawl(context.Background(), testTarget(10))
	require.NoError(t, err)
	require.Len(t, first, 4)

	ck, err := store.Load(testTargetURL, review.NewQuotaPlan(10))
	require.NoError(t, err)
	require.True(t, ck.Completed()) // every star exhausted
	totalAfterFirst := ck.TotalCount()

	second, err := c.Crawl(context.Background(), testTarget(10))
	require.NoError(t, err)
	require.Empty(t, second)

	ck, err = store.Load(testTargetURL, review.NewQuotaPlan(10))
	require.NoError(t, err)
	require.Equal(t, totalAfterFirst, ck.TotalCount())
}

func TestCrawlRejectsURLWithoutProductID(t *testing.T) {
	t.Parallel()

	c, _ := newTestCollector(t, &fakeFetcher{}, &fakeSink{})
	target := testTarget(10)
	target.URL = "https://tiki.vn/landing-page"

	_, err := c.Crawl(context.Background(), target)
	require.ErrorIs(t, err, tikiapi.ErrNoProductID)
}

func TestCrawlPrimaryTargetOmitsBrand(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{pages: map[int][][]review.ReviewRecord{2: {recs(2, 1)}}}
	c, _ := newTestCollector(t, f, &fakeSink{})

	target := testTarget(25)
	target.Primary = true
	target.Group = "rd"

	rows, err := c.Crawl(context.Background(), target)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Empty(t, rows[0].Brand)
	require.Equal(t, "Den ban LED", rows[0].ProductName)
}
