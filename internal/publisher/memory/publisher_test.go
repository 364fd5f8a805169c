package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vielabs/tiki-review-crawler/internal/publisher"
)

func TestPublishRecordsMessages(t *testing.T) {
	t.Parallel()

	p := New()
	id, err := p.Publish(context.Background(), "crawl-events", publisher.TargetCompleted{
		RunID: "run-1",
		URL:   "https://tiki.vn/a-p1.html",
		Group: "rd",
	})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	msgs := p.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "crawl-events", msgs[0].Topic)

	event, ok := msgs[0].Payload.(publisher.TargetCompleted)
	require.True(t, ok)
	require.Equal(t, "run-1", event.RunID)
}
