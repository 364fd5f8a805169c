package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectRoundTrip(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	uri, err := s.PutObject(context.Background(), "exports/run-1/reviews.xlsx", "application/octet-stream", strings.NewReader("workbook-bytes"))
	require.NoError(t, err)
	require.Equal(t, "memory://exports/run-1/reviews.xlsx", uri)

	content, ok := s.Object("exports/run-1/reviews.xlsx")
	require.True(t, ok)
	require.Equal(t, "workbook-bytes", string(content))

	_, ok = s.Object("missing")
	require.False(t, ok)
}
