package review

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewQuotaPlanEvenSplit(t *testing.T) {
	t.Parallel()
	plan := NewQuotaPlan(100)
	require.Equal(t, 100, plan.Total)
	for _, star := range StarLevels {
		require.Equal(t, 20, plan.Star(star), "star %d", star)
	}
}

func TestNewQuotaPlanRemainderGoesToFiveStar(t *testing.T) {
	t.Parallel()
	plan := NewQuotaPlan(23)
	require.Equal(t, 4, plan.Star(1))
	require.Equal(t, 4, plan.Star(4))
	require.Equal(t, 7, plan.Star(5))
}

func TestNewQuotaPlanTinyTotalFloorsAtOne(t *testing.T) {
	t.Parallel()
	plan := NewQuotaPlan(3)
	for _, star := range StarLevels {
		require.Equal(t, 1, plan.Star(star))
	}
	require.Equal(t, 3, plan.Total)
}

func TestQuotaPlanEqual(t *testing.T) {
	t.Parallel()
	require.True(t, NewQuotaPlan(50).Equal(NewQuotaPlan(50)))
	require.False(t, NewQuotaPlan(50).Equal(NewQuotaPlan(100)))

	custom := NewQuotaPlan(50)
	custom.PerStar[3] = 99
	require.False(t, custom.Equal(NewQuotaPlan(50)))
}

func TestDedupKeyIsStable(t *testing.T) {
	t.Parallel()
	a := DedupKey("https://tiki.vn/p-p1.html", "An", "2024-01-02", "good lamp")
	b := DedupKey("https://tiki.vn/p-p1.html", "An", "2024-01-02", "good lamp")
	require.Equal(t, a, b)
	require.Len(t, a, 32)

	c := DedupKey("https://tiki.vn/p-p2.html", "An", "2024-01-02", "good lamp")
	require.NotEqual(t, a, c)
}

func TestDedupKeyTruncatesBodyByRunes(t *testing.T) {
	t.Parallel()
	prefix := strings.Repeat("đ", dedupBodyPrefixLen)
	a := DedupKey("u", "r", "d", prefix+"tail one")
	b := DedupKey("u", "r", "d", prefix+"tail two")
	require.Equal(t, a, b)

	short := DedupKey("u", "r", "d", prefix[:10])
	require.NotEqual(t, a, short)
}
