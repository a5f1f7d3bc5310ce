package index

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, s *Settings, docs ...Document) {
	t.Helper()
	ix := NewIndexer(s, 0, nil)
	for _, d := range docs {
		require.NoError(t, ix.BatchCreate(context.Background(), d))
	}
	require.NoError(t, ix.Flush(context.Background()))
}

func textDoc(id, forumID int, subject, contents string) Document {
	d := doc(id)
	d.ForumID = forumID
	d.Subject = subject
	d.Contents = contents
	return d
}

func ids(res *SearchResult) []int {
	out := make([]int, 0, len(res.Hits))
	for _, h := range res.Hits {
		out = append(out, h.PostID)
	}
	return out
}

func TestSearcher_MatchesStemmedTerms(t *testing.T) {
	// Given: posts mentioning running in different forms
	s := memSettings(t)
	seed(t, s,
		textDoc(1, 1, "Running tips", "how to start"),
		textDoc(2, 1, "Cooking", "the runs were long"),
		textDoc(3, 1, "Gardening", "tomatoes"),
	)

	// When: searching for "run"
	res, err := NewSearcher(s, 0).Search(context.Background(), SearchArgs{Terms: "run"}, 0)

	// Then: both stemmed forms match
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Total)
	assert.ElementsMatch(t, []int{1, 2}, ids(res))
}

func TestSearcher_MatchAllRequiresEveryTerm(t *testing.T) {
	s := memSettings(t)
	seed(t, s,
		textDoc(1, 1, "database", "index corruption"),
		textDoc(2, 1, "database", "backup"),
	)
	sr := NewSearcher(s, 0)

	anyRes, err := sr.Search(context.Background(), SearchArgs{Terms: "database corruption"}, 0)
	require.NoError(t, err)
	allRes, err := sr.Search(context.Background(), SearchArgs{Terms: "database corruption", MatchAll: true}, 0)
	require.NoError(t, err)

	assert.Equal(t, uint64(2), anyRes.Total)
	assert.Equal(t, []int{1}, ids(allRes))
}

func TestSearcher_StopWordsOnlyReturnsNothing(t *testing.T) {
	s := memSettings(t)
	seed(t, s, textDoc(1, 1, "the", "the and of"))

	res, err := NewSearcher(s, 0).Search(context.Background(), SearchArgs{Terms: "the of"}, 0)

	require.NoError(t, err)
	assert.Equal(t, uint64(0), res.Total)
}

func TestSearcher_FiltersAndPaging(t *testing.T) {
	s := memSettings(t)
	var docs []Document
	for id := 1; id <= 12; id++ {
		docs = append(docs, textDoc(id, 1+id%2, "forum topic", "shared words"))
	}
	seed(t, s, docs...)
	sr := NewSearcher(s, 0)
	ctx := context.Background()

	// Forum filter
	res, err := sr.Search(ctx, SearchArgs{Terms: "shared", ForumID: 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), res.Total)
	for _, h := range res.Hits {
		assert.Equal(t, 2, h.ForumID)
	}

	// Date range, newest first
	from := baseTime.Add(3 * time.Hour)
	to := baseTime.Add(6 * time.Hour)
	res, err = sr.Search(ctx, SearchArgs{From: from, To: to, OrderBy: SortDate}, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{6, 5, 4, 3}, ids(res))

	// Paging keeps the total
	res, err = sr.Search(ctx, SearchArgs{OrderBy: SortDate, Offset: 10, Limit: 5}, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(12), res.Total)
	assert.Equal(t, []int{2, 1}, ids(res))
}

func TestSearcher_RelevanceTiesBrokenByDate(t *testing.T) {
	s := memSettings(t)
	seed(t, s,
		textDoc(1, 1, "same", "identical text"),
		textDoc(2, 1, "same", "identical text"),
		textDoc(3, 1, "same", "identical text"),
	)

	res, err := NewSearcher(s, 0).Search(context.Background(), SearchArgs{Terms: "identical"}, 0)

	require.NoError(t, err)
	assert.Equal(t, []int{3, 2, 1}, ids(res))
}

type fixedForums struct {
	forums map[int][]int
}

func (f fixedForums) ReadableForums(_ context.Context, userID int) ([]int, bool, error) {
	if userID == 99 {
		return nil, true, nil
	}
	return f.forums[userID], false, nil
}

func TestSearcher_VisibilityRestrictsForums(t *testing.T) {
	// Given: posts in forums 1 and 2 and a guest who may only read forum 1
	s := memSettings(t)
	seed(t, s,
		textDoc(1, 1, "public", "announcement"),
		textDoc(2, 2, "private", "announcement"),
	)
	sr := NewSearcher(s, 0, WithVisibility(fixedForums{forums: map[int][]int{0: {1}, 5: {}}}))
	ctx := context.Background()
	args := SearchArgs{Terms: "announcement"}

	// When/Then: each user sees what they may read
	guest, err := sr.Search(ctx, args, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids(guest))

	admin, err := sr.Search(ctx, args, 99)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), admin.Total)

	nobody, err := sr.Search(ctx, args, 5)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nobody.Total)

	forbidden, err := sr.Search(ctx, SearchArgs{Terms: "announcement", ForumID: 2}, 0)
	require.NoError(t, err)
	assert.Empty(t, forbidden.Hits)
}

func TestSearcher_CacheRefreshesAfterCommit(t *testing.T) {
	// Given: a cached result
	s := memSettings(t)
	seed(t, s, textDoc(1, 1, "kayak", "river"))
	sr := NewSearcher(s, 16)
	ctx := context.Background()
	args := SearchArgs{Terms: "kayak"}

	first, err := sr.Search(ctx, args, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(1), first.Total)

	// When: a new matching post is committed
	require.NoError(t, NewIndexer(s, 0, nil).Create(ctx, textDoc(2, 1, "kayak trip", "lake")))

	// Then: the next search sees it
	second, err := sr.Search(ctx, args, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Total)
}

func TestSearcher_CachedResultIsNotShared(t *testing.T) {
	s := memSettings(t)
	seed(t, s, textDoc(1, 1, "kayak", "river"))
	sr := NewSearcher(s, 16)
	ctx := context.Background()

	first, err := sr.Search(ctx, SearchArgs{Terms: "kayak"}, 0)
	require.NoError(t, err)
	first.Hits[0].Subject = "mutated"

	second, err := sr.Search(ctx, SearchArgs{Terms: "kayak"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "kayak", second.Hits[0].Subject)
}

func TestSearchArgs_Normalized(t *testing.T) {
	a := SearchArgs{Offset: -3, Limit: 10000, OrderBy: "weird", Terms: "  x "}.normalized()

	assert.Equal(t, 0, a.Offset)
	assert.Equal(t, maxLimit, a.Limit)
	assert.Equal(t, SortRelevance, a.OrderBy)
	assert.Equal(t, "x", a.Terms)
	assert.Equal(t, defaultLimit, SearchArgs{}.normalized().Limit)
}
