package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xHumanityRO/forumsearch/internal/errors"
)

// SortOrder selects how search results are ordered.
type SortOrder string

const (
	// SortRelevance orders by score, ties broken by newest post first.
	SortRelevance SortOrder = "relevance"
	// SortDate orders by newest post first.
	SortDate SortOrder = "date"
)

const (
	defaultLimit = 25
	maxLimit     = 500
)

// SearchArgs describes a structured query. Zero values mean "no filter".
type SearchArgs struct {
	// Terms is free text matched against subject and contents.
	Terms string `json:"terms,omitempty"`
	// MatchAll requires every term to match instead of any.
	MatchAll bool `json:"match_all,omitempty"`

	ForumID int `json:"forum_id,omitempty"`
	TopicID int `json:"topic_id,omitempty"`
	UserID  int `json:"user_id,omitempty"`

	From time.Time `json:"from,omitempty"`
	To   time.Time `json:"to,omitempty"`

	Offset  int       `json:"offset,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	OrderBy SortOrder `json:"order_by,omitempty"`
}

func (a SearchArgs) normalized() SearchArgs {
	if a.Offset < 0 {
		a.Offset = 0
	}
	if a.Limit <= 0 {
		a.Limit = defaultLimit
	}
	if a.Limit > maxLimit {
		a.Limit = maxLimit
	}
	if a.OrderBy != SortDate {
		a.OrderBy = SortRelevance
	}
	a.Terms = strings.TrimSpace(a.Terms)
	return a
}

// Hit is a matched document with its score.
type Hit struct {
	Document
	Score float64 `json:"score"`
}

// SearchResult is one page of hits plus the total number of matches.
type SearchResult struct {
	Hits  []Hit  `json:"hits"`
	Total uint64 `json:"total"`
}

// ForumVisibility decides which forums a user may read.
type ForumVisibility interface {
	// ReadableForums returns the readable forum ids for userID
	// (0 for guests). all reports an unrestricted user.
	ReadableForums(ctx context.Context, userID int) (forums []int, all bool, err error)
}

// AllowAllForums lets every user read every forum.
type AllowAllForums struct{}

// ReadableForums implements ForumVisibility.
func (AllowAllForums) ReadableForums(context.Context, int) ([]int, bool, error) {
	return nil, true, nil
}

// Searcher runs queries against the last committed state of the index.
type Searcher struct {
	settings   *Settings
	visibility ForumVisibility
	logger     *slog.Logger

	cache    *lru.Cache[string, *SearchResult]
	cacheGen atomic.Uint64
}

// SearcherOption configures a Searcher.
type SearcherOption func(*Searcher)

// WithVisibility replaces the allow-all forum visibility.
func WithVisibility(v ForumVisibility) SearcherOption {
	return func(s *Searcher) {
		if v != nil {
			s.visibility = v
		}
	}
}

// WithSearchLogger sets the logger.
func WithSearchLogger(l *slog.Logger) SearcherOption {
	return func(s *Searcher) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSearcher creates a searcher caching up to cacheSize result pages.
// cacheSize <= 0 disables the cache.
func NewSearcher(settings *Settings, cacheSize int, opts ...SearcherOption) *Searcher {
	s := &Searcher{
		settings:   settings,
		visibility: AllowAllForums{},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if cacheSize > 0 {
		// Only fails for a non-positive size.
		s.cache, _ = lru.New[string, *SearchResult](cacheSize)
	}
	return s
}

// FindByKey returns the indexed document for postID. found is false when
// the post is not in the index.
func (s *Searcher) FindByKey(ctx context.Context, postID int) (doc Document, found bool, err error) {
	req := bleve.NewSearchRequestOptions(bleve.NewDocIDQuery([]string{DocID(postID)}), 1, 0, false)
	req.Fields = []string{"*"}

	err = s.settings.withIndex(func(idx bleve.Index) error {
		res, serr := idx.SearchInContext(ctx, req)
		if serr != nil {
			return serr
		}
		if len(res.Hits) == 0 {
			return nil
		}
		doc = documentFromFields(res.Hits[0].ID, res.Hits[0].Fields)
		found = true
		return nil
	})
	if err != nil {
		return Document{}, false, s.searchFailure(err)
	}
	return doc, found, nil
}

// Search runs args on behalf of requestingUserID, restricted to the forums
// that user may read.
func (s *Searcher) Search(ctx context.Context, args SearchArgs, requestingUserID int) (*SearchResult, error) {
	args = args.normalized()

	forums, all, err := s.visibility.ReadableForums(ctx, requestingUserID)
	if err != nil {
		return nil, errors.New(errors.ErrCodeSearchFailed, "cannot resolve forum visibility", err)
	}
	if !all && len(forums) == 0 {
		return &SearchResult{}, nil
	}
	if !all && args.ForumID != 0 && !containsInt(forums, args.ForumID) {
		return &SearchResult{}, nil
	}

	q, ok := s.buildQuery(args, forums, all)
	if !ok {
		return &SearchResult{}, nil
	}

	key := ""
	if s.cache != nil {
		gen := s.settings.Generation()
		if s.cacheGen.Swap(gen) != gen {
			s.cache.Purge()
		}
		key = cacheKey(gen, args, forums, all)
		if cached, hit := s.cache.Get(key); hit {
			return cached.clone(), nil
		}
	}

	req := bleve.NewSearchRequestOptions(q, args.Limit, args.Offset, false)
	req.Fields = []string{"*"}
	if args.OrderBy == SortDate {
		req.SortBy([]string{"-" + FieldDate, "-" + FieldPostID})
	} else {
		req.SortBy([]string{"-_score", "-" + FieldDate})
	}

	result := &SearchResult{}
	err = s.settings.withIndex(func(idx bleve.Index) error {
		res, serr := idx.SearchInContext(ctx, req)
		if serr != nil {
			return serr
		}
		result.Total = res.Total
		result.Hits = make([]Hit, 0, len(res.Hits))
		for _, h := range res.Hits {
			result.Hits = append(result.Hits, Hit{
				Document: documentFromFields(h.ID, h.Fields),
				Score:    h.Score,
			})
		}
		return nil
	})
	if err != nil {
		return nil, s.searchFailure(err)
	}

	if s.cache != nil {
		s.cache.Add(key, result.clone())
	}
	return result, nil
}

// buildQuery translates args into a bleve query. ok is false when the text
// reduces to nothing searchable (for example only stop words).
func (s *Searcher) buildQuery(args SearchArgs, forums []int, all bool) (query.Query, bool) {
	var must []query.Query

	if args.Terms != "" {
		terms := uniqueStrings(s.settings.Pipeline().Analyze(args.Terms))
		if len(terms) == 0 {
			return nil, false
		}

		perTerm := make([]query.Query, 0, len(terms))
		for _, term := range terms {
			subject := bleve.NewTermQuery(term)
			subject.SetField(FieldSubject)
			contents := bleve.NewTermQuery(term)
			contents.SetField(FieldContents)
			perTerm = append(perTerm, bleve.NewDisjunctionQuery(subject, contents))
		}
		if args.MatchAll {
			must = append(must, bleve.NewConjunctionQuery(perTerm...))
		} else {
			must = append(must, bleve.NewDisjunctionQuery(perTerm...))
		}
	}

	if args.ForumID != 0 {
		must = append(must, numericEquals(FieldForumID, args.ForumID))
	} else if !all {
		allowed := make([]query.Query, 0, len(forums))
		for _, id := range forums {
			allowed = append(allowed, numericEquals(FieldForumID, id))
		}
		must = append(must, bleve.NewDisjunctionQuery(allowed...))
	}
	if args.TopicID != 0 {
		must = append(must, numericEquals(FieldTopicID, args.TopicID))
	}
	if args.UserID != 0 {
		must = append(must, numericEquals(FieldUserID, args.UserID))
	}

	if !args.From.IsZero() || !args.To.IsZero() {
		inclusive := true
		dq := bleve.NewDateRangeInclusiveQuery(args.From, args.To, &inclusive, &inclusive)
		dq.SetField(FieldDate)
		must = append(must, dq)
	}

	switch len(must) {
	case 0:
		return bleve.NewMatchAllQuery(), true
	case 1:
		return must[0], true
	default:
		return bleve.NewConjunctionQuery(must...), true
	}
}

func numericEquals(field string, v int) query.Query {
	f := float64(v)
	inclusive := true
	q := bleve.NewNumericRangeInclusiveQuery(&f, &f, &inclusive, &inclusive)
	q.SetField(field)
	return q
}

func (s *Searcher) searchFailure(err error) error {
	if errors.GetCode(err) != "" {
		return err
	}
	s.logger.Warn("index_search_failed", slog.String("error", err.Error()))
	return errors.New(errors.ErrCodeSearchFailed, "search failed", err)
}

func cacheKey(gen uint64, args SearchArgs, forums []int, all bool) string {
	scope := "*"
	if !all {
		sorted := append([]int(nil), forums...)
		sort.Ints(sorted)
		scope = fmt.Sprint(sorted)
	}
	return fmt.Sprintf("%d|%s|%t|%d|%d|%d|%d|%d|%d|%d|%s|%s",
		gen, args.Terms, args.MatchAll, args.ForumID, args.TopicID, args.UserID,
		args.From.UnixNano(), args.To.UnixNano(), args.Offset, args.Limit, args.OrderBy, scope)
}

func (r *SearchResult) clone() *SearchResult {
	out := &SearchResult{Total: r.Total, Hits: make([]Hit, len(r.Hits))}
	copy(out.Hits, r.Hits)
	return out
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
