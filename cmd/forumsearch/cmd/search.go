package cmd

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xHumanityRO/forumsearch/internal/analysis"
	"github.com/xHumanityRO/forumsearch/internal/config"
	"github.com/xHumanityRO/forumsearch/internal/daemon"
	"github.com/xHumanityRO/forumsearch/internal/errors"
	"github.com/xHumanityRO/forumsearch/internal/index"
	"github.com/xHumanityRO/forumsearch/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	matchAll bool
	forumID  int
	topicID  int
	authorID int
	from     string
	to       string
	offset   int
	limit    int
	order    string
	userID   int
	format   string // "text", "json"
	local    bool
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [terms...]",
		Short: "Search indexed posts",
		Long: `Search indexed posts by free text and filters.

Terms are stemmed and stop words are dropped, so "running dogs" also
matches "run" and "dog". Without --all any term may match.

The search runs in the daemon when it is up, otherwise directly against
the index directory.

Examples:
  forumsearch search installation guide
  forumsearch search --all connection pool --forum 3
  forumsearch search --author 42 --order date --limit 5
  forumsearch search timeout --from 2024-01-01 --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			params, err := opts.params(strings.Join(args, " "))
			if err != nil {
				return err
			}
			return runSearch(cmd.Context(), cmd, cfg, params, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.matchAll, "all", false, "Require every term to match")
	cmd.Flags().IntVar(&opts.forumID, "forum", 0, "Restrict to a forum id")
	cmd.Flags().IntVar(&opts.topicID, "topic", 0, "Restrict to a topic id")
	cmd.Flags().IntVar(&opts.authorID, "author", 0, "Restrict to posts by this user id")
	cmd.Flags().StringVar(&opts.from, "from", "", "Posts written on or after this date")
	cmd.Flags().StringVar(&opts.to, "to", "", "Posts written on or before this date")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Number of hits to skip")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of hits")
	cmd.Flags().StringVar(&opts.order, "order", string(index.SortRelevance), "Sort order: relevance, date")
	cmd.Flags().IntVar(&opts.userID, "as-user", 0, "Search on behalf of this user id (forum visibility)")
	cmd.Flags().StringVar(&opts.format, "format", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Search the index directory even if the daemon is running")

	return cmd
}

// params converts the flags to request parameters.
func (o searchOptions) params(terms string) (daemon.SearchParams, error) {
	p := daemon.SearchParams{
		Terms:    strings.TrimSpace(terms),
		MatchAll: o.matchAll,
		ForumID:  o.forumID,
		TopicID:  o.topicID,
		AuthorID: o.authorID,
		Offset:   o.offset,
		Limit:    o.limit,
		OrderBy:  o.order,
		UserID:   o.userID,
	}

	var err error
	if o.from != "" {
		if p.From, err = parseDate(o.from, false); err != nil {
			return p, err
		}
	}
	if o.to != "" {
		if p.To, err = parseDate(o.to, true); err != nil {
			return p, err
		}
	}
	if o.format != "text" && o.format != "json" {
		return p, errors.ValidationError("format must be 'text' or 'json', got "+o.format, nil)
	}
	if err := p.Validate(); err != nil {
		return p, errors.ValidationError(err.Error(), err)
	}
	return p, nil
}

func runSearch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, params daemon.SearchParams, opts searchOptions) error {
	slog.Debug("search_started", slog.String("terms", params.Terms), slog.Int("limit", params.Limit))

	var (
		res *daemon.SearchResult
		err error
	)
	client := daemon.NewClient(daemon.FromConfig(cfg))
	if !opts.local && client.IsRunning() {
		res, err = client.Search(ctx, params)
	} else {
		res, err = searchLocal(ctx, cfg, params)
	}
	if err != nil {
		return err
	}

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	hits := make([]output.Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, output.Hit{
			PostID:  h.PostID,
			ForumID: h.ForumID,
			TopicID: h.TopicID,
			Date:    h.Date,
			Subject: h.Subject,
			Score:   h.Score,
		})
	}
	output.New(cmd.OutOrStdout()).Hits(res.Total, params.Offset, hits)
	return nil
}

// searchLocal queries the index directory directly.
func searchLocal(ctx context.Context, cfg *config.Config, params daemon.SearchParams) (*daemon.SearchResult, error) {
	pipeline, err := analysis.New(cfg.Index.Languages, nil)
	if err != nil {
		return nil, err
	}
	settings := index.NewSettings(cfg.Index.Path, pipeline, nil)
	defer func() { _ = settings.Close() }()
	if err := settings.Open(); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := index.NewSearcher(settings, 0).Search(ctx, params.Args(), params.UserID)
	if err != nil {
		return nil, err
	}
	slog.Debug("search_completed", slog.Uint64("total", res.Total), slog.Duration("elapsed", time.Since(start)))

	out := &daemon.SearchResult{Total: res.Total, Hits: make([]daemon.SearchHit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		out.Hits = append(out.Hits, daemon.SearchHit{
			PostID:  h.PostID,
			ForumID: h.ForumID,
			TopicID: h.TopicID,
			UserID:  h.UserID,
			Date:    h.Date,
			Subject: h.Subject,
			Score:   h.Score,
		})
	}
	return out, nil
}
