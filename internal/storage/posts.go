// Package storage reads forum posts from the relational database.
package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/errors"
	"github.com/xHumanityRO/forumsearch/internal/forum"
)

// pageCapacity caps the up-front allocation of a page; ids may be sparse.
const pageCapacity = 256

// ErrPostNotFound is returned by PostByID for unknown ids.
var ErrPostNotFound = stderrors.New("post not found")

const postColumns = `p.post_id, p.topic_id, p.forum_id, p.user_id, p.post_time,
	COALESCE(t.post_subject, ''), COALESCE(t.post_text, ''), COALESCE(u.username, '')`

const postJoins = `FROM jforum_posts p
	LEFT JOIN jforum_posts_text t ON t.post_id = p.post_id
	LEFT JOIN jforum_users u ON u.user_id = p.user_id`

// Config configures a PostStore.
type Config struct {
	// Driver is sqlite, sqlite3 or postgres.
	Driver string
	DSN    string

	MaxOpenConns int
	Logger       *slog.Logger
}

// PostStore is the SQL-backed post DAO.
type PostStore struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// Open connects to the database and verifies the connection, retrying
// transient failures.
func Open(ctx context.Context, cfg Config) (*PostStore, error) {
	d, err := lookupDialect(cfg.Driver)
	if err != nil {
		return nil, errors.ConfigError(err.Error(), nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open(d.driver, cfg.DSN)
	if err != nil {
		return nil, errors.New(errors.ErrCodeStorageUnavailable, "cannot open database", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	err = errors.Retry(ctx, errors.DefaultRetryConfig(), func() error {
		if perr := db.PingContext(ctx); perr != nil {
			logger.Warn("storage_ping_failed", slog.String("driver", d.driver), slog.String("error", perr.Error()))
			return errors.New(errors.ErrCodeStorageUnavailable, "database ping failed", perr)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	for _, pragma := range d.pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, errors.New(errors.ErrCodeStorageUnavailable, fmt.Sprintf("%s failed", pragma), err)
		}
	}

	logger.Info("storage_opened", slog.String("driver", d.driver))
	return &PostStore{db: db, dialect: d, logger: logger}, nil
}

// Close closes the database.
func (s *PostStore) Close() error {
	return s.db.Close()
}

// DB exposes the connection pool.
func (s *PostStore) DB() *sql.DB {
	return s.db
}

// PostIDBounds returns the smallest and largest post ids, 0, 0 when empty.
func (s *PostStore) PostIDBounds(ctx context.Context) (int, int, error) {
	var first, last sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MIN(post_id), MAX(post_id) FROM jforum_posts").Scan(&first, &last)
	if err != nil {
		return 0, 0, errors.StorageFetchFailure("cannot read post id bounds", err)
	}
	return int(first.Int64), int(last.Int64), nil
}

// FirstPostIDByDate returns the smallest id of a post made at or after t.
func (s *PostStore) FirstPostIDByDate(ctx context.Context, t time.Time) (int, error) {
	return s.scalarID(ctx, "SELECT MIN(post_id) FROM jforum_posts WHERE post_time >= ?", t)
}

// LastPostIDByDate returns the largest id of a post made at or before t.
func (s *PostStore) LastPostIDByDate(ctx context.Context, t time.Time) (int, error) {
	return s.scalarID(ctx, "SELECT MAX(post_id) FROM jforum_posts WHERE post_time <= ?", t)
}

func (s *PostStore) scalarID(ctx context.Context, query string, t time.Time) (int, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, s.dialect.rebind(query), s.dialect.timeArg(t)).Scan(&id); err != nil {
		return 0, errors.StorageFetchFailure("cannot resolve post id by date", err)
	}
	return int(id.Int64), nil
}

// PostsToIndex returns approved posts with from <= id <= to, ordered by id.
func (s *PostStore) PostsToIndex(ctx context.Context, from, to int) ([]*forum.Post, error) {
	if to < from {
		return []*forum.Post{}, nil
	}
	query := s.dialect.rebind(`SELECT ` + postColumns + ` ` + postJoins + `
		WHERE p.post_id >= ? AND p.post_id <= ? AND p.need_moderate = 0
		ORDER BY p.post_id`)

	rows, err := s.db.QueryContext(ctx, query, from, to)
	if err != nil {
		return nil, errors.StorageFetchFailure(fmt.Sprintf("cannot fetch posts %d..%d", from, to), err)
	}
	defer func() { _ = rows.Close() }()

	posts := make([]*forum.Post, 0, min(to-from+1, pageCapacity))
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, errors.StorageFetchFailure("cannot read post row", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageFetchFailure(fmt.Sprintf("cannot fetch posts %d..%d", from, to), err)
	}
	return posts, nil
}

// PostByID loads one post, including posts awaiting moderation.
func (s *PostStore) PostByID(ctx context.Context, id int) (*forum.Post, error) {
	query := s.dialect.rebind(`SELECT ` + postColumns + ` ` + postJoins + ` WHERE p.post_id = ?`)

	p, err := scanPost(s.db.QueryRowContext(ctx, query, id))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("post %d: %w", id, ErrPostNotFound)
	}
	if err != nil {
		return nil, errors.StorageFetchFailure(fmt.Sprintf("cannot load post %d", id), err)
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*forum.Post, error) {
	var (
		p  forum.Post
		ts dbTime
	)
	if err := row.Scan(&p.ID, &p.TopicID, &p.ForumID, &p.UserID, &ts, &p.Subject, &p.Text, &p.Username); err != nil {
		return nil, err
	}
	p.Time = ts.Time
	return &p, nil
}
