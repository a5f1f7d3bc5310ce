package storage

import (
	"context"
	"fmt"

	"github.com/xHumanityRO/forumsearch/internal/forum"
)

// EnsureSchema creates the post tables when they do not exist. Production
// forums already have them; this is used for fresh installs and tests.
func (s *PostStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jforum_users (
			user_id INTEGER PRIMARY KEY,
			username VARCHAR(100) NOT NULL DEFAULT ''
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS jforum_posts (
			post_id INTEGER PRIMARY KEY,
			topic_id INTEGER NOT NULL DEFAULT 0,
			forum_id INTEGER NOT NULL DEFAULT 0,
			user_id INTEGER NOT NULL DEFAULT 0,
			post_time %s NOT NULL,
			need_moderate INTEGER NOT NULL DEFAULT 0
		)`, s.dialect.timeColumn()),
		`CREATE TABLE IF NOT EXISTS jforum_posts_text (
			post_id INTEGER PRIMARY KEY,
			post_subject VARCHAR(255),
			post_text TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jforum_posts_time ON jforum_posts (post_time)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// InsertPost writes p and its text. moderated marks it as awaiting approval.
func (s *PostStore) InsertPost(ctx context.Context, p *forum.Post, moderated bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	needModerate := 0
	if moderated {
		needModerate = 1
	}

	if _, err := tx.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO jforum_posts (post_id, topic_id, forum_id, user_id, post_time, need_moderate) VALUES (?, ?, ?, ?, ?, ?)`),
		p.ID, p.TopicID, p.ForumID, p.UserID, s.dialect.timeArg(p.Time), needModerate); err != nil {
		return fmt.Errorf("insert post %d: %w", p.ID, err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO jforum_posts_text (post_id, post_subject, post_text) VALUES (?, ?, ?)`),
		p.ID, p.Subject, p.Text); err != nil {
		return fmt.Errorf("insert post text %d: %w", p.ID, err)
	}
	if p.Username != "" {
		if _, err := tx.ExecContext(ctx, s.dialect.rebind(
			`INSERT INTO jforum_users (user_id, username) VALUES (?, ?) ON CONFLICT (user_id) DO NOTHING`),
			p.UserID, p.Username); err != nil {
			return fmt.Errorf("insert user %d: %w", p.UserID, err)
		}
	}

	return tx.Commit()
}
