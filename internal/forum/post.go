// Package forum holds the forum domain entities consumed by the search index.
package forum

import "time"

// Post is a single forum message as stored in the relational database.
type Post struct {
	ID       int
	TopicID  int
	ForumID  int
	UserID   int
	Time     time.Time
	Subject  string
	Text     string
	Username string
}

// AnonymousUserID identifies requests made without a logged-in user.
const AnonymousUserID = 0
