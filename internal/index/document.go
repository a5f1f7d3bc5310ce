package index

import (
	"strconv"
	"time"

	"github.com/xHumanityRO/forumsearch/internal/forum"
)

// Field names stored in the index.
const (
	FieldPostID   = "post_id"
	FieldForumID  = "forum_id"
	FieldTopicID  = "topic_id"
	FieldUserID   = "user_id"
	FieldDate     = "date"
	FieldSubject  = "subject"
	FieldContents = "contents"
)

// Document is the indexed projection of a forum post. Its bleve document id
// is the decimal post id.
type Document struct {
	PostID   int       `json:"post_id"`
	ForumID  int       `json:"forum_id"`
	TopicID  int       `json:"topic_id"`
	UserID   int       `json:"user_id"`
	Date     time.Time `json:"date"`
	Subject  string    `json:"subject"`
	Contents string    `json:"contents"`
}

// ID returns the bleve document id.
func (d Document) ID() string {
	return DocID(d.PostID)
}

// DocID converts a post id to a bleve document id.
func DocID(postID int) string {
	return strconv.Itoa(postID)
}

// Collect projects a post into the fields the index stores.
func Collect(p *forum.Post) Document {
	return Document{
		PostID:   p.ID,
		ForumID:  p.ForumID,
		TopicID:  p.TopicID,
		UserID:   p.UserID,
		Date:     p.Time.UTC(),
		Subject:  p.Subject,
		Contents: p.Text,
	}
}

// documentFromFields rebuilds a Document from stored hit fields.
// Numeric fields come back as float64 and datetimes as RFC3339 strings.
func documentFromFields(id string, fields map[string]interface{}) Document {
	doc := Document{
		ForumID:  intField(fields[FieldForumID]),
		TopicID:  intField(fields[FieldTopicID]),
		UserID:   intField(fields[FieldUserID]),
		Subject:  stringField(fields[FieldSubject]),
		Contents: stringField(fields[FieldContents]),
	}

	doc.PostID = intField(fields[FieldPostID])
	if doc.PostID == 0 {
		doc.PostID, _ = strconv.Atoi(id)
	}

	if s, ok := fields[FieldDate].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			doc.Date = t.UTC()
		}
	}

	return doc
}

func intField(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case []interface{}:
		if len(n) > 0 {
			return intField(n[0])
		}
	}
	return 0
}

func stringField(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case []interface{}:
		if len(s) > 0 {
			return stringField(s[0])
		}
	}
	return ""
}
