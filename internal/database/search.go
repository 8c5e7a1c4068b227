package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smaller-world/happytown.life/internal/models"
)

// SearchQuery describes one message search within a group. AllKeywords and
// AnyKeywords are mutually exclusive. Participants holds free-form
// identifiers (LID, phone-number JID, or E.164 phone). From is inclusive and
// To exclusive.
type SearchQuery struct {
	GroupID      string
	AllKeywords  []string
	AnyKeywords  []string
	Participants []string
	From         *time.Time
	To           *time.Time
	Page         int
	PageSize     int
}

func (q *SearchQuery) hasFilters() bool {
	return len(q.AllKeywords) > 0 || len(q.AnyKeywords) > 0 ||
		len(q.Participants) > 0 || q.From != nil || q.To != nil
}

// SearchResult is one page of matches plus a next-page probe. HasNextPage is
// computed by over-fetching one row, so no total count is ever taken.
type SearchResult struct {
	Messages    []*models.MessageView
	Page        int
	HasNextPage bool
}

// ftsMatch builds an FTS5 MATCH expression from keywords. Each keyword is
// quoted so user input cannot inject FTS syntax.
func ftsMatch(keywords []string, operator string) string {
	terms := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		terms = append(terms, `"`+strings.ReplaceAll(kw, `"`, `""`)+`"`)
	}
	return strings.Join(terms, " "+operator+" ")
}

// SearchMessages runs a filtered full-text search over one group's messages,
// newest first. A query with no filters matches nothing.
func (d *Database) SearchMessages(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	if len(q.AllKeywords) > 0 && len(q.AnyKeywords) > 0 {
		return nil, fmt.Errorf("all-of and any-of keywords cannot be combined")
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		return nil, fmt.Errorf("page size must be positive")
	}
	if !q.hasFilters() {
		return &SearchResult{Messages: nil, Page: q.Page, HasNextPage: false}, nil
	}

	conditions := []string{"m.group_id = ?"}
	args := []interface{}{q.GroupID}

	var match string
	switch {
	case len(q.AllKeywords) > 0:
		match = ftsMatch(q.AllKeywords, "AND")
	case len(q.AnyKeywords) > 0:
		match = ftsMatch(q.AnyKeywords, "OR")
	}
	if match != "" {
		conditions = append(conditions,
			`m.rowid IN (SELECT rowid FROM whatsapp_messages_fts WHERE whatsapp_messages_fts MATCH ?)`)
		args = append(args, match)
	}

	if len(q.Participants) > 0 {
		userIDs, err := d.FindUserIDsByIdentifiers(ctx, q.Participants)
		if err != nil {
			return nil, err
		}

		idPlaceholders := "NULL"
		if len(userIDs) > 0 {
			idPlaceholders = strings.TrimSuffix(strings.Repeat("?,", len(userIDs)), ",")
		}
		jidPlaceholders := strings.TrimSuffix(strings.Repeat("?,", len(q.Participants)), ",")

		conditions = append(conditions, fmt.Sprintf(`(
			m.sender_id IN (%s)
			OR EXISTS (SELECT 1 FROM message_mentions mm WHERE mm.message_id = m.id AND mm.user_id IN (%s))
			OR m.quoted_participant_jid IN (%s)
			OR EXISTS (SELECT 1 FROM whatsapp_users qu
				WHERE qu.id IN (%s)
				AND m.quoted_participant_jid IN (qu.lid, qu.phone_number_jid))
		)`, idPlaceholders, idPlaceholders, jidPlaceholders, idPlaceholders))
		for i := 0; i < 2; i++ {
			for _, id := range userIDs {
				args = append(args, id)
			}
		}
		for _, p := range q.Participants {
			args = append(args, p)
		}
		for _, id := range userIDs {
			args = append(args, id)
		}
	}

	if q.From != nil {
		conditions = append(conditions, "m.timestamp >= ?")
		args = append(args, q.From.UTC())
	}
	if q.To != nil {
		conditions = append(conditions, "m.timestamp < ?")
		args = append(args, q.To.UTC())
	}

	offset := (q.Page - 1) * q.PageSize
	query := messageViewSelect + `
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY m.timestamp DESC, m.created_at DESC
		LIMIT ? OFFSET ?
	`
	args = append(args, q.PageSize+1, offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	defer rows.Close()

	views, err := scanMessageViews(rows)
	if err != nil {
		return nil, err
	}

	hasNext := len(views) > q.PageSize
	if hasNext {
		views = views[:q.PageSize]
	}
	return &SearchResult{Messages: views, Page: q.Page, HasNextPage: hasNext}, nil
}
