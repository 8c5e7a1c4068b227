package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/smaller-world/happytown.life/internal/models"

	"github.com/google/uuid"
)

const messageColumns = `id, group_id, sender_id, provider_message_id, body, timestamp,
	mentioned_jids, quoted_message_id, quoted_participant_jid, quoted_body,
	reply_sent_at, created_at`

func scanMessage(row *sql.Row) (*models.Message, error) {
	var m models.Message
	var mentioned string
	err := row.Scan(
		&m.ID, &m.GroupID, &m.SenderID, &m.ProviderMessageID, &m.Body, &m.Timestamp,
		&mentioned, &m.QuotedMessageID, &m.QuotedParticipantJID, &m.QuotedBody,
		&m.ReplySentAt, &m.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}
	if err := json.Unmarshal([]byte(mentioned), &m.MentionedJIDs); err != nil {
		return nil, fmt.Errorf("failed to decode mentioned JIDs: %w", err)
	}
	return &m, nil
}

// CreateMessage persists a message and its resolved mention links. Inserts
// are idempotent on (group_id, provider_message_id); the boolean reports
// whether this call stored the row. mentionedUserIDs holds the IDs of
// locally known users the message mentions.
func (d *Database) CreateMessage(ctx context.Context, msg *models.Message, mentionedUserIDs []string) (bool, error) {
	mentioned := msg.MentionedJIDs
	if mentioned == nil {
		mentioned = []string{}
	}
	mentionedJSON, err := json.Marshal(mentioned)
	if err != nil {
		return false, fmt.Errorf("failed to encode mentioned JIDs: %w", err)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO whatsapp_messages
			(id, group_id, sender_id, provider_message_id, body, timestamp,
			 mentioned_jids, quoted_message_id, quoted_participant_jid, quoted_body)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.GroupID, msg.SenderID, msg.ProviderMessageID, msg.Body,
		msg.Timestamp.UTC(), string(mentionedJSON),
		msg.QuotedMessageID, msg.QuotedParticipantJID, msg.QuotedBody)
	if err != nil {
		return false, fmt.Errorf("failed to insert message: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	for _, userID := range mentionedUserIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO message_mentions (id, message_id, user_id)
			VALUES (?, ?, ?)
		`, uuid.NewString(), msg.ID, userID)
		if err != nil {
			return false, fmt.Errorf("failed to insert mention: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit message: %w", err)
	}
	return true, nil
}

func (d *Database) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM whatsapp_messages WHERE id = ?`, id)
	return scanMessage(row)
}

// GetMessageByProviderID looks a message up by its gateway ID within one group.
func (d *Database) GetMessageByProviderID(ctx context.Context, groupID, providerMessageID string) (*models.Message, error) {
	row := d.db.QueryRowContext(ctx, `
		SELECT `+messageColumns+` FROM whatsapp_messages
		WHERE group_id = ? AND provider_message_id = ?
	`, groupID, providerMessageID)
	return scanMessage(row)
}

// MarkReplySent stamps reply_sent_at exactly once. It returns false when a
// previous attempt already claimed the message.
func (d *Database) MarkReplySent(ctx context.Context, messageID string, sentAt time.Time) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE whatsapp_messages SET reply_sent_at = ? WHERE id = ? AND reply_sent_at IS NULL`,
		sentAt.UTC(), messageID)
	if err != nil {
		return false, fmt.Errorf("failed to mark reply sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return affected > 0, nil
}

const messageViewSelect = `
	SELECT m.id, m.group_id, m.sender_id, m.provider_message_id, m.body, m.timestamp,
	       m.mentioned_jids, m.quoted_message_id, m.quoted_participant_jid, m.quoted_body,
	       m.reply_sent_at, m.created_at,
	       s.lid, s.display_name, s.phone_number,
	       CASE WHEN qu.id IS NULL THEN NULL
	            ELSE COALESCE(NULLIF(qu.display_name, ''), NULLIF(qu.phone_number, ''), qu.lid)
	       END
	FROM whatsapp_messages m
	JOIN whatsapp_users s ON s.id = m.sender_id
	LEFT JOIN whatsapp_messages qm ON qm.id = m.quoted_message_id
	LEFT JOIN whatsapp_users qu ON qu.id = qm.sender_id
`

func scanMessageViews(rows *sql.Rows) ([]*models.MessageView, error) {
	var views []*models.MessageView
	for rows.Next() {
		var v models.MessageView
		var mentioned string
		err := rows.Scan(
			&v.ID, &v.GroupID, &v.SenderID, &v.ProviderMessageID, &v.Body, &v.Timestamp,
			&mentioned, &v.QuotedMessageID, &v.QuotedParticipantJID, &v.QuotedBody,
			&v.ReplySentAt, &v.CreatedAt,
			&v.SenderLID, &v.SenderDisplayName, &v.SenderPhoneNumber,
			&v.QuotedSenderName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message view: %w", err)
		}
		if err := json.Unmarshal([]byte(mentioned), &v.MentionedJIDs); err != nil {
			return nil, fmt.Errorf("failed to decode mentioned JIDs: %w", err)
		}
		views = append(views, &v)
	}
	return views, rows.Err()
}

// GetMessageView returns one message joined with sender identity.
func (d *Database) GetMessageView(ctx context.Context, id string) (*models.MessageView, error) {
	rows, err := d.db.QueryContext(ctx, messageViewSelect+` WHERE m.id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get message view: %w", err)
	}
	defer rows.Close()

	views, err := scanMessageViews(rows)
	if err != nil {
		return nil, err
	}
	if len(views) == 0 {
		return nil, nil
	}
	return views[0], nil
}

func reverseViews(views []*models.MessageView) []*models.MessageView {
	for i, j := 0, len(views)-1; i < j; i, j = i+1, j-1 {
		views[i], views[j] = views[j], views[i]
	}
	return views
}

// ListMessagesBefore returns up to limit messages in the group strictly
// older than the anchor message, in chronological order.
func (d *Database) ListMessagesBefore(ctx context.Context, groupID, anchorID string, limit int) ([]*models.MessageView, error) {
	rows, err := d.db.QueryContext(ctx, messageViewSelect+`
		WHERE m.group_id = ?
		  AND (m.timestamp, m.created_at) < (SELECT timestamp, created_at FROM whatsapp_messages WHERE id = ?)
		ORDER BY m.timestamp DESC, m.created_at DESC
		LIMIT ?
	`, groupID, anchorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages before anchor: %w", err)
	}
	defer rows.Close()

	views, err := scanMessageViews(rows)
	if err != nil {
		return nil, err
	}
	return reverseViews(views), nil
}

// ListMessagesAfter returns up to limit messages in the group strictly newer
// than the anchor message, in chronological order.
func (d *Database) ListMessagesAfter(ctx context.Context, groupID, anchorID string, limit int) ([]*models.MessageView, error) {
	rows, err := d.db.QueryContext(ctx, messageViewSelect+`
		WHERE m.group_id = ?
		  AND (m.timestamp, m.created_at) > (SELECT timestamp, created_at FROM whatsapp_messages WHERE id = ?)
		ORDER BY m.timestamp ASC, m.created_at ASC
		LIMIT ?
	`, groupID, anchorID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages after anchor: %w", err)
	}
	defer rows.Close()
	return scanMessageViews(rows)
}

// ListRecentMessages returns the newest limit messages in the group, in
// chronological order.
func (d *Database) ListRecentMessages(ctx context.Context, groupID string, limit int) ([]*models.MessageView, error) {
	rows, err := d.db.QueryContext(ctx, messageViewSelect+`
		WHERE m.group_id = ?
		ORDER BY m.timestamp DESC, m.created_at DESC
		LIMIT ?
	`, groupID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	defer rows.Close()

	views, err := scanMessageViews(rows)
	if err != nil {
		return nil, err
	}
	return reverseViews(views), nil
}
