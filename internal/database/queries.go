package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/smaller-world/happytown.life/internal/models"

	"github.com/google/uuid"
)

const groupColumns = `id, jid, subject, description, profile_picture_url,
	metadata_synced_at, memberships_synced_at, intro_sent_at, created_at, updated_at`

func scanGroup(row *sql.Row) (*models.Group, error) {
	var g models.Group
	err := row.Scan(
		&g.ID, &g.JID, &g.Subject, &g.Description, &g.ProfilePictureURL,
		&g.MetadataSyncedAt, &g.MembershipsSyncedAt, &g.IntroSentAt,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan group: %w", err)
	}
	return &g, nil
}

// FindOrCreateGroupByJID returns the group for the JID, inserting a bare row
// when it is unknown. The boolean reports whether this call created it.
func (d *Database) FindOrCreateGroupByJID(ctx context.Context, jid string) (*models.Group, bool, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO whatsapp_groups (id, jid) VALUES (?, ?)`,
		uuid.NewString(), jid,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert group: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read insert result: %w", err)
	}

	group, err := d.GetGroupByJID(ctx, jid)
	if err != nil {
		return nil, false, err
	}
	if group == nil {
		return nil, false, fmt.Errorf("group %s missing after upsert", jid)
	}
	return group, affected > 0, nil
}

func (d *Database) GetGroup(ctx context.Context, id string) (*models.Group, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM whatsapp_groups WHERE id = ?`, id)
	return scanGroup(row)
}

func (d *Database) GetGroupByJID(ctx context.Context, jid string) (*models.Group, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+groupColumns+` FROM whatsapp_groups WHERE jid = ?`, jid)
	return scanGroup(row)
}

// UpdateGroupMetadata stores the gateway's current subject, description and
// picture for the group and stamps metadata_synced_at.
func (d *Database) UpdateGroupMetadata(ctx context.Context, id string, subject, description, pictureURL *string, syncedAt time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE whatsapp_groups
		SET subject = ?, description = ?, profile_picture_url = ?, metadata_synced_at = ?
		WHERE id = ?
	`, subject, description, pictureURL, syncedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update group metadata: %w", err)
	}
	return nil
}

func (d *Database) MarkGroupMembershipsSynced(ctx context.Context, id string, syncedAt time.Time) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE whatsapp_groups SET memberships_synced_at = ? WHERE id = ?`,
		syncedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark memberships synced: %w", err)
	}
	return nil
}

// MarkGroupIntroSent stamps intro_sent_at exactly once. It returns false when
// another writer already claimed the intro for this group.
func (d *Database) MarkGroupIntroSent(ctx context.Context, id string, sentAt time.Time) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`UPDATE whatsapp_groups SET intro_sent_at = ? WHERE id = ? AND intro_sent_at IS NULL`,
		sentAt.UTC(), id)
	if err != nil {
		return false, fmt.Errorf("failed to mark intro sent: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read update result: %w", err)
	}
	return affected > 0, nil
}

// ListGroupsWithStaleMetadata returns groups whose metadata has never been
// synced or was last synced before the cutoff.
func (d *Database) ListGroupsWithStaleMetadata(ctx context.Context, cutoff time.Time) ([]*models.Group, error) {
	return d.listStaleGroups(ctx, "metadata_synced_at", cutoff)
}

func (d *Database) ListGroupsWithStaleMemberships(ctx context.Context, cutoff time.Time) ([]*models.Group, error) {
	return d.listStaleGroups(ctx, "memberships_synced_at", cutoff)
}

func (d *Database) listStaleGroups(ctx context.Context, column string, cutoff time.Time) ([]*models.Group, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM whatsapp_groups
		WHERE %s IS NULL OR %s < ?
		ORDER BY created_at
	`, groupColumns, column, column)

	rows, err := d.db.QueryContext(ctx, query, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list stale groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		var g models.Group
		err := rows.Scan(
			&g.ID, &g.JID, &g.Subject, &g.Description, &g.ProfilePictureURL,
			&g.MetadataSyncedAt, &g.MembershipsSyncedAt, &g.IntroSentAt,
			&g.CreatedAt, &g.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan group: %w", err)
		}
		groups = append(groups, &g)
	}
	return groups, rows.Err()
}

const userColumns = `id, lid, phone_number, phone_number_jid, display_name,
	profile_picture_url, metadata_synced_at, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID, &u.LID, &u.PhoneNumber, &u.PhoneNumberJID, &u.DisplayName,
		&u.ProfilePictureURL, &u.MetadataSyncedAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

// FindOrCreateUserByLID returns the user with the given LID, inserting a
// bare row when it is unknown.
func (d *Database) FindOrCreateUserByLID(ctx context.Context, lid string) (*models.User, bool, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO whatsapp_users (id, lid) VALUES (?, ?)`,
		uuid.NewString(), lid,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read insert result: %w", err)
	}

	user, err := d.GetUserByLID(ctx, lid)
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		return nil, false, fmt.Errorf("user %s missing after upsert", lid)
	}
	return user, affected > 0, nil
}

func (d *Database) GetUser(ctx context.Context, id string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM whatsapp_users WHERE id = ?`, id)
	return scanUser(row)
}

func (d *Database) GetUserByLID(ctx context.Context, lid string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM whatsapp_users WHERE lid = ?`, lid)
	return scanUser(row)
}

func (d *Database) GetUserByPhoneNumber(ctx context.Context, phone string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM whatsapp_users WHERE phone_number = ?`, phone)
	return scanUser(row)
}

// UpdateUserObserved backfills fields learned from a message payload without
// clearing anything already present. Empty strings are ignored.
func (d *Database) UpdateUserObserved(ctx context.Context, id, phoneNumber, phoneNumberJID, displayName string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE whatsapp_users
		SET phone_number = CASE WHEN ? != '' THEN ? ELSE phone_number END,
		    phone_number_jid = CASE WHEN ? != '' THEN ? ELSE phone_number_jid END,
		    display_name = CASE WHEN ? != '' THEN ? ELSE display_name END
		WHERE id = ?
	`, phoneNumber, phoneNumber, phoneNumberJID, phoneNumberJID, displayName, displayName, id)
	if err != nil {
		return fmt.Errorf("failed to update observed user fields: %w", err)
	}
	return nil
}

// UpdateUserMetadata stores the result of a gateway profile lookup and
// stamps metadata_synced_at.
func (d *Database) UpdateUserMetadata(ctx context.Context, id string, phoneNumber, phoneNumberJID, pictureURL *string, syncedAt time.Time) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE whatsapp_users
		SET phone_number = COALESCE(?, phone_number),
		    phone_number_jid = COALESCE(?, phone_number_jid),
		    profile_picture_url = COALESCE(?, profile_picture_url),
		    metadata_synced_at = ?
		WHERE id = ?
	`, phoneNumber, phoneNumberJID, pictureURL, syncedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user metadata: %w", err)
	}
	return nil
}

func (d *Database) ListUsersWithStaleMetadata(ctx context.Context, cutoff time.Time) ([]*models.User, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM whatsapp_users
		WHERE metadata_synced_at IS NULL OR metadata_synced_at < ?
		ORDER BY created_at
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list stale users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		var u models.User
		err := rows.Scan(
			&u.ID, &u.LID, &u.PhoneNumber, &u.PhoneNumberJID, &u.DisplayName,
			&u.ProfilePictureURL, &u.MetadataSyncedAt, &u.CreatedAt, &u.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, &u)
	}
	return users, rows.Err()
}

// FindUserIDsByIdentifiers resolves free-form participant identifiers to
// user IDs. Each identifier may be a LID, a phone-number JID, or a bare
// phone number in E.164 form.
func (d *Database) FindUserIDsByIdentifiers(ctx context.Context, identifiers []string) ([]string, error) {
	if len(identifiers) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(identifiers)), ",")
	query := fmt.Sprintf(`
		SELECT DISTINCT id FROM whatsapp_users
		WHERE lid IN (%s) OR phone_number_jid IN (%s) OR phone_number IN (%s)
	`, placeholders, placeholders, placeholders)

	args := make([]interface{}, 0, len(identifiers)*3)
	for i := 0; i < 3; i++ {
		for _, ident := range identifiers {
			args = append(args, ident)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve user identifiers: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MembershipInput is one participant row for ReplaceGroupMemberships.
type MembershipInput struct {
	UserID string
	Admin  *string
}

// ReplaceGroupMemberships makes the stored membership set for the group
// exactly match the given participants.
func (d *Database) ReplaceGroupMemberships(ctx context.Context, groupID string, members []MembershipInput) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM group_memberships WHERE group_id = ?`, groupID); err != nil {
		return fmt.Errorf("failed to clear memberships: %w", err)
	}

	for _, m := range members {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO group_memberships (id, group_id, user_id, admin)
			VALUES (?, ?, ?, ?)
		`, uuid.NewString(), groupID, m.UserID, m.Admin)
		if err != nil {
			return fmt.Errorf("failed to insert membership: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit memberships: %w", err)
	}
	return nil
}

func (d *Database) ListGroupMemberships(ctx context.Context, groupID string) ([]*models.Membership, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, group_id, user_id, admin, created_at
		FROM group_memberships
		WHERE group_id = ?
		ORDER BY created_at
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.Admin, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, &m)
	}
	return memberships, rows.Err()
}
