package services

import (
	"github.com/google/uuid"

	"github.com/learnova/learnova-backend/internal/database"
)

// Group membership is owned by the course/enrollment layer in PostgreSQL.
// The messaging core only reads it to decide room subscription and group
// fan-out eligibility.

// IsGroupMember checks membership in the group_members table.
func IsGroupMember(userID uuid.UUID, groupID string) bool {
	var exists bool
	err := database.PostgresDB.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)
	`, groupID, userID).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}

// ListGroupsForUser returns the ids of every group the user belongs to.
func ListGroupsForUser(userID uuid.UUID) ([]string, error) {
	rows, err := database.PostgresDB.Query(`
		SELECT group_id FROM group_members WHERE user_id = $1 ORDER BY joined_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []string
	for rows.Next() {
		var groupID uuid.UUID
		if err := rows.Scan(&groupID); err != nil {
			return nil, err
		}
		groups = append(groups, groupID.String())
	}
	return groups, rows.Err()
}

// GroupMember pairs a member's id with their display username.
type GroupMember struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// ListMembersForGroup returns the members of a group with usernames for
// display.
func ListMembersForGroup(groupID string) ([]GroupMember, error) {
	rows, err := database.PostgresDB.Query(`
		SELECT gm.user_id, u.username
		FROM group_members gm
		JOIN users u ON u.id = gm.user_id
		WHERE gm.group_id = $1 AND u.is_active = TRUE
		ORDER BY gm.joined_at
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []GroupMember
	for rows.Next() {
		var m GroupMember
		if err := rows.Scan(&m.UserID, &m.Username); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// JoinGroupMembership inserts the membership row. Joining twice is a no-op.
func JoinGroupMembership(userID uuid.UUID, groupID string) error {
	_, err := database.PostgresDB.Exec(`
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`, groupID, userID)
	return err
}

// LeaveGroupMembership removes the membership row. Leaving a group the user
// isn't in is a no-op.
func LeaveGroupMembership(userID uuid.UUID, groupID string) error {
	_, err := database.PostgresDB.Exec(`
		DELETE FROM group_members WHERE group_id = $1 AND user_id = $2
	`, groupID, userID)
	return err
}
