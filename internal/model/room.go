package model

import (
	"database/sql"
	"time"
)

// Room is the catalog row for a meeting room. Live state (roster, counters,
// presenter slots) lives in the RoomStateStore, not here.
type Room struct {
	ID              string         `db:"id" json:"id"`
	Code            string         `db:"code" json:"code"`
	Title           string         `db:"title" json:"title"`
	OwnerID         string         `db:"owner_id" json:"owner_id"`
	PasswordHash    sql.NullString `db:"password_hash" json:"-"`
	MaxParticipants int            `db:"max_participants" json:"max_participants"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// HasPassword reports whether joining requires a password
func (r *Room) HasPassword() bool {
	return r.PasswordHash.Valid && r.PasswordHash.String != ""
}

// GetPasswordHash returns the stored hash or empty string
func (r *Room) GetPasswordHash() string {
	if r.PasswordHash.Valid {
		return r.PasswordHash.String
	}
	return ""
}
