package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a registered account of the identity provider.
type User struct {
	ID             uuid.UUID `json:"id" db:"id"`
	Nickname       string    `json:"nickname" db:"nickname"`
	HashedPassword string    `json:"-" db:"password_hash"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// Identity returns the public identity embedded in questions, answers and votes.
func (u *User) Identity() *Identity {
	return &Identity{ID: u.ID, Nickname: u.Nickname}
}

// Identity names whoever made a request, authored content or cast a vote.
// A nil *Identity is the anonymous caller.
type Identity struct {
	ID       uuid.UUID `json:"id"`
	Nickname string    `json:"nickname"`
}

// Same reports whether both identities are present and refer to the same user.
// Two anonymous callers are never the same.
func (i *Identity) Same(other *Identity) bool {
	return i != nil && other != nil && i.ID == other.ID
}

func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}
