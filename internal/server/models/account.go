// Package models holds the server-side data model: accounts, sessions and
// the versioned-file catalog rows. Values returned to callers are snapshots
// of the persisted state, not live references.
package models

import "time"

type Account struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}
