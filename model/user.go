package model

import (
	"database/sql"
	"time"
)

// User represents a user in the system.
type User struct {
	ID           int64          `json:"id"`
	Username     string         `json:"username"`
	PasswordHash string         `json:"-"` // Not exposed in API responses
	IsAdmin      bool           `json:"isAdmin"`
	LibraryPath  sql.NullString `json:"-"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Owner is the authenticated identity an upload attempt runs on behalf of.
type Owner struct {
	UserID      int64
	Username    string
	LibraryPath string // empty means "use the global library"
}

// Owner returns the pipeline view of u.
func (u *User) Owner() Owner {
	o := Owner{UserID: u.ID, Username: u.Username}
	if u.LibraryPath.Valid {
		o.LibraryPath = u.LibraryPath.String
	}
	return o
}
