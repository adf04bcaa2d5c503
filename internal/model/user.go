package model

import "time"

// User is the DB entity persisted in the identity service's users table.
// Password holds the bcrypt hash, never the plaintext.
type User struct {
	ID        int64     `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	Password  string    `db:"password" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
