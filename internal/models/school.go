package models

import "time"

// School is the tenant boundary. Rows are managed elsewhere; circulation
// logic only reads them for scoping and display.
type School struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
