package models

import "time"

// Book represents a catalog title. Title/author/ISBN are owned by the catalog
// service; circulation reads them and accounts for copies via active loans.
type Book struct {
	ID        string    `db:"id" json:"id"`
	Title     string    `db:"title" json:"title"`
	Author    string    `db:"author" json:"author"`
	ISBN      string    `db:"isbn" json:"isbn"`
	Category  string    `db:"category" json:"category"`
	Quantity  int       `db:"quantity" json:"quantity"`
	SchoolID  *string   `db:"school_id" json:"school_id,omitempty"`
	AddedBy   *string   `db:"added_by" json:"added_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// BookAvailability pairs a book with its derived available-copy count
// (quantity minus active loans, never negative by construction).
type BookAvailability struct {
	Book
	ActiveLoans int `db:"active_loans" json:"active_loans"`
}

// Available returns the number of copies that can still be lent out.
func (b BookAvailability) Available() int {
	return b.Quantity - b.ActiveLoans
}
