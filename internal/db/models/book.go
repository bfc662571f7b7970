// Package models - book.go defines the Book model for the store inventory along with
// the request/response shapes used by the books API.
package models

import "time"

// Book represents one title in the inventory
type Book struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Author      string    `db:"author" json:"author"`
	Publisher   string    `db:"publisher" json:"publisher"`
	Genre       string    `db:"genre" json:"genre"`
	ISBN        *string   `db:"isbn" json:"isbn,omitempty"`
	Stock       int       `db:"stock" json:"stock"`
	Price       float64   `db:"price" json:"price"`
	Description *string   `db:"description" json:"description,omitempty"`
	CoverPath   *string   `db:"cover_path" json:"cover_path,omitempty"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// BookFilterValues holds the distinct non-empty dropdown values for the
// inventory filter UI, queried from the live books table.
type BookFilterValues struct {
	Genres     []string `json:"genres"`
	Publishers []string `json:"publishers"`
	Authors    []string `json:"authors"`
}
