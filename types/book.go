package types

import "time"

// Book represents a book record in the library. The cover image and the
// book file itself live in external object storage; the record holds their
// URLs together with the metadata and the owning author.
type Book struct {
	// ID is the unique identifier of the book.
	ID int `json:"id" db:"id"`

	// Title is the book's title.
	Title string `json:"title" db:"title"`

	// Description is an optional free-form summary of the book.
	Description string `json:"description" db:"description"`

	// Genre is the book's genre label.
	Genre string `json:"genre" db:"genre"`

	// Author identifies the user that uploaded the book. Only this user
	// may update or delete the record. The display name is resolved from
	// the users table when books are read.
	Author Author `json:"author" db:"-"`

	// CoverImageURL points at the cover image in the object store.
	CoverImageURL string `json:"coverImage" db:"cover_image_url"`

	// FileURL points at the book file in the object store. Stored as a
	// raw (binary) object, unlike the cover image.
	FileURL string `json:"file" db:"file_url"`

	// CreatedAt is the timestamp at which the book was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the book.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Author is the resolved owner of a book.
type Author struct {
	ID   int    `json:"id" db:"author_id"`
	Name string `json:"name" db:"name"`
}
