package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/elibrary/apiserver/types"
)

// BookRepository handles persistence for books.
type BookRepository struct {
	db *sql.DB
}

func NewBookRepository(db *sql.DB) *BookRepository {
	return &BookRepository{db: db}
}

const bookColumns = `
	b.id, b.title, b.description, b.genre, b.author_id, u.name,
	b.cover_image_url, b.file_url, b.created_at, b.updated_at`

func scanBook(row interface{ Scan(...any) error }) (types.Book, error) {
	var book types.Book
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Description,
		&book.Genre,
		&book.Author.ID,
		&book.Author.Name,
		&book.CoverImageURL,
		&book.FileURL,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	return book, err
}

// List returns all books with the author name resolved.
func (r *BookRepository) List(ctx context.Context) ([]types.Book, error) {
	const query = `
		SELECT ` + bookColumns + `
		FROM books b
		JOIN users u ON u.id = b.author_id
		ORDER BY b.id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]types.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return books, nil
}

func (r *BookRepository) Get(ctx context.Context, id int) (types.Book, error) {
	const query = `
		SELECT ` + bookColumns + `
		FROM books b
		JOIN users u ON u.id = b.author_id
		WHERE b.id = $1`
	book, err := scanBook(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Book{}, ErrNotFound
		}
		return types.Book{}, err
	}
	return book, nil
}

func (r *BookRepository) Create(ctx context.Context, book types.Book) (types.Book, error) {
	now := time.Now()
	book.CreatedAt = now
	book.UpdatedAt = now

	const query = `
		INSERT INTO books (title, description, genre, author_id, cover_image_url, file_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		book.Title,
		book.Description,
		book.Genre,
		book.Author.ID,
		book.CoverImageURL,
		book.FileURL,
		book.CreatedAt,
		book.UpdatedAt,
	).Scan(&book.ID); err != nil {
		return types.Book{}, err
	}
	return book, nil
}

// Update persists the metadata and asset URLs of a book. The author is
// immutable and never touched here.
func (r *BookRepository) Update(ctx context.Context, book types.Book) (types.Book, error) {
	book.UpdatedAt = time.Now()

	const query = `
		UPDATE books
		SET title = $1,
			description = $2,
			genre = $3,
			cover_image_url = $4,
			file_url = $5,
			updated_at = $6
		WHERE id = $7`
	result, err := r.db.ExecContext(
		ctx,
		query,
		book.Title,
		book.Description,
		book.Genre,
		book.CoverImageURL,
		book.FileURL,
		book.UpdatedAt,
		book.ID,
	)
	if err != nil {
		return types.Book{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Book{}, err
	}
	if affected == 0 {
		return types.Book{}, ErrNotFound
	}
	return book, nil
}

func (r *BookRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM books WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
