package services

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/elibrary/apiserver/internal/apperr"
	"github.com/elibrary/apiserver/internal/store"
	"github.com/elibrary/apiserver/types"
	"golang.org/x/sync/errgroup"
)

const (
	coverFolder = "book-covers"
	fileFolder  = "book-pdfs"
)

// BookRepository defines persistence operations for books.
type BookRepository interface {
	List(ctx context.Context) ([]types.Book, error)
	Get(ctx context.Context, id int) (types.Book, error)
	Create(ctx context.Context, book types.Book) (types.Book, error)
	Update(ctx context.Context, book types.Book) (types.Book, error)
	Delete(ctx context.Context, id int) error
}

// ObjectStore defines the object-storage operations the book service uses.
type ObjectStore interface {
	PutFile(ctx context.Context, key, localPath, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
}

// Upload describes an uploaded file spooled to a local temp file. Name
// is the request-scoped base name the file was spooled under, with no
// extension.
type Upload struct {
	Name        string
	Path        string
	ContentType string
}

// UpdateBookParams carries the optional replacements for an update.
// Nil fields keep the book's current value.
type UpdateBookParams struct {
	Title       *string
	Description *string
	Genre       *string
	Cover       *Upload
	File        *Upload
}

// BookService encapsulates book use-cases: metadata persistence plus the
// upload/replace/delete sequencing against the object store.
type BookService struct {
	repo      BookRepository
	store     ObjectStore
	publisher Publisher
	logger    *slog.Logger
}

func NewBookService(repo BookRepository, objectStore ObjectStore, publisher Publisher, logger *slog.Logger) *BookService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BookService{
		repo:      repo,
		store:     objectStore,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *BookService) List(ctx context.Context) ([]types.Book, error) {
	books, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Dependency, "error while getting all books", err)
	}
	return books, nil
}

func (s *BookService) Get(ctx context.Context, id int) (types.Book, error) {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Book{}, apperr.New(apperr.NotFound, "book not found")
		}
		return types.Book{}, apperr.Wrap(apperr.Dependency, "error while getting the book", err)
	}
	return book, nil
}

// Create uploads both assets and persists the book record. Both temp
// files are removed on every exit path; cleanup failures are logged and
// never mask the primary error.
func (s *BookService) Create(ctx context.Context, title, description, genre string, cover, file Upload, authorID int) (types.Book, error) {
	defer s.removeTempFiles(ctx, cover.Path, file.Path)

	coverURL, err := s.store.PutFile(ctx, coverKey(cover), cover.Path, cover.ContentType)
	if err != nil {
		return types.Book{}, apperr.Wrap(apperr.Dependency, "error while uploading the files", err)
	}

	fileURL, err := s.store.PutFile(ctx, fileKey(file), file.Path, file.ContentType)
	if err != nil {
		return types.Book{}, apperr.Wrap(apperr.Dependency, "error while uploading the files", err)
	}

	book, err := s.repo.Create(ctx, types.Book{
		Title:         title,
		Description:   description,
		Genre:         genre,
		Author:        types.Author{ID: authorID},
		CoverImageURL: coverURL,
		FileURL:       fileURL,
	})
	if err != nil {
		return types.Book{}, apperr.Wrap(apperr.Dependency, "error while creating the book", err)
	}

	s.publishEvent(ctx, eventBookCreated, book.ID, authorID)
	return book, nil
}

// Update replaces the supplied fields and assets of a book owned by
// actorID. A stored URL is only swapped after its replacement upload
// succeeds, so no partial URL is ever persisted.
func (s *BookService) Update(ctx context.Context, id int, params UpdateBookParams, actorID int) (types.Book, error) {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Book{}, apperr.New(apperr.NotFound, "book not found")
		}
		return types.Book{}, apperr.Wrap(apperr.Dependency, "error while updating the book", err)
	}
	if book.Author.ID != actorID {
		return types.Book{}, apperr.New(apperr.Authorization, "unauthorized")
	}

	if params.Title != nil {
		book.Title = *params.Title
	}
	if params.Description != nil {
		book.Description = *params.Description
	}
	if params.Genre != nil {
		book.Genre = *params.Genre
	}

	if params.Cover != nil {
		url, err := s.replaceAsset(ctx, book.CoverImageURL, *params.Cover, true)
		if err != nil {
			return types.Book{}, err
		}
		book.CoverImageURL = url
	}

	if params.File != nil {
		url, err := s.replaceAsset(ctx, book.FileURL, *params.File, false)
		if err != nil {
			return types.Book{}, err
		}
		book.FileURL = url
	}

	updated, err := s.repo.Update(ctx, book)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.Book{}, apperr.New(apperr.NotFound, "book not found")
		}
		return types.Book{}, apperr.Wrap(apperr.Dependency, "error while updating the book", err)
	}

	s.publishEvent(ctx, eventBookUpdated, updated.ID, actorID)
	return updated, nil
}

// Delete removes both remote objects concurrently, then the record.
// Best effort across the two stores: a remote or database failure
// surfaces as a dependency error without compensation.
func (s *BookService) Delete(ctx context.Context, id int, actorID int) error {
	book, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, "book not found")
		}
		return apperr.Wrap(apperr.Dependency, "error while deleting the book", err)
	}
	if book.Author.ID != actorID {
		return apperr.New(apperr.Authorization, "unauthorized")
	}

	coverObjectKey := objectKeyFromURL(book.CoverImageURL, true)
	fileObjectKey := objectKeyFromURL(book.FileURL, false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.store.Delete(gctx, coverObjectKey)
	})
	g.Go(func() error {
		return s.store.Delete(gctx, fileObjectKey)
	})
	if err := g.Wait(); err != nil {
		return apperr.Wrap(apperr.Dependency, "error while deleting the book", err)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.NotFound, "book not found")
		}
		return apperr.Wrap(apperr.Dependency, "error while deleting the book", err)
	}

	s.publishEvent(ctx, eventBookDeleted, id, actorID)
	return nil
}

// replaceAsset deletes the old remote object, uploads the replacement,
// and returns the new URL. The old-object deletion is best effort: a
// stale or already-missing object must not block the update. The temp
// file is removed on every exit path.
func (s *BookService) replaceAsset(ctx context.Context, oldURL string, upload Upload, isImage bool) (string, error) {
	defer s.removeTempFiles(ctx, upload.Path)

	oldKey := objectKeyFromURL(oldURL, isImage)
	if oldKey != "" {
		if err := s.store.Delete(ctx, oldKey); err != nil {
			s.logger.Warn("failed to delete old object", "key", oldKey, "error", err)
		}
	}

	key := fileKey(upload)
	message := "error uploading new book file"
	if isImage {
		key = coverKey(upload)
		message = "error uploading new cover image"
	}

	url, err := s.store.PutFile(ctx, key, upload.Path, upload.ContentType)
	if err != nil {
		return "", apperr.Wrap(apperr.Dependency, message, err)
	}
	return url, nil
}

// removeTempFiles deletes the given local files concurrently, logging
// failures instead of returning them.
func (s *BookService) removeTempFiles(ctx context.Context, paths ...string) {
	var g errgroup.Group
	for _, path := range paths {
		g.Go(func() error {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				s.logger.ErrorContext(ctx, "error deleting temporary file", "path", path, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// coverKey builds the object key for a cover image. The key carries no
// extension; the declared MIME type travels as the object content type.
// Mirrors objectKeyFromURL with stripExt=true.
func coverKey(upload Upload) string {
	return coverFolder + "/" + upload.Name
}

// fileKey builds the object key for a book file. Raw objects keep the
// format as an extension derived from the declared MIME subtype.
func fileKey(upload Upload) string {
	if subtype := mimeSubtype(upload.ContentType); subtype != "" {
		return fileFolder + "/" + upload.Name + "." + subtype
	}
	return fileFolder + "/" + upload.Name
}

// objectKeyFromURL derives a remote object key from a stored asset URL:
// the category segment plus the base name, with the extension stripped
// for image-class objects and kept verbatim for raw ones.
func objectKeyFromURL(rawURL string, stripExt bool) string {
	segments := strings.Split(rawURL, "/")
	if len(segments) < 2 {
		return ""
	}
	folder := segments[len(segments)-2]
	base := segments[len(segments)-1]
	if folder == "" || base == "" {
		return ""
	}
	if stripExt {
		if i := strings.LastIndex(base, "."); i > 0 {
			base = base[:i]
		}
	}
	return folder + "/" + base
}

// mimeSubtype returns the part after the slash of a MIME type, e.g.
// "pdf" for "application/pdf".
func mimeSubtype(contentType string) string {
	if i := strings.LastIndex(contentType, "/"); i >= 0 {
		return contentType[i+1:]
	}
	return contentType
}
