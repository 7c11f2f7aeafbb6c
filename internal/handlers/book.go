package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/elibrary/apiserver/internal/apperr"
	"github.com/elibrary/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const (
	maxMultipartMemory = 32 << 20
	maxUploadBytes     = 10 << 20

	formFieldCover = "coverImage"
	formFieldFile  = "file"
	formFieldTitle = "title"
	formFieldDesc  = "description"
	formFieldGenre = "genre"
)

// BookHandler provides HTTP handlers for books.
type BookHandler struct {
	bookService *services.BookService
	uploadDir   string
	dev         bool
}

// NewBookHandler constructs a handler with the provided dependencies.
func NewBookHandler(bookService *services.BookService, uploadDir string, dev bool) *BookHandler {
	return &BookHandler{
		bookService: bookService,
		uploadDir:   uploadDir,
		dev:         dev,
	}
}

// BookRouter registers book routes on the given router.
func BookRouter(
	r chi.Router,
	bookService *services.BookService,
	uploadDir string,
	dev bool,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewBookHandler(bookService, uploadDir, dev)

	r.Get("/", handler.ListBooks)
	r.With(authMiddleware).Post("/", handler.CreateBook)
	r.Route("/{bookId}", func(r chi.Router) {
		r.Get("/", handler.GetBook)
		r.With(authMiddleware).Put("/", handler.UpdateBook)
		r.With(authMiddleware).Delete("/", handler.DeleteBook)
	})
}

func (h *BookHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.bookService.List(r.Context())
	if err != nil {
		writeAppError(w, err, h.dev)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	book, err := h.bookService.Get(r.Context(), id)
	if err != nil {
		writeAppError(w, err, h.dev)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) CreateBook(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	title := strings.TrimSpace(r.FormValue(formFieldTitle))
	genre := strings.TrimSpace(r.FormValue(formFieldGenre))
	description := strings.TrimSpace(r.FormValue(formFieldDesc))
	if title == "" || genre == "" {
		writeError(w, http.StatusBadRequest, "title and genre are required")
		return
	}

	form := r.MultipartForm
	if form == nil || len(form.File[formFieldCover]) == 0 || len(form.File[formFieldFile]) == 0 {
		writeError(w, http.StatusBadRequest, "cover image and book file are required")
		return
	}

	cover, err := h.spoolUpload(form.File[formFieldCover][0])
	if err != nil {
		writeAppError(w, err, h.dev)
		return
	}

	file, err := h.spoolUpload(form.File[formFieldFile][0])
	if err != nil {
		_ = os.Remove(cover.Path)
		writeAppError(w, err, h.dev)
		return
	}

	book, err := h.bookService.Create(r.Context(), title, description, genre, cover, file, userID)
	if err != nil {
		writeAppError(w, err, h.dev)
		return
	}

	writeJSON(w, http.StatusCreated, CreateBookResponse{ID: book.ID})
}

func (h *BookHandler) UpdateBook(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	params := services.UpdateBookParams{
		Title:       formValue(r.MultipartForm, formFieldTitle),
		Description: formValue(r.MultipartForm, formFieldDesc),
		Genre:       formValue(r.MultipartForm, formFieldGenre),
	}

	if form := r.MultipartForm; form != nil {
		if files := form.File[formFieldCover]; len(files) > 0 {
			cover, err := h.spoolUpload(files[0])
			if err != nil {
				writeAppError(w, err, h.dev)
				return
			}
			params.Cover = &cover
		}
		if files := form.File[formFieldFile]; len(files) > 0 {
			file, err := h.spoolUpload(files[0])
			if err != nil {
				if params.Cover != nil {
					_ = os.Remove(params.Cover.Path)
				}
				writeAppError(w, err, h.dev)
				return
			}
			params.File = &file
		}
	}

	book, err := h.bookService.Update(r.Context(), id, params, userID)
	if err != nil {
		writeAppError(w, err, h.dev)
		return
	}
	writeJSON(w, http.StatusOK, book)
}

func (h *BookHandler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := parseBookID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.bookService.Delete(r.Context(), id, userID); err != nil {
		writeAppError(w, err, h.dev)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateBookResponse carries the identifier of a newly created book.
type CreateBookResponse struct {
	ID int `json:"id"`
}

func parseBookID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "bookId")
	if strings.TrimSpace(raw) == "" {
		return 0, errors.New("book id is required")
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid book id")
	}
	return id, nil
}

// formValue reports a multipart text field as a pointer so absent
// fields are distinguishable from empty ones.
func formValue(form *multipart.Form, field string) *string {
	if form == nil {
		return nil
	}
	values, ok := form.Value[field]
	if !ok || len(values) == 0 {
		return nil
	}
	value := strings.TrimSpace(values[0])
	return &value
}

// spoolUpload copies an uploaded part to a request-scoped temp file
// under the configured upload directory.
func (h *BookHandler) spoolUpload(fileHeader *multipart.FileHeader) (services.Upload, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return services.Upload{}, apperr.Wrap(apperr.Dependency, "failed to read upload", err)
	}
	defer src.Close()

	name := uuid.NewString()
	path := filepath.Join(h.uploadDir, name)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return services.Upload{}, apperr.Wrap(apperr.Dependency, "failed to save upload", err)
	}

	written, err := io.Copy(dst, io.LimitReader(src, maxUploadBytes+1))
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return services.Upload{}, apperr.Wrap(apperr.Dependency, "failed to save upload", err)
	}
	if written > maxUploadBytes {
		_ = os.Remove(path)
		return services.Upload{}, apperr.New(apperr.Validation, "uploaded file too large")
	}

	return services.Upload{
		Name:        name,
		Path:        path,
		ContentType: fileHeader.Header.Get("Content-Type"),
	}, nil
}
