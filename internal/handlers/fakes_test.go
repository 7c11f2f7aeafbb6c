package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"os"
	"testing"

	"github.com/elibrary/apiserver/internal/store"
	"github.com/elibrary/apiserver/types"
	"github.com/stretchr/testify/require"
)

type fakeUserRepo struct {
	users  map[int]types.User
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[int]types.User{}, nextID: 1}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = r.nextID
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

type fakeBookRepo struct {
	books       map[int]types.Book
	authorNames map[int]string
	nextID      int
}

func newFakeBookRepo() *fakeBookRepo {
	return &fakeBookRepo{
		books:       map[int]types.Book{},
		authorNames: map[int]string{},
		nextID:      1,
	}
}

func (r *fakeBookRepo) resolve(book types.Book) types.Book {
	book.Author.Name = r.authorNames[book.Author.ID]
	return book
}

func (r *fakeBookRepo) List(ctx context.Context) ([]types.Book, error) {
	books := make([]types.Book, 0, len(r.books))
	for _, book := range r.books {
		books = append(books, r.resolve(book))
	}
	return books, nil
}

func (r *fakeBookRepo) Get(ctx context.Context, id int) (types.Book, error) {
	book, ok := r.books[id]
	if !ok {
		return types.Book{}, store.ErrNotFound
	}
	return r.resolve(book), nil
}

func (r *fakeBookRepo) Create(ctx context.Context, book types.Book) (types.Book, error) {
	book.ID = r.nextID
	r.nextID++
	r.books[book.ID] = book
	return r.resolve(book), nil
}

func (r *fakeBookRepo) Update(ctx context.Context, book types.Book) (types.Book, error) {
	if _, ok := r.books[book.ID]; !ok {
		return types.Book{}, store.ErrNotFound
	}
	r.books[book.ID] = book
	return r.resolve(book), nil
}

func (r *fakeBookRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.books[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.books, id)
	return nil
}

type fakeObjectStore struct {
	objects map[string]string
	deleted []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string]string{}}
}

func (f *fakeObjectStore) PutFile(ctx context.Context, key, localPath, contentType string) (string, error) {
	if _, err := os.Stat(localPath); err != nil {
		return "", fmt.Errorf("local file missing: %w", err)
	}
	f.objects[key] = contentType
	return "https://assets.example.com/elibrary/" + key, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	if _, ok := f.objects[key]; !ok {
		f.deleted = append(f.deleted, key)
		return errors.New("no such object")
	}
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

// multipartBody builds a multipart form with the given text fields and
// files. Files map field name to filename, content type, and payload.
type multipartFile struct {
	field       string
	contentType string
	payload     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files []multipartFile) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for field, value := range fields {
		require.NoError(t, writer.WriteField(field, value))
	}

	for _, file := range files {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name=%q; filename=%q`, file.field, file.field+".bin"))
		header.Set("Content-Type", file.contentType)
		part, err := writer.CreatePart(header)
		require.NoError(t, err)
		_, err = part.Write(file.payload)
		require.NoError(t, err)
	}

	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}
