//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elibrary/apiserver/config"
	"github.com/elibrary/apiserver/internal/server"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
)

const (
	serverPort = 18080
)

func TestMain(m *testing.M) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	setTestEnv()

	root, err := repoRoot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to locate repo root: %v\n", err)
		os.Exit(1)
	}

	if err := dockerCompose(ctx, root, "up", "-d"); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start docker compose: %v\n", err)
		os.Exit(1)
	}

	if err := waitForPostgres(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "postgres not ready: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	if err := runMigrations(root); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	srv, err := startServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	if err := waitForHealth(ctx, baseURL+"/healthz"); err != nil {
		fmt.Fprintf(os.Stderr, "server not healthy: %v\n", err)
		_ = srv.Shutdown()
		_ = dockerCompose(context.Background(), root, "down")
		os.Exit(1)
	}

	code := m.Run()

	_ = srv.Shutdown()
	_ = dockerCompose(context.Background(), root, "down")
	os.Exit(code)
}

func TestBookLifecycle(t *testing.T) {
	baseURL := fmt.Sprintf("http://localhost:%d", serverPort)
	email := fmt.Sprintf("ann_%d@example.com", time.Now().UnixNano())
	password := "testpass123!"

	token, err := registerUser(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("register user: %v", err)
	}

	loginToken, err := loginUser(t, baseURL, email, password)
	if err != nil {
		t.Fatalf("login user: %v", err)
	}
	if loginToken == "" {
		t.Fatalf("expected login token")
	}

	created, err := createBook(t, baseURL, token)
	if err != nil {
		t.Fatalf("create book: %v", err)
	}
	if created.ID == 0 {
		t.Fatalf("expected book ID to be set")
	}

	fetched, err := getBook(t, baseURL, created.ID)
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if fetched.Title != "Dune" {
		t.Fatalf("unexpected book title: %q", fetched.Title)
	}
	if fetched.Author.Name != "Ann" {
		t.Fatalf("unexpected author name: %q", fetched.Author.Name)
	}

	updated, err := updateBookTitle(t, baseURL, token, created.ID, "Dune Messiah")
	if err != nil {
		t.Fatalf("update book: %v", err)
	}
	if updated.Title != "Dune Messiah" {
		t.Fatalf("unexpected updated title: %q", updated.Title)
	}
	if updated.CoverImage != fetched.CoverImage {
		t.Fatalf("cover image changed on metadata-only update")
	}

	if err := deleteBook(t, baseURL, token, created.ID); err != nil {
		t.Fatalf("delete book: %v", err)
	}

	if err := expectBookNotFound(t, baseURL, created.ID); err != nil {
		t.Fatalf("expected deleted book to be missing: %v", err)
	}
}

type bookResponse struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	CoverImage string `json:"coverImage"`
	File       string `json:"file"`
	Author     struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"author"`
}

type authResponse struct {
	AccessToken string `json:"accessToken"`
}

func registerUser(t *testing.T, baseURL, email, password string) (string, error) {
	t.Helper()

	payload := map[string]string{
		"name":     "Ann",
		"email":    email,
		"password": password,
	}
	return postAuth(baseURL+"/api/users/register", payload, http.StatusCreated)
}

func loginUser(t *testing.T, baseURL, email, password string) (string, error) {
	t.Helper()

	payload := map[string]string{
		"email":    email,
		"password": password,
	}
	return postAuth(baseURL+"/api/users/login", payload, http.StatusOK)
}

func postAuth(url string, payload map[string]string, wantStatus int) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		msg, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("auth status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed authResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("missing access token in response")
	}
	return parsed.AccessToken, nil
}

func createBook(t *testing.T, baseURL, token string) (bookResponse, error) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	_ = writer.WriteField("title", "Dune")
	_ = writer.WriteField("description", "A desert planet epic.")
	_ = writer.WriteField("genre", "scifi")

	if err := addFilePart(writer, "coverImage", "cover.png", "image/png", []byte("png bytes")); err != nil {
		return bookResponse{}, err
	}
	if err := addFilePart(writer, "file", "book.pdf", "application/pdf", []byte("pdf bytes")); err != nil {
		return bookResponse{}, err
	}
	if err := writer.Close(); err != nil {
		return bookResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/api/books", &body)
	if err != nil {
		return bookResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return bookResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return bookResponse{}, fmt.Errorf("create book status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed bookResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return bookResponse{}, err
	}
	return parsed, nil
}

func addFilePart(writer *multipart.Writer, field, filename, contentType string, payload []byte) error {
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = part.Write(payload)
	return err
}

func updateBookTitle(t *testing.T, baseURL, token string, id int, title string) (bookResponse, error) {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("title", title)
	if err := writer.Close(); err != nil {
		return bookResponse{}, err
	}

	req, err := http.NewRequest(http.MethodPut, fmt.Sprintf("%s/api/books/%d", baseURL, id), &body)
	if err != nil {
		return bookResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return bookResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return bookResponse{}, fmt.Errorf("update book status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed bookResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return bookResponse{}, err
	}
	return parsed, nil
}

func getBook(t *testing.T, baseURL string, id int) (bookResponse, error) {
	t.Helper()

	resp, err := http.Get(fmt.Sprintf("%s/api/books/%d", baseURL, id))
	if err != nil {
		return bookResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return bookResponse{}, fmt.Errorf("get book status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var parsed bookResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return bookResponse{}, err
	}
	return parsed, nil
}

func deleteBook(t *testing.T, baseURL, token string, id int) error {
	t.Helper()

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/api/books/%d", baseURL, id), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("delete book status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func expectBookNotFound(t *testing.T, baseURL string, id int) error {
	t.Helper()

	resp, err := http.Get(fmt.Sprintf("%s/api/books/%d", baseURL, id))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("expected 404 after delete, got %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func waitForPostgres(ctx context.Context) error {
	cfg := config.LoadConfig()
	db, err := sql.Open("postgres", cfg.Database.URL())
	if err != nil {
		return err
	}
	defer db.Close()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("postgres ping timeout: %w", err)
		case <-ticker.C:
		}
	}
}

func waitForHealth(ctx context.Context, url string) error {
	client := &http.Client{Timeout: 2 * time.Second}
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			return fmt.Errorf("health check failed with status")
		case <-ticker.C:
		}
	}
}

func runMigrations(root string) error {
	cfg := config.LoadConfig()
	migrationsPath := filepath.Join(root, "internal", "db", "migrations")
	migrationsURL := "file://" + migrationsPath

	migrator, err := migrate.New(migrationsURL, cfg.Database.URL())
	if err != nil {
		return err
	}
	defer func() {
		_, _ = migrator.Close()
	}()

	if err := migrator.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setTestEnv() {
	_ = os.Setenv("JWT_SECRET", "test-secret")
	_ = os.Setenv("SERVER_PORT", fmt.Sprintf("%d", serverPort))
	_ = os.Setenv("DB_HOST", "localhost")
	_ = os.Setenv("DB_PORT", "5432")
	_ = os.Setenv("DB_USER", "elibrary")
	_ = os.Setenv("DB_PASSWORD", "elibrary")
	_ = os.Setenv("DB_NAME", "elibrary")
	_ = os.Setenv("DB_USE_SSL", "false")
	_ = os.Setenv("STORAGE_BACKEND", "minio")
	_ = os.Setenv("MINIO_ENDPOINT", "localhost:9000")
	_ = os.Setenv("MINIO_ACCESS_KEY", "minioadmin")
	_ = os.Setenv("MINIO_SECRET_KEY", "minioadmin")
	_ = os.Setenv("MINIO_BUCKET", "elibrary")
}

func startServer() (*server.Server, error) {
	cfg := config.LoadConfig()
	srv, err := server.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	go func() {
		_ = srv.Start()
	}()

	return srv, nil
}

func dockerCompose(ctx context.Context, root string, args ...string) error {
	composeFile := filepath.Join(root, "development", "docker-compose.yml")
	baseArgs := append([]string{"compose", "-f", composeFile}, args...)
	cmd := exec.CommandContext(ctx, "docker", baseArgs...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func repoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found")
		}
		dir = parent
	}
}
