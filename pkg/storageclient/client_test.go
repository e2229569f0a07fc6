package storageclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestUploadSendsMultipartFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected authorization header %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected multipart file: %v", err)
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		defer file.Close()
		content, _ := io.ReadAll(file)
		if header.Filename != "photo.jpg" || string(content) != "image-bytes" {
			t.Errorf("unexpected upload %q with %q", header.Filename, content)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"public_id":"profiles/abc","url":"https://cdn.example/profiles/abc.jpg"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret")
	result, err := client.Upload(context.Background(), "photo.jpg", strings.NewReader("image-bytes"))
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if result.PublicID != "profiles/abc" || result.URL != "https://cdn.example/profiles/abc.jpg" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestUploadReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"message":"upstream unavailable"}`))
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "").Upload(context.Background(), "id.png", strings.NewReader("x"))
	var apiErr *ErrorResponse
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *ErrorResponse, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message != "upstream unavailable" {
		t.Fatalf("unexpected api error: %+v", apiErr)
	}
}

func TestUploadRequiresConfiguredURL(t *testing.T) {
	_, err := NewClient("  ", "").Upload(context.Background(), "a.png", strings.NewReader("x"))
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
