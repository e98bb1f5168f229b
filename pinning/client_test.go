package pinning

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCheckBlob(t *testing.T) {
	if err := CheckBlob("image/png", 1<<20); err != nil {
		t.Fatalf("small png rejected: %v", err)
	}
	if err := CheckBlob("image/png", 11<<20); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("oversized png: got %v, want ErrTooLarge", err)
	}
	if err := CheckBlob("video/mp4", 90<<20); err != nil {
		t.Fatalf("90MB video rejected: %v", err)
	}
	if err := CheckBlob("application/x-msdownload", 100); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("executable: got %v, want ErrUnsupportedType", err)
	}
}

func TestStoreRequiresCredentials(t *testing.T) {
	c := New(Config{})
	_, err := c.Store(context.Background(), strings.NewReader("x"), Metadata{
		Name:        "a.png",
		ContentType: "image/png",
		Size:        1,
	})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("got %v, want ErrNotConfigured", err)
	}
}

func TestStoreUploadsMultipart(t *testing.T) {
	var gotAuth, gotOptions string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != pinFilePath {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		gotOptions = r.FormValue("pinataOptions")
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			file.Close()
			if header.Filename != "avatar.png" {
				t.Errorf("filename = %q", header.Filename)
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"IpfsHash": sampleV1})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, JWT: "token"})
	result, err := c.Store(context.Background(), strings.NewReader("fake image bytes"), Metadata{
		Name:        "avatar.png",
		ContentType: "image/png",
		Size:        16,
	})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if result.CID != sampleV1 {
		t.Fatalf("cid = %q", result.CID)
	}
	if result.URL != DefaultGatewayBase+sampleV1 {
		t.Fatalf("url = %q", result.URL)
	}
	if gotAuth != "Bearer token" {
		t.Fatalf("auth header = %q", gotAuth)
	}
	if !strings.Contains(gotOptions, `"cidVersion":1`) {
		t.Fatalf("pinata options = %q", gotOptions)
	}
}

func TestStoreKeySecretHeaders(t *testing.T) {
	var gotKey, gotSecret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("pinata_api_key")
		gotSecret = r.Header.Get("pinata_secret_api_key")
		_ = json.NewEncoder(w).Encode(map[string]string{"IpfsHash": sampleV0})
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "key", APISecret: "secret"})
	if _, err := c.Store(context.Background(), strings.NewReader("x"), Metadata{
		Name: "a.txt", ContentType: "text/plain", Size: 1,
	}); err != nil {
		t.Fatalf("store: %v", err)
	}
	if gotKey != "key" || gotSecret != "secret" {
		t.Fatalf("credential headers = %q / %q", gotKey, gotSecret)
	}
}

func TestStoreSurfacesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid credentials"}`))
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, JWT: "token"})
	_, err := c.Store(context.Background(), strings.NewReader("x"), Metadata{
		Name: "a.txt", ContentType: "text/plain", Size: 1,
	})
	if err == nil || !strings.Contains(err.Error(), "invalid credentials") {
		t.Fatalf("got %v, want upstream error message", err)
	}
}

func TestStoreRejectsOversizedBeforeUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("oversized blob reached the pinning service")
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, JWT: "token"})
	_, err := c.Store(context.Background(), strings.NewReader("x"), Metadata{
		Name:        "big.png",
		ContentType: "image/png",
		Size:        11 << 20,
	})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}
