package layout

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kiesman99/layouttiler/internal/layout/layouttest"
)

func newTestClient(t *testing.T, server string) *Client {
	t.Helper()
	client, err := NewClient(Options{Server: server + "//", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return client
}

func TestNewClientRequiresServer(t *testing.T) {
	if _, err := NewClient(Options{Server: "  "}); !errors.Is(err, ErrMissingServer) {
		t.Fatalf("expected ErrMissingServer, got %v", err)
	}
}

func TestNewClientTrimsServer(t *testing.T) {
	client, err := NewClient(Options{Server: "http://example.com/base///"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if client.Server() != "http://example.com/base" {
		t.Errorf("Server = %q", client.Server())
	}
}

func TestUploadTile(t *testing.T) {
	fake := layouttest.NewServer()
	defer fake.Close()

	client := newTestClient(t, fake.URL)
	data := []byte{0xFF, 0xD8, 0xFF, 0xD9}

	err := client.UploadTile(context.Background(), TileUpload{
		LayoutKey:  "floor-1",
		LayoutPath: "4b0f3c2e-0000-4000-8000-000000000001",
		Zoom:       2,
		X:          512,
		Y:          256,
		Secret:     "s3cr&t",
		Data:       data,
	})
	if err != nil {
		t.Fatalf("UploadTile returned error: %v", err)
	}

	uploads := fake.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(uploads))
	}
	got := uploads[0]
	if got.LayoutKey != "floor-1" || got.LayoutPath != "4b0f3c2e-0000-4000-8000-000000000001" {
		t.Errorf("unexpected layout ids: %+v", got)
	}
	if got.Zoom != 2 || got.X != 512 || got.Y != 256 {
		t.Errorf("unexpected tile position: zoom=%d x=%d y=%d", got.Zoom, got.X, got.Y)
	}
	if got.Secret != "s3cr&t" {
		t.Errorf("Secret = %q, want %q", got.Secret, "s3cr&t")
	}
	if got.Filename != "tile.jpg" {
		t.Errorf("Filename = %q, want tile.jpg", got.Filename)
	}
	if got.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg", got.ContentType)
	}
	if got.UserAgent != DefaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", got.UserAgent, DefaultUserAgent)
	}
	if !bytes.Equal(got.Data, data) {
		t.Errorf("Data = %v, want %v", got.Data, data)
	}
}

func TestUploadTileRequestShape(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotContentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotContentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL)
	err := client.UploadTile(context.Background(), TileUpload{
		LayoutKey: "key", LayoutPath: "path", Zoom: 0, X: 0, Y: 0, Secret: "abc", Data: []byte{1},
	})
	if err != nil {
		t.Fatalf("UploadTile returned error: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("method = %s, want POST", gotMethod)
	}
	if gotPath != "/LayoutUtil/UploadTile/key/path/0/0/0" {
		t.Errorf("path = %s", gotPath)
	}
	if gotQuery != "__sc__=abc" {
		t.Errorf("query = %s", gotQuery)
	}
	if !strings.HasPrefix(gotContentType, "multipart/form-data; boundary=") {
		t.Errorf("content type = %s", gotContentType)
	}
}

func TestReservedCharactersRoundTrip(t *testing.T) {
	fake := layouttest.NewServer()
	defer fake.Close()

	const (
		key    = "floor 1/west&annex"
		path   = "plans/2024 rev&b"
		secret = "s3 cr/t&x=1"
	)

	client := newTestClient(t, fake.URL)
	err := client.UploadTile(context.Background(), TileUpload{
		LayoutKey: key, LayoutPath: path, Zoom: 3, X: 768, Y: 0, Secret: secret, Data: []byte{1, 2},
	})
	if err != nil {
		t.Fatalf("UploadTile returned error: %v", err)
	}
	if err := client.FinalizeUpload(context.Background(), Finalize{
		LayoutKey: key, LayoutPath: path, Secret: secret, MaxZoom: 3,
	}); err != nil {
		t.Fatalf("FinalizeUpload returned error: %v", err)
	}

	uploads := fake.Uploads()
	if len(uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(uploads))
	}
	got := uploads[0]
	if got.LayoutKey != key {
		t.Errorf("LayoutKey = %q, want %q", got.LayoutKey, key)
	}
	if got.LayoutPath != path {
		t.Errorf("LayoutPath = %q, want %q", got.LayoutPath, path)
	}
	if got.Secret != secret {
		t.Errorf("Secret = %q, want %q", got.Secret, secret)
	}
	if got.Zoom != 3 || got.X != 768 || got.Y != 0 {
		t.Errorf("unexpected tile position: zoom=%d x=%d y=%d", got.Zoom, got.X, got.Y)
	}

	fin := fake.Finalizes()[0]
	if fin.LayoutKey != key || fin.LayoutPath != path || fin.APIKey != secret {
		t.Errorf("finalize = %+v, want key %q path %q apikey %q", fin, key, path, secret)
	}
}

func TestUploadTileNon2xx(t *testing.T) {
	fake := layouttest.NewServer()
	defer fake.Close()
	fake.FailUploadAt(0, http.StatusForbidden)

	client := newTestClient(t, fake.URL)
	err := client.UploadTile(context.Background(), TileUpload{
		LayoutKey: "k", LayoutPath: "p", Zoom: 1, X: 256, Y: 0, Secret: "s", Data: []byte{1},
	})

	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *UploadError, got %v", err)
	}
	if uploadErr.Zoom != 1 || uploadErr.X != 256 {
		t.Errorf("unexpected tile in error: %+v", uploadErr)
	}

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected *StatusError in chain, got %v", err)
	}
	if statusErr.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", statusErr.StatusCode)
	}
	if !strings.HasPrefix(err.Error(), "Upload failed:") {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if len(fake.Uploads()) != 0 {
		t.Errorf("rejected upload should not be recorded")
	}
}

func TestUploadTileTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, url)
	err := client.UploadTile(context.Background(), TileUpload{LayoutKey: "k", LayoutPath: "p", Data: []byte{1}})

	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *UploadError, got %v", err)
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		t.Errorf("transport failure should not carry a status: %v", statusErr)
	}
}

func TestUploadTileTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client, err := NewClient(Options{Server: server.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	err = client.UploadTile(context.Background(), TileUpload{LayoutKey: "k", LayoutPath: "p", Data: []byte{1}})
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected *UploadError after timeout, got %v", err)
	}
}

func TestFinalizeUpload(t *testing.T) {
	fake := layouttest.NewServer()
	defer fake.Close()

	client := newTestClient(t, fake.URL)
	err := client.FinalizeUpload(context.Background(), Finalize{
		LayoutKey:  "floor-1",
		LayoutPath: "path-1",
		Secret:     "s3cret",
		MaxZoom:    4,
	})
	if err != nil {
		t.Fatalf("FinalizeUpload returned error: %v", err)
	}

	finalizes := fake.Finalizes()
	if len(finalizes) != 1 {
		t.Fatalf("expected 1 finalize, got %d", len(finalizes))
	}
	want := layouttest.Finalize{
		LayoutKey:  "floor-1",
		LayoutPath: "path-1",
		APIKey:     "s3cret",
		MaxZoom:    4,
		UserAgent:  DefaultUserAgent,
	}
	if finalizes[0] != want {
		t.Errorf("finalize = %+v, want %+v", finalizes[0], want)
	}
}

func TestFinalizeUploadNon2xx(t *testing.T) {
	fake := layouttest.NewServer()
	defer fake.Close()
	fake.FailFinalize(http.StatusInternalServerError)

	client := newTestClient(t, fake.URL)
	err := client.FinalizeUpload(context.Background(), Finalize{LayoutKey: "k", LayoutPath: "p", Secret: "s", MaxZoom: 1})

	var finalizeErr *FinalizeError
	if !errors.As(err, &finalizeErr) {
		t.Fatalf("expected *FinalizeError, got %v", err)
	}
	if finalizeErr.MaxZoom != 1 || finalizeErr.LayoutPath != "p" {
		t.Errorf("unexpected error fields: %+v", finalizeErr)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 StatusError, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "Failed to finalize upload:") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestCustomUserAgent(t *testing.T) {
	fake := layouttest.NewServer()
	defer fake.Close()

	client, err := NewClient(Options{Server: fake.URL, UserAgent: "layouttiler-test/1.0"})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	if err := client.FinalizeUpload(context.Background(), Finalize{LayoutKey: "k", LayoutPath: "p", Secret: "s"}); err != nil {
		t.Fatalf("FinalizeUpload returned error: %v", err)
	}
	if ua := fake.Finalizes()[0].UserAgent; ua != "layouttiler-test/1.0" {
		t.Errorf("UserAgent = %q", ua)
	}
}
