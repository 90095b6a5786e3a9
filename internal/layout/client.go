// Package layout talks to the layout service that stores deep zoom tiles.
package layout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/oapi-codegen/runtime"

	"github.com/kiesman99/layouttiler/internal/logging"
)

const (
	UploadTilePath = "/LayoutUtil/UploadTile"
	UpdatePathPath = "/api/Location/LocationLayout/UpdatePath"

	DefaultUserAgent = "SDLayoutUploader-Tauri"
	DefaultTimeout   = 30 * time.Second

	// maxErrorBody bounds how much of an error response ends up in a StatusError.
	maxErrorBody = 512
)

// ErrMissingServer indicates that the client was configured without a server address.
var ErrMissingServer = errors.New("layout: server address is required")

// Options configures the layout service client.
type Options struct {
	Server     string
	UserAgent  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// Client performs the tile upload and finalize calls.
type Client struct {
	server    string
	userAgent string
	client    *http.Client
	logger    logging.Logger
}

// TileUpload is a single encoded tile and the URL parameters that place it.
type TileUpload struct {
	LayoutKey  string
	LayoutPath string
	Zoom       int
	X, Y       int // absolute pixel offsets of the tile
	Secret     string
	Data       []byte
}

// Finalize registers a completed layout path with its finest zoom level.
type Finalize struct {
	LayoutKey  string
	LayoutPath string
	Secret     string
	MaxZoom    int
}

// NewClient creates a new layout service client
func NewClient(opts Options) (*Client, error) {
	server := strings.TrimRight(strings.TrimSpace(opts.Server), "/")
	if server == "" {
		return nil, ErrMissingServer
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		server:    server,
		userAgent: userAgent,
		client:    httpClient,
		logger:    logging.Ensure(opts.Logger).With().Str("component", "layout").Logger(),
	}, nil
}

// Server returns the normalized server address.
func (c *Client) Server() string {
	return c.server
}

// UploadTile posts one JPEG tile as a multipart form.
func (c *Client) UploadTile(ctx context.Context, t TileUpload) error {
	target, err := c.uploadTileURL(t)
	if err != nil {
		return &UploadError{Zoom: t.Zoom, X: t.X, Y: t.Y, Err: err}
	}

	body, contentType, err := tileForm(t.Data)
	if err != nil {
		return &UploadError{Zoom: t.Zoom, X: t.X, Y: t.Y, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, body)
	if err != nil {
		return &UploadError{Zoom: t.Zoom, X: t.X, Y: t.Y, Err: err}
	}
	req.Header.Set("Content-Type", contentType)

	if err := c.do(req); err != nil {
		return &UploadError{Zoom: t.Zoom, X: t.X, Y: t.Y, Err: err}
	}

	c.logger.Debug().
		Int("zoom", t.Zoom).
		Int("x", t.X).
		Int("y", t.Y).
		Str("size", humanize.Bytes(uint64(len(t.Data)))).
		Msg("tile uploaded")
	return nil
}

// FinalizeUpload tells the layout service which path and max zoom to serve.
func (c *Client) FinalizeUpload(ctx context.Context, f Finalize) error {
	target, err := c.finalizeURL(f)
	if err != nil {
		return &FinalizeError{LayoutPath: f.LayoutPath, MaxZoom: f.MaxZoom, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return &FinalizeError{LayoutPath: f.LayoutPath, MaxZoom: f.MaxZoom, Err: err}
	}

	if err := c.do(req); err != nil {
		return &FinalizeError{LayoutPath: f.LayoutPath, MaxZoom: f.MaxZoom, Err: err}
	}

	c.logger.Info().
		Str("layout_path", f.LayoutPath).
		Int("max_zoom", f.MaxZoom).
		Msg("layout finalized")
	return nil
}

// do sends the request and turns a non-2xx answer into a *StatusError.
func (c *Client) do(req *http.Request) error {
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) uploadTileURL(t TileUpload) (string, error) {
	params := []struct {
		name  string
		value interface{}
	}{
		{"layoutKey", t.LayoutKey},
		{"layoutPath", t.LayoutPath},
		{"zoomLevel", t.Zoom},
		{"x", t.X},
		{"y", t.Y},
	}

	var path strings.Builder
	path.WriteString(UploadTilePath)
	for _, p := range params {
		styled, err := runtime.StyleParamWithLocation("simple", false, p.name, runtime.ParamLocationPath, p.value)
		if err != nil {
			return "", fmt.Errorf("path parameter %s: %w", p.name, err)
		}
		path.WriteByte('/')
		path.WriteString(styled)
	}

	query := url.Values{}
	if err := addQueryParam(query, "__sc__", t.Secret); err != nil {
		return "", err
	}

	return c.server + path.String() + "?" + query.Encode(), nil
}

func (c *Client) finalizeURL(f Finalize) (string, error) {
	query := url.Values{}
	params := []struct {
		name  string
		value interface{}
	}{
		{"LayoutKey", f.LayoutKey},
		{"LayoutPath", f.LayoutPath},
		{"apikey", f.Secret},
		{"MaxZoom", f.MaxZoom},
	}
	for _, p := range params {
		if err := addQueryParam(query, p.name, p.value); err != nil {
			return "", err
		}
	}

	return c.server + UpdatePathPath + "?" + query.Encode(), nil
}

// addQueryParam styles a form/explode query parameter the way generated
// oapi-codegen clients do and merges it into query.
func addQueryParam(query url.Values, name string, value interface{}) error {
	frag, err := runtime.StyleParamWithLocation("form", true, name, runtime.ParamLocationQuery, value)
	if err != nil {
		return fmt.Errorf("query parameter %s: %w", name, err)
	}
	parsed, err := url.ParseQuery(frag)
	if err != nil {
		return fmt.Errorf("query parameter %s: %w", name, err)
	}
	for k, values := range parsed {
		for _, v := range values {
			query.Add(k, v)
		}
	}
	return nil
}

// tileForm builds the multipart body with a single image/jpeg part named "file".
func tileForm(data []byte) (io.Reader, string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="tile.jpg"`)
	header.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &body, writer.FormDataContentType(), nil
}
