// Package layouttest provides an in-process fake of the layout service for tests.
package layouttest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// Upload is a tile the fake service accepted.
type Upload struct {
	LayoutKey   string
	LayoutPath  string
	Zoom        int
	X, Y        int
	Secret      string
	Filename    string
	ContentType string
	UserAgent   string
	Data        []byte
}

// Finalize is a recorded UpdatePath call.
type Finalize struct {
	LayoutKey  string
	LayoutPath string
	APIKey     string
	MaxZoom    int
	UserAgent  string
}

// Server records uploads and finalize calls and can be told to fail.
type Server struct {
	*httptest.Server

	mu             sync.Mutex
	attempts       int
	uploads        []Upload
	finalizes      []Finalize
	failUploadAt   int
	uploadStatus   int
	finalizeStatus int
	onUpload       func(count int)
}

// NewServer starts a fake layout service. Close it when done.
func NewServer() *Server {
	s := &Server{failUploadAt: -1}

	r := chi.NewRouter()
	r.Use(escapedRoutePath)
	r.Post("/LayoutUtil/UploadTile/{layoutKey}/{layoutPath}/{zoom}/{x}/{y}", s.handleUpload)
	r.Get("/api/Location/LocationLayout/UpdatePath", s.handleFinalize)

	s.Server = httptest.NewServer(r)
	return s
}

// FailUploadAt makes the index-th upload attempt (0-based) answer with status.
func (s *Server) FailUploadAt(index, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUploadAt = index
	s.uploadStatus = status
}

// FailFinalize makes every finalize call answer with status.
func (s *Server) FailFinalize(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizeStatus = status
}

// OnUpload registers a hook that runs after each accepted upload, before the
// response is written. count is the number of accepted uploads so far.
func (s *Server) OnUpload(fn func(count int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpload = fn
}

// Attempts returns the number of upload requests received, failed ones included.
func (s *Server) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Uploads returns a copy of the accepted uploads.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Finalizes returns a copy of the recorded finalize calls.
func (s *Server) Finalizes() []Finalize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Finalize(nil), s.finalizes...)
}

// escapedRoutePath routes on the escaped path so an encoded "/" inside a
// segment stays part of that segment.
func escapedRoutePath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			rctx.RoutePath = r.URL.EscapedPath()
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var layoutKey, layoutPath string
	for _, p := range []struct {
		name string
		dest *string
	}{{"layoutKey", &layoutKey}, {"layoutPath", &layoutPath}} {
		err := runtime.BindStyledParameterWithOptions("simple", p.name, chi.URLParam(r, p.name), p.dest,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	var zoom, x, y int
	for _, p := range []struct {
		name string
		dest *int
	}{{"zoom", &zoom}, {"x", &x}, {"y", &y}} {
		err := runtime.BindStyledParameterWithOptions("simple", p.name, chi.URLParam(r, p.name), p.dest,
			runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	s.mu.Lock()
	index := s.attempts
	s.attempts++
	fail := index == s.failUploadAt
	status := s.uploadStatus
	s.mu.Unlock()

	if fail {
		http.Error(w, "upload rejected", status)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	upload := Upload{
		LayoutKey:   layoutKey,
		LayoutPath:  layoutPath,
		Zoom:        zoom,
		X:           x,
		Y:           y,
		Secret:      r.URL.Query().Get("__sc__"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		UserAgent:   r.UserAgent(),
		Data:        data,
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, upload)
	count := len(s.uploads)
	hook := s.onUpload
	s.mu.Unlock()

	if hook != nil {
		hook(count)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	var maxZoom int
	if err := runtime.BindQueryParameter("form", true, true, "MaxZoom", r.URL.Query(), &maxZoom); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	s.mu.Lock()
	s.finalizes = append(s.finalizes, Finalize{
		LayoutKey:  query.Get("LayoutKey"),
		LayoutPath: query.Get("LayoutPath"),
		APIKey:     query.Get("apikey"),
		MaxZoom:    maxZoom,
		UserAgent:  r.UserAgent(),
	})
	status := s.finalizeStatus
	s.mu.Unlock()

	if status != 0 {
		http.Error(w, "finalize rejected", status)
		return
	}
	w.WriteHeader(http.StatusOK)
}
