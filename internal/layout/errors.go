package layout

import "fmt"

// StatusError is returned when the layout service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Status, e.Body)
}

// UploadError wraps a failed tile upload, either a transport error or a *StatusError.
type UploadError struct {
	Zoom int
	X, Y int // pixel offsets, as sent in the URL
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("Upload failed: tile %d/%d/%d: %v", e.Zoom, e.X, e.Y, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// FinalizeError wraps a failed finalize call. The tiles are already on the
// server at this point but the layout is left unfinalized.
type FinalizeError struct {
	LayoutPath string
	MaxZoom    int
	Err        error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("Failed to finalize upload: %v", e.Err)
}

func (e *FinalizeError) Unwrap() error {
	return e.Err
}
