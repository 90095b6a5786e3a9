package pyramid

import (
	"errors"
	"fmt"

	"github.com/kiesman99/layouttiler/pkg/tile"
)

// ErrCancelled is returned when a run stops because cancellation was requested.
var ErrCancelled = errors.New("Processing cancelled")

// DecodeError represents an unreadable, corrupt or unsupported source image.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("Failed to open image: %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError represents a JPEG encoding failure for one tile.
type EncodeError struct {
	Coord tile.Coord
	Err   error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("Failed to encode JPEG: tile %s: %v", e.Coord, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
