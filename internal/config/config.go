// Package config holds the validated run configuration consumed by the
// pyramid pipeline. Invalid input is rejected before any work begins.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/kiesman99/layouttiler/internal/layout"
)

const (
	DefaultTileSize  = 256
	DefaultTimeout   = layout.DefaultTimeout
	DefaultUserAgent = layout.DefaultUserAgent
)

// Viper keys shared by the CLI flags, env vars and config file.
const (
	KeyServer     = "server"
	KeyLayoutKey  = "layout-key"
	KeySecret     = "secret"
	KeyBackground = "background"
	KeyTileSize   = "tile-size"
	KeyTimeout    = "timeout"
	KeyUserAgent  = "user-agent"
)

// Color is an opaque RGB background color.
type Color struct {
	R, G, B uint8
}

func (c Color) String() string {
	return fmt.Sprintf("%d,%d,%d", c.R, c.G, c.B)
}

// ColorFromInts builds a Color from exactly three channel values in 0-255.
func ColorFromInts(values []int) (Color, error) {
	if len(values) != 3 {
		return Color{}, fmt.Errorf("expected 3 channel values, got %d", len(values))
	}
	for i, v := range values {
		if v < 0 || v > 255 {
			return Color{}, fmt.Errorf("channel %d value %d out of range 0-255", i, v)
		}
	}
	return Color{R: uint8(values[0]), G: uint8(values[1]), B: uint8(values[2])}, nil
}

// ParseColor accepts "r,g,b" or "#rrggbb".
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		hex := strings.TrimPrefix(s, "#")
		if len(hex) != 6 {
			return Color{}, fmt.Errorf("invalid hex color %q", s)
		}
		v, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return Color{}, fmt.Errorf("invalid hex color %q: %w", s, err)
		}
		return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
	}

	parts := strings.Split(s, ",")
	values := make([]int, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
		}
		values = append(values, v)
	}
	return ColorFromInts(values)
}

// ValidationError reports a single invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Run is the configuration of one pyramid upload.
type Run struct {
	ImagePath     string
	ServerAddress string
	LayoutKey     string
	Secret        string
	Background    Color
	TileSize      int
	Timeout       time.Duration
	UserAgent     string
}

// Validate checks every field and returns the first problem found.
func (r *Run) Validate() error {
	if strings.TrimSpace(r.ImagePath) == "" {
		return &ValidationError{Field: "image_path", Message: "is required"}
	}
	if err := validateServer(r.ServerAddress); err != nil {
		return err
	}
	if strings.TrimSpace(r.LayoutKey) == "" {
		return &ValidationError{Field: "layout_key", Message: "is required"}
	}
	if r.Secret == "" {
		return &ValidationError{Field: "secret", Message: "is required"}
	}
	if r.TileSize <= 0 {
		return &ValidationError{Field: "tile_size", Message: fmt.Sprintf("must be greater than 0, got %d", r.TileSize)}
	}
	if r.Timeout <= 0 {
		return &ValidationError{Field: "timeout", Message: "must be positive"}
	}
	return nil
}

// ServerBase returns the server address without trailing slashes.
func (r *Run) ServerBase() string {
	return strings.TrimRight(strings.TrimSpace(r.ServerAddress), "/")
}

// ApplyDefaults fills zero-valued optional fields.
func (r *Run) ApplyDefaults() {
	if r.Timeout == 0 {
		r.Timeout = DefaultTimeout
	}
	if r.UserAgent == "" {
		r.UserAgent = DefaultUserAgent
	}
}

func validateServer(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return &ValidationError{Field: "server_address", Message: "is required"}
	}
	u, err := url.Parse(address)
	if err != nil {
		return &ValidationError{Field: "server_address", Message: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{Field: "server_address", Message: fmt.Sprintf("scheme must be http or https, got %q", u.Scheme)}
	}
	if u.Host == "" {
		return &ValidationError{Field: "server_address", Message: "host is required"}
	}
	return nil
}

// FromViper reads a Run from viper keys. The image path is passed separately
// because the CLI takes it as a positional argument.
func FromViper(v *viper.Viper, imagePath string) (*Run, error) {
	background, err := backgroundFromValue(v.Get(KeyBackground))
	if err != nil {
		return nil, &ValidationError{Field: "background_color", Message: err.Error()}
	}

	run := &Run{
		ImagePath:     imagePath,
		ServerAddress: v.GetString(KeyServer),
		LayoutKey:     v.GetString(KeyLayoutKey),
		Secret:        v.GetString(KeySecret),
		Background:    background,
		TileSize:      v.GetInt(KeyTileSize),
		Timeout:       v.GetDuration(KeyTimeout),
		UserAgent:     v.GetString(KeyUserAgent),
	}
	run.ApplyDefaults()

	if err := run.Validate(); err != nil {
		return nil, err
	}
	return run, nil
}

// backgroundFromValue accepts a flag/env string or a YAML list.
func backgroundFromValue(value interface{}) (Color, error) {
	switch bg := value.(type) {
	case nil:
		return Color{R: 255, G: 255, B: 255}, nil
	case string:
		if strings.TrimSpace(bg) == "" {
			return Color{R: 255, G: 255, B: 255}, nil
		}
		return ParseColor(bg)
	default:
		values, err := cast.ToIntSliceE(bg)
		if err != nil {
			return Color{}, err
		}
		return ColorFromInts(values)
	}
}
