package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/kiesman99/layouttiler/internal/layout"
)

func validRun() Run {
	return Run{
		ImagePath:     "floor.png",
		ServerAddress: "https://layouts.example.com/",
		LayoutKey:     "floor-1",
		Secret:        "s3cret",
		Background:    Color{R: 255, G: 255, B: 255},
		TileSize:      256,
		Timeout:       DefaultTimeout,
		UserAgent:     DefaultUserAgent,
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(r *Run)
		field  string
	}{
		{"valid", func(r *Run) {}, ""},
		{"missing image", func(r *Run) { r.ImagePath = " " }, "image_path"},
		{"missing server", func(r *Run) { r.ServerAddress = "" }, "server_address"},
		{"server without scheme", func(r *Run) { r.ServerAddress = "layouts.example.com" }, "server_address"},
		{"server with ftp scheme", func(r *Run) { r.ServerAddress = "ftp://layouts.example.com" }, "server_address"},
		{"missing layout key", func(r *Run) { r.LayoutKey = "" }, "layout_key"},
		{"missing secret", func(r *Run) { r.Secret = "" }, "secret"},
		{"zero tile size", func(r *Run) { r.TileSize = 0 }, "tile_size"},
		{"negative tile size", func(r *Run) { r.TileSize = -256 }, "tile_size"},
		{"zero timeout", func(r *Run) { r.Timeout = 0 }, "timeout"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			run := validRun()
			tc.mutate(&run)
			err := run.Validate()

			if tc.field == "" {
				if err != nil {
					t.Fatalf("Validate returned error: %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Errorf("Field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestServerBaseTrimsTrailingSlashes(t *testing.T) {
	run := validRun()
	run.ServerAddress = "https://layouts.example.com/sd//"
	if got := run.ServerBase(); got != "https://layouts.example.com/sd" {
		t.Errorf("ServerBase = %q", got)
	}
}

func TestParseColor(t *testing.T) {
	testCases := []struct {
		input   string
		want    Color
		wantErr bool
	}{
		{"255,255,255", Color{255, 255, 255}, false},
		{" 0, 128 ,64", Color{0, 128, 64}, false},
		{"#ff8000", Color{255, 128, 0}, false},
		{"#FFF", Color{}, true},
		{"256,0,0", Color{}, true},
		{"-1,0,0", Color{}, true},
		{"1,2", Color{}, true},
		{"a,b,c", Color{}, true},
	}

	for _, tc := range testCases {
		got, err := ParseColor(tc.input)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseColor(%q) expected error, got %v", tc.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseColor(%q) returned error: %v", tc.input, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseColor(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestFromViper(t *testing.T) {
	v := viper.New()
	v.Set(KeyServer, "http://localhost:5000/")
	v.Set(KeyLayoutKey, "hall-b")
	v.Set(KeySecret, "abc")
	v.Set(KeyBackground, []interface{}{10, 20, 30})
	v.Set(KeyTileSize, 512)

	run, err := FromViper(v, "hall.jpg")
	if err != nil {
		t.Fatalf("FromViper returned error: %v", err)
	}
	if run.Background != (Color{10, 20, 30}) {
		t.Errorf("Background = %v", run.Background)
	}
	if run.TileSize != 512 {
		t.Errorf("TileSize = %d, want 512", run.TileSize)
	}
	if run.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want default %v", run.Timeout, DefaultTimeout)
	}
	if run.UserAgent != layout.DefaultUserAgent {
		t.Errorf("UserAgent = %q, want %q", run.UserAgent, layout.DefaultUserAgent)
	}
	if run.ImagePath != "hall.jpg" {
		t.Errorf("ImagePath = %q", run.ImagePath)
	}
}

func TestFromViperStringBackgroundAndTimeout(t *testing.T) {
	v := viper.New()
	v.Set(KeyServer, "http://localhost:5000")
	v.Set(KeyLayoutKey, "hall-b")
	v.Set(KeySecret, "abc")
	v.Set(KeyBackground, "#000000")
	v.Set(KeyTileSize, 256)
	v.Set(KeyTimeout, "5s")

	run, err := FromViper(v, "hall.jpg")
	if err != nil {
		t.Fatalf("FromViper returned error: %v", err)
	}
	if run.Background != (Color{}) {
		t.Errorf("Background = %v, want black", run.Background)
	}
	if run.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", run.Timeout)
	}
}

func TestFromViperRejectsBadBackground(t *testing.T) {
	v := viper.New()
	v.Set(KeyServer, "http://localhost:5000")
	v.Set(KeyLayoutKey, "hall-b")
	v.Set(KeySecret, "abc")
	v.Set(KeyBackground, []interface{}{10, 20, 300})
	v.Set(KeyTileSize, 256)

	_, err := FromViper(v, "hall.jpg")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "background_color" {
		t.Fatalf("expected background_color validation error, got %v", err)
	}
	if !strings.Contains(err.Error(), "out of range") {
		t.Errorf("unexpected message: %v", err)
	}
}

func TestFromViperRejectsZeroTileSize(t *testing.T) {
	v := viper.New()
	v.Set(KeyServer, "http://localhost:5000")
	v.Set(KeyLayoutKey, "hall-b")
	v.Set(KeySecret, "abc")

	_, err := FromViper(v, "hall.jpg")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Field != "tile_size" {
		t.Fatalf("expected tile_size validation error, got %v", err)
	}
}
