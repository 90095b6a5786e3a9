// Package pyramid renders a source image into a deep zoom tile pyramid and
// hands every tile to an uploader.
package pyramid

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/kiesman99/layouttiler/internal/layout"
	"github.com/kiesman99/layouttiler/internal/logging"
	"github.com/kiesman99/layouttiler/pkg/tile"
)

// StatusCancelled is the status text of the snapshot written when a run stops early.
const StatusCancelled = "Cancelled"

// Progress is a snapshot of how far a run has come.
type Progress struct {
	Current    int    `json:"current"`
	Total      int    `json:"total"`
	ZoomLevel  int    `json:"zoom_level"`
	Percentage int    `json:"percentage"`
	Status     string `json:"status"`
}

// Reporter receives a progress snapshot after every tile and on cancellation.
type Reporter interface {
	Report(Progress)
}

// Canceller is polled before each zoom level, before each tile and before finalize.
type Canceller interface {
	Cancelled() bool
}

// Uploader stores tiles and registers the finished layout.
type Uploader interface {
	UploadTile(ctx context.Context, t layout.TileUpload) error
	FinalizeUpload(ctx context.Context, f layout.Finalize) error
}

// Options contains all pyramid parameters
type Options struct {
	TileSize   int
	Background color.NRGBA
	LayoutKey  string
	Secret     string

	Uploader  Uploader
	Reporter  Reporter  // optional
	Canceller Canceller // optional

	Logger *logging.Logger

	// NewLayoutPath generates the per-run namespace. Defaults to a random UUID.
	NewLayoutPath func() string
}

// Result describes a completed upload.
type Result struct {
	LayoutPath string
	MaxZoom    int
	Levels     int
	Tiles      int
	Bytes      int64
}

// Builder generates and uploads tile pyramids. A Builder runs one pyramid at
// a time; progress and cancellation state belong to the caller.
type Builder struct {
	opts   Options
	logger logging.Logger
}

// New creates a new builder instance
func New(opts Options) (*Builder, error) {
	if opts.TileSize <= 0 {
		return nil, tile.ErrInvalidTileSize
	}
	if opts.Uploader == nil {
		return nil, errors.New("pyramid: uploader is required")
	}
	if opts.NewLayoutPath == nil {
		opts.NewLayoutPath = uuid.NewString
	}
	opts.Background.A = 0xff

	return &Builder{
		opts:   opts,
		logger: logging.Ensure(opts.Logger).With().Str("component", "pyramid").Logger(),
	}, nil
}

// Run decodes the image at path and builds its pyramid.
func (b *Builder) Run(ctx context.Context, path string) (*Result, error) {
	if b.stopRequested(ctx) {
		return nil, b.cancelled()
	}

	src, err := LoadImage(path)
	if err != nil {
		return nil, err
	}
	b.logger.Info().
		Str("path", path).
		Int("width", src.Rect.Dx()).
		Int("height", src.Rect.Dy()).
		Msg("source image loaded")

	return b.Build(ctx, src)
}

// Build slices src into every zoom level, finest first, uploads each tile in
// order and finalizes the layout once all tiles are stored.
func (b *Builder) Build(ctx context.Context, src image.Image) (*Result, error) {
	bounds := src.Bounds()
	plan, err := tile.NewPlan(bounds.Dx(), bounds.Dy(), b.opts.TileSize)
	if err != nil {
		return nil, err
	}

	result := &Result{
		LayoutPath: b.opts.NewLayoutPath(),
		MaxZoom:    plan.MaxZoom(),
		Levels:     plan.LevelCount,
	}
	total := plan.TotalTiles()

	log := b.logger.With().Str("layout_path", result.LayoutPath).Logger()
	log.Info().
		Int("levels", plan.LevelCount).
		Int("tiles", total).
		Msg("building pyramid")

	for _, level := range plan.Levels() {
		if b.stopRequested(ctx) {
			return nil, b.cancelled()
		}

		canvas := RenderLevel(src, level, b.opts.TileSize, b.opts.Background)
		log.Debug().
			Int("zoom", level.Zoom).
			Int("resampled_width", level.Resampled.Width).
			Int("resampled_height", level.Resampled.Height).
			Int("canvas", canvas.Rect.Dx()).
			Msg("level rendered")

		err := Slice(canvas, level.Zoom, b.opts.TileSize, func(coord tile.Coord, cell *image.NRGBA) error {
			if b.stopRequested(ctx) {
				return ErrCancelled
			}

			data, err := EncodeJPEG(cell)
			if err != nil {
				return &EncodeError{Coord: coord, Err: err}
			}

			x, y := coord.PixelOffset(b.opts.TileSize)
			err = b.opts.Uploader.UploadTile(ctx, layout.TileUpload{
				LayoutKey:  b.opts.LayoutKey,
				LayoutPath: result.LayoutPath,
				Zoom:       coord.Zoom,
				X:          x,
				Y:          y,
				Secret:     b.opts.Secret,
				Data:       data,
			})
			if err != nil {
				return err
			}

			result.Tiles++
			result.Bytes += int64(len(data))
			b.report(Progress{
				Current:    result.Tiles,
				Total:      total,
				ZoomLevel:  coord.Zoom,
				Percentage: result.Tiles * 100 / total,
				Status:     fmt.Sprintf("Processing zoom level %d (%d/%d)", coord.Zoom, result.Tiles, total),
			})
			return nil
		})
		if err != nil {
			if errors.Is(err, ErrCancelled) || errors.Is(err, context.Canceled) {
				return nil, b.cancelled()
			}
			return nil, err
		}
	}

	if b.stopRequested(ctx) {
		return nil, b.cancelled()
	}

	err = b.opts.Uploader.FinalizeUpload(ctx, layout.Finalize{
		LayoutKey:  b.opts.LayoutKey,
		LayoutPath: result.LayoutPath,
		Secret:     b.opts.Secret,
		MaxZoom:    result.MaxZoom,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, b.cancelled()
		}
		return nil, err
	}

	log.Info().
		Int("tiles", result.Tiles).
		Int("max_zoom", result.MaxZoom).
		Str("uploaded", humanize.Bytes(uint64(result.Bytes))).
		Msg("pyramid uploaded")
	return result, nil
}

func (b *Builder) stopRequested(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
	}
	return b.opts.Canceller != nil && b.opts.Canceller.Cancelled()
}

// cancelled writes the terminal snapshot. Counts are reset to zero.
func (b *Builder) cancelled() error {
	b.report(Progress{Status: StatusCancelled})
	b.logger.Warn().Msg("processing cancelled")
	return ErrCancelled
}

func (b *Builder) report(p Progress) {
	if b.opts.Reporter != nil {
		b.opts.Reporter.Report(p)
	}
}
