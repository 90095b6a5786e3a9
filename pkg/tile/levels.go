package tile

import (
	"errors"
	"fmt"
	"math/bits"
)

var (
	// ErrInvalidTileSize is returned for a tile size that is not positive.
	ErrInvalidTileSize = errors.New("tile size must be greater than 0")
	// ErrInvalidDimensions is returned for an empty source image.
	ErrInvalidDimensions = errors.New("image dimensions must be greater than 0")
)

// Plan holds the zoom level layout of a deep zoom pyramid for one image.
type Plan struct {
	Width        int
	Height       int
	TileSize     int
	MaxDimension int
	LevelCount   int
}

// NewPlan computes the pyramid layout for an image of the given size.
func NewPlan(width, height, tileSize int) (*Plan, error) {
	levels, err := LevelCount(width, height, tileSize)
	if err != nil {
		return nil, err
	}

	return &Plan{
		Width:        width,
		Height:       height,
		TileSize:     tileSize,
		MaxDimension: max(width, height),
		LevelCount:   levels,
	}, nil
}

// LevelCount returns ceil(log2(ceil(max(w,h)/tileSize))) + 1.
func LevelCount(width, height, tileSize int) (int, error) {
	if tileSize <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTileSize, tileSize)
	}
	if width <= 0 || height <= 0 {
		return 0, fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}

	maxDimension := max(width, height)
	tiles := (maxDimension + tileSize - 1) / tileSize

	// bits.Len(n-1) == ceil(log2(n)) for n >= 1
	return bits.Len(uint(tiles-1)) + 1, nil
}

// TilesPerAxis returns the number of tiles along each axis at a zoom level.
func TilesPerAxis(zoom int) int {
	return 1 << uint(zoom)
}

// ScaleFactor returns the fraction the source image is resampled by at a zoom level.
// The finest level may slightly exceed 1.0.
func ScaleFactor(zoom, tileSize, maxDimension int) float64 {
	return float64(TilesPerAxis(zoom)*tileSize) / float64(maxDimension)
}

// TotalTiles returns the number of tiles in a quad-tree pyramid with levelCount levels.
func TotalTiles(levelCount int) int {
	total := 0
	for i := 0; i < levelCount; i++ {
		total += TilesPerAxis(i) * TilesPerAxis(i)
	}
	return total
}

// MaxZoom returns the finest zoom level of the plan.
func (p *Plan) MaxZoom() int {
	return p.LevelCount - 1
}

// TotalTiles returns the number of tiles the whole pyramid emits.
func (p *Plan) TotalTiles() int {
	return TotalTiles(p.LevelCount)
}

// Level describes a single zoom level. Scale and grid size are both derived
// from zoom so the canvas always lines up with the tile grid.
func (p *Plan) Level(zoom int) Level {
	scale := ScaleFactor(zoom, p.TileSize, p.MaxDimension)
	tiles := TilesPerAxis(zoom)
	side := tiles * p.TileSize

	resampled := Size{
		Width:  int(float64(p.Width) * scale),
		Height: int(float64(p.Height) * scale),
	}

	return Level{
		Zoom:      zoom,
		Scale:     scale,
		Resampled: resampled,
		Canvas: Size{
			Width:  resampled.Width + max(0, side-resampled.Width),
			Height: resampled.Height + max(0, side-resampled.Height),
		},
		Tiles: tiles,
	}
}

// Levels returns every level in processing order, finest first.
func (p *Plan) Levels() []Level {
	levels := make([]Level, 0, p.LevelCount)
	for zoom := p.MaxZoom(); zoom >= 0; zoom-- {
		levels = append(levels, p.Level(zoom))
	}
	return levels
}
