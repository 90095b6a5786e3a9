package tile

import "fmt"

// Coord identifies a tile by zoom level and grid index.
type Coord struct {
	Zoom int
	X    int
	Y    int
}

// PixelOffset returns the absolute pixel position of the tile's top-left corner.
func (c Coord) PixelOffset(tileSize int) (int, int) {
	return c.X * tileSize, c.Y * tileSize
}

func (c Coord) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Zoom, c.X, c.Y)
}

// Size is a width/height pair in pixels
type Size struct {
	Width, Height int
}

// Level describes how one zoom level of a pyramid is rendered.
type Level struct {
	Zoom      int
	Scale     float64 // fraction applied to the source image
	Resampled Size    // source image after scaling, before padding
	Canvas    Size    // padded canvas, an exact multiple of the tile size
	Tiles     int     // tiles per axis
}

// TileCount returns the number of tiles emitted for this level.
func (l Level) TileCount() int {
	return l.Tiles * l.Tiles
}
