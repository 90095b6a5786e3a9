package pyramid

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/kiesman99/layouttiler/pkg/tile"
)

// Resample scales src to size with a Lanczos filter. It returns nil when
// either dimension is zero, which happens for extreme aspect ratios at the
// coarsest levels.
func Resample(src image.Image, size tile.Size) *image.NRGBA {
	if size.Width <= 0 || size.Height <= 0 {
		return nil
	}
	return imaging.Resize(src, size.Width, size.Height, imaging.Lanczos)
}

// Pad centers img on an opaque background canvas at least target pixels on
// each axis. Pixels outside the placement keep the exact background color.
// A nil img yields a plain background canvas.
func Pad(img *image.NRGBA, target tile.Size, bg color.NRGBA) *image.NRGBA {
	bg.A = 0xff

	var w, h int
	if img != nil {
		w, h = img.Rect.Dx(), img.Rect.Dy()
	}

	extraW := max(0, target.Width-w)
	extraH := max(0, target.Height-h)

	canvas := imaging.New(w+extraW, h+extraH, bg)
	if img == nil {
		return canvas
	}

	// Opaque pixels replace the background; translucent ones are composited
	// over it so the canvas stays fully opaque.
	return imaging.Overlay(canvas, img, image.Pt(extraW/2, extraH/2), 1.0)
}

// RenderLevel resamples src for a zoom level and pads it to the level's tile grid.
func RenderLevel(src image.Image, level tile.Level, tileSize int, bg color.NRGBA) *image.NRGBA {
	side := level.Tiles * tileSize
	return Pad(Resample(src, level.Resampled), tile.Size{Width: side, Height: side}, bg)
}

// Slice walks canvas in a tileSize-aligned grid, column by column, and calls
// visit with each cropped tile. Iteration stops at the first error.
func Slice(canvas *image.NRGBA, zoom, tileSize int, visit func(tile.Coord, *image.NRGBA) error) error {
	tilesX := canvas.Rect.Dx() / tileSize
	tilesY := canvas.Rect.Dy() / tileSize

	for tx := 0; tx < tilesX; tx++ {
		for ty := 0; ty < tilesY; ty++ {
			coord := tile.Coord{Zoom: zoom, X: tx, Y: ty}
			x, y := coord.PixelOffset(tileSize)
			cell := imaging.Crop(canvas, image.Rect(x, y, x+tileSize, y+tileSize).Add(canvas.Rect.Min))
			if err := visit(coord, cell); err != nil {
				return err
			}
		}
	}
	return nil
}
