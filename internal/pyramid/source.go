package pyramid

import (
	"image"
	"os"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the WEBP decoder with image.Decode

	"github.com/kiesman99/layouttiler/pkg/tile"
)

// LoadImage decodes a PNG, JPEG, GIF, BMP, TIFF or WEBP file into a 4-channel buffer.
func LoadImage(path string) (*image.NRGBA, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, &DecodeError{Path: path, Err: err}
	}
	return toNRGBA(img), nil
}

// ImageSize reads only the header of the image at path.
func ImageSize(path string) (tile.Size, error) {
	f, err := os.Open(path)
	if err != nil {
		return tile.Size{}, &DecodeError{Path: path, Err: err}
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return tile.Size{}, &DecodeError{Path: path, Err: err}
	}
	return tile.Size{Width: cfg.Width, Height: cfg.Height}, nil
}

// toNRGBA returns img as a zero-origin NRGBA buffer with tightly packed rows,
// copying only when needed.
func toNRGBA(img image.Image) *image.NRGBA {
	if nrgba, ok := img.(*image.NRGBA); ok && nrgba.Rect.Min == (image.Point{}) && nrgba.Stride == 4*nrgba.Rect.Dx() {
		return nrgba
	}
	return imaging.Clone(img)
}
