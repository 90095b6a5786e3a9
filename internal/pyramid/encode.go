package pyramid

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/disintegration/imaging"
)

// Flatten drops the alpha channel, returning an opaque RGB copy of img.
func Flatten(img image.Image) *image.RGBA {
	src := toNRGBA(img)
	dst := image.NewRGBA(src.Rect)

	for y := 0; y < src.Rect.Dy(); y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+4*src.Rect.Dx()]
		d := dst.Pix[y*dst.Stride : y*dst.Stride+4*dst.Rect.Dx()]
		for i := 0; i < len(s); i += 4 {
			d[i] = s[i]
			d[i+1] = s[i+1]
			d[i+2] = s[i+2]
			d[i+3] = 0xff
		}
	}
	return dst
}

// EncodeJPEG flattens img to RGB and encodes it with the default JPEG quality.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, Flatten(img), imaging.JPEG, imaging.JPEGQuality(jpeg.DefaultQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
