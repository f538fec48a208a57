package results

import (
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
)

// JPEGQuality is the quality used for chart JPEG exports.
const JPEGQuality = 90

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// EncodeJPEG writes img as JPEG after compositing it over the chart
// background, since JPEG has no alpha channel.
func EncodeJPEG(w io.Writer, img image.Image) error {
	b := img.Bounds()
	flat := image.NewRGBA(b)
	draw.Draw(flat, b, image.NewUniform(Background), image.Point{}, draw.Src)
	draw.Draw(flat, b, img, b.Min, draw.Over)
	return jpeg.Encode(w, flat, &jpeg.Options{Quality: JPEGQuality})
}
