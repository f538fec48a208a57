package results

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	barRadius = 4
	// Bars fade to this alpha at the baseline.
	barFadeAlpha = 128
)

type align int

const (
	alignLeft align = iota
	alignCenter
	alignRight
)

// Rasterize draws the chart at scale times its logical size. A scale below 1
// is treated as 1.
func Rasterize(c *Chart, scale int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, c.Width, c.Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(c.Background), image.Point{}, draw.Src)

	drawText(img, c.Title, float64(c.Width)/2, 25, alignCenter, TitleColor, true)

	left := int(math.Round(c.PlotLeft))
	right := int(math.Round(c.PlotRight))
	fillRect(img, image.Rect(left, int(c.PlotTop), left+1, int(c.PlotBottom)), AxisLine)
	for _, g := range c.Gridlines {
		y := int(math.Round(g.Y))
		fillRect(img, image.Rect(left, y, right, y+1), GridLine)
		drawText(img, strconv.Itoa(g.Value), c.PlotLeft-10, g.Y+4, alignRight, AxisText, false)
	}

	for _, b := range c.Bars {
		drawBar(img, b, c.PlotBottom)
		center := b.X + b.Width/2
		drawText(img, b.Count, center, b.Y-8, alignCenter, TitleColor, true)
		drawText(img, b.Label, center, c.PlotBottom+20, alignCenter, AxisText, false)
	}

	if scale <= 1 {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, c.Width*scale, c.Height*scale))
	xdraw.NearestNeighbor.Scale(out, out.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return out
}

// drawBar fills the bar row by row with a vertical fade and rounded top corners.
func drawBar(img *image.RGBA, b Bar, baseline float64) {
	top := int(math.Round(b.Y))
	bottom := int(math.Round(baseline))
	x0 := int(math.Round(b.X))
	x1 := int(math.Round(b.X + b.Width))
	if bottom <= top || x1 <= x0 {
		return
	}
	span := float64(bottom - top)
	for y := top; y < bottom; y++ {
		inset := 0
		if dy := y - top; dy < barRadius {
			r := float64(barRadius)
			d := r - float64(dy) - 0.5
			inset = int(math.Round(r - math.Sqrt(r*r-d*d)))
		}
		if x0+inset >= x1-inset {
			continue
		}
		t := float64(y-top) / span
		alpha := uint8(255 - t*(255-barFadeAlpha))
		col := color.NRGBA{R: b.Color.R, G: b.Color.G, B: b.Color.B, A: alpha}
		fillRect(img, image.Rect(x0+inset, y, x1-inset, y+1), col)
	}
}

func fillRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Over)
}

// drawText draws s with its baseline at y. Bold text is drawn twice one
// pixel apart since the bitmap face has a single weight.
func drawText(img *image.RGBA, s string, x, y float64, a align, c color.Color, bold bool) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(c), Face: basicfont.Face7x13}
	w := float64(d.MeasureString(s).Round())
	switch a {
	case alignCenter:
		x -= w / 2
	case alignRight:
		x -= w
	}
	d.Dot = fixed.P(int(math.Round(x)), int(math.Round(y)))
	d.DrawString(s)
	if bold {
		d.Dot = fixed.P(int(math.Round(x))+1, int(math.Round(y)))
		d.DrawString(s)
	}
}
