package results

import (
	"fmt"
	"image/color"
	"math"
	"strconv"

	"github.com/opin-voting/backend/internal/models"
)

// Chart geometry in logical units.
const (
	ChartWidth  = 600
	ChartHeight = 350

	PadTop    = 40
	PadRight  = 30
	PadBottom = 60
	PadLeft   = 50

	BarGap     = 20
	GridSteps  = 5
	LabelRunes = 10
	LabelLimit = 12
)

var (
	// Palette is cycled by option index.
	Palette = []color.RGBA{
		hex("#1DCD9F"), hex("#169976"), hex("#14866a"), hex("#0f735b"),
		hex("#1ab98f"), hex("#17a77f"), hex("#149570"), hex("#118360"),
		hex("#25d9aa"), hex("#30e5b5"), hex("#3cf1c0"), hex("#48fdcb"),
	}

	Background = hex("#222222")
	TitleColor = hex("#ffffff")
	AxisText   = hex("#a0a0b0")
	AxisLine   = color.NRGBA{R: 255, G: 255, B: 255, A: 51}
	GridLine   = color.NRGBA{R: 255, G: 255, B: 255, A: 13}
)

// Gridline is a horizontal reference line with its value label.
type Gridline struct {
	Y     float64
	Value int
}

// Bar is one option's column.
type Bar struct {
	Index  int
	X      float64
	Y      float64
	Width  float64
	Height float64
	Color  color.RGBA
	Count  string
	Label  string
}

// Chart is a laid-out bar chart ready to rasterize.
type Chart struct {
	Width      int
	Height     int
	Title      string
	Background color.RGBA
	PlotLeft   float64
	PlotTop    float64
	PlotRight  float64
	PlotBottom float64
	Gridlines  []Gridline
	Bars       []Bar
}

// Layout computes the bar chart for a result set. Bars follow option order
// and are scaled against the largest count, or 1 when nothing has votes.
func Layout(d *models.VoteDetails) *Chart {
	c := &Chart{
		Width:      ChartWidth,
		Height:     ChartHeight,
		Background: Background,
		PlotLeft:   PadLeft,
		PlotTop:    PadTop,
		PlotRight:  ChartWidth - PadRight,
		PlotBottom: ChartHeight - PadBottom,
	}
	if d.Opin != nil {
		c.Title = d.Opin.Question
	}
	plotW := c.PlotRight - c.PlotLeft
	plotH := c.PlotBottom - c.PlotTop

	maxCount := d.MaxCount()
	if maxCount < 1 {
		maxCount = 1
	}
	for i := 0; i <= GridSteps; i++ {
		c.Gridlines = append(c.Gridlines, Gridline{
			Y:     c.PlotBottom - plotH/GridSteps*float64(i),
			Value: int(math.Round(float64(maxCount) / GridSteps * float64(i))),
		})
	}

	n := len(d.Options)
	if n == 0 {
		return c
	}
	barW := (plotW - float64(n-1)*BarGap) / float64(n)
	for i, opt := range d.Options {
		h := float64(opt.Count) / float64(maxCount) * plotH
		c.Bars = append(c.Bars, Bar{
			Index:  i,
			X:      c.PlotLeft + float64(i)*(barW+BarGap),
			Y:      c.PlotBottom - h,
			Width:  barW,
			Height: h,
			Color:  Palette[i%len(Palette)],
			Count:  strconv.Itoa(opt.Count),
			Label:  TruncateLabel(opt.Text),
		})
	}
	return c
}

// TruncateLabel shortens option text longer than LabelLimit runes to its
// first LabelRunes runes followed by "...".
func TruncateLabel(s string) string {
	r := []rune(s)
	if len(r) > LabelLimit {
		return string(r[:LabelRunes]) + "..."
	}
	return s
}

func hex(s string) color.RGBA {
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil || len(s) != 7 {
		panic(fmt.Sprintf("results: bad colour %q", s))
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}
