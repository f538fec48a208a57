package results

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/opin-voting/backend/internal/models"
)

func scenario() *models.VoteDetails {
	o := &models.Opin{
		Name:     "Letters",
		LinkID:   "abcd1234",
		Question: "Pick a letter",
		Options:  []string{"A", "B", "C"},
		Status:   models.StatusActive,
		Votes:    models.Tally{0, 2, 0},
	}
	return &models.VoteDetails{
		Opin: o,
		Options: []models.OptionDetail{
			{Index: 0, Text: "A", Count: 0, Voters: []string{}},
			{Index: 1, Text: "B", Count: 2, Voters: []string{"x@example.com", "y@example.com"}},
			{Index: 2, Text: "C", Count: 0, Voters: []string{}},
		},
		TotalVotes: 2,
	}
}

func TestLayout(t *testing.T) {
	c := Layout(scenario())
	require.Equal(t, "Pick a letter", c.Title)
	require.Len(t, c.Bars, 3)

	plotW := float64(ChartWidth - PadLeft - PadRight)
	plotH := float64(ChartHeight - PadTop - PadBottom)
	barW := (plotW - 2*BarGap) / 3
	require.InDelta(t, barW, c.Bars[0].Width, 1e-9)
	require.InDelta(t, PadLeft+barW+BarGap, c.Bars[1].X, 1e-9)
	require.InDelta(t, plotH, c.Bars[1].Height, 1e-9)
	require.InDelta(t, float64(PadTop), c.Bars[1].Y, 1e-9)
	require.Zero(t, c.Bars[0].Height)
	require.Equal(t, "2", c.Bars[1].Count)
	require.Equal(t, Palette[2], c.Bars[2].Color)

	require.Len(t, c.Gridlines, GridSteps+1)
	values := make([]int, len(c.Gridlines))
	for i, g := range c.Gridlines {
		values[i] = g.Value
	}
	require.Equal(t, []int{0, 0, 1, 1, 2, 2}, values)
	require.InDelta(t, float64(ChartHeight-PadBottom), c.Gridlines[0].Y, 1e-9)
	require.InDelta(t, float64(PadTop), c.Gridlines[GridSteps].Y, 1e-9)
}

func TestLayoutNoVotes(t *testing.T) {
	d := scenario()
	for i := range d.Options {
		d.Options[i].Count = 0
	}
	c := Layout(d)
	for _, b := range c.Bars {
		require.Zero(t, b.Height)
	}
	require.Equal(t, 1, c.Gridlines[GridSteps].Value)
}

func TestPaletteCycles(t *testing.T) {
	d := &models.VoteDetails{Opin: &models.Opin{}}
	for i := 0; i < 14; i++ {
		d.Options = append(d.Options, models.OptionDetail{Index: i, Text: "x"})
	}
	c := Layout(d)
	require.Equal(t, Palette[0], c.Bars[12].Color)
	require.Equal(t, Palette[1], c.Bars[13].Color)
}

func TestTruncateLabel(t *testing.T) {
	require.Equal(t, "twelve chrs!", TruncateLabel("twelve chrs!"))
	require.Equal(t, "thirteen c...", TruncateLabel("thirteen chrs"))
	require.Equal(t, "ÄÖÜäöüßÄÖÜ...", TruncateLabel("ÄÖÜäöüßÄÖÜäöü"))
}

func TestRasterizeAndEncode(t *testing.T) {
	img := Rasterize(Layout(scenario()), 2)
	require.Equal(t, image.Rect(0, 0, ChartWidth*2, ChartHeight*2), img.Bounds())

	var buf bytes.Buffer
	require.NoError(t, EncodePNG(&buf, img))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, img.Bounds(), decoded.Bounds())

	r, g, b, _ := decoded.At(1, 1).RGBA()
	require.Equal(t, uint32(Background.R), r>>8)
	require.Equal(t, uint32(Background.G), g>>8)
	require.Equal(t, uint32(Background.B), b>>8)

	buf.Reset()
	require.NoError(t, EncodeJPEG(&buf, image.NewNRGBA(image.Rect(0, 0, 10, 10))))
	decoded, err = jpeg.Decode(&buf)
	require.NoError(t, err)
	r, _, _, _ = decoded.At(5, 5).RGBA()
	require.InDelta(t, float64(Background.R), float64(r>>8), 3)
}

func TestSpreadsheetRows(t *testing.T) {
	rows := SpreadsheetRows(scenario())
	require.Equal(t, []interface{}{"Opin Results"}, rows[0])
	require.Equal(t, []interface{}{"Question:", "Pick a letter"}, rows[2])
	require.Equal(t, []interface{}{"Total Votes:", 2}, rows[3])
	require.Equal(t, []interface{}{"Status:", "active"}, rows[4])
	require.Equal(t, []interface{}{"Option", "Votes", "Percentage", "Voters"}, rows[6])
	require.Equal(t, []interface{}{"B", 2, "100.0%", "x@example.com, y@example.com"}, rows[8])
	require.Equal(t, []interface{}{"A", 0, "0.0%", ""}, rows[7])

	d := scenario()
	d.Opin.Anonymous = true
	rows = SpreadsheetRows(d)
	require.Equal(t, "Anonymous", rows[8][3])

	require.Equal(t, "0%", Percentage(0, 0))
	require.Equal(t, "33.3%", Percentage(1, 3))
}

func TestWriteSpreadsheet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSpreadsheet(&buf, scenario()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{SheetName}, f.GetSheetList())
	v, err := f.GetCellValue(SheetName, "C9")
	require.NoError(t, err)
	require.Equal(t, "100.0%", v)
	v, err = f.GetCellValue(SheetName, "A1")
	require.NoError(t, err)
	require.Equal(t, "Opin Results", v)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, scenario()))
	require.Equal(t, "Option,Votes,Percentage\n\"A\",0,0.0%\n\"B\",2,100.0%\n\"C\",0,0.0%\n", buf.String())

	d := scenario()
	d.TotalVotes = 0
	d.Options[1].Count = 0
	d.Options[1].Text = `say "hi"`
	buf.Reset()
	require.NoError(t, WriteCSV(&buf, d))
	require.Contains(t, buf.String(), "\"say \"\"hi\"\"\",0,0%\n")
}

func TestRoster(t *testing.T) {
	v := Roster(scenario())
	require.False(t, v.Anonymous)
	require.Len(t, v.Groups, 3)
	require.Equal(t, NoVotesYet, v.Groups[0].Placeholder)
	require.Equal(t, 2, v.Groups[1].Count)
	require.Empty(t, v.Groups[1].Placeholder)
	for _, g := range v.Groups {
		require.False(t, g.Open)
	}

	var buf bytes.Buffer
	require.NoError(t, RenderRosterHTML(&buf, v))
	require.Contains(t, buf.String(), "<summary>B (2)</summary>")
	require.Contains(t, buf.String(), "<p>x@example.com</p>")
	require.Contains(t, buf.String(), "<p>No votes yet</p>")

	d := scenario()
	d.Opin.Anonymous = true
	v = Roster(d)
	require.True(t, v.Anonymous)
	require.Empty(t, v.Groups)
	buf.Reset()
	require.NoError(t, RenderRosterHTML(&buf, v))
	require.Contains(t, buf.String(), AnonymousMessage)
	require.False(t, strings.Contains(buf.String(), "@example.com"))
}

func TestRosterEscapesHTML(t *testing.T) {
	d := scenario()
	d.Options[0].Text = "<script>"
	var buf bytes.Buffer
	require.NoError(t, RenderRosterHTML(&buf, Roster(d)))
	require.NotContains(t, buf.String(), "<script>")
}

func TestFilename(t *testing.T) {
	o := &models.Opin{Name: "Team lunch", LinkID: "abcd1234"}
	require.Equal(t, "Team lunch.png", Filename(o, FormatPNG))
	require.Equal(t, "Team lunch.jpg", Filename(o, FormatJPEG))
	require.Equal(t, "Team lunch.xlsx", Filename(o, FormatXLSX))
	require.Equal(t, "Team lunch-results.csv", Filename(o, FormatCSV))
	require.Equal(t, "abcd1234-results.csv", Filename(&models.Opin{LinkID: "abcd1234"}, FormatCSV))
	require.Equal(t, "opin-results.png", Filename(nil, FormatPNG))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("jpeg")
	require.NoError(t, err)
	require.Equal(t, FormatJPEG, f)
	_, err = ParseFormat("gif")
	require.ErrorIs(t, err, ErrUnknownFormat)
}
