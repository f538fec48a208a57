package results

import (
	"errors"
	"fmt"
	"io"

	"github.com/opin-voting/backend/internal/models"
)

// Format is an export artifact type.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpg"
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// DefaultFilename is used when an opin has neither name nor link id.
const DefaultFilename = "opin-results"

// ErrUnknownFormat is returned for formats other than png, jpg, xlsx and csv.
var ErrUnknownFormat = errors.New("unknown export format")

// Formats lists every export format.
var Formats = []Format{FormatPNG, FormatJPEG, FormatXLSX, FormatCSV}

// ParseFormat validates an export format name. "jpeg" is accepted for jpg.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatPNG, FormatJPEG, FormatXLSX, FormatCSV:
		return Format(s), nil
	case "jpeg":
		return FormatJPEG, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatJPEG:
		return "image/jpeg"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	}
	return "application/octet-stream"
}

// Filename returns the download name of an export: <name>.png, <name>.jpg,
// <name>.xlsx, or <name>-results.csv. The link id stands in for a missing name.
func Filename(o *models.Opin, f Format) string {
	base := DefaultFilename
	if o != nil {
		switch {
		case o.Name != "":
			base = o.Name
		case o.LinkID != "":
			base = o.LinkID
		}
	}
	if f == FormatCSV {
		return base + "-results.csv"
	}
	return base + "." + string(f)
}

// Render writes the export of d in format f. scale applies to chart images.
func Render(w io.Writer, d *models.VoteDetails, f Format, scale int) error {
	switch f {
	case FormatPNG:
		return EncodePNG(w, Rasterize(Layout(d), scale))
	case FormatJPEG:
		return EncodeJPEG(w, Rasterize(Layout(d), scale))
	case FormatXLSX:
		return WriteSpreadsheet(w, d)
	case FormatCSV:
		return WriteCSV(w, d)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}
