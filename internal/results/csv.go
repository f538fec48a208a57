package results

import (
	"fmt"
	"io"
	"strings"

	"github.com/opin-voting/backend/internal/models"
)

// CSVHeader is the first line of the sheets export.
const CSVHeader = "Option,Votes,Percentage"

// WriteCSV writes the sheets-import CSV. Option text is always quoted.
func WriteCSV(w io.Writer, d *models.VoteDetails) error {
	var b strings.Builder
	b.WriteString(CSVHeader + "\n")
	for _, opt := range d.Options {
		pct := "0"
		if d.TotalVotes > 0 {
			pct = fmt.Sprintf("%.1f", float64(opt.Count)/float64(d.TotalVotes)*100)
		}
		fmt.Fprintf(&b, "%s,%d,%s%%\n", quote(opt.Text), opt.Count, pct)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
