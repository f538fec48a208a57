package results

import (
	"html/template"
	"io"

	"github.com/opin-voting/backend/internal/models"
)

// Roster placeholder text.
const (
	NoVotesYet       = "No votes yet"
	AnonymousMessage = "This Opin has anonymous voting enabled"
)

// RosterGroup lists who picked one option. Groups start collapsed.
type RosterGroup struct {
	Text        string   `json:"text"`
	Count       int      `json:"count"`
	Voters      []string `json:"voters"`
	Placeholder string   `json:"placeholder,omitempty"`
	Open        bool     `json:"open"`
}

// RosterView is the voter roster shown under the chart. An anonymous opin has
// a message and no groups.
type RosterView struct {
	Anonymous bool          `json:"anonymous"`
	Message   string        `json:"message,omitempty"`
	Groups    []RosterGroup `json:"groups"`
}

// Roster builds the voter roster for a result set.
func Roster(d *models.VoteDetails) RosterView {
	if d.Opin != nil && d.Opin.Anonymous {
		return RosterView{Anonymous: true, Message: AnonymousMessage, Groups: []RosterGroup{}}
	}
	v := RosterView{Groups: make([]RosterGroup, 0, len(d.Options))}
	for _, opt := range d.Options {
		g := RosterGroup{Text: opt.Text, Count: len(opt.Voters), Voters: opt.Voters}
		if g.Voters == nil {
			g.Voters = []string{}
		}
		if len(g.Voters) == 0 {
			g.Placeholder = NoVotesYet
		}
		v.Groups = append(v.Groups, g)
	}
	return v
}

var rosterTemplate = template.Must(template.New("roster").Parse(`
{{- if .Anonymous -}}
<p class="roster-message">{{.Message}}</p>
{{- else -}}
{{- range .Groups}}
<details class="voter-dropdown"{{if .Open}} open{{end}}>
<summary>{{.Text}} ({{.Count}})</summary>
<div class="voter-list">
{{- if .Placeholder}}
<p>{{.Placeholder}}</p>
{{- else}}{{range .Voters}}
<p>{{.}}</p>
{{- end}}{{end}}
</div>
</details>
{{- end}}
{{- end}}
`))

// RenderRosterHTML writes the roster as an HTML fragment. Option text and
// emails are escaped.
func RenderRosterHTML(w io.Writer, v RosterView) error {
	return rosterTemplate.Execute(w, v)
}
