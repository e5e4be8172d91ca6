package scheduler

import (
	"fmt"
	"html/template"
	"strings"
	"time"

	"tippslottet/internal/types"
)

// Email bodies are rendered server-side and sent as inline HTML. The layout
// is deliberately plain: short tables render reliably across mail clients.

var reminderTmpl = template.Must(template.New("reminder").Parse(`<h2>Husk å tippe!</h2>
<p>Runde {{.RoundNumber}} stenger {{.Deadline}}.</p>
<p>Du har ikke levert tipp ennå. Logg inn og lever før fristen.</p>
<ul>
{{range .Matches}}<li>{{.HomeTeam}} – {{.AwayTeam}}</li>
{{end}}</ul>`))

var roundSummaryTmpl = template.Must(template.New("round_summary").Parse(`<h2>Runde {{.RoundNumber}} er ferdig</h2>
<table>
<tr><th>Plass</th><th>Navn</th><th>Poeng</th></tr>
{{range .Standings}}<tr><td>{{.Rank}}</td><td>{{.DisplayName}}</td><td>{{.RoundPoints}}</td></tr>
{{end}}</table>`))

var transparencyTmpl = template.Must(template.New("transparency_digest").Parse(`<h2>Alle tipp for runde {{.RoundNumber}}</h2>
<p>Runden er låst. Her er alles tipp, så ingen kan endre i det stille.</p>
{{range .Matches}}<h3>{{.HomeTeam}} – {{.AwayTeam}}</h3>
<table>
<tr><th>Bruker</th><th>Tipp</th></tr>
{{range .Predictions}}<tr><td>{{.UserID}}</td><td>{{.HomeScore}}–{{.AwayScore}}</td></tr>
{{end}}</table>
{{end}}`))

var seasonFinalTmpl = template.Must(template.New("season_final").Parse(`<h2>{{.SeasonName}} er over!</h2>
<p>Gratulerer til vinnerne:</p>
<ol>
{{range .Winners}}<li>{{.DisplayName}} – {{.TotalPoints}} poeng</li>
{{end}}</ol>`))

type reminderData struct {
	RoundNumber int
	Deadline    string
	Matches     []types.Match
}

type roundSummaryData struct {
	RoundNumber int
	Standings   []types.Standing
}

type transparencyMatch struct {
	HomeTeam    string
	AwayTeam    string
	Predictions []types.Prediction
}

type transparencyData struct {
	RoundNumber int
	Matches     []transparencyMatch
}

type seasonFinalData struct {
	SeasonName string
	Winners    []types.HallOfFameEntry
}

func renderTemplate(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return b.String(), nil
}

func formatDeadline(t time.Time) string {
	return t.UTC().Format("02.01.2006 15:04") + " UTC"
}
