// Package printer renders CLI output with colour. Colour is disabled when
// NO_COLOR is set or the writer is not a terminal.
package printer

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"navisol/pkg/domain"
)

// Printer writes formatted output to Out and errors to Err.
type Printer struct {
	Out io.Writer
	Err io.Writer

	green  *color.Color
	yellow *color.Color
	red    *color.Color
	cyan   *color.Color
	bold   *color.Color
}

// New returns a Printer writing to out and errOut.
func New(out, errOut io.Writer) *Printer {
	return &Printer{
		Out:    out,
		Err:    errOut,
		green:  color.New(color.FgGreen),
		yellow: color.New(color.FgYellow),
		red:    color.New(color.FgRed, color.Bold),
		cyan:   color.New(color.FgCyan),
		bold:   color.New(color.Bold),
	}
}

// Success prints a green confirmation line.
func (p *Printer) Success(format string, a ...any) {
	p.green.Fprintf(p.Out, "✓ %s\n", fmt.Sprintf(format, a...))
}

// Warning prints a yellow warning line.
func (p *Printer) Warning(format string, a ...any) {
	p.yellow.Fprintf(p.Out, "! %s\n", fmt.Sprintf(format, a...))
}

// Step prints an emphasised progress line.
func (p *Printer) Step(format string, a ...any) {
	p.cyan.Fprintf(p.Out, "→ %s\n", fmt.Sprintf(format, a...))
}

// Printf prints plain output.
func (p *Printer) Printf(format string, a ...any) {
	fmt.Fprintf(p.Out, format, a...)
}

// ReportedError is returned once a message has been printed to Err.
type ReportedError struct{ Title string }

func (e *ReportedError) Error() string { return e.Title }

// Error prints title, explanation and numbered suggestions to Err and returns
// an error carrying only the title, for commands that silence cobra's own output.
func (p *Printer) Error(title, explanation string, suggestions []string) error {
	p.red.Fprintf(p.Err, "%s\n", title)
	if explanation != "" {
		fmt.Fprintf(p.Err, "\n%s\n", explanation)
	}
	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(p.Err, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(p.Err, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(p.Err, "  %d. %s\n", i+1, s)
		}
	}
	return &ReportedError{Title: title}
}

// DomainError explains a core error using its kind.
func (p *Printer) DomainError(err error) error {
	kind := domain.KindOf(err)
	var suggestions []string
	switch kind {
	case domain.KindAuthorization:
		suggestions = []string{"Run the command with a role that holds the permission (--role)."}
	case domain.KindConcurrencyConflict:
		suggestions = []string{"Reload the project and retry with the current version."}
	case domain.KindLocked:
		suggestions = []string{"Create an amendment instead.", "Ask an admin for an emergency unlock."}
	case domain.KindUnapprovedLibraryVersion, domain.KindMissingLibraryVersion:
		suggestions = []string{"Approve the selected library versions before this milestone."}
	case domain.KindAmendmentChain:
		suggestions = []string{"Re-read the project and base the amendment on the latest snapshot."}
	}
	title := "Operation failed"
	if kind != "" {
		title = string(kind)
	}
	return p.Error(title, err.Error(), suggestions)
}

// Project prints a summary of p.
func (p *Printer) Project(project domain.Project) {
	p.bold.Fprintf(p.Out, "#%d %s\n", project.Number, project.Title)
	tw := tabwriter.NewWriter(p.Out, 0, 2, 2, ' ', 0)
	fmt.Fprintf(tw, "  id\t%s\n", project.ID)
	fmt.Fprintf(tw, "  status\t%s\n", p.status(project))
	fmt.Fprintf(tw, "  type\t%s\n", project.Type)
	fmt.Fprintf(tw, "  version\t%d\n", project.Version)
	if snap, ok := project.LatestSnapshot(); ok {
		fmt.Fprintf(tw, "  snapshot\t%s (%s)\n", snap.Label(), snap.Reason)
	}
	if project.LibraryPins != nil {
		fmt.Fprintf(tw, "  pins\t%s\n", project.LibraryPins.ID)
	}
	for _, q := range project.Quotes {
		fmt.Fprintf(tw, "  quote %s\t%s %s\n", q.Label(), q.Status, q.Total)
	}
	for _, a := range project.Amendments {
		fmt.Fprintf(tw, "  %s\t%s %s %s\n", strings.ToLower(a.Label()), a.Status, a.Type, a.PriceImpact)
	}
	_ = tw.Flush()
}

func (p *Printer) status(project domain.Project) string {
	s := string(project.Status)
	switch {
	case project.Archived():
		return p.yellow.Sprint(s + " (archived)")
	case project.Status.Terminal():
		return p.cyan.Sprint(s)
	case project.Frozen():
		return p.green.Sprint(s)
	}
	return s
}

// Projects prints one line per project.
func (p *Printer) Projects(projects []domain.Project) {
	tw := tabwriter.NewWriter(p.Out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tSTATUS\tTITLE\tID")
	for _, project := range projects {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", project.Number, project.Status, project.Title, project.ID)
	}
	_ = tw.Flush()
}

// Audit prints audit entries as a table.
func (p *Printer) Audit(entries []domain.AuditEntry) {
	tw := tabwriter.NewWriter(p.Out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tKIND\tENTITY\tACTOR\tDESCRIPTION")
	for _, e := range entries {
		kind := string(e.Kind)
		if e.Kind == domain.AuditAccessDenied || e.Kind == domain.AuditTransitionFailed || e.Kind == domain.AuditAmendmentFailed {
			kind = p.red.Sprint(kind)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s/%s\t%s (%s)\t%s\n",
			e.Sequence, e.Timestamp.Format("2006-01-02 15:04:05"), kind,
			e.EntityType, e.EntityID, e.Actor.ID, e.Actor.Role, e.Description)
	}
	_ = tw.Flush()
}
