package viz

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/dtwa/internal/observables"
	"github.com/san-kum/dtwa/internal/storage"
)

const sparkWidth = 32

func row(label, value string) string {
	return MetricLabel.Render(fmt.Sprintf("%-14s", label)) + MetricValue.Render(value)
}

func vec(v [3]float64) string {
	return fmt.Sprintf("(%g, %g, %g)", v[0], v[1], v[2])
}

// RunPanel renders the parameters of a run and, when data is not nil, the
// final value and a sparkline of every channel.
func RunPanel(meta storage.RunMetadata, data *observables.Dataset) string {
	var b strings.Builder
	b.WriteString(Title.Render("run "+meta.ID) + "\n")
	if !meta.Timestamp.IsZero() {
		b.WriteString(Subtle.Render(meta.Timestamp.Format("2006-01-02 15:04:05")) + "\n")
	}
	b.WriteString("\n")

	lines := []string{
		row("sites", fmt.Sprintf("%d", meta.Sites)),
		row("alpha", fmt.Sprintf("%g", meta.Alpha)),
		row("J", vec(meta.J)),
		row("h", vec(meta.H)),
		row("kac", fmt.Sprintf("%t", meta.Kac)),
		row("trajectories", fmt.Sprintf("%d on %d rank(s)", meta.Trajectories, meta.Ranks)),
		row("sampling", meta.Sampling),
		row("integrator", meta.Integrator),
		row("normalization", meta.Normalization),
		row("time", meta.Time),
	}
	if meta.Preset != "" {
		lines = append([]string{row("preset", meta.Preset)}, lines...)
	}
	b.WriteString(strings.Join(lines, "\n"))

	if data != nil && data.Len() > 0 {
		b.WriteString("\n\n" + Separator(sparkWidth+28) + "\n\n")
		last := data.Len() - 1
		for c, name := range data.Columns() {
			if name == "t" {
				continue
			}
			series := data.Series()[c]
			b.WriteString(MetricLabel.Render(fmt.Sprintf("%-8s", name)) +
				SparklineChart(series, sparkWidth) + " " +
				MetricValue.Render(fmt.Sprintf("%12.5g", series[last])) + "\n")
		}
	}

	return Panel.Render(strings.TrimRight(b.String(), "\n"))
}

// RunTable lists stored runs one per line.
func RunTable(runs []storage.RunMetadata) string {
	if len(runs) == 0 {
		return Subtle.Render("no runs")
	}
	var b strings.Builder
	header := fmt.Sprintf("%-36s  %-19s  %5s  %8s  %5s  %-8s  %s", "ID", "TIME", "N", "NT", "P", "SAMPLING", "PRESET")
	b.WriteString(HeaderStyle.Render(header) + "\n")
	for _, r := range runs {
		b.WriteString(fmt.Sprintf("%-36s  %-19s  %5d  %8d  %5d  %-8s  %s\n",
			r.ID, r.Timestamp.Format("2006-01-02 15:04:05"), r.Sites, r.Trajectories, r.Ranks, r.Sampling, r.Preset))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Banner is the header printed before a run.
func Banner(text string) string {
	return lipgloss.NewStyle().Bold(true).Foreground(CurrentTheme.Accent).Render(text)
}
