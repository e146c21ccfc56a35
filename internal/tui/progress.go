// Package tui shows the progress of a running ensemble.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/dtwa/internal/ensemble"
	"github.com/san-kum/dtwa/internal/observables"
	"github.com/san-kum/dtwa/internal/viz"
)

var ErrInterrupted = errors.New("tui: run interrupted")

// TrajectoryMsg carries one finished trajectory into the program.
type TrajectoryMsg ensemble.TrajectoryEvent

// DoneMsg ends the program.
type DoneMsg struct {
	Err error
}

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type rankProgress struct {
	done  int
	local int
}

// Progress is the bubbletea model of a run.
type Progress struct {
	title    string
	total    int
	done     int
	diverged int
	steps    int
	rejected int
	forced   int
	ranks    map[int]rankProgress

	started time.Time
	now     time.Time
	frame   int
	width   int

	finished    bool
	interrupted bool
	err         error
}

func NewProgress(title string, total int) Progress {
	now := time.Now()
	return Progress{
		title:   title,
		total:   total,
		ranks:   make(map[int]rankProgress),
		started: now,
		now:     now,
		width:   80,
	}
}

func (m Progress) Init() tea.Cmd { return tick() }

func (m Progress) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.interrupted = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case TrajectoryMsg:
		m.done++
		m.steps += msg.Info.Steps
		m.rejected += msg.Info.Rejected
		m.forced += msg.Info.Forced
		if msg.Diverged {
			m.diverged++
		}
		m.ranks[msg.Rank] = rankProgress{done: msg.Done, local: msg.Local}
	case tickMsg:
		m.frame++
		m.now = time.Time(msg)
		if !m.finished {
			return m, tick()
		}
	case DoneMsg:
		m.finished = true
		m.err = msg.Err
		m.now = time.Now()
		return m, tea.Quit
	}
	return m, nil
}

func (m Progress) fraction() float64 {
	if m.total <= 0 {
		return 0
	}
	return float64(m.done) / float64(m.total)
}

func (m Progress) View() string {
	var b strings.Builder
	barWidth := min(max(m.width-30, 10), 60)

	status := viz.StatusRunning.Render(viz.AnimatedSpinner(m.frame) + " running")
	switch {
	case m.err != nil:
		status = viz.StatusFailed.Render("✗ failed")
	case m.finished:
		status = viz.StatusDone.Render("✓ done")
	case m.interrupted:
		status = viz.StatusFailed.Render("interrupted")
	}
	b.WriteString(viz.Title.Render(m.title) + "  " + status + "\n\n")

	b.WriteString(viz.ProgressBar(m.fraction(), barWidth))
	b.WriteString(viz.MetricValue.Render(fmt.Sprintf(" %d/%d", m.done, m.total)))
	b.WriteString(viz.Subtle.Render(fmt.Sprintf("  %s", m.now.Sub(m.started).Round(100*time.Millisecond))) + "\n\n")

	ranks := make([]int, 0, len(m.ranks))
	for r := range m.ranks {
		ranks = append(ranks, r)
	}
	sort.Ints(ranks)
	for _, r := range ranks {
		p := m.ranks[r]
		frac := 0.0
		if p.local > 0 {
			frac = float64(p.done) / float64(p.local)
		}
		b.WriteString(viz.MetricLabel.Render(fmt.Sprintf("rank %-4d", r)) +
			viz.ProgressBar(frac, barWidth/2) +
			viz.Subtle.Render(fmt.Sprintf(" %d/%d", p.done, p.local)) + "\n")
	}

	b.WriteString("\n")
	b.WriteString(viz.MetricLabel.Render("steps ") + viz.MetricValue.Render(fmt.Sprintf("%d", m.steps)))
	b.WriteString(viz.MetricLabel.Render("  rejected ") + viz.MetricValue.Render(fmt.Sprintf("%d", m.rejected)))
	b.WriteString(viz.MetricLabel.Render("  forced ") + viz.MetricValue.Render(fmt.Sprintf("%d", m.forced)))
	b.WriteString(viz.MetricLabel.Render("  diverged ") + viz.MetricValue.Render(fmt.Sprintf("%d", m.diverged)) + "\n")
	if m.err != nil {
		b.WriteString("\n" + viz.StatusFailed.Render(m.err.Error()) + "\n")
	}
	if !m.finished {
		b.WriteString("\n" + viz.KeyHint.Render("q to abort") + "\n")
	}
	return b.String()
}

// Observer forwards trajectory events into p. It is safe for concurrent
// use by every in-process rank.
func Observer(p *tea.Program) ensemble.Observer {
	return ensemble.ObserverFunc(func(ev ensemble.TrajectoryEvent) {
		p.Send(TrajectoryMsg(ev))
	})
}

// Run shows the progress of work until it returns or the user aborts, in
// which case the context passed to work is cancelled. A nil in disables
// keyboard input.
func Run(ctx context.Context, in io.Reader, out io.Writer, title string, total int, work func(ctx context.Context, obs ensemble.Observer) (*observables.Dataset, error)) (*observables.Dataset, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewProgress(title, total), tea.WithInput(in), tea.WithOutput(out), tea.WithContext(ctx))

	var (
		data    *observables.Dataset
		workErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		data, workErr = work(ctx, Observer(p))
		p.Send(DoneMsg{Err: workErr})
	}()

	final, err := p.Run()
	cancel()
	<-done

	if m, ok := final.(Progress); ok && m.interrupted && !m.finished {
		return nil, ErrInterrupted
	}
	if workErr != nil {
		return nil, workErr
	}
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return nil, err
	}
	return data, nil
}
