package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"

	"runserver.dev/cli/internal/application/ports"
)

const progressBarWidth = 30

// progressMsg reports transfer progress to the model
type progressMsg struct {
	done  int64
	total int64
}

// progressDoneMsg ends the progress program
type progressDoneMsg struct{}

// progressModel renders a single download progress bar
type progressModel struct {
	label    string
	done     int64
	total    int64
	finished bool
}

func newProgressModel(label string) progressModel {
	return progressModel{label: label, total: -1}
}

// Init implements tea.Model
func (m progressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.done = msg.done
		m.total = msg.total
		return m, nil

	case progressDoneMsg:
		m.finished = true
		return m, tea.Quit

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model
func (m progressModel) View() string {
	if m.finished {
		return ""
	}

	label := titleStyle.Render(m.label)
	if m.total <= 0 {
		return fmt.Sprintf("%s %s\n", label, formatSize(m.done))
	}

	ratio := float64(m.done) / float64(m.total)
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio * progressBarWidth)
	bar := successStyle.Render(strings.Repeat("█", filled)) + mutedStyle.Render(strings.Repeat("░", progressBarWidth-filled))

	return fmt.Sprintf("%s %s %s / %s %3.0f%%\n", label, bar, formatSize(m.done), formatSize(m.total), ratio*100)
}

// progressReporter feeds download progress to the terminal
type progressReporter interface {
	Progress(done, total int64)
	Finish()
}

// newProgressReporter returns an interactive bar on a terminal and a one-line
// summary otherwise. disabled suppresses both.
func newProgressReporter(w io.Writer, label string, disabled bool) progressReporter {
	if disabled {
		return nopProgress{}
	}
	if isTerminal(w) {
		return newTeaProgress(w, label)
	}
	return &plainProgress{w: w, label: label}
}

// progressFunc adapts a reporter to the port callback
func progressFunc(r progressReporter) ports.ProgressFunc {
	if _, ok := r.(nopProgress); ok {
		return nil
	}
	return r.Progress
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type nopProgress struct{}

func (nopProgress) Progress(int64, int64) {}
func (nopProgress) Finish()               {}

// plainProgress prints a summary once the transfer is over
type plainProgress struct {
	w     io.Writer
	label string

	mu       sync.Mutex
	done     int64
	total    int64
	seen     bool
	finished bool
}

func (p *plainProgress) Progress(done, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished {
		return
	}
	p.done, p.total, p.seen = done, total, true
}

func (p *plainProgress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.finished || !p.seen {
		p.finished = true
		return
	}
	p.finished = true
	fmt.Fprintf(p.w, "%s: downloaded %s\n", p.label, formatSize(p.done))
}

// teaProgress runs progressModel in a bubbletea program. The program starts
// with the first progress report, so a cache hit never touches the terminal.
type teaProgress struct {
	w     io.Writer
	label string

	mu       sync.Mutex
	program  *tea.Program
	exited   chan struct{}
	finished bool
}

func newTeaProgress(w io.Writer, label string) *teaProgress {
	return &teaProgress{w: w, label: label}
}

func (p *teaProgress) Progress(done, total int64) {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	if p.program == nil {
		p.program = tea.NewProgram(newProgressModel(p.label), tea.WithOutput(p.w), tea.WithInput(nil))
		p.exited = make(chan struct{})
		go func(program *tea.Program, exited chan struct{}) {
			defer close(exited)
			program.Run()
		}(p.program, p.exited)
	}
	program := p.program
	p.mu.Unlock()

	program.Send(progressMsg{done: done, total: total})
}

// Finish stops the program and waits until it has restored the terminal
func (p *teaProgress) Finish() {
	p.mu.Lock()
	if p.finished {
		p.mu.Unlock()
		return
	}
	p.finished = true
	program, exited := p.program, p.exited
	p.mu.Unlock()

	if program == nil {
		return
	}
	program.Send(progressDoneMsg{})
	<-exited
}
