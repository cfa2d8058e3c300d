package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nconklindev/mergeline/internal/loader"
	"github.com/nconklindev/mergeline/internal/types"
)

// Ingester is the part of the ingestion engine the interactive mode drives.
type Ingester interface {
	Discover(dir, pattern string) ([]string, error)
	IngestFiles(ctx context.Context, dir, pattern string, files []string, progress chan<- float64) (*types.Summary, error)
}

type state int

const (
	stateFilePicker state = iota
	stateProcessing
	stateComplete
	stateError
)

type Model struct {
	ctx          context.Context
	ingester     Ingester
	pattern      string
	state        state
	filepicker   filepicker.Model
	target       string
	summary      *types.Summary
	err          error
	width        int
	height       int
	progress     progress.Model
	progressChan chan float64
	resultChan   chan batchResultMsg
}

type batchResultMsg struct {
	summary *types.Summary
	err     error
}

type batchCompleteMsg struct {
	summary *types.Summary
	err     error
}

type progressMsg float64

type waitForProgressMsg struct{}

// InitialModel opens the picker in dir. pattern filters whole-directory runs.
func InitialModel(ctx context.Context, ing Ingester, dir, pattern string) Model {
	fp := filepicker.New()
	fp.AllowedTypes = loader.SupportedExtensions()
	fp.CurrentDirectory = dir
	if fp.CurrentDirectory == "" {
		fp.CurrentDirectory, _ = os.Getwd()
	}

	fp.Styles = pickerStyles()

	prog := progress.New(progress.WithGradient(string(colorAccent), string(colorGlow)))

	return Model{
		ctx:        ctx,
		ingester:   ing,
		pattern:    pattern,
		state:      stateFilePicker,
		filepicker: fp,
		progress:   prog,
	}
}

func (m Model) Init() tea.Cmd {
	return m.filepicker.Init()
}

// Summary returns the outcome of the batch, or nil if none ran.
func (m Model) Summary() *types.Summary { return m.summary }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		// Leave room for title, subtitle and help text
		height := msg.Height - 14
		if height < 5 {
			height = 5
		}
		m.filepicker.SetHeight(height)
		m.progress.Width = min(max(msg.Width-12, 20), 80)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case stateFilePicker:
			switch msg.String() {
			case "ctrl+c", "q":
				return m, tea.Quit
			case "a":
				return m.ingestDirectory(m.filepicker.CurrentDirectory)
			}

		case stateComplete, stateError:
			switch msg.String() {
			case "ctrl+c", "q", "enter", "esc":
				return m, tea.Quit
			}
		}

	case batchCompleteMsg:
		m.summary = msg.summary
		if msg.err != nil {
			m.err = msg.err
			m.state = stateError
			return m, nil
		}
		m.state = stateComplete
		return m, nil

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case progressMsg:
		if m.state == stateProcessing {
			cmd := m.progress.SetPercent(float64(msg))
			return m, tea.Batch(cmd, waitForProgress(m.progressChan, m.resultChan))
		}
		return m, nil

	case waitForProgressMsg:
		return m, waitForProgress(m.progressChan, m.resultChan)
	}

	if m.state == stateFilePicker {
		var cmd tea.Cmd
		m.filepicker, cmd = m.filepicker.Update(msg)

		if didSelect, path := m.filepicker.DidSelectFile(msg); didSelect {
			return m.ingest(filepath.Dir(path), filepath.Base(path), []string{path})
		}
		return m, cmd
	}

	return m, nil
}

func (m Model) ingestDirectory(dir string) (Model, tea.Cmd) {
	files, err := m.ingester.Discover(dir, m.pattern)
	if err != nil {
		m.err = err
		m.state = stateError
		return m, nil
	}
	if len(files) == 0 {
		m.err = fmt.Errorf("no ingestible files in %s matching %s", dir, m.pattern)
		m.state = stateError
		return m, nil
	}
	return m.ingest(dir, m.pattern, files)
}

func (m Model) ingest(dir, pattern string, files []string) (Model, tea.Cmd) {
	m.state = stateProcessing
	m.target = dir
	if len(files) == 1 {
		m.target = files[0]
	}
	m.progressChan = make(chan float64, 100)
	m.resultChan = make(chan batchResultMsg, 1)

	// Capture channels for the goroutine
	progressChan := m.progressChan
	resultChan := m.resultChan
	ctx := m.ctx
	ing := m.ingester

	cmd := tea.Batch(
		func() tea.Msg {
			go func() {
				summary, err := ing.IngestFiles(ctx, dir, pattern, files, progressChan)
				resultChan <- batchResultMsg{summary: summary, err: err}
				close(progressChan)
				close(resultChan)
			}()
			return waitForProgressMsg{}
		},
		m.progress.Init(),
	)
	return m, cmd
}

func waitForProgress(progressChan chan float64, resultChan chan batchResultMsg) tea.Cmd {
	return func() tea.Msg {
		if progressChan == nil {
			return nil
		}

		p, ok := <-progressChan
		if !ok {
			// Progress channel closed, check result
			res, ok := <-resultChan
			if ok {
				return batchCompleteMsg(res)
			}
			return nil
		}
		return progressMsg(p)
	}
}

func (m Model) View() string {
	switch m.state {
	case stateFilePicker:
		return m.viewFilePicker()
	case stateProcessing:
		return m.viewProcessing()
	case stateComplete:
		return m.viewComplete()
	case stateError:
		return m.viewError()
	}
	return ""
}

func (m Model) viewFilePicker() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("mergeline - Master Dataset Ingestion"))
	s.WriteString("\n")
	s.WriteString(SubtitleStyle.Render(fmt.Sprintf("Select a file to ingest, or press a to ingest %s", m.pattern)))
	s.WriteString("\n\n")
	s.WriteString(m.filepicker.View())
	s.WriteString("\n\n")
	s.WriteString(HelpStyle.Render("enter: ingest file • a: ingest directory • q: quit"))

	return s.String()
}

func (m Model) viewProcessing() string {
	var s strings.Builder

	s.WriteString(TitleStyle.Render("Ingesting..."))
	s.WriteString("\n\n")
	s.WriteString(truncatePath(m.target, m.width))
	s.WriteString("\n\n")
	s.WriteString(m.progress.View())

	return BoxStyle.Render(s.String())
}

func (m Model) viewComplete() string {
	var s strings.Builder
	sum := m.summary

	title := "✓ Ingestion Complete"
	if sum.Failed > 0 {
		title = "Ingestion finished with errors"
	}
	s.WriteString(TitleStyle.Render(title))
	s.WriteString("\n\n")

	stat := func(label, value string) {
		s.WriteString(StatLabelStyle.Render(label))
		s.WriteString(value)
		s.WriteString("\n")
	}
	stat("Source", truncatePath(m.target, m.width))

	files := fmt.Sprintf("%d total, %d successful", sum.TotalFiles, sum.Successful)
	if sum.Failed > 0 {
		files += ", " + FailedStyle.Render(fmt.Sprintf("%d failed", sum.Failed))
	}
	if sum.Skipped > 0 {
		files += ", " + SkippedStyle.Render(fmt.Sprintf("%d skipped", sum.Skipped))
	}
	stat("Files", files)
	stat("Rows", RowsStyle.Render(fmt.Sprintf("%d added, %d updated, %d dropped",
		sum.TotalRowsAdded, sum.TotalRowsUpdated, sum.TotalRowsDropped)))
	if len(sum.ColumnsAdded) > 0 {
		stat("Columns", ColumnsStyle.Render("+ "+strings.Join(sum.ColumnsAdded, ", ")))
	}
	stat("Master", fmt.Sprintf("%d rows x %d columns", sum.FinalRows, sum.FinalColumns))

	if len(sum.Errors) > 0 {
		s.WriteString("\n")
	}
	for _, e := range sum.Errors {
		s.WriteString(FailedStyle.Render("✗ " + e))
		s.WriteString("\n")
	}
	s.WriteString(HelpStyle.Render("Press enter to exit"))

	return BoxStyle.Render(s.String())
}

func (m Model) viewError() string {
	var s strings.Builder

	s.WriteString(FailedStyle.Render("✗ Ingestion could not start"))
	s.WriteString("\n\n")
	s.WriteString(m.err.Error())
	s.WriteString("\n\n")
	s.WriteString(HelpStyle.Render("Press enter to exit"))

	return BoxStyle.Render(s.String())
}

// truncatePath shortens long paths from the left to fit the window.
func truncatePath(p string, width int) string {
	maxLen := width - 20
	if maxLen < 30 {
		maxLen = 30
	}
	if len(p) > maxLen {
		return "..." + p[len(p)-maxLen+3:]
	}
	return p
}
