// Package audit reports ingestion runs: a styled console stream for people,
// an append-only journal file for downstream tools, and batch aggregation.
//
// The journal holds two line kinds, told apart by the tag after the level:
// one INGESTION line per file run and one BATCH line per directory run.
// Per-run consumers should keep only the INGESTION lines.
package audit

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/nconklindev/mergeline/internal/types"
)

// Tag labels a console line.
type Tag string

const (
	TagLoad    Tag = "LOAD"
	TagSave    Tag = "SAVE"
	TagBackup  Tag = "BACKUP"
	TagError   Tag = "ERROR"
	TagWarning Tag = "WARNING"
	TagOK      Tag = "OK"
	TagInfo    Tag = "INFO"
	TagData    Tag = "DATA"
	TagSchema  Tag = "SCHEMA"
	TagSearch  Tag = "SEARCH"
)

var tagColors = map[Tag]string{
	TagLoad:    "#FFB84D",
	TagSave:    "#FF8C42",
	TagBackup:  "#FFB84D",
	TagError:   "#FF4757",
	TagWarning: "#FF9F5A",
	TagOK:      "#2ED573",
	TagInfo:    "#6B7280",
	TagData:    "#FFFFFF",
	TagSchema:  "#FF8C42",
	TagSearch:  "#6B7280",
}

// Console writes tagged human-readable lines. Colour is dropped when the
// writer is not a terminal or when disabled.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	styles map[Tag]lipgloss.Style
	text   lipgloss.Style
}

func NewConsole(w io.Writer, noColor bool) *Console {
	r := lipgloss.NewRenderer(w)
	if noColor {
		r.SetColorProfile(termenv.Ascii)
	}

	c := &Console{
		w:      w,
		styles: make(map[Tag]lipgloss.Style, len(tagColors)),
		text:   r.NewStyle(),
	}
	for tag, color := range tagColors {
		c.styles[tag] = r.NewStyle().Bold(true).Foreground(lipgloss.Color(color))
	}
	return c
}

// Discard is a console that writes nothing.
func Discard() *Console { return NewConsole(io.Discard, true) }

// Printf writes one tagged line.
func (c *Console) Printf(tag Tag, format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	label := c.styles[tag].Render("[" + string(tag) + "]")
	fmt.Fprintf(c.w, "%s %s\n", label, c.text.Render(fmt.Sprintf(format, args...)))
}

// Summary prints the batch summary with its error list.
func (c *Console) Summary(s *types.Summary) {
	c.Printf(TagInfo, "%s", strings.Repeat("=", 60))
	c.Printf(TagInfo, "Batch summary for %s (%s)", s.Directory, s.Pattern)
	c.Printf(TagInfo, "Files: %d total, %d successful, %d failed, %d skipped",
		s.TotalFiles, s.Successful, s.Failed, s.Skipped)
	c.Printf(TagData, "Rows: %d added, %d updated, %d dropped",
		s.TotalRowsAdded, s.TotalRowsUpdated, s.TotalRowsDropped)
	if len(s.ColumnsAdded) > 0 {
		c.Printf(TagSchema, "New columns: %s", strings.Join(s.ColumnsAdded, ", "))
	}
	c.Printf(TagData, "Master dataset: %d rows x %d columns", s.FinalRows, s.FinalColumns)
	for _, e := range s.Errors {
		c.Printf(TagError, "%s", e)
	}
	if s.Failed == 0 {
		c.Printf(TagOK, "Batch complete")
	}
}
