// Package header finds the header row of a raw table and turns its cells
// into canonical column names.
package header

import (
	"strings"

	"github.com/nconklindev/mergeline/internal/types"
)

// Rule names the signal that selected a header row.
type Rule string

const (
	RuleKeyword   Rule = "keyword"
	RuleHeuristic Rule = "heuristic"
	RuleDefault   Rule = "default"
)

const (
	DefaultScanRows         = 10
	DefaultKeywordThreshold = 3

	textRatio     = 0.7
	nonEmptyRatio = 0.5
)

// DefaultKeywords are matched as lowercase substrings of header cells.
var DefaultKeywords = []string{"company", "name", "email", "submitdate", "up -", "in -", "do -"}

// Locator picks the header row of a raw table.
type Locator struct {
	ScanRows         int
	Keywords         []string
	KeywordThreshold int
}

func NewLocator() *Locator {
	return &Locator{
		ScanRows:         DefaultScanRows,
		Keywords:         DefaultKeywords,
		KeywordThreshold: DefaultKeywordThreshold,
	}
}

// Locate returns the header row index and the rule that chose it. The
// first row reaching the keyword threshold wins outright; otherwise the
// first row that looks textual enough; otherwise row 0.
func (l *Locator) Locate(raw *types.RawTable) (int, Rule) {
	limit := min(l.scanRows(), len(raw.Rows))
	width := raw.Width()

	heuristic := -1
	for i := 0; i < limit; i++ {
		row := raw.Rows[i]
		if l.keywordMatches(row) >= l.threshold() {
			return i, RuleKeyword
		}
		if heuristic < 0 && looksLikeHeader(row, width) {
			heuristic = i
		}
	}
	if heuristic >= 0 {
		return heuristic, RuleHeuristic
	}
	return 0, RuleDefault
}

// keywordMatches counts cells containing at least one keyword.
func (l *Locator) keywordMatches(row []types.Cell) int {
	n := 0
	for _, c := range row {
		if c.IsEmpty() {
			continue
		}
		text := strings.ToLower(c.String())
		for _, kw := range l.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				n++
				break
			}
		}
	}
	return n
}

func looksLikeHeader(row []types.Cell, width int) bool {
	if width == 0 {
		return false
	}
	text, nonEmpty := 0, 0
	for _, c := range row {
		switch c.Kind {
		case types.CellText:
			text++
			nonEmpty++
		case types.CellNumber:
			nonEmpty++
		}
	}
	w := float64(width)
	return float64(text) > textRatio*w && float64(nonEmpty) > nonEmptyRatio*w
}

func (l *Locator) scanRows() int {
	if l.ScanRows <= 0 {
		return DefaultScanRows
	}
	return l.ScanRows
}

func (l *Locator) threshold() int {
	if l.KeywordThreshold <= 0 {
		return DefaultKeywordThreshold
	}
	return l.KeywordThreshold
}
