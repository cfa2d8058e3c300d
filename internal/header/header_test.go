package header

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nconklindev/mergeline/internal/types"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Lowercase and spaces", "Company Name", "company_name"},
		{"Leading digit", "3rd Party Risk", "col_3rd_party_risk"},
		{"Hyphen", "Up - Supplier", "up_supplier"},
		{"Punctuation", "Score (%): [final]", "score_final"},
		{"Surrounding whitespace", "  Email  ", "email"},
		{"Line break inside cell", "Company\nName", "companyname"},
		{"Tab inside cell", "Contact\tEmail", "contactemail"},
		{"Collapse underscores", "a__b___c", "a_b_c"},
		{"Non-ASCII letters kept", "Région", "région"},
		{"Only symbols", "%%%", ""},
		{"Blank", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestNormalizeNameIsStable(t *testing.T) {
	for _, s := range []string{"Company Name", "3rd Party Risk", "Score (%)"} {
		once := NormalizeName(s)
		assert.Equal(t, once, NormalizeName(once))
	}
}

func cells(values ...string) []types.Cell {
	out := make([]types.Cell, len(values))
	for i, v := range values {
		out[i] = types.ParseCell(v)
	}
	return out
}

func TestNormalizeColumns(t *testing.T) {
	tests := []struct {
		name     string
		header   []string
		width    int
		expected []string
	}{
		{
			name:     "Placeholder and duplicates",
			header:   []string{"3rd Party Risk", "Score", "score", "Name", ""},
			width:    5,
			expected: []string{"col_3rd_party_risk", "score", "score_1", "name", "column_4"},
		},
		{
			name:     "Suffix collides with later literal",
			header:   []string{"score", "score", "score_1"},
			width:    3,
			expected: []string{"score", "score_1", "score_1_1"},
		},
		{
			name:     "Widened to table width",
			header:   []string{"a"},
			width:    3,
			expected: []string{"a", "column_1", "column_2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeColumns(cells(tt.header...), tt.width))
		})
	}
}

func TestLocate(t *testing.T) {
	tests := []struct {
		name  string
		rows  [][]string
		index int
		rule  Rule
	}{
		{
			name: "Keyword row below free text",
			rows: [][]string{
				{"Quarterly supplier export, generated by portal", "", ""},
				{"Company", "Name", "Email"},
				{"Acme", "Jane", "j@acme.io"},
			},
			index: 1,
			rule:  RuleKeyword,
		},
		{
			name: "Heuristic row",
			rows: [][]string{
				{"", "", "", "42"},
				{"region", "tier", "score", "notes"},
				{"north", "1", "3", "ok"},
			},
			index: 1,
			rule:  RuleHeuristic,
		},
		{
			name: "Default to first row",
			rows: [][]string{
				{"1", "2", "3"},
				{"4", "5", "6"},
			},
			index: 0,
			rule:  RuleDefault,
		},
		{
			name:  "Keyword beyond scan window ignored",
			rows:  append(make12Numeric(), []string{"company", "name", "email"}),
			index: 0,
			rule:  RuleDefault,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, rule := NewLocator().Locate(types.NewRawTable(tt.rows))
			assert.Equal(t, tt.index, idx)
			assert.Equal(t, tt.rule, rule)
		})
	}
}

func make12Numeric() [][]string {
	rows := make([][]string, 12)
	for i := range rows {
		rows[i] = []string{"1", "2", "3"}
	}
	return rows
}

func TestNormalize(t *testing.T) {
	raw := types.NewRawTable([][]string{
		{"Supplier survey"},
		{"Company Name", "Contact Name", "Email", "Score", "Score"},
		{"Acme", "Jane", "a@acme.io", "10", "n/a"},
		{"Globex", "", "", "7"},
	})

	res := Normalize(raw, nil)
	assert.Equal(t, 1, res.HeaderRow)
	assert.Equal(t, RuleKeyword, res.Rule)
	assert.Equal(t, []string{"company_name", "contact_name", "email", "score", "score_1"}, res.Table.Columns)
	require.Len(t, res.Table.Rows, 2)

	globex := res.Table.Rows[1]
	assert.Equal(t, "Globex", globex.Get("company_name").String())
	assert.True(t, globex.Get("score_1").IsEmpty())
	_, ok := globex["score_1"]
	assert.True(t, ok)

	assert.Contains(t, res.Renames, Rename{From: "Company Name", To: "company_name"})
	assert.Empty(t, res.Conflicts)
}

func TestCoerceConflicts(t *testing.T) {
	table := &types.Table{
		Columns: []string{"id", "zip"},
		Rows: []types.Row{
			{"id": types.ParseCell("1"), "zip": types.ParseCell("02110")},
			{"id": types.ParseCell("2"), "zip": types.ParseCell("SW1A 1AA")},
			{"id": types.ParseCell("3"), "zip": types.ParseCell("")},
		},
	}

	assert.Equal(t, []string{"zip"}, CoerceConflicts(table))
	assert.Equal(t, types.CellText, table.Rows[0]["zip"].Kind)
	assert.Equal(t, "02110", table.Rows[0]["zip"].String())
	assert.True(t, table.Rows[2]["zip"].IsEmpty())
	assert.Equal(t, types.CellNumber, table.Rows[0]["id"].Kind)
}
