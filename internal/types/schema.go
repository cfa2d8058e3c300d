package types

import "time"

// SchemaColumn is one entry of the schema registry.
type SchemaColumn struct {
	Name      string
	FirstSeen time.Time
	Source    string
}

// Schema is the ordered set of every canonical column ever observed.
// It only grows.
type Schema struct {
	Columns []SchemaColumn
	index   map[string]int
}

func NewSchema(cols ...SchemaColumn) *Schema {
	s := &Schema{}
	for _, c := range cols {
		s.Add(c)
	}
	return s
}

func (s *Schema) Has(name string) bool {
	if s.index == nil {
		s.reindex()
	}
	_, ok := s.index[name]
	return ok
}

// Add appends a column unless it is already present.
func (s *Schema) Add(c SchemaColumn) bool {
	if s.Has(c.Name) {
		return false
	}
	s.index[c.Name] = len(s.Columns)
	s.Columns = append(s.Columns, c)
	return true
}

func (s *Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

func (s *Schema) Len() int { return len(s.Columns) }

func (s *Schema) reindex() {
	s.index = make(map[string]int, len(s.Columns))
	for i, c := range s.Columns {
		s.index[c.Name] = i
	}
}
