package types

import "time"

// State is a step of a single ingestion run.
type State string

const (
	StatePending     State = "PENDING"
	StateLoading     State = "LOADING"
	StateLoaded      State = "LOADED"
	StateNormalizing State = "NORMALIZING"
	StateMerging     State = "MERGING"
	StatePersisted   State = "PERSISTED"
	StateLogged      State = "LOGGED"
	StateFailed      State = "FAILED"
)

var transitions = map[State][]State{
	StatePending:     {StateLoading},
	StateLoading:     {StateLoaded, StateFailed},
	StateLoaded:      {StateNormalizing},
	StateNormalizing: {StateMerging},
	StateMerging:     {StatePersisted, StateFailed},
	StatePersisted:   {StateLogged},
}

// CanTransition reports whether a run may move from s to next.
func (s State) CanTransition(next State) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateLogged || s == StateFailed
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Record is the audit entry for one ingestion run.
type Record struct {
	RunID         string        `json:"run_id"`
	Source        string        `json:"source"`
	Path          string        `json:"path"`
	Format        Format        `json:"format,omitempty"`
	Encoding      string        `json:"encoding,omitempty"`
	Delimiter     string        `json:"delimiter,omitempty"`
	HeaderRow     int           `json:"header_row"`
	HeaderRule    string        `json:"header_rule,omitempty"`
	RowsLoaded    int           `json:"rows_loaded"`
	RowsAdded     int           `json:"rows_added"`
	RowsUpdated   int           `json:"rows_updated"`
	RowsUnchanged int           `json:"rows_unchanged"`
	RowsDropped   int           `json:"rows_dropped"`
	ColumnsAdded  []string      `json:"columns_added"`
	TotalRows     int           `json:"total_rows"`
	TotalColumns  int           `json:"total_columns"`
	BackupPath    string        `json:"backup_path,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
	Status        Status        `json:"status"`
	State         State         `json:"state"`
	ErrorKind     string        `json:"error_kind,omitempty"`
	Error         string        `json:"error,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	Duration      time.Duration `json:"duration"`
}

// Summary aggregates the records of a directory-level batch.
type Summary struct {
	Directory        string    `json:"directory"`
	Pattern          string    `json:"pattern"`
	TotalFiles       int       `json:"total_files"`
	Successful       int       `json:"successful"`
	Failed           int       `json:"failed"`
	Skipped          int       `json:"skipped"`
	TotalRowsAdded   int       `json:"total_rows_added"`
	TotalRowsUpdated int       `json:"total_rows_updated"`
	TotalRowsDropped int       `json:"total_rows_dropped"`
	ColumnsAdded     []string  `json:"columns_added"`
	FinalRows        int       `json:"final_rows"`
	FinalColumns     int       `json:"final_columns"`
	Errors           []string  `json:"errors"`
	Files            []*Record `json:"files"`
}
