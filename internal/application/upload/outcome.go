package upload

// Outcome is the terminal state of one processed row. Every row produces
// exactly one outcome.
type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeUpdated  Outcome = "updated"
	OutcomeUptodate Outcome = "uptodate"
	OutcomeRenamed  Outcome = "renamed"
	OutcomeDeleted  Outcome = "deleted"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeErrored  Outcome = "errored"
)

// RowOutcome pairs a row's terminal state with its audit trail.
type RowOutcome struct {
	Line     int          `json:"line"`
	Username string       `json:"username"`
	Outcome  Outcome      `json:"outcome"`
	Marked   bool         `json:"marked,omitempty"`
	Trail    []AuditEntry `json:"trail,omitempty"`
}

// Report summarizes one processed upload batch.
type Report struct {
	Total    int          `json:"total"`
	Created  int          `json:"created"`
	Updated  int          `json:"updated"`
	Uptodate int          `json:"uptodate"`
	Renamed  int          `json:"renamed"`
	Deleted  int          `json:"deleted"`
	Skipped  int          `json:"skipped"`
	Errored  int          `json:"errored"`
	Marked   int          `json:"marked"`
	Weak     int          `json:"weak_passwords"`
	Rows     []RowOutcome `json:"rows"`
}

func (r *Report) add(ro RowOutcome) {
	r.Total++
	r.Rows = append(r.Rows, ro)
	if ro.Marked {
		r.Marked++
	}

	switch ro.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeUptodate:
		r.Uptodate++
	case OutcomeRenamed:
		r.Renamed++
	case OutcomeDeleted:
		r.Deleted++
	case OutcomeSkipped:
		r.Skipped++
	case OutcomeErrored:
		r.Errored++
	}
}
