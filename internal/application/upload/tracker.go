// Package upload implements bulk identity reconciliation: parsing upload
// rows, merging them into the identity store under tenant scoping rules,
// and applying group membership, enrolments and roles afterwards.
package upload

// Severity of an audit entry.
type Severity string

const (
	// SeverityNormal marks a plain value echo, the default annotation for a
	// column taken from the file before any decision about it is made.
	SeverityNormal  Severity = "normal"
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// AuditEntry is one annotation on a row's audit trail.
type AuditEntry struct {
	Field        string   `json:"field,omitempty"`
	Message      string   `json:"message"`
	Severity     Severity `json:"severity"`
	Overwritable bool     `json:"-"`
}

// Tracker accumulates the audit trail for a single row. Track never fails;
// an entry with an empty field name is a free-form annotation.
type Tracker struct {
	entries []AuditEntry
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Track appends an entry. When overwritable is true and the latest entry for
// the same field is itself overwritable, that entry is replaced instead.
func (t *Tracker) Track(field, message string, severity Severity, overwritable bool) {
	entry := AuditEntry{
		Field:        field,
		Message:      message,
		Severity:     severity,
		Overwritable: overwritable,
	}

	if overwritable && field != "" {
		for i := len(t.entries) - 1; i >= 0; i-- {
			if t.entries[i].Field != field {
				continue
			}
			if t.entries[i].Overwritable {
				t.entries[i] = entry
				return
			}
			break
		}
	}

	t.entries = append(t.entries, entry)
}

// Normal records a value echo that later entries for the field may replace.
func (t *Tracker) Normal(field, message string) {
	t.Track(field, message, SeverityNormal, true)
}

// Info records an info entry that later entries for the field may replace.
func (t *Tracker) Info(field, message string) {
	t.Track(field, message, SeverityInfo, true)
}

// Warn records a permanent warning entry.
func (t *Tracker) Warn(field, message string) {
	t.Track(field, message, SeverityWarning, false)
}

// Error records a permanent error entry.
func (t *Tracker) Error(field, message string) {
	t.Track(field, message, SeverityError, false)
}

// Entries returns the trail in recording order.
func (t *Tracker) Entries() []AuditEntry {
	return t.entries
}

// HasErrors reports whether any entry has error severity.
func (t *Tracker) HasErrors() bool {
	for _, e := range t.entries {
		if e.Severity == SeverityError {
			return true
		}
	}
	return false
}
