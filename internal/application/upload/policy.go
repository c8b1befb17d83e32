package upload

import (
	"fmt"
)

// OperationPolicy decides what an upload batch may do with each row.
type OperationPolicy int

const (
	// AddNew creates identities and skips rows matching an existing one.
	AddNew OperationPolicy = iota
	// AddIncrement creates identities, appending a numeric suffix to the
	// username when it is already taken.
	AddIncrement
	// AddOrUpdate creates new identities and updates existing ones.
	AddOrUpdate
	// UpdateOnly updates existing identities and skips unknown usernames.
	UpdateOnly
)

// ParseOperationPolicy parses the configuration form of an operation policy.
func ParseOperationPolicy(s string) (OperationPolicy, error) {
	switch s {
	case "addnew":
		return AddNew, nil
	case "addinc":
		return AddIncrement, nil
	case "addupdate":
		return AddOrUpdate, nil
	case "update":
		return UpdateOnly, nil
	}
	return 0, fmt.Errorf("unknown operation policy %q", s)
}

func (p OperationPolicy) String() string {
	switch p {
	case AddNew:
		return "addnew"
	case AddIncrement:
		return "addinc"
	case AddOrUpdate:
		return "addupdate"
	case UpdateOnly:
		return "update"
	}
	return "unknown"
}

// UpdatePolicy decides which fields of an existing identity a row may change.
type UpdatePolicy int

const (
	// NoChanges performs no field merge on existing identities.
	NoChanges UpdatePolicy = iota
	// FileOverride overwrites with file values, leaving form-level defaults
	// in charge of fields they already populated.
	FileOverride
	// AllOverride always overwrites from the merged row.
	AllOverride
	// MissingOnly only fills fields currently empty on the target.
	MissingOnly
)

// ParseUpdatePolicy parses the configuration form of an update policy.
func ParseUpdatePolicy(s string) (UpdatePolicy, error) {
	switch s {
	case "nochanges":
		return NoChanges, nil
	case "fileoverride":
		return FileOverride, nil
	case "alloverride":
		return AllOverride, nil
	case "missingonly":
		return MissingOnly, nil
	}
	return 0, fmt.Errorf("unknown update policy %q", s)
}

func (p UpdatePolicy) String() string {
	switch p {
	case NoChanges:
		return "nochanges"
	case FileOverride:
		return "fileoverride"
	case AllOverride:
		return "alloverride"
	case MissingOnly:
		return "missingonly"
	}
	return "unknown"
}

// PasswordResetPolicy decides which uploaded passwords force a change on
// next login.
type PasswordResetPolicy int

const (
	// ResetNone never forces a password change.
	ResetNone PasswordResetPolicy = iota
	// ResetWeak forces a change when the uploaded password is weak.
	ResetWeak
	// ResetAll forces a change for every uploaded password.
	ResetAll
)

// ParsePasswordResetPolicy parses the configuration form of a reset policy.
func ParsePasswordResetPolicy(s string) (PasswordResetPolicy, error) {
	switch s {
	case "none":
		return ResetNone, nil
	case "weak":
		return ResetWeak, nil
	case "all":
		return ResetAll, nil
	}
	return 0, fmt.Errorf("unknown password reset policy %q", s)
}

// MarkPolicy selects which processed rows are flagged for follow-up bulk
// actions on the batch result.
type MarkPolicy int

const (
	// MarkNone flags no rows.
	MarkNone MarkPolicy = iota
	// MarkAll flags every row that landed on an identity.
	MarkAll
	// MarkNew flags created identities only.
	MarkNew
	// MarkUpdated flags updated and renamed identities.
	MarkUpdated
)

// ParseMarkPolicy parses the configuration form of a mark policy.
func ParseMarkPolicy(s string) (MarkPolicy, error) {
	switch s {
	case "none":
		return MarkNone, nil
	case "all":
		return MarkAll, nil
	case "new":
		return MarkNew, nil
	case "updated":
		return MarkUpdated, nil
	}
	return 0, fmt.Errorf("unknown mark policy %q", s)
}

func (p MarkPolicy) String() string {
	switch p {
	case MarkNone:
		return "none"
	case MarkAll:
		return "all"
	case MarkNew:
		return "new"
	case MarkUpdated:
		return "updated"
	}
	return "unknown"
}

// selects reports whether a row with the given outcome gets the mark.
func (p MarkPolicy) selects(o Outcome) bool {
	switch p {
	case MarkAll:
		return o == OutcomeCreated || o == OutcomeUpdated || o == OutcomeUptodate || o == OutcomeRenamed
	case MarkNew:
		return o == OutcomeCreated
	case MarkUpdated:
		return o == OutcomeUpdated || o == OutcomeRenamed
	}
	return false
}

// Options is the configuration surface for one upload batch, consumed by
// the reconciler but owned by the caller.
type Options struct {
	Operation     OperationPolicy
	Update        UpdatePolicy
	AllowRenames  bool
	AllowDeletes  bool
	AllowSuspends bool
	// NoNormalize keeps usernames as uploaded instead of canonicalizing.
	NoNormalize bool
	// AllowEmailDuplicates downgrades cross-identity email collisions from
	// errors to warnings.
	AllowEmailDuplicates bool
	PasswordReset        PasswordResetPolicy
	// Mark flags selected rows on the report for follow-up bulk actions.
	Mark MarkPolicy
	// Defaults are form-level default field values, applied to fields the
	// file leaves empty. Keys are lowercased column names.
	Defaults map[string]string
}
