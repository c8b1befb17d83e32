package csvimport

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ColumnKind classifies an upload column by its header pattern.
type ColumnKind int

const (
	// ColumnStandard is a plain attribute column such as username or email.
	ColumnStandard ColumnKind = iota
	// ColumnProfileField is a profile_field_<key> custom attribute column.
	ColumnProfileField
	// ColumnGroup is a cohort<N> or group<N> membership column.
	ColumnGroup
	// ColumnCourse is a course<N> enrolment column.
	ColumnCourse
	// ColumnRole is a role<N> column, attached to course<N> by index.
	ColumnRole
	// ColumnType is a legacy type<N> column carrying a numeric role code.
	ColumnType
	// ColumnEnrolStatus is an enrolstatus<N> column.
	ColumnEnrolStatus
	// ColumnEnrolTimeStart is an enroltimestart<N> column.
	ColumnEnrolTimeStart
	// ColumnEnrolPeriod is an enrolperiod<N> column.
	ColumnEnrolPeriod
	// ColumnSysRole is a sysrole<N> system role column.
	ColumnSysRole
)

// Column is one classified upload column.
type Column struct {
	// Name is the lowercased header as found in the file.
	Name string
	Kind ColumnKind
	// Key is the attribute key for profile field columns.
	Key string
	// Index is N for the enumerated column kinds, 0 otherwise.
	Index int
}

// Standard attribute columns accepted in an upload file.
var standardColumns = map[string]bool{
	"username":     true,
	"oldusername":  true,
	"deleted":      true,
	"suspended":    true,
	"firstname":    true,
	"lastname":     true,
	"email":        true,
	"auth":         true,
	"password":     true,
	"lang":         true,
	"idnumber":     true,
	"institution":  true,
	"department":   true,
	"city":         true,
	"country":      true,
	"timezone":     true,
	"phone1":       true,
	"phone2":       true,
	"address":      true,
	"description":  true,
	"maildisplay":  true,
	"mailformat":   true,
	"maildigest":   true,
	"theme":        true,
	"calendartype": true,
	"interests":    true,
}

const profileFieldPrefix = "profile_field_"

var enumeratedColumn = regexp.MustCompile(`^(cohort|group|course|role|type|enrolstatus|enroltimestart|enrolperiod|sysrole)([1-9][0-9]*)$`)

// ClassifyColumn classifies a single header name. Matching is
// case-insensitive; an unrecognized name is an error.
func ClassifyColumn(header string) (Column, error) {
	name := strings.ToLower(strings.TrimSpace(header))

	if standardColumns[name] {
		return Column{Name: name, Kind: ColumnStandard}, nil
	}

	if strings.HasPrefix(name, profileFieldPrefix) {
		key := name[len(profileFieldPrefix):]
		if key == "" {
			return Column{}, fmt.Errorf("%w: column %q has no profile field key", ErrInvalidHeader, name)
		}
		return Column{Name: name, Kind: ColumnProfileField, Key: key}, nil
	}

	if m := enumeratedColumn.FindStringSubmatch(name); m != nil {
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			return Column{}, fmt.Errorf("%w: column %q", ErrInvalidHeader, name)
		}
		kind := map[string]ColumnKind{
			"cohort":         ColumnGroup,
			"group":          ColumnGroup,
			"course":         ColumnCourse,
			"role":           ColumnRole,
			"type":           ColumnType,
			"enrolstatus":    ColumnEnrolStatus,
			"enroltimestart": ColumnEnrolTimeStart,
			"enrolperiod":    ColumnEnrolPeriod,
			"sysrole":        ColumnSysRole,
		}[m[1]]
		return Column{Name: name, Kind: kind, Index: idx}, nil
	}

	return Column{}, fmt.Errorf("%w: unknown column %q", ErrInvalidHeader, name)
}

// ColumnSet is the classified view of an upload file's header row.
type ColumnSet struct {
	columns []Column
	byName  map[string]Column
}

// ClassifyHeaders classifies all headers of a file. The username column is
// mandatory; role/type/enrol columns must have a matching course column with
// the same index.
func ClassifyHeaders(headers []string) (*ColumnSet, error) {
	cs := &ColumnSet{
		columns: make([]Column, 0, len(headers)),
		byName:  make(map[string]Column, len(headers)),
	}

	courseIdx := make(map[int]bool)
	for _, h := range headers {
		col, err := ClassifyColumn(h)
		if err != nil {
			return nil, err
		}
		if _, dup := cs.byName[col.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrInvalidHeader, col.Name)
		}
		cs.columns = append(cs.columns, col)
		cs.byName[col.Name] = col
		if col.Kind == ColumnCourse {
			courseIdx[col.Index] = true
		}
	}

	if _, ok := cs.byName["username"]; !ok {
		return nil, fmt.Errorf("%w: username column is required", ErrInvalidHeader)
	}

	for _, col := range cs.columns {
		switch col.Kind {
		case ColumnRole, ColumnType, ColumnEnrolStatus, ColumnEnrolTimeStart, ColumnEnrolPeriod:
			if !courseIdx[col.Index] {
				return nil, fmt.Errorf("%w: column %q has no matching course%d column", ErrInvalidHeader, col.Name, col.Index)
			}
		}
	}

	return cs, nil
}

// Columns returns the classified columns in file order.
func (cs *ColumnSet) Columns() []Column {
	return cs.columns
}

// Has reports whether a column with the given lowercased name is present.
func (cs *ColumnSet) Has(name string) bool {
	_, ok := cs.byName[strings.ToLower(name)]
	return ok
}

// ProfileFieldKeys returns the custom attribute keys in file order.
func (cs *ColumnSet) ProfileFieldKeys() []string {
	var keys []string
	for _, col := range cs.columns {
		if col.Kind == ColumnProfileField {
			keys = append(keys, col.Key)
		}
	}
	return keys
}

// StandardNames returns the plain attribute column names in file order.
func (cs *ColumnSet) StandardNames() []string {
	var names []string
	for _, col := range cs.columns {
		if col.Kind == ColumnStandard {
			names = append(names, col.Name)
		}
	}
	return names
}

// GroupColumns returns the cohort/group membership columns sorted by index.
func (cs *ColumnSet) GroupColumns() []Column {
	return cs.ofKind(ColumnGroup)
}

// CourseColumns returns the course enrolment columns sorted by index.
func (cs *ColumnSet) CourseColumns() []Column {
	return cs.ofKind(ColumnCourse)
}

// SysRoleColumns returns the system role columns sorted by index.
func (cs *ColumnSet) SysRoleColumns() []Column {
	return cs.ofKind(ColumnSysRole)
}

// CourseDetail returns the value of the kind-specific column attached to a
// course index, e.g. role3 for course3. Empty string when absent.
func (cs *ColumnSet) CourseDetail(kind ColumnKind, index int, row *Row) string {
	var base string
	switch kind {
	case ColumnRole:
		base = "role"
	case ColumnType:
		base = "type"
	case ColumnEnrolStatus:
		base = "enrolstatus"
	case ColumnEnrolTimeStart:
		base = "enroltimestart"
	case ColumnEnrolPeriod:
		base = "enrolperiod"
	default:
		return ""
	}
	name := fmt.Sprintf("%s%d", base, index)
	if !cs.Has(name) {
		return ""
	}
	return row.Get(name)
}

func (cs *ColumnSet) ofKind(kind ColumnKind) []Column {
	var cols []Column
	for _, col := range cs.columns {
		if col.Kind == kind {
			cols = append(cols, col)
		}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Index < cols[j].Index })
	return cols
}
