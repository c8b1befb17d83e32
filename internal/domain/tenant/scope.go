package tenant

import (
	"regexp"
	"strings"

	"github.com/roster/backend/internal/domain/identity"
)

// PrefixDecision is the result of attempting to prefix a group name.
type PrefixDecision int

const (
	// PrefixApplied means the prefix was prepended.
	PrefixApplied PrefixDecision = iota
	// PrefixAlreadyPresent means the name already carried the prefix.
	PrefixAlreadyPresent
	// PrefixNotRequired means the tenant has no prefix but is allowed to
	// operate without one.
	PrefixNotRequired
	// PrefixDenied means the tenant has no prefix and may not operate
	// without one.
	PrefixDenied
)

// readonlyMarker flags a group segment as readonly: tenants may match such
// groups but never rename or recreate them.
const readonlyMarker = "r_"

// Scope is a tenant's visibility filter and namespace prefix, computed once
// per batch and passed explicitly to every component that needs it.
type Scope struct {
	tenant          *Tenant
	selected        map[string]string
	noPrefixAllowed bool
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithSelectedValue pins the value used for a multi-valued scope attribute
// for the lifetime of this scope. Without a selection the first value is used.
func WithSelectedValue(attrKey, value string) ScopeOption {
	return func(s *Scope) {
		s.selected[attrKey] = value
	}
}

// NewScope derives a scope from the tenant.
func NewScope(t *Tenant, opts ...ScopeOption) *Scope {
	s := &Scope{
		tenant:          t,
		selected:        make(map[string]string),
		noPrefixAllowed: t.NoPrefixAllowed,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tenant returns the tenant the scope was derived from.
func (s *Scope) Tenant() *Tenant {
	return s.tenant
}

// fieldValue resolves the value used for a scope field: the pinned selection
// for multi-valued fields, else the first value.
func (s *Scope) fieldValue(f ScopeField) string {
	if f.Multi {
		if v, ok := s.selected[f.Key]; ok && v != "" && f.Value.Contains(v) {
			return v
		}
	}
	return f.Value.Scalar()
}

// DerivePrefix builds the namespace prefix from the tenant's prefix fields,
// values joined with "_". In regex mode the pattern is anchored and each
// separator optionally matches the readonly marker, so "org7_(r_)?" matches
// both "org7_math" and "org7_r_math". Returns false if any prefix field value
// is empty; that also forces the scope to deny prefixless group operations.
func (s *Scope) DerivePrefix(regexMode bool) (string, bool) {
	if len(s.tenant.PrefixFields) == 0 {
		return "", false
	}

	var b strings.Builder
	if regexMode {
		b.WriteString("^")
	}
	for _, f := range s.tenant.PrefixFields {
		value := s.fieldValue(f)
		if value == "" {
			s.noPrefixAllowed = false
			return "", false
		}
		if regexMode {
			b.WriteString(regexp.QuoteMeta(value))
			b.WriteString("_(r_)?")
		} else {
			b.WriteString(value)
			b.WriteString("_")
		}
	}
	return b.String(), true
}

// NoPrefixAllowed reports whether group operations without a prefix are
// permitted for this scope.
func (s *Scope) NoPrefixAllowed() bool {
	return s.noPrefixAllowed
}

// AddPrefix prepends the derived prefix to a group name unless it is already
// present.
func (s *Scope) AddPrefix(name string) (string, PrefixDecision) {
	prefix, ok := s.DerivePrefix(false)
	if !ok {
		if s.noPrefixAllowed {
			return name, PrefixNotRequired
		}
		return name, PrefixDenied
	}
	if len(name) >= len(prefix) && strings.EqualFold(name[:len(prefix)], prefix) {
		return name, PrefixAlreadyPresent
	}
	return prefix + name, PrefixApplied
}

// StripPrefix removes the derived prefix from a name if present. With
// stripReadonly it also removes the readonly marker following the prefix.
func (s *Scope) StripPrefix(name string, stripReadonly bool) string {
	pattern, ok := s.DerivePrefix(true)
	if !ok {
		return name
	}
	if !stripReadonly {
		pattern = strings.ReplaceAll(pattern, "_(r_)?", "_")
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return name
	}
	if loc := re.FindStringIndex(name); loc != nil && loc[0] == 0 {
		return name[loc[1]:]
	}
	return name
}

// IsReadonly reports whether an encoded group idnumber carries the readonly
// marker directly after the tenant's prefix.
func (s *Scope) IsReadonly(idnumber string) bool {
	rest := s.StripPrefix(idnumber, false)
	if rest == idnumber {
		// Not under this tenant's prefix, so not a tenant-owned group.
		return false
	}
	return strings.HasPrefix(rest, readonlyMarker)
}

// GroupPattern builds the anchored lookup pattern for a requested group name:
// the regex prefix followed by the quoted name and an end anchor, so "foo"
// never collides with "foobar".
func (s *Scope) GroupPattern(name string) (string, bool) {
	prefix, ok := s.DerivePrefix(true)
	if !ok {
		return "", false
	}
	return prefix + regexp.QuoteMeta(name) + "$", true
}

// MatchFilter derives the identity visibility predicate from the tenant's
// linked fields. An empty tenant-side value yields a filter that matches
// nothing: scoping failures deny, they never widen.
func (s *Scope) MatchFilter() Filter {
	f := Filter{conds: make([]attrCond, 0, len(s.tenant.LinkedFields))}
	if len(s.tenant.LinkedFields) == 0 {
		f.denyAll = true
		return f
	}
	for _, lf := range s.tenant.LinkedFields {
		if lf.Value.IsEmpty() {
			f.denyAll = true
			return f
		}
		want := lf.Value
		if lf.Multi {
			if v, ok := s.selected[lf.Key]; ok && v != "" && lf.Value.Contains(v) {
				want = identity.NewMultiAttr(v)
			}
		}
		f.conds = append(f.conds, attrCond{key: lf.Key, want: want, multi: lf.Multi})
	}
	return f
}

// LinkedValue returns the value the tenant forces for a linked attribute key,
// and whether the key is a linked field at all.
func (s *Scope) LinkedValue(key string) (identity.AttrValue, bool) {
	for _, lf := range s.tenant.LinkedFields {
		if lf.Key == key {
			return lf.Value, true
		}
	}
	return identity.AttrValue{}, false
}

// LinkedFields returns the tenant's linked fields in declaration order.
func (s *Scope) LinkedFields() []ScopeField {
	return s.tenant.LinkedFields
}

// attrCond is one linked-field condition of a Filter.
type attrCond struct {
	key   string
	want  identity.AttrValue
	multi bool
}

// Filter is a predicate over identity profile attributes.
type Filter struct {
	denyAll bool
	conds   []attrCond
}

// DenyAll reports whether the filter matches nothing.
func (f Filter) DenyAll() bool {
	return f.denyAll
}

// Condition is one linked-field condition in exported form, for persistence
// layers that push the predicate into a query.
type Condition struct {
	Key    string
	Values []string
	Multi  bool
}

// Conditions returns the filter's conditions in declaration order.
func (f Filter) Conditions() []Condition {
	conds := make([]Condition, len(f.conds))
	for i, c := range f.conds {
		conds[i] = Condition{Key: c.key, Values: c.want.Values(), Multi: c.multi}
	}
	return conds
}

// Matches evaluates the filter against a profile attribute map. Multi-valued
// conditions are satisfied by any shared value; scalar conditions require
// full equality.
func (f Filter) Matches(attrs map[string]identity.AttrValue) bool {
	if f.denyAll {
		return false
	}
	for _, c := range f.conds {
		got, ok := attrs[c.key]
		if !ok {
			return false
		}
		if c.multi {
			if !got.Overlaps(c.want) {
				return false
			}
		} else if !got.Equal(c.want) {
			return false
		}
	}
	return true
}
