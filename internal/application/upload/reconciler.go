package upload

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
	"github.com/roster/backend/internal/infrastructure/csvimport"
)

// SessionRevoker invalidates every live session of a user. Suspending an
// account or switching it to a no-login auth method must log it out.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, userID uuid.UUID) error
}

// TxRunner wraps a single identity's commit in a transaction. The
// transaction covers exactly one row's store write, never the batch.
type TxRunner interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Reconciler merges upload rows into the identity store. Rows are processed
// strictly in order, one row fully (through post-processing) before the
// next, so duplicate checks always see prior rows' writes.
type Reconciler struct {
	users    identity.UserRepository
	applier  *EnrolApplier
	authz    tenant.Authorizer
	tx       TxRunner
	sessions SessionRevoker
	logger   *zap.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(
	users identity.UserRepository,
	applier *EnrolApplier,
	authz tenant.Authorizer,
	tx TxRunner,
	sessions SessionRevoker,
	logger *zap.Logger,
) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		users:    users,
		applier:  applier,
		authz:    authz,
		tx:       tx,
		sessions: sessions,
		logger:   logger,
	}
}

// Process runs one upload batch. Row-level failures are recorded in the
// report and processing continues; only collaborator failures (store
// unreachable) stop the batch. Cancellation is honored at row boundaries.
func (r *Reconciler) Process(ctx context.Context, scope *tenant.Scope, cs *csvimport.ColumnSet, rows []*csvimport.Row, opts Options) (*Report, error) {
	if !r.authz.Can(scope.Tenant().ID, tenant.CapUploadUsers) {
		return nil, shared.NewDomainError(shared.CodePermissionDenied, "no permission to upload users")
	}

	report := &Report{}
	for _, row := range rows {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		outcome, weak, err := r.processRow(ctx, scope, cs, row, opts)
		if err != nil {
			return report, err
		}
		outcome.Marked = opts.Mark.selects(outcome.Outcome)
		report.add(outcome)
		if weak {
			report.Weak++
		}

		r.logger.Debug("row processed",
			zap.Int("line", row.LineNumber),
			zap.String("username", outcome.Username),
			zap.String("outcome", string(outcome.Outcome)))
	}
	return report, nil
}

// candidate is one row parsed against the classified columns.
type candidate struct {
	values   map[string]string
	fromFile map[string]bool
	attrs    map[string]identity.AttrValue
	groups   []groupAssignment
	courses  []courseAssignment
	sysroles []sysroleAssignment
}

type groupAssignment struct {
	column string
	name   string
	// course is the short name of the owning course for group<N> columns;
	// empty for site-level cohort<N> columns.
	course string
}

type courseAssignment struct {
	column string
	spec   EnrolmentSpec
}

type sysroleAssignment struct {
	column string
	role   string
	remove bool
}

func parseCandidate(cs *csvimport.ColumnSet, row *csvimport.Row, opts Options) *candidate {
	cand := &candidate{
		values:   make(map[string]string),
		fromFile: make(map[string]bool),
		attrs:    make(map[string]identity.AttrValue),
	}

	for _, col := range cs.Columns() {
		value := row.Get(col.Name)

		switch col.Kind {
		case csvimport.ColumnStandard:
			cand.values[col.Name] = value
			cand.fromFile[col.Name] = value != ""

		case csvimport.ColumnProfileField:
			if value != "" {
				cand.attrs[col.Key] = identity.NewScalarAttr(value)
			}

		case csvimport.ColumnGroup:
			if value == "" {
				continue
			}
			ga := groupAssignment{column: col.Name, name: value}
			if strings.HasPrefix(col.Name, "group") {
				ga.course = row.Get(fmt.Sprintf("course%d", col.Index))
			}
			cand.groups = append(cand.groups, ga)

		case csvimport.ColumnCourse:
			if value == "" {
				continue
			}
			cand.courses = append(cand.courses, courseAssignment{
				column: col.Name,
				spec: EnrolmentSpec{
					CourseShortName: value,
					RoleShortName:   cs.CourseDetail(csvimport.ColumnRole, col.Index, row),
					TypeCode:        cs.CourseDetail(csvimport.ColumnType, col.Index, row),
					Status:          cs.CourseDetail(csvimport.ColumnEnrolStatus, col.Index, row),
					TimeStartRaw:    cs.CourseDetail(csvimport.ColumnEnrolTimeStart, col.Index, row),
					PeriodRaw:       cs.CourseDetail(csvimport.ColumnEnrolPeriod, col.Index, row),
				},
			})

		case csvimport.ColumnSysRole:
			if value == "" {
				continue
			}
			cand.sysroles = append(cand.sysroles, sysroleAssignment{
				column: col.Name,
				role:   strings.TrimPrefix(value, "-"),
				remove: strings.HasPrefix(value, "-"),
			})
		}
	}

	// Form-level defaults fill fields the file left empty. They are not
	// file values; FileOverride will not push them onto existing users.
	for field, value := range opts.Defaults {
		if value == "" {
			continue
		}
		if key, ok := strings.CutPrefix(field, "profile_field_"); ok {
			if _, set := cand.attrs[key]; !set {
				cand.attrs[key] = identity.NewScalarAttr(value)
			}
			continue
		}
		if cand.values[field] == "" {
			cand.values[field] = value
		}
	}

	return cand
}

// validLang matches recognized language pack codes, e.g. "en" or "de_kids".
var validLang = regexp.MustCompile(`^[a-z]{2,3}(_[a-z0-9]+)?$`)

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

// isFatal separates collaborator failures from per-row domain failures.
func isFatal(err error) bool {
	var de *shared.DomainError
	return err != nil && !errors.As(err, &de)
}

func (r *Reconciler) processRow(ctx context.Context, scope *tenant.Scope, cs *csvimport.ColumnSet, row *csvimport.Row, opts Options) (RowOutcome, bool, error) {
	tr := NewTracker()
	tenantID := scope.Tenant().ID
	realm := scope.Tenant().Realm

	outcome := func(o Outcome, username string) RowOutcome {
		return RowOutcome{Line: row.LineNumber, Username: username, Outcome: o, Trail: tr.Entries()}
	}

	cand := parseCandidate(cs, row, opts)

	// Echo file column values onto the trail as overwritable defaults; a
	// later decision about a field replaces its echo. Passwords are never
	// echoed into the retained report.
	for _, col := range cs.Columns() {
		if col.Kind != csvimport.ColumnStandard || col.Name == "password" {
			continue
		}
		if v := row.Get(col.Name); v != "" {
			tr.Normal(col.Name, v)
		}
	}

	// Scope validation. A conflicting linked-field value rejects the row;
	// a missing one is filled with the tenant's own value.
	filter := scope.MatchFilter()
	if filter.DenyAll() {
		tr.Error("", "tenant scope is incomplete, no rows can be processed")
		return outcome(OutcomeErrored, cand.values["username"]), false, nil
	}
	for _, lf := range scope.LinkedFields() {
		rowValue, present := cand.attrs[lf.Key]
		if present && !rowValue.IsEmpty() {
			v := rowValue.Scalar()
			if (lf.Multi && !lf.Value.Contains(v)) || (!lf.Multi && v != lf.Value.Scalar()) {
				tr.Error("profile_field_"+lf.Key, fmt.Sprintf("value '%s' is outside the tenant scope", v))
				return outcome(OutcomeErrored, cand.values["username"]), false, nil
			}
		}
		cand.attrs[lf.Key] = lf.Value
	}

	// Username resolution.
	username := strings.TrimSpace(cand.values["username"])
	if !opts.NoNormalize {
		username = identity.CleanUsername(username)
	}
	if username == "" {
		tr.Error("username", "username is required")
		return outcome(OutcomeErrored, ""), false, nil
	}
	if username == identity.GuestUsername {
		tr.Error("username", "guest account cannot be managed")
		return outcome(OutcomeErrored, username), false, nil
	}

	existing, err := r.users.FindByUsername(ctx, realm, username)
	if isFatal(err) {
		return RowOutcome{}, false, err
	}

	// Rename branch.
	renamed := false
	if oldRaw := strings.TrimSpace(cand.values["oldusername"]); oldRaw != "" {
		target, err := r.resolveRename(ctx, scope, tr, oldRaw, username, existing, opts)
		if err != nil {
			return RowOutcome{}, false, err
		}
		if target == nil {
			return outcome(OutcomeErrored, username), false, nil
		}
		existing = target
		renamed = true
	}

	// Delete branch short-circuits everything else.
	if parseBool(cand.values["deleted"]) {
		o, err := r.deleteUser(ctx, tr, filter, tenantID, existing, opts)
		if err != nil {
			return RowOutcome{}, false, err
		}
		return outcome(o, username), false, nil
	}

	// Operation policy gate.
	isNew := existing == nil
	if !renamed {
		switch opts.Operation {
		case AddNew:
			if existing != nil {
				tr.Info("username", "user already exists, skipped")
				return outcome(OutcomeSkipped, username), false, nil
			}
		case AddIncrement:
			if existing != nil {
				incremented, err := r.incrementUsername(ctx, realm, username)
				if err != nil {
					if isFatal(err) {
						return RowOutcome{}, false, err
					}
					tr.Error("username", err.Error())
					return outcome(OutcomeErrored, username), false, nil
				}
				tr.Info("username", fmt.Sprintf("username taken, using '%s'", incremented))
				username = incremented
				existing = nil
				isNew = true
			}
		case UpdateOnly:
			if existing == nil {
				tr.Info("username", "user does not exist, skipped")
				return outcome(OutcomeSkipped, username), false, nil
			}
		case AddOrUpdate:
		}
	}

	// Scope containment for the resolved target.
	if existing != nil && !filter.Matches(existing.Attrs) {
		tr.Error("username", "user is outside the tenant scope")
		return outcome(OutcomeErrored, username), false, nil
	}

	var user *identity.User
	if isNew {
		if !r.authz.Can(tenantID, tenant.CapUserCreate) {
			tr.Error("username", "no permission to create users")
			return outcome(OutcomeErrored, username), false, nil
		}
		user, err = identity.NewUser(realm, username)
		if err != nil {
			tr.Error("username", err.Error())
			return outcome(OutcomeErrored, username), false, nil
		}
		for _, required := range []string{"firstname", "lastname", "email"} {
			if cand.values[required] == "" {
				tr.Error(required, fmt.Sprintf("field '%s' is required for new users", required))
			}
		}
		if tr.HasErrors() {
			return outcome(OutcomeErrored, username), false, nil
		}
	} else {
		if !renamed && !r.authz.Can(tenantID, tenant.CapUserUpdate) {
			tr.Error("username", "no permission to update users")
			return outcome(OutcomeErrored, username), false, nil
		}
		user = existing
	}

	// Field merge.
	changed, mustRevoke, weak, err := r.merge(ctx, tr, tenantID, user, cand, isNew, opts)
	if err != nil {
		return RowOutcome{}, false, err
	}
	if tr.HasErrors() {
		// Merge errors suppress the whole commit; the store write is the
		// atomic boundary, either the full merged record lands or nothing.
		return outcome(OutcomeErrored, username), false, nil
	}

	// Commit only when something actually changed.
	wrote := false
	if isNew {
		err = r.tx.RunInTransaction(ctx, func(ctx context.Context) error {
			return r.users.Create(ctx, user)
		})
		wrote = true
	} else if changed > 0 || renamed {
		err = r.tx.RunInTransaction(ctx, func(ctx context.Context) error {
			return r.users.Update(ctx, user)
		})
		wrote = true
	}
	if err != nil {
		if isFatal(err) {
			return RowOutcome{}, false, err
		}
		tr.Error("username", err.Error())
		return outcome(OutcomeErrored, username), false, nil
	}

	if wrote && mustRevoke && r.sessions != nil {
		if err := r.sessions.RevokeAll(ctx, user.ID); err != nil {
			r.logger.Warn("failed to revoke sessions", zap.String("username", username), zap.Error(err))
		}
	}

	// Post-processing: course enrolments first so that same-row group
	// columns can see them, then groups, then system roles.
	if err := r.postProcess(ctx, scope, tr, user, cand); err != nil {
		return RowOutcome{}, false, err
	}

	switch {
	case renamed:
		return outcome(OutcomeRenamed, username), weak, nil
	case isNew:
		return outcome(OutcomeCreated, username), weak, nil
	case changed > 0:
		return outcome(OutcomeUpdated, username), weak, nil
	default:
		return outcome(OutcomeUptodate, username), weak, nil
	}
}

// resolveRename resolves the oldusername branch. A nil user with a nil
// error means the row is errored; the tracker already carries the reason.
func (r *Reconciler) resolveRename(ctx context.Context, scope *tenant.Scope, tr *Tracker, oldRaw, username string, existing *identity.User, opts Options) (*identity.User, error) {
	if !opts.AllowRenames || !r.authz.Can(scope.Tenant().ID, tenant.CapUserRename) {
		tr.Error("oldusername", "renaming users is not allowed")
		return nil, nil
	}
	if existing != nil {
		tr.Error("oldusername", fmt.Sprintf("username '%s' already exists, cannot rename", username))
		return nil, nil
	}

	oldUsername := oldRaw
	if !opts.NoNormalize {
		oldUsername = identity.CleanUsername(oldUsername)
	}

	matches, err := r.users.FindAllByUsername(ctx, scope.Tenant().Realm, oldUsername)
	if isFatal(err) {
		return nil, err
	}
	if len(matches) != 1 {
		tr.Error("oldusername", fmt.Sprintf("previous username '%s' must match exactly one user, matched %d", oldUsername, len(matches)))
		return nil, nil
	}

	target := matches[0]
	if !scope.MatchFilter().Matches(target.Attrs) {
		tr.Error("oldusername", "user is outside the tenant scope")
		return nil, nil
	}
	if target.Protected {
		tr.Error("oldusername", "administrative accounts cannot be renamed")
		return nil, nil
	}
	if err := target.Rename(username); err != nil {
		tr.Error("username", err.Error())
		return nil, nil
	}
	return target, nil
}

func (r *Reconciler) deleteUser(ctx context.Context, tr *Tracker, filter tenant.Filter, tenantID uuid.UUID, existing *identity.User, opts Options) (Outcome, error) {
	if !opts.AllowDeletes || !r.authz.Can(tenantID, tenant.CapUserDelete) {
		tr.Error("deleted", "deleting users is not allowed")
		return OutcomeErrored, nil
	}
	if existing == nil {
		tr.Error("deleted", "cannot delete: user does not exist")
		return OutcomeErrored, nil
	}
	if !filter.Matches(existing.Attrs) {
		tr.Error("deleted", "user is outside the tenant scope")
		return OutcomeErrored, nil
	}
	if existing.Protected {
		tr.Error("deleted", "administrative accounts cannot be deleted")
		return OutcomeErrored, nil
	}

	err := r.tx.RunInTransaction(ctx, func(ctx context.Context) error {
		return r.users.Delete(ctx, existing.ID)
	})
	if err != nil {
		if isFatal(err) {
			return OutcomeErrored, err
		}
		tr.Error("deleted", err.Error())
		return OutcomeErrored, nil
	}
	tr.Info("deleted", "user deleted")
	return OutcomeDeleted, nil
}

// shouldWrite applies the update policy to one field of an existing user.
// New users are exempt: every non-empty value lands.
func shouldWrite(opts Options, isNew, fromFile bool, newValue, current string) bool {
	if newValue == "" {
		return false
	}
	if isNew {
		return true
	}
	switch opts.Update {
	case NoChanges:
		return false
	case AllOverride:
		return newValue != current
	case FileOverride:
		return fromFile && newValue != current
	case MissingOnly:
		return current == ""
	}
	return false
}

// merge applies the candidate's fields onto the user under the update
// policy. It returns the number of changed fields, whether live sessions
// must be revoked, and whether a weak password was uploaded.
func (r *Reconciler) merge(ctx context.Context, tr *Tracker, tenantID uuid.UUID, user *identity.User, cand *candidate, isNew bool, opts Options) (int, bool, bool, error) {
	changed := 0
	mustRevoke := false
	weak := false

	// auth first: an unknown auth method aborts the row before anything
	// else is merged.
	if v := cand.values["auth"]; shouldWrite(opts, isNew, cand.fromFile["auth"], v, user.Auth) {
		if err := user.SetAuth(v); err != nil {
			tr.Error("auth", err.Error())
			return changed, false, false, nil
		}
		changed++
		if v == identity.AuthNologin {
			mustRevoke = true
		}
	}

	if v := cand.values["firstname"]; shouldWrite(opts, isNew, cand.fromFile["firstname"], v, user.FirstName) {
		user.SetName(v, user.LastName)
		changed++
	}
	if v := cand.values["lastname"]; shouldWrite(opts, isNew, cand.fromFile["lastname"], v, user.LastName) {
		user.SetName(user.FirstName, v)
		changed++
	}

	if v := cand.values["email"]; v != "" {
		n, err := r.mergeEmail(ctx, tr, user, cand, isNew, opts, v)
		if err != nil {
			return changed, false, false, err
		}
		changed += n
	}

	// An empty submitted language never overwrites; an unrecognized code
	// is ignored with a warning.
	if v := strings.ToLower(cand.values["lang"]); shouldWrite(opts, isNew, cand.fromFile["lang"], v, user.Lang) {
		if !validLang.MatchString(v) {
			tr.Warn("lang", fmt.Sprintf("unrecognized language code '%s', ignored", v))
		} else {
			user.Lang = v
			user.Touch()
			changed++
		}
	}

	if v := cand.values["suspended"]; v != "" && (isNew || opts.Update != NoChanges) {
		suspended := parseBool(v)
		if suspended != user.Suspended {
			if !opts.AllowSuspends || !r.authz.Can(tenantID, tenant.CapUserSuspend) {
				tr.Warn("suspended", "suspending users is not allowed, ignored")
			} else {
				user.SetSuspended(suspended)
				changed++
				if suspended {
					mustRevoke = true
				}
			}
		}
	}

	if v := cand.values["password"]; v != "" && (isNew || opts.Update != NoChanges) {
		if err := user.SetPassword(v); err != nil {
			tr.Warn("password", err.Error())
		} else {
			changed++
			if user.HasInternalAuth() {
				isWeak := weakPassword(v)
				if isWeak {
					weak = true
				}
				if opts.PasswordReset == ResetAll || (opts.PasswordReset == ResetWeak && isWeak) {
					user.ForcePasswordChange()
					tr.Info("password", "password change forced on next login")
				}
			}
		}
	}

	// Remaining standard columns and profile fields land in the attribute
	// map.
	for field, v := range cand.values {
		switch field {
		case "username", "oldusername", "deleted", "password", "auth", "suspended",
			"firstname", "lastname", "email", "lang":
			continue
		}
		current, _ := user.Attr(field)
		if shouldWrite(opts, isNew, cand.fromFile[field], v, current.Scalar()) {
			user.SetAttr(field, identity.NewScalarAttr(v))
			changed++
		}
	}
	for key, v := range cand.attrs {
		current, ok := user.Attr(key)
		if ok && current.Equal(v) {
			continue
		}
		if !isNew {
			switch opts.Update {
			case NoChanges:
				continue
			case MissingOnly:
				if ok && !current.IsEmpty() {
					continue
				}
			}
		}
		user.SetAttr(key, v)
		changed++
	}

	return changed, mustRevoke, weak, nil
}

// mergeEmail handles the email column: duplicates are checked
// case-insensitively across the whole store, a pure case difference is
// folded to lowercase and accepted, any other duplicate is an error unless
// duplicates are allowed.
func (r *Reconciler) mergeEmail(ctx context.Context, tr *Tracker, user *identity.User, cand *candidate, isNew bool, opts Options, value string) (int, error) {
	lower := strings.ToLower(strings.TrimSpace(value))
	if !identity.ValidEmail(lower) {
		tr.Warn("email", fmt.Sprintf("invalid email '%s', ignored", value))
		return 0, nil
	}
	if !shouldWrite(opts, isNew, cand.fromFile["email"], lower, user.Email) {
		return 0, nil
	}

	other, err := r.users.FindByEmailFold(ctx, lower)
	if isFatal(err) {
		return 0, err
	}
	if other != nil && other.ID != user.ID {
		if !opts.AllowEmailDuplicates {
			tr.Error("email", fmt.Sprintf("email '%s' is already used by another account", lower))
			return 0, nil
		}
		tr.Warn("email", fmt.Sprintf("email '%s' is already used by another account", lower))
	}

	if err := user.SetEmail(lower); err != nil {
		tr.Warn("email", err.Error())
		return 0, nil
	}
	return 1, nil
}

func (r *Reconciler) postProcess(ctx context.Context, scope *tenant.Scope, tr *Tracker, user *identity.User, cand *candidate) error {
	tenantID := scope.Tenant().ID

	for _, ca := range cand.courses {
		result, err := r.applier.ApplyEnrolment(ctx, tenantID, user.ID, ca.spec)
		if err != nil {
			if isFatal(err) {
				return err
			}
			tr.Error(ca.column, err.Error())
			continue
		}
		tr.Info(ca.column, result.Message)
	}

	for _, ga := range cand.groups {
		result, err := r.applier.ApplyGroup(ctx, scope, user.ID, ga.name, ga.course)
		if err != nil {
			if isFatal(err) {
				return err
			}
			tr.Error(ga.column, err.Error())
			continue
		}
		tr.Info(ga.column, result.Message)
	}

	for _, sa := range cand.sysroles {
		result, err := r.applier.ApplySystemRole(ctx, tenantID, user.ID, sa.role, sa.remove)
		if err != nil {
			if isFatal(err) {
				return err
			}
			tr.Error(sa.column, err.Error())
			continue
		}
		tr.Info(sa.column, result.Message)
	}

	return nil
}

// incrementUsername finds the first free numeric suffix for a taken
// username.
func (r *Reconciler) incrementUsername(ctx context.Context, realm, username string) (string, error) {
	for i := 2; i <= 999; i++ {
		cand := username + strconv.Itoa(i)
		exists, err := r.users.ExistsByUsername(ctx, realm, cand)
		if err != nil {
			return "", err
		}
		if !exists {
			return cand, nil
		}
	}
	return "", shared.NewDomainError(shared.CodeConflict, fmt.Sprintf("no free numeric suffix for username '%s'", username))
}

// weakPassword flags passwords a site policy would reject: short, or
// missing both letters and digits.
func weakPassword(password string) bool {
	if len(password) < 8 {
		return true
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			hasLetter = true
		}
	}
	return !hasLetter || !hasDigit
}
