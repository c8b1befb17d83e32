package identity

import (
	"strings"
	"unicode"

	"github.com/roster/backend/internal/domain/shared"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
)

// Auth method tags. Only internal accounts carry a real password hash;
// externally authenticated accounts store the NotCachedPassword sentinel.
const (
	AuthManual  = "manual"
	AuthNologin = "nologin"
	AuthLDAP    = "ldap"
	AuthOAuth2  = "oauth2"
)

// NotCachedPassword is stored instead of a hash for externally authenticated
// accounts.
const NotCachedPassword = "not cached"

// GuestUsername can never be created or updated through bulk upload.
const GuestUsername = "guest"

// BulkHashCost is the bcrypt cost used when hashing passwords during bulk
// import. Hashes are upgraded lazily by the login path on first real login.
const BulkHashCost = bcrypt.MinCost + 2

// InternalAuthMethods lists auth methods whose passwords are managed locally.
var InternalAuthMethods = map[string]bool{
	AuthManual: true,
}

// KnownAuthMethods lists every auth method the store accepts. An unknown tag
// on an incoming row is an auth plugin error.
var KnownAuthMethods = map[string]bool{
	AuthManual:  true,
	AuthNologin: true,
	AuthLDAP:    true,
	AuthOAuth2:  true,
}

// User is the identity aggregate root. Uniqueness is enforced on
// (username, realm).
type User struct {
	shared.BaseEntity
	Realm              string
	Username           string
	Email              string
	FirstName          string
	LastName           string
	Auth               string
	Suspended          bool
	Confirmed          bool
	Deleted            bool
	Protected          bool // administrative account, never deletable via bulk upload
	PasswordHash       string
	MustChangePassword bool
	Lang               string
	Attrs              map[string]AttrValue
}

// NewUser creates a new user in the given realm. The username is stored as
// provided; callers normalize beforehand when normalization is enabled.
func NewUser(realm, username string) (*User, error) {
	if username == "" {
		return nil, shared.NewDomainError(shared.CodeValidation, "username cannot be empty")
	}
	if username == GuestUsername {
		return nil, shared.NewDomainError(shared.CodeValidation, "guest account cannot be managed")
	}
	return &User{
		BaseEntity: shared.NewBaseEntity(),
		Realm:      realm,
		Username:   username,
		Auth:       AuthManual,
		Confirmed:  true,
		Attrs:      make(map[string]AttrValue),
	}, nil
}

// SetEmail sets the user's email, lowercased
func (u *User) SetEmail(email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email != "" && !ValidEmail(email) {
		return shared.NewDomainError(shared.CodeValidation, "invalid email address")
	}
	u.Email = email
	u.Touch()
	return nil
}

// SetName sets the user's display names
func (u *User) SetName(firstName, lastName string) {
	u.FirstName = strings.TrimSpace(firstName)
	u.LastName = strings.TrimSpace(lastName)
	u.Touch()
}

// SetAuth sets the auth method tag. Unknown tags are rejected.
func (u *User) SetAuth(auth string) error {
	if !KnownAuthMethods[auth] {
		return shared.NewDomainError(shared.CodeAuthPlugin, "unknown auth method: "+auth)
	}
	u.Auth = auth
	u.Touch()
	return nil
}

// HasInternalAuth reports whether the user's password is managed locally
func (u *User) HasInternalAuth() bool {
	return InternalAuthMethods[u.Auth]
}

// CanLogIn reports whether the account is currently able to authenticate
func (u *User) CanLogIn() bool {
	return !u.Suspended && u.Auth != AuthNologin
}

// SetSuspended flips the suspended flag. The caller is responsible for
// revoking live sessions when suspending.
func (u *User) SetSuspended(suspended bool) {
	u.Suspended = suspended
	u.Touch()
}

// SetPassword hashes and stores a password for an internally authenticated
// account. Externally authenticated accounts get the sentinel instead.
func (u *User) SetPassword(password string) error {
	if !u.HasInternalAuth() {
		u.PasswordHash = NotCachedPassword
		u.Touch()
		return nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BulkHashCost)
	if err != nil {
		return shared.NewDomainError(shared.CodeValidation, "failed to hash password")
	}
	u.PasswordHash = string(hash)
	u.Touch()
	return nil
}

// VerifyPassword verifies a password against the stored hash
func (u *User) VerifyPassword(password string) bool {
	if !u.HasInternalAuth() {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// ForcePasswordChange marks that the user must change password on next login
func (u *User) ForcePasswordChange() {
	u.MustChangePassword = true
	u.Touch()
}

// Rename changes the username in place. Callers must have verified the new
// name is free within the realm.
func (u *User) Rename(username string) error {
	if username == "" {
		return shared.NewDomainError(shared.CodeValidation, "username cannot be empty")
	}
	if username == GuestUsername {
		return shared.NewDomainError(shared.CodeValidation, "guest account cannot be managed")
	}
	u.Username = username
	u.Touch()
	return nil
}

// SetAttr sets a profile attribute
func (u *User) SetAttr(key string, value AttrValue) {
	if u.Attrs == nil {
		u.Attrs = make(map[string]AttrValue)
	}
	u.Attrs[key] = value
	u.Touch()
}

// Attr returns a profile attribute and whether it is set
func (u *User) Attr(key string) (AttrValue, bool) {
	v, ok := u.Attrs[key]
	return v, ok
}

// usernameAllowed reports whether a rune may appear in a clean username
func usernameAllowed(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) {
		return true
	}
	switch r {
	case '.', '-', '_', '@':
		return true
	}
	return false
}

// CleanUsername canonicalizes a username: NFC normalization, lowercasing and
// removal of characters outside the permitted set.
func CleanUsername(username string) string {
	username = norm.NFC.String(strings.TrimSpace(username))
	username = strings.ToLower(username)
	var b strings.Builder
	b.Grow(len(username))
	for _, r := range username {
		if usernameAllowed(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ValidEmail performs a light syntactic check. Full RFC validation is left to
// the mail collaborator.
func ValidEmail(email string) bool {
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	if strings.Contains(domain, "@") || !strings.Contains(domain, ".") {
		return false
	}
	if strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	return true
}
