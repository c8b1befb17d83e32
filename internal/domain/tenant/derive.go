package tenant

import (
	"context"

	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
)

// DeriveTenant builds the tenant for an operator identity from the configured
// linked and prefix attribute keys. Keys missing from the operator's profile
// yield empty scope fields, which later deny rather than widen.
func DeriveTenant(u *identity.User, linkedKeys, prefixKeys []string, noPrefixAllowed bool) *Tenant {
	t := &Tenant{
		ID:              u.ID,
		Realm:           u.Realm,
		Username:        u.Username,
		LinkedFields:    deriveFields(u, linkedKeys),
		PrefixFields:    deriveFields(u, prefixKeys),
		NoPrefixAllowed: noPrefixAllowed,
	}
	return t
}

func deriveFields(u *identity.User, keys []string) []ScopeField {
	fields := make([]ScopeField, 0, len(keys))
	for _, key := range keys {
		value, _ := u.Attr(key)
		fields = append(fields, ScopeField{
			Key:   key,
			Value: value,
			Multi: value.IsMulti(),
		})
	}
	return fields
}

// Directory lists identities visible under a scope. It lives beside the scope
// because the visibility predicate is the scope's match filter; the identity
// repository stays scope-agnostic.
type Directory interface {
	FindAllScoped(ctx context.Context, realm string, match Filter, filter shared.Filter) ([]*identity.User, int64, error)
}
