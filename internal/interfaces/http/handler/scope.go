package handler

import (
	"context"

	"github.com/google/uuid"

	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/tenant"
	"github.com/roster/backend/internal/infrastructure/config"
)

// ScopeBuilder derives the tenant scope for the authenticated operator. The
// scope is rebuilt from the operator's stored profile on every request so
// attribute changes take effect immediately, not at the next login.
type ScopeBuilder struct {
	users identity.UserRepository
	cfg   config.TenantConfig
}

func NewScopeBuilder(users identity.UserRepository, cfg config.TenantConfig) *ScopeBuilder {
	return &ScopeBuilder{users: users, cfg: cfg}
}

// Build loads the operator and derives the scope. Selected values pin the
// value used for multi-valued scope attributes for this request.
func (b *ScopeBuilder) Build(ctx context.Context, operatorID uuid.UUID, selected map[string]string) (*tenant.Scope, *identity.User, error) {
	operator, err := b.users.FindByID(ctx, operatorID)
	if err != nil {
		return nil, nil, err
	}

	t := tenant.DeriveTenant(operator, b.cfg.LinkedFields, b.cfg.PrefixFields, b.cfg.NoPrefixAllowed)
	opts := make([]tenant.ScopeOption, 0, len(selected))
	for key, value := range selected {
		opts = append(opts, tenant.WithSelectedValue(key, value))
	}
	return tenant.NewScope(t, opts...), operator, nil
}
