package identity

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/roster/backend/internal/domain/identity"
	"github.com/roster/backend/internal/domain/shared"
	"github.com/roster/backend/internal/domain/tenant"
)

// DirectoryService lists and fetches identities visible under a tenant scope.
// Every lookup re-checks the scope's match filter; an identity outside the
// scope is reported as not found, never as forbidden.
type DirectoryService struct {
	users     identity.UserRepository
	directory tenant.Directory
	resolver  CapabilityResolver
	authz     tenant.Authorizer
	logger    *zap.Logger
}

// NewDirectoryService creates a new directory service.
func NewDirectoryService(
	users identity.UserRepository,
	directory tenant.Directory,
	resolver CapabilityResolver,
	authz tenant.Authorizer,
	logger *zap.Logger,
) *DirectoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{
		users:     users,
		directory: directory,
		resolver:  resolver,
		authz:     authz,
		logger:    logger,
	}
}

// List returns the page of identities visible under the scope.
func (s *DirectoryService) List(ctx context.Context, scope *tenant.Scope, filter shared.Filter) ([]*identity.User, int64, error) {
	if !s.authz.Can(scope.Tenant().ID, tenant.CapUserUpdate) {
		return nil, 0, shared.NewDomainError(shared.CodePermissionDenied, "no permission to view identities")
	}

	match := scope.MatchFilter()
	if match.DenyAll() {
		s.logger.Debug("directory list denied by empty scope",
			zap.String("tenant_id", scope.Tenant().ID.String()))
		return []*identity.User{}, 0, nil
	}
	return s.directory.FindAllScoped(ctx, scope.Tenant().Realm, match, filter)
}

// peerPageSize caps how many scoped identities are examined when listing
// co-managers.
const peerPageSize = 200

// Peers returns the identities under the scope that hold the upload
// capability themselves, i.e. the operators co-managing the same tenant.
func (s *DirectoryService) Peers(ctx context.Context, scope *tenant.Scope) ([]*identity.User, error) {
	if !s.authz.Can(scope.Tenant().ID, tenant.CapUploadUsers) {
		return nil, shared.NewDomainError(shared.CodePermissionDenied, "no permission to view batch managers")
	}

	match := scope.MatchFilter()
	if match.DenyAll() {
		return []*identity.User{}, nil
	}
	candidates, _, err := s.directory.FindAllScoped(ctx, scope.Tenant().Realm, match, shared.Filter{
		Page:     1,
		PageSize: peerPageSize,
		OrderBy:  "username",
		OrderDir: "asc",
	})
	if err != nil {
		return nil, err
	}

	peers := make([]*identity.User, 0, len(candidates))
	for _, candidate := range candidates {
		capabilities, err := s.resolver.CapabilitiesFor(ctx, candidate.ID)
		if err != nil {
			return nil, err
		}
		for _, capability := range capabilities {
			if capability == tenant.CapUploadUsers {
				peers = append(peers, candidate)
				break
			}
		}
	}
	return peers, nil
}

// Get returns one identity if it is visible under the scope.
func (s *DirectoryService) Get(ctx context.Context, scope *tenant.Scope, id uuid.UUID) (*identity.User, error) {
	if !s.authz.Can(scope.Tenant().ID, tenant.CapUserUpdate) {
		return nil, shared.NewDomainError(shared.CodePermissionDenied, "no permission to view identities")
	}

	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Realm != scope.Tenant().Realm || !scope.MatchFilter().Matches(user.Attrs) {
		// Out-of-scope identities are indistinguishable from missing ones.
		return nil, shared.ErrNotFound
	}
	return user, nil
}
