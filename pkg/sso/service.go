package sso

import (
	"context"
	"errors"
	"fmt"

	"github.com/fieldline/fieldline/pkg/auth"
	"github.com/fieldline/fieldline/pkg/observability"
	"github.com/fieldline/fieldline/pkg/tenants"
)

// ErrUnknownUser is returned when the upstream identity has no matching
// Fieldline user. SSO never provisions accounts on its own; users are
// created by the admin workflow first.
var ErrUnknownUser = errors.New("no user matches the SSO identity")

// UserDirectory is the user lookup the service needs. Satisfied by
// tenants.Store.
type UserDirectory interface {
	GetUserByEmail(ctx context.Context, email string) (*tenants.User, error)
}

// CodeExchanger is the upstream side of the login. Satisfied by
// OIDCProvider; tests substitute a fake.
type CodeExchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*ExternalIdentity, error)
}

// Service completes an SSO login: verify the upstream identity, match it to
// an existing user by email, and issue a Fieldline access token.
type Service struct {
	provider CodeExchanger
	users    UserDirectory
	tokens   *auth.TokenService
	logger   *observability.Logger
}

// NewService creates the SSO login service.
func NewService(provider CodeExchanger, users UserDirectory, tokens *auth.TokenService, logger *observability.Logger) *Service {
	return &Service{
		provider: provider,
		users:    users,
		tokens:   tokens,
		logger:   logger,
	}
}

// LoginURL returns the upstream authorization URL for the given state.
func (s *Service) LoginURL(state string) string {
	return s.provider.AuthCodeURL(state)
}

// Complete finishes the callback leg. The returned token carries only the
// user's identity; every permission check still goes through the store.
func (s *Service) Complete(ctx context.Context, code string) (string, *tenants.User, error) {
	external, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return "", nil, fmt.Errorf("SSO verification failed: %w", err)
	}

	user, err := s.users.GetUserByEmail(ctx, external.Email)
	if err != nil {
		if errors.Is(err, tenants.ErrUserNotFound) {
			s.logger.WithField("email", external.Email).
				Warn("SSO login for unprovisioned user rejected")
			return "", nil, ErrUnknownUser
		}
		return "", nil, fmt.Errorf("user lookup failed: %w", err)
	}
	if !user.Active {
		s.logger.WithField("user_id", user.ID).Warn("SSO login for deactivated user rejected")
		return "", nil, ErrUnknownUser
	}

	name := user.Name
	if name == "" {
		name = external.Name
	}
	token, err := s.tokens.Issue(user.ID, user.Email, name)
	if err != nil {
		return "", nil, fmt.Errorf("failed to issue token: %w", err)
	}
	return token, user, nil
}
