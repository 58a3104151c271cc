package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/caredesk/gatekit/internal/gate/domain"
	"github.com/caredesk/gatekit/internal/gate/store"
	"github.com/caredesk/gatekit/pkg/cryptox"
	"github.com/caredesk/gatekit/pkg/sanitize"
	"github.com/caredesk/gatekit/pkg/slogx"
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrEmailTaken         = errors.New("email_taken")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrOperationBudget    = errors.New("operation_budget_exceeded")
)

// ValidationError carries the per-field messages a caller should surface.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %d field(s)", len(e.Fields))
}

// UserService handles registration, login and profile management. Every
// outcome that touches an account, including failures, lands in the audit
// trail via Guard.
type UserService struct {
	Store  store.Store
	Tokens *TokenService
	Guard  *AuditGuard
}

// RegisterInput is the raw, untrusted registration payload.
type RegisterInput struct {
	Email    string
	Name     string
	Password string

	// ClientIdentity is the caller's network identity for the audit trail.
	ClientIdentity string
}

// Register validates and creates an account, then signs the first session
// in. The duplicate check and the insert run in one transaction so two
// racing registrations cannot both win; the UNIQUE index is the backstop.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (domain.User, domain.CredentialPair, error) {
	email := sanitize.Email(in.Email)
	name := sanitize.Text(in.Name, 100)

	if verr := validateRegistration(email, name, in.Password); verr != nil {
		s.Guard.Record(ctx, AuditEvent{
			Action:         "auth.register",
			Resource:       "user",
			ClientIdentity: in.ClientIdentity,
			Success:        false,
			Error:          verr.Error(),
		})
		return domain.User{}, domain.CredentialPair{}, verr
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.User{}, domain.CredentialPair{}, fmt.Errorf("hash password: %w", err)
	}

	var user domain.User
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		exists, err := tx.Users().EmailExists(ctx, email)
		if err != nil {
			return err
		}
		if exists {
			return ErrEmailTaken
		}

		user, err = tx.Users().CreateUser(ctx, domain.User{
			Email:        email,
			Name:         name,
			PasswordHash: hash,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			err = ErrEmailTaken
		}
		s.Guard.Record(ctx, AuditEvent{
			Action:         "auth.register",
			Resource:       "user",
			ClientIdentity: in.ClientIdentity,
			Success:        false,
			Error:          err.Error(),
		})
		return domain.User{}, domain.CredentialPair{}, err
	}

	pair, err := s.Tokens.IssuePair(ctx, user)
	if err != nil {
		return domain.User{}, domain.CredentialPair{}, err
	}

	s.Guard.Record(ctx, AuditEvent{
		SubjectID:      &user.ID,
		Action:         "auth.register",
		Resource:       "user",
		ClientIdentity: in.ClientIdentity,
		Success:        true,
	})

	slogx.FromContext(ctx).Info("user registered", "user_id", user.ID)
	return user, pair, nil
}

// Authenticate verifies credentials and issues a session. Unknown email and
// wrong password collapse into one error so the endpoint cannot be used to
// probe which addresses hold accounts.
func (s *UserService) Authenticate(ctx context.Context, email, password, clientIdentity string) (domain.User, domain.CredentialPair, error) {
	email = sanitize.Email(email)

	fail := func(reason string) (domain.User, domain.CredentialPair, error) {
		s.Guard.Record(ctx, AuditEvent{
			Action:         "auth.login",
			Resource:       "session",
			ClientIdentity: clientIdentity,
			Success:        false,
			Error:          reason,
		})
		return domain.User{}, domain.CredentialPair{}, ErrInvalidCredentials
	}

	if email == "" || password == "" {
		return fail("missing credentials")
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Burn a hash verification anyway so the unknown-email path
			// takes about as long as the wrong-password path.
			_ = cryptox.VerifyPassword(password, dummyHash)
			return fail("unknown email")
		}
		return domain.User{}, domain.CredentialPair{}, err
	}

	if err := cryptox.VerifyPassword(password, user.PasswordHash); err != nil {
		return fail("password mismatch")
	}

	pair, err := s.Tokens.IssuePair(ctx, user)
	if err != nil {
		return domain.User{}, domain.CredentialPair{}, err
	}

	s.Guard.Record(ctx, AuditEvent{
		SubjectID:      &user.ID,
		Action:         "auth.login",
		Resource:       "session",
		ClientIdentity: clientIdentity,
		Success:        true,
	})

	return user, pair, nil
}

// Profile returns the externally visible account data.
func (s *UserService) Profile(ctx context.Context, userID int64) (domain.Profile, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Profile{}, ErrUserNotFound
		}
		return domain.Profile{}, err
	}
	return user.Profile(), nil
}

// UpdateProfile changes the display name after sanitisation. Updates are
// additionally metered per subject so a compliant-looking client cannot
// churn the record endlessly.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, name, clientIdentity string) (domain.Profile, error) {
	if !s.Guard.Allow(ctx, userID, "user.update_profile") {
		return domain.Profile{}, ErrOperationBudget
	}

	name = sanitize.Text(name, 100)
	if !sanitize.ValidName(name) {
		return domain.Profile{}, &ValidationError{Fields: map[string][]string{
			"name": {"name must be 2-100 characters of letters, spaces, hyphens, apostrophes or periods"},
		}}
	}

	if err := s.Store.Users().UpdateProfile(ctx, userID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Profile{}, ErrUserNotFound
		}
		return domain.Profile{}, err
	}

	s.Guard.Record(ctx, AuditEvent{
		SubjectID:      &userID,
		Action:         "user.update_profile",
		Resource:       "user",
		ClientIdentity: clientIdentity,
		Success:        true,
	})

	return s.Profile(ctx, userID)
}

// EmailAvailable reports whether an address is free to register.
func (s *UserService) EmailAvailable(ctx context.Context, email string) (bool, error) {
	email = sanitize.Email(email)
	if !sanitize.ValidEmail(email) {
		return false, &ValidationError{Fields: map[string][]string{
			"email": {"email address is not valid"},
		}}
	}

	exists, err := s.Store.Users().EmailExists(ctx, email)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

func validateRegistration(email, name, password string) *ValidationError {
	fields := make(map[string][]string)

	if !sanitize.ValidEmail(email) {
		fields["email"] = append(fields["email"], "email address is not valid")
	}
	if !sanitize.ValidName(name) {
		fields["name"] = append(fields["name"], "name must be 2-100 characters of letters, spaces, hyphens, apostrophes or periods")
	}

	strength := sanitize.PasswordStrength(password)
	if !strength.IsValid {
		fields["password"] = append(fields["password"], strength.Errors...)
	}
	if sanitize.HasCommonPattern(password) {
		fields["password"] = append(fields["password"], "password contains a common pattern")
	}
	if sanitize.HasSequentialRun(password) {
		fields["password"] = append(fields["password"], "password contains sequential characters")
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// dummyHash is a valid argon2id digest of a throwaway value, used to keep
// login timing roughly uniform when the email is unknown.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=2$c29tZXNhbHRzb21lc2FsdA$G5K0C8t+IXPKMUSUmKlfSco3nGPberVzr9BeHdDyhOo"
