package services

import (
	"context"
	"log/slog"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/hintquest/apiserver/types"
)

const maxDisplayNameLength = 100

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByExternalID(ctx context.Context, externalID string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// UserService encapsulates registration and account administration.
type UserService struct {
	repo   UserRepository
	admins map[string]struct{}
	logger *slog.Logger
}

// NewUserService constructs a UserService. Accounts whose external id is
// listed in adminExternalIDs register with the admin role.
func NewUserService(repo UserRepository, adminExternalIDs []string, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	admins := make(map[string]struct{}, len(adminExternalIDs))
	for _, id := range adminExternalIDs {
		admins[id] = struct{}{}
	}
	return &UserService{repo: repo, admins: admins, logger: logger}
}

// Register creates the account for a chat-platform user.
func (s *UserService) Register(ctx context.Context, externalID, displayName, email string) (types.User, error) {
	externalID = strings.TrimSpace(externalID)
	displayName = strings.TrimSpace(displayName)
	if externalID == "" {
		return types.User{}, invalid("external_id", "is required")
	}
	if displayName == "" {
		displayName = externalID
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLength {
		return types.User{}, invalid("display_name", "is too long")
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return types.User{}, err
	}

	role := types.RoleUser
	if _, ok := s.admins[externalID]; ok {
		role = types.RoleAdmin
	}

	user, err := s.repo.Create(ctx, types.User{
		ExternalID:  externalID,
		DisplayName: displayName,
		Email:       email,
		Role:        role,
	})
	if err != nil {
		return types.User{}, translate(err)
	}
	s.logger.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	return user, translate(err)
}

func (s *UserService) GetByExternalID(ctx context.Context, externalID string) (types.User, error) {
	user, err := s.repo.GetByExternalID(ctx, strings.TrimSpace(externalID))
	return user, translate(err)
}

// UpdateEmail sets or clears the address used for badge delivery.
func (s *UserService) UpdateEmail(ctx context.Context, userID int, email string) (types.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return types.User{}, err
	}
	user, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return types.User{}, translate(err)
	}
	user.Email = email
	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, translate(err)
	}
	return updated, nil
}

// SetRole changes the role of another account. Admin only.
func (s *UserService) SetRole(ctx context.Context, actor types.User, targetID int, role string) (types.User, error) {
	if !actor.IsAdmin() {
		return types.User{}, ErrPermissionDenied
	}
	switch role {
	case types.RoleUser, types.RoleCreator, types.RoleAdmin:
	default:
		return types.User{}, invalid("role", "must be user, creator or admin")
	}
	user, err := s.repo.GetByID(ctx, targetID)
	if err != nil {
		return types.User{}, translate(err)
	}
	user.Role = role
	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, translate(err)
	}
	s.logger.Info("role changed", "actor", actor.ExternalID, "user_id", targetID, "role", role)
	return updated, nil
}

// DeleteUser removes an account with all of its progress, rewards and
// announcements. Admin only.
func (s *UserService) DeleteUser(ctx context.Context, actor types.User, targetID int) error {
	if !actor.IsAdmin() {
		return ErrPermissionDenied
	}
	if err := s.repo.Delete(ctx, targetID); err != nil {
		return translate(err)
	}
	s.logger.Info("user deleted", "actor", actor.ExternalID, "user_id", targetID)
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", nil
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", invalid("email", "is not a valid address")
	}
	return strings.ToLower(addr.Address), nil
}

