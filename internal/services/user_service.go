package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/liamwears/reelstream/internal/metrics"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/storage"
	"github.com/liamwears/reelstream/internal/store"
	"github.com/rs/zerolog"
)

const (
	minPasswordLength = 8
	maxProfileName    = 40
)

// UserService handles accounts, roles and viewer profiles
type UserService struct {
	users       store.UserStore
	tokens      *TokenService
	files       storage.Storage
	adminEmails map[string]bool
	logger      zerolog.Logger
}

// NewUserService creates a new UserService; accounts registered with an email in
// adminEmails start with the admin role
func NewUserService(users store.UserStore, tokens *TokenService, files storage.Storage, adminEmails []string, logger zerolog.Logger) *UserService {
	admins := make(map[string]bool, len(adminEmails))
	for _, e := range adminEmails {
		admins[strings.ToLower(strings.TrimSpace(e))] = true
	}
	return &UserService{
		users:       users,
		tokens:      tokens,
		files:       files,
		adminEmails: admins,
		logger:      logger,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return "", ErrBadRequest("a valid email is required")
	}
	return email, nil
}

func normalizeProfileName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrBadRequest("profile name is required")
	}
	if utf8.RuneCountInString(name) > maxProfileName {
		return "", ErrBadRequest(fmt.Sprintf("profile name must be at most %d characters", maxProfileName))
	}
	return name, nil
}

func defaultProfileName(user *models.User) string {
	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = strings.SplitN(user.Email, "@", 2)[0]
	}
	if utf8.RuneCountInString(name) > maxProfileName {
		name = string([]rune(name)[:maxProfileName])
	}
	return name
}

func (s *UserService) initialRoles(email string) []models.Role {
	roles := []models.Role{models.RoleUser}
	if s.adminEmails[email] {
		roles = append(roles, models.RoleAdmin)
	}
	return roles
}

func userError(err error, action string) error {
	if _, ok := AsServiceError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound("user not found")
	case errors.Is(err, store.ErrDuplicate):
		return ErrConflict("an account with this email already exists")
	}
	return wrapError(err, action)
}

// create stores a new account together with its first profile
func (s *UserService) create(ctx context.Context, user *models.User) (*models.User, error) {
	if err := s.users.Create(ctx, user); err != nil {
		return nil, userError(err, "failed to create user")
	}

	profile := &models.Profile{UserID: user.ID, Name: defaultProfileName(user)}
	if err := s.users.AddProfile(ctx, profile, models.MaxProfiles); err != nil {
		// an account without a profile would block re-registration
		if delErr := s.users.Delete(context.WithoutCancel(ctx), user.ID); delErr != nil {
			s.logger.Error().Err(delErr).Str("user_id", user.ID.String()).Msg("failed to remove user after profile error")
		}
		return nil, wrapError(err, "failed to create default profile")
	}
	user.Profiles = []models.Profile{*profile}

	s.logger.Info().Str("user_id", user.ID.String()).Msg("user registered")
	return user, nil
}

// Register creates a password account
func (s *UserService) Register(ctx context.Context, input models.RegisterInput) (*models.User, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if len(input.Password) < minPasswordLength {
		return nil, ErrBadRequest(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := s.tokens.HashPassword(input.Password)
	if err != nil {
		return nil, wrapError(err, "failed to hash password")
	}

	user, err := s.create(ctx, &models.User{
		Email:        email,
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: &hash,
		Roles:        s.initialRoles(email),
	})
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.AuthEvents.WithLabelValues("register", result).Inc()
	return user, err
}

// Authenticate checks an email and password pair
func (s *UserService) Authenticate(ctx context.Context, input models.LoginInput) (*models.User, error) {
	fail := func() (*models.User, error) {
		metrics.AuthEvents.WithLabelValues("login", "failed").Inc()
		return nil, ErrUnauthorized("invalid email or password")
	}

	email, err := normalizeEmail(input.Email)
	if err != nil {
		return fail()
	}
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return fail()
	}
	if err != nil {
		return nil, wrapError(err, "failed to find user")
	}
	if user.PasswordHash == nil || !s.tokens.VerifyPassword(input.Password, *user.PasswordHash) {
		return fail()
	}

	metrics.AuthEvents.WithLabelValues("login", "ok").Inc()
	return user, nil
}

// FindOrCreateOAuth finds a user by provider identity, links an existing account with the
// same email, or creates a new one
func (s *UserService) FindOrCreateOAuth(ctx context.Context, provider models.Provider, providerID, email, name string) (*models.User, error) {
	if !provider.IsValid() {
		return nil, ErrBadRequest(fmt.Sprintf("invalid provider: %s", provider))
	}

	// Try to find existing user
	user, err := s.users.GetByProvider(ctx, provider, providerID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, wrapError(err, "failed to find user")
	}

	email, err = normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	// Link by email
	user, err = s.users.GetByEmail(ctx, email)
	if err == nil {
		user.Provider = &provider
		user.ProviderID = &providerID
		if err := s.users.Update(ctx, user); err != nil {
			return nil, userError(err, "failed to link provider")
		}
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, wrapError(err, "failed to find user")
	}

	metrics.AuthEvents.WithLabelValues("oauth_register", "ok").Inc()
	return s.create(ctx, &models.User{
		Email:      email,
		Name:       strings.TrimSpace(name),
		Provider:   &provider,
		ProviderID: &providerID,
		Roles:      s.initialRoles(email),
	})
}

// Get retrieves a user with their profiles
func (s *UserService) Get(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, userError(err, "failed to get user")
	}
	if user.Profiles, err = s.users.ListProfiles(ctx, id); err != nil {
		return nil, wrapError(err, "failed to list profiles")
	}
	return user, nil
}

// UpdateSelf changes the name or email of the caller's own account; roles are out of reach
func (s *UserService) UpdateSelf(ctx context.Context, id uuid.UUID, input models.UpdateSelfInput) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, userError(err, "failed to get user")
	}

	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		if user.Email, err = normalizeEmail(*input.Email); err != nil {
			return nil, err
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, userError(err, "failed to update user")
	}
	return s.Get(ctx, id)
}

// SetRoles replaces a user's roles; the user role is always kept
func (s *UserService) SetRoles(ctx context.Context, actorID, id uuid.UUID, roles []models.Role) (*models.User, error) {
	next := []models.Role{models.RoleUser}
	for _, r := range roles {
		if !r.IsValid() {
			return nil, ErrBadRequest(fmt.Sprintf("unknown role: %s", r))
		}
		if !models.HasRole(next, r) {
			next = append(next, r)
		}
	}
	if actorID == id && !models.HasRole(next, models.RoleAdmin) {
		return nil, ErrBadRequest("admins cannot remove their own admin role")
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, userError(err, "failed to get user")
	}
	user.Roles = next
	if err := s.users.Update(ctx, user); err != nil {
		return nil, userError(err, "failed to update roles")
	}

	s.logger.Info().Str("actor_id", actorID.String()).Str("user_id", id.String()).Interface("roles", next).Msg("roles updated")
	return user, nil
}

// ListUsers retrieves all users (admin)
func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, wrapError(err, "failed to list users")
	}
	return users, nil
}

// DeleteUser removes an account and its profiles (admin); watch history is kept
func (s *UserService) DeleteUser(ctx context.Context, actorID, id uuid.UUID) error {
	if actorID == id {
		return ErrBadRequest("admins cannot delete their own account")
	}
	profiles, err := s.users.ListProfiles(ctx, id)
	if err != nil {
		return wrapError(err, "failed to list profiles")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return userError(err, "failed to delete user")
	}
	for _, p := range profiles {
		s.removeAvatar(ctx, p.AvatarPath)
	}
	s.logger.Info().Str("actor_id", actorID.String()).Str("user_id", id.String()).Msg("user deleted")
	return nil
}

// IssueToken signs a bearer token for the user, optionally bound to one of their profiles
func (s *UserService) IssueToken(ctx context.Context, user *models.User, profileID *uuid.UUID) (string, error) {
	if profileID != nil {
		if _, err := s.GetProfile(ctx, user.ID, *profileID); err != nil {
			return "", err
		}
	}
	token, _, err := s.tokens.Issue(user, profileID)
	if err != nil {
		return "", wrapError(err, "failed to sign token")
	}
	return token, nil
}

func profileError(err error, action string) error {
	if _, ok := AsServiceError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound("profile not found")
	case errors.Is(err, store.ErrDuplicate):
		return ErrConflict("a profile with this name already exists")
	case errors.Is(err, store.ErrLimitReached):
		return ErrBadRequest(fmt.Sprintf("an account can have at most %d profiles", models.MaxProfiles))
	}
	return wrapError(err, action)
}

func (s *UserService) saveAvatar(ctx context.Context, fh *multipart.FileHeader) (*string, error) {
	if fh == nil {
		return nil, nil
	}
	if s.files == nil {
		return nil, ErrBadRequest("file uploads are not enabled")
	}
	path, err := s.files.Save(ctx, fh, storage.KindAvatar)
	if err != nil {
		return nil, wrapError(err, "failed to store avatar")
	}
	return &path, nil
}

func (s *UserService) removeAvatar(ctx context.Context, path *string) {
	if path == nil || s.files == nil {
		return
	}
	if err := s.files.Remove(ctx, *path); err != nil {
		s.logger.Warn().Err(err).Str("path", *path).Msg("failed to remove avatar")
	}
}

// ListProfiles retrieves the caller's profiles
func (s *UserService) ListProfiles(ctx context.Context, userID uuid.UUID) ([]models.Profile, error) {
	profiles, err := s.users.ListProfiles(ctx, userID)
	if err != nil {
		return nil, wrapError(err, "failed to list profiles")
	}
	return profiles, nil
}

// GetProfile retrieves one of the caller's profiles
func (s *UserService) GetProfile(ctx context.Context, userID, profileID uuid.UUID) (*models.Profile, error) {
	profile, err := s.users.GetProfile(ctx, userID, profileID)
	if err != nil {
		return nil, profileError(err, "failed to get profile")
	}
	return profile, nil
}

// AddProfile creates a profile; the sixth attempt is rejected
func (s *UserService) AddProfile(ctx context.Context, userID uuid.UUID, name string, avatar *multipart.FileHeader) (*models.Profile, error) {
	name, err := normalizeProfileName(name)
	if err != nil {
		return nil, err
	}

	profiles, err := s.users.ListProfiles(ctx, userID)
	if err != nil {
		return nil, wrapError(err, "failed to list profiles")
	}
	if len(profiles) >= models.MaxProfiles {
		return nil, profileError(store.ErrLimitReached, "")
	}

	avatarPath, err := s.saveAvatar(ctx, avatar)
	if err != nil {
		return nil, err
	}

	profile := &models.Profile{UserID: userID, Name: name, AvatarPath: avatarPath}
	if err := s.users.AddProfile(ctx, profile, models.MaxProfiles); err != nil {
		s.removeAvatar(ctx, avatarPath)
		return nil, profileError(err, "failed to create profile")
	}
	return profile, nil
}

// UpdateProfile renames a profile and/or replaces its avatar
func (s *UserService) UpdateProfile(ctx context.Context, userID, profileID uuid.UUID, input models.ProfileInput, avatar *multipart.FileHeader) (*models.Profile, error) {
	profile, err := s.users.GetProfile(ctx, userID, profileID)
	if err != nil {
		return nil, profileError(err, "failed to get profile")
	}

	if input.Name != nil {
		if profile.Name, err = normalizeProfileName(*input.Name); err != nil {
			return nil, err
		}
	}

	oldAvatar := profile.AvatarPath
	newAvatar, err := s.saveAvatar(ctx, avatar)
	if err != nil {
		return nil, err
	}
	if newAvatar != nil {
		profile.AvatarPath = newAvatar
	}

	if err := s.users.UpdateProfile(ctx, profile); err != nil {
		s.removeAvatar(ctx, newAvatar)
		return nil, profileError(err, "failed to update profile")
	}
	if newAvatar != nil {
		s.removeAvatar(ctx, oldAvatar)
	}
	return profile, nil
}

// DeleteProfile removes a profile but keeps its watch history; the last profile cannot be removed
func (s *UserService) DeleteProfile(ctx context.Context, userID, profileID uuid.UUID) error {
	profile, err := s.users.GetProfile(ctx, userID, profileID)
	if err != nil {
		return profileError(err, "failed to get profile")
	}
	profiles, err := s.users.ListProfiles(ctx, userID)
	if err != nil {
		return wrapError(err, "failed to list profiles")
	}
	if len(profiles) <= 1 {
		return ErrBadRequest("an account must keep at least one profile")
	}

	if err := s.users.DeleteProfile(ctx, userID, profileID); err != nil {
		return profileError(err, "failed to delete profile")
	}
	s.removeAvatar(ctx, profile.AvatarPath)
	return nil
}
