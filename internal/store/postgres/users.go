package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/liamwears/reelstream/internal/models"
	"github.com/liamwears/reelstream/internal/store"
)

// UserStore persists accounts in "User" and profiles in "Profile"
type UserStore struct {
	db *pgxpool.Pool
}

const userColumns = `id, email, name, "passwordHash", provider, "providerId", roles, "createdAt", "updatedAt"`

func scanUser(row pgx.Row) (*models.User, error) {
	var (
		user     models.User
		provider *string
		roles    []string
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.PasswordHash,
		&provider,
		&user.ProviderID,
		&roles,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if provider != nil {
		p := models.Provider(*provider)
		user.Provider = &p
	}
	user.Roles = make([]models.Role, len(roles))
	for i, r := range roles {
		user.Roles[i] = models.Role(r)
	}
	return &user, nil
}

func roleStrings(roles []models.Role) []string {
	out := make([]string, len(roles))
	for i, r := range roles {
		out[i] = string(r)
	}
	return out
}

func providerString(p *models.Provider) *string {
	if p == nil {
		return nil
	}
	s := p.String()
	return &s
}

// Create inserts a new user
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	query := `
		INSERT INTO "User" (id, email, name, "passwordHash", provider, "providerId", roles)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING "createdAt", "updatedAt"
	`
	err := s.db.QueryRow(ctx, query,
		u.ID,
		u.Email,
		u.Name,
		u.PasswordHash,
		providerString(u.Provider),
		u.ProviderID,
		roleStrings(u.Roles),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err = translate(err); errors.Is(err, store.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (s *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM "User" WHERE id = $1`
	u, err := scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email, case-insensitively
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM "User" WHERE lower(email) = lower($1)`
	u, err := scanUser(s.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// GetByProvider retrieves a user by their OAuth identity
func (s *UserStore) GetByProvider(ctx context.Context, provider models.Provider, providerID string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM "User" WHERE provider = $1 AND "providerId" = $2`
	u, err := scanUser(s.db.QueryRow(ctx, query, provider.String(), providerID))
	if err != nil {
		return nil, translate(err)
	}
	return u, nil
}

// Update writes the mutable account fields
func (s *UserStore) Update(ctx context.Context, u *models.User) error {
	query := `
		UPDATE "User"
		SET email = $2, name = $3, "passwordHash" = $4, provider = $5, "providerId" = $6,
		    roles = $7, "updatedAt" = NOW()
		WHERE id = $1
		RETURNING "createdAt", "updatedAt"
	`
	err := s.db.QueryRow(ctx, query,
		u.ID,
		u.Email,
		u.Name,
		u.PasswordHash,
		providerString(u.Provider),
		u.ProviderID,
		roleStrings(u.Roles),
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err = translate(err); errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// List retrieves all users, newest first
func (s *UserStore) List(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM "User" ORDER BY "createdAt" DESC`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// Delete removes a user; profiles go with it through the foreign key
func (s *UserStore) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := s.db.Exec(ctx, `DELETE FROM "User" WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const profileColumns = `id, "userId", name, "avatarPath", "createdAt"`

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.AvatarPath, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// AddProfile locks the owning user row, counts profiles and inserts when under max
func (s *UserStore) AddProfile(ctx context.Context, p *models.Profile, max int) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM "User" WHERE id = $1 FOR UPDATE`, p.UserID).Scan(&locked); err != nil {
		return translate(err)
	}

	var count int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM "Profile" WHERE "userId" = $1`, p.UserID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count profiles: %w", err)
	}
	if count >= max {
		return store.ErrLimitReached
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	query := `
		INSERT INTO "Profile" (id, "userId", name, "avatarPath")
		VALUES ($1, $2, $3, $4)
		RETURNING "createdAt"
	`
	if err := tx.QueryRow(ctx, query, p.ID, p.UserID, p.Name, p.AvatarPath).Scan(&p.CreatedAt); err != nil {
		if err = translate(err); errors.Is(err, store.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit profile: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile owned by userID
func (s *UserStore) GetProfile(ctx context.Context, userID, profileID uuid.UUID) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM "Profile" WHERE id = $1 AND "userId" = $2`
	p, err := scanProfile(s.db.QueryRow(ctx, query, profileID, userID))
	if err != nil {
		return nil, translate(err)
	}
	return p, nil
}

func (s *UserStore) queryProfiles(ctx context.Context, query string, args ...interface{}) ([]models.Profile, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	profiles := []models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}

// ListProfiles retrieves a user's profiles in creation order
func (s *UserStore) ListProfiles(ctx context.Context, userID uuid.UUID) ([]models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM "Profile" WHERE "userId" = $1 ORDER BY "createdAt" ASC, id ASC`
	return s.queryProfiles(ctx, query, userID)
}

// GetProfiles loads profiles by ID; missing IDs are absent from the result
func (s *UserStore) GetProfiles(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error) {
	out := make(map[uuid.UUID]models.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	profiles, err := s.queryProfiles(ctx, `SELECT `+profileColumns+` FROM "Profile" WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		out[p.ID] = p
	}
	return out, nil
}

// UpdateProfile writes the name and avatar of a profile
func (s *UserStore) UpdateProfile(ctx context.Context, p *models.Profile) error {
	query := `
		UPDATE "Profile" SET name = $3, "avatarPath" = $4
		WHERE id = $1 AND "userId" = $2
		RETURNING "createdAt"
	`
	if err := s.db.QueryRow(ctx, query, p.ID, p.UserID, p.Name, p.AvatarPath).Scan(&p.CreatedAt); err != nil {
		if err = translate(err); errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrDuplicate) {
			return err
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// DeleteProfile removes a profile; its history rows are left in place
func (s *UserStore) DeleteProfile(ctx context.Context, userID, profileID uuid.UUID) error {
	result, err := s.db.Exec(ctx, `DELETE FROM "Profile" WHERE id = $1 AND "userId" = $2`, profileID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if result.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
