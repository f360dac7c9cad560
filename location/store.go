package location

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/teranos/waypoint/errors"
)

// Store is the SQLite-backed storage collaborator of every job.
// Timestamps are written in UTC so (timestamp, id) ordering is lexical.
type Store struct {
	db *sql.DB
}

// NewStore creates a store over an open, migrated database
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// CreateUser adds a user with a generated id and API key
func (s *Store) CreateUser(ctx context.Context, email string, isAdmin bool) (*User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, errors.NewInvalidRequestError("invalid email %q", email)
	}

	u := &User{
		ID:        uuid.NewString(),
		Email:     email,
		IsAdmin:   isAdmin,
		APIKey:    strings.ReplaceAll(uuid.NewString(), "-", ""),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, is_admin, api_key, created_at) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.IsAdmin, u.APIKey, u.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, errors.Wrapf(errors.ErrConflict, "user %s already exists", email)
		}
		return nil, errors.Wrap(err, "failed to create user")
	}
	return u, nil
}

// GetUser returns the user with id
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, is_admin, api_key, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.IsAdmin, &u.APIKey, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("user %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get user %s", id)
	}
	return &u, nil
}

// ListUsers returns every user ordered by email
func (s *Store) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, email, is_admin, api_key, created_at FROM users ORDER BY email`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.IsAdmin, &u.APIKey, &u.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan user")
		}
		users = append(users, u)
	}
	return users, errors.Wrap(rows.Err(), "failed to iterate users")
}

// ListUserIDs returns every user id
func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "failed to scan user id")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "failed to iterate user ids")
}

// CreateImport registers an import for userID
func (s *Store) CreateImport(ctx context.Context, userID, filename, originalFilename string) (*Import, error) {
	imp := &Import{
		ID:               uuid.NewString(),
		UserID:           userID,
		Filename:         filename,
		OriginalFilename: originalFilename,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO imports (id, user_id, filename, original_filename, created_at) VALUES (?, ?, ?, ?, ?)`,
		imp.ID, imp.UserID, imp.Filename, imp.OriginalFilename, imp.CreatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create import")
	}
	return imp, nil
}

// GetImport returns the import with id
func (s *Store) GetImport(ctx context.Context, id string) (*Import, error) {
	var imp Import
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, filename, original_filename, created_at, total_entries, done
		FROM imports WHERE id = ?`, id).
		Scan(&imp.ID, &imp.UserID, &imp.Filename, &imp.OriginalFilename, &imp.CreatedAt, &imp.TotalEntries, &imp.Done)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("import %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get import %s", id)
	}
	return &imp, nil
}

// EnsureImport returns the import with id, creating it for userID when missing.
// An import owned by another user is rejected.
func (s *Store) EnsureImport(ctx context.Context, id, userID, filename, originalFilename string) (*Import, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO imports (id, user_id, filename, original_filename, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, userID, filename, originalFilename, time.Now().UTC().Truncate(time.Second))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to ensure import %s", id)
	}

	imp, err := s.GetImport(ctx, id)
	if err != nil {
		return nil, err
	}
	if imp.UserID != userID {
		return nil, errors.NewInvalidRequestError("import %s belongs to another user", id)
	}
	return imp, nil
}

// FinishImport records the number of stored entries and sets the done flag
func (s *Store) FinishImport(ctx context.Context, id string, totalEntries int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE imports SET total_entries = ?, done = 1 WHERE id = ?`, totalEntries, id)
	if err != nil {
		return errors.Wrapf(err, "failed to finish import %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("import %s", id)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
