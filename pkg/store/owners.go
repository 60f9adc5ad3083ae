package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/harrisonrobin/clarity/pkg/model"
)

// ErrEmailExists is returned when an owner with the same email exists.
var ErrEmailExists = errors.New("email already registered")

// OwnerStore is the identity lookup the pipeline consumes. Tasks never
// mutate owners; only the calendar connect flow stores a refresh token.
type OwnerStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewOwnerStore(db *DB) *OwnerStore {
	return &OwnerStore{db: db.conn, now: time.Now}
}

// Create registers a new owner with a generated id.
func (s *OwnerStore) Create(ctx context.Context, email string) (*model.Owner, error) {
	owner := &model.Owner{
		ID:        uuid.NewString(),
		Email:     strings.TrimSpace(email),
		CreatedAt: s.now().UTC(),
	}
	query, args, err := psql.Insert("owners").
		Columns("id", "email", "created_at").
		Values(owner.ID, owner.Email, formatTime(owner.CreatedAt)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: build insert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return nil, ErrEmailExists
		}
		return nil, fmt.Errorf("sqlite: create owner: %w", err)
	}
	return owner, nil
}

// FindOwnerByID returns the owner or ErrNotFound.
func (s *OwnerStore) FindOwnerByID(ctx context.Context, id string) (*model.Owner, error) {
	return s.findOne(ctx, sq.Eq{"id": id})
}

func (s *OwnerStore) FindOwnerByEmail(ctx context.Context, email string) (*model.Owner, error) {
	return s.findOne(ctx, sq.Expr("lower(email) = lower(?)", strings.TrimSpace(email)))
}

func (s *OwnerStore) findOne(ctx context.Context, pred sq.Sqlizer) (*model.Owner, error) {
	query, args, err := psql.Select("id", "email", "google_refresh_token", "created_at").
		From("owners").
		Where(pred).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("sqlite: build select: %w", err)
	}
	var (
		o         model.Owner
		createdAt string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&o.ID, &o.Email, &o.GoogleRefreshToken, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("sqlite: find owner: %w", err)
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// SetCalendarToken stores the calendar refresh token obtained during consent.
func (s *OwnerStore) SetCalendarToken(ctx context.Context, id, refreshToken string) error {
	query, args, err := psql.Update("owners").
		Set("google_refresh_token", refreshToken).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("sqlite: build update: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlite: set calendar token: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("sqlite: rows affected (set calendar token): %w", err)
	} else if n == 0 {
		return ErrNotFound
	}
	return nil
}
