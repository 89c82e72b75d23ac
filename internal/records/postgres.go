package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore wraps an existing pool; the caller owns its lifecycle.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS photos (
	id            TEXT PRIMARY KEY,
	original_url  TEXT NOT NULL,
	result_url    TEXT NOT NULL DEFAULT '',
	prompt        TEXT NOT NULL DEFAULT '',
	model_version TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	error         TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Migrate creates the photos table when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("records: migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, photo Photo) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO photos (id, original_url, result_url, prompt, model_version, status, error, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
`, photo.ID, photo.OriginalURL, photo.ResultURL, photo.Prompt, photo.ModelVersion,
		photo.Status, photo.Error, photo.CreatedAt, photo.UpdatedAt)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Photo, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, original_url, result_url, prompt, model_version, status, error, created_at, updated_at
FROM photos
WHERE id = $1;
`, id)
	var photo Photo
	if err := row.Scan(&photo.ID, &photo.OriginalURL, &photo.ResultURL, &photo.Prompt,
		&photo.ModelVersion, &photo.Status, &photo.Error, &photo.CreatedAt, &photo.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Photo{}, ErrNotFound
		}
		return Photo{}, err
	}
	return photo, nil
}

func (s *PostgresStore) SetProcessing(ctx context.Context, id, prompt, modelVersion string) error {
	return s.exec(ctx, `
UPDATE photos
SET status = $2, prompt = $3, model_version = $4, error = '', updated_at = now()
WHERE id = $1;
`, id, StatusProcessing, prompt, modelVersion)
}

func (s *PostgresStore) SetResult(ctx context.Context, id, resultURL string) error {
	return s.exec(ctx, `
UPDATE photos
SET status = $2, result_url = $3, error = '', updated_at = now()
WHERE id = $1;
`, id, StatusDone, resultURL)
}

func (s *PostgresStore) SetFailed(ctx context.Context, id, message string) error {
	return s.exec(ctx, `
UPDATE photos
SET status = $2, error = $3, updated_at = now()
WHERE id = $1;
`, id, StatusFailed, message)
}

func (s *PostgresStore) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Photo, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, original_url, result_url, prompt, model_version, status, error, created_at, updated_at
FROM photos
ORDER BY created_at DESC;
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var photos []Photo
	for rows.Next() {
		var photo Photo
		if err := rows.Scan(&photo.ID, &photo.OriginalURL, &photo.ResultURL, &photo.Prompt,
			&photo.ModelVersion, &photo.Status, &photo.Error, &photo.CreatedAt, &photo.UpdatedAt); err != nil {
			return nil, err
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}
