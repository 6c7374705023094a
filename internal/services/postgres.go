package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/StevenACZ/peso-tracker-backend/internal/errs"
	"github.com/StevenACZ/peso-tracker-backend/internal/models"
)

// PostgresStore holds photo records and answers the authoritative
// weight-record ownership lookups. The weights table itself is owned by the
// main CRUD backend; this service only reads it.
type PostgresStore struct {
	db  *sql.DB
	log *zap.Logger
}

func NewPostgresStore(connectionString string, log *zap.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PostgresStore{db: db, log: log}
	if err := store.createTables(); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	log.Info("connected to PostgreSQL")
	return store, nil
}

func (p *PostgresStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS photos (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		weight_id TEXT NOT NULL UNIQUE,
		notes TEXT DEFAULT '',
		thumbnail_path VARCHAR(500) NOT NULL,
		medium_path VARCHAR(500) NOT NULL,
		full_path VARCHAR(500) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_photos_user_id ON photos(user_id);
	`
	_, err := p.db.Exec(query)
	return err
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// SavePhoto inserts a photo row. A weight record owns at most one photo, so a
// second upload for the same record replaces the row.
func (p *PostgresStore) SavePhoto(ctx context.Context, photo models.Photo) error {
	query := `
	INSERT INTO photos (id, user_id, weight_id, notes, thumbnail_path, medium_path, full_path, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (weight_id) DO UPDATE SET
		id = EXCLUDED.id,
		notes = EXCLUDED.notes,
		thumbnail_path = EXCLUDED.thumbnail_path,
		medium_path = EXCLUDED.medium_path,
		full_path = EXCLUDED.full_path,
		created_at = EXCLUDED.created_at
	`
	_, err := p.db.ExecContext(ctx, query,
		photo.ID, photo.UserID, photo.WeightID, photo.Notes,
		photo.ThumbnailPath, photo.MediumPath, photo.FullPath, photo.CreatedAt)
	if err != nil {
		return fmt.Errorf("save photo: %w", err)
	}
	return nil
}

func (p *PostgresStore) GetPhoto(ctx context.Context, photoID string) (models.Photo, error) {
	query := `
	SELECT id, user_id, weight_id, notes, thumbnail_path, medium_path, full_path, created_at
	FROM photos WHERE id = $1
	`
	return p.scanPhoto(p.db.QueryRowContext(ctx, query, photoID))
}

func (p *PostgresStore) GetPhotoByWeightID(ctx context.Context, weightID string) (models.Photo, error) {
	query := `
	SELECT id, user_id, weight_id, notes, thumbnail_path, medium_path, full_path, created_at
	FROM photos WHERE weight_id = $1
	`
	return p.scanPhoto(p.db.QueryRowContext(ctx, query, weightID))
}

func (p *PostgresStore) scanPhoto(row *sql.Row) (models.Photo, error) {
	var photo models.Photo
	err := row.Scan(
		&photo.ID, &photo.UserID, &photo.WeightID, &photo.Notes,
		&photo.ThumbnailPath, &photo.MediumPath, &photo.FullPath, &photo.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Photo{}, errs.ErrNotFound
		}
		return models.Photo{}, fmt.Errorf("scan photo: %w", err)
	}
	return photo, nil
}

func (p *PostgresStore) DeletePhoto(ctx context.Context, photoID string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM photos WHERE id = $1`, photoID)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// DeletePhotosForUser removes all of a user's photo rows and returns them so
// the caller can purge the matching derivatives.
func (p *PostgresStore) DeletePhotosForUser(ctx context.Context, userID string) ([]models.Photo, error) {
	query := `
	DELETE FROM photos WHERE user_id = $1
	RETURNING id, user_id, weight_id, notes, thumbnail_path, medium_path, full_path, created_at
	`
	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("delete photos for user: %w", err)
	}
	defer rows.Close()

	var photos []models.Photo
	for rows.Next() {
		var photo models.Photo
		if err := rows.Scan(
			&photo.ID, &photo.UserID, &photo.WeightID, &photo.Notes,
			&photo.ThumbnailPath, &photo.MediumPath, &photo.FullPath, &photo.CreatedAt); err != nil {
			return photos, fmt.Errorf("scan deleted photo: %w", err)
		}
		photos = append(photos, photo)
	}
	return photos, rows.Err()
}

// FindWeightOwner answers the authoritative ownership question: which user
// owns the given weight record. This read is the source of truth the
// path-embedded hint is checked against.
func (p *PostgresStore) FindWeightOwner(ctx context.Context, weightID string) (string, error) {
	var ownerID string
	err := p.db.QueryRowContext(ctx, `SELECT user_id FROM weights WHERE id = $1`, weightID).Scan(&ownerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errs.ErrNotFound
		}
		return "", fmt.Errorf("find weight owner: %w", err)
	}
	return ownerID, nil
}
