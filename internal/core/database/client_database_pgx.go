package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/asura-ai/asura/internal/config"
	"github.com/asura-ai/asura/internal/core"
	"github.com/asura-ai/asura/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (core.DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Pool settings sized for an API service; adjust as needed.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// nullVector scans a nullable pgvector column.
type nullVector struct {
	Vector pgvector.Vector
	Valid  bool
}

func (v *nullVector) Scan(src any) error {
	if src == nil {
		v.Valid = false
		return nil
	}
	v.Valid = true
	return v.Vector.Scan(src)
}

// --- users ---

func (c *DatabaseClient) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return errors.New("nil user")
	}
	const q = `
		INSERT INTO users (id, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, now()), COALESCE($5, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		user.ID, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	const q = `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1
	`
	var u models.User
	err := c.db.QueryRowContext(ctx, q, email).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// --- files ---

func (c *DatabaseClient) CreateFile(ctx context.Context, rec *models.FileRecord) error {
	if rec == nil {
		return errors.New("nil file record")
	}
	const q = `
		INSERT INTO files
			(id, user_id, filename, file_type, content_hash, file_size, status, progress, uploaded_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), COALESCE($10, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		rec.ID, rec.UserID, rec.Filename, rec.FileType, rec.ContentHash,
		rec.FileSize, rec.Status, rec.Progress, rec.UploadedAt, rec.UpdatedAt)
	return err
}

const fileColumns = `
	id, user_id, filename, file_type, content_hash, file_size,
	description, embedding, status, processing_stage, progress,
	error_message, uploaded_at, updated_at
`

func scanFile(row interface{ Scan(...any) error }) (*models.FileRecord, error) {
	var (
		rec models.FileRecord
		emb nullVector
	)
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Filename, &rec.FileType, &rec.ContentHash,
		&rec.FileSize, &rec.Description, &emb, &rec.Status, &rec.ProcessingStage,
		&rec.Progress, &rec.ErrorMessage, &rec.UploadedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if emb.Valid {
		rec.Embedding = emb.Vector.Slice()
	}
	return &rec, nil
}

// GetFileByID fetches one row. When userID is non-nil the row must belong to
// that user; a nil userID matches only anonymous rows. Rows owned by someone
// else scan as no-rows, which the HTTP layer reports as a uniform 404.
func (c *DatabaseClient) GetFileByID(ctx context.Context, id string, userID *string) (*models.FileRecord, error) {
	var row *sql.Row
	if userID != nil {
		row = c.db.QueryRowContext(ctx,
			`SELECT `+fileColumns+` FROM files WHERE id = $1 AND user_id = $2`, id, *userID)
	} else {
		row = c.db.QueryRowContext(ctx,
			`SELECT `+fileColumns+` FROM files WHERE id = $1 AND user_id IS NULL`, id)
	}
	rec, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *DatabaseClient) ListFilesByUser(ctx context.Context, userID string, status string) ([]models.FileRecord, error) {
	q := `SELECT ` + fileColumns + ` FROM files WHERE user_id = $1`
	args := []any{userID}
	if status != "" {
		q += ` AND status = $2`
		args = append(args, status)
	}
	q += ` ORDER BY uploaded_at DESC`

	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FileRecord
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// FindFileByContentHash looks up a prior upload of identical bytes scoped to
// one user (or to the anonymous scope). Not a transactional guard: two
// concurrent identical uploads in a tight race can both miss here.
func (c *DatabaseClient) FindFileByContentHash(ctx context.Context, userID *string, hash string) (*models.FileRecord, error) {
	var row *sql.Row
	if userID != nil {
		row = c.db.QueryRowContext(ctx,
			`SELECT `+fileColumns+` FROM files WHERE user_id = $1 AND content_hash = $2 LIMIT 1`, *userID, hash)
	} else {
		row = c.db.QueryRowContext(ctx,
			`SELECT `+fileColumns+` FROM files WHERE user_id IS NULL AND content_hash = $1 LIMIT 1`, hash)
	}
	rec, err := scanFile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (c *DatabaseClient) UpdateFileStage(ctx context.Context, id string, status, stage string, progress int) error {
	const q = `
		UPDATE files
		SET status = $2, processing_stage = $3, progress = $4, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, stage, progress)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("file not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) UpdateFileFailed(ctx context.Context, id string, stage string, errMsg string) error {
	const q = `
		UPDATE files
		SET status = 'failed', processing_stage = $2, error_message = $3, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, stage, errMsg)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("file not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) FinalizeFile(ctx context.Context, id string, description string, embedding []float32) error {
	const q = `
		UPDATE files
		SET description = $2, embedding = $3, status = 'ready',
		    processing_stage = 'finalization', progress = 100,
		    error_message = NULL, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, description, pgvector.NewVector(embedding))
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("file not found: %s", id)
	}
	return nil
}

// ClearFileError resets a failed row ahead of a manual retry.
func (c *DatabaseClient) ClearFileError(ctx context.Context, id string) error {
	const q = `
		UPDATE files
		SET status = 'pending', processing_stage = NULL, progress = 0,
		    error_message = NULL, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("file not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) DeleteFile(ctx context.Context, id string, userID *string) error {
	var (
		res sql.Result
		err error
	)
	if userID != nil {
		res, err = c.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1 AND user_id = $2`, id, *userID)
	} else {
		res, err = c.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1 AND user_id IS NULL`, id)
	}
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
