package core

import (
	"context"
	"io"

	"github.com/asura-ai/asura/internal/models"
)

// DbClient defines all persistence operations the service needs.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateFile(ctx context.Context, rec *models.FileRecord) error
	GetFileByID(ctx context.Context, id string, userID *string) (*models.FileRecord, error)
	ListFilesByUser(ctx context.Context, userID string, status string) ([]models.FileRecord, error)
	FindFileByContentHash(ctx context.Context, userID *string, hash string) (*models.FileRecord, error)

	UpdateFileStage(ctx context.Context, id string, status, stage string, progress int) error
	UpdateFileFailed(ctx context.Context, id string, stage string, errMsg string) error
	FinalizeFile(ctx context.Context, id string, description string, embedding []float32) error
	ClearFileError(ctx context.Context, id string) error

	DeleteFile(ctx context.Context, id string, userID *string) error

	Close() error
}

// ObjectClient defines interactions with S3 or any compatible object storage.
// The service uses it as a best-effort archive of raw uploaded bytes.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)

	GetObjectReader(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// EmbeddingProvider embeds document texts into fixed-length vectors.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// LLMProvider generates text from a system prompt and a user prompt.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// EventPublisher receives row-level change notifications from the pipeline
// and the HTTP layer. The SSE endpoint subscribes on the other side.
type EventPublisher interface {
	PublishUpdate(rec *models.FileRecord)
	PublishDelete(userID *string, fileID string)
}
