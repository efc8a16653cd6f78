package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asura-ai/asura/internal/core"
	"github.com/asura-ai/asura/internal/models"
)

// Config tunes the file processor.
//
// MaxFileSizeMB:  upload size cap enforced before any row is created.
// RetryAttempts:  attempts for each database write in the compression,
//                 embedding and finalization stages.
// RetryBase:      first backoff delay; doubles per attempt (1s, 2s, 4s).
// QueueSize:      capacity of the in-memory job queue.
// ArchiveBucket:  object-storage bucket for raw upload archival; empty
//                 disables archival (and with it manual retry).
type Config struct {
	MaxFileSizeMB int
	MaxChars      int
	MaxTokens     int
	RetryAttempts int
	RetryBase     time.Duration
	QueueSize     int
	ArchiveBucket string
}

// ProgressFn observes pipeline progress for a single file. Calls arrive in
// strict stage order with non-decreasing progress values.
type ProgressFn func(stage string, progress int)

// Request describes one file to process. FileID is generated by the caller so
// the HTTP layer can respond with the row id before processing finishes.
type Request struct {
	FileID             string
	UserID             *string
	Filename           string
	ContentType        string
	Data               []byte
	SkipDuplicateCheck bool
	ReuseExistingRow   bool
	OnProgress         ProgressFn
}

// Processor sequences validation, extraction, compression, embedding and
// finalization for uploaded files, persisting lifecycle state after each
// stage. Files are processed strictly sequentially within one request;
// concurrent requests run as independent interleaved pipelines.
type Processor struct {
	db         core.DbClient
	obj        core.ObjectClient
	compressor *Compressor
	embedder   *Embedder
	events     core.EventPublisher
	cfg        *Config
	jobs       chan *Request
	log        *logrus.Logger
}

func NewProcessor(db core.DbClient, obj core.ObjectClient, llm core.LLMProvider, emb core.EmbeddingProvider, events core.EventPublisher, cfg *Config, log *logrus.Logger) *Processor {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Processor{
		db:         db,
		obj:        obj,
		compressor: NewCompressor(llm, cfg.MaxChars),
		embedder:   NewEmbedder(emb, cfg.MaxTokens),
		events:     events,
		cfg:        cfg,
		jobs:       make(chan *Request, cfg.QueueSize),
		log:        log,
	}
}

// Start runs numWorkers goroutines draining the job queue. Failures are
// logged and recorded on the file row; they are never returned to the
// uploader, whose response has long since been sent.
func (p *Processor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					p.log.WithField("worker", w).Info("file processor worker shutting down")
					return
				case req := <-p.jobs:
					if _, err := p.Process(ctx, req); err != nil {
						p.log.WithFields(logrus.Fields{
							"worker":  w,
							"file_id": req.FileID,
						}).WithError(err).Error("file processing failed")
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a request for background processing. Blocks when the
// queue is full.
func (p *Processor) Enqueue(req *Request) {
	p.jobs <- req
}

// Process runs the full pipeline for one file:
//
//	validating -> extracting -> compressing -> embedding -> finalizing -> ready|failed
//
// Input validation, the size cap, extraction and the duplicate check all run
// before the row is created, so their failures leave no trace in the
// database. Once the row exists, compression and embedding failures are
// recorded onto it (status=failed) before being re-raised to the caller.
func (p *Processor) Process(ctx context.Context, req *Request) (*models.FileRecord, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	if err := ValidateFileSize(req.Data, p.cfg.MaxFileSizeMB); err != nil {
		pe := AsPipelineError(err)
		return nil, NewError(CodeValidationError, pe.Message).WithDetails(mergeDetails(pe.Details, map[string]any{
			"reason": pe.Code,
		}))
	}

	extraction, err := ExtractText(req.Data, req.Filename)
	if err != nil {
		pe := AsPipelineError(err)
		return nil, NewError(CodeExtractionError, pe.Message).
			WithStage(models.StageExtraction).
			WithDetails(pe.Details).
			WithCause(err)
	}

	if !req.SkipDuplicateCheck {
		existing, err := p.db.FindFileByContentHash(ctx, req.UserID, extraction.ContentHash)
		if err != nil {
			return nil, NewError(CodeDatabaseError, "duplicate check failed").
				WithStage(models.StageExtraction).WithCause(err)
		}
		if existing != nil {
			return nil, NewError(CodeDuplicateFile,
				fmt.Sprintf("identical content already uploaded as file %s", existing.ID)).
				WithDetails(map[string]any{"existingFileId": existing.ID})
		}
	}

	now := time.Now().UTC()
	rec := &models.FileRecord{
		ID:          req.FileID,
		UserID:      req.UserID,
		Filename:    req.Filename,
		FileType:    extraction.FileType,
		ContentHash: extraction.ContentHash,
		FileSize:    extraction.FileSize,
		Status:      models.StatusPending,
		Progress:    0,
		UploadedAt:  now,
		UpdatedAt:   now,
	}

	if req.ReuseExistingRow {
		if err := p.db.ClearFileError(ctx, rec.ID); err != nil {
			return nil, NewError(CodeDatabaseError, "failed to reset file row for retry").WithCause(err)
		}
	} else {
		if err := p.db.CreateFile(ctx, rec); err != nil {
			return nil, NewError(CodeDatabaseError, "failed to create file row").WithCause(err)
		}
	}
	p.archive(ctx, req)

	p.setStage(ctx, rec, models.StageExtraction, 25)
	p.notify(req, models.StageExtraction, 25)

	compression, err := p.compressor.Compress(ctx, extraction.Text, req.Filename, extraction.FileType)
	if err != nil {
		return nil, p.fail(ctx, rec, models.StageCompression, CodeCompressionError, err)
	}
	p.setStage(ctx, rec, models.StageCompression, 75)
	p.notify(req, models.StageCompression, 75)

	embedding, err := p.embedder.Embed(ctx, compression.Description)
	if err != nil {
		return nil, p.fail(ctx, rec, models.StageEmbedding, CodeEmbeddingError, err)
	}
	p.setStage(ctx, rec, models.StageEmbedding, 90)
	p.notify(req, models.StageEmbedding, 90)

	p.withRetry(ctx, "finalize file", func() error {
		return p.db.FinalizeFile(ctx, rec.ID, compression.Description, embedding)
	})
	rec.Status = models.StatusReady
	rec.Description = &compression.Description
	rec.Embedding = embedding
	stage := models.StageFinalization
	rec.ProcessingStage = &stage
	rec.Progress = 100
	rec.UpdatedAt = time.Now().UTC()
	p.publish(rec)
	p.notify(req, models.StageFinalization, 100)

	p.log.WithFields(logrus.Fields{
		"file_id":   rec.ID,
		"file_type": rec.FileType,
		"words":     extraction.WordCount,
	}).Info("file processed")
	return rec, nil
}

// Retry re-runs the pipeline for an existing failed row, reading the raw
// bytes back from the archive. The duplicate check is skipped since the row
// being retried already owns the content hash.
func (p *Processor) Retry(ctx context.Context, fileID string, userID *string) error {
	rec, err := p.db.GetFileByID(ctx, fileID, userID)
	if err != nil {
		return NewError(CodeDatabaseError, "failed to load file row").WithCause(err)
	}
	if rec == nil {
		return NewError(CodeValidationError, fmt.Sprintf("file %s not found", fileID))
	}
	if rec.Status != models.StatusFailed {
		return NewError(CodeValidationError,
			fmt.Sprintf("file %s has status %q; only failed files can be retried", fileID, rec.Status))
	}
	if p.obj == nil || p.cfg.ArchiveBucket == "" {
		return NewError(CodeValidationError, "raw file archive is not configured; retry unavailable")
	}

	data, err := p.obj.GetFile(ctx, p.cfg.ArchiveBucket, archiveKey(rec.UserID, rec.ID, rec.Filename))
	if err != nil {
		return NewError(CodeAPIError, "failed to read archived file").WithCause(err)
	}

	p.Enqueue(&Request{
		FileID:             rec.ID,
		UserID:             rec.UserID,
		Filename:           rec.Filename,
		ContentType:        "application/octet-stream",
		Data:               data,
		SkipDuplicateCheck: true,
		ReuseExistingRow:   true,
	})
	return nil
}

func validateRequest(req *Request) error {
	if req.Data == nil {
		return NewError(CodeValidationError, "file buffer is nil")
	}
	if req.Filename == "" {
		return NewError(CodeValidationError, "filename is required")
	}
	if req.ContentType == "" {
		return NewError(CodeValidationError, "content type is required")
	}
	if req.FileID == "" {
		return NewError(CodeValidationError, "file id is required")
	}
	if req.UserID != nil {
		if _, err := uuid.Parse(*req.UserID); err != nil {
			return NewError(CodeValidationError, fmt.Sprintf("user id %q is not a valid UUID", *req.UserID))
		}
	}
	return nil
}

// fail records the failure on the row, publishes the change, and wraps the
// stage error into the orchestrator-level taxonomy.
func (p *Processor) fail(ctx context.Context, rec *models.FileRecord, stage, code string, cause error) error {
	pe := AsPipelineError(cause)
	p.withRetry(ctx, "mark file failed", func() error {
		return p.db.UpdateFileFailed(ctx, rec.ID, stage, pe.Message)
	})
	rec.Status = models.StatusFailed
	rec.ProcessingStage = &stage
	msg := pe.Message
	rec.ErrorMessage = &msg
	rec.UpdatedAt = time.Now().UTC()
	p.publish(rec)
	return NewError(code, pe.Message).WithStage(stage).WithDetails(pe.Details).WithCause(cause)
}

func (p *Processor) setStage(ctx context.Context, rec *models.FileRecord, stage string, progress int) {
	p.withRetry(ctx, "update file stage", func() error {
		return p.db.UpdateFileStage(ctx, rec.ID, models.StatusProcessing, stage, progress)
	})
	rec.Status = models.StatusProcessing
	rec.ProcessingStage = &stage
	rec.Progress = progress
	rec.UpdatedAt = time.Now().UTC()
	p.publish(rec)
}

// withRetry runs a database write with bounded exponential backoff. A write
// that still fails after the final attempt is logged and abandoned rather
// than re-raised, so an unhealthy database cannot wedge the pipeline.
func (p *Processor) withRetry(ctx context.Context, op string, fn func() error) {
	delay := p.cfg.RetryBase
	var err error
	for attempt := 1; attempt <= p.cfg.RetryAttempts; attempt++ {
		if err = fn(); err == nil {
			return
		}
		if attempt == p.cfg.RetryAttempts {
			break
		}
		p.log.WithFields(logrus.Fields{"op": op, "attempt": attempt}).
			WithError(err).Warn("database write failed, retrying")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
	p.log.WithField("op", op).WithError(err).Error("database write abandoned after retries")
}

// archive copies the raw bytes to object storage when a bucket is
// configured. Best effort: failures are logged and never fail the pipeline.
func (p *Processor) archive(ctx context.Context, req *Request) {
	if p.obj == nil || p.cfg.ArchiveBucket == "" {
		return
	}
	key := archiveKey(req.UserID, req.FileID, req.Filename)
	if _, err := p.obj.UploadFile(ctx, p.cfg.ArchiveBucket, key, req.Data, req.ContentType); err != nil {
		p.log.WithField("file_id", req.FileID).WithError(err).Warn("raw file archival failed")
	}
}

func (p *Processor) notify(req *Request, stage string, progress int) {
	if req.OnProgress != nil {
		req.OnProgress(stage, progress)
	}
}

func (p *Processor) publish(rec *models.FileRecord) {
	if p.events != nil {
		snapshot := *rec
		p.events.PublishUpdate(&snapshot)
	}
}

func archiveKey(userID *string, fileID, filename string) string {
	scope := "anonymous"
	if userID != nil {
		scope = *userID
	}
	return fmt.Sprintf("%s/%s/%s", scope, fileID, filename)
}

func mergeDetails(a, b map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
