package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/asura-ai/asura/internal/api/middlewares"
	"github.com/asura-ai/asura/internal/api/respond"
	"github.com/asura-ai/asura/internal/core"
	"github.com/asura-ai/asura/internal/core/pipeline"
	"github.com/asura-ai/asura/internal/models"
)

// fileProcessor is the slice of the pipeline the HTTP layer needs.
type fileProcessor interface {
	Enqueue(req *pipeline.Request)
	Retry(ctx context.Context, fileID string, userID *string) error
}

type FileHandler struct {
	dbclient  core.DbClient
	processor fileProcessor
	events    core.EventPublisher
	maxMB     int
	log       *logrus.Logger
}

func NewFileHandler(dbclient core.DbClient, processor fileProcessor, events core.EventPublisher, maxMB int, log *logrus.Logger) *FileHandler {
	return &FileHandler{dbclient: dbclient, processor: processor, events: events, maxMB: maxMB, log: log}
}

// Upload accepts a multipart upload and hands it to the pipeline without
// waiting for completion. The 202 response carries a placeholder pending
// record; pipeline failures surface only through the persisted row state.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middlewares.UserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
		return
	}

	// One extra MB of slack so the size violation is reported as
	// FILE_TOO_LARGE rather than a generic form parse failure.
	if err := r.ParseMultipartForm(int64(h.maxMB+1) << 20); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeFormParseError, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeNoFile, "no file provided")
		return
	}
	defer file.Close()

	filename := filepath.Base(header.Filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidFilename, "invalid filename")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeFileReadError, "failed to read file contents")
		return
	}
	if len(data) == 0 {
		respond.Error(w, http.StatusBadRequest, pipeline.CodeEmptyFile, "file is empty")
		return
	}
	if int64(len(data)) > int64(h.maxMB)<<20 {
		respond.ErrorWithDetails(w, http.StatusRequestEntityTooLarge, respond.CodeFileTooLarge,
			"file exceeds the upload size limit",
			map[string]any{"observedBytes": len(data), "maxBytes": int64(h.maxMB) << 20})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	fileID := uuid.NewString()
	owner := userID
	h.processor.Enqueue(&pipeline.Request{
		FileID:             fileID,
		UserID:             &owner,
		Filename:           filename,
		ContentType:        contentType,
		Data:               data,
		SkipDuplicateCheck: r.FormValue("skip_duplicate_check") == "true",
	})

	respond.Success(w, http.StatusAccepted, map[string]any{
		"id":       fileID,
		"filename": filename,
		"fileSize": len(data),
		"status":   models.StatusPending,
		"message":  "file accepted for processing",
	})
}

// List returns the caller's files, newest upload first, optionally filtered
// by status.
func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middlewares.UserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
		return
	}

	status := r.URL.Query().Get("status")
	if status != "" && !models.ValidStatus(status) {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidStatusFilter,
			"status must be one of pending, processing, ready, failed")
		return
	}

	files, err := h.dbclient.ListFilesByUser(r.Context(), userID, status)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, respond.CodeDatabaseError, "failed to list files")
		return
	}
	if files == nil {
		files = []models.FileRecord{}
	}

	respond.Success(w, http.StatusOK, map[string]any{
		"files": files,
		"count": len(files),
	})
}

// Get returns one file row. Not-found and not-owned are deliberately
// indistinguishable so callers can't probe other users' files.
func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := middlewares.UserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidFileID, "file id must be a UUID")
		return
	}

	rec, err := h.dbclient.GetFileByID(r.Context(), id, &userID)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, respond.CodeDatabaseError, "failed to fetch file")
		return
	}
	if rec == nil {
		respond.Error(w, http.StatusNotFound, respond.CodeFileNotFound, "file not found")
		return
	}

	respond.Success(w, http.StatusOK, rec)
}

// Delete removes one file row after an ownership-scoped existence check.
func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middlewares.UserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidFileID, "file id must be a UUID")
		return
	}

	rec, err := h.dbclient.GetFileByID(r.Context(), id, &userID)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, respond.CodeDatabaseError, "failed to fetch file")
		return
	}
	if rec == nil {
		respond.Error(w, http.StatusNotFound, respond.CodeFileNotFound, "file not found")
		return
	}

	if err := h.dbclient.DeleteFile(r.Context(), id, &userID); err != nil {
		respond.Error(w, http.StatusInternalServerError, respond.CodeDatabaseError, "failed to delete file")
		return
	}
	if h.events != nil {
		h.events.PublishDelete(&userID, id)
	}

	respond.Success(w, http.StatusOK, map[string]string{
		"message": "file deleted",
		"id":      id,
	})
}

// Retry re-enqueues a failed file for processing.
func (h *FileHandler) Retry(w http.ResponseWriter, r *http.Request) {
	userID, ok := middlewares.UserIDFromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, respond.CodeAuthRequired, "authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respond.Error(w, http.StatusBadRequest, respond.CodeInvalidFileID, "file id must be a UUID")
		return
	}

	if err := h.processor.Retry(r.Context(), id, &userID); err != nil {
		var pe *pipeline.Error
		if errors.As(err, &pe) {
			switch {
			case strings.Contains(pe.Message, "not found"):
				respond.Error(w, http.StatusNotFound, respond.CodeFileNotFound, "file not found")
			case pe.Code == pipeline.CodeDatabaseError:
				respond.Error(w, http.StatusInternalServerError, respond.CodeDatabaseError, pe.Message)
			default:
				respond.ErrorWithDetails(w, http.StatusBadRequest, pe.Code, pe.Message, pe.Details)
			}
			return
		}
		respond.Error(w, http.StatusInternalServerError, respond.CodeInternalError, "retry failed")
		return
	}

	respond.Success(w, http.StatusAccepted, map[string]string{
		"id":      id,
		"message": "file re-enqueued for processing",
	})
}
