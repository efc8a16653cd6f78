package respond

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuccessEnvelope(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, http.StatusCreated, map[string]string{"token": "abc"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":{"token":"abc"}}`, w.Body.String())
}

func TestErrorEnvelopeOmitsEmptyDetails(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusNotFound, CodeFileNotFound, "file not found")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":{"message":"file not found","code":"FILE_NOT_FOUND"}}`, w.Body.String())
}

func TestErrorEnvelopeWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorWithDetails(w, http.StatusRequestEntityTooLarge, CodeFileTooLarge,
		"file exceeds the upload size limit", map[string]any{"maxBytes": 10485760})

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.JSONEq(t, `{"error":{"message":"file exceeds the upload size limit","code":"FILE_TOO_LARGE","details":{"maxBytes":10485760}}}`, w.Body.String())
}
