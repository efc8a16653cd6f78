package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asura-ai/asura/internal/models"
)

// fakeServer emulates the file API: a list endpoint, an upload endpoint, a
// delete endpoint and a controllable SSE stream.
type fakeServer struct {
	srv *httptest.Server

	mu           sync.Mutex
	files        []models.FileRecord
	uploadStatus int
	deleteStatus int
	eventsStatus int
	stream       chan string
	listCalls    atomic.Int64
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		uploadStatus: http.StatusAccepted,
		deleteStatus: http.StatusOK,
		eventsStatus: http.StatusOK,
		stream:       make(chan string),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/files", func(w http.ResponseWriter, r *http.Request) {
		f.listCalls.Add(1)
		f.mu.Lock()
		files := append([]models.FileRecord(nil), f.files...)
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data":    map[string]any{"files": files, "count": len(files)},
		})
	})
	mux.HandleFunc("GET /api/files/events", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.eventsStatus
		stream := f.stream
		f.mu.Unlock()
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"down","code":"INTERNAL_ERROR"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		rc := http.NewResponseController(w)
		if rc.Flush() != nil {
			return
		}
		for {
			select {
			case <-r.Context().Done():
				return
			case chunk, open := <-stream:
				if !open {
					return
				}
				fmt.Fprint(w, chunk)
				if rc.Flush() != nil {
					return
				}
			}
		}
	})
	mux.HandleFunc("POST /api/files/upload", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.uploadStatus
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusAccepted {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"file exceeds the upload size limit","code":"FILE_TOO_LARGE"}}`)
			return
		}
		if err := r.ParseMultipartForm(16 << 20); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": map[string]any{
				"id":       "new-file-id",
				"filename": header.Filename,
				"fileSize": header.Size,
				"status":   models.StatusPending,
			},
		})
	})
	mux.HandleFunc("DELETE /api/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		status := f.deleteStatus
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"failed to delete file","code":"DATABASE_ERROR"}}`)
			return
		}
		fmt.Fprint(w, `{"success":true,"data":{"message":"file deleted"}}`)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) push(event, data string) {
	f.mu.Lock()
	stream := f.stream
	f.mu.Unlock()
	stream <- fmt.Sprintf("event: %s\ndata: %s\n\n", event, data)
}

func quietStoreLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestStore(f *fakeServer) *Store {
	return New(Options{
		BaseURL:         f.srv.URL,
		Token:           "test-token",
		ReconnectBase:   time.Millisecond,
		MaxReconnects:   2,
		ErrorClearDelay: 20 * time.Millisecond,
		Logger:          quietStoreLogger(),
	})
}

func waitFor(t *testing.T, ch <-chan Snapshot, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case snap := <-ch:
			if cond(snap) {
				return snap
			}
		case <-deadline:
			t.Fatal("snapshot condition never met")
		}
	}
}

func subscribeBuffered(s *Store) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 64)
	unsub := s.Subscribe(func(snap Snapshot) { ch <- snap })
	return ch, unsub
}

func TestStoreInitialListAndLiveUpdates(t *testing.T) {
	f := newFakeServer(t)
	owner := "u1"
	f.files = []models.FileRecord{
		{ID: "a", UserID: &owner, Filename: "a.txt", Status: models.StatusReady, UploadedAt: time.Now().Add(-time.Hour)},
	}
	s := newTestStore(f)

	ch, unsub := subscribeBuffered(s)
	defer unsub()

	waitFor(t, ch, func(snap Snapshot) bool { return len(snap.Files) == 1 })

	update, err := json.Marshal(models.FileRecord{
		ID: "b", UserID: &owner, Filename: "b.txt",
		Status: models.StatusProcessing, Progress: 25, UploadedAt: time.Now(),
	})
	require.NoError(t, err)
	f.push("file-update", string(update))

	snap := waitFor(t, ch, func(snap Snapshot) bool { return len(snap.Files) == 2 })
	// newest upload first
	assert.Equal(t, "b", snap.Files[0].ID)
	require.Len(t, snap.Processing, 1)
	require.Len(t, snap.Ready, 1)
	assert.Empty(t, snap.Failed)

	f.push("file-deleted", `{"id":"b"}`)
	snap = waitFor(t, ch, func(snap Snapshot) bool { return len(snap.Files) == 1 })
	assert.Equal(t, "a", snap.Files[0].ID)
}

func TestStoreHeartbeatIsNoop(t *testing.T) {
	f := newFakeServer(t)
	s := newTestStore(f)

	ch, unsub := subscribeBuffered(s)
	defer unsub()
	waitFor(t, ch, func(snap Snapshot) bool { return snap.Files != nil })

	f.push("heartbeat", `{"ts":1}`)
	f.push("file-update", `{"id":"x","status":"ready","uploaded_at":"2026-08-01T00:00:00Z","updated_at":"2026-08-01T00:00:00Z"}`)

	snap := waitFor(t, ch, func(snap Snapshot) bool { return len(snap.Files) == 1 })
	assert.Equal(t, "x", snap.Files[0].ID)
}

func TestStoreRefetchesListOnReconnect(t *testing.T) {
	f := newFakeServer(t)
	s := newTestStore(f)

	ch, unsub := subscribeBuffered(s)
	defer unsub()
	waitFor(t, ch, func(snap Snapshot) bool { return snap.Files != nil })
	firstCalls := f.listCalls.Load()

	// drop the stream; the record appears in the list instead of an event,
	// emulating a change missed while disconnected
	f.mu.Lock()
	f.files = []models.FileRecord{{ID: "missed", Status: models.StatusReady, UploadedAt: time.Now()}}
	close(f.stream)
	f.stream = make(chan string)
	f.mu.Unlock()

	snap := waitFor(t, ch, func(snap Snapshot) bool { return len(snap.Files) == 1 })
	assert.Equal(t, "missed", snap.Files[0].ID)
	assert.Greater(t, f.listCalls.Load(), firstCalls)
}

func TestStoreConnectionLostAfterExhaustedRetries(t *testing.T) {
	f := newFakeServer(t)
	f.eventsStatus = http.StatusInternalServerError
	s := newTestStore(f)

	ch, unsub := subscribeBuffered(s)
	defer unsub()

	snap := waitFor(t, ch, func(snap Snapshot) bool { return snap.Err != "" })
	assert.Equal(t, "connection lost", snap.Err)

	// terminal error does not auto-clear
	time.Sleep(3 * s.opts.ErrorClearDelay)
	assert.Equal(t, "connection lost", s.Snapshot().Err)
}

func TestStoreSecondSubscriberGetsImmediateSnapshot(t *testing.T) {
	f := newFakeServer(t)
	s := newTestStore(f)

	ch1, unsub1 := subscribeBuffered(s)
	defer unsub1()
	waitFor(t, ch1, func(snap Snapshot) bool { return snap.Files != nil })

	got := make(chan Snapshot, 1)
	unsub2 := s.Subscribe(func(snap Snapshot) {
		select {
		case got <- snap:
		default:
		}
	})
	defer unsub2()

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("second subscriber never received a snapshot")
	}
}

func TestStoreUploadOptimisticInsert(t *testing.T) {
	f := newFakeServer(t)
	s := newTestStore(f)

	id, err := s.Upload(context.Background(), "notes.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "new-file-id", id)

	snap := s.Snapshot()
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "notes.txt", snap.Files[0].Filename)
	assert.Equal(t, models.StatusPending, snap.Files[0].Status)
	require.Len(t, snap.Processing, 1)
}

func TestStoreUploadFailureSetsTransientError(t *testing.T) {
	f := newFakeServer(t)
	f.uploadStatus = http.StatusRequestEntityTooLarge
	s := newTestStore(f)

	_, err := s.Upload(context.Background(), "big.bin", []byte("too big"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FILE_TOO_LARGE")
	assert.Empty(t, s.Snapshot().Files)
	assert.Contains(t, s.Snapshot().Err, "upload failed")

	// transient errors clear on their own
	deadline := time.Now().Add(2 * time.Second)
	for s.Snapshot().Err != "" {
		if time.Now().After(deadline) {
			t.Fatal("transient error never cleared")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStoreDeleteOptimisticThenRollback(t *testing.T) {
	f := newFakeServer(t)
	s := newTestStore(f)
	s.files["doomed"] = models.FileRecord{ID: "doomed", Status: models.StatusReady, UploadedAt: time.Now()}

	// success path removes and stays removed
	require.NoError(t, s.Delete(context.Background(), "doomed"))
	assert.Empty(t, s.Snapshot().Files)

	// failure path restores the record and surfaces a transient error
	s.files["kept"] = models.FileRecord{ID: "kept", Status: models.StatusReady, UploadedAt: time.Now()}
	f.mu.Lock()
	f.deleteStatus = http.StatusInternalServerError
	f.mu.Unlock()

	err := s.Delete(context.Background(), "kept")
	require.Error(t, err)
	snap := s.Snapshot()
	require.Len(t, snap.Files, 1)
	assert.Equal(t, "kept", snap.Files[0].ID)
	assert.Contains(t, snap.Err, "delete failed")
}

func TestStoreUnsubscribeLastClosesStream(t *testing.T) {
	f := newFakeServer(t)
	s := newTestStore(f)

	ch, unsub := subscribeBuffered(s)
	waitFor(t, ch, func(snap Snapshot) bool { return snap.Files != nil })
	unsub()

	// the server side of the stream observes the disconnect; pushing into a
	// channel nobody drains would block, so probe the subscriber count instead
	s.mu.Lock()
	assert.Empty(t, s.listeners)
	assert.Nil(t, s.cancel)
	s.mu.Unlock()
}
