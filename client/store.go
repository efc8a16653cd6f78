// Package client provides a reactive cache of file records kept in sync with
// the Asura server over its SSE stream. The connection is reference-counted:
// the first subscriber opens it, the last one closes it.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asura-ai/asura/internal/models"
)

// Options configures a Store. BaseURL and Token are required.
type Options struct {
	BaseURL string
	Token   string

	HTTPClient      *http.Client
	ReconnectBase   time.Duration // first reconnect delay, doubles per attempt
	MaxReconnects   int           // attempts before surfacing "connection lost"
	ErrorClearDelay time.Duration // how long transient action errors persist
	Logger          *logrus.Logger
}

// Snapshot is the store state delivered to subscribers. Processing, Ready and
// Failed are views derived from Files by status.
type Snapshot struct {
	Files      []models.FileRecord
	Processing []models.FileRecord
	Ready      []models.FileRecord
	Failed     []models.FileRecord
	Err        string
}

// Store owns the SSE connection handle and the in-memory record cache.
type Store struct {
	opts Options
	log  *logrus.Logger

	mu          sync.Mutex
	files       map[string]models.FileRecord
	listeners   map[int]func(Snapshot)
	nextID      int
	cancel      context.CancelFunc
	transientMu sync.Mutex
	errMsg      string
	errTimer    *time.Timer
}

func New(opts Options) *Store {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.ReconnectBase <= 0 {
		opts.ReconnectBase = time.Second
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 5
	}
	if opts.ErrorClearDelay <= 0 {
		opts.ErrorClearDelay = 5 * time.Second
	}
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}
	return &Store{
		opts:      opts,
		log:       log,
		files:     make(map[string]models.FileRecord),
		listeners: make(map[int]func(Snapshot)),
	}
}

// Subscribe registers fn to receive snapshots on every state change and
// returns a disposal handle. The first subscription fetches the initial list
// and opens the event stream; disposing the last one closes it.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	first := len(s.listeners) == 1
	s.mu.Unlock()

	if first {
		ctx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()
		go s.run(ctx)
	} else {
		fn(s.snapshot())
	}

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		last := len(s.listeners) == 0
		cancel := s.cancel
		if last {
			s.cancel = nil
		}
		s.mu.Unlock()
		if last && cancel != nil {
			cancel()
		}
	}
}

// run keeps the event stream alive, reconnecting with exponential backoff.
// A successful connection resets the backoff counter; exhausting the attempts
// surfaces a user-visible "connection lost" error.
func (s *Store) run(ctx context.Context) {
	attempts := 0
	delay := s.opts.ReconnectBase

	for {
		connected, err := s.streamOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if connected {
			attempts = 0
			delay = s.opts.ReconnectBase
		}
		attempts++
		if attempts > s.opts.MaxReconnects {
			s.log.WithError(err).Error("event stream reconnect attempts exhausted")
			s.setError("connection lost", false)
			return
		}
		s.log.WithError(err).WithField("attempt", attempts).Warn("event stream dropped, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// streamOnce connects, resynchronizes the list, and consumes events until the
// stream breaks. connected reports whether the SSE handshake succeeded.
func (s *Store) streamOnce(ctx context.Context) (connected bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.BaseURL+"/api/files/events", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+s.opts.Token)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	// Events emitted while disconnected are gone for good, so each
	// (re)connection re-fetches the full list before applying the stream.
	if err := s.refresh(ctx); err != nil {
		return true, err
	}

	return true, readSSE(resp.Body, s.apply)
}

// refresh replaces the cache with the server's current list.
func (s *Store) refresh(ctx context.Context) error {
	var out struct {
		Success bool `json:"success"`
		Data    struct {
			Files []models.FileRecord `json:"files"`
		} `json:"data"`
	}
	if err := s.getJSON(ctx, "/api/files", &out); err != nil {
		return err
	}

	s.mu.Lock()
	s.files = make(map[string]models.FileRecord, len(out.Data.Files))
	for _, f := range out.Data.Files {
		s.files[f.ID] = f
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// apply merges one stream event into the cache by id. Heartbeats are no-ops.
func (s *Store) apply(event string, data []byte) {
	switch event {
	case "file-update":
		var rec models.FileRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			s.log.WithError(err).Warn("malformed file-update event")
			return
		}
		s.mu.Lock()
		s.files[rec.ID] = rec
		s.mu.Unlock()
		s.notify()
	case "file-deleted":
		var payload struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &payload); err != nil {
			s.log.WithError(err).Warn("malformed file-deleted event")
			return
		}
		s.mu.Lock()
		delete(s.files, payload.ID)
		s.mu.Unlock()
		s.notify()
	case "heartbeat":
	}
}

// Upload sends a file and optimistically inserts the pending record returned
// by the server. Failures surface as a transient store error.
func (s *Store) Upload(ctx context.Context, filename string, data []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.BaseURL+"/api/files/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+s.opts.Token)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		s.setError("upload failed: "+err.Error(), true)
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		err := decodeAPIError(resp.Body, resp.StatusCode)
		s.setError("upload failed: "+err.Error(), true)
		return "", err
	}

	var out struct {
		Data struct {
			ID       string `json:"id"`
			Filename string `json:"filename"`
			FileSize int64  `json:"fileSize"`
			Status   string `json:"status"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}

	now := time.Now()
	s.mu.Lock()
	s.files[out.Data.ID] = models.FileRecord{
		ID:         out.Data.ID,
		Filename:   out.Data.Filename,
		FileSize:   out.Data.FileSize,
		Status:     out.Data.Status,
		UploadedAt: now,
		UpdatedAt:  now,
	}
	s.mu.Unlock()
	s.notify()
	return out.Data.ID, nil
}

// Delete removes a record locally first, then on the server. A server-side
// failure surfaces as a transient error.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	removed, existed := s.files[id]
	delete(s.files, id)
	s.mu.Unlock()
	s.notify()

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, s.opts.BaseURL+"/api/files/"+id, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.opts.Token)

	resp, err := s.opts.HTTPClient.Do(req)
	if err == nil {
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return nil
		}
		err = decodeAPIError(resp.Body, resp.StatusCode)
	}

	if existed {
		s.mu.Lock()
		s.files[id] = removed
		s.mu.Unlock()
		s.notify()
	}
	s.setError("delete failed: "+err.Error(), true)
	return err
}

// Snapshot returns the current state with its derived views.
func (s *Store) Snapshot() Snapshot { return s.snapshot() }

func (s *Store) snapshot() Snapshot {
	s.mu.Lock()
	files := make([]models.FileRecord, 0, len(s.files))
	for _, f := range s.files {
		files = append(files, f)
	}
	s.mu.Unlock()

	sort.Slice(files, func(i, j int) bool {
		return files[i].UploadedAt.After(files[j].UploadedAt)
	})

	s.transientMu.Lock()
	errMsg := s.errMsg
	s.transientMu.Unlock()

	snap := Snapshot{Files: files, Err: errMsg}
	for _, f := range files {
		switch f.Status {
		case models.StatusPending, models.StatusProcessing:
			snap.Processing = append(snap.Processing, f)
		case models.StatusReady:
			snap.Ready = append(snap.Ready, f)
		case models.StatusFailed:
			snap.Failed = append(snap.Failed, f)
		}
	}
	return snap
}

func (s *Store) notify() {
	snap := s.snapshot()
	s.mu.Lock()
	fns := make([]func(Snapshot), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// setError surfaces a store-level error. Transient errors auto-clear after
// the configured delay; the terminal "connection lost" error does not.
func (s *Store) setError(msg string, transient bool) {
	s.transientMu.Lock()
	s.errMsg = msg
	if s.errTimer != nil {
		s.errTimer.Stop()
		s.errTimer = nil
	}
	if transient {
		s.errTimer = time.AfterFunc(s.opts.ErrorClearDelay, func() {
			s.transientMu.Lock()
			s.errMsg = ""
			s.transientMu.Unlock()
			s.notify()
		})
	}
	s.transientMu.Unlock()
	s.notify()
}

func (s *Store) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.opts.Token)

	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp.Body, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(body io.Reader, status int) error {
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&envelope); err == nil && envelope.Error.Code != "" {
		return fmt.Errorf("%s: %s", envelope.Error.Code, envelope.Error.Message)
	}
	return fmt.Errorf("server returned status %d", status)
}
