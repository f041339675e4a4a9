package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/sessionops/sessiondock/internal/sessiondock"
)

type ServerConfig struct {
	MaxBodyBytes    int64
	RateLimitMax    int
	RateLimitWindow time.Duration
	Logger          zerolog.Logger
}

type Server struct {
	store       sessiondock.RecordStore
	aggregator  *sessiondock.Aggregator
	controller  *sessiondock.Controller
	ingestor    *sessiondock.Ingestor
	hub         *sessiondock.Hub
	cfg         ServerConfig
	rateLimiter *rateLimiter
	log         zerolog.Logger
	now         func() time.Time
}

type rateLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string]rateEntry
}

type rateEntry struct {
	count   int
	resetAt time.Time
}

func NewServer(store sessiondock.RecordStore, hub *sessiondock.Hub) *Server {
	return NewServerWithConfig(store, hub, ServerConfig{})
}

func NewServerWithConfig(store sessiondock.RecordStore, hub *sessiondock.Hub, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 16 << 20
	}
	if cfg.RateLimitMax < 0 {
		cfg.RateLimitMax = 0
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	var limiter *rateLimiter
	if cfg.RateLimitMax > 0 {
		limiter = &rateLimiter{
			window:  cfg.RateLimitWindow,
			max:     cfg.RateLimitMax,
			entries: map[string]rateEntry{},
		}
	}
	return &Server{
		store:       store,
		aggregator:  sessiondock.NewAggregator(store),
		controller:  sessiondock.NewController(store, hub),
		ingestor:    sessiondock.NewIngestor(store, hub),
		hub:         hub,
		cfg:         cfg,
		rateLimiter: limiter,
		log:         cfg.Logger,
		now:         time.Now,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	s.route(sw, r)
	s.log.Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", sw.status).
		Dur("duration", time.Since(start)).
		Msg("request")
}

func (s *Server) route(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" && r.Method == http.MethodGet {
		s.handleDashboard(w, r)
		return
	}
	if r.URL.Path == "/health" && r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if identifier, ok := strings.CutPrefix(r.URL.Path, "/files/"); ok && r.Method == http.MethodGet {
		s.handleRawFile(w, r, identifier)
		return
	}
	if !strings.HasPrefix(r.URL.Path, "/api/") {
		writeError(w, http.StatusNotFound, "not_found", "route not found")
		return
	}
	if s.rateLimiter != nil && !s.rateLimiter.allow(clientKey(r), time.Now().UTC()) {
		retryAfter := int(math.Ceil(s.rateLimiter.window.Seconds()))
		if retryAfter < 1 {
			retryAfter = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeError(w, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
		return
	}

	switch {
	case r.URL.Path == "/api/upload" && r.Method == http.MethodPost:
		s.handleUpload(w, r)
	case r.URL.Path == "/api/changes" && r.Method == http.MethodGet:
		s.handleChanges(w, r)
	case r.URL.Path == "/api/files" && r.Method == http.MethodGet:
		s.handleList(w, r)
	default:
		identifier, ok := strings.CutPrefix(r.URL.Path, "/api/files/")
		if !ok || identifier == "" || strings.Contains(identifier, "/") {
			writeError(w, http.StatusNotFound, "not_found", "route not found")
			return
		}
		switch r.Method {
		case http.MethodGet:
			s.handleGetOne(w, r, identifier)
		case http.MethodPut:
			s.handleUpdate(w, r, identifier)
		case http.MethodDelete:
			s.handleDelete(w, r, identifier)
		default:
			writeError(w, http.StatusNotFound, "not_found", "route not found")
		}
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxBodyBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "upload exceeds configured limit")
			return
		}
		writeError(w, http.StatusBadRequest, "bad_request", "no file uploaded")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read uploaded file")
		return
	}
	identifier, err := s.ingestor.Accept(header.Filename, data)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": "/files/" + identifier})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	result, err := s.aggregator.ListAll(s.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_unavailable", "unable to list records")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetOne(w http.ResponseWriter, r *http.Request, identifier string) {
	record, err := s.controller.GetOne(identifier)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type updateRequest struct {
	NewName *string `json:"newName"`
	NewData any     `json:"newData"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, identifier string) {
	var req updateRequest
	if !s.decodeJSONBody(w, r, &req) {
		return
	}
	switch {
	case req.NewName != nil && strings.TrimSpace(*req.NewName) != "":
		if err := s.controller.Rename(identifier, *req.NewName); err != nil {
			s.writeStoreError(w, err)
			return
		}
	case req.NewData != nil:
		if err := s.controller.UpdateContent(identifier, req.NewData); err != nil {
			s.writeStoreError(w, err)
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "bad_request", "no valid operation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, identifier string) {
	if err := s.controller.Delete(identifier); err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleRawFile(w http.ResponseWriter, r *http.Request, identifier string) {
	if identifier == "" || strings.Contains(identifier, "/") {
		writeError(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	blob, err := s.store.Get(identifier)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if strings.HasSuffix(identifier, sessiondock.SessionFileSuffix) {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", http.DetectContentType(blob.Bytes))
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Bytes)))
	_, _ = w.Write(blob.Bytes)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// The feed is write-only; CloseRead surfaces client disconnects.
	ctx := conn.CloseRead(r.Context())
	events, cancel := s.hub.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, 5*time.Second)
			err = conn.Write(writeCtx, websocket.MessageText, payload)
			cancelWrite()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sessiondock.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "record not found")
	case errors.Is(err, sessiondock.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", "target identifier already exists")
	case errors.Is(err, sessiondock.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", "invalid identifier or payload")
	default:
		s.log.Error().Err(err).Msg("store operation failed")
		writeError(w, http.StatusInternalServerError, "store_unavailable", "storage backend failed")
	}
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (l *rateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[key]
	if !ok || now.After(entry.resetAt) {
		l.entries[key] = rateEntry{
			count:   1,
			resetAt: now.Add(l.window),
		}
		return true
	}
	if entry.count >= l.max {
		return false
	}
	entry.count++
	l.entries[key] = entry
	return true
}

// statusWriter records the response code for the request log while keeping
// Flush and Hijack available to the websocket handshake.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
