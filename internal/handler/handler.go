// Package handler turns HTTP requests into uploads, messages and static
// responses.
package handler

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"time"

	"dropzone/internal/logging"
	"dropzone/internal/relay"
	"dropzone/internal/storage"
)

// Sink opens upload sessions. *storage.Sink implements it.
type Sink interface {
	Begin(ctx context.Context, rawName, remote string) (*storage.Session, error)
}

// Relay forwards messages and upload notices to the operator.
// *relay.Console implements it.
type Relay interface {
	Deliver(m relay.Message) error
	FileReceived(sf storage.StoredFile) error
}

// Options are the per-request limits.
type Options struct {
	MaxBodySize    int64 // whole upload request, 0 = unlimited
	MaxMessageSize int64
	IdleTimeout    time.Duration // longest allowed pause while reading a body
}

// ShareInfo is what /api/info reports about how to reach the server.
type ShareInfo struct {
	Scheme    string   `json:"scheme"`
	Addresses []string `json:"addresses"`
	URLs      []string `json:"urls"`
}

// Handler is the request dispatcher.
type Handler struct {
	sink    Sink
	relay   Relay
	logger  logging.Logger
	opts    Options
	share   ShareInfo
	started time.Time
}

func New(sink Sink, rl Relay, logger logging.Logger, opts Options, share ShareInfo) *Handler {
	return &Handler{
		sink:    sink,
		relay:   rl,
		logger:  logger,
		opts:    opts,
		share:   share,
		started: time.Now(),
	}
}

type requestKind int

const (
	kindUnrecognized requestKind = iota
	kindStatic
	kindHealth
	kindInfo
	kindUpload
	kindMessage
)

func (k requestKind) String() string {
	switch k {
	case kindStatic:
		return "static"
	case kindHealth:
		return "health"
	case kindInfo:
		return "info"
	case kindUpload:
		return "upload"
	case kindMessage:
		return "message"
	default:
		return "unrecognized"
	}
}

const (
	pathIndex   = "/"
	pathFavicon = "/favicon.svg"
	pathHealth  = "/health"
	pathInfo    = "/api/info"
	pathUpload  = "/upload"
	pathMessage = "/message"
)

func isRead(r *http.Request) bool {
	return r.Method == http.MethodGet || r.Method == http.MethodHead
}

func mediaType(r *http.Request) string {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// classify maps a request onto the closed set of things the server does.
func classify(r *http.Request) requestKind {
	switch r.URL.Path {
	case pathIndex, "/index.html", pathFavicon:
		if isRead(r) {
			return kindStatic
		}
	case pathHealth:
		if isRead(r) {
			return kindHealth
		}
	case pathInfo:
		if isRead(r) {
			return kindInfo
		}
	case pathUpload:
		if r.Method == http.MethodPost && mediaType(r) == "multipart/form-data" {
			return kindUpload
		}
	case pathMessage:
		if r.Method == http.MethodPost {
			switch mediaType(r) {
			case "multipart/form-data", "application/x-www-form-urlencoded", "text/plain":
				return kindMessage
			}
		}
	}
	return kindUnrecognized
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch classify(r) {
	case kindStatic:
		h.handleStatic(w, r)
	case kindHealth:
		HandleHealth(w, r)
	case kindInfo:
		h.handleInfo(w, r)
	case kindUpload:
		h.handleUpload(w, r)
	case kindMessage:
		h.handleMessage(w, r)
	case kindUnrecognized:
		h.reject(w, r)
	}
}

// reject picks the most helpful status for a request nothing handles.
func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case pathIndex, "/index.html", pathFavicon, pathHealth, pathInfo:
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	case pathUpload, pathMessage:
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", "POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		http.Error(w, "unsupported content type", http.StatusUnsupportedMediaType)
	default:
		http.NotFound(w, r)
	}
}

// fail writes the response for a request that could not be processed.
// Client-side problems close the connection since the rest of the stream
// cannot be trusted.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	status := http.StatusBadRequest
	msg := "malformed request"

	switch {
	case errors.As(err, &maxErr), errors.Is(err, ErrMessageTooLarge):
		status, msg = http.StatusRequestEntityTooLarge, "request too large"
	case errors.Is(err, storage.ErrIO):
		status, msg = http.StatusInternalServerError, "could not store upload"
	case errors.Is(err, ErrEncoding):
		msg = "message must be UTF-8 text"
	}

	if status != http.StatusInternalServerError {
		w.Header().Set("Connection", "close")
	}

	log := h.logger.Warn
	if status >= http.StatusInternalServerError {
		log = h.logger.Error
	}
	log(r.Context(), "request failed", "path", r.URL.Path, "remote", r.RemoteAddr, "status", status, "err", err)

	http.Error(w, msg, status)
}
