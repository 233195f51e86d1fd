package handler

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"dropzone/internal/relay"
)

const (
	messageField = "message"

	// Room for multipart headers and other small fields around the message.
	formOverhead = 16 << 10
)

// handleMessage reads the message text, validates it and relays it to the
// console. Empty messages are accepted and dropped.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	raw, err := h.readMessage(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !utf8.ValidString(raw) {
		h.fail(w, r, ErrEncoding)
		return
	}

	if text := strings.TrimSpace(raw); text != "" {
		msg := relay.Message{Text: text, Remote: r.RemoteAddr, ReceivedAt: time.Now()}
		if err := h.relay.Deliver(msg); err != nil {
			h.logger.Error(r.Context(), "message relay failed", "remote", r.RemoteAddr, "err", err)
			http.Error(w, "could not deliver message", http.StatusInternalServerError)
			return
		}
		h.logger.Debug(r.Context(), "message relayed", "remote", r.RemoteAddr, "bytes", len(text))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "message received\n")
}

func (h *Handler) readMessage(w http.ResponseWriter, r *http.Request) (string, error) {
	limit := h.opts.MaxMessageSize
	r.Body = newIdleReader(w, r.Body, h.opts.IdleTimeout)

	switch mediaType(r) {
	case "text/plain":
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return "", bodyErr(err)
		}
		return string(b), nil

	case "application/x-www-form-urlencoded":
		// Percent-encoding can triple the size of the text.
		r.Body = http.MaxBytesReader(w, r.Body, 3*limit+formOverhead)
		if err := r.ParseForm(); err != nil {
			return "", bodyErr(err)
		}
		if !r.PostForm.Has(messageField) {
			return "", fmt.Errorf("%w: missing %q field", ErrMalformedRequest, messageField)
		}
		text := r.PostForm.Get(messageField)
		if int64(len(text)) > limit {
			return "", ErrMessageTooLarge
		}
		return text, nil

	default:
		return h.readMultipartMessage(w, r, limit)
	}
}

func (h *Handler) readMultipartMessage(w http.ResponseWriter, r *http.Request, limit int64) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: missing %q field", ErrMalformedRequest, messageField)
		}
		if err != nil {
			return "", bodyErr(err)
		}
		if part.FormName() != messageField || part.FileName() != "" {
			_ = part.Close()
			continue
		}

		b, err := io.ReadAll(io.LimitReader(part, limit+1))
		_ = part.Close()
		if err != nil {
			return "", bodyErr(err)
		}
		if int64(len(b)) > limit {
			return "", ErrMessageTooLarge
		}
		if cs := partCharset(part.Header.Get("Content-Type")); cs != "" && cs != "utf-8" && cs != "us-ascii" {
			return "", fmt.Errorf("%w: charset %s", ErrEncoding, cs)
		}
		return string(b), nil
	}
}

func partCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}

// bodyErr keeps size-limit errors recognizable and files everything else
// as a malformed request.
func bodyErr(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
}
