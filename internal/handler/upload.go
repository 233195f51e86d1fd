package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"dropzone/internal/storage"
)

const copyBufferSize = 64 << 10

// handleUpload streams every file part of a multipart body into its own
// storage session. Nothing is buffered beyond one copy buffer per request.
func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.opts.MaxBodySize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodySize)
	}
	r.Body = newIdleReader(w, r.Body, h.opts.IdleTimeout)

	mr, err := r.MultipartReader()
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %w", ErrMalformedRequest, err))
		return
	}

	buf := make([]byte, copyBufferSize)
	var stored []storage.StoredFile
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: %w", ErrMalformedRequest, err))
			return
		}

		name := part.FileName()
		if name == "" {
			_ = part.Close()
			continue
		}

		sf, err := h.receive(ctx, part, name, r.RemoteAddr, buf)
		_ = part.Close()
		if err != nil {
			h.fail(w, r, err)
			return
		}
		stored = append(stored, sf)
	}

	if len(stored) == 0 {
		h.fail(w, r, fmt.Errorf("%w: no file in request", ErrMalformedRequest))
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "received %d file(s)\n", len(stored))
}

// receive copies one part into a new session. Any failure aborts the
// session so nothing partial is left behind.
func (h *Handler) receive(ctx context.Context, src io.Reader, name, remote string, buf []byte) (storage.StoredFile, error) {
	sess, err := h.sink.Begin(ctx, name, remote)
	if err != nil {
		return storage.StoredFile{}, err
	}

	if _, err := io.CopyBuffer(sess, src, buf); err != nil {
		if abortErr := sess.Abort(); abortErr != nil {
			h.logger.Error(ctx, "failed to discard aborted upload", "session", sess.ID, "err", abortErr)
		}
		h.logger.Warn(ctx, "upload aborted", "session", sess.ID, "name", sess.Name(), "remote", remote,
			"bytes", sess.Written(), "err", err)
		if errors.Is(err, storage.ErrIO) {
			return storage.StoredFile{}, err
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return storage.StoredFile{}, err
		}
		return storage.StoredFile{}, fmt.Errorf("%w: read upload body: %w", ErrMalformedRequest, err)
	}

	sf, err := sess.Finalize()
	if err != nil {
		return storage.StoredFile{}, err
	}

	h.logger.Info(ctx, "file stored", "name", sf.Name, "bytes", sf.Size, "remote", remote,
		"duration", sess.Elapsed().String())
	if err := h.relay.FileReceived(sf); err != nil {
		h.logger.Warn(ctx, "console write failed", "err", err)
	}
	return sf, nil
}
