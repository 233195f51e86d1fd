package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"dropzone/internal/web"
)

func (h *Handler) handleStatic(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case pathFavicon:
		h.serveBytes(w, r, "image/svg+xml", web.FaviconSVG)
	default:
		h.serveBytes(w, r, "text/html; charset=utf-8", web.IndexHTML)
	}
}

// serveBytes serves an embedded asset; ServeContent takes care of HEAD,
// ranges and conditional requests.
func (h *Handler) serveBytes(w http.ResponseWriter, r *http.Request, contentType string, b []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(w, r, "", h.started, bytes.NewReader(b))
}

// HandleHealth returns a simple health check.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleInfo reports the addresses other devices can use.
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.share); err != nil {
		h.logger.Warn(r.Context(), "encoding info response failed", "err", err)
	}
}
