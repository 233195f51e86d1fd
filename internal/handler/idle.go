package handler

import (
	"io"
	"net/http"
	"time"
)

// idleReader pushes the connection's read deadline forward before every
// read, so a body that keeps flowing may take as long as it needs while a
// stalled one fails after timeout.
type idleReader struct {
	r       io.ReadCloser
	rc      *http.ResponseController
	timeout time.Duration
}

func newIdleReader(w http.ResponseWriter, r io.ReadCloser, timeout time.Duration) io.ReadCloser {
	if timeout <= 0 {
		return r
	}
	return &idleReader{r: r, rc: http.NewResponseController(w), timeout: timeout}
}

func (ir *idleReader) Read(p []byte) (int, error) {
	// Recorders and some wrappers do not support deadlines; the limits
	// then fall back to the server's own timeouts.
	_ = ir.rc.SetReadDeadline(time.Now().Add(ir.timeout))
	return ir.r.Read(p)
}

func (ir *idleReader) Close() error {
	return ir.r.Close()
}
