// Package relay prints received messages and upload notices to the
// operator's console.
package relay

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"

	"dropzone/internal/storage"
)

// Message is a text payload received from a client. It is never stored.
type Message struct {
	Text       string
	Remote     string
	ReceivedAt time.Time
}

// Style is an ANSI SGR sequence.
type Style string

const (
	Dim        Style = "2"
	Bold       Style = "1"
	GreenBold  Style = "1;32"
	YellowBold Style = "1;33"
	Purple     Style = "35"
	RedBold    Style = "1;31"
)

// Console writes operator-facing lines. Writes are serialized so
// concurrent deliveries never interleave.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

func NewConsole(w io.Writer, color bool) *Console {
	return &Console{w: w, color: color}
}

// Stdout returns a console on os.Stdout, colored when stdout is a terminal.
func Stdout() *Console {
	return NewConsole(os.Stdout, term.IsTerminal(int(os.Stdout.Fd())))
}

// Paint wraps s in style when color output is enabled.
func (c *Console) Paint(style Style, s string) string {
	if !c.color {
		return s
	}
	return "\x1b[" + string(style) + "m" + s + "\x1b[0m"
}

// Print writes each line followed by a newline, as one atomic block.
func (c *Console) Print(lines ...string) error {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, b.String())
	return err
}

func (c *Console) stamp(t time.Time) string {
	return c.Paint(Dim, "["+t.Format(time.TimeOnly)+"]")
}

// Deliver prints a message with its arrival time and sender.
func (c *Console) Deliver(m Message) error {
	at := m.ReceivedAt
	if at.IsZero() {
		at = time.Now()
	}

	header := fmt.Sprintf("%s %s", c.stamp(at), c.Paint(YellowBold, "MESSAGE"))
	if m.Remote != "" {
		header += " " + c.Paint(Dim, "from "+m.Remote)
	}

	lines := []string{header}
	for _, l := range strings.Split(m.Text, "\n") {
		lines = append(lines, "  "+strings.TrimRight(l, "\r"))
	}
	return c.Print(lines...)
}

// FileReceived prints a notice for a published upload.
func (c *Console) FileReceived(sf storage.StoredFile) error {
	at := sf.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return c.Print(fmt.Sprintf("%s %s %s (%d bytes)",
		c.stamp(at), c.Paint(GreenBold, "FILE"), sf.Name, sf.Size))
}
