package server

import (
	"fmt"
	"strings"

	"github.com/mdp/qrterminal/v3"

	"dropzone/internal/relay"
)

// Banner is what the operator sees once the port is bound.
type Banner struct {
	Scheme    string
	Port      int
	URLs      []string // reachable from other devices
	UploadDir string
	QR        bool
}

func (b Banner) lines(c *relay.Console) []string {
	out := []string{
		"",
		"  " + c.Paint(relay.Bold, "DropZone") + " is ready to receive files and messages.",
	}
	if b.Scheme != "https" {
		out = append(out, "  "+c.Paint(relay.RedBold, "Running in insecure mode: traffic is not encrypted."))
	}
	out = append(out,
		"",
		fmt.Sprintf("  %-9s %s", "Local:", c.Paint(relay.Purple, fmt.Sprintf("%s://localhost:%d", b.Scheme, b.Port))),
	)
	for _, u := range b.URLs {
		out = append(out, fmt.Sprintf("  %-9s %s", "Network:", c.Paint(relay.Purple, u)))
	}
	out = append(out,
		fmt.Sprintf("  %-9s %s", "Uploads:", b.UploadDir),
		"",
	)
	return out
}

// PrintBanner writes the startup banner, with a QR code for the first
// network URL when enabled.
func PrintBanner(c *relay.Console, b Banner) error {
	lines := b.lines(c)
	if b.QR && len(b.URLs) > 0 {
		var qr strings.Builder
		qrterminal.GenerateWithConfig(b.URLs[0], qrterminal.Config{
			Level:          qrterminal.M,
			Writer:         &qr,
			HalfBlocks:     true,
			BlackChar:      qrterminal.BLACK_BLACK,
			WhiteBlackChar: qrterminal.WHITE_BLACK,
			WhiteChar:      qrterminal.WHITE_WHITE,
			BlackWhiteChar: qrterminal.BLACK_WHITE,
			QuietZone:      1,
		})
		lines = append(lines, "  Scan to open on your phone:")
		lines = append(lines, strings.Split(strings.TrimRight(qr.String(), "\n"), "\n")...)
		lines = append(lines, "")
	}
	lines = append(lines, "  Open the URL on any device in your LAN to send files.", "  Press Ctrl+C to stop.", "")
	return c.Print(lines...)
}
