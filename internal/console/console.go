// Package console prints pairing codes to a terminal for operators running
// botpanel headless.
package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mdp/qrterminal/v3"
)

// Printer renders raw pairing codes as half-block QR codes. Image values
// (data URIs and URLs) cannot be redrawn in a terminal, so only a pointer to
// the dashboard is printed for them.
type Printer struct {
	mu           sync.Mutex
	out          io.Writer
	dashboardURL string
}

// NewPrinter writes to out. dashboardURL is shown when a QR can't be drawn.
func NewPrinter(out io.Writer, dashboardURL string) *Printer {
	return &Printer{out: out, dashboardURL: dashboardURL}
}

// OnQRChange is meant for poller.SetOnQRChange.
func (p *Printer) OnQRChange(qr string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case qr == "":
		fmt.Fprintln(p.out, "QR code cleared")
	case isImage(qr):
		fmt.Fprintf(p.out, "New QR code available, open %s to scan it\n", p.dashboardURL)
	default:
		qrterminal.GenerateHalfBlock(qr, qrterminal.L, p.out)
		fmt.Fprintln(p.out, "QR code:", qr)
	}
}

func isImage(qr string) bool {
	lower := strings.ToLower(qr)
	return strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
