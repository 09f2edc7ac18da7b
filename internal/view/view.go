// Package view derives everything the dashboard shows from poller state.
package view

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/botpanel/botpanel/internal/poller"
)

// Page copy.
const (
	Heading          = "Escaneá el código QR"
	QRAlt            = "Código QR"
	OutOfServiceText = "🤖 Bot fuera de servicio"
	LogoutLabel      = "Cerrar sesión"
	LoginLabel       = "Iniciar sesión"
)

const qrImageSize = 300

// View is the rendered dashboard.
type View struct {
	Heading        string `json:"heading"`
	Active         bool   `json:"active"`
	DotColor       string `json:"dot_color"`
	Message        string `json:"message"`
	UserCount      int    `json:"user_count"`
	ShowQR         bool   `json:"show_qr"`
	QRSrc          string `json:"qr_src,omitempty"`
	QRAlt          string `json:"qr_alt"`
	ButtonLabel    string `json:"button_label"`
	ButtonColor    string `json:"button_color"`
	ButtonDisabled bool   `json:"button_disabled"`
	Cursor         string `json:"cursor"`
}

// Render is a pure function of the poller state.
func Render(s poller.State) View {
	active := s.Status.IsActive()

	v := View{
		Heading:        Heading,
		Active:         active,
		UserCount:      s.UserCount,
		QRAlt:          QRAlt,
		ButtonDisabled: s.Loading,
		Cursor:         "pointer",
	}
	if s.Loading {
		v.Cursor = "not-allowed"
	}

	if active {
		v.DotColor = "green"
		v.Message = ServingMessage(s.UserCount)
		v.ButtonLabel = LogoutLabel
		v.ButtonColor = "red"
	} else {
		v.DotColor = "red"
		v.Message = OutOfServiceText
		v.ButtonLabel = LoginLabel
		v.ButtonColor = "green"
	}

	if s.HasQR && s.QR != "" {
		v.QRSrc = ImageSource(s.QR)
		v.ShowQR = v.QRSrc != ""
	}
	return v
}

// ServingMessage is the active-state message, singular only for exactly one.
func ServingMessage(n int) string {
	word := "personas"
	if n == 1 {
		word = "persona"
	}
	return fmt.Sprintf("🤖 Estoy atendiendo a %d %s", n, word)
}

// ImageSource returns something usable as an <img src>. Data URIs and
// http(s) URLs pass through; anything else is taken as a raw pairing code
// and encoded into a PNG data URI.
func ImageSource(qr string) string {
	lower := strings.ToLower(qr)
	if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return qr
	}

	png, err := qrcode.Encode(qr, qrcode.Medium, qrImageSize)
	if err != nil {
		slog.Warn("encoding raw QR code failed", "err", err)
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
