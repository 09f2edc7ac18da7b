package api

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/botpanel/botpanel/internal/view"
)

var dashboardPage = template.Must(template.New("dashboard").Parse(dashboardTemplate))

type dashboardData struct {
	View       view.View
	QRSrc      template.URL
	IntervalMS int64
	APIKey     string
	LastSeq    uint64
}

// dashboardHandler serves the status page rendered from the current state.
// The page then keeps itself fresh through /api/view.
func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	v := view.Render(s.poller.State())

	data := dashboardData{
		View:       v,
		QRSrc:      template.URL(v.QRSrc), // data: URIs would otherwise be filtered
		IntervalMS: s.poller.Interval().Milliseconds(),
		LastSeq:    s.feed.LastSeq(),
	}
	if s.listenCfg.APIKey != "" {
		data.APIKey = r.URL.Query().Get("key")
	}

	var buf bytes.Buffer
	if err := dashboardPage.Execute(&buf, data); err != nil {
		slog.Error("rendering dashboard failed", "err", err)
		writeError(w, http.StatusInternalServerError, "rendering dashboard failed")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}
