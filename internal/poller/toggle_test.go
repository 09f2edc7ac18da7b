package poller

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/botpanel/botpanel/internal/notify"
)

func TestToggleWhileActiveLogsOut(t *testing.T) {
	b := newFakeBackend()
	b.status = "activo"
	p, feed, _ := newTestPoller(t, b)
	ctx := context.Background()
	p.fetchStatus(ctx)

	var loadingDuringLogout bool
	b.set(func(f *fakeBackend) {
		f.onLogout = func() { loadingDuringLogout = p.State().Loading }
		f.status = "inactivo"
		f.qr = "data:image/png;base64,QQ=="
	})
	statusBefore, qrBefore := b.count("status"), b.count("qr")

	action, err := p.Toggle(ctx)
	if err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if action != ActionLogout {
		t.Errorf("expected logout, got %s", action)
	}
	if !loadingDuringLogout {
		t.Error("loading should be true while the logout request runs")
	}
	if p.State().Loading {
		t.Error("loading should be false after the toggle")
	}
	if n := b.count("logout"); n != 1 {
		t.Errorf("expected 1 logout request, got %d", n)
	}
	if n := b.count("status") - statusBefore; n != 1 {
		t.Errorf("expected 1 status refresh, got %d", n)
	}
	if n := b.count("qr") - qrBefore; n != 1 {
		t.Errorf("expected 1 QR refresh, got %d", n)
	}
	if n := b.count("users"); n != 0 {
		t.Errorf("toggle must not refresh the user count, got %d calls", n)
	}

	infos := feed.Since(0)
	last := infos[len(infos)-1]
	if last.Level != notify.LevelInfo || last.Title != "Sesión cerrada" {
		t.Errorf("expected logout info notification, got %+v", last)
	}
	if s := p.State(); s.RawStatus != "inactivo" || !s.HasQR {
		t.Errorf("expected refreshed state, got %+v", s)
	}
}

func TestToggleWhileInactiveRequestsQR(t *testing.T) {
	b := newFakeBackend()
	b.status = "inactivo"
	p, feed, _ := newTestPoller(t, b)
	ctx := context.Background()
	p.fetchStatus(ctx)

	action, err := p.Toggle(ctx)
	if err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if action != ActionReconnect {
		t.Errorf("expected reconnect, got %s", action)
	}
	if n := b.count("logout"); n != 0 {
		t.Errorf("expected no logout, got %d", n)
	}
	// One QR request as the trigger, one as the refresh.
	if n := b.count("qr"); n != 2 {
		t.Errorf("expected 2 QR requests, got %d", n)
	}
	if n := b.count("status"); n != 2 {
		t.Errorf("expected initial + 1 refresh status requests, got %d", n)
	}

	got := feed.Since(0)
	if len(got) != 1 || got[0].Level != notify.LevelInfo || got[0].Text != "Escaneá el QR si aparece." {
		t.Errorf("expected one reconnect info notification, got %+v", got)
	}
	if p.State().Loading {
		t.Error("loading should be cleared")
	}
}

func TestToggleEmptyStatusCountsAsInactive(t *testing.T) {
	b := newFakeBackend()
	p, _, _ := newTestPoller(t, b)

	action, err := p.Toggle(context.Background())
	if err != nil {
		t.Fatalf("Toggle failed: %v", err)
	}
	if action != ActionReconnect {
		t.Errorf("expected reconnect before any status was seen, got %s", action)
	}
}

func TestToggleFailure(t *testing.T) {
	logs := captureLogs(t)
	b := newFakeBackend()
	b.status = "activo"
	p, feed, _ := newTestPoller(t, b)
	ctx := context.Background()
	p.fetchStatus(ctx)

	b.set(func(f *fakeBackend) { f.logoutErr = errors.New("502 bad gateway") })
	statusBefore := b.count("status")

	_, err := p.Toggle(ctx)
	if err == nil {
		t.Fatal("expected error from failed logout")
	}
	if p.State().Loading {
		t.Error("loading should be cleared after a failure")
	}
	if countLevel(feed, notify.LevelError) != 1 {
		t.Error("expected one error notification")
	}
	if countLevel(feed, notify.LevelInfo) != 0 {
		t.Error("no info notification on failure")
	}
	if b.count("status") != statusBefore || b.count("qr") != 0 {
		t.Error("refresh should be skipped when the primary call fails")
	}
	if p.State().RawStatus != "activo" {
		t.Error("state should be retained after a failed toggle")
	}
	if !strings.Contains(logs.String(), "session toggle failed") {
		t.Errorf("expected diagnostic log, got:\n%s", logs.String())
	}
}

func TestToggleRefreshFailuresAreSwallowed(t *testing.T) {
	b := newFakeBackend()
	p, feed, _ := newTestPoller(t, b)

	b.set(func(f *fakeBackend) { f.statusErr = errors.New("down") })

	if _, err := p.Toggle(context.Background()); err != nil {
		t.Errorf("refresh failures must not fail the toggle, got %v", err)
	}
	if countLevel(feed, notify.LevelError) != 0 {
		t.Error("refresh failures must not raise error notifications")
	}
}

func TestToggleInProgress(t *testing.T) {
	b := newFakeBackend()
	b.status = "activo"
	p, _, _ := newTestPoller(t, b)
	p.fetchStatus(context.Background())

	entered := make(chan struct{})
	release := make(chan struct{})
	b.set(func(f *fakeBackend) {
		f.onLogout = func() {
			close(entered)
			<-release
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := p.Toggle(context.Background())
		done <- err
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first toggle never reached logout")
	}

	if _, err := p.Toggle(context.Background()); !errors.Is(err, ErrToggleInProgress) {
		t.Errorf("expected ErrToggleInProgress, got %v", err)
	}
	if !p.State().Loading {
		t.Error("loading should be true while the first toggle runs")
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first toggle failed: %v", err)
	}
	if b.count("logout") != 1 {
		t.Errorf("expected exactly one logout, got %d", b.count("logout"))
	}
}
