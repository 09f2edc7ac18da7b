package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/botpanel/botpanel/internal/notify"
)

// ErrToggleInProgress is returned when a toggle is requested while another
// one is still running.
var ErrToggleInProgress = errors.New("session toggle already in progress")

// Action is what a toggle did.
type Action string

const (
	ActionLogout    Action = "logout"
	ActionReconnect Action = "reconnect"
)

// Toggle logs the bot out when it is active and otherwise asks the backend
// for a QR code, which makes it start a new pairing. Either way the status
// and QR are refreshed once afterwards. Loading is true for the duration.
//
// A failing primary call raises an error notification and is returned; the
// refresh fetches only log their failures.
func (p *Poller) Toggle(ctx context.Context) (Action, error) {
	p.toggleMu.Lock()
	if p.toggling {
		p.toggleMu.Unlock()
		return "", ErrToggleInProgress
	}
	p.toggling = true
	p.toggleMu.Unlock()

	p.setLoading(true)
	defer func() {
		p.setLoading(false)
		p.toggleMu.Lock()
		p.toggling = false
		p.toggleMu.Unlock()
	}()

	action := ActionReconnect
	if p.State().Status.IsActive() {
		action = ActionLogout
	}

	err := p.toggle(ctx, action)
	if p.metrics != nil {
		p.metrics.ToggleCompleted(string(action), err == nil)
	}
	if err != nil {
		slog.Error("session toggle failed", "action", action, "err", err)
		p.notifier.Notify(notify.LevelError, "Error", "Ocurrió un error al cambiar la sesión.", 0)
		return action, err
	}
	slog.Info("session toggled", "action", action)
	return action, nil
}

func (p *Poller) toggle(ctx context.Context, action Action) error {
	switch action {
	case ActionLogout:
		start := time.Now()
		err := p.backend.Logout(ctx)
		p.recordResult(EndpointLogout, start, err)
		if err != nil {
			return fmt.Errorf("logging out: %w", err)
		}
		p.notifier.Notify(notify.LevelInfo, "Sesión cerrada", "El bot se desconectó.", 0)
	default:
		start := time.Now()
		_, err := p.backend.FetchQR(ctx)
		p.recordResult(EndpointQR, start, err)
		if err != nil {
			return fmt.Errorf("requesting reconnect: %w", err)
		}
		p.notifier.Notify(notify.LevelInfo, "Intentando iniciar sesión...", "Escaneá el QR si aparece.", 0)
	}

	// Refresh right away instead of waiting for the next tick. These log
	// their own failures.
	p.fetchStatus(ctx)
	p.fetchQR(ctx)
	return nil
}

func (p *Poller) setLoading(v bool) {
	p.update(func(s *State) { s.Loading = v })
}
