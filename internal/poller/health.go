package poller

import (
	"log/slog"
	"time"
)

// Endpoint names a backend endpoint in logs, metrics and /health.
type Endpoint string

const (
	EndpointQR     Endpoint = "qr"
	EndpointStatus Endpoint = "status"
	EndpointUsers  Endpoint = "users"
	EndpointLogout Endpoint = "logout"
)

// Health is the health of a polled endpoint.
type Health int

const (
	HealthUnknown Health = iota
	HealthHealthy
	HealthUnhealthy
)

func (h Health) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// MarshalText lets Health render as a string in JSON.
func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// EndpointHealth holds polling health for one endpoint.
type EndpointHealth struct {
	Status              Health    `json:"status"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

func (p *Poller) recordResult(ep Endpoint, start time.Time, err error) {
	if p.metrics != nil {
		p.metrics.RequestCompleted(string(ep), time.Since(start), err == nil)
	}
	if ep == EndpointLogout {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}

	eh := p.getOrCreate(ep)
	eh.LastCheck = time.Now()

	if err == nil {
		if eh.ConsecutiveFailures > 0 {
			slog.Info("endpoint recovered", "endpoint", ep, "failures", eh.ConsecutiveFailures)
		}
		eh.Status = HealthHealthy
		eh.ConsecutiveFailures = 0
		eh.LastError = ""
	} else {
		eh.ConsecutiveFailures++
		eh.LastError = err.Error()
		if eh.ConsecutiveFailures >= p.failureThreshold {
			if eh.Status != HealthUnhealthy {
				slog.Warn("endpoint marked unhealthy", "endpoint", ep, "failures", eh.ConsecutiveFailures, "error", eh.LastError)
			}
			eh.Status = HealthUnhealthy
		}
	}

	if p.metrics != nil {
		p.metrics.SetEndpointHealth(string(ep), eh.Status != HealthUnhealthy)
	}
}

func (p *Poller) getOrCreate(ep Endpoint) *EndpointHealth {
	eh, ok := p.health[ep]
	if !ok {
		eh = &EndpointHealth{Status: HealthUnknown}
		p.health[ep] = eh
	}
	return eh
}

// EndpointStatus returns the health of one endpoint.
func (p *Poller) EndpointStatus(ep Endpoint) EndpointHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	eh, ok := p.health[ep]
	if !ok {
		return EndpointHealth{Status: HealthUnknown}
	}
	return *eh
}

// AllEndpointStatuses returns the health of every endpoint polled so far.
func (p *Poller) AllEndpointStatuses() map[Endpoint]EndpointHealth {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make(map[Endpoint]EndpointHealth, len(p.health))
	for ep, eh := range p.health {
		result[ep] = *eh
	}
	return result
}

// OverallHealthy returns true unless some endpoint is unhealthy.
func (p *Poller) OverallHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, eh := range p.health {
		if eh.Status == HealthUnhealthy {
			return false
		}
	}
	return true
}
