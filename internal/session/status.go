package session

// ActiveValue is the raw backend status meaning the bot is connected.
const ActiveValue = "activo"

// Status is the parsed connection state of the bot.
type Status int

const (
	StatusInactive Status = iota
	StatusActive
)

// ParseStatus maps the raw backend string onto a Status. Only the exact
// value "activo" counts as active; empty or unknown values are inactive.
func ParseStatus(raw string) Status {
	if raw == ActiveValue {
		return StatusActive
	}
	return StatusInactive
}

// IsActive reports whether s is StatusActive.
func (s Status) IsActive() bool {
	return s == StatusActive
}

func (s Status) String() string {
	if s == StatusActive {
		return "active"
	}
	return "inactive"
}

// MarshalText lets Status render as a string in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
