// Package notify keeps a short feed of user-facing notifications (the
// dashboard's popups). Clients poll with the last sequence they have seen.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is the popup icon.
type Level string

const (
	LevelSuccess Level = "success"
	LevelInfo    Level = "info"
	LevelError   Level = "error"
)

const defaultCapacity = 64

// Notification is a single popup.
type Notification struct {
	ID        string        `json:"id"`
	Seq       uint64        `json:"seq"`
	Level     Level         `json:"level"`
	Title     string        `json:"title"`
	Text      string        `json:"text"`
	Timer     time.Duration `json:"-"`
	TimerMS   int64         `json:"timer_ms,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// Notifier is what the poller needs to raise popups.
type Notifier interface {
	Notify(level Level, title, text string, timer time.Duration) Notification
}

// Feed is a bounded ring of notifications. Older entries are dropped once
// capacity is reached.
type Feed struct {
	mu       sync.RWMutex
	items    []Notification
	capacity int
	nextSeq  uint64
	onNotify func(Notification)
}

// NewFeed creates a feed holding at most capacity entries (64 if <= 0).
func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Feed{capacity: capacity, nextSeq: 1}
}

// SetOnNotify registers a hook called after each notification is recorded.
func (f *Feed) SetOnNotify(fn func(Notification)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onNotify = fn
}

// Notify records a notification and returns it.
func (f *Feed) Notify(level Level, title, text string, timer time.Duration) Notification {
	f.mu.Lock()
	n := Notification{
		ID:        uuid.NewString(),
		Seq:       f.nextSeq,
		Level:     level,
		Title:     title,
		Text:      text,
		Timer:     timer,
		TimerMS:   timer.Milliseconds(),
		CreatedAt: time.Now(),
	}
	f.nextSeq++
	f.items = append(f.items, n)
	if len(f.items) > f.capacity {
		f.items = append([]Notification(nil), f.items[len(f.items)-f.capacity:]...)
	}
	hook := f.onNotify
	f.mu.Unlock()

	slog.Info("notification", "level", level, "title", title, "text", text)
	if hook != nil {
		hook(n)
	}
	return n
}

// Since returns notifications with Seq greater than after, oldest first.
func (f *Feed) Since(after uint64) []Notification {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var out []Notification
	for _, n := range f.items {
		if n.Seq > after {
			out = append(out, n)
		}
	}
	return out
}

// LastSeq returns the sequence of the newest notification, 0 if none.
func (f *Feed) LastSeq() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.nextSeq - 1
}
