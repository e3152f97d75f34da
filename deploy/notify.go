package deploy

import (
	"fmt"
	"sync"
	"time"
)

// Level classifies a progress notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Progress is one deployment event: which phase, what happened, when.
type Progress struct {
	Level   Level
	Phase   string
	Message string
	At      time.Time
}

// NotificationManager fans deployment progress out to subscribers. Sends are
// best-effort and non-blocking; a slow receiver drops updates rather than
// stalling the deployment.
type NotificationManager struct {
	mu   sync.RWMutex
	subs map[chan Progress]struct{}
}

func NewNotificationManager() *NotificationManager {
	return &NotificationManager{subs: make(map[chan Progress]struct{})}
}

// Subscribe adds a listener and returns the channel plus an unsubscribe
// func. The channel is never closed; receivers stop via their own context.
func (nm *NotificationManager) Subscribe() (<-chan Progress, func()) {
	ch := make(chan Progress, 32)
	nm.mu.Lock()
	nm.subs[ch] = struct{}{}
	nm.mu.Unlock()

	unsub := func() {
		nm.mu.Lock()
		delete(nm.subs, ch)
		nm.mu.Unlock()
	}
	return ch, unsub
}

func (nm *NotificationManager) notify(level Level, phase, format string, args ...interface{}) {
	p := Progress{
		Level:   level,
		Phase:   phase,
		Message: fmt.Sprintf(format, args...),
		At:      time.Now(),
	}
	nm.mu.RLock()
	chs := make([]chan Progress, 0, len(nm.subs))
	for ch := range nm.subs {
		chs = append(chs, ch)
	}
	nm.mu.RUnlock()

	for _, ch := range chs {
		select {
		case ch <- p:
		default:
			// Drop if receiver is slow.
		}
	}
}
