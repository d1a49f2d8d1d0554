package observability

import (
	"sync"
	"time"
)

// Status is a point-in-time view of the process for health checks.
type Status struct {
	Uptime       string    `json:"uptime"`
	ActiveTurns  int       `json:"active_turns"`
	Turns        int64     `json:"turns"`
	LastActivity time.Time `json:"last_activity,omitempty"`
}

type systemStatus struct {
	mu           sync.RWMutex
	started      time.Time
	active       int
	turns        int64
	lastActivity time.Time
}

var globalStatus = &systemStatus{started: time.Now()}

// BeginTurn marks a conversational turn in flight. Call the returned func when it ends.
func BeginTurn() func() {
	globalStatus.mu.Lock()
	globalStatus.active++
	globalStatus.turns++
	globalStatus.lastActivity = time.Now()
	globalStatus.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			globalStatus.mu.Lock()
			defer globalStatus.mu.Unlock()
			globalStatus.active--
			globalStatus.lastActivity = time.Now()
		})
	}
}

// CurrentStatus returns a copy of the global status.
func CurrentStatus() Status {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	return Status{
		Uptime:       time.Since(globalStatus.started).Round(time.Second).String(),
		ActiveTurns:  globalStatus.active,
		Turns:        globalStatus.turns,
		LastActivity: globalStatus.lastActivity,
	}
}
