package shell

import (
	"sync"
	"time"
)

// Stats counts dispatched commands. It is the only shell state shared with
// another goroutine (the diagnostics server), hence the mutex.
type Stats struct {
	mu sync.Mutex

	startedAt     time.Time
	commands      int
	perCommand    map[string]int
	lastCommand   string
	lastError     string
	lastErrorAt   time.Time
	lastConfigHex string
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	StartedAt     time.Time      `json:"started_at"`
	Commands      int            `json:"commands"`
	PerCommand    map[string]int `json:"per_command"`
	LastCommand   string         `json:"last_command,omitempty"`
	LastError     string         `json:"last_error,omitempty"`
	LastErrorAt   *time.Time     `json:"last_error_at,omitempty"`
	LastConfigHex string         `json:"last_config_hex,omitempty"`
}

func newStats(names []string) *Stats {
	s := &Stats{
		startedAt:  time.Now(),
		perCommand: make(map[string]int, len(names)),
	}
	for _, n := range names {
		s.perCommand[n] = 0
	}
	return s
}

func (s *Stats) record(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands++
	if _, ok := s.perCommand[name]; ok {
		s.perCommand[name]++
	}
	s.lastCommand = name
	if err != nil {
		s.lastError = err.Error()
		s.lastErrorAt = time.Now()
	}
}

func (s *Stats) recordConfig(hex string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastConfigHex = hex
}

// Count returns how often the named command ran. ok is false for names the
// dispatcher does not know.
func (s *Stats) Count(name string) (n int, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok = s.perCommand[name]
	return n, ok
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	per := make(map[string]int, len(s.perCommand))
	for k, v := range s.perCommand {
		per[k] = v
	}
	snap := StatsSnapshot{
		StartedAt:     s.startedAt,
		Commands:      s.commands,
		PerCommand:    per,
		LastCommand:   s.lastCommand,
		LastError:     s.lastError,
		LastConfigHex: s.lastConfigHex,
	}
	if !s.lastErrorAt.IsZero() {
		at := s.lastErrorAt
		snap.LastErrorAt = &at
	}
	return snap
}
