package health

import (
	"sync"
	"time"
)

// Stats holds process-wide reconciliation counters. It is shared between
// the poll loop (writer) and HTTP handlers (readers), so every access goes
// through the mutex.
type Stats struct {
	mu sync.RWMutex

	now       func() time.Time
	startTime time.Time

	eventsProcessed    int64
	errors             int64
	errorStreak        int64
	lastEventID        string
	lastEventProcessed *time.Time
	lastError          *string
	lastPoll           *time.Time
}

// Snapshot is a consistent copy of Stats at one instant.
type Snapshot struct {
	StartTime          time.Time
	Uptime             time.Duration
	EventsProcessed    int64
	Errors             int64
	ErrorStreak        int64
	LastEventID        string
	LastEventProcessed *time.Time
	LastError          *string
	LastPoll           *time.Time
}

// NewStats returns Stats whose uptime starts now.
func NewStats() *Stats {
	return newStatsWithClock(time.Now)
}

func newStatsWithClock(now func() time.Time) *Stats {
	return &Stats{now: now, startTime: now()}
}

// RecordEvent counts a successful grant.
func (s *Stats) RecordEvent(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now()
	s.eventsProcessed++
	s.errorStreak = 0
	s.lastEventID = id
	s.lastEventProcessed = &t
}

// RecordError counts a caught failure during polling or event handling.
func (s *Stats) RecordError(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors++
	s.errorStreak++
	msg := message
	s.lastError = &msg
}

// RecordPoll notes a successful event fetch. It resets the error streak but
// does not touch the counters.
func (s *Stats) RecordPoll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.now()
	s.errorStreak = 0
	s.lastPoll = &t
}

// Uptime returns the time since the stats were created.
func (s *Stats) Uptime() time.Duration {
	return s.now().Sub(s.startTime)
}

// Snapshot returns a copy of the current values.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		StartTime:       s.startTime,
		Uptime:          s.now().Sub(s.startTime),
		EventsProcessed: s.eventsProcessed,
		Errors:          s.errors,
		ErrorStreak:     s.errorStreak,
		LastEventID:     s.lastEventID,
	}
	if s.lastEventProcessed != nil {
		t := *s.lastEventProcessed
		snap.LastEventProcessed = &t
	}
	if s.lastError != nil {
		e := *s.lastError
		snap.LastError = &e
	}
	if s.lastPoll != nil {
		t := *s.lastPoll
		snap.LastPoll = &t
	}
	return snap
}
