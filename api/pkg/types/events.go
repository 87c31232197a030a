package types

import (
	"time"
)

// LeaseEventType says what happened to a lease row on the change feed.
type LeaseEventType string

const (
	LeaseEventAcquired LeaseEventType = "acquired"
	LeaseEventReleased LeaseEventType = "released"
)

// LeaseEvent is published on the lease change feed whenever a lease row
// for a resource key is written or deleted. Holders watch the feed for
// their own key to detect competing claims.
type LeaseEvent struct {
	Type        LeaseEventType `json:"type"`
	ResourceKey string         `json:"resource_key"`
	HolderID    string         `json:"holder_id"`
	HolderLabel string         `json:"holder_label"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ConflictEvent is delivered to a lease holder when another device
// claims or touches the same resource key.
type ConflictEvent struct {
	ResourceKey string    `json:"resource_key"`
	HolderID    string    `json:"holder_id"`
	HolderLabel string    `json:"holder_label"`
	Observed    time.Time `json:"observed"`
}

// SessionEventType enumerates the lifecycle events a capture session
// emits to its subscribers.
type SessionEventType string

const (
	SessionEventStarted       SessionEventType = "session_started"
	SessionEventTimerStarted  SessionEventType = "timer_started"
	SessionEventTimerPaused   SessionEventType = "timer_paused"
	SessionEventTimerResumed  SessionEventType = "timer_resumed"
	SessionEventConflict      SessionEventType = "conflict_detected"
	SessionEventSubmitted     SessionEventType = "session_submitted"
	SessionEventReleased      SessionEventType = "session_released"
	SessionEventElapsedTick   SessionEventType = "elapsed_tick"
	SessionEventDowntimeAdded SessionEventType = "downtime_added"
)

// SessionEvent is one entry on a session's event stream. Session is the
// current snapshot after the event took effect; Downtime is set only for
// downtime_added events.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	Session   *CaptureSession  `json:"session,omitempty"`
	Downtime  *DowntimeRecord  `json:"downtime,omitempty"`
	Message   string           `json:"message,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// CreateSessionRequest asks the agent to claim a machine and start a
// coordinated capture session. Shift and Date default to the facility's
// current shift window when omitted.
type CreateSessionRequest struct {
	MachineName string `json:"machine_name"`
	Shift       Shift  `json:"shift,omitempty"`
	Date        string `json:"date,omitempty"`
	TakeOver    bool   `json:"take_over,omitempty"`
}

// ResumeTimerRequest carries the mandatory downtime reason for resuming
// a paused production timer.
type ResumeTimerRequest struct {
	Reason string `json:"reason"`
}
