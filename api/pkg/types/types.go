package types

import (
	"time"
)

// Shift identifies which half of the production day a capture session
// belongs to. Shifts are resolved from facility configuration, never from
// ad-hoc wall clock reads at call sites.
type Shift string

const (
	ShiftDay   Shift = "Day"
	ShiftNight Shift = "Night"
)

func (s Shift) String() string {
	return string(s)
}

func (s Shift) Valid() bool {
	return s == ShiftDay || s == ShiftNight
}

// Lease is a time-bounded claim of exclusive access to one
// (machine, shift, date) resource. A lease is renewed by heartbeats and
// presumed abandoned once its last heartbeat is older than the stale
// threshold, regardless of the Active flag.
type Lease struct {
	ResourceKey   string    `gorm:"primaryKey" json:"resource_key"`
	HolderID      string    `gorm:"primaryKey" json:"holder_id"`
	HolderLabel   string    `json:"holder_label"`
	StartedAt     time.Time `json:"started_at"`
	LastHeartbeat time.Time `gorm:"index" json:"last_heartbeat"`
	Active        bool      `json:"active"`
}

func (Lease) TableName() string {
	return "capture_leases"
}

// ConflictCheck is the outcome of probing a resource key for a live
// competing lease. When the backing store cannot be queried the check
// fails open: Conflict is false and HeldBy is nil.
type ConflictCheck struct {
	Conflict bool   `json:"conflict"`
	HeldBy   *Lease `json:"held_by,omitempty"`
}

// PauseInterval is one completed pause segment in a timer's history.
// DurationMs is always ResumedAt - PausedAt in milliseconds.
type PauseInterval struct {
	PausedAt   time.Time `json:"paused_at"`
	ResumedAt  time.Time `json:"resumed_at"`
	DurationMs int64     `json:"duration_ms"`
	Reason     string    `json:"reason"`
}

// TimerState is the full production run-timer state for one session key.
//
// Exactly one of PausedAt / LastResumedAt is set at any time, except in
// the never-started state where both are nil. TotalRunTimeMs accumulates
// only completed running segments; elapsed time is always derived as
// TotalRunTimeMs + (now - LastResumedAt) while running.
type TimerState struct {
	ResourceKey    string          `json:"resource_key"`
	IsRunning      bool            `json:"is_running"`
	StartTime      *time.Time      `json:"start_time,omitempty"`
	PausedAt       *time.Time      `json:"paused_at,omitempty"`
	LastResumedAt  *time.Time      `json:"last_resumed_at,omitempty"`
	TotalRunTimeMs int64           `json:"total_run_time_ms"`
	PauseHistory   []PauseInterval `json:"pause_history,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Started reports whether production has ever begun for this session.
func (t TimerState) Started() bool {
	return t.StartTime != nil
}

// ElapsedMs returns cumulative production time in milliseconds as of now.
func (t *TimerState) ElapsedMs(now time.Time) int64 {
	elapsed := t.TotalRunTimeMs
	if t.IsRunning && t.LastResumedAt != nil {
		elapsed += now.Sub(*t.LastResumedAt).Milliseconds()
	}
	return elapsed
}

// TimerMirror is the advisory cross-device copy of a timer state kept in
// the backing store. It exists for display on other devices only and is
// never read back to drive local timer transitions.
type TimerMirror struct {
	ResourceKey string     `gorm:"primaryKey" json:"resource_key"`
	HolderID    string     `json:"holder_id"`
	State       TimerState `gorm:"type:jsonb;serializer:json" json:"state"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (TimerMirror) TableName() string {
	return "timer_mirrors"
}

// DowntimeSource records how a downtime entry came to exist.
type DowntimeSource string

const (
	// DowntimeSourceTimerPause marks records derived automatically from a
	// production pause on resume.
	DowntimeSourceTimerPause DowntimeSource = "timer_pause"
)

// DowntimeRecord is an accountable downtime entry. Resuming a paused
// timer emits one of these with Minutes = ceil(pause duration / 1m).
type DowntimeRecord struct {
	ID          string         `gorm:"primaryKey" json:"id"`
	ResourceKey string         `gorm:"index" json:"resource_key"`
	MachineName string         `gorm:"index" json:"machine_name"`
	Shift       Shift          `json:"shift"`
	Date        string         `json:"date"`
	Reason      string         `json:"reason"`
	Minutes     int            `json:"minutes"`
	Source      DowntimeSource `json:"source"`
	PausedAt    time.Time      `json:"paused_at"`
	ResumedAt   time.Time      `json:"resumed_at"`
	Created     time.Time      `json:"created"`
}

func (DowntimeRecord) TableName() string {
	return "downtime_records"
}

// AgentConfig is the identity and facility view the agent serves to its
// UI on /config.
type AgentConfig struct {
	Version           string   `json:"version"`
	HolderID          string   `json:"holder_id"`
	DeviceLabel       string   `json:"device_label"`
	Facility          string   `json:"facility"`
	Machines          []string `json:"machines"`
	DayStartMinutes   int      `json:"day_start_minutes"`
	NightStartMinutes int      `json:"night_start_minutes"`
	UTCOffsetMinutes  int      `json:"utc_offset_minutes"`
	CurrentShift      Shift    `json:"current_shift"`
	CurrentDate       string   `json:"current_date"`
}

// AgentHealth is the /healthz payload.
type AgentHealth struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Sessions int    `json:"sessions"`
}

// CaptureSession is the API snapshot of one coordinated capture session
// on this agent.
type CaptureSession struct {
	ID          string     `json:"id"`
	ResourceKey string     `json:"resource_key"`
	MachineName string     `json:"machine_name"`
	Shift       Shift      `json:"shift"`
	Date        string     `json:"date"`
	HolderID    string     `json:"holder_id"`
	HolderLabel string     `json:"holder_label"`
	StartedAt   time.Time  `json:"started_at"`
	Contested   bool       `json:"contested"`
	ContestedBy string     `json:"contested_by,omitempty"`
	Timer       TimerState `json:"timer"`
	ElapsedMs   int64      `json:"elapsed_ms"`
}
