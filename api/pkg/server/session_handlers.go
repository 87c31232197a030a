package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/floorlinehq/floorline/api/pkg/data"
	"github.com/floorlinehq/floorline/api/pkg/lease"
	"github.com/floorlinehq/floorline/api/pkg/session"
	"github.com/floorlinehq/floorline/api/pkg/shift"
	"github.com/floorlinehq/floorline/api/pkg/store"
	"github.com/floorlinehq/floorline/api/pkg/system"
	"github.com/floorlinehq/floorline/api/pkg/timer"
	"github.com/floorlinehq/floorline/api/pkg/types"
)

func getResourceKey(r *http.Request) string {
	return mux.Vars(r)["key"]
}

// createSession godoc
// @Summary Lock a machine and start a capture session
// @Description Acquires the coordination lease for (machine, shift, date) and starts the session loops. 409 when another device holds the lease and take_over is false.
// @Tags    sessions
// @Success 200 {object} types.CaptureSession
// @Param request body types.CreateSessionRequest true "Machine to lock. Shift and date default to the current shift window."
// @Router /api/v1/sessions [post]
func (apiServer *FloorlineAPIServer) createSession(_ http.ResponseWriter, r *http.Request) (*types.CaptureSession, *system.HTTPError) {
	var req types.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, system.NewHTTPError400(fmt.Sprintf("failed to decode request body, error: %s", err))
	}

	snapshot, err := apiServer.Sessions.Lock(r.Context(), req)
	if err != nil {
		var held *lease.ErrResourceHeld
		if errors.As(err, &held) {
			return nil, system.NewHTTPError409(held.Error())
		}
		// everything else Lock returns is a request problem: unknown
		// machine, invalid shift or date, failed takeover
		return nil, system.NewHTTPError400(err.Error())
	}

	return &snapshot, nil
}

// listSessions godoc
// @Summary List the capture sessions held by this agent
// @Tags    sessions
// @Success 200 {array} types.CaptureSession
// @Router /api/v1/sessions [get]
func (apiServer *FloorlineAPIServer) listSessions(_ http.ResponseWriter, r *http.Request) ([]types.CaptureSession, *system.HTTPError) {
	return apiServer.Sessions.List(r.Context()), nil
}

// getSession godoc
// @Summary Get one session snapshot
// @Tags    sessions
// @Success 200 {object} types.CaptureSession
// @Param key path string true "Resource key (machine_shift_date)"
// @Router /api/v1/sessions/{key} [get]
func (apiServer *FloorlineAPIServer) getSession(_ http.ResponseWriter, r *http.Request) (*types.CaptureSession, *system.HTTPError) {
	c, ok := apiServer.Sessions.Get(getResourceKey(r))
	if !ok {
		return nil, system.NewHTTPError404(session.ErrSessionNotFound.Error())
	}

	snapshot, err := c.Snapshot(r.Context())
	if err != nil {
		return nil, system.NewHTTPError404(session.ErrSessionNotFound.Error())
	}
	return &snapshot, nil
}

// abandonSession godoc
// @Summary Abandon a session without submitting
// @Description Releases the lease and clears timer state for the key.
// @Tags    sessions
// @Success 200 {object} types.CaptureSession
// @Param key path string true "Resource key"
// @Router /api/v1/sessions/{key} [delete]
func (apiServer *FloorlineAPIServer) abandonSession(_ http.ResponseWriter, r *http.Request) (*types.CaptureSession, *system.HTTPError) {
	snapshot, err := apiServer.Sessions.Abandon(r.Context(), getResourceKey(r))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionClosed) {
			return nil, system.NewHTTPError404(session.ErrSessionNotFound.Error())
		}
		return nil, system.NewHTTPError500(err.Error())
	}
	return &snapshot, nil
}

// submitSession godoc
// @Summary Complete a session
// @Description Submission path: releases the lease, clears timer state everywhere and removes the session.
// @Tags    sessions
// @Success 200 {object} types.CaptureSession
// @Param key path string true "Resource key"
// @Router /api/v1/sessions/{key}/submit [post]
func (apiServer *FloorlineAPIServer) submitSession(_ http.ResponseWriter, r *http.Request) (*types.CaptureSession, *system.HTTPError) {
	snapshot, err := apiServer.Sessions.Submit(r.Context(), getResourceKey(r))
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionClosed) {
			return nil, system.NewHTTPError404(session.ErrSessionNotFound.Error())
		}
		return nil, system.NewHTTPError500(err.Error())
	}
	return &snapshot, nil
}

func isTimerTransitionError(err error) bool {
	return errors.Is(err, timer.ErrAlreadyStarted) ||
		errors.Is(err, timer.ErrNotRunning) ||
		errors.Is(err, timer.ErrNotPaused)
}

func (apiServer *FloorlineAPIServer) withSession(r *http.Request) (*session.Coordinator, *system.HTTPError) {
	c, ok := apiServer.Sessions.Get(getResourceKey(r))
	if !ok {
		return nil, system.NewHTTPError404(session.ErrSessionNotFound.Error())
	}
	return c, nil
}

// startTimer godoc
// @Summary Start the production timer
// @Tags    timers
// @Success 200 {object} types.CaptureSession
// @Param key path string true "Resource key"
// @Router /api/v1/sessions/{key}/start [post]
func (apiServer *FloorlineAPIServer) startTimer(_ http.ResponseWriter, r *http.Request) (*types.CaptureSession, *system.HTTPError) {
	c, httpErr := apiServer.withSession(r)
	if httpErr != nil {
		return nil, httpErr
	}

	snapshot, err := c.StartTimer(r.Context())
	if err != nil {
		if isTimerTransitionError(err) {
			return nil, system.NewHTTPError400(err.Error())
		}
		if errors.Is(err, session.ErrSessionClosed) {
			return nil, system.NewHTTPError404(session.ErrSessionNotFound.Error())
		}
		return nil, system.NewHTTPError500(err.Error())
	}
	return &snapshot, nil
}

// pauseTimer godoc
// @Summary Pause the production timer
// @Tags    timers
// @Success 200 {object} types.CaptureSession
// @Param key path string true "Resource key"
// @Router /api/v1/sessions/{key}/pause [post]
func (apiServer *FloorlineAPIServer) pauseTimer(_ http.ResponseWriter, r *http.Request) (*types.CaptureSession, *system.HTTPError) {
	c, httpErr := apiServer.withSession(r)
	if httpErr != nil {
		return nil, httpErr
	}

	snapshot, err := c.PauseTimer(r.Context())
	if err != nil {
		if isTimerTransitionError(err) {
			return nil, system.NewHTTPError400(err.Error())
		}
		if errors.Is(err, session.ErrSessionClosed) {
			return nil, system.NewHTTPError404(session.ErrSessionNotFound.Error())
		}
		return nil, system.NewHTTPError500(err.Error())
	}
	return &snapshot, nil
}

// resumeTimer godoc
// @Summary Resume a paused production timer
// @Description The pause becomes an accountable downtime record tagged with the mandatory reason.
// @Tags    timers
// @Success 200 {object} types.CaptureSession
// @Param key path string true "Resource key"
// @Param request body types.ResumeTimerRequest true "Downtime reason"
// @Router /api/v1/sessions/{key}/resume [post]
func (apiServer *FloorlineAPIServer) resumeTimer(_ http.ResponseWriter, r *http.Request) (*types.CaptureSession, *system.HTTPError) {
	c, httpErr := apiServer.withSession(r)
	if httpErr != nil {
		return nil, httpErr
	}

	var req types.ResumeTimerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, system.NewHTTPError400(fmt.Sprintf("failed to decode request body, error: %s", err))
	}
	if req.Reason == "" {
		return nil, system.NewHTTPError400("downtime reason is required")
	}

	snapshot, err := c.ResumeTimer(r.Context(), req.Reason)
	if err != nil {
		if isTimerTransitionError(err) {
			return nil, system.NewHTTPError400(err.Error())
		}
		if errors.Is(err, session.ErrSessionClosed) {
			return nil, system.NewHTTPError404(session.ErrSessionNotFound.Error())
		}
		return nil, system.NewHTTPError500(err.Error())
	}
	return &snapshot, nil
}

// checkLeaseConflict godoc
// @Summary Probe a resource key for a live competing lease
// @Description Dry run used by the UI before offering the lock button. Fails open when the store is unreachable.
// @Tags    leases
// @Success 200 {object} types.ConflictCheck
// @Param key path string true "Resource key"
// @Router /api/v1/leases/{key}/conflict [get]
func (apiServer *FloorlineAPIServer) checkLeaseConflict(_ http.ResponseWriter, r *http.Request) (*types.ConflictCheck, *system.HTTPError) {
	check := apiServer.Sessions.CheckConflict(r.Context(), getResourceKey(r))
	return &check, nil
}

// getTimerMirror godoc
// @Summary Read the advisory cross-device timer mirror
// @Tags    timers
// @Success 200 {object} types.TimerMirror
// @Param key path string true "Resource key"
// @Router /api/v1/timers/{key}/mirror [get]
func (apiServer *FloorlineAPIServer) getTimerMirror(_ http.ResponseWriter, r *http.Request) (*types.TimerMirror, *system.HTTPError) {
	mirror, err := apiServer.Store.GetTimerMirror(r.Context(), getResourceKey(r))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, system.NewHTTPError404(store.ErrNotFound.Error())
		}
		return nil, system.NewHTTPError(err)
	}
	return mirror, nil
}

// listDowntime godoc
// @Summary List downtime records
// @Description Read surface for dashboards. Filters: resource_key, machine, shift, date, since (RFC3339).
// @Tags    downtime
// @Success 200 {array} types.DowntimeRecord
// @Router /api/v1/downtime [get]
func (apiServer *FloorlineAPIServer) listDowntime(_ http.ResponseWriter, r *http.Request) ([]*types.DowntimeRecord, *system.HTTPError) {
	query := &store.ListDowntimeRecordsQuery{
		ResourceKey: r.URL.Query().Get("resource_key"),
		MachineName: r.URL.Query().Get("machine"),
		Shift:       types.Shift(r.URL.Query().Get("shift")),
		Date:        r.URL.Query().Get("date"),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		parsed, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return nil, system.NewHTTPError400(fmt.Sprintf("invalid since %q, expected RFC3339", since))
		}
		query.Since = parsed
	}

	records, err := apiServer.Store.ListDowntimeRecords(r.Context(), query)
	return system.DefaultController(records, err)
}

func (apiServer *FloorlineAPIServer) healthz(_ http.ResponseWriter, r *http.Request) (*types.AgentHealth, error) {
	return &types.AgentHealth{
		Status:   "ok",
		Version:  data.GetFloorlineVersion(),
		Sessions: len(apiServer.Sessions.List(r.Context())),
	}, nil
}

func (apiServer *FloorlineAPIServer) agentConfig(_ http.ResponseWriter, _ *http.Request) (*types.AgentConfig, error) {
	facility := apiServer.Sessions.Facility()
	currentShift, currentDate := shift.ForTime(facility, time.Now())

	return &types.AgentConfig{
		Version:           data.GetFloorlineVersion(),
		HolderID:          apiServer.Sessions.HolderID(),
		DeviceLabel:       apiServer.Sessions.HolderLabel(),
		Facility:          facility.Name,
		Machines:          facility.Machines,
		DayStartMinutes:   facility.DayStartMinutes,
		NightStartMinutes: facility.NightStartMinutes,
		UTCOffsetMinutes:  facility.UTCOffsetMinutes,
		CurrentShift:      currentShift,
		CurrentDate:       currentDate,
	}, nil
}
