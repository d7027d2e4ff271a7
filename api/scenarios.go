/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with students,
	lessons and leave requests that demonstrate the leave rules.

AVAILABLE SCENARIOS:

	demo-studio:      Two students, upcoming lessons, one personal and one
	                  pending sick leave
	counter-drift:    Students whose cached counters disagree with their
	                  leave requests; run reconciliation to repair them

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create students and lessons relative to the service clock
 3. Submit leave through leave.Service so every rule applies
 4. Optionally overwrite cached counters

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "demo-studio"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler
  - leave/service.go: Submit
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/studio/leave-engine/leave"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "demo-studio",
		Name:        "Demo Studio",
		Description: "Two students with upcoming lessons, an approved personal leave and a pending sick leave",
	},
	{
		ID:          "counter-drift",
		Name:        "Counter Drift",
		Description: "Cached counters out of sync with leave requests; trigger reconciliation to repair",
	},
}

var scenarioLoaders = map[string]func(ctx context.Context, h *Handler) error{
	"demo-studio":   loadDemoStudioScenario,
	"counter-drift": loadCounterDriftScenario,
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: scenarios})
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, Envelope{Success: true})
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, Envelope{Success: true, Data: s})
			return
		}
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: ScenarioDTO{ID: current, Name: current}})
}

// LoadScenario resets the database and loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown scenario: "+req.ScenarioID)
		return
	}

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := load(ctx, h); err != nil {
		h.fail(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	h.Log.Info().Str("scenario", req.ScenarioID).Msg("scenario loaded")
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: map[string]string{"scenario_id": req.ScenarioID}})
}

// clock returns the service clock so seeded lessons line up with the rules.
func (h *Handler) clock() time.Time {
	if h.Service.Now != nil {
		return h.Service.Now().UTC()
	}
	return time.Now().UTC()
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const demoOrg = "org-demo"

type lessonSeed struct {
	id     string
	offset time.Duration
}

func seedStudent(ctx context.Context, h *Handler, st leave.Student, lessons []lessonSeed, base time.Time) error {
	if err := h.Store.SaveStudent(ctx, st); err != nil {
		return err
	}
	for _, l := range lessons {
		if err := h.Store.SaveLesson(ctx, leave.Lesson{
			ID:         l.id,
			StudentID:  st.ID,
			OrgID:      st.OrgID,
			LessonDate: base.Add(l.offset),
		}); err != nil {
			return err
		}
	}
	return nil
}

func loadDemoStudioScenario(ctx context.Context, h *Handler) error {
	base := h.clock().Truncate(time.Hour)

	amy := leave.Student{
		ID: "stu-amy", OrgID: demoOrg,
		FullName: "Chan Tai Man", NickName: "Amy", StudentOID: "S0001",
		Email: "amy@example.com",
	}
	ben := leave.Student{
		ID: "stu-ben", OrgID: demoOrg,
		FullName: "Lee Siu Ming", NickName: "Ben", StudentOID: "S0002",
	}

	if err := seedStudent(ctx, h, amy, []lessonSeed{
		{"lsn-amy-1", 2 * time.Hour},
		{"lsn-amy-2", 10 * 24 * time.Hour},
		{"lsn-amy-3", 17 * 24 * time.Hour},
	}, base); err != nil {
		return err
	}
	if err := seedStudent(ctx, h, ben, []lessonSeed{
		{"lsn-ben-1", -3 * time.Hour},
		{"lsn-ben-2", 2 * 24 * time.Hour},
		{"lsn-ben-3", 12 * 24 * time.Hour},
	}, base); err != nil {
		return err
	}

	if _, err := h.Service.Submit(ctx, leave.SubmitInput{
		StudentID: amy.ID, LessonID: "lsn-amy-2", LeaveType: string(leave.LeavePersonal),
	}); err != nil {
		return err
	}
	_, err := h.Service.Submit(ctx, leave.SubmitInput{
		StudentID: ben.ID, LessonID: "lsn-ben-1", LeaveType: string(leave.LeaveSick),
		ProofURL: "https://files.example.com/proof/ben-note.jpg",
	})
	return err
}

func loadCounterDriftScenario(ctx context.Context, h *Handler) error {
	base := h.clock().Truncate(time.Hour)

	cara := leave.Student{
		ID: "stu-cara", OrgID: demoOrg,
		FullName: "Wong Ka Yan", NickName: "Cara", StudentOID: "S0003",
	}
	dan := leave.Student{
		ID: "stu-dan", OrgID: demoOrg,
		FullName: "Ho Chi Wai", NickName: "Dan", StudentOID: "S0004",
	}

	if err := seedStudent(ctx, h, cara, []lessonSeed{
		{"lsn-cara-1", 1 * time.Hour},
		{"lsn-cara-2", 8 * 24 * time.Hour},
	}, base); err != nil {
		return err
	}
	if err := seedStudent(ctx, h, dan, []lessonSeed{
		{"lsn-dan-1", 5 * 24 * time.Hour},
	}, base); err != nil {
		return err
	}

	if _, err := h.Service.Submit(ctx, leave.SubmitInput{
		StudentID: cara.ID, LessonID: "lsn-cara-1", LeaveType: string(leave.LeaveSick),
		ProofURL: "https://files.example.com/proof/cara.pdf",
	}); err != nil {
		return err
	}
	if _, err := h.Service.Submit(ctx, leave.SubmitInput{
		StudentID: cara.ID, LessonID: "lsn-cara-2", LeaveType: string(leave.LeavePersonal),
	}); err != nil {
		return err
	}

	// Overwrite the counters the service just maintained.
	cara.Counters = leave.Counters{PendingConfirmation: 4, ApprovedNonscheduled: 0}
	if err := h.Store.SaveStudent(ctx, cara); err != nil {
		return err
	}
	dan.Counters = leave.Counters{PendingConfirmation: 0, ApprovedNonscheduled: 2}
	return h.Store.SaveStudent(ctx, dan)
}
