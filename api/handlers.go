/*
handlers.go - HTTP API handlers for lesson leave

PURPOSE:
  Exposes leave submission, admin review and reporting via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  package leave.

ENDPOINTS:
  Student:
    POST   /api/student/leave-application     Submit personal or sick leave

  Admin:
    GET    /api/admin/leave-requests          List pending requests (?orgId=)
    PUT    /api/admin/leave-requests          Approve or reject a request
    POST   /api/admin/reconciliation          Recompute student counters
    GET    /api/admin/reconciliation/runs     Recent reconciliation runs

  Students:
    GET    /api/students/{id}/leave-requests  Leave history
    GET    /api/students/{id}/leave-summary   Counters, monthly usage, leave rate
    GET    /api/students/{id}/audit           Audit trail

  Scenarios:
    GET    /api/scenarios                     List demo scenarios
    GET    /api/scenarios/current             Currently loaded scenario
    POST   /api/scenarios/load                Load a demo scenario

ERROR HANDLING:
  Errors are returned in the envelope with an HTTP status:
  - 400: policy violations, missing or invalid parameters
  - 404: unknown student, lesson or request
  - 409: duplicate leave for a lesson, request already reviewed
  - 500: internal errors (logged)

SECURITY NOTE:
  Callers are trusted; studentId and reviewedBy are taken from the body.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/studio/leave-engine/leave"
	"github.com/studio/leave-engine/store/sqlstore"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service    *leave.Service
	Reconciler *leave.Reconciler
	Store      *sqlstore.Store
	Log        zerolog.Logger

	validate *validator.Validate

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(svc *leave.Service, rec *leave.Reconciler, store *sqlstore.Store, log zerolog.Logger) *Handler {
	return &Handler{
		Service:    svc,
		Reconciler: rec,
		Store:      store,
		Log:        log.With().Str("component", "api").Logger(),
		validate:   newValidator(),
	}
}

// newValidator reports fields by their json names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// SubmitLeaveApplication records a personal or sick leave.
// POST /api/student/leave-application
func (h *Handler) SubmitLeaveApplication(w http.ResponseWriter, r *http.Request) {
	var req LeaveApplicationRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	in := leave.SubmitInput{
		StudentID: strings.TrimSpace(req.StudentID),
		OrgID:     strings.TrimSpace(req.OrgID),
		LessonID:  strings.TrimSpace(req.LessonID),
		LeaveType: strings.TrimSpace(req.LeaveType),
		ProofURL:  strings.TrimSpace(req.ProofURL),
	}
	if req.LessonDate != "" {
		d, err := parseLessonDate(req.LessonDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "無效的日期格式: lessonDate")
			return
		}
		in.LessonDate = &d
	}

	created, err := h.Service.Submit(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: toLeaveRequestDTO(*created)})
}

// parseLessonDate accepts RFC 3339 timestamps and bare dates (UTC midnight).
func parseLessonDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Parse("2006-01-02", s)
}

// GetStudentLeaveRequests returns a student's leave history, newest first.
// GET /api/students/{id}/leave-requests
func (h *Handler) GetStudentLeaveRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Service.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]LeaveRequestDTO, len(reqs))
	for i, lr := range reqs {
		dtos[i] = toLeaveRequestDTO(lr)
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: dtos})
}

// GetStudentLeaveSummary returns counters, monthly usage and leave rate.
// GET /api/students/{id}/leave-summary
func (h *Handler) GetStudentLeaveSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Service.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: LeaveSummaryDTO{
		StudentID:              sum.StudentID,
		Counters:               toCountersDTO(sum.Cached),
		Derived:                toCountersDTO(sum.Derived),
		Drift:                  sum.Drift,
		Month:                  sum.Month.Start.Format("2006-01"),
		PersonalLeaveUsed:      sum.PersonalUsed,
		PersonalLeaveRemaining: sum.PersonalRemaining,
		TotalLessons:           sum.TotalLessons,
		CountedLeave:           sum.CountedLeave,
		LeaveRate:              sum.LeaveRate.StringFixed(2),
	}})
}

// GetStudentAudit returns the audit trail of a student, oldest first.
// GET /api/students/{id}/audit
func (h *Handler) GetStudentAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.Audit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:        e.ID,
			Timestamp: e.Timestamp.UTC().Format(time.RFC3339),
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			StudentID: e.StudentID,
			RequestID: e.RequestID,
			Payload:   e.Payload,
		}
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: dtos})
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// ListLeaveRequests returns pending requests with their students.
// GET /api/admin/leave-requests?orgId=
func (h *Handler) ListLeaveRequests(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Service.ListPending(r.Context(), r.URL.Query().Get("orgId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]PendingLeaveRequestDTO, len(pending))
	for i, p := range pending {
		dtos[i] = PendingLeaveRequestDTO{
			LeaveRequestDTO: toLeaveRequestDTO(p.LeaveRequest),
			Student: StudentRefDTO{
				FullName:   p.Student.FullName,
				NickName:   p.Student.NickName,
				StudentOID: p.Student.StudentOID,
			},
		}
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: dtos})
}

// ReviewLeaveRequest approves or rejects a pending request.
// PUT /api/admin/leave-requests
func (h *Handler) ReviewLeaveRequest(w http.ResponseWriter, r *http.Request) {
	var req ReviewLeaveRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	reviewed, err := h.Service.Review(r.Context(), leave.ReviewInput{
		RequestID:       strings.TrimSpace(req.RequestID),
		Status:          req.Status,
		ReviewedBy:      strings.TrimSpace(req.ReviewedBy),
		ReviewNotes:     req.ReviewNotes,
		RejectionReason: req.RejectionReason,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: toLeaveRequestDTO(*reviewed)})
}

// TriggerReconciliation recomputes counters now.
// POST /api/admin/reconciliation
func (h *Handler) TriggerReconciliation(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	run, err := h.Reconciler.Run(r.Context(), strings.TrimSpace(req.OrgID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: toRunDTO(*run)})
}

// ListReconciliationRuns returns recent runs, newest first.
// GET /api/admin/reconciliation/runs?limit=
func (h *Handler) ListReconciliationRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "無效的參數: limit")
			return
		}
		limit = n
	}

	runs, err := h.Store.ListReconciliationRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	dtos := make([]ReconciliationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: dtos})
}

// Health reports that the server and database are reachable.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: map[string]string{"status": "ok"}})
}

// =============================================================================
// HELPERS
// =============================================================================

// decode reads and validates a JSON body. It writes the error response and
// returns false on failure. optional allows an empty body.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, "無效的請求內容")
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		h.fail(w, r, validationError(err))
		return false
	}
	return true
}

// validationError maps the first failed field onto a leave.ParameterError.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	pe := &leave.ParameterError{Field: fe.Field(), Err: leave.ErrMissingParameter}
	if fe.Tag() == "oneof" {
		pe.Err = leave.ErrInvalidStatus
	}
	return pe
}

func statusFor(err error) int {
	switch {
	case leave.IsClientError(err):
		return http.StatusBadRequest
	case leave.IsNotFound(err):
		return http.StatusNotFound
	case leave.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its status. Only server errors are logged; policy
// violations are expected.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Log.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: false, Error: message})
}
