/*
handlers_test.go - HTTP tests for the leave API

Tests for:
- Leave application (personal, sick, policy violations, bad input)
- Admin review queue and decisions
- Summary, history, audit, reconciliation, scenarios
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studio/leave-engine/leave"
	"github.com/studio/leave-engine/notify"
	"github.com/studio/leave-engine/store/sqlstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2026, time.March, 10, 2, 0, 0, 0, time.UTC)

type testServer struct {
	t      *testing.T
	h      *Handler
	router http.Handler
	store  *sqlstore.Store
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestServer(t *testing.T) *testServer {
	store, err := sqlstore.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := zerolog.Nop()
	svc := leave.NewService(store, leave.DefaultPolicy(time.UTC), notify.Nop{}, log)
	svc.Now = func() time.Time { return testNow }
	rec := leave.NewReconciler(store, log)
	rec.Now = func() time.Time { return testNow }

	h := NewHandler(svc, rec, store, log)
	ts := &testServer{t: t, h: h, router: NewRouter(h, []string{"http://localhost:3000"}), store: store}

	ctx := context.Background()
	require.NoError(t, store.SaveStudent(ctx, leave.Student{
		ID: "stu-1", OrgID: "org-1", FullName: "Chan Tai Man", NickName: "Amy", StudentOID: "S0001",
	}))
	ts.lesson("lsn-near", testNow.Add(2*time.Hour))
	ts.lesson("lsn-2d", testNow.Add(48*time.Hour))
	ts.lesson("lsn-10d", testNow.Add(10*24*time.Hour))
	ts.lesson("lsn-12d", testNow.Add(12*24*time.Hour))
	return ts
}

func (ts *testServer) lesson(id string, at time.Time) {
	require.NoError(ts.t, ts.store.SaveLesson(context.Background(), leave.Lesson{
		ID: id, StudentID: "stu-1", OrgID: "org-1", LessonDate: at,
	}))
}

func (ts *testServer) do(method, path string, body any) (int, response) {
	ts.t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)

	var resp response
	require.NoError(ts.t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func (ts *testServer) apply(body map[string]any) (int, response) {
	return ts.do(http.MethodPost, "/api/student/leave-application", body)
}

func decodeData[T any](t *testing.T, resp response) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(resp.Data, &v))
	return v
}

// =============================================================================
// LEAVE APPLICATION
// =============================================================================

func TestSubmitLeaveApplication_Personal(t *testing.T) {
	// GIVEN: A lesson 10 days away
	ts := newTestServer(t)

	// WHEN: The student applies for personal leave
	code, resp := ts.apply(map[string]any{
		"studentId": "stu-1", "orgId": "org-1", "lessonId": "lsn-10d",
		"lessonDate": testNow.Add(10 * 24 * time.Hour).Format(time.RFC3339), "leaveType": "personal",
	})

	// THEN: 200 with an approved request
	require.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	dto := decodeData[LeaveRequestDTO](t, resp)
	assert.Equal(t, "approved", dto.Status)
	assert.Equal(t, "personal", dto.LeaveType)
	require.NotNil(t, dto.ReviewedBy)
	assert.Equal(t, "system", *dto.ReviewedBy)
	assert.Nil(t, dto.ProofURL)

	l, err := ts.store.GetLesson(context.Background(), "lsn-10d")
	require.NoError(t, err)
	assert.True(t, l.OnLeave())
}

func TestSubmitLeaveApplication_PolicyViolations(t *testing.T) {
	ts := newTestServer(t)

	code, resp := ts.apply(map[string]any{"studentId": "stu-1", "lessonId": "lsn-2d", "leaveType": "personal"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.False(t, resp.Success)
	assert.Equal(t, "事假需在 72 小時前申請", resp.Error)

	code, _ = ts.apply(map[string]any{"studentId": "stu-1", "lessonId": "lsn-10d", "leaveType": "personal"})
	require.Equal(t, http.StatusOK, code)
	code, resp = ts.apply(map[string]any{"studentId": "stu-1", "lessonId": "lsn-12d", "leaveType": "personal"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "每月只能申請一次事假", resp.Error)

	code, resp = ts.apply(map[string]any{"studentId": "stu-1", "lessonId": "lsn-near", "leaveType": "sick"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "病假需要提供證明文件", resp.Error)

	code, resp = ts.apply(map[string]any{"studentId": "stu-1", "lessonId": "lsn-2d", "leaveType": "sick", "proofUrl": "https://x/p.jpg"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "病假需在課堂前後 24 小時內申請", resp.Error)
}

func TestSubmitLeaveApplication_BadInput(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		body   any
		status int
		errMsg string
	}{
		{"missing studentId", map[string]any{"lessonId": "lsn-near", "leaveType": "sick"}, http.StatusBadRequest, "缺少必要參數: studentId"},
		{"missing lessonId", map[string]any{"studentId": "stu-1", "leaveType": "sick"}, http.StatusBadRequest, "缺少必要參數: lessonId"},
		{"missing leaveType", map[string]any{"studentId": "stu-1", "lessonId": "lsn-near"}, http.StatusBadRequest, "缺少必要參數: leaveType"},
		{"unknown leaveType", map[string]any{"studentId": "stu-1", "lessonId": "lsn-near", "leaveType": "holiday"}, http.StatusBadRequest, "無效的請假類型: leaveType"},
		{"bad lessonDate", map[string]any{"studentId": "stu-1", "lessonId": "lsn-near", "leaveType": "sick", "lessonDate": "next tuesday"}, http.StatusBadRequest, "無效的日期格式: lessonDate"},
		{"malformed json", "{not json", http.StatusBadRequest, "無效的請求內容"},
		{"unknown student", map[string]any{"studentId": "ghost", "lessonId": "lsn-near", "leaveType": "sick"}, http.StatusNotFound, "student not found"},
		{"unknown lesson", map[string]any{"studentId": "stu-1", "lessonId": "ghost", "leaveType": "sick"}, http.StatusNotFound, "lesson not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := ts.do(http.MethodPost, "/api/student/leave-application", tt.body)
			assert.Equal(t, tt.status, code)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.errMsg, resp.Error)
		})
	}
}

func TestSubmitLeaveApplication_DateOnlyAccepted(t *testing.T) {
	ts := newTestServer(t)

	code, resp := ts.apply(map[string]any{
		"studentId": "stu-1", "lessonId": "lsn-10d", "leaveType": "personal", "lessonDate": "2026-03-20",
	})

	assert.Equal(t, http.StatusOK, code, resp.Error)
}

func TestSubmitLeaveApplication_Duplicate(t *testing.T) {
	ts := newTestServer(t)
	body := map[string]any{"studentId": "stu-1", "lessonId": "lsn-near", "leaveType": "sick", "proofUrl": "https://x/p.jpg"}

	code, _ := ts.apply(body)
	require.Equal(t, http.StatusOK, code)
	code, resp := ts.apply(body)

	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, resp.Success)
}

// =============================================================================
// ADMIN REVIEW
// =============================================================================

func TestAdminReview_Approve(t *testing.T) {
	// GIVEN: A pending sick leave
	ts := newTestServer(t)
	code, resp := ts.apply(map[string]any{"studentId": "stu-1", "lessonId": "lsn-near", "leaveType": "sick", "proofUrl": "https://x/p.jpg"})
	require.Equal(t, http.StatusOK, code)
	created := decodeData[LeaveRequestDTO](t, resp)

	// WHEN: The admin lists and approves it
	code, resp = ts.do(http.MethodGet, "/api/admin/leave-requests?orgId=org-1", nil)
	require.Equal(t, http.StatusOK, code)
	pending := decodeData[[]PendingLeaveRequestDTO](t, resp)
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)
	assert.Equal(t, StudentRefDTO{FullName: "Chan Tai Man", NickName: "Amy", StudentOID: "S0001"}, pending[0].Student)

	code, resp = ts.do(http.MethodPut, "/api/admin/leave-requests", map[string]any{
		"requestId": created.ID, "status": "approved", "reviewNotes": "ok",
	})

	// THEN: The request is approved by the default reviewer and the queue is empty
	require.Equal(t, http.StatusOK, code, resp.Error)
	reviewed := decodeData[LeaveRequestDTO](t, resp)
	assert.Equal(t, "approved", reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, "admin", *reviewed.ReviewedBy)

	code, resp = ts.do(http.MethodGet, "/api/admin/leave-requests", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, string(resp.Data))

	st, err := ts.store.GetStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Equal(t, leave.Counters{ApprovedNonscheduled: 1}, st.Counters)

	// reviewing again conflicts
	code, _ = ts.do(http.MethodPut, "/api/admin/leave-requests", map[string]any{"requestId": created.ID, "status": "rejected"})
	assert.Equal(t, http.StatusConflict, code)
}

func TestAdminReview_BadInput(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name   string
		body   map[string]any
		status int
		errMsg string
	}{
		{"missing requestId", map[string]any{"status": "approved"}, http.StatusBadRequest, "缺少必要參數: requestId"},
		{"missing status", map[string]any{"requestId": "r-1"}, http.StatusBadRequest, "缺少必要參數: status"},
		{"invalid status", map[string]any{"requestId": "r-1", "status": "maybe"}, http.StatusBadRequest, "無效的審核狀態: status"},
		{"unknown request", map[string]any{"requestId": "r-1", "status": "approved"}, http.StatusNotFound, "leave request not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := ts.do(http.MethodPut, "/api/admin/leave-requests", tt.body)
			assert.Equal(t, tt.status, code)
			assert.Equal(t, tt.errMsg, resp.Error)
		})
	}
}

// =============================================================================
// STUDENT VIEWS
// =============================================================================

func TestStudentViews(t *testing.T) {
	ts := newTestServer(t)
	code, _ := ts.apply(map[string]any{"studentId": "stu-1", "lessonId": "lsn-10d", "leaveType": "personal"})
	require.Equal(t, http.StatusOK, code)

	code, resp := ts.do(http.MethodGet, "/api/students/stu-1/leave-requests", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]LeaveRequestDTO](t, resp), 1)

	code, resp = ts.do(http.MethodGet, "/api/students/stu-1/leave-summary", nil)
	require.Equal(t, http.StatusOK, code)
	sum := decodeData[LeaveSummaryDTO](t, resp)
	assert.Equal(t, CountersDTO{ApprovedLessonNonscheduled: 1}, sum.Counters)
	assert.False(t, sum.Drift)
	assert.Equal(t, "2026-03", sum.Month)
	assert.Equal(t, 1, sum.PersonalLeaveUsed)
	assert.Equal(t, 0, sum.PersonalLeaveRemaining)
	assert.Equal(t, 4, sum.TotalLessons)
	assert.Equal(t, "0.25", sum.LeaveRate)

	code, resp = ts.do(http.MethodGet, "/api/students/stu-1/audit", nil)
	require.Equal(t, http.StatusOK, code)
	audit := decodeData[[]AuditEntryDTO](t, resp)
	require.Len(t, audit, 1)
	assert.Equal(t, "request_created", audit[0].Action)

	code, _ = ts.do(http.MethodGet, "/api/students/ghost/leave-summary", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

// =============================================================================
// RECONCILIATION, SCENARIOS, HEALTH
// =============================================================================

func TestReconciliation_WithScenario(t *testing.T) {
	// GIVEN: The counter-drift scenario
	ts := newTestServer(t)
	code, resp := ts.do(http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "counter-drift"})
	require.Equal(t, http.StatusOK, code, resp.Error)

	// WHEN: Reconciliation is triggered without a body
	code, resp = ts.do(http.MethodPost, "/api/admin/reconciliation", nil)

	// THEN: Both drifted students are corrected
	require.Equal(t, http.StatusOK, code, resp.Error)
	run := decodeData[ReconciliationRunDTO](t, resp)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 2, run.StudentsChecked)
	assert.Equal(t, 2, run.StudentsCorrected)

	code, resp = ts.do(http.MethodGet, "/api/students/stu-cara/leave-summary", nil)
	require.Equal(t, http.StatusOK, code)
	sum := decodeData[LeaveSummaryDTO](t, resp)
	assert.False(t, sum.Drift)
	assert.Equal(t, CountersDTO{PendingConfirmationCount: 1, ApprovedLessonNonscheduled: 1}, sum.Counters)

	code, resp = ts.do(http.MethodGet, "/api/admin/reconciliation/runs?limit=5", nil)
	require.Equal(t, http.StatusOK, code)
	runs := decodeData[[]ReconciliationRunDTO](t, resp)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	code, _ = ts.do(http.MethodGet, "/api/admin/reconciliation/runs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestScenarios(t *testing.T) {
	ts := newTestServer(t)

	code, resp := ts.do(http.MethodGet, "/api/scenarios", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, decodeData[[]ScenarioDTO](t, resp), len(scenarios))

	code, resp = ts.do(http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, resp.Data)

	code, resp = ts.do(http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "demo-studio"})
	require.Equal(t, http.StatusOK, code, resp.Error)

	code, resp = ts.do(http.MethodGet, "/api/scenarios/current", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "demo-studio", decodeData[ScenarioDTO](t, resp).ID)

	// the reset removed the fixture student, the scenario added its own
	code, resp = ts.do(http.MethodGet, "/api/admin/leave-requests?orgId=org-demo", nil)
	require.Equal(t, http.StatusOK, code)
	pending := decodeData[[]PendingLeaveRequestDTO](t, resp)
	require.Len(t, pending, 1)
	assert.Equal(t, "stu-ben", pending[0].StudentID)

	code, _ = ts.do(http.MethodGet, "/api/students/stu-1/leave-summary", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = ts.do(http.MethodPost, "/api/scenarios/load", map[string]any{"scenario_id": "nope"})
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	code, resp := ts.do(http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(&leave.PolicyViolationError{Code: leave.ViolationMonthlyLimit}))
	assert.Equal(t, http.StatusNotFound, statusFor(leave.ErrLessonNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(leave.ErrNotPending))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.DeadlineExceeded))
}
