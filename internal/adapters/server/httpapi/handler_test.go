package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/hylla/qctl/internal/app"
)

// stubService records requests for the routes handler tests exercise.
// Embedding the interface keeps untouched methods unimplemented.
type stubService struct {
	common.Service
	err error

	lastCount  common.CountWorkingDaysRequest
	lastAdd    common.AddWorkingDaysRequest
	lastList   common.ListTasksRequest
	lastUpdate common.UpdateTaskRequest
	lastActor  string
	lastLimit  int

	lastComment common.AddTaskCommentRequest
	deleted     [2]string
}

func (s *stubService) CountWorkingDays(_ context.Context, req common.CountWorkingDaysRequest) (common.WorkingDaysCount, error) {
	s.lastCount = req
	if s.err != nil {
		return common.WorkingDaysCount{}, s.err
	}
	return common.WorkingDaysCount{Start: req.Start, End: req.End, WorkingDays: 5}, nil
}

func (s *stubService) AddWorkingDays(_ context.Context, req common.AddWorkingDaysRequest) (common.WorkingDaysAdd, error) {
	s.lastAdd = req
	if s.err != nil {
		return common.WorkingDaysAdd{}, s.err
	}
	return common.WorkingDaysAdd{Date: req.Date, Days: req.Days, Result: "2024-03-11"}, nil
}

func (s *stubService) ListTasks(_ context.Context, req common.ListTasksRequest) ([]common.Task, error) {
	s.lastList = req
	if s.err != nil {
		return nil, s.err
	}
	return []common.Task{{ID: "t1", Code: "TSK-1"}}, nil
}

func (s *stubService) UpdateTask(ctx context.Context, req common.UpdateTaskRequest) (common.Task, error) {
	s.lastUpdate = req
	s.lastActor = app.ActorLabel(ctx)
	if s.err != nil {
		return common.Task{}, s.err
	}
	return common.Task{ID: req.TaskID, Code: "TSK-1"}, nil
}

func (s *stubService) ListProjectActivity(_ context.Context, _ string, limit int) ([]common.ChangeEvent, error) {
	s.lastLimit = limit
	return nil, s.err
}

func (s *stubService) ListTaskComments(_ context.Context, taskRef string, limit int) ([]common.Comment, error) {
	s.lastLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return []common.Comment{{ID: "c2", TaskID: taskRef, Body: "second"}, {ID: "c1", TaskID: taskRef, Body: "first"}}, nil
}

func (s *stubService) AddTaskComment(ctx context.Context, req common.AddTaskCommentRequest) (common.Comment, error) {
	s.lastComment = req
	s.lastActor = app.ActorLabel(ctx)
	if s.err != nil {
		return common.Comment{}, s.err
	}
	return common.Comment{ID: "c3", TaskID: req.TaskID, Body: req.Body, Actor: s.lastActor}, nil
}

func (s *stubService) DeleteTaskComment(_ context.Context, taskRef, commentID string) error {
	s.deleted = [2]string{taskRef, commentID}
	return s.err
}

// serve runs one request through the handler and returns the recorder.
func serve(t *testing.T, handler http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// decodeEnvelope decodes one structured error envelope.
func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) ErrorEnvelope {
	t.Helper()
	var envelope ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return envelope
}

// TestHandlerWorkdaysCount verifies query mapping for the count route.
func TestHandlerWorkdaysCount(t *testing.T) {
	svc := &stubService{}
	rec := serve(t, NewHandler(svc), http.MethodGet, "/workdays/count?start=2024-03-04&end=2024-03-11", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var got common.WorkingDaysCount
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.WorkingDays != 5 || svc.lastCount.Start != "2024-03-04" || svc.lastCount.End != "2024-03-11" {
		t.Fatalf("unexpected count %#v from request %#v", got, svc.lastCount)
	}
}

// TestHandlerWorkdaysAddRejectsBadDays verifies integer query validation.
func TestHandlerWorkdaysAddRejectsBadDays(t *testing.T) {
	svc := &stubService{}
	rec := serve(t, NewHandler(svc), http.MethodGet, "/workdays/add?date=2024-03-08&days=two", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if code := decodeEnvelope(t, rec).Error.Code; code != "invalid_request" {
		t.Fatalf("error.code = %q, want invalid_request", code)
	}

	rec = serve(t, NewHandler(svc), http.MethodGet, "/workdays/add?date=2024-03-08&days=-3", "", nil)
	if rec.Code != http.StatusOK || svc.lastAdd.Days != -3 {
		t.Fatalf("status = %d days = %d, want 200 and -3", rec.Code, svc.lastAdd.Days)
	}
}

// TestHandlerErrorMapping verifies structured status mapping for service errors.
func TestHandlerErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid request", errors.Join(common.ErrInvalidRequest, errors.New("bad input")), http.StatusBadRequest, "invalid_request"},
		{"not found", errors.Join(common.ErrNotFound, errors.New("missing")), http.StatusNotFound, "not_found"},
		{"conflict", errors.Join(common.ErrConflict, errors.New("taken")), http.StatusConflict, "conflict"},
		{"range", errors.Join(common.ErrRangeTooLarge, errors.New("too wide")), http.StatusUnprocessableEntity, "range_too_large"},
		{"internal error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, NewHandler(&stubService{err: tt.err}), http.MethodGet, "/workdays/count?start=a&end=b", "", nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if code := decodeEnvelope(t, rec).Error.Code; code != tt.wantCode {
				t.Fatalf("error.code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

// TestHandlerRoutingFailures verifies unknown routes and method guards.
func TestHandlerRoutingFailures(t *testing.T) {
	handler := NewHandler(&stubService{})

	rec := serve(t, handler, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	rec = serve(t, handler, http.MethodPut, "/tasks/TSK-1", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	if allow := rec.Header().Get("Allow"); allow != "GET, PATCH, DELETE" {
		t.Fatalf("Allow = %q", allow)
	}

	rec = serve(t, handler, http.MethodGet, "/timeline", "", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("timeline status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}

	rec = serve(t, NewHandler(nil), http.MethodGet, "/dashboard", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("nil service status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

// TestHandlerTaskStatusAttributesActor verifies the status route and actor header wiring.
func TestHandlerTaskStatusAttributesActor(t *testing.T) {
	svc := &stubService{}
	rec := serve(t, NewHandler(svc), http.MethodPost, "/tasks/TSK-1/status",
		`{"status":"done","completed_date":"2024-03-08","actual_hours":6}`,
		map[string]string{ActorHeader: "ops@example.com"},
	)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if svc.lastUpdate.TaskID != "TSK-1" || svc.lastUpdate.Status == nil || *svc.lastUpdate.Status != "done" {
		t.Fatalf("unexpected update request %#v", svc.lastUpdate)
	}
	if svc.lastUpdate.ActualHours == nil || *svc.lastUpdate.ActualHours != 6 {
		t.Fatalf("expected actual hours to be forwarded, got %v", svc.lastUpdate.ActualHours)
	}
	if svc.lastActor != "http:ops@example.com" {
		t.Fatalf("actor = %q, want http:ops@example.com", svc.lastActor)
	}

	rec = serve(t, NewHandler(svc), http.MethodPost, "/tasks/TSK-1/status", `{}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// TestHandlerRejectsUnknownAndTrailingBody verifies strict JSON decoding.
func TestHandlerRejectsUnknownAndTrailingBody(t *testing.T) {
	svc := &stubService{}
	for _, body := range []string{`{"name":"x","bogus":1}`, `{"name":"x"} {}`} {
		rec := serve(t, NewHandler(svc), http.MethodPatch, "/tasks/TSK-1", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s status = %d, want %d", body, rec.Code, http.StatusBadRequest)
		}
	}
	if svc.lastUpdate.TaskID != "" {
		t.Fatalf("expected no update call, got %#v", svc.lastUpdate)
	}
}

// TestHandlerListTasksQuery verifies repeated filter values and boolean parsing.
func TestHandlerListTasksQuery(t *testing.T) {
	svc := &stubService{}
	rec := serve(t, NewHandler(svc), http.MethodGet, "/tasks?project_id=alpha&status=backlog&status=done&health=overdue&q=billing&include_deleted=true", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	got := svc.lastList
	if got.ProjectID != "alpha" || len(got.Statuses) != 2 || got.Health[0] != "overdue" || got.Search != "billing" || !got.IncludeDeleted {
		t.Fatalf("unexpected list request %#v", got)
	}

	rec = serve(t, NewHandler(svc), http.MethodGet, "/tasks?include_deleted=maybe", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

// TestHandlerProjectActivityLimit verifies limit query parsing.
func TestHandlerProjectActivityLimit(t *testing.T) {
	svc := &stubService{}
	rec := serve(t, NewHandler(svc), http.MethodGet, "/projects/alpha/activity?limit=25", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if svc.lastLimit != 25 {
		t.Fatalf("limit = %d, want 25", svc.lastLimit)
	}
}

// TestHandlerTaskComments verifies the comment thread routes.
func TestHandlerTaskComments(t *testing.T) {
	svc := &stubService{}
	handler := NewHandler(svc)

	rec := serve(t, handler, http.MethodGet, "/tasks/TSK-1/comments?limit=2", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d, want %d", rec.Code, http.StatusOK)
	}
	var listed struct {
		Comments []common.Comment `json:"comments"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&listed); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(listed.Comments) != 2 || listed.Comments[0].ID != "c2" || svc.lastLimit != 2 {
		t.Fatalf("unexpected list %#v limit %d", listed.Comments, svc.lastLimit)
	}

	rec = serve(t, handler, http.MethodPost, "/tasks/TSK-1/comments", `{"body":"blocked on QA"}`,
		map[string]string{ActorHeader: "dana"},
	)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want %d: %s", rec.Code, http.StatusCreated, rec.Body.String())
	}
	if svc.lastComment.TaskID != "TSK-1" || svc.lastComment.Body != "blocked on QA" || svc.lastActor != "http:dana" {
		t.Fatalf("unexpected add request %#v actor %q", svc.lastComment, svc.lastActor)
	}

	rec = serve(t, handler, http.MethodDelete, "/tasks/TSK-1/comments/c1", "", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if svc.deleted != [2]string{"TSK-1", "c1"} {
		t.Fatalf("unexpected delete %v", svc.deleted)
	}

	rec = serve(t, handler, http.MethodPut, "/tasks/TSK-1/comments", `{}`, nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("put status = %d, want %d", rec.Code, http.StatusMethodNotAllowed)
	}
	rec = serve(t, handler, http.MethodDelete, "/tasks/TSK-1/notes/c1", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown sub-route status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	svc.err = common.ErrInvalidRequest
	rec = serve(t, handler, http.MethodPost, "/tasks/TSK-1/comments", `{"body":" "}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty body status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	svc.err = common.ErrNotFound
	rec = serve(t, handler, http.MethodDelete, "/tasks/TSK-1/comments/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing comment status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}
