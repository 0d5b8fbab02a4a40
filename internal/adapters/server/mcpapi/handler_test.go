package mcpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"

	"github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/hylla/qctl/internal/app"
	"github.com/mark3labs/mcp-go/mcp"
)

// stubService records tool arguments for the tools these tests call.
// Embedding the interface keeps untouched methods unimplemented.
type stubService struct {
	common.Service
	err error

	lastCount    common.CountWorkingDaysRequest
	lastAdd      common.AddWorkingDaysRequest
	lastTimeline common.TimelineRequest
	lastList     common.ListTasksRequest
	lastUpdate   common.UpdateTaskRequest
	lastActor    string
	lastComment  common.AddTaskCommentRequest
	lastDeleted  string
}

func (s *stubService) CountWorkingDays(_ context.Context, req common.CountWorkingDaysRequest) (common.WorkingDaysCount, error) {
	s.lastCount = req
	if s.err != nil {
		return common.WorkingDaysCount{}, s.err
	}
	return common.WorkingDaysCount{Start: req.Start, End: req.End, WorkingDays: 4}, nil
}

func (s *stubService) AddWorkingDays(_ context.Context, req common.AddWorkingDaysRequest) (common.WorkingDaysAdd, error) {
	s.lastAdd = req
	return common.WorkingDaysAdd{Date: req.Date, Days: req.Days, Result: "2024-03-04"}, s.err
}

func (s *stubService) ComputeTimeline(_ context.Context, req common.TimelineRequest) (common.TimelineResponse, error) {
	s.lastTimeline = req
	return common.TimelineResponse{InvalidFields: []string{"deadline"}}, s.err
}

func (s *stubService) ListTasks(_ context.Context, req common.ListTasksRequest) ([]common.Task, error) {
	s.lastList = req
	return []common.Task{{ID: "t1", Code: "TSK-1"}}, s.err
}

func (s *stubService) UpdateTask(ctx context.Context, req common.UpdateTaskRequest) (common.Task, error) {
	s.lastUpdate = req
	s.lastActor = app.ActorLabel(ctx)
	return common.Task{ID: "t1", Code: "TSK-1"}, s.err
}

func (s *stubService) ListTaskComments(_ context.Context, taskRef string, _ int) ([]common.Comment, error) {
	return []common.Comment{{ID: "c1", TaskID: taskRef, Body: "first"}}, s.err
}

func (s *stubService) AddTaskComment(ctx context.Context, req common.AddTaskCommentRequest) (common.Comment, error) {
	s.lastComment = req
	s.lastActor = app.ActorLabel(ctx)
	return common.Comment{ID: "c2", TaskID: req.TaskID, Body: req.Body, Actor: s.lastActor}, s.err
}

func (s *stubService) DeleteTaskComment(_ context.Context, _ string, commentID string) error {
	s.lastDeleted = commentID
	return s.err
}

// jsonRPCResponse models minimal JSON-RPC response fields used in MCP adapter tests.
type jsonRPCResponse struct {
	ID     float64        `json:"id"`
	Result map[string]any `json:"result"`
}

// callToolRequest constructs one deterministic tools/call JSON-RPC request payload.
func callToolRequest(id int, toolName string, arguments map[string]any) map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": arguments,
		},
	}
}

// toolResultText decodes the first text entry from one tool-call result payload.
func toolResultText(t *testing.T, result map[string]any) string {
	t.Helper()

	contentRaw, ok := result["content"].([]any)
	if !ok || len(contentRaw) == 0 {
		t.Fatalf("content missing in tool result: %#v", result)
	}
	first, ok := contentRaw[0].(map[string]any)
	if !ok {
		t.Fatalf("first content entry has unexpected type: %#v", contentRaw[0])
	}
	text, ok := first["text"].(string)
	if !ok {
		t.Fatalf("content text missing in tool result: %#v", first)
	}
	return text
}

// toolResultStructured decodes structuredContent as one map for stable assertions.
func toolResultStructured(t *testing.T, result map[string]any) map[string]any {
	t.Helper()
	structured, ok := result["structuredContent"].(map[string]any)
	if !ok {
		t.Fatalf("structuredContent missing in tool result: %#v", result)
	}
	return structured
}

// postJSONRPC sends one JSON-RPC payload and decodes the response body.
func postJSONRPC(t *testing.T, client *http.Client, url string, payload any) (*http.Response, jsonRPCResponse) {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	var decoded jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if err := resp.Body.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return resp, decoded
}

// initializeRequest builds a deterministic MCP initialize request payload.
func initializeRequest() map[string]any {
	return map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
			"clientInfo": map[string]any{
				"name":    "qctl-test",
				"version": "1.0.0",
			},
		},
	}
}

// newTestServer starts one MCP server over svc and completes the initialize handshake.
func newTestServer(t *testing.T, svc common.Service) *httptest.Server {
	t.Helper()
	handler, err := NewHandler(Config{}, svc)
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	_, _ = postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	return server
}

// TestHandlerUsesStatelessTransport verifies MCP transport does not issue session ids.
func TestHandlerUsesStatelessTransport(t *testing.T) {
	handler, err := NewHandler(Config{}, &stubService{})
	if err != nil {
		t.Fatalf("NewHandler() error = %v", err)
	}
	server := httptest.NewServer(handler)
	defer server.Close()

	resp, decoded := postJSONRPC(t, server.Client(), server.URL, initializeRequest())
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if decoded.ID != 1 {
		t.Fatalf("id = %v, want 1", decoded.ID)
	}
	if got := resp.Header.Get("Mcp-Session-Id"); got != "" {
		t.Fatalf("Mcp-Session-Id header = %q, want empty (stateless transport)", got)
	}
}

// TestHandlerRegistersTools verifies tool discovery lists calendar and portfolio tools.
func TestHandlerRegistersTools(t *testing.T) {
	server := newTestServer(t, &stubService{})
	_, toolsResp := postJSONRPC(t, server.Client(), server.URL, map[string]any{
		"jsonrpc": "2.0",
		"id":      2,
		"method":  "tools/list",
	})

	toolsRaw, ok := toolsResp.Result["tools"].([]any)
	if !ok {
		t.Fatalf("tools list payload missing tools: %#v", toolsResp.Result)
	}
	toolNames := make([]string, 0, len(toolsRaw))
	for _, toolRaw := range toolsRaw {
		toolMap, ok := toolRaw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		toolNames = append(toolNames, name)
	}
	for _, want := range []string{
		"qctl.count_working_days",
		"qctl.add_working_days",
		"qctl.compute_task_timeline",
		"qctl.list_tasks",
		"qctl.update_task",
		"qctl.project_health",
		"qctl.dashboard",
		"qctl.list_task_comments",
		"qctl.add_task_comment",
		"qctl.delete_task_comment",
	} {
		if !slices.Contains(toolNames, want) {
			t.Fatalf("tool list missing %s: %#v", want, toolNames)
		}
	}
}

// TestNewHandlerRequiresService verifies constructor validation.
func TestNewHandlerRequiresService(t *testing.T) {
	if _, err := NewHandler(Config{}, nil); err == nil {
		t.Fatal("NewHandler() error = nil, want error")
	}
}

// TestHandlerCalendarToolCalls verifies argument mapping for working-day tools.
func TestHandlerCalendarToolCalls(t *testing.T) {
	svc := &stubService{}
	server := newTestServer(t, svc)

	_, countResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "qctl.count_working_days", map[string]any{
		"start": "2024-03-04",
		"end":   "2024-03-08",
	}))
	structured := toolResultStructured(t, countResp.Result)
	if got, _ := structured["working_days"].(float64); got != 4 {
		t.Fatalf("working_days = %v, want 4", structured["working_days"])
	}
	if svc.lastCount.Start != "2024-03-04" || svc.lastCount.End != "2024-03-08" {
		t.Fatalf("unexpected count request %#v", svc.lastCount)
	}

	_, addResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "qctl.add_working_days", map[string]any{
		"date": "2024-03-08",
		"days": -4,
	}))
	if isError, _ := addResp.Result["isError"].(bool); isError {
		t.Fatalf("unexpected add error: %s", toolResultText(t, addResp.Result))
	}
	if svc.lastAdd.Days != -4 {
		t.Fatalf("days = %d, want -4", svc.lastAdd.Days)
	}

	_, timelineResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "qctl.compute_task_timeline", map[string]any{
		"expected_start_date": "2024-03-04",
		"deadline":            "2024-13-40",
		"estimate_days":       2.5,
	}))
	if isError, _ := timelineResp.Result["isError"].(bool); isError {
		t.Fatalf("unexpected timeline error: %s", toolResultText(t, timelineResp.Result))
	}
	if svc.lastTimeline.EstimateDays == nil || *svc.lastTimeline.EstimateDays != 2.5 || svc.lastTimeline.Deadline != "2024-13-40" {
		t.Fatalf("unexpected timeline request %#v", svc.lastTimeline)
	}
}

// TestHandlerTaskToolCalls verifies list and update argument binding plus actor attribution.
func TestHandlerTaskToolCalls(t *testing.T) {
	svc := &stubService{}
	server := newTestServer(t, svc)

	_, listResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "qctl.list_tasks", map[string]any{
		"project_id": "alpha",
		"health":     []string{"overdue", "at_risk"},
	}))
	structured := toolResultStructured(t, listResp.Result)
	if rows, ok := structured["tasks"].([]any); !ok || len(rows) != 1 {
		t.Fatalf("tasks = %#v, want one row", structured["tasks"])
	}
	if svc.lastList.ProjectID != "alpha" || !slices.Equal(svc.lastList.Health, []string{"overdue", "at_risk"}) {
		t.Fatalf("unexpected list request %#v", svc.lastList)
	}

	_, updateResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "qctl.update_task", map[string]any{
		"task":           "TSK-1",
		"status":         "done",
		"completed_date": "2024-03-08",
		"actual_hours":   7.5,
		"actor":          "planner",
	}))
	if isError, _ := updateResp.Result["isError"].(bool); isError {
		t.Fatalf("unexpected update error: %s", toolResultText(t, updateResp.Result))
	}
	got := svc.lastUpdate
	if got.TaskID != "TSK-1" || got.Status == nil || *got.Status != "done" || got.ActualHours == nil || *got.ActualHours != 7.5 {
		t.Fatalf("unexpected update request %#v", got)
	}
	if svc.lastActor != "mcp:planner" {
		t.Fatalf("actor = %q, want mcp:planner", svc.lastActor)
	}

	_, missingResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "qctl.update_task", map[string]any{}))
	if got := toolResultText(t, missingResp.Result); !strings.Contains(got, `required argument "task" not found`) {
		t.Fatalf("error text = %q, want required task message", got)
	}
}

// TestHandlerTaskCommentToolCalls verifies comment thread tool arguments and results.
func TestHandlerTaskCommentToolCalls(t *testing.T) {
	svc := &stubService{}
	server := newTestServer(t, svc)

	_, listResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "qctl.list_task_comments", map[string]any{
		"task": "TSK-1",
	}))
	structured := toolResultStructured(t, listResp.Result)
	if rows, ok := structured["comments"].([]any); !ok || len(rows) != 1 {
		t.Fatalf("comments = %#v, want one row", structured["comments"])
	}

	_, addResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(3, "qctl.add_task_comment", map[string]any{
		"task":  "TSK-1",
		"body":  "waiting on vendor",
		"actor": "planner",
	}))
	if isError, _ := addResp.Result["isError"].(bool); isError {
		t.Fatalf("unexpected add error: %s", toolResultText(t, addResp.Result))
	}
	if svc.lastComment.TaskID != "TSK-1" || svc.lastComment.Body != "waiting on vendor" || svc.lastActor != "mcp:planner" {
		t.Fatalf("unexpected add request %#v actor %q", svc.lastComment, svc.lastActor)
	}

	_, missingResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(4, "qctl.add_task_comment", map[string]any{
		"task": "TSK-1",
	}))
	if got := toolResultText(t, missingResp.Result); !strings.Contains(got, `required argument "body" not found`) {
		t.Fatalf("error text = %q, want required body message", got)
	}

	_, deleteResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(5, "qctl.delete_task_comment", map[string]any{
		"task":       "TSK-1",
		"comment_id": "c1",
	}))
	if isError, _ := deleteResp.Result["isError"].(bool); isError {
		t.Fatalf("unexpected delete error: %s", toolResultText(t, deleteResp.Result))
	}
	if svc.lastDeleted != "c1" {
		t.Fatalf("deleted = %q, want c1", svc.lastDeleted)
	}

	svc.err = common.ErrNotFound
	_, goneResp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(6, "qctl.delete_task_comment", map[string]any{
		"task":       "TSK-1",
		"comment_id": "c9",
	}))
	if got := toolResultText(t, goneResp.Result); !strings.HasPrefix(got, "not_found:") {
		t.Fatalf("error text = %q, want prefix not_found:", got)
	}
}

// TestHandlerToolCallErrorMapping verifies mapped service errors surface as tool errors.
func TestHandlerToolCallErrorMapping(t *testing.T) {
	svc := &stubService{err: errors.Join(common.ErrRangeTooLarge, errors.New("span too wide"))}
	server := newTestServer(t, svc)

	_, resp := postJSONRPC(t, server.Client(), server.URL, callToolRequest(2, "qctl.count_working_days", map[string]any{
		"start": "1900-01-01",
		"end":   "2100-01-01",
	}))
	if isError, _ := resp.Result["isError"].(bool); !isError {
		t.Fatalf("isError = %v, want true", resp.Result["isError"])
	}
	if got := toolResultText(t, resp.Result); !strings.HasPrefix(got, "range_too_large:") {
		t.Fatalf("error text = %q, want prefix range_too_large:", got)
	}
}

// TestToolResultFromErrorMapping verifies deterministic error-to-tool-result mapping.
func TestToolResultFromErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantPrefix string
	}{
		{"nil error", nil, "unknown error"},
		{"invalid request", errors.Join(common.ErrInvalidRequest, errors.New("bad")), "invalid_request:"},
		{"not found", errors.Join(common.ErrNotFound, errors.New("missing")), "not_found:"},
		{"conflict", errors.Join(common.ErrConflict, errors.New("taken")), "conflict:"},
		{"internal", errors.New("boom"), "internal_error:"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			result := toolResultFromError(tt.err)
			if !result.IsError {
				t.Fatalf("IsError = false, want true")
			}
			text, ok := result.Content[0].(mcp.TextContent)
			if !ok {
				t.Fatalf("content[0] has unexpected type %T", result.Content[0])
			}
			if !strings.HasPrefix(text.Text, tt.wantPrefix) {
				t.Fatalf("text = %q, want prefix %q", text.Text, tt.wantPrefix)
			}
		})
	}
}

// TestNormalizeConfig verifies defaulting and endpoint canonicalization.
func TestNormalizeConfig(t *testing.T) {
	got := normalizeConfig(Config{EndpointPath: "tools/mcp/"})
	if got.ServerName != "qctl" || got.ServerVersion != "dev" || got.EndpointPath != "/tools/mcp" {
		t.Fatalf("unexpected config %#v", got)
	}
}

// TestHandlerServeHTTPUnavailable verifies nil-safe fail-closed behavior.
func TestHandlerServeHTTPUnavailable(t *testing.T) {
	for _, handler := range []*Handler{nil, {}} {
		req := httptest.NewRequest(http.MethodPost, "/mcp", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
		}
	}
}
