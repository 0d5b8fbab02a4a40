// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/hylla/qctl/internal/app"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// ActorHeader names the request header that attributes mutations in the audit ledger.
const ActorHeader = "X-Qctl-Actor"

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	service common.Service
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// taskStatusRequest is the body of POST `/tasks/{id}/status`.
type taskStatusRequest struct {
	Status        string   `json:"status"`
	CompletedDate *string  `json:"completed_date"`
	ActualHours   *float64 `json:"actual_hours"`
}

// NewHandler constructs one HTTP API adapter.
func NewHandler(service common.Service) *Handler {
	return &Handler{service: service}
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		writeJSONError(w, http.StatusServiceUnavailable, APIError{
			Code:    "service_unavailable",
			Message: "api service is not configured",
		})
		return
	}
	r = r.WithContext(withRequestActor(r))

	segments := strings.Split(normalizePath(r.URL.Path), "/")
	switch segments[0] {
	case "workdays":
		h.routeWorkdays(w, r, segments[1:])
	case "timeline":
		if len(segments) != 1 {
			writeNotFound(w)
			return
		}
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w, http.MethodPost)
			return
		}
		h.handleTimeline(w, r)
	case "projects":
		h.routeProjects(w, r, segments[1:])
	case "tasks":
		h.routeTasks(w, r, segments[1:])
	case "resources":
		h.routeResources(w, r, segments[1:])
	case "dashboard":
		if len(segments) != 1 {
			writeNotFound(w)
			return
		}
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		dashboard, err := h.service.Dashboard(r.Context())
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, dashboard)
	default:
		writeNotFound(w)
	}
}

// routeWorkdays serves `/workdays/{count,add,check}`.
func (h *Handler) routeWorkdays(w http.ResponseWriter, r *http.Request, rest []string) {
	if len(rest) != 1 {
		writeNotFound(w)
		return
	}
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w, http.MethodGet)
		return
	}
	query := r.URL.Query()
	switch rest[0] {
	case "count":
		out, err := h.service.CountWorkingDays(r.Context(), common.CountWorkingDaysRequest{
			Start: query.Get("start"),
			End:   query.Get("end"),
		})
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case "add":
		days, err := parseIntQuery(query.Get("days"), "days", 0)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		out, err := h.service.AddWorkingDays(r.Context(), common.AddWorkingDaysRequest{
			Date: query.Get("date"),
			Days: days,
		})
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	case "check":
		out, err := h.service.CheckWorkingDay(r.Context(), query.Get("date"))
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	default:
		writeNotFound(w)
	}
}

// handleTimeline serves POST `/timeline`.
func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	var req common.TimelineRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	out, err := h.service.ComputeTimeline(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// routeProjects serves `/projects`, `/projects/{id}`, and its health and activity views.
func (h *Handler) routeProjects(w http.ResponseWriter, r *http.Request, rest []string) {
	ctx := r.Context()
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			includeArchived, err := parseBoolQuery(r.URL.Query().Get("include_archived"), "include_archived")
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			projects, err := h.service.ListProjects(ctx, includeArchived)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
		case http.MethodPost:
			var req common.CreateProjectRequest
			if err := decodeJSONBody(ctx, w, r, &req); err != nil {
				writeErrorFrom(w, err)
				return
			}
			project, err := h.service.CreateProject(ctx, req)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, project)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case 1:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		project, err := h.service.GetProject(ctx, rest[0])
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, project)
	case 2:
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w, http.MethodGet)
			return
		}
		switch rest[1] {
		case "health":
			health, err := h.service.ProjectHealth(ctx, rest[0])
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, health)
		case "activity":
			limit, err := parseIntQuery(r.URL.Query().Get("limit"), "limit", 0)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			events, err := h.service.ListProjectActivity(ctx, rest[0], limit)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"events": events})
		default:
			writeNotFound(w)
		}
	default:
		writeNotFound(w)
	}
}

// routeTasks serves `/tasks`, `/tasks/{ref}` and its status, activity, and comments sub-routes.
func (h *Handler) routeTasks(w http.ResponseWriter, r *http.Request, rest []string) {
	ctx := r.Context()
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			req, err := listTasksRequestFromQuery(r)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			tasks, err := h.service.ListTasks(ctx, req)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
		case http.MethodPost:
			var req common.CreateTaskRequest
			if err := decodeJSONBody(ctx, w, r, &req); err != nil {
				writeErrorFrom(w, err)
				return
			}
			task, err := h.service.CreateTask(ctx, req)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, task)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case 1:
		switch r.Method {
		case http.MethodGet:
			task, err := h.service.GetTask(ctx, rest[0])
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case http.MethodPatch:
			var req common.UpdateTaskRequest
			if err := decodeJSONBody(ctx, w, r, &req); err != nil {
				writeErrorFrom(w, err)
				return
			}
			req.TaskID = rest[0]
			task, err := h.service.UpdateTask(ctx, req)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case http.MethodDelete:
			task, err := h.service.DeleteTask(ctx, rest[0])
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
	case 2:
		switch rest[1] {
		case "status":
			if r.Method != http.MethodPost {
				writeMethodNotAllowed(w, http.MethodPost)
				return
			}
			var req taskStatusRequest
			if err := decodeJSONBody(ctx, w, r, &req); err != nil {
				writeErrorFrom(w, err)
				return
			}
			if strings.TrimSpace(req.Status) == "" {
				writeJSONError(w, http.StatusBadRequest, APIError{
					Code:    "invalid_request",
					Message: "status is required",
				})
				return
			}
			task, err := h.service.UpdateTask(ctx, common.UpdateTaskRequest{
				TaskID:        rest[0],
				Status:        &req.Status,
				CompletedDate: req.CompletedDate,
				ActualHours:   req.ActualHours,
			})
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, task)
		case "activity":
			if r.Method != http.MethodGet {
				writeMethodNotAllowed(w, http.MethodGet)
				return
			}
			limit, err := parseIntQuery(r.URL.Query().Get("limit"), "limit", 0)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			events, err := h.service.ListTaskActivity(ctx, rest[0], limit)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"events": events})
		case "comments":
			h.routeTaskComments(w, r, rest[0])
		default:
			writeNotFound(w)
		}
	case 3:
		if rest[1] != "comments" {
			writeNotFound(w)
			return
		}
		if r.Method != http.MethodDelete {
			writeMethodNotAllowed(w, http.MethodDelete)
			return
		}
		if err := h.service.DeleteTaskComment(ctx, rest[0], rest[2]); err != nil {
			writeErrorFrom(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeNotFound(w)
	}
}

// routeTaskComments serves the thread under `/tasks/{ref}/comments`.
func (h *Handler) routeTaskComments(w http.ResponseWriter, r *http.Request, taskRef string) {
	ctx := r.Context()
	switch r.Method {
	case http.MethodGet:
		limit, err := parseIntQuery(r.URL.Query().Get("limit"), "limit", 0)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		comments, err := h.service.ListTaskComments(ctx, taskRef, limit)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
	case http.MethodPost:
		var req common.AddTaskCommentRequest
		if err := decodeJSONBody(ctx, w, r, &req); err != nil {
			writeErrorFrom(w, err)
			return
		}
		req.TaskID = taskRef
		comment, err := h.service.AddTaskComment(ctx, req)
		if err != nil {
			writeErrorFrom(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, comment)
	default:
		writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

// routeResources serves `/resources` and `/resources/{id}`.
func (h *Handler) routeResources(w http.ResponseWriter, r *http.Request, rest []string) {
	ctx := r.Context()
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			includeInactive, err := parseBoolQuery(r.URL.Query().Get("include_inactive"), "include_inactive")
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			resources, err := h.service.ListResources(ctx, includeInactive)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"resources": resources})
		case http.MethodPost:
			var req common.CreateResourceRequest
			if err := decodeJSONBody(ctx, w, r, &req); err != nil {
				writeErrorFrom(w, err)
				return
			}
			resource, err := h.service.CreateResource(ctx, req)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, resource)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case 1:
		switch r.Method {
		case http.MethodGet:
			resource, err := h.service.GetResource(ctx, rest[0])
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, resource)
		case http.MethodPatch:
			var req common.UpdateResourceRequest
			if err := decodeJSONBody(ctx, w, r, &req); err != nil {
				writeErrorFrom(w, err)
				return
			}
			req.ResourceID = rest[0]
			resource, err := h.service.UpdateResource(ctx, req)
			if err != nil {
				writeErrorFrom(w, err)
				return
			}
			writeJSON(w, http.StatusOK, resource)
		default:
			writeMethodNotAllowed(w, http.MethodGet, http.MethodPatch)
		}
	default:
		writeNotFound(w)
	}
}

// listTasksRequestFromQuery maps list filters from repeated or comma-separated query values.
func listTasksRequestFromQuery(r *http.Request) (common.ListTasksRequest, error) {
	query := r.URL.Query()
	includeDeleted, err := parseBoolQuery(query.Get("include_deleted"), "include_deleted")
	if err != nil {
		return common.ListTasksRequest{}, err
	}
	return common.ListTasksRequest{
		ProjectID:      strings.TrimSpace(query.Get("project_id")),
		ResourceID:     strings.TrimSpace(query.Get("resource_id")),
		Statuses:       query["status"],
		Health:         query["health"],
		Search:         strings.TrimSpace(query.Get("q")),
		IncludeDeleted: includeDeleted,
	}, nil
}

// withRequestActor attaches the caller named by ActorHeader to the request context.
func withRequestActor(r *http.Request) context.Context {
	actorID := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actorID == "" {
		return r.Context()
	}
	return app.WithMutationActor(r.Context(), app.MutationActor{ActorID: actorID, Source: "http"})
}

// parseBoolQuery parses one optional boolean query value.
func parseBoolQuery(raw, name string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", common.ErrInvalidRequest, name)
	}
	return v, nil
}

// parseIntQuery parses one optional integer query value.
func parseIntQuery(raw, name string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", common.ErrInvalidRequest, name)
	}
	return v, nil
}

// normalizePath canonicalizes one request path for route matching.
func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	path = strings.Trim(path, "/")
	return path
}

// writeNotFound writes the structured unknown-endpoint response.
func writeNotFound(w http.ResponseWriter) {
	writeJSONError(w, http.StatusNotFound, APIError{
		Code:    "not_found",
		Message: "endpoint not found",
	})
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrRangeTooLarge):
		writeJSONError(w, http.StatusUnprocessableEntity, APIError{
			Code:    "range_too_large",
			Message: err.Error(),
			Hint:    "Narrow the date range or raise calendar.max_span_days.",
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

// writeMethodNotAllowed writes a structured 405 response with `Allow` headers.
func writeMethodNotAllowed(w http.ResponseWriter, methods ...string) {
	if len(methods) > 0 {
		w.Header().Set("Allow", strings.Join(methods, ", "))
	}
	writeJSONError(w, http.StatusMethodNotAllowed, APIError{
		Code:    "method_not_allowed",
		Message: "method not allowed",
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
