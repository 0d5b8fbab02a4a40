// Package mcpapi provides a stateless MCP streamable-HTTP adapter.
package mcpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/hylla/qctl/internal/adapters/server/common"
	"github.com/hylla/qctl/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Config captures MCP transport configuration.
type Config struct {
	ServerName    string
	ServerVersion string
	EndpointPath  string
}

// Handler wraps one stateless MCP streamable HTTP handler.
type Handler struct {
	httpHandler http.Handler
}

// NewHandler builds one stateless MCP adapter exposing calendar, timeline, and portfolio tools.
func NewHandler(cfg Config, service common.Service) (*Handler, error) {
	if service == nil {
		return nil, fmt.Errorf("mcp service is required")
	}
	cfg = normalizeConfig(cfg)

	mcpSrv := mcpserver.NewMCPServer(
		cfg.ServerName,
		cfg.ServerVersion,
		mcpserver.WithToolCapabilities(false),
	)
	registerCalendarTools(mcpSrv, service)
	registerProjectTools(mcpSrv, service)
	registerTaskTools(mcpSrv, service)
	registerResourceTools(mcpSrv, service)

	streamable := mcpserver.NewStreamableHTTPServer(
		mcpSrv,
		mcpserver.WithEndpointPath(cfg.EndpointPath),
		mcpserver.WithStateLess(true),
	)
	return &Handler{httpHandler: streamable}, nil
}

// ServeHTTP handles one MCP streamable HTTP request.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.httpHandler == nil {
		http.Error(w, "mcp handler unavailable", http.StatusServiceUnavailable)
		return
	}
	h.httpHandler.ServeHTTP(w, r)
}

// normalizeConfig applies deterministic defaults to MCP adapter config.
func normalizeConfig(cfg Config) Config {
	cfg.ServerName = strings.TrimSpace(cfg.ServerName)
	if cfg.ServerName == "" {
		cfg.ServerName = "qctl"
	}
	cfg.ServerVersion = strings.TrimSpace(cfg.ServerVersion)
	if cfg.ServerVersion == "" {
		cfg.ServerVersion = "dev"
	}
	cfg.EndpointPath = strings.TrimSpace(cfg.EndpointPath)
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/mcp"
	}
	if !strings.HasPrefix(cfg.EndpointPath, "/") {
		cfg.EndpointPath = "/" + cfg.EndpointPath
	}
	cfg.EndpointPath = "/" + strings.Trim(cfg.EndpointPath, "/")
	return cfg
}

// registerCalendarTools registers working-day arithmetic and ad-hoc timeline tools.
func registerCalendarTools(srv *mcpserver.MCPServer, service common.Service) {
	srv.AddTool(
		mcp.NewTool(
			"qctl.count_working_days",
			mcp.WithDescription("Count Sunday-Thursday working days from start (inclusive) to end (exclusive); negative when end precedes start."),
			mcp.WithString("start", mcp.Required(), mcp.Description("Start date, YYYY-MM-DD")),
			mcp.WithString("end", mcp.Required(), mcp.Description("End date, YYYY-MM-DD")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			start, err := req.RequireString("start")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			end, err := req.RequireString("end")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := service.CountWorkingDays(ctx, common.CountWorkingDaysRequest{Start: start, End: end})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode count_working_days result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.add_working_days",
			mcp.WithDescription("Offset a date by a signed number of working days, skipping Fridays and Saturdays."),
			mcp.WithString("date", mcp.Required(), mcp.Description("Origin date, YYYY-MM-DD")),
			mcp.WithNumber("days", mcp.Required(), mcp.Description("Signed working-day offset")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			date, err := req.RequireString("date")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			days, err := req.RequireInt("days")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := service.AddWorkingDays(ctx, common.AddWorkingDaysRequest{Date: date, Days: days})
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode add_working_days result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.check_working_day",
			mcp.WithDescription("Report whether one date is a working day."),
			mcp.WithString("date", mcp.Required(), mcp.Description("Date, YYYY-MM-DD")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			date, err := req.RequireString("date")
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			out, err := service.CheckWorkingDay(ctx, date)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode check_working_day result: %w", err)
			}
			return result, nil
		},
	)

	srv.AddTool(
		mcp.NewTool(
			"qctl.compute_task_timeline",
			mcp.WithDescription("Compute start, completion, and execution variances plus health for raw task dates."),
			mcp.WithString("expected_start_date", mcp.Description("Planned start, YYYY-MM-DD")),
			mcp.WithString("actual_start_date", mcp.Description("Actual start, YYYY-MM-DD")),
			mcp.WithString("deadline", mcp.Description("Deadline, YYYY-MM-DD")),
			mcp.WithString("completed_date", mcp.Description("Completion date, YYYY-MM-DD")),
			mcp.WithNumber("estimate_days", mcp.Description("Estimated duration in working days")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args domain.TimelineFields
			if err := req.BindArguments(&args); err != nil {
				return invalidRequestToolResult(err), nil
			}
			out, err := service.ComputeTimeline(ctx, args)
			if err != nil {
				return toolResultFromError(err), nil
			}
			result, err := mcp.NewToolResultJSON(out)
			if err != nil {
				return nil, fmt.Errorf("encode compute_task_timeline result: %w", err)
			}
			return result, nil
		},
	)
}

// toolResultFromError maps service errors into MCP-visible tool errors.
func toolResultFromError(err error) *mcp.CallToolResult {
	switch {
	case err == nil:
		return mcp.NewToolResultError("unknown error")
	case errors.Is(err, common.ErrInvalidRequest):
		return mcp.NewToolResultError("invalid_request: " + err.Error())
	case errors.Is(err, common.ErrNotFound):
		return mcp.NewToolResultError("not_found: " + err.Error())
	case errors.Is(err, common.ErrConflict):
		return mcp.NewToolResultError("conflict: " + err.Error())
	case errors.Is(err, common.ErrRangeTooLarge):
		return mcp.NewToolResultError("range_too_large: " + err.Error())
	default:
		return mcp.NewToolResultError("internal_error: " + err.Error())
	}
}

// invalidRequestToolResult wraps argument-binding failures as deterministic tool errors.
func invalidRequestToolResult(err error) *mcp.CallToolResult {
	if err == nil {
		return mcp.NewToolResultError("invalid_request: malformed arguments")
	}
	return mcp.NewToolResultError("invalid_request: " + err.Error())
}
