package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/storage"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/tools"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/toolcalls"
)

// handleEvaluateResponse implements POST /v1/tool-calls/evaluate. The body is
// a raw LLM response in any supported provider shape.
func (d *Dependencies) handleEvaluateResponse(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResp{Detail: "Body too large"})
		return
	}

	decisions, err := d.Guard.EvaluateResponse(r.Context(), body)
	if err != nil {
		d.Logger.Error("tool call evaluation failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Tool policy unavailable"})
		return
	}

	resp := EvaluateResponseResp{ToolCalls: decisions, Count: len(decisions)}
	for _, cd := range decisions {
		if cd.Decision.Action == tools.ActionBlock {
			resp.Blocked = true
			break
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvaluateTool implements POST /v1/tools/evaluate for a single named call.
func (d *Dependencies) handleEvaluateTool(w http.ResponseWriter, r *http.Request) {
	var req EvaluateToolRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.FunctionName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "function_name is required"})
		return
	}
	if req.Arguments == "" {
		req.Arguments = "{}"
	}

	call := toolcalls.ToolCall{FunctionName: req.FunctionName, Arguments: req.Arguments}
	dec, err := d.Guard.EvaluateCall(r.Context(), call)
	if err != nil {
		d.Logger.Error("tool evaluation failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "Tool policy unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, EvaluateToolResp{ToolCall: call, Decision: dec})
}

func (d *Dependencies) handleListTools(w http.ResponseWriter, r *http.Request) {
	views, err := d.Guard.List(r.Context())
	if err != nil {
		d.Logger.Error("failed to list tools", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list tools"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"registry_version": d.Guard.Essential().Version(),
		"tools":            views,
	})
}

func (d *Dependencies) handleCreateCustomTool(w http.ResponseWriter, r *http.Request) {
	var e tools.Entry
	if err := readJSON(r, &e); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if err := d.Guard.CreateCustom(r.Context(), e); err != nil {
		d.writeToolError(w, "create custom tool", err)
		return
	}
	d.auditToolChange(r, e.ToolID, string(e.DefaultPermission), "Custom tool created", string(e.Risk))
	writeJSON(w, http.StatusCreated, e)
}

func (d *Dependencies) handleUpdateCustomTool(w http.ResponseWriter, r *http.Request) {
	var e tools.Entry
	if err := readJSON(r, &e); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	e.ToolID = r.PathValue("tool_id")
	if err := d.Guard.UpdateCustom(r.Context(), e); err != nil {
		d.writeToolError(w, "update custom tool", err)
		return
	}
	d.auditToolChange(r, e.ToolID, string(e.DefaultPermission), "Custom tool updated", string(e.Risk))
	writeJSON(w, http.StatusOK, e)
}

func (d *Dependencies) handleDeleteCustomTool(w http.ResponseWriter, r *http.Request) {
	toolID := r.PathValue("tool_id")
	ok, err := d.Guard.DeleteCustom(r.Context(), toolID)
	if err != nil {
		d.writeToolError(w, "delete custom tool", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Custom tool not found."})
		return
	}
	d.auditToolChange(r, toolID, "delete", "Custom tool deleted", "")
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleSetToolOverride(w http.ResponseWriter, r *http.Request) {
	var req OverrideReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	action, err := tools.ParseOverrideAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
		return
	}
	toolID := r.PathValue("tool_id")
	if err := d.Guard.SetOverride(r.Context(), toolID, action); err != nil {
		d.writeToolError(w, "set tool override", err)
		return
	}
	d.auditToolChange(r, toolID, string(action), "User override set", "")
	writeJSON(w, http.StatusOK, map[string]string{"tool_id": toolID, "action": string(action)})
}

func (d *Dependencies) handleDeleteToolOverride(w http.ResponseWriter, r *http.Request) {
	toolID := r.PathValue("tool_id")
	ok, err := d.Guard.DeleteOverride(r.Context(), toolID)
	if err != nil {
		d.writeToolError(w, "delete tool override", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Override not found."})
		return
	}
	d.auditToolChange(r, toolID, "reset", "User override removed", "")
	w.WriteHeader(http.StatusNoContent)
}

// auditToolChange records a successful policy change with the caller that made it.
func (d *Dependencies) auditToolChange(r *http.Request, toolID, action, reason, risk string) {
	if d.Writer == nil {
		return
	}
	_, essential := d.Guard.Essential().Get(toolID)
	d.Writer.Write(&storage.SecurityEvent{
		EventID:     uuid.NewString(),
		Timestamp:   time.Now(),
		Kind:        storage.KindToolConfig,
		Action:      action,
		Reason:      reason,
		ToolName:    toolID,
		ToolID:      toolID,
		ToolRisk:    risk,
		IsEssential: essential,
		Source:      requestSource(r),
	})
}

// writeToolError maps tool-management errors to HTTP statuses.
func (d *Dependencies) writeToolError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, tools.ErrToolIDCollision), errors.Is(err, tools.ErrToolExists):
		writeJSON(w, http.StatusConflict, ErrorResp{Detail: err.Error()})
	case errors.Is(err, tools.ErrInvalidTool), errors.Is(err, tools.ErrInvalidAction):
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
	case errors.Is(err, tools.ErrUnknownTool):
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: err.Error()})
	default:
		d.Logger.Error("failed to "+op, zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to " + op})
	}
}
