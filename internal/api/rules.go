package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/patterngen"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/store"
)

func (d *Dependencies) handleListRules(w http.ResponseWriter, r *http.Request) {
	all, overrides, err := d.Rules.Snapshot(r.Context())
	if err != nil {
		d.Logger.Error("failed to list rules", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list rules"})
		return
	}
	views := make([]RuleView, 0, len(all))
	for _, rule := range all {
		o, ok := overrides[rule.ID]
		if ok {
			rule = rules.ApplyOverride(rule, o)
		}
		views = append(views, RuleView{Rule: rule, HasOverride: ok})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active": d.Scanner.Analyzer().RuleCount(),
		"rules":  views,
	})
}

func (d *Dependencies) handleCreateCustomRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	rule := rules.Rule{
		ID:          strings.TrimSpace(req.ID),
		Name:        req.Name,
		Category:    req.Category,
		Severity:    req.Severity,
		Patterns:    req.Patterns,
		RiskScore:   req.Severity.DefaultRiskScore(),
		Enabled:     true,
		Source:      rules.SourceCustom,
		Description: req.Description,
	}
	if rule.ID == "" {
		rule.ID = "custom-" + uuid.New().String()[:8]
	}
	if req.RiskScore != nil {
		rule.RiskScore = *req.RiskScore
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if err := d.Rules.CheckCustom(rule); err != nil {
		d.writeRuleError(w, "create custom rule", err)
		return
	}
	if err := d.Repo.CreateCustomRule(r.Context(), rule); err != nil {
		d.writeRuleError(w, "create custom rule", err)
		return
	}
	d.reloadRules(r.Context())
	writeJSON(w, http.StatusCreated, rule)
}

func (d *Dependencies) handleUpdateCustomRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("rule_id")

	var req UpdateRuleReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	params := store.UpdateRuleParams{
		Name:        req.Name,
		Category:    req.Category,
		Severity:    req.Severity,
		Patterns:    req.Patterns,
		RiskScore:   req.RiskScore,
		Enabled:     req.Enabled,
		Description: req.Description,
	}

	existing, err := d.Repo.GetCustomRule(r.Context(), id)
	if err != nil {
		d.writeRuleError(w, "update custom rule", err)
		return
	}
	if existing == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Custom rule not found."})
		return
	}
	if err := d.Rules.CheckCustom(params.Apply(*existing)); err != nil {
		d.writeRuleError(w, "update custom rule", err)
		return
	}

	updated, err := d.Repo.UpdateCustomRule(r.Context(), id, params)
	if err != nil {
		d.writeRuleError(w, "update custom rule", err)
		return
	}
	if updated == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Custom rule not found."})
		return
	}
	d.reloadRules(r.Context())
	writeJSON(w, http.StatusOK, updated)
}

func (d *Dependencies) handleDeleteCustomRule(w http.ResponseWriter, r *http.Request) {
	ok, err := d.Repo.DeleteCustomRule(r.Context(), r.PathValue("rule_id"))
	if err != nil {
		d.writeRuleError(w, "delete custom rule", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Custom rule not found."})
		return
	}
	d.reloadRules(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleSetRuleOverride(w http.ResponseWriter, r *http.Request) {
	var req RuleOverrideReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	o := rules.Override{
		RuleID:   r.PathValue("rule_id"),
		Enabled:  req.Enabled,
		Severity: req.Severity,
		Patterns: req.Patterns,
	}
	if o.IsZero() {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "override must set enabled, severity or patterns"})
		return
	}
	if err := d.Rules.CheckOverride(o); err != nil {
		d.writeRuleError(w, "set rule override", err)
		return
	}
	if err := d.Repo.SetRuleOverride(r.Context(), o); err != nil {
		d.writeRuleError(w, "set rule override", err)
		return
	}
	d.reloadRules(r.Context())
	writeJSON(w, http.StatusOK, o)
}

func (d *Dependencies) handleDeleteRuleOverride(w http.ResponseWriter, r *http.Request) {
	ok, err := d.Repo.DeleteRuleOverride(r.Context(), r.PathValue("rule_id"))
	if err != nil {
		d.writeRuleError(w, "delete rule override", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Override not found."})
		return
	}
	d.reloadRules(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (d *Dependencies) handleGeneratePatterns(w http.ResponseWriter, r *http.Request) {
	var req GenerateReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "description is required"})
		return
	}
	writeJSON(w, http.StatusOK, GenerateResp{Patterns: patterngen.Generate(req.Description)})
}

// handleValidateRules validates a YAML rule file sent as the raw body.
func (d *Dependencies) handleValidateRules(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResp{Detail: "Body too large"})
		return
	}
	rep := rules.NewValidator().ValidateFile(body)
	writeJSON(w, http.StatusOK, map[string]any{"ok": rep.OK(), "report": rep})
}

// reloadRules pushes the current effective rule set into the analyzer. A
// failure leaves the previous set active. Reads and swaps are serialized so an
// older snapshot can never replace a newer one.
func (d *Dependencies) reloadRules(ctx context.Context) {
	d.reloadMu.Lock()
	defer d.reloadMu.Unlock()

	rs, err := d.Rules.Effective(ctx)
	if err != nil {
		d.Logger.Error("rule reload failed, keeping previous rule set", zap.Error(err))
		return
	}
	n := d.Scanner.Analyzer().SetRules(rs)
	d.Logger.Info("rules reloaded", zap.Int("active", n))
}

// writeRuleError maps rule-management errors to HTTP statuses.
func (d *Dependencies) writeRuleError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, rules.ErrRuleIDCollision), errors.Is(err, store.ErrRuleExists):
		writeJSON(w, http.StatusConflict, ErrorResp{Detail: err.Error()})
	case errors.Is(err, rules.ErrUnknownRule):
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: err.Error()})
	case errors.Is(err, rules.ErrInvalidRule):
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: err.Error()})
	default:
		d.Logger.Error("failed to "+op, zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to " + op})
	}
}
