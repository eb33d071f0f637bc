package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/engine"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/storage"
)

// handleAnalyze implements POST /v1/analyze.
func (d *Dependencies) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req AnalyzeRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "text is required"})
		return
	}
	switch req.Direction {
	case "":
		req.Direction = "input"
	case "input", "output":
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "direction must be input or output"})
		return
	}

	resp := AnalyzeResponse{EventID: uuid.New().String(), Direction: req.Direction}
	res, err := d.Scanner.Scan(r.Context(), req.Text, engine.ScanOptions{Review: req.Review})
	switch {
	case errors.Is(err, engine.ErrScanTimeout):
		resp.Degraded = true
		if d.FailClosed {
			resp.Verdict = engine.VerdictBlock
			resp.Reason = "Scan incomplete: failing closed"
		} else {
			resp.Verdict = engine.VerdictAllow
			resp.Reason = "Scan incomplete: failing open"
		}
		resp.Detections = []engine.Detection{}
	case err != nil:
		d.Logger.Error("scan failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Scan failed"})
		return
	default:
		resp.AnalysisResult = res.Analysis
		resp.Review = res.Review
		if resp.Detections == nil {
			resp.Detections = []engine.Detection{}
		}
	}
	resp.Blocked = resp.Verdict == engine.VerdictBlock

	d.writeAnalyzeEvent(r, req, resp, time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

// requestSource names the caller for event attribution.
func requestSource(r *http.Request) string {
	if p := principalFromContext(r.Context()); p != nil {
		return "api:" + p.Name
	}
	return "api"
}

// writeAnalyzeEvent fires the text-scan event to the async writer.
func (d *Dependencies) writeAnalyzeEvent(r *http.Request, req AnalyzeRequest, resp AnalyzeResponse, latency time.Duration) {
	if d.Writer == nil {
		return
	}
	ruleIDs := make([]string, 0, len(resp.Detections))
	for _, det := range resp.Detections {
		ruleIDs = append(ruleIDs, det.RuleID)
	}
	d.Writer.Write(&storage.SecurityEvent{
		EventID:        resp.EventID,
		Timestamp:      time.Now(),
		Kind:           storage.KindText,
		Direction:      req.Direction,
		Action:         resp.Verdict.String(),
		Reason:         resp.Reason,
		IsThreat:       resp.IsThreat,
		RiskScore:      uint8(resp.RiskScore),
		ThreatType:     resp.ThreatType,
		Confidence:     float32(resp.Confidence),
		RuleIDs:        ruleIDs,
		PayloadPreview: storage.TruncatePayload(req.Text, storage.PayloadPreviewLength),
		PayloadHash:    storage.HashPayload(req.Text),
		PayloadSize:    uint32(len(req.Text)),
		Cached:         resp.Cached,
		ReviewApplied:  resp.ReviewApplied,
		LatencyMs:      float32(latency) / float32(time.Millisecond),
		Source:         requestSource(r),
	})
}
