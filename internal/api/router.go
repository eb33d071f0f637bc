// Package api serves the HTTP surface: text analysis, tool-call gating,
// tool and rule management, and event listing.
package api

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/auth"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/chread"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/engine"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/rules"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/storage"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/store"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/tools"
)

// EventReader is the read side of event storage. *chread.Reader implements it.
type EventReader interface {
	ListEvents(ctx context.Context, params chread.ListEventsParams) ([]chread.EventRow, int, error)
	GetEvent(ctx context.Context, eventID string) (*chread.EventRow, error)
	GetSummary(ctx context.Context, days int) (*chread.Summary, error)
}

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Scanner    *engine.Scanner
	Rules      *rules.Store
	Repo       store.Repository
	Guard      *tools.Guard
	Writer     storage.EventWriter
	Reader     EventReader        // nil if ClickHouse unavailable
	Auth       auth.Authenticator // nil disables auth on /v1 and /api
	FailClosed bool
	// AllowedOrigins lists browser origins granted CORS access. A "*" entry
	// opens /v1 and /healthz only; /api is always matched exactly.
	AllowedOrigins []string
	Metrics    http.Handler // served on /metrics when set
	Logger     *zap.Logger

	reloadMu sync.Mutex
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Traffic endpoints (auth when configured)
	mux.HandleFunc("POST /v1/analyze", deps.authMiddleware(deps.handleAnalyze))
	mux.HandleFunc("POST /v1/tool-calls/evaluate", deps.authMiddleware(deps.handleEvaluateResponse))
	mux.HandleFunc("POST /v1/tools/evaluate", deps.authMiddleware(deps.handleEvaluateTool))

	// Tool management (auth when configured; changes are audited)
	mux.HandleFunc("GET /api/tools", deps.authMiddleware(deps.handleListTools))
	mux.HandleFunc("POST /api/tools/custom", deps.authMiddleware(deps.handleCreateCustomTool))
	mux.HandleFunc("PUT /api/tools/custom/{tool_id}", deps.authMiddleware(deps.handleUpdateCustomTool))
	mux.HandleFunc("DELETE /api/tools/custom/{tool_id}", deps.authMiddleware(deps.handleDeleteCustomTool))
	mux.HandleFunc("PUT /api/tools/overrides/{tool_id}", deps.authMiddleware(deps.handleSetToolOverride))
	mux.HandleFunc("DELETE /api/tools/overrides/{tool_id}", deps.authMiddleware(deps.handleDeleteToolOverride))

	// Rule management
	mux.HandleFunc("GET /api/rules", deps.authMiddleware(deps.handleListRules))
	mux.HandleFunc("POST /api/rules/custom", deps.authMiddleware(deps.handleCreateCustomRule))
	mux.HandleFunc("PATCH /api/rules/custom/{rule_id}", deps.authMiddleware(deps.handleUpdateCustomRule))
	mux.HandleFunc("DELETE /api/rules/custom/{rule_id}", deps.authMiddleware(deps.handleDeleteCustomRule))
	mux.HandleFunc("PUT /api/rules/overrides/{rule_id}", deps.authMiddleware(deps.handleSetRuleOverride))
	mux.HandleFunc("DELETE /api/rules/overrides/{rule_id}", deps.authMiddleware(deps.handleDeleteRuleOverride))
	mux.HandleFunc("POST /api/rules/generate", deps.authMiddleware(deps.handleGeneratePatterns))
	mux.HandleFunc("POST /api/rules/validate", deps.authMiddleware(deps.handleValidateRules))

	// Events
	mux.HandleFunc("GET /api/events", deps.authMiddleware(deps.handleListEvents))
	mux.HandleFunc("GET /api/events/summary", deps.authMiddleware(deps.handleEventSummary))
	mux.HandleFunc("GET /api/events/{event_id}", deps.authMiddleware(deps.handleGetEvent))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	return corsMiddleware(requestLogging(mux, deps.Logger), deps.AllowedOrigins)
}
