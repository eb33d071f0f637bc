package tools

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/metrics"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/storage"
	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/toolcalls"
	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"
)

// CallRecord is one evaluated tool call, as logged for rate limiting and audit.
type CallRecord struct {
	ToolID       string // resolved id, or the raw name for unknown tools
	FunctionName string
	Action       Action
	Reason       string
	At           time.Time
}

// Store persists user-editable tool state and the call log.
type Store interface {
	GetOverrides(ctx context.Context) (map[string]Action, error)
	SetOverride(ctx context.Context, toolID string, action Action) error
	// DeleteOverride reports whether an override existed.
	DeleteOverride(ctx context.Context, toolID string) (bool, error)

	GetCustomTools(ctx context.Context) (map[string]Entry, error)
	// CreateCustomTool returns ErrToolExists when the id is taken.
	CreateCustomTool(ctx context.Context, e Entry) error
	// UpdateCustomTool reports whether the tool existed.
	UpdateCustomTool(ctx context.Context, e Entry) (bool, error)
	DeleteCustomTool(ctx context.Context, toolID string) (bool, error)

	// CountRecentCalls counts non-blocked calls to toolID at or after since.
	CountRecentCalls(ctx context.Context, toolID string, since time.Time) (int, error)
	RecordToolCall(ctx context.Context, rec CallRecord) error
}

// GuardConfig configures a Guard.
type GuardConfig struct {
	Essential *Registry
	Store     Store
	Events    storage.EventWriter // optional
	CacheTTL  time.Duration
	Source    string // recorded on events, e.g. "api"
	Logger    *zap.Logger
	Metrics   *metrics.Metrics // optional
}

// Guard evaluates tool calls against the essential registry and the stored
// overrides and custom tools, enforces rate limits and argument schemas, and
// audits every decision.
type Guard struct {
	essential *Registry
	store     Store
	events    storage.EventWriter
	cache     *SnapshotCache
	source    string
	logger    *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
}

// CallDecision pairs an extracted call with its decision.
type CallDecision struct {
	toolcalls.ToolCall
	Decision Decision `json:"decision"`
}

// NewGuard creates a Guard.
func NewGuard(cfg GuardConfig) *Guard {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &Guard{
		essential: cfg.Essential,
		store:     cfg.Store,
		events:    cfg.Events,
		cache:     NewSnapshotCache(ttl),
		source:    cfg.Source,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		now:       time.Now,
	}
}

// Essential returns the shipped registry.
func (g *Guard) Essential() *Registry { return g.essential }

// EvaluateResponse extracts every tool call in an LLM response body and
// evaluates them in extraction order.
func (g *Guard) EvaluateResponse(ctx context.Context, body []byte) ([]CallDecision, error) {
	return g.EvaluateCalls(ctx, toolcalls.Extract(body))
}

// EvaluateCalls evaluates calls independently, preserving their order.
func (g *Guard) EvaluateCalls(ctx context.Context, calls []toolcalls.ToolCall) ([]CallDecision, error) {
	out := make([]CallDecision, 0, len(calls))
	for _, c := range calls {
		d, err := g.EvaluateCall(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, CallDecision{ToolCall: c, Decision: d})
	}
	return out, nil
}

// EvaluateCall decides one call, applying rate limits and argument schemas,
// then records and audits it.
func (g *Guard) EvaluateCall(ctx context.Context, call toolcalls.ToolCall) (Decision, error) {
	start := g.now()
	snap, err := g.snapshot(ctx)
	if err != nil {
		return Decision{}, err
	}

	res, ok := resolve(call.FunctionName, g.essential, snap.custom)
	var d Decision
	if !ok {
		d = Evaluate(call.FunctionName, nil, nil, nil)
	} else {
		d = res.decide(snap.overrides)
		if rl := res.entry.RateLimit; rl != nil && d.Action != ActionBlock {
			since := start.Add(-time.Duration(rl.WindowSeconds) * time.Second)
			n, err := g.store.CountRecentCalls(ctx, res.entry.ToolID, since)
			if err != nil {
				return Decision{}, fmt.Errorf("EvaluateCall: %w", err)
			}
			d = ApplyRateLimit(d, res.entry, n)
		}
		if !res.essential {
			d = ApplySchema(d, snap.schemas[res.entry.ToolID], call.Arguments)
		}
	}

	rec := CallRecord{
		ToolID:       call.FunctionName,
		FunctionName: call.FunctionName,
		Action:       d.Action,
		Reason:       d.Reason,
		At:           start,
	}
	if d.ToolName != nil {
		rec.ToolID = *d.ToolName
	}
	if err := g.store.RecordToolCall(ctx, rec); err != nil {
		g.logger.Warn("failed to record tool call",
			zap.String("tool_id", rec.ToolID),
			zap.Error(err),
		)
	}

	g.metrics.ObserveToolDecision(string(d.Action))
	g.audit(call, d, g.now().Sub(start))
	if d.Action == ActionBlock {
		g.logger.Info("tool call blocked",
			zap.String("function_name", call.FunctionName),
			zap.String("reason", d.Reason),
		)
	}
	return d, nil
}

func (g *Guard) audit(call toolcalls.ToolCall, d Decision, latency time.Duration) {
	if g.events == nil {
		return
	}
	ev := &storage.SecurityEvent{
		EventID:       uuid.NewString(),
		Timestamp:     g.now().UTC(),
		Kind:          storage.KindToolCall,
		Action:        string(d.Action),
		Reason:        d.Reason,
		ToolName:      call.FunctionName,
		ToolArguments: storage.TruncatePayload(call.Arguments, storage.PayloadPreviewLength),
		IsEssential:   d.IsEssential,
		LatencyMs:     float32(latency.Microseconds()) / 1000,
		Source:        g.source,
	}
	if d.ToolName != nil {
		ev.ToolID = *d.ToolName
	}
	if d.Risk != nil {
		ev.ToolRisk = string(*d.Risk)
	}
	g.events.Write(ev)
}

// List returns every essential and custom tool with its effective action.
func (g *Guard) List(ctx context.Context) ([]ToolView, error) {
	snap, err := g.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ToolView, 0, g.essential.Len()+len(snap.custom))
	for _, e := range g.essential.Entries() {
		out = append(out, View(e, "essential", snap.overrides))
	}
	for _, e := range sortedCustom(snap.custom) {
		out = append(out, View(e, "custom", snap.overrides))
	}
	return out, nil
}

// SetOverride sets a block or allow override on a registered tool.
func (g *Guard) SetOverride(ctx context.Context, toolID string, action Action) error {
	if action != ActionBlock && action != ActionAllow {
		return fmt.Errorf("%w %q: must be block or allow", ErrInvalidAction, action)
	}
	if !g.known(ctx, toolID) {
		return fmt.Errorf("%w: %s", ErrUnknownTool, toolID)
	}
	if err := g.store.SetOverride(ctx, toolID, action); err != nil {
		return fmt.Errorf("SetOverride: %w", err)
	}
	g.cache.Invalidate()
	g.logger.Info("tool override set", zap.String("tool_id", toolID), zap.String("action", string(action)))
	return nil
}

// DeleteOverride removes an override, restoring the default immediately.
func (g *Guard) DeleteOverride(ctx context.Context, toolID string) (bool, error) {
	ok, err := g.store.DeleteOverride(ctx, toolID)
	if err != nil {
		return false, fmt.Errorf("DeleteOverride: %w", err)
	}
	g.cache.Invalidate()
	return ok, nil
}

// CreateCustom registers a custom tool.
func (g *Guard) CreateCustom(ctx context.Context, e Entry) error {
	if err := ValidateCustom(e, g.essential); err != nil {
		return err
	}
	if err := g.store.CreateCustomTool(ctx, e); err != nil {
		if errors.Is(err, ErrToolExists) {
			return err
		}
		return fmt.Errorf("CreateCustom: %w", err)
	}
	g.cache.Invalidate()
	return nil
}

// UpdateCustom replaces a custom tool.
func (g *Guard) UpdateCustom(ctx context.Context, e Entry) error {
	if err := ValidateCustom(e, g.essential); err != nil {
		return err
	}
	ok, err := g.store.UpdateCustomTool(ctx, e)
	if err != nil {
		return fmt.Errorf("UpdateCustom: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTool, e.ToolID)
	}
	g.cache.Invalidate()
	return nil
}

// DeleteCustom removes a custom tool.
func (g *Guard) DeleteCustom(ctx context.Context, toolID string) (bool, error) {
	ok, err := g.store.DeleteCustomTool(ctx, toolID)
	if err != nil {
		return false, fmt.Errorf("DeleteCustom: %w", err)
	}
	g.cache.Invalidate()
	return ok, nil
}

func (g *Guard) known(ctx context.Context, toolID string) bool {
	if _, ok := g.essential.Get(toolID); ok {
		return true
	}
	snap, err := g.snapshot(ctx)
	if err != nil {
		return false
	}
	_, ok := snap.custom[toolID]
	return ok
}

func (g *Guard) snapshot(ctx context.Context) (*snapshot, error) {
	res := g.cache.get()
	if res.Hit {
		if res.NeedsRefresh {
			go g.refreshInBackground()
		}
		return res.snap, nil
	}

	gen := g.cache.generation()
	snap, err := g.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tool state: %w", err)
	}
	g.cache.set(snap, gen)
	return snap, nil
}

func (g *Guard) refreshInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	gen := g.cache.generation()
	snap, err := g.load(ctx)
	if err != nil {
		g.logger.Warn("background tool state refresh failed", zap.Error(err))
		g.cache.refreshFailed()
		return
	}
	g.cache.set(snap, gen)
}

func (g *Guard) load(ctx context.Context) (*snapshot, error) {
	overrides, err := g.store.GetOverrides(ctx)
	if err != nil {
		return nil, err
	}
	custom, err := g.store.GetCustomTools(ctx)
	if err != nil {
		return nil, err
	}
	schemas := make(map[string]*jsonschema.Schema)
	for id, e := range custom {
		if e.ArgumentSchema == nil {
			continue
		}
		sch, err := CompileSchema(e.ArgumentSchema)
		if err != nil {
			g.logger.Warn("skipping invalid argument schema", zap.String("tool_id", id), zap.Error(err))
			continue
		}
		schemas[id] = sch
	}
	return &snapshot{overrides: overrides, custom: custom, schemas: schemas}, nil
}

func sortedCustom(custom map[string]Entry) []Entry {
	out := make([]Entry, 0, len(custom))
	for _, id := range slices.Sorted(maps.Keys(custom)) {
		out = append(out, custom[id])
	}
	return out
}
