// Package chread reads stored threat and tool-decision events back out of
// ClickHouse for the events API.
package chread

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/storage"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Reader provides read access to the ClickHouse threat_events table.
type Reader struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewReader opens a ClickHouse connection for read queries.
func NewReader(dsn string, logger *zap.Logger) (*Reader, error) {
	conn, err := storage.OpenClickHouse(context.Background(), dsn)
	if err != nil {
		return nil, fmt.Errorf("NewReader: %w", err)
	}
	return &Reader{conn: conn, logger: logger}, nil
}

// Close closes the ClickHouse connection.
func (r *Reader) Close() error {
	return r.conn.Close()
}

// EventRow is a single row from threat_events.
type EventRow struct {
	EventID        string    `json:"event_id"`
	Timestamp      time.Time `json:"timestamp"`
	Kind           string    `json:"kind"`
	Direction      string    `json:"direction,omitempty"`
	Action         string    `json:"action"`
	Reason         string    `json:"reason,omitempty"`
	IsThreat       bool      `json:"is_threat"`
	RiskScore      uint8     `json:"risk_score"`
	ThreatType     string    `json:"threat_type,omitempty"`
	Confidence     float32   `json:"confidence"`
	RuleIDs        []string  `json:"rule_ids"`
	PayloadPreview string    `json:"payload_preview,omitempty"`
	PayloadHash    string    `json:"payload_hash,omitempty"`
	ToolName       string    `json:"tool_name,omitempty"`
	ToolID         string    `json:"tool_id,omitempty"`
	ToolArguments  string    `json:"tool_arguments,omitempty"`
	ToolRisk       string    `json:"tool_risk,omitempty"`
	IsEssential    bool      `json:"is_essential"`
	ReviewApplied  bool      `json:"review_applied"`
	LatencyMs      float32   `json:"latency_ms"`
	Source         string    `json:"source"`
}

// ListEventsParams holds filters and pagination for event listing.
type ListEventsParams struct {
	Kind       *string
	Action     *string
	ThreatType *string
	ToolID     *string
	IsThreat   *bool
	StartTime  *time.Time
	EndTime    *time.Time
	Page       int
	PageSize   int
}

// Normalize clamps pagination to sane bounds.
func (p *ListEventsParams) Normalize() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		p.PageSize = MaxPageSize
	}
}

const eventColumns = "event_id, timestamp, kind, direction, action, reason, is_threat, risk_score, " +
	"threat_type, confidence, rule_ids, payload_preview, payload_hash, " +
	"tool_name, tool_id, tool_arguments, tool_risk, is_essential, review_applied, latency_ms, source"

// buildWhere returns the WHERE clause and its named args. "1 = 1" keeps an
// unfiltered query valid.
func buildWhere(params ListEventsParams) (string, []any) {
	conditions := []string{"1 = 1"}
	var args []any

	add := func(cond, name string, v any) {
		conditions = append(conditions, cond)
		args = append(args, clickhouse.Named(name, v))
	}
	if params.Kind != nil {
		add("kind = @kind", "kind", *params.Kind)
	}
	if params.Action != nil {
		add("action = @action", "action", *params.Action)
	}
	if params.ThreatType != nil {
		add("threat_type = @threat_type", "threat_type", *params.ThreatType)
	}
	if params.ToolID != nil {
		add("tool_id = @tool_id", "tool_id", *params.ToolID)
	}
	if params.IsThreat != nil {
		var v uint8
		if *params.IsThreat {
			v = 1
		}
		add("is_threat = @is_threat", "is_threat", v)
	}
	if params.StartTime != nil {
		add("timestamp >= @start_time", "start_time", *params.StartTime)
	}
	if params.EndTime != nil {
		add("timestamp <= @end_time", "end_time", *params.EndTime)
	}
	return strings.Join(conditions, " AND "), args
}

// ListEvents returns paginated, filtered events newest first and the total count.
func (r *Reader) ListEvents(ctx context.Context, params ListEventsParams) ([]EventRow, int, error) {
	params.Normalize()
	where, args := buildWhere(params)

	var total uint64
	countQuery := fmt.Sprintf("SELECT count() FROM threat_events WHERE %s", where)
	if err := r.conn.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ListEvents count: %w", err)
	}

	dataQuery := fmt.Sprintf("SELECT %s FROM threat_events WHERE %s "+
		"ORDER BY timestamp DESC LIMIT @limit OFFSET @offset", eventColumns, where)
	args = append(args,
		clickhouse.Named("limit", uint32(params.PageSize)),
		clickhouse.Named("offset", uint32((params.Page-1)*params.PageSize)),
	)

	rows, err := r.conn.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("ListEvents query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	events := []EventRow{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("ListEvents scan: %w", err)
		}
		events = append(events, e)
	}
	return events, int(total), rows.Err()
}

// GetEvent returns a single event by id, or nil if not found.
func (r *Reader) GetEvent(ctx context.Context, eventID string) (*EventRow, error) {
	row := r.conn.QueryRow(ctx,
		"SELECT "+eventColumns+" FROM threat_events WHERE event_id = @event_id LIMIT 1",
		clickhouse.Named("event_id", eventID),
	)
	e, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("GetEvent: %w", err)
	}
	if e.EventID == "" {
		return nil, nil
	}
	return &e, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (EventRow, error) {
	var (
		e                                     EventRow
		isThreat, isEssential, reviewApplied uint8
	)
	err := s.Scan(
		&e.EventID, &e.Timestamp, &e.Kind, &e.Direction, &e.Action, &e.Reason,
		&isThreat, &e.RiskScore, &e.ThreatType, &e.Confidence, &e.RuleIDs,
		&e.PayloadPreview, &e.PayloadHash,
		&e.ToolName, &e.ToolID, &e.ToolArguments, &e.ToolRisk, &isEssential,
		&reviewApplied, &e.LatencyMs, &e.Source,
	)
	e.IsThreat = isThreat == 1
	e.IsEssential = isEssential == 1
	e.ReviewApplied = reviewApplied == 1
	if e.RuleIDs == nil {
		e.RuleIDs = []string{}
	}
	return e, err
}

// SummaryStats holds aggregate counts by outcome.
type SummaryStats struct {
	Total    int `json:"total"`
	Threats  int `json:"threats"`
	Blocks   int `json:"blocks"`
	Allows   int `json:"allows"`
	LogOnly  int `json:"log_only"`
	Warnings int `json:"warnings"`
}

// NamedCount pairs a label with its count.
type NamedCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// LatencyStats holds latency percentiles.
type LatencyStats struct {
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

// Summary holds all aggregations for the events dashboard.
type Summary struct {
	Stats           SummaryStats `json:"stats"`
	TopThreatTypes  []NamedCount `json:"top_threat_types"`
	TopBlockedTools []NamedCount `json:"top_blocked_tools"`
	Latency         LatencyStats `json:"latency_percentiles"`
}

// GetSummary aggregates events from the last days days.
func (r *Reader) GetSummary(ctx context.Context, days int) (*Summary, error) {
	if days < 1 {
		days = 1
	}
	since := clickhouse.Named("range_start", time.Now().UTC().Add(-time.Duration(days)*24*time.Hour))
	out := &Summary{}

	var total, threats, blocks, allows, logOnly, warns uint64
	err := r.conn.QueryRow(ctx,
		"SELECT count(), countIf(is_threat = 1), countIf(action = 'block'), "+
			"countIf(action = 'allow'), countIf(action = 'log_only'), countIf(action = 'warn') "+
			"FROM threat_events WHERE timestamp >= @range_start",
		since,
	).Scan(&total, &threats, &blocks, &allows, &logOnly, &warns)
	if err != nil {
		return nil, fmt.Errorf("GetSummary stats: %w", err)
	}
	out.Stats = SummaryStats{
		Total: int(total), Threats: int(threats), Blocks: int(blocks),
		Allows: int(allows), LogOnly: int(logOnly), Warnings: int(warns),
	}

	if out.TopThreatTypes, err = r.namedCounts(ctx,
		"SELECT threat_type, count() AS c FROM threat_events "+
			"WHERE timestamp >= @range_start AND is_threat = 1 AND threat_type != '' "+
			"GROUP BY threat_type ORDER BY c DESC LIMIT 10", since); err != nil {
		return nil, fmt.Errorf("GetSummary threat_types: %w", err)
	}
	if out.TopBlockedTools, err = r.namedCounts(ctx,
		"SELECT tool_id, count() AS c FROM threat_events "+
			"WHERE timestamp >= @range_start AND kind = 'tool_call' AND action = 'block' "+
			"GROUP BY tool_id ORDER BY c DESC LIMIT 10", since); err != nil {
		return nil, fmt.Errorf("GetSummary blocked_tools: %w", err)
	}

	var p50, p95, p99 float64
	err = r.conn.QueryRow(ctx,
		"SELECT quantile(0.5)(latency_ms), quantile(0.95)(latency_ms), quantile(0.99)(latency_ms) "+
			"FROM threat_events WHERE timestamp >= @range_start",
		since,
	).Scan(&p50, &p95, &p99)
	if err != nil {
		return nil, fmt.Errorf("GetSummary latency: %w", err)
	}
	out.Latency = LatencyStats{P50: safeFloat(p50), P95: safeFloat(p95), P99: safeFloat(p99)}
	return out, nil
}

func (r *Reader) namedCounts(ctx context.Context, query string, args ...any) ([]NamedCount, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []NamedCount{}
	for rows.Next() {
		var name string
		var count uint64
		if err := rows.Scan(&name, &count); err != nil {
			return nil, err
		}
		out = append(out, NamedCount{Name: name, Count: int(count)})
	}
	return out, rows.Err()
}

// safeFloat replaces NaN/Inf with 0.0.
// ClickHouse returns NaN for quantile() on empty result sets.
func safeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}
