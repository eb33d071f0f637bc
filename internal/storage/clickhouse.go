package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

const (
	bufferSize    = 10_000
	flushInterval = 100 * time.Millisecond
	flushBatch    = 1000
	drainTimeout  = 2 * time.Second
)

// CreateTableSQL is the threat_events DDL. The writer applies it on startup.
const CreateTableSQL = `
CREATE TABLE IF NOT EXISTS threat_events (
	event_id        String,
	timestamp       DateTime64(3, 'UTC'),
	kind            LowCardinality(String),
	direction       LowCardinality(String),
	action          LowCardinality(String),
	reason          String,
	is_threat       UInt8,
	risk_score      UInt8,
	threat_type     LowCardinality(String),
	confidence      Float32,
	rule_ids        Array(String),
	payload_preview String,
	payload_hash    String,
	payload_size    UInt32,
	tool_name       String,
	tool_id         String,
	tool_arguments  String,
	tool_risk       LowCardinality(String),
	is_essential    UInt8,
	cached          UInt8,
	review_applied  UInt8,
	latency_ms      Float32,
	source          LowCardinality(String)
) ENGINE = MergeTree
ORDER BY (kind, timestamp)
TTL toDateTime(timestamp) + INTERVAL 90 DAY`

// insertSQL lists columns in the order of SecurityEvent.row.
const insertSQL = `INSERT INTO threat_events (
	event_id, timestamp, kind, direction, action, reason,
	is_threat, risk_score, threat_type, confidence, rule_ids,
	payload_preview, payload_hash, payload_size,
	tool_name, tool_id, tool_arguments, tool_risk, is_essential,
	cached, review_applied, latency_ms, source
)`

func (e *SecurityEvent) row() []any {
	return []any{
		e.EventID, e.Timestamp, e.Kind, e.Direction, e.Action, e.Reason,
		boolToUint8(e.IsThreat), e.RiskScore, e.ThreatType, e.Confidence, e.RuleIDs,
		e.PayloadPreview, e.PayloadHash, e.PayloadSize,
		e.ToolName, e.ToolID, e.ToolArguments, e.ToolRisk, boolToUint8(e.IsEssential),
		boolToUint8(e.Cached), boolToUint8(e.ReviewApplied), e.LatencyMs, e.Source,
	}
}

// ClickHouseWriter batches events into threat_events from a background
// goroutine. Write never blocks; a full buffer drops the event and calls
// OnDrop.
type ClickHouseWriter struct {
	conn    driver.Conn
	queue   chan *SecurityEvent
	stop    chan struct{}
	stopped chan struct{}
	onDrop  func()
	logger  *zap.Logger
}

// OpenClickHouse parses dsn and opens a verified connection.
func OpenClickHouse(ctx context.Context, dsn string) (driver.Conn, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("OpenClickHouse: %w", err)
	}
	if opts.TLS == nil && secureDSN(dsn) {
		opts.TLS = &tls.Config{}
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("OpenClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("OpenClickHouse: ping: %w", err)
	}
	return conn, nil
}

// NewClickHouseWriter connects, applies CreateTableSQL and starts flushing.
// onDrop may be nil.
func NewClickHouseWriter(dsn string, onDrop func(), logger *zap.Logger) (*ClickHouseWriter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := OpenClickHouse(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Exec(ctx, CreateTableSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("NewClickHouseWriter: create table: %w", err)
	}
	if onDrop == nil {
		onDrop = func() {}
	}
	w := &ClickHouseWriter{
		conn:    conn,
		queue:   make(chan *SecurityEvent, bufferSize),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
		onDrop:  onDrop,
		logger:  logger,
	}
	go w.run()
	return w, nil
}

func (w *ClickHouseWriter) Write(event *SecurityEvent) {
	select {
	case w.queue <- event:
	default:
		w.onDrop()
		w.logger.Warn("event queue full, dropping event",
			zap.String("event_id", event.EventID),
			zap.String("kind", event.Kind),
		)
	}
}

// Close flushes what is queued, bounded by drainTimeout, then closes the
// connection. Call it once.
func (w *ClickHouseWriter) Close() {
	close(w.stop)
	<-w.stopped
	if err := w.conn.Close(); err != nil {
		w.logger.Warn("clickhouse close failed", zap.Error(err))
	}
}

func (w *ClickHouseWriter) run() {
	defer close(w.stopped)

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	pending := make([]*SecurityEvent, 0, flushBatch)
	send := func() {
		if len(pending) > 0 {
			w.send(pending)
			pending = pending[:0]
		}
	}

	for {
		select {
		case e := <-w.queue:
			if pending = append(pending, e); len(pending) >= flushBatch {
				send()
			}
		case <-ticker.C:
			send()
		case <-w.stop:
			deadline := time.After(drainTimeout)
			for {
				select {
				case e := <-w.queue:
					if pending = append(pending, e); len(pending) >= flushBatch {
						send()
					}
					continue
				case <-deadline:
				default:
				}
				break
			}
			send()
			return
		}
	}
}

func (w *ClickHouseWriter) send(events []*SecurityEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	batch, err := w.conn.PrepareBatch(ctx, insertSQL)
	if err != nil {
		w.logger.Error("clickhouse prepare batch failed", zap.Int("events", len(events)), zap.Error(err))
		return
	}
	for _, e := range events {
		if err := batch.Append(e.row()...); err != nil {
			w.logger.Error("clickhouse append failed", zap.String("event_id", e.EventID), zap.Error(err))
		}
	}
	if err := batch.Send(); err != nil {
		w.logger.Error("clickhouse batch send failed", zap.Int("events", len(events)), zap.Error(err))
	}
}

func boolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func secureDSN(dsn string) bool {
	return strings.Contains(dsn, "secure=true") || strings.Contains(dsn, ":9440")
}
