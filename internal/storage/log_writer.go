package storage

import "go.uber.org/zap"

// LogWriter is a fallback EventWriter for local development.
// It logs events as structured JSON to stdout via zap.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *SecurityEvent) {
	fields := []zap.Field{
		zap.String("event_id", event.EventID),
		zap.String("kind", event.Kind),
		zap.String("action", event.Action),
		zap.String("reason", event.Reason),
		zap.Float32("latency_ms", event.LatencyMs),
		zap.String("source", event.Source),
	}
	switch event.Kind {
	case KindToolCall, KindToolConfig:
		fields = append(fields,
			zap.String("tool_name", event.ToolName),
			zap.String("tool_id", event.ToolID),
			zap.String("tool_risk", event.ToolRisk),
			zap.Bool("is_essential", event.IsEssential),
		)
	default:
		fields = append(fields,
			zap.String("direction", event.Direction),
			zap.Bool("is_threat", event.IsThreat),
			zap.Uint8("risk_score", event.RiskScore),
			zap.String("threat_type", event.ThreatType),
			zap.Strings("rule_ids", event.RuleIDs),
			zap.String("payload_preview", event.PayloadPreview),
		)
	}
	w.logger.Info("security_event", fields...)
}

func (w *LogWriter) Close() {}

// MultiWriter fans every event out to several writers.
type MultiWriter []EventWriter

func (m MultiWriter) Write(event *SecurityEvent) {
	for _, w := range m {
		w.Write(event)
	}
}

func (m MultiWriter) Close() {
	for _, w := range m {
		w.Close()
	}
}
