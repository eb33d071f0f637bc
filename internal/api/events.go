package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/chread"
)

const (
	defaultSummaryDays = 7
	maxSummaryDays     = 90
)

// reader returns the event reader, answering 503 itself when there is none.
func (d *Dependencies) reader(w http.ResponseWriter) (EventReader, bool) {
	if d.Reader == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResp{Detail: "ClickHouse not configured"})
		return nil, false
	}
	return d.Reader, true
}

func (d *Dependencies) handleListEvents(w http.ResponseWriter, r *http.Request) {
	rd, ok := d.reader(w)
	if !ok {
		return
	}
	params := eventFilters(r.URL.Query())

	events, total, err := rd.ListEvents(r.Context(), params)
	if err != nil {
		d.Logger.Error("failed to list events", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to list events"})
		return
	}
	if events == nil {
		events = []chread.EventRow{}
	}
	writeJSON(w, http.StatusOK, EventListResp{
		Events:   events,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}

func (d *Dependencies) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	rd, ok := d.reader(w)
	if !ok {
		return
	}
	id := r.PathValue("event_id")
	event, err := rd.GetEvent(r.Context(), id)
	switch {
	case err != nil:
		d.Logger.Error("failed to get event", zap.String("event_id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get event"})
	case event == nil:
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "Event not found."})
	default:
		writeJSON(w, http.StatusOK, event)
	}
}

func (d *Dependencies) handleEventSummary(w http.ResponseWriter, r *http.Request) {
	rd, ok := d.reader(w)
	if !ok {
		return
	}
	days := min(max(queryInt(r.URL.Query(), "days", defaultSummaryDays), 1), maxSummaryDays)
	summary, err := rd.GetSummary(r.Context(), days)
	if err != nil {
		d.Logger.Error("failed to summarize events", zap.Int("days", days), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "Failed to get event summary"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"days": days, "summary": summary})
}

// eventFilters maps list query parameters onto reader params. Unparseable
// values are ignored rather than rejected.
func eventFilters(q url.Values) chread.ListEventsParams {
	p := chread.ListEventsParams{
		Page:       queryInt(q, "page", 1),
		PageSize:   queryInt(q, "page_size", chread.DefaultPageSize),
		Kind:       queryString(q, "kind"),
		Action:     queryString(q, "action"),
		ThreatType: queryString(q, "threat_type"),
		ToolID:     queryString(q, "tool_id"),
		StartTime:  queryTime(q, "start_time"),
		EndTime:    queryTime(q, "end_time"),
	}
	if v := q.Get("is_threat"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			p.IsThreat = &b
		}
	}
	p.Normalize()
	return p
}

func queryString(q url.Values, key string) *string {
	v := q.Get(key)
	if v == "" {
		return nil
	}
	return &v
}

func queryTime(q url.Values, key string) *time.Time {
	t, err := time.Parse(time.RFC3339, q.Get(key))
	if err != nil {
		return nil
	}
	return &t
}

func queryInt(q url.Values, key string, defaultVal int) int {
	i, err := strconv.Atoi(q.Get(key))
	if err != nil {
		return defaultVal
	}
	return i
}
