package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Secure-Vector/securevector-ai-threat-monitor-sub000/internal/tools"
)

// GetOverrides returns every tool override keyed by tool id.
func (s *Store) GetOverrides(ctx context.Context) (map[string]tools.Action, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tool_id, action FROM tool_overrides`)
	if err != nil {
		return nil, fmt.Errorf("GetOverrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tools.Action)
	for rows.Next() {
		var id, action string
		if err := rows.Scan(&id, &action); err != nil {
			return nil, fmt.Errorf("GetOverrides: %w", err)
		}
		out[id] = tools.Action(action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetOverrides: %w", err)
	}
	return out, nil
}

// SetOverride upserts the override for a tool.
func (s *Store) SetOverride(ctx context.Context, toolID string, action tools.Action) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_overrides (tool_id, action) VALUES ($1, $2)
		ON CONFLICT (tool_id) DO UPDATE SET action = EXCLUDED.action, updated_at = now()`,
		toolID, string(action))
	if err != nil {
		return fmt.Errorf("SetOverride: %w", err)
	}
	return nil
}

// DeleteOverride removes a tool override and reports whether one existed.
func (s *Store) DeleteOverride(ctx context.Context, toolID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_overrides WHERE tool_id = $1`, toolID)
	if err != nil {
		return false, fmt.Errorf("DeleteOverride: %w", err)
	}
	return affected(res)
}

// GetCustomTools returns every custom tool keyed by tool id.
func (s *Store) GetCustomTools(ctx context.Context) (map[string]tools.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_id, name, category, risk, default_permission,
		       COALESCE(rate_limit, 'null'::jsonb), description, capabilities,
		       COALESCE(argument_schema, 'null'::jsonb)
		FROM custom_tools`)
	if err != nil {
		return nil, fmt.Errorf("GetCustomTools: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tools.Entry)
	for rows.Next() {
		var (
			e                           tools.Entry
			risk, perm                  string
			rateLimit, caps, argsSchema []byte
		)
		if err := rows.Scan(&e.ToolID, &e.Name, &e.Category, &risk, &perm,
			&rateLimit, &e.Description, &caps, &argsSchema); err != nil {
			return nil, fmt.Errorf("GetCustomTools: %w", err)
		}
		e.Risk = tools.Risk(risk)
		e.DefaultPermission = tools.Permission(perm)
		if err := decodeToolJSON(&e, rateLimit, caps, argsSchema); err != nil {
			return nil, fmt.Errorf("GetCustomTools: tool %s: %w", e.ToolID, err)
		}
		out[e.ToolID] = e
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetCustomTools: %w", err)
	}
	return out, nil
}

// CreateCustomTool inserts a custom tool. Returns tools.ErrToolExists when the
// id is already taken.
func (s *Store) CreateCustomTool(ctx context.Context, e tools.Entry) error {
	rateLimit, caps, argsSchema, err := encodeToolJSON(e)
	if err != nil {
		return fmt.Errorf("CreateCustomTool: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO custom_tools (tool_id, name, category, risk, default_permission,
		                          rate_limit, description, capabilities, argument_schema)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (tool_id) DO NOTHING`,
		e.ToolID, e.Name, e.Category, string(e.Risk), string(e.DefaultPermission),
		rateLimit, e.Description, caps, argsSchema)
	if err != nil {
		return fmt.Errorf("CreateCustomTool: %w", err)
	}
	ok, err := affected(res)
	if err != nil {
		return fmt.Errorf("CreateCustomTool: %w", err)
	}
	if !ok {
		return tools.ErrToolExists
	}
	return nil
}

// UpdateCustomTool replaces a custom tool and reports whether it existed.
func (s *Store) UpdateCustomTool(ctx context.Context, e tools.Entry) (bool, error) {
	rateLimit, caps, argsSchema, err := encodeToolJSON(e)
	if err != nil {
		return false, fmt.Errorf("UpdateCustomTool: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE custom_tools SET
			name = $2, category = $3, risk = $4, default_permission = $5,
			rate_limit = $6, description = $7, capabilities = $8, argument_schema = $9,
			updated_at = now()
		WHERE tool_id = $1`,
		e.ToolID, e.Name, e.Category, string(e.Risk), string(e.DefaultPermission),
		rateLimit, e.Description, caps, argsSchema)
	if err != nil {
		return false, fmt.Errorf("UpdateCustomTool: %w", err)
	}
	return affected(res)
}

// DeleteCustomTool removes a custom tool along with its override.
func (s *Store) DeleteCustomTool(ctx context.Context, toolID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("DeleteCustomTool: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, `DELETE FROM custom_tools WHERE tool_id = $1`, toolID)
	if err != nil {
		return false, fmt.Errorf("DeleteCustomTool: %w", err)
	}
	ok, err := affected(res)
	if err != nil || !ok {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tool_overrides WHERE tool_id = $1`, toolID); err != nil {
		return false, fmt.Errorf("DeleteCustomTool: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("DeleteCustomTool: %w", err)
	}
	return true, nil
}

// CountRecentCalls counts calls to toolID at or after since that were not blocked.
func (s *Store) CountRecentCalls(ctx context.Context, toolID string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM tool_calls
		WHERE tool_id = $1 AND called_at >= $2 AND action <> 'block'`,
		toolID, since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("CountRecentCalls: %w", err)
	}
	return n, nil
}

// RecordToolCall appends a call to the log.
func (s *Store) RecordToolCall(ctx context.Context, rec tools.CallRecord) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_calls (tool_id, function_name, action, reason, called_at)
		VALUES ($1, $2, $3, $4, $5)`,
		rec.ToolID, rec.FunctionName, string(rec.Action), rec.Reason, at)
	if err != nil {
		return fmt.Errorf("RecordToolCall: %w", err)
	}
	return nil
}

// PruneToolCalls deletes call-log rows older than before.
func (s *Store) PruneToolCalls(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tool_calls WHERE called_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("PruneToolCalls: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("PruneToolCalls: %w", err)
	}
	return n, nil
}

func encodeToolJSON(e tools.Entry) (rateLimit, caps, argsSchema any, err error) {
	if e.RateLimit != nil {
		if rateLimit, err = json.Marshal(e.RateLimit); err != nil {
			return nil, nil, nil, err
		}
	}
	c := e.Capabilities
	if c == nil {
		c = []string{}
	}
	if caps, err = json.Marshal(c); err != nil {
		return nil, nil, nil, err
	}
	if e.ArgumentSchema != nil {
		if argsSchema, err = json.Marshal(e.ArgumentSchema); err != nil {
			return nil, nil, nil, err
		}
	}
	return rateLimit, caps, argsSchema, nil
}

func decodeToolJSON(e *tools.Entry, rateLimit, caps, argsSchema []byte) error {
	if err := json.Unmarshal(rateLimit, &e.RateLimit); err != nil {
		return err
	}
	if err := json.Unmarshal(caps, &e.Capabilities); err != nil {
		return err
	}
	if len(e.Capabilities) == 0 {
		e.Capabilities = nil
	}
	return json.Unmarshal(argsSchema, &e.ArgumentSchema)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
