package postgres

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"pickasso/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type statusDB struct {
	PositionX       float64        `db:"position_x"`
	PositionY       float64        `db:"position_y"`
	PositionZ       float64        `db:"position_z"`
	State           string         `db:"state"`
	Battery         int            `db:"battery"`
	Errors          jsonStrings    `db:"errors"`
	IsConnected     bool           `db:"is_connected"`
	CurrentDecision sql.NullString `db:"current_decision"`
	CurrentReason   sql.NullString `db:"current_reason"`
}

func (r statusDB) toDomain() domain.RobotStatusSnapshot {
	out := domain.RobotStatusSnapshot{
		Position:    domain.Position{X: r.PositionX, Y: r.PositionY, Z: r.PositionZ},
		State:       r.State,
		Battery:     r.Battery,
		Errors:      append([]string{}, r.Errors...),
		IsConnected: r.IsConnected,
	}
	if r.CurrentDecision.Valid {
		v := r.CurrentDecision.String
		out.CurrentDecision = &v
	}
	if r.CurrentReason.Valid {
		v := r.CurrentReason.String
		out.CurrentReason = &v
	}
	return out
}

func statusArgs(s domain.RobotStatusSnapshot, now time.Time) map[string]interface{} {
	return map[string]interface{}{
		"position_x":       s.Position.X,
		"position_y":       s.Position.Y,
		"position_z":       s.Position.Z,
		"state":            s.State,
		"battery":          s.Battery,
		"errors":           jsonStrings(s.Errors),
		"is_connected":     s.IsConnected,
		"current_decision": nullString(s.CurrentDecision),
		"current_reason":   nullString(s.CurrentReason),
		"updated_at":       now,
	}
}

type commandDB struct {
	ID        string      `db:"id"`
	Type      string      `db:"type"`
	Payload   jsonPayload `db:"payload"`
	Status    string      `db:"status"`
	Reason    string      `db:"reason"`
	Success   bool        `db:"success"`
	CreatedAt time.Time   `db:"created_at"`
}

func (r commandDB) toDomain() domain.CommandRecord {
	payload := map[string]any(r.Payload)
	if payload == nil {
		payload = map[string]any{}
	}
	return domain.CommandRecord{
		ID:        r.ID,
		Type:      domain.CommandType(r.Type),
		Payload:   payload,
		Status:    r.Status,
		Timestamp: r.CreatedAt.UTC(),
		Reason:    r.Reason,
		Success:   r.Success,
	}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// jsonStrings maps a JSONB array column.
type jsonStrings []string

func (j jsonStrings) Value() (driver.Value, error) {
	if j == nil {
		return "[]", nil
	}
	encoded, err := json.Marshal([]string(j))
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func (j *jsonStrings) Scan(src interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil || raw == nil {
		*j = jsonStrings{}
		return err
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode errors column: %w", err)
	}
	*j = out
	return nil
}

// jsonPayload maps a JSONB object column.
type jsonPayload map[string]any

func (j jsonPayload) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	encoded, err := json.Marshal(map[string]any(j))
	if err != nil {
		return nil, err
	}
	return string(encoded), nil
}

func (j *jsonPayload) Scan(src interface{}) error {
	raw, err := jsonBytes(src)
	if err != nil || raw == nil {
		*j = jsonPayload{}
		return err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("decode payload column: %w", err)
	}
	*j = out
	return nil
}

func jsonBytes(src interface{}) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}
