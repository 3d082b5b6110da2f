// Package postgres keeps the robot snapshot in a single-row table and the
// command log in an append-only table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"pickasso/internal/domain"
)

type Store struct {
	db  *sqlx.DB
	log logrus.FieldLogger
	now func() time.Time
}

// Open connects with the lib/pq driver.
func Open(ctx context.Context, dsn string, log logrus.FieldLogger) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return New(db, log), nil
}

func New(db *sqlx.DB, log logrus.FieldLogger) *Store {
	return &Store{db: db, log: log, now: time.Now}
}

// Migrate creates the schema when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, querySchema); err != nil {
		s.log.WithError(err).Error("Failed to migrate schema")
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

func (s *Store) EnsureSnapshot(ctx context.Context) error {
	result, err := s.exec(ctx, "EnsureSnapshot", queryEnsureStatus, statusArgs(domain.DefaultSnapshot(), s.now()))
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n > 0 {
		s.log.Info("Created default robot snapshot")
	}
	return nil
}

func (s *Store) Snapshot(ctx context.Context) (*domain.RobotStatusSnapshot, error) {
	var row statusDB
	if err := s.db.QueryRowxContext(ctx, queryGetStatus).StructScan(&row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		s.log.WithError(err).Error("Database error when reading robot snapshot")
		return nil, err
	}
	snapshot := row.toDomain()
	return &snapshot, nil
}

func (s *Store) ReplaceSnapshot(ctx context.Context, snapshot domain.RobotStatusSnapshot) error {
	_, err := s.exec(ctx, "ReplaceSnapshot", queryReplaceStatus, statusArgs(snapshot, s.now()))
	return err
}

// PatchSnapshot updates nothing when the row does not exist yet.
func (s *Store) PatchSnapshot(ctx context.Context, patch domain.SnapshotPatch) error {
	_, err := s.exec(ctx, "PatchSnapshot", queryPatchStatus, map[string]interface{}{
		"state":            patch.State,
		"current_decision": patch.CurrentDecision,
		"current_reason":   patch.CurrentReason,
		"updated_at":       s.now(),
	})
	return err
}

func (s *Store) AppendCommand(ctx context.Context, record domain.CommandRecord) error {
	_, err := s.exec(ctx, "AppendCommand", queryInsertCommand, map[string]interface{}{
		"id":         record.ID,
		"type":       string(record.Type),
		"payload":    jsonPayload(record.Payload),
		"status":     record.Status,
		"reason":     record.Reason,
		"success":    record.Success,
		"created_at": record.Timestamp,
	})
	return err
}

func (s *Store) RecentCommands(ctx context.Context, limit int) ([]domain.CommandRecord, error) {
	if limit <= 0 {
		return []domain.CommandRecord{}, nil
	}

	query, args, err := sqlx.Named(queryRecentCommands, map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var rows []commandDB
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		s.log.WithError(err).Error("Database error when listing commands")
		return nil, err
	}

	out := make([]domain.CommandRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) exec(ctx context.Context, op string, named string, argsKV map[string]interface{}) (sql.Result, error) {
	query, args, err := sqlx.Named(named, argsKV)
	if err != nil {
		s.log.WithFields(logrus.Fields{"op": op, "error": err.Error()}).Error("Failed to build SQL query")
		return nil, err
	}
	query = s.db.Rebind(query)

	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.log.WithFields(logrus.Fields{"op": op, "error": err.Error()}).Error("Database error")
		return nil, err
	}
	return result, nil
}
