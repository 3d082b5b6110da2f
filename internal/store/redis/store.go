// Package redis stores the robot snapshot as a JSON string and the command
// log as a sorted set scored by timestamp.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"pickasso/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const patchRetries = 5

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Store struct {
	client      *redis.Client
	log         logrus.FieldLogger
	statusKey   string
	commandsKey string
}

// Open connects and pings the server.
func Open(ctx context.Context, opts Options, log logrus.FieldLogger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	log.WithField("addr", opts.Addr).Info("Connecting to Redis")
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return New(client, opts.Prefix, log), nil
}

func New(client *redis.Client, prefix string, log logrus.FieldLogger) *Store {
	if prefix == "" {
		prefix = "pickasso"
	}
	return &Store{
		client:      client,
		log:         log,
		statusKey:   prefix + ":status",
		commandsKey: prefix + ":commands",
	}
}

func (s *Store) EnsureSnapshot(ctx context.Context) error {
	encoded, err := json.Marshal(domain.DefaultSnapshot())
	if err != nil {
		return err
	}
	created, err := s.client.SetNX(ctx, s.statusKey, encoded, 0).Result()
	if err != nil {
		s.log.WithError(err).Error("Failed to ensure robot snapshot")
		return err
	}
	if created {
		s.log.WithField("key", s.statusKey).Info("Created default robot snapshot")
	}
	return nil
}

func (s *Store) Snapshot(ctx context.Context) (*domain.RobotStatusSnapshot, error) {
	return s.readSnapshot(ctx, s.client)
}

func (s *Store) ReplaceSnapshot(ctx context.Context, snapshot domain.RobotStatusSnapshot) error {
	if snapshot.Errors == nil {
		snapshot.Errors = []string{}
	}
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.statusKey, encoded, 0).Err(); err != nil {
		s.log.WithError(err).Error("Failed to replace robot snapshot")
		return err
	}
	return nil
}

// PatchSnapshot is optimistic: the read-modify-write retries when another
// writer touches the key in between.
func (s *Store) PatchSnapshot(ctx context.Context, patch domain.SnapshotPatch) error {
	txf := func(tx *redis.Tx) error {
		snapshot, err := s.readSnapshot(ctx, tx)
		if err != nil || snapshot == nil {
			return err
		}
		snapshot.Apply(patch)
		encoded, err := json.Marshal(snapshot)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, s.statusKey, encoded, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < patchRetries; attempt++ {
		err := s.client.Watch(ctx, txf, s.statusKey)
		if !errors.Is(err, redis.TxFailedErr) {
			if err != nil {
				s.log.WithError(err).Error("Failed to patch robot snapshot")
			}
			return err
		}
	}
	return fmt.Errorf("patch robot snapshot: %w", redis.TxFailedErr)
}

func (s *Store) AppendCommand(ctx context.Context, record domain.CommandRecord) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	err = s.client.ZAdd(ctx, s.commandsKey, redis.Z{
		Score:  float64(record.Timestamp.UnixMicro()),
		Member: encoded,
	}).Err()
	if err != nil {
		s.log.WithFields(logrus.Fields{"id": record.ID, "error": err.Error()}).Error("Failed to append command")
		return err
	}
	return nil
}

func (s *Store) RecentCommands(ctx context.Context, limit int) ([]domain.CommandRecord, error) {
	if limit <= 0 {
		return []domain.CommandRecord{}, nil
	}
	members, err := s.client.ZRevRange(ctx, s.commandsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	out := make([]domain.CommandRecord, 0, len(members))
	for _, member := range members {
		var record domain.CommandRecord
		if err := json.Unmarshal([]byte(member), &record); err != nil {
			s.log.WithError(err).Warn("Skipping undecodable command record")
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// getter is satisfied by both the client and a watched transaction.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) readSnapshot(ctx context.Context, cmd getter) (*domain.RobotStatusSnapshot, error) {
	raw, err := cmd.Get(ctx, s.statusKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snapshot domain.RobotStatusSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode robot snapshot: %w", err)
	}
	if snapshot.Errors == nil {
		snapshot.Errors = []string{}
	}
	return &snapshot, nil
}
