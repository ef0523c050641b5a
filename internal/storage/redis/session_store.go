package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/redis/go-redis/v9"
)

type sessionStore struct {
	client *redis.Client
}

const dueSetKey = "kerbd:sessions:due"

func sessionKey(id string) string {
	return fmt.Sprintf("kerbd:session:%s", id)
}

// Create stores a session and, while it is active, indexes it in the
// due set scored by its planned end
func (s *sessionStore) Create(ctx context.Context, sess storage.ParkingSession) error {
	script := redis.NewScript(createSessionScript)

	billable := "0"
	if sess.Billable {
		billable = "1"
	}
	usesBudget := "0"
	if sess.UsesBudget {
		usesBudget = "1"
	}

	keys := []string{sessionKey(sess.ID), dueSetKey}
	args := []interface{}{
		sess.ID,
		sess.VehicleID,
		sess.SegmentID,
		sess.StartedAt.Format(time.RFC3339Nano),
		sess.PlannedEndAt.Format(time.RFC3339Nano),
		sess.PlannedEndAt.Unix(),
		string(sess.Status),
		billable,
		usesBudget,
		time.Now().UTC().Format(time.RFC3339Nano),
	}

	return script.Run(ctx, s.client, keys, args...).Err()
}

// Get retrieves a session by ID
func (s *sessionStore) Get(ctx context.Context, id string) (*storage.ParkingSession, error) {
	data, err := s.client.HGetAll(ctx, sessionKey(id)).Result()
	if err != nil {
		return nil, err
	}

	if len(data) == 0 {
		return nil, storage.ErrNotFound
	}

	return parseSession(data)
}

// ListDueActive returns active sessions whose planned end has passed
func (s *sessionStore) ListDueActive(ctx context.Context, now time.Time) ([]storage.ParkingSession, error) {
	ids, err := s.client.ZRangeByScore(ctx, dueSetKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []storage.ParkingSession{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))

	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, sessionKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	sessions := make([]storage.ParkingSession, 0, len(ids))
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			// Expired hash with a stale index entry
			s.client.ZRem(ctx, dueSetKey, ids[i])
			continue
		}

		sess, err := parseSession(data)
		if err != nil {
			continue
		}
		if sess.Status == storage.SessionActive {
			sessions = append(sessions, *sess)
		}
	}

	return sessions, nil
}

// FinalizeIfActive settles a session exactly once: the status
// transition, the clamped budget charges and the paid/free split land
// in one script invocation
func (s *sessionStore) FinalizeIfActive(ctx context.Context, id string, stoppedAt time.Time, status storage.SessionStatus, totalMinutes int, charges []storage.BudgetCharge, capMinutes int) (*storage.SettlementTotals, bool, error) {
	script := redis.NewScript(finalizeSessionScript)

	keys := make([]string, 0, 2+len(charges))
	keys = append(keys, sessionKey(id), dueSetKey)

	args := make([]interface{}, 0, 6+3*len(charges))
	args = append(args,
		id,
		stoppedAt.Format(time.RFC3339Nano),
		string(status),
		totalMinutes,
		capMinutes,
		time.Now().UTC().Format(time.RFC3339Nano),
	)

	for _, c := range charges {
		keys = append(keys, budgetKey(c.VehicleID, c.AnchorDate))
		args = append(args, c.VehicleID, c.AnchorDate, c.Minutes)
	}

	res, err := script.Run(ctx, s.client, keys, args...).Int64Slice()
	if err != nil {
		return nil, false, err
	}
	if len(res) != 3 {
		return nil, false, fmt.Errorf("unexpected settle script reply of length %d", len(res))
	}

	switch res[0] {
	case -1:
		return nil, false, storage.ErrNotFound
	case 0:
		return nil, false, nil
	}

	return &storage.SettlementTotals{
		PaidMinutes: int(res[1]),
		FreeMinutes: int(res[2]),
	}, true, nil
}
