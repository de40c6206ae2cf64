package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"booking-system/internal/status"
	"booking-system/monitoring"
)

// Batch scripts. Each script sees every key of the batch in one atomic
// step, so two overlapping lock calls can never both observe
// availability: whichever EVAL runs first wins all of its seats or
// none of them.
const (
	lockSeatsScript = `
local denied = {}
for i = 1, #KEYS do
  local owner = redis.call('GET', KEYS[i])
  if owner and owner ~= ARGV[1] then
    denied[#denied + 1] = i
  end
end
if #denied > 0 then
  return denied
end
for i = 1, #KEYS do
  redis.call('SET', KEYS[i], ARGV[1], 'PX', ARGV[2])
end
return {}`

	releaseSeatsScript = `
local failed = {}
for i = 1, #KEYS do
  local owner = redis.call('GET', KEYS[i])
  if owner == ARGV[1] then
    redis.call('DEL', KEYS[i])
  elseif owner then
    failed[#failed + 1] = i
  end
end
return failed`

	extendSeatsScript = `
local failed = {}
for i = 1, #KEYS do
  if redis.call('GET', KEYS[i]) == ARGV[1] then
    redis.call('PEXPIRE', KEYS[i], ARGV[2])
  else
    failed[#failed + 1] = i
  end
end
return failed`

	confirmSeatsScript = `
for i = 1, #KEYS do
  if redis.call('GET', KEYS[i]) ~= ARGV[1] then
    return {0, i}
  end
end
for i = 1, #KEYS do
  redis.call('DEL', KEYS[i])
end
return {1}`
)

// LockResult describes one batch lock attempt. The batch is
// all-or-nothing: Granted is either the full seat set or empty.
type LockResult struct {
	Granted []string `json:"granted"`
	Denied  []string `json:"denied"`
}

// ReleaseResult lists the seats cleared and the seats that were owned
// by someone else and therefore left alone.
type ReleaseResult struct {
	Released []string `json:"released"`
	Failed   []string `json:"failed"`
}

// ProbeResult is a read-only snapshot of lock state.
type ProbeResult struct {
	Locked []string          `json:"locked_seats"`
	Owners map[string]string `json:"owner_by_seat"`
}

// SeatLockManager provides TTL-based mutual exclusion over seat ids,
// backed by the Redis lock store. Abandoned locks expire on their own,
// so a crashed client never starves a seat.
type SeatLockManager struct {
	Redis   *redis.Client
	Monitor *monitoring.Monitor
}

func NewSeatLockManager(redisClient *redis.Client, monitor *monitoring.Monitor) *SeatLockManager {
	return &SeatLockManager{Redis: redisClient, Monitor: monitor}
}

func seatLockKey(eventID, seatID string) string {
	return fmt.Sprintf("seatlock:%s:%s", eventID, seatID)
}

func seatLockKeys(eventID string, seats []string) []string {
	keys := make([]string, len(seats))
	for i, seatID := range seats {
		keys[i] = seatLockKey(eventID, seatID)
	}
	return keys
}

// Lock atomically acquires the whole seat set for ownerID or acquires
// nothing. A seat already held by ownerID counts as granted and gets
// its TTL refreshed.
func (s *SeatLockManager) Lock(ctx context.Context, eventID string, seats []string, ownerID string, ttl time.Duration) (LockResult, error) {
	if len(seats) == 0 {
		return LockResult{}, nil
	}

	keys := seatLockKeys(eventID, seats)
	result, err := s.Redis.Eval(ctx, lockSeatsScript, keys, ownerID, ttl.Milliseconds()).Result()
	if err != nil {
		s.track("lock", "error")
		return LockResult{Denied: seats}, err
	}

	deniedIdx, ok := result.([]interface{})
	if !ok {
		return LockResult{Denied: seats}, fmt.Errorf("unexpected lock script result %T", result)
	}

	if len(deniedIdx) == 0 {
		s.track("lock", "granted")
		return LockResult{Granted: seats, Denied: []string{}}, nil
	}

	denied := make([]string, 0, len(deniedIdx))
	for _, idx := range deniedIdx {
		if i, ok := idx.(int64); ok && i >= 1 && int(i) <= len(seats) {
			denied = append(denied, seats[i-1])
		}
	}
	s.track("lock", "denied")
	slog.Info("seat lock denied", "event_id", eventID, "owner_id", ownerID, "denied", denied)
	return LockResult{Granted: []string{}, Denied: denied}, nil
}

// Release clears only the seats currently owned by ownerID. Seats held
// by another owner are reported as failures, never cleared; a missing
// (expired) lock counts as released.
func (s *SeatLockManager) Release(ctx context.Context, eventID string, seats []string, ownerID string) (ReleaseResult, error) {
	return s.ownerBatch(ctx, "release", releaseSeatsScript, eventID, seats, ownerID, nil)
}

// Extend refreshes the TTL on seats owned by ownerID. Seats that are
// missing or owned by someone else are reported as failures.
func (s *SeatLockManager) Extend(ctx context.Context, eventID string, seats []string, ownerID string, ttl time.Duration) (ReleaseResult, error) {
	ttlMs := ttl.Milliseconds()
	return s.ownerBatch(ctx, "extend", extendSeatsScript, eventID, seats, ownerID, &ttlMs)
}

func (s *SeatLockManager) ownerBatch(ctx context.Context, op, script, eventID string, seats []string, ownerID string, ttlMs *int64) (ReleaseResult, error) {
	if len(seats) == 0 {
		return ReleaseResult{}, nil
	}

	keys := seatLockKeys(eventID, seats)
	args := []interface{}{ownerID}
	if ttlMs != nil {
		args = append(args, *ttlMs)
	}

	result, err := s.Redis.Eval(ctx, script, keys, args...).Result()
	if err != nil {
		s.track(op, "error")
		return ReleaseResult{Failed: seats}, err
	}

	failedIdx, ok := result.([]interface{})
	if !ok {
		return ReleaseResult{Failed: seats}, fmt.Errorf("unexpected %s script result %T", op, result)
	}

	failedSet := make(map[int]bool, len(failedIdx))
	for _, idx := range failedIdx {
		if i, ok := idx.(int64); ok {
			failedSet[int(i)] = true
		}
	}

	out := ReleaseResult{Released: []string{}, Failed: []string{}}
	for i, seatID := range seats {
		if failedSet[i+1] {
			out.Failed = append(out.Failed, seatID)
		} else {
			out.Released = append(out.Released, seatID)
		}
	}

	if len(out.Failed) > 0 {
		s.track(op, "partial")
	} else {
		s.track(op, "ok")
	}
	return out, nil
}

// IsLocked probes lock state without mutating anything.
func (s *SeatLockManager) IsLocked(ctx context.Context, eventID string, seats []string) (ProbeResult, error) {
	probe := ProbeResult{Locked: []string{}, Owners: map[string]string{}}
	if len(seats) == 0 {
		return probe, nil
	}

	owners, err := s.Redis.MGet(ctx, seatLockKeys(eventID, seats)...).Result()
	if err != nil {
		return probe, err
	}

	for i, owner := range owners {
		if owner == nil {
			continue
		}
		if ownerID, ok := owner.(string); ok && ownerID != "" {
			probe.Locked = append(probe.Locked, seats[i])
			probe.Owners[seats[i]] = ownerID
		}
	}
	return probe, nil
}

// Confirm verifies every seat is still owned by ownerID, then drops
// the lock entries. The durable seat transition to booked is the
// ledger's job, not this store's.
func (s *SeatLockManager) Confirm(ctx context.Context, eventID string, seats []string, ownerID string) error {
	if len(seats) == 0 {
		return nil
	}

	keys := seatLockKeys(eventID, seats)
	result, err := s.Redis.Eval(ctx, confirmSeatsScript, keys, ownerID).Result()
	if err != nil {
		s.track("confirm", "error")
		return err
	}

	vals, ok := result.([]interface{})
	if !ok || len(vals) == 0 {
		return fmt.Errorf("unexpected confirm script result %T", result)
	}

	if code, _ := vals[0].(int64); code != 1 {
		s.track("confirm", "denied")
		seat := ""
		if len(vals) > 1 {
			if i, ok := vals[1].(int64); ok && i >= 1 && int(i) <= len(seats) {
				seat = seats[i-1]
			}
		}
		return status.Conflict(status.CodeSeatUnavailable,
			fmt.Sprintf("seat %s no longer owned by %s", seat, ownerID))
	}

	s.track("confirm", "ok")
	return nil
}

func (s *SeatLockManager) track(operation, outcome string) {
	if s.Monitor != nil {
		s.Monitor.TrackLockOperation(operation, outcome)
	}
}
