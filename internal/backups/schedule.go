package backups

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const scheduleKey = "logiflow:backups:schedule"

// ScheduleStore keeps the nightly backup switch in Redis so the API and the
// worker share it.
type ScheduleStore struct {
	client redis.UniversalClient
}

// NewScheduleStore constructs a ScheduleStore.
func NewScheduleStore(client redis.UniversalClient) *ScheduleStore {
	return &ScheduleStore{client: client}
}

// Enabled reports whether nightly backups are on. A missing key means off.
func (s *ScheduleStore) Enabled(ctx context.Context) (bool, error) {
	v, err := s.client.Get(ctx, scheduleKey).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// SetEnabled switches nightly backups on or off.
func (s *ScheduleStore) SetEnabled(ctx context.Context, enabled bool) error {
	if !enabled {
		return s.client.Del(ctx, scheduleKey).Err()
	}
	return s.client.Set(ctx, scheduleKey, "1", 0).Err()
}
