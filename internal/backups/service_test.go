package backups

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logiflow/logiflow/internal/platform/httpx"
)

type memoryRepo struct {
	mu          sync.Mutex
	runs        map[string]Run
	snapshot    Snapshot
	snapshotErr error
	completeErr error
	failErr     error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		runs:     make(map[string]Run),
		snapshot: Snapshot{Tables: map[string]int64{"users": 4, "tasks": 12}, SizeBytes: 8192},
	}
}

func (m *memoryRepo) Create(_ context.Context, run Run) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.CreatedAt = time.Now()
	m.runs[run.ID] = run
	return run, nil
}

func (m *memoryRepo) List(_ context.Context, limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, id string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return r, nil
}

func (m *memoryRepo) HasActive(context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRepo) MarkRunning(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || !r.Status.Active() {
		return false, nil
	}
	now := time.Now()
	r.Status, r.StartedAt = StatusRunning, &now
	m.runs[id] = r
	return true, nil
}

func (m *memoryRepo) MarkCompleted(_ context.Context, id string, snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.completeErr; err != nil {
		m.completeErr = nil
		return err
	}
	r := m.runs[id]
	now := time.Now()
	r.Status, r.Tables, r.SizeBytes, r.CompletedAt = StatusCompleted, snap.Tables, snap.SizeBytes, &now
	m.runs[id] = r
	return nil
}

func (m *memoryRepo) MarkFailed(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failErr; err != nil {
		m.failErr = nil
		return err
	}
	r := m.runs[id]
	r.Status, r.Error = StatusFailed, reason
	m.runs[id] = r
	return nil
}

func (m *memoryRepo) Snapshot(context.Context) (Snapshot, error) {
	return m.snapshot, m.snapshotErr
}

func (m *memoryRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return ErrNotFound
	}
	if r.Status.Active() {
		return ErrRunActive
	}
	delete(m.runs, id)
	return nil
}

type fakeQueue struct {
	enqueued []string
	err      error
}

func (q *fakeQueue) EnqueueBackup(_ context.Context, runID string) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, runID)
	return nil
}

func newScheduleStore(t *testing.T) *ScheduleStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewScheduleStore(client)
}

func newTestService(t *testing.T) (*Service, *memoryRepo, *fakeQueue) {
	t.Helper()
	repo := newMemoryRepo()
	queue := &fakeQueue{}
	return NewService(repo, queue, newScheduleStore(t), nil, nil), repo, queue
}

func TestRequestBackupEnqueuesRun(t *testing.T) {
	svc, repo, queue := newTestService(t)

	run, err := svc.RequestBackup(context.Background(), 1)
	require.NoError(t, err)
	_, err = ulid.ParseStrict(run.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, run.Status)
	assert.Equal(t, TriggerManual, run.Trigger)
	require.NotNil(t, run.RequestedBy)
	assert.Equal(t, int64(1), *run.RequestedBy)
	assert.Equal(t, []string{run.ID}, queue.enqueued)

	_, err = svc.RequestBackup(context.Background(), 1)
	assert.ErrorIs(t, err, ErrRunInProgress)
	assert.ErrorIs(t, err, httpx.ErrConflict)
	assert.Len(t, repo.runs, 1)
}

func TestRequestBackupMarksFailedWhenQueueDown(t *testing.T) {
	svc, repo, queue := newTestService(t)
	queue.err = errors.New("redis unavailable")

	_, err := svc.RequestBackup(context.Background(), 1)
	require.Error(t, err)
	require.Len(t, repo.runs, 1)
	for _, run := range repo.runs {
		assert.Equal(t, StatusFailed, run.Status)
	}
	assert.False(t, httpx.IsClientError(err))
}

func TestExecuteRunStoresSnapshot(t *testing.T) {
	svc, repo, _ := newTestService(t)
	run, err := svc.RequestBackup(context.Background(), 1)
	require.NoError(t, err)

	size, err := svc.ExecuteRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), size)
	stored := repo.runs[run.ID]
	assert.Equal(t, StatusCompleted, stored.Status)
	assert.Equal(t, int64(12), stored.Tables["tasks"])
	assert.NotNil(t, stored.CompletedAt)

	size, err = svc.ExecuteRun(context.Background(), run.ID)
	require.NoError(t, err, "re-delivery is a no-op")
	assert.Equal(t, int64(8192), size)
}

func TestExecuteRunRecordsFailure(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.snapshotErr = errors.New("relation missing")
	run, err := svc.RequestBackup(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.ExecuteRun(context.Background(), run.ID)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, repo.runs[run.ID].Status)
	assert.Equal(t, "relation missing", repo.runs[run.ID].Error)

	_, err = svc.RequestBackup(context.Background(), 1)
	assert.NoError(t, err, "failed runs do not block new ones")
}

func TestExecuteRunMarksFailedWhenCompletionFails(t *testing.T) {
	svc, repo, _ := newTestService(t)
	run, err := svc.RequestBackup(context.Background(), 1)
	require.NoError(t, err)
	repo.completeErr = errors.New("connection reset")

	_, err = svc.ExecuteRun(context.Background(), run.ID)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, repo.runs[run.ID].Status)

	_, err = svc.ExecuteRun(context.Background(), run.ID)
	assert.NoError(t, err, "retry of a failed run is a no-op")
	require.NoError(t, svc.DeleteRun(context.Background(), 1, run.ID))
	_, err = svc.RequestBackup(context.Background(), 1)
	assert.NoError(t, err)
}

func TestExecuteRunResumesInterruptedRun(t *testing.T) {
	svc, repo, _ := newTestService(t)
	run, err := svc.RequestBackup(context.Background(), 1)
	require.NoError(t, err)
	repo.completeErr = errors.New("connection reset")
	repo.failErr = errors.New("connection reset")

	_, err = svc.ExecuteRun(context.Background(), run.ID)
	require.Error(t, err)
	require.Equal(t, StatusRunning, repo.runs[run.ID].Status)

	size, err := svc.ExecuteRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(8192), size)
	assert.Equal(t, StatusCompleted, repo.runs[run.ID].Status)
	_, err = svc.RequestBackup(context.Background(), 1)
	assert.NoError(t, err)
}

func TestRequestBackupWithoutQueueLeavesNoRun(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, newScheduleStore(t), nil, nil)

	_, err := svc.RequestBackup(context.Background(), 1)
	require.Error(t, err)
	assert.Empty(t, repo.runs)
	_, err = svc.StartScheduledRun(context.Background())
	assert.NoError(t, err)
}

func TestStartScheduledRun(t *testing.T) {
	svc, repo, queue := newTestService(t)
	id, err := svc.StartScheduledRun(context.Background())
	require.NoError(t, err)
	assert.Equal(t, TriggerScheduled, repo.runs[id].Trigger)
	assert.Nil(t, repo.runs[id].RequestedBy)
	assert.Empty(t, queue.enqueued)
}

func TestDeleteRun(t *testing.T) {
	svc, _, _ := newTestService(t)
	run, err := svc.RequestBackup(context.Background(), 1)
	require.NoError(t, err)
	assert.ErrorIs(t, svc.DeleteRun(context.Background(), 1, run.ID), ErrRunActive)

	_, err = svc.ExecuteRun(context.Background(), run.ID)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRun(context.Background(), 1, run.ID))
	assert.ErrorIs(t, svc.DeleteRun(context.Background(), 1, run.ID), ErrNotFound)
}

func TestScheduleStore(t *testing.T) {
	store := newScheduleStore(t)
	ctx := context.Background()

	enabled, err := store.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, store.SetEnabled(ctx, true))
	enabled, err = store.Enabled(ctx)
	require.NoError(t, err)
	assert.True(t, enabled)

	require.NoError(t, store.SetEnabled(ctx, false))
	enabled, err = store.Enabled(ctx)
	require.NoError(t, err)
	assert.False(t, enabled)
}
