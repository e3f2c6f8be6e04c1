package users

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/logiflow/logiflow/internal/shared"
)

type memoryRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]User
	hashes map[int64]string
	gets   int
}

func newMemoryRepo(seed ...User) *memoryRepo {
	repo := &memoryRepo{users: make(map[int64]User), hashes: make(map[int64]string)}
	for _, u := range seed {
		repo.users[u.ID] = u
		if u.ID > repo.nextID {
			repo.nextID = u.ID
		}
	}
	return repo
}

func (m *memoryRepo) List(_ context.Context, filter ListFilter) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		if filter.Role != "" && u.Role() != filter.Role {
			continue
		}
		if filter.Active != nil && u.IsActive != *filter.Active {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *memoryRepo) Create(_ context.Context, in NewUser) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Username, in.Username) {
			return User{}, ErrUsernameTaken
		}
	}
	m.nextID++
	now := time.Now()
	u := User{ID: m.nextID, Username: in.Username, Email: in.Email, Name: in.Name, RoleName: string(in.Role), IsActive: true, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	m.hashes[u.ID] = in.PasswordHash
	return u, nil
}

func (m *memoryRepo) Update(_ context.Context, id int64, c Changes) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	if c.Name != nil {
		u.Name = *c.Name
	}
	if c.Email != nil {
		u.Email = *c.Email
	}
	if c.Role != nil {
		u.RoleName = string(*c.Role)
	}
	if c.IsActive != nil {
		u.IsActive = *c.IsActive
	}
	if c.PasswordHash != nil {
		m.hashes[id] = *c.PasswordHash
	}
	u.UpdatedAt = time.Now()
	m.users[id] = u
	return u, nil
}

func (m *memoryRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ErrNotFound
	}
	delete(m.users, id)
	return nil
}

type recordingAuditor struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *recordingAuditor) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}
