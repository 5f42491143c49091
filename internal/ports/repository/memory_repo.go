package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"attendance.service/internal/core/model"
	"github.com/google/uuid"
)

// MemoryRepository keeps sessions in process memory. It backs local runs
// and tests.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*model.AttendanceSession
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{sessions: make(map[string]*model.AttendanceSession)}
}

func (r *MemoryRepository) CreateSession(_ context.Context, s *model.AttendanceSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.sessions {
		if existing.EmployeeID == s.EmployeeID && existing.Kind == s.Kind && existing.Open() {
			return ErrOpenSessionExists
		}
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	stored := *s
	r.sessions[s.ID] = &stored
	return nil
}

func (r *MemoryRepository) CloseSession(_ context.Context, id string, endedAt time.Time, geo *model.Coordinates) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.Open() {
		return ErrSessionNotFound
	}
	s.EndedAt = &endedAt
	if geo != nil {
		g := *geo
		s.EndLocation = &g
	}
	return nil
}

func (r *MemoryRepository) FindOpenSession(_ context.Context, employeeID string, kind model.SessionKind) (*model.AttendanceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range r.sessions {
		if s.EmployeeID == employeeID && s.Kind == kind && s.Open() {
			out := *s
			return &out, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) ListDaySessions(_ context.Context, employeeID string, from, to time.Time) ([]model.AttendanceSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []model.AttendanceSession
	for _, s := range r.sessions {
		if s.EmployeeID != employeeID {
			continue
		}
		inDay := !s.StartedAt.Before(from) && s.StartedAt.Before(to)
		if inDay || s.Open() {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}
