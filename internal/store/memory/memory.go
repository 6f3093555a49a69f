// Package memory is an in-process document store used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tuition/internal/catalog"
	"tuition/internal/enrollment"
	"tuition/internal/identity"
)

// Store keeps every collection in maps guarded by one lock.
type Store struct {
	mu       sync.RWMutex
	users    map[string]identity.User
	classes  map[string]catalog.Class
	requests map[string]enrollment.JoinRequest
	fees     map[string]enrollment.FeeRecord
}

func New() *Store {
	return &Store{
		users:    make(map[string]identity.User),
		classes:  make(map[string]catalog.Class),
		requests: make(map[string]enrollment.JoinRequest),
		fees:     make(map[string]enrollment.FeeRecord),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

// -------- Users --------

func (s *Store) InsertUser(_ context.Context, u identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return identity.ErrEmailTaken
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return identity.ErrEmailTaken
		}
	}
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return identity.User{}, identity.ErrNotFound
}

// -------- Classes --------

func (s *Store) InsertClass(_ context.Context, c catalog.Class) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.classes[c.ID]; ok {
		return catalog.ErrDuplicate
	}
	for _, existing := range s.classes {
		if existing.Code == c.Code {
			return catalog.ErrDuplicate
		}
	}
	s.classes[c.ID] = c
	return nil
}

func (s *Store) GetClass(_ context.Context, id string) (catalog.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[id]
	if !ok {
		return catalog.Class{}, catalog.ErrNotFound
	}
	return c, nil
}

func (s *Store) GetClassByCode(_ context.Context, code string) (catalog.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.classes {
		if c.Code == code {
			return c, nil
		}
	}
	return catalog.Class{}, catalog.ErrNotFound
}

func (s *Store) ListClasses(context.Context) ([]catalog.Class, error) {
	return s.filterClasses(func(catalog.Class) bool { return true }), nil
}

func (s *Store) ListClassesByTeacher(_ context.Context, teacherID string) ([]catalog.Class, error) {
	return s.filterClasses(func(c catalog.Class) bool { return c.TeacherID == teacherID }), nil
}

func (s *Store) filterClasses(keep func(catalog.Class) bool) []catalog.Class {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []catalog.Class{}
	for _, c := range s.classes {
		if keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (s *Store) UpdateClassFee(_ context.Context, id string, fee float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return catalog.ErrNotFound
	}
	c.MonthlyFee = fee
	s.classes[id] = c
	return nil
}

func (s *Store) UpdateClassQR(_ context.Context, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.classes[id]
	if !ok {
		return catalog.ErrNotFound
	}
	c.QRImageURL = url
	s.classes[id] = c
	return nil
}

// -------- Join requests and fee records --------

func (s *Store) InsertJoinRequest(_ context.Context, jr enrollment.JoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[jr.ID]; ok {
		return enrollment.ErrDuplicate
	}
	s.requests[jr.ID] = jr
	return nil
}

func (s *Store) InsertFeeRecord(_ context.Context, fr enrollment.FeeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fees[fr.ID]; ok {
		return enrollment.ErrDuplicate
	}
	s.fees[fr.ID] = fr
	return nil
}

// InsertSubmission stores both records or neither.
func (s *Store) InsertSubmission(_ context.Context, jr enrollment.JoinRequest, fr enrollment.FeeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, dupReq := s.requests[jr.ID]
	_, dupFee := s.fees[fr.ID]
	if dupReq || dupFee {
		return enrollment.ErrDuplicate
	}
	s.requests[jr.ID] = jr
	s.fees[fr.ID] = fr
	return nil
}

func (s *Store) GetJoinRequest(_ context.Context, id string) (enrollment.JoinRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jr, ok := s.requests[id]
	if !ok {
		return enrollment.JoinRequest{}, enrollment.ErrNotFound
	}
	return jr, nil
}

func (s *Store) ListJoinRequests(_ context.Context, f enrollment.RequestFilter) ([]enrollment.JoinRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []enrollment.JoinRequest{}
	for _, jr := range s.requests {
		if f.ClassID != "" && jr.ClassID != f.ClassID {
			continue
		}
		if f.StudentID != "" && jr.StudentID != f.StudentID {
			continue
		}
		if f.Status != "" && jr.Status != f.Status {
			continue
		}
		out = append(out, jr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (s *Store) ListFeeRecords(_ context.Context, f enrollment.FeeFilter) ([]enrollment.FeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []enrollment.FeeRecord{}
	for _, fr := range s.fees {
		if f.ClassID != "" && fr.ClassID != f.ClassID {
			continue
		}
		if f.StudentID != "" && fr.StudentID != f.StudentID {
			continue
		}
		if f.JoinRequestID != "" && fr.JoinRequestID != f.JoinRequestID {
			continue
		}
		out = append(out, fr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DecideJoinRequest(_ context.Context, id string, status enrollment.Status, at time.Time) (enrollment.JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jr, ok := s.requests[id]
	if !ok {
		return enrollment.JoinRequest{}, enrollment.ErrNotFound
	}
	if jr.Status != enrollment.StatusPending {
		return jr, enrollment.ErrNotPending
	}
	jr.Status = status
	jr.DecidedAt = &at
	s.requests[id] = jr
	return jr, nil
}
