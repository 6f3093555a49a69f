package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"tuition/internal/catalog"
	"tuition/internal/logging"
	"tuition/internal/metrics"
)

// ErrInvalidStatus is returned for an unknown status filter.
var ErrInvalidStatus = errors.New("invalid status")

// Directory resolves user ids to display names.
type Directory interface {
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Reviewer implements the teacher side of enrollment.
type Reviewer struct {
	classes Classes
	repo    Repository
	users   Directory
	events  Publisher
	log     *zap.Logger
	now     func() time.Time
}

func NewReviewer(classes Classes, repo Repository, users Directory, events Publisher, log *zap.Logger) *Reviewer {
	return &Reviewer{classes: classes, repo: repo, users: users, events: events, log: logging.OrNop(log), now: time.Now}
}

// ListTeacherClasses returns the classes owned by teacherID.
func (r *Reviewer) ListTeacherClasses(ctx context.Context, teacherID string) ([]catalog.Class, error) {
	return r.classes.ListClassesByTeacher(ctx, teacherID)
}

// ListPending returns the pending join requests of one of the teacher's classes.
func (r *Reviewer) ListPending(ctx context.Context, teacherID, classID string) ([]JoinRequest, error) {
	return r.ListRequests(ctx, teacherID, classID, StatusPending)
}

// ListRequests returns join requests of an owned class, oldest first.
// An empty status lists every request.
func (r *Reviewer) ListRequests(ctx context.Context, teacherID, classID string, status Status) ([]JoinRequest, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if _, err := r.ownedClass(ctx, teacherID, classID); err != nil {
		return nil, err
	}
	reqs, err := r.repo.ListJoinRequests(ctx, RequestFilter{ClassID: classID, Status: status})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].RequestedAt.Before(reqs[j].RequestedAt) })

	names := map[string]string{}
	for i := range reqs {
		if reqs[i].StudentName != "" || r.users == nil {
			continue
		}
		name, ok := names[reqs[i].StudentID]
		if !ok {
			name, err = r.users.DisplayName(ctx, reqs[i].StudentID)
			if err != nil {
				r.log.Debug("student name lookup failed", zap.String("student_id", reqs[i].StudentID), zap.Error(err))
			}
			names[reqs[i].StudentID] = name
		}
		reqs[i].StudentName = name
	}
	return reqs, nil
}

// Approve moves a pending request to approved.
func (r *Reviewer) Approve(ctx context.Context, teacherID, requestID string) (JoinRequest, error) {
	return r.decide(ctx, teacherID, requestID, StatusApproved)
}

// Reject moves a pending request to rejected.
func (r *Reviewer) Reject(ctx context.Context, teacherID, requestID string) (JoinRequest, error) {
	return r.decide(ctx, teacherID, requestID, StatusRejected)
}

// decide applies a terminal status. Repeating the decision already stored
// succeeds without writing; reversing it fails with ErrAlreadyDecided.
func (r *Reviewer) decide(ctx context.Context, teacherID, requestID string, to Status) (JoinRequest, error) {
	jr, err := r.repo.GetJoinRequest(ctx, requestID)
	if err != nil {
		return JoinRequest{}, err
	}
	if _, err := r.ownedClass(ctx, teacherID, jr.ClassID); err != nil {
		return JoinRequest{}, err
	}

	updated, err := r.repo.DecideJoinRequest(ctx, requestID, to, r.now().UTC())
	if errors.Is(err, ErrNotPending) {
		if updated.Status == to {
			return updated, nil
		}
		return updated, fmt.Errorf("%w: request is %s", ErrAlreadyDecided, updated.Status)
	}
	if err != nil {
		return JoinRequest{}, err
	}

	metrics.Decisions.WithLabelValues(string(to)).Inc()
	r.log.Info("join request decided", zap.String("join_request_id", requestID), zap.String("status", string(to)))
	publish(ctx, r.events, r.log, EventDecided, Event{
		JoinRequestID: updated.ID,
		ClassID:       updated.ClassID,
		StudentID:     updated.StudentID,
		Status:        to,
	})
	return updated, nil
}

func (r *Reviewer) ownedClass(ctx context.Context, teacherID, classID string) (catalog.Class, error) {
	c, err := r.classes.GetClass(ctx, classID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return catalog.Class{}, ErrClassNotFound
		}
		return catalog.Class{}, err
	}
	if c.TeacherID != teacherID {
		return catalog.Class{}, ErrForbidden
	}
	return c, nil
}

// ClassEarnings summarizes one class for the earnings screen.
type ClassEarnings struct {
	ClassID       string  `json:"classId"`
	Name          string  `json:"name"`
	Code          string  `json:"code"`
	MonthlyFee    float64 `json:"monthlyFee"`
	Approved      int     `json:"approved"`
	Pending       int     `json:"pending"`
	Rejected      int     `json:"rejected"`
	Amount        float64 `json:"amount"`
	PendingAmount float64 `json:"pendingAmount"`
}

// Earnings is the teacher's monthly income across classes.
type Earnings struct {
	Classes       []ClassEarnings `json:"classes"`
	TotalStudents int             `json:"totalStudents"`
	TotalAmount   float64         `json:"totalAmount"`
	PendingAmount float64         `json:"pendingAmount"`
}

// Earnings totals approved students times monthly fee for each owned class.
func (r *Reviewer) Earnings(ctx context.Context, teacherID string) (Earnings, error) {
	classes, err := r.classes.ListClassesByTeacher(ctx, teacherID)
	if err != nil {
		return Earnings{}, err
	}
	out := Earnings{Classes: make([]ClassEarnings, 0, len(classes))}
	for _, c := range classes {
		reqs, err := r.repo.ListJoinRequests(ctx, RequestFilter{ClassID: c.ID})
		if err != nil {
			return Earnings{}, err
		}
		ce := ClassEarnings{ClassID: c.ID, Name: c.Name, Code: c.Code, MonthlyFee: c.MonthlyFee}
		for _, jr := range reqs {
			switch jr.Status {
			case StatusApproved:
				ce.Approved++
			case StatusPending:
				ce.Pending++
			case StatusRejected:
				ce.Rejected++
			}
		}
		ce.Amount = float64(ce.Approved) * c.MonthlyFee
		ce.PendingAmount = float64(ce.Pending) * c.MonthlyFee

		out.Classes = append(out.Classes, ce)
		out.TotalStudents += ce.Approved
		out.TotalAmount += ce.Amount
		out.PendingAmount += ce.PendingAmount
	}
	return out, nil
}
