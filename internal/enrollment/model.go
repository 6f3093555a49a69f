package enrollment

import (
	"context"
	"errors"
	"time"
)

// Status is the lifecycle state of a join request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

var (
	ErrNotFound       = errors.New("join request not found")
	ErrDuplicate      = errors.New("record already exists")
	ErrNotPending     = errors.New("join request is no longer pending")
	ErrAlreadyDecided = errors.New("join request was already decided")
	ErrForbidden      = errors.New("class belongs to another teacher")
	ErrClassNotFound  = errors.New("class not found")
)

// JoinRequest is a student's application to enroll in a class.
type JoinRequest struct {
	ID          string     `json:"id" bson:"_id"`
	ClassID     string     `json:"classId" bson:"classId"`
	StudentID   string     `json:"studentId" bson:"studentId"`
	StudentName string     `json:"studentName" bson:"studentName"`
	Phone       string     `json:"phone" bson:"phone"`
	RollNumber  string     `json:"rollNumber" bson:"rollNumber"`
	Gender      string     `json:"gender" bson:"gender"`
	Status      Status     `json:"status" bson:"status"`
	RequestedAt time.Time  `json:"requestedAt" bson:"requestedAt"`
	DecidedAt   *time.Time `json:"decidedAt,omitempty" bson:"decidedAt,omitempty"`
}

// FeeRecord is the payment proof submitted with a join request.
type FeeRecord struct {
	ID            string    `json:"id" bson:"_id"`
	ClassID       string    `json:"classId" bson:"classId"`
	StudentID     string    `json:"studentId" bson:"studentId"`
	JoinRequestID string    `json:"joinRequestId" bson:"joinRequestId"`
	TransactionID string    `json:"transactionId" bson:"transactionId"`
	ScreenshotURL string    `json:"screenshotUrl" bson:"screenshotUrl"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
}

// RequestFilter narrows ListJoinRequests. Empty fields match everything.
type RequestFilter struct {
	ClassID   string
	StudentID string
	Status    Status
}

// FeeFilter narrows ListFeeRecords. Empty fields match everything.
type FeeFilter struct {
	ClassID       string
	StudentID     string
	JoinRequestID string
}

// Repository persists join requests and fee records.
type Repository interface {
	InsertJoinRequest(ctx context.Context, jr JoinRequest) error
	InsertFeeRecord(ctx context.Context, fr FeeRecord) error
	GetJoinRequest(ctx context.Context, id string) (JoinRequest, error)
	ListJoinRequests(ctx context.Context, f RequestFilter) ([]JoinRequest, error)
	ListFeeRecords(ctx context.Context, f FeeFilter) ([]FeeRecord, error)
	// DecideJoinRequest moves a pending request to status. When the request
	// is not pending it returns the stored request and ErrNotPending.
	DecideJoinRequest(ctx context.Context, id string, status Status, at time.Time) (JoinRequest, error)
}
