package enrollment

import (
	"context"
	"errors"
	"fmt"

	"tuition/internal/metrics"
	"tuition/internal/retry"
)

// Submission steps, in the order they run.
const (
	StepUpload      = "upload"
	StepJoinRequest = "join_request"
	StepFeeRecord   = "fee_record"
	StepRecord      = "record"
)

// StepError reports which remote step of a submission failed. Partial is
// set when an earlier write already persisted and was left in place.
type StepError struct {
	Step    string
	Partial bool
	Err     error
}

func (e *StepError) Error() string {
	if e.Partial {
		return fmt.Sprintf("%s failed after earlier writes persisted: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Recorder persists the two records of a submission.
type Recorder interface {
	Record(ctx context.Context, jr JoinRequest, fr FeeRecord) error
}

// SequentialRecorder writes the join request, then the fee record, each
// under its own retry budget. A fee record failure leaves the join request
// in place.
type SequentialRecorder struct {
	repo   Repository
	policy retry.Policy
}

func NewSequentialRecorder(repo Repository, policy retry.Policy) *SequentialRecorder {
	return &SequentialRecorder{repo: repo, policy: policy}
}

func (r *SequentialRecorder) Record(ctx context.Context, jr JoinRequest, fr FeeRecord) error {
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		return countAttempt(StepJoinRequest, ignoreDuplicate(r.repo.InsertJoinRequest(ctx, jr)))
	})
	if err != nil {
		return &StepError{Step: StepJoinRequest, Err: err}
	}

	err = retry.Do(ctx, r.policy, func(ctx context.Context) error {
		return countAttempt(StepFeeRecord, ignoreDuplicate(r.repo.InsertFeeRecord(ctx, fr)))
	})
	if err != nil {
		return &StepError{Step: StepFeeRecord, Partial: true, Err: err}
	}
	return nil
}

// SubmissionWriter stores both records in a single transaction.
type SubmissionWriter interface {
	InsertSubmission(ctx context.Context, jr JoinRequest, fr FeeRecord) error
}

// AtomicRecorder writes both records at once, so a failure never leaves a
// join request without its fee record.
type AtomicRecorder struct {
	w      SubmissionWriter
	policy retry.Policy
}

func NewAtomicRecorder(w SubmissionWriter, policy retry.Policy) *AtomicRecorder {
	return &AtomicRecorder{w: w, policy: policy}
}

func (r *AtomicRecorder) Record(ctx context.Context, jr JoinRequest, fr FeeRecord) error {
	err := retry.Do(ctx, r.policy, func(ctx context.Context) error {
		return countAttempt(StepRecord, ignoreDuplicate(r.w.InsertSubmission(ctx, jr, fr)))
	})
	if err != nil {
		return &StepError{Step: StepRecord, Err: err}
	}
	return nil
}

// Ids are generated before the first attempt, so a duplicate on retry means
// an earlier attempt landed even though its response was lost.
func ignoreDuplicate(err error) error {
	if errors.Is(err, ErrDuplicate) {
		return nil
	}
	return err
}

func countAttempt(op string, err error) error {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RemoteAttempts.WithLabelValues(op, outcome).Inc()
	return err
}
