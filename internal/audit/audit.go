// Package audit consumes join-request events and flags submissions whose
// fee record never landed.
package audit

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"tuition/internal/enrollment"
	"tuition/internal/logging"
	"tuition/internal/metrics"
	"tuition/internal/queue"
)

// Finding kinds, also used as metric labels.
const (
	KindMissingFee     = "missing_fee"
	KindPartial        = "partial"
	KindMissingRequest = "missing_request"
)

// Records is the read side of the enrollment store.
type Records interface {
	GetJoinRequest(ctx context.Context, id string) (enrollment.JoinRequest, error)
	ListFeeRecords(ctx context.Context, f enrollment.FeeFilter) ([]enrollment.FeeRecord, error)
}

// Finding describes one inconsistency found for a join request.
type Finding struct {
	Kind          string
	JoinRequestID string
	ClassID       string
	StudentID     string
	Detail        string
}

// Auditor checks each event against the store.
type Auditor struct {
	records Records
	log     *zap.Logger
	// OnFinding, when set, receives every finding after it is logged.
	OnFinding func(Finding)
}

func New(records Records, log *zap.Logger) *Auditor {
	return &Auditor{records: records, log: logging.OrNop(log)}
}

// Run handles messages until ctx is cancelled or the queue closes.
func (a *Auditor) Run(ctx context.Context, q queue.Queue) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init failed: %w", err)
	}
	a.log.Info("auditor started, waiting for messages")
	for msg := range messages {
		if err := a.Handle(ctx, msg); err != nil {
			a.log.Warn("audit message failed", zap.String("type", msg.Type), zap.Error(err))
		}
	}
	a.log.Info("auditor stopped")
	return ctx.Err()
}

// Handle processes one message. Unknown types are ignored.
func (a *Auditor) Handle(ctx context.Context, msg queue.Message) error {
	switch msg.Type {
	case enrollment.EventSubmitted, enrollment.EventPartial, enrollment.EventDecided:
	default:
		return nil
	}
	ev, err := enrollment.DecodeEvent(msg.Body)
	if err != nil {
		return fmt.Errorf("decode %s: %w", msg.Type, err)
	}

	switch msg.Type {
	case enrollment.EventSubmitted:
		return a.checkFee(ctx, ev)
	case enrollment.EventPartial:
		// The partial finding already covers the missing fee record.
		a.report(Finding{
			Kind:          KindPartial,
			JoinRequestID: ev.JoinRequestID,
			ClassID:       ev.ClassID,
			StudentID:     ev.StudentID,
			Detail:        fmt.Sprintf("step %s failed: %s", ev.Step, ev.Error),
		})
		return nil
	default:
		a.log.Info("join request decided",
			zap.String("join_request_id", ev.JoinRequestID),
			zap.String("class_id", ev.ClassID),
			zap.String("status", string(ev.Status)))
		return nil
	}
}

func (a *Auditor) checkFee(ctx context.Context, ev enrollment.Event) error {
	if _, err := a.records.GetJoinRequest(ctx, ev.JoinRequestID); err != nil {
		if errors.Is(err, enrollment.ErrNotFound) {
			a.report(Finding{Kind: KindMissingRequest, JoinRequestID: ev.JoinRequestID, ClassID: ev.ClassID, StudentID: ev.StudentID})
			return nil
		}
		return err
	}
	fees, err := a.records.ListFeeRecords(ctx, enrollment.FeeFilter{JoinRequestID: ev.JoinRequestID})
	if err != nil {
		return err
	}
	if len(fees) == 0 {
		a.report(Finding{Kind: KindMissingFee, JoinRequestID: ev.JoinRequestID, ClassID: ev.ClassID, StudentID: ev.StudentID})
	}
	return nil
}

func (a *Auditor) report(f Finding) {
	metrics.AuditFindings.WithLabelValues(f.Kind).Inc()
	a.log.Warn("submission audit finding",
		zap.String("kind", f.Kind),
		zap.String("join_request_id", f.JoinRequestID),
		zap.String("class_id", f.ClassID),
		zap.String("student_id", f.StudentID),
		zap.String("detail", f.Detail))
	if a.OnFinding != nil {
		a.OnFinding(f)
	}
}
