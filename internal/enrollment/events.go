package enrollment

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"tuition/internal/queue"
)

// Queue message types emitted by this package.
const (
	EventSubmitted = "join_request.submitted"
	EventPartial   = "join_request.partial"
	EventDecided   = "join_request.decided"
)

// Event is the JSON body of every join-request queue message.
type Event struct {
	JoinRequestID string `json:"joinRequestId"`
	ClassID       string `json:"classId"`
	StudentID     string `json:"studentId"`
	Status        Status `json:"status,omitempty"`
	Step          string `json:"step,omitempty"`
	Error         string `json:"error,omitempty"`
}

// DecodeEvent parses a queue message body.
func DecodeEvent(body []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(body, &ev)
	return ev, err
}

// Publisher is the sending half of a queue.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// publish never fails the caller; the queue is best effort.
func publish(ctx context.Context, p Publisher, log *zap.Logger, typ string, ev Event) {
	if p == nil {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		log.Error("encode event", zap.String("type", typ), zap.Error(err))
		return
	}
	if err := p.Publish(ctx, queue.Message{Type: typ, Body: body}); err != nil {
		log.Warn("queue publish failed", zap.String("type", typ), zap.String("join_request_id", ev.JoinRequestID), zap.Error(err))
	}
}
