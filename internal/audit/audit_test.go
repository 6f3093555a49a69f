package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuition/internal/audit"
	"tuition/internal/catalog"
	"tuition/internal/enrollment"
	"tuition/internal/media"
	"tuition/internal/queue"
	"tuition/internal/retry"
	"tuition/internal/store/memory"
)

func message(t *testing.T, typ string, ev enrollment.Event) queue.Message {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return queue.Message{Type: typ, Body: body}
}

func TestHandle(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	now := time.Now()

	require.NoError(t, st.InsertSubmission(ctx,
		enrollment.JoinRequest{ID: "complete", ClassID: "c1", StudentID: "s1", Status: enrollment.StatusPending, RequestedAt: now},
		enrollment.FeeRecord{ID: "f1", ClassID: "c1", StudentID: "s1", JoinRequestID: "complete", CreatedAt: now}))
	require.NoError(t, st.InsertJoinRequest(ctx,
		enrollment.JoinRequest{ID: "half", ClassID: "c1", StudentID: "s2", Status: enrollment.StatusPending, RequestedAt: now}))

	tests := []struct {
		name  string
		msg   queue.Message
		kinds []string
	}{
		{name: "complete submission", msg: message(t, enrollment.EventSubmitted, enrollment.Event{JoinRequestID: "complete"})},
		{name: "fee missing", msg: message(t, enrollment.EventSubmitted, enrollment.Event{JoinRequestID: "half"}), kinds: []string{audit.KindMissingFee}},
		{name: "partial reported", msg: message(t, enrollment.EventPartial, enrollment.Event{JoinRequestID: "half", Step: "fee_record", Error: "boom"}),
			kinds: []string{audit.KindPartial}},
		{name: "request missing", msg: message(t, enrollment.EventSubmitted, enrollment.Event{JoinRequestID: "ghost"}), kinds: []string{audit.KindMissingRequest}},
		{name: "decided is only logged", msg: message(t, enrollment.EventDecided, enrollment.Event{JoinRequestID: "half", Status: enrollment.StatusApproved})},
		{name: "unknown type ignored", msg: queue.Message{Type: "other", Body: []byte(`not json`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			a := audit.New(st, nil)
			a.OnFinding = func(f audit.Finding) { got = append(got, f.Kind) }
			require.NoError(t, a.Handle(ctx, tt.msg))
			assert.Equal(t, tt.kinds, got)
		})
	}
}

func TestHandleRejectsBadBody(t *testing.T) {
	a := audit.New(memory.New(), nil)
	err := a.Handle(context.Background(), queue.Message{Type: enrollment.EventSubmitted, Body: []byte(`{`)})
	assert.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := queue.NewInMemory(4)
	st := memory.New()

	found := make(chan audit.Finding, 1)
	a := audit.New(st, nil)
	a.OnFinding = func(f audit.Finding) { found <- f }

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, q) }()

	require.NoError(t, q.Publish(ctx, message(t, enrollment.EventSubmitted, enrollment.Event{JoinRequestID: "ghost"})))
	select {
	case f := <-found:
		assert.Equal(t, audit.KindMissingRequest, f.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no finding")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}

type okHost struct{}

func (okHost) Upload(_ context.Context, _ []byte, name string) (string, error) {
	return "https://img.example/" + name, nil
}

// downFees rejects every fee record insert.
type downFees struct{ *memory.Store }

func (downFees) InsertFeeRecord(context.Context, enrollment.FeeRecord) error {
	return errors.New("store unavailable")
}

func TestRunAuditsPartialSubmissionInProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := memory.New()
	require.NoError(t, st.InsertClass(ctx, catalog.Class{ID: "c1", Code: "ABC123", Name: "Algebra", Subject: "Math", MonthlyFee: 500, TeacherID: "t1", CreatedAt: time.Now()}))

	q := queue.NewInMemory(4)
	found := make(chan audit.Finding, 4)
	a := audit.New(st, nil)
	a.OnFinding = func(f audit.Finding) { found <- f }
	go func() { _ = a.Run(ctx, q) }()

	var shot bytes.Buffer
	require.NoError(t, png.Encode(&shot, image.NewRGBA(image.Rect(0, 0, 4, 4))))

	policy := retry.Policy{Attempts: 2, Delay: retry.NoDelay()}
	repo := downFees{st}
	svc := enrollment.NewService(st, repo, enrollment.NewSequentialRecorder(repo, policy),
		media.NewUploader(okHost{}, nil, policy, nil), q, nil)

	_, err := svc.Submit(ctx, enrollment.SubmitInput{
		ClassID:   "c1",
		StudentID: "s1",
		Form: enrollment.JoinForm{
			Name: "Asha", Phone: "9876543210", RollNumber: "12", Gender: "female", TransactionID: "TX1",
		},
		Screenshot:     shot.Bytes(),
		ScreenshotName: "proof.png",
	})
	var se *enrollment.StepError
	require.ErrorAs(t, err, &se)
	require.True(t, se.Partial)

	select {
	case f := <-found:
		assert.Equal(t, audit.KindPartial, f.Kind)
		assert.Equal(t, "c1", f.ClassID)
		assert.Equal(t, "s1", f.StudentID)
		assert.NotEmpty(t, f.JoinRequestID)
	case <-time.After(2 * time.Second):
		t.Fatal("partial submission was not audited")
	}
	select {
	case f := <-found:
		t.Fatalf("unexpected extra finding %s", f.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}
