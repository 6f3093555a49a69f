package enrollment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tuition/internal/catalog"
	"tuition/internal/logging"
	"tuition/internal/media"
	"tuition/internal/metrics"
	"tuition/internal/retry"
)

// Classes is the read side of the class catalog.
type Classes interface {
	GetClass(ctx context.Context, id string) (catalog.Class, error)
	ListClassesByTeacher(ctx context.Context, teacherID string) ([]catalog.Class, error)
}

// SubmitInput carries one join-request submission.
type SubmitInput struct {
	ClassID        string
	StudentID      string
	Form           JoinForm
	Screenshot     []byte
	ScreenshotName string
}

// Submission is the pair of records created by a successful Submit.
type Submission struct {
	JoinRequest JoinRequest `json:"joinRequest"`
	FeeRecord   FeeRecord   `json:"feeRecord"`
}

// Submitter turns a filled join form into stored records.
type Submitter interface {
	Submit(ctx context.Context, in SubmitInput) (Submission, error)
}

// Service implements the student side of enrollment.
type Service struct {
	classes  Classes
	repo     Repository
	recorder Recorder
	uploader *media.Uploader
	events   Publisher
	validate *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

// NewService wires the submitter. A nil recorder defaults to a
// SequentialRecorder over repo with the default retry policy.
func NewService(classes Classes, repo Repository, recorder Recorder, uploader *media.Uploader, events Publisher, log *zap.Logger) *Service {
	log = logging.OrNop(log)
	if recorder == nil {
		recorder = NewSequentialRecorder(repo, retry.Default())
	}
	if uploader == nil {
		uploader = media.NewUploader(nil, nil, retry.Default(), log)
	}
	return &Service{
		classes:  classes,
		repo:     repo,
		recorder: recorder,
		uploader: uploader,
		events:   events,
		validate: newValidator(),
		log:      log,
		now:      time.Now,
	}
}

// Submit validates the form, uploads the screenshot, then records the join
// request and its fee record. Nothing is rolled back when a later step fails.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (Submission, error) {
	if in.StudentID == "" {
		return Submission{}, errors.New("student id required")
	}
	form := in.Form.trimmed()
	if err := validateForm(s.validate, form, len(in.Screenshot) > 0); err != nil {
		metrics.Submissions.WithLabelValues("invalid").Inc()
		return Submission{}, err
	}
	data, name, err := s.uploader.Prepare(in.Screenshot, in.ScreenshotName)
	if err != nil {
		metrics.Submissions.WithLabelValues("invalid").Inc()
		return Submission{}, &ValidationError{
			Message: "payment screenshot must be an image",
			Fields:  map[string]string{"screenshot": "unsupported image format"},
		}
	}

	if _, err := s.classes.GetClass(ctx, in.ClassID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Submission{}, ErrClassNotFound
		}
		return Submission{}, fmt.Errorf("load class: %w", err)
	}

	url, err := s.uploader.Upload(ctx, data, name)
	if err != nil {
		metrics.Submissions.WithLabelValues("failed").Inc()
		s.log.Error("screenshot upload failed", zap.String("class_id", in.ClassID), zap.String("student_id", in.StudentID), zap.Error(err))
		return Submission{}, &StepError{Step: StepUpload, Err: err}
	}

	now := s.now().UTC()
	jr := JoinRequest{
		ID:          uuid.NewString(),
		ClassID:     in.ClassID,
		StudentID:   in.StudentID,
		StudentName: form.Name,
		Phone:       form.Phone,
		RollNumber:  form.RollNumber,
		Gender:      form.Gender,
		Status:      StatusPending,
		RequestedAt: now,
	}
	fr := FeeRecord{
		ID:            uuid.NewString(),
		ClassID:       in.ClassID,
		StudentID:     in.StudentID,
		JoinRequestID: jr.ID,
		TransactionID: form.TransactionID,
		ScreenshotURL: url,
		CreatedAt:     now,
	}
	ev := Event{JoinRequestID: jr.ID, ClassID: jr.ClassID, StudentID: jr.StudentID, Status: StatusPending}

	if err := s.recorder.Record(ctx, jr, fr); err != nil {
		var se *StepError
		if errors.As(err, &se) && se.Partial {
			metrics.Submissions.WithLabelValues("partial").Inc()
			ev.Step, ev.Error = se.Step, se.Err.Error()
			publish(ctx, s.events, s.log, EventPartial, ev)
		} else {
			metrics.Submissions.WithLabelValues("failed").Inc()
		}
		s.log.Error("join request submission failed", zap.String("join_request_id", jr.ID), zap.Error(err))
		return Submission{}, err
	}

	metrics.Submissions.WithLabelValues("ok").Inc()
	s.log.Info("join request submitted", zap.String("join_request_id", jr.ID), zap.String("class_id", jr.ClassID))
	publish(ctx, s.events, s.log, EventSubmitted, ev)
	return Submission{JoinRequest: jr, FeeRecord: fr}, nil
}

// StudentRequests lists a student's own join requests, newest first.
func (s *Service) StudentRequests(ctx context.Context, studentID string) ([]JoinRequest, error) {
	reqs, err := s.repo.ListJoinRequests(ctx, RequestFilter{StudentID: studentID})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(reqs, func(i, j int) bool { return reqs[i].RequestedAt.After(reqs[j].RequestedAt) })
	return reqs, nil
}

// StudentFees lists a student's fee records, newest first.
func (s *Service) StudentFees(ctx context.Context, studentID string) ([]FeeRecord, error) {
	fees, err := s.repo.ListFeeRecords(ctx, FeeFilter{StudentID: studentID})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(fees, func(i, j int) bool { return fees[i].CreatedAt.After(fees[j].CreatedAt) })
	return fees, nil
}
