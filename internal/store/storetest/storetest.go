// Package storetest runs the same repository checks against every store
// backend.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuition/internal/catalog"
	"tuition/internal/enrollment"
	"tuition/internal/identity"
)

// Store is the full set of repository methods a backend provides.
type Store interface {
	identity.Repository
	catalog.Repository
	enrollment.Repository
	enrollment.SubmissionWriter
}

// Run exercises s. Ids are random so shared databases can be reused
// between runs.
func Run(t *testing.T, s Store) {
	t.Run("users unique email", func(t *testing.T) { usersUniqueEmail(t, s) })
	t.Run("classes unique code", func(t *testing.T) { classesUniqueCode(t, s) })
	t.Run("submission all or nothing", func(t *testing.T) { submissionAllOrNothing(t, s) })
	t.Run("submission writes both", func(t *testing.T) { submissionWritesBoth(t, s) })
	t.Run("decide only from pending", func(t *testing.T) { decideOnlyFromPending(t, s) })
	t.Run("request filters", func(t *testing.T) { requestFilters(t, s) })
}

func id(prefix string) string { return prefix + "-" + uuid.NewString() }

func joinRequest(classID, studentID string, at time.Time) enrollment.JoinRequest {
	return enrollment.JoinRequest{
		ID: id("jr"), ClassID: classID, StudentID: studentID, StudentName: "Asha",
		Phone: "9876543210", RollNumber: "12", Gender: "female",
		Status: enrollment.StatusPending, RequestedAt: at,
	}
}

func feeRecord(jr enrollment.JoinRequest) enrollment.FeeRecord {
	return enrollment.FeeRecord{
		ID: id("fee"), ClassID: jr.ClassID, StudentID: jr.StudentID, JoinRequestID: jr.ID,
		TransactionID: "TX1", ScreenshotURL: "https://img.example/proof.jpg", CreatedAt: jr.RequestedAt,
	}
}

func usersUniqueEmail(t *testing.T, s Store) {
	ctx := context.Background()
	email := id("user") + "@example.com"
	u := identity.User{ID: id("u"), FullName: "Asha", Email: email, Role: "student", PasswordHash: "x", CreatedAt: time.Now()}
	require.NoError(t, s.InsertUser(ctx, u))

	dup := u
	dup.ID = id("u")
	assert.ErrorIs(t, s.InsertUser(ctx, dup), identity.ErrEmailTaken)

	got, err := s.GetUserByEmail(ctx, email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = s.GetUser(ctx, dup.ID)
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func classesUniqueCode(t *testing.T, s Store) {
	ctx := context.Background()
	teacher := id("t")
	now := time.Now()
	first := catalog.Class{ID: id("c"), Code: id("A"), Name: "Algebra", Subject: "Math", MonthlyFee: 500, TeacherID: teacher, CreatedAt: now}
	second := catalog.Class{ID: id("c"), Code: id("B"), Name: "Physics", Subject: "Science", MonthlyFee: 700, TeacherID: teacher, CreatedAt: now.Add(time.Second)}
	require.NoError(t, s.InsertClass(ctx, first))
	require.NoError(t, s.InsertClass(ctx, second))

	clash := catalog.Class{ID: id("c"), Code: first.Code, Name: "X", Subject: "Y", TeacherID: teacher, CreatedAt: now}
	assert.ErrorIs(t, s.InsertClass(ctx, clash), catalog.ErrDuplicate)

	list, err := s.ListClassesByTeacher(ctx, teacher)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")

	require.NoError(t, s.UpdateClassFee(ctx, first.ID, 650))
	got, err := s.GetClassByCode(ctx, first.Code)
	require.NoError(t, err)
	assert.Equal(t, 650.0, got.MonthlyFee)
	assert.ErrorIs(t, s.UpdateClassFee(ctx, id("missing"), 1), catalog.ErrNotFound)
}

func submissionAllOrNothing(t *testing.T, s Store) {
	ctx := context.Background()
	jr := joinRequest(id("c"), id("s"), time.Now())
	taken := feeRecord(jr)
	require.NoError(t, s.InsertFeeRecord(ctx, taken))

	err := s.InsertSubmission(ctx, jr, taken)
	assert.ErrorIs(t, err, enrollment.ErrDuplicate)
	_, err = s.GetJoinRequest(ctx, jr.ID)
	assert.ErrorIs(t, err, enrollment.ErrNotFound, "join request must not be written alone")
}

func submissionWritesBoth(t *testing.T, s Store) {
	ctx := context.Background()
	jr := joinRequest(id("c"), id("s"), time.Now())
	fr := feeRecord(jr)
	require.NoError(t, s.InsertSubmission(ctx, jr, fr))

	got, err := s.GetJoinRequest(ctx, jr.ID)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusPending, got.Status)
	assert.Nil(t, got.DecidedAt)

	fees, err := s.ListFeeRecords(ctx, enrollment.FeeFilter{JoinRequestID: jr.ID})
	require.NoError(t, err)
	require.Len(t, fees, 1)
	assert.Equal(t, fr.ID, fees[0].ID)

	assert.ErrorIs(t, s.InsertJoinRequest(ctx, jr), enrollment.ErrDuplicate)
}

func decideOnlyFromPending(t *testing.T, s Store) {
	ctx := context.Background()
	jr := joinRequest(id("c"), id("s"), time.Now())
	require.NoError(t, s.InsertJoinRequest(ctx, jr))

	at := time.Now()
	got, err := s.DecideJoinRequest(ctx, jr.ID, enrollment.StatusRejected, at)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusRejected, got.Status)
	require.NotNil(t, got.DecidedAt)
	assert.WithinDuration(t, at, *got.DecidedAt, time.Second)

	got, err = s.DecideJoinRequest(ctx, jr.ID, enrollment.StatusApproved, at)
	assert.ErrorIs(t, err, enrollment.ErrNotPending)
	assert.Equal(t, enrollment.StatusRejected, got.Status)

	_, err = s.DecideJoinRequest(ctx, id("missing"), enrollment.StatusApproved, at)
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
}

func requestFilters(t *testing.T, s Store) {
	ctx := context.Background()
	classID := id("c")
	now := time.Now()
	a := joinRequest(classID, id("s"), now)
	b := joinRequest(classID, id("s"), now.Add(time.Second))
	other := joinRequest(id("c"), a.StudentID, now)
	for _, jr := range []enrollment.JoinRequest{a, b, other} {
		require.NoError(t, s.InsertSubmission(ctx, jr, feeRecord(jr)))
	}
	_, err := s.DecideJoinRequest(ctx, b.ID, enrollment.StatusApproved, now)
	require.NoError(t, err)

	all, err := s.ListJoinRequests(ctx, enrollment.RequestFilter{ClassID: classID})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, a.ID, all[0].ID, "oldest first")

	pending, err := s.ListJoinRequests(ctx, enrollment.RequestFilter{ClassID: classID, Status: enrollment.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	mine, err := s.ListJoinRequests(ctx, enrollment.RequestFilter{StudentID: a.StudentID})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	fees, err := s.ListFeeRecords(ctx, enrollment.FeeFilter{ClassID: classID})
	require.NoError(t, err)
	assert.Len(t, fees, 2)
}
