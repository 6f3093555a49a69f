package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tuition/internal/catalog"
	"tuition/internal/enrollment"
	"tuition/internal/identity"
	"tuition/internal/store/storetest"
)

func TestRepositoryBehaviour(t *testing.T) {
	storetest.Run(t, New())
}

func TestUsersUniqueEmail(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InsertUser(ctx, identity.User{ID: "u1", Email: "a@b.co"}))
	assert.ErrorIs(t, s.InsertUser(ctx, identity.User{ID: "u2", Email: "a@b.co"}), identity.ErrEmailTaken)

	u, err := s.GetUserByEmail(ctx, "a@b.co")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	_, err = s.GetUser(ctx, "u2")
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestClassesUniqueCode(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()
	require.NoError(t, s.InsertClass(ctx, catalog.Class{ID: "c1", Code: "ABC123", TeacherID: "t1", CreatedAt: now}))
	require.NoError(t, s.InsertClass(ctx, catalog.Class{ID: "c2", Code: "XYZ789", TeacherID: "t1", CreatedAt: now.Add(time.Second)}))
	assert.ErrorIs(t, s.InsertClass(ctx, catalog.Class{ID: "c3", Code: "ABC123"}), catalog.ErrDuplicate)

	list, err := s.ListClassesByTeacher(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "c2", list[0].ID, "newest first")

	assert.ErrorIs(t, s.UpdateClassFee(ctx, "missing", 1), catalog.ErrNotFound)
}

func TestInsertSubmissionAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InsertFeeRecord(ctx, enrollment.FeeRecord{ID: "f1"}))

	err := s.InsertSubmission(ctx, enrollment.JoinRequest{ID: "r1"}, enrollment.FeeRecord{ID: "f1"})
	assert.ErrorIs(t, err, enrollment.ErrDuplicate)
	_, err = s.GetJoinRequest(ctx, "r1")
	assert.ErrorIs(t, err, enrollment.ErrNotFound, "join request must not be written alone")
}

func TestDecideOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.InsertJoinRequest(ctx, enrollment.JoinRequest{ID: "r1", Status: enrollment.StatusPending}))

	at := time.Now()
	jr, err := s.DecideJoinRequest(ctx, "r1", enrollment.StatusRejected, at)
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusRejected, jr.Status)

	jr, err = s.DecideJoinRequest(ctx, "r1", enrollment.StatusApproved, at)
	assert.ErrorIs(t, err, enrollment.ErrNotPending)
	assert.Equal(t, enrollment.StatusRejected, jr.Status)

	_, err = s.DecideJoinRequest(ctx, "nope", enrollment.StatusApproved, at)
	assert.ErrorIs(t, err, enrollment.ErrNotFound)
}
