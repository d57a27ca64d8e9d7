package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-ledger/internal/model"
)

type mockMembers struct {
	mock.Mock
}

func (m *mockMembers) Add(ctx context.Context, member model.Member) error {
	return m.Called(ctx, member).Error(0)
}

func (m *mockMembers) IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, projectID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockMembers) ProjectsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func TestCanViewCachesAnswers(t *testing.T) {
	ctx := context.Background()
	members := new(mockMembers)
	viewer, project, other := uuid.New(), uuid.New(), uuid.New()

	members.On("IsMember", ctx, project, viewer).Return(true, nil).Once()
	members.On("IsMember", ctx, other, viewer).Return(false, nil).Once()

	a := NewMembershipAuthorizer(members, time.Minute)
	for i := 0; i < 3; i++ {
		ok, err := a.CanView(ctx, viewer, project)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = a.CanView(ctx, viewer, other)
		require.NoError(t, err)
		assert.False(t, ok)
	}

	members.AssertExpectations(t)
}

func TestInvalidateForcesLookup(t *testing.T) {
	ctx := context.Background()
	members := new(mockMembers)
	viewer, project := uuid.New(), uuid.New()

	members.On("IsMember", ctx, project, viewer).Return(false, nil).Once()
	members.On("IsMember", ctx, project, viewer).Return(true, nil).Once()

	a := NewMembershipAuthorizer(members, time.Minute)
	ok, err := a.CanView(ctx, viewer, project)
	require.NoError(t, err)
	assert.False(t, ok)

	a.Invalidate(viewer, project)
	ok, err = a.CanView(ctx, viewer, project)
	require.NoError(t, err)
	assert.True(t, ok)

	members.AssertExpectations(t)
}

func TestCanViewDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	members := new(mockMembers)
	viewer, project := uuid.New(), uuid.New()

	members.On("IsMember", ctx, project, viewer).Return(false, errors.New("db down")).Once()
	members.On("IsMember", ctx, project, viewer).Return(true, nil).Once()

	a := NewMembershipAuthorizer(members, time.Minute)
	_, err := a.CanView(ctx, viewer, project)
	assert.Error(t, err)

	ok, err := a.CanView(ctx, viewer, project)
	require.NoError(t, err)
	assert.True(t, ok)
}
