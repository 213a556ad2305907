package clash

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"planboard/internal/downtime"
	"planboard/internal/model"
)

type mockPersister struct {
	mock.Mock
}

func (m *mockPersister) CreateDowntime(ctx context.Context, d *downtime.Downtime, resolution Resolution) (*downtime.Downtime, error) {
	args := m.Called(ctx, d, resolution)
	created, _ := args.Get(0).(*downtime.Downtime)
	return created, args.Error(1)
}

type mockRefresher struct {
	mock.Mock
}

func (m *mockRefresher) RefreshDowntimes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type commandFixture struct {
	finder    *mockFinder
	persister *mockPersister
	refresher *mockRefresher
	proposed  *downtime.Downtime
	cmd       *CreateDowntimeCommand
}

func newCommand(proposed *downtime.Downtime) *commandFixture {
	f := &commandFixture{
		finder:    new(mockFinder),
		persister: new(mockPersister),
		refresher: new(mockRefresher),
		proposed:  proposed,
	}
	f.cmd = NewCreateDowntimeCommand(proposed, f.finder, f.persister, f.refresher, nil)
	return f
}

func TestFSMTransitions(t *testing.T) {
	fsm := NewFSM()

	tests := []struct {
		name        string
		from        State
		to          State
		shouldAllow bool
	}{
		{"building to validated", StateBuilding, StateValidated, true},
		{"building to invalid", StateBuilding, StateInvalid, true},
		{"validated to no clash", StateValidated, StateNoClash, true},
		{"validated to has clashes", StateValidated, StateHasClashes, true},
		{"has clashes to keep", StateHasClashes, StateResolvedKeep, true},
		{"has clashes to delete", StateHasClashes, StateResolvedDelete, true},
		{"has clashes to cancelled", StateHasClashes, StateCancelled, true},
		{"no clash to executed", StateNoClash, StateExecuted, true},
		{"resolved keep to executed", StateResolvedKeep, StateExecuted, true},
		// Invalid transitions
		{"building to executed", StateBuilding, StateExecuted, false},
		{"no clash to cancelled", StateNoClash, StateCancelled, false},
		{"cancelled to executed", StateCancelled, StateExecuted, false},
		{"invalid to validated", StateInvalid, StateValidated, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.shouldAllow, fsm.CanTransition(tt.from, tt.to))
		})
	}
}

func TestCommand_NoClash(t *testing.T) {
	f := newCommand(proposal(wednesday, wednesday, 540, 600, berlin))
	created := f.proposed.Clone()
	created.ID = 11

	f.finder.On("Find", mock.Anything, f.proposed).Return([]model.Clash{}, nil)
	f.persister.On("CreateDowntime", mock.Anything, f.proposed, ResolutionNone).Return(created, nil)
	f.refresher.On("RefreshDowntimes", mock.Anything).Return(nil)

	require.NoError(t, f.cmd.Validate())
	clashes, err := f.cmd.FindClashes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, clashes)
	assert.Equal(t, StateNoClash, f.cmd.State())

	require.NoError(t, f.cmd.Execute(context.Background()))
	assert.Equal(t, StateExecuted, f.cmd.State())
	assert.Equal(t, int64(11), f.cmd.Created().ID)

	f.persister.AssertExpectations(t)
	f.refresher.AssertExpectations(t)
}

func TestCommand_Decisions(t *testing.T) {
	tests := []struct {
		decision   Decision
		wantState  State
		resolution Resolution
		persists   bool
	}{
		{DecisionWaitingList, StateExecuted, ResolutionWaitingList, true},
		{DecisionDelete, StateExecuted, ResolutionDelete, true},
		{DecisionCancel, StateCancelled, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.decision), func(t *testing.T) {
			f := newCommand(proposal(wednesday, wednesday, 540, 600, berlin))
			f.finder.On("Find", mock.Anything, f.proposed).Return([]model.Clash{{BookingID: 3}}, nil)
			if tt.persists {
				f.persister.On("CreateDowntime", mock.Anything, f.proposed, tt.resolution).Return(f.proposed, nil)
				f.refresher.On("RefreshDowntimes", mock.Anything).Return(nil)
			}

			var seen []model.Clash
			err := f.cmd.Run(context.Background(), func(c []model.Clash) Decision {
				seen = c
				return tt.decision
			})
			require.NoError(t, err)

			assert.Equal(t, []int64{3}, clashIDs(seen))
			assert.Equal(t, tt.wantState, f.cmd.State())
			f.persister.AssertExpectations(t)
			if !tt.persists {
				f.persister.AssertNotCalled(t, "CreateDowntime", mock.Anything, mock.Anything, mock.Anything)
				f.refresher.AssertNotCalled(t, "RefreshDowntimes", mock.Anything)
			}
		})
	}
}

func TestCommand_FinderErrorIsNotNoClash(t *testing.T) {
	f := newCommand(proposal(wednesday, wednesday, 540, 600, berlin))
	f.finder.On("Find", mock.Anything, f.proposed).Return(nil, errors.New("timeout"))

	require.NoError(t, f.cmd.Validate())
	clashes, err := f.cmd.FindClashes(context.Background())
	assert.Nil(t, clashes)
	assert.ErrorIs(t, err, ErrClashesUnknown)
	assert.Equal(t, StateValidated, f.cmd.State())

	err = f.cmd.Execute(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	f.persister.AssertNotCalled(t, "CreateDowntime", mock.Anything, mock.Anything, mock.Anything)
}

func TestCommand_RemoteErrorNotWrappedTwice(t *testing.T) {
	client := new(mockRemoteClient)
	p := proposal(wednesday, wednesday, 540, 600, berlin)
	client.On("Clashes", mock.Anything, p).Return(nil, errors.New("503"))

	cmd := NewCreateDowntimeCommand(p, NewRemoteFinder(client), new(mockPersister), new(mockRefresher), nil)
	require.NoError(t, cmd.Validate())
	_, err := cmd.FindClashes(context.Background())
	require.ErrorIs(t, err, ErrClashesUnknown)
	assert.Equal(t, ErrClashesUnknown.Error()+": 503", err.Error())
}

func TestCommand_Invalid(t *testing.T) {
	f := newCommand(proposal(wednesday, wednesday, 600, 540, berlin))

	err := f.cmd.Validate()
	assert.ErrorIs(t, err, downtime.ErrInvalid)
	assert.Equal(t, StateInvalid, f.cmd.State())
	assert.True(t, f.cmd.State().Terminal())

	_, err = f.cmd.FindClashes(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCommand_ResolveWithoutClashes(t *testing.T) {
	f := newCommand(proposal(wednesday, wednesday, 540, 600, berlin))
	f.finder.On("Find", mock.Anything, f.proposed).Return(nil, nil)

	require.NoError(t, f.cmd.Validate())
	_, err := f.cmd.FindClashes(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, f.cmd.Resolve(DecisionDelete), ErrInvalidTransition)
	assert.Equal(t, StateNoClash, f.cmd.State())
}

func TestCommand_PersistFailureKeepsState(t *testing.T) {
	f := newCommand(proposal(wednesday, wednesday, 540, 600, berlin))
	f.finder.On("Find", mock.Anything, f.proposed).Return(nil, nil)
	f.persister.On("CreateDowntime", mock.Anything, f.proposed, ResolutionNone).Return(nil, errors.New("conflict"))

	err := f.cmd.Run(context.Background(), nil)
	assert.ErrorContains(t, err, "persist downtime")
	assert.Equal(t, StateNoClash, f.cmd.State())
	f.refresher.AssertNotCalled(t, "RefreshDowntimes", mock.Anything)
}

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("waiting_list")
	require.NoError(t, err)
	assert.Equal(t, DecisionWaitingList, d)

	_, err = ParseDecision("keep")
	assert.Error(t, err)
}
