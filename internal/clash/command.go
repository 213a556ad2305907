package clash

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"planboard/internal/downtime"
	"planboard/internal/model"
)

// Decision is the user's answer to a non-empty clash list.
type Decision string

const (
	DecisionWaitingList Decision = "waiting_list"
	DecisionDelete      Decision = "delete"
	DecisionCancel      Decision = "cancel"
)

// ParseDecision accepts the three decision names.
func ParseDecision(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionWaitingList, DecisionDelete, DecisionCancel:
		return d, nil
	}
	return "", fmt.Errorf("unknown decision %q", s)
}

// Resolution tells the persistence layer what to do with clashing bookings.
type Resolution string

const (
	ResolutionNone        Resolution = ""
	ResolutionWaitingList Resolution = "waiting_list"
	ResolutionDelete      Resolution = "delete"
)

// Persister stores a downtime and applies the resolution to its clashes.
type Persister interface {
	CreateDowntime(ctx context.Context, d *downtime.Downtime, resolution Resolution) (*downtime.Downtime, error)
}

// Refresher reloads every resource's downtimes after a write.
type Refresher interface {
	RefreshDowntimes(ctx context.Context) error
}

// CreateDowntimeCommand walks a proposed downtime from validation through
// clash detection and decision to persistence.
type CreateDowntimeCommand struct {
	ID string

	mu        sync.Mutex
	state     State
	proposed  *downtime.Downtime
	created   *downtime.Downtime
	clashes   []model.Clash
	fsm       *FSM
	finder    Finder
	persister Persister
	refresher Refresher
	logger    *zerolog.Logger
}

// NewCreateDowntimeCommand starts a command in StateBuilding.
func NewCreateDowntimeCommand(proposed *downtime.Downtime, finder Finder, persister Persister, refresher Refresher, logger *zerolog.Logger) *CreateDowntimeCommand {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &CreateDowntimeCommand{
		ID:        uuid.NewString(),
		state:     StateBuilding,
		proposed:  proposed,
		fsm:       NewFSM(),
		finder:    finder,
		persister: persister,
		refresher: refresher,
		logger:    logger,
	}
}

func (c *CreateDowntimeCommand) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Proposed is the downtime being created.
func (c *CreateDowntimeCommand) Proposed() *downtime.Downtime {
	return c.proposed
}

// Created is the persisted downtime once executed.
func (c *CreateDowntimeCommand) Created() *downtime.Downtime {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.created
}

func (c *CreateDowntimeCommand) Clashes() []model.Clash {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Clash(nil), c.clashes...)
}

// transition must be called with c.mu held.
func (c *CreateDowntimeCommand) transition(to State) error {
	if !c.fsm.CanTransition(c.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.state, to)
	}
	c.logger.Debug().Str("command", c.ID).Str("from", string(c.state)).Str("to", string(to)).Msg("downtime command transition")
	c.state = to
	return nil
}

// Validate checks the proposal and moves to Validated or Invalid.
func (c *CreateDowntimeCommand) Validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.proposed.Validate(); err != nil {
		if terr := c.transition(StateInvalid); terr != nil {
			return terr
		}
		return err
	}
	return c.transition(StateValidated)
}

// FindClashes runs the finder. A finder error leaves the command in Validated
// and wraps ErrClashesUnknown.
func (c *CreateDowntimeCommand) FindClashes(ctx context.Context) ([]model.Clash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateValidated {
		return nil, fmt.Errorf("%w: find clashes in %s", ErrInvalidTransition, c.state)
	}

	clashes, err := c.finder.Find(ctx, c.proposed)
	if err != nil {
		c.logger.Warn().Err(err).Str("command", c.ID).Msg("clash lookup failed")
		if !errors.Is(err, ErrClashesUnknown) {
			err = fmt.Errorf("%w: %w", ErrClashesUnknown, err)
		}
		return nil, err
	}

	c.clashes = clashes
	next := StateNoClash
	if len(clashes) > 0 {
		next = StateHasClashes
	}
	if err := c.transition(next); err != nil {
		return nil, err
	}
	c.logger.Info().Str("command", c.ID).Int("clashes", len(clashes)).Msg("clash lookup finished")
	return append([]model.Clash(nil), clashes...), nil
}

// Resolve records the decision on a non-empty clash list.
func (c *CreateDowntimeCommand) Resolve(decision Decision) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch decision {
	case DecisionWaitingList:
		return c.transition(StateResolvedKeep)
	case DecisionDelete:
		return c.transition(StateResolvedDelete)
	case DecisionCancel:
		return c.transition(StateCancelled)
	}
	return fmt.Errorf("unknown decision %q", decision)
}

// Execute persists the downtime with the resolution implied by the current
// state and refreshes downtimes. The command is Executed once persisted,
// even if the refresh fails.
func (c *CreateDowntimeCommand) Execute(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var resolution Resolution
	switch c.state {
	case StateNoClash:
		resolution = ResolutionNone
	case StateResolvedKeep:
		resolution = ResolutionWaitingList
	case StateResolvedDelete:
		resolution = ResolutionDelete
	default:
		return fmt.Errorf("%w: execute in %s", ErrInvalidTransition, c.state)
	}

	created, err := c.persister.CreateDowntime(ctx, c.proposed, resolution)
	if err != nil {
		return fmt.Errorf("persist downtime: %w", err)
	}
	c.created = created
	if err := c.transition(StateExecuted); err != nil {
		return err
	}
	c.logger.Info().Str("command", c.ID).Str("resolution", string(resolution)).Int("clashes", len(c.clashes)).Msg("downtime created")

	if err := c.refresher.RefreshDowntimes(ctx); err != nil {
		return fmt.Errorf("refresh downtimes: %w", err)
	}
	return nil
}

// Run executes the whole workflow. decide is called only when clashes exist.
func (c *CreateDowntimeCommand) Run(ctx context.Context, decide func([]model.Clash) Decision) error {
	if err := c.Validate(); err != nil {
		return err
	}
	clashes, err := c.FindClashes(ctx)
	if err != nil {
		return err
	}
	if len(clashes) > 0 {
		if err := c.Resolve(decide(clashes)); err != nil {
			return err
		}
		if c.State() == StateCancelled {
			return nil
		}
	}
	return c.Execute(ctx)
}
