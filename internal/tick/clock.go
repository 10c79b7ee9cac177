// Package tick provides the monotonic logical clock the memory core uses
// for decay and consolidation scheduling. Ticks, not wall-clock time, drive
// all persistence-score math; wall-clock timestamps are kept only for
// audit trails.
package tick

import (
	"fmt"

	"github.com/ODSapper/agentmem/internal/events"
	"github.com/ODSapper/agentmem/internal/memory"
)

// Clock advances a project's logical tick and tracks when decay and
// consolidation sweeps last ran against it.
type Clock struct {
	db  *memory.SQLiteMemoryDB
	bus *events.Bus
}

// NewClock binds a Clock to its persistence layer and event bus.
func NewClock(db *memory.SQLiteMemoryDB, bus *events.Bus) *Clock {
	return &Clock{db: db, bus: bus}
}

// Initialize ensures a project has an agent_state row, returning its
// current tick (0 for a freshly created project).
func (c *Clock) Initialize(projectID string) (uint64, error) {
	s, err := c.db.GetAgentState(projectID)
	if err != nil {
		return 0, fmt.Errorf("tick: failed to initialize: %w", err)
	}
	return s.CurrentTick, nil
}

// Current returns the project's current tick without advancing it.
func (c *Clock) Current(projectID string) (uint64, error) {
	s, err := c.db.GetAgentState(projectID)
	if err != nil {
		return 0, fmt.Errorf("tick: failed to read current tick: %w", err)
	}
	return s.CurrentTick, nil
}

// Increment advances the project's tick by one and publishes a
// tick_advance event, returning the new tick value.
func (c *Clock) Increment(projectID string) (uint64, error) {
	s, err := c.db.GetAgentState(projectID)
	if err != nil {
		return 0, fmt.Errorf("tick: failed to increment: %w", err)
	}
	next := s.CurrentTick + 1
	if err := c.db.SetCurrentTick(projectID, next); err != nil {
		return 0, fmt.Errorf("tick: failed to persist advance: %w", err)
	}
	if c.bus != nil {
		c.bus.Publish(events.NewEvent(events.EventTickAdvance, "tick", "all", events.PriorityLow,
			events.TickAdvancePayload(next)))
	}
	return next, nil
}

// ShouldRunDecay reports whether enough ticks have elapsed since the last
// decay sweep to run another, given the configured interval.
func (c *Clock) ShouldRunDecay(projectID string, interval uint64) (bool, uint64, error) {
	s, err := c.db.GetAgentState(projectID)
	if err != nil {
		return false, 0, fmt.Errorf("tick: failed to check decay schedule: %w", err)
	}
	if interval == 0 {
		interval = 1
	}
	return s.CurrentTick-s.LastDecayTick >= interval, s.CurrentTick, nil
}

// MarkDecayRun records that a decay sweep completed at the given tick.
func (c *Clock) MarkDecayRun(projectID string, tick uint64) error {
	if err := c.db.MarkDecayRun(projectID, tick); err != nil {
		return fmt.Errorf("tick: failed to mark decay run: %w", err)
	}
	return nil
}

// ShouldRunConsolidation reports whether enough ticks have elapsed since
// the last implicit-edge consolidation sweep to run another.
func (c *Clock) ShouldRunConsolidation(projectID string, interval uint64) (bool, uint64, error) {
	s, err := c.db.GetAgentState(projectID)
	if err != nil {
		return false, 0, fmt.Errorf("tick: failed to check consolidation schedule: %w", err)
	}
	if interval == 0 {
		interval = 10
	}
	return s.CurrentTick-s.LastConsolidationTick >= interval, s.CurrentTick, nil
}

// MarkConsolidationRun records that a consolidation sweep completed at the
// given tick.
func (c *Clock) MarkConsolidationRun(projectID string, tick uint64) error {
	if err := c.db.MarkConsolidationRun(projectID, tick); err != nil {
		return fmt.Errorf("tick: failed to mark consolidation run: %w", err)
	}
	return nil
}
