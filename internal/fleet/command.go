// Package fleet drives the billboard devices: it dispatches update,
// reset and refresh commands over MQTT, correlates device status reports
// back to the issuing command, and tracks each command through its state
// machine.
package fleet

import (
	"fmt"
	"time"

	"github.com/vantagesign/signdeck/internal/errors"
)

// CommandType is an operation a device knows how to execute.
type CommandType string

const (
	// CommandUpdate tells the device to re-fetch the manifest and
	// reload its rotation.
	CommandUpdate CommandType = "update"
	// CommandReset reboots the device.
	CommandReset CommandType = "reset"
	// CommandRefresh redraws the current screen without a reload.
	CommandRefresh CommandType = "refresh"
)

// ParseCommandType validates a user-supplied command name.
func ParseCommandType(s string) (CommandType, error) {
	switch CommandType(s) {
	case CommandUpdate, CommandReset, CommandRefresh:
		return CommandType(s), nil
	}
	return "", errors.NewValidation("unknown_command",
		fmt.Sprintf("unknown command %q (want update, reset or refresh)", s))
}

// State is a command's position in its lifecycle.
type State string

const (
	StatePending   State = "pending"   // created, not yet on the wire
	StateSent      State = "sent"      // published to the broker
	StateAcked     State = "acked"     // device confirmed receipt
	StateCompleted State = "completed" // device finished executing
	StateFailed    State = "failed"    // device or broker reported an error
	StateTimeout   State = "timeout"   // deadline passed without completion
)

// IsTerminal reports whether the state is final. Terminal states are
// sticky: no status report moves a command out of one.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimeout:
		return true
	}
	return false
}

// legalTransitions is the full edge set of the command state machine.
var legalTransitions = map[State][]State{
	StatePending: {StateSent, StateFailed, StateTimeout},
	StateSent:    {StateAcked, StateCompleted, StateFailed, StateTimeout},
	StateAcked:   {StateCompleted, StateFailed, StateTimeout},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to State) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Command is one dispatched operation against one device. Broadcast
// dispatches fan out into one Command per online device sharing an ID.
type Command struct {
	ID        string      `json:"id"`
	Device    string      `json:"device"`
	Type      CommandType `json:"type"`
	State     State       `json:"state"`
	Detail    string      `json:"detail,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Deadline  time.Time   `json:"deadline"`
}

// transition moves the command to a new state, enforcing the legal edge
// set and terminal stickiness.
func (c *Command) transition(to State, detail string, now time.Time) error {
	if c.State.IsTerminal() {
		return fmt.Errorf("command %s (%s -> %s): %w", c.ID, c.State, to, errors.ErrTerminalState)
	}
	if !CanTransition(c.State, to) {
		return errors.NewInternal("illegal_transition",
			fmt.Sprintf("command %s: illegal transition %s -> %s", c.ID, c.State, to), nil)
	}
	c.State = to
	if detail != "" {
		c.Detail = detail
	}
	c.UpdatedAt = now
	return nil
}
