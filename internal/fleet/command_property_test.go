package fleet

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

var allStates = []State{
	StatePending, StateSent, StateAcked, StateCompleted, StateFailed, StateTimeout,
}

// The state machine's structural invariants: terminal states have no
// outgoing edges, and no sequence of transitions ever leaves a terminal
// state.
func TestCommandStateMachineProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300

	properties := gopter.NewProperties(parameters)

	genState := gen.OneConstOf(
		StatePending, StateSent, StateAcked, StateCompleted, StateFailed, StateTimeout)

	properties.Property("terminal states have no outgoing edges", prop.ForAll(
		func(from, to State) bool {
			if from.IsTerminal() && CanTransition(from, to) {
				return false
			}
			return true
		},
		genState, genState,
	))

	properties.Property("transition sequences respect the edge set", prop.ForAll(
		func(targets []State) bool {
			now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
			cmd := &Command{ID: "prop", Device: "d", Type: CommandUpdate, State: StatePending}

			for _, to := range targets {
				wasTerminal := cmd.State.IsTerminal()
				legal := CanTransition(cmd.State, to)
				err := cmd.transition(to, "", now)

				if wasTerminal && err == nil {
					return false // escaped a terminal state
				}
				if legal && !wasTerminal && err != nil {
					return false // legal edge refused
				}
				if !legal && err == nil {
					return false // illegal edge accepted
				}
			}
			return true
		},
		gen.SliceOf(genState),
	))

	properties.Property("every non-terminal state can reach a terminal state", prop.ForAll(
		func(from State) bool {
			if from.IsTerminal() {
				return true
			}
			// One hop to timeout is always available to live states.
			return CanTransition(from, StateTimeout)
		},
		genState,
	))

	properties.TestingRun(t)
}
