package casebatch

import (
	"github.com/bft-labs/casebatch/internal/app"
	"github.com/bft-labs/casebatch/internal/domain"
	"github.com/bft-labs/casebatch/internal/ports"
	"github.com/bft-labs/casebatch/pkg/log"
)

type (
	// Case is a single unit of work.
	Case = domain.Case

	// Result is the structured output of an executor.
	Result = domain.Result

	// Counts is an aggregate progress snapshot.
	Counts = domain.Counts

	// Executor performs the work for one case.
	Executor = ports.Executor

	// ExecutorFactory builds one executor per worker slot.
	ExecutorFactory = ports.ExecutorFactory

	// ExecutorFactoryFunc adapts a function to ExecutorFactory.
	ExecutorFactoryFunc = ports.ExecutorFactoryFunc

	// HTTPClient is the interface for making HTTP requests.
	// *http.Client satisfies this interface.
	HTTPClient = ports.HTTPClient

	// Logger is the interface for structured logging.
	Logger = log.Logger

	// SweeperConfig configures removal of executor leftovers.
	SweeperConfig = app.SweeperConfig

	// SlotStatus is a point-in-time view of one worker slot.
	SlotStatus = app.SlotStatus
)

// Errors returned by the package, comparable with errors.Is.
var (
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrInvalidConfig   = domain.ErrInvalidConfig
	ErrExecutorFailure = domain.ErrExecutorFailure
)

// State represents the lifecycle state of a Runner.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateCrashed:
		return "Crashed"
	default:
		return "Unknown"
	}
}

// StateChangeEvent describes a lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// EventHandler receives runner events. Calls are synchronous.
type EventHandler interface {
	OnStateChange(event StateChangeEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to
// override only the events you need.
type BaseEventHandler struct{}

// OnStateChange does nothing.
func (BaseEventHandler) OnStateChange(StateChangeEvent) {}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}

// eventEmitterWrapper adapts EventHandler to the lifecycle emitter.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}
