package domain

// RunLifeCycleState is the external compute job's coarse execution phase.
type RunLifeCycleState string

const (
	RunLifeCyclePending       RunLifeCycleState = "PENDING"
	RunLifeCycleRunning       RunLifeCycleState = "RUNNING"
	RunLifeCycleTerminating   RunLifeCycleState = "TERMINATING"
	RunLifeCycleTerminated    RunLifeCycleState = "TERMINATED"
	RunLifeCycleSkipped       RunLifeCycleState = "SKIPPED"
	RunLifeCycleInternalError RunLifeCycleState = "INTERNAL_ERROR"
)

// RunResultState is the terminal outcome of a finished run, distinct from
// the life-cycle phase.
type RunResultState string

const (
	RunResultSuccess  RunResultState = "SUCCESS"
	RunResultFailed   RunResultState = "FAILED"
	RunResultTimedOut RunResultState = "TIMEDOUT"
	RunResultCanceled RunResultState = "CANCELED"
)

// RunState is the remote job API's view of a submitted run.
type RunState struct {
	LifeCycleState RunLifeCycleState `json:"life_cycle_state"`
	ResultState    RunResultState    `json:"result_state,omitempty"`
	StateMessage   string            `json:"state_message,omitempty"`
}

// Terminal reports whether the run has reached a state that will not change.
func (s RunState) Terminal() bool {
	switch s.LifeCycleState {
	case RunLifeCycleTerminated, RunLifeCycleSkipped, RunLifeCycleInternalError:
		return true
	}
	return false
}

// Succeeded reports whether a terminal run finished successfully.
func (s RunState) Succeeded() bool {
	return s.Terminal() && s.ResultState == RunResultSuccess
}
