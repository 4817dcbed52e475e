package orchestrator

import "fmt"

// WorkflowError is returned when a workflow cannot complete: the step
// it names either timed out waiting for a matching frame or hit an I/O
// failure on the underlying connection.
type WorkflowError struct {
	Workflow string
	Step     string
	Err      error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("orchestrator: %s: step %s: %v", e.Workflow, e.Step, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func newWorkflowError(workflow, step string, err error) *WorkflowError {
	return &WorkflowError{Workflow: workflow, Step: step, Err: err}
}
