package provisioning

import "fmt"

// Error wraps the failing provisioning step so the worker can record a
// useful diagnostic on the tenant row instead of a bare cause.
type Error struct {
	Step string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provisioning step %q failed: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func stepErr(step string, err error) *Error {
	return &Error{Step: step, Err: err}
}
