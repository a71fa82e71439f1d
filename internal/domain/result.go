package domain

// Result is the tagged success/failure shape every public operation returns
// across the CLI and HTTP boundaries. Failures always carry a human-readable
// message; no error is silently swallowed on the way out.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// OK builds a success result.
func OK(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Fail builds a failure result from an error.
func Fail(err error) Result {
	return Result{Success: false, Message: err.Error()}
}
