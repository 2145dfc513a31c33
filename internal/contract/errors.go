package contract

import "fmt"

// BuildError is the single error type raised for contract-build and
// SQL-fragment validation failures. Callers catch one type; Stage and Token
// narrow down what went wrong.
type BuildError struct {
	// Stage identifies the pipeline step: "llm", "parse", "normalize",
	// "validate", "persist".
	Stage string
	// Token names the offending token for validation failures, if any.
	Token string
	// Message is the human-readable description.
	Message string
	// Err is the wrapped underlying error, if any.
	Err error
}

func (e *BuildError) Error() string {
	switch {
	case e.Token != "" && e.Err != nil:
		return fmt.Sprintf("contract build %s failed for token %q: %s: %v", e.Stage, e.Token, e.Message, e.Err)
	case e.Token != "":
		return fmt.Sprintf("contract build %s failed for token %q: %s", e.Stage, e.Token, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("contract build %s failed: %s: %v", e.Stage, e.Message, e.Err)
	default:
		return fmt.Sprintf("contract build %s failed: %s", e.Stage, e.Message)
	}
}

func (e *BuildError) Unwrap() error { return e.Err }

func buildErrorf(stage, format string, args ...any) *BuildError {
	return &BuildError{Stage: stage, Message: fmt.Sprintf(format, args...)}
}

func tokenErrorf(stage, token, format string, args ...any) *BuildError {
	return &BuildError{Stage: stage, Token: token, Message: fmt.Sprintf(format, args...)}
}

func wrapBuildError(stage string, err error, format string, args ...any) *BuildError {
	return &BuildError{Stage: stage, Message: fmt.Sprintf(format, args...), Err: err}
}
