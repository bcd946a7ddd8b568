package robots

import "github.com/crawlgraph/crawlgraph/pkg/failure"

type ErrorCause string

const (
	ErrCauseNetworkFailure ErrorCause = "network_failure"
)

// Error is robots fetch/parse's failure.ClassifiedError implementation.
type Error struct {
	Message string
	Cause   ErrorCause
}

func (e *Error) Error() string {
	return "robots: " + e.Message
}

func (e *Error) Severity() failure.Severity {
	return failure.SeverityRecoverable
}
