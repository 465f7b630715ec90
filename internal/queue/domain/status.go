package domain

import "fmt"

type Status string

const (
	Pending  Status = "PENDING"
	Progress Status = "PROGRESS"
	Success  Status = "SUCCESS"
	Error    Status = "ERROR"
)

func CanTransition(from, to Status) bool {
	switch from {
	case Pending:
		return to == Progress
	case Progress:
		return to == Success || to == Error
	case Success:
		return false
	case Error:
		return false
	default:
		return false
	}
}

// ValidateTransition reports whether a task may move from one status to
// another. Re-entering the current status is rejected too: every status is
// visited at most once per task.
func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func IsTerminal(s Status) bool {
	return s == Success || s == Error
}
