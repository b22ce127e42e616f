package decision

import "fmt"

// Status is the lifecycle state of a verification.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusProcessing   Status = "PROCESSING"
	StatusApproved     Status = "APPROVED"
	StatusRejected     Status = "REJECTED"
	StatusManualReview Status = "MANUAL_REVIEW"
)

// IsTerminal reports whether the status is absorbing.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusManualReview:
		return true
	}
	return false
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusApproved, StatusRejected, StatusManualReview:
		return true
	}
	return false
}

func (s Status) String() string { return string(s) }

// ParseStatus validates a status read from storage or a query string.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.IsValid() {
		return "", fmt.Errorf("invalid verification status: %q", s)
	}
	return st, nil
}
