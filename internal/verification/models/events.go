package models

import "time"

// SessionEventType names a step in a verification's history.
type SessionEventType string

const (
	EventStarted          SessionEventType = "VERIFICATION_STARTED"
	EventDocumentUploaded SessionEventType = "DOCUMENT_UPLOADED"
	EventEvidenceGathered SessionEventType = "EVIDENCE_GATHERED"
	EventDecisionRecorded SessionEventType = "DECISION_RECORDED"
	EventFailed           SessionEventType = "VERIFICATION_FAILED"
)

type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	Detail    string           `json:"detail,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

func NewSessionEvent(t SessionEventType, detail string, at time.Time) SessionEvent {
	return SessionEvent{Type: t, Detail: detail, Timestamp: at.UTC()}
}
