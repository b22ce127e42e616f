// Package webhook builds, signs and delivers verification event callbacks.
package webhook

import "time"

// Event names sent to project webhook endpoints.
const (
	EventCompleted = "verification.completed"
	EventFailed    = "verification.failed"
)

// Payload is the JSON body POSTed to a project's webhook URL.
type Payload struct {
	Event          string `json:"event"`
	VerificationID string `json:"verificationId"`
	Status         string `json:"status"`
	Data           Data   `json:"data"`
	Timestamp      string `json:"timestamp"`
}

// Data carries event specific fields; absent values are omitted.
type Data struct {
	ExternalID     *string  `json:"externalId,omitempty"`
	Status         string   `json:"status,omitempty"`
	FaceMatchScore *float64 `json:"faceMatchScore,omitempty"`
	FraudScore     *int     `json:"fraudScore,omitempty"`
	FraudRiskLevel string   `json:"fraudRiskLevel,omitempty"`
	Reason         string   `json:"reason,omitempty"`
}

// Completed describes a verification that reached a decision.
func Completed(verificationID, status string, data Data, at time.Time) Payload {
	data.Status = status
	return Payload{
		Event:          EventCompleted,
		VerificationID: verificationID,
		Status:         status,
		Data:           data,
		Timestamp:      at.UTC().Format(time.RFC3339Nano),
	}
}

// Failed describes a verification rejected because processing failed.
func Failed(verificationID, status, reason string, at time.Time) Payload {
	return Payload{
		Event:          EventFailed,
		VerificationID: verificationID,
		Status:         status,
		Data:           Data{Reason: reason},
		Timestamp:      at.UTC().Format(time.RFC3339Nano),
	}
}
