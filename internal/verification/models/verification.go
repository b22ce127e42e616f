package models

import (
	"time"

	"kycverify/internal/decision"
	"kycverify/internal/fraud"
	id "kycverify/pkg/domain"
)

// Verification is one identity check. Only the lifecycle service mutates it.
type Verification struct {
	ID         id.VerificationID
	ProjectID  id.ProjectID
	ExternalID string
	Status     decision.Status

	// Hints are the optional identity values the caller submitted.
	Hints Hints
	// Identity is what the document evidence says. Empty fields are unknown.
	Identity Identity

	FaceMatchScore  *float64
	LivenessScore   *int
	FraudScore      *int
	FraudRiskLevel  fraud.RiskLevel
	RejectionReason string
	Reasons         []string

	Documents Documents
	Client    ClientInfo

	SessionEvents []SessionEvent
	CreatedAt     time.Time
	CompletedAt   *time.Time
}

// IsTerminal reports whether a decision has been recorded.
func (v *Verification) IsTerminal() bool { return v.Status.IsTerminal() }

type Hints struct {
	FirstName string
	LastName  string
	Email     string
}

// Identity is the canonical identity read from the document.
type Identity struct {
	FirstName      string
	LastName       string
	DateOfBirth    string
	DocumentNumber string
	Nationality    string
}

// Documents holds object storage keys of the submitted images.
type Documents struct {
	Front  string
	Back   string
	Selfie string
}

// ClientInfo is request metadata captured at submission and enriched later.
type ClientInfo struct {
	IPAddress   string
	UserAgent   string
	DeviceInfo  *DeviceInfo
	Geolocation *Geolocation
}

type DeviceInfo struct {
	Browser string `json:"browser"`
	OS      string `json:"os"`
	Device  string `json:"device"`
	Mobile  bool   `json:"mobile"`
}

type Geolocation struct {
	Country      string `json:"country,omitempty"`
	Region       string `json:"region,omitempty"`
	City         string `json:"city,omitempty"`
	ISP          string `json:"isp,omitempty"`
	IsDataCenter bool   `json:"isDataCenter"`
}

// Enrichment patches auxiliary client data only. Nil fields are left unchanged.
type Enrichment struct {
	DeviceInfo  *DeviceInfo
	Geolocation *Geolocation
}

// Empty reports whether the patch changes nothing.
func (e Enrichment) Empty() bool { return e.DeviceInfo == nil && e.Geolocation == nil }

// Clone returns a deep copy so stores never share mutable state with callers.
func (v *Verification) Clone() *Verification {
	if v == nil {
		return nil
	}
	c := *v
	c.FaceMatchScore = clonePtr(v.FaceMatchScore)
	c.LivenessScore = clonePtr(v.LivenessScore)
	c.FraudScore = clonePtr(v.FraudScore)
	c.CompletedAt = clonePtr(v.CompletedAt)
	c.Client.DeviceInfo = clonePtr(v.Client.DeviceInfo)
	c.Client.Geolocation = clonePtr(v.Client.Geolocation)
	c.Reasons = append([]string(nil), v.Reasons...)
	c.SessionEvents = append([]SessionEvent(nil), v.SessionEvents...)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
