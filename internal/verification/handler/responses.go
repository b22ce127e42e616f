package handler

import (
	"time"

	"kycverify/internal/verification/models"
	"kycverify/internal/verification/service"
)

type SubmitResponse struct {
	Verification VerificationRef `json:"verification"`
	Message      string          `json:"message"`
}

type VerificationRef struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func fromSubmitResult(res *service.SubmitResult) SubmitResponse {
	return SubmitResponse{
		Verification: VerificationRef{ID: res.ID.String(), Status: res.Status.String()},
		Message:      "Verification started. A webhook is sent when it completes.",
	}
}

type GetResponse struct {
	Verification VerificationResponse `json:"verification"`
}

// VerificationResponse exposes scores and reasons only once a decision exists.
type VerificationResponse struct {
	ID              string                `json:"id"`
	ExternalID      *string               `json:"externalId"`
	Status          string                `json:"status"`
	FirstName       *string               `json:"firstName"`
	LastName        *string               `json:"lastName"`
	DateOfBirth     *string               `json:"dateOfBirth"`
	DocumentNumber  *string               `json:"documentNumber"`
	Nationality     *string               `json:"nationality"`
	FaceMatchScore  *float64              `json:"faceMatchScore"`
	LivenessScore   *int                  `json:"livenessScore"`
	FraudScore      *int                  `json:"fraudScore"`
	FraudRiskLevel  *string               `json:"fraudRiskLevel"`
	Reasons         []string              `json:"reasons"`
	RejectionReason *string               `json:"rejectionReason"`
	IPAddress       *string               `json:"ipAddress"`
	DeviceInfo      *models.DeviceInfo    `json:"deviceInfo"`
	IPGeoLocation   *models.Geolocation   `json:"ipGeoLocation"`
	SessionEvents   []models.SessionEvent `json:"sessionEvents"`
	CreatedAt       time.Time             `json:"createdAt"`
	CompletedAt     *time.Time            `json:"completedAt"`
}

func fromVerification(v *models.Verification) VerificationResponse {
	resp := VerificationResponse{
		ID:            v.ID.String(),
		ExternalID:    optional(v.ExternalID),
		Status:        v.Status.String(),
		FirstName:     optional(v.Identity.FirstName),
		LastName:      optional(v.Identity.LastName),
		IPAddress:     optional(v.Client.IPAddress),
		DeviceInfo:    v.Client.DeviceInfo,
		IPGeoLocation: v.Client.Geolocation,
		SessionEvents: v.SessionEvents,
		CreatedAt:     v.CreatedAt,
		CompletedAt:   v.CompletedAt,
		Reasons:       []string{},
	}
	if resp.SessionEvents == nil {
		resp.SessionEvents = []models.SessionEvent{}
	}
	if !v.IsTerminal() {
		return resp
	}
	resp.DateOfBirth = optional(v.Identity.DateOfBirth)
	resp.DocumentNumber = optional(v.Identity.DocumentNumber)
	resp.Nationality = optional(v.Identity.Nationality)
	resp.FaceMatchScore = v.FaceMatchScore
	resp.LivenessScore = v.LivenessScore
	resp.FraudScore = v.FraudScore
	resp.FraudRiskLevel = optional(string(v.FraudRiskLevel))
	resp.RejectionReason = optional(v.RejectionReason)
	if v.Reasons != nil {
		resp.Reasons = v.Reasons
	}
	return resp
}

type ListResponse struct {
	Verifications []ListItem `json:"verifications"`
	Pagination    Pagination `json:"pagination"`
}

type ListItem struct {
	ID             string     `json:"id"`
	ExternalID     *string    `json:"externalId"`
	Status         string     `json:"status"`
	FirstName      *string    `json:"firstName"`
	LastName       *string    `json:"lastName"`
	FaceMatchScore *float64   `json:"faceMatchScore"`
	LivenessScore  *int       `json:"livenessScore"`
	FraudScore     *int       `json:"fraudScore"`
	FraudRiskLevel *string    `json:"fraudRiskLevel"`
	CreatedAt      time.Time  `json:"createdAt"`
	CompletedAt    *time.Time `json:"completedAt"`
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func fromPage(p models.Page) ListResponse {
	items := make([]ListItem, 0, len(p.Items))
	for _, v := range p.Items {
		items = append(items, ListItem{
			ID:             v.ID.String(),
			ExternalID:     optional(v.ExternalID),
			Status:         v.Status.String(),
			FirstName:      optional(v.Identity.FirstName),
			LastName:       optional(v.Identity.LastName),
			FaceMatchScore: v.FaceMatchScore,
			LivenessScore:  v.LivenessScore,
			FraudScore:     v.FraudScore,
			FraudRiskLevel: optional(string(v.FraudRiskLevel)),
			CreatedAt:      v.CreatedAt,
			CompletedAt:    v.CompletedAt,
		})
	}
	return ListResponse{
		Verifications: items,
		Pagination: Pagination{
			Page:       p.Page,
			Limit:      p.Limit,
			Total:      p.Total,
			TotalPages: p.TotalPages(),
		},
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
