// Package model calls an external fraud scoring service over HTTP.
package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"kycverify/internal/fraud"
)

const predictPath = "/v1/predict"

var _ fraud.Model = (*Client)(nil)

// Client posts verification signals to the scoring service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client. Used in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func New(baseURL, apiKey string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type predictRequest struct {
	VerificationID string   `json:"verificationId"`
	FaceMatchScore *float64 `json:"faceMatchScore,omitempty"`
	LivenessScore  *int     `json:"livenessScore,omitempty"`
	IPAddress      string   `json:"ipAddress,omitempty"`
	Email          string   `json:"email,omitempty"`
	DocumentNumber string   `json:"documentNumber,omitempty"`
	FirstName      string   `json:"firstName,omitempty"`
	LastName       string   `json:"lastName,omitempty"`
	DateOfBirth    string   `json:"dateOfBirth,omitempty"`
}

type predictResponse struct {
	Score       *float64           `json:"score"`
	RiskLevel   string             `json:"riskLevel"`
	Outcomes    []string           `json:"outcomes"`
	Reasons     []string           `json:"reasons"`
	ModelScores map[string]float64 `json:"modelScores"`
}

// Predict returns nil, nil when the service answers 204 or omits a score.
func (c *Client) Predict(ctx context.Context, sig fraud.Signals) (*fraud.ModelResult, error) {
	body, err := json.Marshal(predictRequest{
		VerificationID: sig.VerificationID,
		FaceMatchScore: sig.FaceMatchScore,
		LivenessScore:  sig.LivenessScore,
		IPAddress:      sig.IPAddress,
		Email:          sig.Email,
		DocumentNumber: sig.DocumentNumber,
		FirstName:      sig.FirstName,
		LastName:       sig.LastName,
		DateOfBirth:    sig.DateOfBirth,
	})
	if err != nil {
		return nil, fmt.Errorf("encode predict request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+predictPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call fraud model: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read predict response: %w", err)
	}
	return parseResponse(resp.StatusCode, raw)
}

func parseResponse(status int, raw []byte) (*fraud.ModelResult, error) {
	if status != http.StatusOK {
		return nil, fmt.Errorf("fraud model returned status %d", status)
	}
	var out predictResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode predict response: %w", err)
	}
	if out.Score == nil {
		return nil, nil
	}
	return &fraud.ModelResult{
		Score:       *out.Score,
		RiskLevel:   out.RiskLevel,
		Outcomes:    out.Outcomes,
		Reasons:     out.Reasons,
		ModelScores: out.ModelScores,
	}, nil
}
