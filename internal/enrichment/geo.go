package enrichment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"kycverify/internal/verification/models"
)

const geoUserAgent = "KYC-Service/1.0"

// dataCenterMarkers flag hosting networks by the announced organisation name.
var dataCenterMarkers = []string{"hosting", "datacenter", "cloud"}

// GeoClient looks addresses up against an ipapi.co compatible endpoint.
type GeoClient struct {
	baseURL    string
	httpClient *http.Client
}

type GeoOption func(*GeoClient)

func WithHTTPClient(c *http.Client) GeoOption {
	return func(g *GeoClient) { g.httpClient = c }
}

func NewGeoClient(baseURL string, timeout time.Duration, opts ...GeoOption) *GeoClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	g := &GeoClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type geoResponse struct {
	Error       bool   `json:"error"`
	Reason      string `json:"reason"`
	CountryName string `json:"country_name"`
	Region      string `json:"region"`
	City        string `json:"city"`
	Org         string `json:"org"`
}

// Lookup returns nil when the service knows nothing about ip.
func (g *GeoClient) Lookup(ctx context.Context, ip string) (*models.Geolocation, error) {
	endpoint := fmt.Sprintf("%s/%s/json/", g.baseURL, url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build geolocation request: %w", err)
	}
	req.Header.Set("User-Agent", geoUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geolocation request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("read geolocation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geolocation service returned %d", resp.StatusCode)
	}

	var parsed geoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode geolocation response: %w", err)
	}
	if parsed.Error {
		return nil, nil
	}
	return toGeolocation(parsed), nil
}

func toGeolocation(r geoResponse) *models.Geolocation {
	geo := &models.Geolocation{
		Country:      r.CountryName,
		Region:       r.Region,
		City:         r.City,
		ISP:          r.Org,
		IsDataCenter: IsDataCenter(r.Org),
	}
	if *geo == (models.Geolocation{}) {
		return nil
	}
	return geo
}

// IsDataCenter reports whether an organisation name looks like a hosting provider.
func IsDataCenter(org string) bool {
	org = strings.ToLower(org)
	for _, m := range dataCenterMarkers {
		if strings.Contains(org, m) {
			return true
		}
	}
	return false
}
