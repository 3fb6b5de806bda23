package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/onnwee/vigil/internal/audit"
)

// DefaultHTTPEndpoint is the default lookup endpoint (ip-api.com free
// tier, which is also where the 900 lookups/day quota default comes
// from).
const DefaultHTTPEndpoint = "http://ip-api.com/json"

// HTTPProvider performs lookups against an ip-api.com compatible JSON
// endpoint. The per-call timeout is enforced by the caller's context.
type HTTPProvider struct {
	endpoint string
	client   *http.Client
}

// NewHTTPProvider creates a provider for the given endpoint. An empty
// endpoint selects DefaultHTTPEndpoint; a nil client selects
// http.DefaultClient.
func NewHTTPProvider(endpoint string, client *http.Client) *HTTPProvider {
	if endpoint == "" {
		endpoint = DefaultHTTPEndpoint
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{endpoint: endpoint, client: client}
}

// lookupResponse is the subset of the ip-api.com response we consume.
type lookupResponse struct {
	Status  string  `json:"status"`
	Message string  `json:"message"`
	Country string  `json:"country"`
	City    string  `json:"city"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Lookup resolves one IP. Any transport, decode, or service-side
// failure is returned as an error; the resolver downgrades it to
// "no location".
func (p *HTTPProvider) Lookup(ctx context.Context, ip string) (*audit.Location, error) {
	reqURL := fmt.Sprintf("%s/%s?fields=status,message,country,city,lat,lon",
		p.endpoint, url.PathEscape(ip))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build lookup request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("lookup request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lookup returned status %d", resp.StatusCode)
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode lookup response: %w", err)
	}
	if body.Status != "success" {
		return nil, fmt.Errorf("lookup failed: %s", body.Message)
	}

	return &audit.Location{
		Country:   body.Country,
		City:      body.City,
		Latitude:  body.Lat,
		Longitude: body.Lon,
	}, nil
}
