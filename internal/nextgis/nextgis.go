// Package nextgis implements the feature-store client over the NextGIS Web REST API.
//
// NextGIS Web keeps the canonical water-source features and the checkup records.
// The API is documented at https://docs.nextgis.ru/docs_ngweb_dev/doc/developer/toc.html;
// all requests use HTTP basic auth.
package nextgis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/Agafia/bot-fire-water-sources/internal/models"
)

// DefaultRequestTimeout bounds every feature-store call. Timeouts surface as
// ordinary collaborator failures to the caller.
const DefaultRequestTimeout = 30 * time.Second

// Opts holds configuration options for the NextGIS Web client.
type Opts struct {
	Host     string
	User     string
	Password string
	HTTP     *http.Client
}

// Option defines a configuration option for the NextGIS Web client.
type Option func(*Opts)

// WithHost sets the NextGIS Web instance base URL, e.g. "https://spt-surgut.nextgis.com".
func WithHost(host string) Option {
	return func(o *Opts) {
		o.Host = host
	}
}

// WithCredentials sets the basic auth credentials.
func WithCredentials(user, password string) Option {
	return func(o *Opts) {
		o.User = user
		o.Password = password
	}
}

// WithHTTPClient overrides the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTP = c
	}
}

// Client talks to one NextGIS Web instance.
type Client struct {
	host     string
	user     string
	password string
	http     *http.Client
}

// NewClient creates a NextGIS Web client, applying any provided options.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Host == "" {
		slog.Error("NextGIS client host not set")
		return nil, fmt.Errorf("nextgis host not set")
	}
	httpClient := cfg.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	slog.Debug("NextGIS client created", "host", cfg.Host, "user_set", cfg.User != "")
	return &Client{host: cfg.Host, user: cfg.User, password: cfg.Password, http: httpClient}, nil
}

// GetFeature retrieves one feature of a resource by its id, without geometry.
// Returns models.ErrFeatureNotFound when the id does not resolve.
func (c *Client) GetFeature(ctx context.Context, resourceID, featureID int) (*models.Feature, error) {
	url := fmt.Sprintf("%s/api/resource/%d/feature/%d?geom=no", c.host, resourceID, featureID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feature request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("NextGIS GetFeature request failed", "error", err, "resource_id", resourceID, "feature_id", featureID)
		return nil, fmt.Errorf("feature request failed: %w", err)
	}
	defer resp.Body.Close()

	slog.Debug("NextGIS GetFeature response", "status", resp.StatusCode, "resource_id", resourceID, "feature_id", featureID)
	if resp.StatusCode == http.StatusNotFound {
		return nil, models.ErrFeatureNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feature request returned status %d", resp.StatusCode)
	}

	var feature models.Feature
	if err := json.NewDecoder(resp.Body).Decode(&feature); err != nil {
		return nil, fmt.Errorf("failed to decode feature: %w", err)
	}
	return &feature, nil
}

// PutFeature overwrites the given fields of an existing feature. Patches are
// idempotent overwrites.
func (c *Client) PutFeature(ctx context.Context, resourceID, featureID int, fields map[string]any) error {
	url := fmt.Sprintf("%s/api/resource/%d/feature/%d", c.host, resourceID, featureID)
	body, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return fmt.Errorf("failed to marshal fields: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build feature update request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("NextGIS PutFeature request failed", "error", err, "resource_id", resourceID, "feature_id", featureID)
		return fmt.Errorf("feature update failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		slog.Error("NextGIS PutFeature unexpected status", "status", resp.StatusCode, "resource_id", resourceID, "feature_id", featureID)
		return fmt.Errorf("feature update returned status %d", resp.StatusCode)
	}
	slog.Debug("NextGIS PutFeature succeeded", "resource_id", resourceID, "feature_id", featureID)
	return nil
}

// CreateFeature creates a new feature in a resource and returns the feature id
// assigned by the store. geom may be empty for records without geometry.
func (c *Client) CreateFeature(ctx context.Context, resourceID int, fields map[string]any, geom string) (int, error) {
	url := fmt.Sprintf("%s/api/resource/%d/feature/", c.host, resourceID)
	payload := map[string]any{
		"extensions": map[string]any{"attachment": nil, "description": nil},
		"fields":     fields,
	}
	if geom != "" {
		payload["geom"] = geom
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal feature: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build feature create request: %w", err)
	}
	req.SetBasicAuth(c.user, c.password)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("NextGIS CreateFeature request failed", "error", err, "resource_id", resourceID)
		return 0, fmt.Errorf("feature create failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		slog.Error("NextGIS CreateFeature unexpected status", "status", resp.StatusCode, "resource_id", resourceID)
		return 0, fmt.Errorf("feature create returned status %d", resp.StatusCode)
	}

	var created struct {
		ID int `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return 0, fmt.Errorf("failed to decode created feature id: %w", err)
	}
	slog.Debug("NextGIS CreateFeature succeeded", "resource_id", resourceID, "feature_id", created.ID)
	return created.ID, nil
}
