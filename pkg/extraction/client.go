package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dukex/formflow/pkg/models"
)

// DefaultTimeout bounds every call to the extraction service.
const DefaultTimeout = 30 * time.Second

type extractResponse struct {
	Fields map[string]string `json:"fields"`
}

type classifyResponse struct {
	Kind string `json:"kind"`
}

// Client calls the extraction microservice over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client for the service at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Extract posts the document to /extract.
func (c *Client) Extract(ctx context.Context, doc models.InputDocument) (map[string]string, error) {
	var resp extractResponse

	err := c.post(ctx, "/extract", doc, &resp)
	if err != nil {
		return nil, err
	}

	if resp.Fields == nil {
		resp.Fields = map[string]string{}
	}

	return resp.Fields, nil
}

// Classify posts the document to /classify.
func (c *Client) Classify(ctx context.Context, doc models.InputDocument) (string, error) {
	var resp classifyResponse

	err := c.post(ctx, "/classify", doc, &resp)
	if err != nil {
		return "", err
	}

	kind := strings.TrimSpace(strings.ToLower(resp.Kind))
	if kind == "" {
		return KindUnknown, nil
	}

	return kind, nil
}

// HealthCheck calls GET /health.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check: status code %d", ErrExtractionFailed, resp.StatusCode)
	}

	return nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) post(ctx context.Context, path string, doc models.InputDocument, out any) error {
	requestBody, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrExtractionFailed, path, doc.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("%w: %s %s: status code %d: %s",
			ErrExtractionFailed, path, doc.Name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("%w: %s %s: decode response: %w", ErrExtractionFailed, path, doc.Name, err)
	}

	return nil
}
