// internal/gemini/client.go
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/reelforge/reelforge/internal/errors"
)

// DefaultBaseURL is the public generative language endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Client is a thin HTTP client for the generative language API. It carries
// no credential: the key is caller-supplied per request and session-scoped
// at the pipeline level.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client against baseURL (DefaultBaseURL when empty).
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

// BaseURL returns the configured endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListModels fetches the models available to the supplied key.
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]ModelInfo, error) {
	url := fmt.Sprintf("%s/v1beta/models?key=%s", c.baseURL, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("listing models", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var response struct {
		Models []ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, apperrors.NewProcessingError("decoding model list", err)
	}
	return response.Models, nil
}

// GenerateContent issues one generateContent call against modelID using the
// given API version. The returned envelope may carry either candidates or
// legacy predictions.
func (c *Client) GenerateContent(ctx context.Context, apiKey, apiVersion, modelID string, body GenerateRequest) (*GenerateResponse, error) {
	if apiVersion == "" {
		apiVersion = "v1beta"
	}
	url := fmt.Sprintf("%s/%s/models/%s:generateContent?key=%s", c.baseURL, apiVersion, modelID, apiKey)

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("calling %s", modelID), err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, apperrors.NewNetworkError(fmt.Sprintf("reading %s response", modelID), err)
	}

	var response GenerateResponse
	if err := json.Unmarshal(raw, &response); err != nil && httpResp.StatusCode == http.StatusOK {
		return nil, apperrors.NewProcessingError(fmt.Sprintf("decoding %s response", modelID), err)
	}

	if httpResp.StatusCode != http.StatusOK || response.Error != nil {
		msg := httpResp.Status
		if response.Error != nil {
			msg = response.Error.Message
		}
		return nil, classifyHTTPError(httpResp.StatusCode, msg)
	}

	return &response, nil
}

// StartVideoJob submits a predictLongRunning request and returns the
// operation name. The operation handle, not the result, comes back.
func (c *Client) StartVideoJob(ctx context.Context, apiKey, modelID string, body PredictRequest) (string, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:predictLongRunning?key=%s", c.baseURL, modelID, apiKey)

	jsonData, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return "", apperrors.NewNetworkError(fmt.Sprintf("submitting %s job", modelID), err)
	}
	defer httpResp.Body.Close()

	var op Operation
	raw, _ := io.ReadAll(httpResp.Body)
	json.Unmarshal(raw, &op)

	if httpResp.StatusCode != http.StatusOK || op.Error != nil {
		msg := httpResp.Status
		if op.Error != nil {
			msg = op.Error.Message
		}
		return "", classifyHTTPError(httpResp.StatusCode, msg)
	}
	if op.Name == "" {
		return "", apperrors.NewNoContentError(fmt.Sprintf("[%s] missing operation name", modelID))
	}
	return op.Name, nil
}

// PollOperation fetches the current state of a long-running job.
func (c *Client) PollOperation(ctx context.Context, apiKey, opName string) (*Operation, error) {
	url := fmt.Sprintf("%s/v1beta/%s?key=%s", c.baseURL, opName, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, apperrors.NewNetworkError("polling operation", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, readErrorMessage(resp.Body))
	}

	var op Operation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return nil, apperrors.NewProcessingError("decoding operation state", err)
	}
	return &op, nil
}

// WithKey appends the credential as a query parameter to a retrievable
// media URI, the way the file service expects it.
func WithKey(uri, apiKey string) string {
	if strings.Contains(uri, "?") {
		return uri + "&key=" + apiKey
	}
	return uri + "?key=" + apiKey
}

// classifyHTTPError maps an upstream failure to the pipeline taxonomy.
// The region/permission criteria are best-effort substring matches.
func classifyHTTPError(status int, message string) error {
	switch {
	case status == http.StatusTooManyRequests ||
		strings.Contains(message, "Quota") ||
		strings.Contains(message, "rate limit"):
		return apperrors.NewRateLimitedError(message, nil)
	case (status == http.StatusForbidden || status == http.StatusBadRequest) &&
		(strings.Contains(message, "do not have permission") ||
			strings.Contains(message, "API has not been used")):
		return apperrors.NewPermissionError(message, nil)
	case strings.Contains(message, "location") || strings.Contains(message, "not supported"):
		return apperrors.NewPermissionError(message, nil).
			WithHint("the generative API appears blocked in your region; connect through a supported region and retry")
	default:
		return apperrors.NewProcessingError(fmt.Sprintf("API error (%d): %s", status, message), nil)
	}
}

// readErrorMessage pulls the error message out of a non-OK body, falling
// back to the raw text.
func readErrorMessage(r io.Reader) string {
	body, _ := io.ReadAll(r)
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return envelope.Error.Message
	}
	return string(body)
}
