package playback

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// StatusSource supplies the authoritative backend run-state. The poll
// result always wins over in-flight probe/attach activity: a not-running
// report forces full teardown.
type StatusSource interface {
	Status(ctx context.Context) (BackendStatus, error)
}

// BackendStatusClient reads the transcoder control API's status feed:
// a JSON document with at least running, manifest_url, and last_error.
type BackendStatusClient struct {
	statusURL string
	client    *http.Client
}

// NewBackendStatusClient returns a client for the given status URL.
// A nil httpClient falls back to a short-timeout default.
func NewBackendStatusClient(statusURL string, httpClient *http.Client) *BackendStatusClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &BackendStatusClient{statusURL: statusURL, client: httpClient}
}

// Status implements StatusSource.Status.
func (c *BackendStatusClient) Status(ctx context.Context) (BackendStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL, nil)
	if err != nil {
		return BackendStatus{}, fmt.Errorf("backend status: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return BackendStatus{}, fmt.Errorf("backend status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return BackendStatus{}, fmt.Errorf("backend status: status %d", resp.StatusCode)
	}

	var st BackendStatus
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return BackendStatus{}, fmt.Errorf("backend status: decode: %w", err)
	}
	return st, nil
}
