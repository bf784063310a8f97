package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/taskpadhq/taskpad/internal/document"
)

const defaultRequestTimeout = 10 * time.Second

var (
	// ErrUnauthorized indicates the server rejected the shared credential.
	ErrUnauthorized      = errors.New("client: server rejected credential")
	errMissingServerURL  = errors.New("server URL must be provided")
	errMissingCredential = errors.New("credential must be provided")
)

// Transport pushes document state to the synchronization server and reads
// back the merge outcome. The HTTP client below is the production
// implementation; tests substitute fakes.
type Transport interface {
	Push(ctx context.Context, content string, clientTimestamp int64) (document.SyncResult, error)
}

// HistoryEntry is one archived revision as reported by the server.
type HistoryEntry struct {
	ID        int64 `json:"id"`
	CreatedAt int64 `json:"created_at"`
}

// APIClientConfig configures the HTTP transport.
type APIClientConfig struct {
	ServerURL  string
	Credential string
	HTTPClient *http.Client
}

// APIClient talks to the taskpad server over its JSON endpoints.
type APIClient struct {
	baseURL    string
	credential string
	httpClient *http.Client
}

// NewAPIClient validates the configuration and builds the transport.
func NewAPIClient(cfg APIClientConfig) (*APIClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.ServerURL), "/")
	if baseURL == "" {
		return nil, errMissingServerURL
	}
	credential := strings.TrimSpace(cfg.Credential)
	if credential == "" {
		return nil, errMissingCredential
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &APIClient{
		baseURL:    baseURL,
		credential: credential,
		httpClient: httpClient,
	}, nil
}

type syncPayload struct {
	Credential      string `json:"credential"`
	Content         string `json:"content"`
	ClientTimestamp int64  `json:"client_timestamp"`
}

type syncResponse struct {
	Status    string `json:"status"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Push submits the local document state and returns the server's decision.
func (c *APIClient) Push(ctx context.Context, content string, clientTimestamp int64) (document.SyncResult, error) {
	var decoded syncResponse
	err := c.postJSON(ctx, "/sync", syncPayload{
		Credential:      c.credential,
		Content:         content,
		ClientTimestamp: clientTimestamp,
	}, &decoded)
	if err != nil {
		return document.SyncResult{}, err
	}
	return document.SyncResult{
		Status:    document.SyncStatus(decoded.Status),
		Content:   decoded.Content,
		Timestamp: decoded.Timestamp,
	}, nil
}

type historyPayload struct {
	Credential string `json:"credential"`
	Action     string `json:"action"`
	ID         int64  `json:"id,omitempty"`
}

// ListHistory fetches archived revision summaries, newest first.
func (c *APIClient) ListHistory(ctx context.Context) ([]HistoryEntry, error) {
	var decoded struct {
		History []HistoryEntry `json:"history"`
	}
	err := c.postJSON(ctx, "/history", historyPayload{
		Credential: c.credential,
		Action:     "list",
	}, &decoded)
	if err != nil {
		return nil, err
	}
	return decoded.History, nil
}

// RevisionContent fetches the full text of one archived revision.
func (c *APIClient) RevisionContent(ctx context.Context, revisionID int64) (string, error) {
	var decoded struct {
		Content string `json:"content"`
	}
	err := c.postJSON(ctx, "/history", historyPayload{
		Credential: c.credential,
		Action:     "get",
		ID:         revisionID,
	}, &decoded)
	if err != nil {
		return "", err
	}
	return decoded.Content, nil
}

func (c *APIClient) postJSON(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("client: failed to encode request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("client: failed to build request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("client: request to %s failed: %w", path, err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusUnauthorized:
		io.Copy(io.Discard, response.Body)
		return ErrUnauthorized
	case response.StatusCode != http.StatusOK:
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, 512))
		return fmt.Errorf("client: %s returned status %d: %s", path, response.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("client: failed to decode %s response: %w", path, err)
	}
	return nil
}
