// Package client provides a Go SDK for talking to one node of the document
// store.
//
// Big idea:
//
// Instead of writing raw HTTP requests everywhere,
// we wrap them inside a clean Go API.
//
// So instead of:
//
//	http.NewRequest(...)
//	json.Marshal(...)
//
// Users can simply call:
//
//	client.Create(ctx, doc)
//	client.Get(ctx, id)
//
// This is called a "client library" or "SDK".
//
// It hides:
//   - HTTP details
//   - Bearer auth
//   - JSON encoding/decoding
//   - Error handling
//
// And exposes a clean Go interface.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/distributed-docstore/docstore/internal/model"
)

// Client represents a connection to ONE document store node.
//
// Important:
//
// This client talks to a single node.
// That node is responsible for:
//   - Performing the local CAS write
//   - Fanning the change out to its peers
//
// So the client does NOT implement replication logic.
// It just talks to one node over its public HTTP surface.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a new Client.
//
// baseURL example:
//
//	"http://localhost:8080"
//
// token is sent as "Authorization: Bearer <token>" on every request.
//
// timeout protects us from hanging forever.
// In distributed systems:
//
//	NEVER call network without timeout.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	return out, c.do(ctx, http.MethodGet, "/health", nil, &out)
}

// ListIDs retrieves up to 1000 document ids known to the node.
func (c *Client) ListIDs(ctx context.Context) ([]string, error) {
	var out struct {
		IDs []string `json:"ids"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/docs", nil, &out); err != nil {
		return nil, err
	}
	return out.IDs, nil
}

// Create stores doc, assigning an _id if doc carries none. Flow:
//
//  1. Create JSON body
//  2. Build HTTP POST request
//  3. Send request
//  4. Check status
//  5. Decode response
//
// CAS and replication happen inside the server. This client only performs
// the HTTP call.
func (c *Client) Create(ctx context.Context, doc model.Document) (model.Document, error) {
	var out model.Document
	err := c.do(ctx, http.MethodPost, "/api/docs", doc, &out)
	return out, err
}

// Update is Create with an explicit _rev on doc, performing a CAS write
// against the document's current revision.
func (c *Client) Update(ctx context.Context, doc model.Document) (model.Document, error) {
	return c.Create(ctx, doc)
}

// Get retrieves the document stored under id.
//
// Special case:
//
//	If server returns 404
//	We convert it into ErrNotFound
func (c *Client) Get(ctx context.Context, id string) (model.Document, error) {
	var out model.Document
	err := c.do(ctx, http.MethodGet, "/api/docs/"+id, nil, &out)
	if err != nil {
		var apiErr *APIError
		if asAPIError(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return out, nil
}

// Delete removes the document stored under id.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/docs/"+id, nil, nil)
}

// ─── internals ──────────────────────────────────────────────────────────

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ─── Errors ───────────────────────────────────────────────────────────────

// ErrNotFound is returned when a document does not exist on the server.
var ErrNotFound = fmt.Errorf("document not found")

// APIError carries the HTTP status and the error message from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

func asAPIError(err error, target **APIError) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}

// checkStatus converts HTTP error responses into Go errors.
//
// If status is 2xx → success.
// Otherwise:
//
//  1. Read response body
//  2. Try parsing {"error": "..."} JSON
//  3. Return APIError
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	var apiErr struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(body, &apiErr)
	msg := apiErr.Error
	if msg == "" {
		msg = string(body)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
