// internal/restapi/client.go
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const requestTimeout = 15 * time.Second

// Client talks to the remote store's collection endpoints. Every
// authenticated request carries the bearer token plus the static apikey
// header. The token lives on the client instance, guarded by a mutex, with
// lifecycle unset -> set -> cleared; nothing else in the process caches it.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

// SetAccessToken installs the session token. Must be called before any
// authenticated request of a fetch cycle is issued.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ClearAccessToken drops the token; subsequent requests fail closed.
func (c *Client) ClearAccessToken() {
	c.SetAccessToken("")
}

func (c *Client) accessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// List fetches a collection as a JSON array into out. Without a token it
// fails closed with ErrNoSession rather than querying anonymously.
func (c *Client) List(ctx context.Context, collection string, params url.Values, out interface{}) error {
	token := c.accessToken()
	if token == "" {
		return ErrNoSession
	}

	endpoint := c.baseURL + "/" + collection
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", collection, err)
	}
	c.setHeaders(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s failed: %w", collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrNoSession
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s returned status %d", collection, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", collection, err)
	}
	return nil
}

// Insert POSTs body to the collection and decodes the returned
// representation into out (pass nil to discard it).
func (c *Client) Insert(ctx context.Context, collection string, body interface{}, out interface{}) error {
	return c.write(ctx, http.MethodPost, collection, nil, body, out)
}

// Update PATCHes the row matching id. Zero matched rows is the soft failure
// ErrNoRowsAffected.
func (c *Client) Update(ctx context.Context, collection, id string, body interface{}) error {
	params := url.Values{"id": {"eq." + id}}
	var updated []json.RawMessage
	if err := c.write(ctx, http.MethodPatch, collection, params, body, &updated); err != nil {
		return err
	}
	if len(updated) == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// Delete removes the row matching id, with the same zero-row semantics as
// Update.
func (c *Client) Delete(ctx context.Context, collection, id string) error {
	params := url.Values{"id": {"eq." + id}}
	var deleted []json.RawMessage
	if err := c.write(ctx, http.MethodDelete, collection, params, nil, &deleted); err != nil {
		return err
	}
	if len(deleted) == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

// DeleteWhere removes all rows matching the filter params. Matching nothing
// is not an error here; it is used for dependent-row cleanup.
func (c *Client) DeleteWhere(ctx context.Context, collection string, params url.Values) error {
	return c.write(ctx, http.MethodDelete, collection, params, nil, nil)
}

func (c *Client) write(ctx context.Context, method, collection string, params url.Values, body, out interface{}) error {
	token := c.accessToken()
	if token == "" {
		return ErrNoSession
	}

	endpoint := c.baseURL + "/" + collection
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal %s body: %w", collection, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", collection, err)
	}
	c.setHeaders(req, token)
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s failed: %w", method, collection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return ErrNoSession
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s returned status %d", method, collection, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", collection, err)
		}
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
}
