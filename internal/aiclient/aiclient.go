// internal/aiclient/aiclient.go
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"clinicsync/internal/model"
)

// Client wraps the AI endpoints used for vision item scanning, speech
// transcription, and text refinement. The services are treated as
// unreliable: one bounded attempt each, errors surfaced to the caller, no
// retry layer here.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Enabled reports whether an endpoint is configured at all.
func (c *Client) Enabled() bool {
	return c.endpoint != ""
}

const itemScanSchema = `{"name":"string","category":"string","batch_number":"string","expiry_date":"RFC3339 date or null","quantity":"integer"}`

// ScanItem sends a base64 image of a physical item and expects structured
// item fields back.
func (c *Client) ScanItem(ctx context.Context, imageB64 string) (model.ItemScan, error) {
	var scan model.ItemScan
	err := c.call(ctx, "/v1/vision/scan", map[string]string{
		"image":  imageB64,
		"schema": itemScanSchema,
	}, &scan)
	if err != nil {
		return model.ItemScan{}, fmt.Errorf("item scan failed: %w", err)
	}
	return scan, nil
}

// Transcribe converts a base64 audio clip to text.
func (c *Client) Transcribe(ctx context.Context, audioB64 string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.call(ctx, "/v1/speech/transcribe", map[string]string{"audio": audioB64}, &out); err != nil {
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	return out.Text, nil
}

// Refine cleans up free-form text (report notes, dictated descriptions).
func (c *Client) Refine(ctx context.Context, text string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	if err := c.call(ctx, "/v1/text/refine", map[string]string{"text": text}, &out); err != nil {
		return "", fmt.Errorf("text refinement failed: %w", err)
	}
	return out.Text, nil
}

func (c *Client) call(ctx context.Context, path string, body interface{}, out interface{}) error {
	if !c.Enabled() {
		return fmt.Errorf("AI endpoint is not configured")
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
