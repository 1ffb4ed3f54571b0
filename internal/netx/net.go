// Package netx holds small outbound HTTP helpers.
package netx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
)

// maxBody caps how much of a response body is read.
const maxBody = 1 << 20

// GetJSON issues a GET to url with the given headers and decodes a 200 JSON
// response into out. Any other status is returned as an error carrying the
// status and a body excerpt.
func GetJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, out any) error {
	return do(ctx, client, http.MethodGet, url, headers, nil, out, http.StatusOK)
}

// PostJSON encodes in as the request body (no body when in is nil) and
// decodes a 200 or 201 JSON response into out.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	return do(ctx, client, http.MethodPost, url, headers, body, out, http.StatusOK, http.StatusCreated)
}

func do(ctx context.Context, client *http.Client, method, url string, headers map[string]string, body io.Reader, out any, accepted ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return err
	}
	if !slices.Contains(accepted, resp.StatusCode) {
		return &StatusError{Code: resp.StatusCode, Body: excerpt(data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: %d %s; body: %s", e.Code, http.StatusText(e.Code), e.Body)
}

func excerpt(b []byte) string {
	const n = 256
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
