package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/common"
	"github.com/dmitrijs2005/gophbucket/internal/netx"
)

// ErrUnavailable reports that the server could not be reached or failed.
var ErrUnavailable = errors.New("server unavailable")

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient targets baseURL, e.g. "http://127.0.0.1:8080".
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) url(path string) string {
	return c.baseURL + path
}

func authHeaders(token string) map[string]string {
	return map[string]string{common.AccessTokenHeaderName: token}
}

// mapError converts transport and status failures into sentinel errors.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var se *netx.StatusError
	if !errors.As(err, &se) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	switch se.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", common.ErrorUnauthorized, se.Body)
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusBadRequest, http.StatusTooManyRequests:
		return fmt.Errorf("request rejected: %d %s", se.Code, se.Body)
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, se)
	}
}

func (c *HTTPClient) Ping(ctx context.Context) error {
	return mapError(netx.GetJSON(ctx, c.http, c.url("/aws/status"), nil, nil))
}

// Provision asks the server to provision the caller's identity. publicID is
// optional; when set the server checks it against the token's owner.
func (c *HTTPClient) Provision(ctx context.Context, token, publicID string) error {
	var body any
	if publicID != "" {
		body = map[string]string{"public_id": publicID}
	}
	return mapError(netx.PostJSON(ctx, c.http, c.url("/aws/user"), authHeaders(token), body, nil))
}

func (c *HTTPClient) Details(ctx context.Context, token string) (*Identity, error) {
	var out Identity
	if err := netx.GetJSON(ctx, c.http, c.url("/aws/user"), authHeaders(token), &out); err != nil {
		return nil, mapError(err)
	}
	return &out, nil
}

func (c *HTTPClient) UploadURLs(ctx context.Context, token string, objects []string) ([]UploadURL, error) {
	var out struct {
		URLs []UploadURL `json:"urls"`
	}
	in := map[string][]string{"objects": objects}
	if err := netx.PostJSON(ctx, c.http, c.url("/aws/urls"), authHeaders(token), in, &out); err != nil {
		return nil, mapError(err)
	}
	return out.URLs, nil
}
