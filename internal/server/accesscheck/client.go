// Package accesscheck resolves a bearer token to a platform public id by
// asking the remote authorization service.
package accesscheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/gophbucket/internal/common"
	"github.com/dmitrijs2005/gophbucket/internal/netx"
)

// Checker is what the HTTP layer needs from the access check.
type Checker interface {
	Check(ctx context.Context, token string, level int) (publicID string, err error)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

type checkResponse struct {
	PublicID string `json:"public_id"`
}

// Check calls baseURL+level with the token header. Any refusal, transport
// failure or response without a public id is common.ErrorUnauthorized.
func (c *Client) Check(ctx context.Context, token string, level int) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", common.ErrorUnauthorized)
	}

	var out checkResponse
	err := netx.GetJSON(ctx, c.http, c.baseURL+strconv.Itoa(level),
		map[string]string{common.AccessTokenHeaderName: token}, &out)
	if err != nil {
		var se *netx.StatusError
		if errors.As(err, &se) {
			return "", fmt.Errorf("%w: access check returned %d", common.ErrorUnauthorized, se.Code)
		}
		return "", fmt.Errorf("%w: access check failed: %v", common.ErrorUnauthorized, err)
	}
	if out.PublicID == "" {
		return "", fmt.Errorf("%w: no public_id returned", common.ErrorUnauthorized)
	}
	return out.PublicID, nil
}
