// Package apiclient is a thin JSON client for the list and session endpoints
// the sync core needs.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/enzyme/client/internal/channel"
	"github.com/enzyme/client/internal/invitation"
	"github.com/enzyme/client/internal/message"
	"github.com/enzyme/client/internal/paging"
	"github.com/enzyme/client/internal/problem"
	"github.com/enzyme/client/internal/session"
	"github.com/oklog/ulid/v2"
)

// RefreshPath is the token refresh endpoint, relative to the base URL.
const RefreshPath = "/api/auth/refresh"

type Client struct {
	baseURL   *url.URL
	http      *http.Client
	creds     session.Source
	userAgent string
}

// New returns a client for the API at baseURL. creds may be nil for
// unauthenticated use.
func New(baseURL string, httpClient *http.Client, creds session.Source, userAgent string) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: u, http: httpClient, creds: creds, userAgent: userAgent}, nil
}

// EventsURL is the workspace event stream endpoint.
func (c *Client) EventsURL(workspaceID string) string {
	return c.endpoint("/api/workspaces/"+url.PathEscape(workspaceID)+"/events", nil)
}

type listResponse[T any] struct {
	Items      []T    `json:"items"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor,omitempty"`
}

func (c *Client) ListChannels(ctx context.Context, workspaceID string, req paging.Request) (paging.Page[channel.Channel], error) {
	return list[channel.Channel](ctx, c, "/api/workspaces/"+url.PathEscape(workspaceID)+"/channels", req)
}

func (c *Client) ListMessages(ctx context.Context, channelID string, req paging.Request) (paging.Page[message.Message], error) {
	return list[message.Message](ctx, c, "/api/channels/"+url.PathEscape(channelID)+"/messages", req)
}

func (c *Client) ListInvitations(ctx context.Context, workspaceID string, req paging.Request) (paging.Page[invitation.Invitation], error) {
	return list[invitation.Invitation](ctx, c, "/api/workspaces/"+url.PathEscape(workspaceID)+"/invitations", req)
}

func list[T any](ctx context.Context, c *Client, path string, req paging.Request) (paging.Page[T], error) {
	q := url.Values{}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	if req.Offset > 0 {
		q.Set("offset", strconv.Itoa(req.Offset))
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}

	var resp listResponse[T]
	if err := c.do(ctx, http.MethodGet, c.endpoint(path, q), nil, true, &resp); err != nil {
		return paging.Page[T]{}, err
	}
	if resp.Items == nil {
		resp.Items = []T{}
	}
	return paging.Page[T]{Items: resp.Items, HasNextPage: resp.HasMore}, nil
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshSession exchanges a refresh token. It matches session.RefreshFunc.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (session.Credentials, error) {
	var resp refreshResponse
	body := refreshRequest{RefreshToken: refreshToken}
	if err := c.do(ctx, http.MethodPost, c.endpoint(RefreshPath, nil), body, false, &resp); err != nil {
		return session.Credentials{}, err
	}
	if resp.AccessToken == "" {
		return session.Credentials{}, problem.New(problem.Protocol, fmt.Errorf("refresh response without access token"))
	}
	creds := session.Credentials{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}
	if resp.ExpiresIn > 0 {
		creds.ExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}
	return creds, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) do(ctx context.Context, method, target string, in any, auth bool, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return problem.New(problem.Unexpected, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return problem.New(problem.Unexpected, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", ulid.Make().String())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if auth && c.creds != nil {
		if tok := c.creds.Current().AccessToken; tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return problem.FromTransport(err)
	}
	defer resp.Body.Close()

	if err := problem.FromResponse(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			return problem.New(problem.Protocol, fmt.Errorf("decoding %s response: %w", req.URL.Path, err))
		}
		return problem.FromTransport(err)
	}
	return nil
}
