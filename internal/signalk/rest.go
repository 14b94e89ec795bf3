package signalk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResponseSize bounds REST response bodies.
const maxResponseSize = 4 << 20

// Self fetches the server's self identity ("vessels.urn:...") and returns
// the id part ("urn:..."). The result is cached for SelfID.
func (c *Client) Self(ctx context.Context) (string, error) {
	body, err := c.get(ctx, apiPath+"/self")
	if err != nil {
		return "", err
	}
	if body == nil {
		return "", fmt.Errorf("%w: server has no self", ErrInvalidSelf)
	}

	var self string
	if err := json.Unmarshal(body, &self); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidSelf, string(body))
	}
	if !strings.Contains(self, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidSelf, self)
	}

	c.setSelf(self)
	return c.SelfID(), nil
}

// ReadPath returns the JSON node at a full dotted path such as
// "vessels.self.navigation.position". It returns nil, nil when the server
// has no such node.
func (c *Client) ReadPath(ctx context.Context, path string) (json.RawMessage, error) {
	return c.get(ctx, apiPath+"/"+strings.ReplaceAll(path, ".", "/"))
}

// get performs a REST GET. A 404 returns nil, nil.
func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, requestTimeout)
		defer cancel()
	}

	u := *c.baseURL
	u.Path = strings.TrimSuffix(u.Path, "/") + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrUnauthorized, path, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: GET %s returned %d", ErrUnexpectedStatus, path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: GET %s returned invalid JSON", ErrUnexpectedStatus, path)
	}
	return json.RawMessage(body), nil
}
