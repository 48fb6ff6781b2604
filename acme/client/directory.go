package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cpu/vaultcert/acme/resources"
	"go.uber.org/zap"
)

// FetchDirectory fetches the ACME Directory resource from the ACME server,
// replacing any directory the Client holds.
//
// See https://tools.ietf.org/html/rfc8555#section-7.1.1
func (c *Client) FetchDirectory(ctx context.Context) (resources.Directory, error) {
	resp, err := c.net.GetURL(ctx, c.DirectoryURL)
	if err != nil {
		return nil, fmt.Errorf("fetching directory: %w", err)
	}
	if resp.Response.StatusCode != http.StatusOK {
		return nil, newProtocolError("directory", resp)
	}

	var directory resources.Directory
	if err := json.Unmarshal(resp.RespBody, &directory); err != nil {
		return nil, invalidJSON("directory", resp, err)
	}

	c.mu.Lock()
	c.directory = directory
	c.mu.Unlock()
	c.log.Debug("updated directory", zap.String("url", c.DirectoryURL))
	return directory, nil
}

// Directory returns the Client's directory, fetching it if the Client does
// not have one yet.
func (c *Client) Directory(ctx context.Context) (resources.Directory, error) {
	c.mu.Lock()
	dir := c.directory
	c.mu.Unlock()
	if dir != nil {
		return dir, nil
	}
	return c.FetchDirectory(ctx)
}

// GetEndpointURL returns the URL for a named ACME endpoint from the directory.
func (c *Client) GetEndpointURL(ctx context.Context, name string) (string, error) {
	dir, err := c.Directory(ctx)
	if err != nil {
		return "", err
	}
	endpoint, ok := dir.Endpoint(name)
	if !ok {
		return "", fmt.Errorf("ACME server missing %q endpoint in directory", name)
	}
	return endpoint, nil
}
