package directory

import (
	"context"
	"fmt"

	"github.com/coach-dss/coach/internal/coach"
)

// Client is a typed client for a remote DirectoryService.
type Client struct {
	proxy *coach.Proxy
}

// NewClient wraps a proxy to a DirectoryService.
func NewClient(proxy *coach.Proxy) *Client {
	return &Client{proxy: proxy}
}

// Listing is one [name, url] pair returned by Services.
type Listing struct {
	Name string
	URL  string
}

func (c *Client) AddService(ctx context.Context, typ, name, url string) error {
	_, err := c.proxy.Call(ctx, "add_service", coach.Args{"type": typ, "name": name, "url": url})
	return err
}

func (c *Client) RemoveService(ctx context.Context, typ, name string) error {
	_, err := c.proxy.Call(ctx, "remove_service", coach.Args{"type": typ, "name": name})
	return err
}

// Services lists the instances registered for typ.
func (c *Client) Services(ctx context.Context, typ string) ([]Listing, error) {
	var pairs [][]string
	if err := c.proxy.CallJSON(ctx, "get_services", coach.Args{"type": typ}, &pairs); err != nil {
		return nil, err
	}
	out := make([]Listing, 0, len(pairs))
	for _, p := range pairs {
		if len(p) != 2 {
			return nil, fmt.Errorf("malformed listing %v", p)
		}
		out = append(out, Listing{Name: p[0], URL: p[1]})
	}
	return out, nil
}

func (c *Client) ServiceURL(ctx context.Context, typ, name string) (string, error) {
	return c.proxy.CallText(ctx, "get_service_url", coach.Args{"type": typ, "name": name})
}

func (c *Client) Directory(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := c.proxy.CallJSON(ctx, "get_directory", nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
