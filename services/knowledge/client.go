package knowledge

import (
	"context"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/services/casedb"
)

// Client is a typed client for a remote KnowledgeRepositoryService.
type Client struct {
	proxy *coach.Proxy
}

// NewClient wraps a proxy to a KnowledgeRepositoryService.
func NewClient(proxy *coach.Proxy) *Client {
	return &Client{proxy: proxy}
}

// Publish stores an N-Triples document for a case on behalf of session.
func (c *Client) Publish(ctx context.Context, session casedb.Session, caseID, title, content string) (Summary, error) {
	var sum Summary
	err := c.proxy.CallJSON(ctx, "publish", coach.Args{
		"user_id": session.UserID,
		"token":   session.Token,
		"case_id": caseID,
		"title":   title,
		"content": content,
	}, &sum)
	return sum, err
}

// Case returns the published N-Triples document of a case.
func (c *Client) Case(ctx context.Context, caseID string) (string, error) {
	return c.proxy.CallText(ctx, "get_case", coach.Args{"case_id": caseID})
}

func (c *Client) Cases(ctx context.Context) ([]Summary, error) {
	var out []Summary
	err := c.proxy.CallJSON(ctx, "list_cases", nil, &out)
	return out, err
}

// Query evaluates a JSONPath expression and decodes the result into v.
func (c *Client) Query(ctx context.Context, path string, v any) error {
	return c.proxy.CallJSON(ctx, "query", coach.Args{"path": path}, v)
}

func (c *Client) Remove(ctx context.Context, session casedb.Session, caseID string) error {
	_, err := c.proxy.Call(ctx, "remove_case", coach.Args{
		"user_id": session.UserID,
		"token":   session.Token,
		"case_id": caseID,
	})
	return err
}
