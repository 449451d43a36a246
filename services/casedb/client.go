package casedb

import (
	"context"

	"github.com/coach-dss/coach/internal/coach"
)

// Client is a typed client for a remote CaseDatabase. Every call is made on
// behalf of one user session.
type Client struct {
	proxy *coach.Proxy
}

// NewClient wraps a proxy to a CaseDatabase.
func NewClient(proxy *coach.Proxy) *Client {
	return &Client{proxy: proxy}
}

// Session identifies the user on whose behalf calls are made.
type Session struct {
	UserID string
	Token  string
}

func (s Session) args(extra ...string) coach.Args {
	args := coach.Args{"user_id": s.UserID, "token": s.Token}
	for i := 0; i+1 < len(extra); i += 2 {
		args[extra[i]] = extra[i+1]
	}
	return args
}

func (c *Client) CreateCase(ctx context.Context, s Session, name, description string) (string, error) {
	return c.proxy.CallText(ctx, "create_case", s.args("name", name, "description", description))
}

func (c *Client) UserCases(ctx context.Context, s Session) ([]Case, error) {
	var cases []Case
	err := c.proxy.CallJSON(ctx, "user_cases", s.args(), &cases)
	return cases, err
}

func (c *Client) CaseInfo(ctx context.Context, s Session, caseID string) (CaseInfo, error) {
	var info CaseInfo
	err := c.proxy.CallJSON(ctx, "case_info", s.args("case_id", caseID), &info)
	return info, err
}

func (c *Client) AddStakeholder(ctx context.Context, s Session, caseID, userID, role string) error {
	_, err := c.proxy.Call(ctx, "add_stakeholder", s.args("case_id", caseID, "stakeholder", userID, "role", role))
	return err
}

func (c *Client) AddAlternative(ctx context.Context, s Session, caseID, title string) (string, error) {
	return c.proxy.CallText(ctx, "add_alternative", s.args("case_id", caseID, "title", title))
}

func (c *Client) ChangeCaseProperty(ctx context.Context, s Session, caseID, name, value string) error {
	_, err := c.proxy.Call(ctx, "change_case_property", s.args("case_id", caseID, "name", name, "value", value))
	return err
}

func (c *Client) CaseProperty(ctx context.Context, s Session, caseID, name string) (string, error) {
	return c.proxy.CallText(ctx, "get_case_property", s.args("case_id", caseID, "name", name))
}

// ExportCase returns the case as an N-Triples document.
func (c *Client) ExportCase(ctx context.Context, s Session, caseID string) (string, error) {
	return c.proxy.CallText(ctx, "export_case", s.args("case_id", caseID))
}

func (c *Client) DeleteCase(ctx context.Context, s Session, caseID string) error {
	_, err := c.proxy.Call(ctx, "delete_case", s.args("case_id", caseID))
	return err
}
