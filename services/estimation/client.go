package estimation

import (
	"context"
	"encoding/json"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/services/casedb"
)

// Client is a typed client for a remote EstimationMethodService.
type Client struct {
	proxy *coach.Proxy
}

// NewClient wraps a proxy to an EstimationMethodService.
func NewClient(proxy *coach.Proxy) *Client {
	return &Client{proxy: proxy}
}

func (c *Client) Methods(ctx context.Context) ([]MethodInfo, error) {
	var out []MethodInfo
	err := c.proxy.CallJSON(ctx, "list_methods", nil, &out)
	return out, err
}

func (c *Client) Method(ctx context.Context, name string) (Method, error) {
	var m Method
	err := c.proxy.CallJSON(ctx, "method_info", coach.Args{"name": name}, &m)
	return m, err
}

func (c *Client) Estimate(ctx context.Context, name string, inputs map[string]any) (Estimate, error) {
	data, err := json.Marshal(inputs)
	if err != nil {
		return Estimate{}, err
	}
	var est Estimate
	err = c.proxy.CallJSON(ctx, "estimate", coach.Args{"name": name, "inputs": string(data)}, &est)
	return est, err
}

// EstimateCase estimates from a case's properties and stores the result on
// the case.
func (c *Client) EstimateCase(ctx context.Context, s casedb.Session, caseID, name string) (Estimate, error) {
	var est Estimate
	err := c.proxy.CallJSON(ctx, "estimate_case", coach.Args{
		"user_id": s.UserID,
		"token":   s.Token,
		"case_id": caseID,
		"name":    name,
	}, &est)
	return est, err
}
