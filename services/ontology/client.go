package ontology

import (
	"context"

	"github.com/coach-dss/coach/internal/coach"
)

// Client is a typed client for a remote model service.
type Client struct {
	proxy *coach.Proxy
}

// NewClient wraps a proxy to a model service.
func NewClient(proxy *coach.Proxy) *Client {
	return &Client{proxy: proxy}
}

func (c *Client) Ontology(ctx context.Context) (Document, error) {
	var doc Document
	err := c.proxy.CallJSON(ctx, "get_ontology", nil, &doc)
	return doc, err
}

func (c *Client) Classes(ctx context.Context) ([]Class, error) {
	var classes []Class
	err := c.proxy.CallJSON(ctx, "get_classes", nil, &classes)
	return classes, err
}

func (c *Client) Subclasses(ctx context.Context, class string) ([]Class, error) {
	var classes []Class
	err := c.proxy.CallJSON(ctx, "get_subclasses", coach.Args{"class": class}, &classes)
	return classes, err
}

func (c *Client) Individuals(ctx context.Context, class string) ([]Individual, error) {
	var inds []Individual
	err := c.proxy.CallJSON(ctx, "get_individuals", coach.Args{"class": class}, &inds)
	return inds, err
}

func (c *Client) Individual(ctx context.Context, name string) (Individual, error) {
	var ind Individual
	err := c.proxy.CallJSON(ctx, "get_individual", coach.Args{"name": name}, &ind)
	return ind, err
}

// FormFields returns the inputs a case page shows for class.
func (c *Client) FormFields(ctx context.Context, class string) ([]FormField, error) {
	var fields []FormField
	err := c.proxy.CallJSON(ctx, "get_form_fields", coach.Args{"class": class}, &fields)
	return fields, err
}
