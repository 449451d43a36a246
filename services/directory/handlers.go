package directory

import (
	"context"
	"net/http"

	"github.com/coach-dss/coach/internal/coach"
)

func (s *Service) registerRoutes() error {
	return s.Register(
		coach.Endpoint{
			Name:    "add_service",
			Methods: []string{http.MethodPost},
			Params:  []string{"type", "name", "url"},
			Handler: s.handleAddService,
		},
		coach.Endpoint{
			Name:    "remove_service",
			Methods: []string{http.MethodPost},
			Params:  []string{"type", "name"},
			Handler: s.handleRemoveService,
		},
		coach.Endpoint{
			Name:    "get_services",
			Params:  []string{"type"},
			Handler: s.handleGetServices,
		},
		coach.Endpoint{
			Name:    "get_service_url",
			Params:  []string{"type", "name"},
			Handler: s.handleGetServiceURL,
		},
		coach.Endpoint{
			Name:    "get_directory",
			Handler: s.handleGetDirectory,
		},
	)
}

func (s *Service) handleAddService(ctx context.Context, args coach.Args) (any, error) {
	typ, err := args.Require("type")
	if err != nil {
		return nil, err
	}
	name, err := args.Require("name")
	if err != nil {
		return nil, err
	}
	if err := s.Add(typ, name, args.Get("url")); err != nil {
		return nil, err
	}
	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"type": typ,
		"name": name,
		"url":  args.Get("url"),
	}).Info("service registered")
	return "ok", nil
}

func (s *Service) handleRemoveService(ctx context.Context, args coach.Args) (any, error) {
	if err := s.Remove(args.Get("type"), args.Get("name")); err != nil {
		return nil, err
	}
	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"type": args.Get("type"),
		"name": args.Get("name"),
	}).Info("service removed")
	return "ok", nil
}

func (s *Service) handleGetServices(_ context.Context, args coach.Args) (any, error) {
	return s.OfType(args.Get("type")), nil
}

func (s *Service) handleGetServiceURL(_ context.Context, args coach.Args) (any, error) {
	return s.Lookup(args.Get("type"), args.Get("name"))
}

func (s *Service) handleGetDirectory(context.Context, coach.Args) (any, error) {
	return s.Entries(), nil
}
