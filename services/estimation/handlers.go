package estimation

import (
	"context"
	"net/http"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/services/casedb"
)

func (s *Service) registerRoutes() error {
	return s.Register(
		coach.Endpoint{Name: "list_methods", Handler: s.handleListMethods},
		coach.Endpoint{Name: "method_info", Params: []string{"name"}, Handler: s.handleMethodInfo},
		coach.Endpoint{
			Name:    "estimate",
			Methods: []string{http.MethodPost, http.MethodGet},
			Params:  []string{"name", "inputs"},
			Handler: s.handleEstimate,
		},
		coach.Endpoint{
			Name:    "estimate_case",
			Methods: []string{http.MethodPost},
			Params:  []string{"user_id", "token", "case_id", "name"},
			Handler: s.handleEstimateCase,
		},
	)
}

func (s *Service) handleListMethods(context.Context, coach.Args) (any, error) {
	return s.Catalog().Infos(), nil
}

func (s *Service) handleMethodInfo(_ context.Context, args coach.Args) (any, error) {
	name := args.Get("name")
	m, ok := s.Catalog().Get(name)
	if !ok {
		return nil, errors.NotFound("method", name)
	}
	return m, nil
}

func (s *Service) handleEstimate(ctx context.Context, args coach.Args) (any, error) {
	var inputs map[string]any
	if err := args.JSON("inputs", &inputs); err != nil {
		return nil, err
	}
	if inputs == nil {
		return nil, errors.InvalidInput("inputs", "must be a JSON object")
	}
	return s.Estimate(ctx, args.Get("name"), inputs)
}

func (s *Service) handleEstimateCase(ctx context.Context, args coach.Args) (any, error) {
	session := casedb.Session{UserID: args.Get("user_id"), Token: args.Get("token")}
	return s.EstimateCase(ctx, session, args.Get("case_id"), args.Get("name"))
}
