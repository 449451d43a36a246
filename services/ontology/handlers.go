package ontology

import (
	"context"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
)

func (s *Service) registerRoutes() error {
	return s.Register(
		coach.Endpoint{Name: "get_ontology", Handler: s.handleGetOntology},
		coach.Endpoint{Name: "get_classes", Handler: s.handleGetClasses},
		coach.Endpoint{Name: "get_subclasses", Params: []string{"class"}, Handler: s.handleGetSubclasses},
		coach.Endpoint{Name: "get_individuals", Params: []string{"class"}, Handler: s.handleGetIndividuals},
		coach.Endpoint{Name: "get_individual", Params: []string{"name"}, Handler: s.handleGetIndividual},
		coach.Endpoint{Name: "get_form_fields", Params: []string{"class"}, Handler: s.handleGetFormFields},
	)
}

func (s *Service) handleGetOntology(context.Context, coach.Args) (any, error) {
	return s.Model().Document(), nil
}

func (s *Service) handleGetClasses(context.Context, coach.Args) (any, error) {
	return s.Model().Classes(), nil
}

// knownClass resolves the class argument against the current model.
func (s *Service) knownClass(args coach.Args) (*Model, string, error) {
	m := s.Model()
	name := args.Get("class")
	if _, ok := m.Class(name); !ok {
		return nil, "", errors.NotFound("class", name)
	}
	return m, name, nil
}

func (s *Service) handleGetSubclasses(_ context.Context, args coach.Args) (any, error) {
	m, name, err := s.knownClass(args)
	if err != nil {
		return nil, err
	}
	return m.Subclasses(name), nil
}

func (s *Service) handleGetIndividuals(_ context.Context, args coach.Args) (any, error) {
	m, name, err := s.knownClass(args)
	if err != nil {
		return nil, err
	}
	inds := m.Individuals(name)
	if inds == nil {
		inds = []Individual{}
	}
	return inds, nil
}

func (s *Service) handleGetIndividual(_ context.Context, args coach.Args) (any, error) {
	name := args.Get("name")
	ind, ok := s.Model().Individual(name)
	if !ok {
		return nil, errors.NotFound("individual", name)
	}
	return ind, nil
}

func (s *Service) handleGetFormFields(_ context.Context, args coach.Args) (any, error) {
	m, name, err := s.knownClass(args)
	if err != nil {
		return nil, err
	}
	return m.FormFields(name), nil
}
