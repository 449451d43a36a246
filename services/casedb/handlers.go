package casedb

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/rdf"
)

func (s *Service) registerRoutes() error {
	post := []string{http.MethodPost}
	return s.Register(
		coach.Endpoint{Name: "create_case", Methods: post,
			Params: []string{"user_id", "token", "name", "description"}, Handler: s.handleCreateCase},
		coach.Endpoint{Name: "user_cases",
			Params: []string{"user_id", "token"}, Handler: s.handleUserCases},
		coach.Endpoint{Name: "case_info",
			Params: []string{"user_id", "token", "case_id"}, Handler: s.handleCaseInfo},
		coach.Endpoint{Name: "add_stakeholder", Methods: post,
			Params: []string{"user_id", "token", "case_id", "stakeholder", "role"}, Handler: s.handleAddStakeholder},
		coach.Endpoint{Name: "add_alternative", Methods: post,
			Params: []string{"user_id", "token", "case_id", "title"}, Handler: s.handleAddAlternative},
		coach.Endpoint{Name: "change_case_property", Methods: post,
			Params: []string{"user_id", "token", "case_id", "name", "value"}, Handler: s.handleChangeCaseProperty},
		coach.Endpoint{Name: "get_case_property",
			Params: []string{"user_id", "token", "case_id", "name"}, Handler: s.handleGetCaseProperty},
		coach.Endpoint{Name: "export_case",
			Params: []string{"user_id", "token", "case_id"}, Handler: s.handleExportCase},
		coach.Endpoint{Name: "delete_case", Methods: post,
			Params: []string{"user_id", "token", "case_id"}, Handler: s.handleDeleteCase},
	)
}

func (s *Service) handleCreateCase(ctx context.Context, args coach.Args) (any, error) {
	userID := args.Get("user_id")
	if err := s.authenticate(ctx, userID, args.Get("token")); err != nil {
		return nil, err
	}
	id, err := s.CreateCase(ctx, userID, args.Get("name"), args.Get("description"))
	if err != nil {
		return nil, err
	}
	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"case_id": id,
		"user_id": userID,
	}).Info("case created")
	return id, nil
}

func (s *Service) handleUserCases(ctx context.Context, args coach.Args) (any, error) {
	userID := args.Get("user_id")
	if err := s.authenticate(ctx, userID, args.Get("token")); err != nil {
		return nil, err
	}
	cases, err := s.store.UserCases(ctx, userID)
	if err != nil {
		return nil, errors.Internal("failed to list cases", err)
	}
	return cases, nil
}

func (s *Service) handleCaseInfo(ctx context.Context, args coach.Args) (any, error) {
	caseID := args.Get("case_id")
	if _, err := s.authorize(ctx, args.Get("user_id"), args.Get("token"), caseID); err != nil {
		return nil, err
	}
	return s.Info(ctx, caseID)
}

func (s *Service) handleAddStakeholder(ctx context.Context, args coach.Args) (any, error) {
	caseID := args.Get("case_id")
	role, err := s.authorize(ctx, args.Get("user_id"), args.Get("token"), caseID)
	if err != nil {
		return nil, err
	}
	stakeholder, err := args.Require("stakeholder")
	if err != nil {
		return nil, err
	}
	newRole, err := args.Require("role")
	if err != nil {
		return nil, err
	}
	if err := s.setStakeholder(ctx, role, Stakeholder{CaseID: caseID, UserID: stakeholder, Role: newRole}); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Service) handleAddAlternative(ctx context.Context, args coach.Args) (any, error) {
	caseID := args.Get("case_id")
	if _, err := s.authorize(ctx, args.Get("user_id"), args.Get("token"), caseID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(args.Get("title"))
	if title == "" {
		return nil, errors.InvalidInput("title", "must not be empty")
	}
	alt := Alternative{ID: uuid.NewString(), CaseID: caseID, Title: title}
	if err := s.store.AddAlternative(ctx, alt); err != nil {
		return nil, s.storeError(err, "case", caseID)
	}
	return alt.ID, nil
}

func (s *Service) handleChangeCaseProperty(ctx context.Context, args coach.Args) (any, error) {
	caseID := args.Get("case_id")
	if _, err := s.authorize(ctx, args.Get("user_id"), args.Get("token"), caseID); err != nil {
		return nil, err
	}
	if err := s.setProperty(ctx, caseID, args.Get("name"), args.Get("value")); err != nil {
		return nil, err
	}
	return "ok", nil
}

func (s *Service) handleGetCaseProperty(ctx context.Context, args coach.Args) (any, error) {
	caseID := args.Get("case_id")
	if _, err := s.authorize(ctx, args.Get("user_id"), args.Get("token"), caseID); err != nil {
		return nil, err
	}
	name := args.Get("name")
	if !ValidPropertyName(name) {
		return nil, errors.InvalidInput("name", "must match "+propertyNamePattern.String())
	}
	value, err := s.store.Property(ctx, caseID, name)
	if err != nil {
		return nil, s.storeError(err, "property", name)
	}
	return value, nil
}

func (s *Service) handleExportCase(ctx context.Context, args coach.Args) (any, error) {
	caseID := args.Get("case_id")
	if _, err := s.authorize(ctx, args.Get("user_id"), args.Get("token"), caseID); err != nil {
		return nil, err
	}
	info, err := s.Info(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return &coach.Response{
		ContentType: "application/n-triples",
		Body:        []byte(rdf.Marshal(Triples(info))),
	}, nil
}

func (s *Service) handleDeleteCase(ctx context.Context, args coach.Args) (any, error) {
	caseID := args.Get("case_id")
	role, err := s.authorize(ctx, args.Get("user_id"), args.Get("token"), caseID)
	if err != nil {
		return nil, err
	}
	if role != RoleOwner {
		return nil, errors.Forbidden("only owners may delete a case")
	}
	if err := s.store.DeleteCase(ctx, caseID); err != nil {
		return nil, s.storeError(err, "case", caseID)
	}
	s.Logger().WithContext(ctx).WithField("case_id", caseID).Info("case deleted")
	return "ok", nil
}
