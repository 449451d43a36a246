package knowledge

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/services/casedb"
)

func (s *Service) registerRoutes() error {
	return s.Register(
		coach.Endpoint{
			Name:    "publish",
			Methods: []string{http.MethodPost},
			Params:  []string{"user_id", "token", "case_id", "title", "content"},
			Handler: s.handlePublish,
		},
		coach.Endpoint{Name: "get_case", Params: []string{"case_id"}, Handler: s.handleGetCase},
		coach.Endpoint{Name: "list_cases", Handler: s.handleListCases},
		coach.Endpoint{Name: "query", Params: []string{"path"}, Handler: s.handleQuery},
		coach.Endpoint{
			Name:    "remove_case",
			Methods: []string{http.MethodPost},
			Params:  []string{"user_id", "token", "case_id"},
			Handler: s.handleRemoveCase,
		},
	)
}

func sessionOf(args coach.Args) casedb.Session {
	return casedb.Session{UserID: args.Get("user_id"), Token: args.Get("token")}
}

func (s *Service) handlePublish(ctx context.Context, args coach.Args) (any, error) {
	return s.Publish(ctx, sessionOf(args), args.Get("case_id"), args.Get("title"), args.Get("content"))
}

func (s *Service) handleGetCase(ctx context.Context, args coach.Args) (any, error) {
	caseID := args.Get("case_id")
	doc, err := s.store.Get(ctx, caseID)
	if err != nil {
		return nil, s.storeError(err, caseID)
	}
	return &coach.Response{ContentType: "application/n-triples", Body: []byte(doc.Content)}, nil
}

func (s *Service) handleListCases(ctx context.Context, _ coach.Args) (any, error) {
	docs, err := s.store.List(ctx)
	if err != nil {
		return nil, errors.Internal("failed to list documents", err)
	}
	out := make([]Summary, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Summary())
	}
	return out, nil
}

func (s *Service) handleQuery(ctx context.Context, args coach.Args) (any, error) {
	path, err := args.Require("path")
	if err != nil {
		return nil, err
	}
	result, err := s.Query(ctx, path)
	if err != nil {
		return nil, err
	}
	// Always JSON, including string results.
	body, err := json.Marshal(result)
	if err != nil {
		return nil, errors.Internal("failed to encode query result", err)
	}
	return &coach.Response{ContentType: "application/json", Body: body}, nil
}

func (s *Service) handleRemoveCase(ctx context.Context, args coach.Args) (any, error) {
	if err := s.Remove(ctx, sessionOf(args), args.Get("case_id")); err != nil {
		return nil, err
	}
	return "ok", nil
}
