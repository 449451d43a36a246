package interaction

import (
	"context"
	"net/http"
	"net/url"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/services/casedb"
	"github.com/coach-dss/coach/services/knowledge"
)

func (s *Service) registerRoutes() error {
	post := []string{http.MethodPost}
	return s.Register(
		coach.Endpoint{Name: "index", Path: "/", Handler: s.handleIndex},
		coach.Endpoint{Name: "login", Methods: post, Params: []string{"user_id", "password"}, Handler: s.handleLogin},
		coach.Endpoint{Name: "logout", Handler: s.handleLogout},
		coach.Endpoint{Name: "main", Handler: s.handleMain},
		coach.Endpoint{Name: "create_case", Methods: post, Params: []string{"name", "description"}, Handler: s.handleCreateCase},
		coach.Endpoint{Name: "case", Params: []string{"case_id"}, Handler: s.handleCase},
		coach.Endpoint{Name: "set_property", Methods: post, Params: []string{"case_id", "name", "value"}, Handler: s.handleSetProperty},
		coach.Endpoint{Name: "publish_case", Methods: post, Params: []string{"case_id"}, Handler: s.handlePublishCase},
	)
}

func casePage(caseID string, query ...string) string {
	v := url.Values{"case_id": {caseID}}
	for i := 0; i+1 < len(query); i += 2 {
		v.Set(query[i], query[i+1])
	}
	return "/case?" + v.Encode()
}

func (s *Service) handleIndex(context.Context, coach.Args) (any, error) {
	return render("index.html", http.StatusOK, pageData{Title: "Log in"})
}

func (s *Service) handleLogin(ctx context.Context, args coach.Args) (any, error) {
	userID := args.Get("user_id")
	token, err := s.auth.UserToken(ctx, userID, args.Get("password"))
	if errors.Is(err, errors.CodeUnauthorized) || errors.Is(err, errors.CodeInvalidInput) {
		s.Logger().LogSecurityEvent(ctx, "login_failed", map[string]interface{}{"user_id": userID})
		return render("index.html", http.StatusUnauthorized, pageData{Title: "Log in", Error: "Invalid user or password"})
	}
	if err != nil {
		return s.failure(ctx, "", err)
	}
	return coach.Redirect("/main", sessionCookies(casedb.Session{UserID: userID, Token: token})...), nil
}

func (s *Service) handleLogout(ctx context.Context, _ coach.Args) (any, error) {
	if sess, err := s.session(ctx); err == nil {
		if err := s.auth.Logout(ctx, sess.UserID, sess.Token); err != nil {
			s.Logger().WithContext(ctx).WithError(err).Warn("logout failed")
		}
	}
	return coach.Redirect("/", clearedCookies()...), nil
}

func (s *Service) handleMain(ctx context.Context, _ coach.Args) (any, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return s.failure(ctx, "", err)
	}
	db, err := s.caseDB(ctx)
	if err != nil {
		return s.failure(ctx, sess.UserID, err)
	}
	cases, err := db.UserCases(ctx, sess)
	if err != nil {
		return s.failure(ctx, sess.UserID, err)
	}
	return render("main.html", http.StatusOK, pageData{Title: "Cases", UserID: sess.UserID, Cases: cases})
}

func (s *Service) handleCreateCase(ctx context.Context, args coach.Args) (any, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return s.failure(ctx, "", err)
	}
	db, err := s.caseDB(ctx)
	if err != nil {
		return s.failure(ctx, sess.UserID, err)
	}
	id, err := db.CreateCase(ctx, sess, args.Get("name"), args.Get("description"))
	if err != nil {
		return s.failure(ctx, sess.UserID, err)
	}
	return coach.Redirect(casePage(id)), nil
}

func (s *Service) handleCase(ctx context.Context, args coach.Args) (any, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return s.failure(ctx, "", err)
	}
	db, err := s.caseDB(ctx)
	if err != nil {
		return s.failure(ctx, sess.UserID, err)
	}
	info, err := db.CaseInfo(ctx, sess, args.Get("case_id"))
	if err != nil {
		return s.failure(ctx, sess.UserID, err)
	}

	data := pageData{
		Title:      info.Name,
		UserID:     sess.UserID,
		Case:       info,
		Publishing: s.knowledge != nil,
	}
	if r := coach.RequestFrom(ctx); r != nil && r.URL.Query().Get("published") != "" {
		data.Notice = "Case published."
	}
	if s.contextModel != nil {
		fields, err := s.contextModel.FormFields(ctx, s.contextClass)
		if err != nil {
			// The case is still usable without its context form.
			s.Logger().WithContext(ctx).WithError(err).Warn("context model unavailable")
			data.Error = "Context model unavailable"
		}
		data.Fields = fields
	}
	return render("case.html", http.StatusOK, data)
}

func (s *Service) handleSetProperty(ctx context.Context, args coach.Args) (any, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return s.failure(ctx, "", err)
	}
	db, err := s.caseDB(ctx)
	if err != nil {
		return s.failure(ctx, sess.UserID, err)
	}
	caseID := args.Get("case_id")
	if err := db.ChangeCaseProperty(ctx, sess, caseID, args.Get("name"), args.Get("value")); err != nil {
		return s.failure(ctx, sess.UserID, err)
	}
	return coach.Redirect(casePage(caseID)), nil
}

func (s *Service) handlePublishCase(ctx context.Context, args coach.Args) (any, error) {
	sess, err := s.session(ctx)
	if err != nil {
		return s.failure(ctx, "", err)
	}
	if s.knowledge == nil {
		return s.failure(ctx, sess.UserID, errors.Unavailable(knowledge.ServiceType, nil))
	}
	db, err := s.caseDB(ctx)
	if err != nil {
		return s.failure(ctx, sess.UserID, err)
	}

	caseID := args.Get("case_id")
	info, err := db.CaseInfo(ctx, sess, caseID)
	if err != nil {
		return s.failure(ctx, sess.UserID, err)
	}
	doc, err := db.ExportCase(ctx, sess, caseID)
	if err != nil {
		return s.failure(ctx, sess.UserID, err)
	}
	if _, err := s.knowledge.Publish(ctx, sess, caseID, info.Name, doc); err != nil {
		return s.failure(ctx, sess.UserID, err)
	}
	return coach.Redirect(casePage(caseID, "published", "1")), nil
}
