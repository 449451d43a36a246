// Package interaction implements the InteractionService, the web front end
// of COACH. It keeps no state of its own: every page is assembled from the
// other services through their clients.
package interaction

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"sync"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/logging"
	"github.com/coach-dss/coach/internal/settings"
	"github.com/coach-dss/coach/services/authentication"
	"github.com/coach-dss/coach/services/casedb"
	"github.com/coach-dss/coach/services/directory"
	"github.com/coach-dss/coach/services/knowledge"
	"github.com/coach-dss/coach/services/ontology"
)

const (
	ServiceType = "InteractionService"
	Version     = "1.0.0"

	cookieUserID = "user_id"
	cookieToken  = "token"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Config configures the InteractionService.
type Config struct {
	Name     string
	Settings *settings.Settings
	Logger   *logging.Logger
}

// Service implements the InteractionService.
type Service struct {
	*coach.Microservice

	auth         *authentication.Client
	contextModel *ontology.Client
	knowledge    *knowledge.Client
	directory    *directory.Client
	contextClass string

	casesMu sync.Mutex
	cases   *casedb.Client
}

// New creates an InteractionService. authentication_service is required.
// The case database comes from case_db, or is looked up in the directory on
// first use. context_model and knowledge_repository are optional.
func New(cfg Config) (*Service, error) {
	base := coach.New(coach.Config{
		Name:     cfg.Name,
		Lineage:  []string{ServiceType},
		Version:  Version,
		Settings: cfg.Settings,
		Logger:   cfg.Logger,
	})

	s := &Service{
		Microservice: base,
		contextClass: base.SettingString("context_class", "Context"),
	}

	authProxy, err := base.PeerProxy("authentication_service")
	if err != nil {
		return nil, err
	}
	s.auth = authentication.NewClient(authProxy)

	if p, ok := s.optionalPeer("case_db"); ok {
		s.cases = casedb.NewClient(p)
	}
	if p, ok := s.optionalPeer("directory"); ok {
		s.directory = directory.NewClient(p)
	}
	if s.cases == nil && s.directory == nil {
		return nil, fmt.Errorf("one of the settings case_db or directory is required")
	}
	if p, ok := s.optionalPeer("context_model"); ok {
		s.contextModel = ontology.NewClient(p)
	}
	if p, ok := s.optionalPeer("knowledge_repository"); ok {
		s.knowledge = knowledge.NewClient(p)
	}

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) optionalPeer(key string) (*coach.Proxy, bool) {
	if !s.Settings().Has(s.Lineage(), key) {
		return nil, false
	}
	p, err := s.PeerProxy(key)
	return p, err == nil
}

// caseDB returns the case database client, asking the directory for the
// first registered CaseDatabase when case_db is not set.
func (s *Service) caseDB(ctx context.Context) (*casedb.Client, error) {
	s.casesMu.Lock()
	defer s.casesMu.Unlock()
	if s.cases != nil {
		return s.cases, nil
	}

	listings, err := s.directory.Services(ctx, casedb.ServiceType)
	if err != nil {
		return nil, err
	}
	if len(listings) == 0 {
		return nil, errors.Unavailable(casedb.ServiceType, fmt.Errorf("no instance registered in the directory"))
	}
	s.cases = casedb.NewClient(s.Proxy(listings[0].URL))
	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"name": listings[0].Name,
		"url":  listings[0].URL,
	}).Info("case database discovered")
	return s.cases, nil
}

// =============================================================================
// Sessions
// =============================================================================

// session returns the caller's session cookies after checking them with the
// authentication service.
func (s *Service) session(ctx context.Context) (casedb.Session, error) {
	r := coach.RequestFrom(ctx)
	if r == nil {
		return casedb.Session{}, errors.InvalidUserToken()
	}
	var sess casedb.Session
	if c, err := r.Cookie(cookieUserID); err == nil {
		sess.UserID = c.Value
	}
	if c, err := r.Cookie(cookieToken); err == nil {
		sess.Token = c.Value
	}
	if err := s.auth.Verify(ctx, sess.UserID, sess.Token); err != nil {
		return casedb.Session{}, err
	}
	return sess, nil
}

func sessionCookies(sess casedb.Session) []*http.Cookie {
	return []*http.Cookie{
		{Name: cookieUserID, Value: sess.UserID, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode},
		{Name: cookieToken, Value: sess.Token, Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode},
	}
}

func clearedCookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: cookieUserID, Path: "/", MaxAge: -1},
		{Name: cookieToken, Path: "/", MaxAge: -1},
	}
}

// =============================================================================
// Rendering
// =============================================================================

type pageData struct {
	Title      string
	UserID     string
	Error      string
	Notice     string
	Cases      []casedb.Case
	Case       casedb.CaseInfo
	Fields     []ontology.FormField
	Publishing bool
}

func render(name string, status int, data pageData) (*coach.Response, error) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, errors.Internal("failed to render page", err)
	}
	return &coach.Response{
		Status:      status,
		ContentType: "text/html; charset=utf-8",
		Body:        buf.Bytes(),
	}, nil
}

// failure turns an error from a peer into a page: session errors send the
// user back to the login form, anything else renders an error page.
func (s *Service) failure(ctx context.Context, userID string, err error) (any, error) {
	if errors.Is(err, errors.CodeInvalidToken) || errors.Is(err, errors.CodeUnauthorized) {
		return coach.Redirect("/", clearedCookies()...), nil
	}
	status := errors.HTTPStatus(err)
	msg := "Something went wrong"
	if se := errors.GetServiceError(err); se != nil && status < http.StatusInternalServerError {
		msg = se.Message
	}
	if status >= http.StatusInternalServerError {
		s.Logger().WithContext(ctx).WithError(err).Error("page failed")
	}
	return render("error.html", status, pageData{Title: "Error", UserID: userID, Error: msg})
}
