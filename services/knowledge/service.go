// Package knowledge implements the KnowledgeRepositoryService, where
// finished cases are published as RDF documents for later reuse.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/logging"
	"github.com/coach-dss/coach/internal/rdf"
	"github.com/coach-dss/coach/internal/settings"
	"github.com/coach-dss/coach/services/casedb"
)

const (
	ServiceType = "KnowledgeRepositoryService"
	Version     = "1.0.0"
)

// CaseAccess is the part of the CaseDatabase client used to check that a
// session may act on a case.
type CaseAccess interface {
	CaseInfo(ctx context.Context, s casedb.Session, caseID string) (casedb.CaseInfo, error)
}

// Config configures the KnowledgeRepositoryService.
type Config struct {
	Name     string
	Settings *settings.Settings
	Logger   *logging.Logger
	// Store overrides the "store" setting.
	Store Store
	// Cases overrides the "case_database" setting.
	Cases CaseAccess
}

// Service implements the KnowledgeRepositoryService.
type Service struct {
	*coach.Microservice

	store Store
	cases CaseAccess
	now   func() time.Time
}

// New creates a KnowledgeRepositoryService.
func New(cfg Config) (*Service, error) {
	base := coach.New(coach.Config{
		Name:     cfg.Name,
		Lineage:  []string{ServiceType},
		Version:  Version,
		Settings: cfg.Settings,
		Logger:   cfg.Logger,
	})

	s := &Service{Microservice: base, store: cfg.Store, cases: cfg.Cases, now: time.Now}
	if s.cases == nil {
		proxy, err := base.PeerProxy("case_database")
		if err != nil {
			return nil, err
		}
		s.cases = casedb.NewClient(proxy)
	}
	if s.store == nil {
		switch kind := base.SettingString("store", "memory"); kind {
		case "memory":
			s.store = NewMemoryStore()
		case "redis":
			s.store = NewRedisStore(RedisConfig{
				Addr:     base.SettingString("redis_addr", "localhost:6379"),
				Password: base.SettingString("redis_password", ""),
				DB:       base.SettingInt("redis_db", 0),
				Key:      base.SettingString("redis_key", ""),
			})
		default:
			return nil, fmt.Errorf("unknown store %q", kind)
		}
	}

	base.AddCloser(s.store.Close)
	base.AddHealthCheck("store", s.store.Ping)
	base.WithStats(s.statistics)

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// Publish parses content as N-Triples and stores it for caseID, replacing
// any earlier publication. The session must be a stakeholder of the case.
func (s *Service) Publish(ctx context.Context, session casedb.Session, caseID, title, content string) (Summary, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return Summary{}, errors.InvalidInput("case_id", "must not be empty")
	}
	if _, err := s.cases.CaseInfo(ctx, session, caseID); err != nil {
		return Summary{}, err
	}
	triples, err := rdf.Unmarshal(content)
	if err != nil {
		return Summary{}, errors.InvalidInput("content", err.Error())
	}

	doc := Document{
		CaseID:      caseID,
		Title:       title,
		PublishedAt: s.now().UTC(),
		Content:     rdf.Marshal(triples),
		Facts:       make([]Fact, 0, len(triples)),
	}
	for _, t := range triples {
		doc.Facts = append(doc.Facts, Fact{
			Subject:   t.Subject.String(),
			Predicate: t.Predicate.String(),
			Object:    t.Object.String(),
		})
	}
	if err := s.store.Put(ctx, doc); err != nil {
		return Summary{}, errors.Internal("failed to store document", err)
	}

	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"case_id": caseID,
		"facts":   len(doc.Facts),
	}).Info("case published")
	return doc.Summary(), nil
}

// Query evaluates a JSONPath expression over the list of published
// documents.
func (s *Service) Query(ctx context.Context, path string) (any, error) {
	docs, err := s.store.List(ctx)
	if err != nil {
		return nil, errors.Internal("failed to list documents", err)
	}
	// jsonpath walks generic JSON values, not structs.
	raw, err := json.Marshal(docs)
	if err != nil {
		return nil, errors.Internal("failed to encode documents", err)
	}
	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, errors.Internal("failed to encode documents", err)
	}

	result, err := jsonpath.Get(path, data)
	if err != nil {
		return nil, errors.InvalidInput("path", err.Error())
	}
	return result, nil
}

// Remove withdraws the publication of caseID. The session must be a
// stakeholder of the case.
func (s *Service) Remove(ctx context.Context, session casedb.Session, caseID string) error {
	if _, err := s.cases.CaseInfo(ctx, session, caseID); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, caseID); err != nil {
		return s.storeError(err, caseID)
	}
	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"case_id": caseID,
		"user_id": session.UserID,
	}).Info("publication removed")
	return nil
}

func (s *Service) storeError(err error, caseID string) error {
	if errors.IsError(err, ErrNotFound) {
		return errors.NotFound("document", caseID)
	}
	return errors.Internal("knowledge store failure", err)
}

func (s *Service) statistics() map[string]any {
	docs, err := s.store.List(context.Background())
	if err != nil {
		return map[string]any{"error": err.Error()}
	}
	facts := 0
	for _, d := range docs {
		facts += len(d.Facts)
	}
	return map[string]any{
		"documents": len(docs),
		"facts":     facts,
	}
}
