// Package ontology implements the model services: ContextModelService,
// PropertyModelService and DecisionProcessService. All three serve a YAML
// class hierarchy and differ only in their type name and ontology file.
package ontology

import (
	"context"
	"fmt"
	"sync"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/logging"
	"github.com/coach-dss/coach/internal/settings"
)

const (
	ContextModelType    = "ContextModelService"
	PropertyModelType   = "PropertyModelService"
	DecisionProcessType = "DecisionProcessService"

	// BaseType is the shared lineage entry of every model service.
	BaseType = "ModelService"
	Version  = "1.0.0"
)

// Types lists the service types this package implements.
var Types = []string{ContextModelType, PropertyModelType, DecisionProcessType}

// IsModelType reports whether serviceType is served by this package.
func IsModelType(serviceType string) bool {
	for _, t := range Types {
		if t == serviceType {
			return true
		}
	}
	return false
}

// Config configures a model service.
type Config struct {
	// Type is one of Types.
	Type     string
	Name     string
	Settings *settings.Settings
	Logger   *logging.Logger
}

// Service serves one ontology.
type Service struct {
	*coach.Microservice

	path string

	mu    sync.RWMutex
	model *Model
}

// New creates a model service. The ontology is read at Start and re-read
// whenever the update webhook fires.
func New(cfg Config) (*Service, error) {
	if !IsModelType(cfg.Type) {
		return nil, fmt.Errorf("unknown model service type %q", cfg.Type)
	}

	base := coach.New(coach.Config{
		Name:     cfg.Name,
		Lineage:  []string{cfg.Type, BaseType},
		Version:  Version,
		Settings: cfg.Settings,
		Logger:   cfg.Logger,
	})

	s := &Service{
		Microservice: base,
		path:         base.SettingString("ontology_file", "ontology.yaml"),
		model:        &Model{},
	}
	base.WithHydrate(s.load)
	base.OnUpdate(s.load)
	base.WithStats(s.statistics)

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) load(ctx context.Context) error {
	model, err := LoadFile(s.path)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.model = model
	s.mu.Unlock()

	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"path":        s.path,
		"classes":     len(model.doc.Classes),
		"individuals": len(model.doc.Individuals),
	}).Info("ontology loaded")
	return nil
}

// Model returns the current ontology.
func (s *Service) Model() *Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

func (s *Service) statistics() map[string]any {
	m := s.Model()
	return map[string]any{
		"ontology_file": s.path,
		"classes":       len(m.doc.Classes),
		"individuals":   len(m.doc.Individuals),
	}
}
