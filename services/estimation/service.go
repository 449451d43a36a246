// Package estimation implements the EstimationMethodService: named
// JavaScript methods that estimate a value from a set of inputs, optionally
// taken from a case's properties.
package estimation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/logging"
	"github.com/coach-dss/coach/internal/metrics"
	"github.com/coach-dss/coach/internal/settings"
	"github.com/coach-dss/coach/services/casedb"
)

const (
	ServiceType = "EstimationMethodService"
	Version     = "1.0.0"

	// PropertyPrefix prefixes the case property an estimate is stored in.
	PropertyPrefix = "estimate_"

	defaultScriptTimeout = 2 * time.Second
)

// CaseAccess is the part of the CaseDatabase client estimate_case uses.
type CaseAccess interface {
	CaseInfo(ctx context.Context, s casedb.Session, caseID string) (casedb.CaseInfo, error)
	ChangeCaseProperty(ctx context.Context, s casedb.Session, caseID, name, value string) error
}

// Config configures the EstimationMethodService.
type Config struct {
	Name     string
	Settings *settings.Settings
	Logger   *logging.Logger
	// Cases overrides the "case_database" setting.
	Cases CaseAccess
}

// Estimate is the reply of a method run.
type Estimate struct {
	Method string `json:"method"`
	Result any    `json:"result"`
}

// Service implements the EstimationMethodService.
type Service struct {
	*coach.Microservice

	path    string
	timeout time.Duration
	cases   CaseAccess

	mu      sync.RWMutex
	catalog *Catalog
}

// New creates an EstimationMethodService. Methods are read at Start and
// re-read by the update webhook.
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
		path:         base.SettingString("methods_file", "methods.yaml"),
		timeout:      base.SettingDuration("script_timeout", defaultScriptTimeout),
		cases:        cfg.Cases,
		catalog:      &Catalog{methods: map[string]*Method{}},
	}
	if s.cases == nil && base.Settings().Has(base.Lineage(), "case_database") {
		proxy, err := base.PeerProxy("case_database")
		if err != nil {
			return nil, err
		}
		s.cases = casedb.NewClient(proxy)
	}

	base.WithHydrate(s.load)
	base.OnUpdate(s.load)
	base.WithStats(func() map[string]any {
		return map[string]any{
			"methods_file":   s.path,
			"methods":        s.Catalog().Len(),
			"script_timeout": s.timeout.String(),
		}
	})

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) load(ctx context.Context) error {
	catalog, err := LoadCatalog(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.catalog = catalog
	s.mu.Unlock()

	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"path":    s.path,
		"methods": catalog.Len(),
	}).Info("estimation methods loaded")
	return nil
}

// Catalog returns the current methods.
func (s *Service) Catalog() *Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

// Estimate runs the named method on input.
func (s *Service) Estimate(ctx context.Context, name string, input map[string]any) (Estimate, error) {
	m, ok := s.Catalog().Get(name)
	if !ok {
		return Estimate{}, errors.NotFound("method", name)
	}

	start := time.Now()
	result, err := m.Run(ctx, input, s.timeout)
	metrics.RecordEstimation(name, time.Since(start), err == nil)
	if err != nil {
		return Estimate{}, err
	}
	return Estimate{Method: name, Result: result}, nil
}

// EstimateCase runs the named method on a case's properties and stores the
// result as the case property estimate_<name>.
func (s *Service) EstimateCase(ctx context.Context, session casedb.Session, caseID, name string) (Estimate, error) {
	if s.cases == nil {
		return Estimate{}, errors.Unavailable(casedb.ServiceType, fmt.Errorf("case_database is not configured"))
	}
	info, err := s.cases.CaseInfo(ctx, session, caseID)
	if err != nil {
		return Estimate{}, err
	}

	est, err := s.Estimate(ctx, name, propertyInput(info.Properties))
	if err != nil {
		return Estimate{}, err
	}
	value, err := formatResult(est.Result)
	if err != nil {
		return Estimate{}, errors.Internal("failed to encode estimate", err)
	}
	if err := s.cases.ChangeCaseProperty(ctx, session, caseID, PropertyPrefix+name, value); err != nil {
		return Estimate{}, err
	}

	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"case_id": caseID,
		"method":  name,
	}).Info("case estimated")
	return est, nil
}

// propertyInput turns case properties into script input. Finite numeric
// values are passed as numbers; "NaN" and "Inf" stay strings.
func propertyInput(props map[string]string) map[string]any {
	input := make(map[string]any, len(props))
	for k, v := range props {
		if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			input[k] = f
		} else {
			input[k] = v
		}
	}
	return input
}

func formatResult(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
