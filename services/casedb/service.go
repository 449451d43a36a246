// Package casedb implements the CaseDatabase: decision cases, their
// stakeholders, alternatives and free-form properties.
package casedb

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/logging"
	"github.com/coach-dss/coach/internal/settings"
	"github.com/coach-dss/coach/services/authentication"
)

const (
	ServiceType = "CaseDatabase"
	Version     = "1.0.0"
)

var propertyNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)

// TokenVerifier validates user_id/token pairs.
type TokenVerifier interface {
	Verify(ctx context.Context, userID, token string) error
}

// Config configures the CaseDatabase.
type Config struct {
	Name     string
	Settings *settings.Settings
	Logger   *logging.Logger
	// Store overrides the "store" setting.
	Store Store
	// Verifier overrides the "authentication_service" setting.
	Verifier TokenVerifier
}

// Service implements the CaseDatabase.
type Service struct {
	*coach.Microservice

	store    Store
	verifier TokenVerifier
}

// New creates a CaseDatabase. A postgres store is opened and migrated at
// Start.
func New(cfg Config) (*Service, error) {
	base := coach.New(coach.Config{
		Name:     cfg.Name,
		Lineage:  []string{ServiceType},
		Version:  Version,
		Settings: cfg.Settings,
		Logger:   cfg.Logger,
	})

	s := &Service{Microservice: base, store: cfg.Store, verifier: cfg.Verifier}

	if s.verifier == nil {
		proxy, err := base.PeerProxy("authentication_service")
		if err != nil {
			return nil, err
		}
		s.verifier = authentication.NewClient(proxy)
	}

	if s.store == nil {
		switch kind := base.SettingString("store", "memory"); kind {
		case "memory":
			s.store = NewMemoryStore()
		case "postgres":
			base.WithHydrate(s.openPostgres)
		default:
			return nil, fmt.Errorf("unknown store %q", kind)
		}
	}

	base.AddCloser(func() error {
		if s.store == nil {
			return nil
		}
		return s.store.Close()
	})
	base.AddHealthCheck("store", func(ctx context.Context) error {
		if s.store == nil {
			return fmt.Errorf("store not open")
		}
		return s.store.Ping(ctx)
	})

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) openPostgres(ctx context.Context) error {
	dsn := s.SettingString("dsn", "")
	if dsn == "" {
		return fmt.Errorf("setting dsn is required for the postgres store")
	}
	pg, err := OpenPostgres(ctx, dsn)
	if err != nil {
		return err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return err
	}
	s.store = pg
	s.Logger().WithContext(ctx).Info("postgres store ready")
	return nil
}

// =============================================================================
// Authorization
// =============================================================================

func (s *Service) authenticate(ctx context.Context, userID, token string) error {
	return s.verifier.Verify(ctx, userID, token)
}

// authorize checks the session and returns the caller's role in the case.
func (s *Service) authorize(ctx context.Context, userID, token, caseID string) (string, error) {
	if err := s.authenticate(ctx, userID, token); err != nil {
		return "", err
	}
	if _, err := s.store.GetCase(ctx, caseID); err != nil {
		return "", s.storeError(err, "case", caseID)
	}
	role, err := s.store.Role(ctx, caseID, userID)
	if errors.IsError(err, ErrNotFound) {
		return "", errors.Forbidden("not a stakeholder of this case")
	}
	if err != nil {
		return "", s.storeError(err, "case", caseID)
	}
	return role, nil
}

func (s *Service) storeError(err error, resource, id string) error {
	if errors.IsError(err, ErrNotFound) {
		return errors.NotFound(resource, id)
	}
	return errors.Internal("case store failure", err)
}

// ValidPropertyName reports whether name may be used as a case property.
func ValidPropertyName(name string) bool {
	return propertyNamePattern.MatchString(name)
}

// =============================================================================
// Case operations
// =============================================================================

// CreateCase stores a new case owned by userID and returns its id.
func (s *Service) CreateCase(ctx context.Context, userID, name, description string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.InvalidInput("name", "must not be empty")
	}
	c := Case{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.store.CreateCase(ctx, c, userID); err != nil {
		return "", errors.Internal("failed to create case", err)
	}
	return c.ID, nil
}

// Info gathers a case with its stakeholders, alternatives and properties.
func (s *Service) Info(ctx context.Context, caseID string) (CaseInfo, error) {
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return CaseInfo{}, s.storeError(err, "case", caseID)
	}
	info := CaseInfo{Case: c}
	if info.Stakeholders, err = s.store.Stakeholders(ctx, caseID); err != nil {
		return CaseInfo{}, s.storeError(err, "case", caseID)
	}
	if info.Alternatives, err = s.store.Alternatives(ctx, caseID); err != nil {
		return CaseInfo{}, s.storeError(err, "case", caseID)
	}
	if info.Properties, err = s.store.Properties(ctx, caseID); err != nil {
		return CaseInfo{}, s.storeError(err, "case", caseID)
	}
	return info, nil
}

func (s *Service) setProperty(ctx context.Context, caseID, name, value string) error {
	if !ValidPropertyName(name) {
		return errors.InvalidInput("name", "must match "+propertyNamePattern.String())
	}
	if err := s.store.SetProperty(ctx, caseID, name, value); err != nil {
		return s.storeError(err, "case", caseID)
	}
	return nil
}

// setStakeholder adds a stakeholder or changes its role on behalf of a
// caller holding callerRole. Only owners may grant or revoke ownership, and a
// case always keeps at least one owner.
func (s *Service) setStakeholder(ctx context.Context, callerRole string, sh Stakeholder) error {
	if sh.Role == RoleOwner && callerRole != RoleOwner {
		return errors.Forbidden("only owners may add owners")
	}

	current, err := s.store.Role(ctx, sh.CaseID, sh.UserID)
	switch {
	case errors.IsError(err, ErrNotFound):
	case err != nil:
		return s.storeError(err, "case", sh.CaseID)
	case current == RoleOwner && sh.Role != RoleOwner:
		if callerRole != RoleOwner {
			return errors.Forbidden("only owners may change an owner's role")
		}
		owners, err := s.ownerCount(ctx, sh.CaseID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return errors.Conflict("a case must keep at least one owner")
		}
	}

	if err := s.store.SetStakeholder(ctx, sh); err != nil {
		return s.storeError(err, "case", sh.CaseID)
	}
	return nil
}

func (s *Service) ownerCount(ctx context.Context, caseID string) (int, error) {
	stakeholders, err := s.store.Stakeholders(ctx, caseID)
	if err != nil {
		return 0, s.storeError(err, "case", caseID)
	}
	n := 0
	for _, sh := range stakeholders {
		if sh.Role == RoleOwner {
			n++
		}
	}
	return n, nil
}
