// Package authentication implements the AuthenticationService: user accounts
// kept in a JSON file and the session tokens other services validate.
package authentication

import (
	"context"
	"crypto/subtle"
	"regexp"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/jsonfile"
	"github.com/coach-dss/coach/internal/logging"
	"github.com/coach-dss/coach/internal/settings"
)

const (
	ServiceType = "AuthenticationService"
	Version     = "1.0.0"

	defaultUsersFile  = "users.json"
	defaultTokenTTL   = 24 * time.Hour
	minPasswordLength = 6
)

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.@-]{1,64}$`)

// User is a stored account.
type User struct {
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Token        string    `json:"token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserInfo is the public view of a user.
type UserInfo struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

// Config configures the AuthenticationService.
type Config struct {
	Name     string
	Settings *settings.Settings
	Logger   *logging.Logger
}

// Service implements the AuthenticationService.
type Service struct {
	*coach.Microservice

	path       string
	bcryptCost int
	tokens     *tokenSigner

	mu    sync.RWMutex
	users map[string]*User

	dummyOnce sync.Once
	dummy     []byte
}

// New creates an AuthenticationService. Without a token_secret setting a
// random secret is generated, so tokens do not survive a restart.
func New(cfg Config) (*Service, error) {
	base := coach.New(coach.Config{
		Name:     cfg.Name,
		Lineage:  []string{ServiceType},
		Version:  Version,
		Settings: cfg.Settings,
		Logger:   cfg.Logger,
	})

	secret := base.SettingString("token_secret", "")
	if secret == "" {
		base.Logger().Warn("token_secret not set; using an ephemeral secret")
	}
	tokens, err := newTokenSigner([]byte(secret), base.SettingDuration("token_ttl", defaultTokenTTL))
	if err != nil {
		return nil, err
	}

	cost := base.SettingInt("bcrypt_cost", bcrypt.DefaultCost)
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}

	s := &Service{
		Microservice: base,
		path:         base.SettingString("users_file", defaultUsersFile),
		bcryptCost:   cost,
		tokens:       tokens,
		users:        make(map[string]*User),
	}
	base.WithHydrate(s.load)
	base.WithStats(s.statistics)

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) load(ctx context.Context) error {
	users := make(map[string]*User)
	if _, err := jsonfile.Read(s.path, &users); err != nil {
		return err
	}

	s.mu.Lock()
	s.users = users
	s.mu.Unlock()

	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"path":  s.path,
		"users": len(users),
	}).Info("user database loaded")
	return nil
}

// putUser writes the user database with u stored under userID and swaps
// it in only once the file is saved. Stored users are never modified in
// place. Callers hold mu.
func (s *Service) putUser(userID string, u User) error {
	next := make(map[string]*User, len(s.users)+1)
	for id, v := range s.users {
		next[id] = v
	}
	next[userID] = &u
	if err := jsonfile.Write(s.path, next); err != nil {
		return errors.Internal("failed to save users", err)
	}
	s.users = next
	return nil
}

// dummyHash is compared against for unknown users so a failed login takes
// as long whether or not the user exists.
func (s *Service) dummyHash() []byte {
	s.dummyOnce.Do(func() {
		s.dummy, _ = bcrypt.GenerateFromPassword([]byte("coach-unknown-user"), s.bcryptCost)
	})
	return s.dummy
}

func (s *Service) statistics() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := 0
	for _, u := range s.users {
		if u.Token != "" {
			sessions++
		}
	}
	return map[string]any{"users": len(s.users), "sessions": sessions}
}

// =============================================================================
// Account operations
// =============================================================================

// CreateUser registers a new account.
func (s *Service) CreateUser(userID, password, name, email string) error {
	if !userIDPattern.MatchString(userID) {
		return errors.InvalidInput("user_id", "must be 1-64 letters, digits or _.@-")
	}
	if len(password) < minPasswordLength {
		return errors.InvalidInput("password", "too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return errors.Internal("failed to hash password", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[userID]; exists {
		return errors.Conflict("user already exists")
	}
	return s.putUser(userID, User{
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	})
}

// Login checks the password and returns the user's session token, issuing
// a new one when none is active.
func (s *Service) Login(userID, password string) (string, error) {
	s.mu.RLock()
	u, ok := s.users[userID]
	s.mu.RUnlock()

	hash := s.dummyHash()
	if ok {
		hash = []byte(u.PasswordHash)
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil || !ok {
		return "", errors.Unauthorized("Invalid credentials")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The password may have changed while it was being compared.
	current, ok := s.users[userID]
	if !ok || current.PasswordHash != u.PasswordHash {
		return "", errors.Unauthorized("Invalid credentials")
	}
	if current.Token != "" && s.validLocked(userID, current.Token) {
		return current.Token, nil
	}

	token, err := s.tokens.issue(userID)
	if err != nil {
		return "", errors.Internal("failed to issue token", err)
	}
	next := *current
	next.Token = token
	if err := s.putUser(userID, next); err != nil {
		return "", err
	}
	return token, nil
}

// Valid reports whether token is the live session token of userID.
func (s *Service) Valid(userID, token string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validLocked(userID, token)
}

func (s *Service) validLocked(userID, token string) bool {
	u, ok := s.users[userID]
	if !ok || u.Token == "" || token == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(u.Token), []byte(token)) != 1 {
		return false
	}
	subject, err := s.tokens.subject(token)
	return err == nil && subject == userID
}

// Logout revokes the user's session token.
func (s *Service) Logout(userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.validLocked(userID, token) {
		return errors.InvalidUserToken()
	}
	next := *s.users[userID]
	next.Token = ""
	return s.putUser(userID, next)
}

// Info returns the public profile of userID.
func (s *Service) Info(userID, token string) (UserInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.validLocked(userID, token) {
		return UserInfo{}, errors.InvalidUserToken()
	}
	u := s.users[userID]
	return UserInfo{UserID: userID, Name: u.Name, Email: u.Email}, nil
}

// ChangePassword replaces the user's password. The session stays valid.
func (s *Service) ChangePassword(userID, token, password string) error {
	if len(password) < minPasswordLength {
		return errors.InvalidInput("password", "too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return errors.Internal("failed to hash password", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.validLocked(userID, token) {
		return errors.InvalidUserToken()
	}
	next := *s.users[userID]
	next.PasswordHash = string(hash)
	return s.putUser(userID, next)
}
