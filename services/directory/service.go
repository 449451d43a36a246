// Package directory implements the DirectoryService, the registry that maps
// service types and names to base URLs.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/coach-dss/coach/internal/coach"
	"github.com/coach-dss/coach/internal/errors"
	"github.com/coach-dss/coach/internal/jsonfile"
	"github.com/coach-dss/coach/internal/logging"
	"github.com/coach-dss/coach/internal/settings"
)

const (
	ServiceType = "DirectoryService"
	Version     = "1.0.0"

	defaultFile         = "directory.json"
	defaultProbeTimeout = 5 * time.Second
)

// Entry is one registered service. It is stored as a [type, name, url]
// triple.
type Entry struct {
	Type string
	Name string
	URL  string
}

func (e Entry) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]string{e.Type, e.Name, e.URL})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var triple []string
	if err := json.Unmarshal(data, &triple); err != nil {
		return err
	}
	if len(triple) != 3 {
		return fmt.Errorf("directory entry must have 3 elements, got %d", len(triple))
	}
	e.Type, e.Name, e.URL = triple[0], triple[1], triple[2]
	return nil
}

// ProbeResult is the outcome of the latest liveness probe of an entry.
type ProbeResult struct {
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Config configures the DirectoryService.
type Config struct {
	Name     string
	Settings *settings.Settings
	Logger   *logging.Logger
	// HTTPClient is used by liveness probes.
	HTTPClient *http.Client
}

// Service implements the DirectoryService.
type Service struct {
	*coach.Microservice

	path       string
	httpClient *http.Client

	mu      sync.RWMutex
	entries []Entry

	probeMu sync.RWMutex
	probes  map[string]ProbeResult
}

// New creates a DirectoryService. The directory file is read at Start.
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
		path:         base.SettingString("directory_file", defaultFile),
		httpClient:   cfg.HTTPClient,
		probes:       make(map[string]ProbeResult),
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: base.SettingDuration("probe_timeout", defaultProbeTimeout)}
	}

	base.WithHydrate(s.load)
	base.WithStats(s.statistics)
	if schedule := base.SettingString("probe_schedule", ""); schedule != "" {
		if err := base.AddCronWorker(schedule, s.probeAll); err != nil {
			return nil, err
		}
	}

	if err := s.registerRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Service) load(ctx context.Context) error {
	var entries []Entry
	found, err := jsonfile.Read(s.path, &entries)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.Logger().WithContext(ctx).WithFields(map[string]interface{}{
		"path":    s.path,
		"found":   found,
		"entries": len(entries),
	}).Info("directory loaded")
	return nil
}

// persist must be called with mu held.
// commit saves entries and makes them the live directory only once the file
// is written. Callers hold mu and pass a slice that does not alias s.entries.
func (s *Service) commit(entries []Entry) error {
	if entries == nil {
		entries = []Entry{}
	}
	if err := jsonfile.Write(s.path, entries); err != nil {
		return errors.Internal("failed to save directory", err)
	}
	s.entries = entries
	return nil
}

// =============================================================================
// Directory operations
// =============================================================================

// Add registers url under (typ, name), replacing an existing entry.
func (s *Service) Add(typ, name, rawURL string) error {
	if err := validateURL(rawURL); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Entry, len(s.entries), len(s.entries)+1)
	copy(next, s.entries)
	for i, e := range next {
		if e.Type == typ && e.Name == name {
			next[i].URL = rawURL
			return s.commit(next)
		}
	}
	return s.commit(append(next, Entry{Type: typ, Name: name, URL: rawURL}))
}

// Remove deletes the entry (typ, name).
func (s *Service) Remove(typ, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.Type == typ && e.Name == name {
			next := make([]Entry, 0, len(s.entries)-1)
			next = append(next, s.entries[:i]...)
			next = append(next, s.entries[i+1:]...)
			return s.commit(next)
		}
	}
	return errors.NotFound("service", typ+"/"+name)
}

// Lookup returns the URL registered under (typ, name).
func (s *Service) Lookup(typ, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Type == typ && e.Name == name {
			return e.URL, nil
		}
	}
	return "", errors.NotFound("service", typ+"/"+name)
}

// OfType returns the [name, url] pairs registered for typ, in registration
// order.
func (s *Service) OfType(typ string) [][2]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := [][2]string{}
	for _, e := range s.entries {
		if e.Type == typ {
			out = append(out, [2]string{e.Name, e.URL})
		}
	}
	return out
}

// Entries returns a copy of the directory.
func (s *Service) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Entry{}, s.entries...)
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return errors.InvalidInput("url", "must be an absolute http(s) URL")
	}
	return nil
}

// =============================================================================
// Liveness probing
// =============================================================================

func (s *Service) probeAll(ctx context.Context) error {
	for _, e := range s.Entries() {
		result := ProbeResult{Healthy: true, CheckedAt: time.Now().UTC()}
		if err := s.probe(ctx, e.URL); err != nil {
			result = ProbeResult{Error: err.Error(), CheckedAt: result.CheckedAt}
		}

		s.probeMu.Lock()
		s.probes[e.Type+"/"+e.Name] = result
		s.probeMu.Unlock()
	}
	return nil
}

func (s *Service) probe(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

// Probes returns the latest probe results keyed by "type/name".
func (s *Service) Probes() map[string]ProbeResult {
	s.probeMu.RLock()
	defer s.probeMu.RUnlock()

	out := make(map[string]ProbeResult, len(s.probes))
	for k, v := range s.probes {
		out[k] = v
	}
	return out
}

func (s *Service) statistics() map[string]any {
	entries := s.Entries()
	types := make(map[string]int)
	for _, e := range entries {
		types[e.Type]++
	}
	names := make([]string, 0, len(types))
	for t := range types {
		names = append(names, t)
	}
	sort.Strings(names)

	stats := map[string]any{
		"entries": len(entries),
		"types":   names,
		"file":    s.path,
	}
	if probes := s.Probes(); len(probes) > 0 {
		stats["probes"] = probes
	}
	return stats
}
