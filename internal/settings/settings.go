// Package settings loads a service settings file and resolves keys along a
// service type lineage.
//
// A settings file is a flat JSON object. Keys naming a service type hold an
// object of entries scoped to that type; every other key is global:
//
//	{
//	  "log_level": "info",
//	  "Microservice": {"rate_limit": 50},
//	  "CaseDatabase": {"store": "postgres", "dsn": "postgres://..."}
//	}
//
// Looking up a key walks the lineage from the most specific type to the
// least and returns the first type-scoped entry, then the global entry.
package settings

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Settings is an immutable parsed settings document.
type Settings struct {
	raw  string
	path string
}

// Load reads and parses a settings file.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	s.path = path
	return s, nil
}

// Parse parses a settings document held in memory.
func Parse(data []byte) (*Settings, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("settings are not valid JSON")
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("settings must be a JSON object")
	}
	return &Settings{raw: string(data)}, nil
}

// Empty returns settings with no entries.
func Empty() *Settings {
	return &Settings{raw: "{}"}
}

// Path returns the file the settings were loaded from, if any.
func (s *Settings) Path() string {
	return s.path
}

// Lookup resolves key against lineage. The returned result's Exists reports
// whether any entry was found.
func (s *Settings) Lookup(lineage []string, key string) gjson.Result {
	escapedKey := gjson.Escape(key)
	for _, typeName := range lineage {
		scope := gjson.Get(s.raw, gjson.Escape(typeName))
		if !scope.IsObject() {
			continue
		}
		if v := scope.Get(escapedKey); v.Exists() {
			return v
		}
	}
	return gjson.Get(s.raw, escapedKey)
}

// Has reports whether key resolves to any entry.
func (s *Settings) Has(lineage []string, key string) bool {
	return s.Lookup(lineage, key).Exists()
}

// String resolves key as a string, returning def when absent.
func (s *Settings) String(lineage []string, key, def string) string {
	v := s.Lookup(lineage, key)
	if !v.Exists() || v.Type == gjson.Null {
		return def
	}
	return v.String()
}

// Int resolves key as an integer, returning def when absent or not numeric.
func (s *Settings) Int(lineage []string, key string, def int) int {
	v := s.Lookup(lineage, key)
	switch v.Type {
	case gjson.Number:
		return int(v.Int())
	case gjson.String:
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(v.Str), "%d", &n); err == nil {
			return n
		}
	}
	return def
}

// Bool resolves key as a boolean, returning def when absent.
func (s *Settings) Bool(lineage []string, key string, def bool) bool {
	v := s.Lookup(lineage, key)
	switch v.Type {
	case gjson.True, gjson.False:
		return v.Bool()
	case gjson.String:
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "true", "yes", "1":
			return true
		case "false", "no", "0":
			return false
		}
	}
	return def
}

// Duration resolves key as a Go duration string ("30s") or a number of
// seconds, returning def when absent or malformed.
func (s *Settings) Duration(lineage []string, key string, def time.Duration) time.Duration {
	v := s.Lookup(lineage, key)
	switch v.Type {
	case gjson.Number:
		return time.Duration(v.Float() * float64(time.Second))
	case gjson.String:
		if d, err := time.ParseDuration(strings.TrimSpace(v.Str)); err == nil {
			return d
		}
	}
	return def
}

// Strings resolves key as a list of strings. A single string value is
// treated as a comma separated list.
func (s *Settings) Strings(lineage []string, key string) []string {
	v := s.Lookup(lineage, key)
	var out []string
	switch {
	case v.IsArray():
		for _, item := range v.Array() {
			if str := strings.TrimSpace(item.String()); str != "" {
				out = append(out, str)
			}
		}
	case v.Type == gjson.String:
		for _, part := range strings.Split(v.Str, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
