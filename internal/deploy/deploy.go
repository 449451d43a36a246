// Package deploy turns a deployment description into the files needed to
// run a COACH installation: one settings file and one systemd unit per
// service, plus the directory file shared by the DirectoryService.
package deploy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/coach-dss/coach/internal/config"
	"github.com/coach-dss/coach/services/directory"
)

const (
	DirectoryFile = "directory.json"
	SettingsFile  = "settings.json"
)

// serviceNamePattern keeps names safe to use as directory, file and unit
// names.
var serviceNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// peerSettings maps the settings services use to find each other to the
// service type they name.
var peerSettings = []struct{ key, typ string }{
	{"directory", directory.ServiceType},
	{"authentication_service", "AuthenticationService"},
	{"case_db", "CaseDatabase"},
	{"case_database", "CaseDatabase"},
	{"context_model", "ContextModelService"},
	{"knowledge_repository", "KnowledgeRepositoryService"},
}

// Service is one service instance of a deployment.
type Service struct {
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Port     int            `yaml:"port"`
	Settings map[string]any `yaml:"settings"`
}

// Deployment describes a COACH installation on one host.
type Deployment struct {
	Host         string         `yaml:"host"`
	BaseDir      string         `yaml:"base_dir"`
	Binary       string         `yaml:"binary"`
	GithubSecret string         `yaml:"github_secret"`
	Settings     map[string]any `yaml:"settings"`
	Services     []Service      `yaml:"services"`
}

// File is a generated file, relative to the output directory.
type File struct {
	Path string
	Data []byte
	Mode os.FileMode
}

// Load reads a YAML deployment.
func Load(path string) (*Deployment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read deployment: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML deployment and fills in defaults.
func Parse(data []byte) (*Deployment, error) {
	var d Deployment
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse deployment: %w", err)
	}
	if d.Host == "" {
		d.Host = "localhost"
	}
	if d.BaseDir == "" {
		d.BaseDir = "/opt/coach"
	}
	if d.Binary == "" {
		d.Binary = filepath.Join(d.BaseDir, "bin", "coach")
	}
	return &d, nil
}

// Validate checks that names and ports are unique and every type is known.
// Services without a port get their type's default port.
func (d *Deployment) Validate(known *config.ServicesConfig) error {
	names := make(map[string]bool)
	ports := make(map[int]string)
	for i := range d.Services {
		svc := &d.Services[i]
		if svc.Name == "" {
			return fmt.Errorf("service %d: name is required", i)
		}
		if !serviceNamePattern.MatchString(svc.Name) {
			return fmt.Errorf("service %d: name %q must be 1-64 letters, digits, _ or -", i, svc.Name)
		}
		if names[svc.Name] {
			return fmt.Errorf("duplicate service name %q", svc.Name)
		}
		names[svc.Name] = true

		if !known.Known(svc.Type) {
			return fmt.Errorf("service %s: unknown type %q", svc.Name, svc.Type)
		}
		if svc.Port == 0 {
			svc.Port = known.Port(svc.Type)
		}
		if svc.Port <= 0 || svc.Port > 65535 {
			return fmt.Errorf("service %s: invalid port %d", svc.Name, svc.Port)
		}
		if other, dup := ports[svc.Port]; dup {
			return fmt.Errorf("services %s and %s share port %d", other, svc.Name, svc.Port)
		}
		ports[svc.Port] = svc.Name
	}
	return nil
}

// URL returns the address a service is reachable at.
func (d *Deployment) URL(svc Service) string {
	return "http://" + d.Host + ":" + strconv.Itoa(svc.Port)
}

// Generate validates d and renders every file of the installation.
func Generate(d *Deployment, known *config.ServicesConfig) ([]File, error) {
	if err := d.Validate(known); err != nil {
		return nil, err
	}

	entries := make([]directory.Entry, 0, len(d.Services))
	for _, svc := range d.Services {
		entries = append(entries, directory.Entry{Type: svc.Type, Name: svc.Name, URL: d.URL(svc)})
	}
	dirData, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, err
	}
	files := []File{{Path: DirectoryFile, Data: append(dirData, '\n'), Mode: 0o644}}

	for _, svc := range d.Services {
		settings, err := json.MarshalIndent(d.serviceSettings(svc), "", "  ")
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", svc.Name, err)
		}
		files = append(files, File{
			Path: filepath.Join(svc.Name, SettingsFile),
			Data: append(settings, '\n'),
			// Settings may carry secrets.
			Mode: 0o600,
		})

		unit, err := d.unit(svc)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", svc.Name, err)
		}
		files = append(files, File{Path: UnitName(svc), Data: unit, Mode: 0o644})
	}
	return files, nil
}

// serviceSettings merges the global settings with a scope named after the
// service type. Peer settings not given explicitly point at the first
// instance of their type.
func (d *Deployment) serviceSettings(svc Service) map[string]any {
	out := make(map[string]any, len(d.Settings)+3)
	for k, v := range d.Settings {
		out[k] = v
	}
	if d.GithubSecret != "" {
		out["github_secret"] = d.GithubSecret
	}
	for _, peer := range peerSettings {
		if _, ok := out[peer.key]; ok {
			continue
		}
		for _, other := range d.Services {
			if other.Type == peer.typ {
				out[peer.key] = d.URL(other)
				break
			}
		}
	}

	scope := make(map[string]any, len(svc.Settings)+1)
	for k, v := range svc.Settings {
		scope[k] = v
	}
	if svc.Type == directory.ServiceType {
		if _, ok := scope["directory_file"]; !ok {
			scope["directory_file"] = filepath.Join(d.BaseDir, DirectoryFile)
		}
	}
	out[svc.Type] = scope
	return out
}

// UnitName is the systemd unit file of a service.
func UnitName(svc Service) string {
	return "coach-" + svc.Name + ".service"
}

var unitTemplate = template.Must(template.New("unit").Parse(`[Unit]
Description=COACH {{.Type}} ({{.Name}})
After=network.target

[Service]
Type=simple
WorkingDirectory={{.Dir}}
Environment=SERVICE_TYPE={{.Type}}
Environment=SERVICE_NAME={{.Name}}
Environment=COACH_SETTINGS={{.Dir}}/settings.json
Environment=COACH_ADDR=:{{.Port}}
ExecStart={{.Binary}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=multi-user.target
`))

func (d *Deployment) unit(svc Service) ([]byte, error) {
	var buf bytes.Buffer
	err := unitTemplate.Execute(&buf, map[string]any{
		"Type":   svc.Type,
		"Name":   svc.Name,
		"Port":   svc.Port,
		"Dir":    filepath.Join(d.BaseDir, svc.Name),
		"Binary": d.Binary,
	})
	return buf.Bytes(), err
}

// WriteFiles writes files below dir.
func WriteFiles(dir string, files []File) error {
	for _, f := range files {
		path := filepath.Join(dir, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, f.Data, f.Mode); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}
	return nil
}

// Paths lists the files' paths, sorted.
func Paths(files []File) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	sort.Strings(out)
	return out
}
