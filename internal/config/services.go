package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// ServiceSettings describes one service type's defaults.
type ServiceSettings struct {
	Port        int    `yaml:"port"`
	Description string `yaml:"description"`
}

// ServicesConfig maps service type names to their defaults.
type ServicesConfig struct {
	Services map[string]*ServiceSettings `yaml:"services"`
}

// Known reports whether serviceType is configured.
func (c *ServicesConfig) Known(serviceType string) bool {
	_, ok := c.Services[serviceType]
	return ok
}

// Port returns the default port of serviceType, or 0.
func (c *ServicesConfig) Port(serviceType string) int {
	if s, ok := c.Services[serviceType]; ok {
		return s.Port
	}
	return 0
}

// Types returns the configured service types, sorted.
func (c *ServicesConfig) Types() []string {
	types := make([]string, 0, len(c.Services))
	for name := range c.Services {
		types = append(types, name)
	}
	sort.Strings(types)
	return types
}

// LoadServicesConfigFromPath loads the services configuration from a YAML file.
func LoadServicesConfigFromPath(path string) (*ServicesConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read services config: %w", err)
	}

	var cfg ServicesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse services config: %w", err)
	}

	for id, settings := range cfg.Services {
		if settings == nil || settings.Port == 0 {
			return nil, fmt.Errorf("service %s: port is required", id)
		}
	}

	return &cfg, nil
}

// DefaultServicesConfig returns the default services configuration
func DefaultServicesConfig() *ServicesConfig {
	return &ServicesConfig{
		Services: map[string]*ServiceSettings{
			"DirectoryService": {
				Port:        5000,
				Description: "Registry of deployed services",
			},
			"AuthenticationService": {
				Port:        5001,
				Description: "User accounts and session tokens",
			},
			"CaseDatabase": {
				Port:        5002,
				Description: "Decision cases, stakeholders and alternatives",
			},
			"ContextModelService": {
				Port:        5003,
				Description: "Context ontology",
			},
			"PropertyModelService": {
				Port:        5004,
				Description: "Property ontology",
			},
			"DecisionProcessService": {
				Port:        5005,
				Description: "Decision process ontology",
			},
			"KnowledgeRepositoryService": {
				Port:        5006,
				Description: "Published case knowledge",
			},
			"EstimationMethodService": {
				Port:        5007,
				Description: "Scripted estimation methods",
			},
			"InteractionService": {
				Port:        5008,
				Description: "Web user interface",
			},
		},
	}
}
