// Package scenario loads the persona and behavioral script assigned
// to a test call. Scenarios live as YAML files in a definitions
// directory; the session treats them as opaque prompt inputs.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario describes one test call: who the fake patient is, what
// they want, and what the agent under test is expected to do.
type Scenario struct {
	ID            string `yaml:"id"`
	Name          string `yaml:"name"`
	PatientName   string `yaml:"patient_name"`
	PatientAge    int    `yaml:"patient_age"`
	DateOfBirth   string `yaml:"date_of_birth"`
	Personality   string `yaml:"personality"`
	SpeakingStyle string `yaml:"speaking_style"`
	Goal          string `yaml:"goal"`
	Backstory     string `yaml:"backstory"`
	Instructions  string `yaml:"instructions"`

	ExpectedAgentActions []string `yaml:"expected_agent_actions"`
	BugTriggers          []string `yaml:"bug_triggers"`
}

// Load reads a single scenario by ID from the definitions directory.
func Load(dir, id string) (*Scenario, error) {
	scenarios, err := LoadAll(dir)
	if err != nil {
		return nil, err
	}
	for _, s := range scenarios {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("scenario not found: %s", id)
}

// LoadAll reads every .yaml file in the definitions directory, sorted
// by filename.
func LoadAll(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read scenarios directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	scenarios := make([]*Scenario, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read scenario %s: %w", name, err)
		}
		var s Scenario
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse scenario %s: %w", name, err)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("scenario %s has no id", name)
		}
		if s.DateOfBirth == "" {
			s.DateOfBirth = "unknown"
		}
		scenarios = append(scenarios, &s)
	}
	return scenarios, nil
}

// ListIDs returns the IDs of all scenarios in the directory.
func ListIDs(dir string) ([]string, error) {
	scenarios, err := LoadAll(dir)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(scenarios))
	for i, s := range scenarios {
		ids[i] = s.ID
	}
	return ids, nil
}
