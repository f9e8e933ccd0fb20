package deploy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Template is an immutable pre-compiled contract template: hex bytecode
// containing one sentinel run, plus the ABI descriptor.
type Template struct {
	Name     string        `yaml:"name"`
	Bytecode string        `yaml:"bytecode"`
	Sentinel string        `yaml:"sentinel"`
	ABI      ABIDescriptor `yaml:"abi"`
}

// Validate checks the structural invariants a template must satisfy before
// any patching or estimation happens.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Bytecode) == "" {
		return fmt.Errorf("deploy: template bytecode is empty")
	}
	if strings.TrimSpace(t.Sentinel) == "" {
		return fmt.Errorf("deploy: template sentinel is empty")
	}
	if len(strings.TrimSpace(t.Sentinel)) != sentinelHexLen {
		return fmt.Errorf("deploy: template sentinel must be %d hex chars", sentinelHexLen)
	}
	return nil
}

// LoadTemplate reads a YAML template descriptor from disk.
func LoadTemplate(path string) (Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("deploy: read template: %w", err)
	}
	var t Template
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return Template{}, fmt.Errorf("deploy: parse template %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	return t, nil
}
