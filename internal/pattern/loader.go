package pattern

import (
	"context"
	"fmt"
	"os"

	"github.com/Veraticus/the-spice-must-recur/internal/model"
	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []model.CategoryRule `yaml:"rules"`
}

// LoadRulesFile reads a YAML rule file. Rules without an ID are numbered by
// position.
func LoadRulesFile(path string) ([]model.CategoryRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule file: %w", err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
	}

	for i := range file.Rules {
		if file.Rules[i].ID == 0 {
			file.Rules[i].ID = i + 1
		}
	}
	return file.Rules, nil
}

// StaticProvider serves a fixed rule list.
type StaticProvider struct {
	rules []model.CategoryRule
}

// NewStaticProvider wraps rules as a rule provider.
func NewStaticProvider(rules []model.CategoryRule) *StaticProvider {
	return &StaticProvider{rules: append([]model.CategoryRule(nil), rules...)}
}

// LoadRules returns a copy of the wrapped rules.
func (p *StaticProvider) LoadRules(_ context.Context) ([]model.CategoryRule, error) {
	return append([]model.CategoryRule(nil), p.rules...), nil
}

// FileProvider loads rules from a YAML file on every session start.
type FileProvider struct {
	Path string
}

// LoadRules reads the configured file.
func (p FileProvider) LoadRules(_ context.Context) ([]model.CategoryRule, error) {
	return LoadRulesFile(p.Path)
}
