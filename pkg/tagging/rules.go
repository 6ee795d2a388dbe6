package tagging

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/shunichi-ikebuchi/fintool/pkg/tagset"
)

// Rule is one entry of a tag rules file.
type Rule struct {
	Concept string   `yaml:"concept"`
	Tags    []string `yaml:"tags"`
}

// RulesFile is the YAML document accepted by LoadRules.
//
//	rules:
//	  - concept: UBER EATS
//	    tags: [food, delivery]
type RulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads a YAML rules file and converts it to tags.
func LoadRules(path string) ([]*Tag, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	tags := make([]*Tag, 0, len(file.Rules))
	for i, rule := range file.Rules {
		tag, err := New("", rule.Concept, tagset.New(rule.Tags...))
		if err != nil {
			return nil, fmt.Errorf("invalid rule %d: %w", i+1, err)
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// Import adds every tag whose concept is not already defined and returns
// how many were added.
func (m *Manager) Import(tags []*Tag) (int, error) {
	existing, err := m.List()
	if err != nil {
		return 0, err
	}
	concepts := make(map[string]bool, len(existing))
	for _, tag := range existing {
		concepts[tag.Concept] = true
	}

	added := 0
	for _, tag := range tags {
		if concepts[tag.Concept] {
			m.logger.Info("Skipping existing concept", "concept", tag.Concept)
			continue
		}
		if err := m.Add(tag); err != nil {
			return added, err
		}
		concepts[tag.Concept] = true
		added++
	}
	return added, nil
}
