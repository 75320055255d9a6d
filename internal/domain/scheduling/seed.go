package scheduling

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// RuleFile is the YAML document accepted by `rules seed`.
type RuleFile struct {
	Rules []RuleEntry `yaml:"rules"`
}

// RuleEntry is one rule in a seed file. Times are "HH:MM" and dates
// "YYYY-MM-DD".
type RuleEntry struct {
	Kind                 RuleKind `yaml:"kind"`
	Weekday              *int     `yaml:"weekday"`
	SpecificDate         string   `yaml:"specific_date"`
	StartTime            string   `yaml:"start_time"`
	EndTime              string   `yaml:"end_time"`
	SimultaneousCapacity *int     `yaml:"simultaneous_capacity"`
	NumericValue         *int     `yaml:"numeric_value"`
	Active               *bool    `yaml:"active"`
	Description          string   `yaml:"description"`
}

func (e RuleEntry) toRule() (Rule, error) {
	f := ruleFields{
		Kind:                 e.Kind,
		Weekday:              e.Weekday,
		SimultaneousCapacity: e.SimultaneousCapacity,
		NumericValue:         e.NumericValue,
		Active:               e.Active,
		Description:          e.Description,
	}
	if e.SpecificDate != "" {
		d, err := ParseDate(e.SpecificDate)
		if err != nil {
			return Rule{}, err
		}
		f.SpecificDate = &d
	}
	if e.StartTime != "" {
		t, err := ParseTimeOfDay(e.StartTime)
		if err != nil {
			return Rule{}, err
		}
		f.StartTime = &t
	}
	if e.EndTime != "" {
		t, err := ParseTimeOfDay(e.EndTime)
		if err != nil {
			return Rule{}, err
		}
		f.EndTime = &t
	}
	return f.toRule()
}

// LoadRules parses and validates a YAML seed file.
func LoadRules(r io.Reader) ([]Rule, error) {
	var file RuleFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode rule file: %w", err)
	}
	rules := make([]Rule, 0, len(file.Rules))
	for i, e := range file.Rules {
		rule, err := e.toRule()
		if err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("rules[%d]: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
